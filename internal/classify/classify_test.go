package classify

import "testing"

func TestDecideOrdering(t *testing.T) {
	cases := []struct {
		name string
		key  string
		meta map[string]string
		size int64
		want Lane
	}{
		{"markdown notes", "notes.md", nil, 1200, LaneText},
		{"pptx", "deck.pptx", nil, 500, LaneVisual},
		{"invoice pdf small", "march_invoice.pdf", nil, 1024, LaneVisual},
		{"scanned hint wins over size", "tiny.pdf", map[string]string{"scanned": "true"}, 10, LaneVisual},
		{"large pdf heuristic", "report.pdf", nil, 14 * 1024 * 1024, LaneVisual},
		{"small pdf defaults text", "report.pdf", nil, 2048, LaneText},
		{"go source", "main.go", nil, 900, LaneText},
		{"xlsx spreadsheet", "sales.xlsx", nil, 50000, LaneText},
		{"csv", "export.csv", nil, 300, LaneText},
		{"unknown extension defaults text", "data.bin", nil, 100, LaneText},
		{"presentation by mime overrides ext", "slides.bin", map[string]string{"mime": "application/vnd.ms-powerpoint"}, 10, LaneVisual},
		{"form-like name beats source ext", "tax_form.py", nil, 10, LaneVisual},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := Decide(c.key, c.meta, c.size); got != c.want {
				t.Fatalf("Decide(%q) = %q, want %q", c.key, got, c.want)
			}
		})
	}
}

func TestDecideDeterministic(t *testing.T) {
	for i := 0; i < 50; i++ {
		if Decide("report.pdf", nil, 14*1024*1024) != LaneVisual {
			t.Fatal("classification must be deterministic across repeated calls")
		}
	}
}

func TestDecideTotalOnEmptyInputs(t *testing.T) {
	if got := Decide("", nil, 0); got != LaneText {
		t.Fatalf("empty key should default to text, got %q", got)
	}
}
