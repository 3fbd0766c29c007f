package text

import "testing"

func TestExtractFallsBackToPlainText(t *testing.T) {
	chunks, err := Extract("notes.md", []byte("# Title\n\nSome content here that is short."), 512)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected one chunk, got %d", len(chunks))
	}
}

func TestExt(t *testing.T) {
	cases := map[string]string{
		"a/b/report.PDF": ".pdf",
		"no-extension":   "",
		"archive.tar.gz": ".gz",
	}
	for in, want := range cases {
		if got := ext(in); got != want {
			t.Errorf("ext(%q) = %q, want %q", in, got, want)
		}
	}
}
