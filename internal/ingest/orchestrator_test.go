package ingest

import "testing"

func TestShouldProcessRequiresRagEnabledOrForce(t *testing.T) {
	cases := []struct {
		name           string
		tags           map[string]string
		forceReprocess bool
		want           bool
	}{
		{"neither", map[string]string{}, false, false},
		{"rag enabled", map[string]string{"rag_enabled": "true"}, false, true},
		{"rag disabled but forced", map[string]string{"rag_enabled": "false"}, true, true},
		{"nil tags forced", nil, true, true},
		{"nil tags not forced", nil, false, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := shouldProcess(c.tags, c.forceReprocess); got != c.want {
				t.Errorf("shouldProcess(%v, %v) = %v, want %v", c.tags, c.forceReprocess, got, c.want)
			}
		})
	}
}
