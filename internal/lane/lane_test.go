package lane

import (
	"encoding/json"
	"testing"

	"github.com/amplify-rag/ingestcore/internal/classify"
)

func TestWorkItemUnmarshalsOrchestratorShape(t *testing.T) {
	body := `{
		"document_id": "doc-1",
		"bucket": "documents",
		"key": "user-1/doc-1/report.pdf",
		"lane": "text",
		"size": 2048,
		"mime": "application/pdf",
		"force_reprocess": true,
		"user": "user-1",
		"credentials": {"api_key": "s_secret-name"}
	}`

	var item workItem
	if err := json.Unmarshal([]byte(body), &item); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if item.DocumentID != "doc-1" || item.Bucket != "documents" || item.Key != "user-1/doc-1/report.pdf" {
		t.Fatalf("unexpected fields: %+v", item)
	}
	if item.Lane != classify.LaneText {
		t.Fatalf("lane = %q, want %q", item.Lane, classify.LaneText)
	}
	if !item.ForceReprocess {
		t.Fatal("expected force_reprocess to be true")
	}
	if item.Credentials["api_key"] != "s_secret-name" {
		t.Fatalf("credentials not decoded: %+v", item.Credentials)
	}
}

func TestRawImageMIMERoutesToSingleImageRenderPath(t *testing.T) {
	for _, mime := range []string{"image/jpeg", "image/png", "image/gif"} {
		if !rawImageMIME[mime] {
			t.Fatalf("expected %q to route through RenderImage", mime)
		}
	}
	for _, mime := range []string{"application/pdf", "application/vnd.ms-powerpoint", ""} {
		if rawImageMIME[mime] {
			t.Fatalf("expected %q not to route through RenderImage", mime)
		}
	}
}
