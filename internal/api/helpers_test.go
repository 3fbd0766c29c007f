package api

import (
	"net/http/httptest"
	"testing"

	"github.com/amplify-rag/ingestcore/internal/apperr"
)

func TestWriteAppErrMapsKindsToStatusCodes(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{apperr.Auth("x", nil), 401},
		{apperr.Forbidden("x", nil), 403},
		{apperr.NotFound("x", nil), 404},
		{apperr.Validation("x", nil), 400},
		{apperr.Upstream("x", nil), 500},
		{apperr.Fatal("x", nil), 500},
	}
	for _, c := range cases {
		rec := httptest.NewRecorder()
		writeAppErr(rec, c.err)
		if rec.Code != c.want {
			t.Errorf("kind %v: got status %d, want %d", apperr.KindOf(c.err), rec.Code, c.want)
		}
	}
}
