package apperr

import (
	"errors"
	"testing"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{"auth", Auth("bad token", nil), KindAuth},
		{"forbidden", Forbidden("no write", nil), KindForbidden},
		{"wrapped", fmtWrap(Upstream("timeout", errors.New("dial tcp"))), KindUpstream},
		{"raw stdlib", errors.New("boom"), KindUnspecified},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := KindOf(c.err); got != c.want {
				t.Fatalf("KindOf() = %q, want %q", got, c.want)
			}
		})
	}
}

func fmtWrap(err error) error {
	return errors.Join(errors.New("context"), err)
}

func TestRetryableOnlyUpstream(t *testing.T) {
	if !Retryable(Upstream("x", nil)) {
		t.Fatal("upstream should be retryable")
	}
	if Retryable(Fatal("x", nil)) {
		t.Fatal("fatal should not be retryable")
	}
}

func TestIsFatal(t *testing.T) {
	if !IsFatal(Fatal("x", nil)) {
		t.Fatal("fatal should be fatal")
	}
	if !IsFatal(Corruption("x", nil)) {
		t.Fatal("corruption should be fatal to the worker sense")
	}
	if IsFatal(Validation("x", nil)) {
		t.Fatal("validation should not be fatal")
	}
}
