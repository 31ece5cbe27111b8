package errors

import (
	stderrors "errors"
	"strings"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	err := New(PhaseTransport, KindTransport).
		Op("http_call").
		Detail("dial tcp: refused").
		Build()

	s := err.Error()
	if !strings.Contains(s, "[transport]") || !strings.Contains(s, "http_call") {
		t.Fatalf("unexpected message %q", s)
	}
}

func TestErrorIsMatchesPhaseAndKind(t *testing.T) {
	err := NotSupported("put_object")
	if !stderrors.Is(err, &Error{Phase: PhaseCapability, Kind: KindUnsupported}) {
		t.Fatal("Is should match on phase and kind")
	}
	if stderrors.Is(err, &Error{Phase: PhaseStorage, Kind: KindUnsupported}) {
		t.Fatal("Is should not match a different phase")
	}
}

func TestUnwrap(t *testing.T) {
	cause := stderrors.New("boom")
	err := TransportFailed("http_call", cause)
	if !stderrors.Is(err, cause) {
		t.Fatal("cause should be reachable via Unwrap")
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Fatalf("cause missing from message: %q", err)
	}
}

func TestRetryable(t *testing.T) {
	cases := []struct {
		err  *Error
		want bool
	}{
		{Timeout("ep_wait", 100), true},
		{TransportStatus("fetch_artifact", 503), true},
		{&Error{Kind: KindResourceExhausted}, true},
		{NotSupported("http_call"), false},
		{InvalidInput("put_result", "empty task id"), false},
		{NotFound(PhaseStorage, "object", "sha256:ab"), false},
	}
	for _, c := range cases {
		if got := c.err.Retryable(); got != c.want {
			t.Errorf("%v: Retryable() = %v, want %v", c.err.Kind, got, c.want)
		}
	}
}
