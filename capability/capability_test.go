package capability

import "testing"

func TestMembershipChecks(t *testing.T) {
	s := &Set{
		Operations: []string{OpLog, OpHTTPCall},
		Features:   []string{"stub_sources"},
		Transports: []string{TransportHTTP},
	}

	if !s.SupportsOperation(OpHTTPCall) {
		t.Fatal("declared operation not found")
	}
	if s.SupportsOperation(OpPutObject) {
		t.Fatal("undeclared operation reported as supported")
	}
	if !s.HasFeature("stub_sources") || s.HasFeature("gpu") {
		t.Fatal("feature membership wrong")
	}
	if !s.HasTransport(TransportHTTP) || s.HasTransport(TransportWebSocket) {
		t.Fatal("transport membership wrong")
	}
}

func TestDefaultCoversFacadeSurface(t *testing.T) {
	s := Default()
	for _, op := range []string{
		OpLog, OpTimeNowMS, OpRandomBytes, OpGetEnv, OpHTTPCall,
		OpPutResult, OpGetObject, OpPutObject, OpMediaOpen, OpStreamOpen,
	} {
		if !s.SupportsOperation(op) {
			t.Errorf("default set missing %q", op)
		}
	}
}
