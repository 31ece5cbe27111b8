package storage

import (
	stderrors "errors"
	"strings"
	"testing"

	"github.com/lfedgeai/spear-hostapi/errors"
)

func TestPutGetRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	id, err := s.Put("model.bin", []byte("weights"))
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if !strings.HasPrefix(id, "sha256:") {
		t.Fatalf("expected content address, got %q", id)
	}

	data, err := s.Get(id)
	if err != nil || string(data) != "weights" {
		t.Fatalf("get: %q, %v", data, err)
	}
}

func TestContentAddressingIsStable(t *testing.T) {
	s := NewMemoryStore()
	a, _ := s.Put("a", []byte("same"))
	b, _ := s.Put("b", []byte("same"))
	if a != b {
		t.Fatalf("identical content must share an id: %q vs %q", a, b)
	}
}

func TestGetMissingIsStructuredNotFound(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.Get("sha256:feed")
	var e *errors.Error
	if !stderrors.As(err, &e) {
		t.Fatalf("expected structured error, got %v", err)
	}
	if e.Phase != errors.PhaseStorage || e.Kind != errors.KindNotFound {
		t.Fatalf("unexpected category %s/%s", e.Phase, e.Kind)
	}
	if e.Retryable() {
		t.Fatal("not-found must not be retryable")
	}
}

func TestPutResult(t *testing.T) {
	s := NewMemoryStore()
	id, err := s.PutResult("task-7", []byte("out"), map[string]string{"ct": "text/plain"})
	if err != nil {
		t.Fatalf("put_result: %v", err)
	}
	if !strings.HasPrefix(id, "result:task-7:") {
		t.Fatalf("unexpected result id %q", id)
	}

	meta, ok := s.Metadata(id)
	if !ok || meta["task_id"] != "task-7" || meta["ct"] != "text/plain" {
		t.Fatalf("metadata lost: %v", meta)
	}

	if _, err := s.PutResult("", nil, nil); err == nil {
		t.Fatal("empty task id must be rejected")
	}
}
