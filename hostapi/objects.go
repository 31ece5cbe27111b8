package hostapi

import (
	"github.com/lfedgeai/spear-hostapi/capability"
	"github.com/lfedgeai/spear-hostapi/errors"
)

// PutResult stores a task result and returns its opaque identifier.
func (h *Host) PutResult(taskID string, data []byte, metadata map[string]string) (string, error) {
	if !h.caps.SupportsOperation(capability.OpPutResult) {
		return "", errors.NotSupported(capability.OpPutResult)
	}
	id, err := h.store.PutResult(taskID, data, metadata)
	if err != nil {
		return "", wrapStorage(capability.OpPutResult, err)
	}
	return id, nil
}

// GetObject retrieves a stored blob by identifier.
func (h *Host) GetObject(id string) ([]byte, error) {
	if !h.caps.SupportsOperation(capability.OpGetObject) {
		return nil, errors.NotSupported(capability.OpGetObject)
	}
	data, err := h.store.Get(id)
	if err != nil {
		return nil, wrapStorage(capability.OpGetObject, err)
	}
	return data, nil
}

// PutObject stores a named blob and returns its identifier.
func (h *Host) PutObject(name string, data []byte) (string, error) {
	if !h.caps.SupportsOperation(capability.OpPutObject) {
		return "", errors.NotSupported(capability.OpPutObject)
	}
	id, err := h.store.Put(name, data)
	if err != nil {
		return "", wrapStorage(capability.OpPutObject, err)
	}
	return id, nil
}

// wrapStorage keeps already-structured store errors intact and wraps the
// rest with the storage phase.
func wrapStorage(op string, err error) error {
	if _, ok := err.(*errors.Error); ok {
		return err
	}
	return errors.StorageFailed(op, err)
}
