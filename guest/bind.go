// Package guest binds the host API into a wazero runtime as the "spear"
// host module. Every export follows the same ABI: scalar arguments, guest
// buffers passed as (ptr, len) pairs, and an i32 result that is a byte
// count on success or a negative errno on failure. Exports returning bytes
// accept a null output pointer as a length query so guests can size the
// buffer before the real call.
package guest

import (
	"context"
	"encoding/json"

	"github.com/tetratelabs/wazero"
	wzapi "github.com/tetratelabs/wazero/api"

	"github.com/lfedgeai/spear-hostapi/errors"
	"github.com/lfedgeai/spear-hostapi/hostapi"
	"github.com/lfedgeai/spear-hostapi/poll"
)

// ModuleName is the import namespace guests link against.
const ModuleName = "spear"

var (
	i32    = wzapi.ValueTypeI32
	i64    = wzapi.ValueTypeI64
	retI32 = []wzapi.ValueType{i32}
	retI64 = []wzapi.ValueType{i64}
)

// httpRequest is the JSON envelope a guest writes for http_call.
type httpRequest struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    []byte            `json:"body,omitempty"`
}

// httpReply is the JSON envelope written back into guest memory.
type httpReply struct {
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    []byte            `json:"body,omitempty"`
}

// Instantiate registers the host module on r, backed by h.
func Instantiate(ctx context.Context, r wazero.Runtime, h hostapi.API) (wzapi.Module, error) {
	b := binder{h: h}
	builder := r.NewHostModuleBuilder(ModuleName)

	type export struct {
		name    string
		fn      wzapi.GoModuleFunc
		params  []wzapi.ValueType
		results []wzapi.ValueType
	}
	exports := []export{
		{"ep_create", b.epCreate, nil, retI32},
		{"ep_ctl", b.epCtl, []wzapi.ValueType{i32, i32, i32, i32}, retI32},
		{"ep_wait_ready", b.epWaitReady, []wzapi.ValueType{i32, i32, i32, i32}, retI32},
		{"fd_close", b.fdClose, []wzapi.ValueType{i32}, retI32},
		{"fd_ctl", b.fdCtl, []wzapi.ValueType{i32, i32, i32, i32, i32, i32}, retI32},
		{"media_open", b.mediaOpen, nil, retI32},
		{"media_read", b.mediaRead, []wzapi.ValueType{i32, i32, i32}, retI32},
		{"stream_open", b.streamOpen, nil, retI32},
		{"stream_write", b.streamWrite, []wzapi.ValueType{i32, i32, i32}, retI32},
		{"stream_read", b.streamRead, []wzapi.ValueType{i32, i32, i32}, retI32},
		{"log", b.log, []wzapi.ValueType{i32, i32, i32}, nil},
		{"time_now_ms", b.timeNowMS, nil, retI64},
		{"random_bytes", b.randomBytes, []wzapi.ValueType{i32, i32}, retI32},
		{"get_env", b.getEnv, []wzapi.ValueType{i32, i32, i32, i32}, retI32},
		{"http_call", b.httpCall, []wzapi.ValueType{i32, i32, i32, i32}, retI32},
		{"put_result", b.putResult, []wzapi.ValueType{i32, i32, i32, i32, i32, i32}, retI32},
		{"get_object", b.getObject, []wzapi.ValueType{i32, i32, i32, i32}, retI32},
		{"put_object", b.putObject, []wzapi.ValueType{i32, i32, i32, i32, i32, i32}, retI32},
	}
	for _, e := range exports {
		builder = builder.NewFunctionBuilder().
			WithGoModuleFunction(e.fn, e.params, e.results).
			Export(e.name)
	}

	return builder.Instantiate(ctx)
}

type binder struct {
	h hostapi.API
}

func (b binder) epCreate(_ context.Context, _ wzapi.Module, stack []uint64) {
	stack[0] = wzapi.EncodeI32(b.h.EpCreate())
}

func (b binder) epCtl(_ context.Context, _ wzapi.Module, stack []uint64) {
	rc := b.h.EpCtl(
		wzapi.DecodeI32(stack[0]), wzapi.DecodeI32(stack[1]),
		wzapi.DecodeI32(stack[2]), wzapi.DecodeI32(stack[3]))
	stack[0] = wzapi.EncodeI32(rc)
}

// epWaitReady writes (fd, events) i32 pairs at outPtr, up to maxEvents, and
// returns the pair count.
func (b binder) epWaitReady(_ context.Context, mod wzapi.Module, stack []uint64) {
	epfd := wzapi.DecodeI32(stack[0])
	timeoutMS := wzapi.DecodeI32(stack[1])
	outPtr := wzapi.DecodeU32(stack[2])
	maxEvents := wzapi.DecodeI32(stack[3])
	if maxEvents < 0 {
		stack[0] = wzapi.EncodeI32(int32(poll.ErrInval))
		return
	}

	ready, rc := b.h.EpWaitReady(epfd, timeoutMS)
	if rc != 0 {
		stack[0] = wzapi.EncodeI32(rc)
		return
	}
	if int32(len(ready)) > maxEvents {
		ready = ready[:maxEvents]
	}
	for i, r := range ready {
		off := outPtr + uint32(i)*8
		if !mod.Memory().WriteUint32Le(off, uint32(r.Fd)) ||
			!mod.Memory().WriteUint32Le(off+4, r.Events.Bits()) {
			stack[0] = wzapi.EncodeI32(int32(poll.ErrInval))
			return
		}
	}
	stack[0] = wzapi.EncodeI32(int32(len(ready)))
}

func (b binder) fdClose(_ context.Context, _ wzapi.Module, stack []uint64) {
	stack[0] = wzapi.EncodeI32(b.h.CloseFd(wzapi.DecodeI32(stack[0])))
}

func (b binder) fdCtl(_ context.Context, mod wzapi.Module, stack []uint64) {
	fd := wzapi.DecodeI32(stack[0])
	cmd := wzapi.DecodeI32(stack[1])
	payload, ok := readBytes(mod, stack[2], stack[3])
	if !ok {
		stack[0] = wzapi.EncodeI32(int32(poll.ErrInval))
		return
	}
	out, rc := b.h.FdCtl(fd, cmd, payload)
	if rc != 0 {
		stack[0] = wzapi.EncodeI32(rc)
		return
	}
	stack[0] = wzapi.EncodeI32(writeResult(mod, stack[4], stack[5], out))
}

func (b binder) mediaOpen(_ context.Context, _ wzapi.Module, stack []uint64) {
	stack[0] = wzapi.EncodeI32(b.h.MediaOpen())
}

func (b binder) mediaRead(_ context.Context, mod wzapi.Module, stack []uint64) {
	chunk, rc := b.h.MediaRead(wzapi.DecodeI32(stack[0]))
	if rc != 0 {
		stack[0] = wzapi.EncodeI32(rc)
		return
	}
	stack[0] = wzapi.EncodeI32(writeResult(mod, stack[1], stack[2], chunk))
}

func (b binder) streamOpen(_ context.Context, _ wzapi.Module, stack []uint64) {
	stack[0] = wzapi.EncodeI32(b.h.StreamOpen())
}

func (b binder) streamWrite(_ context.Context, mod wzapi.Module, stack []uint64) {
	fd := wzapi.DecodeI32(stack[0])
	p, ok := readBytes(mod, stack[1], stack[2])
	if !ok {
		stack[0] = wzapi.EncodeI32(int32(poll.ErrInval))
		return
	}
	stack[0] = wzapi.EncodeI32(b.h.StreamWrite(fd, p))
}

func (b binder) streamRead(_ context.Context, mod wzapi.Module, stack []uint64) {
	event, rc := b.h.StreamRead(wzapi.DecodeI32(stack[0]))
	if rc != 0 {
		stack[0] = wzapi.EncodeI32(rc)
		return
	}
	stack[0] = wzapi.EncodeI32(writeResult(mod, stack[1], stack[2], event))
}

var logLevels = map[int32]string{0: "trace", 1: "debug", 2: "info", 3: "warn", 4: "error"}

func (b binder) log(_ context.Context, mod wzapi.Module, stack []uint64) {
	level, ok := logLevels[wzapi.DecodeI32(stack[0])]
	if !ok {
		level = "info"
	}
	msg, ok := readBytes(mod, stack[1], stack[2])
	if !ok {
		return
	}
	b.h.Log(level, string(msg))
}

func (b binder) timeNowMS(_ context.Context, _ wzapi.Module, stack []uint64) {
	stack[0] = b.h.TimeNowMS()
}

func (b binder) randomBytes(_ context.Context, mod wzapi.Module, stack []uint64) {
	ptr := wzapi.DecodeU32(stack[0])
	n := wzapi.DecodeI32(stack[1])
	buf, err := b.h.RandomBytes(int(n))
	if err != nil {
		stack[0] = wzapi.EncodeI32(errnoFor(err))
		return
	}
	if !mod.Memory().Write(ptr, buf) {
		stack[0] = wzapi.EncodeI32(int32(poll.ErrInval))
		return
	}
	stack[0] = wzapi.EncodeI32(n)
}

func (b binder) getEnv(_ context.Context, mod wzapi.Module, stack []uint64) {
	key, ok := readBytes(mod, stack[0], stack[1])
	if !ok {
		stack[0] = wzapi.EncodeI32(int32(poll.ErrInval))
		return
	}
	v, found := b.h.GetEnv(string(key))
	if !found {
		stack[0] = wzapi.EncodeI32(int32(poll.ErrNoEnt))
		return
	}
	stack[0] = wzapi.EncodeI32(writeResult(mod, stack[2], stack[3], []byte(v)))
}

func (b binder) httpCall(ctx context.Context, mod wzapi.Module, stack []uint64) {
	raw, ok := readBytes(mod, stack[0], stack[1])
	if !ok {
		stack[0] = wzapi.EncodeI32(int32(poll.ErrInval))
		return
	}
	var req httpRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		stack[0] = wzapi.EncodeI32(int32(poll.ErrInval))
		return
	}
	resp, err := b.h.HTTPCall(ctx, req.Method, req.URL, req.Headers, req.Body)
	if err != nil {
		stack[0] = wzapi.EncodeI32(errnoFor(err))
		return
	}
	out, err := json.Marshal(httpReply{Status: resp.Status, Headers: resp.Headers, Body: resp.Body})
	if err != nil {
		stack[0] = wzapi.EncodeI32(int32(poll.ErrIO))
		return
	}
	stack[0] = wzapi.EncodeI32(writeResult(mod, stack[2], stack[3], out))
}

func (b binder) putResult(_ context.Context, mod wzapi.Module, stack []uint64) {
	taskID, ok1 := readBytes(mod, stack[0], stack[1])
	data, ok2 := readBytes(mod, stack[2], stack[3])
	if !ok1 || !ok2 {
		stack[0] = wzapi.EncodeI32(int32(poll.ErrInval))
		return
	}
	id, err := b.h.PutResult(string(taskID), data, nil)
	if err != nil {
		stack[0] = wzapi.EncodeI32(errnoFor(err))
		return
	}
	stack[0] = wzapi.EncodeI32(writeResult(mod, stack[4], stack[5], []byte(id)))
}

func (b binder) getObject(_ context.Context, mod wzapi.Module, stack []uint64) {
	id, ok := readBytes(mod, stack[0], stack[1])
	if !ok {
		stack[0] = wzapi.EncodeI32(int32(poll.ErrInval))
		return
	}
	data, err := b.h.GetObject(string(id))
	if err != nil {
		stack[0] = wzapi.EncodeI32(errnoFor(err))
		return
	}
	stack[0] = wzapi.EncodeI32(writeResult(mod, stack[2], stack[3], data))
}

func (b binder) putObject(_ context.Context, mod wzapi.Module, stack []uint64) {
	name, ok1 := readBytes(mod, stack[0], stack[1])
	data, ok2 := readBytes(mod, stack[2], stack[3])
	if !ok1 || !ok2 {
		stack[0] = wzapi.EncodeI32(int32(poll.ErrInval))
		return
	}
	id, err := b.h.PutObject(string(name), data)
	if err != nil {
		stack[0] = wzapi.EncodeI32(errnoFor(err))
		return
	}
	stack[0] = wzapi.EncodeI32(writeResult(mod, stack[4], stack[5], []byte(id)))
}

// readBytes copies a (ptr, len) guest buffer. A zero-length buffer is valid
// and yields nil.
func readBytes(mod wzapi.Module, ptr, length uint64) ([]byte, bool) {
	n := wzapi.DecodeU32(length)
	if n == 0 {
		return nil, true
	}
	buf, ok := mod.Memory().Read(wzapi.DecodeU32(ptr), n)
	if !ok {
		return nil, false
	}
	return append([]byte(nil), buf...), true
}

// writeResult copies out into the guest buffer at (ptr, cap) and returns the
// byte count. A null ptr is a length query: the required size is returned
// without writing, so a guest can size its buffer with a second call. A
// non-null buffer that is too small fails with -ENOMEM.
func writeResult(mod wzapi.Module, ptr, capacity uint64, out []byte) int32 {
	if len(out) == 0 {
		return 0
	}
	if wzapi.DecodeU32(ptr) == 0 {
		return int32(len(out))
	}
	if uint32(len(out)) > wzapi.DecodeU32(capacity) {
		return int32(poll.ErrNoMem)
	}
	if !mod.Memory().Write(wzapi.DecodeU32(ptr), out) {
		return int32(poll.ErrInval)
	}
	return int32(len(out))
}

// errnoFor folds a structured capability error into the ABI's errno space.
func errnoFor(err error) int32 {
	he, ok := err.(*errors.Error)
	if !ok {
		return int32(poll.ErrIO)
	}
	switch he.Kind {
	case errors.KindUnsupported:
		return int32(poll.ErrPerm)
	case errors.KindNotFound:
		return int32(poll.ErrNoEnt)
	case errors.KindInvalidInput:
		return int32(poll.ErrInval)
	case errors.KindTimeout:
		return int32(poll.ErrAgain)
	case errors.KindResourceExhausted:
		return int32(poll.ErrNoMem)
	}
	return int32(poll.ErrIO)
}
