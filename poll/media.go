package poll

import (
	"encoding/base64"
	"encoding/json"

	"github.com/eapache/queue"
)

// Variant-specific FdCtl command space for media descriptors.
const (
	MediaCtlSetParam int32 = 0x101
)

// MediaConfig describes the capture format requested for a media descriptor.
type MediaConfig struct {
	SampleRateHz uint32 `json:"sample_rate_hz"`
	Channels     uint8  `json:"channels"`
	FrameMS      uint32 `json:"frame_ms"`
	Format       string `json:"format"`
}

// DefaultMediaQueueBytes bounds a media descriptor's inbound queue.
const DefaultMediaQueueBytes = 512 << 10

// MediaState is the buffered-media connection state: an inbound queue of
// opaque chunks fed by a capture source, plus a last-error slot. All
// mutation happens inside Table.Mutate callbacks.
type MediaState struct {
	Config        *MediaConfig
	MaxQueueBytes int
	Dropped       uint64
	Running       bool

	// Generation is bumped on reconfigure and close so a stale background
	// source can detect it must stop pushing.
	Generation uint64

	// StubPCM, when set, is the looping sample buffer a stub source reads
	// frames from instead of a real device.
	StubPCM    []byte
	stubOffset int

	inbound    *queue.Queue
	queueBytes int
	lastErr    string
}

// NewMediaState returns a media state with default limits.
func NewMediaState() *MediaState {
	return &MediaState{
		MaxQueueBytes: DefaultMediaQueueBytes,
		inbound:       queue.New(),
	}
}

func (s *MediaState) Kind() FdKind { return KindMedia }

// Push appends a chunk to the inbound queue. Chunks past the byte limit are
// dropped and counted rather than blocking the producer.
func (s *MediaState) Push(chunk []byte) bool {
	if s.queueBytes+len(chunk) > s.MaxQueueBytes {
		s.Dropped++
		return false
	}
	s.inbound.Add(chunk)
	s.queueBytes += len(chunk)
	return true
}

// Pop removes and returns the oldest queued chunk.
func (s *MediaState) Pop() ([]byte, bool) {
	if s.inbound.Length() == 0 {
		return nil, false
	}
	chunk := s.inbound.Remove().([]byte)
	s.queueBytes -= len(chunk)
	return chunk, true
}

// SetError records the most recent backend error.
func (s *MediaState) SetError(msg string) { s.lastErr = msg }

// LastError returns the recorded backend error, if any.
func (s *MediaState) LastError() string { return s.lastErr }

// QueueLen returns the number of queued chunks.
func (s *MediaState) QueueLen() int { return s.inbound.Length() }

// QueueBytes returns the byte total of queued chunks.
func (s *MediaState) QueueBytes() int { return s.queueBytes }

// NextStubFrame returns the next frame of the looping stub buffer.
func (s *MediaState) NextStubFrame(frameBytes int) []byte {
	if len(s.StubPCM) == 0 || frameBytes <= 0 {
		return nil
	}
	out := make([]byte, 0, frameBytes)
	for len(out) < frameBytes {
		if s.stubOffset >= len(s.StubPCM) {
			s.stubOffset = 0
		}
		n := frameBytes - len(out)
		if rest := len(s.StubPCM) - s.stubOffset; n > rest {
			n = rest
		}
		out = append(out, s.StubPCM[s.stubOffset:s.stubOffset+n]...)
		s.stubOffset += n
	}
	return out
}

// IN follows queue non-emptiness, ERR follows error presence, HUP follows
// closure; the three conditions are independent and may combine.
func (s *MediaState) pollMask(closed bool) PollEvents {
	mask := Empty
	if s.inbound.Length() > 0 {
		mask.Insert(In)
	}
	if s.lastErr != "" {
		mask.Insert(Err)
	}
	if closed {
		mask.Insert(Hup)
	}
	return mask
}

type mediaParams struct {
	SampleRateHz  uint32 `json:"sample_rate_hz"`
	Channels      uint8  `json:"channels"`
	FrameMS       uint32 `json:"frame_ms"`
	Format        string `json:"format"`
	MaxQueueBytes int    `json:"max_queue_bytes"`
	StubPCM16B64  string `json:"stub_pcm16_b64"`
}

func (s *MediaState) ctl(cmd int32, payload []byte) ([]byte, Errno) {
	switch cmd {
	case MediaCtlSetParam:
		if payload == nil {
			return nil, ErrInval
		}
		p := mediaParams{SampleRateHz: 24000, Channels: 1, FrameMS: 20, Format: "pcm16"}
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, ErrInval
		}
		s.Config = &MediaConfig{
			SampleRateHz: p.SampleRateHz,
			Channels:     p.Channels,
			FrameMS:      p.FrameMS,
			Format:       p.Format,
		}
		if p.MaxQueueBytes > 0 {
			s.MaxQueueBytes = p.MaxQueueBytes
		}
		if p.StubPCM16B64 != "" {
			pcm, err := base64.StdEncoding.DecodeString(p.StubPCM16B64)
			if err != nil {
				return nil, ErrInval
			}
			s.StubPCM = pcm
			s.stubOffset = 0
		}
		s.Generation++
		return nil, OK
	}
	return nil, ErrInval
}

func (s *MediaState) metrics() []byte {
	out, err := json.Marshal(map[string]any{
		"queue_len":      s.inbound.Length(),
		"queue_bytes":    s.queueBytes,
		"dropped_chunks": s.Dropped,
		"running":        s.Running,
	})
	if err != nil {
		return []byte("{}")
	}
	return out
}
