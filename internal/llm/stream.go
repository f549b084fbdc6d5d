package llm

import (
	"context"
	"errors"
	"io"
	"sync"
)

// decoder turns provider frames into protocol events. A decoder emits at most
// one terminal event; eof is consulted when the body ends without one.
type decoder interface {
	decode(f frame) []Event
	eof() Event
}

// Stream is a single-pass pull iterator over protocol events:
//
//	defer s.Close()
//	for s.Next() {
//		ev := s.Event()
//	}
//
// Exactly one terminal event is produced. Close releases the upstream body and
// may be called at any point, including before the stream is drained.
type Stream struct {
	ctx     context.Context
	body    io.Closer
	frames  *sseReader
	dec     decoder
	pending []Event
	cur     Event
	done    bool

	closeOnce sync.Once
	closeErr  error
}

func newStream(ctx context.Context, body io.ReadCloser, dec decoder) *Stream {
	return &Stream{ctx: ctx, body: body, frames: newSSEReader(body), dec: dec}
}

// failedStream yields a single error event. Upstream failures before the first
// byte are reported this way so stream consumers see one protocol.
func failedStream(msg string) *Stream {
	return &Stream{pending: []Event{errorEvent(msg)}}
}

func (s *Stream) Next() bool {
	for {
		if len(s.pending) > 0 {
			s.cur = s.pending[0]
			s.pending = s.pending[1:]
			if s.cur.Terminal() {
				s.finish()
			}
			return true
		}
		if s.done {
			return false
		}
		f, err := s.frames.Next()
		switch {
		case err == nil:
			s.pending = s.dec.decode(f)
		case s.ctx != nil && s.ctx.Err() != nil:
			s.pending = []Event{errorEvent("request cancelled")}
		case errors.Is(err, io.EOF):
			s.pending = []Event{s.dec.eof()}
		default:
			s.pending = []Event{errorEvent(err.Error())}
		}
	}
}

// Event returns the event produced by the last successful Next.
func (s *Stream) Event() Event { return s.cur }

func (s *Stream) finish() {
	s.pending = nil
	_ = s.Close()
}

func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.done = true
		if s.body != nil {
			s.closeErr = s.body.Close()
		}
	})
	return s.closeErr
}

// Collect drains s into the concatenated content and its terminal event.
func Collect(s *Stream) (string, Event) {
	defer s.Close()
	var (
		buf  []byte
		last Event
	)
	for s.Next() {
		ev := s.Event()
		if ev.Type == EventChunk {
			buf = append(buf, ev.Content...)
			continue
		}
		last = ev
	}
	return string(buf), last
}
