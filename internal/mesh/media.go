package mesh

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
)

var ErrNoDevice = errors.New("no capture device configured")

// LocalStream bundles local pion tracks under one stream handle.
type LocalStream struct {
	id     string
	tracks []webrtc.TrackLocal

	mu      sync.Mutex
	stopped bool
	onStop  func()
}

func NewLocalStream(tracks ...webrtc.TrackLocal) *LocalStream {
	return &LocalStream{id: uuid.NewString(), tracks: tracks}
}

// OnStop installs a hook that releases the underlying capture.
func (s *LocalStream) OnStop(fn func()) { s.onStop = fn }

func (s *LocalStream) ID() string                  { return s.id }
func (s *LocalStream) Tracks() []webrtc.TrackLocal { return s.tracks }

func (s *LocalStream) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	fn := s.onStop
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// TrackSource satisfies MediaSource from pre-built pion tracks. Actual
// device capture is host glue; whatever produces the tracks plugs in
// here.
type TrackSource struct {
	Camera []webrtc.TrackLocal
	Screen []webrtc.TrackLocal
}

func (t *TrackSource) UserMedia(_ context.Context) (MediaStream, error) {
	if len(t.Camera) == 0 {
		return nil, ErrNoDevice
	}
	return NewLocalStream(t.Camera...), nil
}

func (t *TrackSource) DisplayMedia(_ context.Context) (MediaStream, error) {
	if len(t.Screen) == 0 {
		return nil, ErrNoDevice
	}
	return NewLocalStream(t.Screen...), nil
}
