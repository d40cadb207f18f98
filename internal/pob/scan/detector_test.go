package scan

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"
)

// step is one AcquireFrame result a scripted source will produce.
type step struct {
	img image.Image
	err error
}

// scriptedSource replays a fixed sequence of frames, then idles.
type scriptedSource struct {
	mu       sync.Mutex
	steps    []step
	released bool
}

func (s *scriptedSource) AcquireFrame() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.steps) == 0 {
		return nil, nil
	}
	st := s.steps[0]
	s.steps = s.steps[1:]
	return st.img, st.err
}

func (s *scriptedSource) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = true
}

func (s *scriptedSource) wasReleased() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

// payloadDecoder reads the payload a frame was tagged with.
type payloadDecoder struct{ payloads map[image.Image]string }

func (d payloadDecoder) Decode(img image.Image) (string, bool) {
	p, ok := d.payloads[img]
	return p, ok
}

func frame() image.Image { return image.NewGray(image.Rect(0, 0, 1, 1)) }

func TestDetector_DispatchesDecodedPayload(t *testing.T) {
	f := frame()
	src := &scriptedSource{steps: []step{
		{img: nil},     // empty cycle
		{img: frame()}, // frame with nothing decodable
		{img: f},
	}}
	dec := payloadDecoder{payloads: map[image.Image]string{f: "11122233344|Ana"}}

	got := make(chan string, 1)
	det := NewDetector(DetectorConfig{
		Source:        src,
		Decoder:       dec,
		FrameInterval: time.Millisecond,
		Dispatch: func(_ context.Context, payload string) error {
			select {
			case got <- payload:
			default:
			}
			return nil
		},
	})
	det.Start(context.Background())
	defer det.Stop()

	select {
	case payload := <-got:
		if payload != "11122233344|Ana" {
			t.Errorf("payload = %q", payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("payload never dispatched")
	}
}

func TestDetector_RepeatFrameDebounced(t *testing.T) {
	f := frame()
	// The same code shows up on many consecutive frames.
	steps := make([]step, 20)
	for i := range steps {
		steps[i] = step{img: f}
	}
	src := &scriptedSource{steps: steps}
	dec := payloadDecoder{payloads: map[image.Image]string{f: "11122233344"}}

	var mu sync.Mutex
	var count int
	det := NewDetector(DetectorConfig{
		Source:        src,
		Decoder:       dec,
		Debounce:      NewDebouncer(time.Minute),
		FrameInterval: time.Millisecond,
		Dispatch: func(context.Context, string) error {
			mu.Lock()
			count++
			mu.Unlock()
			return nil
		},
	})
	det.Start(context.Background())

	time.Sleep(200 * time.Millisecond)
	det.Stop()

	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Errorf("dispatched %d times, want 1", count)
	}
}

func TestDetector_GivesUpAfterConsecutiveFailures(t *testing.T) {
	steps := make([]step, 10)
	for i := range steps {
		steps[i] = step{err: errors.New("device gone")}
	}
	src := &scriptedSource{steps: steps}

	fatal := make(chan error, 1)
	det := NewDetector(DetectorConfig{
		Source:        src,
		Decoder:       payloadDecoder{},
		FrameInterval: time.Millisecond,
		MaxFailures:   10,
		Dispatch:      func(context.Context, string) error { return nil },
		OnFatal:       func(err error) { fatal <- err },
	})
	det.Start(context.Background())
	defer det.Stop()

	select {
	case err := <-fatal:
		if err == nil {
			t.Error("expected the source error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("detector never gave up")
	}

	select {
	case <-det.done:
	case <-time.After(time.Second):
		t.Fatal("loop still running after giving up")
	}
}

func TestDetector_SingleFailureRecovers(t *testing.T) {
	f := frame()
	src := &scriptedSource{steps: []step{
		{err: errors.New("transient")},
		{img: f},
	}}
	dec := payloadDecoder{payloads: map[image.Image]string{f: "55566677788"}}

	got := make(chan string, 1)
	det := NewDetector(DetectorConfig{
		Source:        src,
		Decoder:       dec,
		FrameInterval: time.Millisecond,
		Dispatch: func(_ context.Context, payload string) error {
			select {
			case got <- payload:
			default:
			}
			return nil
		},
	})
	det.Start(context.Background())
	defer det.Stop()

	select {
	case <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("detector should ride out a transient failure")
	}
}

func TestDetector_StopWithoutStartReturnsPromptly(t *testing.T) {
	src := &scriptedSource{}
	det := NewDetector(DetectorConfig{
		Source:        src,
		Decoder:       payloadDecoder{},
		FrameInterval: time.Millisecond,
		Dispatch:      func(context.Context, string) error { return nil },
	})

	begin := time.Now()
	det.Stop()
	if elapsed := time.Since(begin); elapsed > time.Second {
		t.Errorf("Stop on a never-started detector took %s", elapsed)
	}
	if !src.wasReleased() {
		t.Error("source should still be released")
	}
}

func TestDetector_StopReleasesSource(t *testing.T) {
	src := &scriptedSource{}
	det := NewDetector(DetectorConfig{
		Source:        src,
		Decoder:       payloadDecoder{},
		FrameInterval: time.Millisecond,
		Dispatch:      func(context.Context, string) error { return nil },
	})
	det.Start(context.Background())
	det.Stop()

	if !src.wasReleased() {
		t.Error("source should be released on Stop")
	}
}
