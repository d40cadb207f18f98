package scan

import (
	"context"
	"image"
	"log"
	"time"
)

// VideoSource produces frames for the detector.  AcquireFrame may return
// (nil, nil) when no frame is available this cycle; that is not a failure.
type VideoSource interface {
	AcquireFrame() (image.Image, error)
	Release()
}

// DetectorConfig holds the parameters for NewDetector.
type DetectorConfig struct {
	Source   VideoSource
	Decoder  Decoder
	Debounce *Debouncer

	// Dispatch delivers a debounced payload to the engine.
	Dispatch func(ctx context.Context, payload string) error

	// FrameInterval is the pacing between acquire attempts.  Defaults to
	// 33ms (roughly 30fps).
	FrameInterval time.Duration

	// MaxFailures is how many consecutive AcquireFrame errors are
	// tolerated before the loop gives up.  Defaults to 10.
	MaxFailures int

	Logger *log.Logger

	// OnFatal is called once if the loop terminates on its own because
	// the source kept failing.  Optional.
	OnFatal func(err error)
}

// Detector runs the acquire/decode/debounce/dispatch loop as a background
// goroutine.  It stops via its context or the Stop method.
type Detector struct {
	cfg     DetectorConfig
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// NewDetector creates a detector but does not start it.  Call Start to
// begin the background loop.
func NewDetector(cfg DetectorConfig) *Detector {
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = 33 * time.Millisecond
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 10
	}
	if cfg.Debounce == nil {
		cfg.Debounce = NewDebouncer(0)
	}
	return &Detector{
		cfg:  cfg,
		done: make(chan struct{}),
	}
}

// Start begins the background detection loop.
func (d *Detector) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)
	d.started = true

	go d.loop(ctx)

	d.logf("detector started (interval=%s, max failures=%d)",
		d.cfg.FrameInterval, d.cfg.MaxFailures)
}

// Stop signals the loop to exit and waits for it to finish.  The source is
// released regardless of how the loop ended.
func (d *Detector) Stop() {
	// Without a Start there is no loop to wait for.
	if !d.started {
		d.cfg.Source.Release()
		return
	}
	d.cancel()
	select {
	case <-d.done:
	case <-time.After(2 * time.Second):
		d.logf("detector did not stop in time, releasing source anyway")
	}
	d.cfg.Source.Release()
}

func (d *Detector) loop(ctx context.Context) {
	defer close(d.done)

	ticker := time.NewTicker(d.cfg.FrameInterval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		img, err := d.cfg.Source.AcquireFrame()
		if err != nil {
			failures++
			if failures >= d.cfg.MaxFailures {
				d.logf("video source failed %d times in a row, stopping: %v", failures, err)
				if d.cfg.OnFatal != nil {
					d.cfg.OnFatal(err)
				}
				return
			}
			continue
		}
		failures = 0
		if img == nil {
			continue
		}

		payload, ok := d.cfg.Decoder.Decode(img)
		if !ok {
			continue
		}
		if !d.cfg.Debounce.Allow(payload, time.Now()) {
			continue
		}

		if err := d.cfg.Dispatch(ctx, payload); err != nil {
			d.logf("dispatch payload: %v", err)
		}
	}
}

func (d *Detector) logf(format string, args ...any) {
	if d.cfg.Logger != nil {
		d.cfg.Logger.Printf(format, args...)
	}
}
