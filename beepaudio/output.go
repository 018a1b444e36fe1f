package beepaudio

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/KarpelesLab/remoteplay/playback"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
	"go.uber.org/zap"
)

var errOutputClosed = errors.New("beepaudio: output closed")

// Speaker opens outputs on the default sound device. The device can only be
// initialized once per process, later outputs keep the first rate and the
// caller is expected to resample.
type Speaker struct {
	// Buffer is the latency of the device. Default is 100ms
	Buffer time.Duration

	// Queue is the number of samples buffered ahead of the device. It bounds
	// how long audio keeps playing after a pause or seek. Default is 150ms at
	// the device rate
	Queue int

	Logger *zap.SugaredLogger

	lk   sync.Mutex
	rate beep.SampleRate
}

func (sp *Speaker) Open(spec playback.SampleSpec, capacity int) (playback.Output, error) {
	sp.lk.Lock()
	defer sp.lk.Unlock()

	if sp.rate == 0 {
		buf := sp.Buffer
		if buf <= 0 {
			buf = 100 * time.Millisecond
		}
		rate := beep.SampleRate(spec.Rate)
		if err := speaker.Init(rate, rate.N(buf)); err != nil {
			return nil, fmt.Errorf("failed to initialize speaker: %w", err)
		}
		sp.rate = rate
		if sp.Logger != nil {
			sp.Logger.Infof("audio device initialized at %d Hz", rate)
		}
	}

	queue := sp.Queue
	if queue <= 0 {
		queue = sp.rate.N(150 * time.Millisecond)
	}

	out := newOutput(playback.SampleSpec{Rate: int(sp.rate), Channels: spec.Channels}, max(queue, capacity))
	speaker.Play(beep.StreamerFunc(out.stream))
	return out, nil
}

// output feeds the speaker from a queue of samples. The device plays
// silence when the queue runs dry.
type output struct {
	spec    playback.SampleSpec
	samples chan [2]float64
	closed  chan struct{}
	once    sync.Once
}

func newOutput(spec playback.SampleSpec, queue int) *output {
	return &output{
		spec:    spec,
		samples: make(chan [2]float64, queue),
		closed:  make(chan struct{}),
	}
}

func (o *output) Spec() playback.SampleSpec {
	return o.spec
}

// stream is called by the speaker goroutine.
func (o *output) stream(buf [][2]float64) (int, bool) {
	for i := range buf {
		select {
		case s := <-o.samples:
			buf[i] = s
		case <-o.closed:
			return i, false
		default:
			buf[i] = [2]float64{}
		}
	}
	return len(buf), true
}

// Write queues the samples of f, blocking while the queue is full.
func (o *output) Write(f playback.Frame) error {
	for _, s := range f.Samples {
		if f.Spec.Channels == 1 {
			s[1] = s[0]
		}
		select {
		case o.samples <- s:
		case <-o.closed:
			return errOutputClosed
		}
	}
	return nil
}

func (o *output) Flush() {
	t := time.NewTicker(10 * time.Millisecond)
	defer t.Stop()

	for len(o.samples) > 0 {
		select {
		case <-o.closed:
			return
		case <-t.C:
		}
	}
}

// Discard empties the queue, the device plays silence until the next Write.
func (o *output) Discard() {
	for {
		select {
		case <-o.samples:
		default:
			return
		}
	}
}

func (o *output) Close() error {
	o.once.Do(func() { close(o.closed) })
	return nil
}
