package beepaudio

import (
	"github.com/KarpelesLab/remoteplay/playback"
	"github.com/gopxl/beep/v2"
)

// resampleBlock is the number of samples beep's resampler pulls from its
// source at once.
const resampleBlock = 512

// Resampler converts frames with beep's resampler. Consecutive frames are
// fed to a single beep.Resampler so the output stays continuous. A frame is
// only converted as far as its input allows interpolating, the rest comes out
// with the next frame.
type Resampler struct {
	// Quality is passed to beep.Resample, from 1 to 64. Default is 4
	Quality int

	src, dst int
	rs       *beep.Resampler
	queue    *sliceStreamer
	in       int64 // input samples queued since the last reset
	out      int64 // output samples produced since the last reset
}

// Reset forgets the signal seen so far.
func (r *Resampler) Reset() {
	r.src, r.dst = 0, 0
	r.rs = nil
	r.queue = nil
	r.in, r.out = 0, 0
}

func (r *Resampler) quality() int {
	switch q := r.Quality; {
	case q <= 0:
		return 4
	case q > 64:
		return 64
	default:
		return q
	}
}

func (r *Resampler) Resample(f playback.Frame, rate int) playback.Frame {
	if f.Spec.Rate <= 0 || rate <= 0 || f.Spec.Rate == rate {
		f.Spec.Rate = rate
		return f
	}

	if r.rs == nil || r.src != f.Spec.Rate || r.dst != rate {
		r.Reset()
		r.src, r.dst = f.Spec.Rate, rate
		r.queue = &sliceStreamer{}
		r.rs = beep.Resample(r.quality(), beep.SampleRate(r.src), beep.SampleRate(r.dst), r.queue)
	}

	r.queue.samples = append(r.queue.samples, f.Samples...)
	r.in += int64(len(f.Samples))

	res := playback.Frame{
		Spec:     playback.SampleSpec{Rate: rate, Channels: f.Spec.Channels},
		Capacity: (f.Capacity*rate + f.Spec.Rate - 1) / f.Spec.Rate,
	}

	want := r.available() - r.out
	if want <= 0 {
		return res
	}
	out := make([][2]float64, want)
	got := 0
	for got < len(out) {
		k, ok := r.rs.Stream(out[got:])
		got += k
		if !ok || k == 0 {
			break
		}
	}
	r.out += int64(got)
	res.Samples = out[:got]
	return res
}

// available returns how many output samples can be produced from the input
// queued so far. Output j interpolates around input j*src/dst and needs the
// whole block holding the end of its window.
func (r *Resampler) available() int64 {
	loaded := r.in / resampleBlock * resampleBlock
	// one extra sample of margin for the float position
	limit := loaded - int64(r.quality()) - 1
	if limit <= 0 {
		return 0
	}
	// largest j with j*src < limit*dst, plus one
	return (limit*int64(r.dst)-1)/int64(r.src) + 1
}

type sliceStreamer struct {
	samples [][2]float64
}

func (s *sliceStreamer) Stream(buf [][2]float64) (int, bool) {
	if len(s.samples) == 0 {
		return 0, false
	}
	n := copy(buf, s.samples)
	s.samples = s.samples[n:]
	return n, true
}

func (s *sliceStreamer) Err() error {
	return nil
}
