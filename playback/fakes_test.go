package playback

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/KarpelesLab/remoteplay"
)

const testRate = 1000 // one packet of testRate frames per second

type fakeSource struct {
	opts   remoteplay.StreamOptions
	closed bool
}

func (s *fakeSource) Read(p []byte) (int, error)                   { return 0, io.EOF }
func (s *fakeSource) Seek(offset int64, whence int) (int64, error) { return 0, nil }
func (s *fakeSource) Size() int64                                  { return s.opts.Size }
func (s *fakeSource) Close() error {
	s.closed = true
	return nil
}

// fakeFormat produces one packet per second of audio.
type fakeFormat struct {
	tracks   []Track
	next     int64
	errs     []error // returned by NextPacket before any packet
	other    bool    // interleave packets of another track
	seeks    []time.Duration
	required int64 // added to the seek target as RequiredTS offset
	meta     []Metadata
	seekErr  error
	closed   bool
}

func (f *fakeFormat) Tracks() []Track { return f.tracks }

func (f *fakeFormat) NextPacket() (Packet, error) {
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return Packet{}, err
	}
	tr := f.tracks[len(f.tracks)-1]
	if tr.Frames > 0 && f.next >= tr.Frames {
		return Packet{}, io.EOF
	}
	if f.other {
		f.other = false
		return Packet{TrackID: 99, TS: f.next}, nil
	}
	p := Packet{TrackID: tr.ID, TS: f.next, Dur: testRate}
	f.next += testRate
	return p, nil
}

func (f *fakeFormat) Seek(mode SeekMode, to time.Duration) (SeekedTo, error) {
	if mode != SeekAccurate {
		return SeekedTo{}, errors.New("coarse seek not expected")
	}
	if f.seekErr != nil {
		return SeekedTo{}, f.seekErr
	}
	f.seeks = append(f.seeks, to)
	ts := int64(to / time.Millisecond) // testRate frames per second
	f.next = ts
	return SeekedTo{TrackID: 1, RequiredTS: ts + f.required, ActualTS: ts}, nil
}

func (f *fakeFormat) PopMetadata() (Metadata, bool) {
	if len(f.meta) == 0 {
		return Metadata{}, false
	}
	md := f.meta[0]
	f.meta = f.meta[1:]
	return md, true
}

func (f *fakeFormat) Close() error {
	f.closed = true
	return nil
}

type fakeProber struct {
	formats []*fakeFormat // handed out in order, then a default one
	probes  int
	sources []*fakeSource
}

func (p *fakeProber) Probe(src MediaSource, mimeType string) (Format, error) {
	p.probes++
	p.sources = append(p.sources, src.(*fakeSource))
	if len(p.formats) > 0 {
		f := p.formats[0]
		p.formats = p.formats[1:]
		return f, nil
	}
	return newFakeFormat(120), nil
}

func newFakeFormat(seconds int64) *fakeFormat {
	return &fakeFormat{tracks: []Track{{ID: 1, Codec: "pcm", SampleRate: testRate, Frames: seconds * testRate}}}
}

type fakeDecoder struct {
	spec   SampleSpec
	resets int
	errs   []error
}

func (d *fakeDecoder) Decode(p Packet) (Frame, error) {
	if len(d.errs) > 0 {
		err := d.errs[0]
		d.errs = d.errs[1:]
		return Frame{}, err
	}
	return Frame{Spec: d.spec, Samples: make([][2]float64, 10), Capacity: 10}, nil
}

func (d *fakeDecoder) Reset() { d.resets++ }

type fakeDecoders struct {
	dec *fakeDecoder
}

func (f *fakeDecoders) NewDecoder(track Track) (Decoder, error) {
	return f.dec, nil
}

type fakeOutput struct {
	spec    SampleSpec
	written  []Frame
	flushes  int
	discards int
	closed   bool
}

func (o *fakeOutput) Spec() SampleSpec { return o.spec }
func (o *fakeOutput) Write(f Frame) error {
	o.written = append(o.written, f)
	return nil
}
func (o *fakeOutput) Flush()   { o.flushes++ }
func (o *fakeOutput) Discard() { o.discards++ }
func (o *fakeOutput) Close() error {
	o.closed = true
	return nil
}

type fakeOpener struct {
	mu      sync.Mutex
	rate    int // device rate, 0 means the requested one
	fail    bool
	outputs []*fakeOutput
}

func (o *fakeOpener) Open(spec SampleSpec, capacity int) (Output, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fail {
		return nil, errors.New("no audio device")
	}
	if o.rate > 0 {
		spec.Rate = o.rate
	}
	out := &fakeOutput{spec: spec}
	o.outputs = append(o.outputs, out)
	return out, nil
}

func (o *fakeOpener) opens() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.outputs)
}

type fakeResampler struct {
	calls  int
	resets int
}

func (r *fakeResampler) Reset() { r.resets++ }

func (r *fakeResampler) Resample(f Frame, rate int) Frame {
	r.calls++
	f.Spec.Rate = rate
	return f
}

type fixture struct {
	m       *Machine
	prober  *fakeProber
	decoder *fakeDecoder
	opener  *fakeOpener
}

func newFixture() *fixture {
	fx := &fixture{
		prober:  &fakeProber{},
		decoder: &fakeDecoder{spec: SampleSpec{Rate: 44100, Channels: 2}},
		opener:  &fakeOpener{},
	}
	fx.m = New(Config{
		Streams: func(opts remoteplay.StreamOptions) MediaSource {
			return &fakeSource{opts: opts}
		},
		Prober:   fx.prober,
		Decoders: &fakeDecoders{dec: fx.decoder},
		Output:   fx.opener,
	})
	return fx
}

func (fx *fixture) steps(n int) {
	for i := 0; i < n; i++ {
		fx.m.step()
	}
}
