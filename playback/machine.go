// Package playback drives the decode and output loop of the currently
// playing resource and answers transport commands.
package playback

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"time"

	"github.com/KarpelesLab/remoteplay"
	"go.uber.org/zap"
)

var errMachineStopped = errors.New("playback: machine stopped")

// Command is one of Play, Pause, Resume or Seek.
type Command interface {
	command()
}

// Play starts playing a resource, or resumes it if it is the one already
// loaded.
type Play struct {
	ResourceID string
	URL        string
	MimeType   string
	Length     int64  // 0 if unknown
	CachePath  string // derived from Config.CacheDir if empty
}

type Pause struct{}

type Resume struct{}

// Seek moves the playback position relative to the current one.
type Seek struct {
	Delta time.Duration
}

func (Play) command()   {}
func (Pause) command()  {}
func (Resume) command() {}
func (Seek) command()   {}

// Status is published every time it changes. Times are whole seconds.
type Status struct {
	Playing     bool
	Position    time.Duration
	Duration    time.Duration
	HasPosition bool
	HasDuration bool
	ResourceID  string
	Title       string
}

type Config struct {
	Streams   StreamOpener
	Prober    Prober
	Decoders  DecoderFactory
	Output    OutputOpener
	Resampler Resampler // optional, frames are written as is without it

	// CacheDir is where resources are persisted when Play has no CachePath.
	// Empty disables caching for those.
	CacheDir string

	Logger *zap.SugaredLogger

	// IdleInterval is how long the loop sleeps while nothing plays. Default
	// is 50ms
	IdleInterval time.Duration
}

// Machine is the playback state machine. It is either idle, or has a
// session loaded which is playing or paused.
type Machine struct {
	cfg Config
	log *zap.SugaredLogger

	commands chan Command
	status   chan Status
	done     chan struct{}
	running  atomic.Bool

	// owned by Run
	session   *session
	output    Output
	last      Status
	published bool
}

func New(cfg Config) *Machine {
	if cfg.IdleInterval <= 0 {
		cfg.IdleInterval = 50 * time.Millisecond
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	return &Machine{
		cfg:      cfg,
		log:      log,
		commands: make(chan Command, 16),
		status:   make(chan Status, 1),
		done:     make(chan struct{}),
	}
}

// Status returns a channel holding the latest status. Updates not consumed
// in time are replaced by newer ones.
func (m *Machine) Status() <-chan Status {
	return m.status
}

// Send queues a command.
func (m *Machine) Send(ctx context.Context, c Command) error {
	select {
	case <-m.done:
		return errMachineStopped
	default:
	}

	select {
	case m.commands <- c:
		return nil
	case <-m.done:
		return errMachineStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes commands and plays until ctx is cancelled.
func (m *Machine) Run(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return errors.New("playback: machine already running")
	}
	defer close(m.done)
	defer m.shutdown()

	for {
		select {
		case <-ctx.Done():
			return nil
		case c := <-m.commands:
			m.apply(c)
			continue
		default:
		}

		if m.playing() {
			m.step()
			m.publish()
			continue
		}

		m.publish()
		select {
		case <-ctx.Done():
			return nil
		case c := <-m.commands:
			m.apply(c)
		case <-time.After(m.cfg.IdleInterval):
		}
	}
}

func (m *Machine) playing() bool {
	return m.session != nil && m.session.playing
}

func (m *Machine) apply(c Command) {
	switch c := c.(type) {
	case Play:
		if m.session != nil && m.session.resourceID == c.ResourceID {
			m.session.playing = true
			return
		}
		m.drop()

		s, err := m.newSession(c)
		if err != nil {
			m.log.Errorf("cannot play %s: %s", c.ResourceID, err)
			return
		}
		m.log.Infof("playing %s (track %d, %s)", c.ResourceID, s.track.ID, s.track.Codec)
		m.session = s
		m.resetResampler()
	case Pause:
		if m.session != nil {
			m.session.playing = false
			m.discard()
		}
	case Resume:
		if m.session != nil {
			m.session.playing = true
		}
	case Seek:
		m.seek(c.Delta)
	}
}

func (m *Machine) seek(delta time.Duration) {
	s := m.session
	if s == nil || !s.hasLast {
		return
	}

	pos, _ := s.position()
	target := max(time.Duration(pos)*time.Second+delta, 0)

	res, err := s.format.Seek(SeekAccurate, target)
	if err != nil {
		m.log.Warnf("seek to %s failed: %s", target, err)
		return
	}

	s.decoder.Reset()
	s.seekTS = res.RequiredTS
	s.lastTS = res.RequiredTS
	m.discard()
	m.resetResampler()
}

// discard silences what is still queued from before a pause or seek.
func (m *Machine) discard() {
	if m.output != nil {
		m.output.Discard()
	}
}

func (m *Machine) resetResampler() {
	if m.cfg.Resampler != nil {
		m.cfg.Resampler.Reset()
	}
}

// step decodes and plays the next packet of the session.
func (m *Machine) step() {
	s := m.session

	pkt, err := s.format.NextPacket()
	switch {
	case err == nil:
	case errors.Is(err, io.EOF):
		m.log.Infof("%s: end of track", s.resourceID)
		if m.output != nil {
			m.output.Flush()
		}
		s.playing = false
		return
	case errors.Is(err, remoteplay.ErrStreamBroken):
		m.log.Errorf("%s: %s", s.resourceID, err)
		m.drop()
		return
	default:
		// retried on the next step
		m.log.Warnf("%s: failed to read packet: %s", s.resourceID, err)
		return
	}

	if pkt.TrackID != s.track.ID {
		return
	}

	m.drainMetadata()

	frame, err := s.decoder.Decode(pkt)
	s.lastTS = pkt.TS
	s.hasLast = true
	if err != nil {
		if errors.Is(err, ErrDecode) {
			m.log.Warnf("%s: %s", s.resourceID, err)
		} else {
			m.log.Errorf("%s: %s", s.resourceID, err)
		}
		return
	}

	if pkt.TS < s.seekTS {
		return
	}

	if err := m.write(frame); err != nil {
		m.log.Errorf("audio output failed: %s", err)
		m.drop()
	}
}

func (m *Machine) drainMetadata() {
	src, ok := m.session.format.(MetadataSource)
	if !ok {
		return
	}

	for {
		md, ok := src.PopMetadata()
		if !ok {
			return
		}
		if md.Title != "" && md.Title != m.session.title {
			m.log.Infof("now playing: %s", md.Title)
			m.session.title = md.Title
		}
	}
}

// write sends a frame to the output, opening it first if needed. An open
// output is kept across sessions unless the channel count changes.
func (m *Machine) write(f Frame) error {
	if m.output != nil && m.output.Spec().Channels != f.Spec.Channels {
		m.output.Close()
		m.output = nil
	}
	if m.output == nil {
		out, err := m.cfg.Output.Open(f.Spec, f.Capacity)
		if err != nil {
			return err
		}
		m.output = out
	}

	if rate := m.output.Spec().Rate; rate != f.Spec.Rate && m.cfg.Resampler != nil {
		f = m.cfg.Resampler.Resample(f, rate)
	}
	return m.output.Write(f)
}

func (m *Machine) currentStatus() Status {
	s := m.session
	if s == nil {
		return Status{}
	}

	st := Status{
		Playing:    s.playing,
		ResourceID: s.resourceID,
		Title:      s.title,
	}
	if pos, ok := s.position(); ok {
		st.Position = time.Duration(pos) * time.Second
		st.HasPosition = true
	}
	if d, ok := s.track.Duration(); ok {
		st.Duration = d.Truncate(time.Second)
		st.HasDuration = true
	}
	return st
}

// publish sends the current status if it changed since the last call.
func (m *Machine) publish() {
	st := m.currentStatus()
	if m.published && st == m.last {
		return
	}
	m.last = st
	m.published = true

	// only this goroutine sends, so after emptying the slot it is free
	select {
	case <-m.status:
	default:
	}
	m.status <- st
}

// drop goes back to idle. The output stays open.
func (m *Machine) drop() {
	if m.session == nil {
		return
	}
	m.session.close()
	m.session = nil
}

func (m *Machine) shutdown() {
	m.drop()
	if m.output != nil {
		m.output.Close()
		m.output = nil
	}
}
