package playback

import (
	"errors"
	"io"
	"time"

	"github.com/KarpelesLab/remoteplay"
)

// ErrDecode is wrapped by decoders for errors limited to a single packet.
// Such packets are skipped.
var ErrDecode = errors.New("playback: decode error")

// ErrNoTrack is returned when a resource has no track with a known codec.
var ErrNoTrack = errors.New("playback: no supported audio track")

// MediaSource is a seekable byte source with a known or unknown (-1) size.
// *remoteplay.Stream implements it.
type MediaSource interface {
	io.ReadSeekCloser
	Size() int64
}

// StreamOpener opens the byte source of a resource.
type StreamOpener func(opts remoteplay.StreamOptions) MediaSource

// ManagerStreams returns a StreamOpener reading through dm.
func ManagerStreams(dm *remoteplay.DownloadManager) StreamOpener {
	return func(opts remoteplay.StreamOptions) MediaSource {
		return dm.OpenStream(opts)
	}
}

// Prober detects the container of a source and returns a reader for it.
type Prober interface {
	Probe(src MediaSource, mimeType string) (Format, error)
}

type SeekMode int

const (
	SeekCoarse SeekMode = iota
	SeekAccurate
)

// SeekedTo reports where a Format landed after a seek. Timestamps are in
// frames of the track. Frames before RequiredTS must not be played.
type SeekedTo struct {
	TrackID    int
	RequiredTS int64
	ActualTS   int64
}

// Format reads packets out of a container.
type Format interface {
	Tracks() []Track
	// NextPacket returns io.EOF at the end of the stream.
	NextPacket() (Packet, error)
	Seek(mode SeekMode, to time.Duration) (SeekedTo, error)
	Close() error
}

// Metadata is a revision of the tags of a stream.
type Metadata struct {
	Title  string
	Artist string
	Album  string
}

// MetadataSource is implemented by formats that can report tags while
// playing.
type MetadataSource interface {
	// PopMetadata returns the oldest revision not consumed yet.
	PopMetadata() (Metadata, bool)
}

// Track describes one elementary stream of a container. Timestamps of a
// track are counted in frames at SampleRate.
type Track struct {
	ID         int
	Codec      string // empty if not recognized
	SampleRate int
	Channels   int
	Frames     int64 // 0 if unknown
	StartTS    int64
}

// Time converts a timestamp of the track to a duration.
func (t Track) Time(ts int64) time.Duration {
	if t.SampleRate <= 0 {
		return 0
	}
	return time.Duration(ts) * time.Second / time.Duration(t.SampleRate)
}

// Duration returns the length of the track, if known.
func (t Track) Duration() (time.Duration, bool) {
	if t.Frames <= 0 {
		return 0, false
	}
	return t.Time(t.StartTS + t.Frames), true
}

// Packet is a unit of encoded data belonging to one track.
type Packet struct {
	TrackID int
	TS      int64
	Dur     int64
	Data    any // format specific, understood by the matching decoder
}

// DecoderFactory builds a decoder for a track.
type DecoderFactory interface {
	NewDecoder(track Track) (Decoder, error)
}

type Decoder interface {
	Decode(p Packet) (Frame, error)
	// Reset drops any state carried between packets, called after a seek.
	Reset()
}

type SampleSpec struct {
	Rate     int
	Channels int
}

// Frame is a block of decoded stereo samples in the [-1, 1] range.
type Frame struct {
	Spec     SampleSpec
	Samples  [][2]float64
	Capacity int // maximum number of samples the decoder produces per frame
}

// OutputOpener opens the audio device.
type OutputOpener interface {
	Open(spec SampleSpec, capacity int) (Output, error)
}

type Output interface {
	// Spec returns the spec negotiated with the device, the rate may differ
	// from the one requested.
	Spec() SampleSpec
	Write(f Frame) error
	// Flush blocks until written samples were played.
	Flush()
	// Discard drops the samples written but not played yet.
	Discard()
	Close() error
}

// Resampler converts a frame to another sample rate. Consecutive frames
// form one continuous signal until Reset is called.
type Resampler interface {
	Resample(f Frame, rate int) Frame
	Reset()
}
