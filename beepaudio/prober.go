// Package beepaudio implements the playback collaborators on top of beep:
// container sniffing, decoding, the speaker output and resampling.
package beepaudio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"time"

	"github.com/KarpelesLab/remoteplay/playback"
	"github.com/dhowden/tag"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"
	"go.uber.org/zap"
)

const (
	CodecMP3    = "mp3"
	CodecFLAC   = "flac"
	CodecVorbis = "vorbis"
	CodecWAV    = "wav"

	DefaultChunkFrames = 2048
)

const trackID = 1

// Prober detects the container of a source and decodes it with beep.
// Containers beep cannot decode (mp4, webm) yield a track without codec.
type Prober struct {
	// ChunkFrames is the number of frames per packet. Default is 2048
	ChunkFrames int

	// ReadAhead is the size of the window buffered in front of the
	// decoder. Default is DefaultReadAhead
	ReadAhead int

	Logger *zap.SugaredLogger
}

func (p *Prober) log() *zap.SugaredLogger {
	if p.Logger == nil {
		return zap.NewNop().Sugar()
	}
	return p.Logger
}

func (p *Prober) Probe(src playback.MediaSource, mimeType string) (playback.Format, error) {
	// decoders read a few bytes at a time, each read of src is a round trip
	// to the download manager
	src = newReadAhead(src, p.ReadAhead)

	codec, err := sniff(src, mimeType)
	if err != nil {
		return nil, err
	}
	p.log().Debugf("detected codec %q (mime %q)", codec, mimeType)

	f := &format{chunk: p.ChunkFrames}
	if f.chunk <= 0 {
		f.chunk = DefaultChunkFrames
	}

	if md, ok := readTags(src); ok {
		f.meta = append(f.meta, md)
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	if codec == "" {
		// let the caller find out nothing is playable
		f.track = playback.Track{ID: trackID}
		return f, nil
	}

	var bf beep.Format
	switch codec {
	case CodecMP3:
		f.stream, bf, err = mp3.Decode(src)
	case CodecFLAC:
		f.stream, bf, err = flac.Decode(src)
	case CodecVorbis:
		f.stream, bf, err = vorbis.Decode(src)
	case CodecWAV:
		f.stream, bf, err = wav.Decode(src)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", codec, err)
	}

	f.rate = bf.SampleRate
	f.track = playback.Track{
		ID:         trackID,
		Codec:      codec,
		SampleRate: int(bf.SampleRate),
		Channels:   bf.NumChannels,
		Frames:     int64(f.stream.Len()),
	}
	return f, nil
}

// sniff returns the codec of src, looking at its first bytes first and at
// the mime type second. src is rewound.
func sniff(src io.ReadSeeker, mimeType string) (string, error) {
	codec := ""

	_, ft, err := tag.Identify(src)
	if err == nil {
		switch ft {
		case tag.MP3:
			codec = CodecMP3
		case tag.FLAC:
			codec = CodecFLAC
		case tag.OGG:
			codec = CodecVorbis
		}
	}

	if codec == "" {
		if _, err := src.Seek(0, io.SeekStart); err != nil {
			return "", err
		}
		head := make([]byte, 12)
		n, err := io.ReadFull(src, head)
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
			return "", err
		}
		codec = sniffHeader(head[:n])
	}

	if codec == "" {
		codec = codecForMime(mimeType)
	}

	_, err = src.Seek(0, io.SeekStart)
	return codec, err
}

func sniffHeader(b []byte) string {
	switch {
	case len(b) >= 12 && bytes.Equal(b[:4], []byte("RIFF")) && bytes.Equal(b[8:12], []byte("WAVE")):
		return CodecWAV
	case len(b) >= 4 && bytes.Equal(b[:4], []byte("fLaC")):
		return CodecFLAC
	case len(b) >= 4 && bytes.Equal(b[:4], []byte("OggS")):
		return CodecVorbis
	case len(b) >= 3 && bytes.Equal(b[:3], []byte("ID3")):
		return CodecMP3
	case len(b) >= 2 && b[0] == 0xff && b[1]&0xe0 == 0xe0:
		// mpeg audio frame sync
		return CodecMP3
	}
	return ""
}

func codecForMime(mimeType string) string {
	mt, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return ""
	}

	switch mt {
	case "audio/mpeg", "audio/mp3":
		return CodecMP3
	case "audio/flac", "audio/x-flac":
		return CodecFLAC
	case "audio/ogg", "audio/vorbis", "application/ogg":
		return CodecVorbis
	case "audio/wav", "audio/x-wav", "audio/wave":
		return CodecWAV
	}
	return ""
}

func readTags(src io.ReadSeeker) (playback.Metadata, bool) {
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return playback.Metadata{}, false
	}
	m, err := tag.ReadFrom(src)
	if err != nil {
		return playback.Metadata{}, false
	}
	md := playback.Metadata{Title: m.Title(), Artist: m.Artist(), Album: m.Album()}
	if md.Artist != "" && md.Title != "" {
		md.Title = md.Artist + " - " + md.Title
	}
	return md, md.Title != ""
}

// format reads packets of decoded samples out of a beep streamer.
type format struct {
	stream beep.StreamSeekCloser
	rate   beep.SampleRate
	track  playback.Track
	chunk  int
	meta   []playback.Metadata
}

func (f *format) Tracks() []playback.Track {
	return []playback.Track{f.track}
}

func (f *format) NextPacket() (playback.Packet, error) {
	if f.stream == nil {
		return playback.Packet{}, io.EOF
	}

	ts := int64(f.stream.Position())
	buf := make([][2]float64, f.chunk)
	n, ok := f.stream.Stream(buf)
	if n == 0 || !ok {
		if err := f.stream.Err(); err != nil {
			return playback.Packet{}, err
		}
		if n == 0 {
			return playback.Packet{}, io.EOF
		}
	}

	return playback.Packet{TrackID: f.track.ID, TS: ts, Dur: int64(n), Data: buf[:n]}, nil
}

// Seek moves to the frame closest to to. beep seeks are always exact, both
// modes behave the same.
func (f *format) Seek(mode playback.SeekMode, to time.Duration) (playback.SeekedTo, error) {
	if f.stream == nil {
		return playback.SeekedTo{}, errors.New("beepaudio: no stream to seek")
	}

	frame := f.rate.N(to)
	if l := f.stream.Len(); l > 0 && frame >= l {
		frame = l - 1
	}
	if err := f.stream.Seek(frame); err != nil {
		return playback.SeekedTo{}, err
	}

	return playback.SeekedTo{TrackID: f.track.ID, RequiredTS: int64(frame), ActualTS: int64(frame)}, nil
}

func (f *format) PopMetadata() (playback.Metadata, bool) {
	if len(f.meta) == 0 {
		return playback.Metadata{}, false
	}
	md := f.meta[0]
	f.meta = f.meta[1:]
	return md, true
}

func (f *format) Close() error {
	if f.stream == nil {
		return nil
	}
	return f.stream.Close()
}
