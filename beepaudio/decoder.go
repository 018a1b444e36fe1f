package beepaudio

import (
	"fmt"

	"github.com/KarpelesLab/remoteplay/playback"
)

// Decoders builds decoders for tracks returned by Prober. beep decodes
// while streaming, so packets already carry samples.
type Decoders struct{}

func (Decoders) NewDecoder(track playback.Track) (playback.Decoder, error) {
	switch track.Codec {
	case CodecMP3, CodecFLAC, CodecVorbis, CodecWAV:
	default:
		return nil, fmt.Errorf("beepaudio: unsupported codec %q", track.Codec)
	}

	ch := track.Channels
	if ch <= 0 {
		ch = 2
	}
	return &decoder{spec: playback.SampleSpec{Rate: track.SampleRate, Channels: ch}}, nil
}

type decoder struct {
	spec     playback.SampleSpec
	capacity int
}

func (d *decoder) Decode(p playback.Packet) (playback.Frame, error) {
	samples, ok := p.Data.([][2]float64)
	if !ok {
		return playback.Frame{}, fmt.Errorf("%w: unexpected payload %T", playback.ErrDecode, p.Data)
	}

	d.capacity = max(d.capacity, len(samples))
	return playback.Frame{Spec: d.spec, Samples: samples, Capacity: d.capacity}, nil
}

func (d *decoder) Reset() {}
