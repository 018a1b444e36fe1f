package playback

import (
	"fmt"

	"github.com/KarpelesLab/remoteplay"
)

// session is one decode session: a source, the format reading it and the
// decoder of the selected track.
type session struct {
	resourceID string
	src        MediaSource
	format     Format
	track      Track
	decoder    Decoder

	playing bool
	seekTS  int64 // packets before this timestamp are decoded but not played
	lastTS  int64
	hasLast bool
	title   string
}

func (m *Machine) newSession(c Play) (*session, error) {
	cachePath := c.CachePath
	if cachePath == "" && m.cfg.CacheDir != "" {
		cachePath = remoteplay.CachePath(m.cfg.CacheDir, c.ResourceID)
	}

	src := m.cfg.Streams(remoteplay.StreamOptions{
		ResourceID: c.ResourceID,
		URL:        c.URL,
		Size:       c.Length,
		CachePath:  cachePath,
	})

	format, err := m.cfg.Prober.Probe(src, c.MimeType)
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("probe: %w", err)
	}

	track, ok := firstSupportedTrack(format.Tracks())
	if !ok {
		format.Close()
		src.Close()
		return nil, ErrNoTrack
	}

	decoder, err := m.cfg.Decoders.NewDecoder(track)
	if err != nil {
		format.Close()
		src.Close()
		return nil, fmt.Errorf("decoder for %s: %w", track.Codec, err)
	}

	return &session{
		resourceID: c.ResourceID,
		src:        src,
		format:     format,
		track:      track,
		decoder:    decoder,
		playing:    true,
	}, nil
}

func (s *session) close() {
	s.format.Close()
	s.src.Close()
}

// position returns the time of the last packet, in whole seconds.
func (s *session) position() (int64, bool) {
	if !s.hasLast {
		return 0, false
	}
	return int64(s.track.Time(s.lastTS).Seconds()), true
}

func firstSupportedTrack(tracks []Track) (Track, bool) {
	for _, t := range tracks {
		if t.Codec != "" {
			return t, true
		}
	}
	return Track{}, false
}
