package beepaudio

import (
	"errors"
	"io"

	"github.com/KarpelesLab/remoteplay/playback"
)

// DefaultReadAhead is the window kept in memory in front of decoders.
const DefaultReadAhead = 64 << 10

var errNegativeOffset = errors.New("beepaudio: negative position")

// readAhead serves the small reads of decoders from a window of the source.
// Seeking is lazy, the source only moves when data outside the window is
// needed.
type readAhead struct {
	src playback.MediaSource
	buf []byte

	start int64 // source offset of buf[0]
	n     int   // valid bytes in buf
	pos   int64 // position of the next Read

	srcPos int64 // position of src, -1 when unknown
}

func newReadAhead(src playback.MediaSource, size int) *readAhead {
	if size <= 0 {
		size = DefaultReadAhead
	}
	r := &readAhead{src: src, buf: make([]byte, size)}

	cur, err := src.Seek(0, io.SeekCurrent)
	if err != nil {
		cur = -1
	}
	r.srcPos = cur
	r.pos = max(cur, 0)
	r.start = r.pos
	return r
}

func (r *readAhead) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	if r.pos < r.start || r.pos >= r.start+int64(r.n) {
		if err := r.fill(); err != nil {
			return 0, err
		}
	}

	n := copy(p, r.buf[r.pos-r.start:r.n])
	r.pos += int64(n)
	return n, nil
}

// fill loads the window starting at pos.
func (r *readAhead) fill() error {
	r.n = 0
	r.start = r.pos

	if r.srcPos != r.pos {
		if _, err := r.src.Seek(r.pos, io.SeekStart); err != nil {
			r.srcPos = -1
			return err
		}
		r.srcPos = r.pos
	}

	n, err := r.src.Read(r.buf)
	r.srcPos += int64(n)
	if n == 0 {
		if err == nil {
			err = io.ErrNoProgress
		}
		return err
	}
	// an error that came with data is reported by the next fill
	r.n = n
	return nil
}

func (r *readAhead) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = r.pos + offset
	case io.SeekEnd:
		size := r.src.Size()
		if size < 0 {
			return r.pos, nil
		}
		abs = size + offset
	default:
		return r.pos, errors.New("beepaudio: invalid whence")
	}
	if abs < 0 {
		return r.pos, errNegativeOffset
	}
	r.pos = abs
	return abs, nil
}

func (r *readAhead) Size() int64 {
	return r.src.Size()
}

func (r *readAhead) Close() error {
	return r.src.Close()
}
