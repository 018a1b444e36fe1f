package remoteplay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
)

// ErrStreamBroken is wrapped by every error that makes a Stream unusable.
var ErrStreamBroken = errors.New("remoteplay: stream broken")

var (
	ErrConcurrentRead = fmt.Errorf("%w: concurrent read", ErrStreamBroken)
	ErrStreamClosed   = fmt.Errorf("%w: stream closed", ErrStreamBroken)
	ErrManagerStopped = fmt.Errorf("%w: download manager stopped", ErrStreamBroken)
)

// StreamOptions describes the resource a Stream reads.
type StreamOptions struct {
	ResourceID string
	URL        string
	Size       int64  // total length if known, 0 otherwise
	CachePath  string // where to persist the resource once complete, optional
}

// Stream is a seekable reader over a resource served by a DownloadManager.
// Each Read is turned into a request to the manager and blocks until it is
// answered; there is no timeout. A Stream allows a single Read at a time.
type Stream struct {
	dlm  *DownloadManager
	opts StreamOptions

	pos int64
	lk  sync.Mutex

	busy    atomic.Bool
	replies chan Reply

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	closeErr  error
}

// OpenStream returns a Stream reading the resource described by opts. No
// network activity happens until the first Read.
func (dlm *DownloadManager) OpenStream(opts StreamOptions) *Stream {
	ctx, cancel := context.WithCancel(context.Background())
	return &Stream{
		dlm:     dlm,
		opts:    opts,
		replies: make(chan Reply, 1),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Size returns the total length of the resource, or -1 if unknown.
func (s *Stream) Size() int64 {
	if s.opts.Size <= 0 {
		return -1
	}
	return s.opts.Size
}

// Seekable always returns true.
func (s *Stream) Seekable() bool {
	return true
}

// Read reads data at the current position. It returns io.EOF once the end
// of the resource is reached.
func (s *Stream) Read(p []byte) (int, error) {
	if !s.busy.CompareAndSwap(false, true) {
		return 0, ErrConcurrentRead
	}
	defer s.busy.Store(false)

	if s.ctx.Err() != nil {
		return 0, ErrStreamClosed
	}
	if len(p) == 0 {
		return 0, nil
	}

	s.lk.Lock()
	off := s.pos
	s.lk.Unlock()

	if s.opts.Size > 0 && off >= s.opts.Size {
		return 0, io.EOF
	}

	id, err := s.dlm.submitRead(s.ctx, ReadRequest{
		ResourceID: s.opts.ResourceID,
		URL:        s.opts.URL,
		Offset:     off,
		Length:     len(p),
		Size:       s.opts.Size,
		CachePath:  s.opts.CachePath,
		reply:      s.replies,
	})
	if err != nil {
		if s.ctx.Err() != nil {
			return 0, ErrStreamClosed
		}
		return 0, err
	}

	for {
		select {
		case r := <-s.replies:
			if r.Request.ID != id {
				// answer to a read that was abandoned
				continue
			}
			n := copy(p, r.Data)
			if n == 0 {
				return 0, io.EOF
			}
			s.lk.Lock()
			s.pos = off + int64(n)
			s.lk.Unlock()
			return n, nil
		case <-s.dlm.done:
			return 0, ErrManagerStopped
		case <-s.ctx.Done():
			return 0, ErrStreamClosed
		}
	}
}

// Seek sets the position of the next Read. Positions before the start are
// clamped to 0; io.SeekEnd does nothing if the size is unknown.
func (s *Stream) Seek(offset int64, whence int) (int64, error) {
	s.lk.Lock()
	defer s.lk.Unlock()

	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = s.pos + offset
	case io.SeekEnd:
		if s.opts.Size <= 0 {
			return s.pos, nil
		}
		pos = s.opts.Size + offset
	default:
		return s.pos, errors.New("remoteplay: invalid seek whence")
	}

	s.pos = max(pos, 0)
	return s.pos, nil
}
