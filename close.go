package remoteplay

import (
	"context"
	"errors"
	"time"
)

// Close releases the stream and drops the in-memory state the manager keeps
// for its resource. The cache file, if written, stays on disk. A pending Read
// returns ErrStreamClosed.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		err := s.dlm.Remove(ctx, s.opts.ResourceID)
		if err != nil && !errors.Is(err, ErrManagerStopped) {
			s.closeErr = err
		}
	})

	return s.closeErr
}
