package remoteplay

import (
	"context"
	"errors"
	"io"
)

// satisfy tries to answer req. done is false when the request could not be
// served this time (connection failure) and should be retried later; a done
// request with no data means the end of the resource was reached.
func (t *downloadTask) satisfy(ctx context.Context, dlm *DownloadManager, req ReadRequest) (data []byte, done bool) {
	if req.Length <= 0 {
		return nil, true
	}

	// cache hit
	if t.buf.has(req.Offset) {
		return t.buf.slice(req.Offset, req.Length), true
	}

	if t.cached || (t.size >= 0 && req.Offset >= t.size) {
		return nil, true
	}

	s := t.streamAt(req.Offset)
	if s == nil {
		var err error
		s, err = t.openStream(ctx, dlm, req.Offset)
		if err != nil {
			if errors.Is(err, ErrRangeNotSatisfiable) {
				return nil, true
			}
			dlm.log().Warnf("%s: failed to open connection at byte %d: %s", t.id, req.Offset, err)
			return nil, false
		}
	}

	data, err := t.advance(dlm, s, req.Length)
	switch {
	case errors.Is(err, io.EOF):
		return nil, true
	case err != nil:
		return nil, false
	}
	return data, true
}

// advance reads up to n bytes from s into the buffer. Streams that reach the
// end of the resource, fail, or run into data that is already present are
// closed.
func (t *downloadTask) advance(dlm *DownloadManager, s *rangeStream, n int) ([]byte, error) {
	off := s.pos
	data, err := s.read(n, dlm.RejectZeroPayload)
	if err != nil {
		t.removeStream(s)
		if !errors.Is(err, io.EOF) {
			dlm.log().Warnf("%s: read at byte %d failed: %s", t.id, off, err)
			return nil, err
		}
		if t.size < 0 {
			dlm.log().Debugf("%s: end of resource at byte %d", t.id, off)
			t.size = off
		}
		t.checkComplete(dlm)
		return nil, io.EOF
	}

	overlap, err := t.buf.write(off, data)
	if err != nil {
		t.removeStream(s)
		dlm.log().Errorf("%s: failed to store data at byte %d: %s", t.id, off, err)
		return nil, err
	}

	switch {
	case overlap:
		// caught up with data fetched by another connection
		t.removeStream(s)
	case s.end >= 0 && s.pos >= s.end:
		if t.size < 0 {
			t.size = s.pos
		}
		t.removeStream(s)
	}

	t.checkComplete(dlm)
	return data, nil
}

// checkComplete persists the resource the first time every byte is present.
func (t *downloadTask) checkComplete(dlm *DownloadManager) {
	if t.cached || !t.buf.complete(t.size) {
		return
	}

	// whatever happens next, the data is fully available from memory
	t.cached = true
	t.closeStreams()
	dlm.log().Infof("%s: download complete (%d bytes)", t.id, t.size)

	if t.cachePath == "" {
		return
	}
	if err := writeCacheFile(t.cachePath, t.buf.data[:t.size]); err != nil {
		dlm.log().Errorf("%s: failed to write cache file %s: %s", t.id, t.cachePath, err)
	}
}
