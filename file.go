package remoteplay

import (
	"context"
	"time"
)

// downloadTask holds everything known about one resource: the bytes
// downloaded so far, the connections currently reading it and whether it was
// persisted to disk. It is only ever touched by the manager loop, with at
// most one goroutine per task during a tick.
type downloadTask struct {
	id        string
	url       string
	cachePath string

	size    int64 // total length, -1 if unknown
	buf     *sparseBuffer
	streams []*rangeStream // in opening order, oldest first
	cached  bool           // complete and persisted (or loaded from disk)

	// idle reopen backoff for an offset that keeps failing
	idleFailOff int64
	idleRetry   time.Time
	idleBackoff time.Duration
}

// getTask returns the task for req.ResourceID, creating it if needed.
func (dlm *DownloadManager) getTask(ctx context.Context, req ReadRequest) *downloadTask {
	if t, ok := dlm.tasks[req.ResourceID]; ok {
		return t
	}

	t := dlm.newTask(ctx, req)
	dlm.tasks[req.ResourceID] = t
	return t
}

func (dlm *DownloadManager) newTask(ctx context.Context, req ReadRequest) *downloadTask {
	t := &downloadTask{
		id:        req.ResourceID,
		url:       req.URL,
		cachePath: req.CachePath,
		size:      -1,
	}
	if req.Size > 0 {
		t.size = req.Size
	}

	if data, ok := dlm.loadCache(t); ok {
		dlm.log().Debugf("%s: loaded %d bytes from %s", t.id, len(data), t.cachePath)
		t.buf = fullSparseBuffer(data)
		t.size = int64(len(data))
		t.cached = true
		return t
	}

	if t.size < 0 {
		info, err := dlm.Probe(ctx, t.url)
		if err != nil {
			// will be learned from the first range response
			dlm.log().Warnf("%s: failed to get remote size: %s", t.id, err)
		} else {
			t.size = info.Size
		}
	}

	t.buf = newSparseBuffer(max(t.size, 0))
	return t
}

// streamAt returns the open stream whose cursor is exactly at off.
func (t *downloadTask) streamAt(off int64) *rangeStream {
	for _, s := range t.streams {
		if s.pos == off {
			return s
		}
	}
	return nil
}

// openStream creates a new range connection at off. If at the maximum number
// of connections, closes the least recently used one first.
func (t *downloadTask) openStream(ctx context.Context, dlm *DownloadManager, off int64) (*rangeStream, error) {
	for len(t.streams) >= max(dlm.MaxStreamsPerTask, 1) {
		t.closeLRUStream()
	}

	dlm.log().Debugf("%s: initializing HTTP connection download at byte %d~ (streams: %d)", t.id, off, len(t.streams)+1)

	s, err := dlm.openRangeStream(ctx, t.url, off)
	if err != nil {
		return nil, err
	}

	if t.size < 0 && s.total >= 0 {
		t.size = s.total
		t.buf.grow(t.size)
	}
	t.streams = append(t.streams, s)
	return s, nil
}

func (t *downloadTask) removeStream(s *rangeStream) {
	for i, v := range t.streams {
		if v == s {
			t.streams = append(t.streams[:i], t.streams[i+1:]...)
			break
		}
	}
	s.close()
}

func (t *downloadTask) closeLRUStream() {
	if len(t.streams) == 0 {
		return
	}

	lru := t.streams[0]
	for _, s := range t.streams[1:] {
		if s.lastAccess.Before(lru.lastAccess) {
			lru = s
		}
	}
	t.removeStream(lru)
}

func (t *downloadTask) closeStreams() {
	for _, s := range t.streams {
		s.close()
	}
	t.streams = nil
}
