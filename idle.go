package remoteplay

import (
	"context"
	"errors"
	"io"
	"time"
)

const (
	idleBackoffMin = time.Second
	idleBackoffMax = time.Minute
)

// idle is called on ticks without pending reads. It moves the download
// forward by one chunk on the oldest connection, opening one at the first
// missing byte if there is none, so the resource completes even while nobody
// is reading it.
func (t *downloadTask) idle(ctx context.Context, dlm *DownloadManager) {
	if t.cached {
		return
	}

	if len(t.streams) == 0 {
		if t.size < 0 {
			// nothing to aim for until a reader tells us more
			return
		}

		off := t.buf.firstMissing()
		if off < 0 {
			off = t.buf.length()
		}
		if off >= t.size {
			t.checkComplete(dlm)
			return
		}
		if off == t.idleFailOff && time.Now().Before(t.idleRetry) {
			return
		}

		dlm.log().Debugf("%s: idle: resuming download at byte %d", t.id, off)
		if _, err := t.openStream(ctx, dlm, off); err != nil {
			dlm.log().Warnf("%s: idle download failed: %s", t.id, err)
			t.idleFailed(dlm, off)
			return
		}
	}

	chunk := dlm.IdleChunkSize
	if chunk <= 0 {
		chunk = 2048
	}
	s := t.streams[0]
	off := s.pos
	_, err := t.advance(dlm, s, chunk)
	switch {
	case err == nil:
		t.idleBackoff = 0
		t.idleRetry = time.Time{}
	case !errors.Is(err, io.EOF):
		t.idleFailed(dlm, off)
	}
}

// idleFailed delays the next idle attempt at off, doubling the delay every
// time the same offset fails again.
func (t *downloadTask) idleFailed(dlm *DownloadManager, off int64) {
	switch {
	case off != t.idleFailOff || t.idleBackoff == 0:
		t.idleBackoff = idleBackoffMin
	case t.idleBackoff < idleBackoffMax:
		t.idleBackoff = min(2*t.idleBackoff, idleBackoffMax)
	}
	t.idleFailOff = off
	t.idleRetry = time.Now().Add(t.idleBackoff)
	dlm.log().Debugf("%s: idle: retrying byte %d in %s", t.id, off, t.idleBackoff)
}
