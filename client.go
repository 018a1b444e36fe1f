package remoteplay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

var errAllZero = errors.New("remoteplay: received an all-zero payload")

// rangeStream represents a single HTTP connection reading a remote resource
// sequentially from a fixed start offset. A task can keep several of them to
// serve random access patterns (e.g. a demuxer reading an index at the end of
// a file and then audio data from the start).
type rangeStream struct {
	resp       *http.Response
	start      int64     // offset the connection was opened at
	pos        int64     // current read position in bytes, only grows
	end        int64     // exclusive upper bound from Content-Length, -1 if unknown
	total      int64     // size of the resource from Content-Range, -1 if unknown
	lastAccess time.Time // when this stream was last used
}

func newHTTPClient() *http.Client {
	return &http.Client{
		// no overall timeout, range streams are long lived
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout: 10 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 15 * time.Second,
			MaxIdleConns:          10,
			IdleConnTimeout:       90 * time.Second,
			DisableCompression:    true, // we want raw bytes for range requests
		},
	}
}

// openRangeStream issues a GET for url from off to the end of the resource.
func (dlm *DownloadManager) openRangeStream(ctx context.Context, url string, off int64) (*rangeStream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-", off))
	if dlm.UserAgent != "" {
		req.Header.Set("User-Agent", dlm.UserAgent)
	}

	resp, err := dlm.client().Do(req)
	if err != nil {
		return nil, err
	}

	s := &rangeStream{
		resp:       resp,
		start:      off,
		pos:        off,
		end:        -1,
		total:      -1,
		lastAccess: time.Now(),
	}

	switch resp.StatusCode {
	case http.StatusPartialContent:
		if cr := resp.Header.Get("Content-Range"); cr != "" {
			if _, _, total, err := ParseContentRange(cr); err == nil {
				s.total = total
			}
		}
	case http.StatusOK:
		// server ignored the Range header, only usable from the start
		if off != 0 {
			resp.Body.Close()
			return nil, ErrRangeNotSupported
		}
		s.total = resp.ContentLength
	case http.StatusRequestedRangeNotSatisfiable:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: offset %d", ErrRangeNotSatisfiable, off)
	default:
		resp.Body.Close()
		return nil, fmt.Errorf("failed to download: %s", resp.Status)
	}

	if resp.ContentLength >= 0 {
		s.end = off + resp.ContentLength
	}

	return s, nil
}

// read pulls up to n bytes from the connection. A clean end of the body is
// reported as io.EOF with no data.
func (s *rangeStream) read(n int, rejectZero bool) ([]byte, error) {
	if s.end >= 0 {
		if s.pos >= s.end {
			return nil, io.EOF
		}
		if rem := s.end - s.pos; int64(n) > rem {
			n = int(rem)
		}
	}
	s.lastAccess = time.Now()

	buf := make([]byte, n)
	c, err := io.ReadFull(s.resp.Body, buf)
	if c == 0 {
		if err == nil || errors.Is(err, io.ErrUnexpectedEOF) {
			err = io.EOF
		}
		return nil, err
	}
	if rejectZero && c == n && allZero(buf) {
		// bytes were consumed, the stream position is now meaningless
		return nil, errAllZero
	}

	// a short read still carries valid data, the error (if any) will show up
	// again on the next call
	s.pos += int64(c)
	return buf[:c], nil
}

func (s *rangeStream) close() error {
	if s.resp == nil {
		return nil
	}
	err := s.resp.Body.Close()
	s.resp = nil
	return err
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
