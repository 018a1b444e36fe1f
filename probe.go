package remoteplay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// Common errors.
var (
	ErrRangeNotSupported   = errors.New("remoteplay: server does not support range requests")
	ErrRangeNotSatisfiable = errors.New("remoteplay: requested range not satisfiable")
	ErrNoContentLength     = errors.New("remoteplay: remote size is unknown")
)

// Info describes a remote resource.
type Info struct {
	URL           string
	Size          int64
	ContentType   string
	AcceptsRanges bool
}

// Probe fetches the size and content type of url. A HEAD request is tried
// first; servers that refuse HEAD (signed URLs often do) are asked for the
// first byte instead and the size is read from Content-Range.
func (dlm *DownloadManager) Probe(ctx context.Context, url string) (*Info, error) {
	info, err := dlm.probeHead(ctx, url)
	if err == nil {
		return info, nil
	}
	dlm.log().Debugf("HEAD %s failed (%s), trying ranged GET", url, err)

	return dlm.probeRange(ctx, url)
}

func (dlm *DownloadManager) probeHead(ctx context.Context, url string) (*Info, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if dlm.UserAgent != "" {
		req.Header.Set("User-Agent", dlm.UserAgent)
	}

	resp, err := dlm.client().Do(req)
	if err != nil {
		return nil, err
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP HEAD failed: %s", resp.Status)
	}
	if resp.ContentLength < 0 {
		return nil, ErrNoContentLength
	}

	return &Info{
		URL:           url,
		Size:          resp.ContentLength,
		ContentType:   resp.Header.Get("Content-Type"),
		AcceptsRanges: resp.Header.Get("Accept-Ranges") == "bytes",
	}, nil
}

func (dlm *DownloadManager) probeRange(ctx context.Context, url string) (*Info, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Range", "bytes=0-0")
	if dlm.UserAgent != "" {
		req.Header.Set("User-Agent", dlm.UserAgent)
	}

	resp, err := dlm.client().Do(req)
	if err != nil {
		return nil, err
	}
	// do not drain, a 200 answer may carry the whole resource
	defer resp.Body.Close()

	info := &Info{URL: url, ContentType: resp.Header.Get("Content-Type")}

	switch resp.StatusCode {
	case http.StatusPartialContent:
		_, _, total, err := ParseContentRange(resp.Header.Get("Content-Range"))
		if err != nil {
			return nil, err
		}
		if total < 0 {
			return nil, ErrNoContentLength
		}
		info.Size = total
		info.AcceptsRanges = true
	case http.StatusOK:
		if resp.ContentLength < 0 {
			return nil, ErrNoContentLength
		}
		info.Size = resp.ContentLength
	default:
		return nil, fmt.Errorf("failed to probe: %s", resp.Status)
	}

	return info, nil
}

// ParseContentRange parses a Content-Range header value.
// Returns start, end, total bytes. Total is -1 if unknown.
func ParseContentRange(header string) (start, end, total int64, err error) {
	// Format: bytes start-end/total or bytes start-end/*
	header = strings.TrimPrefix(strings.TrimSpace(header), "bytes ")
	rng, size, ok := strings.Cut(header, "/")
	if !ok {
		return 0, 0, 0, fmt.Errorf("invalid Content-Range format: %s", header)
	}

	first, last, ok := strings.Cut(rng, "-")
	if !ok {
		return 0, 0, 0, fmt.Errorf("invalid Content-Range format: %s", header)
	}

	start, err = strconv.ParseInt(first, 10, 64)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid start byte: %w", err)
	}

	end, err = strconv.ParseInt(last, 10, 64)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid end byte: %w", err)
	}

	if size == "*" {
		return start, end, -1, nil
	}

	total, err = strconv.ParseInt(size, 10, 64)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid total bytes: %w", err)
	}

	return start, end, total, nil
}
