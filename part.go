package remoteplay

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// loadCache reads the cache file of t. It is only accepted when its length
// matches the known size of the resource, or when that size is unknown.
func (dlm *DownloadManager) loadCache(t *downloadTask) ([]byte, bool) {
	if t.cachePath == "" {
		return nil, false
	}

	data, err := os.ReadFile(t.cachePath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			dlm.log().Warnf("%s: failed to read cache file: %s", t.id, err)
		}
		return nil, false
	}

	if len(data) == 0 {
		return nil, false
	}
	if t.size >= 0 && int64(len(data)) != t.size {
		dlm.log().Warnf("%s: ignoring cache file %s: has %d bytes, expected %d", t.id, t.cachePath, len(data), t.size)
		return nil, false
	}

	return data, true
}

// writeCacheFile stores data at path. An existing file is never replaced.
// The data goes to a temporary file first so that a partial write never
// looks like a complete resource.
func writeCacheFile(path string, data []byte) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	out, err := os.Create(path + ".tmp")
	if err != nil {
		return err
	}

	_, err = out.Write(data)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path + ".tmp")
		return err
	}

	return os.Rename(path+".tmp", path)
}
