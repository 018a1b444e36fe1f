package remoteplay

import (
	"crypto/sha256"
	"encoding/base64"
	"os"
	"path/filepath"
)

// ResourceID derives a stable identifier from a URL, for callers that have
// no better one.
func ResourceID(u string) string {
	hash := sha256.Sum256([]byte(u))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}

// DefaultCacheDir returns the directory where audio resources are cached by
// default, under the user cache directory when one can be determined.
func DefaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "remoteplay", "audio")
}

// CachePath returns the cache file used for resourceID within dir. IDs that
// are not safe file names are hashed.
func CachePath(dir, resourceID string) string {
	if !safeName(resourceID) {
		resourceID = ResourceID(resourceID)
	}
	return filepath.Join(dir, resourceID)
}

func safeName(s string) bool {
	if s == "" || s == "." || s == ".." || len(s) > 128 {
		return false
	}
	for _, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-', c == '_', c == '.':
		default:
			return false
		}
	}
	return true
}
