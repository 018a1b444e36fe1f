package remoteplay

// ReadRequest asks the download manager for up to Length bytes of a resource,
// starting at Offset. The reply may carry fewer bytes; an empty reply means
// the end of the resource was reached.
type ReadRequest struct {
	ID         uint64 // assigned on submission, echoed in the Reply
	ResourceID string
	URL        string
	Offset     int64
	Length     int

	// Size is the total length of the resource if known by the caller, or 0.
	// A known size skips remote length discovery and validates the cache file.
	Size int64

	// CachePath is where the fully downloaded resource is persisted. Empty
	// disables the on-disk cache.
	CachePath string

	reply chan<- Reply // private reply channel, nil means the shared one
}

// RemoveRequest drops the in-memory state of a resource. The cache file, if
// any, is kept.
type RemoveRequest struct {
	ResourceID string
}

// Reply answers a ReadRequest.
type Reply struct {
	Request ReadRequest
	Data    []byte
}

// Progress describes the download state of a single resource.
type Progress struct {
	Found      bool  // a task exists for this resource
	Downloaded int64 // bytes present in memory
	Size       int64 // total length, or -1 if not known yet
	Streams    int   // open range connections
	Cached     bool  // resource was persisted to (or loaded from) disk
}

type progressRequest struct {
	resourceID string
	reply      chan Progress
}

// message is anything that can travel through the manager ingress queue.
type message interface {
	resource() string
}

func (r ReadRequest) resource() string     { return r.ResourceID }
func (r RemoveRequest) resource() string   { return r.ResourceID }
func (r progressRequest) resource() string { return r.resourceID }
