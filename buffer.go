package remoteplay

import (
	"errors"
	"math"

	"github.com/RoaringBitmap/roaring"
)

var errOffsetTooLarge = errors.New("remoteplay: offset exceeds addressable range")

// sparseBuffer holds the bytes of a resource that have been downloaded so
// far. Covered offsets are tracked in a roaring bitmap: runs of consecutive
// positions are stored as run containers, and Rank() lets contiguity and
// completeness checks run in logarithmic time.
//
// A slot, once set, is never written again.
type sparseBuffer struct {
	data   []byte
	status *roaring.Bitmap // 1 bit per byte, set = downloaded
}

func newSparseBuffer(size int64) *sparseBuffer {
	if size < 0 {
		size = 0
	}
	return &sparseBuffer{
		data:   make([]byte, size),
		status: roaring.New(),
	}
}

// fullSparseBuffer returns a buffer where every byte of data is present.
func fullSparseBuffer(data []byte) *sparseBuffer {
	b := &sparseBuffer{data: data, status: roaring.New()}
	if len(data) > 0 {
		b.status.AddRange(0, uint64(len(data)))
	}
	return b
}

func (b *sparseBuffer) length() int64 {
	return int64(len(b.data))
}

// downloaded returns the number of bytes present.
func (b *sparseBuffer) downloaded() int64 {
	return int64(b.status.GetCardinality())
}

// grow makes sure the buffer is at least size bytes long.
func (b *sparseBuffer) grow(size int64) {
	if size <= int64(len(b.data)) {
		return
	}
	if size <= int64(cap(b.data)) {
		b.data = b.data[:size]
		return
	}
	n := make([]byte, size, size+size/4)
	copy(n, b.data)
	b.data = n
}

func (b *sparseBuffer) has(off int64) bool {
	if off < 0 || off >= int64(len(b.data)) {
		return false
	}
	return b.status.Contains(uint32(off))
}

// covered counts present bytes in [start, end).
func (b *sparseBuffer) covered(start, end int64) int64 {
	if end > int64(len(b.data)) {
		end = int64(len(b.data))
	}
	if start < 0 {
		start = 0
	}
	if end <= start {
		return 0
	}
	hi := b.status.Rank(uint32(end - 1))
	var lo uint64
	if start > 0 {
		lo = b.status.Rank(uint32(start - 1))
	}
	return int64(hi - lo)
}

// run returns the length of the contiguous present run starting at off,
// capped at limit.
func (b *sparseBuffer) run(off int64, limit int64) int64 {
	return b.search(off, limit, func(k int64) bool { return b.covered(off, off+k) == k })
}

// gap returns the length of the contiguous missing run starting at off,
// capped at limit.
func (b *sparseBuffer) gap(off int64, limit int64) int64 {
	return b.search(off, limit, func(k int64) bool { return b.covered(off, off+k) == 0 })
}

// search finds the largest k in [0, limit] for which ok(k) holds, ok being
// monotonic (true up to some k, false after).
func (b *sparseBuffer) search(off, limit int64, ok func(int64) bool) int64 {
	if rem := int64(len(b.data)) - off; limit > rem {
		limit = rem
	}
	if limit <= 0 || !ok(1) {
		return 0
	}
	lo, hi := int64(1), limit
	for lo < hi {
		mid := lo + (hi-lo+1)/2
		if ok(mid) {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo
}

// slice returns a copy of the present run at off, up to limit bytes.
func (b *sparseBuffer) slice(off int64, limit int) []byte {
	n := b.run(off, int64(limit))
	res := make([]byte, n)
	copy(res, b.data[off:off+n])
	return res
}

// write stores p at off, growing the buffer when needed. Slots that are
// already present keep their value. overlap reports whether any of them was
// already present.
func (b *sparseBuffer) write(off int64, p []byte) (overlap bool, err error) {
	end := off + int64(len(p))
	if off < 0 || end > math.MaxUint32 {
		return false, errOffsetTooLarge
	}
	if len(p) == 0 {
		return false, nil
	}
	b.grow(end)

	pos := off
	for pos < end {
		if b.status.Contains(uint32(pos)) {
			overlap = true
			pos += b.run(pos, end-pos)
			continue
		}
		n := b.gap(pos, end-pos)
		copy(b.data[pos:pos+n], p[pos-off:pos-off+n])
		b.status.AddRange(uint64(pos), uint64(pos+n))
		pos += n
	}
	return overlap, nil
}

// firstMissing returns the offset of the first missing byte, or -1 if the
// buffer is fully populated.
func (b *sparseBuffer) firstMissing() int64 {
	n := b.run(0, int64(len(b.data)))
	if n >= int64(len(b.data)) {
		return -1
	}
	return n
}

// complete reports whether every byte of a resource of the given size is
// present. An unknown size (<0) is never complete.
func (b *sparseBuffer) complete(size int64) bool {
	if size <= 0 || int64(len(b.data)) < size {
		return false
	}
	return b.downloaded() == int64(len(b.data))
}
