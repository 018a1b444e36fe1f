package remoteplay

import (
	"bytes"
	"testing"
)

func TestBufferWrite(t *testing.T) {
	b := newSparseBuffer(0)

	overlap, err := b.write(100, []byte("world"))
	if err != nil || overlap {
		t.Fatalf("write = %v, %v", overlap, err)
	}
	if b.length() != 105 {
		t.Errorf("length = %d, want 105", b.length())
	}
	if b.has(0) || !b.has(100) || b.has(105) {
		t.Error("unexpected coverage")
	}

	b.write(95, []byte("hello"))
	if got := b.slice(95, 100); !bytes.Equal(got, []byte("helloworld")) {
		t.Errorf("slice = %q", got)
	}
	if b.downloaded() != 10 {
		t.Errorf("downloaded = %d, want 10", b.downloaded())
	}
}

func TestBufferNoOverwrite(t *testing.T) {
	b := newSparseBuffer(10)
	b.write(2, []byte("abc"))

	overlap, err := b.write(0, []byte("XXXXXX"))
	if err != nil {
		t.Fatal(err)
	}
	if !overlap {
		t.Error("overlap not reported")
	}
	if got := b.slice(0, 10); !bytes.Equal(got, []byte("XXabcX")) {
		t.Errorf("slice = %q, want XXabcX", got)
	}
}

func TestBufferRunAndGap(t *testing.T) {
	b := newSparseBuffer(100)
	b.write(10, make([]byte, 20))
	b.write(50, make([]byte, 5))

	if n := b.run(10, 100); n != 20 {
		t.Errorf("run(10) = %d, want 20", n)
	}
	if n := b.run(15, 3); n != 3 {
		t.Errorf("run(15, 3) = %d, want 3", n)
	}
	if n := b.run(0, 100); n != 0 {
		t.Errorf("run(0) = %d, want 0", n)
	}
	if n := b.gap(30, 100); n != 20 {
		t.Errorf("gap(30) = %d, want 20", n)
	}
	if n := b.gap(55, 100); n != 45 {
		t.Errorf("gap(55) = %d, want 45", n)
	}
	if n := b.covered(0, 100); n != 25 {
		t.Errorf("covered = %d, want 25", n)
	}
}

func TestBufferComplete(t *testing.T) {
	b := newSparseBuffer(10)
	if b.firstMissing() != 0 {
		t.Errorf("firstMissing = %d, want 0", b.firstMissing())
	}

	b.write(5, make([]byte, 5))
	if b.complete(10) {
		t.Error("partial buffer reported complete")
	}
	b.write(0, make([]byte, 3))
	if b.firstMissing() != 3 {
		t.Errorf("firstMissing = %d, want 3", b.firstMissing())
	}

	b.write(3, make([]byte, 2))
	if !b.complete(10) {
		t.Error("full buffer not complete")
	}
	if b.firstMissing() != -1 {
		t.Errorf("firstMissing = %d, want -1", b.firstMissing())
	}
	if b.complete(-1) || b.complete(20) {
		t.Error("complete with wrong size")
	}

	full := fullSparseBuffer([]byte("abcdef"))
	if !full.complete(6) {
		t.Error("fullSparseBuffer not complete")
	}
}

func TestBufferOffsetLimit(t *testing.T) {
	b := newSparseBuffer(0)
	if _, err := b.write(1<<32, []byte("x")); err == nil {
		t.Error("write past 4GB should fail")
	}
	if _, err := b.write(-1, []byte("x")); err == nil {
		t.Error("negative offset should fail")
	}
}
