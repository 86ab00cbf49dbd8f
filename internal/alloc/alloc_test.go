package alloc

import (
	"math"
	"testing"
)

func TestAllocMallocUpdatesUsed(t *testing.T) {
	const objSize = 64
	s := NewState(1 << 20)

	if ok := Alloc(s, false, objSize*4, objSize); !ok {
		t.Fatalf("expected alloc to succeed")
	}
	if s.Used() != objSize {
		t.Fatalf("used = %d, want %d", s.Used(), objSize)
	}

	if ok := Alloc(s, true, objSize, 0); !ok {
		t.Fatalf("expected free to succeed")
	}
	if s.Used() != 0 {
		t.Fatalf("used after free = %d, want 0", s.Used())
	}
}

func TestAllocReallocGrow(t *testing.T) {
	const objSize, objSizeAfter = 64, 128
	s := NewState(1 << 20)

	if ok := Alloc(s, false, 0, objSize); !ok || s.Used() != objSize {
		t.Fatalf("initial alloc failed: ok=%v used=%d", ok, s.Used())
	}
	if ok := Alloc(s, true, objSize, objSizeAfter); !ok {
		t.Fatalf("expected realloc grow to succeed")
	}
	if s.Used() != objSizeAfter {
		t.Fatalf("used = %d, want %d", s.Used(), objSizeAfter)
	}
}

func TestAllocReallocShrink(t *testing.T) {
	const objSize, objSizeAfter = 256, 64
	s := NewState(1 << 20)

	Alloc(s, false, 0, objSize)
	if ok := Alloc(s, true, objSize, objSizeAfter); !ok {
		t.Fatalf("expected realloc shrink to succeed")
	}
	if s.Used() != objSizeAfter {
		t.Fatalf("used = %d, want %d", s.Used(), objSizeAfter)
	}
}

func TestAllocFreeClampsUnderflow(t *testing.T) {
	const objSize = 16
	s := NewState(1 << 20)
	s.used = objSize / 2 // currSize will exceed used

	ok := Alloc(s, true, objSize*4, 0)
	if !ok {
		t.Fatalf("expected a free to always succeed, even with a currSize bigger than used")
	}
	if s.Used() != 0 {
		t.Fatalf("used = %d, want 0 (saturating)", s.Used())
	}
}

func TestAllocUsedBaseClampsOnRealloc(t *testing.T) {
	const objSize, objSizeAfter = 16, 32
	s := NewState(1 << 20)
	s.used = objSize / 2

	if ok := Alloc(s, true, objSize*4, objSizeAfter); !ok {
		t.Fatalf("expected realloc to succeed despite currSize > used")
	}
	if s.Used() != objSizeAfter {
		t.Fatalf("used = %d, want %d", s.Used(), objSizeAfter)
	}
}

func TestAllocNilPtrForcesCurrSizeZero(t *testing.T) {
	const objSize, initUsed = 16, 500
	s := NewState(1 << 20)
	s.used = initUsed

	if ok := Alloc(s, false, initUsed/2, objSize); !ok {
		t.Fatalf("expected alloc to succeed")
	}
	if s.Used() != initUsed+objSize {
		t.Fatalf("used = %d, want %d", s.Used(), initUsed+objSize)
	}

	Alloc(s, true, objSize, 0)
	if s.Used() != initUsed {
		t.Fatalf("used after free = %d, want %d", s.Used(), initUsed)
	}
}

func TestAllocLimitReached(t *testing.T) {
	const limit = 64
	s := NewState(limit)

	if ok := Alloc(s, false, 0, limit); !ok || s.Used() != limit {
		t.Fatalf("initial alloc to exactly the limit should succeed: ok=%v used=%d", ok, s.Used())
	}

	if ok := Alloc(s, true, limit, limit+1); ok {
		t.Fatalf("expected alloc past the limit to fail")
	}
	if s.Used() != limit {
		t.Fatalf("used changed after failed alloc: %d, want %d", s.Used(), limit)
	}
	if !s.LimitReached() {
		t.Fatalf("expected limitReached to be set")
	}
	if s.Overflow() {
		t.Fatalf("overflow should not be set")
	}

	Alloc(s, true, limit, 0)
	if s.Used() != 0 {
		t.Fatalf("used after cleanup free = %d, want 0", s.Used())
	}
}

func TestAllocOverflow(t *testing.T) {
	s := NewState(math.MaxUint64)
	s.used = math.MaxUint64 - 1

	if ok := Alloc(s, false, 0, 16); ok {
		t.Fatalf("expected overflow to fail the allocation")
	}
	if !s.Overflow() {
		t.Fatalf("expected overflow flag to be set")
	}
}

func TestAllocDisabledLimit(t *testing.T) {
	s := NewState(0)
	if ok := Alloc(s, false, 0, 1<<30); !ok {
		t.Fatalf("expected a disabled limit (0) to allow an arbitrarily large allocation")
	}
}

func TestAllocResetErrorFlags(t *testing.T) {
	s := NewState(8)
	Alloc(s, false, 0, 16)
	if !s.LimitReached() {
		t.Fatalf("expected limitReached after exceeding the cap")
	}
	s.ResetErrorFlags()
	if s.LimitReached() || s.Overflow() {
		t.Fatalf("expected flags cleared after ResetErrorFlags")
	}
}

func TestAllocNilStatePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on nil allocator state")
		}
	}()
	Alloc(nil, false, 0, 16)
}
