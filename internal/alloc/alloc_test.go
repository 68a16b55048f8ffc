package alloc

import (
	"errors"
	"testing"

	"gecko/internal/errs"
	"gecko/internal/hash"
)

func TestAllocRejectsZeroSize(t *testing.T) {
	a := New(nil, nil)
	if _, err := a.Alloc(0, 8); err == nil {
		t.Fatal("zero-size alloc must be rejected")
	}
}

func TestAllocRejectsNonPow2Align(t *testing.T) {
	a := New(nil, nil)
	if _, err := a.Alloc(16, 3); err == nil {
		t.Fatal("non-power-of-two alignment must be rejected")
	}
}

func TestFreeUntrackedPointerIsFatal(t *testing.T) {
	a := New(nil, nil)
	if err := a.Free(0xdeadbeef); !errors.Is(err, errs.ErrFatal) {
		t.Fatalf("freeing an untracked pointer must report a Fatal error, got %v", err)
	}
}

// TestLabelStackAccounting mirrors spec's concrete scenario 2: push "a",
// alloc 100; push "b", alloc 200; free 200, pop; free 100, pop. Every
// bucket must return to zero and total_live must settle at zero.
func TestLabelStackAccounting(t *testing.T) {
	a := New(nil, nil)
	labelA := hash.NewLabel("a")
	labelB := hash.NewLabel("b")

	a.PushLabel(labelA)
	ptrA, err := a.Alloc(100, 8)
	if err != nil {
		t.Fatalf("alloc under label a failed: %v", err)
	}

	a.PushLabel(labelB)
	ptrB, err := a.Alloc(200, 8)
	if err != nil {
		t.Fatalf("alloc under label b failed: %v", err)
	}

	if err := a.Free(ptrB); err != nil {
		t.Fatalf("free of b-labeled alloc failed: %v", err)
	}
	a.PopLabel()

	if err := a.Free(ptrA); err != nil {
		t.Fatalf("free of a-labeled alloc failed: %v", err)
	}
	a.PopLabel()

	snap := a.Snapshot()
	if snap.TotalLive != 0 {
		t.Errorf("total_live = %d, want 0", snap.TotalLive)
	}

	byID := make(map[uint64]struct {
		live, allocs, frees uint64
	})
	for _, b := range snap.Buckets {
		byID[b.Label.ID] = struct{ live, allocs, frees uint64 }{b.LiveBytes, b.Allocs, b.Frees}
	}

	a_ := byID[labelA.ID]
	if a_.live != 0 || a_.allocs != 1 || a_.frees != 1 {
		t.Errorf("bucket a = %+v, want live=0 allocs=1 frees=1", a_)
	}
	b_ := byID[labelB.ID]
	if b_.live != 0 || b_.allocs != 1 || b_.frees != 1 {
		t.Errorf("bucket b = %+v, want live=0 allocs=1 frees=1", b_)
	}
}

func TestTotalLiveMatchesBucketSum(t *testing.T) {
	a := New(nil, nil)
	a.PushLabel(hash.NewLabel("x"))
	if _, err := a.Alloc(50, 8); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Alloc(75, 8); err != nil {
		t.Fatal(err)
	}
	a.PopLabel()

	snap := a.Snapshot()
	var sum uint64
	for _, b := range snap.Buckets {
		sum += b.LiveBytes
	}
	if sum != snap.TotalLive {
		t.Errorf("sum(bucket.live_bytes) = %d, total_live = %d, want equal", sum, snap.TotalLive)
	}
}

func TestRootLabelUsedWhenStackEmpty(t *testing.T) {
	a := New(nil, nil)
	ptr, err := a.Alloc(10, 8)
	if err != nil {
		t.Fatal(err)
	}
	snap := a.Snapshot()
	if len(snap.Buckets) != 1 || snap.Buckets[0].Label.Name != "root" {
		t.Fatalf("expected a single root bucket, got %+v", snap.Buckets)
	}
	if err := a.Free(ptr); err != nil {
		t.Fatal(err)
	}
}
