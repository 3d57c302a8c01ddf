package gwtable

import (
	"sync"
	"testing"
)

func newTestRecord(src, dst int) *Record {
	r := NewRecord()
	r.CANCAN.SrcIndex = src
	r.CANCAN.DstIndex = dst
	return r
}

func TestInsertAndSnapshot(t *testing.T) {
	tbl := New()
	r1 := newTestRecord(1, 2)
	r2 := newTestRecord(2, 3)
	tbl.Insert(r1)
	tbl.Insert(r2)

	g := tbl.Enter()
	snap := tbl.Snapshot()
	tbl.Exit(g)

	if len(snap) != 2 {
		t.Fatalf("len(snap) = %d, want 2", len(snap))
	}
}

func TestRemoveFirstMatchRemovesOnlyFirst(t *testing.T) {
	tbl := New()
	r1 := newTestRecord(1, 2)
	r2 := newTestRecord(1, 2) // duplicate, legal per spec §3
	tbl.Insert(r1)
	tbl.Insert(r2)

	removed, ok := tbl.RemoveFirstMatch(func(r *Record) bool {
		return r.CANCAN.SrcIndex == 1 && r.CANCAN.DstIndex == 2
	})
	if !ok || removed != r1 {
		t.Fatalf("expected to remove r1 first, got %v ok=%v", removed, ok)
	}
	if tbl.Len() != 1 {
		t.Fatalf("len = %d, want 1", tbl.Len())
	}

	tbl.Reclaim()
	removed2, ok := tbl.RemoveFirstMatch(func(r *Record) bool {
		return r.CANCAN.SrcIndex == 1 && r.CANCAN.DstIndex == 2
	})
	if !ok || removed2 != r2 {
		t.Fatalf("expected to remove r2 second, got %v ok=%v", removed2, ok)
	}
}

func TestRemoveFirstMatchNoMatch(t *testing.T) {
	tbl := New()
	tbl.Insert(newTestRecord(1, 2))
	_, ok := tbl.RemoveFirstMatch(func(r *Record) bool { return r.CANCAN.SrcIndex == 99 })
	if ok {
		t.Fatal("expected no match")
	}
}

func TestRemoveAllIdempotent(t *testing.T) {
	tbl := New()
	tbl.Insert(newTestRecord(1, 2))
	tbl.Insert(newTestRecord(3, 4))

	removed1 := tbl.RemoveAll()
	if len(removed1) != 2 {
		t.Fatalf("first RemoveAll removed %d, want 2", len(removed1))
	}
	if tbl.Len() != 0 {
		t.Fatal("table should be empty")
	}

	removed2 := tbl.RemoveAll()
	if len(removed2) != 0 {
		t.Fatalf("second RemoveAll removed %d, want 0", len(removed2))
	}
	if tbl.Len() != 0 {
		t.Fatal("table should still be empty")
	}
}

func TestRemoveByDevice(t *testing.T) {
	tbl := New()
	r1 := newTestRecord(1, 2)
	r2 := newTestRecord(2, 3)
	r3 := newTestRecord(4, 5)
	tbl.Insert(r1)
	tbl.Insert(r2)
	tbl.Insert(r3)

	removed := tbl.RemoveByDevice(2)
	if len(removed) != 2 {
		t.Fatalf("removed %d records, want 2", len(removed))
	}
	if tbl.Len() != 1 {
		t.Fatalf("len = %d, want 1", tbl.Len())
	}
	remaining := tbl.Snapshot()
	if remaining[0] != r3 {
		t.Fatalf("expected r3 to remain, got %v", remaining[0])
	}
}

func TestReclaimWaitsForActiveReader(t *testing.T) {
	tbl := New()
	r := newTestRecord(1, 2)
	tbl.Insert(r)

	g := tbl.Enter() // reader begins before removal

	tbl.RemoveFirstMatch(func(*Record) bool { return true })

	freed := tbl.Reclaim()
	if freed != 0 {
		t.Fatalf("reclaim freed %d while reader still active, want 0", freed)
	}

	tbl.Exit(g)

	freed = tbl.Reclaim()
	if freed != 1 {
		t.Fatalf("reclaim freed %d after reader exited, want 1", freed)
	}
}

func TestReclaimFreesImmediatelyWithNoActiveReaders(t *testing.T) {
	tbl := New()
	tbl.Insert(newTestRecord(1, 2))
	tbl.RemoveAll()

	if freed := tbl.Reclaim(); freed != 1 {
		t.Fatalf("reclaim freed %d, want 1", freed)
	}
}

func TestConcurrentReadersAndWriters(t *testing.T) {
	tbl := New()
	for i := 0; i < 10; i++ {
		tbl.Insert(newTestRecord(i, i+1))
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				g := tbl.Enter()
				for _, r := range tbl.Snapshot() {
					r.IncHandled()
				}
				tbl.Exit(g)
			}
		}()
	}

	for i := 0; i < 5; i++ {
		tbl.RemoveFirstMatch(func(*Record) bool { return true })
		tbl.Reclaim()
	}

	close(stop)
	wg.Wait()

	if tbl.Len() != 5 {
		t.Fatalf("len = %d, want 5", tbl.Len())
	}
}
