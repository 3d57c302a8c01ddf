package gwtable

import (
	"sync"
	"sync/atomic"
)

// freeEpoch marks a hazard cell as not currently guarding a read.
const freeEpoch = ^uint64(0)

// hazardCell lets a reader publish the epoch it observed when it began a
// read burst, so the reclaimer can tell whether it's safe to free a
// record that was unlinked at some earlier epoch.
type hazardCell struct {
	epoch atomic.Uint64
}

// Guard is returned by Table.Enter and must be passed to Table.Exit when
// the reader is done with its read burst (a single hot-path dispatch, or
// one DUMP iteration pass).
type Guard struct {
	cell *hazardCell
}

// Table is the Job Table: a concurrent set of Job Records. Readers
// (Snapshot callers, and the hot path around each dispatch) never block
// and never take the writer mutex; they instead publish a hazard epoch so that structural
// mutations (insert/remove) can defer freeing unlinked records until no
// reader could still observe them (spec §4.3, §5, §9).
type Table struct {
	live  atomic.Pointer[[]*Record]
	epoch atomic.Uint64

	writerMu sync.Mutex

	cellsMu sync.Mutex
	cells   []*hazardCell
	cellPool sync.Pool

	graveyardMu sync.Mutex
	graveyard   []*Record
}

// New creates an empty Job Table.
func New() *Table {
	t := &Table{}
	empty := []*Record{}
	t.live.Store(&empty)
	t.cellPool.New = func() any { return &hazardCell{} }
	return t
}

// Enter begins a lock-free read burst, returning a Guard that must be
// passed to Exit when the caller is done observing the table. The hot
// path and DUMP both call this once per dispatch / per page.
func (t *Table) Enter() Guard {
	cell := t.acquireCell()
	cell.epoch.Store(t.epoch.Load())
	return Guard{cell: cell}
}

// Exit ends a read burst started by Enter.
func (t *Table) Exit(g Guard) {
	g.cell.epoch.Store(freeEpoch)
	t.cellPool.Put(g.cell)
}

func (t *Table) acquireCell() *hazardCell {
	cell := t.cellPool.Get().(*hazardCell)
	t.cellsMu.Lock()
	found := false
	for _, c := range t.cells {
		if c == cell {
			found = true
			break
		}
	}
	if !found {
		t.cells = append(t.cells, cell)
	}
	t.cellsMu.Unlock()
	return cell
}

// Snapshot returns the current live record slice. Callers must have an
// active Guard (from Enter) for the duration they hold onto the returned
// slice's elements.
func (t *Table) Snapshot() []*Record {
	p := t.live.Load()
	return *p
}

// Insert appends job to the table (spec §4.3 "insert(job)") by copying
// the live slice with job added at the end and publishing the copy with
// a single atomic pointer store, which keeps it safe against concurrent
// hot-path readers. The copy makes Insert O(n) in the number of records.
func (t *Table) Insert(job *Record) {
	t.writerMu.Lock()
	defer t.writerMu.Unlock()

	old := *t.live.Load()
	next := make([]*Record, len(old)+1)
	copy(next, old)
	next[len(old)] = job
	t.live.Store(&next)
}

// RemoveFirstMatch finds and removes the first record for which match
// returns true, returning it. Returns (nil, false) if nothing matched
// (spec §4.3 "remove_first_match").
func (t *Table) RemoveFirstMatch(match func(*Record) bool) (*Record, bool) {
	t.writerMu.Lock()
	defer t.writerMu.Unlock()

	old := *t.live.Load()
	idx := -1
	for i, r := range old {
		if match(r) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, false
	}

	removed := old[idx]
	next := make([]*Record, 0, len(old)-1)
	next = append(next, old[:idx]...)
	next = append(next, old[idx+1:]...)
	t.publishAndBury(next, removed)
	return removed, true
}

// RemoveAll empties the table, returning every record that was removed
// (spec §4.3 "remove_all"). Two consecutive calls both succeed and both
// leave the table empty (idempotence law, spec §8).
func (t *Table) RemoveAll() []*Record {
	t.writerMu.Lock()
	defer t.writerMu.Unlock()

	old := *t.live.Load()
	if len(old) == 0 {
		return nil
	}
	next := []*Record{}
	t.publishAndBury(next, old...)
	removed := make([]*Record, len(old))
	copy(removed, old)
	return removed
}

// RemoveByDevice removes every record whose source or destination
// interface index equals devIndex, as driven by a device-unregister event (spec §4.3 "Device
// references", §4.5 "DEVICE-UNREGISTER event").
func (t *Table) RemoveByDevice(devIndex int) []*Record {
	t.writerMu.Lock()
	defer t.writerMu.Unlock()

	old := *t.live.Load()
	next := make([]*Record, 0, len(old))
	var removed []*Record
	for _, r := range old {
		if r.CANCAN.SrcIndex == devIndex || r.CANCAN.DstIndex == devIndex {
			removed = append(removed, r)
			continue
		}
		next = append(next, r)
	}
	if len(removed) == 0 {
		return nil
	}
	t.publishAndBury(next, removed...)
	return removed
}

// publishAndBury swaps in the new live slice, bumps the epoch, and
// stamps each removed record with the pre-bump epoch so the reclaimer
// knows once it is safe to free them. Must be called with writerMu held.
func (t *Table) publishAndBury(next []*Record, removed ...*Record) {
	t.live.Store(&next)
	stamp := t.epoch.Load()
	t.epoch.Add(1)

	t.graveyardMu.Lock()
	for _, r := range removed {
		r.graveyardEpoch = stamp
		t.graveyard = append(t.graveyard, r)
	}
	t.graveyardMu.Unlock()
}

// Reclaim frees every graveyard record that no active reader could still
// observe, releasing its device references and returning it to the
// record pool. It should be called periodically by a background
// goroutine (spec §5 "while waiting for the grace-period barrier on
// shutdown" — here run proactively rather than only at shutdown, so
// memory doesn't grow unbounded under steady churn).
func (t *Table) Reclaim() int {
	minActive := t.minActiveEpoch()

	t.graveyardMu.Lock()
	kept := t.graveyard[:0]
	var freed []*Record
	for _, r := range t.graveyard {
		if r.graveyardEpoch < minActive {
			freed = append(freed, r)
		} else {
			kept = append(kept, r)
		}
	}
	t.graveyard = kept
	t.graveyardMu.Unlock()

	for _, r := range freed {
		if r.SrcDev != nil {
			r.SrcDev.Release()
		}
		if r.DstDev != nil {
			r.DstDev.Release()
		}
		releaseRecord(r)
	}
	return len(freed)
}

func (t *Table) minActiveEpoch() uint64 {
	t.cellsMu.Lock()
	cells := t.cells
	t.cellsMu.Unlock()

	min := t.epoch.Load() + 1
	for _, c := range cells {
		e := c.epoch.Load()
		if e != freeEpoch && e < min {
			min = e
		}
	}
	return min
}

// Len returns the current number of live records, for metrics/tests.
func (t *Table) Len() int {
	return len(t.Snapshot())
}
