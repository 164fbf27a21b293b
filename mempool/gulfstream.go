// Package mempool implements the Gulf Stream priority-tiered pending
// transaction buffer (spec.md §4.3), grounded on the fee-tiering classifier
// in original_source/src/gulf_stream/manager.rs.
package mempool

import (
	"container/list"
	"fmt"
	"sync"
	"time"

	"github.com/tolelom/tolchain/core"
)

// Fee-tier thresholds. high/low split follows
// original_source/src/gulf_stream/manager.rs's classifier; the normal/low
// split is lowered from the original's 100 to keep the mid-range fees named
// in spec.md's drain-order scenario out of the low tier.
const (
	highFeeThreshold   = 1000
	normalFeeThreshold = 10
)

// Tier identifies a priority class.
type Tier int

const (
	TierHigh Tier = iota
	TierNormal
	TierLow
)

func (t Tier) String() string {
	switch t {
	case TierHigh:
		return "high"
	case TierNormal:
		return "normal"
	default:
		return "low"
	}
}

func classify(fee uint64) Tier {
	switch {
	case fee > highFeeThreshold:
		return TierHigh
	case fee > normalFeeThreshold:
		return TierNormal
	default:
		return TierLow
	}
}

const (
	defaultCapacity  = 10_000
	defaultMaxAge    = time.Hour
	defaultProcessTO = 2 * time.Minute
)

// Slot is one pending transaction in the mempool.
type Slot struct {
	Tx         *core.Transaction
	Tier       Tier
	ArrivalMs  int64
	Retries    int
	elem       *list.Element // position within its tier queue
}

// Stats mirrors the counters in original_source's GulfStreamStats.
type Stats struct {
	Received    uint64
	Confirmed   uint64
	Rejected    uint64
	Pending     int
	Processing  int
	QueueHigh   int
	QueueNormal int
	QueueLow    int
}

// GulfStream is the three-tier priority mempool. Capacity is shared across
// tiers; when full, the lowest-tier oldest slot is evicted first to make
// room for a higher-tier arrival.
type GulfStream struct {
	mu         sync.Mutex
	capacity   int
	maxAge     time.Duration
	processTO  time.Duration
	pending    map[string]*Slot
	processing map[string]*Slot
	queues     map[Tier]*list.List // each element is a *Slot

	received  uint64
	confirmed uint64
	rejected  uint64
}

// New creates an empty Gulf Stream mempool with the default capacity and
// expiry windows.
func New() *GulfStream {
	return NewWithLimits(defaultCapacity, defaultMaxAge, defaultProcessTO)
}

// NewWithLimits creates a Gulf Stream mempool with explicit capacity and
// expiry windows, for tests.
func NewWithLimits(capacity int, maxAge, processTO time.Duration) *GulfStream {
	return &GulfStream{
		capacity:   capacity,
		maxAge:     maxAge,
		processTO:  processTO,
		pending:    make(map[string]*Slot),
		processing: make(map[string]*Slot),
		queues: map[Tier]*list.List{
			TierHigh:   list.New(),
			TierNormal: list.New(),
			TierLow:    list.New(),
		},
	}
}

// Add validates and classifies tx, then enqueues it. Returns false without
// error if tx.ID is already pending (dedup) — per spec.md §8 property 6.
func (g *GulfStream) Add(tx *core.Transaction) (bool, error) {
	if err := tx.Verify(); err != nil {
		return false, fmt.Errorf("verify tx: %w", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.pending[tx.ID]; exists {
		return false, nil
	}
	if _, exists := g.processing[tx.ID]; exists {
		return false, nil
	}

	if g.size() >= g.capacity {
		if !g.evictForIncoming(classify(tx.Fee)) {
			return false, core.ErrMempoolFull
		}
	}

	tier := classify(tx.Fee)
	slot := &Slot{Tx: tx, Tier: tier, ArrivalMs: time.Now().UnixMilli()}
	slot.elem = g.queues[tier].PushBack(slot)
	g.pending[tx.ID] = slot
	g.received++
	return true, nil
}

// evictForIncoming drops the oldest slot from the lowest non-empty tier that
// is no higher-priority than incomingTier, making room for one more slot.
// Returns false if no eviction candidate exists (every queued slot already
// outranks the incoming one).
func (g *GulfStream) evictForIncoming(incomingTier Tier) bool {
	for tier := TierLow; tier >= incomingTier; tier-- {
		q := g.queues[tier]
		if q.Len() == 0 {
			continue
		}
		front := q.Front()
		slot := front.Value.(*Slot)
		q.Remove(front)
		delete(g.pending, slot.Tx.ID)
		g.rejected++
		return true
	}
	return false
}

func (g *GulfStream) size() int {
	return len(g.pending) + len(g.processing)
}

// DrainReady pops up to max slots, always exhausting high before normal
// before low, oldest-first within a tier, and moves them into the
// "processing" map pending the caller's Confirm/Reject report.
func (g *GulfStream) DrainReady(max int) []*Slot {
	g.mu.Lock()
	defer g.mu.Unlock()

	var out []*Slot
	for _, tier := range []Tier{TierHigh, TierNormal, TierLow} {
		q := g.queues[tier]
		for q.Len() > 0 && len(out) < max {
			front := q.Front()
			slot := front.Value.(*Slot)
			q.Remove(front)
			slot.elem = nil
			delete(g.pending, slot.Tx.ID)
			g.processing[slot.Tx.ID] = slot
			out = append(out, slot)
		}
		if len(out) >= max {
			break
		}
	}
	return out
}

// Confirm reports that a drained slot was successfully included in a block.
func (g *GulfStream) Confirm(txID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.processing[txID]; !ok {
		return false
	}
	delete(g.processing, txID)
	g.confirmed++
	return true
}

// Reject reports that a drained slot failed state application and should be
// dropped rather than retried.
func (g *GulfStream) Reject(txID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.processing[txID]; !ok {
		return false
	}
	delete(g.processing, txID)
	g.rejected++
	return true
}

// CleanupExpired removes pending slots older than maxAge and processing
// slots older than processTO (orphaned because their consumer never
// reported back). Both ages are measured from the slot's ArrivalMs, the
// time it entered the mempool, not from when it was drained.
func (g *GulfStream) CleanupExpired() {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now().UnixMilli()
	pendingCutoff := now - g.maxAge.Milliseconds()
	for tier, q := range g.queues {
		for e := q.Front(); e != nil; {
			next := e.Next()
			slot := e.Value.(*Slot)
			if slot.ArrivalMs < pendingCutoff {
				q.Remove(e)
				delete(g.pending, slot.Tx.ID)
				g.rejected++
			}
			_ = tier
			e = next
		}
	}

	procCutoff := now - g.processTO.Milliseconds()
	for id, slot := range g.processing {
		if slot.ArrivalMs < procCutoff {
			delete(g.processing, id)
			g.rejected++
		}
	}
}

// Size returns the total number of pending + processing slots.
func (g *GulfStream) Size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.size()
}

// Stats snapshots the Gulf Stream counters, mirroring
// original_source/src/gulf_stream/stats.rs's shape.
func (g *GulfStream) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Stats{
		Received:    g.received,
		Confirmed:   g.confirmed,
		Rejected:    g.rejected,
		Pending:     len(g.pending),
		Processing:  len(g.processing),
		QueueHigh:   g.queues[TierHigh].Len(),
		QueueNormal: g.queues[TierNormal].Len(),
		QueueLow:    g.queues[TierLow].Len(),
	}
}
