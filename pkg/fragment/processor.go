// Package fragment implements the Fragment Processor: the sequential-id
// allocator shared across all four extraction phases for a single item.
// It mirrors the mutex-guarded, single-purpose allocation style of the
// teacher's session.Manager, but where that type owns whole sessions this
// type owns nothing but four independent monotonic counters.
package fragment

import (
	"fmt"
	"sync"
)

// Processor allocates sequential ids for facts, entities, quotes, and
// quantitative data within a single item's processing run. Each counter
// is independent and starts at 1 (spec §4.1) — a quote numbered 3 and a
// fact numbered 3 are unrelated ids.
//
// A single Processor instance must be threaded through every phase call
// for one item; it is never reconstructed mid-run. Token records which
// run the Processor was created for, and VerifyToken checks it. The
// controller creates one Processor per run and passes that instance to
// every phase; neither the controller nor the phases call VerifyToken.
type Processor struct {
	mu sync.Mutex

	token string

	nextFactID   int
	nextEntityID int
	nextQuoteID  int
	nextDatumID  int
}

// New creates a Processor for a single processing run, identified by
// runID (typically the job or item id, used only for the identity check
// in VerifyToken — it is never parsed or otherwise interpreted).
func New(runID string) *Processor {
	return &Processor{
		token:        runID,
		nextFactID:   1,
		nextEntityID: 1,
		nextQuoteID:  1,
		nextDatumID:  1,
	}
}

// Token identifies the run this Processor was created for.
func (p *Processor) Token() string {
	return p.token
}

// VerifyToken reports an error if runID does not match the run this
// Processor was created for, so a caller holding a run id can detect a
// mismatched or stale Processor before allocating ids from it.
func (p *Processor) VerifyToken(runID string) error {
	if p.token != runID {
		return fmt.Errorf("fragment: processor token mismatch: got run %q, processor belongs to run %q", runID, p.token)
	}
	return nil
}

// NextFactID allocates and returns the next fact sequential id.
func (p *Processor) NextFactID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextFactID
	p.nextFactID++
	return id
}

// NextEntityID allocates and returns the next entity sequential id.
func (p *Processor) NextEntityID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextEntityID
	p.nextEntityID++
	return id
}

// NextQuoteID allocates and returns the next quote sequential id.
func (p *Processor) NextQuoteID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextQuoteID
	p.nextQuoteID++
	return id
}

// NextDatumID allocates and returns the next quantitative-datum sequential id.
func (p *Processor) NextDatumID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextDatumID
	p.nextDatumID++
	return id
}

// Counts returns a snapshot of how many ids of each kind have been
// allocated so far, for audit records and tests.
type Counts struct {
	Facts    int
	Entities int
	Quotes   int
	Data     int
}

// Counts returns the current allocation counts (counter value minus 1).
func (p *Processor) Counts() Counts {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Counts{
		Facts:    p.nextFactID - 1,
		Entities: p.nextEntityID - 1,
		Quotes:   p.nextQuoteID - 1,
		Data:     p.nextDatumID - 1,
	}
}
