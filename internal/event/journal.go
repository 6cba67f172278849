// Package event records what happened during a run as a gap-free sequence.
package event

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"crypto_backtest/internal/domain"
)

// Type classifies a journal entry.
type Type string

const (
	TypeSession     Type = "SESSION"
	TypePhase       Type = "PHASE"
	TypeOrder       Type = "ORDER"
	TypeRejection   Type = "REJECTION"
	TypeNotify      Type = "NOTIFY"
	TypeCancelled   Type = "CANCELLED"
	TypeRunFinished Type = "RUN_FINISHED"
)

// Event is one journal entry. Seq starts at 1 and has no gaps.
type Event struct {
	Seq     uint64      `json:"seq"`
	Type    Type        `json:"type"`
	Date    domain.Date `json:"date"`
	Symbol  string      `json:"symbol,omitempty"`
	OrderID string      `json:"order_id,omitempty"`
	Detail  string      `json:"detail,omitempty"`
}

// Journal is an append-only event log. Appends come from the run driver;
// reads may come from any goroutine.
type Journal struct {
	mu      sync.RWMutex
	events  []Event
	nextSeq uint64
}

// NewJournal creates an empty journal.
func NewJournal() *Journal {
	return &Journal{nextSeq: 1}
}

// Append assigns the next sequence number to ev and stores it.
func (j *Journal) Append(ev Event) Event {
	j.mu.Lock()
	defer j.mu.Unlock()

	ev.Seq = j.nextSeq
	j.nextSeq++
	j.events = append(j.events, ev)
	return ev
}

// Len returns the number of entries.
func (j *Journal) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.events)
}

// Events returns a copy of the entries, optionally filtered by type.
func (j *Journal) Events(types ...Type) []Event {
	j.mu.RLock()
	defer j.mu.RUnlock()

	out := make([]Event, 0, len(j.events))
	for _, ev := range j.events {
		if len(types) == 0 || hasType(types, ev.Type) {
			out = append(out, ev)
		}
	}
	return out
}

// Tail returns the last n entries.
func (j *Journal) Tail(n int) []Event {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if n > len(j.events) {
		n = len(j.events)
	}
	return append([]Event(nil), j.events[len(j.events)-n:]...)
}

// Replay feeds the entries to fn in order and fails on a sequence gap.
func Replay(events []Event, fn func(Event) error) error {
	next := uint64(1)
	if len(events) > 0 {
		next = events[0].Seq
	}
	for _, ev := range events {
		if ev.Seq != next {
			return fmt.Errorf("%w: journal gap, expected seq %d, got %d", domain.ErrInvalidArgument, next, ev.Seq)
		}
		if err := fn(ev); err != nil {
			return err
		}
		next++
	}
	return nil
}

// WriteFile writes the entries as indented JSON.
func (j *Journal) WriteFile(path string) error {
	b, err := json.MarshalIndent(j.Events(), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0644)
}

func hasType(types []Type, t Type) bool {
	for _, x := range types {
		if x == t {
			return true
		}
	}
	return false
}
