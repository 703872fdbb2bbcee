package ingredient

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Origin describes how an ingredient entered the ledger
type Origin string

const (
	OriginCamera Origin = "camera"
	OriginSearch Origin = "search"
)

// Entry is a single ingredient on the list
type Entry struct {
	Label    Label     `json:"label"`
	Origin   Origin    `json:"origin"`
	Checked  bool      `json:"checked"`
	AddedAt  time.Time `json:"added_at"`
	Sequence uint64    `json:"sequence"`
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type defaultTimeSource struct{}

func (defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Ledger is the deduplicated set of accepted ingredients for a session.
// It is safe for concurrent use. Adding a label that is already present is a no-op.
type Ledger struct {
	mu      sync.RWMutex
	entries map[Label]*Entry
	order   []Label
	nextSeq uint64

	// persistMu is taken before mu by every mutation and held until the
	// store write completes, so the store sees changes in memory order
	persistMu  sync.Mutex
	store      Store
	timeSource TimeSource
	logger     *slog.Logger
}

// NewLedger creates an empty in-memory ledger
func NewLedger() *Ledger {
	return &Ledger{
		entries:    make(map[Label]*Entry),
		timeSource: defaultTimeSource{},
		logger:     slog.Default(),
	}
}

// NewLedgerFromStore creates a ledger restored from the store that writes changes through to it
func NewLedgerFromStore(store Store, logger *slog.Logger) (*Ledger, error) {
	l := NewLedger()
	if logger != nil {
		l.logger = logger
	}
	l.store = store

	entries, err := store.LoadEntries()
	if err != nil {
		return nil, fmt.Errorf("loading ledger entries: %w", err)
	}
	for _, e := range entries {
		if !e.Label.Valid() {
			l.logger.Warn("Skipping malformed stored ingredient", "label", e.Label)
			continue
		}
		if _, ok := l.entries[e.Label]; ok {
			continue
		}
		entry := e
		l.entries[e.Label] = &entry
		l.order = append(l.order, e.Label)
		if e.Sequence >= l.nextSeq {
			l.nextSeq = e.Sequence + 1
		}
	}
	return l, nil
}

// SetTimeSource replaces the clock used to stamp new entries
func (l *Ledger) SetTimeSource(ts TimeSource) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.timeSource = ts
}

// Contains reports whether the label is already on the list
func (l *Ledger) Contains(label Label) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.entries[label]
	return ok
}

// Add inserts the label unless it is present or malformed.
// It returns true when the label was inserted.
func (l *Ledger) Add(label Label, origin Origin) bool {
	if !label.Valid() {
		l.logger.Warn("Refusing malformed ingredient", "label", label)
		return false
	}

	l.persistMu.Lock()
	defer l.persistMu.Unlock()

	l.mu.Lock()
	if _, ok := l.entries[label]; ok {
		l.mu.Unlock()
		return false
	}
	entry := &Entry{
		Label:    label,
		Origin:   origin,
		AddedAt:  l.timeSource.Now(),
		Sequence: l.nextSeq,
	}
	l.nextSeq++
	l.entries[label] = entry
	l.order = append(l.order, label)
	saved := *entry
	l.mu.Unlock()

	l.persist(saved)
	return true
}

// Remove deletes the label from the list, returning false if it was absent
func (l *Ledger) Remove(label Label) bool {
	l.persistMu.Lock()
	defer l.persistMu.Unlock()

	l.mu.Lock()
	if _, ok := l.entries[label]; !ok {
		l.mu.Unlock()
		return false
	}
	delete(l.entries, label)
	for i, existing := range l.order {
		if existing == label {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
	l.mu.Unlock()

	if l.store != nil {
		if err := l.store.DeleteEntry(label); err != nil {
			l.logger.Error("Failed to delete stored ingredient", "label", label, "error", err)
		}
	}
	return true
}

// SetChecked marks a listed ingredient as ticked off (or not)
func (l *Ledger) SetChecked(label Label, checked bool) bool {
	l.persistMu.Lock()
	defer l.persistMu.Unlock()

	l.mu.Lock()
	entry, ok := l.entries[label]
	if !ok {
		l.mu.Unlock()
		return false
	}
	entry.Checked = checked
	saved := *entry
	l.mu.Unlock()

	l.persist(saved)
	return true
}

// Snapshot returns the entries in insertion order
func (l *Ledger) Snapshot() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, 0, len(l.order))
	for _, label := range l.order {
		out = append(out, *l.entries[label])
	}
	return out
}

// Labels returns the listed labels in insertion order
func (l *Ledger) Labels() []Label {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Label, len(l.order))
	copy(out, l.order)
	return out
}

// Len returns the number of listed ingredients
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.order)
}

func (l *Ledger) persist(entry Entry) {
	if l.store == nil {
		return
	}
	if err := l.store.SaveEntry(&entry); err != nil {
		l.logger.Error("Failed to store ingredient", "label", entry.Label, "error", err)
	}
}
