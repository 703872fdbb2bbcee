// Package confirm asks the user whether a recognized ingredient belongs on the list.
package confirm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teamalpha/aichef/internal/ingredient"
)

var (
	// ErrUnknownRequest is returned when resolving a request that is not pending
	ErrUnknownRequest = errors.New("unknown confirmation request")

	// ErrClosed is returned by a gate that has been closed
	ErrClosed = errors.New("confirmation gate closed")
)

// Decision is the user's answer to a confirmation request
type Decision int

const (
	Reject Decision = iota
	Accept
)

func (d Decision) String() string {
	if d == Accept {
		return "accept"
	}
	return "reject"
}

// Request is a recognized ingredient awaiting a decision
type Request struct {
	ID          string            `json:"id"`
	Label       ingredient.Label  `json:"label"`
	Origin      ingredient.Origin `json:"origin"`
	RequestedAt time.Time         `json:"requested_at"`
}

// Gate defines the interface for confirmation requests.
// Request blocks the caller until the decision arrives, ctx is done or the gate closes.
type Gate interface {
	Request(ctx context.Context, label ingredient.Label, origin ingredient.Origin) (Decision, error)
}

// AutoGate answers every request with the same decision
type AutoGate struct {
	Decision Decision
}

// Request implements Gate
func (a AutoGate) Request(ctx context.Context, label ingredient.Label, origin ingredient.Origin) (Decision, error) {
	if err := ctx.Err(); err != nil {
		return Reject, err
	}
	return a.Decision, nil
}

type pending struct {
	req      Request
	decision chan Decision
}

// Queue holds requests until a user resolves them, e.g. through the HTTP API
type Queue struct {
	mu      sync.Mutex
	pending map[string]*pending
	closed  bool
	notify  func(Request)
}

// NewQueue creates an empty queue
func NewQueue() *Queue {
	return &Queue{pending: make(map[string]*pending)}
}

// OnRequest registers a callback invoked whenever a new request is queued
func (q *Queue) OnRequest(fn func(Request)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.notify = fn
}

// Request implements Gate
func (q *Queue) Request(ctx context.Context, label ingredient.Label, origin ingredient.Origin) (Decision, error) {
	p := &pending{
		req: Request{
			ID:          uuid.NewString(),
			Label:       label,
			Origin:      origin,
			RequestedAt: time.Now(),
		},
		decision: make(chan Decision, 1),
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return Reject, ErrClosed
	}
	q.pending[p.req.ID] = p
	notify := q.notify
	q.mu.Unlock()

	if notify != nil {
		notify(p.req)
	}

	select {
	case d, ok := <-p.decision:
		if !ok {
			return Reject, ErrClosed
		}
		return d, nil
	case <-ctx.Done():
		q.mu.Lock()
		delete(q.pending, p.req.ID)
		q.mu.Unlock()
		return Reject, ctx.Err()
	}
}

// Pending returns the outstanding requests, oldest first
func (q *Queue) Pending() []Request {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Request, 0, len(q.pending))
	for _, p := range q.pending {
		out = append(out, p.req)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].RequestedAt.Before(out[j].RequestedAt)
	})
	return out
}

// Resolve delivers the user's decision for a pending request
func (q *Queue) Resolve(id string, d Decision) error {
	q.mu.Lock()
	p, ok := q.pending[id]
	if ok {
		delete(q.pending, id)
	}
	q.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRequest, id)
	}
	p.decision <- d
	return nil
}

// Close rejects all outstanding requests and refuses new ones
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	for id, p := range q.pending {
		close(p.decision)
		delete(q.pending, id)
	}
}
