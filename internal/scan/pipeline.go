// Package scan turns camera frames and search queries into confirmed ingredient list entries.
//
// The camera path is a three-state machine. A frame is only accepted while the
// pipeline is Idle and scanning is Active; it moves the pipeline to Classifying,
// and a newly recognized ingredient moves it on to AwaitingConfirmation. Frames
// arriving in any other state are dropped, so at most one recognition is in
// flight and at most one confirmation is outstanding for the camera.
//
// The search path validates and normalizes a typed query, resolves it through
// the same gateway and then follows the same dedup and confirmation rules.
package scan

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teamalpha/aichef/internal/camera"
	"github.com/teamalpha/aichef/internal/confirm"
	"github.com/teamalpha/aichef/internal/ingredient"
	"github.com/teamalpha/aichef/internal/recognition"
)

// DefaultClassifyTimeout bounds a single gateway call
const DefaultClassifyTimeout = 30 * time.Second

// ErrClosed is returned by Search after Close
var ErrClosed = errors.New("scan pipeline closed")

// State is the camera path state
type State int

const (
	Idle State = iota
	Classifying
	AwaitingConfirmation
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Classifying:
		return "classifying"
	case AwaitingConfirmation:
		return "awaiting_confirmation"
	default:
		return "unknown"
	}
}

// FrameSource is the part of camera.Source the pipeline drives
type FrameSource interface {
	Subscribe(c camera.Consumer)
	SetScanState(state camera.ScanState)
}

// Config holds pipeline settings
type Config struct {
	ClassifyTimeout time.Duration
	Logger          *slog.Logger
}

// Stats counts pipeline outcomes for instrumentation
type Stats struct {
	FramesAccepted   uint64 `json:"frames_accepted"`
	FramesDropped    uint64 `json:"frames_dropped"`
	NotFound         uint64 `json:"not_found"`
	Duplicates       uint64 `json:"duplicates"`
	GatewayFailures  uint64 `json:"gateway_failures"`
	Accepted         uint64 `json:"accepted"`
	Rejected         uint64 `json:"rejected"`
	SearchesRejected uint64 `json:"searches_rejected"`
}

// Pipeline orchestrates recognition, dedup and confirmation
type Pipeline struct {
	gateway recognition.Gateway
	ledger  *ingredient.Ledger
	gate    confirm.Gate
	logger  *slog.Logger
	timeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	state     State
	scanState camera.ScanState
	source    FrameSource
	closed    bool

	framesAccepted   atomic.Uint64
	framesDropped    atomic.Uint64
	notFound         atomic.Uint64
	duplicates       atomic.Uint64
	gatewayFailures  atomic.Uint64
	accepted         atomic.Uint64
	rejected         atomic.Uint64
	searchesRejected atomic.Uint64
}

// NewPipeline creates an idle, active pipeline
func NewPipeline(gateway recognition.Gateway, ledger *ingredient.Ledger, gate confirm.Gate, cfg Config) *Pipeline {
	if cfg.ClassifyTimeout <= 0 {
		cfg.ClassifyTimeout = DefaultClassifyTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pipeline{
		gateway:   gateway,
		ledger:    ledger,
		gate:      gate,
		logger:    cfg.Logger,
		timeout:   cfg.ClassifyTimeout,
		ctx:       ctx,
		cancel:    cancel,
		state:     Idle,
		scanState: camera.Active,
	}
}

// Attach subscribes the pipeline to a frame source and aligns its scan state
func (p *Pipeline) Attach(src FrameSource) {
	p.mu.Lock()
	p.source = src
	scanState := p.scanState
	p.mu.Unlock()

	src.SetScanState(scanState)
	src.Subscribe(p)
}

// Submit implements camera.Consumer. It never blocks: the frame is dispatched
// for classification when the pipeline is idle and scanning, and dropped otherwise.
func (p *Pipeline) Submit(frame camera.Frame) bool {
	p.mu.Lock()
	if p.closed || p.scanState != camera.Active || p.state != Idle || !frame.Valid() {
		p.mu.Unlock()
		p.framesDropped.Add(1)
		return false
	}
	p.state = Classifying
	p.wg.Add(1)
	p.mu.Unlock()

	p.framesAccepted.Add(1)
	go p.classify(frame.Clone())
	return true
}

func (p *Pipeline) classify(frame camera.Frame) {
	defer p.wg.Done()
	defer p.setState(Idle)

	ctx, cancel := context.WithTimeout(p.ctx, p.timeout)
	label, err := p.gateway.ClassifyFrame(ctx, frame)
	cancel()

	label, outcome := p.screen(label, err, "frame", "sequence", frame.Sequence)
	if outcome != OutcomePending {
		return
	}

	p.setState(AwaitingConfirmation)
	p.confirm(label, ingredient.OriginCamera)
}

// Search resolves a typed query and, for a new ingredient, requests confirmation.
// The confirmation is awaited in the background; an accepted ingredient is added
// to the ledger when the user decides. Malformed queries return
// ingredient.ErrMalformedQuery without contacting the gateway.
func (p *Pipeline) Search(ctx context.Context, query string) (SearchResult, error) {
	label, err := ingredient.ParseQuery(query)
	if err != nil {
		p.searchesRejected.Add(1)
		return SearchResult{}, err
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return SearchResult{}, ErrClosed
	}
	p.wg.Add(1)
	p.mu.Unlock()
	defer p.wg.Done()

	gctx, cancel := context.WithTimeout(ctx, p.timeout)
	resolved, err := p.gateway.ResolveQuery(gctx, label)
	cancel()

	resolved, outcome := p.screen(resolved, err, "search", "query", label)
	result := SearchResult{Query: label, Label: resolved, Outcome: outcome}
	if outcome != OutcomePending {
		return result, nil
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.confirm(resolved, ingredient.OriginSearch)
	}()
	return result, nil
}

// screen maps a gateway reply to an outcome. Gateway failures count as not found.
// Both entry paths go through here so normalization and dedup cannot diverge.
func (p *Pipeline) screen(label ingredient.Label, err error, path string, attrs ...any) (ingredient.Label, Outcome) {
	if errors.Is(err, recognition.ErrNotFound) {
		p.notFound.Add(1)
		p.logger.Debug("ingredient not found", append([]any{"path", path}, attrs...)...)
		return "", OutcomeNotFound
	}
	if err != nil {
		p.gatewayFailures.Add(1)
		p.logger.Error("Classification failed", append([]any{"path", path, "error", err}, attrs...)...)
		return "", OutcomeNotFound
	}

	label, err = ingredient.ParseLabel(string(label))
	if err != nil {
		p.gatewayFailures.Add(1)
		p.logger.Error("Gateway returned a malformed label", append([]any{"path", path, "error", err}, attrs...)...)
		return "", OutcomeNotFound
	}

	if p.ledger.Contains(label) {
		p.duplicates.Add(1)
		p.logger.Debug("ingredient already listed", append([]any{"path", path, "label", label}, attrs...)...)
		return label, OutcomeDuplicate
	}
	return label, OutcomePending
}

// confirm blocks until the user decides. A gate error counts as a rejection.
func (p *Pipeline) confirm(label ingredient.Label, origin ingredient.Origin) {
	decision, err := p.gate.Request(p.ctx, label, origin)
	if err != nil {
		p.logger.Warn("Confirmation abandoned", "label", label, "origin", origin, "error", err)
		decision = confirm.Reject
	}

	if decision != confirm.Accept {
		p.rejected.Add(1)
		return
	}
	p.accepted.Add(1)
	if p.ledger.Add(label, origin) {
		p.logger.Info("Ingredient added", "label", label, "origin", origin)
	}
}

func (p *Pipeline) setState(next State) {
	p.mu.Lock()
	prev := p.state
	p.state = next
	p.mu.Unlock()
	if prev != next {
		p.logger.Debug("scan pipeline transition", "from", prev.String(), "to", next.String())
	}
}

// SetScanState pauses or resumes the camera path, forwarding to the attached source
func (p *Pipeline) SetScanState(state camera.ScanState) {
	p.mu.Lock()
	p.scanState = state
	src := p.source
	p.mu.Unlock()

	if src != nil {
		src.SetScanState(state)
	}
}

// ToggleScanState flips between Active and Paused and returns the new state
func (p *Pipeline) ToggleScanState() camera.ScanState {
	next := camera.Paused
	if p.ScanState() == camera.Paused {
		next = camera.Active
	}
	p.SetScanState(next)
	return next
}

// ScanState returns the current scan state
func (p *Pipeline) ScanState() camera.ScanState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scanState
}

// State returns the camera path state
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Stats returns the outcome counters
func (p *Pipeline) Stats() Stats {
	return Stats{
		FramesAccepted:   p.framesAccepted.Load(),
		FramesDropped:    p.framesDropped.Load(),
		NotFound:         p.notFound.Load(),
		Duplicates:       p.duplicates.Load(),
		GatewayFailures:  p.gatewayFailures.Load(),
		Accepted:         p.accepted.Load(),
		Rejected:         p.rejected.Load(),
		SearchesRejected: p.searchesRejected.Load(),
	}
}

// Close abandons outstanding confirmations and waits for in-flight work
func (p *Pipeline) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
}
