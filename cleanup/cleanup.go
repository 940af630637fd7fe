// Package cleanup implements the long-running background scanner that
// bounds storage growth by deleting (optionally archiving first) sagas
// whose retention window has elapsed.
package cleanup

import (
	"context"
	"sync"
	"time"

	"sagaforge/eventlog"
	"sagaforge/logging"
	"sagaforge/message"
	"sagaforge/sagastate"
)

// Status is the fold-derived classification cleanup uses to decide
// eligibility. It mirrors sagastate.State but only the three buckets the
// retention policy cares about.
type Status int

const (
	StatusActive Status = iota
	StatusCompleted
	StatusAborted
)

// ArchiveFunc is invoked before deletion when configured. A failed archive
// emits an error event but, by default, deletion still proceeds.
type ArchiveFunc func(ctx context.Context, sagaID string, messages []message.Message) error

// PredicateFunc overrides the default age/status eligibility policy
// entirely when supplied.
type PredicateFunc func(sagaID string, messages []message.Message, status Status) bool

// OnCleanupFunc observes the outcome of one scan.
type OnCleanupFunc func(deleted, archived int)

// OnErrorFunc observes a per-saga error encountered during a scan; it does
// not stop the scan.
type OnErrorFunc func(err error)

// Config configures a Service. Zero-value duration fields are replaced with
// their documented defaults by New.
type Config struct {
	CompletedRetention time.Duration
	AbortedRetention   time.Duration
	ScanInterval       time.Duration
	ArchiveHook        ArchiveFunc
	CustomPredicate    PredicateFunc
	OnCleanup          OnCleanupFunc
	OnError            OnErrorFunc
}

const (
	defaultCompletedRetention = 7 * 24 * time.Hour
	defaultAbortedRetention   = 30 * 24 * time.Hour
	defaultScanInterval       = time.Hour
)

func (c Config) withDefaults() Config {
	if c.CompletedRetention <= 0 {
		c.CompletedRetention = defaultCompletedRetention
	}
	if c.AbortedRetention <= 0 {
		c.AbortedRetention = defaultAbortedRetention
	}
	if c.ScanInterval <= 0 {
		c.ScanInterval = defaultScanInterval
	}
	return c
}

// Service is the periodic scanner. Its scan runs on a single logical
// worker; Start is idempotent and Stop drains any in-flight scan.
type Service struct {
	log    eventlog.Log
	cfg    Config
	logger logging.ILogger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	scanMu sync.Mutex // serializes RunCleanup against the background loop
}

// New constructs a Service backed by log.
func New(log eventlog.Log, cfg Config, logger logging.ILogger) *Service {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return &Service{log: log, cfg: cfg.withDefaults(), logger: logger}
}

// Start launches periodic scanning. Idempotent if already running.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	go s.loop(ctx, s.stopCh, s.doneCh)
}

// Stop halts the next scheduled scan and drains the in-flight one, if any.
// No-op if not running.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	stopCh, doneCh := s.stopCh, s.doneCh
	s.running = false
	s.mu.Unlock()

	close(stopCh)
	<-doneCh
}

func (s *Service) loop(ctx context.Context, stopCh, doneCh chan struct{}) {
	defer close(doneCh)
	ticker := time.NewTicker(s.cfg.ScanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunCleanup(ctx)
		}
	}
}

// RunCleanup triggers one scan on demand, blocking until it completes.
func (s *Service) RunCleanup(ctx context.Context) {
	s.scanMu.Lock()
	defer s.scanMu.Unlock()

	ids, err := s.log.GetActiveSagaIds(ctx)
	if err != nil {
		s.reportError(err)
		return
	}

	var deleted, archived int
	for _, id := range ids {
		d, a, err := s.scanOne(ctx, id)
		if err != nil {
			s.reportError(err)
			continue
		}
		if d {
			deleted++
		}
		if a {
			archived++
		}
	}

	if s.cfg.OnCleanup != nil {
		s.cfg.OnCleanup(deleted, archived)
	}
}

// scanOne evaluates and, if eligible, archives and deletes a single saga.
func (s *Service) scanOne(ctx context.Context, sagaID string) (deleted, archived bool, err error) {
	msgs, err := s.log.GetMessages(ctx, sagaID)
	if err != nil {
		return false, false, err
	}
	if len(msgs) == 0 {
		return false, false, nil
	}

	state, err := sagastate.Fold(msgs)
	if err != nil {
		return false, false, err
	}
	status := classify(state)

	eligible := s.isEligible(sagaID, msgs, status)
	if !eligible {
		return false, false, nil
	}

	if s.cfg.ArchiveHook != nil {
		if archErr := s.cfg.ArchiveHook(ctx, sagaID, msgs); archErr != nil {
			s.reportError(archErr)
		} else {
			archived = true
		}
	}

	if err := s.log.DeleteSaga(ctx, sagaID); err != nil {
		return false, archived, err
	}
	return true, archived, nil
}

func (s *Service) isEligible(sagaID string, msgs []message.Message, status Status) bool {
	if s.cfg.CustomPredicate != nil {
		return s.cfg.CustomPredicate(sagaID, msgs, status)
	}

	age := time.Since(msgs[len(msgs)-1].Timestamp)
	switch status {
	case StatusCompleted:
		return age > s.cfg.CompletedRetention
	case StatusAborted:
		return age > s.cfg.AbortedRetention
	default:
		return false
	}
}

func (s *Service) reportError(err error) {
	if s.cfg.OnError != nil {
		s.cfg.OnError(err)
	}
}

// classify maps a folded State onto the three buckets the retention policy
// distinguishes. A saga that is aborted but not yet fully compensated is
// still "active" from cleanup's point of view: compensation may still be
// retried, so it must not be swept away under the aborted retention clock
// until it reaches the terminal aborted state.
func classify(state *sagastate.State) Status {
	switch {
	case state.SagaCompleted:
		return StatusCompleted
	case state.SagaAborted && state.IsTerminal():
		return StatusAborted
	default:
		return StatusActive
	}
}
