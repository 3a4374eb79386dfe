package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/medbridge/smart-relay/instrumentation"
	"github.com/medbridge/smart-relay/internal/util"
	"github.com/medbridge/smart-relay/statestore"
)

// tokenLogLength is the number of characters of a state token included
// in log lines. Enough to correlate entries without logging a value
// that is still redeemable.
const tokenLogLength = 8

// Store is an in-memory state registry. Expired entries are evicted by
// a background goroutine so an abandoned authorization attempt cannot
// grow the registry without bound.
type Store struct {
	mu     sync.RWMutex
	states map[string]*statestore.Entry

	// Lock-free count for metric collection
	statesCountAtomic atomic.Int64

	instrumentation *instrumentation.Instrumentation
	tracer          trace.Tracer
	meter           metric.Meter

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	logger          *slog.Logger
}

var _ statestore.Store = (*Store)(nil)

// New creates an in-memory store with the default cleanup interval
// (1 minute).
func New() *Store {
	return NewWithInterval(time.Minute)
}

// NewWithInterval creates an in-memory store with a custom cleanup
// interval. Zero or negative uses the default of 1 minute.
func NewWithInterval(cleanupInterval time.Duration) *Store {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}

	s := &Store{
		states:          make(map[string]*statestore.Entry),
		cleanupInterval: cleanupInterval,
		stopCleanup:     make(chan struct{}),
		logger:          slog.Default(),
	}

	go s.cleanupLoop()

	return s
}

// SetLogger sets the logger for the store
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// SetInstrumentation enables metric and trace collection. The live
// entry count is reported through an observable gauge backed by an
// atomic counter, so metric collection never takes the store lock.
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.mu.Lock()
	s.instrumentation = inst
	if inst != nil {
		s.tracer = inst.Tracer("statestore")
		s.meter = inst.Meter("statestore")
	}
	s.statesCountAtomic.Store(int64(len(s.states)))
	s.mu.Unlock()

	if inst != nil {
		if err := inst.RegisterStateCountCallback(func() int64 {
			return s.statesCountAtomic.Load()
		}); err != nil {
			s.logger.Warn("Failed to register state count callback", "error", err)
		}
	}
}

// Stop gracefully stops the cleanup goroutine
func (s *Store) Stop() {
	close(s.stopCleanup)
}

// Len returns the number of live entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.states)
}

// Save records a new state binding.
func (s *Store) Save(_ context.Context, entry *statestore.Entry) error {
	if entry == nil || entry.Token == "" {
		return fmt.Errorf("invalid state entry")
	}
	if entry.Issuer == "" {
		return fmt.Errorf("issuer is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.states[entry.Token] = entry
	s.statesCountAtomic.Store(int64(len(s.states)))
	s.logger.Debug("Saved state binding",
		"token_prefix", util.SafeTruncate(entry.Token, tokenLogLength),
		"issuer", entry.Issuer,
		"expires_at", entry.ExpiresAt)
	return nil
}

// Redeem atomically looks up and deletes a state binding. The delete
// happens under the write lock even when the entry turns out to be
// expired, so neither a replayed nor an expired token can ever be
// redeemed twice.
func (s *Store) Redeem(_ context.Context, token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("%w: empty token", statestore.ErrStateNotFound)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.states[token]
	if !ok {
		return "", statestore.ErrStateNotFound
	}

	delete(s.states, token)
	s.statesCountAtomic.Store(int64(len(s.states)))

	if !entry.ExpiresAt.IsZero() && !time.Now().Before(entry.ExpiresAt) {
		s.logger.Debug("Rejected expired state",
			"token_prefix", util.SafeTruncate(token, tokenLogLength))
		return "", fmt.Errorf("%w: expired", statestore.ErrStateNotFound)
	}

	s.logger.Debug("Redeemed state binding",
		"token_prefix", util.SafeTruncate(token, tokenLogLength),
		"issuer", entry.Issuer)
	return entry.Issuer, nil
}

func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCleanup:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

func (s *Store) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	cleaned := 0
	for token, entry := range s.states {
		if !entry.ExpiresAt.IsZero() && now.After(entry.ExpiresAt) {
			delete(s.states, token)
			cleaned++
		}
	}
	s.statesCountAtomic.Store(int64(len(s.states)))

	if cleaned > 0 {
		s.logger.Debug("Cleaned up expired state bindings",
			"count", cleaned,
			"remaining", len(s.states))
	}
}
