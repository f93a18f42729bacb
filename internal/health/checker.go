// Package health periodically verifies the ledger's hash chain and reports
// the node as degraded once verification keeps failing.
package health

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config holds health check configuration.
type Config struct {
	CheckInterval time.Duration
	CheckTimeout  time.Duration
	FailThreshold int
}

// Verifier checks the integrity of the ledger. ledger.Chain satisfies it.
type Verifier interface {
	Verify(ctx context.Context) error
}

// StatusFunc is called whenever the node switches between serving and degraded.
type StatusFunc func(serving bool)

// MetricsRecordFunc is an optional callback for recording check results.
type MetricsRecordFunc func(success bool)

// Checker runs periodic chain verification.
type Checker struct {
	chain     Verifier
	cfg       Config
	mu        sync.Mutex
	failCount int
	serving   bool
	onStatus  StatusFunc
	onMetrics MetricsRecordFunc
	logger    *zap.Logger
}

// New creates a new Checker. The node starts out serving.
func New(chain Verifier, cfg Config, logger *zap.Logger) *Checker {
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = time.Minute
	}
	if cfg.CheckTimeout == 0 {
		cfg.CheckTimeout = 30 * time.Second
	}
	if cfg.FailThreshold == 0 {
		cfg.FailThreshold = 3
	}
	return &Checker{
		chain:   chain,
		cfg:     cfg,
		serving: true,
		logger:  logger,
	}
}

// SetStatusFunc configures the status transition callback.
func (h *Checker) SetStatusFunc(fn StatusFunc) {
	h.onStatus = fn
}

// SetMetricsRecord configures the metrics recording callback.
func (h *Checker) SetMetricsRecord(fn MetricsRecordFunc) {
	h.onMetrics = fn
}

// Serving reports the current status.
func (h *Checker) Serving() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.serving
}

// Start runs the check loop until ctx is done.
func (h *Checker) Start(ctx context.Context) {
	ticker := time.NewTicker(h.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.Check(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Check verifies the chain once and returns whether it succeeded.
func (h *Checker) Check(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, h.cfg.CheckTimeout)
	defer cancel()

	err := h.chain.Verify(ctx)
	success := err == nil
	if h.onMetrics != nil {
		h.onMetrics(success)
	}

	h.mu.Lock()
	if success {
		h.failCount = 0
	} else {
		h.failCount++
	}
	count := h.failCount
	changed := false
	switch {
	case success && !h.serving:
		h.serving, changed = true, true
	case !success && h.serving && count >= h.cfg.FailThreshold:
		h.serving, changed = false, true
	}
	serving := h.serving
	h.mu.Unlock()

	if !success {
		h.logger.Warn("health: chain verification failed",
			zap.Int("fail_count", count), zap.Error(err))
	}
	if changed {
		if serving {
			h.logger.Info("health: recovered")
		} else {
			h.logger.Warn("health: degraded", zap.Int("fail_count", count))
		}
		if h.onStatus != nil {
			h.onStatus(serving)
		}
	}
	return success
}
