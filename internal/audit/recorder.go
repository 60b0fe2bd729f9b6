package audit

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// RecorderConfig tunes the background writer.
type RecorderConfig struct {
	WriteTimeout    time.Duration
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

// DefaultRecorderConfig returns the production defaults.
func DefaultRecorderConfig() RecorderConfig {
	return RecorderConfig{
		WriteTimeout:    5 * time.Second,
		BreakerFailures: 5,
		BreakerCooldown: 30 * time.Second,
	}
}

// Recorder writes audit entries in the background. A write never blocks the
// caller and a failed write is logged and dropped, never retried.
type Recorder struct {
	store   Store
	logger  *logrus.Logger
	breaker *gobreaker.CircuitBreaker
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewRecorder creates a recorder that writes to store.
func NewRecorder(store Store, logger *logrus.Logger, cfg RecorderConfig) *Recorder {
	defaults := DefaultRecorderConfig()
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = defaults.BreakerFailures
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = defaults.BreakerCooldown
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "audit-store",
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Audit store circuit breaker changed state")
		},
	})

	return &Recorder{
		store:   store,
		logger:  logger,
		breaker: breaker,
		timeout: cfg.WriteTimeout,
	}
}

// Record schedules entry for writing and returns immediately.
func (r *Recorder) Record(entry *Entry) {
	if entry == nil {
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.write(entry)
	}()
}

func (r *Recorder) write(entry *Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	_, err := r.breaker.Execute(func() (interface{}, error) {
		return nil, r.store.Save(ctx, entry)
	})
	if err != nil {
		r.logger.WithError(err).WithFields(logrus.Fields{
			"audit_id":     entry.ID,
			"kind":         string(entry.Kind),
			"encounter_id": entry.EncounterID,
		}).Warn("Failed to write audit log entry")
		return
	}

	r.logger.WithFields(logrus.Fields{
		"audit_id": entry.ID,
		"kind":     string(entry.Kind),
	}).Debug("Audit log entry written")
}

// Wait blocks until every scheduled write has finished.
func (r *Recorder) Wait() {
	r.wg.Wait()
}

// State reports the circuit breaker state.
func (r *Recorder) State() gobreaker.State {
	return r.breaker.State()
}
