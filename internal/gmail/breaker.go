package gmail

import (
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/ajramos/gmail-inbox/internal/metrics"
)

// newBreaker opens after more than five consecutive provider failures, or a
// 60% failure ratio over at least ten requests, and probes again after 30s.
func newBreaker(name string, logger *zap.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		IsSuccessful: func(err error) bool {
			return !tripsBreaker(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
}

// execute runs fn behind the breaker, records the call and classifies the
// resulting error.
func (c *Client) execute(op string, fn func() error) error {
	start := time.Now()
	var err error
	if c.breaker != nil {
		_, err = c.breaker.Execute(func() (interface{}, error) {
			return nil, fn()
		})
	} else {
		err = fn()
	}
	err = classify(op, err)
	metrics.RecordGmailCall(op, outcome(err), time.Since(start))
	if err != nil && c.logger != nil {
		c.logger.Debug("gmail call failed", zap.String("op", op), zap.Error(err))
	}
	return err
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "open"
	case IsAuthError(err):
		return "auth"
	default:
		return "transport"
	}
}
