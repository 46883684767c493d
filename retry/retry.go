// Package retry wraps fallible operations with bounded or unbounded
// exponential backoff. Every network call in the process goes through Do so
// the retry policy is visible at each call site.
package retry

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Class is the retry classification of an error.
type Class int

const (
	// ClassUnknown errors are logged and propagated without retry; unknown
	// failure modes fail fast.
	ClassUnknown Class = iota
	// ClassTransient covers network timeouts, resets and throttling.
	ClassTransient
	// ClassRateLimited is retried like ClassTransient but logged separately.
	ClassRateLimited
	// ClassFatal covers malformed requests, unknown symbols and auth
	// failures; propagated immediately.
	ClassFatal
)

// Classifier maps an operation error to a retry class.
type Classifier func(error) Class

// ErrRetriesExhausted is returned when a bounded policy runs out of attempts.
var ErrRetriesExhausted = errors.New("retries exhausted")

// Policy controls the backoff schedule. MaxRetries < 0 retries forever.
type Policy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	BackoffFactor float64
	MaxDelay      time.Duration
}

// DefaultPolicy matches the schedule used for all exchange and model calls:
// unbounded, 1s initial delay doubling up to an hour.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:    -1,
		InitialDelay:  time.Second,
		BackoffFactor: 2,
		MaxDelay:      time.Hour,
	}
}

// Delay returns the wait before retry number attempt (1-based):
// min(initial * factor^(attempt-1), max).
func (p Policy) Delay(attempt int) time.Duration {
	d := float64(p.InitialDelay) * math.Pow(p.BackoffFactor, float64(attempt-1))
	if max := float64(p.MaxDelay); d > max {
		d = max
	}
	return time.Duration(d)
}

// Do runs op, retrying per policy when classify reports the error as
// transient or rate-limited. The label identifies the operation context
// (symbol, endpoint) in retry reports. On exhaustion of a bounded policy the
// zero value and ErrRetriesExhausted are returned rather than the last
// error. Sleeping is cooperative: cancellation of ctx ends the wait and
// returns ctx.Err().
func Do[T any](ctx context.Context, log zerolog.Logger, label string, p Policy, classify Classifier, op func(context.Context) (T, error)) (T, error) {
	var zero T
	if classify == nil {
		classify = Classify
	}

	attempt := 0
	for p.MaxRetries < 0 || attempt <= p.MaxRetries {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}

		switch classify(err) {
		case ClassTransient, ClassRateLimited:
			attempt++
			if p.MaxRetries >= 0 && attempt > p.MaxRetries {
				log.Error().Str("op", label).Int("retries", p.MaxRetries).
					Msg("operation failed after max retries")
				return zero, ErrRetriesExhausted
			}
			wait := p.Delay(attempt)
			evt := log.Warn().Str("op", label).Int("retry", attempt).Dur("wait", wait).Err(err)
			if classify(err) == ClassRateLimited {
				evt.Msg("rate limit hit, backing off")
			} else {
				evt.Msg("transient error, retrying")
			}
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return zero, ctx.Err()
			}
		case ClassFatal:
			return zero, err
		default:
			log.Error().Str("op", label).Err(err).Msg("unclassified error, not retrying")
			return zero, err
		}
	}
	return zero, ErrRetriesExhausted
}

// transientMarkers are error substrings treated as retryable network
// failures.
var transientMarkers = []string{
	"EOF",
	"timeout",
	"deadline exceeded",
	"connection reset",
	"connection refused",
	"forcibly closed",
	"temporary failure",
	"no such host",
	"broken pipe",
	"network is unreachable",
}

var rateLimitMarkers = []string{
	"too many requests",
	"rate limit",
	"429",
	"-1003", // binance WAF ban code
}

var fatalMarkers = []string{
	"invalid symbol",
	"bad symbol",
	"bad request",
	"unauthorized",
	"invalid api-key",
	"authentication",
}

// Classify is the default substring-based classifier shared by the exchange
// and model clients.
func Classify(err error) Class {
	if err == nil {
		return ClassUnknown
	}
	msg := strings.ToLower(err.Error())
	for _, m := range rateLimitMarkers {
		if strings.Contains(msg, m) {
			return ClassRateLimited
		}
	}
	for _, m := range fatalMarkers {
		if strings.Contains(msg, m) {
			return ClassFatal
		}
	}
	for _, m := range transientMarkers {
		if strings.Contains(msg, strings.ToLower(m)) {
			return ClassTransient
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTransient
	}
	return ClassUnknown
}
