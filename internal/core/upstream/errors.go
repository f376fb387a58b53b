package upstream

import (
	"errors"
	"fmt"
	"time"

	"github.com/ev119/erlocator/internal/core"
)

// ErrQuotaExceeded is matched by every quota failure from the realtime upstream.
var ErrQuotaExceeded = errors.New("realtime quota exceeded")

// QuotaExceededError reports that a region pair is in quota cool-down. Blocked
// is true when the call was refused locally without touching the network.
type QuotaExceededError struct {
	Pair       core.RegionPair
	Blocked    bool
	RetryAfter time.Duration
}

func (e *QuotaExceededError) Error() string {
	if e.Blocked {
		return fmt.Sprintf("realtime quota exceeded for %s: pair is blocked", e.Pair)
	}
	return fmt.Sprintf("realtime quota exceeded for %s", e.Pair)
}

func (e *QuotaExceededError) Is(target error) bool {
	return target == ErrQuotaExceeded
}

// IsQuotaExceeded reports whether err carries the quota signal.
func IsQuotaExceeded(err error) bool {
	return errors.Is(err, ErrQuotaExceeded)
}

// UpstreamError is a non-quota realtime failure: transport, status or decode.
type UpstreamError struct {
	Op         string
	StatusCode int
	ResultCode string
	Err        error
}

func (e *UpstreamError) Error() string {
	msg := "realtime " + e.Op
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" status %d", e.StatusCode)
	}
	if e.ResultCode != "" {
		msg += " result " + e.ResultCode
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// BaseLookupError is a failure of the facility search upstream.
type BaseLookupError struct {
	StatusCode int
	ResultCode string
	Err        error
}

func (e *BaseLookupError) Error() string {
	msg := "facility lookup failed"
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" status %d", e.StatusCode)
	}
	if e.ResultCode != "" {
		msg += " result " + e.ResultCode
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *BaseLookupError) Unwrap() error {
	return e.Err
}
