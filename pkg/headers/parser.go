// Package headers provides parsing of Xero API response headers for rate
// limit information.
package headers

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Problem values reported by Xero's X-Rate-Limit-Problem header.
const (
	ProblemMinute    = "minute"
	ProblemDay       = "daily"
	ProblemAppMinute = "appminute"
)

// Snapshot holds the rate limit state extracted from one Xero response.
// Remaining counts are -1 when the corresponding header was absent.
type Snapshot struct {
	// Problem identifies which limit was hit on a 429 response. Empty on
	// successful responses.
	Problem string
	// RetryAfter is how long Xero asks the caller to wait before retrying.
	// Zero when no Retry-After header was present.
	RetryAfter time.Duration

	MinuteRemaining    int64
	DayRemaining       int64
	AppMinuteRemaining int64
}

// Parse extracts rate limit information from Xero response headers.
//
// Xero sends:
//
//	Retry-After: 17
//	X-Rate-Limit-Problem: minute
//	X-MinLimit-Remaining: 42
//	X-DayLimit-Remaining: 4312
//	X-AppMinLimit-Remaining: 9950
func Parse(h http.Header) Snapshot {
	return Snapshot{
		Problem:            strings.ToLower(strings.TrimSpace(h.Get("X-Rate-Limit-Problem"))),
		RetryAfter:         parseRetryAfter(h.Get("Retry-After")),
		MinuteRemaining:    parseCountHeader(h, "X-MinLimit-Remaining"),
		DayRemaining:       parseCountHeader(h, "X-DayLimit-Remaining"),
		AppMinuteRemaining: parseCountHeader(h, "X-AppMinLimit-Remaining"),
	}
}

// Exhausted reports whether any tracked limit has no calls left.
func (s Snapshot) Exhausted() bool {
	return s.MinuteRemaining == 0 || s.DayRemaining == 0 || s.AppMinuteRemaining == 0
}

// NearLimit reports whether the per-minute remaining count has dropped to or
// below threshold. Absent headers never trigger.
func (s Snapshot) NearLimit(threshold int64) bool {
	return s.MinuteRemaining >= 0 && s.MinuteRemaining <= threshold
}

func parseRetryAfter(val string) time.Duration {
	val = strings.TrimSpace(val)
	if val == "" {
		return 0
	}

	// Xero sends an integer number of seconds, but tolerate the HTTP-date
	// form allowed by RFC 7231.
	if secs, err := strconv.ParseInt(val, 10, 64); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(val); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func parseCountHeader(h http.Header, key string) int64 {
	val := strings.TrimSpace(h.Get(key))
	if val == "" {
		return -1
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil || n < 0 {
		return -1
	}
	return n
}
