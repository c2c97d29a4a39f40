// Package ratelimit implements the pacing, rate-limit signal parsing and
// fan-out limiting used to stay under the upstream API's request budget.
//
// The upstream reports throttling as HTTP 429 with either a Retry-After
// header or a textual "wait N seconds" hint in the body. A throttled call only
// suspends the goroutine that received it; siblings keep running.
package ratelimit

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// MaxRetryAfter caps any wait advertised by the upstream.
const MaxRetryAfter = 5 * time.Minute

// bodyHints match the wait hints the upstream embeds in 429 bodies, e.g.
// "Please wait 10 seconds" or "retry after 3s".
var bodyHints = []*regexp.Regexp{
	regexp.MustCompile(`(?i)wait\s+(\d+(?:\.\d+)?)\s*(?:s\b|sec|second)`),
	regexp.MustCompile(`(?i)retry\s+(?:again\s+)?(?:in|after)\s+(\d+(?:\.\d+)?)\s*(?:s\b|sec|second)`),
}

// Signal describes where a rate-limit wait came from.
type Signal string

const (
	// SignalHeader means the wait was taken from the Retry-After header.
	SignalHeader Signal = "header"

	// SignalBody means the wait was taken from a hint in the response body.
	SignalBody Signal = "body"

	// SignalNone means the response carried no usable hint.
	SignalNone Signal = "none"
)

// RetryAfter extracts the wait advertised by a throttled response. The
// header may be delta-seconds or an HTTP date. When neither
// the header nor the body carries a hint, SignalNone is returned.
func RetryAfter(headers http.Header, body []byte) (time.Duration, Signal) {
	if d, ok := parseHeader(headers.Get("Retry-After"), time.Now()); ok {
		return clamp(d), SignalHeader
	}
	if d, ok := parseBody(body); ok {
		return clamp(d), SignalBody
	}
	return 0, SignalNone
}

func parseHeader(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs * float64(time.Second)), true
	}
	if at, err := http.ParseTime(value); err == nil {
		d := at.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}

func parseBody(body []byte) (time.Duration, bool) {
	if len(body) == 0 {
		return 0, false
	}
	for _, re := range bodyHints {
		m := re.FindSubmatch(body)
		if m == nil {
			continue
		}
		secs, err := strconv.ParseFloat(string(m[1]), 64)
		if err != nil {
			continue
		}
		return time.Duration(secs * float64(time.Second)), true
	}
	return 0, false
}

func clamp(d time.Duration) time.Duration {
	if d > MaxRetryAfter {
		return MaxRetryAfter
	}
	return d
}
