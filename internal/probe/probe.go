package probe

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Result is the outcome of a single probe.
//
// Fields:
//   - StatusCode: HTTP status code when a response arrived; 0 for transport, DNS, TLS
//     and timeout failures.
//   - Error: empty on success, otherwise a short human-readable cause.
type Result struct {
	Success    bool
	StatusCode int
	Duration   time.Duration
	Error      string
}

// Checker performs exactly one check for a given target URL. Implementations
// never retry and never return an error: every failure is encoded in Result.
type Checker interface {
	Check(ctx context.Context, target string) Result
}

// StatusRange is an inclusive range of accepted HTTP status codes.
type StatusRange struct {
	Min int
	Max int
}

var DefaultAccept = StatusRange{Min: 200, Max: 399}

func (r StatusRange) Contains(code int) bool {
	return code >= r.Min && code <= r.Max
}

func (r StatusRange) String() string {
	if r.Min == r.Max {
		return strconv.Itoa(r.Min)
	}
	return fmt.Sprintf("%d-%d", r.Min, r.Max)
}

// ParseStatusRange accepts "200-399" or a single code such as "200".
func ParseStatusRange(s string) (StatusRange, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultAccept, nil
	}
	lo, hi, found := strings.Cut(s, "-")
	min, err := strconv.Atoi(strings.TrimSpace(lo))
	if err != nil {
		return StatusRange{}, fmt.Errorf("status range %q: %w", s, err)
	}
	max := min
	if found {
		if max, err = strconv.Atoi(strings.TrimSpace(hi)); err != nil {
			return StatusRange{}, fmt.Errorf("status range %q: %w", s, err)
		}
	}
	if min < 100 || max > 599 || min > max {
		return StatusRange{}, fmt.Errorf("status range %q out of bounds", s)
	}
	return StatusRange{Min: min, Max: max}, nil
}
