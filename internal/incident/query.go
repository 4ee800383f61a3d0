package incident

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hamed0406/uptimewatch/internal/domain"
)

type SortKey string

const (
	SortRecent   SortKey = "recent"
	SortDuration SortKey = "duration"
	SortMonitor  SortKey = "monitor"
	SortChecks   SortKey = "checks"
)

func ParseSortKey(s string) (SortKey, error) {
	switch k := SortKey(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return SortRecent, nil
	case SortRecent, SortDuration, SortMonitor, SortChecks:
		return k, nil
	default:
		return "", fmt.Errorf("unknown sort key %q", s)
	}
}

// Query narrows and orders a list of incidents.
type Query struct {
	Text   string
	Status domain.IncidentStatus
	Sort   SortKey
	Desc   bool
}

// Filter keeps incidents matching Status (when set) whose monitor name, URL
// or error text contains Text, case-insensitively.
func Filter(incidents []domain.Incident, q Query) []domain.Incident {
	needle := strings.ToLower(strings.TrimSpace(q.Text))
	out := make([]domain.Incident, 0, len(incidents))
	for _, inc := range incidents {
		if q.Status != "" && inc.Status != q.Status {
			continue
		}
		if needle != "" && !matches(inc, needle) {
			continue
		}
		out = append(out, inc)
	}
	return out
}

func matches(inc domain.Incident, needle string) bool {
	for _, hay := range []string{inc.MonitorName, inc.MonitorURL, inc.FirstError, inc.LastError} {
		if strings.Contains(strings.ToLower(hay), needle) {
			return true
		}
	}
	return false
}

// Sort orders incidents in place. Ties fall back to start time, then ID.
func Sort(incidents []domain.Incident, key SortKey, desc bool) {
	compare := func(a, b domain.Incident) int {
		switch key {
		case SortDuration:
			return cmp64(a.DurationMS, b.DurationMS)
		case SortChecks:
			return cmp64(int64(a.AffectedChecks), int64(b.AffectedChecks))
		case SortMonitor:
			if c := strings.Compare(strings.ToLower(a.MonitorName), strings.ToLower(b.MonitorName)); c != 0 {
				return c
			}
			return strings.Compare(a.MonitorURL, b.MonitorURL)
		}
		return 0
	}
	sort.SliceStable(incidents, func(i, j int) bool {
		a, b := incidents[i], incidents[j]
		c := compare(a, b)
		if c == 0 {
			c = cmp64(a.StartTime.UnixNano(), b.StartTime.UnixNano())
		}
		if c == 0 {
			c = strings.Compare(a.ID, b.ID)
		}
		if desc {
			return c > 0
		}
		return c < 0
	})
}

func cmp64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
