package incident

import (
	"testing"
	"time"

	"github.com/hamed0406/uptimewatch/internal/domain"
)

var t0 = time.Date(2025, 8, 18, 12, 0, 0, 0, time.UTC)

// seq builds results one minute apart from a string of U (up), D (down) and
// ? (unknown).
func seq(pattern string) []domain.CheckResult {
	out := make([]domain.CheckResult, 0, len(pattern))
	for i, c := range pattern {
		r := domain.CheckResult{MonitorID: "m1", Timestamp: t0.Add(time.Duration(i) * time.Minute)}
		switch c {
		case 'U':
			r.Success = domain.Bool(true)
		case 'D':
			r.Success = domain.Bool(false)
			r.Error = domain.String("err" + string(rune('0'+i)))
		}
		out = append(out, r)
	}
	return out
}

func TestDerive_TwoDisjointRuns(t *testing.T) {
	rows := seq("UUDDDUD")
	now := t0.Add(10 * time.Minute)
	got := Derive("m1", rows, now)
	if len(got) != 2 {
		t.Fatalf("want 2 incidents, got %d: %+v", len(got), got)
	}

	first := got[0]
	if first.Status != domain.IncidentResolved {
		t.Fatalf("first incident should be RESOLVED, got %s", first.Status)
	}
	if !first.StartTime.Equal(rows[2].Timestamp) || first.EndTime == nil || !first.EndTime.Equal(rows[5].Timestamp) {
		t.Fatalf("first incident span wrong: %+v", first)
	}
	if first.AffectedChecks != 3 || first.DurationMS != (3*time.Minute).Milliseconds() {
		t.Fatalf("first incident counts wrong: %+v", first)
	}

	second := got[1]
	if second.Status != domain.IncidentOngoing || second.EndTime != nil || !second.StartTime.Equal(rows[6].Timestamp) {
		t.Fatalf("second incident should be ONGOING from t6: %+v", second)
	}
	if second.DurationMS != now.Sub(rows[6].Timestamp).Milliseconds() {
		t.Fatalf("ongoing duration should run to now, got %d", second.DurationMS)
	}
	if first.ID == second.ID {
		t.Fatalf("incident IDs must differ")
	}
}

func TestDerive_EmptyAndAllSuccess(t *testing.T) {
	if got := Derive("m1", nil, t0); len(got) != 0 {
		t.Fatalf("empty log: want 0 incidents, got %d", len(got))
	}
	if got := Derive("m1", seq("UUUU"), t0); len(got) != 0 {
		t.Fatalf("all success: want 0 incidents, got %d", len(got))
	}
}

func TestDerive_AllFailure(t *testing.T) {
	rows := seq("DDD")
	got := Derive("m1", rows, t0.Add(time.Hour))
	if len(got) != 1 || !got[0].Ongoing() || !got[0].StartTime.Equal(t0) || got[0].AffectedChecks != 3 {
		t.Fatalf("want one ONGOING incident from the first row, got %+v", got)
	}
}

func TestDerive_FirstAndLastError(t *testing.T) {
	rows := seq("UDDDDU")
	got := Derive("m1", rows, t0)
	if len(got) != 1 {
		t.Fatalf("want 1 incident, got %d", len(got))
	}
	if got[0].FirstError != rows[1].ErrorText() || got[0].LastError != rows[4].ErrorText() {
		t.Fatalf("errors wrong: first=%q last=%q", got[0].FirstError, got[0].LastError)
	}
}

func TestDerive_FiveFailuresNoPriorSuccess(t *testing.T) {
	var rows []domain.CheckResult
	for i := 0; i < 5; i++ {
		rows = append(rows, domain.CheckResult{
			MonitorID: "m1",
			Timestamp: t0.Add(time.Duration(i*60) * time.Second),
			Success:   domain.Bool(false),
			Error:     domain.String("timeout"),
		})
	}
	now := t0.Add(5 * time.Minute)
	got := Derive("m1", rows, now)
	if len(got) != 1 {
		t.Fatalf("want 1 incident, got %d", len(got))
	}
	inc := got[0]
	if !inc.Ongoing() || inc.AffectedChecks != 5 || inc.DurationMS != now.Sub(t0).Milliseconds() {
		t.Fatalf("unexpected incident: %+v", inc)
	}
}

func TestDerive_UnknownCountsAsFailure(t *testing.T) {
	got := Derive("m1", seq("U?U"), t0)
	if len(got) != 1 || got[0].AffectedChecks != 1 || got[0].Status != domain.IncidentResolved {
		t.Fatalf("unknown result should open an incident: %+v", got)
	}
}

func TestDerive_UnsortedInputAndStableID(t *testing.T) {
	rows := seq("UDU")
	rows[0], rows[2] = rows[2], rows[0]
	a := Derive("m1", rows, t0)
	sorted := seq("UDU")
	b := Derive("m1", sorted, t0)
	if len(a) != 1 || len(b) != 1 || a[0].ID != b[0].ID {
		t.Fatalf("derivation should sort its input and keep IDs stable: %+v vs %+v", a, b)
	}
	if !rows[0].Timestamp.Equal(t0.Add(2 * time.Minute)) {
		t.Fatalf("input slice was reordered")
	}
	if ID("m1", t0) == ID("m2", t0) {
		t.Fatalf("IDs should depend on the monitor")
	}
}
