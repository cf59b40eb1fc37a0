package metrics

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/example/camp-logistics/internal/application"
)

func TestRecorder_Observe(t *testing.T) {
	t.Parallel()

	r := NewRecorder()
	ctx := context.Background()
	r.Observe(ctx, "room.assign", "success", 10*time.Millisecond)
	r.Observe(ctx, "room.assign", "success", 20*time.Millisecond)
	r.Observe(ctx, "room.assign", "capacity_exceeded", time.Millisecond)

	if got := testutil.ToFloat64(r.operations.WithLabelValues("room.assign", "success")); got != 2 {
		t.Fatalf("expected 2 successes, got %v", got)
	}
	if got := testutil.ToFloat64(r.operations.WithLabelValues("room.assign", "capacity_exceeded")); got != 1 {
		t.Fatalf("expected 1 rejection, got %v", got)
	}
	if got := testutil.CollectAndCount(r.durations); got != 1 {
		t.Fatalf("expected one histogram series, got %d", got)
	}
}

func TestRecorder_SetDashboard(t *testing.T) {
	t.Parallel()

	r := NewRecorder()
	r.SetDashboard(application.Dashboard{
		Attendees:    4,
		PresenceRate: 0.5,
		Unassigned:   1,
		Occupancy:    application.OccupancySummary{TotalBeds: 6, UsedBeds: 3},
	})

	if got := testutil.ToFloat64(r.presence); got != 0.5 {
		t.Fatalf("expected presence 0.5, got %v", got)
	}
	if got := testutil.ToFloat64(r.beds.WithLabelValues("free")); got != 3 {
		t.Fatalf("expected 3 free beds, got %v", got)
	}
	if got := testutil.ToFloat64(r.unassigned); got != 1 {
		t.Fatalf("expected 1 unassigned, got %v", got)
	}
}

func TestRecorder_WriteTextfile(t *testing.T) {
	t.Parallel()

	r := NewRecorder()
	r.Observe(context.Background(), "directory.checkin", "success", time.Millisecond)

	path := filepath.Join(t.TempDir(), "camp.prom")
	if err := r.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile returned error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("textfile not written: %v", err)
	}
	if !strings.Contains(string(data), `camp_operations_total{operation="directory.checkin",outcome="success"} 1`) {
		t.Fatalf("unexpected textfile contents:\n%s", data)
	}
}

func TestRecorder_NilSafe(t *testing.T) {
	t.Parallel()

	var r *Recorder
	r.Observe(context.Background(), "noop", "success", 0)
	r.SetDashboard(application.Dashboard{})
}
