package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/example/camp-logistics/internal/application"
	"github.com/example/camp-logistics/internal/config"
	"github.com/example/camp-logistics/internal/persistence/memory"
)

const seedDataset = `{
  "asistentes": [
    {"id": "A1", "nombre": "Ana", "genero": "Femenino", "grupo": "g1"},
    {"id": "A2", "nombre": "Bruno", "genero": "Masculino", "grupo": "g1"},
    {"nombre": "Carla", "genero": "F", "taller": "Música"}
  ],
  "habitaciones": [
    {"numero": "101", "piso": "1", "genero": "Femenino", "capacidad": 2, "ocupantes": []}
  ],
  "grupos": [
    {"id": "g1", "nombre": "Luz", "liderId": "A1", "codigoAcceso": "LUZ7", "miembros": ["A1"],
     "tareas": [{"texto": "Llevar linternas", "fechaCreacion": "2026-01-10T08:00:00Z", "completada": false}],
     "activo": true}
  ]
}`

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		StoreDriver:        config.DriverMemory,
		ExportDir:          filepath.Join(t.TempDir(), "exports"),
		CheckInWindowStart: 8,
		CheckInWindowEnd:   19,
	}
}

func newTestApp(t *testing.T, cfg config.Config) (*app, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := newApp(context.Background(), cfg, memory.New(), logger, &out)
	if err != nil {
		t.Fatalf("newApp returned error: %v", err)
	}
	t.Cleanup(a.close)
	return a, &out
}

func writeSeed(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.json")
	if err := os.WriteFile(path, []byte(seedDataset), 0o600); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	return path
}

func mustExecute(t *testing.T, a *app, out *bytes.Buffer, args ...string) string {
	t.Helper()
	out.Reset()
	if err := a.execute(context.Background(), args); err != nil {
		t.Fatalf("campctl %s: %v", strings.Join(args, " "), err)
	}
	return out.String()
}

func TestConsoleWorkflow(t *testing.T) {
	t.Parallel()

	a, out := newTestApp(t, testConfig(t))
	ctx := context.Background()

	if got := mustExecute(t, a, out, "seed", writeSeed(t)); got != "seeded 3 attendees, 1 rooms, 1 groups\n" {
		t.Fatalf("unexpected seed output %q", got)
	}
	if a.directory.Len() != 3 {
		t.Fatalf("expected directory to hold 3 attendees, got %d", a.directory.Len())
	}

	if got := mustExecute(t, a, out, "assign", "A1", "101"); !strings.Contains(got, "Ana assigned to room 101") {
		t.Fatalf("unexpected assign output %q", got)
	}

	err := a.execute(ctx, []string{"assign", "A2", "101"})
	if !errors.Is(err, application.ErrGenderMismatch) || exitCode(err) != 1 {
		t.Fatalf("expected gender mismatch, got %v", err)
	}

	if got := mustExecute(t, a, out, "reconcile"); !strings.Contains(got, "g1: added A2 (2 members)") {
		t.Fatalf("unexpected reconcile output %q", got)
	}

	got := mustExecute(t, a, out, "-group-code", " luz7 ", "task", "toggle", "g1", "0")
	if !strings.Contains(got, "task 0 of g1 completed: Llevar linternas") {
		t.Fatalf("unexpected toggle output %q", got)
	}

	if got := mustExecute(t, a, out, "checkin", " A1 "); !strings.Contains(got, "Ana checked in") {
		t.Fatalf("unexpected checkin output %q", got)
	}

	var dashboard application.Dashboard
	if err := json.Unmarshal([]byte(mustExecute(t, a, out, "-json", "stats")), &dashboard); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if dashboard.Attendees != 3 || dashboard.Present != 1 || dashboard.Unassigned != 2 {
		t.Fatalf("unexpected dashboard %+v", dashboard)
	}
	if len(dashboard.Groups) != 1 || dashboard.Groups[0].DoneTasks != 1 {
		t.Fatalf("unexpected group summaries %+v", dashboard.Groups)
	}

	locations := strings.Fields(mustExecute(t, a, out, "export"))
	if len(locations) != 2 {
		t.Fatalf("expected two exported files, got %v", locations)
	}
	for _, location := range locations {
		if _, err := os.Stat(location); err != nil {
			t.Fatalf("exported file %s missing: %v", location, err)
		}
	}
}

func TestHashCode(t *testing.T) {
	t.Parallel()

	a, out := newTestApp(t, testConfig(t))
	a.hashParams = application.Argon2idParams{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 8, KeyLength: 16}

	hashed := strings.TrimSpace(mustExecute(t, a, out, "hash-code", " 4321 "))
	if err := application.ValidateOperatorCodeHash(hashed); err != nil {
		t.Fatalf("hash-code printed an unusable hash %q: %v", hashed, err)
	}
	if err := application.VerifyOperatorCode(hashed, "4321"); err != nil {
		t.Fatalf("printed hash does not verify the code: %v", err)
	}

	a.hashParams.Parallelism = 0
	if err := a.execute(context.Background(), []string{"hash-code", "4321"}); !errors.Is(err, application.ErrInvalidCodeHash) {
		t.Fatalf("expected invalid cost settings to be rejected, got %v", err)
	}
	if err := a.execute(context.Background(), []string{"hash-code"}); !errors.Is(err, errUsage) {
		t.Fatalf("expected usage error, got %v", err)
	}
}

func TestOperatorCodeGate(t *testing.T) {
	t.Parallel()

	hashed, err := application.HashOperatorCode("1234", application.Argon2idParams{
		Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 8, KeyLength: 16,
	})
	if err != nil {
		t.Fatalf("HashOperatorCode returned error: %v", err)
	}
	cfg := testConfig(t)
	cfg.OperatorCodeHash = hashed
	a, out := newTestApp(t, cfg)

	err = a.execute(context.Background(), []string{"seed", writeSeed(t)})
	if !errors.Is(err, application.ErrUnauthorized) || exitCode(err) != 3 {
		t.Fatalf("expected unauthorized without code, got %v", err)
	}
	mustExecute(t, a, out, "-code", "1234", "seed", writeSeed(t))

	if got := mustExecute(t, a, out, "lookup", "A2"); !strings.Contains(got, "Bruno") {
		t.Fatalf("read-only commands must not need a code, got %q", got)
	}

	err = a.execute(context.Background(), []string{"-group-code", "nope", "task", "toggle", "g1", "0"})
	if !errors.Is(err, application.ErrUnauthorized) {
		t.Fatalf("expected unknown group code to be rejected, got %v", err)
	}
}

func TestExecute_UsageErrors(t *testing.T) {
	t.Parallel()

	a, _ := newTestApp(t, testConfig(t))
	cases := [][]string{
		nil,
		{"dance"},
		{"assign", "A1"},
		{"task", "toggle", "g1", "first"},
		{"task", "rename", "g1", "x"},
		{"-unknown-flag", "rooms"},
	}
	for _, args := range cases {
		err := a.execute(context.Background(), args)
		if !errors.Is(err, errUsage) || exitCode(err) != 2 {
			t.Fatalf("campctl %v: expected usage error, got %v", args, err)
		}
		if !strings.Contains(describeError(err), "usage: campctl") {
			t.Fatalf("usage errors must print the usage text")
		}
	}
}

func TestDescribeError_Validation(t *testing.T) {
	t.Parallel()

	a, _ := newTestApp(t, testConfig(t))
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte(`{"habitaciones":[{"numero":"7","genero":"Sala","capacidad":0}]}`), 0o600); err != nil {
		t.Fatalf("write dataset: %v", err)
	}

	err := a.execute(context.Background(), []string{"seed", path})
	got := describeError(err)
	want := "validation failed: rooms.7.capacidad: capacity must be positive; rooms.7.genero: unrecognized gender policy \"Sala\""
	if got != want {
		t.Fatalf("unexpected description\n got: %s\nwant: %s", got, want)
	}
}

func TestMetricsTextfile(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.MetricsTextfile = filepath.Join(t.TempDir(), "camp.prom")
	a, out := newTestApp(t, cfg)

	mustExecute(t, a, out, "seed", writeSeed(t))

	raw, err := os.ReadFile(cfg.MetricsTextfile)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	for _, want := range []string{`camp_operations_total{operation="ingest",outcome="success"} 1`, "camp_attendees 3"} {
		if !strings.Contains(string(raw), want) {
			t.Fatalf("expected %q in textfile:\n%s", want, raw)
		}
	}
}

func TestMetricsTextfile_DescribesLastInvocation(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.MetricsTextfile = filepath.Join(t.TempDir(), "camp.prom")
	first, out := newTestApp(t, cfg)
	mustExecute(t, first, out, "seed", writeSeed(t))

	second, out := newTestApp(t, cfg)
	mustExecute(t, second, out, "rooms")

	raw, err := os.ReadFile(cfg.MetricsTextfile)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	if strings.Contains(string(raw), `operation="ingest"`) {
		t.Fatalf("expected counters of the earlier invocation to be replaced:\n%s", raw)
	}
	if !strings.Contains(string(raw), "# HELP camp_operations_total Service operations by outcome during the last campctl invocation.") {
		t.Fatalf("expected per-invocation help text:\n%s", raw)
	}
}

func TestWatch_StopsWithContext(t *testing.T) {
	t.Parallel()

	a, _ := newTestApp(t, testConfig(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := a.execute(ctx, []string{"watch", "-interval", "1s"}); err != nil {
		t.Fatalf("watch returned error: %v", err)
	}
}

func TestRun(t *testing.T) {
	t.Setenv("CAMP_STORE_DRIVER", "memory")
	t.Setenv("CAMP_LOG_FORMAT", "text")

	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), []string{"rooms"}, &stdout, &stderr); code != 0 {
		t.Fatalf("expected exit 0, got %d: %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "free rooms 0, full rooms 0, beds 0/0") {
		t.Fatalf("unexpected output %q", stdout.String())
	}

	t.Setenv("CAMP_STORE_DRIVER", "mongo")
	stderr.Reset()
	if code := run(context.Background(), []string{"rooms"}, &stdout, &stderr); code != 2 {
		t.Fatalf("expected exit 2 for invalid configuration, got %d", code)
	}
	if !strings.Contains(stderr.String(), "CAMP_STORE_DRIVER") {
		t.Fatalf("expected the invalid variable to be named, got %q", stderr.String())
	}
}
