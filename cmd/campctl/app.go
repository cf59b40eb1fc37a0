package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/example/camp-logistics/internal/application"
	"github.com/example/camp-logistics/internal/config"
	"github.com/example/camp-logistics/internal/export"
	"github.com/example/camp-logistics/internal/live"
	"github.com/example/camp-logistics/internal/metrics"
	"github.com/example/camp-logistics/internal/persistence"
	"github.com/example/camp-logistics/internal/persistence/memory"
	"github.com/example/camp-logistics/internal/persistence/postgres"
	"github.com/example/camp-logistics/internal/persistence/sqlite"
)

// documentStore is a persistence.Store owning its connection.
type documentStore interface {
	persistence.Store
	Close() error
}

func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (documentStore, error) {
	switch cfg.StoreDriver {
	case config.DriverSQLite:
		store, err := sqlite.Open(ctx, sqlite.DefaultConfig(cfg.SQLitePath), logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.DriverPostgres:
		store, err := postgres.Open(ctx, cfg.PostgresDSN, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.DriverMemory:
		return memory.New(), nil
	}
	return nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
}

// app wires the console services around one store.
type app struct {
	cfg    config.Config
	logger *slog.Logger
	out    io.Writer
	now    func() time.Time
	newID  func() string

	store     persistence.Store
	directory *application.Directory
	rooms     *application.RoomService
	groups    *application.GroupService
	ingest    *application.IngestService
	gate      *application.OperatorGate
	recorder  *metrics.Recorder
	redis     *redis.Client

	// hashParams is the argon2id cost used by hash-code.
	hashParams application.Argon2idParams

	// blobWriter overrides the configured export destination.
	blobWriter export.BlobWriter
}

func newApp(ctx context.Context, cfg config.Config, store persistence.Store, logger *slog.Logger, out io.Writer) (*app, error) {
	a := &app{
		cfg:      cfg,
		logger:   logger,
		out:      out,
		now:      time.Now,
		newID:    uuid.NewString,
		store:    store,
		recorder: metrics.NewRecorder(),
		gate:     application.NewOperatorGate(cfg.OperatorCodeHash, nil, logger),

		hashParams: application.DefaultArgon2idParams,
	}

	hooks := application.Hooks{Metrics: a.recorder}
	if cfg.LiveUpdatesEnabled() {
		client := live.NewClient(cfg.RedisAddr)
		a.redis = client
		hooks.Notifier = live.NewPublisher(client, cfg.RedisChannel, logger, live.WithOrigin(originName()))
	}

	a.directory = application.NewDirectoryWithLogger(store, hooks, a.now, logger)
	a.rooms = application.NewRoomServiceWithLogger(store, a.directory, hooks, logger)
	a.groups = application.NewGroupServiceWithLogger(store, a.directory, hooks, a.now, logger)
	a.ingest = application.NewIngestServiceWithLogger(store, a.newID, hooks, logger)

	if err := a.directory.Refresh(ctx); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("failed to close redis client", "error", err)
		}
		a.redis = nil
	}
}

// exporter returns the configured export destination.
func (a *app) exporter(ctx context.Context) (*export.Exporter, error) {
	if a.blobWriter != nil {
		return export.NewExporter(a.blobWriter, a.logger), nil
	}
	if a.cfg.S3ExportEnabled() {
		writer, err := export.NewS3Writer(ctx, export.S3Config{
			Region:    a.cfg.ExportS3Region,
			Bucket:    a.cfg.ExportS3Bucket,
			Endpoint:  a.cfg.ExportS3Endpoint,
			PathStyle: a.cfg.ExportS3PathStyle,
		})
		if err != nil {
			return nil, err
		}
		return export.NewExporter(writer, a.logger), nil
	}
	writer, err := export.NewDirWriter(a.cfg.ExportDir)
	if err != nil {
		return nil, err
	}
	return export.NewExporter(writer, a.logger), nil
}

// dashboard computes the statistics over the current collections.
func (a *app) dashboard(ctx context.Context) (application.Dashboard, []application.Room, []application.Group, error) {
	rooms, err := a.rooms.ListRooms(ctx)
	if err != nil {
		return application.Dashboard{}, nil, nil, err
	}
	groups, err := a.groups.ListGroups(ctx)
	if err != nil {
		return application.Dashboard{}, nil, nil, err
	}
	d := application.DashboardSummary(a.now(), a.directory.List(), rooms, groups, a.window(), a.location())
	a.recorder.SetDashboard(d)
	return d, rooms, groups, nil
}

func (a *app) window() application.HourWindow {
	return application.HourWindow{Start: a.cfg.CheckInWindowStart, End: a.cfg.CheckInWindowEnd}
}

func (a *app) location() *time.Location {
	if a.cfg.Location == nil {
		return time.UTC
	}
	return a.cfg.Location
}

// flushMetrics writes the registry to the configured textfile.
func (a *app) flushMetrics(ctx context.Context) {
	path := strings.TrimSpace(a.cfg.MetricsTextfile)
	if path == "" {
		return
	}
	if _, _, _, err := a.dashboard(ctx); err != nil {
		a.logger.WarnContext(ctx, "failed to refresh dashboard gauges", "error", err)
	}
	if err := a.recorder.WriteTextfile(path); err != nil {
		a.logger.WarnContext(ctx, "failed to write metrics textfile", "path", path, "error", err)
	}
}

func originName() string {
	return "campctl-" + uuid.NewString()[:8]
}
