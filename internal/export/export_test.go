package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/example/camp-logistics/internal/application"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleReport(t *testing.T) Report {
	t.Helper()
	checkIn := time.Date(2026, 1, 10, 9, 15, 0, 0, time.UTC)
	attendees := []application.Attendee{
		{ID: "A1", Name: "Ana", Gender: application.GenderFemale, Present: true, CheckInTime: &checkIn, GroupTag: "g7"},
		{ID: "A2", Name: "Bea", Gender: application.GenderFemale},
		{ID: "B1", Name: "Carlos", Gender: application.GenderMale},
	}
	rooms := []application.Room{
		{ID: "r10", Number: "10", Policy: application.PolicyMaleOnly, Capacity: 2},
		{ID: "r2", Number: "2", Floor: "1", Policy: application.PolicyFemaleOnly, Capacity: 2, Occupants: []string{"A1", "ghost"}},
	}
	groups := []application.Group{
		{ID: "g7", Name: "Luz", Members: []string{"A2"}, Tasks: []application.Task{{Text: "Oración", Completed: true}, {Text: "Juego"}}},
	}
	return Build(time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC), attendees, rooms, groups, application.DefaultHourWindow, time.UTC)
}

func TestBuild(t *testing.T) {
	t.Parallel()

	report := sampleReport(t)

	if len(report.Rooms) != 2 || report.Rooms[0].Number != "2" || report.Rooms[1].Number != "10" {
		t.Fatalf("expected rooms in natural order, got %+v", report.Rooms)
	}
	occupants := report.Rooms[0].Occupants
	if len(occupants) != 2 || occupants[0].Name != "Ana" || !occupants[1].Dangling {
		t.Fatalf("unexpected occupants %+v", occupants)
	}
	if len(report.Unassigned) != 2 || report.Unassigned[0].ID != "A2" || report.Unassigned[1].ID != "B1" {
		t.Fatalf("unexpected unassigned %+v", report.Unassigned)
	}
	if got := report.Groups[0].Members; len(got) != 2 || got[0] != "A2" || got[1] != "A1" {
		t.Fatalf("unexpected group members %v", got)
	}
	if report.Groups[0].OpenTasks != 1 || report.Groups[0].DoneTasks != 1 {
		t.Fatalf("unexpected task counts %+v", report.Groups[0])
	}
	if report.Summary.CheckInsByHour["09"] != 1 {
		t.Fatalf("expected one check-in at 09, got %v", report.Summary.CheckInsByHour)
	}
	if report.Summary.TotalBeds != 4 || report.Summary.UsedBeds != 2 {
		t.Fatalf("unexpected bed counts %+v", report.Summary)
	}
}

func TestWriteRoomCSV(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := WriteRoomCSV(&buf, sampleReport(t)); err != nil {
		t.Fatalf("WriteRoomCSV returned error: %v", err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("output is not csv: %v", err)
	}
	// header, two occupants of room 2, one empty row for room 10
	if len(rows) != 4 {
		t.Fatalf("expected 4 rows, got %d: %v", len(rows), rows)
	}
	if rows[1][0] != "2" || rows[1][5] != "Ana" || rows[1][6] != "true" {
		t.Fatalf("unexpected first row %v", rows[1])
	}
	if rows[3][0] != "10" || rows[3][4] != "" {
		t.Fatalf("unexpected empty room row %v", rows[3])
	}
}

func TestExporter_DirWriter(t *testing.T) {
	t.Parallel()

	root := filepath.Join(t.TempDir(), "exports")
	writer, err := NewDirWriter(root)
	if err != nil {
		t.Fatalf("NewDirWriter returned error: %v", err)
	}
	report := sampleReport(t)

	locations, err := NewExporter(writer, discardLogger()).Export(context.Background(), report)
	if err != nil {
		t.Fatalf("Export returned error: %v", err)
	}
	if len(locations) != 2 {
		t.Fatalf("expected two locations, got %v", locations)
	}

	jsonKey, _ := Keys(report.GeneratedAt)
	data, err := os.ReadFile(filepath.Join(root, jsonKey))
	if err != nil {
		t.Fatalf("report not written: %v", err)
	}
	var decoded Report
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("report is not json: %v", err)
	}
	if decoded.Summary.Attendees != 3 {
		t.Fatalf("unexpected decoded summary %+v", decoded.Summary)
	}
}

func TestDirWriter_RejectsTraversal(t *testing.T) {
	t.Parallel()

	writer, err := NewDirWriter(t.TempDir())
	if err != nil {
		t.Fatalf("NewDirWriter returned error: %v", err)
	}
	for _, key := range []string{"", "../escape.json", "/abs.json"} {
		if err := writer.Put(context.Background(), key, strings.NewReader("x"), "text/plain"); err == nil {
			t.Fatalf("expected error for key %q", key)
		}
	}
}

type putStub struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (p *putStub) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	p.input = params
	p.body, _ = io.ReadAll(params.Body)
	return &s3.PutObjectOutput{}, p.err
}

func TestS3Writer_Put(t *testing.T) {
	t.Parallel()

	t.Run("uploads under the prefix", func(t *testing.T) {
		t.Parallel()
		stub := &putStub{}
		writer := &S3Writer{client: stub, bucket: "camp", prefix: "2026"}

		if err := writer.Put(context.Background(), "rooms.csv", strings.NewReader("a,b"), "text/csv"); err != nil {
			t.Fatalf("Put returned error: %v", err)
		}
		if *stub.input.Bucket != "camp" || *stub.input.Key != "2026/rooms.csv" || *stub.input.ContentType != "text/csv" {
			t.Fatalf("unexpected input %+v", stub.input)
		}
		if string(stub.body) != "a,b" {
			t.Fatalf("unexpected body %q", stub.body)
		}
		if writer.Location("rooms.csv") != "s3://camp/2026/rooms.csv" {
			t.Fatalf("unexpected location %q", writer.Location("rooms.csv"))
		}
	})

	t.Run("wraps upload failures", func(t *testing.T) {
		t.Parallel()
		cause := errors.New("access denied")
		writer := &S3Writer{client: &putStub{err: cause}, bucket: "camp"}

		err := writer.Put(context.Background(), "report.json", strings.NewReader("{}"), "application/json")
		if !errors.Is(err, cause) {
			t.Fatalf("expected wrapped cause, got %v", err)
		}
	})

	t.Run("requires a bucket", func(t *testing.T) {
		t.Parallel()
		if _, err := NewS3Writer(context.Background(), S3Config{}); err == nil {
			t.Fatalf("expected error for missing bucket")
		}
	})
}
