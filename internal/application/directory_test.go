package application

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/example/camp-logistics/internal/persistence"
	"github.com/example/camp-logistics/internal/testfixtures"
)

func directoryDocs() testfixtures.Docs {
	return testfixtures.Docs{
		Attendees: []persistence.Attendee{
			testfixtures.NewAttendee(testfixtures.WithAttendeeID("12.345.678-9"), testfixtures.WithName("Zoe")),
			testfixtures.NewAttendee(testfixtures.WithAttendeeID("A2"), testfixtures.WithName("ana")),
			testfixtures.NewAttendee(testfixtures.WithAttendeeID("A1"), testfixtures.WithName("Ana")),
		},
	}
}

func TestDirectory_RefreshAndList(t *testing.T) {
	t.Parallel()

	clock := testfixtures.NewClock(time.Time{})
	store := testfixtures.NewMemoryStore(t, directoryDocs())
	dir := newLoadedDirectory(t, store, clock)

	if dir.Len() != 3 {
		t.Fatalf("expected 3 attendees, got %d", dir.Len())
	}
	if !dir.LoadedAt().Equal(clock.Peek()) {
		t.Fatalf("expected load time %v, got %v", clock.Peek(), dir.LoadedAt())
	}

	list := dir.List()
	got := []string{list[0].ID, list[1].ID, list[2].ID}
	if !equalIDs(got, []string{"A1", "A2", "12.345.678-9"}) {
		t.Fatalf("expected name then id ordering, got %v", got)
	}

	list[0].Name = "mutated"
	if a, _ := dir.Get("A1"); a.Name != "Ana" {
		t.Fatalf("List must return copies")
	}
}

func TestDirectory_Replace(t *testing.T) {
	t.Parallel()

	dir := NewDirectory(nil, nil)
	dir.Replace([]Attendee{{ID: "A1", Name: "Ana"}, {ID: "B1", Name: "Beto"}})
	dir.Replace([]Attendee{{ID: "C1", Name: "Carla"}})

	if dir.Len() != 1 {
		t.Fatalf("expected the second snapshot to replace the first, got %d", dir.Len())
	}
	if _, ok := dir.Get("A1"); ok {
		t.Fatalf("expected A1 to be gone")
	}
	if err := dir.Refresh(context.Background()); err == nil {
		t.Fatalf("expected refresh without repository to fail")
	}
}

func TestDirectory_Lookup(t *testing.T) {
	t.Parallel()

	dir := NewDirectory(nil, nil)
	dir.Replace([]Attendee{{ID: "12.345.678-9", Name: "Zoe"}, {ID: "A1", Name: "Ana"}})

	cases := map[string]string{
		"A1":             "A1",
		"  A1\n":         "A1",
		"a1":             "A1",
		"12.345.678-9":   "12.345.678-9",
		"123456789":      "12.345.678-9",
		" 12 345 678 9 ": "12.345.678-9",
	}
	for raw, want := range cases {
		got, err := dir.Lookup(raw)
		if err != nil {
			t.Fatalf("Lookup(%q) returned error: %v", raw, err)
		}
		if got.ID != want {
			t.Fatalf("Lookup(%q) = %q, want %q", raw, got.ID, want)
		}
	}

	for _, raw := range []string{"", "   ", "Z9"} {
		_, err := dir.Lookup(raw)
		var nf *NotFoundError
		if !errors.As(err, &nf) || nf.Entity != EntityAttendee {
			t.Fatalf("Lookup(%q): expected attendee not found, got %v", raw, err)
		}
	}
}

func TestDirectory_LookupAmbiguousLooseIDs(t *testing.T) {
	t.Parallel()

	var logs bytes.Buffer
	dir := NewDirectoryWithLogger(nil, Hooks{}, nil, slog.New(slog.NewTextHandler(&logs, nil)))
	dir.Replace([]Attendee{{ID: "12.345", Name: "Zoe"}, {ID: "12345", Name: "Yago"}, {ID: "A1", Name: "Ana"}})

	for raw, want := range map[string]string{"12.345": "Zoe", "12345": "Yago", "a1": "Ana"} {
		got, err := dir.Lookup(raw)
		if err != nil {
			t.Fatalf("Lookup(%q) returned error: %v", raw, err)
		}
		if got.Name != want {
			t.Fatalf("Lookup(%q) = %q, want %q", raw, got.Name, want)
		}
	}

	for _, raw := range []string{"12-345", " 12 345 "} {
		if _, err := dir.Lookup(raw); !errors.Is(err, ErrNotFound) {
			t.Fatalf("Lookup(%q): expected not found for an ambiguous id, got %v", raw, err)
		}
	}
	if !strings.Contains(logs.String(), "ambiguous attendee ids") {
		t.Fatalf("expected a warning about ambiguous ids, got %q", logs.String())
	}
}

func TestDirectory_CheckIn(t *testing.T) {
	t.Parallel()

	t.Run("marks presence and stamps the time once", func(t *testing.T) {
		t.Parallel()
		clock := testfixtures.NewClock(time.Date(2026, 1, 10, 9, 45, 0, 0, time.UTC))
		store := testfixtures.NewMemoryStore(t, testfixtures.Docs{Attendees: []persistence.Attendee{
			testfixtures.NewAttendee(testfixtures.WithAttendeeID("A1")),
		}})
		notifier := &notifierStub{}
		dir := NewDirectoryWithLogger(store, Hooks{Notifier: notifier}, clock.NowFunc(), discardLogger())
		if err := dir.Refresh(context.Background()); err != nil {
			t.Fatalf("Refresh returned error: %v", err)
		}

		res, err := dir.CheckIn(context.Background(), " a1 ")
		if err != nil {
			t.Fatalf("CheckIn returned error: %v", err)
		}
		if res.AlreadyPresent || !res.Attendee.Present || res.Attendee.CheckInTime == nil {
			t.Fatalf("unexpected result %+v", res)
		}
		stored := mustGetAttendee(t, store, "A1")
		if !stored.Present || stored.CheckInTime == nil || !stored.CheckInTime.Equal(clock.Peek()) {
			t.Fatalf("unexpected stored attendee %+v", stored)
		}

		clock.Advance(time.Hour)
		res, err = dir.CheckIn(context.Background(), "A1")
		if err != nil || !res.AlreadyPresent {
			t.Fatalf("expected second check-in to report already present, got %+v, %v", res, err)
		}
		if !res.Attendee.CheckInTime.Equal(*stored.CheckInTime) {
			t.Fatalf("second check-in must keep the first timestamp")
		}
		if got := notifier.collections(); !equalIDs(got, []string{"attendees/A1"}) {
			t.Fatalf("unexpected notifications %v", got)
		}
	})

	t.Run("surfaces persistence failures without touching the snapshot", func(t *testing.T) {
		t.Parallel()
		inner := testfixtures.NewMemoryStore(t, testfixtures.Docs{Attendees: []persistence.Attendee{
			testfixtures.NewAttendee(testfixtures.WithAttendeeID("A1")),
		}})
		store := &flakyStore{Store: inner, updateAttendeeErr: errors.New("offline")}
		dir := newLoadedDirectory(t, store, nil)

		_, err := dir.CheckIn(context.Background(), "A1")
		if !errors.Is(err, ErrPersistence) {
			t.Fatalf("expected persistence failure, got %v", err)
		}
		if a, _ := dir.Get("A1"); a.Present {
			t.Fatalf("snapshot must not change when the write fails")
		}
	})

	t.Run("reports unknown identifiers", func(t *testing.T) {
		t.Parallel()
		dir := newLoadedDirectory(t, testfixtures.NewMemoryStore(t, testfixtures.Docs{}), nil)
		if _, err := dir.CheckIn(context.Background(), "nobody"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
	})
}

func TestDirectory_DeliverKit(t *testing.T) {
	t.Parallel()

	store := testfixtures.NewMemoryStore(t, testfixtures.Docs{Attendees: []persistence.Attendee{
		testfixtures.NewAttendee(testfixtures.WithAttendeeID("A1")),
	}})
	dir := newLoadedDirectory(t, store, nil)

	attendee, err := dir.DeliverKit(context.Background(), "A1")
	if err != nil {
		t.Fatalf("DeliverKit returned error: %v", err)
	}
	if !attendee.KitDelivered || !mustGetAttendee(t, store, "A1").KitDelivered {
		t.Fatalf("expected kit to be recorded")
	}
	if attendee, err = dir.DeliverKit(context.Background(), "A1"); err != nil || !attendee.KitDelivered {
		t.Fatalf("expected repeated delivery to succeed, got %+v, %v", attendee, err)
	}
}
