package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/myunifiles/unifiles/internal/store"
)

func fixedClock() func() time.Time {
	t := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	return func() time.Time { return t }
}

func TestCreateAndGet(t *testing.T) {
	s := New(WithClock(fixedClock()), WithIDGenerator(func() (string, error) { return "rec-1", nil }))
	ctx := context.Background()

	created, err := s.Create(ctx, store.PartitionRegistration, map[string]any{
		"studentID":   "A1B2C3D4",
		"studentName": "jane doe",
		"course":      "CompSci",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID != "rec-1" {
		t.Fatalf("expected generated id rec-1, got %q", created.ID)
	}

	records, err := s.Get(ctx, store.Query{
		Partition:  store.PartitionRegistration,
		Predicates: []store.Predicate{store.Eq("studentID", "A1B2C3D4")},
	})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].Field("course") != "CompSci" {
		t.Fatalf("expected course CompSci, got %q", records[0].Field("course"))
	}
}

func TestGetReturnsCopies(t *testing.T) {
	s := New()
	ctx := context.Background()

	created, err := s.Create(ctx, store.PartitionCourses, map[string]any{"courseName": "CompSci"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	records, err := s.Get(ctx, store.Query{Partition: store.PartitionCourses})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	records[0].Fields["courseName"] = "mutated"

	fresh, err := s.Get(ctx, store.Query{Partition: store.PartitionCourses})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if fresh[0].Field("courseName") != "CompSci" {
		t.Fatalf("expected cached copy isolation, got %q", fresh[0].Field("courseName"))
	}
	_ = created
}

func TestUpdateReplacesSuppliedFields(t *testing.T) {
	s := New()
	ctx := context.Background()

	created, err := s.Create(ctx, store.PartitionPastQuestions, map[string]any{
		"title":   "2025 exam",
		"course":  "CompSci",
		"Courses": []any{"CompSci"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := s.Update(ctx, store.PartitionPastQuestions, created.ID, map[string]any{"title": "2026 exam"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Field("title") != "2026 exam" {
		t.Fatalf("expected replaced title, got %q", updated.Field("title"))
	}
	if updated.Field("course") != "CompSci" {
		t.Fatalf("expected untouched field to survive, got %q", updated.Field("course"))
	}
}

func TestUpdateMissingRecord(t *testing.T) {
	s := New()
	_, err := s.Update(context.Background(), store.PartitionPastQuestions, "ghost", map[string]any{"title": "x"})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	s := New()
	ctx := context.Background()

	created, err := s.Create(ctx, store.PartitionModules, map[string]any{"moduleName": "Databases"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Delete(ctx, store.PartitionModules, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Delete(ctx, store.PartitionModules, created.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestSubscribeDeliversInitialAndMutationSnapshots(t *testing.T) {
	s := New()
	ctx := context.Background()

	var snapshots []store.Snapshot
	cancel, err := s.Subscribe(ctx, store.Query{
		Partition:  store.PartitionPastQuestions,
		Predicates: []store.Predicate{store.Eq("course", "CompSci")},
	}, func(snapshot store.Snapshot) {
		snapshots = append(snapshots, snapshot)
	}, nil)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	if len(snapshots) != 1 {
		t.Fatalf("expected initial snapshot, got %d", len(snapshots))
	}
	if snapshots[0].Version != 0 || len(snapshots[0].Records) != 0 {
		t.Fatalf("expected empty initial snapshot at version 0, got %+v", snapshots[0])
	}

	if _, err := s.Create(ctx, store.PartitionPastQuestions, map[string]any{"course": "CompSci", "title": "a"}); err != nil {
		t.Fatalf("create matching: %v", err)
	}
	if _, err := s.Create(ctx, store.PartitionPastQuestions, map[string]any{"course": "Law", "title": "b"}); err != nil {
		t.Fatalf("create non-matching: %v", err)
	}

	if len(snapshots) != 3 {
		t.Fatalf("expected 3 snapshots (initial + 2 mutations), got %d", len(snapshots))
	}
	last := snapshots[len(snapshots)-1]
	if last.Version != 2 {
		t.Fatalf("expected partition version 2, got %d", last.Version)
	}
	if len(last.Records) != 1 || last.Records[0].Field("course") != "CompSci" {
		t.Fatalf("expected filter to hold, got %+v", last.Records)
	}
}

func TestSubscribeIgnoresOtherPartitions(t *testing.T) {
	s := New()
	ctx := context.Background()

	var count int
	cancel, err := s.Subscribe(ctx, store.Query{Partition: store.PartitionCourses}, func(store.Snapshot) {
		count++
	}, nil)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	if _, err := s.Create(ctx, store.PartitionLevels, map[string]any{"levelName": "100"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected only the initial snapshot, got %d deliveries", count)
	}
}

func TestCancelStopsDelivery(t *testing.T) {
	s := New()
	ctx := context.Background()

	var count int
	cancel, err := s.Subscribe(ctx, store.Query{Partition: store.PartitionCourses}, func(store.Snapshot) {
		count++
	}, nil)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	cancel()
	if _, err := s.Create(ctx, store.PartitionCourses, map[string]any{"courseName": "Law"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected no delivery after cancel, got %d", count)
	}
}

func TestSubscriptionCallbackMayMutateStore(t *testing.T) {
	s := New()
	ctx := context.Background()

	first := true
	cancel, err := s.Subscribe(ctx, store.Query{Partition: store.PartitionCourses}, func(snapshot store.Snapshot) {
		if snapshot.Version == 1 && first {
			first = false
			if _, err := s.Get(ctx, store.Query{Partition: store.PartitionCourses}); err != nil {
				t.Errorf("get from callback: %v", err)
			}
		}
	}, nil)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	if _, err := s.Create(ctx, store.PartitionCourses, map[string]any{"courseName": "CompSci"}); err != nil {
		t.Fatalf("create: %v", err)
	}
}
