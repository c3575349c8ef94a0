package roster

import (
	"context"
	"testing"

	"github.com/sharmayash2805/Event-Attendance-System/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewStore(db.Client)
}

func TestUpsertAndGet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	st := Student{EventID: 1, UID: "S1", Name: "Alice", Branch: "CS", Year: "2nd", Status: StatusAbsent}
	if err := s.Upsert(ctx, st); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	got, err := s.Get(ctx, 1, "S1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil || *got != st {
		t.Errorf("Get: got %+v, want %+v", got, st)
	}

	// Replacing the row keeps exactly one record per key.
	st.Name = "Alice B"
	st.Status = StatusPresent
	if err := s.Upsert(ctx, st); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	all, _ := s.All(ctx, 1)
	if len(all) != 1 {
		t.Fatalf("rows after re-upsert: got %d, want 1", len(all))
	}
	if all[0].Name != "Alice B" || all[0].Status != StatusPresent {
		t.Errorf("re-upsert: got %+v", all[0])
	}
}

func TestGetMissingReturnsNil(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	got, err := s.Get(context.Background(), 1, "nobody")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Errorf("Get missing: got %+v, want nil", got)
	}
}

func TestUpdateStatus(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.Upsert(ctx, Student{EventID: 1, UID: "S1", Name: "Alice", Status: StatusAbsent}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := s.UpdateStatus(ctx, 1, "S1", StatusQueued, "2026-03-14 09:30:00"); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	got, _ := s.Get(ctx, 1, "S1")
	if got.Status != StatusQueued || got.Timestamp != "2026-03-14 09:30:00" {
		t.Errorf("got %+v", got)
	}
}

func TestEventStats(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	seed := []Student{
		{EventID: 1, UID: "S1", Status: StatusPresent},
		{EventID: 1, UID: "S2", Status: StatusAbsent},
		{EventID: 1, UID: "S3", Status: StatusQueued},
		{EventID: 2, UID: "S1", Status: StatusPresent},
	}
	if err := s.InsertAll(ctx, seed); err != nil {
		t.Fatalf("InsertAll: %v", err)
	}

	stats, err := s.EventStats(ctx, 1)
	if err != nil {
		t.Fatalf("EventStats: %v", err)
	}
	// Queued is provisional and must not count as Present.
	want := Stats{Total: 3, Present: 1, Remaining: 2}
	if stats != want {
		t.Errorf("stats: got %+v, want %+v", stats, want)
	}
}

func TestSearch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	seed := []Student{
		{EventID: 1, UID: "CU101", Name: "Alice"},
		{EventID: 1, UID: "CU102", Name: "Bob"},
		{EventID: 1, UID: "CU203", Name: "Alicia"},
	}
	if err := s.InsertAll(ctx, seed); err != nil {
		t.Fatalf("InsertAll: %v", err)
	}

	byName, _ := s.Search(ctx, 1, "Ali")
	if len(byName) != 2 {
		t.Errorf("Search(Ali): got %d, want 2", len(byName))
	}
	byUID, _ := s.Search(ctx, 1, "CU1")
	if len(byUID) != 2 {
		t.Errorf("Search(CU1): got %d, want 2", len(byUID))
	}
}

func TestResetIsEventScoped(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.InsertAll(ctx, []Student{
		{EventID: 1, UID: "S1"},
		{EventID: 2, UID: "S1"},
	}); err != nil {
		t.Fatalf("InsertAll: %v", err)
	}
	if err := s.Reset(ctx, 1); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if got, _ := s.All(ctx, 1); len(got) != 0 {
		t.Errorf("event 1 not cleared: %d rows", len(got))
	}
	if got, _ := s.All(ctx, 2); len(got) != 1 {
		t.Errorf("event 2 clobbered: %d rows", len(got))
	}
}

func TestMergeSnapshotPreservesQueuedRows(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.InsertAll(ctx, []Student{
		{EventID: 1, UID: "S1", Name: "Alice", Status: StatusQueued, Timestamp: "T0"},
		{EventID: 1, UID: "S2", Name: "Bob", Status: StatusAbsent},
	}); err != nil {
		t.Fatalf("InsertAll: %v", err)
	}

	snapshot := []Student{
		{UID: "S1", Name: "Alice", Status: StatusAbsent},
		{UID: "S2", Name: "Bob", Status: StatusPresent, Timestamp: "T1"},
		{UID: "S3", Name: "Cara", Status: StatusAbsent},
	}
	if err := s.MergeSnapshot(ctx, 1, snapshot); err != nil {
		t.Fatalf("MergeSnapshot: %v", err)
	}

	s1, _ := s.Get(ctx, 1, "S1")
	if s1.Status != StatusQueued || s1.Timestamp != "T0" {
		t.Errorf("queued row clobbered by snapshot: %+v", s1)
	}
	s2, _ := s.Get(ctx, 1, "S2")
	if s2.Status != StatusPresent || s2.Timestamp != "T1" {
		t.Errorf("snapshot not applied: %+v", s2)
	}
	s3, _ := s.Get(ctx, 1, "S3")
	if s3 == nil {
		t.Error("new snapshot row not inserted")
	}
}
