package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sharmayash2805/Event-Attendance-System/internal/roster"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL, "device-1", time.Second, 2*time.Second)
}

func TestMarkSuccess(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/mark" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if body["device_id"] != "device-1" {
			t.Errorf("device_id: got %v", body["device_id"])
		}
		json.NewEncoder(w).Encode(map[string]any{
			"success":   true,
			"timestamp": "2026-03-14 09:30:00",
			"student": map[string]any{
				"uid": "S1", "name": "Alice", "branch": "CS", "year": "2nd",
				"status": "Present", "timestamp": "stale",
			},
		})
	})

	res := c.Mark(context.Background(), 1, "S1", "T0")
	if res.Kind != KindSuccess {
		t.Fatalf("kind: got %v, want Success (%s)", res.Kind, res.Message)
	}
	if res.Student.Name != "Alice" || res.Student.EventID != 1 {
		t.Errorf("student: got %+v", res.Student)
	}
	// The top-level timestamp wins over the embedded one.
	if res.Student.Timestamp != "2026-03-14 09:30:00" {
		t.Errorf("timestamp: got %q", res.Student.Timestamp)
	}
}

func TestMarkConflictIsAlreadyMarked(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]any{
			"error":   "Already marked",
			"student": map[string]any{"uid": "S1", "name": "Alice", "status": "Present", "timestamp": "T"},
		})
	})

	res := c.Mark(context.Background(), 1, "S1", "T0")
	if res.Kind != KindAlreadyMarked {
		t.Fatalf("kind: got %v, want AlreadyMarked", res.Kind)
	}
	if res.Student.Status != roster.StatusPresent || res.Student.Timestamp != "T" {
		t.Errorf("student: got %+v", res.Student)
	}
}

func TestMarkNotFoundIsInvalid(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]any{"error": "Invalid UID"})
	})
	if res := c.Mark(context.Background(), 1, "ghost", "T0"); res.Kind != KindInvalid {
		t.Errorf("kind: got %v, want Invalid", res.Kind)
	}
}

func TestMarkInvalidInSuccessBody(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"error": "Invalid UID"})
	})
	if res := c.Mark(context.Background(), 1, "ghost", "T0"); res.Kind != KindInvalid {
		t.Errorf("kind: got %v, want Invalid", res.Kind)
	}
}

func TestMarkClosedEventIsError(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]any{"error": "Event is closed"})
	})
	res := c.Mark(context.Background(), 1, "S1", "T0")
	if res.Kind != KindError {
		t.Fatalf("kind: got %v, want Error", res.Kind)
	}
	if res.Message != "Event is closed" {
		t.Errorf("message: got %q", res.Message)
	}
}

func TestMarkMessageExtractionFallback(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("<html>oops</html>"))
	})
	res := c.Mark(context.Background(), 1, "S1", "T0")
	if res.Kind != KindError || res.Message != "Request failed" {
		t.Errorf("got kind=%v message=%q, want Error/Request failed", res.Kind, res.Message)
	}
}

func TestMarkUnreachableServer(t *testing.T) {
	t.Parallel()
	c := New("http://127.0.0.1:1", "device-1", 200*time.Millisecond, 500*time.Millisecond)
	if res := c.Mark(context.Background(), 1, "S1", "T0"); res.Kind != KindError {
		t.Errorf("kind: got %v, want Error", res.Kind)
	}
}

func TestMarkUnexpectedBody(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"ok": 1})
	})
	res := c.Mark(context.Background(), 1, "S1", "T0")
	if res.Kind != KindError || res.Message != "Unexpected server response" {
		t.Errorf("got kind=%v message=%q", res.Kind, res.Message)
	}
}

func TestAddStudentNoInvalidMapping(t *testing.T) {
	t.Parallel()
	// The add path treats every rejection, even a 404, as a plain error.
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]any{"error": "Invalid event_id"})
	})
	res := c.AddStudent(context.Background(), 1, "S2", "Jane", "CS", "2nd")
	if res.Kind != KindError {
		t.Fatalf("kind: got %v, want Error", res.Kind)
	}
	if res.Message != "Invalid event_id" {
		t.Errorf("message: got %q", res.Message)
	}
}

func TestAddStudentSuccess(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/add" {
			t.Errorf("path: got %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"success":   true,
			"timestamp": "T1",
			"student":   map[string]any{"uid": "S2", "name": "Jane", "status": "Present"},
		})
	})
	res := c.AddStudent(context.Background(), 1, "S2", "Jane", "CS", "2nd")
	if res.Kind != KindSuccess {
		t.Fatalf("kind: got %v (%s)", res.Kind, res.Message)
	}
	if res.Student.Timestamp != "T1" || res.Student.Branch != "CS" {
		t.Errorf("student: got %+v", res.Student)
	}
}

func TestStatsAndPing(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/stats" {
			t.Errorf("path: got %s", r.URL.Path)
		}
		if r.URL.Query().Get("event_id") != "7" {
			t.Errorf("event_id: got %q", r.URL.Query().Get("event_id"))
		}
		json.NewEncoder(w).Encode(map[string]int{"total": 10, "present": 4, "remaining": 6})
	})

	stats, err := c.Stats(context.Background(), 7)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Total != 10 || stats.Present != 4 || stats.Remaining != 6 {
		t.Errorf("stats: got %+v", stats)
	}
	if !c.Ping(context.Background(), 7) {
		t.Error("Ping: got false")
	}
}

func TestEventsList(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("active") != "1" {
			t.Errorf("active: got %q", r.URL.Query().Get("active"))
		}
		json.NewEncoder(w).Encode([]map[string]any{
			{"event_id": 1, "event_name": "Hackathon", "is_active": true},
		})
	})
	events, err := c.Events(context.Background(), true)
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(events) != 1 || events[0].EventName != "Hackathon" {
		t.Errorf("events: got %+v", events)
	}
}

func TestSearchFillsEventID(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{
			{"uid": "S1", "name": "Alice", "status": "Present", "timestamp": "T"},
		})
	})
	students, err := c.Search(context.Background(), 3, "Ali")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(students) != 1 || students[0].EventID != 3 {
		t.Errorf("students: got %+v", students)
	}
}
