package reconcile

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/sharmayash2805/Event-Attendance-System/internal/pending"
	"github.com/sharmayash2805/Event-Attendance-System/internal/queue"
	"github.com/sharmayash2805/Event-Attendance-System/internal/remote"
	"github.com/sharmayash2805/Event-Attendance-System/internal/roster"
)

// timestampFormat matches the server's "YYYY-MM-DD HH:MM:SS" strings.
const timestampFormat = "2006-01-02 15:04:05"

// RemoteService is the slice of the attendance server the engine needs.
// *remote.Client satisfies it.
type RemoteService interface {
	Mark(ctx context.Context, eventID int64, uid, deviceTimestamp string) remote.MarkResult
	AddStudent(ctx context.Context, eventID int64, uid, name, branch, year string) remote.MarkResult
}

// Engine reconciles optimistic local marks with the remote authority. The
// local pass always completes before the remote call, so a scan is never
// blocked on connectivity; the merge rule decides which side wins.
type Engine struct {
	roster  *roster.Store
	pending *pending.Queue
	remote  RemoteService
	trigger queue.Queue
	now     func() time.Time
}

// NewEngine wires the engine. trigger may be nil when no sync worker runs.
func NewEngine(rs *roster.Store, pq *pending.Queue, svc RemoteService, trigger queue.Queue) *Engine {
	return &Engine{
		roster:  rs,
		pending: pq,
		remote:  svc,
		trigger: trigger,
		now:     time.Now,
	}
}

// MarkPresent records a scan for (eventID, uid). The local cache is updated
// optimistically first, then the remote answer is merged in:
//
//   - remote Success/AlreadyMarked wins and is written back locally
//   - remote Invalid is trusted only when the local pass also found nothing
//   - a "closed" remote error reverts the optimistic mark
//   - any other remote error downgrades the mark to Queued and enqueues a
//     retry, so Present is never reported without server confirmation
func (e *Engine) MarkPresent(ctx context.Context, eventID int64, uid string) Outcome {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return e.observe(Outcome{Status: StatusInvalid})
	}

	local := e.localPass(ctx, eventID, uid)

	localTimestamp := e.timestamp()
	if local.Student != nil && local.Student.Timestamp != "" {
		localTimestamp = local.Student.Timestamp
	}

	res := e.remote.Mark(ctx, eventID, uid, localTimestamp)
	switch res.Kind {
	case remote.KindSuccess:
		merged, err := e.upsertMerged(ctx, eventID, uid, res.Student)
		if err != nil {
			return e.observe(Outcome{Status: StatusError, Message: "local store write failed: " + err.Error()})
		}
		return e.observe(Outcome{Status: StatusSuccess, Student: merged})

	case remote.KindAlreadyMarked:
		merged, err := e.upsertMerged(ctx, eventID, uid, res.Student)
		if err != nil {
			return e.observe(Outcome{Status: StatusError, Message: "local store write failed: " + err.Error()})
		}
		return e.observe(Outcome{Status: StatusAlreadyMarked, Student: merged})

	case remote.KindInvalid:
		// The server may simply not know the student yet (offline import);
		// keep whatever the local pass decided.
		if local.Status != StatusInvalid {
			return e.observe(local)
		}
		return e.observe(Outcome{Status: StatusInvalid})

	default:
		return e.observe(e.reconcileError(ctx, eventID, uid, localTimestamp, local, res))
	}
}

// reconcileError handles the remote Error arm of the merge rule.
func (e *Engine) reconcileError(ctx context.Context, eventID int64, uid, localTimestamp string, local Outcome, res remote.MarkResult) Outcome {
	closed := strings.Contains(strings.ToLower(res.Message), "closed")
	if closed && local.Status == StatusSuccess {
		// The event is administratively closed: undo the optimistic mark.
		if err := e.roster.UpdateStatus(ctx, eventID, uid, roster.StatusAbsent, ""); err != nil {
			return Outcome{Status: StatusError, Message: "local store write failed: " + err.Error()}
		}
		reverted, _ := e.roster.Get(ctx, eventID, uid)
		return Outcome{Status: StatusInvalid, Student: reverted}
	}

	if local.Status == StatusSuccess && local.Student != nil {
		payload, _ := json.Marshal(pending.MarkPayload{DeviceTimestamp: localTimestamp})
		if _, err := e.pending.EnqueueIfAbsent(ctx, pending.KindMarkPresent, eventID, uid, string(payload)); err != nil {
			return Outcome{Status: StatusError, Message: "enqueue failed: " + err.Error()}
		}

		// Keep local state honest: an unconfirmed mark is Queued, not
		// Present, so counts and exports never imply server confirmation.
		if err := e.roster.UpdateStatus(ctx, eventID, uid, roster.StatusQueued, localTimestamp); err != nil {
			return Outcome{Status: StatusError, Message: "local store write failed: " + err.Error()}
		}
		queued, _ := e.roster.Get(ctx, eventID, uid)
		if queued == nil {
			queued = local.Student
		}
		e.triggerSync(ctx, eventID)
		return Outcome{Status: StatusQueued, Student: queued, Message: res.Message}
	}

	// Nothing optimistic to protect; fall back to the local result.
	return local
}

// AddStudentAndMark registers a student found on no roster and marks them
// present. The local insert always succeeds; the add path has no invalid
// concept, so any remote failure just queues a replay and never reverts.
func (e *Engine) AddStudentAndMark(ctx context.Context, eventID int64, uid, name, branch, year string) Outcome {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return e.observe(Outcome{Status: StatusInvalid})
	}

	st := roster.Student{
		EventID:   eventID,
		UID:       uid,
		Name:      name,
		Branch:    branch,
		Year:      year,
		Status:    roster.StatusPresent,
		Timestamp: e.timestamp(),
	}
	if err := e.roster.Upsert(ctx, st); err != nil {
		return e.observe(Outcome{Status: StatusError, Message: "local store write failed: " + err.Error()})
	}

	res := e.remote.AddStudent(ctx, eventID, uid, name, branch, year)
	switch res.Kind {
	case remote.KindSuccess:
		merged, err := e.upsertMerged(ctx, eventID, uid, res.Student)
		if err != nil {
			return e.observe(Outcome{Status: StatusError, Message: "local store write failed: " + err.Error()})
		}
		return e.observe(Outcome{Status: StatusSuccess, Student: merged})

	case remote.KindAlreadyMarked:
		merged, err := e.upsertMerged(ctx, eventID, uid, res.Student)
		if err != nil {
			return e.observe(Outcome{Status: StatusError, Message: "local store write failed: " + err.Error()})
		}
		return e.observe(Outcome{Status: StatusAlreadyMarked, Student: merged})

	default:
		payload, _ := json.Marshal(pending.AddPayload{Name: name, Branch: branch, Year: year})
		if _, err := e.pending.EnqueueIfAbsent(ctx, pending.KindAddStudent, eventID, uid, string(payload)); err != nil {
			return e.observe(Outcome{Status: StatusError, Message: "enqueue failed: " + err.Error()})
		}
		e.triggerSync(ctx, eventID)
		return e.observe(Outcome{Status: StatusQueued, Student: &st, Message: res.Message})
	}
}

// MarkPresentLocal runs only the local pass, for explicit offline operation.
func (e *Engine) MarkPresentLocal(ctx context.Context, eventID int64, uid string) Outcome {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return e.observe(Outcome{Status: StatusInvalid})
	}
	return e.observe(e.localPass(ctx, eventID, uid))
}

// localPass applies the optimistic local update and classifies the scan
// against the cache alone.
func (e *Engine) localPass(ctx context.Context, eventID int64, uid string) Outcome {
	st, err := e.roster.Get(ctx, eventID, uid)
	if err != nil {
		return Outcome{Status: StatusError, Message: "local store read failed: " + err.Error()}
	}
	if st == nil {
		return Outcome{Status: StatusInvalid}
	}
	if st.Status == roster.StatusPresent {
		return Outcome{Status: StatusAlreadyMarked, Student: st}
	}
	ts := e.timestamp()
	if err := e.roster.UpdateStatus(ctx, eventID, uid, roster.StatusPresent, ts); err != nil {
		return Outcome{Status: StatusError, Message: "local store write failed: " + err.Error()}
	}
	updated := *st
	updated.Status = roster.StatusPresent
	updated.Timestamp = ts
	return Outcome{Status: StatusSuccess, Student: &updated}
}

// upsertMerged writes a server-confirmed student, filling blank server fields
// from the locally known record.
func (e *Engine) upsertMerged(ctx context.Context, eventID int64, uid string, srv *roster.Student) (*roster.Student, error) {
	existing, err := e.roster.Get(ctx, eventID, uid)
	if err != nil {
		return nil, err
	}

	merged := roster.Student{EventID: eventID, UID: uid, Status: roster.StatusPresent}
	if srv != nil {
		merged.Name = srv.Name
		merged.Branch = srv.Branch
		merged.Year = srv.Year
		merged.Timestamp = srv.Timestamp
	}
	if merged.Name == "" {
		if existing != nil && existing.Name != "" {
			merged.Name = existing.Name
		} else {
			merged.Name = uid
		}
	}
	if merged.Branch == "" && existing != nil {
		merged.Branch = existing.Branch
	}
	if merged.Year == "" && existing != nil {
		merged.Year = existing.Year
	}
	if merged.Timestamp == "" {
		if existing != nil && existing.Timestamp != "" {
			merged.Timestamp = existing.Timestamp
		} else {
			merged.Timestamp = e.timestamp()
		}
	}

	if err := e.roster.Upsert(ctx, merged); err != nil {
		return nil, err
	}
	return &merged, nil
}

func (e *Engine) triggerSync(ctx context.Context, eventID int64) {
	if e.trigger == nil {
		return
	}
	msg := queue.Message{Type: queue.TypeSync, Body: []byte(strconv.FormatInt(eventID, 10))}
	if err := e.trigger.Publish(ctx, msg); err != nil {
		log.Printf("sync trigger publish failed: %v", err)
	}
}

func (e *Engine) timestamp() string {
	return e.now().Format(timestampFormat)
}
