// Package syncer replays queued offline actions against the attendance
// server and folds the results back into the local roster cache.
package syncer

import (
	"context"
	"encoding/json"
	"log"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sharmayash2805/Event-Attendance-System/internal/pending"
	"github.com/sharmayash2805/Event-Attendance-System/internal/reconcile"
	"github.com/sharmayash2805/Event-Attendance-System/internal/remote"
	"github.com/sharmayash2805/Event-Attendance-System/internal/roster"
)

// Report summarizes one drain pass. Retried > 0 means the caller should
// reschedule with backoff; the actions stay queued.
type Report struct {
	Succeeded int `json:"succeeded"`
	Retried   int `json:"retried"`
}

// NeedsRetry reports whether any action was left in the queue.
func (r Report) NeedsRetry() bool { return r.Retried > 0 }

// Drainer walks the pending-action queue in FIFO order. A pass is not
// transactional across actions: each replay is its own commit point, which
// is safe because every replay is idempotent on the server side.
type Drainer struct {
	roster  *roster.Store
	pending *pending.Queue
	remote  reconcile.RemoteService
}

// NewDrainer wires a drainer.
func NewDrainer(rs *roster.Store, pq *pending.Queue, svc reconcile.RemoteService) *Drainer {
	return &Drainer{roster: rs, pending: pq, remote: svc}
}

var drainedActions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "attendance_drained_actions_total",
	Help: "Pending actions processed by the sync drainer, by result.",
}, []string{"result"})

// Drain replays every pending action once. Earlier actions are replayed
// first so old marks are never starved by new ones; a transient server
// error leaves the action in place and marks the pass for retry.
func (d *Drainer) Drain(ctx context.Context) (Report, error) {
	actions, err := d.pending.Pending(ctx)
	if err != nil {
		return Report{}, err
	}

	var report Report
	for _, a := range actions {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		switch a.Kind {
		case pending.KindMarkPresent:
			if err := d.replayMark(ctx, a, &report); err != nil {
				return report, err
			}
		case pending.KindAddStudent:
			if err := d.replayAdd(ctx, a, &report); err != nil {
				return report, err
			}
		default:
			// Never let an unrecognized entry block the queue forever.
			log.Printf("dropping unknown queued action %q (id=%d)", a.Kind, a.ID)
			if err := d.pending.Remove(ctx, a.ID); err != nil {
				return report, err
			}
			drainedActions.WithLabelValues("dropped").Inc()
		}
	}
	return report, nil
}

func (d *Drainer) replayMark(ctx context.Context, a pending.Action, report *Report) error {
	var p pending.MarkPayload
	if a.Payload != "" {
		if err := json.Unmarshal([]byte(a.Payload), &p); err != nil {
			log.Printf("queued mark %d has malformed payload: %v", a.ID, err)
		}
	}

	res := d.remote.Mark(ctx, a.EventID, a.UID, p.DeviceTimestamp)
	switch res.Kind {
	case remote.KindSuccess, remote.KindAlreadyMarked:
		// Server confirmed: ensure the local row is Present, not Queued.
		st := res.Student
		if st == nil {
			st = &roster.Student{Name: a.UID}
		}
		confirmed := *st
		confirmed.EventID = a.EventID
		confirmed.UID = a.UID
		confirmed.Status = roster.StatusPresent
		if err := d.roster.Upsert(ctx, confirmed); err != nil {
			return err
		}
		if err := d.pending.Remove(ctx, a.ID); err != nil {
			return err
		}
		report.Succeeded++
		drainedActions.WithLabelValues("confirmed").Inc()

	case remote.KindInvalid:
		// Server authoritatively rejected the mark: revert the optimistic row.
		if err := d.roster.UpdateStatus(ctx, a.EventID, a.UID, roster.StatusAbsent, ""); err != nil {
			return err
		}
		if err := d.pending.Remove(ctx, a.ID); err != nil {
			return err
		}
		report.Succeeded++
		drainedActions.WithLabelValues("rejected").Inc()

	default:
		report.Retried++
		drainedActions.WithLabelValues("retried").Inc()
	}
	return nil
}

func (d *Drainer) replayAdd(ctx context.Context, a pending.Action, report *Report) error {
	var p pending.AddPayload
	if a.Payload != "" {
		if err := json.Unmarshal([]byte(a.Payload), &p); err != nil {
			log.Printf("queued add %d has malformed payload: %v", a.ID, err)
		}
	}

	res := d.remote.AddStudent(ctx, a.EventID, a.UID, p.Name, p.Branch, p.Year)
	if res.Kind == remote.KindError {
		report.Retried++
		drainedActions.WithLabelValues("retried").Inc()
		return nil
	}

	// Success, already-existed, or permanently rejected: none warrant another
	// attempt. The local record is left as-is; registration never reverts.
	if err := d.pending.Remove(ctx, a.ID); err != nil {
		return err
	}
	report.Succeeded++
	drainedActions.WithLabelValues("confirmed").Inc()
	return nil
}
