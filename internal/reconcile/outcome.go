package reconcile

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sharmayash2805/Event-Attendance-System/internal/roster"
)

// Status classifies a scan. Callers must branch on all five values;
// Queued in particular must be rendered as provisional, never as a
// confirmed Present.
type Status string

const (
	StatusSuccess       Status = "SUCCESS"
	StatusAlreadyMarked Status = "ALREADY"
	StatusInvalid       Status = "INVALID"
	StatusQueued        Status = "QUEUED"
	StatusError         Status = "ERROR"
)

// Outcome is the engine's answer to one scan or registration. Student is
// set whenever a local record exists for the key; Message carries server
// or store detail for Queued and Error.
type Outcome struct {
	Status  Status          `json:"status"`
	Student *roster.Student `json:"student,omitempty"`
	Message string          `json:"message,omitempty"`
}

var scanOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "attendance_scan_outcomes_total",
	Help: "Scan outcomes by reconciliation status.",
}, []string{"status"})

func (e *Engine) observe(o Outcome) Outcome {
	scanOutcomes.WithLabelValues(string(o.Status)).Inc()
	return o
}
