package roster

// Attendance states stored in the local cache. Queued is a provisional
// Present awaiting server confirmation and must never be reported as a
// confirmed Present.
const (
	StatusAbsent  = "Absent"
	StatusPresent = "Present"
	StatusQueued  = "Queued"
)

// Student is one roster row, keyed by (EventID, UID).
type Student struct {
	EventID   int64  `json:"event_id"`
	UID       string `json:"uid"`
	Name      string `json:"name"`
	Branch    string `json:"branch"`
	Year      string `json:"year"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// Stats summarizes an event's roster.
type Stats struct {
	Total     int `json:"total"`
	Present   int `json:"present"`
	Remaining int `json:"remaining"`
}
