package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sharmayash2805/Event-Attendance-System/internal/roster"
)

// ResultKind classifies the server's answer to a mark or add request.
type ResultKind int

const (
	// KindSuccess: the server recorded the mark.
	KindSuccess ResultKind = iota
	// KindAlreadyMarked: the server had recorded it earlier; treated as success.
	KindAlreadyMarked
	// KindInvalid: the server permanently rejected the student or action.
	KindInvalid
	// KindError: transient failure (network, 5xx, malformed body).
	KindError
)

// MarkResult is the server's answer to a mark/add request. Student is set for
// Success and AlreadyMarked; Message carries detail for Error.
type MarkResult struct {
	Kind    ResultKind
	Student *roster.Student
	Message string
}

// Event is one attendance event as reported by the server.
type Event struct {
	EventID   int64  `json:"event_id"`
	EventName string `json:"event_name"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	IsActive  bool   `json:"is_active"`
}

// Session is the open session for an event, if any.
type Session struct {
	SessionID   int64  `json:"session_id"`
	SessionName string `json:"session_name"`
	IsOpen      bool   `json:"is_open"`
}

// Stats is the server-side attendance summary.
type Stats struct {
	Total     int `json:"total"`
	Present   int `json:"present"`
	Remaining int `json:"remaining"`
}

// Client talks to the remote attendance server. The server is the final
// authority for attendance state; the reconciliation engine consumes the
// result kinds above and never inspects transport details.
type Client struct {
	BaseURL  string
	DeviceID string
	HTTP     *http.Client
}

// New creates a client with bounded connect/request timeouts.
func New(baseURL, deviceID string, connectTimeout, requestTimeout time.Duration) *Client {
	return &Client{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		DeviceID: deviceID,
		HTTP: &http.Client{
			Timeout: requestTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: connectTimeout}).DialContext,
			},
		},
	}
}

func (c *Client) url(path string) string {
	if strings.HasPrefix(path, "http") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.BaseURL + path
}

// wireStudent is the student shape the server sends.
type wireStudent struct {
	UID       string `json:"uid"`
	Name      string `json:"name"`
	Branch    string `json:"branch"`
	Year      string `json:"year"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

func (w *wireStudent) toStudent(eventID int64, fallbackUID, defaultStatus string) *roster.Student {
	if w == nil {
		return &roster.Student{
			EventID: eventID,
			UID:     fallbackUID,
			Name:    fallbackUID,
			Status:  defaultStatus,
		}
	}
	st := &roster.Student{
		EventID:   eventID,
		UID:       w.UID,
		Name:      w.Name,
		Branch:    w.Branch,
		Year:      w.Year,
		Status:    w.Status,
		Timestamp: w.Timestamp,
	}
	if st.UID == "" {
		st.UID = fallbackUID
	}
	if st.Name == "" {
		st.Name = fallbackUID
	}
	if st.Status == "" {
		st.Status = defaultStatus
	}
	return st
}

// Mark posts an attendance mark and maps the response onto a MarkResult:
// 409 -> AlreadyMarked, 404 -> Invalid, other non-2xx -> Error; a 2xx body
// with an "invalid" error -> Invalid, any other error body -> Error.
func (c *Client) Mark(ctx context.Context, eventID int64, uid, deviceTimestamp string) MarkResult {
	body, _ := json.Marshal(map[string]any{
		"uid":              uid,
		"event_id":         eventID,
		"device_id":        c.DeviceID,
		"device_timestamp": deviceTimestamp,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/mark"), bytes.NewReader(body))
	if err != nil {
		return MarkResult{Kind: KindError, Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return MarkResult{Kind: KindError, Message: fmt.Sprintf("attendance server request failed: %v", err)}
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		switch resp.StatusCode {
		case http.StatusConflict:
			var out struct {
				Student *wireStudent `json:"student"`
			}
			_ = json.Unmarshal(raw, &out)
			return MarkResult{Kind: KindAlreadyMarked, Student: out.Student.toStudent(eventID, uid, roster.StatusPresent)}
		case http.StatusNotFound:
			return MarkResult{Kind: KindInvalid}
		default:
			return MarkResult{Kind: KindError, Message: extractError(raw)}
		}
	}

	var out struct {
		Success   bool         `json:"success"`
		Error     string       `json:"error"`
		Timestamp string       `json:"timestamp"`
		Student   *wireStudent `json:"student"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return MarkResult{Kind: KindError, Message: fmt.Sprintf("failed to decode response: %v", err)}
	}

	if out.Error != "" {
		if strings.Contains(strings.ToLower(out.Error), "invalid") {
			return MarkResult{Kind: KindInvalid}
		}
		return MarkResult{Kind: KindError, Message: out.Error}
	}

	if out.Success {
		st := out.Student.toStudent(eventID, uid, roster.StatusPresent)
		st.Status = roster.StatusPresent
		if out.Timestamp != "" {
			st.Timestamp = out.Timestamp
		}
		return MarkResult{Kind: KindSuccess, Student: st}
	}

	return MarkResult{Kind: KindError, Message: "Unexpected server response"}
}

// AddStudent registers a student and marks them present in one call. The add
// path has no invalid concept: every non-success maps to Error.
func (c *Client) AddStudent(ctx context.Context, eventID int64, uid, name, branch, year string) MarkResult {
	body, _ := json.Marshal(map[string]any{
		"event_id": eventID,
		"uid":      uid,
		"name":     name,
		"branch":   branch,
		"year":     year,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/add"), bytes.NewReader(body))
	if err != nil {
		return MarkResult{Kind: KindError, Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return MarkResult{Kind: KindError, Message: fmt.Sprintf("attendance server request failed: %v", err)}
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return MarkResult{Kind: KindError, Message: extractError(raw)}
	}

	var out struct {
		Success   bool         `json:"success"`
		Error     string       `json:"error"`
		Timestamp string       `json:"timestamp"`
		Student   *wireStudent `json:"student"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return MarkResult{Kind: KindError, Message: fmt.Sprintf("failed to decode response: %v", err)}
	}
	if out.Success {
		st := out.Student.toStudent(eventID, uid, roster.StatusPresent)
		st.Status = roster.StatusPresent
		if st.Name == uid && name != "" {
			st.Name = name
		}
		if st.Branch == "" {
			st.Branch = branch
		}
		if st.Year == "" {
			st.Year = year
		}
		if out.Timestamp != "" {
			st.Timestamp = out.Timestamp
		}
		return MarkResult{Kind: KindSuccess, Student: st}
	}
	if out.Error != "" {
		return MarkResult{Kind: KindError, Message: out.Error}
	}
	return MarkResult{Kind: KindError, Message: "Unable to add student"}
}

// Stats fetches the server-side attendance summary for an event.
func (c *Client) Stats(ctx context.Context, eventID int64) (*Stats, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.statsURL(eventID), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("attendance server request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("attendance server error: %s", resp.Status)
	}
	var out Stats
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &out, nil
}

// Ping reports whether the server answers the stats probe.
func (c *Client) Ping(ctx context.Context, eventID int64) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.statsURL(eventID), nil)
	if err != nil {
		return false
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 300
}

func (c *Client) statsURL(eventID int64) string {
	params := url.Values{}
	if eventID > 0 {
		params.Set("event_id", strconv.FormatInt(eventID, 10))
	}
	if c.DeviceID != "" {
		params.Set("device_id", c.DeviceID)
	}
	query := params.Encode()
	if query != "" {
		query = "?" + query
	}
	return c.url("/stats" + query)
}

// Events lists events, optionally only active ones.
func (c *Client) Events(ctx context.Context, activeOnly bool) ([]Event, error) {
	path := "/events"
	if activeOnly {
		path += "?active=1"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(path), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("attendance server request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("attendance server error: %s", resp.Status)
	}
	var out []Event
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return out, nil
}

// OpenSession returns the open session for an event, or nil when the server
// reports none.
func (c *Client) OpenSession(ctx context.Context, eventID int64) (*Session, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(fmt.Sprintf("/api/event/%d/session", eventID)), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("attendance server request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, nil
	}
	var out struct {
		Session
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if out.Error != "" {
		return nil, nil
	}
	return &out.Session, nil
}

// Search queries the server roster by name or uid substring.
func (c *Client) Search(ctx context.Context, eventID int64, query string) ([]roster.Student, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	params := url.Values{}
	params.Set("event_id", strconv.FormatInt(eventID, 10))
	params.Set("q", query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("/search?"+params.Encode()), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("attendance server request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("attendance server error: %s", resp.Status)
	}
	return c.decodeStudents(resp.Body, eventID)
}

// Roster fetches the full roster snapshot for merge-on-select.
func (c *Client) Roster(ctx context.Context, eventID int64) ([]roster.Student, error) {
	params := url.Values{}
	params.Set("event_id", strconv.FormatInt(eventID, 10))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("/roster?"+params.Encode()), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("attendance server request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("attendance server error: %s", resp.Status)
	}
	return c.decodeStudents(resp.Body, eventID)
}

func (c *Client) decodeStudents(r io.Reader, eventID int64) ([]roster.Student, error) {
	var wire []wireStudent
	if err := json.NewDecoder(r).Decode(&wire); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	res := make([]roster.Student, 0, len(wire))
	for i := range wire {
		res = append(res, *wire[i].toStudent(eventID, wire[i].UID, roster.StatusAbsent))
	}
	return res, nil
}

func extractError(raw []byte) string {
	var out struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &out); err == nil && out.Error != "" {
		return out.Error
	}
	return "Request failed"
}
