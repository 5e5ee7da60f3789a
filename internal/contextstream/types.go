// Package contextstream implements the context & view-stream subsystem
// (C6): per-owner LRU-N working-set containers and the append-only,
// linked-list-ordered View timeline. Both ContextFrame and View are stored
// as typed Entities in Core (internal/core); this package owns only their
// payload shape and the verbs that mutate it.
package contextstream

import (
	"encoding/json"
	"time"
)

// Owner kinds for a ContextFrame (§3).
const (
	OwnerOperator = "operator"
	OwnerAgent    = "agent"
	OwnerScope    = "scope"
)

// Default and bounds for the LRU-N container list (§4.6).
const (
	DefaultN = 7
	MinN     = 3
	MaxN     = 20
)

// primitiveTypes are Entity types that never enter a frame's containers
// (§4.6, INV-17/18/19). Hard-coded per §9 Open Question (b): a future
// version should make this data-driven.
var primitiveTypes = map[string]bool{
	"Schema":       true,
	"SystemConfig": true,
	"ContextFrame": true,
}

// IsPrimitive reports whether entityType is in the primitive set.
func IsPrimitive(entityType string) bool {
	return primitiveTypes[entityType]
}

// Frame is the ContextFrame payload (§3).
type Frame struct {
	Owner           string   `json:"owner"`
	OwnerType       string   `json:"owner_type"`
	Containers      []string `json:"containers"`
	ViewTimeline    []string `json:"view_timeline"`
	ParentFrameUUID *string  `json:"parent_frame_uuid,omitempty"`
	ActiveScopes    []string `json:"active_scopes,omitempty"`
	PrimaryScope    *string  `json:"primary_scope,omitempty"`
}

// Action is one entry in a View's ordered actions list (§3).
type Action struct {
	Type      string    `json:"type"`
	Target    string    `json:"target"`
	Timestamp time.Time `json:"timestamp"`
	Visited   []string  `json:"visited,omitempty"`
}

// View is the append-only action-record payload (§3).
type View struct {
	Actor            string    `json:"actor"`
	Actions          []Action  `json:"actions"`
	StartedAt        time.Time `json:"started_at"`
	EndedAt          *time.Time `json:"ended_at,omitempty"`
	Prev             *string   `json:"prev,omitempty"`
	ContextFrameUUID string    `json:"context_frame_uuid"`
}

func marshalFrame(f Frame) (json.RawMessage, error) {
	return json.Marshal(f)
}

func unmarshalFrame(raw json.RawMessage) (Frame, error) {
	var f Frame
	err := json.Unmarshal(raw, &f)
	// omitempty drops an empty active_scopes on write; operator frames
	// always carry the (possibly empty) set.
	if err == nil && f.OwnerType == OwnerOperator && f.ActiveScopes == nil {
		f.ActiveScopes = []string{}
	}
	return f, err
}

func marshalView(v View) (json.RawMessage, error) {
	return json.Marshal(v)
}

func unmarshalView(raw json.RawMessage) (View, error) {
	var v View
	err := json.Unmarshal(raw, &v)
	return v, err
}
