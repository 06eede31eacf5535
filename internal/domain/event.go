package domain

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/paulmach/orb/geojson"
)

// EventStatus is the lifecycle status of an event and of the program stage
// instance that persists it.
type EventStatus string

const (
	StatusActive    EventStatus = "ACTIVE"
	StatusCompleted EventStatus = "COMPLETED"
	StatusVisited   EventStatus = "VISITED"
	StatusSchedule  EventStatus = "SCHEDULE"
	StatusOverdue   EventStatus = "OVERDUE"
	StatusSkipped   EventStatus = "SKIPPED"
)

var knownStatuses = map[EventStatus]struct{}{
	StatusActive:    {},
	StatusCompleted: {},
	StatusVisited:   {},
	StatusSchedule:  {},
	StatusOverdue:   {},
	StatusSkipped:   {},
}

// ParseEventStatus accepts any letter case.
func ParseEventStatus(s string) (EventStatus, error) {
	st := EventStatus(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := knownStatuses[st]; !ok {
		return "", fmt.Errorf("unknown event status %q", s)
	}
	return st, nil
}

// UnmarshalJSON normalizes case; unknown values are left for ValidateEvent.
func (s *EventStatus) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*s = EventStatus(strings.ToUpper(strings.TrimSpace(raw)))
	return nil
}

func (s EventStatus) Valid() bool {
	_, ok := knownStatuses[s]
	return ok
}

// Event is an incoming tracker event as submitted for import.
// Date fields are raw strings; an empty string means "not supplied".
type Event struct {
	Event                string            `json:"event"`
	ProgramStage         string            `json:"programStage,omitempty"`
	OrgUnit              string            `json:"orgUnit,omitempty"`
	AttributeOptionCombo string            `json:"attributeOptionCombo,omitempty"`
	AssignedUser         string            `json:"assignedUser,omitempty"`
	Status               EventStatus       `json:"status"`
	EventDate            string            `json:"eventDate,omitempty"`
	DueDate              string            `json:"dueDate,omitempty"`
	StoredBy             string            `json:"storedBy,omitempty"`
	CompletedBy          string            `json:"completedBy,omitempty"`
	CompletedDate        string            `json:"completedDate,omitempty"`
	Geometry             *geojson.Geometry `json:"geometry,omitempty"`
}

// UID is the key every import lookup is indexed by.
func (e *Event) UID() string { return e.Event }

// Length limits enforced on incoming events.
const (
	MaxUIDLen = 11
	// MaxUsernameLength bounds stored-by and completed-by usernames.
	MaxUsernameLength = 255
)
