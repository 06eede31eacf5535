package domain

import (
	"time"

	"github.com/paulmach/orb/geojson"
)

type OrganisationUnit struct {
	UID  string `json:"id"`
	Name string `json:"name,omitempty"`
}

type CategoryOptionCombo struct {
	UID  string `json:"id"`
	Name string `json:"name,omitempty"`
}

// ProgramStage is read-only metadata attached to every instance.
type ProgramStage struct {
	UID                  string `json:"id"`
	Name                 string `json:"name,omitempty"`
	EnableUserAssignment bool   `json:"enableUserAssignment"`
}

// ProgramStageInstance is the persisted record behind an event. It is owned by
// the storage layer; import code mutates it in place and hands it back for
// saving.
type ProgramStageInstance struct {
	UID                  string
	ProgramStage         *ProgramStage
	Status               EventStatus
	ExecutionDate        *time.Time
	DueDate              *time.Time
	StoredBy             string
	CompletedBy          string
	CompletedDate        *time.Time
	OrganisationUnit     *OrganisationUnit
	AttributeOptionCombo *CategoryOptionCombo
	AssignedUser         *User
	Geometry             *geojson.Geometry
}

// UserAssignmentEnabled reports whether the stage lets events be assigned.
func (psi *ProgramStageInstance) UserAssignmentEnabled() bool {
	return psi.ProgramStage != nil && psi.ProgramStage.EnableUserAssignment
}
