package importer

import (
	"errors"
	"fmt"
	"time"

	"example.com/trackerimport/internal/dateutil"
	"example.com/trackerimport/internal/domain"
)

var ErrInstanceNotFound = errors.New("program stage instance not found")

// PreProcessor prepares an event before it is persisted.
type PreProcessor interface {
	Process(ev *domain.Event, vctx *ValidationContext) error
}

// UpdatePreProcessor copies an incoming event onto its existing program stage
// instance.
type UpdatePreProcessor struct {
	Now func() time.Time
}

func NewUpdatePreProcessor(now func() time.Time) *UpdatePreProcessor {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &UpdatePreProcessor{Now: now}
}

// Process mutates the instance only after every date on the event has parsed,
// so a failed call leaves the instance as it was.
func (p *UpdatePreProcessor) Process(ev *domain.Event, vctx *ValidationContext) error {
	uid := ev.UID()
	psi, ok := vctx.ProgramStageInstance(uid)
	if !ok {
		return fmt.Errorf("event %s: %w", uid, ErrInstanceNotFound)
	}
	orgUnit, _ := vctx.OrganisationUnit(uid)
	combo, hasCombo := vctx.CategoryOptionCombo(uid)
	fallback := vctx.ImportOptions().fallbackUsername()
	now := p.Now()

	dueDate, err := dateutil.ParseOr(ev.DueDate, now)
	if err != nil {
		return fmt.Errorf("event %s: due date: %w", uid, err)
	}

	var executionDate *time.Time
	if ev.EventDate != "" {
		t, err := dateutil.Parse(ev.EventDate)
		if err != nil {
			return fmt.Errorf("event %s: event date: %w", uid, err)
		}
		executionDate = &t
	}

	completing := psi.Status != ev.Status && ev.Status == domain.StatusCompleted

	var completedDate time.Time
	if completing {
		completedDate, err = dateutil.ParseOr(ev.CompletedDate, now)
		if err != nil {
			return fmt.Errorf("event %s: completed date: %w", uid, err)
		}
	}

	if executionDate != nil {
		psi.ExecutionDate = executionDate
	}
	if hasCombo {
		psi.AttributeOptionCombo = combo
	}

	storedBy := ResolveUsername(ev.StoredBy, nil, fallback)

	switch {
	case ev.Status == domain.StatusActive:
		psi.Status = domain.StatusActive
		psi.CompletedBy = ""
		psi.CompletedDate = nil
	case completing:
		psi.CompletedBy = ResolveUsername(ev.CompletedBy, nil, fallback)
		psi.CompletedDate = &completedDate
		psi.Status = domain.StatusCompleted
	case ev.Status == domain.StatusSkipped:
		psi.Status = domain.StatusSkipped
	case ev.Status == domain.StatusSchedule:
		psi.Status = domain.StatusSchedule
	}

	psi.StoredBy = storedBy
	psi.DueDate = &dueDate
	psi.OrganisationUnit = orgUnit
	psi.Geometry = ev.Geometry

	if psi.UserAssignmentEnabled() {
		assigned, _ := vctx.AssignedUser(uid)
		psi.AssignedUser = assigned
	}
	return nil
}
