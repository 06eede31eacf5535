package domain

import (
	"errors"
	"fmt"
)

// FieldError represents a single field's validation error.
type FieldError struct {
	Field string `json:"field"`
	Msg   string `json:"message"`
}

func (e FieldError) Error() string { return fmt.Sprintf("%s: %s", e.Field, e.Msg) }

// ValidateEvent performs the structural checks an event must pass before it
// reaches the pre-processors. Dates are checked later, when they are parsed.
func ValidateEvent(ev *Event) []FieldError {
	var errs []FieldError

	if ev.Event == "" {
		errs = append(errs, FieldError{"event", "required"})
	} else if len(ev.Event) > MaxUIDLen {
		errs = append(errs, FieldError{"event", fmt.Sprintf("max length %d", MaxUIDLen)})
	}

	if ev.OrgUnit == "" {
		errs = append(errs, FieldError{"orgUnit", "required"})
	} else if len(ev.OrgUnit) > MaxUIDLen {
		errs = append(errs, FieldError{"orgUnit", fmt.Sprintf("max length %d", MaxUIDLen)})
	}

	if ev.AttributeOptionCombo != "" && len(ev.AttributeOptionCombo) > MaxUIDLen {
		errs = append(errs, FieldError{"attributeOptionCombo", fmt.Sprintf("max length %d", MaxUIDLen)})
	}
	if ev.AssignedUser != "" && len(ev.AssignedUser) > MaxUIDLen {
		errs = append(errs, FieldError{"assignedUser", fmt.Sprintf("max length %d", MaxUIDLen)})
	}

	if ev.Status == "" {
		errs = append(errs, FieldError{"status", "required"})
	} else if !ev.Status.Valid() {
		errs = append(errs, FieldError{"status", fmt.Sprintf("unknown status %q", ev.Status)})
	}

	return errs
}

var (
	ErrEmptyBulk    = errors.New("events: required and must contain at least one item")
	ErrBulkTooLarge = errors.New("events: too many items")
)

// ValidateBulk enforces the count caps of a bulk request. Per-event checks are
// left to the importer, which reports them as conflicts.
func ValidateBulk(events []Event, maxItems int) error {
	if len(events) == 0 {
		return ErrEmptyBulk
	}
	if len(events) > maxItems {
		return fmt.Errorf("%w: max %d items", ErrBulkTooLarge, maxItems)
	}
	return nil
}
