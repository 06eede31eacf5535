package importer

import (
	"context"

	"example.com/trackerimport/internal/domain"
)

// ContextData holds the lookups resolved for one import batch. Every map is
// keyed by event uid.
type ContextData struct {
	Instances     map[string]*domain.ProgramStageInstance
	OrgUnits      map[string]*domain.OrganisationUnit
	OptionCombos  map[string]*domain.CategoryOptionCombo
	AssignedUsers map[string]*domain.User
}

// ValidationContext is the read-only view pre-processors work against. It is
// built once per batch and never mutated afterwards.
type ValidationContext struct {
	options ImportOptions
	data    ContextData
}

func NewValidationContext(opts ImportOptions, data ContextData) *ValidationContext {
	return &ValidationContext{options: opts, data: data}
}

func (c *ValidationContext) ImportOptions() ImportOptions { return c.options }

func (c *ValidationContext) ProgramStageInstance(eventUID string) (*domain.ProgramStageInstance, bool) {
	v, ok := c.data.Instances[eventUID]
	return v, ok && v != nil
}

func (c *ValidationContext) OrganisationUnit(eventUID string) (*domain.OrganisationUnit, bool) {
	v, ok := c.data.OrgUnits[eventUID]
	return v, ok && v != nil
}

func (c *ValidationContext) CategoryOptionCombo(eventUID string) (*domain.CategoryOptionCombo, bool) {
	v, ok := c.data.OptionCombos[eventUID]
	return v, ok && v != nil
}

func (c *ValidationContext) AssignedUser(eventUID string) (*domain.User, bool) {
	v, ok := c.data.AssignedUsers[eventUID]
	return v, ok && v != nil
}

// ContextLoader resolves the lookups for a batch of events.
type ContextLoader interface {
	Load(ctx context.Context, events []domain.Event, opts ImportOptions) (*ValidationContext, error)
}

// InstanceWriter persists mutated instances.
type InstanceWriter interface {
	SaveBatch(ctx context.Context, items []*domain.ProgramStageInstance) (int64, error)
}
