package importer

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"example.com/trackerimport/internal/dateutil"
	"example.com/trackerimport/internal/domain"
)

// Updater runs the event update pipeline: validate, resolve lookups,
// pre-process and persist.
type Updater struct {
	loader        ContextLoader
	writer        InstanceWriter
	preProcessors []PreProcessor
	logger        *zap.Logger
}

func NewUpdater(loader ContextLoader, writer InstanceWriter, logger *zap.Logger, preProcessors ...PreProcessor) *Updater {
	if len(preProcessors) == 0 {
		preProcessors = []PreProcessor{NewUpdatePreProcessor(nil)}
	}
	return &Updater{
		loader:        loader,
		writer:        writer,
		preProcessors: preProcessors,
		logger:        logger,
	}
}

// Update applies events to their existing instances. Per-event problems are
// reported as conflicts on the summary; the returned error is reserved for
// storage failures.
func (u *Updater) Update(ctx context.Context, events []domain.Event, opts ImportOptions) (*ImportSummary, error) {
	summary := NewImportSummary()

	valid := make([]domain.Event, 0, len(events))
	for i := range events {
		ev := &events[i]
		if errs := domain.ValidateEvent(ev); len(errs) > 0 {
			for _, fe := range errs {
				summary.AddConflict(conflictObject(ev), fe.Error())
			}
			summary.Ignored++
			continue
		}
		valid = append(valid, *ev)
	}

	if len(valid) == 0 {
		summary.finalize()
		return summary, nil
	}

	vctx, err := u.loader.Load(ctx, valid, opts)
	if err != nil {
		return nil, fmt.Errorf("load validation context: %w", err)
	}

	fallback := opts.fallbackUsername()
	toSave := make([]*domain.ProgramStageInstance, 0, len(valid))
	for i := range valid {
		ev := &valid[i]
		if opts.DryRun {
			ResolveUsername(ev.StoredBy, summary, fallback)
			if completes(ev, vctx) {
				ResolveUsername(ev.CompletedBy, summary, fallback)
			}
		}
		if err := u.process(ev, vctx); err != nil {
			summary.AddConflict(conflictObject(ev), describe(err))
			summary.Ignored++
			continue
		}
		psi, _ := vctx.ProgramStageInstance(ev.UID())
		toSave = append(toSave, psi)
	}

	if opts.DryRun {
		summary.Updated = len(toSave)
		summary.finalize()
		return summary, nil
	}

	if len(toSave) > 0 {
		affected, err := u.writer.SaveBatch(ctx, toSave)
		if err != nil {
			return nil, fmt.Errorf("save instances: %w", err)
		}
		if int(affected) != len(toSave) {
			u.logger.Warn("instance update count mismatch",
				zap.Int("expected", len(toSave)), zap.Int64("affected", affected))
		}
	}
	summary.Updated = len(toSave)
	summary.finalize()
	return summary, nil
}

func (u *Updater) process(ev *domain.Event, vctx *ValidationContext) error {
	for _, p := range u.preProcessors {
		if err := p.Process(ev, vctx); err != nil {
			return err
		}
	}
	return nil
}

func conflictObject(ev *domain.Event) string {
	if ev.Event == "" {
		return "Event"
	}
	return ev.Event
}

func describe(err error) string {
	var pe *dateutil.ParseError
	switch {
	case errors.Is(err, ErrInstanceNotFound):
		return "Event does not exist"
	case errors.As(err, &pe):
		return fmt.Sprintf("Invalid date: %s", pe.Input)
	default:
		return err.Error()
	}
}

// completes reports whether processing ev would move its instance to COMPLETED
// and so read the completed-by username.
func completes(ev *domain.Event, vctx *ValidationContext) bool {
	if ev.Status != domain.StatusCompleted {
		return false
	}
	psi, ok := vctx.ProgramStageInstance(ev.UID())
	return ok && psi.Status != ev.Status
}
