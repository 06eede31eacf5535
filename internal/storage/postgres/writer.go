package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"example.com/trackerimport/internal/domain"
)

type Writer struct {
	db *DB
}

func NewWriter(db *DB) *Writer { return &Writer{db: db} }

const updateInstance = `
UPDATE programstageinstance SET
  status = $2,
  executiondate = $3,
  duedate = $4,
  storedby = $5,
  completedby = $6,
  completeddate = $7,
  organisationunit_uid = $8,
  attributeoptioncombo_uid = $9,
  assigneduser_uid = $10,
  geometry = $11::jsonb,
  lastupdated = now()
WHERE uid = $1`

// SaveBatch writes every instance in one transaction and returns the number
// of rows updated.
func (w *Writer) SaveBatch(ctx context.Context, items []*domain.ProgramStageInstance) (int64, error) {
	if len(items) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, psi := range items {
		args, err := updateArgs(psi)
		if err != nil {
			return 0, err
		}
		batch.Queue(updateInstance, args...)
	}

	tx, err := w.db.Pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	br := tx.SendBatch(ctx, batch)
	var affected int64
	for range items {
		ct, err := br.Exec()
		if err != nil {
			_ = br.Close()
			return 0, fmt.Errorf("update instance: %w", err)
		}
		affected += ct.RowsAffected()
	}
	if err := br.Close(); err != nil {
		return 0, fmt.Errorf("close batch: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return affected, nil
}

// updateArgs maps empty strings and nil references to NULL.
func updateArgs(psi *domain.ProgramStageInstance) ([]any, error) {
	geom, err := encodeGeometry(psi.Geometry)
	if err != nil {
		return nil, fmt.Errorf("instance %s geometry: %w", psi.UID, err)
	}

	var ou, coc, assigned *string
	if psi.OrganisationUnit != nil {
		ou = &psi.OrganisationUnit.UID
	}
	if psi.AttributeOptionCombo != nil {
		coc = &psi.AttributeOptionCombo.UID
	}
	if psi.AssignedUser != nil {
		assigned = &psi.AssignedUser.UID
	}

	return []any{
		psi.UID,
		string(psi.Status),
		psi.ExecutionDate,
		psi.DueDate,
		nullable(psi.StoredBy),
		nullable(psi.CompletedBy),
		psi.CompletedDate,
		ou,
		coc,
		assigned,
		geom,
	}, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
