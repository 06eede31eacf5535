package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/paulmach/orb/geojson"

	"example.com/trackerimport/internal/domain"
	"example.com/trackerimport/internal/importer"
)

// ContextLoader resolves the import lookups for a batch with one query per table.
type ContextLoader struct {
	db *DB
}

func NewContextLoader(db *DB) *ContextLoader { return &ContextLoader{db: db} }

func (l *ContextLoader) Load(ctx context.Context, events []domain.Event, opts importer.ImportOptions) (*importer.ValidationContext, error) {
	var eventUIDs, ouUIDs, cocUIDs, userUIDs []string
	for i := range events {
		ev := &events[i]
		eventUIDs = append(eventUIDs, ev.Event)
		if ev.OrgUnit != "" {
			ouUIDs = append(ouUIDs, ev.OrgUnit)
		}
		if ev.AttributeOptionCombo != "" {
			cocUIDs = append(cocUIDs, ev.AttributeOptionCombo)
		}
		if ev.AssignedUser != "" {
			userUIDs = append(userUIDs, ev.AssignedUser)
		}
	}

	instances, err := l.instances(ctx, eventUIDs)
	if err != nil {
		return nil, err
	}
	orgUnits, err := l.orgUnits(ctx, ouUIDs)
	if err != nil {
		return nil, err
	}
	combos, err := l.combos(ctx, cocUIDs)
	if err != nil {
		return nil, err
	}
	users, err := l.users(ctx, userUIDs)
	if err != nil {
		return nil, err
	}
	return importer.NewValidationContext(opts, assemble(events, instances, orgUnits, combos, users)), nil
}

// assemble re-keys the per-table results by event uid.
func assemble(
	events []domain.Event,
	instances map[string]*domain.ProgramStageInstance,
	orgUnits map[string]*domain.OrganisationUnit,
	combos map[string]*domain.CategoryOptionCombo,
	users map[string]*domain.User,
) importer.ContextData {
	data := importer.ContextData{
		Instances:     make(map[string]*domain.ProgramStageInstance, len(events)),
		OrgUnits:      make(map[string]*domain.OrganisationUnit, len(events)),
		OptionCombos:  make(map[string]*domain.CategoryOptionCombo, len(events)),
		AssignedUsers: make(map[string]*domain.User, len(events)),
	}
	for i := range events {
		ev := &events[i]
		if psi, ok := instances[ev.Event]; ok {
			data.Instances[ev.Event] = psi
		}
		if ou, ok := orgUnits[ev.OrgUnit]; ok {
			data.OrgUnits[ev.Event] = ou
		}
		if coc, ok := combos[ev.AttributeOptionCombo]; ok {
			data.OptionCombos[ev.Event] = coc
		}
		if u, ok := users[ev.AssignedUser]; ok {
			data.AssignedUsers[ev.Event] = u
		}
	}
	return data
}

const selectInstances = `
SELECT psi.uid, psi.status, psi.executiondate, psi.duedate, psi.storedby,
       psi.completedby, psi.completeddate, psi.geometry,
       ps.uid, ps.name, ps.enableuserassignment,
       ou.uid, ou.name, coc.uid, coc.name, u.uid, u.username
FROM programstageinstance psi
JOIN programstage ps ON ps.uid = psi.programstage_uid
LEFT JOIN organisationunit ou ON ou.uid = psi.organisationunit_uid
LEFT JOIN categoryoptioncombo coc ON coc.uid = psi.attributeoptioncombo_uid
LEFT JOIN users u ON u.uid = psi.assigneduser_uid
WHERE psi.uid = ANY($1::text[])`

func (l *ContextLoader) instances(ctx context.Context, uids []string) (map[string]*domain.ProgramStageInstance, error) {
	out := make(map[string]*domain.ProgramStageInstance, len(uids))
	if len(uids) == 0 {
		return out, nil
	}
	rows, err := l.db.Pool.Query(ctx, selectInstances, uids)
	if err != nil {
		return nil, fmt.Errorf("query instances: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			psi                          domain.ProgramStageInstance
			stage                        domain.ProgramStage
			status                       string
			execDate, dueDate, complDate *time.Time
			storedBy, completedBy        *string
			geom                         []byte
			ouUID, ouName                *string
			cocUID, cocName              *string
			userUID, username            *string
		)
		if err := rows.Scan(&psi.UID, &status, &execDate, &dueDate, &storedBy,
			&completedBy, &complDate, &geom,
			&stage.UID, &stage.Name, &stage.EnableUserAssignment,
			&ouUID, &ouName, &cocUID, &cocName, &userUID, &username); err != nil {
			return nil, fmt.Errorf("scan instance: %w", err)
		}
		st, err := domain.ParseEventStatus(status)
		if err != nil {
			return nil, fmt.Errorf("instance %s: %w", psi.UID, err)
		}
		g, err := decodeGeometry(geom)
		if err != nil {
			return nil, fmt.Errorf("instance %s geometry: %w", psi.UID, err)
		}

		psi.Status = st
		psi.ProgramStage = &stage
		psi.ExecutionDate = execDate
		psi.DueDate = dueDate
		psi.CompletedDate = complDate
		psi.StoredBy = deref(storedBy)
		psi.CompletedBy = deref(completedBy)
		psi.Geometry = g
		if ouUID != nil {
			psi.OrganisationUnit = &domain.OrganisationUnit{UID: *ouUID, Name: deref(ouName)}
		}
		if cocUID != nil {
			psi.AttributeOptionCombo = &domain.CategoryOptionCombo{UID: *cocUID, Name: deref(cocName)}
		}
		if userUID != nil {
			psi.AssignedUser = &domain.User{UID: *userUID, Username: deref(username)}
		}
		out[psi.UID] = &psi
	}
	return out, rows.Err()
}

func (l *ContextLoader) orgUnits(ctx context.Context, uids []string) (map[string]*domain.OrganisationUnit, error) {
	out := make(map[string]*domain.OrganisationUnit, len(uids))
	if len(uids) == 0 {
		return out, nil
	}
	rows, err := l.db.Pool.Query(ctx, `SELECT uid, name FROM organisationunit WHERE uid = ANY($1::text[])`, uids)
	if err != nil {
		return nil, fmt.Errorf("query organisation units: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var ou domain.OrganisationUnit
		if err := rows.Scan(&ou.UID, &ou.Name); err != nil {
			return nil, fmt.Errorf("scan organisation unit: %w", err)
		}
		out[ou.UID] = &ou
	}
	return out, rows.Err()
}

func (l *ContextLoader) combos(ctx context.Context, uids []string) (map[string]*domain.CategoryOptionCombo, error) {
	out := make(map[string]*domain.CategoryOptionCombo, len(uids))
	if len(uids) == 0 {
		return out, nil
	}
	rows, err := l.db.Pool.Query(ctx, `SELECT uid, name FROM categoryoptioncombo WHERE uid = ANY($1::text[])`, uids)
	if err != nil {
		return nil, fmt.Errorf("query category option combos: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var coc domain.CategoryOptionCombo
		if err := rows.Scan(&coc.UID, &coc.Name); err != nil {
			return nil, fmt.Errorf("scan category option combo: %w", err)
		}
		out[coc.UID] = &coc
	}
	return out, rows.Err()
}

func (l *ContextLoader) users(ctx context.Context, uids []string) (map[string]*domain.User, error) {
	out := make(map[string]*domain.User, len(uids))
	if len(uids) == 0 {
		return out, nil
	}
	rows, err := l.db.Pool.Query(ctx, `SELECT uid, username FROM users WHERE uid = ANY($1::text[])`, uids)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.UID, &u.Username); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out[u.UID] = &u
	}
	return out, rows.Err()
}

func decodeGeometry(b []byte) (*geojson.Geometry, error) {
	if len(b) == 0 || string(b) == "null" {
		return nil, nil
	}
	return geojson.UnmarshalGeometry(b)
}

// encodeGeometry returns nil for a nil geometry so the column is stored as NULL.
func encodeGeometry(g *geojson.Geometry) (*string, error) {
	if g == nil {
		return nil, nil
	}
	b, err := json.Marshal(g)
	if err != nil {
		return nil, err
	}
	s := string(b)
	return &s, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
