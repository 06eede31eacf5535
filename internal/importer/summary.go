package importer

import (
	"fmt"

	"example.com/trackerimport/internal/domain"
)

type ImportStatus string

const (
	ImportStatusSuccess ImportStatus = "SUCCESS"
	ImportStatusWarning ImportStatus = "WARNING"
	ImportStatusError   ImportStatus = "ERROR"
)

// ImportConflict describes one problem found while importing.
type ImportConflict struct {
	Object string `json:"object"`
	Value  string `json:"value"`
}

type ImportSummary struct {
	Status    ImportStatus     `json:"status"`
	Updated   int              `json:"updated"`
	Ignored   int              `json:"ignored"`
	Conflicts []ImportConflict `json:"conflicts,omitempty"`
}

func NewImportSummary() *ImportSummary {
	return &ImportSummary{Status: ImportStatusSuccess}
}

func (s *ImportSummary) AddConflict(object, value string) {
	s.Conflicts = append(s.Conflicts, ImportConflict{Object: object, Value: value})
}

func (s *ImportSummary) HasConflicts() bool { return len(s.Conflicts) > 0 }

// finalize derives the status from counts and conflicts.
func (s *ImportSummary) finalize() {
	switch {
	case !s.HasConflicts():
		s.Status = ImportStatusSuccess
	case s.Updated == 0:
		s.Status = ImportStatusError
	default:
		s.Status = ImportStatusWarning
	}
}

// ImportOptions configures one import run.
type ImportOptions struct {
	// User is the acting user; nil when the import runs unattended.
	User   *domain.User
	DryRun bool
}

func (o ImportOptions) fallbackUsername() string {
	return domain.UsernameOf(o.User)
}

func usernameConflictValue(username string) string {
	return fmt.Sprintf("%s is more than %d characters, using current username instead", username, domain.MaxUsernameLength)
}
