package store

import (
	"fmt"

	"retrieval/internal/domain"
)

// CurrentSchemaVersion is the current schema version.
// Increment this when making breaking changes to the storage format.
const CurrentSchemaVersion = 1

func checkSchema(m domain.Manifest) error {
	if m.SchemaVersion > CurrentSchemaVersion {
		return fmt.Errorf("%w: index written by schema v%d, this build reads up to v%d", domain.ErrUnsupportedSchema, m.SchemaVersion, CurrentSchemaVersion)
	}
	return nil
}

// MigrationResult describes whether a stored index can still be served.
type MigrationResult struct {
	NeedsRebuild bool
	OldVersion   int
	NewVersion   int
	Reason       string
}

// CheckMigration compares a stored manifest with the running build and the
// current index configuration hash.
func CheckMigration(m domain.Manifest, configHash string) MigrationResult {
	result := MigrationResult{
		OldVersion: m.SchemaVersion,
		NewVersion: CurrentSchemaVersion,
	}

	switch {
	case m.SchemaVersion > CurrentSchemaVersion:
		result.NeedsRebuild = true
		result.Reason = fmt.Sprintf("index created by newer version (v%d > v%d)", m.SchemaVersion, CurrentSchemaVersion)
	case m.SchemaVersion < CurrentSchemaVersion:
		result.NeedsRebuild = true
		result.Reason = fmt.Sprintf("schema upgrade from v%d to v%d", m.SchemaVersion, CurrentSchemaVersion)
	case configHash != "" && m.ConfigHash != "" && m.ConfigHash != configHash:
		result.NeedsRebuild = true
		result.Reason = "index configuration changed"
	}
	return result
}
