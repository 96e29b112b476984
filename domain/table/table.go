// Package table implements the table-metadata entity (spec §3, §4.7):
// its shape, invariants, and lifecycle state machine. Persistence lives in
// infrastructure/persistence/sql; this package owns only the domain rules.
package table

import (
	"time"

	pretendererrors "github.com/pretender-db/pretender/pkg/errors"
	"github.com/pretender-db/pretender/pkg/utils"
)

// ProjectionType is a GSI's attribute projection mode.
type ProjectionType string

const (
	ProjectionAll       ProjectionType = "ALL"
	ProjectionKeysOnly  ProjectionType = "KEYS_ONLY"
	ProjectionInclude   ProjectionType = "INCLUDE"
)

// StreamViewType controls which images a stream record carries (spec §4.9).
type StreamViewType string

const (
	StreamViewKeysOnly         StreamViewType = "KEYS_ONLY"
	StreamViewNewImage         StreamViewType = "NEW_IMAGE"
	StreamViewOldImage         StreamViewType = "OLD_IMAGE"
	StreamViewNewAndOldImages  StreamViewType = "NEW_AND_OLD_IMAGES"
)

// Status is a table's lifecycle state (spec §4.7).
type Status string

const (
	StatusCreating Status = "CREATING"
	StatusActive   Status = "ACTIVE"
	StatusUpdating Status = "UPDATING"
	StatusDeleting Status = "DELETING"
)

// GSI describes one Global Secondary Index.
type GSI struct {
	IndexName         string
	HashKey           string
	SortKey           string // empty if none
	Projection        ProjectionType
	NonKeyAttributes  []string // only meaningful with ProjectionInclude
}

// Validate checks a single GSI's internal invariants.
func (g GSI) Validate() error {
	if g.IndexName == "" {
		return pretendererrors.NewValidationError("GSI index name cannot be empty")
	}
	if g.HashKey == "" {
		return pretendererrors.NewValidationError("GSI %q must declare a hash key", g.IndexName)
	}
	if g.HashKey == g.SortKey && g.SortKey != "" {
		return pretendererrors.NewValidationError("GSI %q hash key and sort key must differ", g.IndexName)
	}
	switch g.Projection {
	case ProjectionAll, ProjectionKeysOnly, ProjectionInclude:
	default:
		return pretendererrors.NewValidationError("GSI %q has invalid projection type %q", g.IndexName, g.Projection)
	}
	if g.Projection != ProjectionInclude && len(g.NonKeyAttributes) > 0 {
		return pretendererrors.NewValidationError("GSI %q: non-key attributes only apply to INCLUDE projections", g.IndexName)
	}
	return nil
}

// Metadata is a table's full descriptor.
type Metadata struct {
	Name      string
	HashKey   string
	SortKey   string // empty if none
	GSIs      []GSI

	TTLAttribute string
	TTLEnabled   bool

	StreamEnabled   bool
	StreamViewType  StreamViewType

	Status    Status
	CreatedAt time.Time
}

// Validate enforces the table-metadata invariants from spec §3: name
// grammar, hash key ≠ sort key, unique GSI names, and TTL attribute not a
// key attribute.
func (m Metadata) Validate() error {
	if err := utils.ValidateTableName(m.Name); err != nil {
		return pretendererrors.NewValidationError("%v", err)
	}
	if m.HashKey == "" {
		return pretendererrors.NewValidationError("table %q must declare a hash key", m.Name)
	}
	if m.SortKey != "" && m.HashKey == m.SortKey {
		return pretendererrors.NewValidationError("table %q hash key and sort key must differ", m.Name)
	}

	seen := make(map[string]struct{}, len(m.GSIs))
	for _, gsi := range m.GSIs {
		if err := gsi.Validate(); err != nil {
			return err
		}
		if _, exists := seen[gsi.IndexName]; exists {
			return pretendererrors.NewValidationError("duplicate GSI index name %q", gsi.IndexName)
		}
		seen[gsi.IndexName] = struct{}{}
	}

	if m.TTLEnabled {
		if m.TTLAttribute == "" {
			return pretendererrors.NewValidationError("TTL enabled but no TTL attribute specified")
		}
		if m.TTLAttribute == m.HashKey || m.TTLAttribute == m.SortKey {
			return pretendererrors.NewValidationError("TTL attribute %q cannot be a key attribute", m.TTLAttribute)
		}
	}

	if m.StreamEnabled {
		switch m.StreamViewType {
		case StreamViewKeysOnly, StreamViewNewImage, StreamViewOldImage, StreamViewNewAndOldImages:
		default:
			return pretendererrors.NewValidationError("table %q: invalid stream view type %q", m.Name, m.StreamViewType)
		}
	}

	return nil
}

// GSIByName looks up a GSI by index name.
func (m Metadata) GSIByName(indexName string) (GSI, bool) {
	for _, gsi := range m.GSIs {
		if gsi.IndexName == indexName {
			return gsi, true
		}
	}
	return GSI{}, false
}

// NeedsNewImage reports whether the active StreamViewType captures the
// post-mutation image.
func (v StreamViewType) NeedsNewImage() bool {
	return v == StreamViewNewImage || v == StreamViewNewAndOldImages
}

// NeedsOldImage reports whether the active StreamViewType captures the
// pre-mutation image.
func (v StreamViewType) NeedsOldImage() bool {
	return v == StreamViewOldImage || v == StreamViewNewAndOldImages
}
