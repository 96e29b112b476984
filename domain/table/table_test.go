package table

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validMetadata() Metadata {
	return Metadata{
		Name:    "Users",
		HashKey: "id",
	}
}

func TestMetadataValidate(t *testing.T) {
	m := validMetadata()
	require.NoError(t, m.Validate())
}

func TestMetadataValidateRejectsShortName(t *testing.T) {
	m := validMetadata()
	m.Name = "ab"
	require.Error(t, m.Validate())
}

func TestMetadataValidateRejectsSameHashAndSortKey(t *testing.T) {
	m := validMetadata()
	m.SortKey = "id"
	require.Error(t, m.Validate())
}

func TestMetadataValidateRejectsDuplicateGSINames(t *testing.T) {
	m := validMetadata()
	m.GSIs = []GSI{
		{IndexName: "gsi1", HashKey: "a", Projection: ProjectionAll},
		{IndexName: "gsi1", HashKey: "b", Projection: ProjectionAll},
	}
	require.Error(t, m.Validate())
}

func TestMetadataValidateRejectsTTLOnKeyAttribute(t *testing.T) {
	m := validMetadata()
	m.TTLEnabled = true
	m.TTLAttribute = "id"
	require.Error(t, m.Validate())
}

func TestGSIValidateIncludeRequiresProjection(t *testing.T) {
	gsi := GSI{IndexName: "gsi1", HashKey: "a", Projection: ProjectionKeysOnly, NonKeyAttributes: []string{"x"}}
	require.Error(t, gsi.Validate())
}

func TestStreamViewTypeImageRules(t *testing.T) {
	assert.True(t, StreamViewNewImage.NeedsNewImage())
	assert.False(t, StreamViewNewImage.NeedsOldImage())
	assert.True(t, StreamViewNewAndOldImages.NeedsNewImage())
	assert.True(t, StreamViewNewAndOldImages.NeedsOldImage())
	assert.False(t, StreamViewKeysOnly.NeedsNewImage())
}
