package capacity

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pretender-db/pretender/domain/attrvalue"
)

func TestReadWriteEmptyItem(t *testing.T) {
	r, err := Read(nil)
	require.NoError(t, err)
	assert.Equal(t, float64(0), r)

	w, err := Write(attrvalue.Item{})
	require.NoError(t, err)
	assert.Equal(t, float64(0), w)
}

func TestReadWriteRoundsUp(t *testing.T) {
	item := attrvalue.Item{"id": &types.AttributeValueMemberS{Value: "x"}}
	size, err := attrvalue.Size(item)
	require.NoError(t, err)
	require.Greater(t, size, 0)
	require.Less(t, size, readUnitBytes)

	r, err := Read(item)
	require.NoError(t, err)
	assert.Equal(t, float64(1), r)

	w, err := Write(item)
	require.NoError(t, err)
	assert.Equal(t, float64(1), w)
}
