package attrvalue

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pretendererrors "github.com/pretender-db/pretender/pkg/errors"
)

func sampleItem() Item {
	return Item{
		"id":     &types.AttributeValueMemberS{Value: "u1"},
		"age":    &types.AttributeValueMemberN{Value: "30"},
		"active": &types.AttributeValueMemberBOOL{Value: true},
		"tags":   &types.AttributeValueMemberSS{Value: []string{"a", "b"}},
		"blob":   &types.AttributeValueMemberB{Value: []byte{0x01, 0x02, 0xff}},
		"gone":   &types.AttributeValueMemberNULL{Value: true},
		"scores": &types.AttributeValueMemberNS{Value: []string{"1", "2.5"}},
		"nested": &types.AttributeValueMemberM{Value: map[string]types.AttributeValue{
			"x": &types.AttributeValueMemberN{Value: "1"},
		}},
		"list": &types.AttributeValueMemberL{Value: []types.AttributeValue{
			&types.AttributeValueMemberS{Value: "first"},
			&types.AttributeValueMemberN{Value: "2"},
		}},
	}
}

func TestToJSONFromJSONRoundTrip(t *testing.T) {
	item := sampleItem()

	encoded, err := ToJSON(item)
	require.NoError(t, err)

	decoded, err := FromJSON(encoded)
	require.NoError(t, err)

	reencoded, err := ToJSON(decoded)
	require.NoError(t, err)

	assert.JSONEq(t, encoded, reencoded)
}

func TestFromJSONRejectsUnknownTag(t *testing.T) {
	_, err := FromJSON(`{"attr": {"WAT": "x"}}`)
	require.Error(t, err)
	de, ok := pretendererrors.As(err)
	require.True(t, ok)
	assert.Equal(t, pretendererrors.CodeInternal, de.Code)
}

func TestExtractKeyValue(t *testing.T) {
	item := sampleItem()

	v, err := ExtractKeyValue(item, "id")
	require.NoError(t, err)
	assert.Equal(t, "u1", v)

	v, err = ExtractKeyValue(item, "blob")
	require.NoError(t, err)
	assert.Equal(t, string([]byte{0x01, 0x02, 0xff}), v)

	_, err = ExtractKeyValue(item, "missing")
	require.Error(t, err)
	de, ok := pretendererrors.As(err)
	require.True(t, ok)
	assert.Equal(t, pretendererrors.CodeValidation, de.Code)

	_, err = ExtractKeyValue(item, "nested")
	require.Error(t, err)
}

func TestSize(t *testing.T) {
	size, err := Size(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, size)

	item := Item{"id": &types.AttributeValueMemberS{Value: "u1"}}
	size, err = Size(item)
	require.NoError(t, err)
	assert.Greater(t, size, 0)
}
