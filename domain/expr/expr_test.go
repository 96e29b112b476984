package expr

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pretender-db/pretender/domain/attrvalue"
)

func TestParseKeyConditionHashOnly(t *testing.T) {
	kc, err := ParseKeyCondition("id = :id", nil, map[string]types.AttributeValue{
		":id": &types.AttributeValueMemberS{Value: "u1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "id", kc.HashKeyName)
	assert.Equal(t, SortOpNone, kc.Operator)
}

func TestParseKeyConditionBetween(t *testing.T) {
	kc, err := ParseKeyCondition("userId = :u AND ts BETWEEN :a AND :b", nil, map[string]types.AttributeValue{
		":u": &types.AttributeValueMemberS{Value: "u1"},
		":a": &types.AttributeValueMemberS{Value: "2024-01-01"},
		":b": &types.AttributeValueMemberS{Value: "2024-01-05"},
	})
	require.NoError(t, err)
	assert.Equal(t, SortOpBetween, kc.Operator)
	assert.Equal(t, "ts", kc.SortKeyName)
}

func TestParseKeyConditionBeginsWith(t *testing.T) {
	kc, err := ParseKeyCondition("userId = :u AND begins_with(ts, :p)", nil, map[string]types.AttributeValue{
		":u": &types.AttributeValueMemberS{Value: "u1"},
		":p": &types.AttributeValueMemberS{Value: "2024"},
	})
	require.NoError(t, err)
	assert.Equal(t, SortOpBeginsWith, kc.Operator)
}

func TestUpdateExpressionSetAndRemove(t *testing.T) {
	ue, err := ParseUpdateExpression("SET score = :a, bonus = :b REMOVE nickname", nil, map[string]types.AttributeValue{
		":a": &types.AttributeValueMemberN{Value: "150"},
		":b": &types.AttributeValueMemberN{Value: "25"},
	})
	require.NoError(t, err)

	existing := attrvalue.Item{
		"score":    &types.AttributeValueMemberN{Value: "100"},
		"nickname": &types.AttributeValueMemberS{Value: "x"},
	}
	result, err := ue.Apply(existing)
	require.NoError(t, err)

	score := result["score"].(*types.AttributeValueMemberN)
	assert.Equal(t, "150", score.Value)
	bonus := result["bonus"].(*types.AttributeValueMemberN)
	assert.Equal(t, "25", bonus.Value)
	_, hasNickname := result["nickname"]
	assert.False(t, hasNickname)
}

func TestUpdateExpressionIfNotExists(t *testing.T) {
	ue, err := ParseUpdateExpression("SET a = if_not_exists(a, :zero) + :w", nil, map[string]types.AttributeValue{
		":zero": &types.AttributeValueMemberN{Value: "0"},
		":w":    &types.AttributeValueMemberN{Value: "5"},
	})
	require.NoError(t, err)

	result, err := ue.Apply(attrvalue.Item{})
	require.NoError(t, err)
	a := result["a"].(*types.AttributeValueMemberN)
	assert.Equal(t, "5", a.Value)
}

func TestUpdateExpressionMissingAttributeErrors(t *testing.T) {
	ue, err := ParseUpdateExpression("SET a = a + :v", nil, map[string]types.AttributeValue{
		":v": &types.AttributeValueMemberN{Value: "1"},
	})
	require.NoError(t, err)
	_, err = ue.Apply(attrvalue.Item{})
	require.Error(t, err)
}

func TestUpdateExpressionAddOnMissingAttributeCreatesIt(t *testing.T) {
	ue, err := ParseUpdateExpression("ADD counter :n", nil, map[string]types.AttributeValue{
		":n": &types.AttributeValueMemberN{Value: "3"},
	})
	require.NoError(t, err)
	result, err := ue.Apply(attrvalue.Item{})
	require.NoError(t, err)
	counter := result["counter"].(*types.AttributeValueMemberN)
	assert.Equal(t, "3", counter.Value)
}

func TestConditionExistenceAndCompare(t *testing.T) {
	cond, err := ParseCondition("attribute_exists(id) AND age > :min", nil, map[string]types.AttributeValue{
		":min": &types.AttributeValueMemberN{Value: "18"},
	})
	require.NoError(t, err)

	item := attrvalue.Item{
		"id":  &types.AttributeValueMemberS{Value: "u1"},
		"age": &types.AttributeValueMemberN{Value: "30"},
	}
	ok, err := cond.Evaluate(item)
	require.NoError(t, err)
	assert.True(t, ok)

	item["age"] = &types.AttributeValueMemberN{Value: "10"}
	ok, err = cond.Evaluate(item)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConditionAttributeNotExists(t *testing.T) {
	cond, err := ParseCondition("attribute_not_exists(ssn)", nil, nil)
	require.NoError(t, err)
	ok, err := cond.Evaluate(attrvalue.Item{"id": &types.AttributeValueMemberS{Value: "u1"}})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNumberOrderingIsNumeric(t *testing.T) {
	cmp, err := Compare(&types.AttributeValueMemberN{Value: "9"}, &types.AttributeValueMemberN{Value: "10"})
	require.NoError(t, err)
	assert.Less(t, cmp, 0)

	cmp, err = Compare(&types.AttributeValueMemberS{Value: "9"}, &types.AttributeValueMemberS{Value: "10"})
	require.NoError(t, err)
	assert.Greater(t, cmp, 0)
}
