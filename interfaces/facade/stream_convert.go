package facade

import (
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	streamtypes "github.com/aws/aws-sdk-go-v2/service/dynamodbstreams/types"

	"github.com/pretender-db/pretender/domain/attrvalue"
)

// toStreamItem re-expresses an attrvalue.Item (backed by dynamodb/types.
// AttributeValue) as the dynamodbstreams SDK's distinct AttributeValue
// union. DynamoDB Streams is its own API surface in the real SDK, so a
// Keys/NewImage/OldImage value cannot reuse the dynamodb/types conversions
// convert.go uses for every other operation.
func toStreamItem(item attrvalue.Item) map[string]streamtypes.AttributeValue {
	if item == nil {
		return nil
	}
	out := make(map[string]streamtypes.AttributeValue, len(item))
	for k, v := range item {
		out[k] = toStreamAttributeValue(v)
	}
	return out
}

func toStreamAttributeValue(v ddbtypes.AttributeValue) streamtypes.AttributeValue {
	switch av := v.(type) {
	case *ddbtypes.AttributeValueMemberS:
		return &streamtypes.AttributeValueMemberS{Value: av.Value}
	case *ddbtypes.AttributeValueMemberN:
		return &streamtypes.AttributeValueMemberN{Value: av.Value}
	case *ddbtypes.AttributeValueMemberB:
		return &streamtypes.AttributeValueMemberB{Value: av.Value}
	case *ddbtypes.AttributeValueMemberBOOL:
		return &streamtypes.AttributeValueMemberBOOL{Value: av.Value}
	case *ddbtypes.AttributeValueMemberNULL:
		return &streamtypes.AttributeValueMemberNULL{Value: av.Value}
	case *ddbtypes.AttributeValueMemberSS:
		return &streamtypes.AttributeValueMemberSS{Value: av.Value}
	case *ddbtypes.AttributeValueMemberNS:
		return &streamtypes.AttributeValueMemberNS{Value: av.Value}
	case *ddbtypes.AttributeValueMemberBS:
		return &streamtypes.AttributeValueMemberBS{Value: av.Value}
	case *ddbtypes.AttributeValueMemberL:
		list := make([]streamtypes.AttributeValue, len(av.Value))
		for i, e := range av.Value {
			list[i] = toStreamAttributeValue(e)
		}
		return &streamtypes.AttributeValueMemberL{Value: list}
	case *ddbtypes.AttributeValueMemberM:
		m := make(map[string]streamtypes.AttributeValue, len(av.Value))
		for k, e := range av.Value {
			m[k] = toStreamAttributeValue(e)
		}
		return &streamtypes.AttributeValueMemberM{Value: m}
	default:
		return &streamtypes.AttributeValueMemberNULL{Value: true}
	}
}
