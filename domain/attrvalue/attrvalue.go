// Package attrvalue implements the attribute-value codec (spec §4.1):
// round-trip canonical JSON encoding of DynamoDB's tagged-union attribute
// values, and key-value extraction for the hash/sort key attributes.
//
// Item reuses github.com/aws/aws-sdk-go-v2/service/dynamodb/types directly
// as its attribute-value representation rather than defining a parallel
// tagged union, so that any code built against the real AWS SDK can decode
// what this package produces without translation.
package attrvalue

import (
	"encoding/base64"
	"encoding/json"
	"sort"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	pretendererrors "github.com/pretender-db/pretender/pkg/errors"
)

// Item is a DynamoDB item: an attribute-name-keyed map of tagged values.
type Item map[string]types.AttributeValue

// ToJSON renders item as its canonical JSON form. Every AttributeValue
// becomes an object with exactly one key naming its type tag.
func ToJSON(item Item) (string, error) {
	encoded, err := encodeItem(item)
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(encoded)
	if err != nil {
		return "", pretendererrors.NewInternalError("marshalling canonical item JSON: %v", err)
	}
	return string(b), nil
}

// FromJSON parses a canonical JSON item back into its AttributeValue form.
// It is the inverse of ToJSON for every value ToJSON can produce.
func FromJSON(s string) (Item, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, pretendererrors.NewInternalError("parsing canonical item JSON: %v", err)
	}
	item := make(Item, len(raw))
	for name, value := range raw {
		av, err := decodeValue(value)
		if err != nil {
			return nil, err
		}
		item[name] = av
	}
	return item, nil
}

func encodeItem(item Item) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(item))
	for name, v := range item {
		encoded, err := encodeValue(v)
		if err != nil {
			return nil, err
		}
		out[name] = encoded
	}
	return out, nil
}

func encodeValue(v types.AttributeValue) (interface{}, error) {
	switch val := v.(type) {
	case *types.AttributeValueMemberS:
		return map[string]interface{}{"S": val.Value}, nil
	case *types.AttributeValueMemberN:
		return map[string]interface{}{"N": val.Value}, nil
	case *types.AttributeValueMemberB:
		return map[string]interface{}{"B": base64.StdEncoding.EncodeToString(val.Value)}, nil
	case *types.AttributeValueMemberBOOL:
		return map[string]interface{}{"BOOL": val.Value}, nil
	case *types.AttributeValueMemberNULL:
		return map[string]interface{}{"NULL": val.Value}, nil
	case *types.AttributeValueMemberSS:
		return map[string]interface{}{"SS": val.Value}, nil
	case *types.AttributeValueMemberNS:
		return map[string]interface{}{"NS": val.Value}, nil
	case *types.AttributeValueMemberBS:
		encoded := make([]string, len(val.Value))
		for i, b := range val.Value {
			encoded[i] = base64.StdEncoding.EncodeToString(b)
		}
		return map[string]interface{}{"BS": encoded}, nil
	case *types.AttributeValueMemberL:
		list := make([]interface{}, len(val.Value))
		for i, elem := range val.Value {
			encoded, err := encodeValue(elem)
			if err != nil {
				return nil, err
			}
			list[i] = encoded
		}
		return map[string]interface{}{"L": list}, nil
	case *types.AttributeValueMemberM:
		m, err := encodeItem(Item(val.Value))
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"M": m}, nil
	default:
		return nil, pretendererrors.NewInternalError("unknown attribute value type %T", v)
	}
}

func decodeValue(raw json.RawMessage) (types.AttributeValue, error) {
	var tagged map[string]json.RawMessage
	if err := json.Unmarshal(raw, &tagged); err != nil {
		return nil, pretendererrors.NewInternalError("parsing attribute value: %v", err)
	}
	if len(tagged) != 1 {
		return nil, pretendererrors.NewInternalError("attribute value must have exactly one type tag, got %d", len(tagged))
	}

	for tag, value := range tagged {
		switch tag {
		case "S":
			var s string
			if err := json.Unmarshal(value, &s); err != nil {
				return nil, pretendererrors.NewInternalError("decoding S: %v", err)
			}
			return &types.AttributeValueMemberS{Value: s}, nil
		case "N":
			var n string
			if err := json.Unmarshal(value, &n); err != nil {
				return nil, pretendererrors.NewInternalError("decoding N: %v", err)
			}
			return &types.AttributeValueMemberN{Value: n}, nil
		case "B":
			var b64 string
			if err := json.Unmarshal(value, &b64); err != nil {
				return nil, pretendererrors.NewInternalError("decoding B: %v", err)
			}
			decoded, err := base64.StdEncoding.DecodeString(b64)
			if err != nil {
				return nil, pretendererrors.NewInternalError("decoding B base64: %v", err)
			}
			return &types.AttributeValueMemberB{Value: decoded}, nil
		case "BOOL":
			var b bool
			if err := json.Unmarshal(value, &b); err != nil {
				return nil, pretendererrors.NewInternalError("decoding BOOL: %v", err)
			}
			return &types.AttributeValueMemberBOOL{Value: b}, nil
		case "NULL":
			var b bool
			if err := json.Unmarshal(value, &b); err != nil {
				return nil, pretendererrors.NewInternalError("decoding NULL: %v", err)
			}
			return &types.AttributeValueMemberNULL{Value: b}, nil
		case "SS":
			var ss []string
			if err := json.Unmarshal(value, &ss); err != nil {
				return nil, pretendererrors.NewInternalError("decoding SS: %v", err)
			}
			return &types.AttributeValueMemberSS{Value: ss}, nil
		case "NS":
			var ns []string
			if err := json.Unmarshal(value, &ns); err != nil {
				return nil, pretendererrors.NewInternalError("decoding NS: %v", err)
			}
			return &types.AttributeValueMemberNS{Value: ns}, nil
		case "BS":
			var encoded []string
			if err := json.Unmarshal(value, &encoded); err != nil {
				return nil, pretendererrors.NewInternalError("decoding BS: %v", err)
			}
			decoded := make([][]byte, len(encoded))
			for i, e := range encoded {
				b, err := base64.StdEncoding.DecodeString(e)
				if err != nil {
					return nil, pretendererrors.NewInternalError("decoding BS base64: %v", err)
				}
				decoded[i] = b
			}
			return &types.AttributeValueMemberBS{Value: decoded}, nil
		case "L":
			var rawList []json.RawMessage
			if err := json.Unmarshal(value, &rawList); err != nil {
				return nil, pretendererrors.NewInternalError("decoding L: %v", err)
			}
			list := make([]types.AttributeValue, len(rawList))
			for i, elem := range rawList {
				decoded, err := decodeValue(elem)
				if err != nil {
					return nil, err
				}
				list[i] = decoded
			}
			return &types.AttributeValueMemberL{Value: list}, nil
		case "M":
			item, err := FromJSON(string(value))
			if err != nil {
				return nil, err
			}
			return &types.AttributeValueMemberM{Value: item}, nil
		default:
			return nil, pretendererrors.NewInternalError("unknown attribute value type tag %q", tag)
		}
	}
	panic("unreachable")
}

// EncodeSingleValue renders one AttributeValue as its canonical JSON tagged
// form (e.g. {"S":"x"}), used by the encryption core to produce the
// plaintext it seals (spec §4.4).
func EncodeSingleValue(v types.AttributeValue) (string, error) {
	encoded, err := encodeValue(v)
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(encoded)
	if err != nil {
		return "", pretendererrors.NewInternalError("marshalling attribute value: %v", err)
	}
	return string(b), nil
}

// DecodeSingleValue parses a canonical JSON tagged value back into an
// AttributeValue. Inverse of EncodeSingleValue.
func DecodeSingleValue(s string) (types.AttributeValue, error) {
	return decodeValue(json.RawMessage(s))
}

// ExtractKeyValue returns the lexical scalar value of a key attribute
// (S, N, or B). B is rendered as its UTF-8 interpretation, matching the
// Stored Item Row encoding (spec §3). Fails with ValidationException when
// the attribute is missing or not a scalar S/N/B.
func ExtractKeyValue(item Item, keyName string) (string, error) {
	v, ok := item[keyName]
	if !ok {
		return "", pretendererrors.NewValidationError("key attribute %q is missing from item", keyName)
	}
	switch val := v.(type) {
	case *types.AttributeValueMemberS:
		return val.Value, nil
	case *types.AttributeValueMemberN:
		return val.Value, nil
	case *types.AttributeValueMemberB:
		return string(val.Value), nil
	default:
		return "", pretendererrors.NewValidationError("key attribute %q must be a scalar S, N, or B value", keyName)
	}
}

// Size returns the UTF-8 byte length of item's canonical JSON rendering,
// the sizeBytes the Capacity Calculator (spec §4.3) consumes.
func Size(item Item) (int, error) {
	if len(item) == 0 {
		return 0, nil
	}
	encoded, err := ToJSON(item)
	if err != nil {
		return 0, err
	}
	return len(encoded), nil
}

// SortedAttributeNames returns item's attribute names in ascending order,
// used wherever deterministic iteration is required (e.g. projection).
func SortedAttributeNames(item Item) []string {
	names := make([]string, 0, len(item))
	for name := range item {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsScalar reports whether v is one of S, N, or B.
func IsScalar(v types.AttributeValue) bool {
	switch v.(type) {
	case *types.AttributeValueMemberS, *types.AttributeValueMemberN, *types.AttributeValueMemberB:
		return true
	default:
		return false
	}
}

// Clone deep-copies an item so callers can mutate without aliasing storage.
func Clone(item Item) (Item, error) {
	encoded, err := ToJSON(item)
	if err != nil {
		return nil, err
	}
	return FromJSON(encoded)
}
