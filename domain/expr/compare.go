package expr

import (
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"

	pretendererrors "github.com/pretender-db/pretender/pkg/errors"
)

// Compare orders two scalar AttributeValues of the same underlying type.
// String comparison is byte-wise on UTF-8; number comparison is numeric on
// the decimal parsed from the lexical form (spec §4.8's tie-break rules).
// Returns -1, 0, or 1.
func Compare(a, b types.AttributeValue) (int, error) {
	switch av := a.(type) {
	case *types.AttributeValueMemberS:
		bv, ok := b.(*types.AttributeValueMemberS)
		if !ok {
			return 0, pretendererrors.NewValidationError("cannot compare S to a different type")
		}
		return strings.Compare(av.Value, bv.Value), nil
	case *types.AttributeValueMemberN:
		bv, ok := b.(*types.AttributeValueMemberN)
		if !ok {
			return 0, pretendererrors.NewValidationError("cannot compare N to a different type")
		}
		an, err := decimal.NewFromString(av.Value)
		if err != nil {
			return 0, pretendererrors.NewValidationError("invalid number %q", av.Value)
		}
		bn, err := decimal.NewFromString(bv.Value)
		if err != nil {
			return 0, pretendererrors.NewValidationError("invalid number %q", bv.Value)
		}
		return an.Cmp(bn), nil
	case *types.AttributeValueMemberB:
		bv, ok := b.(*types.AttributeValueMemberB)
		if !ok {
			return 0, pretendererrors.NewValidationError("cannot compare B to a different type")
		}
		return strings.Compare(string(av.Value), string(bv.Value)), nil
	default:
		return 0, pretendererrors.NewValidationError("unsupported type for comparison")
	}
}

// EvaluateComparator applies op to Compare(a, b)'s result.
func EvaluateComparator(op SortOperator, a, b types.AttributeValue) (bool, error) {
	cmp, err := Compare(a, b)
	if err != nil {
		return false, err
	}
	switch op {
	case SortOpEQ:
		return cmp == 0, nil
	case SortOpLT:
		return cmp < 0, nil
	case SortOpLE:
		return cmp <= 0, nil
	case SortOpGT:
		return cmp > 0, nil
	case SortOpGE:
		return cmp >= 0, nil
	default:
		return false, pretendererrors.NewValidationError("unsupported comparator %q", op)
	}
}

// BeginsWith reports whether the S or B value v starts with prefix.
func BeginsWith(v, prefix types.AttributeValue) (bool, error) {
	switch pv := prefix.(type) {
	case *types.AttributeValueMemberS:
		sv, ok := v.(*types.AttributeValueMemberS)
		if !ok {
			return false, pretendererrors.NewValidationError("begins_with requires matching S types")
		}
		return strings.HasPrefix(sv.Value, pv.Value), nil
	case *types.AttributeValueMemberB:
		bv, ok := v.(*types.AttributeValueMemberB)
		if !ok {
			return false, pretendererrors.NewValidationError("begins_with requires matching B types")
		}
		return strings.HasPrefix(string(bv.Value), string(pv.Value)), nil
	default:
		return false, pretendererrors.NewValidationError("begins_with only supports S or B values")
	}
}
