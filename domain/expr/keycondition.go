package expr

import (
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	pretendererrors "github.com/pretender-db/pretender/pkg/errors"
)

// SortOperator is the comparator a KeyConditionExpression applies to the
// sort key, or the zero value when the expression names only a hash key.
type SortOperator string

const (
	SortOpNone        SortOperator = ""
	SortOpEQ          SortOperator = "="
	SortOpLT          SortOperator = "<"
	SortOpLE          SortOperator = "<="
	SortOpGT          SortOperator = ">"
	SortOpGE          SortOperator = ">="
	SortOpBetween     SortOperator = "BETWEEN"
	SortOpBeginsWith  SortOperator = "BEGINS_WITH"
)

// KeyCondition is the parsed form of a KeyConditionExpression.
type KeyCondition struct {
	HashKeyName  string
	HashKeyValue types.AttributeValue

	SortKeyName string // empty if the expression has no sort condition
	Operator    SortOperator
	SortValue1  types.AttributeValue
	SortValue2  types.AttributeValue // only set for BETWEEN
}

// ParseKeyCondition parses a KeyConditionExpression per spec §4.2:
// hashKey = :alias [ AND sortCond ].
func ParseKeyCondition(exprStr string, names map[string]string, values map[string]types.AttributeValue) (*KeyCondition, error) {
	toks, err := lex(exprStr)
	if err != nil {
		return nil, err
	}
	p := newParser(toks)

	hashIdent, err := p.expect(tokIdent, "hash key attribute name")
	if err != nil {
		return nil, err
	}
	hashSegments, err := resolvePathSegments(hashIdent.text, names)
	if err != nil {
		return nil, err
	}
	if len(hashSegments) != 1 {
		return nil, pretendererrors.NewValidationError("hash key condition must reference a top-level attribute")
	}

	if _, err := p.expect(tokEq, "'='"); err != nil {
		return nil, err
	}
	hashPlaceholder, err := p.expect(tokPlaceholder, "value placeholder")
	if err != nil {
		return nil, err
	}
	hashValue, err := resolveValue(hashPlaceholder.text, values)
	if err != nil {
		return nil, err
	}

	kc := &KeyCondition{HashKeyName: hashSegments[0], HashKeyValue: hashValue}

	if p.cur().kind == tokEOF {
		return kc, nil
	}
	if !p.expectKeyword("AND") {
		return nil, pretendererrors.NewValidationError("expected AND before sort key condition, got %q", p.cur().text)
	}

	if err := parseSortCondition(p, names, values, kc); err != nil {
		return nil, err
	}

	if p.cur().kind != tokEOF {
		return nil, pretendererrors.NewValidationError("unexpected trailing tokens in key condition expression")
	}
	return kc, nil
}

func parseSortCondition(p *parser, names map[string]string, values map[string]types.AttributeValue, kc *KeyCondition) error {
	if p.cur().kind == tokIdent && strings.EqualFold(p.cur().text, "begins_with") {
		p.advance()
		if _, err := p.expect(tokLParen, "'('"); err != nil {
			return err
		}
		sortIdent, err := p.expect(tokIdent, "sort key attribute name")
		if err != nil {
			return err
		}
		sortName, err := resolveName(sortIdent.text, names)
		if err != nil {
			return err
		}
		if _, err := p.expect(tokComma, "','"); err != nil {
			return err
		}
		valTok, err := p.expect(tokPlaceholder, "value placeholder")
		if err != nil {
			return err
		}
		val, err := resolveValue(valTok.text, values)
		if err != nil {
			return err
		}
		if _, err := p.expect(tokRParen, "')'"); err != nil {
			return err
		}
		kc.SortKeyName = sortName
		kc.Operator = SortOpBeginsWith
		kc.SortValue1 = val
		return nil
	}

	sortIdent, err := p.expect(tokIdent, "sort key attribute name")
	if err != nil {
		return err
	}
	sortName, err := resolveName(sortIdent.text, names)
	if err != nil {
		return err
	}
	kc.SortKeyName = sortName

	if p.expectKeyword("BETWEEN") {
		lowTok, err := p.expect(tokPlaceholder, "lower bound placeholder")
		if err != nil {
			return err
		}
		low, err := resolveValue(lowTok.text, values)
		if err != nil {
			return err
		}
		if !p.expectKeyword("AND") {
			return pretendererrors.NewValidationError("expected AND in BETWEEN clause")
		}
		highTok, err := p.expect(tokPlaceholder, "upper bound placeholder")
		if err != nil {
			return err
		}
		high, err := resolveValue(highTok.text, values)
		if err != nil {
			return err
		}
		kc.Operator = SortOpBetween
		kc.SortValue1 = low
		kc.SortValue2 = high
		return nil
	}

	op, err := parseComparator(p)
	if err != nil {
		return err
	}
	valTok, err := p.expect(tokPlaceholder, "value placeholder")
	if err != nil {
		return err
	}
	val, err := resolveValue(valTok.text, values)
	if err != nil {
		return err
	}
	kc.Operator = op
	kc.SortValue1 = val
	return nil
}

func parseComparator(p *parser) (SortOperator, error) {
	switch p.cur().kind {
	case tokEq:
		p.advance()
		return SortOpEQ, nil
	case tokLt:
		p.advance()
		return SortOpLT, nil
	case tokLe:
		p.advance()
		return SortOpLE, nil
	case tokGt:
		p.advance()
		return SortOpGT, nil
	case tokGe:
		p.advance()
		return SortOpGE, nil
	default:
		return "", pretendererrors.NewValidationError("expected a comparator (=, <, <=, >, >=), got %q", p.cur().text)
	}
}
