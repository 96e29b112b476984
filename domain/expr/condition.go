package expr

import (
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/pretender-db/pretender/domain/attrvalue"
	pretendererrors "github.com/pretender-db/pretender/pkg/errors"
)

type conditionKind int

const (
	condAttrExists conditionKind = iota
	condAttrNotExists
	condCompare
	condBeginsWith
	condAnd
	condOr
	condNot
)

// Condition is the parsed form of a ConditionExpression or FilterExpression
// — the existence-check-plus-comparator subset spec §9 mandates, combined
// with AND/OR/NOT.
type Condition struct {
	kind conditionKind

	path []string
	op   SortOperator
	rhs  types.AttributeValue

	left  *Condition
	right *Condition
}

// ParseCondition parses a ConditionExpression or FilterExpression.
func ParseCondition(exprStr string, names map[string]string, values map[string]types.AttributeValue) (*Condition, error) {
	toks, err := lex(exprStr)
	if err != nil {
		return nil, err
	}
	p := newParser(toks)
	cond, err := parseOrExpr(p, names, values)
	if err != nil {
		return nil, err
	}
	if p.cur().kind != tokEOF {
		return nil, pretendererrors.NewValidationError("unexpected trailing tokens in condition expression")
	}
	return cond, nil
}

func parseOrExpr(p *parser, names map[string]string, values map[string]types.AttributeValue) (*Condition, error) {
	left, err := parseAndExpr(p, names, values)
	if err != nil {
		return nil, err
	}
	for p.expectKeyword("OR") {
		right, err := parseAndExpr(p, names, values)
		if err != nil {
			return nil, err
		}
		left = &Condition{kind: condOr, left: left, right: right}
	}
	return left, nil
}

func parseAndExpr(p *parser, names map[string]string, values map[string]types.AttributeValue) (*Condition, error) {
	left, err := parseUnary(p, names, values)
	if err != nil {
		return nil, err
	}
	for p.expectKeyword("AND") {
		right, err := parseUnary(p, names, values)
		if err != nil {
			return nil, err
		}
		left = &Condition{kind: condAnd, left: left, right: right}
	}
	return left, nil
}

func parseUnary(p *parser, names map[string]string, values map[string]types.AttributeValue) (*Condition, error) {
	if p.expectKeyword("NOT") {
		inner, err := parseUnary(p, names, values)
		if err != nil {
			return nil, err
		}
		return &Condition{kind: condNot, left: inner}, nil
	}
	return parsePrimary(p, names, values)
}

func parsePrimary(p *parser, names map[string]string, values map[string]types.AttributeValue) (*Condition, error) {
	if p.cur().kind == tokLParen {
		p.advance()
		inner, err := parseOrExpr(p, names, values)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, "')'"); err != nil {
			return nil, err
		}
		return inner, nil
	}

	if p.cur().kind == tokIdent && strings.EqualFold(p.cur().text, "attribute_exists") {
		p.advance()
		path, err := parseSingleArgPath(p, names)
		if err != nil {
			return nil, err
		}
		return &Condition{kind: condAttrExists, path: path}, nil
	}
	if p.cur().kind == tokIdent && strings.EqualFold(p.cur().text, "attribute_not_exists") {
		p.advance()
		path, err := parseSingleArgPath(p, names)
		if err != nil {
			return nil, err
		}
		return &Condition{kind: condAttrNotExists, path: path}, nil
	}
	if p.cur().kind == tokIdent && strings.EqualFold(p.cur().text, "begins_with") {
		p.advance()
		if _, err := p.expect(tokLParen, "'('"); err != nil {
			return nil, err
		}
		path, err := parsePathToken(p, names)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokComma, "','"); err != nil {
			return nil, err
		}
		valTok, err := p.expect(tokPlaceholder, "value placeholder")
		if err != nil {
			return nil, err
		}
		val, err := resolveValue(valTok.text, values)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, "')'"); err != nil {
			return nil, err
		}
		return &Condition{kind: condBeginsWith, path: path, rhs: val}, nil
	}

	path, err := parsePathToken(p, names)
	if err != nil {
		return nil, err
	}
	op, err := parseComparator(p)
	if err != nil {
		return nil, err
	}
	valTok, err := p.expect(tokPlaceholder, "value placeholder")
	if err != nil {
		return nil, err
	}
	val, err := resolveValue(valTok.text, values)
	if err != nil {
		return nil, err
	}
	return &Condition{kind: condCompare, path: path, op: op, rhs: val}, nil
}

func parseSingleArgPath(p *parser, names map[string]string) ([]string, error) {
	if _, err := p.expect(tokLParen, "'('"); err != nil {
		return nil, err
	}
	path, err := parsePathToken(p, names)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokRParen, "')'"); err != nil {
		return nil, err
	}
	return path, nil
}

// Evaluate reports whether item satisfies the condition.
func (c *Condition) Evaluate(item attrvalue.Item) (bool, error) {
	switch c.kind {
	case condAttrExists:
		_, ok := getPath(item, c.path)
		return ok, nil
	case condAttrNotExists:
		_, ok := getPath(item, c.path)
		return !ok, nil
	case condCompare:
		v, ok := getPath(item, c.path)
		if !ok {
			return false, nil
		}
		return EvaluateComparator(c.op, v, c.rhs)
	case condBeginsWith:
		v, ok := getPath(item, c.path)
		if !ok {
			return false, nil
		}
		return BeginsWith(v, c.rhs)
	case condAnd:
		l, err := c.left.Evaluate(item)
		if err != nil || !l {
			return false, err
		}
		return c.right.Evaluate(item)
	case condOr:
		l, err := c.left.Evaluate(item)
		if err != nil {
			return false, err
		}
		if l {
			return true, nil
		}
		return c.right.Evaluate(item)
	case condNot:
		l, err := c.left.Evaluate(item)
		if err != nil {
			return false, err
		}
		return !l, nil
	default:
		return false, pretendererrors.NewInternalError("unknown condition kind %d", c.kind)
	}
}
