package expr

import (
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"

	"github.com/pretender-db/pretender/domain/attrvalue"
	pretendererrors "github.com/pretender-db/pretender/pkg/errors"
)

type operandKind int

const (
	operandValue operandKind = iota
	operandAttr
	operandIfNotExists
	operandArithmetic
)

// operand is one SET right-hand side term: a literal placeholder, an
// attribute reference, an if_not_exists(path, default) call, or an
// arithmetic expression restricted to numbers (spec §4.2).
type operand struct {
	kind operandKind

	value types.AttributeValue // operandValue
	path  []string             // operandAttr / first arg of if_not_exists

	ifNotExistsDefault *operand // operandIfNotExists

	left  *operand // operandArithmetic
	op    byte     // '+' or '-'
	right *operand
}

// SetClause assigns the result of an operand to path.
type SetClause struct {
	Path []string
	op   operand
}

// AddClause is an ADD action: numeric increment or set union.
type AddClause struct {
	Path  []string
	Value types.AttributeValue
}

// DeleteClause is a DELETE action: set-difference removal.
type DeleteClause struct {
	Path  []string
	Value types.AttributeValue
}

// UpdateExpression is the parsed form of an UpdateExpression.
type UpdateExpression struct {
	Sets    []SetClause
	Removes [][]string
	Adds    []AddClause
	Deletes []DeleteClause
}

// ParseUpdateExpression parses SET/REMOVE/ADD/DELETE clauses (spec §4.2).
func ParseUpdateExpression(exprStr string, names map[string]string, values map[string]types.AttributeValue) (*UpdateExpression, error) {
	toks, err := lex(exprStr)
	if err != nil {
		return nil, err
	}
	p := newParser(toks)
	ue := &UpdateExpression{}

	sawClause := false
	for p.cur().kind != tokEOF {
		switch {
		case p.expectKeyword("SET"):
			sawClause = true
			if err := parseSetClauses(p, names, values, ue); err != nil {
				return nil, err
			}
		case p.expectKeyword("REMOVE"):
			sawClause = true
			if err := parseRemoveClauses(p, names, ue); err != nil {
				return nil, err
			}
		case p.expectKeyword("ADD"):
			sawClause = true
			if err := parseAddClauses(p, names, values, ue); err != nil {
				return nil, err
			}
		case p.expectKeyword("DELETE"):
			sawClause = true
			if err := parseDeleteClauses(p, names, values, ue); err != nil {
				return nil, err
			}
		default:
			return nil, pretendererrors.NewValidationError("expected SET, REMOVE, ADD, or DELETE, got %q", p.cur().text)
		}
	}
	if !sawClause {
		return nil, pretendererrors.NewValidationError("update expression has no clauses")
	}
	return ue, nil
}

func parsePathToken(p *parser, names map[string]string) ([]string, error) {
	switch p.cur().kind {
	case tokIdent:
		tok := p.advance()
		return resolvePathSegments(tok.text, names)
	case tokNameAlias:
		tok := p.advance()
		name, err := resolveName(tok.text, names)
		if err != nil {
			return nil, err
		}
		return []string{name}, nil
	default:
		return nil, pretendererrors.NewValidationError("expected an attribute path, got %q", p.cur().text)
	}
}

func parseSetClauses(p *parser, names map[string]string, values map[string]types.AttributeValue, ue *UpdateExpression) error {
	for {
		path, err := parsePathToken(p, names)
		if err != nil {
			return err
		}
		if _, err := p.expect(tokEq, "'='"); err != nil {
			return err
		}
		op, err := parseOperand(p, names, values)
		if err != nil {
			return err
		}
		ue.Sets = append(ue.Sets, SetClause{Path: path, op: op})

		if p.cur().kind == tokComma {
			p.advance()
			continue
		}
		return nil
	}
}

func parseOperand(p *parser, names map[string]string, values map[string]types.AttributeValue) (operand, error) {
	left, err := parseOperandTerm(p, names, values)
	if err != nil {
		return operand{}, err
	}
	for p.cur().kind == tokPlus || p.cur().kind == tokMinus {
		opTok := p.advance()
		right, err := parseOperandTerm(p, names, values)
		if err != nil {
			return operand{}, err
		}
		opByte := byte('+')
		if opTok.kind == tokMinus {
			opByte = '-'
		}
		l, r := left, right
		left = operand{kind: operandArithmetic, left: &l, op: opByte, right: &r}
	}
	return left, nil
}

func parseOperandTerm(p *parser, names map[string]string, values map[string]types.AttributeValue) (operand, error) {
	switch {
	case p.cur().kind == tokPlaceholder:
		tok := p.advance()
		val, err := resolveValue(tok.text, values)
		if err != nil {
			return operand{}, err
		}
		return operand{kind: operandValue, value: val}, nil
	case p.cur().kind == tokIdent && strings.EqualFold(p.cur().text, "if_not_exists"):
		p.advance()
		if _, err := p.expect(tokLParen, "'('"); err != nil {
			return operand{}, err
		}
		path, err := parsePathToken(p, names)
		if err != nil {
			return operand{}, err
		}
		if _, err := p.expect(tokComma, "','"); err != nil {
			return operand{}, err
		}
		def, err := parseOperand(p, names, values)
		if err != nil {
			return operand{}, err
		}
		if _, err := p.expect(tokRParen, "')'"); err != nil {
			return operand{}, err
		}
		return operand{kind: operandIfNotExists, path: path, ifNotExistsDefault: &def}, nil
	case p.cur().kind == tokIdent || p.cur().kind == tokNameAlias:
		path, err := parsePathToken(p, names)
		if err != nil {
			return operand{}, err
		}
		return operand{kind: operandAttr, path: path}, nil
	default:
		return operand{}, pretendererrors.NewValidationError("expected a value placeholder, attribute path, or if_not_exists(...), got %q", p.cur().text)
	}
}

func parseRemoveClauses(p *parser, names map[string]string, ue *UpdateExpression) error {
	for {
		path, err := parsePathToken(p, names)
		if err != nil {
			return err
		}
		ue.Removes = append(ue.Removes, path)
		if p.cur().kind == tokComma {
			p.advance()
			continue
		}
		return nil
	}
}

func parseAddClauses(p *parser, names map[string]string, values map[string]types.AttributeValue, ue *UpdateExpression) error {
	for {
		path, err := parsePathToken(p, names)
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
		ue.Adds = append(ue.Adds, AddClause{Path: path, Value: val})
		if p.cur().kind == tokComma {
			p.advance()
			continue
		}
		return nil
	}
}

func parseDeleteClauses(p *parser, names map[string]string, values map[string]types.AttributeValue, ue *UpdateExpression) error {
	for {
		path, err := parsePathToken(p, names)
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
		ue.Deletes = append(ue.Deletes, DeleteClause{Path: path, Value: val})
		if p.cur().kind == tokComma {
			p.advance()
			continue
		}
		return nil
	}
}

// AffectedAttributeNames returns the top-level attribute names touched by
// this expression's SET/REMOVE/ADD/DELETE clauses, in first-seen order. A
// nested path (e.g. a.b) is reported by its top-level segment, matching how
// DynamoDB scopes UPDATED_OLD/UPDATED_NEW to whole top-level attributes.
func (ue *UpdateExpression) AffectedAttributeNames() []string {
	seen := make(map[string]struct{})
	var names []string
	add := func(path []string) {
		if len(path) == 0 {
			return
		}
		top := path[0]
		if _, ok := seen[top]; ok {
			return
		}
		seen[top] = struct{}{}
		names = append(names, top)
	}
	for _, set := range ue.Sets {
		add(set.Path)
	}
	for _, path := range ue.Removes {
		add(path)
	}
	for _, a := range ue.Adds {
		add(a.Path)
	}
	for _, d := range ue.Deletes {
		add(d.Path)
	}
	return names
}

// Apply walks the update AST against existing (which may be nil for a
// brand-new item), returning the updated item. existing is not mutated;
// the returned item is an independent copy.
func (ue *UpdateExpression) Apply(existing attrvalue.Item) (attrvalue.Item, error) {
	var item attrvalue.Item
	if existing == nil {
		item = attrvalue.Item{}
	} else {
		cloned, err := attrvalue.Clone(existing)
		if err != nil {
			return nil, err
		}
		item = cloned
	}

	for _, set := range ue.Sets {
		val, err := evaluateOperand(set.op, item)
		if err != nil {
			return nil, err
		}
		if err := setPath(item, set.Path, val); err != nil {
			return nil, err
		}
	}
	for _, path := range ue.Removes {
		removePath(item, path)
	}
	for _, add := range ue.Adds {
		if err := applyAdd(item, add); err != nil {
			return nil, err
		}
	}
	for _, del := range ue.Deletes {
		if err := applyDelete(item, del); err != nil {
			return nil, err
		}
	}

	return item, nil
}

func evaluateOperand(op operand, item attrvalue.Item) (types.AttributeValue, error) {
	switch op.kind {
	case operandValue:
		return op.value, nil
	case operandAttr:
		v, ok := getPath(item, op.path)
		if !ok {
			return nil, pretendererrors.NewValidationError("attribute %q referenced in update expression does not exist", strings.Join(op.path, "."))
		}
		return v, nil
	case operandIfNotExists:
		if v, ok := getPath(item, op.path); ok {
			return v, nil
		}
		return evaluateOperand(*op.ifNotExistsDefault, item)
	case operandArithmetic:
		leftVal, err := evaluateOperand(*op.left, item)
		if err != nil {
			return nil, err
		}
		rightVal, err := evaluateOperand(*op.right, item)
		if err != nil {
			return nil, err
		}
		return applyArithmetic(leftVal, op.op, rightVal)
	default:
		return nil, pretendererrors.NewInternalError("unknown operand kind %d", op.kind)
	}
}

func applyArithmetic(left types.AttributeValue, op byte, right types.AttributeValue) (types.AttributeValue, error) {
	ln, ok := left.(*types.AttributeValueMemberN)
	if !ok {
		return nil, pretendererrors.NewValidationError("arithmetic update operand must be a number")
	}
	rn, ok := right.(*types.AttributeValueMemberN)
	if !ok {
		return nil, pretendererrors.NewValidationError("arithmetic update operand must be a number")
	}
	lv, err := decimal.NewFromString(ln.Value)
	if err != nil {
		return nil, pretendererrors.NewValidationError("invalid number %q", ln.Value)
	}
	rv, err := decimal.NewFromString(rn.Value)
	if err != nil {
		return nil, pretendererrors.NewValidationError("invalid number %q", rn.Value)
	}
	var result decimal.Decimal
	if op == '+' {
		result = lv.Add(rv)
	} else {
		result = lv.Sub(rv)
	}
	return &types.AttributeValueMemberN{Value: result.String()}, nil
}

func applyAdd(item attrvalue.Item, add AddClause) error {
	existing, ok := getPath(item, add.Path)
	if !ok {
		return setPath(item, add.Path, add.Value)
	}
	switch av := add.Value.(type) {
	case *types.AttributeValueMemberN:
		result, err := applyArithmetic(existing, '+', av)
		if err != nil {
			return err
		}
		return setPath(item, add.Path, result)
	case *types.AttributeValueMemberSS:
		existingSS, ok := existing.(*types.AttributeValueMemberSS)
		if !ok {
			return pretendererrors.NewValidationError("ADD of a string set requires an existing string set")
		}
		return setPath(item, add.Path, &types.AttributeValueMemberSS{Value: unionStrings(existingSS.Value, av.Value)})
	case *types.AttributeValueMemberNS:
		existingNS, ok := existing.(*types.AttributeValueMemberNS)
		if !ok {
			return pretendererrors.NewValidationError("ADD of a number set requires an existing number set")
		}
		return setPath(item, add.Path, &types.AttributeValueMemberNS{Value: unionStrings(existingNS.Value, av.Value)})
	case *types.AttributeValueMemberBS:
		existingBS, ok := existing.(*types.AttributeValueMemberBS)
		if !ok {
			return pretendererrors.NewValidationError("ADD of a binary set requires an existing binary set")
		}
		return setPath(item, add.Path, &types.AttributeValueMemberBS{Value: unionBytes(existingBS.Value, av.Value)})
	default:
		return pretendererrors.NewValidationError("ADD only supports numbers and sets")
	}
}

func applyDelete(item attrvalue.Item, del DeleteClause) error {
	existing, ok := getPath(item, del.Path)
	if !ok {
		return nil
	}
	switch av := del.Value.(type) {
	case *types.AttributeValueMemberSS:
		existingSS, ok := existing.(*types.AttributeValueMemberSS)
		if !ok {
			return pretendererrors.NewValidationError("DELETE of a string set requires an existing string set")
		}
		return setPath(item, del.Path, &types.AttributeValueMemberSS{Value: subtractStrings(existingSS.Value, av.Value)})
	case *types.AttributeValueMemberNS:
		existingNS, ok := existing.(*types.AttributeValueMemberNS)
		if !ok {
			return pretendererrors.NewValidationError("DELETE of a number set requires an existing number set")
		}
		return setPath(item, del.Path, &types.AttributeValueMemberNS{Value: subtractStrings(existingNS.Value, av.Value)})
	case *types.AttributeValueMemberBS:
		existingBS, ok := existing.(*types.AttributeValueMemberBS)
		if !ok {
			return pretendererrors.NewValidationError("DELETE of a binary set requires an existing binary set")
		}
		return setPath(item, del.Path, &types.AttributeValueMemberBS{Value: subtractBytes(existingBS.Value, av.Value)})
	default:
		return pretendererrors.NewValidationError("DELETE only supports sets")
	}
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range append(append([]string{}, a...), b...) {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

func subtractStrings(a, b []string) []string {
	remove := make(map[string]struct{}, len(b))
	for _, s := range b {
		remove[s] = struct{}{}
	}
	out := make([]string, 0, len(a))
	for _, s := range a {
		if _, ok := remove[s]; !ok {
			out = append(out, s)
		}
	}
	return out
}

func unionBytes(a, b [][]byte) [][]byte {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([][]byte, 0, len(a)+len(b))
	for _, set := range [][][]byte{a, b} {
		for _, v := range set {
			key := string(v)
			if _, ok := seen[key]; !ok {
				seen[key] = struct{}{}
				out = append(out, v)
			}
		}
	}
	return out
}

func subtractBytes(a, b [][]byte) [][]byte {
	remove := make(map[string]struct{}, len(b))
	for _, v := range b {
		remove[string(v)] = struct{}{}
	}
	out := make([][]byte, 0, len(a))
	for _, v := range a {
		if _, ok := remove[string(v)]; !ok {
			out = append(out, v)
		}
	}
	return out
}
