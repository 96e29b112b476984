package expr

import (
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/pretender-db/pretender/domain/attrvalue"
	pretendererrors "github.com/pretender-db/pretender/pkg/errors"
)

// getPath resolves a dotted attribute path against item, descending through
// nested M maps. Returns ok=false if any segment is absent or non-map.
func getPath(item attrvalue.Item, path []string) (types.AttributeValue, bool) {
	cur := map[string]types.AttributeValue(item)
	for i, seg := range path {
		v, ok := cur[seg]
		if !ok {
			return nil, false
		}
		if i == len(path)-1 {
			return v, true
		}
		m, ok := v.(*types.AttributeValueMemberM)
		if !ok {
			return nil, false
		}
		cur = m.Value
	}
	return nil, false
}

// setPath writes value at path, creating intermediate maps as needed.
func setPath(item attrvalue.Item, path []string, value types.AttributeValue) error {
	cur := map[string]types.AttributeValue(item)
	for i, seg := range path {
		if i == len(path)-1 {
			cur[seg] = value
			return nil
		}
		v, ok := cur[seg]
		if !ok {
			m := map[string]types.AttributeValue{}
			cur[seg] = &types.AttributeValueMemberM{Value: m}
			cur = m
			continue
		}
		m, ok := v.(*types.AttributeValueMemberM)
		if !ok {
			return pretendererrors.NewValidationError("path segment %q is not a map", seg)
		}
		cur = m.Value
	}
	return nil
}

// removePath deletes the attribute at path, a no-op if any segment is absent.
func removePath(item attrvalue.Item, path []string) {
	cur := map[string]types.AttributeValue(item)
	for i, seg := range path {
		v, ok := cur[seg]
		if !ok {
			return
		}
		if i == len(path)-1 {
			delete(cur, seg)
			return
		}
		m, ok := v.(*types.AttributeValueMemberM)
		if !ok {
			return
		}
		cur = m.Value
	}
}

func resolveName(alias string, names map[string]string) (string, error) {
	if len(alias) == 0 || alias[0] != '#' {
		return alias, nil
	}
	name, ok := names[alias]
	if !ok {
		return "", pretendererrors.NewValidationError("expression attribute name alias %q is not defined", alias)
	}
	return name, nil
}

func resolveValue(alias string, values map[string]types.AttributeValue) (types.AttributeValue, error) {
	v, ok := values[alias]
	if !ok {
		return nil, pretendererrors.NewValidationError("expression attribute value alias %q is not defined", alias)
	}
	return v, nil
}

// resolvePathSegments converts an ident token's text (possibly dotted, possibly
// name-aliased) into path segments, resolving any #alias segments.
func resolvePathSegments(raw string, names map[string]string) ([]string, error) {
	rawSegments := splitPath(raw)
	resolved := make([]string, len(rawSegments))
	for i, seg := range rawSegments {
		name, err := resolveName(seg, names)
		if err != nil {
			return nil, err
		}
		resolved[i] = name
	}
	return resolved, nil
}
