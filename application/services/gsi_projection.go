package services

import (
	"github.com/pretender-db/pretender/domain/attrvalue"
	"github.com/pretender-db/pretender/domain/table"
)

// buildProjection renders the attributes a GSI mirror row stores for item,
// per the index's ProjectionType (spec §3, §4.6): ALL mirrors everything,
// KEYS_ONLY mirrors just the table's and index's key attributes, INCLUDE
// adds a named attribute list on top of KEYS_ONLY.
func buildProjection(meta table.Metadata, gsi table.GSI, item attrvalue.Item) attrvalue.Item {
	if gsi.Projection == table.ProjectionAll {
		return item
	}

	proj := attrvalue.Item{}
	copyAttr(proj, item, meta.HashKey)
	copyAttr(proj, item, meta.SortKey)
	copyAttr(proj, item, gsi.HashKey)
	copyAttr(proj, item, gsi.SortKey)

	if gsi.Projection == table.ProjectionInclude {
		for _, attr := range gsi.NonKeyAttributes {
			copyAttr(proj, item, attr)
		}
	}
	return proj
}

func copyAttr(dst, src attrvalue.Item, name string) {
	if name == "" {
		return
	}
	if v, ok := src[name]; ok {
		dst[name] = v
	}
}
