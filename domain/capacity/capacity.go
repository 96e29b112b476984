// Package capacity implements the consumed-capacity calculator (spec §4.3).
package capacity

import (
	"math"

	"github.com/pretender-db/pretender/domain/attrvalue"
)

const (
	readUnitBytes  = 4096
	writeUnitBytes = 1024
)

// Read returns the consumed read-capacity units for item: ceil(sizeBytes / 4096).
// An empty or nil item consumes zero.
func Read(item attrvalue.Item) (float64, error) {
	sizeBytes, err := attrvalue.Size(item)
	if err != nil {
		return 0, err
	}
	return unitsFor(sizeBytes, readUnitBytes), nil
}

// Write returns the consumed write-capacity units for item: ceil(sizeBytes / 1024).
// An empty or nil item consumes zero.
func Write(item attrvalue.Item) (float64, error) {
	sizeBytes, err := attrvalue.Size(item)
	if err != nil {
		return 0, err
	}
	return unitsFor(sizeBytes, writeUnitBytes), nil
}

// ReadForSize and WriteForSize operate on a precomputed sizeBytes, used when
// a caller has already measured item size (e.g. deriving capacity for a
// batch of fetched rows without re-rendering JSON).
func ReadForSize(sizeBytes int) float64  { return unitsFor(sizeBytes, readUnitBytes) }
func WriteForSize(sizeBytes int) float64 { return unitsFor(sizeBytes, writeUnitBytes) }

func unitsFor(sizeBytes, unitBytes int) float64 {
	if sizeBytes <= 0 {
		return 0
	}
	return math.Ceil(float64(sizeBytes) / float64(unitBytes))
}
