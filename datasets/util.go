package datasets

import (
	"math"
	"strconv"
	"strings"
)

// parseFloat32 parses a CSV cell into a float32. Empty cells and
// unparseable or non-finite values are treated as missing and become 0,
// per the missing-value contract of the event table.
func parseFloat32(s string) float32 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 32)
	if err != nil {
		return 0
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return float32(v)
}

// sourceKey builds the canonical grouping key for a (Source_X, Source_Y)
// pair, so textually different encodings of the same coordinate
// ("1.0" vs "1") collapse into one group.
func sourceKey(x, y float32) string {
	return strconv.FormatFloat(float64(x), 'g', -1, 32) + "," +
		strconv.FormatFloat(float64(y), 'g', -1, 32)
}
