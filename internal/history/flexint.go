package history

import (
	"math"
	"strconv"
	"strings"
)

// FlexInt decodes the numeric fields of upstream payloads: 42, 42.0 and
// "42" are all accepted. Anything else, null included, leaves it unset
// instead of failing the surrounding object.
type FlexInt struct {
	value int64
	set   bool
}

// NewFlexInt returns a set value.
func NewFlexInt(v int64) FlexInt {
	return FlexInt{value: v, set: true}
}

func (f *FlexInt) UnmarshalJSON(b []byte) error {
	*f = FlexInt{}

	s := strings.TrimSpace(strings.Trim(strings.TrimSpace(string(b)), `"`))
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		*f = NewFlexInt(n)
		return nil
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(v) && !math.IsInf(v, 0) &&
		v >= math.MinInt64 && v < math.MaxInt64 {
		*f = NewFlexInt(int64(v))
	}
	return nil
}

// Set reports whether a usable number was present.
func (f FlexInt) Set() bool {
	return f.set
}

func (f FlexInt) Int64() int64 {
	return f.value
}

func (f FlexInt) Int() int {
	return int(f.value)
}
