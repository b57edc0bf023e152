package reader

import (
	"time"

	"github.com/parquet-go/parquet-go"
)

// columns maps the column names a decoder needs to leaf indexes of one
// file. Rows are decoded against the file's own schema, so integer widths
// and the timestamp unit may differ from what this package writes.
type columns struct {
	index map[string]int
	units map[string]time.Duration
}

func lookupColumns(schema *parquet.Schema, names ...string) columns {
	c := columns{
		index: make(map[string]int, len(names)),
		units: make(map[string]time.Duration),
	}
	for _, name := range names {
		leaf, ok := schema.Lookup(name)
		if !ok {
			continue
		}
		c.index[name] = leaf.ColumnIndex
		if lt := leaf.Node.Type().LogicalType(); lt != nil && lt.Timestamp != nil {
			switch unit := lt.Timestamp.Unit; {
			case unit.Nanos != nil:
				c.units[name] = time.Nanosecond
			case unit.Micros != nil:
				c.units[name] = time.Microsecond
			default:
				c.units[name] = time.Millisecond
			}
		}
	}
	return c
}

// missing returns the first required column absent from the file.
func (c columns) missing(required ...string) (string, bool) {
	for _, name := range required {
		if _, ok := c.index[name]; !ok {
			return name, true
		}
	}
	return "", false
}

// row reads typed values out of one decoded parquet.Row.
type row struct {
	cols columns
	vals parquet.Row
}

func (r row) value(name string) (parquet.Value, bool) {
	i, ok := r.cols.index[name]
	if !ok {
		return parquet.Value{}, false
	}
	if i < len(r.vals) && r.vals[i].Column() == i {
		v := r.vals[i]
		return v, !v.IsNull()
	}
	for _, v := range r.vals {
		if v.Column() == i {
			return v, !v.IsNull()
		}
	}
	return parquet.Value{}, false
}

func (r row) float(name string) float64 {
	v, ok := r.value(name)
	if !ok {
		return 0
	}
	switch v.Kind() {
	case parquet.Float:
		return float64(v.Float())
	case parquet.Double:
		return v.Double()
	case parquet.Int32:
		return float64(v.Int32())
	case parquet.Int64:
		return float64(v.Int64())
	}
	return 0
}

func (r row) floatPtr(name string) *float64 {
	if _, ok := r.value(name); !ok {
		return nil
	}
	f := r.float(name)
	return &f
}

func (r row) unsigned(name string) uint64 {
	v, ok := r.value(name)
	if !ok {
		return 0
	}
	switch v.Kind() {
	case parquet.Int32:
		return uint64(v.Uint32())
	case parquet.Int64:
		return v.Uint64()
	case parquet.Float:
		return uint64(v.Float())
	case parquet.Double:
		return uint64(v.Double())
	}
	return 0
}

func (r row) u32(name string) uint32 {
	return uint32(r.unsigned(name))
}

func (r row) str(name string) string {
	v, ok := r.value(name)
	if !ok || v.Kind() != parquet.ByteArray {
		return ""
	}
	return string(v.ByteArray())
}

func (r row) boolean(name string) bool {
	v, ok := r.value(name)
	return ok && v.Kind() == parquet.Boolean && v.Boolean()
}

// timestamp decodes a timestamp column. Columns without a timestamp
// logical type are read as Unix seconds.
func (r row) timestamp(name string) time.Time {
	v, ok := r.value(name)
	if !ok {
		return time.Time{}
	}
	var n int64
	switch v.Kind() {
	case parquet.Int64:
		n = v.Int64()
	case parquet.Int32:
		n = int64(v.Int32())
	case parquet.Double:
		n = int64(v.Double())
	default:
		return time.Time{}
	}
	switch r.cols.units[name] {
	case time.Nanosecond:
		return time.Unix(0, n).UTC()
	case time.Microsecond:
		return time.UnixMicro(n).UTC()
	case time.Millisecond:
		return time.UnixMilli(n).UTC()
	}
	return time.Unix(n, 0).UTC()
}
