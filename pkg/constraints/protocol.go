package constraints

import (
	"reflect"
	"time"
)

// Kind tells consumers how to interpret a topic's values.
type Kind string

const (
	KindInt      Kind = "int"
	KindFloat    Kind = "float"
	KindDuration Kind = "duration"
	KindBool     Kind = "bool"
	KindString   Kind = "string"
	KindJSON     Kind = "json"
)

var durationType = reflect.TypeOf(time.Duration(0))

// KindOf derives the Kind of O. Anything that is not a scalar is rendered as JSON.
func KindOf[O any]() Kind {
	t := reflect.TypeOf((*O)(nil)).Elem()
	if t == durationType {
		return KindDuration
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return KindInt
	case reflect.Float32, reflect.Float64:
		return KindFloat
	case reflect.Bool:
		return KindBool
	case reflect.String:
		return KindString
	default:
		return KindJSON
	}
}

// Units is the physical or logical unit of a topic's values.
type Units string

const (
	None           Units = "none"
	Count          Units = "count"
	Milliseconds   Units = "ms"
	Seconds        Units = "seconds"
	Ratio          Units = "ratio"
	Percent        Units = "percent"
	Bytes          Units = "bytes"
	BytesPerSecond Units = "bytes_per_second"
	PerSecond      Units = "per_second"
)

var knownUnits = map[Units]bool{
	None: true, Count: true, Milliseconds: true, Seconds: true, Ratio: true,
	Percent: true, Bytes: true, BytesPerSecond: true, PerSecond: true,
}

// ParseUnits maps a wire string onto Units; unknown or empty strings become None.
func ParseUnits(s string) Units {
	u := Units(s)
	if knownUnits[u] {
		return u
	}
	return None
}
