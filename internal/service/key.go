package service

import (
	"time"

	v1 "pulsehub/pkg/api/v1"
	"pulsehub/pkg/constraints"

	"github.com/google/uuid"
)

// Ref identifies a topic without its value type. Two topics registered under
// the same label still get different Refs.
type Ref struct {
	ID    uuid.UUID
	Label string
}

func (r Ref) String() string {
	return r.Label + "#" + r.ID.String()
}

// Key is a Ref that remembers the topic's output type.
type Key[O any] struct {
	ref Ref
}

func (k Key[O]) Ref() Ref { return k.ref }
func (k Key[O]) Label() string { return k.ref.Label }
func (k Key[O]) String() string { return k.ref.String() }

// KeyOf asserts that ref carries values of type O. The assertion is checked
// on first use, not here.
func KeyOf[O any](ref Ref) Key[O] {
	return Key[O]{ref: ref}
}

// Meta is fixed when a topic is created.
type Meta struct {
	Reportable constraints.Kind
	Units      constraints.Units
	Created    time.Time
}

// Datapoint is one observed value bundled with its topic's identity and
// metadata.
type Datapoint struct {
	Key        Ref
	Reportable constraints.Kind
	Units      constraints.Units
	Value      any
	Time       time.Time
}

func (d Datapoint) V1() v1.Datapoint {
	return v1.Datapoint{
		ID:    d.Key.ID.String(),
		Label: d.Key.Label,
		Kind:  d.Reportable,
		Units: d.Units,
		Value: d.Value,
		Time:  d.Time,
	}
}

// TopicInfo is a registry row.
type TopicInfo struct {
	Key   Ref
	Meta  Meta
	State string
}

func (t TopicInfo) V1() v1.TopicInfo {
	return v1.TopicInfo{
		ID:    t.Key.ID.String(),
		Label: t.Key.Label,
		Kind:  t.Meta.Reportable,
		Units: t.Meta.Units,
		State: t.State,
	}
}
