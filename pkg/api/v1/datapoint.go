package v1

import (
	"encoding/json"
	"time"

	"pulsehub/pkg/constraints"
)

// Datapoint is the external shape of one observed topic value.
type Datapoint struct {
	ID    string            `json:"id"`
	Label string            `json:"label"`
	Kind  constraints.Kind  `json:"kind"`
	Units constraints.Units `json:"units"`
	Value any               `json:"value"`
	Time  time.Time         `json:"time"`
}

// TopicInfo describes a registered topic without its value.
type TopicInfo struct {
	ID    string            `json:"id"`
	Label string            `json:"label"`
	Kind  constraints.Kind  `json:"kind"`
	Units constraints.Units `json:"units"`
	State string            `json:"state"`
}

// RemoteValue is what a mirroring client decodes off a remote stream. Value
// is kept raw so the local topic republishes exactly what was sent.
type RemoteValue struct {
	Label string          `json:"label"`
	Value json.RawMessage `json:"value"`
}
