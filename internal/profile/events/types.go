// Package events propagates local profile activations to the other
// instances of a cluster over Kafka.
package events

import "time"

// ActivationEvent is the wire form of one activation. Version increases
// monotonically per instance.
type ActivationEvent struct {
	Profile  string    `json:"profile"`
	Instance string    `json:"instance"`
	Version  uint64    `json:"version"`
	TS       time.Time `json:"ts"`
}

func (e ActivationEvent) valid() bool {
	return e.Profile != "" && e.Instance != ""
}
