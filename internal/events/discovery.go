package events

import "time"

// DiscoveryRegistered is emitted after the instance is announced to the
// discovery service. Err is set when the announcement failed.
type DiscoveryRegistered struct {
	Service    string
	InstanceID string
	Err        error
	Duration   time.Duration
}

// DiscoveryDeregistered is emitted after the instance is withdrawn.
type DiscoveryDeregistered struct {
	Service    string
	InstanceID string
	Err        error
}
