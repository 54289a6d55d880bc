// Package link talks to vehicles: a simulated implementation for
// development and an MSP serial implementation for real flight
// controllers. Both satisfy the coordinator's VehicleLink interface.
package link

import "errors"

// ErrTimeout reports that a vehicle did not answer within the allowed
// window. The coordinator treats it as a per-vehicle stale poll, never
// as a swarm-wide failure.
var ErrTimeout = errors.New("link: timeout")
