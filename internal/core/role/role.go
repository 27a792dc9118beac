// Package role names the behaviors a telebench process can execute. Every
// build ships all of them; which one runs is an explicit startup choice, not
// a build-time variant.
package role

import (
	"context"
	"fmt"
)

// Role selects one process behavior.
type Role int

const (
	// Trigger builds the device binary and drives a relay to completion.
	Trigger Role = iota
	// Relay consumes the device stream and republishes it to reporters.
	Relay
	// Probe serves a locally attached device to remote relays.
	Probe
	// Device registers benchmark groups and produces the measurement
	// stream. It lives in user programs via the SDK, not in the host CLI.
	Device
)

func (r Role) String() string {
	switch r {
	case Trigger:
		return "trigger"
	case Relay:
		return "relay"
	case Probe:
		return "probe"
	case Device:
		return "device"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// Parse maps a configuration string to a Role.
func Parse(s string) (Role, error) {
	switch s {
	case "trigger", "run":
		return Trigger, nil
	case "relay":
		return Relay, nil
	case "probe":
		return Probe, nil
	case "device":
		return Device, nil
	default:
		return Trigger, fmt.Errorf("unknown role %q", s)
	}
}

// Entry is one runnable role behavior. The relay, the bridge server, the
// device runner, and the CLI trigger all satisfy it.
type Entry interface {
	Run(ctx context.Context) error
}
