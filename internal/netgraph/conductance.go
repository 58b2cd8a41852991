package netgraph

import (
	"fmt"
	"strings"
)

// ConductanceKind selects when a link conducts.
type ConductanceKind string

const (
	KindAlways          ConductanceKind = ""   // plain wire
	KindWhenEnergized   ConductanceKind = "no" // normally-open contact
	KindWhenDeenergized ConductanceKind = "nc" // normally-closed contact
)

// DeviceState reports the current energized flag of a controllable device.
// Unknown devices read as de-energized.
type DeviceState interface {
	IsEnergized(device string) bool
}

// Energization is a DeviceState backed by a map of device prefix to flag.
type Energization map[string]bool

// IsEnergized implements DeviceState.
func (e Energization) IsEnergized(device string) bool {
	return e[device]
}

// Conductance describes when a link conducts. The zero value always conducts.
type Conductance struct {
	Kind   ConductanceKind `json:"kind,omitempty"`
	Device string          `json:"device,omitempty"`
}

// Always returns a conductance for a plain wire.
func Always() Conductance {
	return Conductance{}
}

// WhenEnergized returns the conductance of a normally-open contact of device.
func WhenEnergized(device string) Conductance {
	return Conductance{Kind: KindWhenEnergized, Device: device}
}

// WhenDeenergized returns the conductance of a normally-closed contact of device.
func WhenDeenergized(device string) Conductance {
	return Conductance{Kind: KindWhenDeenergized, Device: device}
}

// Conducts evaluates the conductance against the current device state.
// A nil state reads every device as de-energized.
func (c Conductance) Conducts(state DeviceState) bool {
	switch c.Kind {
	case KindWhenEnergized:
		return state != nil && state.IsEnergized(c.Device)
	case KindWhenDeenergized:
		return state == nil || !state.IsEnergized(c.Device)
	default:
		return true
	}
}

// String renders the conductance as "always", "no:<device>" or "nc:<device>".
func (c Conductance) String() string {
	if c.Kind == KindAlways {
		return "always"
	}
	return string(c.Kind) + ":" + c.Device
}

// ParseConductance parses the String form. The empty string means always.
func ParseConductance(s string) (Conductance, error) {
	if s == "" || s == "always" {
		return Always(), nil
	}
	kind, device, ok := strings.Cut(s, ":")
	if !ok || device == "" {
		return Conductance{}, fmt.Errorf("invalid conductance %q (want always, no:<device> or nc:<device>)", s)
	}
	switch ConductanceKind(kind) {
	case KindWhenEnergized:
		return WhenEnergized(device), nil
	case KindWhenDeenergized:
		return WhenDeenergized(device), nil
	default:
		return Conductance{}, fmt.Errorf("invalid conductance kind %q in %q", kind, s)
	}
}
