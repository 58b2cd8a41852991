package circuit

import (
	"sort"

	"github.com/nvandessel/relaysim/internal/netgraph"
	"github.com/nvandessel/relaysim/internal/propagation"
)

// DeviceKind names a placeable device template.
type DeviceKind string

const (
	KindCoil      DeviceKind = "coil"      // bare registered coil
	KindContactor DeviceKind = "contactor" // coil, auxiliary contacts, three poles
	KindPower     DeviceKind = "power"     // switchable three-phase supply
	KindMotor     DeviceKind = "motor"     // three-phase load
)

// Placement is a placed device as seen by callers.
type Placement struct {
	Prefix string
	Kind   DeviceKind
}

// contactorContact is one switched pair of a contactor, both pins suffixed
// to the device prefix.
type contactorContact struct {
	a, b         string
	normallyOpen bool
}

var contactorContacts = []contactorContact{
	{"_13", "_14", true},
	{"_21", "_22", false},
	{"_53", "_54", true},
	{"_61", "_62", false},
	{"_75", "_76", false},
	{"_87", "_88", true},
	{"_L1", "_T1", true},
	{"_L2", "_T2", true},
	{"_L3", "_T3", true},
}

// Coil terminals of a contactor.
const (
	CoilHotSuffix    = "_A1"
	CoilReturnSuffix = "_A2"
)

var (
	supplyPins = []string{"_L1", "_L2", "_L3"}
	motorPins  = []string{"_U", "_V", "_W"}
)

// PlaceContactor adds a contactor with coil prefix_A1/prefix_A2, the
// auxiliary contacts 13-14, 53-54, 87-88 (NO) and 21-22, 61-62, 75-76
// (NC), and main poles L1-T1, L2-T2, L3-T3 (NO). Placing an existing
// prefix is a no-op.
func (c *Circuit) PlaceContactor(prefix string) {
	if _, exists := c.placements[prefix]; exists {
		return
	}
	if !c.registerDevice(prefix, prefix+CoilHotSuffix, prefix+CoilReturnSuffix) {
		return
	}
	for _, ct := range contactorContacts {
		cond := netgraph.WhenDeenergized(prefix)
		if ct.normallyOpen {
			cond = netgraph.WhenEnergized(prefix)
		}
		c.graph.AddLink(prefix+ct.a, prefix+ct.b, cond)
	}
	c.placements[prefix] = KindContactor
	c.logger.Debug("contactor placed", "prefix", prefix)
	c.Recompute()
}

// PlacePowerSupply adds a switched-off supply with pins prefix_L1..L3.
func (c *Circuit) PlacePowerSupply(prefix string) {
	if _, exists := c.placements[prefix]; exists {
		return
	}
	for _, pin := range supplyPins {
		c.graph.AddNode(prefix + pin)
	}
	c.placements[prefix] = KindPower
	c.powered[prefix] = false
	c.logger.Debug("power supply placed", "prefix", prefix)
	c.Recompute()
}

// SetPower switches a placed supply. Its pins act as phase sources while it
// is on, alongside any declared through SetPhaseSource. Unknown prefixes are
// ignored.
func (c *Circuit) SetPower(prefix string, on bool) {
	if c.placements[prefix] != KindPower {
		return
	}
	c.powered[prefix] = on
	c.logger.Debug("power switched", "prefix", prefix, "on", on)
	c.Recompute()
}

// IsPowered reports whether the supply at prefix is switched on.
func (c *Circuit) IsPowered(prefix string) bool {
	return c.powered[prefix]
}

// PlaceMotor adds a three-phase load with terminals prefix_U, _V and _W.
func (c *Circuit) PlaceMotor(prefix string) {
	if _, exists := c.placements[prefix]; exists {
		return
	}
	for _, pin := range motorPins {
		c.graph.AddNode(prefix + pin)
	}
	c.placements[prefix] = KindMotor
	c.logger.Debug("motor placed", "prefix", prefix)
	c.Recompute()
}

// MotorRotation returns the rotation of the motor at prefix, or
// Indeterminate when the prefix is not a motor or its terminals are not fed
// by three distinct single phases.
func (c *Circuit) MotorRotation(prefix string) propagation.Direction {
	return c.state.Motors[prefix]
}

// Placements lists placed devices sorted by prefix.
func (c *Circuit) Placements() []Placement {
	result := make([]Placement, 0, len(c.placements))
	for prefix, kind := range c.placements {
		result = append(result, Placement{Prefix: prefix, Kind: kind})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Prefix < result[j].Prefix })
	return result
}

func (c *Circuit) motorRotations(masks map[string]propagation.PhaseMask) map[string]propagation.Direction {
	motors := make(map[string]propagation.Direction)
	for prefix, kind := range c.placements {
		if kind != KindMotor {
			continue
		}
		motors[prefix] = propagation.InferRotation(
			masks[prefix+motorPins[0]],
			masks[prefix+motorPins[1]],
			masks[prefix+motorPins[2]],
		)
	}
	return motors
}
