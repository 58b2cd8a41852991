package schematic

import (
	"fmt"

	"github.com/nvandessel/relaysim/internal/circuit"
	"github.com/nvandessel/relaysim/internal/netgraph"
)

// Apply resets c and replays the document through its mutation surface:
// devices, wires, sources, tags, then power.
func Apply(doc *Document, c *circuit.Circuit) error {
	if err := doc.Validate(); err != nil {
		return fmt.Errorf("invalid schematic: %w", err)
	}

	wires := make([]netgraph.Conductance, len(doc.Wires))
	for i, w := range doc.Wires {
		cond, err := netgraph.ParseConductance(w.Conductance)
		if err != nil {
			return fmt.Errorf("wires[%d]: %w", i, err)
		}
		wires[i] = cond
	}

	c.Reset()

	for _, dev := range doc.Devices {
		switch dev.Kind {
		case KindPower:
			c.PlacePowerSupply(dev.Prefix)
		case KindContactor:
			c.PlaceContactor(dev.Prefix)
		case KindMotor:
			c.PlaceMotor(dev.Prefix)
		case KindCoil:
			c.RegisterDevice(dev.Prefix, dev.CoilHot, dev.CoilReturn)
		}
	}

	for i, w := range doc.Wires {
		c.AddLink(w.From, w.To, wires[i])
	}
	for _, n := range doc.PhaseSources {
		c.SetPhaseSource(n, true)
	}
	for _, n := range doc.NeutralSources {
		c.SetNeutralSource(n, true)
	}
	for node, bits := range doc.Tags {
		c.TagPhase(node, TagMask(bits))
	}
	for _, p := range doc.Powered {
		c.SetPower(p, true)
	}
	return nil
}

// Capture rebuilds a document from the current contents of c. Applying the
// result to an empty circuit reproduces the same graph and sources.
func Capture(name string, c *circuit.Circuit) *Document {
	doc := &Document{Name: name}

	coils := make(map[string][2]string)
	for _, d := range c.Devices() {
		coils[d.Prefix] = [2]string{d.CoilHot, d.CoilReturn}
	}

	for _, p := range c.Placements() {
		spec := DeviceSpec{Kind: string(p.Kind), Prefix: p.Prefix}
		switch p.Kind {
		case circuit.KindCoil:
			spec.CoilHot, spec.CoilReturn = coils[p.Prefix][0], coils[p.Prefix][1]
		case circuit.KindPower:
			if c.IsPowered(p.Prefix) {
				doc.Powered = append(doc.Powered, p.Prefix)
			}
		}
		doc.Devices = append(doc.Devices, spec)
	}

	for _, w := range c.Wires() {
		spec := WireSpec{From: w.A, To: w.B}
		if w.Conductance.Kind != netgraph.KindAlways {
			spec.Conductance = w.Conductance.String()
		}
		doc.Wires = append(doc.Wires, spec)
	}

	doc.PhaseSources = c.PhaseSources()
	if len(doc.PhaseSources) == 0 {
		doc.PhaseSources = nil
	}
	doc.NeutralSources = c.NeutralSources()
	if len(doc.NeutralSources) == 0 {
		doc.NeutralSources = nil
	}

	tags := c.Tags()
	if len(tags) > 0 {
		doc.Tags = make(map[string][]int, len(tags))
		for n, m := range tags {
			doc.Tags[n] = TagBits(m)
		}
	}
	return doc
}
