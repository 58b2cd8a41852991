// Package circuit is the single entry point for editing a relay circuit and
// reading its resolved state. Every mutation is followed by a full
// recomputation, so callers never observe stale derived state.
//
// A Circuit is not safe for concurrent use.
package circuit

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/nvandessel/relaysim/internal/logging"
	"github.com/nvandessel/relaysim/internal/metrics"
	"github.com/nvandessel/relaysim/internal/netgraph"
	"github.com/nvandessel/relaysim/internal/propagation"
)

// Wire is an undirected connection added through AddLink.
type Wire struct {
	A           string
	B           string
	Conductance netgraph.Conductance
}

// Circuit owns the graph, the source sets and the device registry.
type Circuit struct {
	graph      *netgraph.Graph
	phase      propagation.NodeSet
	neutral    propagation.NodeSet
	devices    map[string]propagation.Device
	placements map[string]DeviceKind
	powered    map[string]bool
	tags       map[string]propagation.PhaseMask
	wires      []Wire
	energized  netgraph.Energization

	engine     *propagation.Engine
	classifier propagation.Classifier
	logger     *slog.Logger
	trace      *logging.TraceLogger
	metrics    *metrics.Registry

	state State
}

// Option configures a Circuit.
type Option func(*Circuit)

// WithLogger sets the operational logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Circuit) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithTrace sets the JSONL trace logger. A nil trace logger disables tracing.
func WithTrace(tl *logging.TraceLogger) Option {
	return func(c *Circuit) { c.trace = tl }
}

// WithMetrics records every recomputation into r.
func WithMetrics(r *metrics.Registry) Option {
	return func(c *Circuit) { c.metrics = r }
}

// WithEngineConfig sets the solver configuration.
func WithEngineConfig(cfg propagation.Config) Option {
	return func(c *Circuit) { c.engine = propagation.NewEngine(cfg) }
}

// WithClassifier sets how untagged phase sources map to identities.
func WithClassifier(cl propagation.Classifier) Option {
	return func(c *Circuit) {
		if cl != nil {
			c.classifier = cl
		}
	}
}

// New creates an empty circuit and resolves it once.
func New(opts ...Option) *Circuit {
	c := &Circuit{
		engine:     propagation.NewEngine(propagation.DefaultConfig()),
		classifier: propagation.DefaultSuffixes,
		logger:     logging.Discard(),
	}
	c.clear()
	for _, opt := range opts {
		opt(c)
	}
	c.Recompute()
	return c
}

func (c *Circuit) clear() {
	c.graph = netgraph.New()
	c.phase = propagation.NewNodeSet()
	c.neutral = propagation.NewNodeSet()
	c.devices = make(map[string]propagation.Device)
	c.placements = make(map[string]DeviceKind)
	c.powered = make(map[string]bool)
	c.tags = make(map[string]propagation.PhaseMask)
	c.wires = nil
	c.energized = make(netgraph.Energization)
}

// Reset drops every device, link and source.
func (c *Circuit) Reset() {
	c.clear()
	c.Recompute()
}

// AddLink connects a and b in both directions. A zero conductance is a
// plain wire.
func (c *Circuit) AddLink(a, b string, cond netgraph.Conductance) {
	c.graph.AddLink(a, b, cond)
	c.wires = append(c.wires, Wire{A: a, B: b, Conductance: cond})
	c.Recompute()
}

// RemoveLink removes every link between a and b. Unknown pairs are ignored.
func (c *Circuit) RemoveLink(a, b string) {
	c.graph.RemoveLink(a, b)
	c.wires = filterWires(c.wires, func(w Wire) bool {
		return (w.A == a && w.B == b) || (w.A == b && w.B == a)
	})
	c.Recompute()
}

// SetPhaseSource marks or unmarks node as an origin of phase signal.
func (c *Circuit) SetPhaseSource(node string, on bool) {
	c.setSource(c.phase, node, on)
	c.Recompute()
}

// SetNeutralSource marks or unmarks node as an origin of neutral signal.
func (c *Circuit) SetNeutralSource(node string, on bool) {
	c.setSource(c.neutral, node, on)
	c.Recompute()
}

func (c *Circuit) setSource(set propagation.NodeSet, node string, on bool) {
	c.graph.AddNode(node)
	if on {
		set.Add(node)
	} else {
		set.Remove(node)
	}
}

// TagPhase assigns explicit phase identities to a source node, overriding
// suffix classification. A zero mask removes the tag.
func (c *Circuit) TagPhase(node string, mask propagation.PhaseMask) {
	if mask == 0 {
		delete(c.tags, node)
	} else {
		c.tags[node] = mask
	}
	c.Recompute()
}

// RegisterDevice adds a controllable device whose coil sits between
// coilHot and coilReturn. Registering a prefix that is already registered
// or placed is a no-op.
func (c *Circuit) RegisterDevice(prefix, coilHot, coilReturn string) {
	if c.registerDevice(prefix, coilHot, coilReturn) {
		c.placements[prefix] = KindCoil
		c.Recompute()
	}
}

func (c *Circuit) registerDevice(prefix, coilHot, coilReturn string) bool {
	if _, exists := c.devices[prefix]; exists {
		return false
	}
	if _, placed := c.placements[prefix]; placed {
		return false
	}
	c.devices[prefix] = propagation.Device{Prefix: prefix, CoilHot: coilHot, CoilReturn: coilReturn}
	c.energized[prefix] = false
	c.graph.AddNode(coilHot)
	c.graph.AddNode(coilReturn)
	return true
}

// UnregisterDevice removes a placed or registered device together with
// every link, source, tag and node it owns: the node named prefix and every
// node named prefix_<pin>. Pins that also belong to a longer known prefix,
// such as K1_X_A1 while K1_X is registered, stay with that device. Unknown
// prefixes are ignored.
func (c *Circuit) UnregisterDevice(prefix string) {
	_, isDevice := c.devices[prefix]
	_, isPlaced := c.placements[prefix]
	if !isDevice && !isPlaced {
		return
	}

	owned := c.ownedBy(prefix)
	c.graph.RemoveNodesFunc(owned)
	c.wires = filterWires(c.wires, func(w Wire) bool {
		return owned(w.A) || owned(w.B)
	})
	for _, set := range []propagation.NodeSet{c.phase, c.neutral} {
		for node := range set {
			if owned(node) {
				set.Remove(node)
			}
		}
	}
	for node := range c.tags {
		if owned(node) {
			delete(c.tags, node)
		}
	}
	delete(c.devices, prefix)
	delete(c.placements, prefix)
	delete(c.powered, prefix)
	delete(c.energized, prefix)

	c.logger.Debug("device removed", "prefix", prefix)
	c.Recompute()
}

// pinOf reports whether node is prefix itself or one of its prefix_ pins.
func pinOf(prefix, node string) bool {
	return node == prefix || strings.HasPrefix(node, prefix+"_")
}

// ownedBy returns a predicate matching the nodes of prefix that no longer
// known prefix nested under it claims.
func (c *Circuit) ownedBy(prefix string) func(string) bool {
	var nested []string
	for _, other := range c.prefixes() {
		if other != prefix && pinOf(prefix, other) {
			nested = append(nested, other)
		}
	}
	return func(node string) bool {
		if !pinOf(prefix, node) {
			return false
		}
		for _, other := range nested {
			if pinOf(other, node) {
				return false
			}
		}
		return true
	}
}

// prefixes returns every registered or placed prefix.
func (c *Circuit) prefixes() []string {
	seen := make(map[string]bool, len(c.placements)+len(c.devices))
	for p := range c.placements {
		seen[p] = true
	}
	for p := range c.devices {
		seen[p] = true
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// activePhaseSources is the declared phase sources plus the pins of every
// powered supply.
func (c *Circuit) activePhaseSources() propagation.NodeSet {
	active := propagation.NewNodeSet(c.phase.Sorted()...)
	for prefix, on := range c.powered {
		if !on {
			continue
		}
		for _, pin := range supplyPins {
			active.Add(prefix + pin)
		}
	}
	return active
}

// Recompute resolves the circuit to a fixed point and refreshes every
// derived result. It is idempotent.
func (c *Circuit) Recompute() {
	start := time.Now()

	devices := make([]propagation.Device, 0, len(c.devices))
	for _, d := range c.devices {
		devices = append(devices, d)
	}
	phase := c.activePhaseSources()
	sources := propagation.Sources{Phase: phase, Neutral: c.neutral}

	res := c.engine.Solve(c.graph, sources, devices, c.energized)
	c.energized = res.Energized

	classifier := propagation.TaggedClassifier{Tags: c.tags, Fallback: c.classifier}
	masks := propagation.PhaseMasks(c.graph, phase, classifier, res.Energized)

	shorted := propagation.ShortToNeutral(res.Hot)
	interPhase := propagation.InterPhaseFaults(masks)

	c.state = State{
		PhaseHot:   res.Hot.Phase,
		NeutralHot: res.Hot.Neutral,
		Energized:  copyEnergization(res.Energized),
		Masks:      masks,
		Shorted:    shorted,
		InterPhase: interPhase,
		Faulted:    mergeSorted(shorted, interPhase),
		Motors:     c.motorRotations(masks),
		Rounds:     res.Rounds,
		Converged:  res.Converged,
	}

	c.report(res, time.Since(start))
}

// report emits logs, trace events and metrics for one recomputation.
func (c *Circuit) report(res propagation.Result, elapsed time.Duration) {
	flipsOn, flipsOff := 0, 0
	for _, f := range res.Flips {
		if f.Energized {
			flipsOn++
		} else {
			flipsOff++
		}
		c.logger.Log(context.Background(), logging.LevelTrace, "device flip",
			"device", f.Device, "round", f.Round, "energized", f.Energized)
	}

	var energized []string
	for prefix, on := range res.Energized {
		if on {
			energized = append(energized, prefix)
		}
	}
	sort.Strings(energized)
	energizedCount := len(energized)

	if !res.Converged {
		c.logger.Warn("solver stopped at iteration cap, circuit may oscillate",
			"rounds", res.Rounds, "flips", len(res.Flips))
	}
	c.logger.Debug("recompute",
		"rounds", res.Rounds,
		"converged", res.Converged,
		"energized", energizedCount,
		"faulted", len(c.state.Faulted),
		"duration", elapsed)

	c.trace.Recompute(traceRounds(res), logging.Summary{
		Rounds:     res.Rounds,
		Converged:  res.Converged,
		Energized:  energized,
		Shorted:    c.state.Shorted,
		InterPhase: c.state.InterPhase,
		DurationUS: elapsed.Microseconds(),
	})

	c.metrics.RecordRecompute(metrics.Recompute{
		Duration:        elapsed,
		Rounds:          res.Rounds,
		Converged:       res.Converged,
		Energized:       energizedCount,
		FlipsOn:         flipsOn,
		FlipsOff:        flipsOff,
		ShortedNodes:    len(c.state.Shorted),
		InterPhaseNodes: len(c.state.InterPhase),
		Links:           c.graph.Len(),
		Nodes:           len(c.graph.Nodes()),
	})
}

// traceRounds pairs each solver round with the flips made in it.
func traceRounds(res propagation.Result) []logging.Round {
	rounds := make([]logging.Round, len(res.History))
	for i, h := range res.History {
		rounds[i] = logging.Round{Number: h.Number, PhaseHot: h.PhaseHot, NeutralHot: h.NeutralHot}
	}
	for _, f := range res.Flips {
		if i := f.Round - 1; i >= 0 && i < len(rounds) {
			rounds[i].Flips = append(rounds[i].Flips, logging.Flip{Device: f.Device, Energized: f.Energized})
		}
	}
	return rounds
}

// IsPhaseHot reports whether phase signal reaches node.
func (c *Circuit) IsPhaseHot(node string) bool {
	return c.state.PhaseHot.Has(node)
}

// IsNeutralHot reports whether neutral signal reaches node.
func (c *Circuit) IsNeutralHot(node string) bool {
	return c.state.NeutralHot.Has(node)
}

// IsFaulted reports whether node is shorted to neutral or between phases.
func (c *Circuit) IsFaulted(node string) bool {
	return c.state.IsFaulted(node)
}

// IsEnergized reports whether the device coil is energized.
func (c *Circuit) IsEnergized(prefix string) bool {
	return c.state.Energized[prefix]
}

// PhaseIdentityMask returns the phase identities reaching node.
func (c *Circuit) PhaseIdentityMask(node string) propagation.PhaseMask {
	return c.state.Masks[node]
}

// FaultedNodes returns every faulted node, sorted.
func (c *Circuit) FaultedNodes() []string {
	return append([]string(nil), c.state.Faulted...)
}

// ShortedNodes returns the nodes that are both phase-hot and neutral-hot.
func (c *Circuit) ShortedNodes() []string {
	return append([]string(nil), c.state.Shorted...)
}

// InterPhaseNodes returns the nodes reached by more than one phase identity.
func (c *Circuit) InterPhaseNodes() []string {
	return append([]string(nil), c.state.InterPhase...)
}

// Converged reports whether the last recomputation reached a fixed point.
func (c *Circuit) Converged() bool {
	return c.state.Converged
}

// Snapshot returns an independent copy of the resolved state.
func (c *Circuit) Snapshot() State {
	return c.state.clone()
}

// Nodes returns every known node, sorted.
func (c *Circuit) Nodes() []string {
	return c.graph.Nodes()
}

// Links returns every directed link.
func (c *Circuit) Links() []netgraph.Link {
	return c.graph.Links()
}

// Wires returns the connections added through AddLink, in order.
func (c *Circuit) Wires() []Wire {
	return append([]Wire(nil), c.wires...)
}

// PhaseSources returns the phase sources declared through SetPhaseSource,
// sorted. Pins of powered supplies are not included.
func (c *Circuit) PhaseSources() []string {
	return c.phase.Sorted()
}

// NeutralSources returns the declared neutral sources, sorted.
func (c *Circuit) NeutralSources() []string {
	return c.neutral.Sorted()
}

// Tags returns a copy of the explicit phase identity tags.
func (c *Circuit) Tags() map[string]propagation.PhaseMask {
	tags := make(map[string]propagation.PhaseMask, len(c.tags))
	for k, v := range c.tags {
		tags[k] = v
	}
	return tags
}

// Devices returns the controllable devices, sorted by prefix.
func (c *Circuit) Devices() []propagation.Device {
	result := make([]propagation.Device, 0, len(c.devices))
	for _, d := range c.devices {
		result = append(result, d)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Prefix < result[j].Prefix })
	return result
}

func filterWires(wires []Wire, drop func(Wire) bool) []Wire {
	filtered := wires[:0:0]
	for _, w := range wires {
		if !drop(w) {
			filtered = append(filtered, w)
		}
	}
	return filtered
}

func copyEnergization(e netgraph.Energization) netgraph.Energization {
	c := make(netgraph.Energization, len(e))
	for k, v := range e {
		c[k] = v
	}
	return c
}

func mergeSorted(a, b []string) []string {
	set := propagation.NewNodeSet(a...)
	for _, n := range b {
		set.Add(n)
	}
	return set.Sorted()
}
