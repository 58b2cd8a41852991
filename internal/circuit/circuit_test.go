package circuit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvandessel/relaysim/internal/logging"
	"github.com/nvandessel/relaysim/internal/metrics"
	"github.com/nvandessel/relaysim/internal/netgraph"
	"github.com/nvandessel/relaysim/internal/propagation"
)

// latchCircuit builds a start/stop station: PS_L1 feeds K1's coil through
// the start wire, K1's 13-14 contact holds it in, K1_A2 returns to N.
func latchCircuit(t *testing.T, opts ...Option) *Circuit {
	t.Helper()
	c := New(opts...)
	c.PlacePowerSupply("PS")
	c.PlaceContactor("K1")
	c.SetNeutralSource("N", true)
	c.AddLink("K1_A2", "N", netgraph.Always())
	c.AddLink("PS_L1", "K1_13", netgraph.Always())
	c.AddLink("K1_14", "K1_A1", netgraph.Always())
	c.SetPower("PS", true)
	return c
}

func TestNew_Empty(t *testing.T) {
	c := New()
	state := c.Snapshot()

	assert.Empty(t, state.PhaseHot)
	assert.Empty(t, state.NeutralHot)
	assert.Empty(t, state.Faulted)
	assert.True(t, state.Converged)
	assert.Equal(t, "no shorts", state.Status())
}

func TestAddRemoveLink(t *testing.T) {
	c := New()
	c.SetPhaseSource("P", true)
	c.AddLink("P", "A", netgraph.Always())
	c.AddLink("A", "B", netgraph.Always())

	assert.True(t, c.IsPhaseHot("A"))
	assert.True(t, c.IsPhaseHot("B"))

	c.RemoveLink("B", "A")
	assert.True(t, c.IsPhaseHot("A"))
	assert.False(t, c.IsPhaseHot("B"))
	assert.Len(t, c.Wires(), 1)

	// Removing an unknown pair changes nothing.
	c.RemoveLink("X", "Y")
	assert.True(t, c.IsPhaseHot("A"))
}

func TestSetSource_Toggle(t *testing.T) {
	c := New()
	c.AddLink("P", "A", netgraph.Always())

	c.SetPhaseSource("P", true)
	require.True(t, c.IsPhaseHot("A"))
	assert.Equal(t, []string{"P"}, c.PhaseSources())

	c.SetPhaseSource("P", false)
	assert.False(t, c.IsPhaseHot("A"))
	assert.Empty(t, c.PhaseSources())
}

func TestSelfLatch(t *testing.T) {
	c := latchCircuit(t)
	require.False(t, c.IsEnergized("K1"), "no path to the coil yet")

	// Press start.
	c.AddLink("PS_L1", "K1_A1", netgraph.Always())
	require.True(t, c.IsEnergized("K1"))
	assert.True(t, c.IsPhaseHot("K1_14"))

	// Release start: the 13-14 contact holds the coil.
	c.RemoveLink("PS_L1", "K1_A1")
	assert.True(t, c.IsEnergized("K1"))
	assert.True(t, c.Converged())

	// Cutting power drops the latch, and it stays dropped when power returns.
	c.SetPower("PS", false)
	assert.False(t, c.IsEnergized("K1"))
	c.SetPower("PS", true)
	assert.False(t, c.IsEnergized("K1"))
}

func TestShortToNeutral(t *testing.T) {
	c := New()
	c.SetPhaseSource("P", true)
	c.SetNeutralSource("N", true)
	c.AddLink("P", "A", netgraph.Always())
	assert.Empty(t, c.FaultedNodes())

	c.AddLink("A", "N", netgraph.Always())
	assert.Equal(t, []string{"A", "N", "P"}, c.ShortedNodes())
	assert.Equal(t, []string{"A", "N", "P"}, c.FaultedNodes())
	assert.True(t, c.IsFaulted("A"))
	assert.Equal(t, "short on: A, N, P", c.Snapshot().Status())
}

func TestInterPhaseFault(t *testing.T) {
	c := New()
	c.PlacePowerSupply("PS")
	c.SetPower("PS", true)

	assert.Equal(t, propagation.Bit(0), c.PhaseIdentityMask("PS_L1"))
	assert.Empty(t, c.FaultedNodes())

	c.AddLink("PS_L1", "X", netgraph.Always())
	c.AddLink("X", "PS_L2", netgraph.Always())

	want := []string{"PS_L1", "PS_L2", "X"}
	assert.Equal(t, want, c.InterPhaseNodes())
	assert.Equal(t, want, c.FaultedNodes())
	assert.Empty(t, c.ShortedNodes())
	assert.Equal(t, propagation.Bit(0)|propagation.Bit(1), c.PhaseIdentityMask("X"))
	assert.Equal(t, "inter-phase short on: PS_L1, PS_L2, X", c.Snapshot().Status())
}

func TestStatus_InterPhaseTakesPrecedence(t *testing.T) {
	s := State{Shorted: []string{"A"}, InterPhase: []string{"B"}}
	assert.Equal(t, "inter-phase short on: B", s.Status())
}

func TestTagPhase(t *testing.T) {
	c := New()
	c.SetPhaseSource("BUS", true)
	c.AddLink("BUS", "A", netgraph.Always())
	assert.Equal(t, propagation.PhaseMask(0), c.PhaseIdentityMask("A"))

	c.TagPhase("BUS", propagation.Bit(4))
	assert.Equal(t, propagation.Bit(4), c.PhaseIdentityMask("A"))

	c.TagPhase("BUS", 0)
	assert.Empty(t, c.Tags())
	assert.Equal(t, propagation.PhaseMask(0), c.PhaseIdentityMask("A"))
}

func TestWithClassifier(t *testing.T) {
	c := New(WithClassifier(propagation.SuffixClassifier{"R", "S", "T"}))
	c.SetPhaseSource("BUS_S", true)
	assert.Equal(t, propagation.Bit(1), c.PhaseIdentityMask("BUS_S"))
}

func TestMotorRotation(t *testing.T) {
	c := New()
	c.PlacePowerSupply("PS")
	c.PlaceContactor("K1")
	c.PlaceMotor("M1")
	c.SetNeutralSource("N", true)
	for _, p := range []string{"1", "2", "3"} {
		c.AddLink("PS_L"+p, "K1_L"+p, netgraph.Always())
	}
	c.AddLink("K1_T1", "M1_U", netgraph.Always())
	c.AddLink("K1_T2", "M1_V", netgraph.Always())
	c.AddLink("K1_T3", "M1_W", netgraph.Always())
	c.AddLink("PS_L1", "K1_A1", netgraph.Always())
	c.AddLink("K1_A2", "N", netgraph.Always())

	assert.Equal(t, propagation.Indeterminate, c.MotorRotation("M1"), "no power")

	c.SetPower("PS", true)
	require.True(t, c.IsEnergized("K1"))
	assert.Equal(t, propagation.Clockwise, c.MotorRotation("M1"))
	assert.Equal(t, propagation.Clockwise, c.Snapshot().Motors["M1"])

	// Swap two phases.
	c.RemoveLink("K1_T1", "M1_U")
	c.RemoveLink("K1_T2", "M1_V")
	c.AddLink("K1_T1", "M1_V", netgraph.Always())
	c.AddLink("K1_T2", "M1_U", netgraph.Always())
	assert.Equal(t, propagation.CounterClockwise, c.MotorRotation("M1"))

	assert.Equal(t, propagation.Indeterminate, c.MotorRotation("K1"), "not a motor")
}

func TestOscillation_ReportedNotFailed(t *testing.T) {
	reg := metrics.NewRegistry()
	c := New(WithMetrics(reg), WithEngineConfig(propagation.Config{MaxIterations: 5}))
	c.PlacePowerSupply("PS")
	c.PlaceContactor("K1")
	c.SetPower("PS", true)
	c.SetNeutralSource("N", true)
	c.AddLink("K1_A2", "N", netgraph.Always())
	c.AddLink("K1_22", "K1_A1", netgraph.Always())

	before := testutil.ToFloat64(reg.NonConvergenceTotal)
	c.AddLink("PS_L1", "K1_21", netgraph.Always())

	state := c.Snapshot()
	assert.False(t, state.Converged)
	assert.Equal(t, 5, state.Rounds)
	assert.Equal(t, before+1, testutil.ToFloat64(reg.NonConvergenceTotal))
	assert.Greater(t, testutil.ToFloat64(reg.RecomputesTotal), 1.0)
}

func TestUnregisterDevice(t *testing.T) {
	c := latchCircuit(t)
	c.AddLink("PS_L1", "K1_A1", netgraph.Always())
	c.SetPhaseSource("K1_X", true)
	c.TagPhase("K1_X", propagation.Bit(2))
	require.True(t, c.IsEnergized("K1"))

	c.UnregisterDevice("K1")

	assert.False(t, c.IsEnergized("K1"))
	for _, n := range c.Nodes() {
		assert.False(t, strings.HasPrefix(n, "K1"), "node %s survived", n)
	}
	for _, l := range c.Links() {
		assert.False(t, strings.HasPrefix(l.From, "K1") || strings.HasPrefix(l.To, "K1"))
	}
	for _, w := range c.Wires() {
		assert.False(t, strings.HasPrefix(w.A, "K1") || strings.HasPrefix(w.B, "K1"))
	}
	assert.NotContains(t, c.PhaseSources(), "K1_X")
	assert.Empty(t, c.Tags())
	assert.Empty(t, c.Devices())
	assert.Len(t, c.Placements(), 1)

	// The supply and neutral are untouched.
	assert.True(t, c.IsPhaseHot("PS_L1"))
	assert.True(t, c.IsNeutralHot("N"))
}

func TestUnregisterDevice_UnknownPrefix(t *testing.T) {
	c := New()
	c.AddLink("K9_A", "B", netgraph.Always())
	c.UnregisterDevice("K9")
	assert.Len(t, c.Wires(), 1)
	assert.Contains(t, c.Nodes(), "K9_A")
}

func TestRegisterDevice(t *testing.T) {
	c := New()
	c.SetPhaseSource("P", true)
	c.SetNeutralSource("N", true)
	c.RegisterDevice("R1", "R1_A1", "R1_A2")
	c.AddLink("P", "R1_A1", netgraph.Always())
	c.AddLink("R1_A2", "N", netgraph.Always())
	require.True(t, c.IsEnergized("R1"))

	// Re-registering keeps the existing coil.
	c.RegisterDevice("R1", "other", "pins")
	assert.Equal(t, "R1_A1", c.Devices()[0].CoilHot)
	assert.True(t, c.IsEnergized("R1"))
}

func TestPlaceContactor_Template(t *testing.T) {
	c := New()
	c.PlaceContactor("K1")
	c.PlaceContactor("K1")

	assert.Equal(t, []Placement{{Prefix: "K1", Kind: KindContactor}}, c.Placements())
	// 9 contacts, each stored in both directions.
	assert.Equal(t, 18, len(c.Links()))

	c.SetPhaseSource("P", true)
	c.AddLink("P", "K1_21", netgraph.Always())
	c.AddLink("P", "K1_13", netgraph.Always())
	assert.True(t, c.IsPhaseHot("K1_22"), "NC closed while deenergized")
	assert.False(t, c.IsPhaseHot("K1_14"), "NO open while deenergized")
}

func TestSetPower_UnknownIgnored(t *testing.T) {
	c := New()
	c.PlaceMotor("M1")
	c.SetPower("M1", true)
	c.SetPower("PS", true)
	assert.Empty(t, c.PhaseSources())
	assert.Empty(t, c.Snapshot().PhaseHot)
	assert.False(t, c.IsPowered("M1"))
}

func TestRecompute_Idempotent(t *testing.T) {
	c := latchCircuit(t)
	c.AddLink("PS_L1", "K1_A1", netgraph.Always())
	first := c.Snapshot()
	c.Recompute()
	second := c.Snapshot()

	assert.Equal(t, first.Energized, second.Energized)
	assert.Equal(t, first.PhaseHot, second.PhaseHot)
	assert.Equal(t, first.Faulted, second.Faulted)
}

func TestSnapshot_Independent(t *testing.T) {
	c := New()
	c.SetPhaseSource("P", true)
	state := c.Snapshot()
	state.PhaseHot.Add("Z")
	state.Energized["ghost"] = true

	assert.False(t, c.IsPhaseHot("Z"))
	assert.False(t, c.IsEnergized("ghost"))
}

func TestReset(t *testing.T) {
	c := latchCircuit(t)
	c.Reset()

	assert.Empty(t, c.Nodes())
	assert.Empty(t, c.Placements())
	assert.Empty(t, c.PhaseSources())
	assert.Empty(t, c.NeutralSources())
	assert.Empty(t, c.Snapshot().PhaseHot)
}

func TestTraceLogger_RecordsEvents(t *testing.T) {
	dir := t.TempDir()
	tl := logging.NewTraceLogger(dir, "trace")
	require.NotNil(t, tl)

	c := latchCircuit(t, WithTrace(tl))
	c.AddLink("PS_L1", "K1_A1", netgraph.Always())
	tl.Close()

	data, err := os.ReadFile(filepath.Join(dir, "trace.jsonl"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"event":"recompute"`)
	assert.Contains(t, string(data), `"event":"round"`)

	// The recompute that closed the start wire flips K1 on in its first round.
	var flipped bool
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		var entry struct {
			Event string        `json:"event"`
			Data  logging.Round `json:"data"`
		}
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		if entry.Event != "round" {
			continue
		}
		for _, f := range entry.Data.Flips {
			if f.Device == "K1" && f.Energized {
				flipped = true
				assert.Equal(t, 1, entry.Data.Number)
				assert.Positive(t, entry.Data.PhaseHot)
			}
		}
	}
	assert.True(t, flipped, "no round recorded K1 energizing")
}

func TestUnregisterDevice_SharedLeadingCharacters(t *testing.T) {
	c := New()
	c.PlacePowerSupply("PS")
	c.PlacePowerSupply("PS2")
	c.PlaceContactor("K1")
	c.PlaceContactor("K10")
	c.SetNeutralSource("N", true)
	c.AddLink("PS2_L1", "K10_A1", netgraph.Always())
	c.AddLink("K10_A2", "N", netgraph.Always())
	c.AddLink("PS2_L1", "K10_13", netgraph.Always())
	c.SetPhaseSource("K10_X", true)
	c.TagPhase("K10_X", propagation.Bit(1))
	c.SetPower("PS2", true)
	require.True(t, c.IsEnergized("K10"))

	c.UnregisterDevice("K1")
	c.UnregisterDevice("PS")

	assert.True(t, c.IsEnergized("K10"))
	assert.True(t, c.IsPhaseHot("K10_14"), "K10 contact links survive")
	assert.Contains(t, c.Nodes(), "K10_13")
	assert.Contains(t, c.Nodes(), "PS2_L1")
	assert.Len(t, c.Wires(), 3)
	assert.Equal(t, []string{"K10_X"}, c.PhaseSources())
	assert.Contains(t, c.Tags(), "K10_X")
	assert.True(t, c.IsPowered("PS2"))
	assert.Equal(t, []Placement{{Prefix: "K10", Kind: KindContactor}, {Prefix: "PS2", Kind: KindPower}}, c.Placements())
	for _, n := range c.Nodes() {
		assert.False(t, strings.HasPrefix(n, "K1_"), "node %s survived", n)
		assert.False(t, strings.HasPrefix(n, "PS_"), "node %s survived", n)
	}
}

func TestUnregisterDevice_NestedPrefixKeepsItsPins(t *testing.T) {
	c := New()
	c.SetPhaseSource("P", true)
	c.SetNeutralSource("N", true)
	c.RegisterDevice("K1", "K1_A1", "K1_A2")
	c.RegisterDevice("K1_X", "K1_X_A1", "K1_X_A2")
	c.AddLink("P", "K1_X_A1", netgraph.Always())
	c.AddLink("K1_X_A2", "N", netgraph.Always())
	c.AddLink("P", "K1_A1", netgraph.Always())
	require.True(t, c.IsEnergized("K1_X"))

	c.UnregisterDevice("K1")

	assert.True(t, c.IsEnergized("K1_X"))
	assert.Len(t, c.Wires(), 2)
	assert.NotContains(t, c.Nodes(), "K1_A1")
	assert.Contains(t, c.Nodes(), "K1_X_A1")
}

func TestRegisterDevice_PlacedPrefixRejected(t *testing.T) {
	c := New()
	c.PlacePowerSupply("PS")
	c.PlaceMotor("M1")

	c.RegisterDevice("PS", "PS_A1", "PS_A2")
	c.RegisterDevice("M1", "M1_A1", "M1_A2")

	assert.Equal(t, []Placement{{Prefix: "M1", Kind: KindMotor}, {Prefix: "PS", Kind: KindPower}}, c.Placements())
	assert.Empty(t, c.Devices())

	c.SetPower("PS", true)
	assert.True(t, c.IsPowered("PS"))
	assert.True(t, c.IsPhaseHot("PS_L1"))
}

func TestSetPower_KeepsDeclaredSources(t *testing.T) {
	c := New()
	c.PlacePowerSupply("PS")
	c.SetPhaseSource("PS_L1", true)
	require.True(t, c.IsPhaseHot("PS_L1"))
	require.False(t, c.IsPhaseHot("PS_L2"))

	c.SetPower("PS", true)
	assert.True(t, c.IsPhaseHot("PS_L2"))
	assert.Equal(t, []string{"PS_L1"}, c.PhaseSources())

	c.SetPower("PS", false)
	assert.True(t, c.IsPhaseHot("PS_L1"), "declared source survives power off")
	assert.False(t, c.IsPhaseHot("PS_L2"))
	assert.Equal(t, []string{"PS_L1"}, c.PhaseSources())

	// Removing the declaration while powered leaves the supply driving it.
	c.SetPower("PS", true)
	c.SetPhaseSource("PS_L1", false)
	assert.True(t, c.IsPhaseHot("PS_L1"))
	assert.Empty(t, c.PhaseSources())
}
