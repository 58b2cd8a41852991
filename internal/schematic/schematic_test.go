package schematic

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvandessel/relaysim/internal/circuit"
	"github.com/nvandessel/relaysim/internal/propagation"
)

const startStop = `
name: start-stop
devices:
  - {kind: power, prefix: PS}
  - {kind: contactor, prefix: K1}
  - {kind: motor, prefix: M1}
wires:
  - {from: PS_L1, to: K1_L1}
  - {from: PS_L2, to: K1_L2}
  - {from: PS_L3, to: K1_L3}
  - {from: K1_T1, to: M1_U}
  - {from: K1_T2, to: M1_V}
  - {from: K1_T3, to: M1_W}
  - {from: PS_L1, to: K1_13}
  - {from: K1_14, to: K1_A1}
  - {from: K1_A2, to: N}
  - {from: PS_L1, to: K1_A1}
neutral_sources: [N]
powered: [PS]
`

func TestParse_StartStop(t *testing.T) {
	doc, err := Parse([]byte(startStop))
	require.NoError(t, err)

	assert.Equal(t, "start-stop", doc.Name)
	assert.Len(t, doc.Devices, 3)
	assert.Len(t, doc.Wires, 10)
	assert.Equal(t, []string{"PS"}, doc.Powered)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"bad yaml", "name: [", "parsing schematic"},
		{"missing name", "devices: []", "Name"},
		{"unknown kind", "name: x\ndevices:\n  - {kind: relay, prefix: R1}", "must be one of"},
		{"empty prefix", "name: x\ndevices:\n  - {kind: motor}", "Prefix"},
		{"coil without pins", "name: x\ndevices:\n  - {kind: coil, prefix: X1}", "CoilHot"},
		{"duplicate prefix", "name: x\ndevices:\n  - {kind: motor, prefix: M}\n  - {kind: power, prefix: M}", "duplicate prefix"},
		{"bad conductance", "name: x\nwires:\n  - {from: A, to: B, conductance: maybe}", "invalid conductance"},
		{"self wire", "name: x\nwires:\n  - {from: A, to: A}", "two different nodes"},
		{"wire missing end", "name: x\nwires:\n  - {from: A}", "To"},
		{"powered non supply", "name: x\ndevices:\n  - {kind: motor, prefix: M}\npowered: [M]", "not a power device"},
		{"tag out of range", "name: x\ntags: {A: [32]}", "must not exceed"},
		{"empty tag", "name: x\ntags: {A: []}", "at least"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParse_Conductance(t *testing.T) {
	doc, err := Parse([]byte("name: x\nwires:\n  - {from: A, to: B, conductance: \"nc:K1\"}\n  - {from: B, to: C, conductance: always}"))
	require.NoError(t, err)
	assert.Equal(t, "nc:K1", doc.Wires[0].Conductance)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "start-stop.yaml")
	require.NoError(t, os.WriteFile(path, []byte(startStop), 0600))

	doc, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "start-stop", doc.Name)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "reading schematic")
}

func TestApply_StartStop(t *testing.T) {
	doc, err := Parse([]byte(startStop))
	require.NoError(t, err)

	c := circuit.New()
	require.NoError(t, Apply(doc, c))

	assert.True(t, c.IsEnergized("K1"))
	assert.True(t, c.IsPhaseHot("M1_U"))
	assert.Equal(t, propagation.Clockwise, c.MotorRotation("M1"))
	assert.Empty(t, c.FaultedNodes())
}

func TestApply_ResetsCircuit(t *testing.T) {
	c := circuit.New()
	c.PlaceMotor("OLD")

	require.NoError(t, Apply(&Document{Name: "empty"}, c))
	assert.Empty(t, c.Placements())
}

func TestApply_InvalidLeavesCircuit(t *testing.T) {
	c := circuit.New()
	c.PlaceMotor("M1")

	err := Apply(&Document{}, c)
	require.Error(t, err)
	assert.Len(t, c.Placements(), 1)
}

func TestCapture_RoundTrip(t *testing.T) {
	doc, err := Parse([]byte(startStop + "phase_sources: [AUX]\ntags: {AUX: [0, 2]}\n"))
	require.NoError(t, err)
	doc.Devices = append(doc.Devices, DeviceSpec{Kind: KindCoil, Prefix: "X1", CoilHot: "X1_A1", CoilReturn: "X1_A2"})
	doc.Wires = append(doc.Wires, WireSpec{From: "K1_53", To: "X1_A1", Conductance: "no:K1"})

	original := circuit.New()
	require.NoError(t, Apply(doc, original))

	captured := Capture("copy", original)
	assert.Equal(t, "copy", captured.Name)
	assert.Equal(t, []string{"AUX"}, captured.PhaseSources, "supply pins come back through powered")
	assert.Equal(t, []string{"PS"}, captured.Powered)
	assert.Equal(t, []int{0, 2}, captured.Tags["AUX"])
	assert.Equal(t, "no:K1", captured.Wires[len(captured.Wires)-1].Conductance)
	require.NoError(t, captured.Validate())

	data, err := captured.Marshal()
	require.NoError(t, err)
	reparsed, err := Parse(data)
	require.NoError(t, err)

	replica := circuit.New()
	require.NoError(t, Apply(reparsed, replica))

	assert.ElementsMatch(t, original.Links(), replica.Links())
	assert.Equal(t, original.PhaseSources(), replica.PhaseSources())
	assert.Equal(t, original.Placements(), replica.Placements())
	assert.Equal(t, original.Snapshot().Energized, replica.Snapshot().Energized)
	assert.Equal(t, original.Snapshot().Masks, replica.Snapshot().Masks)
}

func TestCapture_DeclaredSourceOnSupplyPin(t *testing.T) {
	original := circuit.New()
	original.PlacePowerSupply("PS")
	original.SetPhaseSource("PS_L1", true)
	original.SetPower("PS", true)

	captured := Capture("pinned", original)
	assert.Equal(t, []string{"PS_L1"}, captured.PhaseSources)
	assert.Equal(t, []string{"PS"}, captured.Powered)

	replica := circuit.New()
	require.NoError(t, Apply(captured, replica))
	replica.SetPower("PS", false)
	assert.True(t, replica.IsPhaseHot("PS_L1"), "declared source outlives the supply")
	assert.False(t, replica.IsPhaseHot("PS_L2"))
}

func TestTagBits(t *testing.T) {
	assert.Nil(t, TagBits(0))
	assert.Equal(t, []int{1, 4}, TagBits(propagation.Bit(1)|propagation.Bit(4)))
	assert.Equal(t, propagation.Bit(1)|propagation.Bit(4), TagMask([]int{4, 1}))
}

func TestMarshal_OmitsDefaults(t *testing.T) {
	data, err := (&Document{Name: "n", Wires: []WireSpec{{From: "A", To: "B"}}}).Marshal()
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(data), "conductance"))
	assert.False(t, strings.Contains(string(data), "tags"))
}
