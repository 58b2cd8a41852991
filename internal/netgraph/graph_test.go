package netgraph

import (
	"reflect"
	"strings"
	"testing"
)

func TestGraph_AddLinkInsertsBothDirections(t *testing.T) {
	g := New()
	g.AddLink("A", "B", Always())

	if g.Len() != 2 {
		t.Fatalf("expected 2 directed links, got %d", g.Len())
	}
	if !g.HasNode("A") || !g.HasNode("B") {
		t.Errorf("expected both endpoints registered, got %v", g.Nodes())
	}

	fromA := g.Outgoing("A")
	if len(fromA) != 1 || fromA[0].To != "B" {
		t.Errorf("Outgoing(A) = %v, want one link to B", fromA)
	}
	fromB := g.Outgoing("B")
	if len(fromB) != 1 || fromB[0].To != "A" {
		t.Errorf("Outgoing(B) = %v, want one link to A", fromB)
	}
}

func TestGraph_RemoveLinkEitherOrder(t *testing.T) {
	tests := []struct {
		name string
		a, b string
	}{
		{"same order", "A", "B"},
		{"reversed order", "B", "A"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New()
			g.AddLink("A", "B", Always())
			g.AddLink("B", "C", Always())

			g.RemoveLink(tt.a, tt.b)

			if g.Len() != 2 {
				t.Fatalf("expected only B<->C to remain, got %v", g.Links())
			}
			if len(g.Outgoing("A")) != 0 {
				t.Errorf("expected no links from A, got %v", g.Outgoing("A"))
			}
			// Nodes stay known after their links go away.
			if !g.HasNode("A") {
				t.Error("expected A to remain a known node")
			}
		})
	}
}

func TestGraph_RemoveLinkDropsDuplicates(t *testing.T) {
	g := New()
	g.AddLink("A", "B", Always())
	g.AddLink("A", "B", WhenEnergized("K1_"))

	g.RemoveLink("A", "B")

	if g.Len() != 0 {
		t.Errorf("expected every A<->B link removed, got %v", g.Links())
	}
}

func TestGraph_RemoveMissingLinkIsNoop(t *testing.T) {
	g := New()
	g.AddLink("A", "B", Always())

	g.RemoveLink("A", "Z")
	g.RemoveLink("X", "Y")

	if g.Len() != 2 {
		t.Errorf("expected graph unchanged, got %v", g.Links())
	}
}

func TestGraph_RemoveNodesFunc(t *testing.T) {
	g := New()
	g.AddLink("K1_13", "K1_14", WhenEnergized("K1_"))
	g.AddLink("P1_L1", "K1_L1", Always())
	g.AddLink("P1_L1", "X", Always())
	g.AddNode("K1_A1")

	g.RemoveNodesFunc(func(id string) bool { return strings.HasPrefix(id, "K1_") })

	want := []string{"P1_L1", "X"}
	if got := g.Nodes(); !reflect.DeepEqual(got, want) {
		t.Errorf("Nodes() = %v, want %v", got, want)
	}
	if g.Len() != 2 {
		t.Errorf("expected only P1_L1<->X to remain, got %v", g.Links())
	}
}

func TestGraph_NeighborsRespectConductance(t *testing.T) {
	g := New()
	g.AddLink("A", "B", Always())
	g.AddLink("A", "C", WhenEnergized("K1_"))
	g.AddLink("A", "D", WhenDeenergized("K1_"))

	tests := []struct {
		name      string
		energized bool
		want      []string
	}{
		{"coil off", false, []string{"B", "D"}},
		{"coil on", true, []string{"B", "C"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := Energization{"K1_": tt.energized}
			got := g.Neighbors("A", state)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Neighbors(A) = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGraph_Clear(t *testing.T) {
	g := New()
	g.AddLink("A", "B", Always())
	g.Clear()

	if g.Len() != 0 || len(g.Nodes()) != 0 {
		t.Errorf("expected empty graph, got nodes=%v links=%v", g.Nodes(), g.Links())
	}
	g.AddLink("C", "D", Always())
	if len(g.Outgoing("C")) != 1 {
		t.Error("expected graph usable after Clear")
	}
}

func TestConductance_Conducts(t *testing.T) {
	tests := []struct {
		name  string
		c     Conductance
		state DeviceState
		want  bool
	}{
		{"zero value always conducts", Conductance{}, nil, true},
		{"NO open when de-energized", WhenEnergized("K1_"), Energization{}, false},
		{"NO closed when energized", WhenEnergized("K1_"), Energization{"K1_": true}, true},
		{"NC closed when de-energized", WhenDeenergized("K1_"), Energization{}, true},
		{"NC open when energized", WhenDeenergized("K1_"), Energization{"K1_": true}, false},
		{"NO with nil state", WhenEnergized("K1_"), nil, false},
		{"NC with nil state", WhenDeenergized("K1_"), nil, true},
		{"other device ignored", WhenEnergized("K1_"), Energization{"K2_": true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.c.Conducts(tt.state); got != tt.want {
				t.Errorf("Conducts() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseConductance(t *testing.T) {
	tests := []struct {
		input   string
		want    Conductance
		wantErr bool
	}{
		{"", Always(), false},
		{"always", Always(), false},
		{"no:K1_", WhenEnergized("K1_"), false},
		{"nc:K2_", WhenDeenergized("K2_"), false},
		{"no:", Conductance{}, true},
		{"xx:K1_", Conductance{}, true},
		{"sometimes", Conductance{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseConductance(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseConductance(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("ParseConductance(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
			if err == nil {
				back, _ := ParseConductance(got.String())
				if back != got {
					t.Errorf("String() %q does not parse back to %+v", got.String(), got)
				}
			}
		})
	}
}
