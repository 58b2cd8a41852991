// Package schematic reads, validates and writes YAML circuit documents and
// replays them onto a circuit.
package schematic

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/nvandessel/relaysim/internal/netgraph"
	"github.com/nvandessel/relaysim/internal/propagation"
)

// Device kinds accepted in a document.
const (
	KindPower     = "power"
	KindContactor = "contactor"
	KindMotor     = "motor"
	KindCoil      = "coil"
)

// Document is a named netlist: placed devices, user wires, sources and
// phase tags.
type Document struct {
	Name           string           `json:"name" yaml:"name" validate:"required,max=128"`
	Devices        []DeviceSpec     `json:"devices,omitempty" yaml:"devices,omitempty" validate:"dive"`
	Wires          []WireSpec       `json:"wires,omitempty" yaml:"wires,omitempty" validate:"dive"`
	PhaseSources   []string         `json:"phase_sources,omitempty" yaml:"phase_sources,omitempty" validate:"dive,required"`
	NeutralSources []string         `json:"neutral_sources,omitempty" yaml:"neutral_sources,omitempty" validate:"dive,required"`
	Powered        []string         `json:"powered,omitempty" yaml:"powered,omitempty" validate:"dive,required"`
	Tags           map[string][]int `json:"tags,omitempty" yaml:"tags,omitempty" validate:"dive,keys,required,endkeys,min=1,dive,min=0,max=31"`
}

// DeviceSpec places one device template.
type DeviceSpec struct {
	Kind       string `json:"kind" yaml:"kind" validate:"required,oneof=power contactor motor coil"`
	Prefix     string `json:"prefix" yaml:"prefix" validate:"required"`
	CoilHot    string `json:"coil_hot,omitempty" yaml:"coil_hot,omitempty" validate:"required_if=Kind coil"`
	CoilReturn string `json:"coil_return,omitempty" yaml:"coil_return,omitempty" validate:"required_if=Kind coil"`
}

// WireSpec connects two nodes. An empty conductance is a plain wire.
type WireSpec struct {
	From        string `json:"from" yaml:"from" validate:"required"`
	To          string `json:"to" yaml:"to" validate:"required,nefield=From"`
	Conductance string `json:"conductance,omitempty" yaml:"conductance,omitempty" validate:"omitempty,conductance"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("conductance", func(fl validator.FieldLevel) bool {
		_, err := netgraph.ParseConductance(fl.Field().String())
		return err == nil
	})
	return v
}

// Parse decodes and validates a YAML document.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing schematic: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// LoadFile reads and parses a YAML document from disk.
func LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading schematic: %w", err)
	}
	return Parse(data)
}

// Marshal encodes the document as YAML.
func (d *Document) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encoding schematic: %w", err)
	}
	return data, nil
}

// Validate checks field constraints and cross references: device prefixes
// are unique and every powered entry names a power device.
func (d *Document) Validate() error {
	if d == nil {
		return errors.New("schematic document cannot be nil")
	}
	if err := validate.Struct(d); err != nil {
		return formatValidationError(err)
	}

	kinds := make(map[string]string, len(d.Devices))
	for _, dev := range d.Devices {
		if _, dup := kinds[dev.Prefix]; dup {
			return fmt.Errorf("devices: duplicate prefix %q", dev.Prefix)
		}
		kinds[dev.Prefix] = dev.Kind
	}
	for _, p := range d.Powered {
		if kinds[p] != KindPower {
			return fmt.Errorf("powered: %q is not a power device", p)
		}
	}
	return nil
}

// TagMask converts a list of identity bit indexes into a phase mask.
func TagMask(bits []int) propagation.PhaseMask {
	var m propagation.PhaseMask
	for _, b := range bits {
		m |= propagation.Bit(b)
	}
	return m
}

// TagBits lists the identity bit indexes set in m, lowest first.
func TagBits(m propagation.PhaseMask) []int {
	var bits []int
	for i := 0; i < propagation.MaxPhaseIdentities; i++ {
		if m&propagation.Bit(i) != 0 {
			bits = append(bits, i)
		}
	}
	return bits
}

func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}

	for _, e := range validationErrs {
		field := e.Namespace()
		switch e.Tag() {
		case "required", "required_if":
			return fmt.Errorf("%s: field is required", field)
		case "oneof":
			return fmt.Errorf("%s: must be one of %s, got %q", field, e.Param(), e.Value())
		case "conductance":
			return fmt.Errorf("%s: invalid conductance %q (want always, no:<device> or nc:<device>)", field, e.Value())
		case "nefield":
			return fmt.Errorf("%s: wire must connect two different nodes", field)
		case "min":
			return fmt.Errorf("%s: must be at least %s", field, e.Param())
		case "max":
			return fmt.Errorf("%s: must not exceed %s", field, e.Param())
		default:
			return fmt.Errorf("%s: validation failed (%s)", field, e.Tag())
		}
	}
	return err
}
