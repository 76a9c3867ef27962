package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// PointKind mirrors the object types a building-automation client expects
// to find on a field device.
type PointKind int

const (
	AnalogInput PointKind = iota
	AnalogOutput
	AnalogValue
	BinaryInput
	BinaryValue
)

func (k PointKind) String() string {
	switch k {
	case AnalogInput:
		return "analogInput"
	case AnalogOutput:
		return "analogOutput"
	case AnalogValue:
		return "analogValue"
	case BinaryInput:
		return "binaryInput"
	case BinaryValue:
		return "binaryValue"
	default:
		return "unknown"
	}
}

// Code is the short wire form used in topics, URLs and object identifiers.
func (k PointKind) Code() string {
	switch k {
	case AnalogInput:
		return "ai"
	case AnalogOutput:
		return "ao"
	case AnalogValue:
		return "av"
	case BinaryInput:
		return "bi"
	case BinaryValue:
		return "bv"
	default:
		return "??"
	}
}

func (k PointKind) Analog() bool {
	return k == AnalogInput || k == AnalogOutput || k == AnalogValue
}

// Writable reports whether a protocol client may write this kind.
// Inputs model physical sensors and only the simulation may move them.
func (k PointKind) Writable() bool {
	return k == AnalogOutput || k == AnalogValue || k == BinaryValue
}

type Units int

const (
	UnitsNone Units = iota
	UnitsDegreesFahrenheit
	UnitsPercent
)

func (u Units) String() string {
	switch u {
	case UnitsDegreesFahrenheit:
		return "degreesFahrenheit"
	case UnitsPercent:
		return "percent"
	default:
		return "none"
	}
}

type BinaryState bool

const (
	Inactive BinaryState = false
	Active   BinaryState = true
)

func (s BinaryState) String() string {
	if s == Active {
		return "active"
	}
	return "inactive"
}

func ParseBinaryState(s string) (BinaryState, error) {
	switch strings.ToLower(s) {
	case "active":
		return Active, nil
	case "inactive":
		return Inactive, nil
	default:
		return Inactive, fmt.Errorf("%w: invalid binary state %q", ErrValueOutOfRange, s)
	}
}

// ObjectID identifies a point within one device. Indices are kind-scoped
// and start at 1.
type ObjectID struct {
	Kind  PointKind
	Index uint32
}

func (id ObjectID) String() string {
	return fmt.Sprintf("%s%d", id.Kind.Code(), id.Index)
}

// ParseObjectID parses the short wire form, e.g. "ai1" or "av12".
func ParseObjectID(s string) (ObjectID, error) {
	if len(s) < 3 {
		return ObjectID{}, fmt.Errorf("%w: %q", errBadObjectID, s)
	}
	var kind PointKind
	switch s[:2] {
	case "ai":
		kind = AnalogInput
	case "ao":
		kind = AnalogOutput
	case "av":
		kind = AnalogValue
	case "bi":
		kind = BinaryInput
	case "bv":
		kind = BinaryValue
	default:
		return ObjectID{}, fmt.Errorf("%w: %q", errBadObjectID, s)
	}
	idx, err := strconv.ParseUint(s[2:], 10, 32)
	if err != nil || idx == 0 {
		return ObjectID{}, fmt.Errorf("%w: %q", errBadObjectID, s)
	}
	return ObjectID{Kind: kind, Index: uint32(idx)}, nil
}

var errBadObjectID = errors.New("invalid object identifier")

// Bounds is a closed interval an analog point never leaves.
type Bounds struct {
	Min float64
	Max float64
}

func (b Bounds) Clamp(v float64) float64 {
	if v < b.Min {
		return b.Min
	}
	if v > b.Max {
		return b.Max
	}
	return v
}

// Point is a single typed value container. Value fields are guarded by the
// owning Device's lock; use Device snapshots outside a commit.
type Point struct {
	Kind        PointKind
	Index       uint32
	Name        string
	Description string
	Units       Units
	Bounds      *Bounds

	role   Role
	analog float64
	binary BinaryState
}

func NewAnalogPoint(kind PointKind, index uint32, name, description string, units Units, initial float64, bounds *Bounds) *Point {
	if bounds != nil {
		initial = bounds.Clamp(initial)
	}
	return &Point{
		Kind:        kind,
		Index:       index,
		Name:        name,
		Description: description,
		Units:       units,
		Bounds:      bounds,
		analog:      initial,
	}
}

func NewBinaryPoint(kind PointKind, index uint32, name, description string, initial BinaryState) *Point {
	return &Point{
		Kind:        kind,
		Index:       index,
		Name:        name,
		Description: description,
		binary:      initial,
	}
}

func (p *Point) ID() ObjectID {
	return ObjectID{Kind: p.Kind, Index: p.Index}
}

// PointSnapshot is an immutable copy of a point taken under the device lock.
type PointSnapshot struct {
	ID          ObjectID
	Role        Role
	Name        string
	Description string
	Units       Units
	Bounds      *Bounds
	Writable    bool

	Analog float64
	Binary BinaryState
}

func (s PointSnapshot) ValueString() string {
	if s.ID.Kind.Analog() {
		return strconv.FormatFloat(s.Analog, 'f', 2, 64)
	}
	return s.Binary.String()
}
