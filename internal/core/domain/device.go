package domain

import (
	"fmt"
	"math"
	"sync"
)

type DeviceType int

const (
	DeviceVAV DeviceType = iota
	DeviceAHU
)

func (t DeviceType) String() string {
	switch t {
	case DeviceVAV:
		return "VAV"
	case DeviceAHU:
		return "AHU"
	default:
		return "unknown"
	}
}

func ParseDeviceType(s string) (DeviceType, error) {
	switch s {
	case "VAV", "vav":
		return DeviceVAV, nil
	case "AHU", "ahu":
		return DeviceAHU, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedDeviceType, s)
	}
}

// Role is the fixed per-device-type key of a point, e.g. "temp" or
// "fan_speed". Roles double as the simulation's evaluation order.
type Role string

const (
	RoleTemp      Role = "temp"
	RoleDamper    Role = "damper"
	RoleOccupancy Role = "occupancy"
	RoleSetpoint  Role = "setpoint"

	RoleSupplyTemp Role = "supply_temp"
	RoleReturnTemp Role = "return_temp"
	RoleFanStatus  Role = "fan_status"
	RoleFanSpeed   Role = "fan_speed"
)

// Roles returns the role set of a device type in tick evaluation order.
// Temperature drivers come before the tracking models that consume them,
// and derived binary states come last.
func (t DeviceType) Roles() []Role {
	switch t {
	case DeviceVAV:
		return []Role{RoleTemp, RoleDamper, RoleOccupancy, RoleSetpoint}
	case DeviceAHU:
		return []Role{RoleSupplyTemp, RoleReturnTemp, RoleFanSpeed, RoleFanStatus}
	default:
		return nil
	}
}

// PointUpdate is one staged role value of a tick batch.
type PointUpdate struct {
	Role   Role
	Analog float64
	Binary BinaryState
}

// Device aggregates the points of one simulated field device. All value
// access goes through the device lock: a tick batch commits atomically and
// readers only ever observe fully committed states.
type Device struct {
	Type     DeviceType
	Instance uint32
	Name     string
	// Address is opaque to the simulation and only carried for protocol
	// adapters.
	Address string

	mu     sync.RWMutex
	points map[Role]*Point
	byID   map[ObjectID]*Point
	order  []Role
}

func NewDevice(t DeviceType, instance uint32, name, address string) *Device {
	return &Device{
		Type:     t,
		Instance: instance,
		Name:     name,
		Address:  address,
		points:   make(map[Role]*Point),
		byID:     make(map[ObjectID]*Point),
	}
}

// AddPoint registers a point under a role. (kind, index) must be unique
// within the device. Only used during device construction.
func (d *Device) AddPoint(role Role, p *Point) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.points[role]; ok {
		return fmt.Errorf("role %s already defined on %s", role, d.Name)
	}
	if _, ok := d.byID[p.ID()]; ok {
		return fmt.Errorf("object %s already defined on %s", p.ID(), d.Name)
	}
	p.role = role
	d.points[role] = p
	d.byID[p.ID()] = p
	d.order = append(d.order, role)
	return nil
}

func (d *Device) snapshotLocked(p *Point) PointSnapshot {
	return PointSnapshot{
		ID:          p.ID(),
		Role:        p.role,
		Name:        p.Name,
		Description: p.Description,
		Units:       p.Units,
		Bounds:      p.Bounds,
		Writable:    p.Kind.Writable(),
		Analog:      p.analog,
		Binary:      p.binary,
	}
}

// Snapshot returns all points in role order, from one committed state.
func (d *Device) Snapshot() []PointSnapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]PointSnapshot, 0, len(d.order))
	for _, role := range d.order {
		out = append(out, d.snapshotLocked(d.points[role]))
	}
	return out
}

// SnapshotByRole returns the same committed state keyed by role. The tick
// staging code works from this form.
func (d *Device) SnapshotByRole() map[Role]PointSnapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[Role]PointSnapshot, len(d.order))
	for _, role := range d.order {
		out[role] = d.snapshotLocked(d.points[role])
	}
	return out
}

func (d *Device) Point(id ObjectID) (PointSnapshot, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.byID[id]
	if !ok {
		return PointSnapshot{}, fmt.Errorf("%w: %s on device %d", ErrUnknownPoint, id, d.Instance)
	}
	return d.snapshotLocked(p), nil
}

// Commit applies a staged tick batch under the write lock. Analog values
// are clamped to the point bounds; the whole batch becomes visible at once.
// Returns snapshots of the committed points for event publication.
func (d *Device) Commit(batch []PointUpdate) []PointSnapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]PointSnapshot, 0, len(batch))
	for _, up := range batch {
		p, ok := d.points[up.Role]
		if !ok {
			continue
		}
		if p.Kind.Analog() {
			v := up.Analog
			if p.Bounds != nil {
				v = p.Bounds.Clamp(v)
			}
			p.analog = v
		} else {
			p.binary = up.Binary
		}
		out = append(out, d.snapshotLocked(p))
	}
	return out
}

// SetValue is the protocol-adapter write path. value must be a float64 for
// analog points or a BinaryState/bool/string for binary points. Writes are
// serialized against tick commits by the device lock; last writer wins.
func (d *Device) SetValue(id ObjectID, value any) (PointSnapshot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.byID[id]
	if !ok {
		return PointSnapshot{}, fmt.Errorf("%w: %s on device %d", ErrUnknownPoint, id, d.Instance)
	}
	if !p.Kind.Writable() {
		return PointSnapshot{}, fmt.Errorf("%w: %s on device %d", ErrInvalidWrite, id, d.Instance)
	}
	if p.Kind.Analog() {
		v, ok := value.(float64)
		if !ok {
			return PointSnapshot{}, fmt.Errorf("%w: %s expects a number", ErrValueOutOfRange, id)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return PointSnapshot{}, fmt.Errorf("%w: %s value must be finite", ErrValueOutOfRange, id)
		}
		if p.Bounds != nil {
			v = p.Bounds.Clamp(v)
		}
		p.analog = v
	} else {
		switch v := value.(type) {
		case BinaryState:
			p.binary = v
		case bool:
			p.binary = BinaryState(v)
		case string:
			s, err := ParseBinaryState(v)
			if err != nil {
				return PointSnapshot{}, err
			}
			p.binary = s
		default:
			return PointSnapshot{}, fmt.Errorf("%w: %s expects a binary state", ErrValueOutOfRange, id)
		}
	}
	return d.snapshotLocked(p), nil
}
