package sim

import (
	"fmt"
	"sync"

	"fieldsim/internal/core/domain"

	"go.uber.org/zap"
)

// Registry owns every live device. It is the sole creation authority and
// the access surface protocol adapters use to read and write point values.
type Registry struct {
	mu         sync.RWMutex
	byInstance map[uint32]*domain.Device
	byName     map[string]*domain.Device
	order      []*domain.Device
	logger     *zap.Logger
}

func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		byInstance: make(map[uint32]*domain.Device),
		byName:     make(map[string]*domain.Device),
		logger:     logger.With(zap.String("component", "registry")),
	}
}

// Create builds a device with the fixed point set of its type and registers
// it. Instance numbers are unique across the registry; a duplicate fails
// without touching the existing device.
func (r *Registry) Create(t domain.DeviceType, instance uint32, name, address string) (*domain.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byInstance[instance]; ok {
		return nil, fmt.Errorf("%w: %d", domain.ErrDuplicateInstance, instance)
	}

	dev := domain.NewDevice(t, instance, name, address)
	var err error
	switch t {
	case domain.DeviceVAV:
		err = buildVAVPoints(dev)
	case domain.DeviceAHU:
		err = buildAHUPoints(dev)
	default:
		return nil, fmt.Errorf("%w: %d", domain.ErrUnsupportedDeviceType, t)
	}
	if err != nil {
		return nil, err
	}

	r.byInstance[instance] = dev
	r.byName[name] = dev
	r.order = append(r.order, dev)
	r.logger.Info("device created",
		zap.String("name", name),
		zap.Uint32("instance", instance),
		zap.String("type", t.String()),
		zap.String("address", address))
	return dev, nil
}

func buildVAVPoints(dev *domain.Device) error {
	temp := domain.NewAnalogPoint(domain.AnalogInput, 1,
		dev.Name+"-Temperature", "Zone temperature sensor",
		domain.UnitsDegreesFahrenheit,
		72.0+float64(dev.Instance%5),
		&domain.Bounds{Min: 65, Max: 80})
	if err := dev.AddPoint(domain.RoleTemp, temp); err != nil {
		return err
	}

	damper := domain.NewAnalogPoint(domain.AnalogOutput, 1,
		dev.Name+"-Damper", "Damper position control",
		domain.UnitsPercent, 45.0,
		&domain.Bounds{Min: 0, Max: 100})
	if err := dev.AddPoint(domain.RoleDamper, damper); err != nil {
		return err
	}

	occState := domain.Inactive
	if dev.Instance%2 == 1 {
		occState = domain.Active
	}
	occ := domain.NewBinaryPoint(domain.BinaryInput, 1,
		dev.Name+"-Occupancy", "Occupancy sensor", occState)
	if err := dev.AddPoint(domain.RoleOccupancy, occ); err != nil {
		return err
	}

	setpoint := domain.NewAnalogPoint(domain.AnalogValue, 1,
		dev.Name+"-Setpoint", "Temperature setpoint",
		domain.UnitsDegreesFahrenheit, 72.0, nil)
	return dev.AddPoint(domain.RoleSetpoint, setpoint)
}

func buildAHUPoints(dev *domain.Device) error {
	supply := domain.NewAnalogPoint(domain.AnalogInput, 1,
		dev.Name+"-SupplyTemp", "Supply air temperature sensor",
		domain.UnitsDegreesFahrenheit, 55.0,
		&domain.Bounds{Min: 50, Max: 60})
	if err := dev.AddPoint(domain.RoleSupplyTemp, supply); err != nil {
		return err
	}

	ret := domain.NewAnalogPoint(domain.AnalogInput, 2,
		dev.Name+"-ReturnTemp", "Return air temperature sensor",
		domain.UnitsDegreesFahrenheit, 72.0,
		&domain.Bounds{Min: 68, Max: 76})
	if err := dev.AddPoint(domain.RoleReturnTemp, ret); err != nil {
		return err
	}

	status := domain.NewBinaryPoint(domain.BinaryValue, 1,
		dev.Name+"-FanStatus", "Fan on/off status", domain.Active)
	if err := dev.AddPoint(domain.RoleFanStatus, status); err != nil {
		return err
	}

	speed := domain.NewAnalogPoint(domain.AnalogOutput, 1,
		dev.Name+"-FanSpeed", "Fan speed control (VFD)",
		domain.UnitsPercent, 75.0,
		&domain.Bounds{Min: 30, Max: 100})
	return dev.AddPoint(domain.RoleFanSpeed, speed)
}

// List returns devices in creation order.
func (r *Registry) List() []*domain.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.Device, len(r.order))
	copy(out, r.order)
	return out
}

func (r *Registry) Device(instance uint32) (*domain.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	dev, ok := r.byInstance[instance]
	if !ok {
		return nil, fmt.Errorf("%w: %d", domain.ErrUnknownDevice, instance)
	}
	return dev, nil
}

func (r *Registry) DeviceByName(name string) (*domain.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	dev, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownDevice, name)
	}
	return dev, nil
}

// Value returns a committed snapshot of one point. Readers never observe a
// tick in progress.
func (r *Registry) Value(instance uint32, id domain.ObjectID) (domain.PointSnapshot, error) {
	dev, err := r.Device(instance)
	if err != nil {
		return domain.PointSnapshot{}, err
	}
	return dev.Point(id)
}

// SetValue writes one point on behalf of a protocol client. Only writable
// kinds accept writes; the write is serialized against tick commits.
func (r *Registry) SetValue(instance uint32, id domain.ObjectID, value any) (domain.PointSnapshot, error) {
	dev, err := r.Device(instance)
	if err != nil {
		return domain.PointSnapshot{}, err
	}
	snap, err := dev.SetValue(id, value)
	if err != nil {
		return domain.PointSnapshot{}, err
	}
	r.logger.Debug("point written",
		zap.Uint32("instance", instance),
		zap.String("object", id.String()),
		zap.String("value", snap.ValueString()))
	return snap, nil
}
