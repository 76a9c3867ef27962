package sim

import (
	"math"

	"fieldsim/internal/core/domain"
)

// Simulation constants, matching the behavior of the physical devices these
// blueprints emulate.
const (
	vavTempStep   = 0.5
	vavDamperStep = 5.0
	vavOccupancyP = 0.1

	ahuSupplyStep = 1.0
	ahuReturnStep = 0.5

	fanSpeedReference = 72.0
	fanSpeedGain      = 5.0
	fanSpeedBase      = 50.0
	fanSpeedSmoothing = 0.1
	fanSpeedMin       = 30.0
	fanSpeedMax       = 100.0

	fanStatusThreshold = 20.0
)

// stage computes one tick batch for a device from its committed state.
// Role order is fixed: drivers are staged before the tracking models that
// consume them, and coupled models read the staged value, not the committed
// one. Roles whose model produces a non-finite value are skipped and keep
// their previous value; skipped roles are returned for logging.
func stage(t domain.DeviceType, rng Source, cur map[domain.Role]domain.PointSnapshot) ([]domain.PointUpdate, []domain.Role) {
	switch t {
	case domain.DeviceVAV:
		return stageVAV(rng, cur)
	case domain.DeviceAHU:
		return stageAHU(rng, cur)
	default:
		return nil, nil
	}
}

func stageVAV(rng Source, cur map[domain.Role]domain.PointSnapshot) ([]domain.PointUpdate, []domain.Role) {
	var batch []domain.PointUpdate
	var skipped []domain.Role

	temp := BoundedRandomWalk(rng, cur[domain.RoleTemp].Analog, vavTempStep, 65, 80)
	if isFinite(temp) {
		batch = append(batch, domain.PointUpdate{Role: domain.RoleTemp, Analog: temp})
	} else {
		skipped = append(skipped, domain.RoleTemp)
	}

	damper := BoundedRandomWalk(rng, cur[domain.RoleDamper].Analog, vavDamperStep, 0, 100)
	if isFinite(damper) {
		batch = append(batch, domain.PointUpdate{Role: domain.RoleDamper, Analog: damper})
	} else {
		skipped = append(skipped, domain.RoleDamper)
	}

	occ := ProbabilisticToggle(rng, cur[domain.RoleOccupancy].Binary, vavOccupancyP)
	batch = append(batch, domain.PointUpdate{Role: domain.RoleOccupancy, Binary: occ})

	// setpoint is never simulated; it keeps its creation or last-written
	// value.
	return batch, skipped
}

func stageAHU(rng Source, cur map[domain.Role]domain.PointSnapshot) ([]domain.PointUpdate, []domain.Role) {
	var batch []domain.PointUpdate
	var skipped []domain.Role

	supply := BoundedRandomWalk(rng, cur[domain.RoleSupplyTemp].Analog, ahuSupplyStep, 50, 60)
	if isFinite(supply) {
		batch = append(batch, domain.PointUpdate{Role: domain.RoleSupplyTemp, Analog: supply})
	} else {
		skipped = append(skipped, domain.RoleSupplyTemp)
	}

	ret := BoundedRandomWalk(rng, cur[domain.RoleReturnTemp].Analog, ahuReturnStep, 68, 76)
	if isFinite(ret) {
		batch = append(batch, domain.PointUpdate{Role: domain.RoleReturnTemp, Analog: ret})
	} else {
		skipped = append(skipped, domain.RoleReturnTemp)
		ret = cur[domain.RoleReturnTemp].Analog
	}

	// fan speed tracks the return temperature staged in this same tick.
	speed := ProportionalTracking(cur[domain.RoleFanSpeed].Analog, ret,
		fanSpeedReference, fanSpeedGain, fanSpeedBase, fanSpeedSmoothing, fanSpeedMin, fanSpeedMax)
	if isFinite(speed) {
		batch = append(batch, domain.PointUpdate{Role: domain.RoleFanSpeed, Analog: speed})
	} else {
		skipped = append(skipped, domain.RoleFanSpeed)
		speed = cur[domain.RoleFanSpeed].Analog
	}

	batch = append(batch, domain.PointUpdate{Role: domain.RoleFanStatus, Binary: DerivedBinaryState(speed, fanStatusThreshold)})

	return batch, skipped
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
