package domain

import "errors"

var (
	// ErrDuplicateInstance is returned when a device instance number is
	// already registered. The existing device is left untouched.
	ErrDuplicateInstance = errors.New("device instance already registered")

	// ErrUnsupportedDeviceType is returned for device types outside VAV/AHU.
	ErrUnsupportedDeviceType = errors.New("unsupported device type")

	// ErrUnknownDevice is returned for lookups of unregistered instances.
	ErrUnknownDevice = errors.New("unknown device instance")

	// ErrUnknownPoint is returned when a device has no point with the
	// requested object identifier.
	ErrUnknownPoint = errors.New("unknown point")

	// ErrInvalidWrite is returned when a protocol client writes a
	// read-only point. No state changes.
	ErrInvalidWrite = errors.New("point is not writable")

	// ErrValueOutOfRange is returned for write payloads of the wrong type
	// or non-finite analog values.
	ErrValueOutOfRange = errors.New("invalid point value")
)
