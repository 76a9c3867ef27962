package domain

// PointUpdateEvent is published on the event stream after a point value is
// committed, either by a simulation tick or by an adapter write. Carries
// only committed state.
type PointUpdateEvent struct {
	DeviceInstance uint32
	DeviceName     string
	DeviceType     DeviceType
	Point          PointSnapshot
}

// EngineStateEvent signals simulation engine lifecycle transitions to
// interested adapters (e.g. the MQTT availability topic).
type EngineStateEvent struct {
	Running bool
}
