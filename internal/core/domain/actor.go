package domain

import (
	"github.com/asynkron/protoactor-go/actor"
)

const (
	ACTOR_ID_MASTER    = "master"
	ACTOR_ID_SIMULATOR = "simulator"
	ACTOR_ID_MQTT      = "mqtt"
	ACTOR_ID_MODBUS    = "modbus"
)

type ActorRef actor.PID

type ActorRequestMixIn struct {
	ReplyToRef *ActorRef
}

type ActorRequest interface {
	ReplyTo() *ActorRef
}

func (r ActorRequestMixIn) ReplyTo() *ActorRef {
	return r.ReplyToRef
}

type ActorResponseMixIn struct {
	ResponseError error
}

func (r ActorResponseMixIn) GetResponseError() error {
	return r.ResponseError
}

func (r ActorResponseMixIn) HasResponseError() bool {
	return r.ResponseError != nil
}

type ActorResponse interface {
	GetResponseError() error
	HasResponseError() bool
}

// DeviceInfo is the identity slice of a device exposed to adapters.
type DeviceInfo struct {
	Instance uint32
	Name     string
	Type     DeviceType
	Address  string
}

type ListDevicesRequest struct {
	ActorRequestMixIn
}

type ListDevicesResponse struct {
	ActorResponseMixIn
	Devices []DeviceInfo
}

type ListPointsRequest struct {
	ActorRequestMixIn
	Instance uint32
}

type ListPointsResponse struct {
	ActorResponseMixIn
	Device DeviceInfo
	Points []PointSnapshot
}

type GetPointRequest struct {
	ActorRequestMixIn
	Instance uint32
	ID       ObjectID
}

type GetPointResponse struct {
	ActorResponseMixIn
	Device DeviceInfo
	Point  PointSnapshot
}

// SetPointRequest writes a point through the adapter surface. The device is
// addressed by instance number, or by name when Instance is zero (MQTT
// topics carry names). Value must be a float64 for analog points or a
// BinaryState/bool/string for binary points.
type SetPointRequest struct {
	ActorRequestMixIn
	Instance   uint32
	DeviceName string
	ID         ObjectID
	Value      any
}

type SetPointResponse struct {
	ActorResponseMixIn
	Device DeviceInfo
	Point  PointSnapshot
}

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}
