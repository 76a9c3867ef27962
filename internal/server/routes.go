package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"fieldsim/internal/core/domain"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)
	e.GET("/devices", s.ListDevicesHandler)
	e.GET("/devices/:instance/points", s.ListPointsHandler)
	e.GET("/devices/:instance/points/:oid", s.GetPointHandler)
	e.PUT("/devices/:instance/points/:oid", s.SetPointHandler)

	return e
}

type deviceJSON struct {
	Instance uint32 `json:"instance"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Address  string `json:"address"`
}

type pointJSON struct {
	ID          string   `json:"id"`
	Role        string   `json:"role"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Units       string   `json:"units,omitempty"`
	Min         *float64 `json:"min,omitempty"`
	Max         *float64 `json:"max,omitempty"`
	Writable    bool     `json:"writable"`
	Value       any      `json:"value"`
}

type writeBody struct {
	Value any `json:"value"`
}

type errorJSON struct {
	Error string `json:"error"`
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ActorHealthRequest{}, 10*time.Second).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
	}
	if response, ok := res.(domain.ActorHealthResponse); ok && response.Healthy {
		return c.String(http.StatusOK, "health_check: OK")
	}
	return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
}

func (s *Server) ListDevicesHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ListDevicesRequest{}, 10*time.Second).Result()
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, errorJSON{Error: err.Error()})
	}
	response, ok := res.(domain.ListDevicesResponse)
	if !ok {
		return c.JSON(http.StatusInternalServerError, errorJSON{Error: "unexpected response"})
	}
	out := make([]deviceJSON, 0, len(response.Devices))
	for _, d := range response.Devices {
		out = append(out, toDeviceJSON(d))
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) ListPointsHandler(c echo.Context) error {
	instance, err := parseInstance(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorJSON{Error: err.Error()})
	}
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ListPointsRequest{Instance: instance}, 10*time.Second).Result()
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, errorJSON{Error: err.Error()})
	}
	response, ok := res.(domain.ListPointsResponse)
	if !ok {
		return c.JSON(http.StatusInternalServerError, errorJSON{Error: "unexpected response"})
	}
	if response.HasResponseError() {
		return errorResponse(c, response.GetResponseError())
	}
	out := make([]pointJSON, 0, len(response.Points))
	for _, p := range response.Points {
		out = append(out, toPointJSON(p))
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) GetPointHandler(c echo.Context) error {
	instance, err := parseInstance(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorJSON{Error: err.Error()})
	}
	id, err := domain.ParseObjectID(c.Param("oid"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorJSON{Error: err.Error()})
	}
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.GetPointRequest{Instance: instance, ID: id}, 10*time.Second).Result()
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, errorJSON{Error: err.Error()})
	}
	response, ok := res.(domain.GetPointResponse)
	if !ok {
		return c.JSON(http.StatusInternalServerError, errorJSON{Error: "unexpected response"})
	}
	if response.HasResponseError() {
		return errorResponse(c, response.GetResponseError())
	}
	return c.JSON(http.StatusOK, toPointJSON(response.Point))
}

func (s *Server) SetPointHandler(c echo.Context) error {
	instance, err := parseInstance(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorJSON{Error: err.Error()})
	}
	id, err := domain.ParseObjectID(c.Param("oid"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorJSON{Error: err.Error()})
	}
	var body writeBody
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, errorJSON{Error: "invalid request body"})
	}
	value, err := coerceValue(id, body.Value)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorJSON{Error: err.Error()})
	}
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.SetPointRequest{Instance: instance, ID: id, Value: value}, 10*time.Second).Result()
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, errorJSON{Error: err.Error()})
	}
	response, ok := res.(domain.SetPointResponse)
	if !ok {
		return c.JSON(http.StatusInternalServerError, errorJSON{Error: "unexpected response"})
	}
	if response.HasResponseError() {
		return errorResponse(c, response.GetResponseError())
	}
	return c.JSON(http.StatusOK, toPointJSON(response.Point))
}

// coerceValue narrows a decoded JSON value to what the point kind accepts.
// JSON numbers decode as float64, which is already the analog write type.
func coerceValue(id domain.ObjectID, raw any) (any, error) {
	if id.Kind.Analog() {
		v, ok := raw.(float64)
		if !ok {
			return nil, errors.New("analog point writes expect a number value")
		}
		return v, nil
	}
	switch v := raw.(type) {
	case bool:
		return v, nil
	case string:
		return domain.ParseBinaryState(v)
	default:
		return nil, errors.New("binary point writes expect a boolean or active/inactive value")
	}
}

func errorResponse(c echo.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrUnknownDevice), errors.Is(err, domain.ErrUnknownPoint):
		return c.JSON(http.StatusNotFound, errorJSON{Error: err.Error()})
	case errors.Is(err, domain.ErrInvalidWrite):
		return c.JSON(http.StatusForbidden, errorJSON{Error: err.Error()})
	case errors.Is(err, domain.ErrValueOutOfRange):
		return c.JSON(http.StatusBadRequest, errorJSON{Error: err.Error()})
	default:
		return c.JSON(http.StatusInternalServerError, errorJSON{Error: err.Error()})
	}
}

func parseInstance(c echo.Context) (uint32, error) {
	v, err := strconv.ParseUint(c.Param("instance"), 10, 32)
	if err != nil {
		return 0, errors.New("invalid device instance")
	}
	return uint32(v), nil
}

func toDeviceJSON(d domain.DeviceInfo) deviceJSON {
	return deviceJSON{
		Instance: d.Instance,
		Name:     d.Name,
		Type:     d.Type.String(),
		Address:  d.Address,
	}
}

func toPointJSON(p domain.PointSnapshot) pointJSON {
	out := pointJSON{
		ID:          p.ID.String(),
		Role:        string(p.Role),
		Name:        p.Name,
		Description: p.Description,
		Writable:    p.Writable,
	}
	if p.Units != domain.UnitsNone {
		out.Units = p.Units.String()
	}
	if p.Bounds != nil {
		min, max := p.Bounds.Min, p.Bounds.Max
		out.Min = &min
		out.Max = &max
	}
	if p.ID.Kind.Analog() {
		out.Value = p.Analog
	} else {
		out.Value = p.Binary.String()
	}
	return out
}
