package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/muurk/intesis/internal/climate"
	"github.com/muurk/intesis/internal/deviceapi"
	"github.com/muurk/intesis/internal/logging"
)

// DeviceSummary is one entry of GET /api/devices
type DeviceSummary struct {
	Serial    string `json:"serial"`
	Name      string `json:"name"`
	Host      string `json:"host"`
	Available bool   `json:"available"`
}

// ClimateRequest is the body of POST /api/climate. Unset fields are left alone.
type ClimateRequest struct {
	HVACMode          *string  `json:"hvac_mode"`
	TargetTemperature *float64 `json:"target_temperature"`
	FanMode           *string  `json:"fan_mode"`
	SwingMode         *string  `json:"swing_mode"`
	PresetMode        *string  `json:"preset_mode"`
	HorizontalVane    *string  `json:"horizontal_vane"`
}

// DatapointRequest is the body of PUT /api/datapoints/:uid
type DatapointRequest struct {
	Value *int `json:"value"`
}

// RegisterRoutes builds the echo router
func (s *Server) RegisterRoutes() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	if s.config.HTTPLog {
		e.Use(requestLogger)
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	e.GET("/ws", s.hub.Handler)

	api := e.Group("/api")
	api.GET("/devices", s.DevicesHandler)
	api.GET("/status", s.StatusHandler)
	api.GET("/climate", s.ClimateHandler)
	api.POST("/climate", s.SetClimateHandler)
	api.PUT("/datapoints/:uid", s.SetDatapointHandler)
	api.POST("/refresh", s.RefreshHandler)
	api.GET("/diagnostics", s.DiagnosticsHandler)

	return e
}

func requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}
		logging.LogHTTPRequest(c.RealIP(), c.Request().Method, c.Request().URL.Path, c.Response().Status, time.Since(start))
		return nil
	}
}

// controller picks the device named by ?device=, or the only/first one
func (s *Server) controller(c echo.Context) (*climate.Controller, error) {
	if len(s.controllers) == 0 {
		return nil, echo.NewHTTPError(http.StatusServiceUnavailable, "no device configured")
	}
	serial := c.QueryParam("device")
	if serial == "" {
		return s.controllers[0], nil
	}
	ctrl, ok := s.bySerial[serial]
	if !ok {
		return nil, echo.NewHTTPError(http.StatusNotFound, "unknown device "+serial)
	}
	return ctrl, nil
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	if len(s.controllers) == 0 {
		return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
	}
	for _, ctrl := range s.controllers {
		if !ctrl.Available() {
			return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
		}
	}
	return c.String(http.StatusOK, "health_check: OK")
}

func (s *Server) DevicesHandler(c echo.Context) error {
	out := make([]DeviceSummary, 0, len(s.controllers))
	for _, ctrl := range s.controllers {
		status := ctrl.Status()
		out = append(out, DeviceSummary{
			Serial:    status.Serial,
			Name:      status.Name,
			Host:      status.Host,
			Available: status.Available,
		})
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) StatusHandler(c echo.Context) error {
	ctrl, err := s.controller(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ctrl.Status())
}

func (s *Server) ClimateHandler(c echo.Context) error {
	ctrl, err := s.controller(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ctrl.View())
}

// SetClimateHandler applies the requested changes and answers with the
// optimistic view. Changes are verified against the device in the background.
func (s *Server) SetClimateHandler(c echo.Context) error {
	ctrl, err := s.controller(c)
	if err != nil {
		return err
	}

	var req ClimateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	steps := []struct {
		value *string
		apply func(string) error
	}{
		{req.HVACMode, ctrl.SetHVACMode},
		{req.FanMode, ctrl.SetFanMode},
		{req.SwingMode, ctrl.SetSwingMode},
		{req.PresetMode, ctrl.SetPresetMode},
		{req.HorizontalVane, ctrl.SetHorizontalVane},
	}
	for _, step := range steps {
		if step.value == nil {
			continue
		}
		if err := step.apply(*step.value); err != nil {
			return commandError(err)
		}
	}
	if req.TargetTemperature != nil {
		if err := ctrl.SetTemperature(*req.TargetTemperature); err != nil {
			return commandError(err)
		}
	}

	return c.JSON(http.StatusAccepted, ctrl.View())
}

func (s *Server) SetDatapointHandler(c echo.Context) error {
	ctrl, err := s.controller(c)
	if err != nil {
		return err
	}

	uid, err := deviceapi.ParseUID(c.Param("uid"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	var req DatapointRequest
	if err := c.Bind(&req); err != nil || req.Value == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "body must be {\"value\": <int>}")
	}

	if err := ctrl.SetDatapoint(uid, *req.Value); err != nil {
		return commandError(err)
	}
	return c.JSON(http.StatusAccepted, map[string]int{strconv.Itoa(int(uid)): *req.Value})
}

func (s *Server) RefreshHandler(c echo.Context) error {
	ctrl, err := s.controller(c)
	if err != nil {
		return err
	}
	if err := ctrl.Refresh(c.Request().Context()); err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, deviceapi.GetShortErrorMessage(err))
	}
	return c.JSON(http.StatusOK, ctrl.Status())
}

func (s *Server) DiagnosticsHandler(c echo.Context) error {
	ctrl, err := s.controller(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ctrl.Diagnostics())
}

// commandError maps a rejected command to an HTTP error
func commandError(err error) error {
	switch {
	case errors.Is(err, climate.ErrInvalidMode), errors.Is(err, climate.ErrNotWritable):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
}
