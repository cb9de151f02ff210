package main

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewsDeliverer is what the HTTP surface needs from the orchestrator
type NewsDeliverer interface {
	DeliverNews(ctx context.Context, email, password string) DeliveryResult
}

type deliverRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type deliverResponse struct {
	Status  DeliveryStatus `json:"status"`
	Message string         `json:"message"`
}

// NewsHandler serves delivery requests over HTTP
type NewsHandler struct {
	deliverer NewsDeliverer
	logger    Logger
}

// NewNewsHandler creates the HTTP handler for news delivery
func NewNewsHandler(deliverer NewsDeliverer, logger Logger) *NewsHandler {
	return &NewsHandler{deliverer: deliverer, logger: logger}
}

// Deliver handles POST /news
func (h *NewsHandler) Deliver(c echo.Context) error {
	var req deliverRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, deliverResponse{Status: StatusError, Message: "invalid request body"})
	}

	result := h.deliverer.DeliverNews(c.Request().Context(), req.Email, req.Password)
	return c.JSON(statusCodeFor(result), deliverResponse{Status: result.Status, Message: result.Message})
}

// Health handles GET /healthz
func (h *NewsHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func statusCodeFor(result DeliveryResult) int {
	if result.Status == StatusSuccess {
		return http.StatusOK
	}
	switch KindOf(result.Err) {
	case KindAuth:
		return http.StatusUnauthorized
	case KindNoContent:
		return http.StatusNotFound
	default:
		return http.StatusBadGateway
	}
}

// NewServer builds the echo server with delivery, health and metrics routes
func NewServer(handler *NewsHandler, gatherer prometheus.Gatherer, logger Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogError:   true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error == nil {
				logger.Info("Request completed",
					String("method", v.Method),
					String("uri", v.URI),
					Int("status", v.Status),
					Duration("latency", v.Latency),
				)
			} else {
				logger.Error("Request failed",
					String("method", v.Method),
					String("uri", v.URI),
					Int("status", v.Status),
					Duration("latency", v.Latency),
					Err(v.Error),
				)
			}
			return nil
		},
	}))
	e.Use(middleware.Recover())

	e.POST("/news", handler.Deliver)
	e.GET("/healthz", handler.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	return e
}
