package server

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

const (
	checkHealthy     = "healthy"
	checkUnhealthy   = "unhealthy"
	checkUnavailable = "unavailable"
)

// HealthCheck answers GET /api/ with the readiness report.
func (s *Server) HealthCheck(c *fiber.Ctx) error {
	return s.ReadinessCheck(c)
}

// LivenessCheck reports that the process is serving requests.
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "up", "time": time.Now()})
}

// ReadinessCheck pings the database and Redis. Redis is optional: without it
// chat falls back to local fan-out, so its absence only degrades the report.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	db := checkHealthy
	if sqlDB, err := s.db.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
		db = checkUnhealthy
	}

	rdb := checkUnavailable
	if s.redis != nil {
		rdb = checkHealthy
		if err := s.redis.Ping(ctx).Err(); err != nil {
			rdb = checkUnhealthy
		}
	}

	code, overall := fiber.StatusOK, checkHealthy
	switch {
	case db == checkUnhealthy || rdb == checkUnhealthy:
		code, overall = fiber.StatusServiceUnavailable, checkUnhealthy
	case rdb == checkUnavailable:
		overall = "degraded"
	}

	return c.Status(code).JSON(fiber.Map{
		"message": "Vibely API",
		"version": "1.0.0",
		"status":  overall,
		"checks":  fiber.Map{"database": db, "redis": rdb},
		"time":    time.Now(),
	})
}
