package tracking

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"runstr-engine/internal/archive"
	"runstr-engine/internal/session"
	"runstr-engine/internal/track"
)

// RegisterRoutes wires the consumer API and the fix-ingest route. The ingest
// route is the background delivery entry point: it goes straight to the
// bridge and never assumes the foreground controller is reachable in memory.
func RegisterRoutes(r fiber.Router, ctrl *session.Controller, arch *archive.Service, authMiddleware fiber.Handler) {
	r.Post("/start", authMiddleware, func(c *fiber.Ctx) error {
		var req StartRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		activity := track.ActivityType(req.ActivityType)
		if !activity.Valid() {
			return fiber.NewError(fiber.StatusBadRequest, "activity_type must be running, walking or cycling")
		}
		if !ctrl.Start(c.Context(), activity, req.PresetDistanceM) {
			return fiber.NewError(fiber.StatusConflict, "a session is already active")
		}
		snap, _ := ctrl.Current()
		return c.Status(fiber.StatusCreated).JSON(snap)
	})

	r.Post("/pause", authMiddleware, func(c *fiber.Ctx) error {
		if err := ctrl.Pause(c.Context()); err != nil {
			return fiber.NewError(fiber.StatusConflict, err.Error())
		}
		snap, _ := ctrl.Current()
		return c.JSON(snap)
	})

	r.Post("/resume", authMiddleware, func(c *fiber.Ctx) error {
		if err := ctrl.Resume(c.Context()); err != nil {
			return fiber.NewError(fiber.StatusConflict, err.Error())
		}
		snap, _ := ctrl.Current()
		return c.JSON(snap)
	})

	r.Post("/stop", authMiddleware, func(c *fiber.Ctx) error {
		result, err := ctrl.Stop(c.Context())
		if err != nil {
			if errors.Is(err, session.ErrNoSession) {
				return fiber.NewError(fiber.StatusConflict, err.Error())
			}
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(result)
	})

	r.Get("/current", func(c *fiber.Ctx) error {
		snap, ok := ctrl.Current()
		if !ok {
			return fiber.NewError(fiber.StatusNotFound, "no active session")
		}
		return c.JSON(snap)
	})

	r.Post("/restore", authMiddleware, func(c *fiber.Ctx) error {
		restored := ctrl.Restore(c.Context())
		return c.JSON(fiber.Map{"restored": restored})
	})

	r.Post("/fixes", authMiddleware, func(c *fiber.Ctx) error {
		var req IngestRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		points := make([]track.GPSPoint, 0, len(req.Fixes))
		for _, f := range req.Fixes {
			points = append(points, f.toPoint())
		}
		if err := ctrl.Bridge().HandleDelivery(c.Context(), points); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.SendStatus(fiber.StatusAccepted)
	})

	r.Get("/history", func(c *fiber.Ctx) error {
		if arch == nil {
			return fiber.NewError(fiber.StatusServiceUnavailable, "history storage not configured")
		}
		records, err := arch.History(c.Context(), c.QueryInt("limit"))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(records)
	})
}
