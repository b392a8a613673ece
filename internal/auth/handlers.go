package auth

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// deviceTokenTTL is how long a provisioned device credential stays valid.
const deviceTokenTTL = 30 * 24 * time.Hour

type tokenRequest struct {
	DeviceID string `json:"device_id"`
}

// RegisterRoutes exposes device provisioning: a device trades its id for
// the bearer token the tracking routes require.
func RegisterRoutes(r fiber.Router, secret string) {
	r.Post("/token", func(c *fiber.Ctx) error {
		var req tokenRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if req.DeviceID == "" {
			return fiber.NewError(fiber.StatusBadRequest, "device_id is required")
		}
		token, err := DeviceToken(secret, req.DeviceID, deviceTokenTTL)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"token": token})
	})
}
