package server

import (
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
)

// registerControlRoutes 挂载 /-/ 控制面：消息投递与健康探测。
func registerControlRoutes(app *fiber.App, opts AppOptions) {
	app.Post("/-/message", func(c fiber.Ctx) error {
		msg := strings.TrimSpace(string(c.Body()))
		if msg == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "empty_message"})
		}

		opts.Engine.Post(msg)
		opts.Logger.WithFields(logrus.Fields{
			"action":  "control_message",
			"message": msg,
		}).Info("控制消息已投递")

		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "accepted"})
	})

	app.Get("/-/health", func(c fiber.Ctx) error {
		phase := opts.Engine.Phase()
		body := fiber.Map{
			"phase":  phase.String(),
			"active": opts.Engine.Active(),
		}
		if err := opts.Engine.Err(); err != nil {
			body["error"] = err.Error()
		}
		return c.JSON(body)
	})
}
