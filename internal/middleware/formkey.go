package middleware

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
)

// FormKeyHeader carries the shared secret configured in the form's Apps Script.
const FormKeyHeader = "X-PayForm-Key"

// FormKey rejects order requests that do not carry the shared form key. An
// empty key disables the check.
func FormKey(key string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if key == "" {
			return c.Next()
		}
		if subtle.ConstantTimeCompare([]byte(c.Get(FormKeyHeader)), []byte(key)) != 1 {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid form key")
		}
		return c.Next()
	}
}
