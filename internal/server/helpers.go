package server

import (
	"strconv"

	"slotswap/internal/models"

	"github.com/gofiber/fiber/v2"
)

// pathRequestID reads the :requestId segment. When it is not a positive
// integer the 400 has already been written and ok is false; the handler
// should return nil.
func pathRequestID(c *fiber.Ctx) (id uint, ok bool) {
	n, err := strconv.ParseUint(c.Params("requestId"), 10, 0)
	if err != nil || n == 0 {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request ID"))
		return 0, false
	}
	return uint(n), true
}

// currentUserID returns the id AuthRequired stored in locals.
func currentUserID(c *fiber.Ctx) uint {
	id, _ := c.Locals("userID").(uint)
	return id
}
