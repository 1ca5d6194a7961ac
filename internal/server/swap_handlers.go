package server

import (
	"slotswap/internal/models"
	"slotswap/internal/repository"
	"slotswap/internal/service"

	"github.com/gofiber/fiber/v2"
)

// CreateSwapRequest handles POST /api/swap-requests
// @Summary Post a swap request
// @Tags swaps
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body service.CreateSwapInput true "Held and desired slot"
// @Success 201 {object} object{success=bool,message=string,data=models.SwapRequest}
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /swap-requests [post]
func (s *Server) CreateSwapRequest(c *fiber.Ctx) error {
	var in service.CreateSwapInput
	if err := c.BodyParser(&in); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	req, err := s.swapSvc().CreateSwapRequest(c.UserContext(), currentUserID(c), in)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"message": "Swap request created successfully",
		"data":    req,
	})
}

// ListSwapRequests handles GET /api/swap-requests
// @Summary Browse swap requests
// @Tags swaps
// @Produce json
// @Param courseCode query string false "Course code"
// @Param status query string false "open, matched or completed"
// @Success 200 {array} models.SwapRequest
// @Router /swap-requests [get]
func (s *Server) ListSwapRequests(c *fiber.Ctx) error {
	requests, err := s.swapSvc().ListSwapRequests(c.UserContext(), repository.SwapFilter{
		CourseCode: c.Query("courseCode"),
		Status:     models.SwapStatus(c.Query("status")),
	})
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(models.PublicList(requests))
}

// GetMySwapRequests handles GET /api/swap-requests/my-requests
// @Summary The caller's swap requests
// @Tags swaps
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.SwapRequest
// @Router /swap-requests/my-requests [get]
func (s *Server) GetMySwapRequests(c *fiber.Ctx) error {
	requests, err := s.swapSvc().GetMySwapRequests(c.UserContext(), currentUserID(c))
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(requests)
}

// GetMyMatches handles GET /api/swap-requests/my-matches
// @Summary Reciprocal matches for all of the caller's open requests
// @Tags swaps
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{success=bool,totalMatches=int,matches=[]service.MatchForRequest}
// @Router /swap-requests/my-matches [get]
func (s *Server) GetMyMatches(c *fiber.Ctx) error {
	matches, err := s.swapSvc().FindAllMatchesForOwner(c.UserContext(), currentUserID(c))
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(fiber.Map{
		"success":      true,
		"totalMatches": len(matches),
		"matches":      matches,
	})
}

// FindMatches handles GET /api/swap-requests/:requestId/matches
// @Summary Reciprocal matches for one request
// @Tags swaps
// @Produce json
// @Param requestId path int true "Swap request ID"
// @Success 200 {object} object{success=bool,totalMatches=int,matches=[]models.SwapRequest}
// @Failure 404 {object} models.ErrorResponse
// @Router /swap-requests/{requestId}/matches [get]
func (s *Server) FindMatches(c *fiber.Ctx) error {
	requestID, ok := pathRequestID(c)
	if !ok {
		return nil
	}

	matches, err := s.swapSvc().FindMatches(c.UserContext(), requestID)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(fiber.Map{
		"success":      true,
		"totalMatches": len(matches),
		"matches":      models.PublicList(matches),
	})
}

// ConfirmSwap handles POST /api/swap-requests/confirm-swap
// @Summary Confirm a match and disclose contact details
// @Tags swaps
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body service.ConfirmInput true "Pair and contact details"
// @Success 200 {object} object{success=bool,message=string}
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /swap-requests/confirm-swap [post]
func (s *Server) ConfirmSwap(c *fiber.Ctx) error {
	var in service.ConfirmInput
	if err := c.BodyParser(&in); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	out, err := s.swapSvc().ConfirmSwap(c.UserContext(), currentUserID(c), in)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	s.events.SwapConfirmed(c.UserContext(), out.Request, out.Matched)

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Swap confirmed! Both requests are now matched.",
	})
}

// GetMatchedContact handles GET /api/swap-requests/:requestId/matched-contact
// @Summary Counterparty contact for a confirmed swap
// @Tags swaps
// @Produce json
// @Security BearerAuth
// @Param requestId path int true "Swap request ID"
// @Success 200 {object} object{success=bool,studentName=string,studentEmail=string,studentPhone=string,studentContactName=string,bargainingNotes=string}
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /swap-requests/{requestId}/matched-contact [get]
func (s *Server) GetMatchedContact(c *fiber.Ctx) error {
	requestID, ok := pathRequestID(c)
	if !ok {
		return nil
	}

	contact, err := s.swapSvc().GetCounterpartyContact(c.UserContext(), currentUserID(c), requestID)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	return c.JSON(fiber.Map{
		"success":            true,
		"studentName":        contact.Name,
		"studentEmail":       contact.Email,
		"studentPhone":       contact.Phone,
		"studentContactName": contact.Name,
		"bargainingNotes":    contact.Notes,
	})
}

// CompleteSwap handles PUT /api/swap-requests/:requestId/complete
// @Summary Mark a swap completed
// @Tags swaps
// @Produce json
// @Security BearerAuth
// @Param requestId path int true "Swap request ID"
// @Success 200 {object} object{success=bool,message=string}
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /swap-requests/{requestId}/complete [put]
func (s *Server) CompleteSwap(c *fiber.Ctx) error {
	requestID, ok := pathRequestID(c)
	if !ok {
		return nil
	}

	out, err := s.swapSvc().CompleteSwap(c.UserContext(), currentUserID(c), requestID)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	s.events.SwapCompleted(c.UserContext(), out.Request, out.Linked)

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Swap marked as completed",
	})
}

// DeleteSwapRequest handles DELETE /api/swap-requests/:requestId
// @Summary Delete one of the caller's swap requests
// @Tags swaps
// @Produce json
// @Security BearerAuth
// @Param requestId path int true "Swap request ID"
// @Success 200 {object} object{success=bool,message=string}
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /swap-requests/{requestId} [delete]
func (s *Server) DeleteSwapRequest(c *fiber.Ctx) error {
	requestID, ok := pathRequestID(c)
	if !ok {
		return nil
	}

	if err := s.swapSvc().DeleteSwapRequest(c.UserContext(), currentUserID(c), requestID); err != nil {
		return models.RespondWithAppError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Swap request deleted successfully",
	})
}
