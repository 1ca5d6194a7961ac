// Package service holds the swap matching and confirmation business logic.
package service

import (
	"context"
	"log/slog"
	"strings"

	"slotswap/internal/featureflags"
	"slotswap/internal/middleware"
	"slotswap/internal/models"
	"slotswap/internal/observability"
	"slotswap/internal/repository"
	"slotswap/internal/validation"

	"go.opentelemetry.io/otel/attribute"
)

const (
	msgNotOwner        = "Unauthorized"
	msgConfirmFirst    = "Swap must be confirmed first"
	msgMatchedNotFound = "Matched request not found"
)

// SwapService provides swap request, matching and confirmation logic.
type SwapService struct {
	swapRepo repository.SwapRequestRepository
	userRepo repository.UserRepository
	flags    *featureflags.Manager
}

// NewSwapService returns a new SwapService. flags may be nil, which leaves
// every flag off.
func NewSwapService(swapRepo repository.SwapRequestRepository, userRepo repository.UserRepository, flags *featureflags.Manager) *SwapService {
	return &SwapService{
		swapRepo: swapRepo,
		userRepo: userRepo,
		flags:    flags,
	}
}

// CreateSwapInput is the body of a new swap request.
type CreateSwapInput struct {
	CourseCode     string `json:"courseCode" validate:"notblank,max=50"`
	CurrentFaculty string `json:"currentFaculty" validate:"notblank,max=120"`
	CurrentSlot    string `json:"currentSlot" validate:"notblank,max=50"`
	DesiredFaculty string `json:"desiredFaculty" validate:"notblank,max=120"`
	DesiredSlot    string `json:"desiredSlot" validate:"notblank,max=50"`
	Notes          string `json:"notes"`
}

func (in *CreateSwapInput) normalize() {
	in.CourseCode = strings.TrimSpace(in.CourseCode)
	in.CurrentFaculty = strings.TrimSpace(in.CurrentFaculty)
	in.CurrentSlot = strings.TrimSpace(in.CurrentSlot)
	in.DesiredFaculty = strings.TrimSpace(in.DesiredFaculty)
	in.DesiredSlot = strings.TrimSpace(in.DesiredSlot)
	in.Notes = strings.TrimSpace(in.Notes)
}

// CreateSwapRequest posts an open request owned by studentID. The owner's
// name and email are snapshotted onto the record.
func (s *SwapService) CreateSwapRequest(ctx context.Context, studentID uint, in CreateSwapInput) (*models.SwapRequest, error) {
	in.normalize()
	if err := validation.Struct(in); err != nil {
		return nil, &models.AppError{
			Code:    models.CodeValidation,
			Message: "All fields are required",
			Err:     err,
		}
	}

	user, err := s.userRepo.GetByID(ctx, studentID)
	if err != nil {
		return nil, err
	}

	req := &models.SwapRequest{
		StudentID:      user.ID,
		CourseCode:     in.CourseCode,
		CurrentFaculty: in.CurrentFaculty,
		CurrentSlot:    in.CurrentSlot,
		DesiredFaculty: in.DesiredFaculty,
		DesiredSlot:    in.DesiredSlot,
		Notes:          in.Notes,
		Status:         models.SwapStatusOpen,
		StudentName:    user.Name,
		StudentEmail:   user.Email,
	}
	if err := s.swapRepo.Create(ctx, req); err != nil {
		return nil, err
	}

	observability.SwapRequestsCreated.Inc()
	middleware.Logger.InfoContext(ctx, "swap request created",
		slog.Uint64("swap_request_id", uint64(req.ID)),
		slog.String("course_code", req.CourseCode),
	)
	return req, nil
}

// ListSwapRequests returns the public listing, newest first.
func (s *SwapService) ListSwapRequests(ctx context.Context, filter repository.SwapFilter) ([]models.SwapRequest, error) {
	filter.CourseCode = strings.TrimSpace(filter.CourseCode)
	return s.swapRepo.List(ctx, filter)
}

// GetMySwapRequests returns every request the student posted with its
// counterparty record loaded.
func (s *SwapService) GetMySwapRequests(ctx context.Context, studentID uint) ([]models.SwapRequest, error) {
	return s.swapRepo.ListByStudent(ctx, studentID)
}

// FindMatches returns the open requests that exactly invert requestID's
// held and desired slots in the same course.
func (s *SwapService) FindMatches(ctx context.Context, requestID uint) ([]models.SwapRequest, error) {
	req, err := s.swapRepo.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	matches, err := s.swapRepo.FindReciprocal(ctx, req)
	if err != nil {
		return nil, err
	}
	observability.SwapMatchesFound.Add(float64(len(matches)))
	return matches, nil
}

// MatchForRequest is a reciprocal candidate tagged with the id of the
// caller's request it matches.
type MatchForRequest struct {
	models.SwapRequest
	RequestID uint `json:"requestId"`
}

// FindAllMatchesForOwner runs FindMatches for each of the student's open
// requests and flattens the results in request order. A candidate matching
// two of the student's requests appears twice.
func (s *SwapService) FindAllMatchesForOwner(ctx context.Context, studentID uint) ([]MatchForRequest, error) {
	own, err := s.swapRepo.ListOpenByStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}

	all := make([]MatchForRequest, 0)
	for i := range own {
		matches, err := s.swapRepo.FindReciprocal(ctx, &own[i])
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			all = append(all, MatchForRequest{SwapRequest: m.Public(), RequestID: own[i].ID})
		}
	}
	observability.SwapMatchesFound.Add(float64(len(all)))
	return all, nil
}

// ConfirmInput carries the caller's side of a swap confirmation.
type ConfirmInput struct {
	RequestID        uint   `json:"requestId"`
	MatchedRequestID uint   `json:"matchedRequestId"`
	PhoneNumber      string `json:"phoneNumber"`
	Name             string `json:"name"`
	Notes            string `json:"notes"`
}

// SwapConfirmation holds both records as persisted by a confirm.
type SwapConfirmation struct {
	Request *models.SwapRequest
	Matched *models.SwapRequest
}

func (s *SwapService) strict(callerID uint) bool {
	return s.flags.Enabled(featureflags.StrictSwapConfirm, callerID)
}

func confirmFailed(reason string, err error) error {
	observability.SwapConfirmFailures.WithLabelValues(reason).Inc()
	return err
}

// ConfirmSwap marks the caller's request and the chosen counterparty as
// matched with each other. The caller's contact details land in their own
// request; the counterparty request receives a mirrored copy along with
// the caller's account email.
//
// Contact input is validated before any read. Both writes share one
// transaction. With strict_swap_confirm on for the caller the pair must be
// reciprocal and both rows still open; either row moving on first fails
// the confirm with a conflict instead of overwriting it.
func (s *SwapService) ConfirmSwap(ctx context.Context, callerID uint, in ConfirmInput) (*SwapConfirmation, error) {
	name := strings.TrimSpace(in.Name)
	phone := strings.TrimSpace(in.PhoneNumber)
	if err := validation.ValidateContact(name, phone); err != nil {
		return nil, confirmFailed("invalid_contact", models.NewValidationError(err.Error()))
	}
	if in.RequestID == 0 || in.MatchedRequestID == 0 {
		return nil, confirmFailed("invalid_input", models.NewValidationError("requestId and matchedRequestId are required"))
	}
	if in.RequestID == in.MatchedRequestID {
		return nil, confirmFailed("invalid_input", models.NewValidationError("Cannot confirm a swap with the same request"))
	}

	strict := s.strict(callerID)
	span, ctx := observability.NewSpan(ctx, "swap.confirm",
		attribute.Int64("swap.request_id", int64(in.RequestID)),
		attribute.Int64("swap.matched_request_id", int64(in.MatchedRequestID)),
		attribute.Bool("swap.strict", strict),
	)
	defer span.End()

	var out SwapConfirmation
	err := s.swapRepo.WithinTransaction(ctx, func(repo repository.SwapRequestRepository) error {
		req, err := repo.GetByID(ctx, in.RequestID)
		if err != nil {
			if models.IsCode(err, models.CodeNotFound) {
				return confirmFailed("not_found", err)
			}
			return err
		}
		if !req.OwnedBy(callerID) {
			return confirmFailed("forbidden", models.NewForbiddenError(msgNotOwner))
		}

		matched, err := repo.GetByID(ctx, in.MatchedRequestID)
		if err != nil {
			if models.IsCode(err, models.CodeNotFound) {
				return confirmFailed("not_found", &models.AppError{Code: models.CodeNotFound, Message: msgMatchedNotFound})
			}
			return err
		}

		if strict {
			if !req.IsReciprocalOf(matched) {
				return confirmFailed("not_reciprocal", models.NewInvalidStateError("Requests are not a reciprocal match"))
			}
			if req.Status != models.SwapStatusOpen || matched.Status != models.SwapStatusOpen {
				return confirmFailed("conflict", models.NewConflictError("Swap request is no longer open"))
			}
		}

		own := map[string]interface{}{
			"status":               models.SwapStatusMatched,
			"matched_with":         matched.ID,
			"student_phone":        phone,
			"student_contact_name": name,
			"bargaining_notes":     in.Notes,
		}
		mirror := map[string]interface{}{
			"status":                models.SwapStatusMatched,
			"matched_with":          req.ID,
			"matched_student_phone": phone,
			"matched_student_name":  name,
			"matched_student_email": req.StudentEmail,
		}

		if strict {
			for _, w := range []struct {
				id      uint
				updates map[string]interface{}
			}{{req.ID, own}, {matched.ID, mirror}} {
				ok, err := repo.UpdateIfStatus(ctx, w.id, models.SwapStatusOpen, w.updates)
				if err != nil {
					return err
				}
				if !ok {
					return confirmFailed("conflict", models.NewConflictError("Swap request is no longer open"))
				}
			}
		} else {
			if err := repo.Update(ctx, req.ID, own); err != nil {
				return err
			}
			if err := repo.Update(ctx, matched.ID, mirror); err != nil {
				return err
			}
		}

		if out.Request, err = repo.GetByID(ctx, req.ID); err != nil {
			return err
		}
		if out.Matched, err = repo.GetByID(ctx, matched.ID); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	observability.SwapTransitions.WithLabelValues(string(models.SwapStatusMatched)).Add(2)
	middleware.Logger.InfoContext(ctx, "swap confirmed",
		slog.Uint64("swap_request_id", uint64(out.Request.ID)),
		slog.Uint64("matched_request_id", uint64(out.Matched.ID)),
		slog.Bool("strict", strict),
	)
	return &out, nil
}

// GetCounterpartyContact returns the contact details of the student on the
// other side of the caller's confirmed swap. It never returns the caller's
// own details.
func (s *SwapService) GetCounterpartyContact(ctx context.Context, callerID, requestID uint) (*models.Contact, error) {
	req, err := s.swapRepo.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !req.OwnedBy(callerID) {
		return nil, models.NewForbiddenError(msgNotOwner)
	}
	if !req.Status.ContactRevealed() {
		return nil, models.NewInvalidStateError(msgConfirmFirst)
	}
	if req.MatchedWith == nil {
		return nil, &models.AppError{Code: models.CodeNotFound, Message: msgMatchedNotFound}
	}

	linked, err := s.swapRepo.GetByID(ctx, *req.MatchedWith)
	if err != nil {
		if models.IsCode(err, models.CodeNotFound) {
			return nil, &models.AppError{Code: models.CodeNotFound, Message: msgMatchedNotFound}
		}
		return nil, err
	}

	contact := models.ResolveCounterpartyContact(req, linked)
	return &contact, nil
}

// SwapCompletion holds the completed request and, when it was linked, its
// counterparty.
type SwapCompletion struct {
	Request *models.SwapRequest
	Linked  *models.SwapRequest
}

// CompleteSwap marks the caller's request completed, and its linked
// counterparty when one is set. A counterparty that no longer exists is
// skipped. With strict_swap_confirm on an open request cannot be completed.
func (s *SwapService) CompleteSwap(ctx context.Context, callerID, requestID uint) (*SwapCompletion, error) {
	strict := s.strict(callerID)
	span, ctx := observability.NewSpan(ctx, "swap.complete",
		attribute.Int64("swap.request_id", int64(requestID)),
		attribute.Bool("swap.strict", strict),
	)
	defer span.End()

	var out SwapCompletion
	err := s.swapRepo.WithinTransaction(ctx, func(repo repository.SwapRequestRepository) error {
		req, err := repo.GetByID(ctx, requestID)
		if err != nil {
			return err
		}
		if !req.OwnedBy(callerID) {
			return models.NewForbiddenError(msgNotOwner)
		}
		if strict && req.Status == models.SwapStatusOpen {
			return models.NewInvalidStateError(msgConfirmFirst)
		}

		done := map[string]interface{}{"status": models.SwapStatusCompleted}
		if err := repo.Update(ctx, req.ID, done); err != nil {
			return err
		}
		if out.Request, err = repo.GetByID(ctx, req.ID); err != nil {
			return err
		}

		if req.MatchedWith == nil {
			return nil
		}
		if err := repo.Update(ctx, *req.MatchedWith, done); err != nil {
			if models.IsCode(err, models.CodeNotFound) {
				return nil
			}
			return err
		}
		out.Linked, err = repo.GetByID(ctx, *req.MatchedWith)
		return err
	})
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	transitions := 1.0
	if out.Linked != nil {
		transitions++
	}
	observability.SwapTransitions.WithLabelValues(string(models.SwapStatusCompleted)).Add(transitions)
	middleware.Logger.InfoContext(ctx, "swap completed", slog.Uint64("swap_request_id", uint64(requestID)))
	return &out, nil
}

// DeleteSwapRequest removes the caller's request whatever its status.
func (s *SwapService) DeleteSwapRequest(ctx context.Context, callerID, requestID uint) error {
	req, err := s.swapRepo.GetByID(ctx, requestID)
	if err != nil {
		return err
	}
	if !req.OwnedBy(callerID) {
		return models.NewForbiddenError(msgNotOwner)
	}
	if err := s.swapRepo.Delete(ctx, requestID); err != nil {
		return err
	}
	middleware.Logger.InfoContext(ctx, "swap request deleted", slog.Uint64("swap_request_id", uint64(requestID)))
	return nil
}
