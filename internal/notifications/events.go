package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"slotswap/internal/middleware"
	"slotswap/internal/models"
)

// Swap event types.
const (
	EventSwapMatched   = "swap_matched"
	EventSwapConfirmed = "swap_confirmed"
	EventSwapCompleted = "swap_completed"
)

// Event is the envelope written to websocket clients.
type Event struct {
	Type    string    `json:"type"`
	Payload SwapEvent `json:"payload"`
}

// SwapEvent identifies the records involved in a transition. It never
// carries contact details; clients re-fetch matched-contact instead.
type SwapEvent struct {
	RequestID        uint              `json:"requestId"`
	MatchedRequestID *uint             `json:"matchedRequestId,omitempty"`
	CourseCode       string            `json:"courseCode"`
	Status           models.SwapStatus `json:"status"`
}

func swapEvent(req *models.SwapRequest) SwapEvent {
	return SwapEvent{
		RequestID:        req.ID,
		MatchedRequestID: req.MatchedWith,
		CourseCode:       req.CourseCode,
		Status:           req.Status,
	}
}

// Encode marshals e into the wire form.
func (e Event) Encode() (string, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("marshal %s event: %w", e.Type, err)
	}
	return string(b), nil
}

// Dispatcher routes user events through Redis when it is configured and
// straight into the local hub otherwise.
type Dispatcher struct {
	hub      *Hub
	notifier *Notifier
}

// NewDispatcher returns a Dispatcher; either argument may be nil.
func NewDispatcher(hub *Hub, notifier *Notifier) *Dispatcher {
	return &Dispatcher{hub: hub, notifier: notifier}
}

// PublishUser delivers a pre-encoded message to every connection of userID.
func (d *Dispatcher) PublishUser(ctx context.Context, userID uint, message string) {
	if d == nil {
		return
	}
	if d.notifier.Enabled() {
		if err := d.notifier.PublishUser(ctx, userID, message); err != nil {
			middleware.Logger.WarnContext(ctx, "publish user event",
				slog.Uint64("user_id", uint64(userID)),
				slog.String("error", err.Error()),
			)
		}
		return
	}
	if d.hub != nil {
		d.hub.Deliver(userID, message)
	}
}

func (d *Dispatcher) send(ctx context.Context, userID uint, eventType string, req *models.SwapRequest) {
	msg, err := Event{Type: eventType, Payload: swapEvent(req)}.Encode()
	if err != nil {
		middleware.Logger.ErrorContext(ctx, "encode swap event", slog.String("error", err.Error()))
		return
	}
	d.PublishUser(ctx, userID, msg)
}

// SwapConfirmed tells the confirmer their request is matched and tells the
// counterparty someone matched with them.
func (d *Dispatcher) SwapConfirmed(ctx context.Context, own, counterparty *models.SwapRequest) {
	if d == nil || own == nil || counterparty == nil {
		return
	}
	d.send(ctx, own.StudentID, EventSwapConfirmed, own)
	if counterparty.StudentID != own.StudentID {
		d.send(ctx, counterparty.StudentID, EventSwapMatched, counterparty)
	}
}

// SwapCompleted tells both owners the swap is done. linked may be nil.
func (d *Dispatcher) SwapCompleted(ctx context.Context, own, linked *models.SwapRequest) {
	if d == nil || own == nil {
		return
	}
	d.send(ctx, own.StudentID, EventSwapCompleted, own)
	if linked != nil && linked.StudentID != own.StudentID {
		d.send(ctx, linked.StudentID, EventSwapCompleted, linked)
	}
}
