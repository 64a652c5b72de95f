package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-escrow/api/responses"
	"github.com/angelmondragon/packfinderz-escrow/api/validators"
	"github.com/angelmondragon/packfinderz-escrow/pkg/db/models"
	"github.com/angelmondragon/packfinderz-escrow/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-escrow/pkg/errors"
	"github.com/angelmondragon/packfinderz-escrow/pkg/logger"
	pkgoutbox "github.com/angelmondragon/packfinderz-escrow/pkg/outbox"
	"github.com/angelmondragon/packfinderz-escrow/pkg/pagination"
)

// DeadLetterStore is the slice of the DLQ repository the admin surface uses.
type DeadLetterStore interface {
	List(ctx context.Context, filter pkgoutbox.DLQFilter) ([]models.OutboxDLQ, error)
	Requeue(ctx context.Context, dlqID uuid.UUID) (uuid.UUID, error)
}

type deadLetterView struct {
	ID            uuid.UUID                  `json:"id"`
	EventID       uuid.UUID                  `json:"event_id"`
	EventType     enums.OutboxEventType      `json:"event_type"`
	AggregateType enums.OutboxAggregateType  `json:"aggregate_type"`
	AggregateID   uuid.UUID                  `json:"aggregate_id"`
	ErrorReason   enums.OutboxDLQErrorReason `json:"error_reason"`
	ErrorMessage  *string                    `json:"error_message,omitempty"`
	AttemptCount  int                        `json:"attempt_count"`
	FailedAt      time.Time                  `json:"failed_at"`
	Payload       json.RawMessage            `json:"payload"`
}

// ListDeadLetters returns dead-lettered outbox events newest first, filtered
// by event_type, reason and aggregate_id.
func ListDeadLetters(store DeadLetterStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "dead letter store unavailable"))
			return
		}
		filter, err := parseFilter(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, err := store.List(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list dead letters"))
			return
		}
		out := make([]deadLetterView, 0, len(rows))
		for _, row := range rows {
			out = append(out, deadLetterView{
				ID:            row.ID,
				EventID:       row.EventID,
				EventType:     row.EventType,
				AggregateType: row.AggregateType,
				AggregateID:   row.AggregateID,
				ErrorReason:   row.ErrorReason,
				ErrorMessage:  row.ErrorMessage,
				AttemptCount:  row.AttemptCount,
				FailedAt:      row.FailedAt,
				Payload:       row.Payload,
			})
		}
		responses.WriteSuccess(w, map[string]any{"dead_letters": out})
	}
}

// RequeueDeadLetter hands one dead letter back to the outbox publisher.
func RequeueDeadLetter(store DeadLetterStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "dead letter store unavailable"))
			return
		}
		dlqID, err := validators.ParsePathUUID(r, "dlqId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		eventID, err := store.Requeue(r.Context(), dlqID)
		switch {
		case errors.Is(err, pkgoutbox.ErrDeadLetterNotFound):
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "dead letter not found"))
			return
		case err != nil:
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "requeue dead letter"))
			return
		}
		ctx := logg.WithFields(r.Context(), map[string]any{"dlq_id": dlqID.String(), "outbox_id": eventID.String()})
		logg.Info(ctx, "dead letter requeued")
		responses.WriteSuccess(w, map[string]any{"outbox_id": eventID, "requeued": true})
	}
}

func parseFilter(r *http.Request) (pkgoutbox.DLQFilter, error) {
	var filter pkgoutbox.DLQFilter
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return filter, err
	}
	filter.Limit = limit

	if raw := validators.ParseQueryString(r, "event_type", 64); raw != nil {
		eventType, err := enums.ParseOutboxEventType(*raw)
		if err != nil {
			return filter, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid event_type")
		}
		filter.EventType = eventType
	}
	reason, err := enums.ParseOutboxDLQErrorReason(r.URL.Query().Get("reason"))
	if err != nil {
		return filter, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid reason")
	}
	filter.ErrorReason = reason

	if filter.AggregateID, err = validators.ParseQueryUUID(r, "aggregate_id"); err != nil {
		return filter, err
	}
	return filter, nil
}
