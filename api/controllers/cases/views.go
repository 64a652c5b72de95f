package cases

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	internalcases "github.com/angelmondragon/packfinderz-escrow/internal/cases"
	"github.com/angelmondragon/packfinderz-escrow/pkg/db/models"
	"github.com/angelmondragon/packfinderz-escrow/pkg/enums"
)

type caseView struct {
	ID               uuid.UUID                `json:"id"`
	CaseNumber       string                   `json:"case_number"`
	SubOrderID       uuid.UUID                `json:"sub_order_id"`
	OrderID          uuid.UUID                `json:"order_id"`
	BuyerID          uuid.UUID                `json:"buyer_id"`
	SellerID         uuid.UUID                `json:"seller_id"`
	Type             enums.ReturnCaseType     `json:"type"`
	Status           enums.ReturnCaseStatus   `json:"status"`
	Reason           string                   `json:"reason"`
	Description      *string                  `json:"description,omitempty"`
	RequestedOn      time.Time                `json:"requested_on"`
	FirstRespondedOn *time.Time               `json:"first_responded_on,omitempty"`
	Outcome          *enums.ReturnCaseOutcome `json:"outcome,omitempty"`
	RefundAmount     *decimal.Decimal         `json:"refund_amount,omitempty"`
	ResolutionNote   *string                  `json:"resolution_note,omitempty"`
	ResolvedBy       *enums.ActorRole         `json:"resolved_by,omitempty"`
	ResolvedOn       *time.Time               `json:"resolved_on,omitempty"`
	Items            []caseItemView           `json:"items"`
	History          []caseHistoryView        `json:"history"`
	SLA              *internalcases.SLAStatus `json:"sla,omitempty"`
}

type caseItemView struct {
	OrderItemID uuid.UUID `json:"order_item_id"`
	Quantity    int       `json:"quantity"`
}

type caseHistoryView struct {
	Status    enums.ReturnCaseStatus `json:"status"`
	ActorRole enums.ActorRole        `json:"actor_role"`
	Note      *string                `json:"note,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

type messageView struct {
	ID         uuid.UUID       `json:"id"`
	AuthorID   uuid.UUID       `json:"author_id"`
	AuthorRole enums.ActorRole `json:"author_role"`
	Body       string          `json:"body"`
	CreatedAt  time.Time       `json:"created_at"`
}

func newCaseView(rc *models.ReturnCase, sla *internalcases.SLAStatus) caseView {
	view := caseView{
		ID:               rc.ID,
		CaseNumber:       rc.CaseNumber,
		SubOrderID:       rc.SubOrderID,
		OrderID:          rc.OrderID,
		BuyerID:          rc.BuyerID,
		SellerID:         rc.SellerID,
		Type:             rc.Type,
		Status:           rc.Status,
		Reason:           rc.Reason,
		Description:      rc.Description,
		RequestedOn:      rc.RequestedOn,
		FirstRespondedOn: rc.FirstRespondedOn,
		Outcome:          rc.Outcome,
		ResolutionNote:   rc.ResolutionNote,
		ResolvedBy:       rc.ResolvedBy,
		ResolvedOn:       rc.ResolvedOn,
		Items:            make([]caseItemView, 0, len(rc.Items)),
		History:          make([]caseHistoryView, 0, len(rc.History)),
		SLA:              sla,
	}
	if rc.RefundAmount.Valid {
		amount := rc.RefundAmount.Decimal
		view.RefundAmount = &amount
	}
	for _, item := range rc.Items {
		view.Items = append(view.Items, caseItemView{OrderItemID: item.OrderItemID, Quantity: item.Quantity})
	}
	for _, h := range rc.History {
		view.History = append(view.History, caseHistoryView{
			Status:    h.Status,
			ActorRole: h.ActorRole,
			Note:      h.Note,
			CreatedAt: h.CreatedAt,
		})
	}
	return view
}

func newMessageViews(messages []models.CaseMessage) []messageView {
	out := make([]messageView, 0, len(messages))
	for _, m := range messages {
		out = append(out, newMessageView(&m))
	}
	return out
}

func newMessageView(m *models.CaseMessage) messageView {
	return messageView{
		ID:         m.ID,
		AuthorID:   m.AuthorID,
		AuthorRole: m.AuthorRole,
		Body:       m.Body,
		CreatedAt:  m.CreatedAt,
	}
}
