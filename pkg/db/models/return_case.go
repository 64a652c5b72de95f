package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/packfinderz-escrow/pkg/enums"
)

// ReturnCase is a return or complaint opened against a delivered sub-order.
type ReturnCase struct {
	ID                 uuid.UUID                `gorm:"column:id;type:uuid;primaryKey"`
	CaseNumber         string                   `gorm:"column:case_number;not null;uniqueIndex:ux_return_cases_number"`
	SubOrderID         uuid.UUID                `gorm:"column:sub_order_id;type:uuid;not null;uniqueIndex:ux_return_cases_sub_order"`
	OrderID            uuid.UUID                `gorm:"column:order_id;type:uuid;not null;index"`
	BuyerID            uuid.UUID                `gorm:"column:buyer_id;type:uuid;not null;index"`
	SellerID           uuid.UUID                `gorm:"column:seller_id;type:uuid;not null;index"`
	Type               enums.ReturnCaseType     `gorm:"column:type;type:text;not null"`
	Status             enums.ReturnCaseStatus   `gorm:"column:status;type:text;not null"`
	Reason             string                   `gorm:"column:reason;not null"`
	Description        *string                  `gorm:"column:description"`
	RequestedOn        time.Time                `gorm:"column:requested_on;not null"`
	FirstResponseDueOn time.Time                `gorm:"column:first_response_due_on;not null"`
	ResolutionDueOn    time.Time                `gorm:"column:resolution_due_on;not null"`
	FirstRespondedOn   *time.Time               `gorm:"column:first_responded_on"`
	Outcome            *enums.ReturnCaseOutcome `gorm:"column:outcome;type:text"`
	RefundAmount       decimal.NullDecimal      `gorm:"column:refund_amount;type:numeric(12,2)"`
	PaymentReference   *string                  `gorm:"column:payment_reference"`
	ResolutionNote     *string                  `gorm:"column:resolution_note"`
	ResolvedBy         *enums.ActorRole         `gorm:"column:resolved_by;type:text"`
	ResolvedOn         *time.Time               `gorm:"column:resolved_on"`
	Items              []ReturnCaseItem         `gorm:"foreignKey:ReturnCaseID"`
	History            []ReturnCaseHistory      `gorm:"foreignKey:ReturnCaseID"`
	Messages           []CaseMessage            `gorm:"foreignKey:ReturnCaseID"`
	CreatedAt          time.Time                `gorm:"column:created_at"`
	UpdatedAt          time.Time                `gorm:"column:updated_at"`
}

// ReturnCaseItem scopes a case to specific order items and quantities.
type ReturnCaseItem struct {
	ID           uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ReturnCaseID uuid.UUID `gorm:"column:return_case_id;type:uuid;not null;index"`
	OrderItemID  uuid.UUID `gorm:"column:order_item_id;type:uuid;not null"`
	Quantity     int       `gorm:"column:quantity;not null"`
}

// ReturnCaseHistory records each case status change.
type ReturnCaseHistory struct {
	ID           uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	ReturnCaseID uuid.UUID              `gorm:"column:return_case_id;type:uuid;not null;index"`
	Status       enums.ReturnCaseStatus `gorm:"column:status;type:text;not null"`
	ActorRole    enums.ActorRole        `gorm:"column:actor_role;type:text;not null"`
	Note         *string                `gorm:"column:note"`
	CreatedAt    time.Time              `gorm:"column:created_at"`
}

func (ReturnCaseHistory) TableName() string {
	return "return_case_history"
}

// CaseMessage is one entry of the thread shared by buyer, seller and admin.
type CaseMessage struct {
	ID           uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	ReturnCaseID uuid.UUID       `gorm:"column:return_case_id;type:uuid;not null;index"`
	AuthorID     uuid.UUID       `gorm:"column:author_id;type:uuid;not null"`
	AuthorRole   enums.ActorRole `gorm:"column:author_role;type:text;not null"`
	Body         string          `gorm:"column:body;not null"`
	CreatedAt    time.Time       `gorm:"column:created_at"`
}
