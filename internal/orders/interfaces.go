package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-escrow/internal/shipping"
	"github.com/angelmondragon/packfinderz-escrow/pkg/db/models"
	"github.com/angelmondragon/packfinderz-escrow/pkg/outbox"
	"github.com/angelmondragon/packfinderz-escrow/pkg/pagination"
)

// Repository exposes persistence helpers for the order aggregate.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrder(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByPaymentReference(ctx context.Context, reference string) (*models.Order, error)
	LockByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	LockByPaymentReference(ctx context.Context, reference string) (*models.Order, error)
	FindSubOrder(ctx context.Context, id uuid.UUID) (*models.SubOrder, error)
	FindSubOrderByProviderRef(ctx context.Context, providerID, reference string) (*models.SubOrder, error)
	SaveAggregate(ctx context.Context, order *models.Order, changes *ChangeSet) error
	ListSubOrders(ctx context.Context, params pagination.Params, filters SubOrderFilters) (*SubOrderList, error)
	ListBuyerOrders(ctx context.Context, buyerID uuid.UUID, params pagination.Params, filters BuyerOrderFilters) (*BuyerOrderList, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type shippingProviders interface {
	Get(id string) (shipping.Provider, bool)
}

// OutcomeVerifier authenticates the payment outcome handed over at checkout.
type OutcomeVerifier interface {
	Verify(outcome PaymentOutcome) error
}
