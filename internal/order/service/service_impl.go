package service

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	catalogdomain "github.com/shafran/commerce/internal/catalog/domain"
	"github.com/shafran/commerce/internal/clock"
	"github.com/shafran/commerce/internal/order/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    domain.Repository
	Catalog catalogdomain.Service
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    domain.Repository
	catalog catalogdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("order.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		catalog: p.Catalog,
	}
}

func (s *Service) Create(ctx context.Context, tx *gorm.DB, draft domain.Draft) (*domain.Order, error) {
	if len(draft.Items) == 0 {
		return nil, domain.ErrEmptyOrder
	}
	if strings.TrimSpace(draft.DeliveryAddress) == "" {
		return nil, domain.ErrInvalidAddress
	}
	if draft.GrandTotal != draft.Subtotal+draft.VATAmount+draft.AssemblyTotal+draft.DeliveryPrice {
		return nil, domain.ErrInvalidTotals
	}

	itemsJSON, err := json.Marshal(draft.Items)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	order := &domain.Order{
		ID:                s.genID.Generate(),
		Number:            "SO-" + ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		UserID:            draft.UserID,
		Items:             itemsJSON,
		Subtotal:          draft.Subtotal,
		VATAmount:         draft.VATAmount,
		AssemblyTotal:     draft.AssemblyTotal,
		DeliveryPrice:     draft.DeliveryPrice,
		GrandTotal:        draft.GrandTotal,
		Currency:          draft.Currency,
		PaymentMethod:     draft.PaymentMethod,
		PaymentStatus:     "pending",
		FulfillmentStatus: domain.FulfillmentNew,
		DeliveryAddress:   strings.TrimSpace(draft.DeliveryAddress),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.repo.Create(ctx, tx, order); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Order, error) {
	order, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}
	return order, nil
}

func (s *Service) GetByNumber(ctx context.Context, number string) (*domain.Order, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return nil, domain.ErrInvalidOrderNumber
	}
	order, err := s.repo.FindByNumber(ctx, s.db, number)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}
	return order, nil
}

func (s *Service) ListUserOrders(ctx context.Context, userID snowflake.ID) ([]domain.Order, error) {
	return s.repo.ListByUserID(ctx, s.db, userID)
}

func (s *Service) AttachPayment(ctx context.Context, tx *gorm.DB, orderID, paymentID snowflake.ID) error {
	return s.repo.AttachPayment(ctx, tx, orderID, paymentID)
}

func (s *Service) SetPaymentStatus(ctx context.Context, db *gorm.DB, orderID snowflake.ID, status string) error {
	if db == nil {
		db = s.db
	}
	return s.repo.UpdatePaymentStatus(ctx, db, orderID, status)
}

func (s *Service) AdvanceFulfillment(ctx context.Context, orderID snowflake.ID, next domain.FulfillmentStatus) (*domain.Order, error) {
	order, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.FulfillmentStatus.CanTransition(next) {
		return nil, domain.ErrInvalidTransition
	}

	ok, err := s.repo.UpdateFulfillment(ctx, s.db, orderID, order.FulfillmentStatus, next)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Lost the race against another transition.
		return nil, domain.ErrInvalidTransition
	}
	return s.Get(ctx, orderID)
}

func (s *Service) Cancel(ctx context.Context, orderID snowflake.ID) (*domain.Order, error) {
	order, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.FulfillmentStatus.CanTransition(domain.FulfillmentCancelled) {
		return nil, domain.ErrCancelNotAllowed
	}

	var items []domain.OrderItem
	if err := json.Unmarshal(order.Items, &items); err != nil {
		return nil, err
	}
	lines := make([]catalogdomain.ReservationLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, catalogdomain.ReservationLine{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
		})
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		ok, err := s.repo.UpdateFulfillment(ctx, tx, orderID, order.FulfillmentStatus, domain.FulfillmentCancelled)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrCancelNotAllowed
		}
		return s.catalog.ReleaseStock(ctx, tx, lines)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("order cancelled",
		zap.String("order_number", order.Number),
		zap.Int64("order_id", orderID.Int64()),
	)
	return s.Get(ctx, orderID)
}
