package service

import (
	"context"
	"strings"

	cartdomain "github.com/shafran/commerce/internal/cart/domain"
	catalogdomain "github.com/shafran/commerce/internal/catalog/domain"
	"github.com/shafran/commerce/internal/checkout/domain"
	"github.com/shafran/commerce/internal/config"
	"github.com/shafran/commerce/internal/notify"
	"github.com/shafran/commerce/internal/observability/metrics"
	orderdomain "github.com/shafran/commerce/internal/order/domain"
	paymentdomain "github.com/shafran/commerce/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Cart     cartdomain.Service
	Catalog  catalogdomain.Service
	Orders   orderdomain.Service
	Payments paymentdomain.Service
	Pricing  *config.PricingConfigHolder
	Notifier notify.Notifier
	Metrics  *metrics.Metrics `optional:"true"`
}

// Service runs the checkout saga. Pricing is read once per checkout so
// a config reload mid-flight cannot produce mixed totals.
type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	cart     cartdomain.Service
	catalog  catalogdomain.Service
	orders   orderdomain.Service
	payments paymentdomain.Service
	pricing  *config.PricingConfigHolder
	notifier notify.Notifier
	metrics  *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("checkout.service"),
		cart:     p.Cart,
		catalog:  p.Catalog,
		orders:   p.Orders,
		payments: p.Payments,
		pricing:  p.Pricing,
		notifier: p.Notifier,
		metrics:  p.Metrics,
	}
}

// pricedLine is one cart line with its frozen snapshot and money.
type pricedLine struct {
	item     orderdomain.OrderItem
	subtotal int64
}

func (s *Service) Checkout(ctx context.Context, identity cartdomain.Identity, req domain.Request) (*domain.Result, error) {
	if !identity.Valid() {
		return nil, cartdomain.ErrInvalidIdentity
	}
	if identity.UserID == nil || *identity.UserID == 0 {
		return nil, domain.ErrUserRequired
	}
	userID := *identity.UserID

	address := strings.TrimSpace(req.DeliveryAddress)
	if address == "" {
		return nil, orderdomain.ErrInvalidAddress
	}
	method, err := paymentdomain.ParseMethod(req.PaymentMethod)
	if err != nil {
		return nil, err
	}

	view, err := s.cart.GetOrCreate(ctx, identity)
	if err != nil {
		return nil, err
	}
	if len(view.Items) == 0 {
		s.metrics.RecordCheckout("empty_cart")
		return nil, cartdomain.ErrEmptyCart
	}

	pricing := s.pricing.Get()

	lines, subtotal, assemblyTotal, err := s.priceCart(ctx, view.Items, pricing)
	if err != nil {
		s.metrics.RecordCheckout("rejected")
		return nil, err
	}

	vat := roundPercent(subtotal, pricing.VATPercent)
	delivery := pricing.DeliveryPrice
	if subtotal >= pricing.FreeDeliveryThreshold {
		delivery = 0
	}
	grandTotal := subtotal + vat + assemblyTotal + delivery

	items := make([]orderdomain.OrderItem, 0, len(lines))
	reservations := make([]catalogdomain.ReservationLine, 0, len(lines))
	for _, line := range lines {
		items = append(items, line.item)
		reservations = append(reservations, catalogdomain.ReservationLine{
			ProductID: line.item.ProductID,
			VariantID: line.item.VariantID,
			Quantity:  line.item.Quantity,
		})
	}

	var (
		order   *orderdomain.Order
		payment *paymentdomain.Payment
	)
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.catalog.ReserveStock(ctx, tx, reservations); err != nil {
			return err
		}

		order, err = s.orders.Create(ctx, tx, orderdomain.Draft{
			UserID:          userID,
			Items:           items,
			Subtotal:        subtotal,
			VATAmount:       vat,
			AssemblyTotal:   assemblyTotal,
			DeliveryPrice:   delivery,
			GrandTotal:      grandTotal,
			Currency:        pricing.Currency,
			PaymentMethod:   string(method),
			DeliveryAddress: address,
		})
		if err != nil {
			return err
		}

		payment, err = s.payments.CreatePending(ctx, tx, paymentdomain.PendingDraft{
			UserID:   userID,
			OrderID:  order.ID,
			Amount:   grandTotal,
			Currency: pricing.Currency,
			Method:   method,
		})
		if err != nil {
			return err
		}

		if err := s.orders.AttachPayment(ctx, tx, order.ID, payment.ID); err != nil {
			return err
		}
		return s.cart.Clear(ctx, tx, identity)
	})
	if err != nil {
		s.metrics.RecordCheckout("failed")
		return nil, err
	}

	s.metrics.RecordCheckout("success")
	s.notifier.Notify(ctx, notify.Event{
		Kind:    "order_created",
		OrderID: order.Number,
		Amount:  grandTotal,
		Detail:  string(method),
	})

	result := &domain.Result{Order: order, Payment: payment}

	// The committed order must survive a provider outage; the pending
	// payment is picked up by reconciliation or a status poll.
	intent, err := s.payments.Initiate(ctx, payment.ID, paymentdomain.InitiateOptions{
		Description: "Order " + order.Number,
		ReturnURL:   req.ReturnURL,
		Phone:       req.Phone,
	})
	if err != nil {
		s.log.Warn("payment initiation failed after commit",
			zap.String("order_number", order.Number),
			zap.String("payment_id", payment.ID.String()),
			zap.Error(err),
		)
		return result, nil
	}
	result.Payment = intent.Payment
	result.PaymentURL = intent.PaymentURL
	return result, nil
}

// priceCart freezes the purchasable snapshot for every cart line.
// Stock is only pre-checked here; the conditional UPDATE inside the
// transaction is what actually decides contended checkouts.
func (s *Service) priceCart(ctx context.Context, items []cartdomain.CartItem, pricing config.PricingConfig) ([]pricedLine, int64, int64, error) {
	var (
		lines         []pricedLine
		subtotal      int64
		assemblyTotal int64
	)
	for _, item := range items {
		product, err := s.catalog.GetProduct(ctx, item.ProductID)
		if err != nil {
			return nil, 0, 0, err
		}
		if !product.Active {
			return nil, 0, 0, catalogdomain.ErrProductInactive
		}

		variant, err := s.catalog.GetVariant(ctx, item.VariantID)
		if err != nil {
			return nil, 0, 0, err
		}
		if variant.ProductID != product.ID {
			return nil, 0, 0, catalogdomain.ErrVariantNotFound
		}
		if !variant.Active {
			return nil, 0, 0, catalogdomain.ErrVariantInactive
		}
		if variant.Stock < item.Quantity {
			return nil, 0, 0, catalogdomain.ErrInsufficientStock
		}

		lineSubtotal := variant.Price * item.Quantity

		var assemblyFee int64
		assemblySelected := item.AssemblySelected && product.AssemblyAvailable
		if assemblySelected {
			assemblyFee = roundPercent(lineSubtotal, pricing.AssemblyFeePercent)
		}

		lines = append(lines, pricedLine{
			item: orderdomain.OrderItem{
				ProductID:        product.ID,
				VariantID:        variant.ID,
				Name:             product.Name,
				SKU:              variant.SKU,
				UnitPrice:        variant.Price,
				Quantity:         item.Quantity,
				AssemblySelected: assemblySelected,
				AssemblyFee:      assemblyFee,
			},
			subtotal: lineSubtotal,
		})
		subtotal += lineSubtotal
		assemblyTotal += assemblyFee
	}
	return lines, subtotal, assemblyTotal, nil
}

// roundPercent computes amount*percent/100 rounded half up, all in
// integer minor units.
func roundPercent(amount, percent int64) int64 {
	return (amount*percent + 50) / 100
}
