package domain

import (
	"context"
	"errors"

	cartdomain "github.com/shafran/commerce/internal/cart/domain"
	orderdomain "github.com/shafran/commerce/internal/order/domain"
	paymentdomain "github.com/shafran/commerce/internal/payment/domain"
)

type Service interface {
	// Checkout converts the identity's cart into an order with a
	// pending payment. Every write happens in one transaction; the
	// provider redirect is fetched after the commit.
	Checkout(ctx context.Context, identity cartdomain.Identity, req Request) (*Result, error)
}

type Request struct {
	PaymentMethod   string `json:"payment_method"`
	DeliveryAddress string `json:"delivery_address"`
	Phone           string `json:"phone"`
	ReturnURL       string `json:"return_url"`
}

type Result struct {
	Order      *orderdomain.Order     `json:"order"`
	Payment    *paymentdomain.Payment `json:"payment"`
	PaymentURL string                 `json:"payment_url,omitempty"`
}

var ErrUserRequired = errors.New("checkout_requires_user")
