package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Cart belongs to exactly one identity: a registered user or an
// anonymous guest token.
type Cart struct {
	ID         snowflake.ID  `json:"id" gorm:"primaryKey"`
	UserID     *snowflake.ID `json:"user_id,omitempty" gorm:"uniqueIndex"`
	GuestToken *string       `json:"guest_token,omitempty" gorm:"type:text;uniqueIndex"`
	CreatedAt  time.Time     `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt  time.Time     `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Cart) TableName() string { return "carts" }

type CartItem struct {
	ID               snowflake.ID `json:"id" gorm:"primaryKey"`
	CartID           snowflake.ID `json:"cart_id" gorm:"not null;index"`
	ProductID        snowflake.ID `json:"product_id" gorm:"not null"`
	VariantID        snowflake.ID `json:"variant_id" gorm:"not null"`
	Quantity         int64        `json:"quantity" gorm:"not null"`
	AssemblySelected bool         `json:"assembly_selected" gorm:"not null;default:false"`
	CreatedAt        time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt        time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (CartItem) TableName() string { return "cart_items" }

// Identity names the cart owner. Exactly one field must be set.
type Identity struct {
	UserID     *snowflake.ID
	GuestToken string
}

func (i Identity) Valid() bool {
	hasUser := i.UserID != nil && *i.UserID != 0
	hasGuest := i.GuestToken != ""
	return hasUser != hasGuest
}
