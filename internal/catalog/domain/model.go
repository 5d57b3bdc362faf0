package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Product struct {
	ID                snowflake.ID      `json:"id" gorm:"primaryKey"`
	Code              string            `json:"code" gorm:"type:text;not null;uniqueIndex"`
	Name              string            `json:"name" gorm:"type:text;not null"`
	Description       *string           `json:"description,omitempty" gorm:"type:text"`
	Active            bool              `json:"active" gorm:"not null;default:true"`
	AssemblyAvailable bool              `json:"assembly_available" gorm:"not null;default:false"`
	Metadata          datatypes.JSONMap `json:"metadata,omitempty" gorm:"type:jsonb"`
	CreatedAt         time.Time         `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt         time.Time         `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Product) TableName() string { return "products" }

// Variant is one purchasable configuration of a product. Price is in
// integer minor currency units; stock must never go negative.
type Variant struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	ProductID snowflake.ID `json:"product_id" gorm:"not null;index"`
	SKU       string       `json:"sku" gorm:"type:text;not null"`
	Price     int64        `json:"price" gorm:"not null"`
	Stock     int64        `json:"stock" gorm:"not null;default:0"`
	Active    bool         `json:"active" gorm:"not null;default:true"`
	CreatedAt time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Variant) TableName() string { return "product_variants" }

// ReservationLine is one cart line to reserve or release.
type ReservationLine struct {
	ProductID snowflake.ID
	VariantID snowflake.ID
	Quantity  int64
}
