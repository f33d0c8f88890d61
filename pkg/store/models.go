package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence. Uniqueness lives here as database
// constraints; store operations pre-check inside the same transaction.
type UserModel struct {
	ID           string `gorm:"primaryKey"`
	Email        string `gorm:"uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	Role         string `gorm:"not null"`
	Active       bool   `gorm:"not null;default:false"`
	Company      string
	Position     string
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time
}

type ShopModel struct {
	ID           string `gorm:"primaryKey"`
	Name         string `gorm:"not null"`
	URL          string
	OwnerID      string `gorm:"uniqueIndex;not null"`
	Accepting    bool   `gorm:"not null;default:true"`
	PriceListKey string
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time
}

type CategoryModel struct {
	ID   string `gorm:"primaryKey"`
	Name string `gorm:"uniqueIndex;not null"`
}

// ShopCategoryModel is the shop<->category join table.
type ShopCategoryModel struct {
	ShopID     string `gorm:"primaryKey"`
	CategoryID string `gorm:"primaryKey"`
}

type ProductModel struct {
	ID         string `gorm:"primaryKey"`
	Name       string `gorm:"not null"`
	CategoryID string `gorm:"not null;index"`
}

// ListingModel is one shop's offer for one product. The composite unique
// index is the tuple a basket line references.
type ListingModel struct {
	ID        string `gorm:"primaryKey"`
	ProductID string `gorm:"not null;uniqueIndex:idx_listing_product_shop"`
	ShopID    string `gorm:"not null;uniqueIndex:idx_listing_product_shop;index"`
	Model     string
	Quantity  int       `gorm:"not null;check:quantity >= 0"`
	Price     int64     `gorm:"not null;check:price >= 0"`
	PriceRRC  int64     `gorm:"not null;check:price_rrc >= 0"`
	UpdatedAt time.Time `gorm:"not null"`
}

type ParameterModel struct {
	ID   string `gorm:"primaryKey"`
	Name string `gorm:"uniqueIndex;not null"`
}

// ProductParameterModel keys on (product, parameter): one value per pair.
type ProductParameterModel struct {
	ProductID   string `gorm:"primaryKey"`
	ParameterID string `gorm:"primaryKey"`
	Value       string `gorm:"not null"`
}

type OrderModel struct {
	ID        string  `gorm:"primaryKey"`
	UserID    string  `gorm:"not null;index"`
	ContactID *string `gorm:"index"`
	Status    string  `gorm:"not null;index"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time
}

// OrderItemModel snapshots price at add-to-basket time; total_amount is
// recomputed from price and quantity on every write.
type OrderItemModel struct {
	ID          string `gorm:"primaryKey"`
	OrderID     string `gorm:"not null;uniqueIndex:idx_order_item_order_listing"`
	ListingID   string `gorm:"not null;uniqueIndex:idx_order_item_order_listing;index"`
	Quantity    int    `gorm:"not null;check:quantity >= 1"`
	Price       int64  `gorm:"not null;check:price >= 0"`
	TotalAmount int64  `gorm:"not null"`
}

type ContactModel struct {
	ID        string `gorm:"primaryKey"`
	UserID    string `gorm:"not null;index"`
	City      string `gorm:"not null"`
	Street    string `gorm:"not null"`
	House     string
	Structure string
	Building  string
	Apartment string
	Phone     string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
}

type OutboxEventModel struct {
	ID          string         `gorm:"primaryKey"`
	Kind        string         `gorm:"not null"`
	Payload     datatypes.JSON `gorm:"type:jsonb"`
	PublishedAt *time.Time     `gorm:"index"`
	CreatedAt   time.Time      `gorm:"not null;index"`
}
