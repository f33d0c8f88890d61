package store

import (
	"time"

	"markethub/pkg/domain"
)

// OutboxEvent is a domain event recorded transactionally with the write that
// produced it, and relayed to the broker afterwards.
type OutboxEvent struct {
	ID        string
	Kind      string
	Payload   []byte
	CreatedAt time.Time
}

// Store defines persistence operations for identity, catalog, and orders.
//
// Mutations that span several checks (uniqueness, stock, status legality)
// execute atomically; callers never observe a constraint check separated
// from its write. Failures use the sentinel errors from pkg/domain.
type Store interface {
	// users
	CreateUser(domain.User) error
	SaveUser(domain.User) error
	GetUserByEmail(email string) (domain.User, bool, error)
	GetUserByID(id string) (domain.User, bool, error)
	ActivateUser(id string) error

	// contacts
	CreateContact(domain.Contact) error
	GetContact(id string) (domain.Contact, bool, error)
	ListContactsByUser(userID string) ([]domain.Contact, error)
	DeleteContact(id, userID string) error

	// shops
	CreateShop(domain.Shop) error
	GetShop(id string) (domain.Shop, bool, error)
	GetShopByOwner(ownerID string) (domain.Shop, bool, error)
	ListShops() ([]domain.Shop, error)
	SetShopAccepting(id string, accepting bool) error
	SetShopPriceListKey(id, key string) error

	// categories and products
	CreateCategory(domain.Category) error
	ListCategories() ([]domain.Category, error)
	AssignCategoryToShop(categoryID, shopID string) error
	CreateProduct(domain.Product) error
	GetProduct(id string) (domain.Product, bool, error)

	// listings and parameters
	CreateListing(domain.Listing) error
	UpsertListing(domain.Listing) error
	FindListing(productID, shopID string) (domain.Listing, bool, error)
	GetListing(id string) (domain.Listing, bool, error)
	ListListingsByShop(shopID string) ([]domain.Listing, error)
	CreateParameter(domain.Parameter) error
	ListParameters() ([]domain.Parameter, error)
	SetParameterValue(productID, parameterID, value string) error
	ListProductParameters(productID string) ([]domain.ProductParameter, error)

	// orders
	GetOrCreateBasket(userID string) (domain.Order, error)
	GetOrder(id string) (domain.Order, bool, error)
	ListOrdersByUser(userID string) ([]domain.Order, error)
	ListOrderItems(orderID string) ([]domain.OrderItem, error)
	AddOrderItem(orderID, listingID string, quantity int) (domain.OrderItem, error)
	UpdateOrderItemQuantity(orderID, listingID string, quantity int) (domain.OrderItem, error)
	RemoveOrderItem(orderID, listingID string) error
	SetOrderContact(orderID, contactID string) error
	TransitionOrder(orderID string, next domain.OrderStatus) (domain.Order, error)
	OrderTotal(orderID string) (int64, error)

	// outbox
	PendingOutboxEvents(limit int) ([]OutboxEvent, error)
	MarkOutboxPublished(ids []string) error
}

// SessionStore persists session tokens.
type SessionStore interface {
	NewSession(userID string) (string, error)
	GetUserIDByToken(token string) (string, bool, error)
	DeleteSession(token string) error
}

// ActivationStore issues and redeems one-shot account activation tokens.
type ActivationStore interface {
	NewActivationToken(userID string, ttl time.Duration) (string, error)
	RedeemActivationToken(token string) (string, bool, error)
}
