package domain

import "time"

type UserRole string

const (
	RoleShop  UserRole = "shop"
	RoleBuyer UserRole = "buyer"
)

// User is a buyer or shop-owner account. Email is the authentication key.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         UserRole  `json:"role"`
	Active       bool      `json:"active"`
	Company      string    `json:"company,omitempty"`
	Position     string    `json:"position,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Shop is a vendor storefront owned by a single shop-role user.
type Shop struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	URL          string    `json:"url,omitempty"`
	OwnerID      string    `json:"ownerId"`
	Accepting    bool      `json:"accepting"`
	PriceListKey string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Product struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	CategoryID string `json:"categoryId"`
}

// Listing is one shop's offer for one product: price, stock, and model label.
// At most one listing exists per (product, shop) pair.
type Listing struct {
	ID        string    `json:"id"`
	ProductID string    `json:"productId"`
	ShopID    string    `json:"shopId"`
	Model     string    `json:"model,omitempty"`
	Quantity  int       `json:"quantity"`
	Price     int64     `json:"price"`
	PriceRRC  int64     `json:"priceRrc"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Parameter is an entry in the global vocabulary of specification names.
type Parameter struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ProductParameter holds one product's value for one parameter.
// At most one value exists per (product, parameter) pair.
type ProductParameter struct {
	ProductID   string `json:"productId"`
	ParameterID string `json:"parameterId"`
	Name        string `json:"name,omitempty"`
	Value       string `json:"value"`
}

// Order is the status-bearing aggregate. An order in StatusBasket is the
// user's basket; line items are mutable only in that status.
type Order struct {
	ID        string      `json:"id"`
	UserID    string      `json:"userId"`
	ContactID string      `json:"contactId,omitempty"`
	Status    OrderStatus `json:"status"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// OrderItem binds an order to a listing with a price snapshot taken at
// add-to-basket time. Later listing price changes never alter existing lines.
type OrderItem struct {
	ID          string `json:"id"`
	OrderID     string `json:"orderId"`
	ListingID   string `json:"listingId"`
	Quantity    int    `json:"quantity"`
	Price       int64  `json:"price"`
	TotalAmount int64  `json:"totalAmount"`
}

// Contact is a delivery address bound to a user.
type Contact struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	City      string    `json:"city"`
	Street    string    `json:"street"`
	House     string    `json:"house,omitempty"`
	Structure string    `json:"structure,omitempty"`
	Building  string    `json:"building,omitempty"`
	Apartment string    `json:"apartment,omitempty"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"createdAt"`
}

// LineTotal computes the derived total for a quantity at a snapshot price.
func LineTotal(price int64, quantity int) int64 {
	return price * int64(quantity)
}
