package app

import (
	"fmt"

	"markethub/pkg/domain"
	"markethub/pkg/store"
)

// Config holds runtime configuration for the order application.
type Config struct {
	DatabaseURL string
	Store       store.Store
}

// App drives baskets and the order lifecycle. Every user owns at most one
// basket-status order; checkout moves it to new and a fresh basket is
// created on the next item add.
type App struct {
	store store.Store
}

// New constructs the order application.
func New(cfg Config) (*App, error) {
	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}
	return &App{store: dataStore}, nil
}

// UserByID resolves the acting user for request authorization.
func (a *App) UserByID(id string) (domain.User, bool) {
	user, ok, err := a.store.GetUserByID(id)
	if err != nil || !ok || !user.Active {
		return domain.User{}, false
	}
	return user, true
}

// ItemView is an order line with product context for display.
type ItemView struct {
	domain.OrderItem
	ProductID   string `json:"productId"`
	ProductName string `json:"productName"`
	ShopID      string `json:"shopId"`
}

// OrderView is an order with its lines and derived total.
type OrderView struct {
	Order domain.Order `json:"order"`
	Items []ItemView   `json:"items"`
	Total int64        `json:"total"`
}

// Basket returns the user's current basket, creating an empty one if none
// exists.
func (a *App) Basket(user domain.User) (OrderView, error) {
	basket, err := a.store.GetOrCreateBasket(user.ID)
	if err != nil {
		return OrderView{}, err
	}
	return a.orderView(basket)
}

// AddItem puts quantity units of a listing into the user's basket. Re-adding
// a listing already in the basket combines quantities; the combined amount
// must stay within the listing's stock.
func (a *App) AddItem(user domain.User, listingID string, quantity int) (domain.OrderItem, error) {
	if quantity < 1 {
		return domain.OrderItem{}, ErrQuantityRequired
	}
	listing, ok, err := a.store.GetListing(listingID)
	if err != nil {
		return domain.OrderItem{}, fmt.Errorf("fetch listing: %w", err)
	}
	if !ok {
		return domain.OrderItem{}, domain.ErrNotFound
	}
	shop, ok, err := a.store.GetShop(listing.ShopID)
	if err != nil {
		return domain.OrderItem{}, fmt.Errorf("fetch shop: %w", err)
	}
	if ok && !shop.Accepting {
		return domain.OrderItem{}, ErrShopNotAccepting
	}
	basket, err := a.store.GetOrCreateBasket(user.ID)
	if err != nil {
		return domain.OrderItem{}, err
	}
	return a.store.AddOrderItem(basket.ID, listingID, quantity)
}

// UpdateItem sets the quantity of a basket line.
func (a *App) UpdateItem(user domain.User, listingID string, quantity int) (domain.OrderItem, error) {
	if quantity < 1 {
		return domain.OrderItem{}, ErrQuantityRequired
	}
	basket, err := a.store.GetOrCreateBasket(user.ID)
	if err != nil {
		return domain.OrderItem{}, err
	}
	return a.store.UpdateOrderItemQuantity(basket.ID, listingID, quantity)
}

// RemoveItem drops a listing from the user's basket.
func (a *App) RemoveItem(user domain.User, listingID string) error {
	basket, err := a.store.GetOrCreateBasket(user.ID)
	if err != nil {
		return err
	}
	return a.store.RemoveOrderItem(basket.ID, listingID)
}

// SetContact binds one of the user's delivery contacts to the basket.
func (a *App) SetContact(user domain.User, contactID string) error {
	basket, err := a.store.GetOrCreateBasket(user.ID)
	if err != nil {
		return err
	}
	return a.store.SetOrderContact(basket.ID, contactID)
}

// Checkout places the basket: it becomes an order in status new. The store
// refuses a basket without lines or without a bound contact.
func (a *App) Checkout(user domain.User) (domain.Order, error) {
	basket, err := a.store.GetOrCreateBasket(user.ID)
	if err != nil {
		return domain.Order{}, err
	}
	return a.store.TransitionOrder(basket.ID, domain.StatusNew)
}

// Orders lists the user's placed orders, newest first. Baskets are not
// included.
func (a *App) Orders(user domain.User) ([]OrderView, error) {
	orders, err := a.store.ListOrdersByUser(user.ID)
	if err != nil {
		return nil, fmt.Errorf("fetch orders: %w", err)
	}
	views := make([]OrderView, 0, len(orders))
	for _, order := range orders {
		if order.Status == domain.StatusBasket {
			continue
		}
		view, err := a.orderView(order)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

// Order returns one order with lines and total. The owner sees their own
// orders; shop-role accounts see any order for fulfillment.
func (a *App) Order(actor domain.User, orderID string) (OrderView, error) {
	order, ok, err := a.store.GetOrder(orderID)
	if err != nil {
		return OrderView{}, fmt.Errorf("fetch order: %w", err)
	}
	if !ok {
		return OrderView{}, domain.ErrNotFound
	}
	if order.UserID != actor.ID && actor.Role != domain.RoleShop {
		return OrderView{}, ErrNotOrderOwner
	}
	return a.orderView(order)
}

// SetStatus advances an order along the fulfillment path. Forward moves
// (confirmed, assembled, sent, delivered) require a shop-role actor; a
// cancel is allowed to the owner as well. The store enforces which edges
// are legal.
func (a *App) SetStatus(actor domain.User, orderID string, next domain.OrderStatus) (domain.Order, error) {
	order, ok, err := a.store.GetOrder(orderID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("fetch order: %w", err)
	}
	if !ok {
		return domain.Order{}, domain.ErrNotFound
	}
	if next == domain.StatusCanceled {
		if order.UserID != actor.ID && actor.Role != domain.RoleShop {
			return domain.Order{}, ErrCancelNotAllowed
		}
	} else if actor.Role != domain.RoleShop {
		return domain.Order{}, ErrShopRoleRequired
	}
	return a.store.TransitionOrder(orderID, next)
}

func (a *App) orderView(order domain.Order) (OrderView, error) {
	items, err := a.store.ListOrderItems(order.ID)
	if err != nil {
		return OrderView{}, fmt.Errorf("fetch order items: %w", err)
	}
	views := make([]ItemView, 0, len(items))
	var total int64
	for _, item := range items {
		view := ItemView{OrderItem: item}
		if listing, ok, err := a.store.GetListing(item.ListingID); err == nil && ok {
			view.ProductID = listing.ProductID
			view.ShopID = listing.ShopID
			if product, ok, err := a.store.GetProduct(listing.ProductID); err == nil && ok {
				view.ProductName = product.Name
			}
		}
		views = append(views, view)
		total += item.TotalAmount
	}
	return OrderView{Order: order, Items: views, Total: total}, nil
}
