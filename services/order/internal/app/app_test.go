package app

import (
	"errors"
	"testing"
	"time"

	"markethub/pkg/domain"
	"markethub/pkg/store"
)

type fixture struct {
	app     *App
	store   *store.MemoryStore
	buyer   domain.User
	other   domain.User
	seller  domain.User
	shop    domain.Shop
	listing domain.Listing
	contact domain.Contact
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	memStore := store.NewMemoryStore()
	a, err := New(Config{Store: memStore})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	f := &fixture{app: a, store: memStore}
	now := time.Now().UTC()

	f.buyer = domain.User{ID: "buyer-1", Email: "buyer@example.com", Role: domain.RoleBuyer, Active: true, CreatedAt: now, UpdatedAt: now}
	f.other = domain.User{ID: "buyer-2", Email: "other@example.com", Role: domain.RoleBuyer, Active: true, CreatedAt: now, UpdatedAt: now}
	f.seller = domain.User{ID: "seller-1", Email: "seller@example.com", Role: domain.RoleShop, Active: true, CreatedAt: now, UpdatedAt: now}
	for _, u := range []domain.User{f.buyer, f.other, f.seller} {
		if err := memStore.CreateUser(u); err != nil {
			t.Fatalf("create user: %v", err)
		}
	}

	f.shop = domain.Shop{ID: "shop-1", Name: "Corner", OwnerID: f.seller.ID, Accepting: true, CreatedAt: now, UpdatedAt: now}
	if err := memStore.CreateShop(f.shop); err != nil {
		t.Fatalf("create shop: %v", err)
	}
	category := domain.Category{ID: "cat-1", Name: "Phones"}
	if err := memStore.CreateCategory(category); err != nil {
		t.Fatalf("create category: %v", err)
	}
	product := domain.Product{ID: "prod-1", Name: "Handset X", CategoryID: category.ID}
	if err := memStore.CreateProduct(product); err != nil {
		t.Fatalf("create product: %v", err)
	}
	f.listing = domain.Listing{ID: "listing-1", ProductID: product.ID, ShopID: f.shop.ID, Quantity: 5, Price: 100}
	if err := memStore.CreateListing(f.listing); err != nil {
		t.Fatalf("create listing: %v", err)
	}
	f.contact = domain.Contact{ID: "contact-1", UserID: f.buyer.ID, City: "Riverside", Street: "Main st 1", Phone: "+1-555-0100", CreatedAt: now}
	if err := memStore.CreateContact(f.contact); err != nil {
		t.Fatalf("create contact: %v", err)
	}
	return f
}

func (f *fixture) placeOrder(t *testing.T) domain.Order {
	t.Helper()
	if _, err := f.app.AddItem(f.buyer, f.listing.ID, 2); err != nil {
		t.Fatalf("add item: %v", err)
	}
	if err := f.app.SetContact(f.buyer, f.contact.ID); err != nil {
		t.Fatalf("set contact: %v", err)
	}
	order, err := f.app.Checkout(f.buyer)
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	return order
}

func TestBasketIsStablePerUser(t *testing.T) {
	f := newFixture(t)
	first, err := f.app.Basket(f.buyer)
	if err != nil {
		t.Fatalf("basket: %v", err)
	}
	second, err := f.app.Basket(f.buyer)
	if err != nil {
		t.Fatalf("basket again: %v", err)
	}
	if first.Order.ID != second.Order.ID {
		t.Fatalf("expected a stable basket per user")
	}
	if first.Order.Status != domain.StatusBasket || first.Total != 0 {
		t.Fatalf("unexpected fresh basket: %+v", first)
	}
}

func TestAddItemChecks(t *testing.T) {
	f := newFixture(t)

	if _, err := f.app.AddItem(f.buyer, f.listing.ID, 0); !errors.Is(err, ErrQuantityRequired) {
		t.Fatalf("expected quantity rejection, got: %v", err)
	}
	if _, err := f.app.AddItem(f.buyer, "missing", 1); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected unknown listing rejection, got: %v", err)
	}
	if _, err := f.app.AddItem(f.buyer, f.listing.ID, 6); !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected stock rejection, got: %v", err)
	}

	if err := f.store.SetShopAccepting(f.shop.ID, false); err != nil {
		t.Fatalf("set accepting: %v", err)
	}
	if _, err := f.app.AddItem(f.buyer, f.listing.ID, 1); !errors.Is(err, ErrShopNotAccepting) {
		t.Fatalf("expected closed shop rejection, got: %v", err)
	}
}

func TestCheckoutFlow(t *testing.T) {
	f := newFixture(t)

	if _, err := f.app.AddItem(f.buyer, f.listing.ID, 2); err != nil {
		t.Fatalf("add item: %v", err)
	}
	// Checkout needs a bound contact.
	if _, err := f.app.Checkout(f.buyer); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected contactless checkout rejection, got: %v", err)
	}
	if err := f.app.SetContact(f.buyer, f.contact.ID); err != nil {
		t.Fatalf("set contact: %v", err)
	}
	order, err := f.app.Checkout(f.buyer)
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if order.Status != domain.StatusNew {
		t.Fatalf("order status = %q, want new", order.Status)
	}

	// The next basket is a fresh empty order.
	basket, err := f.app.Basket(f.buyer)
	if err != nil {
		t.Fatalf("basket after checkout: %v", err)
	}
	if basket.Order.ID == order.ID || len(basket.Items) != 0 {
		t.Fatalf("expected a fresh empty basket after checkout")
	}

	// Placed lines are locked.
	if _, err := f.app.UpdateItem(f.buyer, f.listing.ID, 1); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected update against fresh basket to miss, got: %v", err)
	}

	views, err := f.app.Orders(f.buyer)
	if err != nil {
		t.Fatalf("orders: %v", err)
	}
	if len(views) != 1 || views[0].Order.ID != order.ID {
		t.Fatalf("unexpected order list: %+v", views)
	}
	if views[0].Total != 200 || len(views[0].Items) != 1 {
		t.Fatalf("unexpected order view: total=%d items=%d", views[0].Total, len(views[0].Items))
	}
	if views[0].Items[0].ProductName != "Handset X" {
		t.Fatalf("expected product name on item view, got %+v", views[0].Items[0])
	}
}

func TestBasketLineEdits(t *testing.T) {
	f := newFixture(t)

	if _, err := f.app.AddItem(f.buyer, f.listing.ID, 3); err != nil {
		t.Fatalf("add item: %v", err)
	}
	// Re-add combines quantities within stock.
	item, err := f.app.AddItem(f.buyer, f.listing.ID, 2)
	if err != nil {
		t.Fatalf("re-add item: %v", err)
	}
	if item.Quantity != 5 || item.TotalAmount != 500 {
		t.Fatalf("unexpected combined line: %+v", item)
	}
	if _, err := f.app.AddItem(f.buyer, f.listing.ID, 1); !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected combined stock rejection, got: %v", err)
	}

	item, err = f.app.UpdateItem(f.buyer, f.listing.ID, 1)
	if err != nil {
		t.Fatalf("update item: %v", err)
	}
	if item.Quantity != 1 || item.TotalAmount != 100 {
		t.Fatalf("unexpected updated line: %+v", item)
	}

	if err := f.app.RemoveItem(f.buyer, f.listing.ID); err != nil {
		t.Fatalf("remove item: %v", err)
	}
	basket, err := f.app.Basket(f.buyer)
	if err != nil {
		t.Fatalf("basket: %v", err)
	}
	if len(basket.Items) != 0 || basket.Total != 0 {
		t.Fatalf("expected empty basket, got %+v", basket)
	}
}

func TestStatusAuthorization(t *testing.T) {
	f := newFixture(t)
	order := f.placeOrder(t)

	// Forward moves need a shop-role actor.
	if _, err := f.app.SetStatus(f.buyer, order.ID, domain.StatusConfirmed); !errors.Is(err, ErrShopRoleRequired) {
		t.Fatalf("expected buyer confirm rejection, got: %v", err)
	}
	confirmed, err := f.app.SetStatus(f.seller, order.ID, domain.StatusConfirmed)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if confirmed.Status != domain.StatusConfirmed {
		t.Fatalf("status = %q, want confirmed", confirmed.Status)
	}

	// Skipping ahead is an illegal edge.
	if _, err := f.app.SetStatus(f.seller, order.ID, domain.StatusSent); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected skip rejection, got: %v", err)
	}

	// A stranger may not cancel; the owner may.
	if _, err := f.app.SetStatus(f.other, order.ID, domain.StatusCanceled); !errors.Is(err, ErrCancelNotAllowed) {
		t.Fatalf("expected stranger cancel rejection, got: %v", err)
	}
	canceled, err := f.app.SetStatus(f.buyer, order.ID, domain.StatusCanceled)
	if err != nil {
		t.Fatalf("owner cancel: %v", err)
	}
	if canceled.Status != domain.StatusCanceled {
		t.Fatalf("status = %q, want canceled", canceled.Status)
	}
}

func TestOrderViewAuthorization(t *testing.T) {
	f := newFixture(t)
	order := f.placeOrder(t)

	if _, err := f.app.Order(f.other, order.ID); !errors.Is(err, ErrNotOrderOwner) {
		t.Fatalf("expected stranger view rejection, got: %v", err)
	}
	view, err := f.app.Order(f.seller, order.ID)
	if err != nil {
		t.Fatalf("seller view: %v", err)
	}
	if view.Total != 200 {
		t.Fatalf("unexpected total %d", view.Total)
	}
	if _, err := f.app.Order(f.buyer, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected unknown order rejection, got: %v", err)
	}
}
