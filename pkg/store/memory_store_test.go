package store

import (
	"errors"
	"testing"
	"time"

	"markethub/pkg/domain"
)

type fixture struct {
	store   *MemoryStore
	buyer   domain.User
	seller  domain.User
	shop    domain.Shop
	product domain.Product
	listing domain.Listing
	contact domain.Contact
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := NewMemoryStore()
	now := time.Now().UTC()

	buyer := domain.User{ID: "u-buyer", Email: "buyer@example.com", Role: domain.RoleBuyer, Active: true, CreatedAt: now}
	seller := domain.User{ID: "u-seller", Email: "seller@example.com", Role: domain.RoleShop, Active: true, CreatedAt: now}
	if err := s.CreateUser(buyer); err != nil {
		t.Fatalf("create buyer: %v", err)
	}
	if err := s.CreateUser(seller); err != nil {
		t.Fatalf("create seller: %v", err)
	}

	shop := domain.Shop{ID: "shop-1", Name: "Svyaznoy", OwnerID: seller.ID, Accepting: true, CreatedAt: now}
	if err := s.CreateShop(shop); err != nil {
		t.Fatalf("create shop: %v", err)
	}
	if err := s.CreateCategory(domain.Category{ID: "cat-1", Name: "phones"}); err != nil {
		t.Fatalf("create category: %v", err)
	}
	product := domain.Product{ID: "prod-1", Name: "Smartphone", CategoryID: "cat-1"}
	if err := s.CreateProduct(product); err != nil {
		t.Fatalf("create product: %v", err)
	}
	listing := domain.Listing{ID: "lst-1", ProductID: product.ID, ShopID: shop.ID, Model: "X-100", Quantity: 5, Price: 100, PriceRRC: 120}
	if err := s.CreateListing(listing); err != nil {
		t.Fatalf("create listing: %v", err)
	}
	contact := domain.Contact{ID: "ct-1", UserID: buyer.ID, City: "Moscow", Street: "Tverskaya", Phone: "+70000000000", CreatedAt: now}
	if err := s.CreateContact(contact); err != nil {
		t.Fatalf("create contact: %v", err)
	}
	return &fixture{store: s, buyer: buyer, seller: seller, shop: shop, product: product, listing: listing, contact: contact}
}

func (f *fixture) basket(t *testing.T) domain.Order {
	t.Helper()
	order, err := f.store.GetOrCreateBasket(f.buyer.ID)
	if err != nil {
		t.Fatalf("get basket: %v", err)
	}
	return order
}

func TestCreateListingRejectsDuplicatePair(t *testing.T) {
	f := newFixture(t)
	dup := domain.Listing{ID: "lst-2", ProductID: f.product.ID, ShopID: f.shop.ID, Quantity: 1, Price: 90}
	if err := f.store.CreateListing(dup); !errors.Is(err, domain.ErrConstraintViolation) {
		t.Fatalf("expected constraint violation, got: %v", err)
	}
}

func TestUpsertListingReplacesInsteadOfDuplicating(t *testing.T) {
	f := newFixture(t)
	update := domain.Listing{ID: "lst-9", ProductID: f.product.ID, ShopID: f.shop.ID, Model: "X-200", Quantity: 7, Price: 110, PriceRRC: 130}
	if err := f.store.UpsertListing(update); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, ok, err := f.store.FindListing(f.product.ID, f.shop.ID)
	if err != nil || !ok {
		t.Fatalf("find listing: ok=%v err=%v", ok, err)
	}
	if got.ID != f.listing.ID {
		t.Fatalf("expected upsert to keep listing row %s, got %s", f.listing.ID, got.ID)
	}
	if got.Price != 110 || got.Quantity != 7 || got.Model != "X-200" {
		t.Fatalf("unexpected listing after upsert: %+v", got)
	}
}

func TestListingRejectsNegativeValues(t *testing.T) {
	f := newFixture(t)
	bad := domain.Listing{ID: "lst-3", ProductID: f.product.ID, ShopID: f.shop.ID, Quantity: -1, Price: 10}
	if err := f.store.UpsertListing(bad); !errors.Is(err, domain.ErrConstraintViolation) {
		t.Fatalf("expected constraint violation, got: %v", err)
	}
}

func TestSetParameterValueRejectsDuplicatePair(t *testing.T) {
	f := newFixture(t)
	if err := f.store.CreateParameter(domain.Parameter{ID: "par-1", Name: "color"}); err != nil {
		t.Fatalf("create parameter: %v", err)
	}
	if err := f.store.SetParameterValue(f.product.ID, "par-1", "black"); err != nil {
		t.Fatalf("set value: %v", err)
	}
	if err := f.store.SetParameterValue(f.product.ID, "par-1", "white"); !errors.Is(err, domain.ErrConstraintViolation) {
		t.Fatalf("expected constraint violation, got: %v", err)
	}
	values, err := f.store.ListProductParameters(f.product.ID)
	if err != nil {
		t.Fatalf("list values: %v", err)
	}
	if len(values) != 1 || values[0].Value != "black" || values[0].Name != "color" {
		t.Fatalf("unexpected values: %+v", values)
	}
}

func TestAddItemSnapshotsPriceAndComputesTotal(t *testing.T) {
	f := newFixture(t)
	order := f.basket(t)

	item, err := f.store.AddOrderItem(order.ID, f.listing.ID, 3)
	if err != nil {
		t.Fatalf("add item: %v", err)
	}
	if item.Price != 100 || item.TotalAmount != 300 {
		t.Fatalf("unexpected snapshot: %+v", item)
	}

	// A later price change must not alter the existing line.
	update := f.listing
	update.Price = 999
	if err := f.store.UpsertListing(update); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	items, err := f.store.ListOrderItems(order.ID)
	if err != nil {
		t.Fatalf("list items: %v", err)
	}
	if items[0].Price != 100 || items[0].TotalAmount != 300 {
		t.Fatalf("price snapshot violated: %+v", items[0])
	}
}

func TestAddItemCombinesQuantitiesAndChecksStock(t *testing.T) {
	f := newFixture(t)
	order := f.basket(t)

	if _, err := f.store.AddOrderItem(order.ID, f.listing.ID, 3); err != nil {
		t.Fatalf("add item: %v", err)
	}
	// Stock is 5; combined 3+10 exceeds it.
	if _, err := f.store.AddOrderItem(order.ID, f.listing.ID, 10); !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got: %v", err)
	}
	item, err := f.store.AddOrderItem(order.ID, f.listing.ID, 2)
	if err != nil {
		t.Fatalf("combine within stock: %v", err)
	}
	if item.Quantity != 5 || item.TotalAmount != 500 {
		t.Fatalf("unexpected combined line: %+v", item)
	}
	items, _ := f.store.ListOrderItems(order.ID)
	if len(items) != 1 {
		t.Fatalf("expected one line per listing, got %d", len(items))
	}
}

func TestAddItemRejectsNonBasketOrder(t *testing.T) {
	f := newFixture(t)
	order := f.basket(t)
	if _, err := f.store.AddOrderItem(order.ID, f.listing.ID, 1); err != nil {
		t.Fatalf("add item: %v", err)
	}
	if err := f.store.SetOrderContact(order.ID, f.contact.ID); err != nil {
		t.Fatalf("set contact: %v", err)
	}
	if _, err := f.store.TransitionOrder(order.ID, domain.StatusNew); err != nil {
		t.Fatalf("checkout: %v", err)
	}

	before, _ := f.store.ListOrderItems(order.ID)
	if _, err := f.store.AddOrderItem(order.ID, f.listing.ID, 1); !errors.Is(err, domain.ErrOrderLocked) {
		t.Fatalf("expected order locked, got: %v", err)
	}
	if err := f.store.RemoveOrderItem(order.ID, f.listing.ID); !errors.Is(err, domain.ErrOrderLocked) {
		t.Fatalf("expected order locked on remove, got: %v", err)
	}
	after, _ := f.store.ListOrderItems(order.ID)
	if len(before) != len(after) || before[0].Quantity != after[0].Quantity {
		t.Fatalf("item set changed by rejected mutation")
	}
}

func TestRemoveItemAbsentLine(t *testing.T) {
	f := newFixture(t)
	order := f.basket(t)
	if err := f.store.RemoveOrderItem(order.ID, f.listing.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got: %v", err)
	}
}

func TestOrderTotalMatchesLineSum(t *testing.T) {
	f := newFixture(t)
	order := f.basket(t)

	second := domain.Listing{ID: "lst-2", ProductID: "prod-2", ShopID: f.shop.ID, Quantity: 10, Price: 50}
	if err := f.store.CreateProduct(domain.Product{ID: "prod-2", Name: "Charger", CategoryID: "cat-1"}); err != nil {
		t.Fatalf("create product: %v", err)
	}
	if err := f.store.CreateListing(second); err != nil {
		t.Fatalf("create listing: %v", err)
	}
	if _, err := f.store.AddOrderItem(order.ID, f.listing.ID, 3); err != nil {
		t.Fatalf("add item: %v", err)
	}
	if _, err := f.store.AddOrderItem(order.ID, second.ID, 2); err != nil {
		t.Fatalf("add second item: %v", err)
	}
	total, err := f.store.OrderTotal(order.ID)
	if err != nil {
		t.Fatalf("total: %v", err)
	}
	if total != 300+100 {
		t.Fatalf("unexpected total: %d", total)
	}
	if err := f.store.RemoveOrderItem(order.ID, second.ID); err != nil {
		t.Fatalf("remove item: %v", err)
	}
	total, _ = f.store.OrderTotal(order.ID)
	if total != 300 {
		t.Fatalf("unexpected total after remove: %d", total)
	}
}

func TestCheckoutRequiresItemsAndContact(t *testing.T) {
	f := newFixture(t)
	order := f.basket(t)

	// Empty basket with no contact.
	if _, err := f.store.TransitionOrder(order.ID, domain.StatusNew); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got: %v", err)
	}
	if _, err := f.store.AddOrderItem(order.ID, f.listing.ID, 1); err != nil {
		t.Fatalf("add item: %v", err)
	}
	// Items but no contact.
	if _, err := f.store.TransitionOrder(order.ID, domain.StatusNew); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition without contact, got: %v", err)
	}
	if err := f.store.SetOrderContact(order.ID, f.contact.ID); err != nil {
		t.Fatalf("set contact: %v", err)
	}
	got, err := f.store.TransitionOrder(order.ID, domain.StatusNew)
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if got.Status != domain.StatusNew {
		t.Fatalf("unexpected status: %s", got.Status)
	}
}

func TestTransitionRejectsIllegalEdgesAndKeepsStatus(t *testing.T) {
	f := newFixture(t)
	order := f.basket(t)
	if _, err := f.store.TransitionOrder(order.ID, domain.StatusSent); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got: %v", err)
	}
	// Self-loop is rejected.
	if _, err := f.store.TransitionOrder(order.ID, domain.StatusBasket); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected self-loop rejection, got: %v", err)
	}
	got, ok, err := f.store.GetOrder(order.ID)
	if err != nil || !ok {
		t.Fatalf("get order: ok=%v err=%v", ok, err)
	}
	if got.Status != domain.StatusBasket {
		t.Fatalf("status changed by rejected transition: %s", got.Status)
	}
	if _, err := f.store.TransitionOrder("missing", domain.StatusNew); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got: %v", err)
	}
}

func TestFullLifecycleAndTerminalStates(t *testing.T) {
	f := newFixture(t)
	order := f.basket(t)
	if _, err := f.store.AddOrderItem(order.ID, f.listing.ID, 1); err != nil {
		t.Fatalf("add item: %v", err)
	}
	if err := f.store.SetOrderContact(order.ID, f.contact.ID); err != nil {
		t.Fatalf("set contact: %v", err)
	}
	for _, next := range []domain.OrderStatus{domain.StatusNew, domain.StatusConfirmed, domain.StatusAssembled, domain.StatusSent, domain.StatusDelivered} {
		if _, err := f.store.TransitionOrder(order.ID, next); err != nil {
			t.Fatalf("transition to %s: %v", next, err)
		}
	}
	if _, err := f.store.TransitionOrder(order.ID, domain.StatusCanceled); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected delivered to be terminal, got: %v", err)
	}
}

func TestCancelKeepsItemsForAudit(t *testing.T) {
	f := newFixture(t)
	order := f.basket(t)
	if _, err := f.store.AddOrderItem(order.ID, f.listing.ID, 2); err != nil {
		t.Fatalf("add item: %v", err)
	}
	if _, err := f.store.TransitionOrder(order.ID, domain.StatusCanceled); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	items, err := f.store.ListOrderItems(order.ID)
	if err != nil {
		t.Fatalf("list items: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("cancellation must not delete items, got %d", len(items))
	}
}

func TestTransitionAppendsOutboxEvent(t *testing.T) {
	f := newFixture(t)
	order := f.basket(t)
	if _, err := f.store.AddOrderItem(order.ID, f.listing.ID, 1); err != nil {
		t.Fatalf("add item: %v", err)
	}
	if err := f.store.SetOrderContact(order.ID, f.contact.ID); err != nil {
		t.Fatalf("set contact: %v", err)
	}
	if _, err := f.store.TransitionOrder(order.ID, domain.StatusNew); err != nil {
		t.Fatalf("checkout: %v", err)
	}
	pending, err := f.store.PendingOutboxEvents(10)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending event, got %d", len(pending))
	}
	if err := f.store.MarkOutboxPublished([]string{pending[0].ID}); err != nil {
		t.Fatalf("mark published: %v", err)
	}
	pending, _ = f.store.PendingOutboxEvents(10)
	if len(pending) != 0 {
		t.Fatalf("expected no pending events, got %d", len(pending))
	}
}

func TestGetOrCreateBasketIsStablePerUser(t *testing.T) {
	f := newFixture(t)
	first := f.basket(t)
	second := f.basket(t)
	if first.ID != second.ID {
		t.Fatalf("expected a single basket per user")
	}
	if _, err := f.store.GetOrCreateBasket("missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for unknown user, got: %v", err)
	}
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	f := newFixture(t)
	dup := domain.User{ID: "u-x", Email: f.buyer.Email, Role: domain.RoleBuyer}
	if err := f.store.CreateUser(dup); !errors.Is(err, domain.ErrDuplicateEmail) {
		t.Fatalf("expected duplicate email, got: %v", err)
	}
}

func TestSetOrderContactValidatesOwnership(t *testing.T) {
	f := newFixture(t)
	order := f.basket(t)
	foreign := domain.Contact{ID: "ct-2", UserID: f.seller.ID, City: "Moscow", Street: "Arbat", Phone: "+71111111111"}
	if err := f.store.CreateContact(foreign); err != nil {
		t.Fatalf("create contact: %v", err)
	}
	if err := f.store.SetOrderContact(order.ID, foreign.ID); !errors.Is(err, domain.ErrConstraintViolation) {
		t.Fatalf("expected constraint violation, got: %v", err)
	}
}
