package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"markethub/pkg/domain"
	"markethub/pkg/store"
)

type fakeObjectStore struct {
	objects map[string][]byte
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{objects: make(map[string][]byte)}
}

func (f *fakeObjectStore) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.objects[key] = data
	return nil
}

func (f *fakeObjectStore) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	if _, ok := f.objects[key]; !ok {
		return "", errors.New("object not found")
	}
	return "https://objects.test/" + key, nil
}

func (f *fakeObjectStore) Delete(_ context.Context, key string) error {
	delete(f.objects, key)
	return nil
}

type fixture struct {
	app     *App
	store   *store.MemoryStore
	objects *fakeObjectStore
	seller  domain.User
	buyer   domain.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	memStore := store.NewMemoryStore()
	objects := newFakeObjectStore()
	a, err := New(Config{Store: memStore, Objects: objects})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	f := &fixture{app: a, store: memStore, objects: objects}
	now := time.Now().UTC()
	f.seller = domain.User{ID: "seller-1", Email: "seller@example.com", Role: domain.RoleShop, Active: true, CreatedAt: now, UpdatedAt: now}
	f.buyer = domain.User{ID: "buyer-1", Email: "buyer@example.com", Role: domain.RoleBuyer, Active: true, CreatedAt: now, UpdatedAt: now}
	for _, u := range []domain.User{f.seller, f.buyer} {
		if err := memStore.CreateUser(u); err != nil {
			t.Fatalf("create user: %v", err)
		}
	}
	return f
}

func TestCreateShopRoleAndOwnership(t *testing.T) {
	f := newFixture(t)

	if _, err := f.app.CreateShop(f.buyer, "Corner", ""); !errors.Is(err, ErrShopRoleRequired) {
		t.Fatalf("expected role rejection, got: %v", err)
	}
	if _, err := f.app.CreateShop(f.seller, "  ", ""); !errors.Is(err, ErrNameRequired) {
		t.Fatalf("expected name rejection, got: %v", err)
	}

	shop, err := f.app.CreateShop(f.seller, "Corner", "https://corner.example")
	if err != nil {
		t.Fatalf("create shop: %v", err)
	}
	if !shop.Accepting {
		t.Fatalf("expected new shop to accept orders")
	}

	// One shop per owner.
	if _, err := f.app.CreateShop(f.seller, "Second", ""); !errors.Is(err, domain.ErrConstraintViolation) {
		t.Fatalf("expected ownership constraint, got: %v", err)
	}

	toggled, err := f.app.SetAccepting(f.seller, false)
	if err != nil {
		t.Fatalf("set accepting: %v", err)
	}
	if toggled.Accepting {
		t.Fatalf("expected accepting off")
	}
}

func TestUpsertListingReplacesOffer(t *testing.T) {
	f := newFixture(t)
	if _, err := f.app.CreateShop(f.seller, "Corner", ""); err != nil {
		t.Fatalf("create shop: %v", err)
	}
	category, err := f.app.CreateCategory(f.seller, "Phones")
	if err != nil {
		t.Fatalf("create category: %v", err)
	}
	product, err := f.app.CreateProduct(f.seller, "Handset X", category.ID)
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	if _, err := f.app.UpsertListing(f.buyer, ListingInput{ProductID: product.ID}); !errors.Is(err, ErrShopRoleRequired) {
		t.Fatalf("expected role rejection, got: %v", err)
	}
	if _, err := f.app.UpsertListing(f.seller, ListingInput{ProductID: product.ID, Quantity: -1}); !errors.Is(err, domain.ErrConstraintViolation) {
		t.Fatalf("expected negative quantity rejection, got: %v", err)
	}

	first, err := f.app.UpsertListing(f.seller, ListingInput{ProductID: product.ID, Model: "X-100", Quantity: 5, Price: 100, PriceRRC: 120})
	if err != nil {
		t.Fatalf("upsert listing: %v", err)
	}
	second, err := f.app.UpsertListing(f.seller, ListingInput{ProductID: product.ID, Model: "X-100", Quantity: 8, Price: 90, PriceRRC: 120})
	if err != nil {
		t.Fatalf("re-upsert listing: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected the replace to keep the listing row")
	}
	if second.Quantity != 8 || second.Price != 90 {
		t.Fatalf("unexpected listing after replace: %+v", second)
	}

	shop, err := f.app.MyShop(f.seller)
	if err != nil {
		t.Fatalf("my shop: %v", err)
	}
	views, err := f.app.ShopListings(shop.ID)
	if err != nil {
		t.Fatalf("shop listings: %v", err)
	}
	if len(views) != 1 || views[0].ProductName != "Handset X" {
		t.Fatalf("unexpected listing views: %+v", views)
	}

	if _, err := f.app.ShopListings("missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected unknown shop rejection, got: %v", err)
	}
}

func TestListingRequiresShop(t *testing.T) {
	f := newFixture(t)
	if _, err := f.app.UpsertListing(f.seller, ListingInput{ProductID: "p1"}); !errors.Is(err, ErrShopRequired) {
		t.Fatalf("expected missing shop rejection, got: %v", err)
	}
}

func TestProductDetailCarriesParameters(t *testing.T) {
	f := newFixture(t)
	if _, err := f.app.CreateShop(f.seller, "Corner", ""); err != nil {
		t.Fatalf("create shop: %v", err)
	}
	category, err := f.app.CreateCategory(f.seller, "Phones")
	if err != nil {
		t.Fatalf("create category: %v", err)
	}
	product, err := f.app.CreateProduct(f.seller, "Handset X", category.ID)
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	parameter, err := f.app.CreateParameter(f.seller, "Color")
	if err != nil {
		t.Fatalf("create parameter: %v", err)
	}
	if err := f.app.SetParameterValue(f.seller, product.ID, parameter.ID, "black"); err != nil {
		t.Fatalf("set parameter value: %v", err)
	}
	// Each (product, parameter) pair holds at most one value.
	if err := f.app.SetParameterValue(f.seller, product.ID, parameter.ID, "silver"); !errors.Is(err, domain.ErrConstraintViolation) {
		t.Fatalf("expected duplicate pair rejection, got: %v", err)
	}

	detail, err := f.app.Product(product.ID)
	if err != nil {
		t.Fatalf("product detail: %v", err)
	}
	if len(detail.Parameters) != 1 || detail.Parameters[0].Value != "black" {
		t.Fatalf("unexpected parameters: %+v", detail.Parameters)
	}

	if _, err := f.app.Product("missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected unknown product rejection, got: %v", err)
	}
}

func TestPriceListUploadAndPresign(t *testing.T) {
	f := newFixture(t)
	if _, err := f.app.CreateShop(f.seller, "Corner", ""); err != nil {
		t.Fatalf("create shop: %v", err)
	}

	if _, err := f.app.PriceListURL(context.Background(), f.seller); !errors.Is(err, ErrNoPriceList) {
		t.Fatalf("expected missing price list rejection, got: %v", err)
	}

	body := []byte("sku;qty;price\n1;5;100\n")
	key, err := f.app.AttachPriceList(context.Background(), f.seller, "offers.csv", bytes.NewReader(body), int64(len(body)), "text/csv")
	if err != nil {
		t.Fatalf("attach price list: %v", err)
	}
	if !strings.HasPrefix(key, "pricelists/") {
		t.Fatalf("unexpected object key %q", key)
	}
	if !bytes.Equal(f.objects.objects[key], body) {
		t.Fatalf("expected uploaded bytes to round trip")
	}

	url, err := f.app.PriceListURL(context.Background(), f.seller)
	if err != nil {
		t.Fatalf("price list url: %v", err)
	}
	if !strings.Contains(url, key) {
		t.Fatalf("expected presigned url to reference the object key, got %q", url)
	}

	if _, err := f.app.AttachPriceList(context.Background(), f.buyer, "x.csv", bytes.NewReader(body), int64(len(body)), "text/csv"); !errors.Is(err, ErrShopRoleRequired) {
		t.Fatalf("expected role rejection, got: %v", err)
	}
}
