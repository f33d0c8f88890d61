package app

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"markethub/internal/util"
	"markethub/pkg/domain"
	"markethub/pkg/storage"
	"markethub/pkg/store"
)

// Config holds runtime configuration for the catalog application.
type Config struct {
	DatabaseURL string
	PresignTTL  time.Duration
	Store       store.Store
	Objects     storage.ObjectStore
}

// App maintains shops, products, listings, and the parameter vocabulary.
// Mutating operations require the acting user to hold the shop role; reads
// are open to any caller.
type App struct {
	store      store.Store
	objects    storage.ObjectStore
	presignTTL time.Duration
	validate   *validator.Validate
}

// New constructs the catalog application.
func New(cfg Config) (*App, error) {
	if cfg.PresignTTL == 0 {
		cfg.PresignTTL = time.Hour
	}
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
	return &App{
		store:      dataStore,
		objects:    cfg.Objects,
		presignTTL: cfg.PresignTTL,
		validate:   validator.New(),
	}, nil
}

// UserByID resolves the acting user for request authorization.
func (a *App) UserByID(id string) (domain.User, bool) {
	user, ok, err := a.store.GetUserByID(id)
	if err != nil || !ok || !user.Active {
		return domain.User{}, false
	}
	return user, true
}

// CreateShop opens a storefront for a shop-role owner. Each owner holds at
// most one shop; a second create fails on the ownership constraint.
func (a *App) CreateShop(owner domain.User, name, url string) (domain.Shop, error) {
	if owner.Role != domain.RoleShop {
		return domain.Shop{}, ErrShopRoleRequired
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Shop{}, ErrNameRequired
	}
	now := time.Now().UTC()
	shop := domain.Shop{
		ID:        util.NewID(),
		Name:      name,
		URL:       strings.TrimSpace(url),
		OwnerID:   owner.ID,
		Accepting: true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := a.store.CreateShop(shop); err != nil {
		return domain.Shop{}, err
	}
	return shop, nil
}

// MyShop returns the owner's shop.
func (a *App) MyShop(owner domain.User) (domain.Shop, error) {
	shop, ok, err := a.store.GetShopByOwner(owner.ID)
	if err != nil {
		return domain.Shop{}, fmt.Errorf("fetch shop: %w", err)
	}
	if !ok {
		return domain.Shop{}, ErrShopRequired
	}
	return shop, nil
}

// SetAccepting toggles whether the owner's shop takes new orders.
func (a *App) SetAccepting(owner domain.User, accepting bool) (domain.Shop, error) {
	if owner.Role != domain.RoleShop {
		return domain.Shop{}, ErrShopRoleRequired
	}
	shop, err := a.MyShop(owner)
	if err != nil {
		return domain.Shop{}, err
	}
	if err := a.store.SetShopAccepting(shop.ID, accepting); err != nil {
		return domain.Shop{}, err
	}
	shop.Accepting = accepting
	return shop, nil
}

// Shops lists all storefronts.
func (a *App) Shops() ([]domain.Shop, error) {
	return a.store.ListShops()
}

// CreateCategory adds a category to the shared taxonomy.
func (a *App) CreateCategory(actor domain.User, name string) (domain.Category, error) {
	if actor.Role != domain.RoleShop {
		return domain.Category{}, ErrShopRoleRequired
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Category{}, ErrNameRequired
	}
	category := domain.Category{ID: util.NewID(), Name: name}
	if err := a.store.CreateCategory(category); err != nil {
		return domain.Category{}, err
	}
	return category, nil
}

// Categories lists the shared taxonomy.
func (a *App) Categories() ([]domain.Category, error) {
	return a.store.ListCategories()
}

// AssignCategory links a category to the owner's shop.
func (a *App) AssignCategory(owner domain.User, categoryID string) error {
	if owner.Role != domain.RoleShop {
		return ErrShopRoleRequired
	}
	shop, err := a.MyShop(owner)
	if err != nil {
		return err
	}
	return a.store.AssignCategoryToShop(categoryID, shop.ID)
}

// CreateProduct registers a product under a category.
func (a *App) CreateProduct(actor domain.User, name, categoryID string) (domain.Product, error) {
	if actor.Role != domain.RoleShop {
		return domain.Product{}, ErrShopRoleRequired
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Product{}, ErrNameRequired
	}
	product := domain.Product{ID: util.NewID(), Name: name, CategoryID: categoryID}
	if err := a.store.CreateProduct(product); err != nil {
		return domain.Product{}, err
	}
	return product, nil
}

// ProductDetail is a product with its specification values.
type ProductDetail struct {
	Product    domain.Product            `json:"product"`
	Parameters []domain.ProductParameter `json:"parameters"`
}

// Product returns a product card with its parameter values.
func (a *App) Product(id string) (ProductDetail, error) {
	product, ok, err := a.store.GetProduct(id)
	if err != nil {
		return ProductDetail{}, fmt.Errorf("fetch product: %w", err)
	}
	if !ok {
		return ProductDetail{}, domain.ErrNotFound
	}
	params, err := a.store.ListProductParameters(id)
	if err != nil {
		return ProductDetail{}, fmt.Errorf("fetch parameters: %w", err)
	}
	return ProductDetail{Product: product, Parameters: params}, nil
}

// CreateParameter adds a name to the specification vocabulary.
func (a *App) CreateParameter(actor domain.User, name string) (domain.Parameter, error) {
	if actor.Role != domain.RoleShop {
		return domain.Parameter{}, ErrShopRoleRequired
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Parameter{}, ErrNameRequired
	}
	parameter := domain.Parameter{ID: util.NewID(), Name: name}
	if err := a.store.CreateParameter(parameter); err != nil {
		return domain.Parameter{}, err
	}
	return parameter, nil
}

// Parameters lists the specification vocabulary.
func (a *App) Parameters() ([]domain.Parameter, error) {
	return a.store.ListParameters()
}

// SetParameterValue writes a product's value for a parameter. Each
// (product, parameter) pair holds at most one value.
func (a *App) SetParameterValue(actor domain.User, productID, parameterID, value string) error {
	if actor.Role != domain.RoleShop {
		return ErrShopRoleRequired
	}
	return a.store.SetParameterValue(productID, parameterID, strings.TrimSpace(value))
}

// ListingInput carries the fields for a shop's offer on a product.
type ListingInput struct {
	ProductID string `json:"productId" validate:"required"`
	Model     string `json:"model" validate:"omitempty,max=80"`
	Quantity  int    `json:"quantity" validate:"gte=0"`
	Price     int64  `json:"price" validate:"gte=0"`
	PriceRRC  int64  `json:"priceRrc" validate:"gte=0"`
}

// UpsertListing creates or replaces the owner's offer for a product. The
// (product, shop) pair stays unique; a replace keeps the listing row.
func (a *App) UpsertListing(owner domain.User, in ListingInput) (domain.Listing, error) {
	if owner.Role != domain.RoleShop {
		return domain.Listing{}, ErrShopRoleRequired
	}
	if err := a.validate.Struct(in); err != nil {
		return domain.Listing{}, fmt.Errorf("%w: %s", domain.ErrConstraintViolation, err)
	}
	shop, err := a.MyShop(owner)
	if err != nil {
		return domain.Listing{}, err
	}
	listing := domain.Listing{
		ID:        util.NewID(),
		ProductID: in.ProductID,
		ShopID:    shop.ID,
		Model:     strings.TrimSpace(in.Model),
		Quantity:  in.Quantity,
		Price:     in.Price,
		PriceRRC:  in.PriceRRC,
		UpdatedAt: time.Now().UTC(),
	}
	if err := a.store.UpsertListing(listing); err != nil {
		return domain.Listing{}, err
	}
	stored, ok, err := a.store.FindListing(in.ProductID, shop.ID)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("fetch listing: %w", err)
	}
	if !ok {
		return domain.Listing{}, domain.ErrNotFound
	}
	return stored, nil
}

// ListingView pairs a listing with its product name for browsing.
type ListingView struct {
	domain.Listing
	ProductName string `json:"productName"`
}

// ShopListings returns a shop's offers with product names attached.
func (a *App) ShopListings(shopID string) ([]ListingView, error) {
	if _, ok, err := a.store.GetShop(shopID); err != nil {
		return nil, fmt.Errorf("fetch shop: %w", err)
	} else if !ok {
		return nil, domain.ErrNotFound
	}
	listings, err := a.store.ListListingsByShop(shopID)
	if err != nil {
		return nil, fmt.Errorf("fetch listings: %w", err)
	}
	views := make([]ListingView, 0, len(listings))
	for _, listing := range listings {
		view := ListingView{Listing: listing}
		if product, ok, err := a.store.GetProduct(listing.ProductID); err == nil && ok {
			view.ProductName = product.Name
		}
		views = append(views, view)
	}
	return views, nil
}

// AttachPriceList uploads a partner price-list file and records its object
// key on the owner's shop. The file is stored as-is; rows are entered
// through UpsertListing.
func (a *App) AttachPriceList(ctx context.Context, owner domain.User, filename string, r io.Reader, size int64, contentType string) (string, error) {
	if owner.Role != domain.RoleShop {
		return "", ErrShopRoleRequired
	}
	if a.objects == nil {
		return "", ErrObjectStoreOff
	}
	shop, err := a.MyShop(owner)
	if err != nil {
		return "", err
	}
	key := storage.PriceListKey(shop.ID, filename)
	if err := a.objects.Put(ctx, key, r, size, contentType); err != nil {
		return "", fmt.Errorf("upload price list: %w", err)
	}
	if err := a.store.SetShopPriceListKey(shop.ID, key); err != nil {
		return "", err
	}
	return key, nil
}

// PriceListURL returns a short-lived download URL for the shop's last
// uploaded price list.
func (a *App) PriceListURL(ctx context.Context, owner domain.User) (string, error) {
	if a.objects == nil {
		return "", ErrObjectStoreOff
	}
	shop, err := a.MyShop(owner)
	if err != nil {
		return "", err
	}
	if shop.PriceListKey == "" {
		return "", ErrNoPriceList
	}
	url, err := a.objects.PresignGet(ctx, shop.PriceListKey, a.presignTTL)
	if err != nil {
		return "", fmt.Errorf("presign price list: %w", err)
	}
	return url, nil
}
