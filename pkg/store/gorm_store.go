package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"markethub/pkg/domain"
	"markethub/pkg/events"
)

const migrateLockID int64 = 54815481

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog, TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(
			&UserModel{}, &ShopModel{}, &CategoryModel{}, &ShopCategoryModel{},
			&ProductModel{}, &ListingModel{}, &ParameterModel{}, &ProductParameterModel{},
			&OrderModel{}, &OrderItemModel{}, &ContactModel{}, &OutboxEventModel{},
		); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		if err := tx.Exec(`
			DO $$
			BEGIN
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'listing_models'
					AND constraint_name = 'listing_models_product_id_fkey'
				) THEN
					ALTER TABLE listing_models
					ADD CONSTRAINT listing_models_product_id_fkey
					FOREIGN KEY (product_id) REFERENCES product_models(id) ON DELETE CASCADE;
					ALTER TABLE listing_models
					ADD CONSTRAINT listing_models_shop_id_fkey
					FOREIGN KEY (shop_id) REFERENCES shop_models(id) ON DELETE CASCADE;
				END IF;
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'order_item_models'
					AND constraint_name = 'order_item_models_order_id_fkey'
				) THEN
					ALTER TABLE order_item_models
					ADD CONSTRAINT order_item_models_order_id_fkey
					FOREIGN KEY (order_id) REFERENCES order_models(id) ON DELETE CASCADE;
					ALTER TABLE order_item_models
					ADD CONSTRAINT order_item_models_listing_id_fkey
					FOREIGN KEY (listing_id) REFERENCES listing_models(id) ON DELETE CASCADE;
				END IF;
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'product_parameter_models'
					AND constraint_name = 'product_parameter_models_product_id_fkey'
				) THEN
					ALTER TABLE product_parameter_models
					ADD CONSTRAINT product_parameter_models_product_id_fkey
					FOREIGN KEY (product_id) REFERENCES product_models(id) ON DELETE CASCADE;
					ALTER TABLE product_parameter_models
					ADD CONSTRAINT product_parameter_models_parameter_id_fkey
					FOREIGN KEY (parameter_id) REFERENCES parameter_models(id) ON DELETE CASCADE;
				END IF;
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'contact_models'
					AND constraint_name = 'contact_models_user_id_fkey'
				) THEN
					ALTER TABLE contact_models
					ADD CONSTRAINT contact_models_user_id_fkey
					FOREIGN KEY (user_id) REFERENCES user_models(id) ON DELETE CASCADE;
					ALTER TABLE order_models
					ADD CONSTRAINT order_models_user_id_fkey
					FOREIGN KEY (user_id) REFERENCES user_models(id) ON DELETE CASCADE;
					ALTER TABLE shop_models
					ADD CONSTRAINT shop_models_owner_id_fkey
					FOREIGN KEY (owner_id) REFERENCES user_models(id) ON DELETE CASCADE;
					ALTER TABLE product_models
					ADD CONSTRAINT product_models_category_id_fkey
					FOREIGN KEY (category_id) REFERENCES category_models(id) ON DELETE CASCADE;
					ALTER TABLE shop_category_models
					ADD CONSTRAINT shop_category_models_shop_id_fkey
					FOREIGN KEY (shop_id) REFERENCES shop_models(id) ON DELETE CASCADE;
					ALTER TABLE shop_category_models
					ADD CONSTRAINT shop_category_models_category_id_fkey
					FOREIGN KEY (category_id) REFERENCES category_models(id) ON DELETE CASCADE;
				END IF;
			END $$;
		`).Error; err != nil {
			return fmt.Errorf("ensure foreign keys: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

func translateWriteError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || errors.Is(err, gorm.ErrCheckConstraintViolated) {
		return domain.ErrConstraintViolation
	}
	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		return domain.ErrNotFound
	}
	return err
}

// users

// CreateUser inserts a new account; a taken email fails with ErrDuplicateEmail.
func (s *GormStore) CreateUser(u domain.User) error {
	model := userToModel(u)
	if err := s.db.Create(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrDuplicateEmail
		}
		return err
	}
	return nil
}

// SaveUser updates an existing account in place.
func (s *GormStore) SaveUser(u domain.User) error {
	model := userToModel(u)
	return translateWriteError(s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "password_hash", "role", "active", "company", "position", "updated_at"}),
	}).Create(&model).Error)
}

// GetUserByEmail looks up a user by email.
func (s *GormStore) GetUserByEmail(email string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where("email = ?", email).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// ActivateUser flips the active flag.
func (s *GormStore) ActivateUser(id string) error {
	res := s.db.Model(&UserModel{}).Where("id = ?", id).
		Updates(map[string]any{"active": true, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// contacts

// CreateContact stores a delivery address for a user.
func (s *GormStore) CreateContact(c domain.Contact) error {
	model := contactToModel(c)
	return translateWriteError(s.db.Create(&model).Error)
}

// GetContact retrieves a contact by ID.
func (s *GormStore) GetContact(id string) (domain.Contact, bool, error) {
	var model ContactModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Contact{}, false, nil
		}
		return domain.Contact{}, false, err
	}
	return contactFromModel(model), true, nil
}

// ListContactsByUser returns a user's contacts ordered by creation time.
func (s *GormStore) ListContactsByUser(userID string) ([]domain.Contact, error) {
	var models []ContactModel
	if err := s.db.Where("user_id = ?", userID).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Contact, 0, len(models))
	for _, m := range models {
		res = append(res, contactFromModel(m))
	}
	return res, nil
}

// DeleteContact removes a contact owned by the user.
func (s *GormStore) DeleteContact(id, userID string) error {
	res := s.db.Delete(&ContactModel{}, "id = ? AND user_id = ?", id, userID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// shops

// CreateShop inserts a storefront; one shop per owner.
func (s *GormStore) CreateShop(shop domain.Shop) error {
	model := shopToModel(shop)
	return translateWriteError(s.db.Create(&model).Error)
}

// GetShop retrieves a shop by ID.
func (s *GormStore) GetShop(id string) (domain.Shop, bool, error) {
	var model ShopModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Shop{}, false, nil
		}
		return domain.Shop{}, false, err
	}
	return shopFromModel(model), true, nil
}

// GetShopByOwner retrieves the shop owned by a user.
func (s *GormStore) GetShopByOwner(ownerID string) (domain.Shop, bool, error) {
	var model ShopModel
	if err := s.db.Where("owner_id = ?", ownerID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Shop{}, false, nil
		}
		return domain.Shop{}, false, err
	}
	return shopFromModel(model), true, nil
}

// ListShops returns all shops ordered by name.
func (s *GormStore) ListShops() ([]domain.Shop, error) {
	var models []ShopModel
	if err := s.db.Order("name ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Shop, 0, len(models))
	for _, m := range models {
		res = append(res, shopFromModel(m))
	}
	return res, nil
}

// SetShopAccepting toggles the accepting-orders flag.
func (s *GormStore) SetShopAccepting(id string, accepting bool) error {
	res := s.db.Model(&ShopModel{}).Where("id = ?", id).
		Updates(map[string]any{"accepting": accepting, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SetShopPriceListKey records the object key of the uploaded price list.
func (s *GormStore) SetShopPriceListKey(id, key string) error {
	res := s.db.Model(&ShopModel{}).Where("id = ?", id).
		Updates(map[string]any{"price_list_key": key, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// categories and products

func (s *GormStore) CreateCategory(c domain.Category) error {
	model := CategoryModel{ID: c.ID, Name: c.Name}
	return translateWriteError(s.db.Create(&model).Error)
}

func (s *GormStore) ListCategories() ([]domain.Category, error) {
	var models []CategoryModel
	if err := s.db.Order("name ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Category, 0, len(models))
	for _, m := range models {
		res = append(res, domain.Category{ID: m.ID, Name: m.Name})
	}
	return res, nil
}

// AssignCategoryToShop links a category to a shop; re-linking is a no-op.
func (s *GormStore) AssignCategoryToShop(categoryID, shopID string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&CategoryModel{}).Where("id = ?", categoryID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return domain.ErrNotFound
		}
		if err := tx.Model(&ShopModel{}).Where("id = ?", shopID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return domain.ErrNotFound
		}
		link := ShopCategoryModel{ShopID: shopID, CategoryID: categoryID}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&link).Error
	})
}

func (s *GormStore) CreateProduct(p domain.Product) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&CategoryModel{}).Where("id = ?", p.CategoryID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return domain.ErrNotFound
		}
		model := ProductModel{ID: p.ID, Name: p.Name, CategoryID: p.CategoryID}
		return translateWriteError(tx.Create(&model).Error)
	})
}

func (s *GormStore) GetProduct(id string) (domain.Product, bool, error) {
	var model ProductModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Product{}, false, nil
		}
		return domain.Product{}, false, err
	}
	return domain.Product{ID: model.ID, Name: model.Name, CategoryID: model.CategoryID}, true, nil
}

// listings and parameters

// CreateListing inserts a listing; a second listing for the same
// (product, shop) pair fails with ErrConstraintViolation.
func (s *GormStore) CreateListing(l domain.Listing) error {
	if l.Quantity < 0 || l.Price < 0 || l.PriceRRC < 0 {
		return domain.ErrConstraintViolation
	}
	model := listingToModel(l)
	model.UpdatedAt = time.Now().UTC()
	return translateWriteError(s.db.Create(&model).Error)
}

// UpsertListing replaces the (product, shop) listing on conflict. Import
// jobs replace, not duplicate.
func (s *GormStore) UpsertListing(l domain.Listing) error {
	if l.Quantity < 0 || l.Price < 0 || l.PriceRRC < 0 {
		return domain.ErrConstraintViolation
	}
	model := listingToModel(l)
	model.UpdatedAt = time.Now().UTC()
	return translateWriteError(s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "product_id"}, {Name: "shop_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"model", "quantity", "price", "price_rrc", "updated_at"}),
	}).Create(&model).Error)
}

// FindListing returns the current price/quantity snapshot for (product, shop).
func (s *GormStore) FindListing(productID, shopID string) (domain.Listing, bool, error) {
	var model ListingModel
	if err := s.db.Where("product_id = ? AND shop_id = ?", productID, shopID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Listing{}, false, nil
		}
		return domain.Listing{}, false, err
	}
	return listingFromModel(model), true, nil
}

// GetListing retrieves a listing by ID.
func (s *GormStore) GetListing(id string) (domain.Listing, bool, error) {
	var model ListingModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Listing{}, false, nil
		}
		return domain.Listing{}, false, err
	}
	return listingFromModel(model), true, nil
}

// ListListingsByShop returns a shop's listings.
func (s *GormStore) ListListingsByShop(shopID string) ([]domain.Listing, error) {
	var models []ListingModel
	if err := s.db.Where("shop_id = ?", shopID).Order("updated_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Listing, 0, len(models))
	for _, m := range models {
		res = append(res, listingFromModel(m))
	}
	return res, nil
}

func (s *GormStore) CreateParameter(p domain.Parameter) error {
	model := ParameterModel{ID: p.ID, Name: p.Name}
	return translateWriteError(s.db.Create(&model).Error)
}

func (s *GormStore) ListParameters() ([]domain.Parameter, error) {
	var models []ParameterModel
	if err := s.db.Order("name ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Parameter, 0, len(models))
	for _, m := range models {
		res = append(res, domain.Parameter{ID: m.ID, Name: m.Name})
	}
	return res, nil
}

// SetParameterValue records a product's value for a parameter; a duplicate
// (product, parameter) pair fails with ErrConstraintViolation.
func (s *GormStore) SetParameterValue(productID, parameterID, value string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&ProductModel{}).Where("id = ?", productID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return domain.ErrNotFound
		}
		if err := tx.Model(&ParameterModel{}).Where("id = ?", parameterID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return domain.ErrNotFound
		}
		model := ProductParameterModel{ProductID: productID, ParameterID: parameterID, Value: value}
		return translateWriteError(tx.Create(&model).Error)
	})
}

// ListProductParameters returns a product's spec values with parameter names.
func (s *GormStore) ListProductParameters(productID string) ([]domain.ProductParameter, error) {
	type row struct {
		ProductID   string
		ParameterID string
		Value       string
		Name        string
	}
	var rows []row
	err := s.db.Model(&ProductParameterModel{}).
		Select("product_parameter_models.product_id, product_parameter_models.parameter_id, product_parameter_models.value, parameter_models.name").
		Joins("JOIN parameter_models ON parameter_models.id = product_parameter_models.parameter_id").
		Where("product_parameter_models.product_id = ?", productID).
		Order("parameter_models.name ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	res := make([]domain.ProductParameter, 0, len(rows))
	for _, r := range rows {
		res = append(res, domain.ProductParameter{
			ProductID:   r.ProductID,
			ParameterID: r.ParameterID,
			Name:        r.Name,
			Value:       r.Value,
		})
	}
	return res, nil
}

// orders

// GetOrCreateBasket returns the user's basket order, creating it if absent.
func (s *GormStore) GetOrCreateBasket(userID string) (domain.Order, error) {
	var out domain.Order
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&UserModel{}).Where("id = ?", userID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return domain.ErrNotFound
		}
		var model OrderModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND status = ?", userID, string(domain.StatusBasket)).
			First(&model).Error
		if err == nil {
			out = orderFromModel(model)
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		now := time.Now().UTC()
		model = OrderModel{
			ID:        uuid.NewString(),
			UserID:    userID,
			Status:    string(domain.StatusBasket),
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		out = orderFromModel(model)
		return nil
	})
	return out, err
}

// GetOrder retrieves an order by ID.
func (s *GormStore) GetOrder(id string) (domain.Order, bool, error) {
	var model OrderModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Order{}, false, nil
		}
		return domain.Order{}, false, err
	}
	return orderFromModel(model), true, nil
}

// ListOrdersByUser returns a user's orders, newest first.
func (s *GormStore) ListOrdersByUser(userID string) ([]domain.Order, error) {
	var models []OrderModel
	if err := s.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Order, 0, len(models))
	for _, m := range models {
		res = append(res, orderFromModel(m))
	}
	return res, nil
}

// ListOrderItems returns an order's line items.
func (s *GormStore) ListOrderItems(orderID string) ([]domain.OrderItem, error) {
	var models []OrderItemModel
	if err := s.db.Where("order_id = ?", orderID).Order("id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.OrderItem, 0, len(models))
	for _, m := range models {
		res = append(res, orderItemFromModel(m))
	}
	return res, nil
}

// AddOrderItem creates or combines the line for (order, listing), snapshots
// the listing price, and recomputes the total, all in one transaction. The
// listing row is locked so concurrent adds cannot both pass the stock check.
func (s *GormStore) AddOrderItem(orderID, listingID string, quantity int) (domain.OrderItem, error) {
	var out domain.OrderItem
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if quantity < 1 {
			return domain.ErrConstraintViolation
		}
		order, err := lockOrder(tx, orderID)
		if err != nil {
			return err
		}
		if order.Status != string(domain.StatusBasket) {
			return domain.ErrOrderLocked
		}
		var listing ListingModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&listing, "id = ?", listingID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrNotFound
			}
			return err
		}
		var item OrderItemModel
		err = tx.Where("order_id = ? AND listing_id = ?", orderID, listingID).First(&item).Error
		switch {
		case err == nil:
			// Re-adding an already-basketed listing combines quantities.
			combined := item.Quantity + quantity
			if combined > listing.Quantity {
				return domain.ErrInsufficientStock
			}
			item.Quantity = combined
			item.Price = listing.Price
			item.TotalAmount = domain.LineTotal(item.Price, item.Quantity)
			if err := tx.Save(&item).Error; err != nil {
				return translateWriteError(err)
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			if quantity > listing.Quantity {
				return domain.ErrInsufficientStock
			}
			item = OrderItemModel{
				ID:          uuid.NewString(),
				OrderID:     orderID,
				ListingID:   listingID,
				Quantity:    quantity,
				Price:       listing.Price,
				TotalAmount: domain.LineTotal(listing.Price, quantity),
			}
			if err := tx.Create(&item).Error; err != nil {
				return translateWriteError(err)
			}
		default:
			return err
		}
		out = orderItemFromModel(item)
		return nil
	})
	return out, err
}

// UpdateOrderItemQuantity sets the absolute quantity of an existing line.
func (s *GormStore) UpdateOrderItemQuantity(orderID, listingID string, quantity int) (domain.OrderItem, error) {
	var out domain.OrderItem
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if quantity < 1 {
			return domain.ErrConstraintViolation
		}
		order, err := lockOrder(tx, orderID)
		if err != nil {
			return err
		}
		if order.Status != string(domain.StatusBasket) {
			return domain.ErrOrderLocked
		}
		var item OrderItemModel
		if err := tx.Where("order_id = ? AND listing_id = ?", orderID, listingID).First(&item).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrNotFound
			}
			return err
		}
		var listing ListingModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&listing, "id = ?", listingID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrNotFound
			}
			return err
		}
		if quantity > listing.Quantity {
			return domain.ErrInsufficientStock
		}
		item.Quantity = quantity
		item.TotalAmount = domain.LineTotal(item.Price, quantity)
		if err := tx.Save(&item).Error; err != nil {
			return translateWriteError(err)
		}
		out = orderItemFromModel(item)
		return nil
	})
	return out, err
}

// RemoveOrderItem deletes the line for (order, listing).
func (s *GormStore) RemoveOrderItem(orderID, listingID string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		order, err := lockOrder(tx, orderID)
		if err != nil {
			return err
		}
		if order.Status != string(domain.StatusBasket) {
			return domain.ErrOrderLocked
		}
		res := tx.Delete(&OrderItemModel{}, "order_id = ? AND listing_id = ?", orderID, listingID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
}

// SetOrderContact binds a delivery contact to a basket order.
func (s *GormStore) SetOrderContact(orderID, contactID string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		order, err := lockOrder(tx, orderID)
		if err != nil {
			return err
		}
		if order.Status != string(domain.StatusBasket) {
			return domain.ErrOrderLocked
		}
		var contact ContactModel
		if err := tx.First(&contact, "id = ?", contactID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrNotFound
			}
			return err
		}
		if contact.UserID != order.UserID {
			return domain.ErrConstraintViolation
		}
		return tx.Model(&OrderModel{}).Where("id = ?", orderID).
			Updates(map[string]any{"contact_id": contactID, "updated_at": time.Now().UTC()}).Error
	})
}

// TransitionOrder moves an order along the lifecycle graph. The current
// status is read under a row lock so two concurrent transitions cannot both
// succeed from the same source state. A committed transition appends an
// outbox event in the same transaction.
func (s *GormStore) TransitionOrder(orderID string, next domain.OrderStatus) (domain.Order, error) {
	var out domain.Order
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if !next.Valid() {
			return domain.ErrInvalidTransition
		}
		order, err := lockOrder(tx, orderID)
		if err != nil {
			return err
		}
		current := domain.OrderStatus(order.Status)
		if !current.CanTransitionTo(next) {
			return domain.ErrInvalidTransition
		}
		if next == domain.StatusNew {
			// Checkout requires at least one line and a bound contact.
			var count int64
			if err := tx.Model(&OrderItemModel{}).Where("order_id = ?", orderID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 || order.ContactID == nil || *order.ContactID == "" {
				return domain.ErrInvalidTransition
			}
		}
		now := time.Now().UTC()
		if err := tx.Model(&OrderModel{}).Where("id = ?", orderID).
			Updates(map[string]any{"status": string(next), "updated_at": now}).Error; err != nil {
			return err
		}
		payload, err := json.Marshal(events.OrderStatusChanged{
			OrderID: order.ID,
			UserID:  order.UserID,
			From:    order.Status,
			To:      string(next),
			At:      now,
		})
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		event := OutboxEventModel{
			ID:        uuid.NewString(),
			Kind:      events.KindOrderStatusChanged,
			Payload:   payload,
			CreatedAt: now,
		}
		if err := tx.Create(&event).Error; err != nil {
			return err
		}
		order.Status = string(next)
		order.UpdatedAt = now
		out = orderFromModel(order)
		return nil
	})
	return out, err
}

// OrderTotal sums line totals; pure read.
func (s *GormStore) OrderTotal(orderID string) (int64, error) {
	var count int64
	if err := s.db.Model(&OrderModel{}).Where("id = ?", orderID).Count(&count).Error; err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, domain.ErrNotFound
	}
	var total sql.NullInt64
	err := s.db.Model(&OrderItemModel{}).
		Where("order_id = ?", orderID).
		Select("SUM(total_amount)").
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total.Int64, nil
}

func lockOrder(tx *gorm.DB, orderID string) (OrderModel, error) {
	var order OrderModel
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&order, "id = ?", orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return OrderModel{}, domain.ErrNotFound
		}
		return OrderModel{}, err
	}
	return order, nil
}

// outbox

// PendingOutboxEvents returns unpublished events, oldest first.
func (s *GormStore) PendingOutboxEvents(limit int) ([]OutboxEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	var models []OutboxEventModel
	if err := s.db.Where("published_at IS NULL").Order("created_at ASC").Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]OutboxEvent, 0, len(models))
	for _, m := range models {
		res = append(res, OutboxEvent{ID: m.ID, Kind: m.Kind, Payload: m.Payload, CreatedAt: m.CreatedAt})
	}
	return res, nil
}

// MarkOutboxPublished stamps events as delivered to the broker.
func (s *GormStore) MarkOutboxPublished(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	now := time.Now().UTC()
	return s.db.Model(&OutboxEventModel{}).Where("id IN ?", ids).
		Update("published_at", now).Error
}

// converters

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:           u.ID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Role:         string(u.Role),
		Active:       u.Active,
		Company:      u.Company,
		Position:     u.Position,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:           m.ID,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		Role:         domain.UserRole(m.Role),
		Active:       m.Active,
		Company:      m.Company,
		Position:     m.Position,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func shopToModel(s domain.Shop) ShopModel {
	return ShopModel{
		ID:           s.ID,
		Name:         s.Name,
		URL:          s.URL,
		OwnerID:      s.OwnerID,
		Accepting:    s.Accepting,
		PriceListKey: s.PriceListKey,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}

func shopFromModel(m ShopModel) domain.Shop {
	return domain.Shop{
		ID:           m.ID,
		Name:         m.Name,
		URL:          m.URL,
		OwnerID:      m.OwnerID,
		Accepting:    m.Accepting,
		PriceListKey: m.PriceListKey,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func listingToModel(l domain.Listing) ListingModel {
	return ListingModel{
		ID:        l.ID,
		ProductID: l.ProductID,
		ShopID:    l.ShopID,
		Model:     l.Model,
		Quantity:  l.Quantity,
		Price:     l.Price,
		PriceRRC:  l.PriceRRC,
		UpdatedAt: l.UpdatedAt,
	}
}

func listingFromModel(m ListingModel) domain.Listing {
	return domain.Listing{
		ID:        m.ID,
		ProductID: m.ProductID,
		ShopID:    m.ShopID,
		Model:     m.Model,
		Quantity:  m.Quantity,
		Price:     m.Price,
		PriceRRC:  m.PriceRRC,
		UpdatedAt: m.UpdatedAt,
	}
}

func orderFromModel(m OrderModel) domain.Order {
	contactID := ""
	if m.ContactID != nil {
		contactID = *m.ContactID
	}
	return domain.Order{
		ID:        m.ID,
		UserID:    m.UserID,
		ContactID: contactID,
		Status:    domain.OrderStatus(m.Status),
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func orderItemFromModel(m OrderItemModel) domain.OrderItem {
	return domain.OrderItem{
		ID:          m.ID,
		OrderID:     m.OrderID,
		ListingID:   m.ListingID,
		Quantity:    m.Quantity,
		Price:       m.Price,
		TotalAmount: m.TotalAmount,
	}
}

func contactToModel(c domain.Contact) ContactModel {
	return ContactModel{
		ID:        c.ID,
		UserID:    c.UserID,
		City:      c.City,
		Street:    c.Street,
		House:     c.House,
		Structure: c.Structure,
		Building:  c.Building,
		Apartment: c.Apartment,
		Phone:     c.Phone,
		CreatedAt: c.CreatedAt,
	}
}

func contactFromModel(m ContactModel) domain.Contact {
	return domain.Contact{
		ID:        m.ID,
		UserID:    m.UserID,
		City:      m.City,
		Street:    m.Street,
		House:     m.House,
		Structure: m.Structure,
		Building:  m.Building,
		Apartment: m.Apartment,
		Phone:     m.Phone,
		CreatedAt: m.CreatedAt,
	}
}
