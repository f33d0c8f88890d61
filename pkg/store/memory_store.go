package store

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"markethub/pkg/domain"
	"markethub/pkg/events"
)

// MemoryStore keeps all state in-process. It enforces the same uniqueness
// and lifecycle rules as the Postgres store and is used by tests and dev
// runs without a database. A single mutex stands in for transaction
// isolation: every mutation holds it across its checks and writes.
type MemoryStore struct {
	mu sync.RWMutex

	users    map[string]domain.User
	emails   map[string]string // email -> user ID
	contacts map[string]domain.Contact
	shops    map[string]domain.Shop

	categories map[string]domain.Category
	shopCats   map[string]map[string]bool // shop ID -> category IDs
	products   map[string]domain.Product

	listings   map[string]domain.Listing
	listingKey map[[2]string]string // (product, shop) -> listing ID
	params     map[string]domain.Parameter
	specValues map[[2]string]string // (product, parameter) -> value

	orders    map[string]domain.Order
	items     map[string]map[string]domain.OrderItem // order ID -> listing ID -> item
	orderSeq  []string
	outbox    []OutboxEvent
	published map[string]bool
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:      make(map[string]domain.User),
		emails:     make(map[string]string),
		contacts:   make(map[string]domain.Contact),
		shops:      make(map[string]domain.Shop),
		categories: make(map[string]domain.Category),
		shopCats:   make(map[string]map[string]bool),
		products:   make(map[string]domain.Product),
		listings:   make(map[string]domain.Listing),
		listingKey: make(map[[2]string]string),
		params:     make(map[string]domain.Parameter),
		specValues: make(map[[2]string]string),
		orders:     make(map[string]domain.Order),
		items:      make(map[string]map[string]domain.OrderItem),
		published:  make(map[string]bool),
	}
}

// users

func (m *MemoryStore) CreateUser(u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.emails[u.Email]; exists {
		return domain.ErrDuplicateEmail
	}
	m.users[u.ID] = u
	m.emails[u.Email] = u.ID
	return nil
}

func (m *MemoryStore) SaveUser(u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.users[u.ID]; ok && prev.Email != u.Email {
		if _, taken := m.emails[u.Email]; taken {
			return domain.ErrDuplicateEmail
		}
		delete(m.emails, prev.Email)
	}
	m.users[u.ID] = u
	m.emails[u.Email] = u.ID
	return nil
}

func (m *MemoryStore) GetUserByEmail(email string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.emails[email]
	if !ok {
		return domain.User{}, false, nil
	}
	return m.users[id], true, nil
}

func (m *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok, nil
}

func (m *MemoryStore) ActivateUser(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return domain.ErrNotFound
	}
	u.Active = true
	u.UpdatedAt = time.Now().UTC()
	m.users[id] = u
	return nil
}

// contacts

func (m *MemoryStore) CreateContact(c domain.Contact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[c.UserID]; !ok {
		return domain.ErrNotFound
	}
	m.contacts[c.ID] = c
	return nil
}

func (m *MemoryStore) GetContact(id string) (domain.Contact, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.contacts[id]
	return c, ok, nil
}

func (m *MemoryStore) ListContactsByUser(userID string) ([]domain.Contact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Contact, 0)
	for _, c := range m.contacts {
		if c.UserID == userID {
			res = append(res, c)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.Before(res[j].CreatedAt) })
	return res, nil
}

func (m *MemoryStore) DeleteContact(id, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contacts[id]
	if !ok || c.UserID != userID {
		return domain.ErrNotFound
	}
	delete(m.contacts, id)
	return nil
}

// shops

func (m *MemoryStore) CreateShop(s domain.Shop) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.shops {
		if existing.OwnerID == s.OwnerID {
			return domain.ErrConstraintViolation
		}
	}
	m.shops[s.ID] = s
	return nil
}

func (m *MemoryStore) GetShop(id string) (domain.Shop, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.shops[id]
	return s, ok, nil
}

func (m *MemoryStore) GetShopByOwner(ownerID string) (domain.Shop, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.shops {
		if s.OwnerID == ownerID {
			return s, true, nil
		}
	}
	return domain.Shop{}, false, nil
}

func (m *MemoryStore) ListShops() ([]domain.Shop, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Shop, 0, len(m.shops))
	for _, s := range m.shops {
		res = append(res, s)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Name < res[j].Name })
	return res, nil
}

func (m *MemoryStore) SetShopAccepting(id string, accepting bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.shops[id]
	if !ok {
		return domain.ErrNotFound
	}
	s.Accepting = accepting
	s.UpdatedAt = time.Now().UTC()
	m.shops[id] = s
	return nil
}

func (m *MemoryStore) SetShopPriceListKey(id, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.shops[id]
	if !ok {
		return domain.ErrNotFound
	}
	s.PriceListKey = key
	s.UpdatedAt = time.Now().UTC()
	m.shops[id] = s
	return nil
}

// categories and products

func (m *MemoryStore) CreateCategory(c domain.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.categories {
		if existing.Name == c.Name {
			return domain.ErrConstraintViolation
		}
	}
	m.categories[c.ID] = c
	return nil
}

func (m *MemoryStore) ListCategories() ([]domain.Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Category, 0, len(m.categories))
	for _, c := range m.categories {
		res = append(res, c)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Name < res[j].Name })
	return res, nil
}

func (m *MemoryStore) AssignCategoryToShop(categoryID, shopID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.categories[categoryID]; !ok {
		return domain.ErrNotFound
	}
	if _, ok := m.shops[shopID]; !ok {
		return domain.ErrNotFound
	}
	if m.shopCats[shopID] == nil {
		m.shopCats[shopID] = make(map[string]bool)
	}
	m.shopCats[shopID][categoryID] = true
	return nil
}

func (m *MemoryStore) CreateProduct(p domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.categories[p.CategoryID]; !ok {
		return domain.ErrNotFound
	}
	m.products[p.ID] = p
	return nil
}

func (m *MemoryStore) GetProduct(id string) (domain.Product, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.products[id]
	return p, ok, nil
}

// listings and parameters

func (m *MemoryStore) CreateListing(l domain.Listing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l.Quantity < 0 || l.Price < 0 || l.PriceRRC < 0 {
		return domain.ErrConstraintViolation
	}
	key := [2]string{l.ProductID, l.ShopID}
	if _, exists := m.listingKey[key]; exists {
		return domain.ErrConstraintViolation
	}
	l.UpdatedAt = time.Now().UTC()
	m.listings[l.ID] = l
	m.listingKey[key] = l.ID
	return nil
}

func (m *MemoryStore) UpsertListing(l domain.Listing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l.Quantity < 0 || l.Price < 0 || l.PriceRRC < 0 {
		return domain.ErrConstraintViolation
	}
	key := [2]string{l.ProductID, l.ShopID}
	if existingID, exists := m.listingKey[key]; exists {
		existing := m.listings[existingID]
		existing.Model = l.Model
		existing.Quantity = l.Quantity
		existing.Price = l.Price
		existing.PriceRRC = l.PriceRRC
		existing.UpdatedAt = time.Now().UTC()
		m.listings[existingID] = existing
		return nil
	}
	l.UpdatedAt = time.Now().UTC()
	m.listings[l.ID] = l
	m.listingKey[key] = l.ID
	return nil
}

func (m *MemoryStore) FindListing(productID, shopID string) (domain.Listing, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.listingKey[[2]string{productID, shopID}]
	if !ok {
		return domain.Listing{}, false, nil
	}
	return m.listings[id], true, nil
}

func (m *MemoryStore) GetListing(id string) (domain.Listing, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.listings[id]
	return l, ok, nil
}

func (m *MemoryStore) ListListingsByShop(shopID string) ([]domain.Listing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Listing, 0)
	for _, l := range m.listings {
		if l.ShopID == shopID {
			res = append(res, l)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (m *MemoryStore) CreateParameter(p domain.Parameter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.params {
		if existing.Name == p.Name {
			return domain.ErrConstraintViolation
		}
	}
	m.params[p.ID] = p
	return nil
}

func (m *MemoryStore) ListParameters() ([]domain.Parameter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Parameter, 0, len(m.params))
	for _, p := range m.params {
		res = append(res, p)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Name < res[j].Name })
	return res, nil
}

func (m *MemoryStore) SetParameterValue(productID, parameterID, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[productID]; !ok {
		return domain.ErrNotFound
	}
	if _, ok := m.params[parameterID]; !ok {
		return domain.ErrNotFound
	}
	key := [2]string{productID, parameterID}
	if _, exists := m.specValues[key]; exists {
		return domain.ErrConstraintViolation
	}
	m.specValues[key] = value
	return nil
}

func (m *MemoryStore) ListProductParameters(productID string) ([]domain.ProductParameter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.ProductParameter, 0)
	for key, value := range m.specValues {
		if key[0] != productID {
			continue
		}
		res = append(res, domain.ProductParameter{
			ProductID:   key[0],
			ParameterID: key[1],
			Name:        m.params[key[1]].Name,
			Value:       value,
		})
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Name < res[j].Name })
	return res, nil
}

// orders

func (m *MemoryStore) GetOrCreateBasket(userID string) (domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[userID]; !ok {
		return domain.Order{}, domain.ErrNotFound
	}
	for _, id := range m.orderSeq {
		order := m.orders[id]
		if order.UserID == userID && order.Status == domain.StatusBasket {
			return order, nil
		}
	}
	now := time.Now().UTC()
	order := domain.Order{
		ID:        uuid.NewString(),
		UserID:    userID,
		Status:    domain.StatusBasket,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.orders[order.ID] = order
	m.orderSeq = append(m.orderSeq, order.ID)
	return order, nil
}

func (m *MemoryStore) GetOrder(id string) (domain.Order, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[id]
	return o, ok, nil
}

func (m *MemoryStore) ListOrdersByUser(userID string) ([]domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Order, 0)
	for i := len(m.orderSeq) - 1; i >= 0; i-- {
		if o := m.orders[m.orderSeq[i]]; o.UserID == userID {
			res = append(res, o)
		}
	}
	return res, nil
}

func (m *MemoryStore) ListOrderItems(orderID string) ([]domain.OrderItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.OrderItem, 0, len(m.items[orderID]))
	for _, item := range m.items[orderID] {
		res = append(res, item)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (m *MemoryStore) AddOrderItem(orderID, listingID string, quantity int) (domain.OrderItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if quantity < 1 {
		return domain.OrderItem{}, domain.ErrConstraintViolation
	}
	order, ok := m.orders[orderID]
	if !ok {
		return domain.OrderItem{}, domain.ErrNotFound
	}
	if order.Status != domain.StatusBasket {
		return domain.OrderItem{}, domain.ErrOrderLocked
	}
	listing, ok := m.listings[listingID]
	if !ok {
		return domain.OrderItem{}, domain.ErrNotFound
	}
	lines := m.items[orderID]
	if lines == nil {
		lines = make(map[string]domain.OrderItem)
		m.items[orderID] = lines
	}
	if existing, ok := lines[listingID]; ok {
		// Re-adding an already-basketed listing combines quantities.
		combined := existing.Quantity + quantity
		if combined > listing.Quantity {
			return domain.OrderItem{}, domain.ErrInsufficientStock
		}
		existing.Quantity = combined
		existing.Price = listing.Price
		existing.TotalAmount = domain.LineTotal(existing.Price, combined)
		lines[listingID] = existing
		return existing, nil
	}
	if quantity > listing.Quantity {
		return domain.OrderItem{}, domain.ErrInsufficientStock
	}
	item := domain.OrderItem{
		ID:          uuid.NewString(),
		OrderID:     orderID,
		ListingID:   listingID,
		Quantity:    quantity,
		Price:       listing.Price,
		TotalAmount: domain.LineTotal(listing.Price, quantity),
	}
	lines[listingID] = item
	return item, nil
}

func (m *MemoryStore) UpdateOrderItemQuantity(orderID, listingID string, quantity int) (domain.OrderItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if quantity < 1 {
		return domain.OrderItem{}, domain.ErrConstraintViolation
	}
	order, ok := m.orders[orderID]
	if !ok {
		return domain.OrderItem{}, domain.ErrNotFound
	}
	if order.Status != domain.StatusBasket {
		return domain.OrderItem{}, domain.ErrOrderLocked
	}
	item, ok := m.items[orderID][listingID]
	if !ok {
		return domain.OrderItem{}, domain.ErrNotFound
	}
	listing, ok := m.listings[listingID]
	if !ok {
		return domain.OrderItem{}, domain.ErrNotFound
	}
	if quantity > listing.Quantity {
		return domain.OrderItem{}, domain.ErrInsufficientStock
	}
	item.Quantity = quantity
	item.TotalAmount = domain.LineTotal(item.Price, quantity)
	m.items[orderID][listingID] = item
	return item, nil
}

func (m *MemoryStore) RemoveOrderItem(orderID, listingID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[orderID]
	if !ok {
		return domain.ErrNotFound
	}
	if order.Status != domain.StatusBasket {
		return domain.ErrOrderLocked
	}
	if _, ok := m.items[orderID][listingID]; !ok {
		return domain.ErrNotFound
	}
	delete(m.items[orderID], listingID)
	return nil
}

func (m *MemoryStore) SetOrderContact(orderID, contactID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[orderID]
	if !ok {
		return domain.ErrNotFound
	}
	if order.Status != domain.StatusBasket {
		return domain.ErrOrderLocked
	}
	contact, ok := m.contacts[contactID]
	if !ok {
		return domain.ErrNotFound
	}
	if contact.UserID != order.UserID {
		return domain.ErrConstraintViolation
	}
	order.ContactID = contactID
	order.UpdatedAt = time.Now().UTC()
	m.orders[orderID] = order
	return nil
}

func (m *MemoryStore) TransitionOrder(orderID string, next domain.OrderStatus) (domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !next.Valid() {
		return domain.Order{}, domain.ErrInvalidTransition
	}
	order, ok := m.orders[orderID]
	if !ok {
		return domain.Order{}, domain.ErrNotFound
	}
	if !order.Status.CanTransitionTo(next) {
		return domain.Order{}, domain.ErrInvalidTransition
	}
	if next == domain.StatusNew {
		if len(m.items[orderID]) == 0 || order.ContactID == "" {
			return domain.Order{}, domain.ErrInvalidTransition
		}
	}
	now := time.Now().UTC()
	payload, err := json.Marshal(events.OrderStatusChanged{
		OrderID: order.ID,
		UserID:  order.UserID,
		From:    string(order.Status),
		To:      string(next),
		At:      now,
	})
	if err != nil {
		return domain.Order{}, err
	}
	order.Status = next
	order.UpdatedAt = now
	m.orders[orderID] = order
	m.outbox = append(m.outbox, OutboxEvent{
		ID:        uuid.NewString(),
		Kind:      events.KindOrderStatusChanged,
		Payload:   payload,
		CreatedAt: now,
	})
	return order, nil
}

func (m *MemoryStore) OrderTotal(orderID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.orders[orderID]; !ok {
		return 0, domain.ErrNotFound
	}
	var total int64
	for _, item := range m.items[orderID] {
		total += item.TotalAmount
	}
	return total, nil
}

// outbox

func (m *MemoryStore) PendingOutboxEvents(limit int) ([]OutboxEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 {
		limit = 100
	}
	res := make([]OutboxEvent, 0, limit)
	for _, event := range m.outbox {
		if m.published[event.ID] {
			continue
		}
		res = append(res, event)
		if len(res) == limit {
			break
		}
	}
	return res, nil
}

func (m *MemoryStore) MarkOutboxPublished(ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		m.published[id] = true
	}
	return nil
}
