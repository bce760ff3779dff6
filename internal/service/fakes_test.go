package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"configurator-service/config"
	"configurator-service/internal/models"
)

// bicycleConfig mirrors the seeded "Bicycles" category
func bicycleConfig() *models.CategoryConfig {
	cfg := models.NewCategoryConfig(models.Category{ID: 1, Name: "Bicycles", ProductBreakdown: []int64{1, 2, 3, 4, 5}})

	components := []models.Component{
		{ID: 1, Name: "Frame Type", RequiredUnits: 1, AvailableOptions: []int64{1, 2, 3}},
		{ID: 2, Name: "Frame Finish", RequiredUnits: 1, AvailableOptions: []int64{4, 5}},
		{ID: 3, Name: "Wheels", RequiredUnits: 1, AvailableOptions: []int64{6, 7, 8}},
		{ID: 4, Name: "Rim Color", RequiredUnits: 1, AvailableOptions: []int64{9, 10, 11}},
		{ID: 5, Name: "Chain", RequiredUnits: 1, AvailableOptions: []int64{12, 13}},
	}
	for i := range components {
		cfg.Components[components[i].ID] = &components[i]
	}

	options := []models.ComponentOption{
		{ID: 1, Name: "Full-suspension", BasePrice: 130},
		{ID: 2, Name: "Diamond", BasePrice: 100},
		{ID: 3, Name: "Step-through", BasePrice: 110},
		{ID: 4, Name: "Matte", BasePrice: 35},
		{ID: 5, Name: "Shiny", BasePrice: 30},
		{ID: 6, Name: "Road wheels", BasePrice: 80},
		{ID: 7, Name: "Mountain wheels", BasePrice: 90},
		{ID: 8, Name: "Fat bike wheels", BasePrice: 120},
		{ID: 9, Name: "Red", BasePrice: 15},
		{ID: 10, Name: "Black", BasePrice: 20},
		{ID: 11, Name: "Blue", BasePrice: 20},
		{ID: 12, Name: "Single-speed chain", BasePrice: 43},
		{ID: 13, Name: "8-speed chain", BasePrice: 55},
	}
	for i := range options {
		cfg.Options[options[i].ID] = &options[i]
	}

	cfg.Rules = []models.Rule{
		models.SupplementRule{RulePair: models.RulePair{ID: 2, Option1ID: 1, Option2ID: 4}, PriceAdjustment: 15, Message: "Matte finish supplement"},
		models.ForbiddenRule{RulePair: models.RulePair{ID: 1, Option1ID: 8, Option2ID: 9}, Message: "Fat bike wheels cannot have red rims"},
	}
	return cfg
}

func breakdownOf(pairs ...int64) models.Breakdown {
	b := make(models.Breakdown, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		b = append(b, models.BreakdownEntry{OptionID: pairs[i], Units: int(pairs[i+1])})
	}
	return b
}

func testBusinessConfig() config.BusinessConfig {
	return config.BusinessConfig{
		ReservationTTL:     12 * time.Minute,
		OverbookingPercent: 10,
		MaxDisplayUnits:    5,
		CatalogCacheTTL:    time.Minute,
		IdempotencyTTL:     10 * time.Minute,
	}
}

type memTxKey struct{}

type memReservation struct {
	units     int
	createdAt time.Time
	expiresAt time.Time
}

type memOrder struct {
	id         int64
	sessionID  string
	customerID string
	total      float64
	configs    map[int64]int
}

type memState struct {
	stock          map[int64]int
	reservations   map[string]map[int64]memReservation
	orders         []*memOrder
	configurations map[int64]models.SavedConfiguration
	nextConfigID   int64
}

func (s memState) clone() memState {
	out := memState{
		stock:          make(map[int64]int, len(s.stock)),
		reservations:   make(map[string]map[int64]memReservation, len(s.reservations)),
		configurations: make(map[int64]models.SavedConfiguration, len(s.configurations)),
		nextConfigID:   s.nextConfigID,
	}
	for k, v := range s.stock {
		out.stock[k] = v
	}
	for session, rows := range s.reservations {
		copied := make(map[int64]memReservation, len(rows))
		for k, v := range rows {
			copied[k] = v
		}
		out.reservations[session] = copied
	}
	for _, o := range s.orders {
		copied := *o
		copied.configs = make(map[int64]int, len(o.configs))
		for k, v := range o.configs {
			copied.configs[k] = v
		}
		out.orders = append(out.orders, &copied)
	}
	for k, v := range s.configurations {
		out.configurations[k] = v
	}
	return out
}

// memStore is an in-memory stand-in for the Postgres store. Transactions
// hold a global lock and restore a snapshot on error.
type memStore struct {
	txLock sync.Mutex
	mu     sync.Mutex
	state  memState

	catalog map[int64]*models.CategoryConfig
	loads   int

	failSaveConfiguration error
	commits               int
	rollbacks             int
}

func newMemStore() *memStore {
	cfg := bicycleConfig()
	s := &memStore{
		state: memState{
			stock:          map[int64]int{},
			reservations:   map[string]map[int64]memReservation{},
			configurations: map[int64]models.SavedConfiguration{},
		},
		catalog: map[int64]*models.CategoryConfig{cfg.Category.ID: cfg},
	}
	for id := range cfg.Options {
		s.state.stock[id] = 10
	}
	return s
}

func (s *memStore) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(memTxKey{}) != nil {
		return fn(ctx)
	}

	s.txLock.Lock()
	defer s.txLock.Unlock()

	s.mu.Lock()
	snapshot := s.state.clone()
	s.mu.Unlock()

	if err := fn(context.WithValue(ctx, memTxKey{}, true)); err != nil {
		s.mu.Lock()
		s.state = snapshot
		s.rollbacks++
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.commits++
	s.mu.Unlock()
	return nil
}

func (s *memStore) LoadCategoryConfig(ctx context.Context, ident models.CategoryIdentifier) (*models.CategoryConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++

	for _, cfg := range s.catalog {
		if (ident.ID != 0 && cfg.Category.ID == ident.ID) || (ident.ID == 0 && cfg.Category.Name == ident.Name) {
			return cfg, nil
		}
	}
	return nil, nil
}

func (s *memStore) ReadStock(ctx context.Context, optionIDs []int64) (map[int64]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := map[int64]int{}
	for _, id := range optionIDs {
		if total, ok := s.state.stock[id]; ok {
			result[id] = total
		}
	}
	return result, nil
}

func (s *memStore) LockStock(ctx context.Context, optionIDs []int64) (map[int64]int, error) {
	if ctx.Value(memTxKey{}) == nil {
		return nil, errors.New("LockStock outside transaction")
	}
	return s.ReadStock(ctx, optionIDs)
}

func (s *memStore) ReadActiveReservations(ctx context.Context, optionIDs []int64, now time.Time) (map[int64]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := make(map[int64]bool, len(optionIDs))
	for _, id := range optionIDs {
		wanted[id] = true
	}

	result := map[int64]int{}
	for _, rows := range s.state.reservations {
		for id, r := range rows {
			if wanted[id] && r.expiresAt.After(now) {
				result[id] += r.units
			}
		}
	}
	return result, nil
}

func (s *memStore) UpsertReservation(ctx context.Context, sessionID string, optionID int64, units int, now, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, ok := s.state.reservations[sessionID]
	if !ok {
		rows = map[int64]memReservation{}
		s.state.reservations[sessionID] = rows
	}

	existing, ok := rows[optionID]
	if ok && existing.expiresAt.After(now) {
		existing.units += units
		rows[optionID] = existing
		return nil
	}
	rows[optionID] = memReservation{units: units, createdAt: now, expiresAt: expiresAt}
	return nil
}

func (s *memStore) GetSessionReservations(ctx context.Context, sessionID string) ([]models.InventoryReservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := []models.InventoryReservation{}
	for id, r := range s.state.reservations[sessionID] {
		result = append(result, models.InventoryReservation{
			SessionID:     sessionID,
			OptionID:      id,
			ReservedUnits: r.units,
			CreatedAt:     r.createdAt,
			ExpiresAt:     r.expiresAt,
		})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].OptionID < result[j].OptionID })
	return result, nil
}

func (s *memStore) PurgeExpiredReservations(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var purged int64
	for _, rows := range s.state.reservations {
		for id, r := range rows {
			if !r.expiresAt.After(cutoff) {
				delete(rows, id)
				purged++
			}
		}
	}
	return purged, nil
}

func (s *memStore) reservedUnits(sessionID string, optionID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.reservations[sessionID][optionID].units
}

func (s *memStore) reservationCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, rows := range s.state.reservations {
		n += len(rows)
	}
	return n
}

func (s *memStore) CreateSessionOrder(ctx context.Context, sessionID, customerID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, o := range s.state.orders {
		if o.sessionID == sessionID && o.customerID == customerID {
			return o.id, nil
		}
	}
	order := &memOrder{id: int64(len(s.state.orders) + 1), sessionID: sessionID, customerID: customerID, configs: map[int64]int{}}
	s.state.orders = append(s.state.orders, order)
	return order.id, nil
}

func (s *memStore) findOrder(orderID int64) *memOrder {
	for _, o := range s.state.orders {
		if o.id == orderID {
			return o
		}
	}
	return nil
}

func (s *memStore) AddConfigurationToOrder(ctx context.Context, link models.OrderConfiguration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	order := s.findOrder(link.OrderID)
	if order == nil {
		return errors.New("order not found")
	}
	order.configs[link.ConfigurationID] += link.PurchasedCount
	return nil
}

func (s *memStore) AddToOrderTotal(ctx context.Context, orderID int64, amount float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	order := s.findOrder(orderID)
	if order == nil {
		return errors.New("order not found")
	}
	order.total += amount
	return nil
}

func (s *memStore) SaveConfiguration(ctx context.Context, cfg models.SavedConfiguration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failSaveConfiguration != nil {
		return 0, s.failSaveConfiguration
	}
	s.state.nextConfigID++
	cfg.ID = s.state.nextConfigID
	s.state.configurations[cfg.ID] = cfg
	return cfg.ID, nil
}

func (s *memStore) GetSessionOrder(ctx context.Context, sessionID, customerID string) (*models.SessionOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, o := range s.state.orders {
		if o.sessionID != sessionID || o.customerID != customerID {
			continue
		}

		result := &models.SessionOrder{
			OrderID:        o.id,
			Status:         models.OrderStatusSessionOnGoing,
			TotalPrice:     o.total,
			Configurations: []models.SessionOrderConfiguration{},
		}
		ids := make([]int64, 0, len(o.configs))
		for id := range o.configs {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, id := range ids {
			names := []string{}
			for _, entry := range s.state.configurations[id].Breakdown {
				names = append(names, s.catalog[1].Options[entry.OptionID].Name)
			}
			result.Configurations = append(result.Configurations, models.SessionOrderConfiguration{
				ConfigurationID: id,
				PurchasedCount:  o.configs[id],
				Components:      names,
			})
		}
		return result, nil
	}
	return nil, nil
}

func (s *memStore) order(orderID int64) memOrder {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o := s.findOrder(orderID); o != nil {
		return *o
	}
	return memOrder{}
}

func (s *memStore) orderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.orders)
}

type memCache struct {
	entries map[string]*models.CategoryConfig
	err     error
}

func (c *memCache) GetCategoryConfig(ctx context.Context, ident models.CategoryIdentifier) (*models.CategoryConfig, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.entries[ident.String()], nil
}

func (c *memCache) SetCategoryConfig(ctx context.Context, cfg *models.CategoryConfig, ttl time.Duration) error {
	if c.err != nil {
		return c.err
	}
	c.entries[models.CategoryIdentifier{ID: cfg.Category.ID}.String()] = cfg
	c.entries[models.CategoryIdentifier{Name: cfg.Category.Name}.String()] = cfg
	return nil
}

type memIdempotency struct {
	mu      sync.Mutex
	results map[string]CheckoutResult
	locks   map[string]bool
}

func newMemIdempotency() *memIdempotency {
	return &memIdempotency{results: map[string]CheckoutResult{}, locks: map[string]bool{}}
}

func (m *memIdempotency) SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[key] = *value.(*CheckoutResult)
	return nil
}

func (m *memIdempotency) GetIdempotencyKey(ctx context.Context, key string, dest interface{}) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result, ok := m.results[key]
	if ok {
		*dest.(*CheckoutResult) = result
	}
	return ok, nil
}

func (m *memIdempotency) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[lockKey] {
		return false, nil
	}
	m.locks[lockKey] = true
	return true, nil
}

func (m *memIdempotency) ReleaseLock(ctx context.Context, lockKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, lockKey)
	return nil
}

type memEvents struct {
	added    []*models.ConfigurationAddedEvent
	rejected []*models.ReservationRejectedEvent
}

func (e *memEvents) PublishConfigurationAdded(ctx context.Context, event *models.ConfigurationAddedEvent) error {
	e.added = append(e.added, event)
	return nil
}

func (e *memEvents) PublishReservationRejected(ctx context.Context, event *models.ReservationRejectedEvent) error {
	e.rejected = append(e.rejected, event)
	return nil
}
