package models

import (
	"strconv"
	"time"
)

// Category represents a configurable product such as a bicycle
type Category struct {
	ID          int64  `db:"id" json:"id"`
	Name        string `db:"name" json:"name"`
	Description string `db:"description" json:"description"`
	// ProductBreakdown lists component ids in display order
	ProductBreakdown []int64 `db:"-" json:"product_breakdown"`
}

// Component is a mandatory slot of a category
type Component struct {
	ID               int64   `db:"id" json:"id"`
	Name             string  `db:"name" json:"name"`
	Description      string  `db:"description" json:"description"`
	RequiredUnits    int     `db:"required_units" json:"required_units"`
	AvailableOptions []int64 `db:"-" json:"available_options"`
}

// ComponentOption is a concrete choice for a component
type ComponentOption struct {
	ID          int64   `db:"id" json:"id"`
	Name        string  `db:"name" json:"name"`
	Description string  `db:"description" json:"description"`
	BasePrice   float64 `db:"base_price" json:"base_price"`
}

// CategoryIdentifier selects a category by id or by unique name
type CategoryIdentifier struct {
	ID   int64  `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// IsZero reports whether neither id nor name is set
func (i CategoryIdentifier) IsZero() bool {
	return i.ID == 0 && i.Name == ""
}

// String returns a stable key for logs and caches
func (i CategoryIdentifier) String() string {
	if i.ID != 0 {
		return "id:" + strconv.FormatInt(i.ID, 10)
	}
	return "name:" + i.Name
}

// CategoryConfig is the full rule graph of a category
type CategoryConfig struct {
	Category   Category                   `json:"category"`
	Components map[int64]*Component       `json:"components"`
	Options    map[int64]*ComponentOption `json:"options"`
	Rules      []Rule                     `json:"-"`
}

// NewCategoryConfig creates an empty configuration for the given category
func NewCategoryConfig(category Category) *CategoryConfig {
	return &CategoryConfig{
		Category:   category,
		Components: make(map[int64]*Component),
		Options:    make(map[int64]*ComponentOption),
		Rules:      []Rule{},
	}
}

// OptionIDs returns every option id of the category in display order
func (c *CategoryConfig) OptionIDs() []int64 {
	ids := make([]int64, 0, len(c.Options))
	for _, componentID := range c.Category.ProductBreakdown {
		component, ok := c.Components[componentID]
		if !ok {
			continue
		}
		ids = append(ids, component.AvailableOptions...)
	}
	return ids
}

// BreakdownEntry is one selected option and its quantity
type BreakdownEntry struct {
	OptionID int64 `json:"option_id"`
	Units    int   `json:"units"`
}

// Breakdown is an ordered option selection submitted by a buyer
type Breakdown []BreakdownEntry

// Contains reports whether the option is selected anywhere in the breakdown
func (b Breakdown) Contains(optionID int64) bool {
	for _, entry := range b {
		if entry.OptionID == optionID {
			return true
		}
	}
	return false
}

// OptionIDs returns the selected option ids in input order
func (b Breakdown) OptionIDs() []int64 {
	ids := make([]int64, len(b))
	for i, entry := range b {
		ids[i] = entry.OptionID
	}
	return ids
}

// InventoryReservation is a session scoped hold on stock
type InventoryReservation struct {
	SessionID     string    `db:"session_id" json:"session_id"`
	OptionID      int64     `db:"product_component_option_id" json:"option_id"`
	ReservedUnits int       `db:"reserved_units" json:"reserved_units"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	ExpiresAt     time.Time `db:"expires_at" json:"expires_at"`
}

// IsActive reports whether the reservation still consumes stock at the given time
func (r *InventoryReservation) IsActive(now time.Time) bool {
	return r.ExpiresAt.After(now)
}

// Order represents a customer order assembled during a session
type Order struct {
	ID         int64     `db:"id" json:"id"`
	SessionID  string    `db:"session_id" json:"session_id"`
	CustomerID string    `db:"customer_id" json:"customer_id"`
	Status     string    `db:"order_status" json:"status"`
	TotalPrice float64   `db:"total_price" json:"total_price"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// Order statuses
const (
	OrderStatusSessionOnGoing = "SESSION_ON_GOING"
	OrderStatusCompleted      = "COMPLETED"
	OrderStatusCancelled      = "CANCELLED"
)

// OrderConfiguration links a saved configuration to an order
type OrderConfiguration struct {
	OrderID         int64 `db:"customer_order_id" json:"order_id"`
	ConfigurationID int64 `db:"product_configuration_id" json:"configuration_id"`
	PurchasedCount  int   `db:"purchased_count" json:"purchased_count"`
}

// SavedConfiguration is a persisted snapshot of a chosen breakdown
type SavedConfiguration struct {
	ID         int64     `db:"id" json:"id"`
	CategoryID int64     `db:"product_category_id" json:"category_id"`
	Breakdown  Breakdown `db:"-" json:"breakdown"`
}

// SessionOrder is the projection of an open order with its configurations
type SessionOrder struct {
	OrderID        int64                       `json:"order_id"`
	Status         string                      `json:"status"`
	TotalPrice     float64                     `json:"total_price"`
	Configurations []SessionOrderConfiguration `json:"configurations"`
}

// SessionOrderConfiguration lists the option names selected in one configuration
type SessionOrderConfiguration struct {
	ConfigurationID int64    `json:"configuration_id"`
	PurchasedCount  int      `json:"purchased_count"`
	Components      []string `json:"components"`
}
