package order

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/order-core/internal/domain/domainerr"
	"github.com/xenking/order-core/internal/domain/money"
	"github.com/xenking/order-core/internal/domain/product"
	"github.com/xenking/order-core/internal/domain/repo"
)

// Status is the lifecycle state of an order.
type Status string

const (
	// StatusPending accepts new line items.
	StatusPending Status = "pending"
	// StatusDelivered is terminal.
	StatusDelivered Status = "delivered"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusPending || s == StatusDelivered
}

// Item is a line item: a product snapshot plus the price and quantity at
// the moment it was added. Later catalog price changes do not affect it.
type Item struct {
	ID              string
	Product         product.Product
	Quantity        int
	PriceAtPurchase money.Money
}

// Total returns PriceAtPurchase multiplied by Quantity.
func (i Item) Total() (money.Money, error) {
	return i.PriceAtPurchase.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// CompletedEvent is emitted when an order transitions to Delivered.
type CompletedEvent struct {
	Order *Order
	At    time.Time
}

// CompletedListener observes order completion.
type CompletedListener func(CompletedEvent)

// Order is the aggregate root owning its line items.
//
// An Order is not safe for concurrent mutation; each workflow invocation
// owns the instance it builds.
type Order struct {
	ID         string
	CustomerID string
	Status     Status
	CreatedAt  time.Time

	items     []Item
	currency  string
	now       func() time.Time
	listeners []CompletedListener
}

// Repository is the order storage contract used by the workflow.
type Repository = repo.Repository[*Order]

// Option configures a new Order.
type Option func(*Order)

// WithDefaultCurrency sets the currency reported by totals of empty orders.
func WithDefaultCurrency(currency string) Option {
	return func(o *Order) {
		if currency != "" {
			o.currency = currency
		}
	}
}

// WithClock overrides time.Now for CreatedAt and completion timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Order) {
		if now != nil {
			o.now = now
		}
	}
}

// WithID sets an explicit identifier instead of a generated one.
func WithID(id string) Option {
	return func(o *Order) {
		if id != "" {
			o.ID = id
		}
	}
}

// New creates a pending order for customerID.
func New(customerID string, opts ...Option) *Order {
	o := &Order{
		ID:         uuid.New().String(),
		CustomerID: customerID,
		Status:     StatusPending,
		currency:   money.DefaultCurrency,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.CreatedAt = o.now().UTC()
	return o
}

// Snapshot is the persisted form of an order.
type Snapshot struct {
	ID         string
	CustomerID string
	Status     Status
	CreatedAt  time.Time
	Items      []Item
	Currency   string
}

// Restore rebuilds an order from storage. Items are appended regardless of
// status, but each must still have a positive quantity.
func Restore(s Snapshot) (*Order, error) {
	if s.ID == "" {
		return nil, domainerr.Validation("id", "must be specified")
	}
	if !s.Status.Valid() {
		return nil, domainerr.Validation("status", "unknown status "+string(s.Status))
	}
	o := &Order{
		ID:         s.ID,
		CustomerID: s.CustomerID,
		Status:     s.Status,
		CreatedAt:  s.CreatedAt,
		currency:   s.Currency,
		now:        time.Now,
		items:      make([]Item, 0, len(s.Items)),
	}
	if o.currency == "" {
		o.currency = money.DefaultCurrency
	}
	for _, it := range s.Items {
		if it.Quantity <= 0 {
			return nil, domainerr.Validation("quantity", "must be greater than 0")
		}
		o.items = append(o.items, it)
	}
	return o, nil
}

// Snapshot returns the persisted form of o.
func (o *Order) Snapshot() Snapshot {
	return Snapshot{
		ID:         o.ID,
		CustomerID: o.CustomerID,
		Status:     o.Status,
		CreatedAt:  o.CreatedAt,
		Items:      o.Items(),
		Currency:   o.currency,
	}
}

// EntityID implements repo.Entity.
func (o *Order) EntityID() string { return o.ID }

// DefaultCurrency returns the currency used for totals of empty orders.
func (o *Order) DefaultCurrency() string { return o.currency }

// Items returns a copy of the line items in insertion order.
func (o *Order) Items() []Item {
	out := make([]Item, len(o.items))
	copy(out, o.items)
	return out
}

// AddLineItem snapshots the product's current price into a new line item.
func (o *Order) AddLineItem(p product.Product, quantity int) error {
	if o.Status != StatusPending {
		return &domainerr.InvalidStateError{Op: "add line item", Status: string(o.Status)}
	}
	if quantity <= 0 {
		return domainerr.Validation("quantity", "must be greater than 0 for product "+p.ID)
	}
	o.items = append(o.items, Item{
		ID:              uuid.New().String(),
		Product:         p,
		Quantity:        quantity,
		PriceAtPurchase: p.Price,
	})
	return nil
}

// CalculateTotal sums all item totals. Items in different currencies fail
// with a CurrencyMismatchError; an empty order totals zero in its default
// currency.
func (o *Order) CalculateTotal() (money.Money, error) {
	if len(o.items) == 0 {
		return money.Zero(o.currency), nil
	}
	total := money.Zero(o.items[0].PriceAtPurchase.Currency())
	for _, it := range o.items {
		line, err := it.Total()
		if err != nil {
			return money.Money{}, err
		}
		if total, err = total.Add(line); err != nil {
			return money.Money{}, err
		}
	}
	return total, nil
}

// OnCompleted registers a listener invoked synchronously, in registration
// order, when Complete succeeds.
func (o *Order) OnCompleted(l CompletedListener) {
	o.listeners = append(o.listeners, l)
}

// Complete transitions the order to Delivered and notifies listeners.
func (o *Order) Complete() (CompletedEvent, error) {
	if o.Status == StatusDelivered {
		return CompletedEvent{}, &domainerr.InvalidStateError{Op: "complete order", Status: string(o.Status)}
	}
	o.Status = StatusDelivered

	ev := CompletedEvent{Order: o, At: o.now().UTC()}
	for _, l := range o.listeners {
		l(ev)
	}
	return ev, nil
}

// ApplyTax returns total increased by total × rate.
func ApplyTax(total money.Money, rate decimal.Decimal) (money.Money, error) {
	if rate.IsNegative() {
		return money.Money{}, domainerr.Validation("tax rate", "cannot be negative")
	}
	return total.Mul(decimal.NewFromInt(1).Add(rate))
}
