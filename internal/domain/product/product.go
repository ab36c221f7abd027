package product

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/order-core/internal/domain/domainerr"
	"github.com/xenking/order-core/internal/domain/money"
	"github.com/xenking/order-core/internal/domain/repo"
)

// Kind discriminates the product variants.
type Kind string

const (
	// KindPhysical is a shippable item with a weight.
	KindPhysical Kind = "physical"
	// KindDigital is a downloadable item with no shipping cost.
	KindDigital Kind = "digital"
)

// Valid reports whether k is a known variant.
func (k Kind) Valid() bool {
	return k == KindPhysical || k == KindDigital
}

// Product represents a catalog item available for purchase.
//
// Physical-only fields are WeightKg and Dimensions; DownloadLink is
// digital-only. The unused fields of the other variant stay zero.
type Product struct {
	ID    string
	Name  string
	Price money.Money
	Kind  Kind

	WeightKg   decimal.Decimal
	Dimensions string

	DownloadLink string
}

// Repository is the catalog storage contract used by the order workflow.
type Repository = repo.Repository[Product]

// EntityID implements repo.Entity.
func (p Product) EntityID() string { return p.ID }

// NewPhysical creates a physical product with a fresh ID.
func NewPhysical(name string, price money.Money, weightKg decimal.Decimal, dimensions string) (Product, error) {
	if err := validateBase(name, price); err != nil {
		return Product{}, err
	}
	if weightKg.IsNegative() {
		return Product{}, domainerr.Validation("weight", "cannot be negative")
	}
	return Product{
		ID:         uuid.New().String(),
		Name:       name,
		Price:      price,
		Kind:       KindPhysical,
		WeightKg:   weightKg,
		Dimensions: dimensions,
	}, nil
}

// NewDigital creates a digital product with a fresh ID.
func NewDigital(name string, price money.Money, downloadLink string) (Product, error) {
	if err := validateBase(name, price); err != nil {
		return Product{}, err
	}
	return Product{
		ID:           uuid.New().String(),
		Name:         name,
		Price:        price,
		Kind:         KindDigital,
		DownloadLink: downloadLink,
	}, nil
}

// Validate checks the invariants of a product built outside the
// constructors, e.g. one loaded from storage.
func (p Product) Validate() error {
	if p.ID == "" {
		return domainerr.Validation("id", "must be specified")
	}
	if err := validateBase(p.Name, p.Price); err != nil {
		return err
	}
	switch p.Kind {
	case KindPhysical:
		if p.WeightKg.IsNegative() {
			return domainerr.Validation("weight", "cannot be negative")
		}
	case KindDigital:
	default:
		return domainerr.Validation("kind", "unsupported product kind "+string(p.Kind))
	}
	return nil
}

func validateBase(name string, price money.Money) error {
	if strings.TrimSpace(name) == "" {
		return domainerr.Validation("name", "must be specified")
	}
	if price.Currency() == "" {
		return domainerr.Validation("price", "must be specified")
	}
	return nil
}
