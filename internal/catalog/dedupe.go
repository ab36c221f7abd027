package catalog

import (
	"github.com/bits-and-blooms/bloom/v3"

	"github.com/xenking/order-core/internal/domain/product"
)

// DefaultFalsePositiveRate is the bloom filter error rate used by Dedupe.
const DefaultFalsePositiveRate = 0.001

// Dedupe drops repeated product ids, keeping the last occurrence in its
// position. It returns the unique products and how many were dropped.
//
// A bloom filter flags ids that may repeat; only flagged ids are tracked
// exactly, so memory stays proportional to the number of candidates.
func Dedupe(products []product.Product, fpr float64) ([]product.Product, int) {
	if len(products) == 0 {
		return nil, 0
	}
	if fpr <= 0 || fpr >= 1 {
		fpr = DefaultFalsePositiveRate
	}

	filter := bloom.NewWithEstimates(uint(len(products)), fpr)
	candidates := make(map[string]int)
	for _, p := range products {
		if filter.TestAndAddString(p.ID) {
			candidates[p.ID] = -1
		}
	}

	// Confirm candidates: remember the last index of each one.
	for i, p := range products {
		if _, ok := candidates[p.ID]; ok {
			candidates[p.ID] = i
		}
	}

	out := make([]product.Product, 0, len(products))
	for i, p := range products {
		if last, ok := candidates[p.ID]; ok && last != i {
			continue
		}
		out = append(out, p)
	}
	return out, len(products) - len(out)
}
