// Package catalog reads product catalogs stored as JSON lines, optionally
// gzip-compressed.
//
// Each line is one product:
//
//	{"id":"p1","name":"Laptop","kind":"physical","price":"999.99","currency":"USD","weight_kg":2.5,"dimensions":"30x20x2"}
//	{"id":"p2","name":"E-Book","kind":"digital","price":15,"currency":"USD","download_link":"https://example.com/b"}
package catalog

import (
	"bufio"
	"context"
	"io"
	"os"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"

	"github.com/xenking/order-core/internal/domain/money"
	"github.com/xenking/order-core/internal/domain/product"
)

const maxLineSize = 1 << 20

// DecodeProduct decodes a single catalog record. Unknown fields are
// skipped. A missing kind defaults to physical; a missing currency to
// defaultCurrency.
func DecodeProduct(data []byte, defaultCurrency string) (product.Product, error) {
	var (
		p        product.Product
		amount   decimal.Decimal
		currency string
	)

	d := jx.DecodeBytes(data)
	if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "id":
			p.ID, err = d.Str()
		case "name":
			p.Name, err = d.Str()
		case "kind":
			var kind string
			kind, err = d.Str()
			p.Kind = product.Kind(strings.ToLower(kind))
		case "price":
			amount, err = decodeDecimal(d)
		case "currency":
			currency, err = d.Str()
		case "weight_kg":
			p.WeightKg, err = decodeDecimal(d)
		case "dimensions":
			p.Dimensions, err = d.Str()
		case "download_link":
			p.DownloadLink, err = d.Str()
		default:
			err = d.Skip()
		}
		return errors.Wrapf(err, "field %q", key)
	}); err != nil {
		return product.Product{}, err
	}

	if p.Kind == "" {
		p.Kind = product.KindPhysical
	}
	if currency == "" {
		currency = defaultCurrency
	}
	price, err := money.New(amount, currency)
	if err != nil {
		return product.Product{}, errors.Wrapf(err, "product %q price", p.ID)
	}
	p.Price = price

	if err := p.Validate(); err != nil {
		return product.Product{}, err
	}
	return p, nil
}

// decodeDecimal accepts both JSON numbers and numeric strings.
func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(s)
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(n.String())
	default:
		return decimal.Decimal{}, errors.Errorf("unexpected %s, want number", d.Next())
	}
}

// Scan decodes every non-blank line of r and calls fn with the product.
// Errors name the 1-based line number.
func Scan(ctx context.Context, r io.Reader, defaultCurrency string, fn func(product.Product) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	line := 0
	for scanner.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return err
		}
		data := scanner.Bytes()
		if len(strings.TrimSpace(string(data))) == 0 {
			continue
		}
		p, err := DecodeProduct(data, defaultCurrency)
		if err != nil {
			return errors.Wrapf(err, "line %d", line)
		}
		if err := fn(p); err != nil {
			return err
		}
	}
	return errors.Wrap(scanner.Err(), "scan")
}

// ScanFile opens path, decompressing it when the name ends in ".gz", and
// scans it with Scan.
func ScanFile(ctx context.Context, path, defaultCurrency string, fn func(product.Product) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return errors.Wrapf(err, "create gzip reader for %s", path)
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}

	return errors.Wrapf(Scan(ctx, r, defaultCurrency, fn), "scan %s", path)
}

// ReadFile returns every product in path.
func ReadFile(ctx context.Context, path, defaultCurrency string) ([]product.Product, error) {
	var out []product.Product
	err := ScanFile(ctx, path, defaultCurrency, func(p product.Product) error {
		out = append(out, p)
		return nil
	})
	return out, err
}
