package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	appkg "github.com/xenking/order-core/internal/app"
	"github.com/xenking/order-core/internal/domain/discount"
	"github.com/xenking/order-core/internal/domain/domainerr"
	"github.com/xenking/order-core/internal/domain/order"
	"github.com/xenking/order-core/internal/quote"
)

const usage = `usage: orderctl <command> [flags]

commands:
  create    -customer ID -item PRODUCT[:QTY] ...
  show      -order ID
  quote     -order ID [-discount RULE] [-tax RATE]
  complete  -order ID
  products`

var errUsage = errors.New(usage)

type command func(ctx context.Context, store *appkg.Store, args []string, out io.Writer) error

var commands = map[string]command{
	"create":   createCmd,
	"show":     showCmd,
	"quote":    quoteCmd,
	"complete": completeCmd,
	"products": productsCmd,
}

func run(ctx context.Context, store *appkg.Store, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, ok := commands[args[0]]
	if !ok {
		return errors.Wrapf(errUsage, "unknown command %q", args[0])
	}
	if err := cmd(ctx, store, args[1:], out); err != nil {
		return describe(err)
	}
	return nil
}

// itemsFlag collects repeated -item PRODUCT[:QTY] values.
type itemsFlag []order.RequestedItem

func (f *itemsFlag) String() string {
	parts := make([]string, len(*f))
	for i, it := range *f {
		parts[i] = it.ProductID + ":" + strconv.Itoa(it.Quantity)
	}
	return strings.Join(parts, ",")
}

func (f *itemsFlag) Set(v string) error {
	id, qty, hasQty := strings.Cut(v, ":")
	item := order.RequestedItem{ProductID: strings.TrimSpace(id), Quantity: 1}
	if item.ProductID == "" {
		return errors.New("empty product id")
	}
	if hasQty {
		n, err := strconv.Atoi(strings.TrimSpace(qty))
		if err != nil {
			return errors.Wrapf(err, "quantity of %s", item.ProductID)
		}
		item.Quantity = n
	}
	*f = append(*f, item)
	return nil
}

func newFlagSet(name string, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	return fs
}

func requireOrderID(fs *flag.FlagSet, args []string) (string, error) {
	id := fs.String("order", "", "order id")
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if *id == "" {
		return "", errors.New("-order is required")
	}
	return *id, nil
}

func createCmd(ctx context.Context, store *appkg.Store, args []string, out io.Writer) error {
	fs := newFlagSet("create", out)
	customer := fs.String("customer", "", "customer id")
	var items itemsFlag
	fs.Var(&items, "item", "product id with optional quantity, e.g. P1:2 (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *customer == "" {
		return errors.New("-customer is required")
	}

	svc, err := store.OrderService()
	if err != nil {
		return err
	}
	id, err := svc.CreateOrder(ctx, order.CreateOrderRequest{CustomerID: *customer, Items: items})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, id)
	return err
}

func showCmd(ctx context.Context, store *appkg.Store, args []string, out io.Writer) error {
	id, err := requireOrderID(newFlagSet("show", out), args)
	if err != nil {
		return err
	}
	svc, err := store.OrderService()
	if err != nil {
		return err
	}
	o, err := svc.GetOrder(ctx, id)
	if err != nil {
		return err
	}
	return printOrder(out, o)
}

func quoteCmd(ctx context.Context, store *appkg.Store, args []string, out io.Writer) error {
	pricing := store.Pricing()

	fs := newFlagSet("quote", out)
	rule := fs.String("discount", "none", "discount rule: none, fixed:AMOUNT or percentage:FRACTION")
	tax := fs.String("tax", pricing.TaxRate.String(), "tax rate")
	id, err := requireOrderID(fs, args)
	if err != nil {
		return err
	}

	r, err := discount.ParseRule(*rule)
	if err != nil {
		return err
	}
	strategy, err := discount.FromRule(r, pricing.Currency)
	if err != nil {
		return err
	}
	rate, err := decimal.NewFromString(*tax)
	if err != nil {
		return errors.Wrap(err, "parse -tax")
	}

	svc, err := store.OrderService()
	if err != nil {
		return err
	}
	o, err := svc.GetOrder(ctx, id)
	if err != nil {
		return err
	}
	q, err := quote.Build(o, quote.Params{Discount: strategy, TaxRate: rate, Shipping: pricing.Shipping})
	if err != nil {
		return err
	}

	var e jx.Encoder
	e.SetIdent(2)
	q.Encode(&e)
	_, err = fmt.Fprintln(out, e.String())
	return err
}

func completeCmd(ctx context.Context, store *appkg.Store, args []string, out io.Writer) error {
	id, err := requireOrderID(newFlagSet("complete", out), args)
	if err != nil {
		return err
	}
	svc, err := store.OrderService(func(ev order.CompletedEvent) {
		zctx.From(ctx).Info("Order delivered",
			zap.String("order_id", ev.Order.ID),
			zap.Time("at", ev.At),
		)
	})
	if err != nil {
		return err
	}
	ev, err := svc.CompleteOrder(ctx, id)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "%s %s\n", ev.Order.ID, ev.Order.Status)
	return err
}

func productsCmd(ctx context.Context, store *appkg.Store, args []string, out io.Writer) error {
	if err := newFlagSet("products", out).Parse(args); err != nil {
		return err
	}
	products, err := store.Session().Products.GetAll(ctx)
	if err != nil {
		return err
	}
	for _, p := range products {
		if _, err := fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", p.ID, p.Kind, p.Price, p.Name); err != nil {
			return err
		}
	}
	return nil
}

func printOrder(out io.Writer, o *order.Order) error {
	total, err := o.CalculateTotal()
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(out, "order:    %s\ncustomer: %s\nstatus:   %s\ncreated:  %s\n",
		o.ID, o.CustomerID, o.Status, o.CreatedAt.Format("2006-01-02 15:04:05Z07:00"),
	); err != nil {
		return err
	}
	for _, it := range o.Items() {
		line, err := it.Total()
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(out, "  %s x%d @ %s = %s\n",
			it.Product.Name, it.Quantity, it.PriceAtPurchase, line,
		); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(out, "total:    %s\n", total)
	return err
}

// describe prefixes domain errors with their kind for the operator.
func describe(err error) error {
	var (
		vErr  *domainerr.ValidationError
		nfErr *domainerr.NotFoundError
		sErr  *domainerr.InvalidStateError
		mErr  *domainerr.CurrencyMismatchError
	)
	switch {
	case errors.As(err, &vErr):
		return errors.Wrap(err, "validation failed")
	case errors.As(err, &nfErr):
		return errors.Wrap(err, "not found")
	case errors.As(err, &sErr):
		return errors.Wrap(err, "invalid state")
	case errors.As(err, &mErr):
		return errors.Wrap(err, "currency mismatch")
	default:
		return err
	}
}
