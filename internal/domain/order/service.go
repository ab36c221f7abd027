package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/order-core/internal/domain/domainerr"
	"github.com/xenking/order-core/internal/domain/product"
	"github.com/xenking/order-core/internal/domain/repo"
)

const instrumentationName = "github.com/xenking/order-core/internal/domain/order"

// RequestedItem is a product id and quantity requested by the caller.
type RequestedItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// CreateOrderRequest holds the input for creating an order.
type CreateOrderRequest struct {
	CustomerID string
	Items      []RequestedItem
}

// ServiceConfig holds non-dependency configuration for the Service.
type ServiceConfig struct {
	// DefaultCurrency is used for totals of orders without items.
	DefaultCurrency string
	// Listeners are notified after a completed order has been committed.
	Listeners []CompletedListener

	Now            func() time.Time
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// Service encapsulates the order-creation workflow.
//
// A Service shares one unit of work across calls, so callers should create
// one per transaction scope (see app.Store.OrderService).
type Service struct {
	products product.Repository
	orders   Repository
	uow      repo.UnitOfWork

	currency  string
	listeners []CompletedListener
	now       func() time.Time

	tracer    trace.Tracer
	created   metric.Int64Counter
	completed metric.Int64Counter
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	cfg ServiceConfig,
	products product.Repository,
	orders Repository,
	uow repo.UnitOfWork,
) (*Service, error) {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.TracerProvider == nil {
		cfg.TracerProvider = tracenoop.NewTracerProvider()
	}
	if cfg.MeterProvider == nil {
		cfg.MeterProvider = metricnoop.NewMeterProvider()
	}

	meter := cfg.MeterProvider.Meter(instrumentationName)
	created, err := meter.Int64Counter("orders.created",
		metric.WithDescription("Number of orders committed by the creation workflow"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create orders.created counter")
	}
	completed, err := meter.Int64Counter("orders.completed",
		metric.WithDescription("Number of orders transitioned to delivered"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create orders.completed counter")
	}

	return &Service{
		products:  products,
		orders:    orders,
		uow:       uow,
		currency:  cfg.DefaultCurrency,
		listeners: cfg.Listeners,
		now:       cfg.Now,
		tracer:    cfg.TracerProvider.Tracer(instrumentationName),
		created:   created,
		completed: completed,
	}, nil
}

// CreateOrder resolves every requested product in input order, builds a
// pending order, stages it and commits the unit of work. Nothing is staged
// unless every product resolves.
func (s *Service) CreateOrder(ctx context.Context, req CreateOrderRequest) (_ string, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.CreateOrder", trace.WithAttributes(
		attribute.String("customer.id", req.CustomerID),
		attribute.Int("order.items", len(req.Items)),
	))
	defer func() { endSpan(span, rerr) }()

	if len(req.Items) == 0 {
		return "", domainerr.Validation("items", "at least one item is required")
	}
	defer s.discardOnError(&rerr)

	o := New(req.CustomerID, WithDefaultCurrency(s.currency), WithClock(s.now))
	for _, item := range req.Items {
		p, err := s.products.GetByID(ctx, item.ProductID)
		if err != nil {
			return "", errors.Wrapf(err, "get product %s", item.ProductID)
		}
		if err := o.AddLineItem(p, item.Quantity); err != nil {
			return "", err
		}
	}

	if err := s.orders.Add(ctx, o); err != nil {
		return "", errors.Wrap(err, "add order")
	}
	changes, err := s.uow.SaveChanges(ctx)
	if err != nil {
		return "", errors.Wrap(err, "save changes")
	}

	s.created.Add(ctx, 1)
	span.SetAttributes(attribute.String("order.id", o.ID))
	zctx.From(ctx).Info("Order created",
		zap.String("order_id", o.ID),
		zap.String("customer_id", o.CustomerID),
		zap.Int("items", len(req.Items)),
		zap.Int("changes", changes),
	)

	return o.ID, nil
}

// GetOrder loads an order by id.
func (s *Service) GetOrder(ctx context.Context, id string) (*Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get order %s", id)
	}
	return o, nil
}

// CompleteOrder marks an order as delivered and commits the change.
// Service listeners run only after the commit succeeds.
func (s *Service) CompleteOrder(ctx context.Context, id string) (_ CompletedEvent, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.CompleteOrder", trace.WithAttributes(
		attribute.String("order.id", id),
	))
	defer func() { endSpan(span, rerr) }()

	o, err := s.GetOrder(ctx, id)
	if err != nil {
		return CompletedEvent{}, err
	}
	ev, err := o.Complete()
	if err != nil {
		return CompletedEvent{}, err
	}
	defer s.discardOnError(&rerr)
	if err := s.orders.Update(ctx, o); err != nil {
		return CompletedEvent{}, errors.Wrap(err, "update order")
	}
	if _, err := s.uow.SaveChanges(ctx); err != nil {
		return CompletedEvent{}, errors.Wrap(err, "save changes")
	}

	s.completed.Add(ctx, 1)
	zctx.From(ctx).Info("Order completed", zap.String("order_id", o.ID))

	for _, l := range s.listeners {
		l(ev)
	}
	return ev, nil
}

// discardOnError drops whatever the failed call staged, so a later commit on
// the same unit of work cannot persist it.
func (s *Service) discardOnError(err *error) {
	if *err != nil {
		s.uow.Discard()
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
