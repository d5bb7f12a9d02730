// cart/store.go

package cart

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "cartservice"

// errIgnored marks a request that is dropped without any feedback.
var errIgnored = errors.New("request ignored")

// rejection is a business refusal reported to the shopper as a toast.
type rejection struct {
	kind   ToastKind
	reason string
}

func (r *rejection) Error() string { return r.reason }

func reject(kind ToastKind, format string, args ...interface{}) error {
	return &rejection{kind: kind, reason: fmt.Sprintf(format, args...)}
}

// Deps are the collaborators shared by every session's Store.
type Deps struct {
	Storage Storage
	Stock   StockOracle
	Catalog ProductCatalog
	Logger  logrus.FieldLogger
}

// Store owns the cart of one session. It is the only writer of that cart;
// readers get copies through Cart and Subscribe.
type Store struct {
	sessionID string
	deps      Deps
	notifier  Notifier
	log       logrus.FieldLogger
	tracer    trace.Tracer
	ops       metric.Int64Counter

	// mu serializes operations for the whole validate-persist-commit sequence.
	mu   sync.Mutex
	cart Cart

	subMu   sync.Mutex
	subs    map[int]func(Cart)
	nextSub int
}

// Open loads the session's cart from storage. An absent or corrupt stored
// cart yields an empty one. Any other storage error is returned so that
// the stored cart is never overwritten by one built from nothing.
func Open(ctx context.Context, sessionID string, deps Deps, notifier Notifier) (*Store, error) {
	log := deps.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("session_id", sessionID)

	ops, err := otel.Meter(instrumentationName).Int64Counter("app.cart.operations",
		metric.WithDescription("Cart operations by outcome"))
	if err != nil {
		log.WithError(err).Warn("failed to create cart operations counter")
	}

	s := &Store{
		sessionID: sessionID,
		deps:      deps,
		notifier:  notifier,
		log:       log,
		tracer:    otel.Tracer(instrumentationName),
		ops:       ops,
		subs:      make(map[int]func(Cart)),
	}

	stored, err := deps.Storage.GetCart(ctx, sessionID)
	switch {
	case errors.Is(err, ErrCorrupt):
		log.WithError(err).Warn("stored cart unreadable, starting with an empty cart")
		stored = nil
	case err != nil:
		return nil, errors.Wrapf(err, "load cart of session %s", sessionID)
	}
	if stored == nil {
		stored = Cart{}
	}
	s.cart = stored
	return s, nil
}

// SessionID returns the session this store belongs to.
func (s *Store) SessionID() string { return s.sessionID }

// Cart returns a copy of the current cart.
func (s *Store) Cart() Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart.Clone()
}

// Subscribe registers fn to receive the cart after every successful
// mutation. The returned func removes the subscription.
func (s *Store) Subscribe(fn func(Cart)) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

// AddProduct puts one more unit of productID in the cart, or a first unit
// when the product is not in the cart yet.
func (s *Store) AddProduct(ctx context.Context, productID int) {
	ctx, span := s.tracer.Start(ctx, "AddProduct")
	defer span.End()
	span.SetAttributes(
		attribute.String("app.session_id", s.sessionID),
		attribute.Int("app.product_id", productID),
	)

	s.mutate(ctx, span, "add", AddFailed, func(ctx context.Context, current Cart) (Cart, error) {
		line, exists := current.Find(productID)

		stock, err := s.deps.Stock.GetStock(ctx, productID)
		if err != nil {
			return nil, errors.Wrapf(err, "get stock of product %d", productID)
		}

		desired := 1
		if exists {
			desired = line.Amount + 1
		}
		span.SetAttributes(attribute.Int("app.quantity", desired), attribute.Int("app.stock", stock.Amount))
		if desired > stock.Amount {
			return nil, reject(StockExceeded, "product %d: want %d, stock %d", productID, desired, stock.Amount)
		}

		if exists {
			return current.WithAmount(productID, desired), nil
		}

		info, err := s.deps.Catalog.GetProduct(ctx, productID)
		if err != nil {
			return nil, errors.Wrapf(err, "get product %d", productID)
		}
		if info.ID != productID {
			return nil, errors.Errorf("catalog returned product %d for %d", info.ID, productID)
		}
		return current.Append(NewLine(info, 1)), nil
	})
}

// RemoveProduct drops the line for productID. Removing a product that is
// not in the cart is reported as a failure.
func (s *Store) RemoveProduct(ctx context.Context, productID int) {
	ctx, span := s.tracer.Start(ctx, "RemoveProduct")
	defer span.End()
	span.SetAttributes(
		attribute.String("app.session_id", s.sessionID),
		attribute.Int("app.product_id", productID),
	)

	s.mutate(ctx, span, "remove", RemoveFailed, func(ctx context.Context, current Cart) (Cart, error) {
		if current.Index(productID) < 0 {
			return nil, reject(RemoveFailed, "product %d is not in the cart", productID)
		}
		return current.Without(productID), nil
	})
}

// UpdateProductAmount sets the quantity of a line already in the cart.
// Amounts of zero or less are ignored; use RemoveProduct instead.
func (s *Store) UpdateProductAmount(ctx context.Context, req UpdateProductAmount) {
	ctx, span := s.tracer.Start(ctx, "UpdateProductAmount")
	defer span.End()
	span.SetAttributes(
		attribute.String("app.session_id", s.sessionID),
		attribute.Int("app.product_id", req.ProductID),
		attribute.Int("app.quantity", req.Amount),
	)

	s.mutate(ctx, span, "update", UpdateFailed, func(ctx context.Context, current Cart) (Cart, error) {
		if req.Amount <= 0 {
			return nil, errIgnored
		}
		// Updating a product that is not in the cart is a failure, not an insert.
		if current.Index(req.ProductID) < 0 {
			return nil, reject(UpdateFailed, "product %d is not in the cart", req.ProductID)
		}

		stock, err := s.deps.Stock.GetStock(ctx, req.ProductID)
		if err != nil {
			return nil, errors.Wrapf(err, "get stock of product %d", req.ProductID)
		}
		span.SetAttributes(attribute.Int("app.stock", stock.Amount))
		if req.Amount > stock.Amount {
			return nil, reject(StockExceeded, "product %d: want %d, stock %d", req.ProductID, req.Amount, stock.Amount)
		}
		return current.WithAmount(req.ProductID, req.Amount), nil
	})
}

// mutate runs fn against a copy of the cart, persists its result and only
// then commits it in memory and publishes it.
func (s *Store) mutate(ctx context.Context, span trace.Span, op string, failKind ToastKind, fn func(context.Context, Cart) (Cart, error)) {
	log := s.log.WithField("op", op)

	s.mu.Lock()
	next, err := fn(ctx, s.cart.Clone())
	if err == nil {
		if setErr := s.deps.Storage.SetCart(ctx, s.sessionID, next); setErr != nil {
			err = errors.Wrap(setErr, "persist cart")
		}
	}
	var snapshot Cart
	if err == nil {
		s.cart = next
		snapshot = next.Clone()
	}
	s.mu.Unlock()

	var rej *rejection
	outcome := "ok"
	switch {
	case err == nil:
		log.WithField("items", snapshot.TotalItems()).Debug("cart updated")
		s.publish(snapshot)
	case errors.Is(err, errIgnored):
		outcome = "ignored"
	case errors.As(err, &rej):
		outcome = string(rej.kind)
		span.SetAttributes(attribute.String("app.rejection", rej.reason))
		log.WithField("reason", rej.reason).Info("cart operation rejected")
		s.notify(ctx, rej.kind)
	default:
		outcome = "failed"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.WithError(err).Error("cart operation failed")
		s.notify(ctx, failKind)
	}

	span.SetAttributes(attribute.String("app.outcome", outcome))
	if s.ops != nil {
		s.ops.Add(ctx, 1, metric.WithAttributes(
			attribute.String("op", op),
			attribute.String("outcome", outcome),
		))
	}
}

func (s *Store) notify(ctx context.Context, kind ToastKind) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, NewToast(kind))
}

func (s *Store) publish(c Cart) {
	s.subMu.Lock()
	subs := make([]func(Cart), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.subMu.Unlock()

	for _, fn := range subs {
		fn(c.Clone())
	}
}
