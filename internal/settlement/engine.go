// Package settlement materializes orders from terminal payment events. All
// three trigger adapters (webhook, status poll, manual confirmation) converge
// here; this is the only place orders are created, and the only idempotency
// boundary in the system.
package settlement

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/nordmarkt/storefront/internal/currency"
	"github.com/nordmarkt/storefront/internal/domain/order"
	"github.com/nordmarkt/storefront/internal/notify"
)

// defaultFeePercent is the platform fee applied when the gateway did not
// report its own computed fee.
const defaultFeePercent = 10

// notifyTimeout bounds the detached notification dispatch.
const notifyTimeout = 30 * time.Second

// ErrInProgress is returned when a duplicate settlement lost the insert race
// but the winning transaction has not committed yet. Callers should retry;
// for the webhook adapter that means letting the gateway redeliver.
var ErrInProgress = errors.New("settlement in progress")

// ErrFeeExceedsGross is returned when the reported platform fee is larger
// than the gross amount.
var ErrFeeExceedsGross = errors.New("platform fee exceeds gross amount")

// Line is one cart line as it should be materialized on the order.
type Line struct {
	ProductID   string
	ProductName string
	BrandName   string
	Size        string
	Quantity    int
	Image       string

	// UnitPrice is the authoritative per-unit price in the listing currency.
	// It is normalized to the settlement currency here, at settlement time,
	// not at browse time.
	UnitPrice decimal.Decimal
	Currency  string
}

// Request is the input to Settle. PaymentRef is the idempotency marker,
// uniquely derived from the upstream payment event ("<provider>:<id>").
type Request struct {
	PaymentRef    string
	PaymentMethod string
	BuyerID       string
	BrandID       string
	BuyerEmail    string
	Lines         []Line
	Shipping      order.Address

	// GrossMinor is the captured amount in minor units of Currency.
	GrossMinor int64
	Currency   string

	// FeeMinor is the gateway-reported platform fee in settlement-currency
	// minor units; zero means the gateway did not report one and the default
	// percentage applies.
	FeeMinor int64
}

// Converter normalizes money into settlement-currency minor units.
type Converter interface {
	ToSettlement(ctx context.Context, amount decimal.Decimal, currency string) (int64, error)
	NormalizeMinor(ctx context.Context, minor int64, currency string) (int64, error)
}

// Notifier receives the facts of a completed settlement.
type Notifier interface {
	Dispatch(ctx context.Context, s notify.Settled)
}

// Engine is the idempotent order materializer.
type Engine struct {
	store     Store
	converter Converter
	notifier  Notifier
	seen      *markerFilter
	now       func() time.Time

	tracer     trace.Tracer
	settled    metric.Int64Counter
	duplicates metric.Int64Counter
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithClock injects the time source used for the daily-aggregate day.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// WithTelemetry wires the engine's span and counters into the given
// providers. Without it the engine uses no-op telemetry.
func WithTelemetry(tp trace.TracerProvider, mp metric.MeterProvider) EngineOption {
	return func(e *Engine) {
		e.tracer = tp.Tracer("storefront.settlement")
		meter := mp.Meter("storefront.settlement")
		e.settled, _ = meter.Int64Counter("settlement.orders.settled")
		e.duplicates, _ = meter.Int64Counter("settlement.orders.duplicate")
	}
}

// NewEngine creates an Engine with the required dependencies.
func NewEngine(store Store, converter Converter, notifier Notifier, opts ...EngineOption) *Engine {
	e := &Engine{
		store:     store,
		converter: converter,
		notifier:  notifier,
		seen:      newMarkerFilter(),
		now:       time.Now,
	}
	WithTelemetry(tracenoop.NewTracerProvider(), metricnoop.NewMeterProvider())(e)
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Settle turns a terminal payment signal into exactly one order and returns
// its number. Safe to call concurrently and repeatedly with the same payment
// reference: the first caller to commit wins, everyone else resolves to the
// same number.
//
// Order, items, stock decrement, ledger credit, and the daily rollup commit
// in one transaction. Notification dispatch runs afterwards, detached, and
// cannot fail the settlement.
func (e *Engine) Settle(ctx context.Context, req Request) (int64, error) {
	ctx, span := e.tracer.Start(ctx, "settlement.Settle",
		trace.WithAttributes(attribute.String("payment.ref", req.PaymentRef)),
	)
	defer span.End()

	if err := validateRequest(req); err != nil {
		return 0, err
	}

	// Fast path: the bloom filter knows every reference this process has
	// settled, so a webhook/poll double fire usually resolves without an
	// insert attempt. A miss here proves nothing; the unique constraint on
	// the payment reference is the actual duplicate defense.
	if e.seen.maybeSettled(req.PaymentRef) {
		number, err := e.store.FindOrderNumberByRef(ctx, req.PaymentRef)
		switch {
		case err == nil:
			e.duplicates.Add(ctx, 1)
			return number, nil
		case !errors.Is(err, order.ErrNotFound):
			return 0, errors.Wrap(err, "lookup existing order")
		}
	}

	gross, err := e.converter.NormalizeMinor(ctx, req.GrossMinor, req.Currency)
	if err != nil {
		return 0, errors.Wrap(err, "normalize gross")
	}

	fee := req.FeeMinor
	if fee <= 0 {
		fee = defaultFee(gross)
	}
	if fee > gross {
		return 0, ErrFeeExceedsGross
	}
	sellerAmount := gross - fee

	o, items, err := e.materialize(ctx, req, gross)
	if err != nil {
		return 0, err
	}

	var number int64
	err = e.store.WithinTx(ctx, func(tx TxStore) error {
		n, err := tx.CreateOrder(ctx, o, items)
		if err != nil {
			return err
		}
		number = n

		for _, it := range items {
			if err := tx.DecrementStock(ctx, it.ProductID, it.Size, it.Quantity); err != nil {
				return errors.Wrapf(err, "decrement stock for %s/%s", it.ProductID, it.Size)
			}
		}

		if err := tx.CreditLedger(ctx, req.BrandID, sellerAmount); err != nil {
			return errors.Wrap(err, "credit ledger")
		}

		day := e.now().UTC().Truncate(24 * time.Hour)
		if err := tx.BumpDailyStat(ctx, req.BrandID, day, sellerAmount); err != nil {
			return errors.Wrap(err, "bump daily stat")
		}
		return nil
	})
	if errors.Is(err, order.ErrDuplicateRef) {
		// Lost the race to another trigger. The winner's row is visible by
		// now in the common case; if it isn't, its transaction is still
		// in flight and the caller must retry.
		e.seen.add(req.PaymentRef)
		number, lookupErr := e.store.FindOrderNumberByRef(ctx, req.PaymentRef)
		if lookupErr != nil {
			if errors.Is(lookupErr, order.ErrNotFound) {
				return 0, ErrInProgress
			}
			return 0, errors.Wrap(lookupErr, "lookup winning order")
		}
		e.duplicates.Add(ctx, 1)
		return number, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "settle")
	}

	e.seen.add(req.PaymentRef)
	e.settled.Add(ctx, 1, metric.WithAttributes(attribute.String("payment.method", req.PaymentMethod)))

	e.dispatchNotification(ctx, o, number, items)

	return number, nil
}

// materialize builds the order row and item snapshots, converting every unit
// price to the settlement currency at this moment.
func (e *Engine) materialize(ctx context.Context, req Request, grossMinor int64) (*order.Order, []order.Item, error) {
	items := make([]order.Item, len(req.Lines))
	for i, line := range req.Lines {
		unitMinor, err := e.converter.ToSettlement(ctx, line.UnitPrice, line.Currency)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "normalize price of product %s", line.ProductID)
		}
		items[i] = order.Item{
			ProductID:      line.ProductID,
			ProductName:    line.ProductName,
			BrandName:      line.BrandName,
			UnitPriceMinor: unitMinor,
			Size:           line.Size,
			Quantity:       line.Quantity,
			Image:          line.Image,
		}
	}

	o := &order.Order{
		ID:            uuid.New().String(),
		BuyerID:       req.BuyerID,
		BrandID:       req.BrandID,
		Status:        order.StatusPending,
		PaymentStatus: order.PaymentPaid,
		PaymentMethod: req.PaymentMethod,
		PaymentRef:    req.PaymentRef,
		TotalMinor:    grossMinor,
		Currency:      currency.Settlement,
		Shipping:      req.Shipping,
	}
	return o, items, nil
}

// dispatchNotification hands off to the notifier on a detached context so a
// slow or failing dispatch cannot block or fail the settlement response.
func (e *Engine) dispatchNotification(ctx context.Context, o *order.Order, number int64, items []order.Item) {
	lg := zctx.From(ctx)
	summaries := make([]notify.ItemSummary, len(items))
	for i, it := range items {
		summaries[i] = notify.ItemSummary{
			Name:           it.ProductName,
			Size:           it.Size,
			Quantity:       it.Quantity,
			UnitPriceMinor: it.UnitPriceMinor,
		}
	}
	settled := notify.Settled{
		OrderID:     o.ID,
		OrderNumber: number,
		BrandID:     o.BrandID,
		BuyerID:     o.BuyerID,
		TotalMinor:  o.TotalMinor,
		Currency:    o.Currency,
		Items:       summaries,
	}

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				lg.Error("Notification dispatch panicked", zap.Any("panic", rec))
			}
		}()
		nctx, cancel := context.WithTimeout(zctx.Base(context.Background(), lg), notifyTimeout)
		defer cancel()
		e.notifier.Dispatch(nctx, settled)
	}()
}

func validateRequest(req Request) error {
	switch {
	case req.PaymentRef == "":
		return errors.New("payment reference required")
	case req.BuyerID == "":
		return errors.New("buyer required")
	case req.BrandID == "":
		return errors.New("brand required")
	case len(req.Lines) == 0:
		return errors.New("order lines required")
	case req.GrossMinor <= 0:
		return errors.New("gross amount must be positive")
	}
	for _, line := range req.Lines {
		if line.Quantity <= 0 {
			return errors.Errorf("quantity must be greater than 0 for product %s", line.ProductID)
		}
	}
	return nil
}

// defaultFee computes the fixed-percentage platform fee in minor units,
// rounding half away from zero.
func defaultFee(grossMinor int64) int64 {
	return decimal.NewFromInt(grossMinor).
		Mul(decimal.NewFromInt(defaultFeePercent)).
		Div(decimal.NewFromInt(100)).
		Round(0).IntPart()
}
