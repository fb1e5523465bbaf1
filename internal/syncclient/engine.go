package syncclient

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go-pos-sync/internal/model"
	"go-pos-sync/internal/service"
	"go-pos-sync/internal/ws"
	apperrors "go-pos-sync/pkg/errors"
	"go-pos-sync/pkg/logger"

	"github.com/google/uuid"
)

// ErrLoggedOut is returned by Run once a global logout revoked this session.
var ErrLoggedOut = errors.New("session signed out by a global logout")

// Source answers the reads the engine needs from the API.
type Source interface {
	Snapshot(ctx context.Context) (*service.Snapshot, error)
	Products(ctx context.Context) ([]model.Product, error)
	Categories(ctx context.Context) ([]model.Category, error)
	Sale(ctx context.Context, id uuid.UUID) (*model.Sale, error)
	LogoutMarker(ctx context.Context) (model.LogoutMarker, error)
}

// Feed opens a change stream. The channel is closed when the connection drops.
type Feed interface {
	Connect(ctx context.Context) (<-chan ws.Event, error)
}

// Handlers are invoked on the engine goroutine. Nil fields are skipped.
type Handlers struct {
	Synced            func(state *State)
	ProductsChanged   func(products []model.Product)
	CategoriesChanged func(categories []model.Category)
	SaleCreated       func(sale model.Sale)
	SaleUpdated       func(sale model.Sale)
	SalesReset        func()
	StockAlert        func(alert service.StockAlert)
	ForcedLogout      func(marker model.LogoutMarker)
}

type Options struct {
	PollInterval time.Duration
	// ResyncEvery re-fetches a full snapshot every N polls. Zero disables it.
	ResyncEvery int
	// IssuedAt is the session's issue instant, compared against the logout marker.
	IssuedAt     time.Time
	ReconnectMin time.Duration
	ReconnectMax time.Duration
	Logger       *logger.Logger
}

const (
	defaultPollInterval = 3 * time.Second
	defaultReconnectMin = 500 * time.Millisecond
	defaultReconnectMax = 30 * time.Second
)

type Engine struct {
	source Source
	feed   Feed
	opts   Options
	logg   *logger.Logger
	state  *State

	mu     sync.Mutex
	subs   map[int]Handlers
	nextID int
}

func NewEngine(source Source, feed Feed, opts Options) *Engine {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.ReconnectMin <= 0 {
		opts.ReconnectMin = defaultReconnectMin
	}
	if opts.ReconnectMax < opts.ReconnectMin {
		opts.ReconnectMax = defaultReconnectMax
		if opts.ReconnectMax < opts.ReconnectMin {
			opts.ReconnectMax = opts.ReconnectMin
		}
	}
	logg := opts.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Engine{
		source: source,
		feed:   feed,
		opts:   opts,
		logg:   logg,
		state:  NewState(),
		subs:   map[int]Handlers{},
	}
}

func (e *Engine) State() *State {
	return e.state
}

// Subscribe registers handlers and returns a func that removes them.
func (e *Engine) Subscribe(h Handlers) func() {
	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.subs[id] = h
	e.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.subs, id)
			e.mu.Unlock()
		})
	}
}

func (e *Engine) handlers() []Handlers {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Handlers, 0, len(e.subs))
	for _, h := range e.subs {
		out = append(out, h)
	}
	return out
}

// Run loads a snapshot and then applies feed events and polls until ctx is done
// or the session is revoked.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.resync(ctx); err != nil {
		return err
	}

	feedCtx, stopFeed := context.WithCancel(ctx)
	defer stopFeed()

	events := make(chan ws.Event, 64)
	reconnected := make(chan struct{}, 1)
	if e.feed != nil {
		go e.pumpFeed(feedCtx, events, reconnected)
	}

	ticker := time.NewTicker(e.opts.PollInterval)
	defer ticker.Stop()

	polls := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt := <-events:
			if err := e.apply(ctx, evt); err != nil {
				if errors.Is(err, ErrLoggedOut) {
					return err
				}
				e.logg.Error(e.logg.WithFields(ctx, map[string]any{"table": evt.Table, "action": evt.Action}), "failed to apply change", err)
			}
		case <-reconnected:
			if err := e.resync(ctx); err != nil {
				if errors.Is(err, ErrLoggedOut) {
					return err
				}
				e.logg.Error(ctx, "resync after reconnect failed", err)
			}
		case <-ticker.C:
			polls++
			if err := e.poll(ctx, polls); err != nil {
				if errors.Is(err, ErrLoggedOut) {
					return err
				}
				e.logg.Warn(e.logg.WithField(ctx, "error", err.Error()), "poll failed")
			}
		}
	}
}

// resync replaces the mirror with a fresh snapshot.
func (e *Engine) resync(ctx context.Context) error {
	snap, err := e.source.Snapshot(ctx)
	if err != nil {
		if apperrors.HasCode(err, apperrors.CodeSessionRevoked) {
			return e.loggedOut(ctx, e.state.Marker())
		}
		return err
	}
	e.state.Replace(snap)
	if snap.LogoutMarker.Revokes(e.opts.IssuedAt) {
		return e.loggedOut(ctx, snap.LogoutMarker)
	}
	for _, h := range e.handlers() {
		if h.Synced != nil {
			h.Synced(e.state)
		}
	}
	return nil
}

func (e *Engine) poll(ctx context.Context, polls int) error {
	marker, err := e.source.LogoutMarker(ctx)
	if err != nil {
		return err
	}
	if err := e.observeMarker(ctx, marker); err != nil {
		return err
	}
	if e.opts.ResyncEvery > 0 && polls%e.opts.ResyncEvery == 0 {
		return e.resync(ctx)
	}
	return nil
}

func (e *Engine) observeMarker(ctx context.Context, marker model.LogoutMarker) error {
	e.state.ObserveMarker(marker)
	if marker.Revokes(e.opts.IssuedAt) {
		return e.loggedOut(ctx, marker)
	}
	return nil
}

func (e *Engine) loggedOut(ctx context.Context, marker model.LogoutMarker) error {
	e.logg.Warn(ctx, "session revoked by global logout")
	for _, h := range e.handlers() {
		if h.ForcedLogout != nil {
			h.ForcedLogout(marker)
		}
	}
	return ErrLoggedOut
}

func (e *Engine) apply(ctx context.Context, evt ws.Event) error {
	if evt.Type == ws.TypeStockAlert {
		var alert service.StockAlert
		if err := json.Unmarshal(evt.Record, &alert); err != nil {
			return err
		}
		for _, h := range e.handlers() {
			if h.StockAlert != nil {
				h.StockAlert(alert)
			}
		}
		return nil
	}

	switch evt.Table {
	case ws.TableProducts:
		return e.refreshProducts(ctx)
	case ws.TableCategories:
		return e.refreshCategories(ctx)
	case ws.TableSales:
		return e.applySale(ctx, evt)
	case ws.TableAppConfig:
		return e.applyConfig(ctx, evt)
	default:
		return nil
	}
}

func (e *Engine) refreshProducts(ctx context.Context) error {
	products, err := e.source.Products(ctx)
	if err != nil {
		return err
	}
	e.state.SetProducts(products)
	for _, h := range e.handlers() {
		if h.ProductsChanged != nil {
			h.ProductsChanged(e.state.Products())
		}
	}
	return nil
}

func (e *Engine) refreshCategories(ctx context.Context) error {
	categories, err := e.source.Categories(ctx)
	if err != nil {
		return err
	}
	e.state.SetCategories(categories)
	for _, h := range e.handlers() {
		if h.CategoriesChanged != nil {
			h.CategoriesChanged(e.state.Categories())
		}
	}
	return nil
}

func (e *Engine) applySale(ctx context.Context, evt ws.Event) error {
	switch evt.Action {
	case ws.ActionReset:
		e.state.ClearSales()
		for _, h := range e.handlers() {
			if h.SalesReset != nil {
				h.SalesReset()
			}
		}
		return nil
	case ws.ActionInsert:
		id, err := uuid.Parse(evt.RecordID)
		if err != nil {
			return err
		}
		return e.fetchSale(ctx, id)
	case ws.ActionUpdate:
		id, err := uuid.Parse(evt.RecordID)
		if err != nil {
			return err
		}
		patch := SalePatch{}
		if len(evt.Record) > 0 {
			if err := json.Unmarshal(evt.Record, &patch); err != nil {
				return err
			}
		}
		patch.ID = id
		if patch.Status == "" {
			return e.fetchSale(ctx, id)
		}
		sale, ok := e.state.PatchSale(patch)
		if !ok {
			return e.fetchSale(ctx, id)
		}
		for _, h := range e.handlers() {
			if h.SaleUpdated != nil {
				h.SaleUpdated(sale)
			}
		}
		return nil
	default:
		return nil
	}
}

// fetchSale loads one sale with its items and upserts it. A sale the API no
// longer shows is skipped. Handlers see SaleCreated only the first time an id
// is mirrored; later fetches of the same id report SaleUpdated.
func (e *Engine) fetchSale(ctx context.Context, id uuid.UUID) error {
	sale, err := e.source.Sale(ctx, id)
	if err != nil {
		if apperrors.HasCode(err, apperrors.CodeNotFound) {
			return nil
		}
		return err
	}
	result := e.state.UpsertSale(*sale)
	if result == UpsertIgnored {
		return nil
	}
	mirrored, _ := e.state.Sale(id)
	for _, h := range e.handlers() {
		fn := h.SaleUpdated
		if result == UpsertInserted {
			fn = h.SaleCreated
		}
		if fn != nil {
			fn(mirrored)
		}
	}
	return nil
}

func (e *Engine) applyConfig(ctx context.Context, evt ws.Event) error {
	if evt.RecordID != model.ConfigLastGlobalLogoutAt {
		return nil
	}
	var marker model.LogoutMarker
	if len(evt.Record) == 0 || json.Unmarshal(evt.Record, &marker) != nil {
		fetched, err := e.source.LogoutMarker(ctx)
		if err != nil {
			return err
		}
		marker = fetched
	}
	return e.observeMarker(ctx, marker)
}

// pumpFeed keeps the change feed connected, backing off between attempts. Every
// reconnect after the first asks the engine to resync.
func (e *Engine) pumpFeed(ctx context.Context, out chan<- ws.Event, reconnected chan<- struct{}) {
	backoff := e.opts.ReconnectMin
	connected := false
	for {
		stream, err := e.feed.Connect(ctx)
		if err == nil {
			if connected {
				select {
				case reconnected <- struct{}{}:
				default:
				}
			}
			connected = true
			backoff = e.opts.ReconnectMin
			e.logg.Info(ctx, "change feed connected")
			for evt := range stream {
				select {
				case out <- evt:
				case <-ctx.Done():
					return
				}
			}
			if ctx.Err() != nil {
				return
			}
			e.logg.Warn(ctx, "change feed dropped")
		} else if ctx.Err() == nil {
			e.logg.Warn(e.logg.WithField(ctx, "error", err.Error()), "change feed connect failed")
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		backoff *= 2
		if backoff > e.opts.ReconnectMax {
			backoff = e.opts.ReconnectMax
		}
	}
}
