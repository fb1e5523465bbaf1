package syncclient

import (
	"sort"
	"sync"

	"go-pos-sync/internal/model"
	"go-pos-sync/internal/service"

	"github.com/google/uuid"
)

// SalePatch carries the mutable fields of a sales UPDATE frame.
type SalePatch struct {
	ID         uuid.UUID        `json:"id"`
	Status     model.SaleStatus `json:"status"`
	AdminNotes *string          `json:"admin_notes"`
}

// State is the client-side mirror of the store. Only the engine goroutine writes
// to it; any goroutine may read.
type State struct {
	mu         sync.RWMutex
	products   []model.Product
	categories []model.Category
	sales      map[uuid.UUID]model.Sale
	marker     model.LogoutMarker
}

func NewState() *State {
	return &State{
		products:   []model.Product{},
		categories: []model.Category{},
		sales:      map[uuid.UUID]model.Sale{},
	}
}

// Replace swaps in a full snapshot.
func (s *State) Replace(snap *service.Snapshot) {
	sales := make(map[uuid.UUID]model.Sale, len(snap.Sales))
	for _, sale := range snap.Sales {
		if sale.Status.Visible() {
			sales[sale.ID] = sale
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.products = append([]model.Product{}, snap.Products...)
	s.categories = append([]model.Category{}, snap.Categories...)
	s.sales = sales
	if snap.LogoutMarker.After(s.marker) {
		s.marker = snap.LogoutMarker
	}
}

func (s *State) SetProducts(products []model.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products = append([]model.Product{}, products...)
}

func (s *State) SetCategories(categories []model.Category) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories = append([]model.Category{}, categories...)
}

// Upsert describes what UpsertSale did with a sale.
type Upsert int

const (
	UpsertIgnored Upsert = iota
	UpsertInserted
	UpsertReplaced
)

// UpsertSale inserts or replaces a sale by id. Drafts are ignored and a sale
// never moves back from Completed to Pending.
func (s *State) UpsertSale(sale model.Sale) Upsert {
	if !sale.Status.Visible() {
		return UpsertIgnored
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, known := s.sales[sale.ID]
	if known && current.Status == model.SaleCompleted {
		sale.Status = model.SaleCompleted
	}
	s.sales[sale.ID] = sale
	if known {
		return UpsertReplaced
	}
	return UpsertInserted
}

// PatchSale applies status and admin note changes to a known sale. It returns
// false when the sale is not mirrored yet.
func (s *State) PatchSale(patch SalePatch) (model.Sale, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sale, ok := s.sales[patch.ID]
	if !ok {
		return model.Sale{}, false
	}
	if patch.Status != "" && sale.Status.CanTransitionTo(patch.Status) {
		sale.Status = patch.Status
	}
	sale.AdminNotes = patch.AdminNotes
	s.sales[patch.ID] = sale
	return sale, true
}

func (s *State) ClearSales() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sales = map[uuid.UUID]model.Sale{}
}

// ObserveMarker records a logout marker and reports whether it moved forward.
func (s *State) ObserveMarker(marker model.LogoutMarker) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !marker.After(s.marker) {
		return false
	}
	s.marker = marker
	return true
}

func (s *State) Marker() model.LogoutMarker {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.marker
}

func (s *State) Products() []model.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Product{}, s.products...)
}

func (s *State) Categories() []model.Category {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Category{}, s.categories...)
}

func (s *State) Sale(id uuid.UUID) (model.Sale, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sale, ok := s.sales[id]
	return sale, ok
}

// History lists every mirrored sale, newest first.
func (s *State) History() []model.Sale {
	sales := s.collect(func(model.Sale) bool { return true })
	sort.Slice(sales, func(i, j int) bool {
		if !sales[i].CreatedAt.Equal(sales[j].CreatedAt) {
			return sales[i].CreatedAt.After(sales[j].CreatedAt)
		}
		return sales[i].OrderNumber > sales[j].OrderNumber
	})
	return sales
}

// Pending lists the orders board queue, lowest order number first.
func (s *State) Pending() []model.Sale {
	sales := s.collect(func(sale model.Sale) bool { return sale.Status == model.SalePending })
	sort.Slice(sales, func(i, j int) bool {
		return sales[i].OrderNumber < sales[j].OrderNumber
	})
	return sales
}

func (s *State) collect(keep func(model.Sale) bool) []model.Sale {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Sale, 0, len(s.sales))
	for _, sale := range s.sales {
		if keep(sale) {
			out = append(out, sale)
		}
	}
	return out
}
