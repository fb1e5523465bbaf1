package ws

import (
	"context"
	"encoding/json"
)

// Event types.
const (
	TypeChange     = "change"
	TypeStockAlert = "stock_alert"
)

// Tables that appear on the change feed.
const (
	TableProducts   = "products"
	TableCategories = "categories"
	TableSales      = "sales"
	TableAppConfig  = "app_config"
)

// Row-level actions. RESET means the whole table was cleared.
const (
	ActionInsert = "INSERT"
	ActionUpdate = "UPDATE"
	ActionDelete = "DELETE"
	ActionReset  = "RESET"
)

// Event is one change-feed frame. Record carries the row (or alert) as JSON so
// consumers decode only what they need.
type Event struct {
	Type     string          `json:"type"`
	Table    string          `json:"table"`
	Action   string          `json:"action"`
	RecordID string          `json:"record_id,omitempty"`
	Record   json.RawMessage `json:"record,omitempty"`
}

// NewChange builds a change event for a row. A nil record sends only the id.
func NewChange(table, action, recordID string, record any) Event {
	return Event{
		Type:     TypeChange,
		Table:    table,
		Action:   action,
		RecordID: recordID,
		Record:   encodeRecord(record),
	}
}

// NewStockAlert builds a stock_alert event for a product.
func NewStockAlert(productID string, alert any) Event {
	return Event{
		Type:     TypeStockAlert,
		Table:    TableProducts,
		Action:   ActionUpdate,
		RecordID: productID,
		Record:   encodeRecord(alert),
	}
}

func encodeRecord(record any) json.RawMessage {
	if record == nil {
		return nil
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return nil
	}
	return raw
}

// Publisher fans events out to every connected client. Publish never blocks the
// caller on slow consumers.
type Publisher interface {
	Publish(ctx context.Context, evt Event)
}

// Discard is a Publisher that drops everything.
type Discard struct{}

func (Discard) Publish(context.Context, Event) {}
