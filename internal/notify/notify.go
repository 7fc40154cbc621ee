package notify

import (
	"context"

	"github.com/shopspring/decimal"
)

// Template names a notification message.
type Template string

const (
	TopUpCredited        Template = "topup_credited"
	GenericFailure       Template = "generic_failure"
	OrderPlaced          Template = "order_placed"
	ServicePaused        Template = "service_paused"
	OrderRefunded        Template = "order_refunded"
	InvoiceExpired       Template = "invoice_expired"
	AdminOrderPlaced     Template = "admin_order_placed"
	AdminFundsExhausted  Template = "admin_funds_exhausted"
	AdminDispatchStalled Template = "admin_dispatch_stalled"
)

// Message carries the values a template may reference. Unused fields are ignored.
type Message struct {
	OwnerId   int64
	InvoiceId string
	Reference string
	OrderId   string
	Product   string
	Target    string
	Quantity  int
	Amount    decimal.Decimal
	Balance   decimal.Decimal
	Reason    string
}

// Ref is the identifier an owner quotes to support: the invoice id, or the
// ledger reference for purchases paid from balance.
func (m Message) Ref() string {
	if m.InvoiceId != "" {
		return m.InvoiceId
	}
	return m.Reference
}

// Notifier delivers best-effort messages to owners and operators.
// Callers log returned errors and carry on.
type Notifier interface {
	NotifyOwner(ctx context.Context, ownerId int64, tmpl Template, msg Message) error
	NotifyAdmins(ctx context.Context, tmpl Template, msg Message) error
}

type NoOp struct{}

func (NoOp) NotifyOwner(ctx context.Context, ownerId int64, tmpl Template, msg Message) error {
	return nil
}

func (NoOp) NotifyAdmins(ctx context.Context, tmpl Template, msg Message) error {
	return nil
}
