package notify

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/shopspring/decimal"
)

var templateText = map[Template]string{
	TopUpCredited: `<b>Payment received</b>

Your balance was topped up by ${{money .Amount}}.
Current balance: ${{money .Balance}}`,

	GenericFailure: `<b>We could not complete your order</b>

Your payment was received but fulfillment failed.
Please contact support and quote <code>{{.Ref}}</code>.`,

	OrderPlaced: `<b>Order placed</b>

{{.Product}} x{{.Quantity}} for @{{.Target}}
Paid: ${{money .Amount}}
Order: <code>{{.OrderId}}</code>`,

	ServicePaused: `<b>Service temporarily paused</b>

Your payment of ${{money .Amount}} is safe. The order for @{{.Target}} will be completed as soon as the service resumes.
Reference: <code>{{.Ref}}</code>`,

	OrderRefunded: `<b>Order could not be completed</b>

The order for @{{.Target}} could not be placed. ${{money .Amount}} was returned to your balance.
Reference: <code>{{.Ref}}</code>`,

	InvoiceExpired: `<b>Invoice expired</b>

The invoice for ${{money .Amount}} is no longer valid. Create a new one to continue.`,

	AdminOrderPlaced: `<b>New order</b>

Owner: {{.OwnerId}}
{{.Product}} x{{.Quantity}} for @{{.Target}}
Amount: ${{money .Amount}}
Order: <code>{{.OrderId}}</code>
Reference: <code>{{.Ref}}</code>`,

	AdminFundsExhausted: `<b>URGENT: fulfillment wallet is out of funds</b>

Owner {{.OwnerId}} paid ${{money .Amount}} for {{.Product}} x{{.Quantity}} (@{{.Target}}) and the order could not be placed.
Reference: <code>{{.Ref}}</code>
Top up the provider wallet and place the order manually.`,

	AdminDispatchStalled: `<b>Paid invoice needs manual review</b>

Owner: {{.OwnerId}}
Invoice: <code>{{.InvoiceId}}</code>
Amount: ${{money .Amount}}
{{.Reason}}`,
}

var templates = func() map[Template]*template.Template {
	funcs := template.FuncMap{
		"money": func(d decimal.Decimal) string { return d.StringFixed(2) },
	}
	parsed := make(map[Template]*template.Template, len(templateText))
	for name, text := range templateText {
		parsed[name] = template.Must(template.New(string(name)).Funcs(funcs).Parse(text))
	}
	return parsed
}()

// Render produces the Telegram HTML text for a template.
func Render(tmpl Template, msg Message) (string, error) {
	t, ok := templates[tmpl]
	if !ok {
		return "", fmt.Errorf("unknown notification template %q", tmpl)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, msg); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", tmpl, err)
	}
	return buf.String(), nil
}
