package ticket

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/comanda-pos/api/internal/enum"
)

const lineWidth = 32

var (
	doubleRule = strings.Repeat("=", lineWidth)
	singleRule = strings.Repeat("-", lineWidth)
)

// Ticket is everything the kitchen printer needs for one order.
type Ticket struct {
	OrderID     int64
	OrderNumber string
	TenantName  string
	Customer    string
	Phone       string
	Address     string
	Fulfillment string
	Notes       string
	Total       decimal.Decimal
	Items       []Item
	PrintedAt   time.Time // zero means now
}

// Item is one ticket row. DisplayNote carries either the variant note
// (printed as a sub-line) or the marked offer title (replaces the name).
type Item struct {
	Quantity    int32
	Name        string
	DisplayNote string
}

func (t Ticket) printedAt() time.Time {
	if t.PrintedAt.IsZero() {
		return time.Now()
	}
	return t.PrintedAt
}

// itemText resolves the printed name and optional note sub-line. An offer
// marker in the display note replaces the name with the bare offer title; any
// other note prints under the item.
func (i Item) itemText() (name, note string) {
	name = i.Name
	if i.DisplayNote == "" {
		return name, ""
	}
	if strings.HasPrefix(i.DisplayNote, enum.OfferMarker) {
		return strings.TrimPrefix(i.DisplayNote, enum.OfferMarker), ""
	}
	return name, i.DisplayNote
}

// RenderKitchen renders the full ESC/POS kitchen comanda.
func RenderKitchen(t Ticket) []byte {
	var b bytes.Buffer
	now := t.printedAt()

	b.Write(escInit)
	b.Write(alignCenter)
	b.Write(boldOn)
	b.Write(sizeDouble)
	line(&b, Sanitize(strings.ToUpper(t.TenantName)))
	b.Write(sizeNormal)
	b.Write(boldOff)
	line(&b, "COMANDA DE COCINA")
	line(&b, doubleRule)
	line(&b, "")

	b.Write(boldOn)
	b.Write(sizeDouble)
	line(&b, "PEDIDO #"+Sanitize(t.OrderNumber))
	b.Write(sizeNormal)
	b.Write(boldOff)
	line(&b, "")
	line(&b, doubleRule)
	b.Write(boldOn)
	line(&b, "  PREPARAR INMEDIATAMENTE")
	b.Write(boldOff)
	line(&b, doubleRule)
	line(&b, "")

	b.Write(alignLeft)
	writeMetadata(&b, t, now)
	line(&b, "")

	line(&b, singleRule)
	b.Write(alignCenter)
	b.Write(boldOn)
	b.WriteString("ITEMS DEL PEDIDO")
	b.Write(boldOff)
	b.WriteByte('\n')
	line(&b, singleRule)
	b.Write(alignLeft)
	line(&b, "")

	for _, item := range t.Items {
		name, note := item.itemText()

		b.Write(boldOn)
		b.Write(sizeDouble)
		line(&b, fmt.Sprintf("%dx %s", item.Quantity, Sanitize(name)))
		b.Write(sizeNormal)
		b.Write(boldOff)

		if note != "" {
			b.Write(boldOn)
			b.Write(sizeDoubleHeight)
			line(&b, ">> "+Sanitize(note))
			b.Write(sizeNormal)
			b.Write(boldOff)
		}
		line(&b, "")
	}

	line(&b, singleRule)
	b.Write(boldOn)
	b.Write(sizeDouble)
	line(&b, "TOTAL: $"+formatAmount(t.Total))
	b.Write(sizeNormal)
	b.Write(boldOff)
	line(&b, singleRule)

	if strings.TrimSpace(t.Notes) != "" {
		line(&b, "")
		b.Write(boldOn)
		b.Write(sizeDoubleHeight)
		line(&b, "NOTAS:")
		line(&b, Sanitize(t.Notes))
		b.Write(sizeNormal)
		b.Write(boldOff)
	}

	line(&b, "")
	b.Write(alignCenter)
	line(&b, "Verificar items antes de entregar")
	line(&b, doubleRule)
	b.WriteString("\n\n\n")
	b.Write(cut)

	return b.Bytes()
}

// RenderPaymentLink renders a customer-facing ticket whose body is a native
// QR code pointing at the payment link instead of item rows.
func RenderPaymentLink(t Ticket, link string) []byte {
	var b bytes.Buffer
	now := t.printedAt()

	b.Write(escInit)
	b.Write(alignCenter)
	b.Write(boldOn)
	b.Write(sizeDouble)
	line(&b, Sanitize(strings.ToUpper(t.TenantName)))
	b.Write(sizeNormal)
	b.Write(boldOff)
	line(&b, "PEDIDO #"+Sanitize(t.OrderNumber))
	line(&b, doubleRule)
	line(&b, "")

	b.Write(alignLeft)
	writeMetadata(&b, t, now)
	line(&b, "")

	b.Write(alignCenter)
	b.Write(boldOn)
	line(&b, "PAGUE AQUI")
	b.Write(boldOff)
	line(&b, "")
	b.Write(qrCode(link))
	line(&b, "")

	b.Write(boldOn)
	b.Write(sizeDouble)
	line(&b, "TOTAL: $"+formatAmount(t.Total))
	b.Write(sizeNormal)
	b.Write(boldOff)
	line(&b, doubleRule)
	b.WriteString("\n\n\n")
	b.Write(cut)

	return b.Bytes()
}

// PlainText renders the simplified ticket used for the audit copy and the
// last-resort print path: no control codes, plain lines only.
func PlainText(t Ticket) string {
	now := t.printedAt()
	var lines []string

	rule := strings.Repeat("=", 40)
	lines = append(lines,
		rule,
		"  "+Sanitize(strings.ToUpper(t.TenantName)),
		"  COMANDA DE COCINA",
		rule,
		"  PEDIDO #"+Sanitize(t.OrderNumber),
		doubleRule,
		"  PREPARAR INMEDIATAMENTE",
		doubleRule,
		"Fecha: "+now.Format("02/01/2006"),
		"Hora:  "+now.Format("15:04"),
		"Cliente: "+Sanitize(orDefault(t.Customer, "N/A")),
	)

	for _, item := range t.Items {
		name, note := item.itemText()
		if note != "" {
			name = name + " - " + note
		}
		lines = append(lines, fmt.Sprintf("  %dx %s", item.Quantity, Sanitize(name)))
	}

	lines = append(lines,
		"  TOTAL: $"+formatAmount(t.Total),
		doubleRule,
	)
	return strings.Join(lines, "\n")
}

// --- helpers ---

func line(b *bytes.Buffer, s string) {
	b.WriteString(s)
	b.WriteByte('\n')
}

func writeMetadata(b *bytes.Buffer, t Ticket, now time.Time) {
	line(b, "Fecha: "+now.Format("02/01/2006"))
	line(b, "Hora:  "+now.Format("15:04"))
	line(b, "Cliente: "+Sanitize(orDefault(t.Customer, "N/A")))
	line(b, "Tel: "+Sanitize(orDefault(t.Phone, "N/A")))
	if t.Address != "" {
		line(b, "Dir: "+Sanitize(t.Address))
	}
	line(b, "Tipo: "+Sanitize(strings.ToUpper(t.Fulfillment)))
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// formatAmount renders the total the way the comanda shows it: rounded to
// whole units with thousands separators.
func formatAmount(d decimal.Decimal) string {
	s := d.Round(0).StringFixed(0)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}

	var parts []string
	for len(s) > 3 {
		parts = append([]string{s[len(s)-3:]}, parts...)
		s = s[:len(s)-3]
	}
	parts = append([]string{s}, parts...)

	out := strings.Join(parts, ",")
	if neg {
		out = "-" + out
	}
	return out
}
