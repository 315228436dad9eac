package whatsapp

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Amount is a monetary value that tolerates string-typed input. The POS
// backend stores decimals as strings in several places, so payloads may carry
// either `12.5` or `"12.5"`; anything non-numeric coerces to zero.
type Amount float64

func (a *Amount) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*a = 0
		return nil
	}
	raw = strings.Trim(raw, `"`)
	if raw == "" {
		*a = 0
		return nil
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		*a = 0
		return nil
	}
	*a = Amount(value)
	return nil
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(float64(a))
}

func (a Amount) Value() float64 {
	return float64(a)
}

// InvoiceItem is a single line on a sale invoice.
type InvoiceItem struct {
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	UnitPrice   Amount `json:"unit_price"`
	Total       Amount `json:"total"`
}

// InvoiceData is the transient value object assembled by the caller for a
// one-shot invoice send. It is not retained after dispatch.
type InvoiceData struct {
	SaleID        int64         `json:"sale_id"`
	OrderID       int64         `json:"order_id"`
	Date          time.Time     `json:"date"`
	CustomerName  string        `json:"customer_name"`
	CashierName   string        `json:"cashier_name"`
	StoreName     string        `json:"store_name"`
	Items         []InvoiceItem `json:"items"`
	AmountPaid    Amount        `json:"amount_paid"`
	PaymentMethod string        `json:"payment_method"`
	Notes         string        `json:"notes"`
}

// LowStockProduct is one block of a low-stock report.
type LowStockProduct struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	StoreName string `json:"store_name"`
	Stock     int    `json:"stock"`
	Threshold int    `json:"low_stock_threshold"`
}

const messageSeparator = "──────────────────────────────"

// FormatInvoiceMessage renders a sale invoice as a WhatsApp text block.
// Pure: the same input always yields byte-identical output.
func FormatInvoiceMessage(data InvoiceData) string {
	var b strings.Builder

	storeName := data.StoreName
	if strings.TrimSpace(storeName) == "" {
		storeName = "Unknown"
	}
	customerName := data.CustomerName
	if strings.TrimSpace(customerName) == "" {
		customerName = "Walk-in Customer"
	}
	cashierName := data.CashierName
	if strings.TrimSpace(cashierName) == "" {
		cashierName = "Unknown"
	}

	b.WriteString("🧾 *INVOICE - " + storeName + "*\n\n")
	b.WriteString("📅 Date: " + data.Date.Format("02/01/2006") + "\n")
	b.WriteString(fmt.Sprintf("🆔 Sale ID: #%d\n", data.SaleID))
	b.WriteString(fmt.Sprintf("🆔 Order ID: #%d\n", data.OrderID))
	b.WriteString("👤 Customer: " + customerName + "\n")
	b.WriteString("👨‍💼 Cashier: " + cashierName + "\n\n")

	b.WriteString("📦 *ITEMS:*\n")
	b.WriteString(messageSeparator + "\n")
	for _, item := range data.Items {
		b.WriteString("• " + item.ProductName + "\n")
		b.WriteString(fmt.Sprintf("  Qty: %d × %.2f XAF = %.2f XAF\n\n",
			item.Quantity, item.UnitPrice.Value(), item.Total.Value()))
	}

	b.WriteString(messageSeparator + "\n")
	b.WriteString(fmt.Sprintf("💰 *TOTAL: %.2f XAF*\n", data.AmountPaid.Value()))
	b.WriteString("💳 Payment: " + data.PaymentMethod + "\n\n")

	if strings.TrimSpace(data.Notes) != "" {
		b.WriteString("📝 Notes: " + data.Notes + "\n\n")
	}

	b.WriteString("✅ *Payment Completed Successfully*\n")
	b.WriteString("Thank you for your business! 🙏\n\n")
	b.WriteString("For support, reply to this message.")

	return b.String()
}

// FormatPaymentReminderMessage renders a reminder for the given escalation
// stage. reminderCount is the count of the reminder being sent (1-based).
func FormatPaymentReminderMessage(orderID int64, customerName string, totalAmount float64, reminderCount int) string {
	var b strings.Builder

	b.WriteString("⏰ *Payment Reminder*\n\n")
	b.WriteString("Hi " + customerName + "! 👋\n\n")
	b.WriteString("We noticed your order is still pending payment:\n\n")
	b.WriteString(fmt.Sprintf("🆔 Order ID: #%d\n", orderID))
	b.WriteString(fmt.Sprintf("💰 Amount: %.2f XAF\n\n", totalAmount))

	switch reminderCount {
	case 1:
		b.WriteString("Please complete your payment to proceed with your order.\n\n")
		b.WriteString("If you have any questions, feel free to reply to this message.")
	case 2:
		b.WriteString("This is your second reminder. Your order will be cancelled if payment is not received within 24 hours.\n\n")
		b.WriteString("Need help? Reply to this message for assistance.")
	default:
		b.WriteString("Final reminder: Your order will be cancelled soon due to non-payment.\n\n")
		b.WriteString("Contact us immediately if you still want to proceed.")
	}

	return b.String()
}

// FormatLowStockReport renders one block per product at or below threshold.
func FormatLowStockReport(products []LowStockProduct) string {
	var b strings.Builder

	b.WriteString("🚨 *Low Stock Report* 🚨\n\n")
	b.WriteString("The following products are running low on stock:\n")
	b.WriteString(messageSeparator + "\n")

	for _, product := range products {
		storeName := product.StoreName
		if strings.TrimSpace(storeName) == "" {
			storeName = "N/A"
		}
		b.WriteString(fmt.Sprintf("📦 *%s* (ID: %d)\n", product.Name, product.ID))
		b.WriteString("   Store: " + storeName + "\n")
		b.WriteString(fmt.Sprintf("   Current Stock: *%d*\n", product.Stock))
		b.WriteString(fmt.Sprintf("   Threshold: %d\n", product.Threshold))
		b.WriteString(messageSeparator + "\n")
	}

	b.WriteString("\nPlease restock these items soon to avoid shortages.")

	return b.String()
}

// formatDeletionNotice describes a revoked message. When the original was not
// cached the content is reported as unknown rather than omitted silently.
func formatDeletionNotice(actorName string, originalSender string, chat string, content string, contentKnown bool) string {
	if !contentKnown {
		return fmt.Sprintf("A message was deleted by %s in %s, but its original content was not in cache.", actorName, chat)
	}
	return fmt.Sprintf("Message deleted by %s (sent by %s in %s):\n%q", actorName, originalSender, chat, content)
}

func formatStatusNotice(senderName string, content string) string {
	return fmt.Sprintf("Status from %s: %s", senderName, content)
}
