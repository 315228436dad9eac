package types

import (
	"github.com/tambongslade/pos-whatsapp-gateway/pkg/whatsapp"
)

type RequestSendText struct {
	Phone   string `json:"phone" form:"phone"`
	Message string `json:"message" form:"message"`
}

type RequestSendMedia struct {
	Phone   string `json:"phone" form:"phone"`
	Caption string `json:"caption" form:"caption"`
}

type RequestInvoice struct {
	Phone   string               `json:"phone" form:"phone"`
	Invoice whatsapp.InvoiceData `json:"invoice"`
}

type RequestLowStockReport struct {
	Phone    string                     `json:"phone"`
	Products []whatsapp.LowStockProduct `json:"products"`
}

type RequestFollowUp struct {
	OrderID       int64           `json:"order_id"`
	CustomerPhone string          `json:"customer_phone"`
	CustomerName  string          `json:"customer_name"`
	TotalAmount   whatsapp.Amount `json:"total_amount"`
}

type RequestStaffToken struct {
	StaffName  string `json:"staff_name"`
	Role       string `json:"role"`
	TTLMinutes int    `json:"ttl_minutes"`
}
