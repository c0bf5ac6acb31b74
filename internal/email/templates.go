package email

import (
	"embed"
	"html/template"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

func parseTemplates() (*template.Template, error) {
	return template.ParseFS(templateFS, "templates/*.html")
}

// EmailTemplate defines the interface for email templates
type EmailTemplate interface {
	Subject() string
	TemplateName() string
}

// OrderConfirmationEmail represents an order confirmation email
type OrderConfirmationEmail struct {
	OrderNumber   string
	CustomerName  string
	OrderDate     time.Time
	PaymentMethod string
	Items         []OrderItem
	Subtotal      string
	Discount      string // empty when no discount applied
	Total         string
	Currency      string
	ShippingAddr  *Address // nil when the address could not be loaded
	OrderURL      string
}

func (e OrderConfirmationEmail) Subject() string {
	return "Order Confirmation - " + e.OrderNumber
}

func (e OrderConfirmationEmail) TemplateName() string {
	return "order_confirmation.html"
}

// OrderItem represents a line item in an order
type OrderItem struct {
	ProductName string
	Quantity    int
	UnitPrice   string
	Total       string
}

// Address represents a shipping address
type Address struct {
	Name       string
	Street     string
	City       string
	State      string
	PostalCode string
	Country    string
}
