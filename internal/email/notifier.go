package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"strings"

	"github.com/dukerupert/decks/internal/domain"
	"github.com/dukerupert/decks/internal/telemetry"
	"github.com/google/uuid"
)

const emailTypeOrderConfirmation = "order_confirmation"

// AddressLookup loads the shipping address printed in confirmations.
type AddressLookup interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Address, error)
}

// OrderNotifier implements domain.Notifier by emailing an order confirmation
// to the order's contact address.
type OrderNotifier struct {
	sender      Sender
	addresses   AddressLookup
	fromAddress string
	fromName    string
	baseURL     string
	templates   *template.Template
	logger      *slog.Logger
}

var _ domain.Notifier = (*OrderNotifier)(nil)

// NewOrderNotifier parses the embedded templates. addresses may be nil.
func NewOrderNotifier(sender Sender, addresses AddressLookup, fromAddress, fromName, baseURL string, logger *slog.Logger) (*OrderNotifier, error) {
	tmpl, err := parseTemplates()
	if err != nil {
		return nil, fmt.Errorf("failed to parse email templates: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OrderNotifier{
		sender:      sender,
		addresses:   addresses,
		fromAddress: fromAddress,
		fromName:    fromName,
		baseURL:     strings.TrimRight(baseURL, "/"),
		templates:   tmpl,
		logger:      logger,
	}, nil
}

// OrderConfirmed sends the confirmation email for a binding order.
func (n *OrderNotifier) OrderConfirmed(ctx context.Context, order *domain.Order) error {
	if order.ContactEmail == "" {
		n.recordFailure()
		return ErrNoRecipient
	}

	data := n.confirmationData(ctx, order)
	htmlBody, textBody, err := n.renderTemplate(data.TemplateName(), data)
	if err != nil {
		n.recordFailure()
		return fmt.Errorf("failed to render order confirmation template: %w", err)
	}

	from := n.fromAddress
	if n.fromName != "" {
		from = fmt.Sprintf("%s <%s>", n.fromName, n.fromAddress)
	}

	_, err = n.sender.Send(ctx, &Email{
		To:       []string{order.ContactEmail},
		From:     from,
		Subject:  data.Subject(),
		HTMLBody: htmlBody,
		TextBody: textBody,
		Headers:  map[string]string{"X-Order-ID": order.ID.String()},
	})
	if err != nil {
		n.recordFailure()
		return fmt.Errorf("failed to send order confirmation email: %w", err)
	}

	if telemetry.Business != nil {
		telemetry.Business.EmailSent.WithLabelValues(emailTypeOrderConfirmation).Inc()
	}
	return nil
}

func (n *OrderNotifier) confirmationData(ctx context.Context, order *domain.Order) OrderConfirmationEmail {
	data := OrderConfirmationEmail{
		OrderNumber:   orderNumber(order.ID),
		OrderDate:     order.CreatedAt,
		PaymentMethod: string(order.PaymentMethod),
		Subtotal:      order.OriginalAmount.StringFixed(2),
		Total:         order.Amount.StringFixed(2),
		Currency:      strings.ToUpper(order.Currency),
	}
	if order.DiscountAmount.IsPositive() {
		data.Discount = order.DiscountAmount.StringFixed(2)
	}
	if n.baseURL != "" {
		data.OrderURL = n.baseURL + "/orders/" + order.ID.String()
	}

	for _, item := range order.Items {
		data.Items = append(data.Items, OrderItem{
			ProductName: item.Name,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice.StringFixed(2),
			Total:       item.LineTotal().StringFixed(2),
		})
	}

	if n.addresses != nil && order.AddressID != uuid.Nil {
		addr, err := n.addresses.Get(ctx, order.AddressID)
		if err != nil {
			n.logger.Warn("order confirmation without address", "order_id", order.ID, "error", err)
		} else {
			data.CustomerName = addr.FullName
			data.ShippingAddr = &Address{
				Name:       addr.FullName,
				Street:     addr.Street,
				City:       addr.City,
				State:      addr.State,
				PostalCode: addr.PostalCode,
				Country:    addr.Country,
			}
		}
	}
	return data
}

func (n *OrderNotifier) recordFailure() {
	if telemetry.Business != nil {
		telemetry.Business.EmailFailed.WithLabelValues(emailTypeOrderConfirmation).Inc()
	}
}

// renderTemplate returns the HTML body and a plain text version of it.
func (n *OrderNotifier) renderTemplate(templateName string, data interface{}) (string, string, error) {
	var htmlBuf bytes.Buffer
	if err := n.templates.ExecuteTemplate(&htmlBuf, templateName, data); err != nil {
		return "", "", fmt.Errorf("%w: %s: %v", ErrTemplate, templateName, err)
	}
	htmlBody := htmlBuf.String()
	return htmlBody, generatePlainText(htmlBody), nil
}

// orderNumber is the short form of an order id shown to shoppers.
func orderNumber(id uuid.UUID) string {
	return strings.ToUpper(id.String()[:8])
}

// generatePlainText creates a simple plain text version from HTML
func generatePlainText(html string) string {
	text := html

	text = strings.ReplaceAll(text, "<br>", "\n")
	text = strings.ReplaceAll(text, "<br/>", "\n")
	text = strings.ReplaceAll(text, "<br />", "\n")
	text = strings.ReplaceAll(text, "</p>", "\n\n")
	text = strings.ReplaceAll(text, "</div>", "\n")
	text = strings.ReplaceAll(text, "</tr>", "\n")
	text = strings.ReplaceAll(text, "</td>", " ")
	text = strings.ReplaceAll(text, "</h2>", "\n\n")
	text = strings.ReplaceAll(text, "</h3>", "\n\n")

	for strings.Contains(text, "<") && strings.Contains(text, ">") {
		start := strings.Index(text, "<")
		end := strings.Index(text[start:], ">")
		if start >= 0 && end > 0 {
			text = text[:start] + text[start+end+1:]
		} else {
			break
		}
	}

	text = strings.ReplaceAll(text, "&nbsp;", " ")
	text = strings.ReplaceAll(text, "&amp;", "&")
	text = strings.ReplaceAll(text, "&lt;", "<")
	text = strings.ReplaceAll(text, "&gt;", ">")
	text = strings.ReplaceAll(text, "&quot;", "\"")
	text = strings.ReplaceAll(text, "&#34;", "\"")
	text = strings.ReplaceAll(text, "&#39;", "'")

	lines := strings.Split(text, "\n")
	var cleaned []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			cleaned = append(cleaned, line)
		}
	}
	return strings.Join(cleaned, "\n")
}
