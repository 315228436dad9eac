package chatbot

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/tambongslade/pos-whatsapp-gateway/pkg/catalog"
	"github.com/tambongslade/pos-whatsapp-gateway/pkg/log"
)

// Catalog is the slice of the product store the responder needs.
type Catalog interface {
	Products(ctx context.Context) ([]catalog.Product, error)
	FindByName(ctx context.Context, name string) (*catalog.Product, error)
}

const (
	maxHistoryLength = 10

	fallbackReply = "I can currently help with listing all available products or checking stock for a specific item. For other inquiries, please contact the store directly."
)

var listProductKeywords = []string{
	"available product",
	"list product",
	"what do you have",
	"show me your product",
	"give me the whole list",
	"see all product",
}

var stockCheckPattern = regexp.MustCompile(`(?i)^(check stock for|is there an?|do you have(?: an?)?)\s+(.+)`)

type exchange struct {
	userMessage      string
	assistantMessage string
}

// Responder answers customer messages from the product catalog. It keeps a
// bounded per-sender history so a future contextual backend can pick up the
// conversation.
type Responder struct {
	catalog Catalog

	mu        sync.Mutex
	histories map[string][]exchange
}

func New(cat Catalog) *Responder {
	return &Responder{
		catalog:   cat,
		histories: make(map[string][]exchange),
	}
}

// HandleIncomingMessage produces a reply for a customer message. It never
// returns an empty reply; catalog failures degrade to apology text.
func (r *Responder) HandleIncomingMessage(ctx context.Context, messageText string, senderID string) (string, error) {
	if strings.TrimSpace(messageText) == "" {
		return "", errors.New("empty message")
	}
	lowerMessage := strings.ToLower(strings.TrimSpace(messageText))

	for _, keyword := range listProductKeywords {
		if strings.Contains(lowerMessage, keyword) {
			reply := r.listProducts(ctx)
			r.remember(senderID, messageText, reply)
			return reply, nil
		}
	}

	if match := stockCheckPattern.FindStringSubmatch(lowerMessage); len(match) == 3 {
		productName := strings.TrimSpace(strings.TrimSuffix(match[2], "?"))
		if productName != "" {
			reply := r.stockInfo(ctx, productName)
			r.remember(senderID, messageText, reply)
			return reply, nil
		}
	}

	r.remember(senderID, messageText, fallbackReply)
	return fallbackReply, nil
}

func (r *Responder) listProducts(ctx context.Context) string {
	products, err := r.catalog.Products(ctx)
	if err != nil {
		log.Print(nil).WithError(err).Error("Chatbot failed to fetch products from catalog")
		return "Sorry, I encountered an error trying to fetch product information from our database."
	}
	if len(products) == 0 {
		return "Sorry, we currently have no products listed in our database."
	}

	var b strings.Builder
	b.WriteString("Here are our available products:")
	for _, p := range products {
		b.WriteString(fmt.Sprintf("\n - %s (Stock: %d, Price: %.2f)", p.Name, p.Stock, p.Price))
	}
	return b.String()
}

func (r *Responder) stockInfo(ctx context.Context, productName string) string {
	product, err := r.catalog.FindByName(ctx, productName)
	if errors.Is(err, catalog.ErrProductNotFound) {
		return fmt.Sprintf("Sorry, I could not find a product called %q in our catalog.", productName)
	}
	if err != nil {
		log.Print(nil).WithError(err).Error("Chatbot failed to check stock")
		return "Sorry, I encountered an error trying to fetch product information from our database."
	}
	if product.Stock <= 0 {
		return fmt.Sprintf("%s is currently out of stock.", product.Name)
	}
	return fmt.Sprintf("Yes, %s is in stock: %d available at %.2f each.", product.Name, product.Stock, product.Price)
}

func (r *Responder) remember(senderID string, userMessage string, assistantMessage string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	history := append(r.histories[senderID], exchange{userMessage: userMessage, assistantMessage: assistantMessage})
	if len(history) > maxHistoryLength {
		history = history[len(history)-maxHistoryLength:]
	}
	r.histories[senderID] = history
}

// History returns the remembered exchanges for a sender, oldest first.
func (r *Responder) History(senderID string) [][2]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][2]string, 0, len(r.histories[senderID]))
	for _, e := range r.histories[senderID] {
		out = append(out, [2]string{e.userMessage, e.assistantMessage})
	}
	return out
}
