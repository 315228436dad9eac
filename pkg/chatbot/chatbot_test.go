package chatbot

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tambongslade/pos-whatsapp-gateway/pkg/catalog"
)

type stubCatalog struct {
	products []catalog.Product
	err      error
}

func (s *stubCatalog) Products(_ context.Context) ([]catalog.Product, error) {
	return s.products, s.err
}

func (s *stubCatalog) FindByName(_ context.Context, name string) (*catalog.Product, error) {
	if s.err != nil {
		return nil, s.err
	}
	for i := range s.products {
		if s.products[i].Name == name {
			return &s.products[i], nil
		}
	}
	return nil, catalog.ErrProductNotFound
}

func testCatalog() *stubCatalog {
	return &stubCatalog{products: []catalog.Product{
		{ID: 1, Name: "soap", Price: 500, Stock: 12},
		{ID: 2, Name: "rice", Price: 3500, Stock: 0},
	}}
}

func TestHandleIncomingMessageProductList(t *testing.T) {
	r := New(testCatalog())
	ctx := context.Background()

	for _, message := range []string{
		"What products are available? list products please",
		"what do you have in store?",
		"Give me the whole list",
	} {
		reply, err := r.HandleIncomingMessage(ctx, message, "237670527426@s.whatsapp.net")
		require.NoError(t, err)
		assert.Contains(t, reply, "Here are our available products:")
		assert.Contains(t, reply, "soap (Stock: 12, Price: 500.00)")
		assert.Contains(t, reply, "rice (Stock: 0, Price: 3500.00)")
	}
}

func TestHandleIncomingMessageStockCheck(t *testing.T) {
	r := New(testCatalog())
	ctx := context.Background()

	t.Run("in stock", func(t *testing.T) {
		reply, err := r.HandleIncomingMessage(ctx, "check stock for soap", "s1")
		require.NoError(t, err)
		assert.Contains(t, reply, "soap is in stock: 12 available")
	})

	t.Run("question form with trailing question mark", func(t *testing.T) {
		reply, err := r.HandleIncomingMessage(ctx, "Do you have soap?", "s1")
		require.NoError(t, err)
		assert.Contains(t, reply, "soap is in stock")
	})

	t.Run("out of stock", func(t *testing.T) {
		reply, err := r.HandleIncomingMessage(ctx, "is there a rice", "s1")
		require.NoError(t, err)
		assert.Contains(t, reply, "rice is currently out of stock")
	})

	t.Run("unknown product", func(t *testing.T) {
		reply, err := r.HandleIncomingMessage(ctx, "check stock for caviar", "s1")
		require.NoError(t, err)
		assert.Contains(t, reply, `could not find a product called "caviar"`)
	})
}

func TestHandleIncomingMessageFallback(t *testing.T) {
	r := New(testCatalog())

	reply, err := r.HandleIncomingMessage(context.Background(), "how late are you open?", "s1")
	require.NoError(t, err)
	assert.Equal(t, fallbackReply, reply)
}

func TestHandleIncomingMessageEmpty(t *testing.T) {
	r := New(testCatalog())
	_, err := r.HandleIncomingMessage(context.Background(), "   ", "s1")
	assert.Error(t, err)
}

func TestHandleIncomingMessageCatalogFailure(t *testing.T) {
	r := New(&stubCatalog{err: errors.New("db down")})

	reply, err := r.HandleIncomingMessage(context.Background(), "list products", "s1")
	require.NoError(t, err)
	assert.Contains(t, reply, "Sorry, I encountered an error")
}

func TestHistoryIsBounded(t *testing.T) {
	r := New(testCatalog())
	ctx := context.Background()

	for i := 0; i < maxHistoryLength+5; i++ {
		_, err := r.HandleIncomingMessage(ctx, "anything at all", "s1")
		require.NoError(t, err)
	}

	assert.Len(t, r.History("s1"), maxHistoryLength)
	assert.Empty(t, r.History("someone-else"))
}
