package storefront

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dukerupert/decks/internal/domain"
	"github.com/dukerupert/decks/internal/memory"
	"github.com/dukerupert/decks/internal/service"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Test Helpers
// ============================================================================

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newSessions(stock map[string]int) (*service.Sessions, *memory.InventoryStore) {
	inventory := memory.NewInventoryStore(stock)
	return service.NewSessions(service.CartSessionConfig{
		Device:  memory.NewCartStore(),
		Account: memory.NewCartStore(),
		Stock:   inventory,
		Logger:  discardLogger(),
	}), inventory
}

// newRequest builds a JSON request carrying identity, with path values set
// the way the router would.
func newRequest(t *testing.T, method, target string, body any, identity domain.Identity, pathValues map[string]string) *http.Request {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range pathValues {
		req.SetPathValue(k, v)
	}
	return req.WithContext(domain.NewContextWithIdentity(req.Context(), identity))
}

type errorEnvelope struct {
	Error struct {
		Code    string              `json:"code"`
		Message string              `json:"message"`
		Fields  map[string]string   `json:"fields"`
		Lines   []service.LineCheck `json:"lines"`
	} `json:"error"`
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

// stubValidator implements CartValidator for testing
type stubValidator struct {
	validateFunc func(ctx context.Context, cart domain.Cart, mode service.ValidationMode) ([]service.LineCheck, error)
}

func (m *stubValidator) Validate(ctx context.Context, cart domain.Cart, mode service.ValidationMode) ([]service.LineCheck, error) {
	if m.validateFunc != nil {
		return m.validateFunc(ctx, cart, mode)
	}
	return []service.LineCheck{}, nil
}
