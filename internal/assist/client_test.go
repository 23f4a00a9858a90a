package assist

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khiari-mohamed/approchement-backend/internal/assist/ratelimit"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(ClientConfig{
		BaseURL: server.URL,
		Limiter: ratelimit.NewSlidingWindow(100, time.Minute),
	})
}

func TestClientCompareLabels(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/labels/compare", r.URL.Path)
		w.Write([]byte(`{"score": 0.87}`))
	}))

	got, err := client.CompareLabels(context.Background(), "VIREMENT SALAIRE", "VIR SALAIRE")
	require.NoError(t, err)
	assert.Equal(t, 0.87, got.Score)
	assert.False(t, got.Fallback)

	snap := client.Metrics().Snapshot()
	assert.Equal(t, 1, snap.SuccessfulCalls)
	assert.Equal(t, "healthy", snap.Status)
}

func TestClientClampsOutOfRangeScores(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"score": 1.7}`))
	}))

	got, err := client.CompareLabels(context.Background(), "A", "B")
	require.NoError(t, err)
	assert.Equal(t, 1.0, got.Score)
	assert.Equal(t, 1, client.Metrics().Snapshot().ScoresClamped)
}

func TestClientFallsBackOnServerError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	got, err := client.CompareLabels(context.Background(), "VIREMENT SALAIRE", "SALAIRE VIREMENT")
	require.NoError(t, err)
	assert.True(t, got.Fallback)
	assert.Equal(t, 1.0, got.Score)

	snap := client.Metrics().Snapshot()
	assert.Equal(t, 1, snap.FailedCalls)
	assert.Equal(t, 1, snap.FallbacksUsed)
}

func TestClientUnconfiguredUsesFallback(t *testing.T) {
	client := NewClient(ClientConfig{})

	got, err := client.CompareLabels(context.Background(), "CHEQUE 4521", "CHEQUE 4521")
	require.NoError(t, err)
	assert.True(t, got.Fallback)
	assert.Equal(t, 1.0, got.Score)

	cat, err := client.CategorizeTransaction(context.Background(), "FRAIS TENUE DE COMPTE")
	require.NoError(t, err)
	assert.True(t, cat.Fallback)
	assert.Equal(t, CategoryBankFees, cat.Category)

	snap := client.Metrics().Snapshot()
	assert.Equal(t, 2, snap.FallbacksUsed)
	assert.Zero(t, snap.SuccessfulCalls)
}

func TestClientCategorizeRejectsUnknownCategory(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/transactions/categorize", r.URL.Path)
		w.Write([]byte(`{"category": "MADE_UP_BUCKET", "confidence": 0.99}`))
	}))

	got, err := client.CategorizeTransaction(context.Background(), "VIREMENT FOURNISSEUR")
	require.NoError(t, err)
	assert.Equal(t, CategoryOther, got.Category)
	assert.Zero(t, got.Confidence)
	assert.Equal(t, 1, client.Metrics().Snapshot().ScoresClamped)
}

func TestClientCategorize(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"category": "VIREMENT_EMIS", "confidence": 0.93}`))
	}))

	got, err := client.CategorizeTransaction(context.Background(), "VIREMENT FOURNISSEUR ACME")
	require.NoError(t, err)
	assert.Equal(t, CategoryOutgoingTransfer, got.Category)
	assert.Equal(t, 0.93, got.Confidence)
	assert.False(t, got.Fallback)
}
