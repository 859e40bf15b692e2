package mapbox

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/couchcryptid/urban-risk-service/internal/domain"
	"github.com/couchcryptid/urban-risk-service/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testToken         = "test-token"
	contentTypeJSON   = "application/json"
	headerContentType = "Content-Type"
)

func newTestClient(baseURL, token string, timeout time.Duration) *Client {
	c := NewClient(token, timeout, observability.NewMetricsForTesting(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.baseURL = baseURL
	return c
}

func testClient(baseURL string) *Client {
	return newTestClient(baseURL, testToken, 5*time.Second)
}

func TestClient_ForwardGeocode_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "Nairobi, Kenya")
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		assert.Equal(t, testToken, r.URL.Query().Get("access_token"))
		assert.Equal(t, "place", r.URL.Query().Get("types"))

		resp := response{
			Features: []feature{
				{
					Center:    []float64{36.8219, -1.2921},
					PlaceName: "Nairobi, Nairobi County, Kenya",
					Text:      "Nairobi",
					Relevance: 0.95,
				},
			},
		}
		w.Header().Set(headerContentType, contentTypeJSON)
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	result, err := c.ForwardGeocode(context.Background(), "Nairobi", "Kenya")
	require.NoError(t, err)

	assert.Equal(t, -1.2921, result.Lat)
	assert.Equal(t, 36.8219, result.Lon)
	assert.Equal(t, "Nairobi, Nairobi County, Kenya", result.FormattedAddress)
	assert.Equal(t, "Nairobi", result.PlaceName)
	assert.Equal(t, 0.95, result.Confidence)
}

func TestClient_ForwardGeocode_NoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(headerContentType, contentTypeJSON)
		require.NoError(t, json.NewEncoder(w).Encode(response{Features: []feature{}}))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	result, err := c.ForwardGeocode(context.Background(), "Atlantis", "Nowhere")
	require.NoError(t, err)
	assert.Equal(t, float64(0), result.Lat)
	assert.Empty(t, result.FormattedAddress)
}

func TestClient_ForwardGeocode_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Not Authorized"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, "bad-token", 5*time.Second)

	_, err := c.ForwardGeocode(context.Background(), "Accra", "Ghana")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestClient_ForwardGeocode_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, testToken, 50*time.Millisecond)

	_, err := c.ForwardGeocode(context.Background(), "Accra", "Ghana")
	require.Error(t, err)
}

func TestClient_ForwardGeocode_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(headerContentType, contentTypeJSON)
		_, _ = w.Write([]byte(`{"features": [`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).ForwardGeocode(context.Background(), "Cairo", "Egypt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode response")
}

func TestClient_ForwardGeocode_LowRelevanceRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(headerContentType, contentTypeJSON)
		require.NoError(t, json.NewEncoder(w).Encode(response{Features: []feature{
			{Center: []float64{3.38, 6.52}, PlaceName: "Lagos de Moreno, Mexico", Text: "Lagos de Moreno", Relevance: 0.3},
		}}))
	}))
	defer srv.Close()

	result, err := testClient(srv.URL).ForwardGeocode(context.Background(), "Lagos", "Nigeria")
	require.NoError(t, err)
	assert.Equal(t, domain.GeocodingResult{}, result)
}

func TestClient_ForwardGeocode_MissingCenter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(headerContentType, contentTypeJSON)
		require.NoError(t, json.NewEncoder(w).Encode(response{Features: []feature{
			{PlaceName: "Cairo, Egypt", Text: "Cairo", Relevance: 0.9},
		}}))
	}))
	defer srv.Close()

	result, err := testClient(srv.URL).ForwardGeocode(context.Background(), "Cairo", "Egypt")
	require.NoError(t, err)
	assert.Empty(t, result.FormattedAddress)
}

func TestClient_ForwardGeocode_NameOnly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/Lagos.json"), r.URL.Path)
		w.Header().Set(headerContentType, contentTypeJSON)
		require.NoError(t, json.NewEncoder(w).Encode(response{}))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).ForwardGeocode(context.Background(), "Lagos", "")
	require.NoError(t, err)
}

// --- CachedGeocoder ---

type countingGeocoder struct {
	calls  int
	result domain.GeocodingResult
	err    error
}

func (m *countingGeocoder) ForwardGeocode(_ context.Context, _, _ string) (domain.GeocodingResult, error) {
	m.calls++
	return m.result, m.err
}

func TestCachedGeocoder_CacheHit(t *testing.T) {
	inner := &countingGeocoder{
		result: domain.GeocodingResult{Lat: 9.03, Lon: 38.74, PlaceName: "Addis Ababa", FormattedAddress: "Addis Ababa, Ethiopia"},
	}
	cached := NewCachedGeocoder(inner, 10)

	r1, err := cached.ForwardGeocode(context.Background(), "Addis Ababa", "Ethiopia")
	require.NoError(t, err)
	r2, err := cached.ForwardGeocode(context.Background(), "ADDIS ABABA", "ethiopia")
	require.NoError(t, err)

	assert.Equal(t, r1, r2)
	assert.Equal(t, 1, inner.calls, "should only call inner once")
}

func TestCachedGeocoder_DifferentKeysMiss(t *testing.T) {
	inner := &countingGeocoder{
		result: domain.GeocodingResult{PlaceName: "Place", FormattedAddress: "Place, KE"},
	}
	cached := NewCachedGeocoder(inner, 10)

	_, _ = cached.ForwardGeocode(context.Background(), "Nairobi", "Kenya")
	_, _ = cached.ForwardGeocode(context.Background(), "Mombasa", "Kenya")

	assert.Equal(t, 2, inner.calls)
}

func TestCachedGeocoder_EmptyAndErrorNotCached(t *testing.T) {
	inner := &countingGeocoder{}
	cached := NewCachedGeocoder(inner, 10)

	_, _ = cached.ForwardGeocode(context.Background(), "Atlantis", "")
	_, _ = cached.ForwardGeocode(context.Background(), "Atlantis", "")
	assert.Equal(t, 2, inner.calls)

	inner.err = errors.New("rate limited")
	_, err := cached.ForwardGeocode(context.Background(), "Accra", "Ghana")
	require.Error(t, err)
	_, _ = cached.ForwardGeocode(context.Background(), "Accra", "Ghana")
	assert.Equal(t, 4, inner.calls)
}
