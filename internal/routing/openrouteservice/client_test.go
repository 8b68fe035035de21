package openrouteservice

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saferoute/saferoute/internal/routing"
	"github.com/saferoute/saferoute/pkg/geo"
)

// mockHTTPClient wraps the test server's client so the resilience wrapper is
// bypassed in unit tests.
type mockHTTPClient struct {
	client *http.Client
}

func (m *mockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	return m.client.Do(req)
}

const directionsResponse = `{
	"routes": [
		{
			"summary": {"distance": 3120, "duration": 2210},
			"geometry": "_p~iF~ps|U_ulLnnqC",
			"segments": [
				{
					"distance": 3120,
					"duration": 2210,
					"steps": [
						{"distance": 900, "duration": 640, "type": 11, "instruction": "Head north on Kasturba Road"}
					]
				}
			]
		},
		{
			"summary": {"distance": 2680, "duration": 1910},
			"geometry": "_p~iF~ps|U_mqNvxq@",
			"segments": []
		}
	]
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewClient(ClientConfig{
		APIKey:     "mock123",
		BaseURL:    server.URL,
		HTTPClient: &mockHTTPClient{client: server.Client()},
		Logger:     zerolog.Nop(),
	})
}

func TestClient_GetDirections_Success(t *testing.T) {
	var gotReq orsRequest

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "mock123", r.Header.Get("Authorization"))
		assert.Equal(t, "/v2/directions/foot-walking", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(directionsResponse))
	})

	resp, err := client.GetDirections(context.Background(), routing.DirectionsRequest{
		Origin:          geo.Coordinate{Lat: 12.9716, Lon: 77.5946},
		Destination:     geo.Coordinate{Lat: 12.9763, Lon: 77.5929},
		Profile:         routing.ProfileWalk,
		MaxAlternatives: 2,
	})
	require.NoError(t, err)

	assert.Equal(t, ProviderName, resp.Provider)
	require.Len(t, resp.Routes, 2)
	assert.Equal(t, 3120, resp.Routes[0].DistanceMeters)
	assert.Equal(t, 2210, resp.Routes[0].DurationSeconds)
	assert.NotEmpty(t, resp.Routes[0].GeometryPolyline)
	assert.Equal(t, "Head north on Kasturba Road", resp.Routes[0].Summary)

	// Coordinates are sent in [lon, lat] order.
	require.Len(t, gotReq.Coordinates, 2)
	assert.InDelta(t, 77.5946, gotReq.Coordinates[0][0], 1e-9)
	assert.InDelta(t, 12.9716, gotReq.Coordinates[0][1], 1e-9)
}

func TestClient_GetDirections_AvoidOptions(t *testing.T) {
	var gotReq orsRequest

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(directionsResponse))
	})

	_, err := client.GetDirections(context.Background(), routing.DirectionsRequest{
		Origin:      geo.Coordinate{Lat: 12.9716, Lon: 77.5946},
		Destination: geo.Coordinate{Lat: 12.9763, Lon: 77.5929},
		Profile:     routing.ProfileDrive,
		Avoid:       []routing.AvoidFeature{routing.AvoidHighways, routing.AvoidTolls},
		AvoidAreas: []routing.AvoidArea{
			{Center: geo.Coordinate{Lat: 12.9740, Lon: 77.5940}, RadiusKm: 0.5},
		},
	})
	require.NoError(t, err)

	require.NotNil(t, gotReq.Options)
	assert.Equal(t, []string{"highways", "tollways"}, gotReq.Options.AvoidFeatures)
	require.NotNil(t, gotReq.Options.AvoidPolygons)
	assert.Equal(t, "MultiPolygon", gotReq.Options.AvoidPolygons.Type)
	require.Len(t, gotReq.Options.AvoidPolygons.Coordinates, 1)

	// Closed ring: first and last vertex coincide.
	ring := gotReq.Options.AvoidPolygons.Coordinates[0][0]
	require.GreaterOrEqual(t, len(ring), 4)
	assert.Equal(t, ring[0], ring[len(ring)-1])
}

func TestClient_GetDirections_NoRouteFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":2009,"message":"Route could not be found"}}`))
	})

	_, err := client.GetDirections(context.Background(), routing.DirectionsRequest{
		Origin:      geo.Coordinate{Lat: 12.9716, Lon: 77.5946},
		Destination: geo.Coordinate{Lat: 55.7558, Lon: 37.6173},
		Profile:     routing.ProfileWalk,
	})
	require.Error(t, err)

	var routingErr *routing.Error
	require.ErrorAs(t, err, &routingErr)
	assert.ErrorIs(t, err, routing.ErrNoRouteFound)
	assert.False(t, routingErr.IsRetryable())
}

func TestClient_GetDirections_EmptyRoutes(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"routes":[]}`))
	})

	_, err := client.GetDirections(context.Background(), routing.DirectionsRequest{
		Origin:      geo.Coordinate{Lat: 12.9716, Lon: 77.5946},
		Destination: geo.Coordinate{Lat: 12.9763, Lon: 77.5929},
		Profile:     routing.ProfileWalk,
	})
	assert.ErrorIs(t, err, routing.ErrNoRouteFound)
}

func TestClient_GetDirections_MissingGeometry(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"routes":[{"summary":{"distance":100,"duration":90},"geometry":""}]}`))
	})

	_, err := client.GetDirections(context.Background(), routing.DirectionsRequest{
		Origin:      geo.Coordinate{Lat: 12.9716, Lon: 77.5946},
		Destination: geo.Coordinate{Lat: 12.9763, Lon: 77.5929},
		Profile:     routing.ProfileWalk,
	})
	assert.ErrorIs(t, err, routing.ErrInvalidGeometry)
}

func TestClient_GetDirections_RateLimited(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"code":403,"message":"Rate limit exceeded"}}`))
	})

	_, err := client.GetDirections(context.Background(), routing.DirectionsRequest{
		Origin:      geo.Coordinate{Lat: 12.9716, Lon: 77.5946},
		Destination: geo.Coordinate{Lat: 12.9763, Lon: 77.5929},
		Profile:     routing.ProfileWalk,
	})
	require.Error(t, err)

	var routingErr *routing.Error
	require.ErrorAs(t, err, &routingErr)
	assert.ErrorIs(t, err, routing.ErrRateLimitExceeded)
	assert.True(t, routingErr.IsRetryable())
}

func TestClient_GetDirections_InvalidCoordinates(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for invalid coordinates")
	})

	_, err := client.GetDirections(context.Background(), routing.DirectionsRequest{
		Origin:      geo.Coordinate{Lat: 120, Lon: 77.5946},
		Destination: geo.Coordinate{Lat: 12.9763, Lon: 77.5929},
		Profile:     routing.ProfileWalk,
	})
	assert.ErrorIs(t, err, routing.ErrInvalidCoordinates)
}
