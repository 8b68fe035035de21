package geofence_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saferoute/saferoute/internal/geofence"
	"github.com/saferoute/saferoute/pkg/geo"
)

func newTestService() *geofence.Service {
	return geofence.NewService(geofence.ServiceConfig{
		Repository: geofence.NewInMemoryRepository(),
		Logger:     zerolog.New(io.Discard),
	})
}

func TestService_CreateAndGet(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	fence, err := svc.Create(ctx, geofence.CreateInput{
		Name:     "Cubbon Park",
		Type:     geofence.TypeSafe,
		Points:   []geo.Coordinate{{Lat: 12.9763, Lon: 77.5929}},
		RadiusKm: 1.0,
		Metadata: geofence.Metadata{
			Description: "well patrolled",
			CreatedBy:   "usr_1",
			Color:       "#2e7d32",
		},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, fence.ID)
	assert.False(t, fence.Metadata.UpdatedAt.IsZero())

	got, err := svc.Get(ctx, fence.ID)
	require.NoError(t, err)
	assert.Equal(t, "Cubbon Park", got.Name)
	assert.True(t, got.IsCircle())
}

func TestService_Create_Validation(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	_, err := svc.Create(ctx, geofence.CreateInput{
		Type:   geofence.TypeSafe,
		Points: []geo.Coordinate{{Lat: 1, Lon: 1}},
	})
	require.Error(t, err)

	_, err = svc.Create(ctx, geofence.CreateInput{
		Name:   "bad type",
		Type:   geofence.Type("zone"),
		Points: []geo.Coordinate{{Lat: 1, Lon: 1}},
	})
	require.Error(t, err)

	_, err = svc.Create(ctx, geofence.CreateInput{
		Name: "no points",
		Type: geofence.TypeDanger,
	})
	require.Error(t, err)
}

func TestService_Update_MergesMetadata(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	fence, err := svc.Create(ctx, geofence.CreateInput{
		Name:     "station underpass",
		Type:     geofence.TypeCaution,
		Points:   []geo.Coordinate{{Lat: 12.9767, Lon: 77.5713}},
		RadiusKm: 0.3,
		Metadata: geofence.Metadata{
			Description: "poorly lit after 9pm",
			CreatedBy:   "usr_1",
			Color:       "#f9a825",
			Icon:        "warning",
		},
	})
	require.NoError(t, err)
	createdUpdatedAt := fence.Metadata.UpdatedAt

	time.Sleep(5 * time.Millisecond)

	newType := geofence.TypeDanger
	newColor := "#c62828"
	updated, err := svc.Update(ctx, fence.ID, geofence.UpdateInput{
		Type:  &newType,
		Color: &newColor,
	})
	require.NoError(t, err)

	// Changed fields applied, untouched metadata preserved.
	assert.Equal(t, geofence.TypeDanger, updated.Type)
	assert.Equal(t, "#c62828", updated.Metadata.Color)
	assert.Equal(t, "poorly lit after 9pm", updated.Metadata.Description)
	assert.Equal(t, "usr_1", updated.Metadata.CreatedBy)
	assert.Equal(t, "warning", updated.Metadata.Icon)
	assert.True(t, updated.Metadata.UpdatedAt.After(createdUpdatedAt))
}

func TestService_Update_NotFound(t *testing.T) {
	svc := newTestService()

	name := "renamed"
	_, err := svc.Update(context.Background(), "gf_missing", geofence.UpdateInput{Name: &name})
	assert.ErrorIs(t, err, geofence.ErrGeofenceNotFound)
}

func TestService_Query_Filters(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	_, err := svc.Create(ctx, geofence.CreateInput{
		Name:     "safe zone",
		Type:     geofence.TypeSafe,
		Points:   []geo.Coordinate{{Lat: 12.97, Lon: 77.59}},
		RadiusKm: 1,
		Metadata: geofence.Metadata{CreatedBy: "usr_1"},
	})
	require.NoError(t, err)

	_, err = svc.Create(ctx, geofence.CreateInput{
		Name:     "danger zone",
		Type:     geofence.TypeDanger,
		Points:   []geo.Coordinate{{Lat: 12.98, Lon: 77.60}},
		RadiusKm: 0.5,
		Metadata: geofence.Metadata{CreatedBy: "usr_2"},
	})
	require.NoError(t, err)

	all, err := svc.Query(ctx, "", "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	byUser, err := svc.Query(ctx, "usr_1", "")
	require.NoError(t, err)
	require.Len(t, byUser, 1)
	assert.Equal(t, "safe zone", byUser[0].Name)

	byType, err := svc.Query(ctx, "", geofence.TypeDanger)
	require.NoError(t, err)
	require.Len(t, byType, 1)
	assert.Equal(t, "danger zone", byType[0].Name)
}

func TestService_Delete(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	fence, err := svc.Create(ctx, geofence.CreateInput{
		Name:     "temporary",
		Type:     geofence.TypeCustom,
		Points:   []geo.Coordinate{{Lat: 12.97, Lon: 77.59}},
		RadiusKm: 1,
	})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, fence.ID))

	_, err = svc.Get(ctx, fence.ID)
	assert.ErrorIs(t, err, geofence.ErrGeofenceNotFound)
}
