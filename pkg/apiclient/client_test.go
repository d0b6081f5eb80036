package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittoblock/pkg/volmgr/api"
	"github.com/marmos91/dittoblock/pkg/volume"
)

func TestClientSendsBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(api.ListResponse{})
	}))
	defer srv.Close()

	c := New(srv.URL, "secret-token")
	_, err := c.ListVolumes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret-token", gotAuth)
}

func TestClientDecodesProblemResponses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		api.WriteProblem(w, http.StatusConflict, "Conflict", "volume already exists")
	}))
	defer srv.Close()

	c := New(srv.URL, "t")
	_, err := c.CreateVolume(context.Background(), api.CreateVolumeRequest{Name: "dup"})
	require.Error(t, err)

	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
	assert.Contains(t, apiErr.Error(), "volume already exists")
}

func TestRemoveVolumeReportsAccepted(t *testing.T) {
	status := http.StatusNoContent
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer srv.Close()

	c := New(srv.URL, "t")
	accepted, err := c.RemoveVolume(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.False(t, accepted)

	status = http.StatusAccepted
	accepted, err = c.RemoveVolume(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.True(t, accepted)
}

func TestGetVolumeDecodesStats(t *testing.T) {
	id := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/volumes/"+id.String(), r.URL.Path)
		_ = json.NewEncoder(w).Encode(volume.Stats{ID: id, Name: "vol-a", State: "online"})
	}))
	defer srv.Close()

	c := New(srv.URL, "t")
	stats, err := c.GetVolume(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "vol-a", stats.Name)
	assert.Equal(t, "online", stats.State)
}
