package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittoblock/pkg/engine"
	"github.com/marmos91/dittoblock/pkg/engine/meta"
	"github.com/marmos91/dittoblock/pkg/engine/solo"
	"github.com/marmos91/dittoblock/pkg/volmgr"
	"github.com/marmos91/dittoblock/pkg/volume"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestServer(t *testing.T) (*httptest.Server, *volmgr.Manager, string) {
	t.Helper()
	dir := t.TempDir()

	path := filepath.Join(dir, "data0.img")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, f.Truncate(1<<30))
	require.NoError(t, f.Close())

	store, err := meta.Open(filepath.Join(dir, "meta"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	mgr := volmgr.New(volmgr.Config{
		ReaperInterval:   time.Hour,
		WatchdogInterval: time.Hour,
		ExecutorMode:     volmgr.ExecImmediate,
	}, nil, store, nil)
	eng := solo.New(solo.Config{
		Devices:   []engine.Device{{Path: path, Type: engine.DevTypeAutoDetect}},
		ChunkSize: 1 << 20,
	}, store, mgr)
	mgr.BindEngine(eng)
	require.NoError(t, mgr.Start(context.Background()))

	tokens, err := NewTokenService(testSecret, time.Hour)
	require.NoError(t, err)
	token, err := tokens.Issue("test")
	require.NoError(t, err)

	srv := httptest.NewServer(NewRouter(mgr, tokens))
	t.Cleanup(srv.Close)
	return srv, mgr, token
}

func doRequest(t *testing.T, method, url, token string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHealthEndpointsUnauthenticated(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp2, err := http.Get(srv.URL + "/health/ready")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusOK, resp2.StatusCode)
}

func TestVolumesRequireAuth(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp := doRequest(t, http.MethodGet, srv.URL+"/api/v1/volumes", "", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, ContentTypeProblemJSON, resp.Header.Get("Content-Type"))

	resp2 := doRequest(t, http.MethodGet, srv.URL+"/api/v1/volumes", "not-a-token", nil)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp2.StatusCode)
}

func TestCreateGetRemoveVolume(t *testing.T) {
	srv, _, token := newTestServer(t)

	id := uuid.New()
	resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/volumes", token, CreateVolumeRequest{
		ID:       &id,
		Name:     "vol-a",
		Size:     64 << 20,
		PageSize: 4096,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeBody[volume.Stats](t, resp)
	assert.Equal(t, id, created.ID)
	assert.Equal(t, "online", created.State)

	resp = doRequest(t, http.MethodGet, srv.URL+"/api/v1/volumes/"+id.String(), token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decodeBody[volume.Stats](t, resp)
	assert.Equal(t, "vol-a", got.Name)

	resp = doRequest(t, http.MethodDelete, srv.URL+"/api/v1/volumes/"+id.String(), token, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	// An idle volume is finalized inline: gone as soon as the delete returns.
	resp = doRequest(t, http.MethodGet, srv.URL+"/api/v1/volumes/"+id.String(), token, nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateGeneratesIDWhenOmitted(t *testing.T) {
	srv, _, token := newTestServer(t)

	resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/volumes", token, CreateVolumeRequest{
		Name:     "anon",
		Size:     64 << 20,
		PageSize: 4096,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeBody[volume.Stats](t, resp)
	assert.NotEqual(t, uuid.Nil, created.ID)
}

func TestCreateDuplicateReturnsConflict(t *testing.T) {
	srv, _, token := newTestServer(t)

	id := uuid.New()
	req := CreateVolumeRequest{ID: &id, Name: "dup", Size: 64 << 20, PageSize: 4096}

	resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/volumes", token, req)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = doRequest(t, http.MethodPost, srv.URL+"/api/v1/volumes", token, req)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	problem := decodeBody[Problem](t, resp)
	assert.Equal(t, http.StatusConflict, problem.Status)
}

func TestCreateInvalidBody(t *testing.T) {
	srv, _, token := newTestServer(t)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/volumes",
		bytes.NewBufferString("{not json"))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetUnknownVolumeReturns404(t *testing.T) {
	srv, _, token := newTestServer(t)

	resp := doRequest(t, http.MethodGet, srv.URL+"/api/v1/volumes/"+uuid.NewString(), token, nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp2 := doRequest(t, http.MethodDelete, srv.URL+"/api/v1/volumes/"+uuid.NewString(), token, nil)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp2.StatusCode)
}

func TestRemoveBusyVolumeReturnsAccepted(t *testing.T) {
	srv, mgr, token := newTestServer(t)

	id := uuid.New()
	resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/volumes", token, CreateVolumeRequest{
		ID: &id, Name: "busy", Size: 64 << 20, PageSize: 4096,
	})
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	v, err := mgr.LookupVolume(id)
	require.NoError(t, err)
	v.Ref()

	resp = doRequest(t, http.MethodDelete, srv.URL+"/api/v1/volumes/"+id.String(), token, nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	v.Unref()
}

func TestListVolumes(t *testing.T) {
	srv, _, token := newTestServer(t)

	for _, name := range []string{"a", "b"} {
		resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/volumes", token, CreateVolumeRequest{
			Name: name, Size: 64 << 20, PageSize: 4096,
		})
		resp.Body.Close()
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp := doRequest(t, http.MethodGet, srv.URL+"/api/v1/volumes", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decodeBody[ListResponse](t, resp)
	assert.Len(t, list.Volumes, 2)
}

func TestServiceStatsEndpoint(t *testing.T) {
	srv, _, token := newTestServer(t)

	resp := doRequest(t, http.MethodGet, srv.URL+"/api/v1/stats", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	stats := decodeBody[volmgr.ServiceStats](t, resp)
	assert.NotZero(t, stats.TotalCapacity)
	assert.Equal(t, uint64(1), stats.BootCount)
}

func TestTokenServiceRejectsShortSecret(t *testing.T) {
	_, err := NewTokenService("short", time.Hour)
	assert.ErrorIs(t, err, ErrInvalidSecretLength)
}

func TestTokenRoundTrip(t *testing.T) {
	tokens, err := NewTokenService(testSecret, time.Hour)
	require.NoError(t, err)

	signed, err := tokens.Issue("alice")
	require.NoError(t, err)

	claims, err := tokens.Validate(signed)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)

	_, err = tokens.Validate(signed + "tampered")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
