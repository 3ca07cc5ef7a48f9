package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryStateDecodesAccount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/accounts/0:abc", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"kind":    "dao",
			"status":  "active",
			"members": []string{"acme-bot", "stranger"},
		})
	}))
	defer srv.Close()

	c := NewNodeClient(srv.URL, nil)
	state, err := c.QueryState(context.Background(), "0:abc")
	require.NoError(t, err)
	require.NotNil(t, state)

	assert.Equal(t, StatusActive, state.Status)
	assert.Equal(t, []string{"acme-bot", "stranger"}, state.Members)
	// Address is filled in from the query when the node omits it.
	assert.Equal(t, "0:abc", state.Address)
}

func TestQueryStateMissingAddressIsNilNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewNodeClient(srv.URL, nil)
	state, err := c.QueryState(context.Background(), "0:missing")
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestQueryStateServerErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "node overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewNodeClient(srv.URL, nil)
	_, err := c.QueryState(context.Background(), "0:abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestSubmitOperationPostsSignedRequest(t *testing.T) {
	var got submitRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/operations", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := NewNodeClient(srv.URL, nil)
	err := c.SubmitOperation(context.Background(), OpDeployDao,
		map[string]string{"name": "acme"},
		Credentials{Pubkey: "pk", Seed: "seed"})
	require.NoError(t, err)

	assert.Equal(t, OpDeployDao, got.Kind)
	assert.Equal(t, "acme", got.Params["name"])
	assert.Equal(t, "pk", got.Signer)
}

func TestSubmitOperationRejectionIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad signer", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewNodeClient(srv.URL, nil)
	err := c.SubmitOperation(context.Background(), OpDeployProfile, nil, Credentials{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad signer")
}
