package client

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/peerpay/backend/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestClient_Login(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/login", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Empty(t, r.Header.Get("Authorization"))

		var creds Credentials
		json.NewDecoder(r.Body).Decode(&creds)
		assert.Equal(t, "theresa", creds.Username)

		json.NewEncoder(w).Encode(AuthResponse{
			Token: "token-abc",
			User:  AuthUser{ID: 1, Username: "theresa", AccountID: 2001},
		})
	}))
	defer server.Close()

	api := New(server.URL)
	session, err := api.Login(Credentials{Username: "theresa", Password: "password123"})
	assert.NoError(t, err)
	assert.Equal(t, "token-abc", session.Token)
	assert.Equal(t, 2001, session.User.AccountID)
}

func TestClient_SendsBearerToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token-abc", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode([]models.User{{ID: 1, Username: "theresa"}})
	}))
	defer server.Close()

	api := New(server.URL)
	users, err := api.ListUsers("token-abc")
	assert.NoError(t, err)
	assert.Len(t, users, 1)
	assert.Equal(t, "theresa", users[0].Username)
}

func TestClient_CreateTransfer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transfers", r.URL.Path)
		assert.Equal(t, "Bearer token-abc", r.Header.Get("Authorization"))

		var transfer models.Transfer
		json.NewDecoder(r.Body).Decode(&transfer)
		assert.Equal(t, int64(2500), transfer.Amount)

		transfer.TransferID = 7
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(transfer)
	}))
	defer server.Close()

	api := New(server.URL)
	created, err := api.CreateTransfer("token-abc", models.Transfer{
		TypeID:      models.TransferTypeSend,
		StatusID:    models.TransferStatusApproved,
		AccountFrom: 2001,
		AccountTo:   2002,
		Amount:      2500,
	})
	assert.NoError(t, err)
	assert.Equal(t, 7, created.TransferID)
}

func TestClient_ErrorResponses(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]string{"error": "insufficient funds"})
	}))
	defer server.Close()

	api := New(server.URL)
	_, err := api.CreateTransfer("token-abc", models.Transfer{Amount: 999999})
	assert.Error(t, err)

	var apiErr *APIError
	assert.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.Status)
	assert.Equal(t, "insufficient funds", apiErr.Message)
}

func TestClient_ServerUnavailable(t *testing.T) {
	api := New("http://127.0.0.1:1")
	_, err := api.ListUsers("token-abc")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server unavailable")
}
