package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/peerpay/backend/internal/models"
)

// Client is a thin REST client for the PeerPay API. It holds no credential
// state; the bearer token is passed explicitly on every call.
type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// Credentials carries a username/password pair for register and login.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthUser is the identity returned by register/login.
type AuthUser struct {
	ID        int    `json:"id"`
	Username  string `json:"username"`
	AccountID int    `json:"account_id"`
}

// AuthResponse is the token + identity returned by register/login.
type AuthResponse struct {
	Token string   `json:"token"`
	User  AuthUser `json:"user"`
}

func (c *Client) Register(creds Credentials) (*AuthResponse, error) {
	var resp AuthResponse
	if err := c.do(http.MethodPost, "/auth/register", "", creds, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Login(creds Credentials) (*AuthResponse, error) {
	var resp AuthResponse
	if err := c.do(http.MethodPost, "/auth/login", "", creds, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Logout(token string) error {
	return c.do(http.MethodPost, "/auth/logout", token, nil, nil)
}

func (c *Client) ListUsers(token string) ([]models.User, error) {
	var users []models.User
	if err := c.do(http.MethodGet, "/users", token, nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (c *Client) GetAccountByUserID(token string, userID int) (*models.Account, error) {
	var account models.Account
	if err := c.do(http.MethodGet, fmt.Sprintf("/users/%d/account", userID), token, nil, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

func (c *Client) GetAccountByAccountID(token string, accountID int) (*models.Account, error) {
	var account models.Account
	if err := c.do(http.MethodGet, fmt.Sprintf("/accounts/%d", accountID), token, nil, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

func (c *Client) GetTransfersByAccountID(token string, accountID int) ([]models.Transfer, error) {
	var transfers []models.Transfer
	if err := c.do(http.MethodGet, fmt.Sprintf("/accounts/%d/transfers", accountID), token, nil, &transfers); err != nil {
		return nil, err
	}
	return transfers, nil
}

func (c *Client) GetTransfer(token string, transferID int) (*models.Transfer, error) {
	var transfer models.Transfer
	if err := c.do(http.MethodGet, fmt.Sprintf("/transfers/%d", transferID), token, nil, &transfer); err != nil {
		return nil, err
	}
	return &transfer, nil
}

func (c *Client) CreateTransfer(token string, transfer models.Transfer) (*models.Transfer, error) {
	var created models.Transfer
	if err := c.do(http.MethodPost, "/transfers", token, transfer, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (c *Client) do(method, path, token string, body, out any) error {
	var reqBody *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(data)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("server unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&errResp)
		return &APIError{Status: resp.StatusCode, Message: errResp.Error}
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
