package services

import (
	"database/sql"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/peerpay/backend/internal/models"
)

const userListCacheKey = "users:all"
const userListCacheTTL = 60 * time.Second

type AccountService struct {
	db        *sql.DB
	redis     *redis.Client
	validator *ValidationHelper
}

func NewAccountService(db *sql.DB, redisClient *redis.Client) *AccountService {
	return &AccountService{
		db:        db,
		redis:     redisClient,
		validator: NewValidationHelper(),
	}
}

// ListUsers retrieves the user directory
// @Summary List users
// @Description Get all registered users (id and username only)
// @Tags users
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.User
// @Router /users [get]
func (as *AccountService) ListUsers(w http.ResponseWriter, r *http.Request) {
	if as.redis != nil {
		if cached, err := as.redis.Get(r.Context(), userListCacheKey).Bytes(); err == nil {
			w.Header().Set("Content-Type", "application/json")
			w.Write(cached)
			return
		}
	}

	rows, err := as.db.Query(`SELECT user_id, username FROM users ORDER BY user_id`)
	if err != nil {
		log.Printf("[ACCOUNT] Failed to list users: %v", err)
		SendErrorResponse(w, "Failed to fetch users", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Username); err != nil {
			log.Printf("[ACCOUNT] Failed to scan user row: %v", err)
			SendErrorResponse(w, "Failed to fetch users", http.StatusInternalServerError, nil)
			return
		}
		users = append(users, u)
	}

	payload, _ := json.Marshal(users)
	if as.redis != nil {
		if err := as.redis.Set(r.Context(), userListCacheKey, payload, userListCacheTTL).Err(); err != nil {
			log.Printf("[ACCOUNT] Failed to cache user list: %v", err)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(payload)
}

// GetUser retrieves a single user
// @Summary Get user by ID
// @Description Retrieve a user by id
// @Tags users
// @Produce json
// @Security BearerAuth
// @Param userId path int true "User ID"
// @Success 200 {object} models.User
// @Failure 404 {object} ErrorResponse
// @Router /users/{userId} [get]
func (as *AccountService) GetUser(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.Atoi(chi.URLParam(r, "userId"))
	if err != nil {
		SendErrorResponse(w, "Invalid user id", http.StatusBadRequest, nil)
		return
	}

	var user models.User
	err = as.db.QueryRow(`SELECT user_id, username, role FROM users WHERE user_id = $1`, userID).
		Scan(&user.ID, &user.Username, &user.Role)
	if err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, "User not found", http.StatusNotFound, nil)
		} else {
			log.Printf("[ACCOUNT] Failed to fetch user %d: %v", userID, err)
			SendErrorResponse(w, "Failed to fetch user", http.StatusInternalServerError, nil)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(user)
}

// GetAccountByUser retrieves the account owned by a user
// @Summary Get account by user ID
// @Description Retrieve the account belonging to a user
// @Tags accounts
// @Produce json
// @Security BearerAuth
// @Param userId path int true "User ID"
// @Success 200 {object} models.Account
// @Failure 404 {object} ErrorResponse
// @Router /users/{userId}/account [get]
func (as *AccountService) GetAccountByUser(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.Atoi(chi.URLParam(r, "userId"))
	if err != nil {
		SendErrorResponse(w, "Invalid user id", http.StatusBadRequest, nil)
		return
	}

	account, err := as.fetchAccount(`WHERE accounts.user_id = $1`, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, "Account not found", http.StatusNotFound, nil)
		} else {
			log.Printf("[ACCOUNT] Failed to fetch account for user %d: %v", userID, err)
			SendErrorResponse(w, "Failed to fetch account", http.StatusInternalServerError, nil)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(account)
}

// GetAccountByID retrieves an account by its id
// @Summary Get account by account ID
// @Description Retrieve an account by id
// @Tags accounts
// @Produce json
// @Security BearerAuth
// @Param accountId path int true "Account ID"
// @Success 200 {object} models.Account
// @Failure 404 {object} ErrorResponse
// @Router /accounts/{accountId} [get]
func (as *AccountService) GetAccountByID(w http.ResponseWriter, r *http.Request) {
	accountID, err := strconv.Atoi(chi.URLParam(r, "accountId"))
	if err != nil {
		SendErrorResponse(w, "Invalid account id", http.StatusBadRequest, nil)
		return
	}

	account, err := as.fetchAccount(`WHERE accounts.account_id = $1`, accountID)
	if err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, "Account not found", http.StatusNotFound, nil)
		} else {
			log.Printf("[ACCOUNT] Failed to fetch account %d: %v", accountID, err)
			SendErrorResponse(w, "Failed to fetch account", http.StatusInternalServerError, nil)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(account)
}

// UpdateBalance sets an account balance directly
// @Summary Update account balance
// @Description Set a new balance for an account owned by the caller; negative balances are rejected
// @Tags accounts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param accountId path int true "Account ID"
// @Param request body object{balance=int64} true "New balance in cents"
// @Success 200 "Balance updated"
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /accounts/{accountId} [put]
func (as *AccountService) UpdateBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(int)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	accountID, err := strconv.Atoi(chi.URLParam(r, "accountId"))
	if err != nil {
		SendErrorResponse(w, "Invalid account id", http.StatusBadRequest, nil)
		return
	}

	var req struct {
		Balance *int64 `json:"balance" validate:"required"`
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := as.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	if *req.Balance < 0 {
		SendErrorResponse(w, "Balance cannot be negative", http.StatusBadRequest, nil)
		return
	}

	var ownerID int
	err = as.db.QueryRow(`SELECT user_id FROM accounts WHERE account_id = $1`, accountID).Scan(&ownerID)
	if err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, "Account not found", http.StatusNotFound, nil)
		} else {
			log.Printf("[ACCOUNT] Owner lookup failed for account %d: %v", accountID, err)
			SendErrorResponse(w, "Failed to update balance", http.StatusInternalServerError, nil)
		}
		return
	}

	if ownerID != userID {
		log.Printf("[ACCOUNT] User %d attempted balance update on account %d owned by %d", userID, accountID, ownerID)
		SendErrorResponse(w, "Account not owned by caller", http.StatusForbidden, nil)
		return
	}

	_, err = as.db.Exec(`
		UPDATE accounts
		SET balance = $1, version = version + 1, updated_at = NOW()
		WHERE account_id = $2`, *req.Balance, accountID)
	if err != nil {
		log.Printf("[ACCOUNT] Failed to update balance for account %d: %v", accountID, err)
		SendErrorResponse(w, "Failed to update balance", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[ACCOUNT] Balance updated for account %d by user %d", accountID, userID)
	w.WriteHeader(http.StatusOK)
}

func (as *AccountService) fetchAccount(where string, arg any) (*models.Account, error) {
	var account models.Account
	err := as.db.QueryRow(`
		SELECT accounts.account_id, accounts.user_id, accounts.balance, users.username, accounts.updated_at
		FROM accounts
		JOIN users ON accounts.user_id = users.user_id `+where, arg).
		Scan(&account.AccountID, &account.UserID, &account.Balance, &account.Username, &account.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &account, nil
}
