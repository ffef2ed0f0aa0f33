package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/peerpay/backend/internal/models"
)

// Domain errors surfaced by the transfer path. Handlers map these to HTTP codes.
var (
	ErrAccountNotFound   = errors.New("account not found")
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrSelfTransfer      = errors.New("cannot transfer to self")
)

type TransferService struct {
	db        *sql.DB
	validator *ValidationHelper
}

func NewTransferService(db *sql.DB) *TransferService {
	return &TransferService{
		db:        db,
		validator: NewValidationHelper(),
	}
}

// CreateTransfer handles a money movement between two internal accounts
// @Summary Create a new transfer
// @Description Move money from one account to another in a single atomic unit
// @Tags transfers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param transfer body models.Transfer true "Transfer data"
// @Success 201 {object} models.Transfer
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /transfers [post]
func (ts *TransferService) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(int)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req models.Transfer
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := ts.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	// Only the owner of the source account may move money out of it.
	ownerID, err := ts.accountOwner(req.AccountFrom)
	if err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, "Account not found", http.StatusNotFound, nil)
			return
		}
		log.Printf("[TRANSFER] Owner lookup failed for account %d: %v", req.AccountFrom, err)
		SendErrorResponse(w, "Failed to process transfer", http.StatusInternalServerError, nil)
		return
	}
	if ownerID != userID {
		log.Printf("[TRANSFER] User %d attempted transfer from account %d owned by %d", userID, req.AccountFrom, ownerID)
		SendErrorResponse(w, "Source account not owned by caller", http.StatusForbidden, nil)
		return
	}

	transfer, err := ts.Execute(r.Context(), req.AccountFrom, req.AccountTo, req.Amount)
	if err != nil {
		switch {
		case errors.Is(err, ErrAccountNotFound):
			SendErrorResponse(w, err.Error(), http.StatusNotFound, nil)
		case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrSelfTransfer), errors.Is(err, ErrInsufficientFunds):
			SendErrorResponse(w, err.Error(), http.StatusUnprocessableEntity, nil)
		default:
			log.Printf("[TRANSFER] Transfer failed from %d to %d: %v", req.AccountFrom, req.AccountTo, err)
			SendErrorResponse(w, "Failed to process transfer", http.StatusInternalServerError, nil)
		}
		return
	}

	log.Printf("[TRANSFER] Transfer %d created: %d -> %d, amount %d", transfer.TransferID, transfer.AccountFrom, transfer.AccountTo, transfer.Amount)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(transfer)
}

// Execute performs the money movement as one database transaction: both account
// rows are locked, the balance is re-checked under the lock, the transfer row is
// inserted and both balances updated. Any failure rolls the whole unit back.
func (ts *TransferService) Execute(ctx context.Context, fromAccountID, toAccountID int, amount int64) (*models.Transfer, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if fromAccountID == toAccountID {
		return nil, ErrSelfTransfer
	}

	tx, err := ts.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	// Lock accounts in ascending id order to prevent deadlocks between
	// concurrent transfers touching the same pair.
	firstLock, secondLock := fromAccountID, toAccountID
	if fromAccountID > toAccountID {
		firstLock, secondLock = toAccountID, fromAccountID
	}

	first, err := ts.lockAccount(tx, firstLock)
	if err != nil {
		return nil, err
	}
	second, err := ts.lockAccount(tx, secondLock)
	if err != nil {
		return nil, err
	}

	fromAccount, toAccount := first, second
	if firstLock != fromAccountID {
		fromAccount, toAccount = second, first
	}

	if fromAccount.Balance < amount {
		return nil, ErrInsufficientFunds
	}

	transfer := &models.Transfer{
		Reference:   uuid.New().String(),
		TypeID:      models.TransferTypeSend,
		StatusID:    models.TransferStatusApproved,
		AccountFrom: fromAccountID,
		AccountTo:   toAccountID,
		Amount:      amount,
	}

	err = tx.QueryRow(`
		INSERT INTO transfers (reference, type_id, status_id, account_from, account_to, amount, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING transfer_id, created_at`,
		transfer.Reference, transfer.TypeID, transfer.StatusID,
		transfer.AccountFrom, transfer.AccountTo, transfer.Amount,
	).Scan(&transfer.TransferID, &transfer.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create transfer: %w", err)
	}

	if err := ts.updateAccountBalance(tx, fromAccount.AccountID, fromAccount.Balance-amount, fromAccount.Version); err != nil {
		return nil, err
	}
	if err := ts.updateAccountBalance(tx, toAccount.AccountID, toAccount.Balance+amount, toAccount.Version); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return transfer, nil
}

// GetTransfer retrieves a specific transfer
// @Summary Get transfer by ID
// @Description Retrieve a transfer by its ID
// @Tags transfers
// @Produce json
// @Security BearerAuth
// @Param transferId path int true "Transfer ID"
// @Success 200 {object} models.Transfer
// @Failure 404 {object} ErrorResponse
// @Router /transfers/{transferId} [get]
func (ts *TransferService) GetTransfer(w http.ResponseWriter, r *http.Request) {
	transferID, err := strconv.Atoi(chi.URLParam(r, "transferId"))
	if err != nil {
		SendErrorResponse(w, "Invalid transfer id", http.StatusBadRequest, nil)
		return
	}

	transfer, err := ts.fetchTransfer(transferID)
	if err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, "Transfer not found", http.StatusNotFound, nil)
		} else {
			log.Printf("[TRANSFER] Failed to fetch transfer %d: %v", transferID, err)
			SendErrorResponse(w, "Failed to fetch transfer", http.StatusInternalServerError, nil)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(transfer)
}

// ListTransfersByAccount retrieves all transfers touching an account
// @Summary List transfers for an account
// @Description Get all transfers where the account is source or destination, in insertion order
// @Tags transfers
// @Produce json
// @Security BearerAuth
// @Param accountId path int true "Account ID"
// @Success 200 {array} models.Transfer
// @Failure 400 {object} ErrorResponse
// @Router /accounts/{accountId}/transfers [get]
func (ts *TransferService) ListTransfersByAccount(w http.ResponseWriter, r *http.Request) {
	accountID, err := strconv.Atoi(chi.URLParam(r, "accountId"))
	if err != nil {
		SendErrorResponse(w, "Invalid account id", http.StatusBadRequest, nil)
		return
	}

	rows, err := ts.db.Query(`
		SELECT transfer_id, reference, type_id, status_id, account_from, account_to, amount, created_at
		FROM transfers
		WHERE account_from = $1 OR account_to = $1
		ORDER BY transfer_id`, accountID)
	if err != nil {
		log.Printf("[TRANSFER] Failed to list transfers for account %d: %v", accountID, err)
		SendErrorResponse(w, "Failed to fetch transfers", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	transfers := []models.Transfer{}
	for rows.Next() {
		var t models.Transfer
		if err := rows.Scan(&t.TransferID, &t.Reference, &t.TypeID, &t.StatusID,
			&t.AccountFrom, &t.AccountTo, &t.Amount, &t.CreatedAt); err != nil {
			log.Printf("[TRANSFER] Failed to scan transfer row: %v", err)
			SendErrorResponse(w, "Failed to fetch transfers", http.StatusInternalServerError, nil)
			return
		}
		transfers = append(transfers, t)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(transfers)
}

type lockedAccount struct {
	AccountID int
	Balance   int64
	Version   int
	UpdatedAt time.Time
}

func (ts *TransferService) lockAccount(tx *sql.Tx, accountID int) (*lockedAccount, error) {
	var account lockedAccount
	err := tx.QueryRow(`
		SELECT account_id, balance, version, updated_at
		FROM accounts
		WHERE account_id = $1
		FOR UPDATE`, accountID).
		Scan(&account.AccountID, &account.Balance, &account.Version, &account.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (ts *TransferService) updateAccountBalance(tx *sql.Tx, accountID int, newBalance int64, version int) error {
	result, err := tx.Exec(`
		UPDATE accounts
		SET balance = $1, version = version + 1, updated_at = NOW()
		WHERE account_id = $2 AND version = $3`,
		newBalance, accountID, version)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("optimistic lock failed for account %d", accountID)
	}
	return nil
}

func (ts *TransferService) accountOwner(accountID int) (int, error) {
	var ownerID int
	err := ts.db.QueryRow(`SELECT user_id FROM accounts WHERE account_id = $1`, accountID).Scan(&ownerID)
	return ownerID, err
}

func (ts *TransferService) fetchTransfer(transferID int) (*models.Transfer, error) {
	var t models.Transfer
	err := ts.db.QueryRow(`
		SELECT transfer_id, reference, type_id, status_id, account_from, account_to, amount, created_at
		FROM transfers
		WHERE transfer_id = $1`, transferID).
		Scan(&t.TransferID, &t.Reference, &t.TypeID, &t.StatusID,
			&t.AccountFrom, &t.AccountTo, &t.Amount, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
