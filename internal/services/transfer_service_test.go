package services

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/peerpay/backend/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestTransferService_Execute(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewTransferService(db)

	t.Run("successful transfer moves exactly the amount", func(t *testing.T) {
		// source 50.00, destination 3000.00, transfer 25.00
		mock.ExpectBegin()

		mock.ExpectQuery("SELECT account_id, balance, version, updated_at FROM accounts WHERE account_id = \\$1 FOR UPDATE").
			WithArgs(1).
			WillReturnRows(sqlmock.NewRows([]string{"account_id", "balance", "version", "updated_at"}).
				AddRow(1, 5000, 1, time.Now()))

		mock.ExpectQuery("SELECT account_id, balance, version, updated_at FROM accounts WHERE account_id = \\$1 FOR UPDATE").
			WithArgs(2).
			WillReturnRows(sqlmock.NewRows([]string{"account_id", "balance", "version", "updated_at"}).
				AddRow(2, 300000, 1, time.Now()))

		mock.ExpectQuery("INSERT INTO transfers").
			WithArgs(sqlmock.AnyArg(), models.TransferTypeSend, models.TransferStatusApproved, 1, 2, int64(2500)).
			WillReturnRows(sqlmock.NewRows([]string{"transfer_id", "created_at"}).AddRow(7, time.Now()))

		mock.ExpectExec("UPDATE accounts SET balance = \\$1, version = version \\+ 1, updated_at = NOW\\(\\) WHERE account_id = \\$2 AND version = \\$3").
			WithArgs(int64(2500), 1, 1).
			WillReturnResult(sqlmock.NewResult(0, 1))

		mock.ExpectExec("UPDATE accounts SET balance = \\$1, version = version \\+ 1, updated_at = NOW\\(\\) WHERE account_id = \\$2 AND version = \\$3").
			WithArgs(int64(302500), 2, 1).
			WillReturnResult(sqlmock.NewResult(0, 1))

		mock.ExpectCommit()

		transfer, err := service.Execute(context.Background(), 1, 2, 2500)
		assert.NoError(t, err)
		assert.Equal(t, 7, transfer.TransferID)
		assert.Equal(t, 1, transfer.AccountFrom)
		assert.Equal(t, 2, transfer.AccountTo)
		assert.Equal(t, int64(2500), transfer.Amount)
		assert.Equal(t, models.TransferStatusApproved, transfer.StatusID)
		assert.NotEmpty(t, transfer.Reference)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("locks accounts in ascending id order", func(t *testing.T) {
		// transfer from account 5 to account 2: account 2 must be locked first
		mock.ExpectBegin()

		mock.ExpectQuery("SELECT account_id, balance, version, updated_at FROM accounts WHERE account_id = \\$1 FOR UPDATE").
			WithArgs(2).
			WillReturnRows(sqlmock.NewRows([]string{"account_id", "balance", "version", "updated_at"}).
				AddRow(2, 1000, 3, time.Now()))

		mock.ExpectQuery("SELECT account_id, balance, version, updated_at FROM accounts WHERE account_id = \\$1 FOR UPDATE").
			WithArgs(5).
			WillReturnRows(sqlmock.NewRows([]string{"account_id", "balance", "version", "updated_at"}).
				AddRow(5, 2000, 1, time.Now()))

		mock.ExpectQuery("INSERT INTO transfers").
			WithArgs(sqlmock.AnyArg(), models.TransferTypeSend, models.TransferStatusApproved, 5, 2, int64(500)).
			WillReturnRows(sqlmock.NewRows([]string{"transfer_id", "created_at"}).AddRow(8, time.Now()))

		mock.ExpectExec("UPDATE accounts").
			WithArgs(int64(1500), 5, 1).
			WillReturnResult(sqlmock.NewResult(0, 1))

		mock.ExpectExec("UPDATE accounts").
			WithArgs(int64(1500), 2, 3).
			WillReturnResult(sqlmock.NewResult(0, 1))

		mock.ExpectCommit()

		transfer, err := service.Execute(context.Background(), 5, 2, 500)
		assert.NoError(t, err)
		assert.Equal(t, 5, transfer.AccountFrom)
		assert.Equal(t, 2, transfer.AccountTo)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insufficient funds rolls back without writes", func(t *testing.T) {
		// source 10.00, transfer request 2500.00
		mock.ExpectBegin()

		mock.ExpectQuery("SELECT account_id, balance, version, updated_at FROM accounts WHERE account_id = \\$1 FOR UPDATE").
			WithArgs(1).
			WillReturnRows(sqlmock.NewRows([]string{"account_id", "balance", "version", "updated_at"}).
				AddRow(1, 1000, 1, time.Now()))

		mock.ExpectQuery("SELECT account_id, balance, version, updated_at FROM accounts WHERE account_id = \\$1 FOR UPDATE").
			WithArgs(2).
			WillReturnRows(sqlmock.NewRows([]string{"account_id", "balance", "version", "updated_at"}).
				AddRow(2, 1000, 1, time.Now()))

		mock.ExpectRollback()

		_, err := service.Execute(context.Background(), 1, 2, 250000)
		assert.ErrorIs(t, err, ErrInsufficientFunds)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("zero amount rejected before touching the database", func(t *testing.T) {
		_, err := service.Execute(context.Background(), 1, 2, 0)
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})

	t.Run("negative amount rejected before touching the database", func(t *testing.T) {
		_, err := service.Execute(context.Background(), 1, 2, -500)
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})

	t.Run("self transfer rejected before touching the database", func(t *testing.T) {
		_, err := service.Execute(context.Background(), 3, 3, 100)
		assert.ErrorIs(t, err, ErrSelfTransfer)
	})

	t.Run("unknown source account", func(t *testing.T) {
		mock.ExpectBegin()

		mock.ExpectQuery("SELECT account_id, balance, version, updated_at FROM accounts WHERE account_id = \\$1 FOR UPDATE").
			WithArgs(1).
			WillReturnError(sql.ErrNoRows)

		mock.ExpectRollback()

		_, err := service.Execute(context.Background(), 1, 2, 100)
		assert.ErrorIs(t, err, ErrAccountNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("concurrent balance change fails the optimistic guard", func(t *testing.T) {
		mock.ExpectBegin()

		mock.ExpectQuery("SELECT account_id, balance, version, updated_at FROM accounts WHERE account_id = \\$1 FOR UPDATE").
			WithArgs(1).
			WillReturnRows(sqlmock.NewRows([]string{"account_id", "balance", "version", "updated_at"}).
				AddRow(1, 5000, 1, time.Now()))

		mock.ExpectQuery("SELECT account_id, balance, version, updated_at FROM accounts WHERE account_id = \\$1 FOR UPDATE").
			WithArgs(2).
			WillReturnRows(sqlmock.NewRows([]string{"account_id", "balance", "version", "updated_at"}).
				AddRow(2, 1000, 1, time.Now()))

		mock.ExpectQuery("INSERT INTO transfers").
			WithArgs(sqlmock.AnyArg(), models.TransferTypeSend, models.TransferStatusApproved, 1, 2, int64(500)).
			WillReturnRows(sqlmock.NewRows([]string{"transfer_id", "created_at"}).AddRow(9, time.Now()))

		mock.ExpectExec("UPDATE accounts").
			WithArgs(int64(4500), 1, 1).
			WillReturnResult(sqlmock.NewResult(0, 0))

		mock.ExpectRollback()

		_, err := service.Execute(context.Background(), 1, 2, 500)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "optimistic lock failed")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTransferService_CreateTransfer(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewTransferService(db)

	authed := func(r *http.Request, userID int) *http.Request {
		return r.WithContext(context.WithValue(r.Context(), "userID", userID))
	}

	t.Run("missing identity", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/transfers", bytes.NewBufferString("{}"))
		w := httptest.NewRecorder()

		service.CreateTransfer(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("invalid request body", func(t *testing.T) {
		r := authed(httptest.NewRequest("POST", "/transfers", bytes.NewBufferString("invalid")), 1)
		w := httptest.NewRecorder()

		service.CreateTransfer(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("source account owned by someone else", func(t *testing.T) {
		body, _ := json.Marshal(models.Transfer{
			TypeID:      models.TransferTypeSend,
			StatusID:    models.TransferStatusApproved,
			AccountFrom: 3,
			AccountTo:   4,
			Amount:      100,
		})

		mock.ExpectQuery("SELECT user_id FROM accounts WHERE account_id = \\$1").
			WithArgs(3).
			WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(9))

		r := authed(httptest.NewRequest("POST", "/transfers", bytes.NewBuffer(body)), 1)
		w := httptest.NewRecorder()

		service.CreateTransfer(w, r)

		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insufficient funds maps to 422", func(t *testing.T) {
		body, _ := json.Marshal(models.Transfer{
			TypeID:      models.TransferTypeSend,
			StatusID:    models.TransferStatusApproved,
			AccountFrom: 1,
			AccountTo:   2,
			Amount:      250000,
		})

		mock.ExpectQuery("SELECT user_id FROM accounts WHERE account_id = \\$1").
			WithArgs(1).
			WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(1))

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT account_id, balance, version, updated_at FROM accounts WHERE account_id = \\$1 FOR UPDATE").
			WithArgs(1).
			WillReturnRows(sqlmock.NewRows([]string{"account_id", "balance", "version", "updated_at"}).
				AddRow(1, 1000, 1, time.Now()))
		mock.ExpectQuery("SELECT account_id, balance, version, updated_at FROM accounts WHERE account_id = \\$1 FOR UPDATE").
			WithArgs(2).
			WillReturnRows(sqlmock.NewRows([]string{"account_id", "balance", "version", "updated_at"}).
				AddRow(2, 1000, 1, time.Now()))
		mock.ExpectRollback()

		r := authed(httptest.NewRequest("POST", "/transfers", bytes.NewBuffer(body)), 1)
		w := httptest.NewRecorder()

		service.CreateTransfer(w, r)

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTransferService_GetTransfer(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewTransferService(db)

	t.Run("found", func(t *testing.T) {
		mock.ExpectQuery("SELECT transfer_id, reference, type_id, status_id, account_from, account_to, amount, created_at FROM transfers WHERE transfer_id = \\$1").
			WithArgs(7).
			WillReturnRows(sqlmock.NewRows([]string{"transfer_id", "reference", "type_id", "status_id", "account_from", "account_to", "amount", "created_at"}).
				AddRow(7, "ref-7", 1, 1, 1, 2, 2500, time.Now()))

		r := chi.NewRouter()
		r.Get("/transfers/{transferId}", service.GetTransfer)

		req := httptest.NewRequest("GET", "/transfers/7", nil)
		w := httptest.NewRecorder()

		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		var transfer models.Transfer
		json.Unmarshal(w.Body.Bytes(), &transfer)
		assert.Equal(t, 7, transfer.TransferID)
		assert.Equal(t, int64(2500), transfer.Amount)
	})

	t.Run("unknown transfer id", func(t *testing.T) {
		mock.ExpectQuery("SELECT transfer_id, reference, type_id, status_id, account_from, account_to, amount, created_at FROM transfers WHERE transfer_id = \\$1").
			WithArgs(999).
			WillReturnError(sql.ErrNoRows)

		r := chi.NewRouter()
		r.Get("/transfers/{transferId}", service.GetTransfer)

		req := httptest.NewRequest("GET", "/transfers/999", nil)
		w := httptest.NewRecorder()

		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestTransferService_ListTransfersByAccount(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewTransferService(db)

	t.Run("lists source and destination transfers in insertion order", func(t *testing.T) {
		mock.ExpectQuery("SELECT transfer_id, reference, type_id, status_id, account_from, account_to, amount, created_at FROM transfers WHERE account_from = \\$1 OR account_to = \\$1 ORDER BY transfer_id").
			WithArgs(2).
			WillReturnRows(sqlmock.NewRows([]string{"transfer_id", "reference", "type_id", "status_id", "account_from", "account_to", "amount", "created_at"}).
				AddRow(1, "ref-1", 1, 1, 2, 3, 100, time.Now()).
				AddRow(4, "ref-4", 1, 1, 5, 2, 900, time.Now()))

		r := chi.NewRouter()
		r.Get("/accounts/{accountId}/transfers", service.ListTransfersByAccount)

		req := httptest.NewRequest("GET", "/accounts/2/transfers", nil)
		w := httptest.NewRecorder()

		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		var transfers []models.Transfer
		json.Unmarshal(w.Body.Bytes(), &transfers)
		assert.Len(t, transfers, 2)
		assert.Equal(t, 1, transfers[0].TransferID)
		assert.Equal(t, 4, transfers[1].TransferID)
	})

	t.Run("empty history", func(t *testing.T) {
		mock.ExpectQuery("SELECT transfer_id, reference, type_id, status_id, account_from, account_to, amount, created_at FROM transfers").
			WithArgs(8).
			WillReturnRows(sqlmock.NewRows([]string{"transfer_id", "reference", "type_id", "status_id", "account_from", "account_to", "amount", "created_at"}))

		r := chi.NewRouter()
		r.Get("/accounts/{accountId}/transfers", service.ListTransfersByAccount)

		req := httptest.NewRequest("GET", "/accounts/8/transfers", nil)
		w := httptest.NewRecorder()

		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, "[]", w.Body.String())
	})
}
