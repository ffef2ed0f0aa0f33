package services

import (
	"bytes"
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image/png"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/skip2/go-qrcode"
)

// QRService issues short-lived payment codes an account holder can show to
// receive money. The encoded payload is cached in Redis and redeemed once.
type QRService struct {
	db    *sql.DB
	redis *redis.Client
}

func NewQRService(db *sql.DB, redisClient *redis.Client) *QRService {
	return &QRService{
		db:    db,
		redis: redisClient,
	}
}

// GenerateCode generates a QR payment code for an account
// @Summary Generate account QR code
// @Description Generate a QR code encoding the account id and an optional amount, for receiving a transfer
// @Tags accounts
// @Produce json
// @Security BearerAuth
// @Param accountId path int true "Account ID"
// @Param amount query int false "Requested amount in cents"
// @Success 200 {object} object{code=string,qrImage=string}
// @Failure 404 {object} ErrorResponse
// @Router /accounts/{accountId}/qr [get]
func (s *QRService) GenerateCode(w http.ResponseWriter, r *http.Request) {
	accountID, err := strconv.Atoi(chi.URLParam(r, "accountId"))
	if err != nil {
		SendErrorResponse(w, "Invalid account id", http.StatusBadRequest, nil)
		return
	}

	var exists bool
	if err := s.db.QueryRow(`SELECT EXISTS(SELECT 1 FROM accounts WHERE account_id = $1)`, accountID).Scan(&exists); err != nil {
		log.Printf("[QR] Account lookup failed for %d: %v", accountID, err)
		SendErrorResponse(w, "Failed to generate QR code", http.StatusInternalServerError, nil)
		return
	}
	if !exists {
		SendErrorResponse(w, "Account not found", http.StatusNotFound, nil)
		return
	}

	var amount int64
	if amountStr := r.URL.Query().Get("amount"); amountStr != "" {
		amount, err = strconv.ParseInt(amountStr, 10, 64)
		if err != nil || amount <= 0 {
			SendErrorResponse(w, "Invalid amount", http.StatusBadRequest, nil)
			return
		}
	}

	code, qrImage, err := s.generate(r.Context(), accountID, amount)
	if err != nil {
		log.Printf("[QR] Generation failed for account %d: %v", accountID, err)
		SendErrorResponse(w, "Failed to generate QR code", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"code":    code,
		"qrImage": qrImage,
	})
}

// ResolveCode redeems a scanned QR payment code
// @Summary Resolve QR payment code
// @Description Redeem a QR code into its account id and requested amount; codes are single use
// @Tags accounts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{code=string} true "Scanned code"
// @Success 200 {object} object{accountId=int,amount=int64}
// @Failure 400 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /qr/resolve [post]
func (s *QRService) ResolveCode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	payload, err := s.resolve(r.Context(), req.Code)
	if err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payload)
}

func (s *QRService) generate(ctx context.Context, accountID int, amount int64) (string, string, error) {
	payload := map[string]any{
		"accountId": accountID,
		"amount":    amount,
		"timestamp": time.Now().Unix(),
		"nonce":     s.generateNonce(),
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return "", "", err
	}

	code := base64.URLEncoding.EncodeToString(jsonData)

	if s.redis != nil {
		key := fmt.Sprintf("qr:%s", code)
		if err := s.redis.Set(ctx, key, jsonData, 5*time.Minute).Err(); err != nil {
			return "", "", err
		}
	}

	qr, err := qrcode.New(code, qrcode.Medium)
	if err != nil {
		return "", "", err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(256)); err != nil {
		return "", "", err
	}

	return code, base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func (s *QRService) resolve(ctx context.Context, code string) (map[string]any, error) {
	if s.redis == nil {
		return nil, fmt.Errorf("QR codes unavailable")
	}

	key := fmt.Sprintf("qr:%s", code)

	data, err := s.redis.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("invalid or expired QR code")
	}
	if err != nil {
		return nil, err
	}

	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}

	s.redis.Del(ctx, key)

	return result, nil
}

func (s *QRService) generateNonce() string {
	b := make([]byte, 16)
	rand.Read(b)
	return base64.URLEncoding.EncodeToString(b)
}
