package models

import "time"

type Account struct {
	AccountID int       `json:"account_id" db:"account_id"`
	UserID    int       `json:"user_id" db:"user_id"`
	Balance   int64     `json:"balance" db:"balance"` // in cents
	Username  string    `json:"username" db:"username"`
	Version   int       `json:"-" db:"version"` // for optimistic locking
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
