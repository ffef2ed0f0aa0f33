package models

import "time"

// Transfer type identifiers.
const (
	TransferTypeSend = 1
)

// Transfer status identifiers. Only approved is produced by the send path;
// pending and rejected exist for the request-money workflow, which is not wired up.
const (
	TransferStatusApproved = 1
	TransferStatusPending  = 2
	TransferStatusRejected = 3
)

type Transfer struct {
	TransferID  int       `json:"transfer_id" db:"transfer_id"`
	Reference   string    `json:"reference" db:"reference"`
	TypeID      int       `json:"type_id" db:"type_id" validate:"required,min=1"`
	StatusID    int       `json:"status_id" db:"status_id" validate:"required,min=1"`
	AccountFrom int       `json:"account_from" db:"account_from" validate:"required"`
	AccountTo   int       `json:"account_to" db:"account_to" validate:"required"`
	Amount      int64     `json:"amount" db:"amount" validate:"required,gt=0"` // in cents
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
