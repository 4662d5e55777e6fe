package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle state of an Order.
type OrderStatus string

const (
	OrderCreated OrderStatus = "created"
	OrderPaid    OrderStatus = "paid"
)

// TransactionStatus is the lifecycle state of a Transaction.
type TransactionStatus string

const (
	TxPending TransactionStatus = "pending"
	TxSuccess TransactionStatus = "success"
	TxFailed  TransactionStatus = "failed"
)

// WithdrawalStatus is the lifecycle state of a WithdrawalRequest.
type WithdrawalStatus string

const (
	WithdrawalPending  WithdrawalStatus = "pending"
	WithdrawalApproved WithdrawalStatus = "approved"
	WithdrawalRejected WithdrawalStatus = "rejected"
	WithdrawalPaid     WithdrawalStatus = "paid"
)

// Order is a provisional, pre-payment reservation referencing a remote
// gateway order. It is created before the buyer is sent to checkout and
// moves to paid only after the payment signature has been verified.
//
// The fee split is captured at creation time so the Transaction written on
// verification records the price the buyer actually agreed to.
type Order struct {
	ID              string          `json:"id"                gorm:"type:char(36);primaryKey"`
	UserID          string          `json:"user_id"           gorm:"type:varchar(64);not null;index:idx_orders_user"`
	ContentID       string          `json:"content_id"        gorm:"type:char(36);not null;index"`
	CreatorID       string          `json:"creator_id"        gorm:"type:varchar(64);not null"`
	RazorpayOrderID string          `json:"razorpay_order_id" gorm:"type:varchar(64);not null;uniqueIndex:ux_orders_gateway_order"`
	Amount          decimal.Decimal `json:"amount"            gorm:"type:numeric(12,2);not null"`
	Currency        string          `json:"currency"          gorm:"type:varchar(3);not null"`
	PlatformFee     decimal.Decimal `json:"platform_fee"      gorm:"type:numeric(12,2);not null"`
	CreatorEarnings decimal.Decimal `json:"creator_earnings"  gorm:"type:numeric(12,2);not null"`
	Status          OrderStatus     `json:"status"            gorm:"type:varchar(16);not null;default:'created';check:status IN ('created','paid')"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// TableName returns the database table name for Order.
func (Order) TableName() string { return "orders" }

// Transaction is durable proof that a user paid for a piece of content.
// At most one row exists per (razorpay_payment_id, user_id); the database
// unique index is the final arbiter when concurrent verifications race.
type Transaction struct {
	ID                string            `json:"id"                  gorm:"type:char(36);primaryKey"`
	ContentID         string            `json:"content_id"          gorm:"type:char(36);not null;index:idx_tx_content_user,priority:1"`
	UserID            string            `json:"user_id"             gorm:"type:varchar(64);not null;index:idx_tx_content_user,priority:2;uniqueIndex:ux_tx_payment_user,priority:2"`
	CreatorID         string            `json:"creator_id"          gorm:"type:varchar(64);not null;index:idx_tx_creator"`
	Amount            decimal.Decimal   `json:"amount"              gorm:"type:numeric(12,2);not null"`
	PlatformFee       decimal.Decimal   `json:"platform_fee"        gorm:"type:numeric(12,2);not null"`
	CreatorEarnings   decimal.Decimal   `json:"creator_earnings"    gorm:"type:numeric(12,2);not null"`
	RazorpayOrderID   string            `json:"razorpay_order_id"   gorm:"type:varchar(64);not null;index"`
	RazorpayPaymentID string            `json:"razorpay_payment_id" gorm:"type:varchar(64);not null;uniqueIndex:ux_tx_payment_user,priority:1"`
	RazorpaySignature string            `json:"-"                   gorm:"type:varchar(128)"`
	Status            TransactionStatus `json:"status"              gorm:"type:varchar(16);not null;default:'pending';check:status IN ('pending','success','failed')"`
	IsDeleted         bool              `json:"-"                   gorm:"not null;default:false"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// TableName returns the database table name for Transaction.
func (Transaction) TableName() string { return "transactions" }

// WithdrawalRequest is a creator's request to be paid out part of their
// earnings. Payout details are snapshotted so later profile edits do not
// alter a request in flight.
type WithdrawalRequest struct {
	ID                string           `json:"id"                  gorm:"type:char(36);primaryKey"`
	CreatorID         string           `json:"creator_id"          gorm:"type:varchar(64);not null;index"`
	Amount            decimal.Decimal  `json:"amount"              gorm:"type:numeric(12,2);not null"`
	Status            WithdrawalStatus `json:"status"              gorm:"type:varchar(16);not null;default:'pending';check:status IN ('pending','approved','rejected','paid')"`
	UPIID             string           `json:"upi_id,omitempty"    gorm:"type:varchar(128)"`
	BankAccountName   string           `json:"bank_account_name,omitempty"   gorm:"type:varchar(255)"`
	BankAccountNumber string           `json:"bank_account_number,omitempty" gorm:"type:varchar(64)"`
	BankIFSC          string           `json:"bank_ifsc,omitempty" gorm:"type:varchar(32)"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// TableName returns the database table name for WithdrawalRequest.
func (WithdrawalRequest) TableName() string { return "withdrawal_requests" }
