// models/transaction.go
package models

import "time"

const TransactionTable = "crib_transactions"

type TxAction string

const (
	ActionBorrow          TxAction = "Borrow"
	ActionReturnUnmatched TxAction = "ReturnUnmatched"
)

type TxStatus string

const (
	StatusBorrowed TxStatus = "Borrowed"
	StatusOverdue  TxStatus = "Overdue"
	StatusReturned TxStatus = "Returned"
)

// IsOpen 借出中（含逾期）的记录才能被归还匹配
func (s TxStatus) IsOpen() bool { return s == StatusBorrowed || s == StatusOverdue }

// Transaction 借还流水；Seq 自增，代表创建顺序（匹配时倒序扫描）
type Transaction struct {
	Seq              int64      `gorm:"primaryKey;autoIncrement" json:"-"`
	ID               string     `gorm:"size:36;uniqueIndex;not null" json:"transactionId"`
	ItemID           string     `gorm:"size:64;index;not null" json:"itemId"`
	UserID           string     `gorm:"size:64;index;not null" json:"userId"`
	Action           TxAction   `gorm:"size:20;not null" json:"action"`
	Quantity         uint32     `gorm:"not null" json:"quantity"`
	Reason           string     `gorm:"size:255" json:"reason"`
	ExpectedReturnAt *time.Time `json:"expectedReturnAt,omitempty"`
	ActualReturnAt   *time.Time `json:"actualReturnAt,omitempty"`
	Status           TxStatus   `gorm:"size:20;index;not null" json:"status"`
	CreatedAt        time.Time  `gorm:"index" json:"createdAt"`
	Condition        string     `gorm:"size:120" json:"condition"`
	Notes            string     `gorm:"type:text" json:"notes"`
	BorrowProofRef   string     `gorm:"type:text" json:"borrowProofRef"`
	ReturnProofRef   string     `gorm:"type:text" json:"returnProofRef"`
}

func (Transaction) TableName() string { return TransactionTable }
