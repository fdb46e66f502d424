package models

import (
	"time"
)

type Transfer struct {
	SecretHash    string    `gorm:"primaryKey;type:varchar(66)" bson:"secret_hash"`
	Secret        string    `gorm:"type:varchar(66)" bson:"secret"`
	FromChain     string    `gorm:"type:varchar(32);index:idx_transfer_from" bson:"from_chain"`
	ToChain       string    `gorm:"type:varchar(32)" bson:"to_chain"`
	FromAddr      string    `gorm:"type:varchar(64);index:idx_transfer_from" bson:"from_addr"`
	ToAddr        string    `gorm:"type:varchar(64)" bson:"to_addr"`
	StoremanAddr  string    `gorm:"type:varchar(64)" bson:"storeman_addr"`
	TokenAddr     string    `gorm:"type:varchar(64)" bson:"token_addr"`
	Value         string    `gorm:"type:varchar(80)" bson:"value"`
	Status        string    `gorm:"type:varchar(64);index" bson:"status"`
	Phase         string    `gorm:"type:varchar(16)" bson:"phase"`
	WalletKind    string    `gorm:"type:varchar(16)" bson:"wallet_kind"`
	Path          string    `gorm:"type:varchar(128)" bson:"path"`
	ApproveTxHash string    `gorm:"type:varchar(66)" bson:"approve_tx_hash"`
	LockTxHash    string    `gorm:"type:varchar(66)" bson:"lock_tx_hash"`
	NoticeTxHash  string    `gorm:"type:varchar(66)" bson:"notice_tx_hash"`
	RedeemTxHash  string    `gorm:"type:varchar(66)" bson:"redeem_tx_hash"`
	RevokeTxHash  string    `gorm:"type:varchar(66)" bson:"revoke_tx_hash"`
	LatestTxHash  string    `gorm:"type:varchar(66)" bson:"latest_tx_hash"`
	RetryCount    int       `gorm:"default:0" bson:"retry_count"`
	Message       string    `gorm:"type:text" bson:"message"`
	CreatedAt     time.Time `bson:"created_at"`
	UpdatedAt     time.Time `bson:"updated_at"`
}

func (Transfer) TableName() string {
	return "cross_transfers"
}

// Store every accepted broadcast, never rewritten except for its status
type TxRecord struct {
	ID         string    `gorm:"primaryKey;type:varchar(36)" bson:"_id"`
	SecretHash string    `gorm:"type:varchar(66);index" bson:"secret_hash"`
	Action     string    `gorm:"type:varchar(32)" bson:"action"`
	Chain      string    `gorm:"type:varchar(32)" bson:"chain"`
	From       string    `gorm:"column:from_addr;type:varchar(64)" bson:"from"`
	To         string    `gorm:"column:to_addr;type:varchar(64)" bson:"to"`
	TxHash     string    `gorm:"type:varchar(66);uniqueIndex" bson:"tx_hash"`
	Nonce      uint64    `bson:"nonce"`
	Status     string    `gorm:"type:varchar(16)" bson:"status"`
	Annotate   string    `gorm:"type:varchar(64)" bson:"annotate"`
	CreatedAt  time.Time `bson:"created_at"`
	UpdatedAt  time.Time `bson:"updated_at"`
}

func (TxRecord) TableName() string {
	return "tx_records"
}
