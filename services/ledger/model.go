package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// GenesisHash is the previous hash of the first entry in every beneficiary chain.
const GenesisHash = "GENESIS"

type ReasonCode string

const (
	ReasonRedemption       ReasonCode = "REDEMPTION"
	ReasonRefundAdjustment ReasonCode = "REFUND_ADJUSTMENT"
	ReasonManualAdjustment ReasonCode = "MANUAL_ADJUSTMENT"
)

func (r ReasonCode) Valid() bool {
	switch r {
	case ReasonRedemption, ReasonRefundAdjustment, ReasonManualAdjustment:
		return true
	default:
		return false
	}
}

func (r ReasonCode) String() string {
	return string(r)
}

// LedgerEntry is append-only. Corrections are new entries with the opposite sign.
type LedgerEntry struct {
	ID                snowflake.ID   `gorm:"column:id;primaryKey;autoIncrement:false" json:"id"`
	BeneficiaryUserID snowflake.ID   `gorm:"column:beneficiary_user_id;not null;uniqueIndex:idx_ledger_user_seq,priority:1" json:"beneficiary_user_id"`
	Sequence          int64          `gorm:"column:sequence;not null;uniqueIndex:idx_ledger_user_seq,priority:2" json:"sequence"`
	Amount            int64          `gorm:"column:amount;not null" json:"amount"`
	ReasonCode        ReasonCode     `gorm:"column:reason_code;size:32;not null" json:"reason_code"`
	Description       string         `gorm:"column:description;size:500" json:"description"`
	CreatedByAdminID  *snowflake.ID  `gorm:"column:created_by_admin_id" json:"created_by_admin_id,omitempty"`
	RelatedOrderID    *snowflake.ID  `gorm:"column:related_order_id;index" json:"related_order_id,omitempty"`
	PreviousHash      string         `gorm:"column:previous_hash;size:64;not null" json:"previous_hash"`
	Hash              string         `gorm:"column:hash;size:64;not null" json:"hash"`
	Metadata          datatypes.JSON `gorm:"column:metadata" json:"metadata,omitempty"`
	CreatedAt         time.Time      `gorm:"column:created_at;not null" json:"created_at"`
}

func (LedgerEntry) TableName() string {
	return "ledger_entries"
}

func optionalID(id *snowflake.ID) string {
	if id == nil {
		return ""
	}
	return id.String()
}

func (m *LedgerEntry) HashFields() map[string]string {
	return map[string]string{
		"id":                  m.ID.String(),
		"beneficiary_user_id": m.BeneficiaryUserID.String(),
		"sequence":            fmt.Sprintf("%d", m.Sequence),
		"amount":              fmt.Sprintf("%d", m.Amount),
		"reason_code":         m.ReasonCode.String(),
		"description":         m.Description,
		"created_by_admin_id": optionalID(m.CreatedByAdminID),
		"related_order_id":    optionalID(m.RelatedOrderID),
		"created_at":          m.CreatedAt.UTC().Format(time.RFC3339Nano),
		"previous_hash":       m.PreviousHash,
	}
}

func (l *LedgerEntry) GenerateHash() string {
	fields := l.HashFields()
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, fields[k]))
	}

	joined := strings.Join(parts, "|")
	hash := sha256.Sum256([]byte(joined))
	return hex.EncodeToString(hash[:])
}

// AppendParams describes one balance movement.
type AppendParams struct {
	BeneficiaryUserID snowflake.ID
	Amount            int64
	ReasonCode        ReasonCode
	Description       string
	CreatedByAdminID  *snowflake.ID
	RelatedOrderID    *snowflake.ID
	Metadata          map[string]any
}

type AdjustParams struct {
	UserID      snowflake.ID
	Amount      int64
	Description string
	AdminID     snowflake.ID
}

type ChainReport struct {
	UserID        snowflake.ID  `json:"user_id"`
	Valid         bool          `json:"valid"`
	Entries       int           `json:"entries"`
	BrokenEntryID *snowflake.ID `json:"broken_entry_id,omitempty"`
	Reason        string        `json:"reason,omitempty"`
}

// Drift is an account whose projected balance disagrees with its ledger sum.
type Drift struct {
	UserID        snowflake.ID `gorm:"column:user_id" json:"user_id"`
	PointsBalance int64        `gorm:"column:points_balance" json:"points_balance"`
	LedgerSum     int64        `gorm:"column:ledger_sum" json:"ledger_sum"`
}

// entryTime returns the timestamp stored on new entries. Millisecond precision survives
// every supported dialect, which keeps hashes stable after a round trip.
func entryTime() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
