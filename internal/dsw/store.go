// Package dsw is the DB Sync Worker: it persists hot Redis state to SQL with
// change-diff compression and an adaptive flush interval (spec §4.5).
//
// The SQL layer itself is grounded on the teacher's internal/database/database.go:
// same gorm + postgres/sqlite dialect switch, same AutoMigrate-on-New shape.
package dsw

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OrderRecord is the durable row for one Order (spec §3/§4.5).
type OrderRecord struct {
	ID             string `gorm:"primaryKey"`
	UserID         string `gorm:"index"`
	StrategyID     string
	Symbol         string `gorm:"index"`
	Side           string
	OrderType      string
	Product        string
	Mode           string
	RequestedQty   decimal.Decimal `gorm:"type:decimal(20,8)"`
	RequestedPrice decimal.Decimal `gorm:"type:decimal(20,8)"`
	TriggerPrice   decimal.Decimal `gorm:"type:decimal(20,8)"`
	FilledQty      decimal.Decimal `gorm:"type:decimal(20,8)"`
	FilledAvg      decimal.Decimal `gorm:"type:decimal(20,8)"`
	State          string          `gorm:"index"`
	BrokerID       string
	Error          string
	RetryCount     int
	Signature      string
	Metadata       []byte // compressed when over compress_threshold
	MetaCompressed bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TransitionRecord mirrors one row of the hot transition log (spec §4.1/§6),
// replayed into SQL in log order per order_id.
type TransitionRecord struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	OrderID   string `gorm:"index"`
	Seq       int64
	From      string
	To        string
	Actor     string
	Reason    string
	Timestamp time.Time
}

// PositionRecord is the durable row for one user/symbol position.
type PositionRecord struct {
	UserID      string `gorm:"primaryKey"`
	Symbol      string `gorm:"primaryKey"`
	Qty         decimal.Decimal `gorm:"type:decimal(20,8)"`
	AvgPrice    decimal.Decimal `gorm:"type:decimal(20,8)"`
	RealizedPnL decimal.Decimal `gorm:"type:decimal(20,8)"`
	UpdatedAt   time.Time
}

// BrokerSessionRecord is a durable audit trail of session health, not the
// source of truth for a live session (that is hotstore + the BA registry).
type BrokerSessionRecord struct {
	UserID       string `gorm:"primaryKey"`
	CredentialID string `gorm:"primaryKey"`
	BrokerType   string
	Health       string
	ErrorCount   int
	LastActivity time.Time
	UpdatedAt    time.Time
}

// SyncOffset records the last order-log stream id DSW has durably applied,
// the catch-up replay bookmark (spec §4.5).
type SyncOffset struct {
	OrderID  string `gorm:"primaryKey"`
	StreamID string
}

// Store wraps the gorm connection.
type Store struct {
	db *gorm.DB
}

// NewStore opens dbURL, using PostgreSQL when it looks like a postgres DSN
// and falling back to a SQLite file otherwise (teacher's New() dialect
// switch).
func NewStore(dbURL string) (*Store, error) {
	var db *gorm.DB
	var err error

	gcfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}

	if strings.HasPrefix(dbURL, "postgres://") || strings.HasPrefix(dbURL, "postgresql://") {
		db, err = gorm.Open(postgres.Open(dbURL), gcfg)
		if err != nil {
			return nil, err
		}
		log.Info().Msg("dsw: connected (postgres)")
	} else {
		if dir := filepath.Dir(dbURL); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, err
			}
		}
		db, err = gorm.Open(sqlite.Open(dbURL), gcfg)
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", dbURL).Msg("dsw: connected (sqlite)")
	}

	if err := db.AutoMigrate(
		&OrderRecord{}, &TransitionRecord{}, &PositionRecord{}, &BrokerSessionRecord{}, &SyncOffset{},
	); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}
