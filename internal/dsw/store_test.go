package dsw

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm/clause"
)

func newTestSQLStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "tradecore.db")
	store, err := NewStore(dbPath)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store
}

func TestNewStoreMigratesAllModels(t *testing.T) {
	t.Parallel()
	store := newTestSQLStore(t)

	rec := OrderRecord{
		ID:           "ord-1",
		UserID:       "u1",
		Symbol:       "AAPL",
		Side:         "BUY",
		State:        "FILLED",
		RequestedQty: decimal.RequireFromString("10"),
		FilledQty:    decimal.RequireFromString("10"),
		FilledAvg:    decimal.RequireFromString("100"),
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	if err := store.db.Create(&rec).Error; err != nil {
		t.Fatalf("create OrderRecord: %v", err)
	}

	var got OrderRecord
	if err := store.db.First(&got, "id = ?", "ord-1").Error; err != nil {
		t.Fatalf("read back OrderRecord: %v", err)
	}
	if !got.FilledQty.Equal(rec.FilledQty) {
		t.Errorf("FilledQty = %s, want %s", got.FilledQty, rec.FilledQty)
	}
}

func TestOrderRecordUpsertOnConflict(t *testing.T) {
	t.Parallel()
	store := newTestSQLStore(t)

	rec := OrderRecord{ID: "ord-1", State: "CREATED", RequestedQty: decimal.Zero, FilledQty: decimal.Zero, FilledAvg: decimal.Zero}
	if err := store.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&rec).Error; err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	rec.State = "PENDING"
	if err := store.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&rec).Error; err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	var got OrderRecord
	if err := store.db.First(&got, "id = ?", "ord-1").Error; err != nil {
		t.Fatalf("read back: %v", err)
	}
	if got.State != "PENDING" {
		t.Errorf("State = %q, want PENDING (upsert should update, not duplicate)", got.State)
	}

	var count int64
	store.db.Model(&OrderRecord{}).Where("id = ?", "ord-1").Count(&count)
	if count != 1 {
		t.Errorf("row count = %d, want 1 (no duplicate inserted)", count)
	}
}

func TestPositionRecordCompositeKeyUpsert(t *testing.T) {
	t.Parallel()
	store := newTestSQLStore(t)

	pos := PositionRecord{UserID: "u1", Symbol: "AAPL", Qty: decimal.RequireFromString("10")}
	if err := store.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "symbol"}},
		UpdateAll: true,
	}).Create(&pos).Error; err != nil {
		t.Fatalf("create PositionRecord: %v", err)
	}

	pos.Qty = decimal.RequireFromString("15")
	if err := store.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "symbol"}},
		UpdateAll: true,
	}).Create(&pos).Error; err != nil {
		t.Fatalf("upsert PositionRecord: %v", err)
	}

	var got PositionRecord
	if err := store.db.First(&got, "user_id = ? AND symbol = ?", "u1", "AAPL").Error; err != nil {
		t.Fatalf("read back: %v", err)
	}
	if !got.Qty.Equal(decimal.RequireFromString("15")) {
		t.Errorf("Qty = %s, want 15", got.Qty)
	}
}
