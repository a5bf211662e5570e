// Package storage persists purchase receipts and periodic sale snapshots to
// an embedded SQLite database.
package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// PurchaseRecord is one committed purchase as stored on disk. Monetary
// amounts are decimal strings to avoid precision loss in SQLite.
type PurchaseRecord struct {
	ID          string `gorm:"primaryKey"`
	Buyer       string `gorm:"index"`
	AssetAmount string
	TokenAmount string
	Price       string
	PurchasedAt int64 `gorm:"index"`
}

// SaleSnapshot mirrors the sale ledger at a point in time. A single row
// (ID 1) is kept current.
type SaleSnapshot struct {
	ID          uint `gorm:"primaryKey"`
	TokensSold  string
	AssetRaised string
	Finalized   bool
	UpdatedAt   int64
}

// Store wraps the SQLite-backed persistence layer.
type Store struct {
	db *gorm.DB
}

// Open creates (or opens) the database under dataDir and migrates the schema.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	path := filepath.Join(dataDir, "sale.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(&PurchaseRecord{}, &SaleSnapshot{}); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &Store{db: db}, nil
}

// SavePurchase appends a purchase record.
func (s *Store) SavePurchase(rec *PurchaseRecord) error {
	if rec == nil {
		return nil
	}
	if err := s.db.Create(rec).Error; err != nil {
		return fmt.Errorf("save purchase %s: %w", rec.ID, err)
	}
	return nil
}

// Purchases returns the most recent records, newest first.
func (s *Store) Purchases(limit int) ([]PurchaseRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []PurchaseRecord
	if err := s.db.Order("purchased_at DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list purchases: %w", err)
	}
	return out, nil
}

// PurchasesBy returns all records for one buyer, newest first.
func (s *Store) PurchasesBy(buyer string) ([]PurchaseRecord, error) {
	var out []PurchaseRecord
	if err := s.db.Where("buyer = ?", buyer).Order("purchased_at DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list purchases for %s: %w", buyer, err)
	}
	return out, nil
}

// SaveSnapshot upserts the current sale snapshot.
func (s *Store) SaveSnapshot(snap *SaleSnapshot) error {
	if snap == nil {
		return nil
	}
	snap.ID = 1
	if err := s.db.Save(snap).Error; err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Snapshot returns the stored snapshot, or (nil, nil) when none exists yet.
func (s *Store) Snapshot() (*SaleSnapshot, error) {
	var snap SaleSnapshot
	err := s.db.First(&snap, 1).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return &snap, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
