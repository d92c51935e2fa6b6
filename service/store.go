package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/harshraj78/legal-check-ai/config"
	"github.com/harshraj78/legal-check-ai/model"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// OpenDatabase connects to the configured database and migrates the schema.
func OpenDatabase(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	gormLog := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormLogLevel(cfg.LogLevel),
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Driver, err)
	}
	if cfg.Driver == "sqlite" {
		// A single connection serializes writers; sqlite rejects concurrent ones.
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.SetMaxOpenConns(1)
		}
	}

	if err := db.AutoMigrate(&model.Contract{}, &model.AnalysisResult{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return db, nil
}

func gormLogLevel(level string) gormLogger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return gormLogger.Silent
	case "error":
		return gormLogger.Error
	case "info":
		return gormLogger.Info
	default:
		return gormLogger.Warn
	}
}

// ContractStore persists contract records and their analysis results. Status
// changes are conditional updates, so a write only lands if the record is in
// a state the transition may leave from.
type ContractStore struct {
	db *gorm.DB
}

func NewContractStore(db *gorm.DB) *ContractStore {
	return &ContractStore{db: db}
}

func (s *ContractStore) Create(ctx context.Context, c *model.Contract) error {
	if c.Status == "" {
		c.Status = model.StatusPending
	}
	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		return fmt.Errorf("failed to create contract: %w", err)
	}
	return nil
}

// Get loads a contract together with its analysis result, if any.
func (s *ContractStore) Get(ctx context.Context, id string) (*model.Contract, error) {
	var c model.Contract
	err := s.db.WithContext(ctx).Preload("Analysis").First(&c, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrContractNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load contract %s: %w", id, err)
	}
	return &c, nil
}

// List returns contracts newest first, without raw text, plus the total count.
func (s *ContractStore) List(ctx context.Context, limit, offset int) ([]model.Contract, int64, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&model.Contract{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count contracts: %w", err)
	}

	var contracts []model.Contract
	err := s.db.WithContext(ctx).
		Omit("raw_text").
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&contracts).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list contracts: %w", err)
	}
	return contracts, total, nil
}

// Count returns the number of contracts in the store.
func (s *ContractStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&model.Contract{}).Count(&n).Error
	return n, err
}

func (s *ContractStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// MarkProcessing moves a pending contract to processing.
func (s *ContractStore) MarkProcessing(ctx context.Context, id string) error {
	now := time.Now().UTC()
	return transition(s.db.WithContext(ctx), id, model.StatusProcessing, map[string]any{
		"started_at": now,
	})
}

// SaveRawText stores extraction output on a contract that is processing.
func (s *ContractStore) SaveRawText(ctx context.Context, id, text string, pages int) error {
	res := s.db.WithContext(ctx).Model(&model.Contract{}).
		Where("id = ? AND status = ?", id, model.StatusProcessing).
		Updates(map[string]any{
			"raw_text":   text,
			"page_count": pages,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to save raw text for %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return missOrInvalid(s.db.WithContext(ctx), id)
	}
	return nil
}

// Complete inserts the analysis result and marks the contract completed in
// one transaction. Neither write is visible without the other.
func (s *ContractStore) Complete(ctx context.Context, id string, p *AnalysisPayload) (*model.AnalysisResult, error) {
	result := &model.AnalysisResult{
		ID:              uuid.NewString(),
		ContractID:      id,
		RiskScore:       p.RiskScore,
		Summary:         p.Summary,
		HighRiskClauses: append([]string{}, p.HighRiskClauses...),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := transition(tx, id, model.StatusCompleted, map[string]any{
			"completed_at": time.Now().UTC(),
			"error_msg":    "",
		}); err != nil {
			return err
		}
		if err := tx.Create(result).Error; err != nil {
			return fmt.Errorf("failed to store analysis result: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// MarkFailed moves a pending or processing contract to failed with reason.
func (s *ContractStore) MarkFailed(ctx context.Context, id, reason string) error {
	return transition(s.db.WithContext(ctx), id, model.StatusFailed, map[string]any{
		"error_msg":    reason,
		"completed_at": time.Now().UTC(),
	})
}

// FailInterrupted fails every contract left pending or processing, returning
// how many were changed. Called once at startup, before any work is dispatched.
func (s *ContractStore) FailInterrupted(ctx context.Context, reason string) (int64, error) {
	res := s.db.WithContext(ctx).Model(&model.Contract{}).
		Where("status IN ?", model.Predecessors(model.StatusFailed)).
		Updates(map[string]any{
			"status":       model.StatusFailed,
			"error_msg":    reason,
			"completed_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to fail interrupted contracts: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		slog.Warn("failed interrupted contracts", "count", res.RowsAffected)
	}
	return res.RowsAffected, nil
}

func transition(db *gorm.DB, id string, next model.Status, fields map[string]any) error {
	fields["status"] = next
	res := db.Model(&model.Contract{}).
		Where("id = ? AND status IN ?", id, model.Predecessors(next)).
		Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("failed to set contract %s to %s: %w", id, next, res.Error)
	}
	if res.RowsAffected == 0 {
		return missOrInvalid(db, id)
	}
	return nil
}

// missOrInvalid explains a guarded update that matched no row.
func missOrInvalid(db *gorm.DB, id string) error {
	var current model.Contract
	err := db.Session(&gorm.Session{NewDB: true}).Select("status").First(&current, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrContractNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load contract %s: %w", id, err)
	}
	return fmt.Errorf("%w: contract %s is %s", ErrInvalidTransition, id, current.Status)
}
