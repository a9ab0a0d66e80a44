package database

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/parleylabs/parley/internal/moderation"
)

const migrationBackfillSpamLogGroupKeys = "2026-06-12_backfill_spam_log_group_keys"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationBackfillSpamLogGroupKeys, apply: backfillSpamLogGroupKeys},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// Entries written before group keys existed carry an empty key and never
// collapse. Rebuild the key from the record columns they already store.
func backfillSpamLogGroupKeys(db *gorm.DB) error {
	if err := db.Model(&moderation.SpamLog{}).
		Where("group_key = '' AND record_id > 0").
		Update("group_key", gorm.Expr("record_type || '/' || record_id")).Error; err != nil {
		return err
	}
	return db.Model(&moderation.SpamLog{}).
		Where("group_key = '' AND record_ip_address <> ''").
		Update("group_key", gorm.Expr("record_type || '/' || record_ip_address")).Error
}
