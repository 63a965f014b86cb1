package db

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Windi-Fikriyansyah/tenant_chat/internal/models"
)

// Connect opens Postgres with unique violations translated to gorm.ErrDuplicatedKey.
func Connect(dsn string) (*gorm.DB, error) {
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	return gdb, nil
}

// One CHAT conversation per participant tuple; SUPPORT threads are unconstrained.
const chatPairIndex = `CREATE UNIQUE INDEX IF NOT EXISTS ux_conversations_chat_pair
ON conversations (type, COALESCE(operator_id, 0), agent_id, COALESCE(merchant_id, 0))
WHERE category = 'CHAT' AND deleted_at IS NULL`

func Migrate(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(
		&models.User{},
		&models.Agent{},
		&models.Merchant{},
		&models.Conversation{},
		&models.Message{},
	); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	if err := gdb.Exec(chatPairIndex).Error; err != nil {
		return fmt.Errorf("create chat pair index: %w", err)
	}
	return nil
}
