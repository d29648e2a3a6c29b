package migration_1

import (
	"fmt"

	"gorm.io/gorm"
)

type Model struct {
	ObjectKey string
}

func Migration(db *gorm.DB) error {
	if err := db.Migrator().AddColumn(&Model{}, "ObjectKey"); err != nil {
		return fmt.Errorf("error adding ObjectKey column: %w", err)
	}

	if err := db.Model(&Model{}).
		Where("object_key IS NULL").
		Update("object_key", "").Error; err != nil {
		return fmt.Errorf("error setting default value for ObjectKey: %w", err)
	}

	return nil
}

func Rollback(db *gorm.DB) error {
	if err := db.Migrator().DropColumn(&Model{}, "ObjectKey"); err != nil {
		return fmt.Errorf("error dropping ObjectKey column: %w", err)
	}

	return nil
}
