package store

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Entry is one row of the shared translation table: the value of a
// translation key for one locale target.
type Entry struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	TranslationKey string    `gorm:"column:translation_key;type:varchar(512);not null;uniqueIndex:idx_snippet_key_target,priority:1"`
	Value          string    `gorm:"column:value;type:text;not null"`
	Author         string    `gorm:"column:author;type:varchar(255);not null"`
	TargetID       string    `gorm:"column:target_id;type:varchar(64);not null;uniqueIndex:idx_snippet_key_target,priority:2;index"`
	// CustomFields carries optional provenance metadata.
	CustomFields datatypes.JSON `gorm:"column:custom_fields"`
	CreatedAt    time.Time      `gorm:"column:created_at;not null;autoCreateTime:false"`
	UpdatedAt    time.Time      `gorm:"column:updated_at;not null;autoUpdateTime:false"`
}

func (Entry) TableName() string { return "translation_snippets" }

// LocaleTarget is the host's locale target row, read when locale targets
// come from the database instead of the config file.
type LocaleTarget struct {
	ID      string `gorm:"column:id;type:varchar(64);primaryKey"`
	ISOCode string `gorm:"column:iso_code;type:varchar(32);not null;index"`
	IsBase  bool   `gorm:"column:is_base;not null"`
	Active  bool   `gorm:"column:active;not null"`
}

func (LocaleTarget) TableName() string { return "locale_targets" }
