package records

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// GormSink writes records to the converted_files table of a SQL database.
type GormSink struct {
	db *gorm.DB
}

// NewGormSink migrates the converted_files table and returns a sink on db.
func NewGormSink(db *gorm.DB) (*GormSink, error) {
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("migrate %s: %w", Record{}.TableName(), err)
	}
	return &GormSink{db: db}, nil
}

func (s *GormSink) Record(ctx context.Context, rec Record) error {
	rec.ID = 0
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("%w: %v", ErrSinkUnavailable, err)
	}
	log.Debugf("recorded conversion %d: %s -> %s", rec.ID, rec.OriginalName, rec.ConvertedName)
	return nil
}
