// Package records appends an audit entry for every successful conversion.
// Nothing in this package reads entries back.
package records

import (
	"context"
	"errors"
	"time"
)

// ErrSinkUnavailable wraps every failure to persist a Record.
var ErrSinkUnavailable = errors.New("conversion record sink unavailable")

// Record describes one completed conversion.
type Record struct {
	ID            uint   `gorm:"primaryKey" json:"-"`
	OriginalName  string `gorm:"not null" json:"originalName"`
	ConvertedName string `json:"convertedName"`
	// ConvertedPath is where the output lived when the record was written.
	// The file is deleted once it has been delivered, so the value is
	// historical and must not be opened.
	ConvertedPath string    `json:"convertedPath"`
	OutputBytes   int64     `json:"outputBytes"`
	CreatedAt     time.Time `gorm:"index" json:"createdAt"`
}

func (Record) TableName() string { return "converted_files" }

type Sink interface {
	Record(ctx context.Context, rec Record) error
}
