package models

import "time"

// AttachedFile records one object uploaded to object storage for a board.
type AttachedFile struct {
	No           uint      `gorm:"primaryKey;column:file_no" json:"no"`
	BoardNo      uint      `gorm:"index;not null" json:"board_no"`
	FilePath     string    `gorm:"size:1024;not null" json:"file_path"` // public URL returned by the object store
	ObjectKey    string    `gorm:"size:512;not null" json:"-"`
	OriginalName string    `gorm:"size:255" json:"original_name,omitempty"`
	ContentType  string    `gorm:"size:128" json:"content_type,omitempty"`
	Size         int64     `json:"size"`
	CreatedAt    time.Time `json:"created_at"`
}
