package models

import "time"

// Board categories understood by the forum front-end.
const (
	CategoryGeneral      = 1
	CategoryIntroduction = 2
)

// Board represents a post written by a member under a numeric category.
// WriterNo is assigned by the server from the caller's identity and never changes.
type Board struct {
	No            uint           `gorm:"primaryKey;column:board_no" json:"no"`
	Category      int            `gorm:"index;not null" json:"category"`
	Title         string         `gorm:"size:255;not null" json:"title"`
	Content       string         `gorm:"type:text;not null" json:"content"`
	WriterNo      uint           `gorm:"index;not null" json:"-"`
	Writer        Member         `gorm:"foreignKey:WriterNo;references:No" json:"writer"`
	ViewCount     int            `gorm:"not null;default:0" json:"view_count"`
	Version       int            `gorm:"not null;default:1" json:"version"`
	AttachedFiles []AttachedFile `gorm:"foreignKey:BoardNo;references:No;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"attached_files"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}
