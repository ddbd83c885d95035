// Package store persists boards and their attached files with GORM.
package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/cppla/bbsboard/models"
)

var (
	// ErrNotFound is returned when the requested board or attached file does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrVersionConflict is returned when a board changed (or vanished) since it was read.
	ErrVersionConflict = errors.New("board version conflict")
)

// Models lists every table the store owns, in migration order.
func Models() []interface{} {
	return []interface{}{&models.Member{}, &models.Board{}, &models.AttachedFile{}}
}

// BoardStore is the GORM-backed board persistence layer. It is safe for concurrent use.
type BoardStore struct {
	db *gorm.DB
}

// NewBoardStore creates a BoardStore on top of an opened database.
func NewBoardStore(db *gorm.DB) *BoardStore {
	return &BoardStore{db: db}
}

// Create inserts the board together with its attached files and fills in the assigned numbers.
func (s *BoardStore) Create(ctx context.Context, b *models.Board) error {
	// Writer is a reference only; member rows belong to the login subsystem.
	if err := s.db.WithContext(ctx).Omit("Writer").Create(b).Error; err != nil {
		return err
	}
	b.Writer.No = b.WriterNo
	return nil
}

// Get loads a board with its writer and attached files.
func (s *BoardStore) Get(ctx context.Context, no uint) (*models.Board, error) {
	var b models.Board
	err := s.db.WithContext(ctx).
		Preload("Writer").
		Preload("AttachedFiles", func(db *gorm.DB) *gorm.DB { return db.Order("file_no ASC") }).
		First(&b, no).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	b.Writer.No = b.WriterNo
	return &b, nil
}

// List returns the boards of a category, newest first.
func (s *BoardStore) List(ctx context.Context, category int) ([]models.Board, error) {
	boards := []models.Board{}
	err := s.db.WithContext(ctx).
		Preload("Writer").
		Where("category = ?", category).
		Order("board_no DESC").
		Find(&boards).Error
	if err != nil {
		return nil, err
	}
	for i := range boards {
		boards[i].Writer.No = boards[i].WriterNo
	}
	return boards, nil
}

// Update rewrites title, content and category when the stored version still equals
// expectedVersion, and inserts the board's attached files that have no number yet.
// Writer, view count and creation time are never touched.
func (s *BoardStore) Update(ctx context.Context, b *models.Board, expectedVersion int) error {
	now := time.Now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Board{}).
			Where("board_no = ? AND version = ?", b.No, expectedVersion).
			Updates(map[string]interface{}{
				"title":      b.Title,
				"content":    b.Content,
				"category":   b.Category,
				"version":    gorm.Expr("version + 1"),
				"updated_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrVersionConflict
		}

		fresh := make([]*models.AttachedFile, 0, len(b.AttachedFiles))
		for i := range b.AttachedFiles {
			if b.AttachedFiles[i].No == 0 {
				b.AttachedFiles[i].BoardNo = b.No
				fresh = append(fresh, &b.AttachedFiles[i])
			}
		}
		if len(fresh) > 0 {
			return tx.Create(fresh).Error
		}
		return nil
	})
	if err != nil {
		return err
	}
	b.Version = expectedVersion + 1
	b.UpdatedAt = now
	return nil
}

// Delete removes a board and its attached file rows in one transaction and
// returns the removed attached files so their objects can be cleaned up.
func (s *BoardStore) Delete(ctx context.Context, no uint) ([]models.AttachedFile, error) {
	var files []models.AttachedFile
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("board_no = ?", no).Order("file_no ASC").Find(&files).Error; err != nil {
			return err
		}
		if err := tx.Where("board_no = ?", no).Delete(&models.AttachedFile{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.Board{}, no)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// IncreaseViewCount atomically adds one to the board's view count.
func (s *BoardStore) IncreaseViewCount(ctx context.Context, no uint) error {
	res := s.db.WithContext(ctx).
		Model(&models.Board{}).
		Where("board_no = ?", no).
		UpdateColumn("view_count", gorm.Expr("view_count + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetAttachedFile loads a single attached file row.
func (s *BoardStore) GetAttachedFile(ctx context.Context, no uint) (*models.AttachedFile, error) {
	var f models.AttachedFile
	if err := s.db.WithContext(ctx).First(&f, no).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &f, nil
}

// DeleteAttachedFile removes a single attached file row.
func (s *BoardStore) DeleteAttachedFile(ctx context.Context, no uint) error {
	res := s.db.WithContext(ctx).Delete(&models.AttachedFile{}, no)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
