package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/camden-git/familytree/database"
	"github.com/camden-git/familytree/models"
)

const indexBatchSize = 200

// TreeRepository handles database operations for Tree and PersonIndex entities
type TreeRepository struct {
	DB *gorm.DB
}

var _ TreeStore = (*TreeRepository)(nil)

// NewTreeRepository creates a new instance of TreeRepository
func NewTreeRepository(db *gorm.DB) *TreeRepository {
	return &TreeRepository{DB: db}
}

// Create creates a new tree record in the database
func (r *TreeRepository) Create(tree *models.Tree) error {
	now := time.Now().Unix()
	if tree.CreatedAt == 0 {
		tree.CreatedAt = now
	}
	if tree.UpdatedAt == 0 {
		tree.UpdatedAt = now
	}
	if tree.ExportStatus == "" {
		tree.ExportStatus = database.StatusNotRequired
	}

	err := r.DB.Create(tree).Error
	if err != nil {
		return fmt.Errorf("failed to create tree %s: %w", tree.Name, err)
	}
	return nil
}

// GetByID retrieves a tree by its ID without the GEDCOM text
func (r *TreeRepository) GetByID(id uint) (*models.Tree, error) {
	var tree models.Tree
	err := r.DB.Omit("gedcom_text").First(&tree, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get tree by ID %d: %w", id, err)
	}
	return &tree, nil
}

// ListAll retrieves all trees without their GEDCOM text
func (r *TreeRepository) ListAll() ([]models.Tree, error) {
	var trees []models.Tree
	err := r.DB.Omit("gedcom_text").Order("id ASC").Find(&trees).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list trees: %w", err)
	}
	return trees, nil
}

// Delete removes a tree and its index rows
func (r *TreeRepository) Delete(id uint) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("tree_id = ?", id).Delete(&models.PersonIndex{}).Error; err != nil {
			return fmt.Errorf("failed to delete person index for tree ID %d: %w", id, err)
		}
		result := tx.Delete(&models.Tree{}, id)
		if result.Error != nil {
			return fmt.Errorf("failed to delete tree ID %d: %w", id, result.Error)
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// LoadGedcomText returns the stored GEDCOM of a tree
func (r *TreeRepository) LoadGedcomText(treeID uint) (*string, error) {
	var tree models.Tree
	err := r.DB.Select("id", "gedcom_text").First(&tree, treeID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to load GEDCOM for tree ID %d: %w", treeID, err)
	}
	return tree.GedcomText, nil
}

// SaveGedcomText replaces the stored GEDCOM of a tree
func (r *TreeRepository) SaveGedcomText(treeID uint, text string) error {
	result := r.DB.Model(&models.Tree{}).Where("id = ?", treeID).Updates(map[string]interface{}{
		"gedcom_text": text,
		"updated_at":  time.Now().Unix(),
	})
	if result.Error != nil {
		return fmt.Errorf("failed to save GEDCOM for tree ID %d: %w", treeID, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ReplacePersonIndex deletes the old rows of a tree and inserts rows in batches
func (r *TreeRepository) ReplacePersonIndex(treeID uint, rows []models.PersonIndex) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Tree{}).Where("id = ?", treeID).Update("person_count", len(rows))
		if result.Error != nil {
			return fmt.Errorf("failed to update person count for tree ID %d: %w", treeID, result.Error)
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		if err := tx.Where("tree_id = ?", treeID).Delete(&models.PersonIndex{}).Error; err != nil {
			return fmt.Errorf("failed to clear person index for tree ID %d: %w", treeID, err)
		}
		if len(rows) == 0 {
			return nil
		}

		batch := make([]models.PersonIndex, len(rows))
		for i, row := range rows {
			row.ID = 0
			row.TreeID = treeID
			batch[i] = row
		}
		if err := tx.CreateInBatches(batch, indexBatchSize).Error; err != nil {
			return fmt.Errorf("failed to insert person index for tree ID %d: %w", treeID, err)
		}
		return nil
	})
}

// SearchPeople runs the index search on the underlying sql handle
func (r *TreeRepository) SearchPeople(treeID uint, query string, limit int) ([]models.PersonIndex, error) {
	sqlDB, err := r.DB.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB from GORM: %w", err)
	}
	return database.SearchPersonIndex(context.Background(), sqlDB, treeID, query, limit)
}

// RequestExport marks a tree export as pending
func (r *TreeRepository) RequestExport(treeID uint) error {
	return r.updateExport(treeID, "request export", map[string]interface{}{
		"export_status": database.StatusPending,
		"export_error":  gorm.Expr("NULL"),
	})
}

// MarkExportProcessing updates tree status to indicate an export is in progress
func (r *TreeRepository) MarkExportProcessing(treeID uint) error {
	return r.updateExport(treeID, "mark export processing", map[string]interface{}{
		"export_status": database.StatusProcessing,
	})
}

// SetExportResult updates the tree with the result of an export task
func (r *TreeRepository) SetExportResult(treeID uint, exportPath *string, taskErr error) error {
	status := database.StatusDone
	var errStr *string

	if taskErr != nil {
		status = database.StatusError
		s := taskErr.Error()
		errStr = &s
	}

	updates := map[string]interface{}{
		"export_status": status,
		"export_error":  errStr,
	}
	if status == database.StatusDone {
		updates["export_path"] = exportPath
		updates["export_last_written_at"] = time.Now().Unix()
	}
	return r.updateExport(treeID, "set export result", updates)
}

func (r *TreeRepository) updateExport(treeID uint, action string, updates map[string]interface{}) error {
	updates["updated_at"] = time.Now().Unix()
	result := r.DB.Model(&models.Tree{}).Where("id = ?", treeID).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to %s for tree ID %d: %w", action, treeID, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
