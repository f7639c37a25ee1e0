package repository

import (
	"github.com/camden-git/familytree/models"
)

// TreeStore defines the methods for tree persistence. The stored GEDCOM text is
// authoritative; the person index is a cache derived from it.
type TreeStore interface {
	Create(tree *models.Tree) error
	GetByID(id uint) (*models.Tree, error)
	ListAll() ([]models.Tree, error)
	Delete(id uint) error

	// LoadGedcomText returns nil text for a tree that has never been imported.
	LoadGedcomText(treeID uint) (*string, error)
	SaveGedcomText(treeID uint, text string) error

	// ReplacePersonIndex swaps all index rows of a tree in one transaction.
	ReplacePersonIndex(treeID uint, rows []models.PersonIndex) error
	SearchPeople(treeID uint, query string, limit int) ([]models.PersonIndex, error)

	// export task bookkeeping
	RequestExport(treeID uint) error
	MarkExportProcessing(treeID uint) error
	SetExportResult(treeID uint, exportPath *string, taskErr error) error
}
