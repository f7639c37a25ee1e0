package models

// Tree is one family tree. The GEDCOM text is the source of truth; everything
// else about the tree is derived from it.
// It corresponds to the 'trees' table.
type Tree struct {
	ID          uint    `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string  `gorm:"not null" json:"name"`
	GedcomText  *string `gorm:"type:text" json:"-"` // Nullable, nil until the first import
	PersonCount int     `gorm:"not null;default:0" json:"person_count"`

	ExportPath          *string `gorm:"" json:"export_path,omitempty"` // Nullable, relative to the exports dir
	ExportStatus        string  `gorm:"not null;default:notRequired" json:"export_status"`
	ExportError         *string `gorm:"" json:"export_error,omitempty"`
	ExportLastWrittenAt *int64  `gorm:"" json:"export_last_written_at,omitempty"` // Unix timestamp

	CreatedAt int64 `gorm:"not null" json:"created_at"` // Stored as INTEGER in SQLite, Unix timestamp
	UpdatedAt int64 `gorm:"not null" json:"updated_at"`
}

// TableName explicitly sets the table name for GORM.
func (Tree) TableName() string {
	return "trees"
}

// HasGedcom reports whether the tree has stored GEDCOM text.
func (t Tree) HasGedcom() bool {
	return t.GedcomText != nil
}
