package models

// PersonIndex is a searchable row per person of a tree. Rows are a disposable
// cache of the stored GEDCOM and are rebuilt on import, on edit and at boot.
// It corresponds to the 'person_index' table.
type PersonIndex struct {
	ID          uint   `gorm:"primaryKey;autoIncrement" json:"-"`
	TreeID      uint   `gorm:"not null;uniqueIndex:idx_tree_person" json:"tree_id"`
	PersonID    string `gorm:"not null;uniqueIndex:idx_tree_person" json:"person_id"`
	DisplayName string `gorm:"not null;index" json:"display_name"`
	Given       string `gorm:"" json:"given,omitempty"`
	Surname     string `gorm:"index" json:"surname,omitempty"`
	Gender      string `gorm:"" json:"gender,omitempty"`
	BirthYear   string `gorm:"" json:"birth_year,omitempty"`
	Generation  int    `gorm:"not null;default:0" json:"generation"`
}

// TableName explicitly sets the table name for GORM.
func (PersonIndex) TableName() string {
	return "person_index"
}
