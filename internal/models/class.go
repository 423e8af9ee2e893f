package models

// Class represents a student group that attends scheduled lessons.
type Class struct {
	ID           string `db:"id" json:"id"`
	Name         string `db:"name" json:"name"`
	StudentCount int    `db:"student_count" json:"student_count"`
}
