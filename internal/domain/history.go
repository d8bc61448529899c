// File: internal/domain/history.go
package domain

import "time"

// GenerationRecord is the persisted summary of one protocol generation run.
type GenerationRecord struct {
	ID           uint      `gorm:"primarykey" json:"id"`
	RunID        string    `gorm:"index" json:"run_id"`
	Requirement  string    `json:"requirement"` // excerpt of the user requirement
	DrugType     string    `json:"drug_type"`
	Indication   string    `json:"indication"`
	StudyPhase   string    `json:"study_phase"`
	SectionCount int       `json:"section_count"`
	TotalLength  int       `json:"total_length"`
	QualityScore float64   `json:"quality_score"`
	CreatedAt    time.Time `json:"created_at"`
}
