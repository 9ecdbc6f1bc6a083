package types

import (
	"time"

	"gorm.io/datatypes"
)

// Mark is a student's recorded mark for one subject. The pipeline only
// reads it to resolve a request's subject.
type Mark struct {
	ID          int64     `gorm:"primaryKey" json:"id" yaml:"id"`
	StudentID   string    `gorm:"size:64;index;not null" json:"student_id" yaml:"student_id"`
	SubjectCode string    `gorm:"size:32;index;not null" json:"subject_code" yaml:"subject_code"`
	SubjectName string    `gorm:"size:255;not null" json:"subject_name" yaml:"subject_name"`
	Marks       int       `json:"marks" yaml:"marks"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
}

func (Mark) TableName() string { return "marks" }

// RevaluationRequest is a student's request to have a script re-graded.
type RevaluationRequest struct {
	ID              int64                       `gorm:"primaryKey" json:"id" yaml:"id"`
	StudentID       string                      `gorm:"size:64;index;not null" json:"student_id" yaml:"student_id"`
	SubjectID       int64                       `gorm:"index;not null" json:"subject_id" yaml:"subject_id"`
	EvaluatorID     *string                     `gorm:"size:64" json:"evaluator_id,omitempty" yaml:"evaluator_id,omitempty"`
	Status          RequestStatus               `gorm:"size:32;index;not null" json:"status" yaml:"status"`
	PaymentStatus   string                      `gorm:"size:32" json:"payment_status,omitempty" yaml:"payment_status,omitempty"`
	ScriptLocations datatypes.JSONSlice[string] `gorm:"not null" json:"script_locations" yaml:"script_locations"`
	ExtractedText   *string                     `gorm:"type:text" json:"extracted_text,omitempty" yaml:"extracted_text,omitempty"`
	AIResult        *AIResult                   `gorm:"type:text;serializer:json" json:"ai_result,omitempty" yaml:"ai_result,omitempty"`
	EvaluatorNotes  *string                     `gorm:"type:text" json:"evaluator_notes,omitempty" yaml:"evaluator_notes,omitempty"`
	AppealReason    *string                     `gorm:"type:text" json:"appeal_reason,omitempty" yaml:"appeal_reason,omitempty"`
	ErrorMessage    *string                     `gorm:"type:text" json:"error_message,omitempty" yaml:"error_message,omitempty"`
	Version         int64                       `gorm:"not null;default:1" json:"version" yaml:"version"`
	CreatedAt       time.Time                   `json:"created_at" yaml:"created_at"`
	UpdatedAt       time.Time                   `json:"updated_at" yaml:"updated_at"`
}

func (RevaluationRequest) TableName() string { return "revaluation_requests" }

// AnswerKey is an evaluator-uploaded answer key for a subject.
type AnswerKey struct {
	ID            int64     `gorm:"primaryKey" json:"id" yaml:"id"`
	EvaluatorID   string    `gorm:"size:64;not null" json:"evaluator_id" yaml:"evaluator_id"`
	SubjectCode   string    `gorm:"size:32;index:idx_key_subject_status;not null" json:"subject_code" yaml:"subject_code"`
	FileRef       string    `gorm:"size:1024;not null" json:"file_ref" yaml:"file_ref"`
	Status        KeyStatus `gorm:"size:32;index:idx_key_subject_status;not null" json:"status" yaml:"status"`
	ExtractedText *string   `gorm:"type:text" json:"extracted_text,omitempty" yaml:"extracted_text,omitempty"`
	ErrorMessage  *string   `gorm:"type:text" json:"error_message,omitempty" yaml:"error_message,omitempty"`
	CreatedAt     time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" yaml:"updated_at"`
}

func (AnswerKey) TableName() string { return "answer_keys" }
