package model

import (
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// Status is the processing state of a contract.
type Status string

// ContractStatus constants
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// ParseStatus converts a stored string into a Status.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return Status(s), nil
	default:
		return "", fmt.Errorf("unknown contract status %q", s)
	}
}

// IsTerminal reports whether no further automatic transition leaves s.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed:
		return true
	case StatusPending, StatusProcessing:
		return false
	default:
		return false
	}
}

// CanTransitionTo reports whether s -> next is an edge of the state machine.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing || next == StatusFailed
	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed
	case StatusCompleted, StatusFailed:
		return false
	default:
		return false
	}
}

// Predecessors returns the states from which next may be entered.
func Predecessors(next Status) []Status {
	var out []Status
	for _, s := range []Status{StatusPending, StatusProcessing, StatusCompleted, StatusFailed} {
		if s.CanTransitionTo(next) {
			out = append(out, s)
		}
	}
	return out
}

// Contract represents an uploaded contract document and its processing lifecycle.
type Contract struct {
	ID          string          `gorm:"primaryKey;size:36" json:"id"`
	Filename    string          `gorm:"size:255;not null" json:"filename"`
	BlobKey     string          `gorm:"size:255;not null" json:"-"`
	ContentType string          `gorm:"size:127" json:"content_type"`
	SizeBytes   int64           `json:"size_bytes"`
	RawText     *string         `gorm:"type:text" json:"raw_text,omitempty"`
	PageCount   int             `json:"page_count,omitempty"`
	Status      Status          `gorm:"size:50;not null;index" json:"status"`
	ErrorMsg    string          `gorm:"type:text" json:"error_msg,omitempty"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	CreatedAt   time.Time       `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Analysis    *AnalysisResult `gorm:"foreignKey:ContractID;constraint:OnDelete:CASCADE" json:"analysis,omitempty"`
}

// HasRawText reports whether extraction has stored text on the record.
func (c *Contract) HasRawText() bool {
	return c.RawText != nil
}

// AnalysisResult is the risk assessment produced for exactly one contract.
type AnalysisResult struct {
	ID              string                      `gorm:"primaryKey;size:36" json:"id"`
	ContractID      string                      `gorm:"size:36;not null;uniqueIndex" json:"contract_id"`
	RiskScore       int                         `gorm:"not null" json:"risk_score"`
	Summary         string                      `gorm:"type:text" json:"summary"`
	HighRiskClauses datatypes.JSONSlice[string] `json:"high_risk_clauses"`
	CreatedAt       time.Time                   `json:"created_at"`
}
