package handler

import (
	"time"

	"github.com/harshraj78/legal-check-ai/model"
)

type contractView struct {
	ID              string       `json:"id"`
	Filename        string       `json:"filename"`
	ContentType     string       `json:"content_type"`
	SizeBytes       int64        `json:"size_bytes"`
	Status          model.Status `json:"status"`
	ErrorMsg        string       `json:"error_msg,omitempty"`
	PageCount       int          `json:"page_count,omitempty"`
	RawText         *string      `json:"raw_text,omitempty"`
	RiskScore       *int         `json:"risk_score,omitempty"`
	Summary         *string      `json:"summary,omitempty"`
	HighRiskClauses *[]string    `json:"high_risk_clauses,omitempty"`
	StartedAt       *time.Time   `json:"started_at,omitempty"`
	CompletedAt     *time.Time   `json:"completed_at,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

func newContractView(c *model.Contract) contractView {
	v := contractView{
		ID:          c.ID,
		Filename:    c.Filename,
		ContentType: c.ContentType,
		SizeBytes:   c.SizeBytes,
		Status:      c.Status,
		ErrorMsg:    c.ErrorMsg,
		PageCount:   c.PageCount,
		StartedAt:   c.StartedAt,
		CompletedAt: c.CompletedAt,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
	if a := c.Analysis; a != nil {
		v.RiskScore = &a.RiskScore
		v.Summary = &a.Summary
		v.HighRiskClauses = clauseList(a)
	}
	return v
}

type statusView struct {
	ID              string       `json:"id"`
	Status          model.Status `json:"status"`
	ErrorMsg        string       `json:"error_msg,omitempty"`
	RiskScore       *int         `json:"risk_score,omitempty"`
	Summary         *string      `json:"summary,omitempty"`
	HighRiskClauses *[]string    `json:"high_risk_clauses,omitempty"`
}

func newStatusView(c *model.Contract) statusView {
	v := statusView{
		ID:       c.ID,
		Status:   c.Status,
		ErrorMsg: c.ErrorMsg,
	}
	if a := c.Analysis; a != nil {
		v.RiskScore = &a.RiskScore
		v.Summary = &a.Summary
		v.HighRiskClauses = clauseList(a)
	}
	return v
}

// clauseList is never nil so a completed result always carries the field.
func clauseList(a *model.AnalysisResult) *[]string {
	clauses := []string(a.HighRiskClauses)
	if clauses == nil {
		clauses = []string{}
	}
	return &clauses
}
