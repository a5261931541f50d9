package dto

import (
	"encoding/json"

	"github.com/greenledger-io/greenledger_backend/internal/core/domain"
)

// SubmitVerificationRequest opens a verification gate for a project.
// Criteria arrive as raw variant payloads and are decoded per kind; unknown
// kinds are preserved, not rejected.
type SubmitVerificationRequest struct {
	ProjectID string                    `json:"projectID" binding:"required"`
	TokenID   string                    `json:"tokenID"`
	Method    domain.VerificationMethod `json:"method" binding:"required"`
	Criteria  []json.RawMessage         `json:"criteria"`
}

// AttestationRequest is the external attestor's pass/fail result for a gate.
type AttestationRequest struct {
	AttestorID string `json:"attestorID" binding:"required"`
	Passed     *bool  `json:"passed" binding:"required"`
	Notes      string `json:"notes"`
}
