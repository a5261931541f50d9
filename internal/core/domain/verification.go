package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// GateStatus is the state of a verification gate.
type GateStatus string

const (
	GatePending GateStatus = "PENDING"
	GatePassed  GateStatus = "PASSED"
	GateFailed  GateStatus = "FAILED"
)

// VerificationMethod names the methodology a gate is evaluated under.
type VerificationMethod string

const (
	MethodFieldAudit    VerificationMethod = "FIELD_AUDIT"
	MethodRemoteSensing VerificationMethod = "REMOTE_SENSING"
	MethodRegistryCheck VerificationMethod = "REGISTRY_CHECK"
)

// CriterionKind tags the variant of a verification criterion.
type CriterionKind string

const (
	CriterionMeasurement CriterionKind = "MEASUREMENT"
	CriterionDocument    CriterionKind = "DOCUMENT"
	CriterionSiteVisit   CriterionKind = "SITE_VISIT"
	// CriterionUnknown preserves criteria recorded under kinds this build
	// does not know, for forward compatibility.
	CriterionUnknown CriterionKind = "UNKNOWN"
)

// Criterion is one requirement a verification gate is judged against.
// It is a tagged variant: exactly the fields for its kind are meaningful,
// and unknown kinds keep their raw payload intact.
type Criterion struct {
	Kind CriterionKind `json:"kind"`

	// MEASUREMENT
	Metric    string `json:"metric,omitempty"`
	TargetPPM int64  `json:"targetPPM,omitempty"`
	Tolerance int64  `json:"tolerance,omitempty"`

	// DOCUMENT
	DocumentType string `json:"documentType,omitempty"`

	// SITE_VISIT
	Location   string     `json:"location,omitempty"`
	VisitAfter *time.Time `json:"visitAfter,omitempty"`

	// UNKNOWN
	Raw json.RawMessage `json:"raw,omitempty"`
}

// DecodeCriterion parses a stored criterion payload, downgrading unknown
// kinds to the UNKNOWN variant instead of failing.
func DecodeCriterion(data []byte) (Criterion, error) {
	var c Criterion
	if err := json.Unmarshal(data, &c); err != nil {
		return Criterion{}, fmt.Errorf("malformed criterion payload: %w", err)
	}
	switch c.Kind {
	case CriterionMeasurement, CriterionDocument, CriterionSiteVisit:
		return c, nil
	default:
		return Criterion{Kind: CriterionUnknown, Raw: json.RawMessage(data)}, nil
	}
}

// VerificationGate is an external pass/fail determination point. A passing
// attestation on a gate is the sole trigger for retention release.
type VerificationGate struct {
	GateID    string             `json:"gateID"`
	ProjectID string             `json:"projectID"`
	TokenID   string             `json:"tokenID,omitempty"`
	Method    VerificationMethod `json:"method"`
	Status    GateStatus         `json:"status"`
	Criteria  []Criterion        `json:"criteria"`
	AuditFields
}

// Terminal reports whether the gate has reached a final state.
func (g *VerificationGate) Terminal() bool {
	return g.Status == GatePassed || g.Status == GateFailed
}

// VerificationAttestation is one immutable attestation attempt against a
// gate. Attestation results arrive from an external collaborator and are
// treated as untrusted input: the gate's existence is validated before any
// fund-moving side effect runs.
type VerificationAttestation struct {
	AttestationID string    `json:"attestationID"`
	GateID        string    `json:"gateID"`
	AttestorID    string    `json:"attestorID"`
	Passed        bool      `json:"passed"`
	Notes         string    `json:"notes"`
	AttestedAt    time.Time `json:"attestedAt"`
}
