package domain_test

import (
	"testing"

	"github.com/greenledger-io/greenledger_backend/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeCriterion_KnownKinds(t *testing.T) {
	c, err := domain.DecodeCriterion([]byte(`{"kind":"MEASUREMENT","metric":"soil_carbon","targetPPM":420,"tolerance":15}`))
	require.NoError(t, err)
	assert.Equal(t, domain.CriterionMeasurement, c.Kind)
	assert.Equal(t, "soil_carbon", c.Metric)
	assert.Equal(t, int64(420), c.TargetPPM)
	assert.Equal(t, int64(15), c.Tolerance)

	c, err = domain.DecodeCriterion([]byte(`{"kind":"DOCUMENT","documentType":"registry_certificate"}`))
	require.NoError(t, err)
	assert.Equal(t, domain.CriterionDocument, c.Kind)
	assert.Equal(t, "registry_certificate", c.DocumentType)
}

func TestDecodeCriterion_UnknownKindPreserved(t *testing.T) {
	raw := []byte(`{"kind":"DRONE_SURVEY","flightPath":"n-17"}`)
	c, err := domain.DecodeCriterion(raw)
	require.NoError(t, err)
	assert.Equal(t, domain.CriterionUnknown, c.Kind)
	assert.JSONEq(t, string(raw), string(c.Raw))
}

func TestDecodeCriterion_Malformed(t *testing.T) {
	_, err := domain.DecodeCriterion([]byte(`{"kind":`))
	assert.Error(t, err)
}

func TestVerificationGate_Terminal(t *testing.T) {
	g := domain.VerificationGate{Status: domain.GatePending}
	assert.False(t, g.Terminal())
	g.Status = domain.GatePassed
	assert.True(t, g.Terminal())
	g.Status = domain.GateFailed
	assert.True(t, g.Terminal())
}
