package claims

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateExpiredToken(t *testing.T) {
	payload := map[string]any{"exp": float64(time.Now().Add(-time.Hour).Unix())}
	res := Validate(payload, Rules{})
	require.Error(t, res.Err)
}

func TestValidateMissingExpIsNotAnErrorUnlessRequired(t *testing.T) {
	payload := map[string]any{"sub": "u1"}
	res := Validate(payload, Rules{})
	require.NoError(t, res.Err)

	res = Validate(payload, Rules{Require: []string{"exp"}})
	require.Error(t, res.Err)
}

func TestValidateIssuerSubjectAudience(t *testing.T) {
	payload := map[string]any{
		"iss": "workbench",
		"sub": "user-1",
		"aud": []any{"api-a", "api-b"},
	}
	res := Validate(payload, Rules{
		ExpectedIssuer:   "workbench",
		ExpectedSubject:  "user-1",
		ExpectedAudience: []string{"api-b"},
	})
	require.NoError(t, res.Err)

	res = Validate(payload, Rules{ExpectedAudience: []string{"api-c"}})
	require.Error(t, res.Err)

	res = Validate(payload, Rules{ExpectedAudience: []string{"api-c", "api-a"}})
	require.NoError(t, res.Err)
}

func TestValidateLeewayToleratesClockSkew(t *testing.T) {
	payload := map[string]any{"exp": float64(time.Now().Add(-2 * time.Second).Unix())}
	res := Validate(payload, Rules{Leeway: 5 * time.Second})
	require.NoError(t, res.Err)
}

func TestValidateTraceRecordsEveryCheck(t *testing.T) {
	res := Validate(map[string]any{}, Rules{Require: []string{"custom"}})
	var sawRequire bool
	for _, step := range res.Trace {
		if step.Check == "require:custom" {
			sawRequire = true
			assert.False(t, step.Passed)
		}
	}
	assert.True(t, sawRequire)
}
