package onboarding

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/tera/internal/guard"
)

func TestBuiltInCopyPassesGuard(t *testing.T) {
	require.NoError(t, Verify())
}

func TestDefaultIsACopy(t *testing.T) {
	c := Default()
	require.NotEmpty(t, c.Steps)
	c.Steps[0].T = "changed"
	assert.NotEqual(t, "changed", Default().Steps[0].T)
}

func TestVerifyRejectsDirectiveStep(t *testing.T) {
	c := Default()
	c.Steps = append(c.Steps, guard.Step{ID: "extra", T: "Это важно"})

	err := c.Verify(nil)
	var sve *guard.SystemVoiceError
	require.True(t, errors.As(err, &sve))
	assert.Equal(t, "важно", sve.Term)
	assert.Equal(t, len(c.Steps)-1, sve.Step)
}

func TestVerifyRejectsDirectiveHint(t *testing.T) {
	c := Default()
	c.Hint = "Click the next sector"
	assert.ErrorIs(t, c.Verify(nil), guard.ErrViolation)
}
