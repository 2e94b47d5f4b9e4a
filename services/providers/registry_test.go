package providers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voyagerhq/llm-gateway/models"
)

type namedAdapter struct{ name string }

func (a *namedAdapter) Name() string { return a.name }

func (a *namedAdapter) Generate(context.Context, *models.GenerationRequest, string) (*models.GenerationResult, error) {
	return nil, nil
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register(&namedAdapter{name: "openai"}))
	require.NoError(t, r.Register(&namedAdapter{name: "anthropic"}))

	adapter, err := r.Get("openai")
	require.NoError(t, err)
	assert.Equal(t, "openai", adapter.Name())

	assert.Equal(t, 2, r.Len())
	assert.Equal(t, []string{"anthropic", "openai"}, r.Names())
}

func TestRegistry_GetUnknown(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get("missing")
	assert.ErrorIs(t, err, ErrAdapterNotFound)
}

func TestRegistry_DuplicateRegistration(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&namedAdapter{name: "openai"}))

	err := r.Register(&namedAdapter{name: "openai"})
	assert.ErrorIs(t, err, ErrAdapterAlreadyRegistered)
}

func TestRegistry_RejectsInvalidAdapters(t *testing.T) {
	r := NewRegistry()
	assert.Error(t, r.Register(nil))
	assert.Error(t, r.Register(&namedAdapter{name: ""}))
}
