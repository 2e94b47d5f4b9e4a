package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScope_Key(t *testing.T) {
	assert.Equal(t, "user:alice", Scope{Level: ScopeUser, ID: "alice"}.Key())
	assert.Equal(t, "tenant:acme", Scope{Level: ScopeTenant, ID: "acme"}.Key())
	assert.Equal(t, "global", Scope{Level: ScopeGlobal}.Key())
	assert.Equal(t, "global", Scope{Level: ScopeGlobal, ID: "ignored"}.Key())
}

func TestScopeChainFor(t *testing.T) {
	req := NewGenerationRequest("hi", "alice", "acme", "")
	chain := ScopeChainFor(req)

	require.Len(t, chain, 3)
	assert.Equal(t, "user:alice", chain[0].Key())
	assert.Equal(t, "tenant:acme", chain[1].Key())
	assert.Equal(t, "global", chain[2].Key())
}

func TestScopeChainFor_PartialIdentity(t *testing.T) {
	req := NewGenerationRequest("hi", "", "acme", "")
	chain := ScopeChainFor(req)
	require.Len(t, chain, 2)
	assert.Equal(t, "tenant:acme", chain[0].Key())
	assert.Equal(t, "global", chain[1].Key())

	chain = ScopeChainFor(NewGenerationRequest("hi", "", "", ""))
	require.Len(t, chain, 1)
	assert.Equal(t, "global", chain[0].Key())
}
