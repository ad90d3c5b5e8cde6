package dnsprovider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopProviderNeverSupportsAutomaticChallenges(t *testing.T) {
	var p Provider = NoopProvider{}
	assert.False(t, p.SupportsAutomaticChallenges(context.Background(), "example.com"))
	assert.Equal(t, "noop", p.ProviderType())
}

func TestNoopProviderTXTAndARecordsAreNoOps(t *testing.T) {
	var p Provider = NoopProvider{}

	require.NoError(t, p.SetTXTRecord(context.Background(), "example.com", "_acme-challenge", "token"))
	require.NoError(t, p.RemoveTXTRecord(context.Background(), "example.com", "_acme-challenge"))
	require.NoError(t, p.SetARecord(context.Background(), "example.com", "@", "1.2.3.4"))

	rec, err := p.GetARecord(context.Background(), "example.com", "@")
	require.NoError(t, err)
	assert.Nil(t, rec)
}
