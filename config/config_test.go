package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/stretchr/testify/require"
)

func TestProposePrevotePrecommitScaleWithRound(t *testing.T) {
	cfg := DefaultConsensusConfig()

	require.Equal(t, cfg.ProposeTimeoutBase, cfg.Propose(0))
	require.Equal(t, cfg.ProposeTimeoutBase+2*cfg.ProposeTimeoutDelta, cfg.Propose(2))

	require.Equal(t, cfg.PrevoteTimeoutBase, cfg.Prevote(0))
	require.Equal(t, cfg.PrevoteTimeoutBase+3*cfg.PrevoteTimeoutDelta, cfg.Prevote(3))

	require.Equal(t, cfg.PrecommitTimeoutBase, cfg.Precommit(0))
	require.Equal(t, cfg.PrecommitTimeoutBase+1*cfg.PrecommitTimeoutDelta, cfg.Precommit(1))
}

func TestDefaultConsensusConfigMatchesDocumentedDefaults(t *testing.T) {
	cfg := DefaultConsensusConfig()

	require.Equal(t, 3000*time.Millisecond, cfg.ProposeTimeoutBase)
	require.Equal(t, 500*time.Millisecond, cfg.ProposeTimeoutDelta)
	require.Equal(t, 1000*time.Millisecond, cfg.CommitTimeout)
	require.False(t, cfg.SkipTimeoutCommit)
	require.Equal(t, 120, cfg.ValidatorSetCacheSize)
}

func TestConsensusConfigTOMLRoundTrip(t *testing.T) {
	cfg := DefaultConsensusConfig()
	cfg.SkipTimeoutCommit = true
	cfg.MaxEvidenceAgeNumBlocks = 42

	var buf bytes.Buffer
	require.NoError(t, toml.NewEncoder(&buf).Encode(cfg))

	var out ConsensusConfig
	require.NoError(t, toml.Unmarshal(buf.Bytes(), &out))
	require.Equal(t, cfg.SkipTimeoutCommit, out.SkipTimeoutCommit)
	require.Equal(t, cfg.MaxEvidenceAgeNumBlocks, out.MaxEvidenceAgeNumBlocks)
	require.Equal(t, cfg.ProposeTimeoutBase, out.ProposeTimeoutBase)
}
