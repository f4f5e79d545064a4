// Package config holds the Reimint consensus engine's tunables. Loading
// these from a TOML file, environment, or CLI flags is out of scope;
// only the ConsensusConfig struct and its defaults are provided here,
// constructed programmatically by whatever embeds the engine.
package config

import "time"

// ConsensusConfig carries every duration and size bound the state
// machine and reactor consult. Field names follow cometbft's
// ConsensusConfig (config/config.go, pruned from the retrieved pack;
// reconstructed from its usage in internal/consensus/state.go's
// cs.config.Propose(round) call sites) with `toml` tags for the one
// supported persistence path: BurntSushi/toml (de)serialization of an
// already-constructed struct, not file discovery/loading.
type ConsensusConfig struct {
	ProposeTimeoutBase  time.Duration `toml:"propose_timeout_base"`
	ProposeTimeoutDelta time.Duration `toml:"propose_timeout_delta"`

	PrevoteTimeoutBase  time.Duration `toml:"prevote_timeout_base"`
	PrevoteTimeoutDelta time.Duration `toml:"prevote_timeout_delta"`

	PrecommitTimeoutBase  time.Duration `toml:"precommit_timeout_base"`
	PrecommitTimeoutDelta time.Duration `toml:"precommit_timeout_delta"`

	CommitTimeout time.Duration `toml:"commit_timeout"`

	// SkipTimeoutCommit causes enterNewRound(h+1, 0) to fire as soon as
	// a +2/3 precommit is seen, without waiting out CommitTimeout.
	SkipTimeoutCommit bool `toml:"skip_timeout_commit"`

	// CreateEmptyBlocksInterval, when > 0, delays NewRound at round 0
	// by this full interval, whether or not the pool holds txs; the
	// arrival of a tx does not end the wait early. Zero means propose
	// immediately even with an empty pool.
	CreateEmptyBlocksInterval time.Duration `toml:"create_empty_blocks_interval"`

	// PeerGossipSleepDuration mirrors cometbft's Reactor gossip cadence.
	// The Reactor does not read it: its gossip routines sleep for the
	// fixed gossipSleep constant, which equals this field's default.
	PeerGossipSleepDuration time.Duration `toml:"peer_gossip_sleep_duration"`

	// PeerQueryMaj23SleepDuration is not read by the Reactor; no gossip
	// routine re-announces our own VoteSetMaj23 claims to a peer.
	PeerQueryMaj23SleepDuration time.Duration `toml:"peer_query_maj23_sleep_duration"`

	// MaxEvidenceAgeNumBlocks bounds how many blocks old a piece of
	// evidence may be before the Evidence Pool prunes it.
	MaxEvidenceAgeNumBlocks uint64 `toml:"max_evidence_age_num_blocks"`

	// MaxEvidenceBytes bounds how much evidence pendingEvidence will
	// return for inclusion in a single block.
	MaxEvidenceBytes uint64 `toml:"max_evidence_bytes"`

	// PeerMsgQueueSize bounds the state machine's per-source input
	// queues (peer, internal).
	PeerMsgQueueSize int `toml:"peer_msg_queue_size"`

	// ValidatorSetCacheSize is carried in the config but no component
	// reads it: there is no cache of historical ValidatorSets, and
	// Pipeline.GetValidatorSet asks the staking reader on every call.
	ValidatorSetCacheSize int `toml:"validator_set_cache_size"`
}

// DefaultConsensusConfig returns the recommended defaults: base 3000 ms,
// delta 500 ms; commitTimeout 1000 ms.
func DefaultConsensusConfig() *ConsensusConfig {
	return &ConsensusConfig{
		ProposeTimeoutBase:  3000 * time.Millisecond,
		ProposeTimeoutDelta: 500 * time.Millisecond,

		PrevoteTimeoutBase:  3000 * time.Millisecond,
		PrevoteTimeoutDelta: 500 * time.Millisecond,

		PrecommitTimeoutBase:  3000 * time.Millisecond,
		PrecommitTimeoutDelta: 500 * time.Millisecond,

		CommitTimeout: 1000 * time.Millisecond,

		SkipTimeoutCommit:        false,
		CreateEmptyBlocksInterval: 0,

		PeerGossipSleepDuration:     100 * time.Millisecond,
		PeerQueryMaj23SleepDuration: 2 * time.Second,

		MaxEvidenceAgeNumBlocks: 100000,
		MaxEvidenceBytes:        1024 * 1024,

		PeerMsgQueueSize:      10,
		ValidatorSetCacheSize: 120,
	}
}

// Propose returns the Propose-step timeout for the given round:
// base + delta*round.
func (c *ConsensusConfig) Propose(round int32) time.Duration {
	return c.ProposeTimeoutBase + time.Duration(round)*c.ProposeTimeoutDelta
}

// Prevote returns the PrevoteWait-step timeout for the given round.
func (c *ConsensusConfig) Prevote(round int32) time.Duration {
	return c.PrevoteTimeoutBase + time.Duration(round)*c.PrevoteTimeoutDelta
}

// Precommit returns the PrecommitWait-step timeout for the given round.
func (c *ConsensusConfig) Precommit(round int32) time.Duration {
	return c.PrecommitTimeoutBase + time.Duration(round)*c.PrecommitTimeoutDelta
}
