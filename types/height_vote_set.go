package types

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	rsync "github.com/reimint/reimint/libs/sync"
)

// maxPeerCatchupRounds bounds how many rounds beyond the current one a
// single peer may seed votes for.
const maxPeerCatchupRounds = 2

type roundVoteSets struct {
	Prevotes   *VoteSet
	Precommits *VoteSet
}

// HeightVoteSet is the union of all per-round VoteSets at the current
// height.
type HeightVoteSet struct {
	mtx rsync.Mutex

	chainID string
	height  uint64
	valSet  *ValidatorSet

	round     int32
	roundVoteSets map[int32]roundVoteSets

	peerCatchupRounds map[string][]int32
}

// NewHeightVoteSet constructs a HeightVoteSet starting at round 0 for
// the given height.
func NewHeightVoteSet(chainID string, height uint64, valSet *ValidatorSet) *HeightVoteSet {
	hvs := &HeightVoteSet{
		chainID: chainID,
	}
	hvs.Reset(height, valSet)
	return hvs
}

// Reset reinitializes the set for a new height, discarding all prior
// rounds.
func (hvs *HeightVoteSet) Reset(height uint64, valSet *ValidatorSet) {
	hvs.mtx.Lock()
	defer hvs.mtx.Unlock()

	hvs.height = height
	hvs.valSet = valSet
	hvs.round = 0
	hvs.roundVoteSets = make(map[int32]roundVoteSets)
	hvs.peerCatchupRounds = make(map[string][]int32)

	hvs.addRoundLocked(0)
}

func (hvs *HeightVoteSet) addRoundLocked(round int32) {
	if _, ok := hvs.roundVoteSets[round]; ok {
		return
	}
	hvs.roundVoteSets[round] = roundVoteSets{
		Prevotes:   NewVoteSet(hvs.chainID, hvs.height, round, PrevoteType, hvs.valSet),
		Precommits: NewVoteSet(hvs.chainID, hvs.height, round, PrecommitType, hvs.valSet),
	}
}

// SetRound ensures VoteSets exist for every round up to and including
// round, advancing the current round pointer. Matches cometbft's
// `votes.setRound(r+1)` call from enterNewRound.
func (hvs *HeightVoteSet) SetRound(round int32) {
	hvs.mtx.Lock()
	defer hvs.mtx.Unlock()

	if hvs.round > round {
		return
	}
	for r := hvs.round; r <= round; r++ {
		hvs.addRoundLocked(r)
	}
	hvs.round = round
}

// Prevotes returns the prevote VoteSet for round, or nil if it does not
// exist yet.
func (hvs *HeightVoteSet) Prevotes(round int32) *VoteSet {
	hvs.mtx.Lock()
	defer hvs.mtx.Unlock()
	rvs, ok := hvs.roundVoteSets[round]
	if !ok {
		return nil
	}
	return rvs.Prevotes
}

// Precommits returns the precommit VoteSet for round, or nil if it does
// not exist yet.
func (hvs *HeightVoteSet) Precommits(round int32) *VoteSet {
	hvs.mtx.Lock()
	defer hvs.mtx.Unlock()
	rvs, ok := hvs.roundVoteSets[round]
	if !ok {
		return nil
	}
	return rvs.Precommits
}

// AddVote dispatches v to the appropriate per-round, per-type VoteSet,
// creating it if needed: a vote for a round beyond the current one is
// only accepted from a peer that has not already seeded
// maxPeerCatchupRounds rounds.
func (hvs *HeightVoteSet) AddVote(v *Vote, peerID string) (bool, error) {
	hvs.mtx.Lock()
	if v.Round > hvs.round {
		rounds := hvs.peerCatchupRounds[peerID]
		if len(rounds) >= maxPeerCatchupRounds && !containsRound(rounds, v.Round) {
			hvs.mtx.Unlock()
			return false, ErrGotVoteFromUnwantedRound
		}
		if !containsRound(rounds, v.Round) {
			hvs.peerCatchupRounds[peerID] = append(rounds, v.Round)
		}
		hvs.addRoundLocked(v.Round)
	}
	rvs, ok := hvs.roundVoteSets[v.Round]
	hvs.mtx.Unlock()
	if !ok {
		return false, fmt.Errorf("types: no vote set for round %d", v.Round)
	}

	switch v.Type {
	case PrevoteType:
		return rvs.Prevotes.AddVote(v)
	case PrecommitType:
		return rvs.Precommits.AddVote(v)
	default:
		return false, fmt.Errorf("types: unexpected vote type %v in HeightVoteSet.AddVote", v.Type)
	}
}

func containsRound(rounds []int32, r int32) bool {
	for _, x := range rounds {
		if x == r {
			return true
		}
	}
	return false
}

// POLInfo returns the greatest round r <= currentRound for which
// prevotes(r) has a non-nil maj23 ok is false if no
// such round exists.
func (hvs *HeightVoteSet) POLInfo() (round int32, blockHash common.Hash, ok bool) {
	hvs.mtx.Lock()
	cur := hvs.round
	hvs.mtx.Unlock()

	for r := cur; r >= 0; r-- {
		pv := hvs.Prevotes(r)
		if pv == nil {
			continue
		}
		hash, set := pv.HasTwoThirdsMajority()
		if set && hash != ZeroHash {
			return r, hash, true
		}
	}
	return 0, common.Hash{}, false
}

// Round returns the current round this HeightVoteSet is tracking.
func (hvs *HeightVoteSet) Round() int32 {
	hvs.mtx.Lock()
	defer hvs.mtx.Unlock()
	return hvs.round
}
