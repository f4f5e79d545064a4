package types

import (
	"github.com/ethereum/go-ethereum/common"

	rsync "github.com/reimint/reimint/libs/sync"
)

// blockVotes tallies the votes cast for a single blockHash within a
// VoteSet.
type blockVotes struct {
	votingPower int64
	votes       map[int32]*Vote
}

func newBlockVotes() *blockVotes {
	return &blockVotes{votes: make(map[int32]*Vote)}
}

// VoteSet tallies all votes cast for a single (height, round, type),
// detecting the first blockHash to cross the +2/3 threshold.
type VoteSet struct {
	mtx rsync.Mutex

	chainID    string
	height     uint64
	round      int32
	signedType SignedMsgType
	valSet     *ValidatorSet

	sum   int64
	maj23 *common.Hash

	votesByIndex map[int32]*Vote
	votesByBlock map[common.Hash]*blockVotes

	peerMaj23s map[string]common.Hash
}

// NewVoteSet constructs an empty VoteSet bound to one (height, round,
// type).
func NewVoteSet(chainID string, height uint64, round int32, signedType SignedMsgType, valSet *ValidatorSet) *VoteSet {
	return &VoteSet{
		chainID:      chainID,
		height:       height,
		round:        round,
		signedType:   signedType,
		valSet:       valSet,
		votesByIndex: make(map[int32]*Vote),
		votesByBlock: make(map[common.Hash]*blockVotes),
		peerMaj23s:   make(map[string]common.Hash),
	}
}

func (vs *VoteSet) Height() uint64            { return vs.height }
func (vs *VoteSet) Round() int32              { return vs.round }
func (vs *VoteSet) Type() SignedMsgType       { return vs.signedType }
func (vs *VoteSet) ValidatorSet() *ValidatorSet { return vs.valSet }

// twoThirdsExceeded is the strict "> 2P/3" threshold used for both
// maj23 and hasTwoThirdsAny, expressed without floating point:
// sum*3 > totalPower*2.
func twoThirdsExceeded(power, total int64) bool {
	return power*3 > total*2
}

// AddVote validates and records v. It returns (added, error): added is
// true iff the vote was newly recorded (false for an idempotent repeat
// of an identical vote already stored). A *ErrConflictingVotes error is
// returned, never panics, when v conflicts with an already-stored vote
// from the same validator index.
func (vs *VoteSet) AddVote(v *Vote) (bool, error) {
	vs.mtx.Lock()
	defer vs.mtx.Unlock()

	if v.Height != vs.height || v.Round != vs.round || v.Type != vs.signedType {
		return false, ErrVoteHeightRoundTypeMismatch
	}

	val := vs.valSet.GetByIndex(int(v.ValidatorIndex))
	if val == nil {
		return false, ErrVoteInvalidValidatorIndex
	}
	if err := v.Verify(vs.chainID, val.Address); err != nil {
		return false, err
	}

	if existing, ok := vs.votesByIndex[v.ValidatorIndex]; ok {
		if existing.SameBlock(v) {
			return false, nil
		}
		return false, &ErrConflictingVotes{VoteA: existing, VoteB: v}
	}

	vs.votesByIndex[v.ValidatorIndex] = v
	vs.sum = mustSafeAdd(vs.sum, val.VotingPower)

	bv, ok := vs.votesByBlock[v.BlockHash]
	if !ok {
		bv = newBlockVotes()
		vs.votesByBlock[v.BlockHash] = bv
	}
	bv.votes[v.ValidatorIndex] = v
	bv.votingPower = mustSafeAdd(bv.votingPower, val.VotingPower)

	if vs.maj23 == nil && twoThirdsExceeded(bv.votingPower, vs.valSet.TotalVotingPower()) {
		hash := v.BlockHash
		vs.maj23 = &hash
	}

	return true, nil
}

// HasTwoThirdsMajority reports whether maj23 has been set, and if so for
// which blockHash.
func (vs *VoteSet) HasTwoThirdsMajority() (common.Hash, bool) {
	vs.mtx.Lock()
	defer vs.mtx.Unlock()
	if vs.maj23 == nil {
		return common.Hash{}, false
	}
	return *vs.maj23, true
}

// HasTwoThirdsAny reports whether the accumulated voting power across
// all blockHashes exceeds 2P/3, regardless of whether any single
// blockHash has.
func (vs *VoteSet) HasTwoThirdsAny() bool {
	vs.mtx.Lock()
	defer vs.mtx.Unlock()
	return twoThirdsExceeded(vs.sum, vs.valSet.TotalVotingPower())
}

// BitArraySize returns the number of validators this set ranges over.
func (vs *VoteSet) BitArraySize() int {
	return vs.valSet.Length()
}

// List returns every vote currently stored, in no particular order. Used
// by the gossip layer to find a vote a peer hasn't seen yet.
func (vs *VoteSet) List() []*Vote {
	vs.mtx.Lock()
	defer vs.mtx.Unlock()
	out := make([]*Vote, 0, len(vs.votesByIndex))
	for _, v := range vs.votesByIndex {
		out = append(out, v)
	}
	return out
}

// VotesForBlock returns the votes stored for a given blockHash (nil if
// none).
func (vs *VoteSet) VotesForBlock(hash common.Hash) []*Vote {
	vs.mtx.Lock()
	defer vs.mtx.Unlock()
	bv, ok := vs.votesByBlock[hash]
	if !ok {
		return nil
	}
	out := make([]*Vote, 0, len(bv.votes))
	for _, v := range bv.votes {
		out = append(out, v)
	}
	return out
}

// SetPeerMaj23 records a peer's claim that it has seen a +2/3 majority
// for blockHash. It does not itself trigger gossip — callers observe the
// claim to decide what to request from the peer next.
func (vs *VoteSet) SetPeerMaj23(peerID string, hash common.Hash) {
	vs.mtx.Lock()
	defer vs.mtx.Unlock()
	if _, ok := vs.peerMaj23s[peerID]; ok {
		return
	}
	vs.peerMaj23s[peerID] = hash
}

// PeerMaj23 returns the blockHash peerID has claimed a majority for, if
// any.
func (vs *VoteSet) PeerMaj23(peerID string) (common.Hash, bool) {
	vs.mtx.Lock()
	defer vs.mtx.Unlock()
	hash, ok := vs.peerMaj23s[peerID]
	return hash, ok
}

// MakeCommit builds a Commit justifying the +2/3 majority reached by
// this (precommit-only) VoteSet. Returns ErrCommitQuorumNotMet if no
// maj23 has been set.
func (vs *VoteSet) MakeCommit() (*Commit, error) {
	vs.mtx.Lock()
	defer vs.mtx.Unlock()

	if vs.signedType != PrecommitType {
		return nil, ErrCommitQuorumNotMet
	}
	if vs.maj23 == nil {
		return nil, ErrCommitQuorumNotMet
	}

	n := vs.valSet.Length()
	bitmap := make([]bool, n)
	sigs := make([][]byte, n)
	for idx, v := range vs.votesByIndex {
		if v.BlockHash != *vs.maj23 {
			continue
		}
		bitmap[idx] = true
		sigs[idx] = v.Signature
	}

	return &Commit{
		Height:    vs.height,
		Round:     vs.round,
		BlockHash: *vs.maj23,
		Bitmap:    bitmap,
		Signatures: sigs,
	}, nil
}

// Commit is the aggregate of precommit votes that justified
// finalization of a block, carried in ExtraData.
type Commit struct {
	Height     uint64
	Round      int32
	BlockHash  common.Hash
	Bitmap     []bool
	Signatures [][]byte
}
