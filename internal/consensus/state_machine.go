package consensus

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/reimint/reimint/internal/consensus/cstypes"
	"github.com/reimint/reimint/types"
)

// blockHash returns b's hash, or the zero hash if hashing fails (which
// only happens on a malformed ExtraData, already ruled out by the time
// a block reaches these call sites).
func blockHash(b *types.Block) common.Hash {
	if b == nil {
		return types.ZeroHash
	}
	hash, err := b.Hash()
	if err != nil {
		return types.ZeroHash
	}
	return hash
}

// setProposal records a newly-received Proposal for the current round,
// rejecting it if a proposal is already set, it targets a different
// (height, round), or its signature doesn't check out against the
// expected proposer.
func (cs *State) setProposal(p *types.Proposal, peerID string) error {
	if cs.Proposal != nil {
		return nil
	}
	if p.Height != cs.Height || p.Round != cs.Round {
		return nil
	}
	if err := p.ValidatePOLRound(); err != nil {
		return err
	}

	proposer := cs.Validators.Proposer()
	if proposer == nil {
		return fmt.Errorf("consensus: no proposer for round %d", cs.Round)
	}
	if err := p.ValidateSignature(cs.chainID, proposer); err != nil {
		return err
	}

	cs.Proposal = p
	cs.ProposalBlockHash = p.BlockHash
	cs.metrics.Proposals.Add(1)

	if !cs.HasProposalBlock() {
		cs.evsw.FireEvent(EventRequestProposalBlock, RequestProposalBlockData{PeerID: peerID, BlockHash: p.BlockHash})
	}
	return nil
}

// addProposalBlock accepts the block body for the current proposal once
// it arrives, checking it hashes to the proposal's BlockHash, then
// advances the step machine if that completes the proposal.
func (cs *State) addProposalBlock(b *types.Block) error {
	if cs.HasProposalBlock() {
		return nil
	}
	hash := blockHash(b)
	if hash != cs.ProposalBlockHash {
		return fmt.Errorf("consensus: proposal block hash %s does not match expected %s", hash.Hex(), cs.ProposalBlockHash.Hex())
	}
	cs.ProposalBlock = b

	if pv := cs.Votes.Prevotes(cs.Round); pv != nil {
		if maj23, ok := pv.HasTwoThirdsMajority(); ok && maj23 == hash && cs.ValidRound < cs.Round {
			cs.ValidRound = cs.Round
			cs.ValidBlock = b
			cs.evsw.FireEvent(EventValidBlock, b)
		}
	}

	if cs.Step <= cstypes.RoundStepPropose && cs.isProposalComplete() {
		cs.enterPrevote(cs.Height, cs.Round)
		if pc := cs.Votes.Precommits(cs.Round); pc != nil {
			if _, ok := pc.HasTwoThirdsMajority(); ok {
				cs.enterPrecommit(cs.Height, cs.Round)
			}
		}
	}
	if cs.Step == cstypes.RoundStepCommit {
		cs.tryFinalizeCommit(cs.Height)
	}
	return nil
}

// isProposalComplete reports whether we have both the Proposal and its
// block body, and, if the proposal cites a POLRound, that round's
// prevotes actually reached a +2/3 majority justifying the re-proposal.
func (cs *State) isProposalComplete() bool {
	if cs.Proposal == nil || !cs.HasProposalBlock() {
		return false
	}
	if cs.Proposal.POLRound < 0 {
		return true
	}
	pv := cs.Votes.Prevotes(cs.Proposal.POLRound)
	if pv == nil {
		return false
	}
	_, ok := pv.HasTwoThirdsMajority()
	return ok
}

// tryAddVote attempts to add v to the current HeightVoteSet. A
// ConflictingVotes error is routed to the Evidence Pool (or suppressed
// if the conflict is against our own key) rather than surfaced as a
// protocol violation.
func (cs *State) tryAddVote(v *types.Vote, peerID string) (bool, error) {
	added, err := cs.addVote(v, peerID)
	if err == nil {
		return added, nil
	}

	var conflict *types.ErrConflictingVotes
	if !errors.As(err, &conflict) {
		return false, err
	}

	if cs.ourAddress != (common.Address{}) && conflict.VoteA.ValidatorAddress == cs.ourAddress {
		cs.Logger.Info("suppressing conflicting vote evidence against our own key")
		return false, nil
	}

	ev := types.NewDuplicateVoteEvidence(conflict.VoteA, conflict.VoteB)
	if addErr := cs.evpool.AddEvidence(ev); addErr != nil {
		cs.Logger.Info("failed to record duplicate-vote evidence", "err", addErr)
	} else {
		cs.metrics.EvidenceReported.Add(1)
	}
	return false, nil
}

func (cs *State) addVote(v *types.Vote, peerID string) (bool, error) {
	added, err := cs.Votes.AddVote(v, peerID)
	if err != nil || !added {
		return added, err
	}

	switch v.Type {
	case types.PrevoteType:
		cs.handlePrevote(v)
	case types.PrecommitType:
		cs.handlePrecommit(v)
	}
	return true, nil
}

// handlePrevote reacts to a newly-added prevote: updating the lock and
// valid-block state on a fresh +2/3 majority, then advancing the step
// machine (a later round's any-2/3 jumps us forward; our own round
// reaching majority moves to precommit or starts the prevote timeout).
func (cs *State) handlePrevote(v *types.Vote) {
	round := v.Round
	pv := cs.Votes.Prevotes(round)
	if pv == nil {
		return
	}
	maj23, hasMaj23 := pv.HasTwoThirdsMajority()

	if hasMaj23 {
		if cs.LockedBlock != nil && cs.LockedRound < round && round <= cs.Round && maj23 != blockHash(cs.LockedBlock) {
			cs.LockedRound = -1
			cs.LockedBlock = nil
			cs.evsw.FireEvent(EventRelock, nil)
		}
		if maj23 != types.ZeroHash && cs.ValidRound < round && round == cs.Round {
			if cs.ProposalBlockHash == maj23 {
				cs.ValidRound = round
				cs.ValidBlock = cs.ProposalBlock
			} else {
				cs.ProposalBlock = nil
				cs.ProposalBlockHash = maj23
			}
			cs.evsw.FireEvent(EventValidBlock, cs.ValidBlock)
		}
	}

	switch {
	case cs.Round < round && pv.HasTwoThirdsAny():
		cs.enterNewRound(cs.Height, round)
	case cs.Round == round && cs.Step >= cstypes.RoundStepPrevote:
		if hasMaj23 && (maj23 == types.ZeroHash || cs.isProposalComplete()) {
			cs.enterPrecommit(cs.Height, round)
		} else if pv.HasTwoThirdsAny() {
			cs.enterPrevoteWait(cs.Height, round)
		}
	case cs.Proposal != nil && cs.Proposal.POLRound == round && cs.isProposalComplete():
		cs.enterPrevote(cs.Height, cs.Round)
	}
}

// handlePrecommit reacts to a newly-added precommit: a +2/3 majority on
// a real block finalizes the round, a +2/3 majority on nil starts the
// precommit timeout, and any-2/3 (without majority yet) jumps the round
// forward the same way a prevote any-2/3 does.
func (cs *State) handlePrecommit(v *types.Vote) {
	round := v.Round
	cs.enterNewRound(cs.Height, round)
	cs.enterPrecommit(cs.Height, round)

	pc := cs.Votes.Precommits(round)
	if pc == nil {
		return
	}
	maj23, hasMaj23 := pc.HasTwoThirdsMajority()
	switch {
	case hasMaj23 && maj23 != types.ZeroHash:
		cs.enterCommit(cs.Height, round)
	case hasMaj23:
		cs.enterPrecommitWait(cs.Height, round)
	case pc.HasTwoThirdsAny():
		cs.enterNewRound(cs.Height, round)
		cs.enterPrecommitWait(cs.Height, round)
	}
}

// enterNewRound advances the proposer-priority rotation, resets the
// round's proposal slot, and moves on to enterPropose (unless round 0's
// empty-blocks interval says to wait first).
func (cs *State) enterNewRound(height uint64, round int32) {
	if cs.Height != height || round < cs.Round || (cs.Round == round && cs.Step != cstypes.RoundStepNewHeight) {
		return
	}

	if round > cs.Round {
		validators := cs.Validators.Copy()
		validators.IncrementProposerPriority(int(round - cs.Round))
		cs.Validators = validators
	}

	cs.Round = round
	cs.Step = cstypes.RoundStepNewRound
	if round > 0 {
		cs.Proposal = nil
		cs.ProposalBlock = nil
		cs.ProposalBlockHash = common.Hash{}
	}
	cs.Votes.SetRound(round + 1)
	cs.TriggeredTimeoutPrecommit = false
	cs.newStep()

	if round == 0 && cs.config.CreateEmptyBlocksInterval > 0 {
		cs.scheduleTimeout(cs.config.CreateEmptyBlocksInterval, height, round, cstypes.RoundStepNewRound)
		return
	}
	cs.enterPropose(height, round)
}

// enterPropose schedules the propose-step timeout and, if we are this
// round's proposer, builds and broadcasts our own proposal.
func (cs *State) enterPropose(height uint64, round int32) {
	if cs.Height != height || round < cs.Round || (cs.Round == round && cs.Step >= cstypes.RoundStepPropose) {
		return
	}

	cs.Round = round
	cs.Step = cstypes.RoundStepPropose
	cs.newStep()
	cs.scheduleTimeout(cs.config.Propose(round), height, round, cstypes.RoundStepPropose)

	if cs.isProposer() {
		cs.decideProposal(height, round)
	}
}

// decideProposal builds (or reuses) a block and its justifying Proposal,
// then enqueues both into our own input queue so they flow through the
// same code path as a peer's would.
func (cs *State) decideProposal(height uint64, round int32) {
	var block *types.Block
	polRound := cs.ValidRound

	if cs.ValidBlock != nil {
		block = cs.ValidBlock
	} else {
		pb, err := cs.pipeline.BuildPendingBlock(cs.parentHash())
		if err != nil {
			cs.Logger.Error("failed to build a pending block to propose", "err", err)
			return
		}
		evList, err := cs.evpool.PendingEvidence(cs.maxEvidenceBytes)
		if err != nil {
			cs.Logger.Info("failed to fetch pending evidence for proposal", "err", err)
		}
		timestamp := uint64(time.Now().Unix())
		block, err = cs.pipeline.PrepareBlock(cs.parentHeader, cs.ourAddress, pb.Txs, timestamp)
		if err != nil {
			cs.Logger.Error("failed to prepare a block to propose", "err", err)
			return
		}
		if err := block.Header.SetExtraData(&types.ExtraData{
			Round:    round,
			POLRound: polRound,
			Evidence: evList,
		}); err != nil {
			cs.Logger.Error("failed to seal extraData on proposed block", "err", err)
			return
		}
	}

	proposal := &types.Proposal{
		Height:    height,
		Round:     round,
		POLRound:  polRound,
		BlockHash: blockHash(block),
		Timestamp: uint64(time.Now().Unix()),
	}
	if err := cs.pipeline.SignProposal(cs.chainID, proposal); err != nil {
		cs.Logger.Error("failed to sign our own proposal", "err", err)
		return
	}

	cs.sendInternalMessage(msgInfo{Msg: &ProposalMessage{Proposal: proposal}})
	cs.sendInternalMessage(msgInfo{Msg: &ProposalBlockMessage{Block: block}})
}

func (cs *State) parentHash() common.Hash {
	hash, err := cs.parentHeader.Hash()
	if err != nil {
		return common.Hash{}
	}
	return hash
}

// validateProposalBlock checks a received block body actually extends
// the chain at the height and parent we expect.
func (cs *State) validateProposalBlock(b *types.Block) error {
	if b.Header.Number != cs.Height {
		return fmt.Errorf("consensus: proposal block height %d does not match %d", b.Header.Number, cs.Height)
	}
	if b.Header.ParentHash != cs.parentHash() {
		return fmt.Errorf("consensus: proposal block parentHash does not match")
	}
	return nil
}

// enterPrevote chooses what to prevote: our lock if we hold one, the
// received proposal block if it validates, or nil otherwise.
func (cs *State) enterPrevote(height uint64, round int32) {
	if cs.Height != height || round < cs.Round || (cs.Round == round && cs.Step >= cstypes.RoundStepPrevote) {
		return
	}

	cs.Round = round
	cs.Step = cstypes.RoundStepPrevote
	cs.newStep()

	var hash common.Hash
	switch {
	case cs.LockedBlock != nil:
		hash = blockHash(cs.LockedBlock)
	case !cs.HasProposalBlock():
		hash = types.ZeroHash
	default:
		if err := cs.validateProposalBlock(cs.ProposalBlock); err != nil {
			cs.Logger.Info("proposal block failed validation, prevoting nil", "err", err)
			hash = types.ZeroHash
		} else {
			hash = blockHash(cs.ProposalBlock)
		}
	}

	cs.signAddVote(types.PrevoteType, hash)
}

// enterPrevoteWait starts the timeout that, on expiry, moves to
// precommit once any-2/3 of prevotes has been seen without a majority.
func (cs *State) enterPrevoteWait(height uint64, round int32) {
	if cs.Height != height || round < cs.Round || (cs.Round == round && cs.Step >= cstypes.RoundStepPrevoteWait) {
		return
	}
	pv := cs.Votes.Prevotes(round)
	if pv == nil || !pv.HasTwoThirdsAny() {
		return
	}

	cs.Round = round
	cs.Step = cstypes.RoundStepPrevoteWait
	cs.newStep()
	cs.scheduleTimeout(cs.config.Prevote(round), height, round, cstypes.RoundStepPrevoteWait)
}

// enterPrecommit decides what to precommit from the round's prevote
// majority: locking onto a new block, keeping an existing lock,
// unlocking to nil, or precommitting nil when there is no majority yet.
func (cs *State) enterPrecommit(height uint64, round int32) {
	if cs.Height != height || round < cs.Round || (cs.Round == round && cs.Step >= cstypes.RoundStepPrecommit) {
		return
	}

	cs.Round = round
	cs.Step = cstypes.RoundStepPrecommit
	cs.newStep()

	// Per the Open Question decision recorded in DESIGN.md: a
	// POLInfo().round behind the current round is logged and answered
	// with a nil precommit, never treated as fatal.
	if polRound, _, ok := cs.Votes.POLInfo(); ok && polRound < round {
		cs.Logger.Info("POLInfo round behind current precommit round, precommitting nil", "polRound", polRound, "round", round)
		cs.signAddVote(types.PrecommitType, types.ZeroHash)
		return
	}

	pv := cs.Votes.Prevotes(round)
	var maj23 common.Hash
	var hasMaj23 bool
	if pv != nil {
		maj23, hasMaj23 = pv.HasTwoThirdsMajority()
	}

	switch {
	case !hasMaj23:
		cs.signAddVote(types.PrecommitType, types.ZeroHash)
	case maj23 == types.ZeroHash:
		cs.LockedRound = -1
		cs.LockedBlock = nil
		cs.signAddVote(types.PrecommitType, types.ZeroHash)
	case cs.LockedBlock != nil && maj23 == blockHash(cs.LockedBlock):
		cs.LockedRound = round
		cs.signAddVote(types.PrecommitType, maj23)
	case cs.HasProposalBlock() && maj23 == blockHash(cs.ProposalBlock):
		if err := cs.validateProposalBlock(cs.ProposalBlock); err != nil {
			cs.Logger.Info("majority proposal block failed validation, unlocking and precommitting nil", "err", err)
			cs.LockedRound = -1
			cs.LockedBlock = nil
			cs.ProposalBlock = nil
			cs.ProposalBlockHash = maj23
			cs.signAddVote(types.PrecommitType, types.ZeroHash)
		} else {
			cs.LockedRound = round
			cs.LockedBlock = cs.ProposalBlock
			cs.evsw.FireEvent(EventLock, cs.LockedBlock)
			cs.signAddVote(types.PrecommitType, maj23)
		}
	default:
		cs.LockedRound = -1
		cs.LockedBlock = nil
		cs.ProposalBlock = nil
		cs.ProposalBlockHash = maj23
		cs.signAddVote(types.PrecommitType, types.ZeroHash)
	}
}

// enterPrecommitWait starts the timeout that, on expiry, moves to the
// next round once any-2/3 of precommits has been seen without reaching
// a decision.
func (cs *State) enterPrecommitWait(height uint64, round int32) {
	if cs.Height != height || round < cs.Round || cs.TriggeredTimeoutPrecommit {
		return
	}
	pc := cs.Votes.Precommits(round)
	if pc == nil || !pc.HasTwoThirdsAny() {
		return
	}

	cs.TriggeredTimeoutPrecommit = true
	cs.scheduleTimeout(cs.config.Precommit(round), height, round, cstypes.RoundStepPrecommitWait)
}

// enterCommit records the decided round and waits for the matching
// block body, if it hasn't already arrived, before finalizing.
func (cs *State) enterCommit(height uint64, commitRound int32) {
	if cs.Height != height || cs.Step >= cstypes.RoundStepCommit {
		return
	}

	pc := cs.Votes.Precommits(commitRound)
	if pc == nil {
		return
	}
	maj23, ok := pc.HasTwoThirdsMajority()
	if !ok || maj23 == types.ZeroHash {
		cs.Logger.Info("enterCommit called without a non-nil +2/3 precommit majority", "round", commitRound)
		return
	}

	cs.Step = cstypes.RoundStepCommit
	cs.CommitRound = commitRound
	cs.CommitTime = time.Now()
	cs.newStep()
	cs.evsw.FireEvent(EventPolka, maj23)

	if cs.LockedBlock != nil && blockHash(cs.LockedBlock) == maj23 {
		cs.ProposalBlock = cs.LockedBlock
		cs.ProposalBlockHash = maj23
	}
	if !cs.HasProposalBlock() || blockHash(cs.ProposalBlock) != maj23 {
		cs.ProposalBlock = nil
		cs.ProposalBlockHash = maj23
		cs.Logger.Info("commit round decided but block body not yet known, waiting", "hash", maj23.Hex())
		return
	}

	cs.tryFinalizeCommit(height)
}

// tryFinalizeCommit seals ExtraData onto the decided block and hands it
// to the BlockPipeline to commit, then advances to the next height.
func (cs *State) tryFinalizeCommit(height uint64) {
	if cs.Height != height || !cs.HasProposalBlock() {
		return
	}

	pc := cs.Votes.Precommits(cs.CommitRound)
	if pc == nil {
		return
	}
	maj23, ok := pc.HasTwoThirdsMajority()
	if !ok || maj23 != blockHash(cs.ProposalBlock) {
		cs.Logger.Info("tryFinalizeCommit: proposal block does not match the decided +2/3 majority yet")
		return
	}

	commit, err := pc.MakeCommit()
	if err != nil {
		cs.Logger.Error("failed to build commit for finalized block", "err", err)
		return
	}

	evList, err := cs.evpool.PendingEvidence(cs.maxEvidenceBytes)
	if err != nil {
		cs.Logger.Info("failed to fetch pending evidence for finalized block", "err", err)
	}

	polRound := int32(types.NoPOLRound)
	if cs.Proposal != nil {
		polRound = cs.Proposal.POLRound
	}

	block := cs.ProposalBlock
	if err := block.Header.SetExtraData(&types.ExtraData{
		Round:       cs.Round,
		CommitRound: cs.CommitRound,
		POLRound:    polRound,
		Evidence:    evList,
		Proposal:    cs.Proposal,
		Commit:      commit,
	}); err != nil {
		cs.Logger.Error("failed to seal extraData on finalized block", "err", err)
		return
	}

	if err := cs.pipeline.CommitBlock(block); err != nil {
		// Log fatal-for-this-height, stay at Commit. The next height's
		// NewHeight ticker (or a re-observed majority precommit) is the
		// only way forward; safety is preserved, liveness degrades for
		// this height.
		cs.Logger.Error("commitBlock failed, consensus stalled at this height", "err", err)
		return
	}

	cs.metrics.Rounds.Set(float64(cs.Round))
	cs.evsw.FireEvent(EventCommit, block)

	newValidators, err := cs.pipeline.GetValidatorSet(block.Header.StateRoot)
	if err != nil {
		cs.Logger.Error("failed to resolve validator set for next height, reusing current set", "err", err)
		newValidators = cs.Validators.Copy()
	}
	cs.newBlockHeader(block.Header, newValidators)
}

// signAddVote signs a vote of voteType for hash at the current (height,
// round) with our own key, if we have one and are a validator, and
// routes it through the same queue a peer's vote would take.
func (cs *State) signAddVote(voteType types.SignedMsgType, hash common.Hash) {
	if cs.ourAddress == (common.Address{}) {
		return
	}
	idx := cs.Validators.GetIndexByAddress(cs.ourAddress)
	if idx < 0 {
		return
	}

	step := cstypes.RoundStepPrevote
	if voteType == types.PrecommitType {
		step = cstypes.RoundStepPrecommit
	}

	vote := &types.Vote{
		Type:             voteType,
		Height:           cs.Height,
		Round:            cs.Round,
		BlockHash:        hash,
		Timestamp:        uint64(time.Now().Unix()),
		ValidatorIndex:   int32(idx),
		ValidatorAddress: cs.ourAddress,
	}
	if err := cs.pipeline.SignVote(cs.chainID, vote, step); err != nil {
		cs.Logger.Error("failed to sign our own vote", "err", err, "type", voteType)
		return
	}

	cs.sendInternalMessage(msgInfo{Msg: &VoteMessage{Vote: vote}})
}

// newBlockHeader resets the RoundState to drive the next height
// forward, seeded from the just-committed block's header and its
// resolved validator set.
func (cs *State) newBlockHeader(prevHeader *types.Header, newValidators *types.ValidatorSet) {
	cs.parentHeader = prevHeader
	cs.Height = prevHeader.Number + 1
	cs.Round = 0
	cs.Step = cstypes.RoundStepNewHeight
	cs.Validators = newValidators
	cs.Proposal = nil
	cs.ProposalBlock = nil
	cs.ProposalBlockHash = common.Hash{}
	cs.LockedRound = -1
	cs.LockedBlock = nil
	cs.ValidRound = -1
	cs.ValidBlock = nil
	cs.CommitRound = -1
	cs.TriggeredTimeoutPrecommit = false
	cs.Votes = types.NewHeightVoteSet(cs.chainID, cs.Height, newValidators)
	cs.StartTime = cs.CommitTime.Add(cs.config.CommitTimeout)
	cs.newStep()

	if cs.config.SkipTimeoutCommit {
		cs.enterNewRound(cs.Height, 0)
		return
	}
	cs.scheduleTimeout(time.Until(cs.StartTime), cs.Height, 0, cstypes.RoundStepNewHeight)
}
