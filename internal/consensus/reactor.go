package consensus

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/reimint/reimint/internal/consensus/cstypes"
	"github.com/reimint/reimint/libs/log"
	"github.com/reimint/reimint/libs/service"
	rsync "github.com/reimint/reimint/libs/sync"
	"github.com/reimint/reimint/p2p"
	"github.com/reimint/reimint/types"
)

// gossipSleep is the fallback cadence the gossip routines fall back to
// when there is nothing to send this pass, grounded on
// config.ConsensusConfig.PeerGossipSleepDuration.
const gossipSleep = 100 * time.Millisecond

// Reactor demultiplexes inbound wire messages from every connected peer
// into the State's input queue, and gossips the State's own
// round-steps, proposals, blocks and votes back out to every peer.
// Grounded on cometbft/internal/consensus/reactor.go's per-peer
// gossip-goroutine design (gossipDataRoutine/gossipVotesRoutine/
// queryMaj23Routine),
// reduced to this repo's whole-block (no parts) wire format and to the
// p2p.Peer seam rather than a full p2p.Switch.
type Reactor struct {
	*service.BaseService

	cs *State

	mtx   rsync.Mutex
	peers map[string]*PeerState
}

// NewReactor constructs a Reactor driving cs's gossip.
func NewReactor(cs *State) *Reactor {
	r := &Reactor{
		cs:    cs,
		peers: make(map[string]*PeerState),
	}
	r.BaseService = service.NewBaseService(log.NewNopLogger(), "Reactor", r)
	return r
}

func (r *Reactor) SetLogger(l log.Logger) {
	r.BaseService.SetLogger(l)
}

// OnStart implements service.Implementation.
func (r *Reactor) OnStart() error {
	r.subscribeToBroadcastEvents()
	return nil
}

// OnStop implements service.Implementation.
func (r *Reactor) OnStop() {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	for _, ps := range r.peers {
		close(ps.quit)
	}
	r.peers = make(map[string]*PeerState)
}

// AddPeer registers a newly connected peer and starts its gossip
// goroutines.
func (r *Reactor) AddPeer(peer p2p.Peer) {
	ps := newPeerState(peer)

	r.mtx.Lock()
	r.peers[peer.ID()] = ps
	r.mtx.Unlock()

	go r.gossipDataRoutine(peer, ps)
	go r.gossipVotesRoutine(peer, ps)

	rs := r.cs.GetRoundState()
	r.sendNewRoundStep(peer, &rs)
}

// RemovePeer stops gossiping to a disconnected peer.
func (r *Reactor) RemovePeer(peerID string) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	if ps, ok := r.peers[peerID]; ok {
		close(ps.quit)
		delete(r.peers, peerID)
	}
}

func (r *Reactor) getPeerState(peerID string) *PeerState {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return r.peers[peerID]
}

// Receive decodes an RLP-framed envelope from peerID and either updates
// that peer's known state (Has*/Maj23 announcements) or hands the
// message to the State's input queue.
func (r *Reactor) Receive(peerID string, chID byte, data []byte) {
	msg, err := DecodeMsg(data)
	if err != nil {
		r.Logger.Error("failed to decode consensus message", "peer", peerID, "err", err)
		return
	}

	ps := r.getPeerState(peerID)
	if ps == nil {
		r.Logger.Debug("dropping message from unknown peer", "peer", peerID)
		return
	}

	switch m := msg.(type) {
	case *NewRoundStepMessage:
		ps.applyNewRoundStep(m)
	case *NewValidBlockMessage:
		ps.applyNewValidBlock(m)
	case *HasVoteMessage:
		ps.applyHasVote(m)
	case *ProposalMessage:
		ps.setHasProposal(m.Proposal)
		r.cs.AddPeerMessage(peerID, m)
	case *ProposalPOLMessage:
		ps.applyProposalPOL(m)
	case *ProposalBlockMessage:
		ps.setHasProposalBlock(m.Block)
		r.cs.AddPeerMessage(peerID, m)
	case *VoteMessage:
		ps.setHasVote(m.Vote)
		r.cs.AddPeerMessage(peerID, m)
	case *VoteSetMaj23Message:
		r.handleVoteSetMaj23(peerID, ps, m)
	case *VoteSetBitsMessage:
		ps.applyVoteSetBits(m)
	case *GetProposalBlockMessage:
		r.handleGetProposalBlock(peerID, m)
	default:
		r.Logger.Info("received unrecognized consensus message", "peer", peerID, "type", fmt.Sprintf("%T", m))
	}
}

// handleVoteSetMaj23 answers a peer's maj23 claim with our own bit
// array for the same (height, round, type) // catch-up protocol.
func (r *Reactor) handleVoteSetMaj23(peerID string, ps *PeerState, m *VoteSetMaj23Message) {
	rs := r.cs.GetRoundState()
	if m.Height != rs.Height {
		return
	}
	votes := voteSetFor(rs.Votes, int32(m.Round), m.Type)
	if votes == nil {
		return
	}
	votes.SetPeerMaj23(peerID, m.BlockHash)

	bits := make([]bool, votes.BitArraySize())
	for _, v := range votes.VotesForBlock(m.BlockHash) {
		bits[v.ValidatorIndex] = true
	}
	ps.peer.TrySend(p2p.VoteSetBitsChannel, mustEncode(&VoteSetBitsMessage{
		Height:    m.Height,
		Round:     m.Round,
		Type:      m.Type,
		BlockHash: m.BlockHash,
		Votes:     bits,
	}))
}

// handleGetProposalBlock answers a direct request for a block body we
// hold, the counterpart to EventRequestProposalBlock.
func (r *Reactor) handleGetProposalBlock(peerID string, m *GetProposalBlockMessage) {
	rs := r.cs.GetRoundState()
	if !rs.HasProposalBlock() {
		return
	}
	hash, err := rs.ProposalBlock.Hash()
	if err != nil || hash != m.BlockHash {
		return
	}
	r.mtx.Lock()
	ps, ok := r.peers[peerID]
	r.mtx.Unlock()
	if !ok {
		return
	}
	ps.peer.TrySend(p2p.DataChannel, mustEncode(&ProposalBlockMessage{Block: rs.ProposalBlock}))
}

func voteSetFor(hvs *types.HeightVoteSet, round int32, t types.SignedMsgType) *types.VoteSet {
	if hvs == nil {
		return nil
	}
	switch t {
	case types.PrevoteType:
		return hvs.Prevotes(round)
	case types.PrecommitType:
		return hvs.Precommits(round)
	default:
		return nil
	}
}

func mustEncode(msg Message) []byte {
	bz, err := EncodeMsg(msg)
	if err != nil {
		return nil
	}
	return bz
}

// subscribeToBroadcastEvents wires the State's own round-step/vote/
// request-block notifications into outbound gossip, mirroring
// cometbft's subscribeToBroadcastEvents.
func (r *Reactor) subscribeToBroadcastEvents() {
	evsw := r.cs.EventSwitch()
	evsw.AddListener(EventNewRoundStep, func(data interface{}) {
		rs, ok := data.(cstypes.RoundState)
		if !ok {
			return
		}
		r.broadcast(p2p.StateChannel, makeRoundStepMessage(&rs))
	})
	evsw.AddListener(EventVote, func(data interface{}) {
		vote, ok := data.(*types.Vote)
		if !ok {
			return
		}
		r.broadcast(p2p.StateChannel, &HasVoteMessage{
			Height: vote.Height,
			Round:  uint32(vote.Round),
			Type:   vote.Type,
			Index:  uint32(vote.ValidatorIndex),
		})
	})
	evsw.AddListener(EventValidBlock, func(data interface{}) {
		block, ok := data.(*types.Block)
		if !ok || block == nil {
			return
		}
		hash, err := block.Hash()
		if err != nil {
			return
		}
		rs := r.cs.GetRoundState()
		r.broadcast(p2p.StateChannel, &NewValidBlockMessage{
			Height:    rs.Height,
			Round:     uint32(rs.Round),
			BlockHash: hash,
			IsCommit:  rs.Step == cstypes.RoundStepCommit,
		})
	})
	evsw.AddListener(EventRequestProposalBlock, func(data interface{}) {
		req, ok := data.(RequestProposalBlockData)
		if !ok {
			return
		}
		r.mtx.Lock()
		ps, found := r.peers[req.PeerID]
		r.mtx.Unlock()
		if !found {
			return
		}
		ps.peer.TrySend(p2p.DataChannel, mustEncode(&GetProposalBlockMessage{BlockHash: req.BlockHash}))
	})
}

func (r *Reactor) broadcast(chID byte, msg Message) {
	bz := mustEncode(msg)
	if bz == nil {
		return
	}
	r.mtx.Lock()
	defer r.mtx.Unlock()
	for _, ps := range r.peers {
		ps.peer.TrySend(chID, bz)
	}
}

func makeRoundStepMessage(rs *cstypes.RoundState) *NewRoundStepMessage {
	return &NewRoundStepMessage{
		Height:                rs.Height,
		Round:                 uint32(rs.Round),
		Step:                  rs.Step,
		SecondsSinceStartTime: uint64(time.Since(rs.StartTime) / time.Second),
		LastCommitRound:       uint32(rs.CommitRound),
	}
}

func (r *Reactor) sendNewRoundStep(peer p2p.Peer, rs *cstypes.RoundState) {
	peer.Send(p2p.StateChannel, mustEncode(makeRoundStepMessage(rs)))
}

// gossipDataRoutine sends the current proposal and its block body to
// peer whenever it learns peer is missing either one.
func (r *Reactor) gossipDataRoutine(peer p2p.Peer, ps *PeerState) {
	for {
		select {
		case <-ps.quit:
			return
		case <-r.Quit():
			return
		default:
		}

		rs := r.cs.GetRoundState()
		prs := ps.getRoundState()

		if rs.Height == prs.Height {
			if rs.Proposal != nil && !prs.Proposal {
				if peer.TrySend(p2p.DataChannel, mustEncode(&ProposalMessage{Proposal: rs.Proposal})) {
					ps.setHasProposal(rs.Proposal)
				}
				continue
			}
			if rs.HasProposalBlock() && prs.Proposal && !prs.ProposalBlock {
				if peer.TrySend(p2p.DataChannel, mustEncode(&ProposalBlockMessage{Block: rs.ProposalBlock})) {
					ps.setHasProposalBlock(rs.ProposalBlock)
				}
				continue
			}
		}

		time.Sleep(gossipSleep)
	}
}

// gossipVotesRoutine sends prevotes/precommits peer hasn't acknowledged
// yet, from our current round's vote sets only and only while the peer
// is at our height; votes of other rounds are not sent.
func (r *Reactor) gossipVotesRoutine(peer p2p.Peer, ps *PeerState) {
	rng := rand.New(rand.NewSource(1))
	for {
		select {
		case <-ps.quit:
			return
		case <-r.Quit():
			return
		default:
		}

		rs := r.cs.GetRoundState()
		prs := ps.getRoundState()

		if rs.Height == prs.Height && rs.Votes != nil {
			if r.gossipVoteSet(peer, ps, rs.Votes.Prevotes(rs.Round), types.PrevoteType, rs.Round, rng) {
				continue
			}
			if r.gossipVoteSet(peer, ps, rs.Votes.Precommits(rs.Round), types.PrecommitType, rs.Round, rng) {
				continue
			}
		}

		time.Sleep(gossipSleep)
	}
}

func (r *Reactor) gossipVoteSet(peer p2p.Peer, ps *PeerState, vs *types.VoteSet, t types.SignedMsgType, round int32, rng *rand.Rand) bool {
	if vs == nil {
		return false
	}
	votes := vs.List()
	if len(votes) == 0 {
		return false
	}
	rng.Shuffle(len(votes), func(i, j int) { votes[i], votes[j] = votes[j], votes[i] })
	for _, v := range votes {
		if ps.hasVote(round, t, v.ValidatorIndex) {
			continue
		}
		if peer.TrySend(p2p.VoteChannel, mustEncode(&VoteMessage{Vote: v})) {
			ps.setHasVote(v)
			return true
		}
	}
	return false
}

// PeerRoundState is the Reactor's belief about what a connected peer
// has already seen, used to avoid resending messages it already has.
type PeerRoundState struct {
	Height uint64
	Round  int32
	Step   cstypes.RoundStepType

	Proposal          bool
	ProposalBlockHash common.Hash
	ProposalBlock     bool

	Prevotes   map[int32]map[int32]bool
	Precommits map[int32]map[int32]bool
}

// PeerState tracks one connected peer's gossip progress.
type PeerState struct {
	peer p2p.Peer
	quit chan struct{}

	mtx rsync.Mutex
	prs PeerRoundState
}

func newPeerState(peer p2p.Peer) *PeerState {
	return &PeerState{
		peer: peer,
		quit: make(chan struct{}),
		prs: PeerRoundState{
			Prevotes:   make(map[int32]map[int32]bool),
			Precommits: make(map[int32]map[int32]bool),
		},
	}
}

func (ps *PeerState) getRoundState() PeerRoundState {
	ps.mtx.Lock()
	defer ps.mtx.Unlock()
	return ps.prs
}

func (ps *PeerState) applyNewRoundStep(m *NewRoundStepMessage) {
	ps.mtx.Lock()
	defer ps.mtx.Unlock()
	if m.Height != ps.prs.Height || int32(m.Round) != ps.prs.Round {
		ps.prs.Proposal = false
		ps.prs.ProposalBlock = false
		ps.prs.ProposalBlockHash = common.Hash{}
	}
	ps.prs.Height = m.Height
	ps.prs.Round = int32(m.Round)
	ps.prs.Step = m.Step
}

func (ps *PeerState) applyNewValidBlock(m *NewValidBlockMessage) {
	ps.mtx.Lock()
	defer ps.mtx.Unlock()
	if m.Height != ps.prs.Height {
		return
	}
	ps.prs.ProposalBlockHash = m.BlockHash
}

func (ps *PeerState) applyProposalPOL(m *ProposalPOLMessage) {
	ps.mtx.Lock()
	defer ps.mtx.Unlock()
	if m.Height != ps.prs.Height {
		return
	}
	bits := make(map[int32]bool, len(m.ProposalPOL))
	for idx, has := range m.ProposalPOL {
		if has {
			bits[int32(idx)] = true
		}
	}
	if ps.prs.Prevotes[int32(m.ProposalPOLRound)] == nil {
		ps.prs.Prevotes[int32(m.ProposalPOLRound)] = make(map[int32]bool)
	}
	for idx := range bits {
		ps.prs.Prevotes[int32(m.ProposalPOLRound)][idx] = true
	}
}

func (ps *PeerState) applyHasVote(m *HasVoteMessage) {
	ps.mtx.Lock()
	defer ps.mtx.Unlock()
	if m.Height != ps.prs.Height {
		return
	}
	ps.markVoteLocked(int32(m.Round), m.Type, int32(m.Index))
}

func (ps *PeerState) applyVoteSetBits(m *VoteSetBitsMessage) {
	ps.mtx.Lock()
	defer ps.mtx.Unlock()
	if m.Height != ps.prs.Height {
		return
	}
	for idx, has := range m.Votes {
		if has {
			ps.markVoteLocked(int32(m.Round), m.Type, int32(idx))
		}
	}
}

func (ps *PeerState) markVoteLocked(round int32, t types.SignedMsgType, index int32) {
	byRound := ps.prs.Prevotes
	if t == types.PrecommitType {
		byRound = ps.prs.Precommits
	}
	if byRound[round] == nil {
		byRound[round] = make(map[int32]bool)
	}
	byRound[round][index] = true
}

func (ps *PeerState) setHasProposal(p *types.Proposal) {
	ps.mtx.Lock()
	defer ps.mtx.Unlock()
	if p == nil || p.Height != ps.prs.Height {
		return
	}
	ps.prs.Proposal = true
	ps.prs.ProposalBlockHash = p.BlockHash
}

func (ps *PeerState) setHasProposalBlock(b *types.Block) {
	ps.mtx.Lock()
	defer ps.mtx.Unlock()
	ps.prs.ProposalBlock = true
}

func (ps *PeerState) setHasVote(v *types.Vote) {
	ps.mtx.Lock()
	defer ps.mtx.Unlock()
	if v.Height != ps.prs.Height {
		return
	}
	ps.markVoteLocked(v.Round, v.Type, v.ValidatorIndex)
}

func (ps *PeerState) hasVote(round int32, t types.SignedMsgType, index int32) bool {
	ps.mtx.Lock()
	defer ps.mtx.Unlock()
	byRound := ps.prs.Prevotes
	if t == types.PrecommitType {
		byRound = ps.prs.Precommits
	}
	return byRound[round][index]
}
