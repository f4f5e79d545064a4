// Package consensus implements the Reimint height/round/step state
// machine, grounded throughout on cometbft's
// internal/consensus/state.go, adapted from cometbft's protobuf/ed25519
// wire format to this repo's RLP/secp256k1 stack.
package consensus

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/reimint/reimint/config"
	"github.com/reimint/reimint/internal/consensus/cstypes"
	"github.com/reimint/reimint/libs/log"
	"github.com/reimint/reimint/libs/service"
	rsync "github.com/reimint/reimint/libs/sync"
	"github.com/reimint/reimint/txpool"
	"github.com/reimint/reimint/types"
)

// BlockPipeline is the narrow interface the State depends on, breaking
// the Node/Engine/StateMachine cyclic reference calls out.
// blockchain.Pipeline is the concrete implementation; nothing here
// imports that package, avoiding the cycle the interface exists to
// break.
type BlockPipeline interface {
	CommitBlock(block *types.Block) error
	BuildPendingBlock(parentHash common.Hash) (*txpool.PendingBlock, error)
	PrepareBlock(parentHeader *types.Header, coinbase common.Address, txs [][]byte, timestamp uint64) (*types.Block, error)
	GetValidatorSet(stateRoot common.Hash) (*types.ValidatorSet, error)
	SignVote(chainID string, v *types.Vote, step cstypes.RoundStepType) error
	SignProposal(chainID string, p *types.Proposal) error
}

// evidencePool is the subset of evidence.Pool the State needs: record a
// freshly-detected conflict, and pull a batch for the next proposal.
type evidencePool interface {
	AddEvidence(ev *types.DuplicateVoteEvidence) error
	PendingEvidence(maxBytes uint64) ([]*types.DuplicateVoteEvidence, error)
}

// msgInfo pairs a wire Message with the peer it arrived from ("" for
// messages we generated ourselves), matching cometbft's msgInfo.
type msgInfo struct {
	Msg    Message
	PeerID string
}

// State drives one height of Reimint consensus at a time: propose,
// prevote, precommit, commit, advancing rounds on timeout and heights
// on a committed block.
type State struct {
	*service.BaseService

	config  *config.ConsensusConfig
	chainID string

	// ourAddress is the zero address if this node is not a validator
	// (it still runs the state machine as an observer, but is never the
	// proposer and never signs).
	ourAddress common.Address

	mtx rsync.RWMutex
	cstypes.RoundState

	// parentHeader is the header of height-1, kept to validate the
	// currently proposed block's ParentHash.
	parentHeader *types.Header

	pipeline BlockPipeline
	evpool   evidencePool

	peerMsgQueue     chan msgInfo
	internalMsgQueue chan msgInfo
	timeoutTicker    TimeoutTicker

	wal     WAL
	walPath string
	evsw    *EventSwitch
	metrics *Metrics

	maxEvidenceBytes uint64

	done chan struct{}
}

// StateOption customizes a State at construction time.
type StateOption func(*State)

// WithMetrics overrides the State's default no-op Metrics.
func WithMetrics(m *Metrics) StateOption {
	return func(cs *State) { cs.metrics = m }
}

// WithWAL overrides the State's default no-op WAL.
func WithWAL(wal WAL) StateOption {
	return func(cs *State) { cs.wal = wal }
}

// WithWALFile opens a FileWAL at path and arranges for OnStart to
// replay whatever it holds (catchupReplay) before resuming live
// traffic. A path that fails to open falls back silently to the
// default nilWAL rather than failing construction.
func WithWALFile(path string) StateOption {
	return func(cs *State) {
		wal, err := OpenFileWAL(path)
		if err != nil {
			return
		}
		cs.wal = wal
		cs.walPath = path
	}
}

// WithEventSwitch overrides the State's default fresh EventSwitch.
func WithEventSwitch(evsw *EventSwitch) StateOption {
	return func(cs *State) { cs.evsw = evsw }
}

// WithOwnAddress tells the State which validator address, if any, this
// node signs as. An observer node (no privValidator) omits this option.
func WithOwnAddress(addr common.Address) StateOption {
	return func(cs *State) { cs.ourAddress = addr }
}

// NewState constructs a State ready to drive height from parentHeader
// forward, with validators active at parentHeader's state root.
func NewState(
	cfg *config.ConsensusConfig,
	chainID string,
	parentHeader *types.Header,
	validators *types.ValidatorSet,
	pipeline BlockPipeline,
	evpool evidencePool,
	options ...StateOption,
) *State {
	height := parentHeader.Number + 1
	cs := &State{
		config:           cfg,
		chainID:          chainID,
		parentHeader:     parentHeader,
		pipeline:         pipeline,
		evpool:           evpool,
		peerMsgQueue:     make(chan msgInfo, cfg.PeerMsgQueueSize),
		internalMsgQueue: make(chan msgInfo, cfg.PeerMsgQueueSize),
		timeoutTicker:    NewTimeoutTicker(),
		wal:              nilWAL{},
		evsw:             NewEventSwitch(),
		metrics:          NopMetrics(),
		maxEvidenceBytes: cfg.MaxEvidenceBytes,
		done:             make(chan struct{}),
	}
	cs.RoundState = *cstypes.NewRoundState(height, validators, types.NewHeightVoteSet(chainID, height, validators))

	for _, opt := range options {
		opt(cs)
	}
	cs.BaseService = service.NewBaseService(log.NewNopLogger(), "State", cs)
	return cs
}

func (cs *State) SetLogger(l log.Logger) {
	cs.BaseService.SetLogger(l)
	cs.timeoutTicker.SetLogger(l)
}

// OnStart implements service.Implementation.
func (cs *State) OnStart() error {
	if err := cs.timeoutTicker.Start(); err != nil {
		return err
	}
	if cs.walPath != "" {
		if err := cs.catchupReplay(cs.walPath); err != nil {
			return err
		}
	}
	cs.scheduleRound0()
	go cs.receiveRoutine()
	return nil
}

// catchupReplay re-applies every record a prior run wrote to the WAL at
// path, in order, before OnStart schedules fresh timeouts and starts
// taking new traffic — so a restart after a crash resumes from the same
// height/round/step it was in rather than silently losing whatever
// arrived since the last commit. A corrupt individual record is logged
// and skipped rather than aborting the whole replay.
func (cs *State) catchupReplay(path string) error {
	envs, err := readAllWAL(path)
	if err != nil {
		return fmt.Errorf("consensus: replaying WAL: %w", err)
	}
	for _, env := range envs {
		switch env.Kind {
		case walKindMsg:
			msg, err := DecodeMsg(env.MsgBytes)
			if err != nil {
				cs.Logger.Error("skipping corrupt WAL message record", "err", err)
				continue
			}
			cs.handleMsg(msgInfo{Msg: msg, PeerID: env.PeerID})
		case walKindTimeout:
			cs.handleTimeout(timeoutInfo{
				Duration: time.Duration(env.DurationMs) * time.Millisecond,
				Height:   env.Height,
				Round:    int32(env.Round),
				Step:     env.Step,
			})
		default:
			cs.Logger.Error("skipping WAL record of unknown kind", "kind", env.Kind)
		}
	}
	return nil
}

// OnStop implements service.Implementation.
func (cs *State) OnStop() {
	_ = cs.timeoutTicker.Stop()
	_ = cs.wal.Close()
	close(cs.done)
}

// GetRoundState returns a copy of the current RoundState for inspection
// by the Reactor or tests.
func (cs *State) GetRoundState() cstypes.RoundState {
	cs.mtx.RLock()
	defer cs.mtx.RUnlock()
	return cs.RoundState
}

// EventSwitch exposes the State's event bus so a Reactor can subscribe
// to round-step/vote/lock/commit notifications to drive gossip.
func (cs *State) EventSwitch() *EventSwitch {
	return cs.evsw
}

// ChainID returns the chain identifier votes and proposals are signed
// against, for the Reactor's own message validation.
func (cs *State) ChainID() string {
	return cs.chainID
}

// AddPeerMessage is the Reactor's entry point for an inbound wire
// message "the Reactor demultiplexes inbound wire
// messages and hands them to the State Machine as (peerId, message)
// events". The queue drops the oldest entry (logged, not fatal) when
// full — backpressure policy.
func (cs *State) AddPeerMessage(peerID string, msg Message) {
	cs.enqueue(cs.peerMsgQueue, msgInfo{Msg: msg, PeerID: peerID}, "peer")
}

func (cs *State) sendInternalMessage(mi msgInfo) {
	cs.enqueue(cs.internalMsgQueue, mi, "internal")
}

func (cs *State) enqueue(queue chan msgInfo, mi msgInfo, name string) {
	select {
	case queue <- mi:
	default:
		select {
		case <-queue:
			cs.Logger.Info("dropping oldest queued message to make room", "queue", name)
		default:
		}
		select {
		case queue <- mi:
		default:
			cs.Logger.Info("message queue overflow, dropping", "queue", name)
		}
	}
}

// receiveRoutine is the single cooperative loop consuming events in
// arrival order: peer messages, our own internally-generated messages,
// and fired timeouts.
func (cs *State) receiveRoutine() {
	for {
		var mi msgInfo
		select {
		case mi = <-cs.peerMsgQueue:
			_ = cs.wal.WriteMsg(mi)
			cs.handleMsg(mi)
		case mi = <-cs.internalMsgQueue:
			_ = cs.wal.WriteMsg(mi)
			cs.handleMsg(mi)
		case ti := <-cs.timeoutTicker.Chan():
			_ = cs.wal.WriteTimeout(ti)
			cs.handleTimeout(ti)
		case <-cs.Quit():
			return
		}
	}
}

// handleMsg dispatches one message to the right entry point, under the
// State's lock — the state machine core never runs two transitions
// concurrently.
func (cs *State) handleMsg(mi msgInfo) {
	cs.mtx.Lock()
	defer cs.mtx.Unlock()

	switch m := mi.Msg.(type) {
	case *ProposalMessage:
		if err := cs.setProposal(m.Proposal, mi.PeerID); err != nil {
			cs.Logger.Info("failed to set proposal", "err", err, "peer", mi.PeerID)
		}
	case *ProposalBlockMessage:
		if err := cs.addProposalBlock(m.Block); err != nil {
			cs.Logger.Info("failed to add proposal block", "err", err, "peer", mi.PeerID)
		}
	case *VoteMessage:
		added, err := cs.tryAddVote(m.Vote, mi.PeerID)
		if err != nil {
			cs.Logger.Info("failed to add vote", "err", err, "peer", mi.PeerID)
		} else if added {
			cs.metrics.Votes.Add(1)
			cs.evsw.FireEvent(EventVote, m.Vote)
		}
	default:
		cs.Logger.Info("received unrecognized message type", "type", fmt.Sprintf("%T", m))
	}
}

// handleTimeout applies the Open Question decision recorded in
// DESIGN.md: stepwise, never cascading. A timeout whose (height, round,
// step) no longer matches the current RoundState is stale — it is
// logged and dropped rather than driving whatever step is current.
func (cs *State) handleTimeout(ti timeoutInfo) {
	cs.mtx.Lock()
	defer cs.mtx.Unlock()

	if ti.Height != cs.Height || ti.Round < cs.Round || (ti.Round == cs.Round && ti.Step < cs.Step) {
		cs.Logger.Debug("ignoring stale timeout", "ti", ti, "height", cs.Height, "round", cs.Round)
		return
	}

	switch ti.Step {
	case cstypes.RoundStepNewHeight:
		cs.enterNewRound(ti.Height, 0)
	case cstypes.RoundStepNewRound:
		cs.enterPropose(ti.Height, 0)
	case cstypes.RoundStepPropose:
		cs.evsw.FireEvent(EventTimeoutPropose, ti)
		cs.enterPrevote(ti.Height, ti.Round)
	case cstypes.RoundStepPrevoteWait:
		cs.evsw.FireEvent(EventTimeoutWait, ti)
		cs.enterPrecommit(ti.Height, ti.Round)
	case cstypes.RoundStepPrecommitWait:
		cs.evsw.FireEvent(EventTimeoutWait, ti)
		cs.enterNewRound(ti.Height, ti.Round+1)
	default:
		cs.Logger.Debug("timeout fired for a step with no handler", "step", ti.Step)
	}
}

func (cs *State) scheduleTimeout(duration time.Duration, height uint64, round int32, step cstypes.RoundStepType) {
	cs.timeoutTicker.ScheduleTimeout(timeoutInfo{Duration: duration, Height: height, Round: round, Step: step})
}

// scheduleRound0 schedules the very first NewHeight timeout for the
// State's starting height, so that even an idle chain advances.
func (cs *State) scheduleRound0() {
	now := time.Now()
	cs.scheduleTimeout(cs.StartTime.Sub(now), cs.Height, 0, cstypes.RoundStepNewHeight)
}

func (cs *State) isProposer() bool {
	proposer := cs.Validators.Proposer()
	return proposer != nil && cs.ourAddress != (common.Address{}) && proposer.Address == cs.ourAddress
}

// newStep records the round-step transition in the metrics/event
// surfaces, mirroring cometbft's cs.newStep().
func (cs *State) newStep() {
	cs.metrics.Height.Set(float64(cs.Height))
	cs.metrics.Round.Set(float64(cs.Round))
	cs.metrics.Step.Set(float64(cs.Step))
	cs.evsw.FireEvent(EventNewRoundStep, cs.RoundState)
}
