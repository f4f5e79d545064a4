package consensus

import (
	"github.com/ethereum/go-ethereum/common"

	rsync "github.com/reimint/reimint/libs/sync"
)

// EventSwitch is a minimal synchronous publish-subscribe bus used by
// State to announce round-step transitions, votes, valid-block changes
// and locks, grounded on cometbft's cmtevents.EventSwitch
// (FireEvent/AddListener call sites in internal/consensus/state.go),
// rebuilt here since cometbft's libs/events package itself was
// pruned from the retrieved pack. Deliberately synchronous and
// in-process: the RPC/websocket surface that would consume these
// events externally is an explicit non-goal.
type EventSwitch struct {
	mtx       rsync.Mutex
	listeners map[string][]func(data interface{})
}

// NewEventSwitch constructs an empty EventSwitch.
func NewEventSwitch() *EventSwitch {
	return &EventSwitch{listeners: make(map[string][]func(data interface{}))}
}

// AddListener registers fn to be called, in registration order, every
// time event is fired.
func (evsw *EventSwitch) AddListener(event string, fn func(data interface{})) {
	evsw.mtx.Lock()
	defer evsw.mtx.Unlock()
	evsw.listeners[event] = append(evsw.listeners[event], fn)
}

// FireEvent synchronously calls every listener registered for event.
func (evsw *EventSwitch) FireEvent(event string, data interface{}) {
	evsw.mtx.Lock()
	fns := append([]func(data interface{}){}, evsw.listeners[event]...)
	evsw.mtx.Unlock()
	for _, fn := range fns {
		fn(data)
	}
}

// Event name constants, mirroring cometbft's types.Event* constants
// referenced from internal/consensus/state.go.
const (
	EventNewRoundStep       = "NewRoundStep"
	EventVote               = "Vote"
	EventValidBlock         = "ValidBlock"
	EventLock               = "Lock"
	EventRelock             = "Relock"
	EventPolka              = "Polka"
	EventProposalBlock      = "ProposalBlock"
	EventCommit             = "Commit"
	EventTimeoutPropose     = "TimeoutPropose"
	EventTimeoutWait        = "TimeoutWait"

	// EventRequestProposalBlock is fired when the State has a proposal's
	// blockHash but not yet its body, so the Reactor can ask the
	// originating peer for it (getProposalBlock event).
	EventRequestProposalBlock = "RequestProposalBlock"
)

// RequestProposalBlockData is the payload of EventRequestProposalBlock.
type RequestProposalBlockData struct {
	PeerID    string
	BlockHash common.Hash
}
