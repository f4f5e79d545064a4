package consensus

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/reimint/reimint/internal/consensus/cstypes"
	"github.com/reimint/reimint/types"
)

// Message codes for the RLP-framed wire envelope [code, payload].
const (
	NewRoundStepCode    = 0
	NewValidBlockCode   = 1
	HasVoteCode         = 2
	ProposalCode        = 3
	ProposalPOLCode     = 4
	ProposalBlockCode   = 5
	VoteCode            = 6
	VoteSetMaj23Code    = 7
	VoteSetBitsCode     = 8
	GetProposalBlockCode = 9
)

// Message is any consensus wire message that can be demultiplexed by
// the Reactor into a msgInfo for the State's input queue.
type Message interface {
	ValidateBasic() error
}

// NewRoundStepMessage announces a step transition to peers, payload
// "[height, round, step, secondsSinceStartTime, lastCommitRound]".
// Round and LastCommitRound are carried as uint32 on the wire (a direct
// cast of the int32 business value, sentinel -1 included), matching the
// cometbft's defensive cast-to-unsigned convention for every round/index
// field passed to rlp.EncodeToBytes (p2p/p2p.go VoteRaw/ProposalRaw).
type NewRoundStepMessage struct {
	Height                uint64
	Round                 uint32
	Step                  cstypes.RoundStepType
	SecondsSinceStartTime uint64
	LastCommitRound       uint32
}

func (m *NewRoundStepMessage) ValidateBasic() error {
	if m.Step == 0 {
		return fmt.Errorf("consensus: NewRoundStepMessage has zero step")
	}
	return nil
}

// NewValidBlockMessage announces a newly-established valid block,
// payload "[height, round, blockHash, isCommit]". It carries no
// block-parts header: blocks travel whole in ProposalBlockMessage.
type NewValidBlockMessage struct {
	Height    uint64
	Round     uint32
	BlockHash common.Hash
	IsCommit  bool
}

func (m *NewValidBlockMessage) ValidateBasic() error { return nil }

// HasVoteMessage tells peers we have a given vote, payload
// "[height, round, type, index]".
type HasVoteMessage struct {
	Height uint64
	Round  uint32
	Type   types.SignedMsgType
	Index  uint32
}

func (m *HasVoteMessage) ValidateBasic() error {
	if !m.Type.IsVoteType() {
		return fmt.Errorf("consensus: HasVoteMessage carries non-vote type %v", m.Type)
	}
	return nil
}

// ProposalMessage carries a signed Proposal.
type ProposalMessage struct {
	Proposal *types.Proposal
}

func (m *ProposalMessage) ValidateBasic() error {
	if m.Proposal == nil {
		return fmt.Errorf("consensus: ProposalMessage has nil proposal")
	}
	return m.Proposal.ValidatePOLRound()
}

// ProposalPOLMessage informs a peer which validators prevoted for the
// POLRound polka, payload "[height, POLRound, bitArray]".
type ProposalPOLMessage struct {
	Height           uint64
	ProposalPOLRound uint32
	ProposalPOL      []bool
}

func (m *ProposalPOLMessage) ValidateBasic() error { return nil }

// ProposalBlockMessage carries the full block body referenced by a
// Proposal.
type ProposalBlockMessage struct {
	Block *types.Block
}

func (m *ProposalBlockMessage) ValidateBasic() error {
	if m.Block == nil || m.Block.Header == nil {
		return fmt.Errorf("consensus: ProposalBlockMessage has nil block")
	}
	return nil
}

// VoteMessage carries a signed Vote.
type VoteMessage struct {
	Vote *types.Vote
}

func (m *VoteMessage) ValidateBasic() error {
	if m.Vote == nil {
		return fmt.Errorf("consensus: VoteMessage has nil vote")
	}
	if !m.Vote.Type.IsVoteType() {
		return fmt.Errorf("consensus: VoteMessage carries non-vote type %v", m.Vote.Type)
	}
	return nil
}

// VoteSetMaj23Message tells a peer we have observed a +2/3 majority for
// blockHash, payload "[height, round, type, blockHash]".
type VoteSetMaj23Message struct {
	Height    uint64
	Round     uint32
	Type      types.SignedMsgType
	BlockHash common.Hash
}

func (m *VoteSetMaj23Message) ValidateBasic() error {
	if !m.Type.IsVoteType() {
		return fmt.Errorf("consensus: VoteSetMaj23Message carries non-vote type %v", m.Type)
	}
	return nil
}

// VoteSetBitsMessage answers a VoteSetMaj23Message claim with our own
// bit array for (height, round, type, blockHash).
type VoteSetBitsMessage struct {
	Height    uint64
	Round     uint32
	Type      types.SignedMsgType
	BlockHash common.Hash
	Votes     []bool
}

func (m *VoteSetBitsMessage) ValidateBasic() error {
	if !m.Type.IsVoteType() {
		return fmt.Errorf("consensus: VoteSetBitsMessage carries non-vote type %v", m.Type)
	}
	return nil
}

// GetProposalBlockMessage requests the full block body for blockHash.
type GetProposalBlockMessage struct {
	BlockHash common.Hash
}

func (m *GetProposalBlockMessage) ValidateBasic() error { return nil }

// envelope is the RLP wire shape "[code, payload]" every message is
// framed in.
type envelope struct {
	Code    uint8
	Payload []byte
}

// EncodeMsg frames msg into its RLP wire envelope.
func EncodeMsg(msg Message) ([]byte, error) {
	code, err := codeForMessage(msg)
	if err != nil {
		return nil, err
	}
	payload, err := rlp.EncodeToBytes(msg)
	if err != nil {
		return nil, err
	}
	return rlp.EncodeToBytes(&envelope{Code: code, Payload: payload})
}

func codeForMessage(msg Message) (uint8, error) {
	switch msg.(type) {
	case *NewRoundStepMessage:
		return NewRoundStepCode, nil
	case *NewValidBlockMessage:
		return NewValidBlockCode, nil
	case *HasVoteMessage:
		return HasVoteCode, nil
	case *ProposalMessage:
		return ProposalCode, nil
	case *ProposalPOLMessage:
		return ProposalPOLCode, nil
	case *ProposalBlockMessage:
		return ProposalBlockCode, nil
	case *VoteMessage:
		return VoteCode, nil
	case *VoteSetMaj23Message:
		return VoteSetMaj23Code, nil
	case *VoteSetBitsMessage:
		return VoteSetBitsCode, nil
	case *GetProposalBlockMessage:
		return GetProposalBlockCode, nil
	default:
		return 0, fmt.Errorf("consensus: unknown message type %T", msg)
	}
}

// DecodeMsg unwraps an RLP wire envelope into its concrete Message type.
func DecodeMsg(bz []byte) (Message, error) {
	var env envelope
	if err := rlp.DecodeBytes(bz, &env); err != nil {
		return nil, err
	}

	var msg Message
	switch env.Code {
	case NewRoundStepCode:
		msg = &NewRoundStepMessage{}
	case NewValidBlockCode:
		msg = &NewValidBlockMessage{}
	case HasVoteCode:
		msg = &HasVoteMessage{}
	case ProposalCode:
		msg = &ProposalMessage{}
	case ProposalPOLCode:
		msg = &ProposalPOLMessage{}
	case ProposalBlockCode:
		msg = &ProposalBlockMessage{}
	case VoteCode:
		msg = &VoteMessage{}
	case VoteSetMaj23Code:
		msg = &VoteSetMaj23Message{}
	case VoteSetBitsCode:
		msg = &VoteSetBitsMessage{}
	case GetProposalBlockCode:
		msg = &GetProposalBlockMessage{}
	default:
		return nil, ErrConsensusMessageNotRecognized{Code: env.Code}
	}

	if err := rlp.DecodeBytes(env.Payload, msg); err != nil {
		return nil, err
	}
	if err := msg.ValidateBasic(); err != nil {
		return nil, err
	}
	return msg, nil
}
