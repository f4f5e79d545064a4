package types

import (
	"bytes"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	rcrypto "github.com/reimint/reimint/crypto"
)

// SignedMsgType identifies what a signature over a canonical vote
// encoding actually authenticates. Proposal (32) is only ever used to
// derive a Proposal's signing bytes — it is never stored in a VoteSet.
type SignedMsgType byte

const (
	PrevoteType   SignedMsgType = 1
	PrecommitType SignedMsgType = 2
	ProposalType  SignedMsgType = 32
)

func (t SignedMsgType) IsVoteType() bool {
	return t == PrevoteType || t == PrecommitType
}

func (t SignedMsgType) String() string {
	switch t {
	case PrevoteType:
		return "Prevote"
	case PrecommitType:
		return "Precommit"
	case ProposalType:
		return "Proposal"
	default:
		return fmt.Sprintf("UnknownMsgType(%d)", t)
	}
}

// ZeroHash is the canonical "nil" block hash used by a vote that does
// not commit to any block.
var ZeroHash common.Hash

// Vote is a single signed ballot.
type Vote struct {
	Type             SignedMsgType
	Height           uint64
	Round            int32
	BlockHash        common.Hash
	Timestamp        uint64
	ValidatorIndex   int32
	ValidatorAddress common.Address
	Signature        []byte
}

// canonicalVote is the RLP shape signed over: "Vote signing
// bytes (canonical): RLP([chainId, type, height, round, blockHash,
// timestamp])". Round is carried as uint32 (cometbft's p2p.go casts
// every round/index field to an unsigned wire type before handing it to
// rlp.EncodeToBytes, regardless of sign) even though a Vote's Round is
// never negative.
type canonicalVote struct {
	ChainID   string
	Type      byte
	Height    uint64
	Round     uint32
	BlockHash common.Hash
	Timestamp uint64
}

// SignBytes returns the canonical RLP encoding this vote's signature
// must cover.
func (v *Vote) SignBytes(chainID string) ([]byte, error) {
	return rlp.EncodeToBytes(&canonicalVote{
		ChainID:   chainID,
		Type:      byte(v.Type),
		Height:    v.Height,
		Round:     uint32(v.Round),
		BlockHash: v.BlockHash,
		Timestamp: v.Timestamp,
	})
}

// voteRLP is the wire shape of a Vote: identical fields, Round and
// ValidatorIndex narrowed to uint32 for transport, matching the
// cometbft's VoteRaw (p2p/p2p.go).
type voteRLP struct {
	Type             byte
	Height           uint64
	Round            uint32
	BlockHash        common.Hash
	Timestamp        uint64
	ValidatorIndex   uint32
	ValidatorAddress common.Address
	Signature        []byte
}

// EncodeRLP implements rlp.Encoder.
func (v *Vote) EncodeRLP(w io.Writer) error {
	return rlp.Encode(w, &voteRLP{
		Type:             byte(v.Type),
		Height:           v.Height,
		Round:            uint32(v.Round),
		BlockHash:        v.BlockHash,
		Timestamp:        v.Timestamp,
		ValidatorIndex:   uint32(v.ValidatorIndex),
		ValidatorAddress: v.ValidatorAddress,
		Signature:        v.Signature,
	})
}

// DecodeRLP implements rlp.Decoder.
func (v *Vote) DecodeRLP(s *rlp.Stream) error {
	var w voteRLP
	if err := s.Decode(&w); err != nil {
		return err
	}
	v.Type = SignedMsgType(w.Type)
	v.Height = w.Height
	v.Round = int32(w.Round)
	v.BlockHash = w.BlockHash
	v.Timestamp = w.Timestamp
	v.ValidatorIndex = int32(w.ValidatorIndex)
	v.ValidatorAddress = w.ValidatorAddress
	v.Signature = w.Signature
	return nil
}

// Sign fills in Signature and ValidatorAddress from priv.
func (v *Vote) Sign(chainID string, priv rcrypto.PrivKey) error {
	bz, err := v.SignBytes(chainID)
	if err != nil {
		return err
	}
	sig, err := priv.Sign(bz)
	if err != nil {
		return err
	}
	v.Signature = sig
	v.ValidatorAddress = priv.Address()
	return nil
}

// Verify checks v.Signature recovers to the given validator address over
// the canonical signing bytes.
func (v *Vote) Verify(chainID string, addr common.Address) error {
	bz, err := v.SignBytes(chainID)
	if err != nil {
		return err
	}
	recovered, err := rcrypto.RecoverAddress(bz, v.Signature)
	if err != nil {
		return fmt.Errorf("vote: recovering signer: %w", err)
	}
	if recovered != addr {
		return ErrInvalidVoteSignature
	}
	return nil
}

// IsNil reports whether the vote commits to no block.
func (v *Vote) IsNil() bool {
	return v.BlockHash == ZeroHash
}

// Copy returns a shallow copy (Signature is reused, never mutated after
// signing).
func (v *Vote) Copy() *Vote {
	cp := *v
	return &cp
}

func (v *Vote) String() string {
	blockHash := "nil"
	if !v.IsNil() {
		blockHash = v.BlockHash.Hex()
	}
	return fmt.Sprintf("Vote{%d/%02d/%v %s %s}", v.Height, v.Round, v.Type, blockHash, v.ValidatorAddress.Hex())
}

// SameBlock reports whether two votes from the same (height, round,
// type) commit to the same block, used by the duplicate-vote check.
func (v *Vote) SameBlock(other *Vote) bool {
	return v.BlockHash == other.BlockHash
}

// CanonicalOrder returns (a, b) ordered so that a.BlockHash < b.BlockHash
// byte-wise, matching evidence canonical order.
func CanonicalOrder(v1, v2 *Vote) (*Vote, *Vote) {
	if bytes.Compare(v1.BlockHash[:], v2.BlockHash[:]) <= 0 {
		return v1, v2
	}
	return v2, v1
}
