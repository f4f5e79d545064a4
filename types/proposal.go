package types

import (
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	rcrypto "github.com/reimint/reimint/crypto"
)

// NoPOLRound is the sentinel value of Proposal.POLRound meaning "no
// prior polka justifies this proposal".
const NoPOLRound = -1

// Proposal is the proposer's signed claim that a given block should be
// decided at (Height, Round).
type Proposal struct {
	Height    uint64
	Round     int32
	POLRound  int32
	BlockHash common.Hash
	Timestamp uint64
	Signature []byte
}

// canonicalProposal carries Round and POLRound as uint32 on the wire.
// POLRound's sentinel -1 round-trips as the bit pattern 0xFFFFFFFF (a
// direct cast, not an offset), matching cometbft's ProposalRaw/
// ProposalForSign (p2p/p2p.go, consensus/proposal.go) which cast
// `uint32(p.POLRound)` without ever rejecting the negative value.
type canonicalProposal struct {
	ChainID   string
	Type      byte
	Height    uint64
	Round     uint32
	POLRound  uint32
	BlockHash common.Hash
	Timestamp uint64
}

// SignBytes returns the canonical RLP encoding this proposal's signature
// must cover: RLP([chainId, 32, height, round, POLRound, blockHash,
// timestamp]).
func (p *Proposal) SignBytes(chainID string) ([]byte, error) {
	return rlp.EncodeToBytes(&canonicalProposal{
		ChainID:   chainID,
		Type:      byte(ProposalType),
		Height:    p.Height,
		Round:     uint32(p.Round),
		POLRound:  uint32(p.POLRound),
		BlockHash: p.BlockHash,
		Timestamp: p.Timestamp,
	})
}

// proposalRLP is the wire shape of a Proposal.
type proposalRLP struct {
	Height    uint64
	Round     uint32
	POLRound  uint32
	BlockHash common.Hash
	Timestamp uint64
	Signature []byte
}

// EncodeRLP implements rlp.Encoder.
func (p *Proposal) EncodeRLP(w io.Writer) error {
	return rlp.Encode(w, &proposalRLP{
		Height:    p.Height,
		Round:     uint32(p.Round),
		POLRound:  uint32(p.POLRound),
		BlockHash: p.BlockHash,
		Timestamp: p.Timestamp,
		Signature: p.Signature,
	})
}

// DecodeRLP implements rlp.Decoder.
func (p *Proposal) DecodeRLP(s *rlp.Stream) error {
	var w proposalRLP
	if err := s.Decode(&w); err != nil {
		return err
	}
	p.Height = w.Height
	p.Round = int32(w.Round)
	p.POLRound = int32(w.POLRound)
	p.BlockHash = w.BlockHash
	p.Timestamp = w.Timestamp
	p.Signature = w.Signature
	return nil
}

// ValidatePOLRound checks POLRound lies in {-1} ∪ [0, Round-1].
func (p *Proposal) ValidatePOLRound() error {
	if p.POLRound == NoPOLRound {
		return nil
	}
	if p.POLRound < 0 || p.POLRound >= p.Round {
		return ErrInvalidProposalPOLRound
	}
	return nil
}

// Sign fills in Signature from priv.
func (p *Proposal) Sign(chainID string, priv rcrypto.PrivKey) error {
	bz, err := p.SignBytes(chainID)
	if err != nil {
		return err
	}
	sig, err := priv.Sign(bz)
	if err != nil {
		return err
	}
	p.Signature = sig
	return nil
}

// ValidateSignature recovers the signer of p and checks it equals
// proposer's address.
func (p *Proposal) ValidateSignature(chainID string, proposer *Validator) error {
	bz, err := p.SignBytes(chainID)
	if err != nil {
		return err
	}
	recovered, err := rcrypto.RecoverAddress(bz, p.Signature)
	if err != nil {
		return fmt.Errorf("proposal: recovering signer: %w", err)
	}
	if recovered != proposer.Address {
		return ErrInvalidProposalSignature
	}
	return nil
}

func (p *Proposal) String() string {
	return fmt.Sprintf("Proposal{%d/%02d (POL %d) %s}", p.Height, p.Round, p.POLRound, p.BlockHash.Hex())
}
