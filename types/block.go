package types

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// ExtraVanityLength is the number of reserved "vanity" bytes at the
// front of Header.ExtraData.
const ExtraVanityLength = 32

// Header is the Reimint block header. It embeds the usual
// Ethereum-style chain-linking fields plus an ExtraData blob carrying
// the consensus seal (round, commitRound, POLRound, evidence, proposal,
// commit).
type Header struct {
	ParentHash  common.Hash
	Number      uint64
	StateRoot   common.Hash
	TxHash      common.Hash
	ReceiptHash common.Hash
	Time        uint64
	Coinbase    common.Address
	ExtraData   []byte
}

// Block pairs a Header with its transaction list. Transactions are
// opaque here — parsing/executing them is the execchain collaborator's
// job, not this package's.
type Block struct {
	Header *Header
	Txs    [][]byte
}

// ExtraData is the decoded form of Header.ExtraData[32:]:
// RLP([round, commitRound, POLRound, [ev1,...], proposal,
// [commitBitmap, [sig1,...]]]).
type ExtraData struct {
	Round       int32
	CommitRound int32
	POLRound    int32
	Evidence    []*DuplicateVoteEvidence
	Proposal    *Proposal
	Commit      *Commit
}

type extraDataRLP struct {
	Round        uint32
	CommitRound  uint32
	POLRound     uint32
	Evidence     []*evidenceRLP
	Proposal     *Proposal `rlp:"nil"`
	CommitBitmap []bool
	Signatures   [][]byte
}

// EncodeExtraData packs ExtraData into the bytes stored after the
// 32-byte vanity prefix in Header.ExtraData.
func EncodeExtraData(ed *ExtraData) ([]byte, error) {
	wire := &extraDataRLP{
		Round:       uint32(ed.Round),
		CommitRound: uint32(ed.CommitRound),
		POLRound:    uint32(ed.POLRound),
	}
	for _, ev := range ed.Evidence {
		wire.Evidence = append(wire.Evidence, &evidenceRLP{
			Kind:  duplicateVoteEvidenceKind,
			VoteA: ev.VoteA,
			VoteB: ev.VoteB,
		})
	}
	wire.Proposal = ed.Proposal
	if ed.Commit != nil {
		wire.CommitBitmap = ed.Commit.Bitmap
		wire.Signatures = ed.Commit.Signatures
	}
	return rlp.EncodeToBytes(wire)
}

// DecodeExtraData unpacks the bytes following the vanity prefix into an
// ExtraData.
func DecodeExtraData(bz []byte) (*ExtraData, error) {
	var wire extraDataRLP
	if err := rlp.DecodeBytes(bz, &wire); err != nil {
		return nil, err
	}
	ed := &ExtraData{
		Round:       int32(wire.Round),
		CommitRound: int32(wire.CommitRound),
		POLRound:    int32(wire.POLRound),
		Proposal:    wire.Proposal,
	}
	for _, ev := range wire.Evidence {
		ed.Evidence = append(ed.Evidence, &DuplicateVoteEvidence{VoteA: ev.VoteA, VoteB: ev.VoteB})
	}
	if wire.CommitBitmap != nil {
		ed.Commit = &Commit{Bitmap: wire.CommitBitmap, Signatures: wire.Signatures}
	}
	return ed, nil
}

// SetExtraData encodes ed and installs it into header, preserving the
// first ExtraVanityLength bytes already present (padding with zeros if
// header.ExtraData is shorter than the vanity prefix).
func (h *Header) SetExtraData(ed *ExtraData) error {
	payload, err := EncodeExtraData(ed)
	if err != nil {
		return err
	}
	vanity := make([]byte, ExtraVanityLength)
	if len(h.ExtraData) >= ExtraVanityLength {
		copy(vanity, h.ExtraData[:ExtraVanityLength])
	}
	h.ExtraData = append(vanity, payload...)
	return nil
}

// DecodeExtraData decodes the consensus seal out of h.ExtraData.
func (h *Header) DecodeExtraData() (*ExtraData, error) {
	if len(h.ExtraData) < ExtraVanityLength {
		return nil, fmt.Errorf("types: header extraData shorter than vanity prefix")
	}
	return DecodeExtraData(h.ExtraData[ExtraVanityLength:])
}

// sealHashHeader is the RLP shape hashed for the block identity: it
// replaces ExtraData with the vanity prefix concatenated with the
// keccak256 of each evidence entry, so that votes and the proposal do
// not affect the hash — only the evidence set does (// Testable Property 8).
type sealHashHeader struct {
	ParentHash  common.Hash
	Number      uint64
	StateRoot   common.Hash
	TxHash      common.Hash
	ReceiptHash common.Hash
	Time        uint64
	Coinbase    common.Address
	ExtraData   []byte
}

// Hash computes the block hash: keccak256(RLP(header')) where
// header'.ExtraData is the vanity prefix followed by the keccak256 of
// each evidence entry in order. Two headers differing only in their
// commit votes or proposal, but agreeing on evidence, hash identically.
func (h *Header) Hash() (common.Hash, error) {
	ed, err := h.DecodeExtraData()
	if err != nil {
		return common.Hash{}, err
	}

	vanity := make([]byte, ExtraVanityLength)
	if len(h.ExtraData) >= ExtraVanityLength {
		copy(vanity, h.ExtraData[:ExtraVanityLength])
	}
	sealExtra := make([]byte, len(vanity))
	copy(sealExtra, vanity)
	for _, ev := range ed.Evidence {
		evHash, err := ev.Hash()
		if err != nil {
			return common.Hash{}, err
		}
		sealExtra = append(sealExtra, evHash[:]...)
	}

	sh := &sealHashHeader{
		ParentHash:  h.ParentHash,
		Number:      h.Number,
		StateRoot:   h.StateRoot,
		TxHash:      h.TxHash,
		ReceiptHash: h.ReceiptHash,
		Time:        h.Time,
		Coinbase:    h.Coinbase,
		ExtraData:   sealExtra,
	}
	bz, err := rlp.EncodeToBytes(sh)
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(bz), nil
}

func (b *Block) Hash() (common.Hash, error) {
	return b.Header.Hash()
}

func (h *Header) String() string {
	return fmt.Sprintf("Header{#%d parent=%s}", h.Number, h.ParentHash.Hex())
}
