// Package privval implements the node's own signer: a file-backed
// private key plus double-sign protection, grounded on cometbft
// pack's FilePV (1170300606-obrs/privval/file.go), adapted from its
// threshold-BLS validator key to the secp256k1/Keccak signer used
// throughout this module and extended with the LastSignState check that
// file.go's simplified version omitted.
package privval

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"

	rcrypto "github.com/reimint/reimint/crypto"
	"github.com/reimint/reimint/internal/consensus/cstypes"
	"github.com/reimint/reimint/libs/tempfile"
	"github.com/reimint/reimint/types"
)

// FilePVKey is the immutable part of a FilePV: the key material,
// persisted as JSON.
type FilePVKey struct {
	Address common.Address `json:"address"`
	PrivKey []byte         `json:"priv_key"`

	filePath string
}

// Save atomically writes pvKey to its keyFilePath.
func (k FilePVKey) Save() error {
	if k.filePath == "" {
		return fmt.Errorf("privval: cannot save key, file path not set")
	}
	bz, err := json.MarshalIndent(k, "", "  ")
	if err != nil {
		return err
	}
	return tempfile.WriteFileAtomic(k.filePath, bz, 0600)
}

// lastSignState is the mutable double-sign-protection bookkeeping,
// persisted separately from the key so a crash mid-sign never loses the
// key material.
type lastSignState struct {
	Height    uint64                `json:"height"`
	Round     int32                 `json:"round"`
	Step      cstypes.RoundStepType `json:"step"`
	Signature []byte                `json:"signature,omitempty"`
	SignBytes []byte                `json:"sign_bytes,omitempty"`

	filePath string
}

func (s lastSignState) save() error {
	if s.filePath == "" {
		return nil
	}
	bz, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return tempfile.WriteFileAtomic(s.filePath, bz, 0600)
}

// ErrDoubleSign is returned when asked to sign something that
// contradicts what was already signed for an (height, round, step).
var ErrDoubleSign = fmt.Errorf("privval: would double-sign at this (height, round, step)")

// FilePV implements vote/proposal signing with crash-safe double-sign
// protection: it refuses to re-sign a different vote/proposal for an
// (height, round, step) it has already signed ("if
// a.validator = self suppress" depends on this never happening for our
// own key).
type FilePV struct {
	Key           FilePVKey
	LastSignState lastSignState
}

// GenFilePV generates a new validator key, unsaved.
func GenFilePV(keyFilePath, stateFilePath string) (*FilePV, error) {
	priv, err := rcrypto.GenPrivKey()
	if err != nil {
		return nil, err
	}
	return NewFilePV(priv, keyFilePath, stateFilePath), nil
}

// NewFilePV wraps an existing key.
func NewFilePV(priv rcrypto.PrivKey, keyFilePath, stateFilePath string) *FilePV {
	return &FilePV{
		Key: FilePVKey{
			Address:  priv.Address(),
			PrivKey:  priv.Bytes(),
			filePath: keyFilePath,
		},
		LastSignState: lastSignState{Height: 0, Round: -1, Step: 0, filePath: stateFilePath},
	}
}

// LoadFilePV reads an existing key and its last-sign-state from disk.
func LoadFilePV(keyFilePath, stateFilePath string) (*FilePV, error) {
	keyBz, err := os.ReadFile(keyFilePath)
	if err != nil {
		return nil, fmt.Errorf("privval: reading key file: %w", err)
	}
	var key FilePVKey
	if err := json.Unmarshal(keyBz, &key); err != nil {
		return nil, fmt.Errorf("privval: parsing key file: %w", err)
	}
	key.filePath = keyFilePath

	state := lastSignState{Round: -1, filePath: stateFilePath}
	if stateBz, err := os.ReadFile(stateFilePath); err == nil {
		if err := json.Unmarshal(stateBz, &state); err != nil {
			return nil, fmt.Errorf("privval: parsing state file: %w", err)
		}
		state.filePath = stateFilePath
	}

	return &FilePV{Key: key, LastSignState: state}, nil
}

// LoadOrGenFilePV loads an existing key, or generates and persists a new
// one if keyFilePath does not exist.
func LoadOrGenFilePV(keyFilePath, stateFilePath string) (*FilePV, error) {
	if _, err := os.Stat(keyFilePath); err == nil {
		return LoadFilePV(keyFilePath, stateFilePath)
	}
	pv, err := GenFilePV(keyFilePath, stateFilePath)
	if err != nil {
		return nil, err
	}
	if err := pv.Save(); err != nil {
		return nil, err
	}
	return pv, nil
}

func (pv *FilePV) privKey() (rcrypto.PrivKey, error) {
	return rcrypto.PrivKeyFromBytes(pv.Key.PrivKey)
}

// Address returns the validator address.
func (pv *FilePV) Address() common.Address {
	return pv.Key.Address
}

// Save persists both the key and the last-sign-state.
func (pv *FilePV) Save() error {
	if err := pv.Key.Save(); err != nil {
		return err
	}
	return pv.LastSignState.save()
}

// SignVote signs v in place, refusing to produce a conflicting signature
// for an (height, round, step) already signed.
func (pv *FilePV) SignVote(chainID string, v *types.Vote, step cstypes.RoundStepType) error {
	signBytes, err := v.SignBytes(chainID)
	if err != nil {
		return err
	}

	if err := pv.checkHRS(v.Height, v.Round, step, signBytes); err != nil {
		return err
	}

	priv, err := pv.privKey()
	if err != nil {
		return err
	}
	if err := v.Sign(chainID, priv); err != nil {
		return err
	}

	pv.LastSignState.Height = v.Height
	pv.LastSignState.Round = v.Round
	pv.LastSignState.Step = step
	pv.LastSignState.Signature = v.Signature
	pv.LastSignState.SignBytes = signBytes
	return pv.LastSignState.save()
}

// SignProposal signs p in place under the same double-sign protection as
// SignVote, keyed at step Propose.
func (pv *FilePV) SignProposal(chainID string, p *types.Proposal) error {
	signBytes, err := p.SignBytes(chainID)
	if err != nil {
		return err
	}

	if err := pv.checkHRS(p.Height, p.Round, cstypes.RoundStepPropose, signBytes); err != nil {
		return err
	}

	priv, err := pv.privKey()
	if err != nil {
		return err
	}
	if err := p.Sign(chainID, priv); err != nil {
		return err
	}

	pv.LastSignState.Height = p.Height
	pv.LastSignState.Round = p.Round
	pv.LastSignState.Step = cstypes.RoundStepPropose
	pv.LastSignState.Signature = p.Signature
	pv.LastSignState.SignBytes = signBytes
	return pv.LastSignState.save()
}

// checkHRS enforces that we never sign something at an earlier
// (height, round, step) than what we already signed, and that signing
// the identical (height, round, step) again only succeeds if the bytes
// are byte-identical to what we signed before (a safe replay, e.g. after
// a crash), never a conflicting message.
func (pv *FilePV) checkHRS(height uint64, round int32, step cstypes.RoundStepType, signBytes []byte) error {
	last := pv.LastSignState
	if height < last.Height {
		return ErrDoubleSign
	}
	if height == last.Height {
		if round < last.Round {
			return ErrDoubleSign
		}
		if round == last.Round && step < last.Step {
			return ErrDoubleSign
		}
		if round == last.Round && step == last.Step {
			if last.SignBytes != nil && !bytesEqual(last.SignBytes, signBytes) {
				return ErrDoubleSign
			}
		}
	}
	return nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (pv *FilePV) String() string {
	return fmt.Sprintf("FilePV{%s}", pv.Address().Hex())
}
