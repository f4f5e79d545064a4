// Package evidence implements the Evidence Pool: detection, persistence
// and retrieval of duplicate-vote evidence.
package evidence

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/reimint/reimint/libs/log"
	rsync "github.com/reimint/reimint/libs/sync"
	"github.com/reimint/reimint/types"
)

// key prefixes partitioning pending vs. committed evidence.
const (
	prefixPending   = byte(0x01)
	prefixCommitted = byte(0x02)
)

// ValidatorSetSource is the narrow read-only dependency the pool needs
// to verify evidence against the validator set active at the evidence's
// height, without taking on a dependency on the full block pipeline.
type ValidatorSetSource interface {
	GetValidatorSetAtHeight(height uint64) (*types.ValidatorSet, error)
}

// Pool detects, verifies, persists and serves duplicate-vote evidence.
// Reads come from the state machine, adds from network handlers, and
// update/pendingEvidence calls come from the block pipeline on commit;
// all of it serializes through a single mutex (modelled here as an
// internal lock rather than a separate queue/goroutine, since goleveldb
// is already safe for concurrent access and the pool's own invariants
// only need mutual exclusion, not ordering).
type Pool struct {
	mtx rsync.Mutex

	logger log.Logger
	db     *leveldb.DB
	vals   ValidatorSetSource
	chainID string

	maxAgeNumBlocks uint64
	maxBytes        uint64

	height uint64
}

// NewPool opens (or creates) a goleveldb-backed evidence store at dir.
func NewPool(dir string, chainID string, vals ValidatorSetSource, maxAgeNumBlocks, maxBytes uint64) (*Pool, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("evidence: opening store: %w", err)
	}
	return &Pool{
		logger:          log.NewNopLogger(),
		db:              db,
		vals:            vals,
		chainID:         chainID,
		maxAgeNumBlocks: maxAgeNumBlocks,
		maxBytes:        maxBytes,
	}, nil
}

func (p *Pool) SetLogger(l log.Logger) { p.logger = l }

func (p *Pool) Close() error {
	return p.db.Close()
}

func pendingKey(height uint64, hash common.Hash) []byte {
	return dbKey(prefixPending, height, hash)
}

func committedKey(height uint64, hash common.Hash) []byte {
	return dbKey(prefixCommitted, height, hash)
}

func dbKey(prefix byte, height uint64, hash common.Hash) []byte {
	key := make([]byte, 1+8+common.HashLength)
	key[0] = prefix
	binary.BigEndian.PutUint64(key[1:9], height)
	copy(key[9:], hash[:])
	return key
}

// AddEvidence verifies ev against the validator set at ev.Height() and,
// on success, persists it under the pending prefix.
func (p *Pool) AddEvidence(ev *types.DuplicateVoteEvidence) error {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	if err := p.verifyLocked(ev); err != nil {
		return err
	}

	hash, err := ev.Hash()
	if err != nil {
		return err
	}
	key := pendingKey(ev.Height(), hash)

	if ok, err := p.db.Has(committedKey(ev.Height(), hash), nil); err != nil {
		return err
	} else if ok {
		return &ErrEvidenceAlreadyCommitted{Hash: hash}
	}

	bz, err := ev.Bytes()
	if err != nil {
		return err
	}
	if err := p.db.Put(key, bz, nil); err != nil {
		return fmt.Errorf("evidence: persisting: %w", err)
	}
	p.logger.Info("added evidence to pool", "height", ev.Height(), "validator", ev.ValidatorAddress().Hex())
	return nil
}

func (p *Pool) verifyLocked(ev *types.DuplicateVoteEvidence) error {
	vs, err := p.vals.GetValidatorSetAtHeight(ev.Height())
	if err != nil {
		return &ErrInvalidEvidence{Reason: err.Error()}
	}
	addr := ev.ValidatorAddress()
	if vs.GetIndexByAddress(addr) < 0 {
		return &ErrAddressNotValidatorAtHeight{Address: addr, Height: ev.Height()}
	}
	if err := ev.Verify(p.chainID, addr); err != nil {
		return &ErrInvalidEvidence{Reason: err.Error()}
	}
	return nil
}

// CheckEvidence validates a batch of evidence (e.g. received embedded in
// a proposed block): every entry must verify and none may be older than
// maxAgeNumBlocks or already committed.
func (p *Pool) CheckEvidence(list []*types.DuplicateVoteEvidence, currentHeight uint64) error {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	for _, ev := range list {
		if err := p.verifyLocked(ev); err != nil {
			return err
		}
		if currentHeight > p.maxAgeNumBlocks && ev.Height() < currentHeight-p.maxAgeNumBlocks {
			return &ErrEvidenceTooOld{Height: ev.Height(), MaxHeight: currentHeight - p.maxAgeNumBlocks}
		}
		hash, err := ev.Hash()
		if err != nil {
			return err
		}
		if ok, err := p.db.Has(committedKey(ev.Height(), hash), nil); err != nil {
			return err
		} else if ok {
			return &ErrEvidenceAlreadyCommitted{Hash: hash}
		}
	}
	return nil
}

// PendingEvidence returns a size-bounded list of not-yet-committed
// evidence for inclusion in the next proposed block.
func (p *Pool) PendingEvidence(maxBytes uint64) ([]*types.DuplicateVoteEvidence, error) {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	iter := p.db.NewIterator(util.BytesPrefix([]byte{prefixPending}), nil)
	defer iter.Release()

	var out []*types.DuplicateVoteEvidence
	var used uint64
	for iter.Next() {
		val := iter.Value()
		if used+uint64(len(val)) > maxBytes {
			break
		}
		var wire evidenceWireForDecode
		if err := rlp.DecodeBytes(val, &wire); err != nil {
			return nil, err
		}
		out = append(out, &types.DuplicateVoteEvidence{VoteA: wire.VoteA, VoteB: wire.VoteB})
		used += uint64(len(val))
	}
	return out, iter.Error()
}

// Update marks committedEvidence as committed (moving it out of the
// pending set) and prunes anything older than maxAgeNumBlocks relative
// to height.
func (p *Pool) Update(committedEvidence []*types.DuplicateVoteEvidence, height uint64) error {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	p.height = height

	batch := new(leveldb.Batch)
	for _, ev := range committedEvidence {
		hash, err := ev.Hash()
		if err != nil {
			return err
		}
		bz, err := ev.Bytes()
		if err != nil {
			return err
		}
		batch.Delete(pendingKey(ev.Height(), hash))
		batch.Put(committedKey(ev.Height(), hash), bz)
	}

	if height > p.maxAgeNumBlocks {
		minHeight := height - p.maxAgeNumBlocks
		iter := p.db.NewIterator(util.BytesPrefix([]byte{prefixPending}), nil)
		for iter.Next() {
			key := iter.Key()
			h := binary.BigEndian.Uint64(key[1:9])
			if h < minHeight {
				dup := make([]byte, len(key))
				copy(dup, key)
				batch.Delete(dup)
			}
		}
		iter.Release()
		if err := iter.Error(); err != nil {
			return err
		}
	}

	return p.db.Write(batch, nil)
}

// evidenceWireForDecode mirrors types' private evidenceRLP shape
// ([kind, voteA, voteB]) so the pool can decode what it persisted
// without types exporting its wire-internal struct.
type evidenceWireForDecode struct {
	Kind  uint8
	VoteA *types.Vote
	VoteB *types.Vote
}
