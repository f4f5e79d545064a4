// Package blockchain implements the canonical chain storage layer and
// Pipeline, the concrete implementation of the narrow BlockPipeline
// interface that internal/consensus declares. Keeping the interface on
// the consensus side breaks the otherwise cyclic import between the
// state machine and the block pipeline.
package blockchain

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/syndtr/goleveldb/leveldb"

	rsync "github.com/reimint/reimint/libs/sync"
	"github.com/reimint/reimint/types"
)

var (
	prefixHeaderByHeight = []byte("h")
	prefixBlockByHash    = []byte("b")
	prefixHashByHeight   = []byte("n")
	keyLatestHeight      = []byte("latest-height")
)

// BlockStore is a goleveldb-backed append-only store for committed
// blocks, keyed by height and by hash, grounded on
// cometbft/store/store.go's height/hash dual-indexing (adapted from its
// dbm.DB abstraction to goleveldb directly, matching this pack's
// evidence pool and the rest of the corpus's direct goleveldb usage).
type BlockStore struct {
	mtx    rsync.RWMutex
	db     *leveldb.DB
	height uint64
}

// NewBlockStore opens (or creates) a goleveldb-backed store at dir.
func NewBlockStore(dir string) (*BlockStore, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("blockchain: opening store: %w", err)
	}
	bs := &BlockStore{db: db}
	if bz, err := db.Get(keyLatestHeight, nil); err == nil {
		bs.height = binary.BigEndian.Uint64(bz)
	}
	return bs, nil
}

func (bs *BlockStore) Close() error { return bs.db.Close() }

// Height returns the height of the most recently saved block, or 0 if
// the store is empty.
func (bs *BlockStore) Height() uint64 {
	bs.mtx.RLock()
	defer bs.mtx.RUnlock()
	return bs.height
}

func heightKey(height uint64) []byte {
	key := make([]byte, len(prefixHashByHeight)+8)
	copy(key, prefixHashByHeight)
	binary.BigEndian.PutUint64(key[len(prefixHashByHeight):], height)
	return key
}

func hashKey(prefix []byte, hash common.Hash) []byte {
	key := make([]byte, len(prefix)+common.HashLength)
	copy(key, prefix)
	copy(key[len(prefix):], hash[:])
	return key
}

// SaveBlock persists block, indexed by both its height and its hash,
// and advances the store's latest-height marker if block is the new
// tip.
func (bs *BlockStore) SaveBlock(block *types.Block) error {
	bs.mtx.Lock()
	defer bs.mtx.Unlock()

	hash, err := block.Hash()
	if err != nil {
		return err
	}
	bz, err := rlp.EncodeToBytes(block)
	if err != nil {
		return err
	}

	batch := new(leveldb.Batch)
	batch.Put(hashKey(prefixBlockByHash, hash), bz)
	batch.Put(heightKey(block.Header.Number), hash[:])
	if block.Header.Number > bs.height {
		heightBz := make([]byte, 8)
		binary.BigEndian.PutUint64(heightBz, block.Header.Number)
		batch.Put(keyLatestHeight, heightBz)
	}
	if err := bs.db.Write(batch, nil); err != nil {
		return fmt.Errorf("blockchain: saving block: %w", err)
	}
	if block.Header.Number > bs.height {
		bs.height = block.Header.Number
	}
	return nil
}

// LoadBlockByHash returns the block with the given hash, or
// (nil, nil) if none is stored.
func (bs *BlockStore) LoadBlockByHash(hash common.Hash) (*types.Block, error) {
	bs.mtx.RLock()
	defer bs.mtx.RUnlock()
	bz, err := bs.db.Get(hashKey(prefixBlockByHash, hash), nil)
	if err == leveldb.ErrNotFound {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	var block types.Block
	if err := rlp.DecodeBytes(bz, &block); err != nil {
		return nil, err
	}
	return &block, nil
}

// LoadBlockByHeight returns the block committed at height, or
// (nil, nil) if none is stored.
func (bs *BlockStore) LoadBlockByHeight(height uint64) (*types.Block, error) {
	bs.mtx.RLock()
	hashBz, err := bs.db.Get(heightKey(height), nil)
	bs.mtx.RUnlock()
	if err == leveldb.ErrNotFound {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return bs.LoadBlockByHash(common.BytesToHash(hashBz))
}
