package consensus

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/reimint/reimint/internal/consensus/cstypes"
	rsync "github.com/reimint/reimint/libs/sync"
)

// WAL persists every msgInfo and timeoutInfo the State acts on before it
// acts on them, so a crash mid-height can replay exactly what was seen
// rather than silently skipping it — grounded on cometbft's
// internal/consensus/wal.go, rebuilt here as file-backed length-prefixed
// RLP records instead of cometbft's amino-tagged, CRC-checksummed
// group format.
type WAL interface {
	WriteMsg(mi msgInfo) error
	WriteTimeout(ti timeoutInfo) error
	Flush() error
	Close() error
}

// walEnvelope is the on-disk shape of one WAL record. Kind
// distinguishes a peer/internal message record from a timeout record;
// exactly one of (PeerID, MsgBytes) or (Height/Round/Step/DurationMs)
// is meaningful depending on Kind.
type walEnvelope struct {
	Kind uint8

	PeerID   string
	MsgBytes []byte

	Height     uint64
	Round      uint32
	Step       cstypes.RoundStepType
	DurationMs uint64
}

const (
	walKindMsg     = uint8(1)
	walKindTimeout = uint8(2)
)

// FileWAL appends length-prefixed RLP records to a single file.
type FileWAL struct {
	mtx rsync.Mutex
	f   *os.File
}

// OpenFileWAL opens (creating if necessary) the WAL file at path for
// appending.
func OpenFileWAL(path string) (*FileWAL, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("consensus: opening WAL: %w", err)
	}
	return &FileWAL{f: f}, nil
}

func (w *FileWAL) writeEnvelope(env *walEnvelope) error {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	bz, err := rlp.EncodeToBytes(env)
	if err != nil {
		return err
	}
	var lenBz [4]byte
	binary.BigEndian.PutUint32(lenBz[:], uint32(len(bz)))
	if _, err := w.f.Write(lenBz[:]); err != nil {
		return err
	}
	if _, err := w.f.Write(bz); err != nil {
		return err
	}
	return nil
}

// WriteMsg persists a peer or internal message.
func (w *FileWAL) WriteMsg(mi msgInfo) error {
	msgBz, err := EncodeMsg(mi.Msg)
	if err != nil {
		return err
	}
	return w.writeEnvelope(&walEnvelope{Kind: walKindMsg, PeerID: mi.PeerID, MsgBytes: msgBz})
}

// WriteTimeout persists a fired timeout.
func (w *FileWAL) WriteTimeout(ti timeoutInfo) error {
	return w.writeEnvelope(&walEnvelope{
		Kind:       walKindTimeout,
		Height:     ti.Height,
		Round:      uint32(ti.Round),
		Step:       ti.Step,
		DurationMs: uint64(ti.Duration / time.Millisecond),
	})
}

func (w *FileWAL) Flush() error {
	w.mtx.Lock()
	defer w.mtx.Unlock()
	return w.f.Sync()
}

func (w *FileWAL) Close() error {
	w.mtx.Lock()
	defer w.mtx.Unlock()
	return w.f.Close()
}

// readAllWAL reads every record from the WAL file at path, in order. Used
// by catchupReplay after a restart.
func readAllWAL(path string) ([]walEnvelope, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []walEnvelope
	for {
		var lenBz [4]byte
		if _, err := io.ReadFull(f, lenBz[:]); err == io.EOF {
			break
		} else if err != nil {
			return out, fmt.Errorf("consensus: WAL truncated reading length: %w", err)
		}
		n := binary.BigEndian.Uint32(lenBz[:])
		bz := make([]byte, n)
		if _, err := io.ReadFull(f, bz); err != nil {
			return out, fmt.Errorf("consensus: WAL truncated reading record: %w", err)
		}
		var env walEnvelope
		if err := rlp.DecodeBytes(bz, &env); err != nil {
			return out, fmt.Errorf("consensus: WAL corrupt record: %w", err)
		}
		out = append(out, env)
	}
	return out, nil
}

// nilWAL discards everything written to it, used by tests and by any
// State constructed without a WAL path.
type nilWAL struct{}

func (nilWAL) WriteMsg(msgInfo) error     { return nil }
func (nilWAL) WriteTimeout(timeoutInfo) error { return nil }
func (nilWAL) Flush() error               { return nil }
func (nilWAL) Close() error               { return nil }
