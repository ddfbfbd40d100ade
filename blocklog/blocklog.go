// Package blocklog implements the append-only, position-indexed block log
// spec.md §3.1/§4.2 describes as the durable record of every irreversible
// block: blocks are appended once and never rewritten, and reindex replays
// them in order to rebuild chain state from scratch.
//
// The on-disk layout follows the historical Graphene/Steem block_log
// trick: each record is the block's serialized bytes followed by an
// 8-byte little-endian offset pointing back to the start of that same
// record, so the log can be walked backwards from EOF without a separate
// index. A parallel index file holds one 8-byte start offset per block
// number for O(1) random access; it is fully derivable from the data file
// and is rebuilt by reindex if missing or truncated (spec.md §4.7).
package blocklog

import (
	"encoding/binary"
	"io"
	"os"
	"sync"

	"nodechain/chainerr"
)

const positionSize = 8

// BlockLog is a single chain's durable, append-only block archive.
type BlockLog struct {
	mu    sync.Mutex
	data  *os.File
	index *os.File
	head  uint64 // highest block number appended, 0 if empty
}

// Open opens (creating if necessary) the data and index files backing a
// block log. If the index is shorter than the data file implies, callers
// should run Reindex before relying on ReadBlock.
func Open(dataPath, indexPath string) (*BlockLog, error) {
	data, err := os.OpenFile(dataPath, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, chainerr.Wrap(chainerr.InvariantViolation, "blocklog: open data file", err)
	}
	index, err := os.OpenFile(indexPath, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		data.Close()
		return nil, chainerr.Wrap(chainerr.InvariantViolation, "blocklog: open index file", err)
	}
	l := &BlockLog{data: data, index: index}
	if err := l.recoverHead(); err != nil {
		data.Close()
		index.Close()
		return nil, err
	}
	return l, nil
}

func (l *BlockLog) recoverHead() error {
	info, err := l.index.Stat()
	if err != nil {
		return chainerr.Wrap(chainerr.InvariantViolation, "blocklog: stat index", err)
	}
	l.head = uint64(info.Size()) / positionSize
	return nil
}

// Head returns the highest block number present in the log, or 0 if empty.
func (l *BlockLog) Head() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.head
}

// Append writes the next block's payload. number must equal Head()+1;
// blocks are never appended out of order or overwritten (spec.md §4.2).
func (l *BlockLog) Append(number uint64, payload []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if number != l.head+1 {
		return chainerr.New(chainerr.InvariantViolation,
			"blocklog: out-of-order append, expected next block number")
	}

	start, err := l.data.Seek(0, io.SeekEnd)
	if err != nil {
		return chainerr.Wrap(chainerr.InvariantViolation, "blocklog: seek data end", err)
	}
	if _, err := l.data.Write(payload); err != nil {
		return chainerr.Wrap(chainerr.InvariantViolation, "blocklog: write payload", err)
	}
	var tail [positionSize]byte
	binary.LittleEndian.PutUint64(tail[:], uint64(start))
	if _, err := l.data.Write(tail[:]); err != nil {
		return chainerr.Wrap(chainerr.InvariantViolation, "blocklog: write tail position", err)
	}

	if _, err := l.index.Seek(0, io.SeekEnd); err != nil {
		return chainerr.Wrap(chainerr.InvariantViolation, "blocklog: seek index end", err)
	}
	var startBuf [positionSize]byte
	binary.LittleEndian.PutUint64(startBuf[:], uint64(start))
	if _, err := l.index.Write(startBuf[:]); err != nil {
		return chainerr.Wrap(chainerr.InvariantViolation, "blocklog: write index entry", err)
	}

	l.head = number
	return nil
}

// ReadBlock returns the raw serialized payload for the given block number.
func (l *BlockLog) ReadBlock(number uint64) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.readBlockLocked(number)
}

func (l *BlockLog) readBlockLocked(number uint64) ([]byte, error) {
	if number == 0 || number > l.head {
		return nil, chainerr.New(chainerr.NotFound, "blocklog: block number out of range")
	}

	start, err := l.indexEntry(number)
	if err != nil {
		return nil, err
	}

	var end int64
	if number == l.head {
		info, err := l.data.Stat()
		if err != nil {
			return nil, chainerr.Wrap(chainerr.InvariantViolation, "blocklog: stat data file", err)
		}
		end = info.Size() - positionSize
	} else {
		next, err := l.indexEntry(number + 1)
		if err != nil {
			return nil, err
		}
		end = next - positionSize
	}

	length := end - start
	if length < 0 {
		return nil, chainerr.New(chainerr.InvariantViolation, "blocklog: corrupt index, negative length")
	}
	buf := make([]byte, length)
	if _, err := l.data.ReadAt(buf, start); err != nil {
		return nil, chainerr.Wrap(chainerr.InvariantViolation, "blocklog: read payload", err)
	}
	return buf, nil
}

func (l *BlockLog) indexEntry(number uint64) (int64, error) {
	var buf [positionSize]byte
	offset := int64(number-1) * positionSize
	if _, err := l.index.ReadAt(buf[:], offset); err != nil {
		return 0, chainerr.Wrap(chainerr.InvariantViolation, "blocklog: read index entry", err)
	}
	return int64(binary.LittleEndian.Uint64(buf[:])), nil
}

// ReadBlockByNumber is an alias for ReadBlock kept for naming parity with
// spec.md §4.2's read_block_by_num.
func (l *BlockLog) ReadBlockByNumber(number uint64) ([]byte, error) { return l.ReadBlock(number) }

// ReadHead returns the most recently appended block's payload.
func (l *BlockLog) ReadHead() ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.head == 0 {
		return nil, chainerr.New(chainerr.NotFound, "blocklog: empty log")
	}
	return l.readBlockLocked(l.head)
}

// Reindex rebuilds the index file by scanning the data file's tail
// pointers from the end backwards, then forward-validating the resulting
// offsets (spec.md §4.7 reindex support: the index is a cache, never the
// source of truth).
func (l *BlockLog) Reindex() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	info, err := l.data.Stat()
	if err != nil {
		return chainerr.Wrap(chainerr.InvariantViolation, "blocklog: stat data file", err)
	}
	size := info.Size()
	if size == 0 {
		l.head = 0
		return l.index.Truncate(0)
	}

	var starts []int64
	pos := size
	for pos > 0 {
		if pos < positionSize {
			return chainerr.New(chainerr.InvariantViolation, "blocklog: truncated tail pointer during reindex")
		}
		var tail [positionSize]byte
		if _, err := l.data.ReadAt(tail[:], pos-positionSize); err != nil {
			return chainerr.Wrap(chainerr.InvariantViolation, "blocklog: read tail pointer", err)
		}
		start := int64(binary.LittleEndian.Uint64(tail[:]))
		starts = append(starts, start)
		pos = start
	}

	// starts was collected tip-first; reverse to genesis-first to match
	// block numbering.
	for i, j := 0, len(starts)-1; i < j; i, j = i+1, j-1 {
		starts[i], starts[j] = starts[j], starts[i]
	}

	if err := l.index.Truncate(0); err != nil {
		return chainerr.Wrap(chainerr.InvariantViolation, "blocklog: truncate index", err)
	}
	if _, err := l.index.Seek(0, io.SeekStart); err != nil {
		return chainerr.Wrap(chainerr.InvariantViolation, "blocklog: seek index start", err)
	}
	for _, s := range starts {
		var buf [positionSize]byte
		binary.LittleEndian.PutUint64(buf[:], uint64(s))
		if _, err := l.index.Write(buf[:]); err != nil {
			return chainerr.Wrap(chainerr.InvariantViolation, "blocklog: rewrite index", err)
		}
	}
	l.head = uint64(len(starts))
	return nil
}

// Close flushes and closes both underlying files.
func (l *BlockLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	err1 := l.data.Close()
	err2 := l.index.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
