// Package forkdb implements the in-memory competing-branch tree spec.md
// §3.1/§4.2 describes: every block received before it is irreversible lives
// here, branch switching walks two chains back to their common ancestor,
// and anything older than the last irreversible block is pruned.
//
// Grounded on the teacher's core/chain_fork_manager.go ChainForkManager
// (parent-hash-keyed side-branch map, mutex-guarded, logrus-reported
// resolution), generalized from "append onto the ledger or stash as a
// fork" into the full push/fetch/branch/pop/prune contract spec.md needs.
package forkdb

import (
	"sync"

	"github.com/sirupsen/logrus"

	"nodechain/chainerr"
	"nodechain/xtypes"
)

// Node is one block's fork-database entry. Block holds the fully decoded
// block object; forkdb treats it opaquely so it can be shared by the
// pipeline package without an import cycle.
type Node struct {
	ID        xtypes.ID160
	Previous  xtypes.ID160
	Number    uint64
	Block     any
	Validated bool
}

// Database is the fork tree rooted at the last irreversible block.
type Database struct {
	mu       sync.RWMutex
	log      *logrus.Entry
	byID     map[xtypes.ID160]*Node
	byNumber map[uint64][]*Node
	head     *Node
	root     *Node
}

func New(log *logrus.Entry) *Database {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Database{
		log:      log.WithField("component", "forkdb"),
		byID:     make(map[xtypes.ID160]*Node),
		byNumber: make(map[uint64][]*Node),
	}
}

// Reset discards the entire tree and starts over at root (used after a
// reindex, spec.md §4.7).
func (db *Database) Reset(root *Node) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.byID = map[xtypes.ID160]*Node{root.ID: root}
	db.byNumber = map[uint64][]*Node{root.Number: {root}}
	db.head = root
	db.root = root
}

// StartBlock seeds an empty database with its genesis/root node.
func (db *Database) StartBlock(root *Node) { db.Reset(root) }

// Head returns the tip of the longest known chain (highest block number,
// first seen wins ties); the Validated flag plays no part in choosing it.
func (db *Database) Head() *Node {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.head
}

// PushBlock links a new node onto its parent. The parent must already be
// known; callers are responsible for having fetched/validated ancestry
// first (spec.md §4.2 push_block).
func (db *Database) PushBlock(n *Node) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.root == nil {
		return chainerr.New(chainerr.InvariantViolation, "forkdb: push before start_block")
	}
	if _, exists := db.byID[n.ID]; exists {
		return chainerr.New(chainerr.DuplicateTransaction, "forkdb: block already known")
	}
	if n.Previous != db.root.ID {
		if _, ok := db.byID[n.Previous]; !ok {
			return chainerr.New(chainerr.NotFound, "forkdb: unlinkable block, unknown parent")
		}
	}

	db.byID[n.ID] = n
	db.byNumber[n.Number] = append(db.byNumber[n.Number], n)

	if db.head == nil || n.Number > db.head.Number {
		db.head = n
		db.log.WithFields(logrus.Fields{"number": n.Number, "id": n.ID.Hex()}).Debug("new head")
	}
	return nil
}

// FetchBlock returns the node with the given id.
func (db *Database) FetchBlock(id xtypes.ID160) (*Node, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	n, ok := db.byID[id]
	if !ok {
		return nil, chainerr.New(chainerr.NotFound, "forkdb: unknown block id")
	}
	return n, nil
}

// FetchBlockByNumber returns every known node at a given height (there may
// be more than one while forks are unresolved).
func (db *Database) FetchBlockByNumber(number uint64) []*Node {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return append([]*Node(nil), db.byNumber[number]...)
}

// FetchBranchFrom walks both first and second back to their common
// ancestor, returning each branch ordered from tip to (excluding) the
// ancestor. The pipeline pops branchFirst off the current chain and
// applies branchSecond, in order, to switch forks (spec.md §4.2/§3.6).
func (db *Database) FetchBranchFrom(first, second xtypes.ID160) (branchFirst, branchSecond []*Node, err error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	seen := make(map[xtypes.ID160]int) // id -> index in firstChain
	var firstChain []*Node
	cur, ok := db.byID[first]
	if !ok {
		return nil, nil, chainerr.New(chainerr.NotFound, "forkdb: unknown first branch tip")
	}
	for {
		firstChain = append(firstChain, cur)
		seen[cur.ID] = len(firstChain) - 1
		if cur.ID == db.root.ID {
			break
		}
		parent, ok := db.byID[cur.Previous]
		if !ok {
			break
		}
		cur = parent
	}

	cur, ok = db.byID[second]
	if !ok {
		return nil, nil, chainerr.New(chainerr.NotFound, "forkdb: unknown second branch tip")
	}
	var secondChain []*Node
	for {
		if idx, found := seen[cur.ID]; found {
			return firstChain[:idx], secondChain, nil
		}
		secondChain = append(secondChain, cur)
		if cur.ID == db.root.ID {
			break
		}
		parent, ok := db.byID[cur.Previous]
		if !ok {
			break
		}
		cur = parent
	}
	return nil, nil, chainerr.New(chainerr.ForkSwitchFailed, "forkdb: branches share no common ancestor")
}

// PopBlock removes a single node (used when rewinding the head one block
// at a time during a fork switch).
func (db *Database) PopBlock(id xtypes.ID160) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.remove(id)
}

// Remove deletes a node and every node at numbers >= its number that
// descends from it is left dangling for a later GC pass; callers must
// remove a branch tip-first.
func (db *Database) Remove(id xtypes.ID160) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.remove(id)
}

func (db *Database) remove(id xtypes.ID160) {
	n, ok := db.byID[id]
	if !ok {
		return
	}
	delete(db.byID, id)
	siblings := db.byNumber[n.Number]
	for i, s := range siblings {
		if s.ID == id {
			db.byNumber[n.Number] = append(siblings[:i], siblings[i+1:]...)
			break
		}
	}
	if db.head != nil && db.head.ID == id {
		if parent, ok := db.byID[n.Previous]; ok {
			db.head = parent
		} else {
			db.head = db.root
		}
	}
}

// SetHead forces the head pointer without altering tree contents, used
// after an external caller has already validated and linked a branch.
func (db *Database) SetHead(id xtypes.ID160) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	n, ok := db.byID[id]
	if !ok {
		return chainerr.New(chainerr.NotFound, "forkdb: set_head: unknown id")
	}
	db.head = n
	return nil
}

// MarkValidated flags a node as having passed full validation. The flag is
// recorded on the node only; head selection in PushBlock does not read it.
func (db *Database) MarkValidated(id xtypes.ID160) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if n, ok := db.byID[id]; ok {
		n.Validated = true
	}
}

// Prune advances the irreversible root to newRoot, deleting every node at
// or below newRoot's number that is not an ancestor of it (spec.md §4.2
// pruning rule: once a block is irreversible its sibling forks can never
// become head again).
func (db *Database) Prune(newRoot *Node) {
	db.mu.Lock()
	defer db.mu.Unlock()

	ancestors := make(map[xtypes.ID160]bool)
	for cur := newRoot; cur != nil; {
		ancestors[cur.ID] = true
		if cur.ID == db.root.ID {
			break
		}
		parent, ok := db.byID[cur.Previous]
		if !ok {
			break
		}
		cur = parent
	}

	for number, nodes := range db.byNumber {
		if number > newRoot.Number {
			continue
		}
		kept := nodes[:0:0]
		for _, n := range nodes {
			if ancestors[n.ID] {
				kept = append(kept, n)
			} else {
				delete(db.byID, n.ID)
				db.log.WithField("id", n.ID.Hex()).Debug("pruned stale fork branch")
			}
		}
		if len(kept) == 0 {
			delete(db.byNumber, number)
		} else {
			db.byNumber[number] = kept
		}
	}
	db.root = newRoot
}
