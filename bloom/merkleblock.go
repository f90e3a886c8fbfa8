// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package bloom

import (
	"github.com/btcrelay/peerd/chainhash"
	"github.com/btcrelay/peerd/wire"
)

// NewMerkleBlock builds a merkleblock message and the list of matched
// transactions for the given block and filter, the reply a getdata
// handler sends for a MSG_FILTERED_BLOCK request. Transactions with no
// filter loaded match nothing.
func NewMerkleBlock(block *wire.MsgBlock, filter *Filter) (*wire.MsgMerkleBlock, []*wire.MsgTx) {
	var matchedIndices []int
	for i, tx := range block.Transactions {
		if filter != nil && matchesTx(filter, tx) {
			matchedIndices = append(matchedIndices, i)
		}
	}

	hashes := block.TxHashes()
	tree := buildPartialMerkleTree(hashes, matchedIndices)

	mb := wire.NewMsgMerkleBlock(&block.Header)
	mb.Transactions = uint32(len(hashes))
	mb.Hashes = tree.hashes
	mb.Flags = tree.flags

	matched := make([]*wire.MsgTx, 0, len(matchedIndices))
	for _, idx := range matchedIndices {
		matched = append(matched, block.Transactions[idx])
	}
	return mb, matched
}

// MatchesTx reports whether tx matches filter by its own hash or any of
// its inputs' signature scripts or outputs' public-key scripts, the
// same test NewMerkleBlock applies per transaction. Used directly by a
// mempool reply, which has no block to build a merkle proof against.
func MatchesTx(filter *Filter, tx *wire.MsgTx) bool {
	return matchesTx(filter, tx)
}

func matchesTx(filter *Filter, tx *wire.MsgTx) bool {
	h := tx.TxHash()
	if filter.Matches(h[:]) {
		return true
	}
	for _, in := range tx.TxIn {
		if filter.Matches(in.SignatureScript) {
			return true
		}
	}
	for _, out := range tx.TxOut {
		if filter.Matches(out.PkScript) {
			return true
		}
	}
	return false
}

type partialMerkleTree struct {
	hashes []*chainhash.Hash
	flags  []byte
}

// buildPartialMerkleTree implements BIP37's partial merkle tree
// construction: a depth-first, pre-order walk emitting one flag bit per
// visited node (1 = branch contains a match or is a matched leaf, 0 =
// prune) and one hash for every visited leaf and for every non-leaf whose
// subtree contains no match. The children of a pruned node are not
// visited.
func buildPartialMerkleTree(hashes []chainhash.Hash, matched []int) partialMerkleTree {
	matchSet := make(map[int]bool, len(matched))
	for _, idx := range matched {
		matchSet[idx] = true
	}

	height := treeHeight(len(hashes))
	tree := &treeBuilder{hashes: hashes, matched: matchSet}
	tree.walk(height, 0)
	return partialMerkleTree{hashes: tree.resultHashes, flags: packBits(tree.bits)}
}

func treeHeight(numTx int) int {
	h := 0
	for calcTreeWidth(h, numTx) > 1 {
		h++
	}
	return h
}

func calcTreeWidth(height, numTx int) int {
	return (numTx + (1 << height) - 1) >> height
}

type treeBuilder struct {
	hashes       []chainhash.Hash
	matched      map[int]bool
	bits         []bool
	resultHashes []*chainhash.Hash
}

// walk returns whether the subtree rooted at (height, pos) contains a
// matched transaction.
func (t *treeBuilder) walk(height, pos int) bool {
	numTx := len(t.hashes)
	parentHasMatch := false
	for p := pos << uint(height); p < (pos+1)<<uint(height) && p < numTx; p++ {
		parentHasMatch = parentHasMatch || t.matched[p]
	}

	width := calcTreeWidth(height, numTx)
	t.bits = append(t.bits, parentHasMatch)
	if height > 0 && parentHasMatch {
		t.walk(height-1, pos*2)
		if pos*2+1 < calcTreeWidth(height-1, numTx) {
			t.walk(height-1, pos*2+1)
		}
	}

	if height == 0 || !parentHasMatch {
		h := t.subtreeHash(height, pos, width)
		t.resultHashes = append(t.resultHashes, h)
	}
	return parentHasMatch
}

func (t *treeBuilder) subtreeHash(height, pos, width int) *chainhash.Hash {
	if height == 0 {
		h := t.hashes[pos]
		return &h
	}
	// Non-leaf pruned nodes are rehashed from their two children, the
	// standard BIP37 merkle combine (duplicate the left child if the
	// tree is unbalanced at this level).
	leftIdx, rightIdx := pos*2, pos*2+1
	left := t.leafOrCombine(height-1, leftIdx)
	right := left
	if rightIdx < calcTreeWidth(height-1, len(t.hashes)) {
		right = t.leafOrCombine(height-1, rightIdx)
	}
	combined := append(append([]byte{}, left[:]...), right[:]...)
	h := chainhash.DoubleHashH(combined)
	return &h
}

func (t *treeBuilder) leafOrCombine(height, pos int) chainhash.Hash {
	w := calcTreeWidth(height, len(t.hashes))
	return *t.subtreeHash(height, pos, w)
}

func packBits(bits []bool) []byte {
	out := make([]byte, (len(bits)+7)/8)
	for i, b := range bits {
		if b {
			out[i/8] |= 1 << (uint(i) % 8)
		}
	}
	return out
}
