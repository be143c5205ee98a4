// Package merkle builds Merkle trees over audit entry checksums. The root
// is a compact fingerprint of a whole window of entries: an operator can
// record the root of a verified window externally and later prove that no
// entry in the window changed without re-reading every entry.
package merkle

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
)

const (
	leafPrefix = "audit:ledger:leaf:v1"
	nodePrefix = "audit:ledger:node:v1"
)

// Tree is a Merkle tree over ordered leaf digests.
type Tree struct {
	LeafHashes []string
	Levels     [][]string
	Root       string
}

// Build constructs a tree from ordered leaves (entry checksums, oldest
// first). Leaf order is part of the commitment.
func Build(leaves []string) *Tree {
	if len(leaves) == 0 {
		return &Tree{Root: ""}
	}

	leafHashes := make([]string, len(leaves))
	for i, leaf := range leaves {
		leafHashes[i] = hashLeaf(leaf)
	}

	tree := &Tree{LeafHashes: leafHashes}
	level := leafHashes
	for len(level) > 1 {
		tree.Levels = append(tree.Levels, level)
		level = nextLevel(level)
	}
	tree.Levels = append(tree.Levels, level)
	tree.Root = level[0]
	return tree
}

// Root returns the root over ordered leaves without retaining the tree.
func Root(leaves []string) string {
	return Build(leaves).Root
}

// ProofStep is one sibling hash on the path from a leaf to the root.
type ProofStep struct {
	Hash string `json:"hash"`
	Left bool   `json:"left"` // sibling sits to the left of the running hash
}

// Prove returns the inclusion proof for the leaf at index i.
func (t *Tree) Prove(i int) []ProofStep {
	if i < 0 || i >= len(t.LeafHashes) {
		return nil
	}
	var proof []ProofStep
	idx := i
	for _, level := range t.Levels[:len(t.Levels)-1] {
		padded := level
		if len(padded)%2 != 0 {
			padded = append(append([]string{}, padded...), padded[len(padded)-1])
		}
		sibling := idx ^ 1
		proof = append(proof, ProofStep{
			Hash: padded[sibling],
			Left: sibling < idx,
		})
		idx /= 2
	}
	return proof
}

// VerifyProof checks that a leaf digest is committed under root.
func VerifyProof(leaf string, proof []ProofStep, root string) bool {
	running := hashLeaf(leaf)
	for _, step := range proof {
		if step.Left {
			running = hashNode(step.Hash, running)
		} else {
			running = hashNode(running, step.Hash)
		}
	}
	return running == root
}

func hashLeaf(leaf string) string {
	var buf bytes.Buffer
	buf.WriteString(leafPrefix)
	buf.WriteByte(0)
	buf.WriteString(leaf)
	return sha256Hex(buf.Bytes())
}

func hashNode(left, right string) string {
	var buf bytes.Buffer
	buf.WriteString(nodePrefix)
	buf.WriteByte(0)
	buf.Write(hexBytes(left))
	buf.Write(hexBytes(right))
	return sha256Hex(buf.Bytes())
}

func nextLevel(hashes []string) []string {
	count := len(hashes)
	if count%2 != 0 {
		hashes = append(append([]string{}, hashes...), hashes[count-1])
		count++
	}
	next := make([]string, count/2)
	for i := 0; i < count; i += 2 {
		next[i/2] = hashNode(hashes[i], hashes[i+1])
	}
	return next
}

func sha256Hex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func hexBytes(s string) []byte {
	b, _ := hex.DecodeString(s)
	return b
}
