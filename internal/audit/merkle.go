package audit

import (
	"context"
	"fmt"
)

// Inclusion proofs let a caller confirm that a specific entry belongs to the
// chain without re-reading the whole store. A Merkle tree is built over all
// entry hashes (leaf i = digest of entries[i].Hash, parents over the
// concatenation of their children, an odd node paired with itself); a proof
// is the O(log n) audit path from one leaf to the root.
//
// The trust anchor is a TreeHead: the root, the tree size, and the chain
// head hash committed as the final leaf. A caller snapshots a TreeHead at a
// moment it trusts the log and can verify proofs against it offline; the
// HeadPath inside each proof shows the trusted chain head really is the last
// leaf of the tree the proof speaks for.

// ProofStep is one sibling on the path from a leaf to the root. Direction is
// "left" when the sibling is the left child of the pair.
type ProofStep struct {
	Hash      string `json:"hash"`
	Direction string `json:"direction"`
}

// InclusionProof shows that one entry is a leaf of the tree rooted at Root.
type InclusionProof struct {
	Index    int64       `json:"index"`
	LeafHash string      `json:"leaf_hash"`
	Root     string      `json:"root"`
	TreeSize int         `json:"tree_size"`
	Path     []ProofStep `json:"path"`
	HeadPath []ProofStep `json:"head_path"`
}

// TreeHead is a verifiable snapshot of the whole chain: the Merkle root over
// all entry hashes, the number of leaves, and the chain head hash whose leaf
// closes the tree.
type TreeHead struct {
	Root      string `json:"root"`
	Size      int    `json:"size"`
	ChainHead string `json:"chain_head"`
}

// TreeHead computes the current Merkle snapshot from the store. Like
// verification, it reads durable truth, never the in-memory head.
func (l *Log) TreeHead(ctx context.Context) (*TreeHead, error) {
	entries, err := l.store.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading entries for tree head: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("chain is empty, nothing to snapshot")
	}
	levels := buildLevels(entryLeaves(entries, l.chain.dg), l.chain.dg)
	return &TreeHead{
		Root:      levels[len(levels)-1][0],
		Size:      len(entries),
		ChainHead: entries[len(entries)-1].Hash,
	}, nil
}

// ProveInclusion builds the Merkle audit path for the entry at index.
func (l *Log) ProveInclusion(ctx context.Context, index int64) (*InclusionProof, error) {
	entries, err := l.store.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading entries for proof: %w", err)
	}
	if index < 0 || index >= int64(len(entries)) {
		return nil, fmt.Errorf("proof index %d out of range (chain has %d entries)", index, len(entries))
	}

	leaves := entryLeaves(entries, l.chain.dg)
	levels := buildLevels(leaves, l.chain.dg)
	return &InclusionProof{
		Index:    index,
		LeafHash: leaves[index],
		Root:     levels[len(levels)-1][0],
		TreeSize: len(entries),
		Path:     auditPath(levels, int(index)),
		HeadPath: auditPath(levels, len(entries)-1),
	}, nil
}

// VerifyProof checks an inclusion proof against a trusted tree head. The
// entry is rehashed from its contents first, so a forged entry with an
// internally consistent path still fails. Both the entry's path and the
// chain head's path must land on the trusted root.
func (l *Log) VerifyProof(index int64, e *Entry, proof *InclusionProof, trusted *TreeHead) bool {
	if e == nil || proof == nil || trusted == nil {
		return false
	}
	if index != proof.Index || index < 0 || index >= int64(trusted.Size) {
		return false
	}
	if proof.TreeSize != trusted.Size || proof.Root != trusted.Root {
		return false
	}

	dg := l.chain.dg
	expected, err := computeEntryHash(e, dg)
	if err != nil || expected != e.Hash {
		return false
	}
	if dg.sum([]byte(e.Hash)) != proof.LeafHash {
		return false
	}
	if walkPath(proof.LeafHash, proof.Path, dg) != trusted.Root {
		return false
	}
	return walkPath(dg.sum([]byte(trusted.ChainHead)), proof.HeadPath, dg) == trusted.Root
}

// entryLeaves hashes each entry hash once more to form the tree leaves, so
// leaf preimages can never collide with interior-node preimages.
func entryLeaves(entries []Entry, dg digest) []string {
	leaves := make([]string, len(entries))
	for i := range entries {
		leaves[i] = dg.sum([]byte(entries[i].Hash))
	}
	return leaves
}

// buildLevels computes every level of the tree, leaves first, root last.
func buildLevels(leaves []string, dg digest) [][]string {
	levels := [][]string{leaves}
	cur := leaves
	for len(cur) > 1 {
		next := make([]string, 0, (len(cur)+1)/2)
		for i := 0; i < len(cur); i += 2 {
			if i+1 < len(cur) {
				next = append(next, dg.sum([]byte(cur[i]+cur[i+1])))
			} else {
				next = append(next, dg.sum([]byte(cur[i]+cur[i])))
			}
		}
		levels = append(levels, next)
		cur = next
	}
	return levels
}

// auditPath collects the sibling of each node on the way from leaf idx to
// the root.
func auditPath(levels [][]string, idx int) []ProofStep {
	var path []ProofStep
	for _, level := range levels[:len(levels)-1] {
		sib := idx ^ 1
		if sib >= len(level) {
			sib = idx // odd node pairs with itself
		}
		dir := "right"
		if sib < idx {
			dir = "left"
		}
		path = append(path, ProofStep{Hash: level[sib], Direction: dir})
		idx /= 2
	}
	return path
}

// walkPath recomputes the root implied by a leaf and its audit path.
func walkPath(leaf string, path []ProofStep, dg digest) string {
	current := leaf
	for _, step := range path {
		if step.Direction == "left" {
			current = dg.sum([]byte(step.Hash + current))
		} else {
			current = dg.sum([]byte(current + step.Hash))
		}
	}
	return current
}
