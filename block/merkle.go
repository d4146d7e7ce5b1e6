package block

import (
	"github.com/rdpos-chain/core/common"
	"github.com/rdpos-chain/core/crypto"
)

// MerkleRoot computes the root over a list of transaction hashes: each leaf
// is first re-hashed (keccak256(txHash)), then layers combine pairwise via
// keccak256(left‖right), with any odd leaf at a level carried up unchanged.
// An empty input roots to the zero hash.
func MerkleRoot(txHashes []common.Hash) common.Hash {
	if len(txHashes) == 0 {
		return common.Hash{}
	}
	level := make([]common.Hash, len(txHashes))
	for i, h := range txHashes {
		level[i] = crypto.Keccak256(h.Bytes())
	}
	for len(level) > 1 {
		level = merkleLayer(level)
	}
	return level[0]
}

func merkleLayer(level []common.Hash) []common.Hash {
	next := make([]common.Hash, 0, (len(level)+1)/2)
	for i := 0; i < len(level); i += 2 {
		if i+1 < len(level) {
			next = append(next, crypto.Keccak256(level[i].Bytes(), level[i+1].Bytes()))
		} else {
			next = append(next, level[i])
		}
	}
	return next
}
