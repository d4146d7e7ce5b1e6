package rdpos

import (
	"sync"

	"github.com/holiman/uint256"

	"github.com/rdpos-chain/core/common"
	"github.com/rdpos-chain/core/crypto"
)

// RandomGen is the deterministic random source rdPoS uses to shuffle the
// validator list: repeated keccak256 self-hashing of a seed, consumed as a
// big-endian uint256. Every node reaches the same sequence given the same
// starting seed, which is the point: shuffle order must be derivable from
// chain state alone, with no external randomness.
type RandomGen struct {
	mu   sync.Mutex
	seed common.Hash
}

// NewRandomGen returns a generator initialized with seed.
func NewRandomGen(seed common.Hash) *RandomGen {
	return &RandomGen{seed: seed}
}

// Seed returns the current seed.
func (g *RandomGen) Seed() common.Hash {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.seed
}

// SetSeed overwrites the current seed.
func (g *RandomGen) SetSeed(seed common.Hash) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seed = seed
}

// Next advances seed = keccak256(seed) and returns the new seed as a uint256.
func (g *RandomGen) Next() *uint256.Int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seed = crypto.Keccak256(g.seed.Bytes())
	return g.seed.Big()
}

// Shuffle permutes addrs in place via Fisher-Yates, drawing each swap index
// from Next() mod (remaining element count).
func (g *RandomGen) Shuffle(addrs []common.Address) {
	for i := len(addrs) - 1; i > 0; i-- {
		idx := g.Next()
		divisor := uint256.NewInt(uint64(i + 1))
		idx.Mod(idx, divisor)
		j := int(idx.Uint64())
		addrs[i], addrs[j] = addrs[j], addrs[i]
	}
}
