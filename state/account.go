package state

import (
	"encoding/binary"

	"github.com/holiman/uint256"

	"github.com/rdpos-chain/core/common"
	"github.com/rdpos-chain/core/storage"
)

// Account is a native-token balance and transaction nonce, keyed by Address.
type Account struct {
	Balance *uint256.Int
	Nonce   uint32
}

func newZeroAccount() *Account {
	return &Account{Balance: uint256.NewInt(0)}
}

func (a *Account) clone() *Account {
	return &Account{Balance: new(uint256.Int).Set(a.Balance), Nonce: a.Nonce}
}

// encodeAccount serializes an Account as balance(32) || nonce(4), matching
// the nativeAccounts keyspace layout.
func encodeAccount(a *Account) []byte {
	out := make([]byte, common.HashLength+4)
	copy(out[:common.HashLength], a.Balance.Bytes32()[:])
	binary.BigEndian.PutUint32(out[common.HashLength:], a.Nonce)
	return out
}

// decodeAccount parses the balance(32) || nonce(4) layout.
func decodeAccount(b []byte) (*Account, bool) {
	if len(b) != common.HashLength+4 {
		return nil, false
	}
	balance := new(uint256.Int).SetBytes(b[:common.HashLength])
	nonce := binary.BigEndian.Uint32(b[common.HashLength:])
	return &Account{Balance: balance, Nonce: nonce}, true
}

func accountKey(addr common.Address) []byte {
	return append(append([]byte(nil), storage.NativeAccountsPrefix...), addr.Bytes()...)
}
