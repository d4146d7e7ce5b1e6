package txs

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/rdpos-chain/core/common"
	"github.com/rdpos-chain/core/crypto"
	"github.com/rdpos-chain/core/rlp"
)

func TestTxBlockSignDecodeRoundtrip(t *testing.T) {
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)

	tx := &TxBlock{
		To:       common.HexToAddress("0x18df1967e5cc30ee53d399a8bbf71c3e60b44beb"),
		Value:    uint256.NewInt(0),
		Data:     []byte{0x0d, 0x07, 0x9f, 0x88},
		Nonce:    uint256.NewInt(54100),
		GasLimit: uint256.NewInt(380_800),
		GasPrice: uint256.NewInt(25_000_000_000),
	}
	require.NoError(t, tx.Sign(priv, 1))

	encoded := EncodeTxBlock(tx, DecodeNetwork)
	decoded, err := DecodeTxBlock(encoded, DecodeNetwork)
	require.NoError(t, err)

	require.Equal(t, tx.From, decoded.From)
	require.Equal(t, tx.Hash(), decoded.Hash())
	require.Equal(t, tx.Nonce.Uint64(), decoded.Nonce.Uint64())
	require.Equal(t, tx.To, decoded.To)
}

func TestTxBlockTrustedDecodeSkipsRecover(t *testing.T) {
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	tx := &TxBlock{
		To:       common.HexToAddress("0x00000000000000000000000000000000000001"),
		Value:    uint256.NewInt(1),
		Nonce:    uint256.NewInt(0),
		GasLimit: uint256.NewInt(21000),
		GasPrice: uint256.NewInt(1),
	}
	require.NoError(t, tx.Sign(priv, 7))

	encoded := EncodeTxBlock(tx, DecodeTrusted)
	decoded, err := DecodeTxBlock(encoded, DecodeTrusted)
	require.NoError(t, err)
	require.Equal(t, tx.From, decoded.From)
	// The sender suffix is not covered by Hash().
	require.Equal(t, tx.Hash(), decoded.Hash())
}

func TestDecodeTxBlockRejectsLegacyV(t *testing.T) {
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	tx := &TxBlock{
		To:       common.Address{},
		Value:    uint256.NewInt(0),
		Nonce:    uint256.NewInt(0),
		GasLimit: uint256.NewInt(21000),
		GasPrice: uint256.NewInt(1),
	}
	require.NoError(t, tx.Sign(priv, 1))
	// Force a legacy v by re-encoding with the pre-EIP-155 value directly.
	legacy := rlp.EncodeList(
		rlp.EncodeUint256(tx.Nonce),
		rlp.EncodeUint256(tx.GasPrice),
		rlp.EncodeUint256(tx.GasLimit),
		rlp.EncodeString(tx.To.Bytes()),
		rlp.EncodeUint256(tx.Value),
		rlp.EncodeString(tx.Data),
		rlp.EncodeUint(27+uint64(tx.V)),
		rlp.EncodeString(tx.R[:]),
		rlp.EncodeString(tx.S[:]),
	)

	_, err = DecodeTxBlock(legacy, DecodeNetwork)
	require.ErrorIs(t, err, ErrLegacySignatureRejected)
}
