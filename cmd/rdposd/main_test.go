package main

import (
	"encoding/hex"
	"flag"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/rdpos-chain/core/common"
	"github.com/rdpos-chain/core/conf"
	"github.com/rdpos-chain/core/crypto"
)

func parseArgs(t *testing.T, args []string) *cli.Context {
	t.Helper()
	app := cli.NewApp()
	app.Flags = []cli.Flag{
		listenAddrFlag, serverPortFlag, dataDirFlag, discoveryFlag,
		minPeersFlag, maxPeersFlag, bootstrapFlag, chainIDFlag,
		validatorKeyFlag, genesisKeyFlag, genesisValidatorsFlag, genesisBalanceFlag,
	}
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	for _, f := range app.Flags {
		require.NoError(t, f.Apply(set))
	}
	require.NoError(t, set.Parse(args))
	return cli.NewContext(app, set, nil)
}

func hexKey(t *testing.T) (string, common.PrivKey) {
	t.Helper()
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	return "0x" + hex.EncodeToString(priv.Bytes()), priv
}

func hexAddr(t *testing.T, priv common.PrivKey) (string, common.Address) {
	t.Helper()
	addr := crypto.ToAddress(crypto.UPubkeyFromPrivKey(priv))
	return addr.Hex(), addr
}

func TestBuildConfigDerivesServerPortFromListenAddr(t *testing.T) {
	genesisKeyHex, _ := hexKey(t)
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	addrHex, _ := hexAddr(t, priv)

	c := parseArgs(t, []string{
		"--listen-addr", "127.0.0.1:40404",
		"--genesis-key", genesisKeyHex,
		"--genesis-validator", addrHex,
	})
	cfg, err := buildConfig(c)
	require.NoError(t, err)
	require.EqualValues(t, 40404, cfg.ServerPort)
	require.Equal(t, conf.NodeTypeNormal, cfg.NodeType)
	require.Equal(t, common.PrivKey{}, cfg.ValidatorPrivKey)
}

func TestBuildConfigParsesValidatorKeyAndDiscoveryFlag(t *testing.T) {
	genesisKeyHex, _ := hexKey(t)
	validatorKeyHex, validatorPriv := hexKey(t)
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	addrHex, _ := hexAddr(t, priv)

	c := parseArgs(t, []string{
		"--listen-addr", ":30303",
		"--discovery",
		"--genesis-key", genesisKeyHex,
		"--genesis-validator", addrHex,
		"--validator-key", validatorKeyHex,
	})
	cfg, err := buildConfig(c)
	require.NoError(t, err)
	require.Equal(t, conf.NodeTypeDiscovery, cfg.NodeType)
	require.Equal(t, validatorPriv, cfg.ValidatorPrivKey)
}

func TestBuildConfigParsesBootstrapPeersAndBalances(t *testing.T) {
	genesisKeyHex, _ := hexKey(t)
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	addrHex, addr := hexAddr(t, priv)

	c := parseArgs(t, []string{
		"--listen-addr", ":30303",
		"--genesis-key", genesisKeyHex,
		"--genesis-validator", addrHex,
		"--bootstrap", "normal:10.0.0.1:30303",
		"--bootstrap", "discovery:10.0.0.2:30303",
		"--genesis-balance", addrHex + "=1000",
	})
	cfg, err := buildConfig(c)
	require.NoError(t, err)
	require.Len(t, cfg.BootstrapPeers, 2)
	require.False(t, cfg.BootstrapPeers[0].Discovery)
	require.True(t, cfg.BootstrapPeers[1].Discovery)
	require.Equal(t, uint64(1000), cfg.GenesisBalances[addr])
}

func TestBuildConfigRejectsMalformedBootstrapPeer(t *testing.T) {
	genesisKeyHex, _ := hexKey(t)
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	addrHex, _ := hexAddr(t, priv)

	c := parseArgs(t, []string{
		"--genesis-key", genesisKeyHex,
		"--genesis-validator", addrHex,
		"--bootstrap", "not-a-valid-peer",
	})
	_, err = buildConfig(c)
	require.Error(t, err)
}

func TestBuildConfigRejectsBadGenesisKeyLength(t *testing.T) {
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	addrHex, _ := hexAddr(t, priv)

	c := parseArgs(t, []string{
		"--genesis-key", "0x1234",
		"--genesis-validator", addrHex,
	})
	_, err = buildConfig(c)
	require.Error(t, err)
}
