package node

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rdpos-chain/core/common"
	"github.com/rdpos-chain/core/conf"
	"github.com/rdpos-chain/core/crypto"
	"github.com/rdpos-chain/core/rdpos"
)

func testValidatorSet(t *testing.T) ([]common.Address, []common.PrivKey) {
	t.Helper()
	addrs := make([]common.Address, rdpos.MinValidators+1)
	privs := make([]common.PrivKey, rdpos.MinValidators+1)
	for i := range addrs {
		priv, err := crypto.GenerateKey()
		require.NoError(t, err)
		privs[i] = priv
		addrs[i] = crypto.ToAddress(crypto.UPubkeyFromPrivKey(priv))
	}
	return addrs, privs
}

func testConfig(t *testing.T) *conf.Config {
	t.Helper()
	genesisPriv, err := crypto.GenerateKey()
	require.NoError(t, err)
	addrs, _ := testValidatorSet(t)

	return &conf.Config{
		ChainID:           1,
		ListenAddr:        "127.0.0.1:0",
		ServerPort:        0,
		MinPeers:          1,
		MaxPeers:          8,
		GenesisValidators: addrs,
		GenesisPrivKey:    genesisPriv,
	}
}

func TestNewBuildsEveryCollaborator(t *testing.T) {
	n, err := New(testConfig(t))
	require.NoError(t, err)
	require.NotNil(t, n.State())
	require.NotNil(t, n.Storage())
	require.NotNil(t, n.Network())
	require.NotNil(t, n.RdPoS())
	require.Nil(t, n.engine, "no ValidatorPrivKey was configured")
}

func TestNewBuildsConsensusEngineWhenValidatorKeySet(t *testing.T) {
	genesisPriv, err := crypto.GenerateKey()
	require.NoError(t, err)
	addrs, privs := testValidatorSet(t)

	cfg := &conf.Config{
		ChainID:           1,
		ListenAddr:        "127.0.0.1:0",
		GenesisValidators: addrs,
		GenesisPrivKey:    genesisPriv,
		ValidatorPrivKey:  privs[0],
	}

	n, err := New(cfg)
	require.NoError(t, err)
	require.NotNil(t, n.engine)
}

func TestStartAndCloseRoundtrip(t *testing.T) {
	n, err := New(testConfig(t))
	require.NoError(t, err)
	require.NoError(t, n.Start())
	require.NoError(t, n.Close())
}

func TestRegisterLifecycleRunsOnStartAndClose(t *testing.T) {
	n, err := New(testConfig(t))
	require.NoError(t, err)

	started, stopped := false, false
	n.RegisterLifecycle(fnLifecycle{
		start: func() error { started = true; return nil },
		stop:  func() error { stopped = true; return nil },
	})

	require.NoError(t, n.Start())
	require.True(t, started)
	require.NoError(t, n.Close())
	require.True(t, stopped)
}

type fnLifecycle struct {
	start func() error
	stop  func() error
}

func (f fnLifecycle) Start() error { return f.start() }
func (f fnLifecycle) Stop() error  { return f.stop() }
