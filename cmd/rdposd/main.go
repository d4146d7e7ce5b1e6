// rdposd is the chain's daemon entrypoint: it parses flags into a
// conf.Config, builds a node.Node, and runs it until interrupted.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/rdpos-chain/core/common"
	"github.com/rdpos-chain/core/conf"
	"github.com/rdpos-chain/core/log"
	"github.com/rdpos-chain/core/node"
)

var (
	listenAddrFlag = &cli.StringFlag{
		Name:  "listen-addr",
		Usage: "TCP address the P2P manager listens on",
		Value: ":30303",
	}
	serverPortFlag = &cli.UintFlag{
		Name:  "server-port",
		Usage: "port advertised to peers in the handshake (defaults to listen-addr's port)",
	}
	dataDirFlag = &cli.StringFlag{
		Name:  "datadir",
		Usage: "on-disk database directory; empty runs an in-memory database",
	}
	discoveryFlag = &cli.BoolFlag{
		Name:  "discovery",
		Usage: "run as a discovery-only node instead of a normal peer",
	}
	minPeersFlag = &cli.IntFlag{
		Name:  "min-peers",
		Usage: "lower bound the discovery worker tries to keep connected",
		Value: 4,
	}
	maxPeersFlag = &cli.IntFlag{
		Name:  "max-peers",
		Usage: "upper bound the discovery worker won't exceed",
		Value: 25,
	}
	bootstrapFlag = &cli.StringSliceFlag{
		Name:  "bootstrap",
		Usage: "bootstrap peer as type:ip:port (type is \"normal\" or \"discovery\"), repeatable",
	}
	chainIDFlag = &cli.Uint64Flag{
		Name:  "chain-id",
		Usage: "chain id mixed into every signature",
		Value: 1,
	}
	validatorKeyFlag = &cli.StringFlag{
		Name:  "validator-key",
		Usage: "hex-encoded secp256k1 key; when set this node runs the consensus engine",
	}
	genesisKeyFlag = &cli.StringFlag{
		Name:     "genesis-key",
		Usage:    "hex-encoded secp256k1 key that signs the synthesized genesis block",
		Required: true,
	}
	genesisValidatorsFlag = &cli.StringSliceFlag{
		Name:     "genesis-validator",
		Usage:    "hex-encoded address belonging to the initial rdPoS validator set, repeatable",
		Required: true,
	}
	genesisBalanceFlag = &cli.StringSliceFlag{
		Name:  "genesis-balance",
		Usage: "address=balance credited before any block is processed, repeatable",
	}
)

func main() {
	app := &cli.App{
		Name:  "rdposd",
		Usage: "rdPoS chain node",
		Flags: []cli.Flag{
			listenAddrFlag,
			serverPortFlag,
			dataDirFlag,
			discoveryFlag,
			minPeersFlag,
			maxPeersFlag,
			bootstrapFlag,
			chainIDFlag,
			validatorKeyFlag,
			genesisKeyFlag,
			genesisValidatorsFlag,
			genesisBalanceFlag,
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := buildConfig(c)
	if err != nil {
		return err
	}

	n, err := node.New(cfg)
	if err != nil {
		return fmt.Errorf("building node: %w", err)
	}
	if err := n.Start(); err != nil {
		return fmt.Errorf("starting node: %w", err)
	}

	logger := log.New("module", "rdposd")
	logger.Info("node started", "listen", cfg.ListenAddr, "chainID", cfg.ChainID)

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc

	logger.Info("shutting down")
	return n.Close()
}

func buildConfig(c *cli.Context) (*conf.Config, error) {
	listenAddr := c.String(listenAddrFlag.Name)
	serverPort := uint16(c.Uint(serverPortFlag.Name))
	if serverPort == 0 {
		port, err := portOf(listenAddr)
		if err != nil {
			return nil, fmt.Errorf("deriving server port from %q: %w", listenAddr, err)
		}
		serverPort = port
	}

	nodeType := conf.NodeTypeNormal
	if c.Bool(discoveryFlag.Name) {
		nodeType = conf.NodeTypeDiscovery
	}

	bootstrap, err := parseBootstrapPeers(c.StringSlice(bootstrapFlag.Name))
	if err != nil {
		return nil, err
	}

	genesisPriv, err := parsePrivKey(c.String(genesisKeyFlag.Name))
	if err != nil {
		return nil, fmt.Errorf("parsing genesis-key: %w", err)
	}

	validators, err := parseAddresses(c.StringSlice(genesisValidatorsFlag.Name))
	if err != nil {
		return nil, fmt.Errorf("parsing genesis-validator: %w", err)
	}

	balances, err := parseGenesisBalances(c.StringSlice(genesisBalanceFlag.Name))
	if err != nil {
		return nil, err
	}

	var validatorPriv common.PrivKey
	if raw := c.String(validatorKeyFlag.Name); raw != "" {
		validatorPriv, err = parsePrivKey(raw)
		if err != nil {
			return nil, fmt.Errorf("parsing validator-key: %w", err)
		}
	}

	return &conf.Config{
		ChainID:           c.Uint64(chainIDFlag.Name),
		DataDir:           c.String(dataDirFlag.Name),
		ListenAddr:        listenAddr,
		ServerPort:        serverPort,
		NodeType:          nodeType,
		BootstrapPeers:    bootstrap,
		MinPeers:          c.Int(minPeersFlag.Name),
		MaxPeers:          c.Int(maxPeersFlag.Name),
		ValidatorPrivKey:  validatorPriv,
		GenesisValidators: validators,
		GenesisPrivKey:    genesisPriv,
		GenesisBalances:   balances,
	}, nil
}

func portOf(addr string) (uint16, error) {
	_, portStr, err := splitHostPort(addr)
	if err != nil {
		return 0, err
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid port %q: %w", portStr, err)
	}
	return uint16(port), nil
}

func splitHostPort(addr string) (host, port string, err error) {
	i := strings.LastIndex(addr, ":")
	if i < 0 {
		return "", "", fmt.Errorf("missing port in address %q", addr)
	}
	return addr[:i], addr[i+1:], nil
}

func parseBootstrapPeers(raw []string) ([]conf.BootstrapPeer, error) {
	peers := make([]conf.BootstrapPeer, 0, len(raw))
	for _, entry := range raw {
		parts := strings.SplitN(entry, ":", 3)
		if len(parts) != 3 {
			return nil, fmt.Errorf("bootstrap peer %q: expected type:ip:port", entry)
		}
		port, err := strconv.ParseUint(parts[2], 10, 16)
		if err != nil {
			return nil, fmt.Errorf("bootstrap peer %q: invalid port: %w", entry, err)
		}
		discovery, err := parseNodeTypeWord(parts[0])
		if err != nil {
			return nil, fmt.Errorf("bootstrap peer %q: %w", entry, err)
		}
		peers = append(peers, conf.BootstrapPeer{
			Discovery: discovery,
			IP:        parts[1],
			Port:      uint16(port),
		})
	}
	return peers, nil
}

func parseNodeTypeWord(word string) (discovery bool, err error) {
	switch word {
	case "normal":
		return false, nil
	case "discovery":
		return true, nil
	default:
		return false, fmt.Errorf("unknown node type %q, want \"normal\" or \"discovery\"", word)
	}
}

func parsePrivKey(hexStr string) (common.PrivKey, error) {
	b := common.FromHex(hexStr)
	if len(b) != common.PrivKeyLength {
		return common.PrivKey{}, fmt.Errorf("want %d bytes, got %d", common.PrivKeyLength, len(b))
	}
	var priv common.PrivKey
	copy(priv[:], b)
	return priv, nil
}

func parseAddresses(raw []string) ([]common.Address, error) {
	addrs := make([]common.Address, 0, len(raw))
	for _, entry := range raw {
		b := common.FromHex(entry)
		if len(b) != common.AddressLength {
			return nil, fmt.Errorf("address %q: want %d bytes, got %d", entry, common.AddressLength, len(b))
		}
		addrs = append(addrs, common.BytesToAddress(b))
	}
	return addrs, nil
}

func parseGenesisBalances(raw []string) (map[common.Address]uint64, error) {
	balances := make(map[common.Address]uint64, len(raw))
	for _, entry := range raw {
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("genesis balance %q: expected address=balance", entry)
		}
		addrs, err := parseAddresses([]string{parts[0]})
		if err != nil {
			return nil, fmt.Errorf("genesis balance %q: %w", entry, err)
		}
		balance, err := strconv.ParseUint(parts[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("genesis balance %q: invalid amount: %w", entry, err)
		}
		balances[addrs[0]] = balance
	}
	return balances, nil
}
