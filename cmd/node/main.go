// Command node runs a tolchain validator, and also serves as the operator
// CLI for key management and transaction submission against a running node.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"

	"github.com/tolelom/tolchain/config"
	"github.com/tolelom/tolchain/consensus"
	"github.com/tolelom/tolchain/core"
	"github.com/tolelom/tolchain/crypto/certgen"
	"github.com/tolelom/tolchain/events"
	"github.com/tolelom/tolchain/indexer"
	"github.com/tolelom/tolchain/mempool"
	"github.com/tolelom/tolchain/network"
	"github.com/tolelom/tolchain/poh"
	"github.com/tolelom/tolchain/rpc"
	"github.com/tolelom/tolchain/storage"
	"github.com/tolelom/tolchain/vm"
	"github.com/tolelom/tolchain/wallet"

	// Import VM modules to trigger their init() self-registration.
	_ "github.com/tolelom/tolchain/vm/modules/compute"
	_ "github.com/tolelom/tolchain/vm/modules/governance"
	_ "github.com/tolelom/tolchain/vm/modules/oracleattest"
	_ "github.com/tolelom/tolchain/vm/modules/transfer"
	_ "github.com/tolelom/tolchain/vm/modules/validator"
	_ "github.com/tolelom/tolchain/vm/modules/vault"
)

// Exit codes per spec.md §6: 0 success, 1 error, 2 authentication failure.
const (
	exitOK        = 0
	exitError     = 1
	exitAuthError = 2
)

var (
	configFlag = &cli.StringFlag{Name: "config", Value: "config.toml", Usage: "path to node TOML config file"}
	rpcFlag    = &cli.StringFlag{Name: "rpc", Value: "http://127.0.0.1:8545", Usage: "RPC endpoint of a running node"}

	identityFlag     = &cli.StringFlag{Name: "identity", Required: true, Usage: "path to an identity file"}
	passwordEnvFlag  = &cli.StringFlag{Name: "password-env", Value: "TOL_PASSWORD", Usage: "environment variable holding the identity password"}
	nameFlag         = &cli.StringFlag{Name: "name", Required: true, Usage: "operator-facing label stored in the identity file"}
	roleFlag         = &cli.StringFlag{Name: "role", Value: "wallet", Usage: "identity role (validator, wallet, oracle, ...)"}
	chainIDFlag      = &cli.StringFlag{Name: "chain-id", Required: true, Usage: "target chain ID"}
	nonceFlag        = &cli.Uint64Flag{Name: "nonce", Required: true, Usage: "sender account nonce"}
	feeFlag          = &cli.Uint64Flag{Name: "fee", Value: 0, Usage: "transaction fee"}
)

func main() {
	app := &cli.App{
		Name:  "tolchain-node",
		Usage: "tolchain validator node and operator CLI",
		Commands: []*cli.Command{
			nodeCommand,
			keysCommand,
			walletCommand,
			transferCommand,
			balanceCommand,
			mintCommand,
			burnCommand,
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitError)
	}
}

// ---- node start / node status ----

var nodeCommand = &cli.Command{
	Name:  "node",
	Usage: "run or inspect a validator node",
	Subcommands: []*cli.Command{
		{
			Name:   "start",
			Usage:  "start the node (blocks until SIGINT/SIGTERM)",
			Flags:  []cli.Flag{configFlag, passwordEnvFlag},
			Action: runNodeStart,
		},
		{
			Name:   "status",
			Usage:  "query a running node's getNodeInfo",
			Flags:  []cli.Flag{rpcFlag},
			Action: runNodeStatus,
		},
		{
			Name:  "gencerts",
			Usage: "generate a CA and node TLS certificate for mTLS P2P",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "out", Required: true, Usage: "output directory"},
				&cli.StringFlag{Name: "node-id", Required: true, Usage: "node ID to embed in the cert"},
			},
			Action: func(c *cli.Context) error {
				if err := certgen.GenerateAll(c.String("out"), c.String("node-id"), nil); err != nil {
					return err
				}
				fmt.Printf("Certificates generated in %s for node %q\n", c.String("out"), c.String("node-id"))
				return nil
			},
		},
	},
}

func runNodeStart(c *cli.Context) error {
	password := os.Getenv(c.String("password-env"))
	if password == "" {
		fmt.Fprintln(os.Stderr, "WARNING: identity password env var not set — identity will use an empty password")
	}

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	if cfg.Node.IdentityFile == "" {
		return fmt.Errorf("node.identity_file must be set")
	}
	w, id, err := wallet.FromIdentity(cfg.Node.IdentityFile, password)
	if err != nil {
		return cli.Exit(fmt.Errorf("load identity: %w", err), exitAuthError)
	}
	nodeID := w.PubKey()

	if err := os.MkdirAll(cfg.Node.DBPath, 0o755); err != nil {
		return fmt.Errorf("mkdir db path: %w", err)
	}
	raw, err := storage.NewLevelDB(filepath.Join(cfg.Node.DBPath, "chain"))
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer raw.Close()

	db, err := storage.NewCachedDB(raw, 4096)
	if err != nil {
		return fmt.Errorf("init db cache: %w", err)
	}

	blockStore := storage.NewLevelBlockStore(db)
	state := storage.NewStateDB(db)

	bc := core.NewBlockchain(blockStore)
	if err := bc.Init(); err != nil {
		return fmt.Errorf("blockchain init: %w", err)
	}

	if bc.Tip() == nil {
		genesisBlock, err := config.BuildGenesisBlock(cfg.Genesis, state, w.PrivKey())
		if err != nil {
			return fmt.Errorf("genesis: %w", err)
		}
		if err := bc.AddBlock(genesisBlock); err != nil {
			return fmt.Errorf("add genesis: %w", err)
		}
		fmt.Printf("Genesis block committed: %s\n", genesisBlock.Hash)
	} else {
		vm.SetOracleThreshold(cfg.Genesis.OracleThreshold)
	}
	genesisBlock, err := bc.GetBlockByHeight(0)
	if err != nil {
		return fmt.Errorf("load genesis block: %w", err)
	}

	emitter := events.NewEmitter()
	idx := indexer.New(db, emitter)
	pool := mempool.New()
	exec := vm.NewExecutor(state, emitter)
	producer := consensus.New(cfg, bc, state, pool, exec, emitter, w.PrivKey())

	tlsCfg, err := config.LoadTLSConfig(cfg.TLS)
	if err != nil {
		return fmt.Errorf("tls: %w", err)
	}
	if tlsCfg != nil {
		fmt.Println("mTLS enabled for P2P")
	}

	p2pAddr := fmt.Sprintf(":%d", cfg.Node.P2PPort)
	node := network.NewNode(nodeID, p2pAddr, cfg.Genesis.ChainID, genesisBlock.Hash, pool, tlsCfg)
	syncer := network.NewSyncer(node, bc, producer, exec, state)
	if err := node.Start(); err != nil {
		return fmt.Errorf("p2p start: %w", err)
	}
	defer node.Stop()
	fmt.Printf("P2P listening on %s (node id %s)\n", node.ListenAddr(), nodeID)

	dialDone := make(chan struct{})
	defer close(dialDone)
	for _, bn := range cfg.Node.Bootnodes {
		bootID, bootAddr, ok := strings.Cut(bn, "@")
		if !ok {
			fmt.Fprintf(os.Stderr, "skipping malformed bootnode %q (want id@host:port)\n", bn)
			continue
		}
		go node.DialWithBackoff(bootID, bootAddr, dialDone)
	}
	// Give outbound dials a moment to land before kicking off sync.
	time.Sleep(200 * time.Millisecond)
	for _, peerID := range node.Peers() {
		if peer := node.Peer(peerID); peer != nil {
			if err := syncer.SyncWithPeer(peer); err != nil {
				fmt.Fprintf(os.Stderr, "initial sync with %s: %v\n", peerID, err)
			}
		}
	}

	rpcHandler := rpc.NewHandler(bc, pool, state, idx, node, cfg.Genesis.ChainID)
	rpcServer := rpc.NewServer(fmt.Sprintf(":%d", cfg.Node.RPCPort), rpcHandler, cfg.Node.RPCAuthToken)
	if err := rpcServer.Start(); err != nil {
		return fmt.Errorf("rpc start: %w", err)
	}
	defer rpcServer.Stop()
	fmt.Printf("RPC listening on :%d\n", cfg.Node.RPCPort)

	pohRecorder := poh.New(cfg.Genesis.ChainID, bc, w.PrivKey(), cfg.Consensus.PoHIterationsPerTick, genesisBlock.Hash)

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		producer.Run(time.Duration(cfg.Consensus.SlotDurationMs)*time.Millisecond, done)
	}()
	go func() {
		defer wg.Done()
		ctx, cancel := contextFromDone(done)
		defer cancel()
		pohRecorder.Run(ctx, time.Duration(cfg.Consensus.SlotDurationMs)*time.Millisecond)
	}()
	fmt.Printf("Consensus running as %q (validator: %s)\n", id.Name, nodeID)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	fmt.Println("Shutting down...")
	close(done)
	wg.Wait()
	fmt.Println("Shutdown complete.")
	return nil
}

func runNodeStatus(c *cli.Context) error {
	var result map[string]any
	if err := rpcCall(c.String("rpc"), "getNodeInfo", map[string]any{}, &result); err != nil {
		return err
	}
	return printJSON(result)
}

// ---- keys generate / export-pub / inspect ----

var keysCommand = &cli.Command{
	Name:  "keys",
	Usage: "manage validator/operator identity files",
	Subcommands: []*cli.Command{
		{
			Name:   "generate",
			Usage:  "generate a fresh BIP-39 identity and write it to disk",
			Flags:  []cli.Flag{identityFlag, passwordEnvFlag, nameFlag, roleFlag},
			Action: runKeysGenerate,
		},
		{
			Name:   "export-pub",
			Usage:  "print an identity's public key (no password required)",
			Flags:  []cli.Flag{identityFlag},
			Action: runKeysExportPub,
		},
		{
			Name:   "inspect",
			Usage:  "decrypt and print an identity's name, role, and public key",
			Flags:  []cli.Flag{identityFlag, passwordEnvFlag},
			Action: runKeysInspect,
		},
	},
}

func runKeysGenerate(c *cli.Context) error {
	password := os.Getenv(c.String("password-env"))
	mnemonic, priv, err := wallet.SaveIdentity(c.String("identity"), c.String("name"), c.String("role"), password)
	if err != nil {
		return err
	}
	fmt.Println("Identity written to", c.String("identity"))
	fmt.Println("Public key:", priv.Public().Hex())
	fmt.Println("Mnemonic (record this now, it will not be shown again):")
	fmt.Println(" ", mnemonic)
	return nil
}

func runKeysExportPub(c *cli.Context) error {
	data, err := os.ReadFile(c.String("identity"))
	if err != nil {
		return err
	}
	var id wallet.IdentityFile
	if err := json.Unmarshal(data, &id); err != nil {
		return fmt.Errorf("parse identity file: %w", err)
	}
	fmt.Println(id.PublicKey)
	return nil
}

func runKeysInspect(c *cli.Context) error {
	password := os.Getenv(c.String("password-env"))
	id, priv, err := wallet.LoadIdentity(c.String("identity"), password)
	if err != nil {
		return cli.Exit(err, exitAuthError)
	}
	return printJSON(map[string]any{
		"name":       id.Name,
		"role":       id.Role,
		"public_key": priv.Public().Hex(),
	})
}

// ---- wallet create / import / list ----

var walletCommand = &cli.Command{
	Name:  "wallet",
	Usage: "manage wallet identity files",
	Subcommands: []*cli.Command{
		{
			Name:  "create",
			Usage: "create a fresh wallet identity (alias of keys generate --role wallet)",
			Flags: []cli.Flag{identityFlag, passwordEnvFlag, nameFlag},
			Action: func(c *cli.Context) error {
				password := os.Getenv(c.String("password-env"))
				mnemonic, priv, err := wallet.SaveIdentity(c.String("identity"), c.String("name"), "wallet", password)
				if err != nil {
					return err
				}
				fmt.Println("Wallet written to", c.String("identity"))
				fmt.Println("Public key:", priv.Public().Hex())
				fmt.Println("Mnemonic (record this now, it will not be shown again):")
				fmt.Println(" ", mnemonic)
				return nil
			},
		},
		{
			Name:  "import",
			Usage: "restore a wallet identity from an existing mnemonic",
			Flags: []cli.Flag{
				identityFlag, passwordEnvFlag, nameFlag,
				&cli.StringFlag{Name: "mnemonic", Required: true, Usage: "BIP-39 mnemonic to restore"},
			},
			Action: func(c *cli.Context) error {
				password := os.Getenv(c.String("password-env"))
				priv, err := wallet.ImportIdentity(c.String("identity"), c.String("name"), "wallet", password, c.String("mnemonic"))
				if err != nil {
					return err
				}
				fmt.Println("Wallet restored to", c.String("identity"))
				fmt.Println("Public key:", priv.Public().Hex())
				return nil
			},
		},
		{
			Name:  "list",
			Usage: "list identity files (*.json) in a directory",
			Flags: []cli.Flag{&cli.StringFlag{Name: "dir", Value: ".", Usage: "directory to scan"}},
			Action: func(c *cli.Context) error {
				entries, err := os.ReadDir(c.String("dir"))
				if err != nil {
					return err
				}
				table := tablewriter.NewWriter(os.Stdout)
				table.SetHeader([]string{"File", "Name", "Role", "Public Key"})
				for _, e := range entries {
					if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
						continue
					}
					path := filepath.Join(c.String("dir"), e.Name())
					data, err := os.ReadFile(path)
					if err != nil {
						continue
					}
					var id wallet.IdentityFile
					if err := json.Unmarshal(data, &id); err != nil || id.PublicKey == "" {
						continue
					}
					table.Append([]string{path, id.Name, id.Role, id.PublicKey})
				}
				table.Render()
				return nil
			},
		},
	},
}

// ---- transfer / balance / mint / burn ----

var transferCommand = &cli.Command{
	Name:  "transfer",
	Usage: "submit a signed Transfer transaction",
	Flags: []cli.Flag{
		identityFlag, passwordEnvFlag, rpcFlag, chainIDFlag, nonceFlag, feeFlag,
		&cli.StringFlag{Name: "to", Required: true},
		&cli.StringFlag{Name: "asset", Value: core.NativeAsset},
		&cli.Uint64Flag{Name: "amount", Required: true},
	},
	Action: func(c *cli.Context) error {
		w, err := loadWalletFlag(c)
		if err != nil {
			return err
		}
		tx, err := w.Transfer(c.String("chain-id"), c.String("to"), c.String("asset"), c.Uint64("amount"), c.Uint64("nonce"), c.Uint64("fee"))
		if err != nil {
			return err
		}
		return submitTx(c, tx, "submitTransfer")
	},
}

var mintCommand = &cli.Command{
	Name:  "mint",
	Usage: "submit a signed Mint transaction",
	Flags: []cli.Flag{
		identityFlag, passwordEnvFlag, rpcFlag, chainIDFlag, nonceFlag, feeFlag,
		&cli.StringFlag{Name: "vault-id", Required: true},
		&cli.StringFlag{Name: "collateral-asset", Required: true},
		&cli.Uint64Flag{Name: "collateral-amount", Required: true},
		&cli.StringFlag{Name: "minted-asset", Required: true},
		&cli.Uint64Flag{Name: "mint-amount", Required: true},
		&cli.StringFlag{Name: "external-tx-proof", Required: true},
		&cli.StringSliceFlag{Name: "oracle-sig", Required: true, Usage: "oracle_pubkey_hex:signature_hex, repeatable"},
	},
	Action: func(c *cli.Context) error {
		w, err := loadWalletFlag(c)
		if err != nil {
			return err
		}
		sigs, err := parseOracleSigs(c.StringSlice("oracle-sig"))
		if err != nil {
			return err
		}
		tx, err := w.Mint(c.String("chain-id"), c.Uint64("nonce"), c.Uint64("fee"), core.MintPayload{
			VaultID:          c.String("vault-id"),
			CollateralAsset:  c.String("collateral-asset"),
			CollateralAmount: c.Uint64("collateral-amount"),
			MintedAsset:      c.String("minted-asset"),
			MintAmount:       c.Uint64("mint-amount"),
			ExternalTxProof:  c.String("external-tx-proof"),
			OracleSignatures: sigs,
		})
		if err != nil {
			return err
		}
		return submitTx(c, tx, "submitMint")
	},
}

// parseOracleSigs turns repeated --oracle-sig pubkey:signature flags into the
// signature set vm/modules/vault verifies against the genesis oracle
// threshold.
func parseOracleSigs(raw []string) ([]core.OracleSignature, error) {
	sigs := make([]core.OracleSignature, 0, len(raw))
	for _, entry := range raw {
		pub, sig, ok := strings.Cut(entry, ":")
		if !ok || pub == "" || sig == "" {
			return nil, fmt.Errorf("invalid --oracle-sig %q, want pubkey_hex:signature_hex", entry)
		}
		sigs = append(sigs, core.OracleSignature{OraclePubKey: pub, Signature: sig})
	}
	return sigs, nil
}

var burnCommand = &cli.Command{
	Name:  "burn",
	Usage: "submit a signed Burn transaction",
	Flags: []cli.Flag{
		identityFlag, passwordEnvFlag, rpcFlag, chainIDFlag, nonceFlag, feeFlag,
		&cli.StringFlag{Name: "vault-id", Required: true},
		&cli.StringFlag{Name: "minted-asset", Required: true},
		&cli.Uint64Flag{Name: "burn-amount", Required: true},
		&cli.StringFlag{Name: "destination", Required: true},
	},
	Action: func(c *cli.Context) error {
		w, err := loadWalletFlag(c)
		if err != nil {
			return err
		}
		tx, err := w.Burn(c.String("chain-id"), c.Uint64("nonce"), c.Uint64("fee"), core.BurnPayload{
			VaultID:     c.String("vault-id"),
			MintedAsset: c.String("minted-asset"),
			BurnAmount:  c.Uint64("burn-amount"),
			Destination: c.String("destination"),
		})
		if err != nil {
			return err
		}
		return submitTx(c, tx, "submitBurn")
	},
}

var balanceCommand = &cli.Command{
	Name:  "balance",
	Usage: "query an account's balance",
	Flags: []cli.Flag{
		rpcFlag,
		&cli.StringFlag{Name: "account", Required: true},
		&cli.StringFlag{Name: "asset", Value: core.NativeAsset},
	},
	Action: func(c *cli.Context) error {
		var result map[string]any
		err := rpcCall(c.String("rpc"), "getBalance", map[string]any{
			"account": c.String("account"),
			"asset":   c.String("asset"),
		}, &result)
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

// ---- shared helpers ----

func loadWalletFlag(c *cli.Context) (*wallet.Wallet, error) {
	password := os.Getenv(c.String("password-env"))
	w, _, err := wallet.FromIdentity(c.String("identity"), password)
	if err != nil {
		return nil, cli.Exit(fmt.Errorf("load identity: %w", err), exitAuthError)
	}
	return w, nil
}

func submitTx(c *cli.Context, tx *core.Transaction, method string) error {
	var result map[string]any
	if err := rpcCall(c.String("rpc"), method, tx, &result); err != nil {
		return err
	}
	return printJSON(result)
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// rpcCall sends a single JSON-RPC 2.0 request to addr and decodes the result
// into out. A non-nil RPC-level error is returned as a Go error.
func rpcCall(addr, method string, params, out any) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: uuid.New().String(), Method: method, Params: params})
	if err != nil {
		return err
	}
	resp, err := http.Post(addr, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("rpc request: %w", err)
	}
	defer resp.Body.Close()

	var rr rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return fmt.Errorf("decode rpc response: %w", err)
	}
	if rr.Error != nil {
		return fmt.Errorf("rpc error %d: %s", rr.Error.Code, rr.Error.Message)
	}
	if out != nil && len(rr.Result) > 0 {
		return json.Unmarshal(rr.Result, out)
	}
	return nil
}

// contextFromDone adapts a done channel (used throughout the consensus/poh
// loops) into a context.Context for poh.Recorder.Run.
func contextFromDone(done <-chan struct{}) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-done:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
