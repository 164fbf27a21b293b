package rpc

import (
	"encoding/json"
	"fmt"

	"github.com/tolelom/tolchain/core"
	"github.com/tolelom/tolchain/indexer"
	"github.com/tolelom/tolchain/mempool"
	"github.com/tolelom/tolchain/network"
)

// Version is the node software version reported by getNodeInfo.
const Version = "0.1.0"

// Handler holds all dependencies needed to serve RPC methods.
type Handler struct {
	bc      *core.Blockchain
	pool    *mempool.GulfStream
	state   core.State
	indexer *indexer.Indexer
	node    *network.Node // optional; nil in tests that don't exercise getPeers
	chainID string        // expected chain_id; used to reject cross-chain replay transactions
}

// NewHandler creates an RPC Handler. node may be nil if peer-count/getPeers
// support is not needed (e.g. single-node tests).
func NewHandler(bc *core.Blockchain, pool *mempool.GulfStream, state core.State, idx *indexer.Indexer, node *network.Node, chainID string) *Handler {
	return &Handler{bc: bc, pool: pool, state: state, indexer: idx, node: node, chainID: chainID}
}

// Dispatch routes an RPC request to the correct method.
func (h *Handler) Dispatch(req Request) Response {
	switch req.Method {
	case "getNodeInfo":
		return h.getNodeInfo(req)
	case "getBlock":
		return h.getBlock(req)
	case "getLatestBlocks":
		return h.getLatestBlocks(req)
	case "getBalance":
		return h.getBalance(req)
	case "getNonce":
		return h.getNonce(req)
	case "getAccountInfo":
		return h.getAccountInfo(req)
	case "submitTransfer":
		return h.submit(req, core.TxTransfer)
	case "submitMint":
		return h.submit(req, core.TxMint)
	case "submitBurn":
		return h.submit(req, core.TxBurn)
	case "submitComputeJob":
		return h.submit(req, core.TxComputeJob)
	case "submitComputeResult":
		return h.submit(req, core.TxComputeResult)
	case "submitOracleAttestation":
		return h.submit(req, core.TxOracleAttestation)
	case "getPeers":
		return h.getPeers(req)
	case "getValidatorStats":
		return h.getValidatorStats(req)
	default:
		return errResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("method %q not found", req.Method))
	}
}

func (h *Handler) getNodeInfo(req Request) Response {
	peerCount := 0
	if h.node != nil {
		peerCount = len(h.node.Peers())
	}
	return okResponse(req.ID, map[string]any{
		"height":     h.bc.Height(),
		"head_hash":  h.bc.HeadHash(),
		"version":    Version,
		"peer_count": peerCount,
	})
}

func (h *Handler) getBlock(req Request) Response {
	var params struct {
		Height *int64 `json:"height"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, "params: "+err.Error())
	}

	var block *core.Block
	var err error
	if params.Height != nil {
		block, err = h.bc.GetBlockByHeight(*params.Height)
	} else {
		block = h.bc.Tip()
	}
	if err != nil {
		return errFromDomain(req.ID, err)
	}
	if block == nil {
		return errResponse(req.ID, CodeNotFound, "no block found")
	}
	return okResponse(req.ID, block)
}

func (h *Handler) getLatestBlocks(req Request) Response {
	var params struct {
		Count int64 `json:"count"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, "params: "+err.Error())
	}
	if params.Count <= 0 {
		return errResponse(req.ID, CodeInvalidParams, "count must be positive")
	}

	tip := h.bc.Height()
	from := tip - params.Count + 1
	if from < 0 {
		from = 0
	}
	blocks, err := h.bc.Range(from, tip)
	if err != nil {
		return errFromDomain(req.ID, err)
	}
	return okResponse(req.ID, blocks)
}

func (h *Handler) getBalance(req Request) Response {
	var params struct {
		Account string `json:"account"`
		Asset   string `json:"asset"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if params.Account == "" {
		return errResponse(req.ID, CodeInvalidParams, "account is required")
	}
	asset := params.Asset
	if asset == "" {
		asset = core.NativeAsset
	}
	balance, err := h.state.GetBalance(params.Account, asset)
	if err != nil {
		return errFromDomain(req.ID, err)
	}
	return okResponse(req.ID, map[string]any{"account": params.Account, "asset": asset, "balance": balance})
}

func (h *Handler) getNonce(req Request) Response {
	var params struct {
		Account string `json:"account"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if params.Account == "" {
		return errResponse(req.ID, CodeInvalidParams, "account is required")
	}
	acc, err := h.state.GetAccount(params.Account)
	if err != nil {
		return errFromDomain(req.ID, err)
	}
	return okResponse(req.ID, map[string]any{"account": params.Account, "nonce": acc.Nonce})
}

func (h *Handler) getAccountInfo(req Request) Response {
	var params struct {
		Account string `json:"account"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if params.Account == "" {
		return errResponse(req.ID, CodeInvalidParams, "account is required")
	}
	acc, err := h.state.GetAccount(params.Account)
	if err != nil {
		return errFromDomain(req.ID, err)
	}
	balance, err := h.state.GetBalance(params.Account, core.NativeAsset)
	if err != nil {
		return errFromDomain(req.ID, err)
	}
	isAdmin, err := h.state.IsAdmin(params.Account)
	if err != nil {
		return errFromDomain(req.ID, err)
	}
	txs, err := h.indexer.GetAccountTxs(params.Account)
	if err != nil {
		return errFromDomain(req.ID, err)
	}
	return okResponse(req.ID, map[string]any{
		"account":  params.Account,
		"nonce":    acc.Nonce,
		"balance":  balance,
		"is_admin": isAdmin,
		"tx_count": len(txs),
	})
}

// submit decodes a fully signed transaction from req.Params, checks it is
// the method's expected type and addressed to this chain, then hands it to
// the mempool. Every submit* RPC method shares this path per spec.md §6.
func (h *Handler) submit(req Request, want core.TxType) Response {
	var tx core.Transaction
	if err := json.Unmarshal(req.Params, &tx); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if tx.Type != want {
		return errResponse(req.ID, CodeInvalidParams,
			fmt.Sprintf("transaction type mismatch: got %q want %q", tx.Type, want))
	}
	if tx.ChainID != h.chainID {
		return errResponse(req.ID, CodeInvalidParams,
			fmt.Sprintf("chain ID mismatch: got %q want %q", tx.ChainID, h.chainID))
	}
	// Recompute the ID server-side; do not trust the client-provided value.
	tx.ID = tx.Hash()
	accepted, err := h.pool.Add(&tx)
	if err != nil {
		return errFromDomain(req.ID, err)
	}
	if !accepted {
		return okResponse(req.ID, map[string]string{"tx_hash": tx.ID, "status": "duplicate"})
	}
	if h.node != nil {
		h.node.BroadcastTx(&tx)
	}
	return okResponse(req.ID, map[string]string{"tx_hash": tx.ID, "status": "pending"})
}

func (h *Handler) getPeers(req Request) Response {
	if h.node == nil {
		return okResponse(req.ID, []string{})
	}
	return okResponse(req.ID, h.node.Peers())
}

func (h *Handler) getValidatorStats(req Request) Response {
	var params struct {
		Validator string `json:"validator"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if params.Validator == "" {
		return errResponse(req.ID, CodeInvalidParams, "validator is required")
	}
	val, err := h.state.GetValidator(params.Validator)
	if err != nil {
		return errFromDomain(req.ID, err)
	}
	return okResponse(req.ID, val)
}
