package network

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/tolelom/tolchain/core"
	"github.com/tolelom/tolchain/mempool"
)

// MessageHandler is called for each received message.
type MessageHandler func(peer *Peer, msg Message)

// DefaultMaxPeers is the default limit on simultaneous peer connections.
const DefaultMaxPeers = 50

// helloPayload is exchanged immediately after connecting. ChainID and
// GenesisHash let each side reject a peer from an incompatible network
// before any block or transaction traffic is accepted.
type helloPayload struct {
	NodeID      string `json:"node_id"`
	ChainID     string `json:"chain_id"`
	GenesisHash string `json:"genesis_hash"`
}

// Node listens for incoming peers and manages outgoing connections.
type Node struct {
	nodeID      string
	listenAddr  string
	chainID     string
	genesisHash string
	pool        *mempool.GulfStream
	tlsConfig   *tls.Config // nil → plain TCP
	maxPeers    int

	mu       sync.RWMutex
	peers    map[string]*Peer
	handlers map[MsgType]MessageHandler

	listener net.Listener
	stopCh   chan struct{}
}

// NewNode creates a Node that will listen on listenAddr. chainID and
// genesisHash identify the local network for the handshake; a peer reporting
// a mismatch is dropped immediately. If tlsCfg is non-nil the listener and
// outgoing connections use TLS.
func NewNode(nodeID, listenAddr, chainID, genesisHash string, pool *mempool.GulfStream, tlsCfg *tls.Config) *Node {
	n := &Node{
		nodeID:      nodeID,
		listenAddr:  listenAddr,
		chainID:     chainID,
		genesisHash: genesisHash,
		pool:        pool,
		tlsConfig:   tlsCfg,
		maxPeers:    DefaultMaxPeers,
		peers:       make(map[string]*Peer),
		handlers:    make(map[MsgType]MessageHandler),
		stopCh:      make(chan struct{}),
	}
	n.Handle(MsgHello, n.handleHello)
	n.Handle(MsgTx, n.handleTx)
	return n
}

// Handle registers a handler for msg type.
func (n *Node) Handle(typ MsgType, h MessageHandler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers[typ] = h
}

// Start begins accepting connections.
func (n *Node) Start() error {
	var ln net.Listener
	var err error
	if n.tlsConfig != nil {
		ln, err = tls.Listen("tcp", n.listenAddr, n.tlsConfig)
	} else {
		ln, err = net.Listen("tcp", n.listenAddr)
	}
	if err != nil {
		return fmt.Errorf("listen %s: %w", n.listenAddr, err)
	}
	n.listener = ln
	go n.acceptLoop()
	return nil
}

// ListenAddr returns the address the node is actually listening on, useful
// when listenAddr was passed with an OS-assigned port ("host:0").
func (n *Node) ListenAddr() string {
	if n.listener == nil {
		return n.listenAddr
	}
	return n.listener.Addr().String()
}

// Stop shuts down the node.
func (n *Node) Stop() {
	close(n.stopCh)
	if n.listener != nil {
		n.listener.Close()
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, p := range n.peers {
		p.Close()
	}
}

// AddPeer dials addr and registers the peer, sending a hello carrying this
// node's chain identity.
func (n *Node) AddPeer(id, addr string) error {
	peer, err := Connect(id, addr, n.tlsConfig)
	if err != nil {
		return err
	}
	n.mu.Lock()
	n.peers[id] = peer
	n.mu.Unlock()
	go n.readLoop(peer)
	return n.sendHello(peer)
}

// DialWithBackoff retries AddPeer with exponential backoff (capped at 30s)
// until it succeeds or done is closed. Intended for bootnodes, which may not
// be reachable yet at process start.
func (n *Node) DialWithBackoff(id, addr string, done <-chan struct{}) {
	backoff := time.Second
	const maxBackoff = 30 * time.Second
	for {
		if err := n.AddPeer(id, addr); err == nil {
			return
		} else {
			log.Printf("[network] dial %s (%s) failed, retrying in %s: %v", id, addr, backoff, err)
		}
		select {
		case <-done:
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (n *Node) sendHello(peer *Peer) error {
	hello, err := json.Marshal(helloPayload{NodeID: n.nodeID, ChainID: n.chainID, GenesisHash: n.genesisHash})
	if err != nil {
		return fmt.Errorf("marshal hello: %w", err)
	}
	if err := peer.Send(Message{Type: MsgHello, Payload: hello}); err != nil {
		return fmt.Errorf("send hello to %s: %w", peer.ID, err)
	}
	return nil
}

func (n *Node) handleHello(peer *Peer, msg Message) {
	var hello helloPayload
	if err := json.Unmarshal(msg.Payload, &hello); err != nil {
		log.Printf("[network] unmarshal hello from %s: %v", peer.ID, err)
		peer.Close()
		return
	}
	if hello.ChainID != n.chainID || hello.GenesisHash != n.genesisHash {
		log.Printf("[network] dropping peer %s: network mismatch (chain_id=%s genesis_hash=%s)",
			peer.ID, hello.ChainID, hello.GenesisHash)
		n.mu.Lock()
		delete(n.peers, peer.ID)
		n.mu.Unlock()
		peer.Close()
		return
	}
}

// Peer returns the connected peer with the given id, or nil if not found.
func (n *Node) Peer(id string) *Peer {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.peers[id]
}

// Peers returns the IDs of all currently connected peers.
func (n *Node) Peers() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	ids := make([]string, 0, len(n.peers))
	for id := range n.peers {
		ids = append(ids, id)
	}
	return ids
}

// Broadcast sends msg to all connected peers.
func (n *Node) Broadcast(msg Message) {
	n.mu.RLock()
	peers := make([]*Peer, 0, len(n.peers))
	for _, p := range n.peers {
		peers = append(peers, p)
	}
	n.mu.RUnlock()
	for _, p := range peers {
		if err := p.Send(msg); err != nil {
			log.Printf("[network] broadcast to %s: %v", p.ID, err)
		}
	}
}

// BroadcastTx serialises tx and sends it to all peers.
func (n *Node) BroadcastTx(tx *core.Transaction) {
	data, err := json.Marshal(tx)
	if err != nil {
		log.Printf("[network] marshal tx: %v", err)
		return
	}
	n.Broadcast(Message{Type: MsgTx, Payload: data})
}

// BroadcastBlock serialises block and sends it to all peers.
func (n *Node) BroadcastBlock(block *core.Block) {
	data, err := json.Marshal(block)
	if err != nil {
		log.Printf("[network] marshal block: %v", err)
		return
	}
	n.Broadcast(Message{Type: MsgBlock, Payload: data})
}

func (n *Node) acceptLoop() {
	for {
		conn, err := n.listener.Accept()
		if err != nil {
			select {
			case <-n.stopCh:
				return
			default:
				log.Printf("[network] accept error: %v", err)
				time.Sleep(100 * time.Millisecond)
				continue
			}
		}
		n.mu.RLock()
		peerCount := len(n.peers)
		n.mu.RUnlock()
		if peerCount >= n.maxPeers {
			log.Printf("[network] max peers (%d) reached, rejecting %s", n.maxPeers, conn.RemoteAddr())
			conn.Close()
			continue
		}
		peer := NewPeer(conn.RemoteAddr().String(), conn.RemoteAddr().String(), conn)
		n.mu.Lock()
		n.peers[peer.ID] = peer
		n.mu.Unlock()
		go n.readLoop(peer)
		if err := n.sendHello(peer); err != nil {
			log.Printf("[network] %v", err)
		}
	}
}

func (n *Node) readLoop(peer *Peer) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[network] readLoop panic from %s: %v", peer.ID, r)
		}
		peer.Close()
		n.mu.Lock()
		delete(n.peers, peer.ID)
		n.mu.Unlock()
	}()
	for {
		msg, err := peer.Receive()
		if err != nil {
			return
		}
		n.mu.RLock()
		h, ok := n.handlers[msg.Type]
		n.mu.RUnlock()
		if ok {
			h(peer, msg)
		}
	}
}

func (n *Node) handleTx(_ *Peer, msg Message) {
	var tx core.Transaction
	if err := json.Unmarshal(msg.Payload, &tx); err != nil {
		log.Printf("[network] unmarshal tx: %v", err)
		return
	}
	if _, err := n.pool.Add(&tx); err != nil {
		log.Printf("[network] mempool add: %v", err)
	}
}
