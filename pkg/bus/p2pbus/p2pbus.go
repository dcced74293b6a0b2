// Package p2pbus is a bus.PubSub over libp2p GossipSub. Peers find each
// other on the local network with mDNS, or through bootstrap addresses.
package p2pbus

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	libp2p "github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	mdns "github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/raskyld/tvio/pkg/bus"
)

// DefaultRendezvous is the mDNS service name peers advertise.
const DefaultRendezvous = "tvio"

// Options configures the libp2p host.
type Options struct {
	ListenAddrs     []string     `yaml:"listen"`
	Bootstrap       []string     `yaml:"bootstrap"`
	Rendezvous      string       `yaml:"rendezvous"`
	EnableMDNS      bool         `yaml:"mdns"`
	IdentityKeyFile string       `yaml:"identity_key_file"`
	Logger          *slog.Logger `yaml:"-"`
}

// Bus provides gossip-based pubsub over libp2p.
type Bus struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger

	host host.Host
	ps   *pubsub.PubSub
	mdns mdns.Service

	mu     sync.Mutex
	closed bool
	topics map[string]*pubsub.Topic
}

var _ bus.PubSub = (*Bus)(nil)

func New(parent context.Context, opts Options) (*Bus, error) {
	ctx, cancel := context.WithCancel(parent)

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	listenAddrs := make([]ma.Multiaddr, 0, len(opts.ListenAddrs))
	for _, s := range opts.ListenAddrs {
		if s == "" {
			continue
		}
		a, err := ma.NewMultiaddr(s)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("invalid listen multiaddr %q: %w", s, err)
		}
		listenAddrs = append(listenAddrs, a)
	}
	if len(listenAddrs) == 0 {
		a, _ := ma.NewMultiaddr("/ip4/0.0.0.0/tcp/0")
		listenAddrs = append(listenAddrs, a)
	}

	libp2pOpts := []libp2p.Option{libp2p.ListenAddrs(listenAddrs...)}
	if opts.IdentityKeyFile != "" {
		key, err := loadOrCreateIdentityKey(opts.IdentityKeyFile)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("load identity key: %w", err)
		}
		libp2pOpts = append(libp2pOpts, libp2p.Identity(key))
	}

	h, err := libp2p.New(libp2pOpts...)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create host: %w", err)
	}

	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		_ = h.Close()
		cancel()
		return nil, fmt.Errorf("create gossipsub: %w", err)
	}

	b := &Bus{
		ctx:    ctx,
		cancel: cancel,
		logger: logger.With("peer_id", h.ID().String()),
		host:   h,
		ps:     ps,
		topics: make(map[string]*pubsub.Topic),
	}

	if opts.EnableMDNS {
		rendezvous := opts.Rendezvous
		if rendezvous == "" {
			rendezvous = DefaultRendezvous
		}
		b.mdns = mdns.NewMdnsService(h, rendezvous, &mdnsNotifee{host: h, logger: b.logger})
		if err := b.mdns.Start(); err != nil {
			b.logger.Warn("mdns start error", "error", err)
		}
	}

	for _, raw := range opts.Bootstrap {
		if raw == "" {
			continue
		}
		addr, err := ma.NewMultiaddr(raw)
		if err != nil {
			b.logger.Warn("skip bootstrap addr", "addr", raw, "error", err)
			continue
		}
		info, err := peer.AddrInfoFromP2pAddr(addr)
		if err != nil {
			b.logger.Warn("skip bootstrap addr", "addr", raw, "error", err)
			continue
		}
		if err := h.Connect(ctx, *info); err != nil {
			b.logger.Warn("bootstrap connect failed", "peer", info.ID, "error", err)
		} else {
			b.logger.Info("connected bootstrap peer", "peer", info.ID)
		}
	}

	return b, nil
}

func (b *Bus) Publish(ctx context.Context, topic string, payload []byte) error {
	t, err := b.getOrJoinTopic(topic)
	if err != nil {
		return err
	}
	return t.Publish(ctx, payload)
}

// Subscribe delivers every message of topic, ours included. Slow readers
// are buffered by GossipSub, which drops beyond its own limit.
func (b *Bus) Subscribe(topic string) (<-chan bus.Message, func(), error) {
	t, err := b.getOrJoinTopic(topic)
	if err != nil {
		return nil, nil, err
	}
	sub, err := t.Subscribe()
	if err != nil {
		return nil, nil, err
	}

	out := make(chan bus.Message)
	subCtx, subCancel := context.WithCancel(b.ctx)
	go func() {
		defer close(out)
		for {
			msg, err := sub.Next(subCtx)
			if err != nil {
				return
			}
			select {
			case out <- bus.Message{Topic: topic, Payload: append([]byte(nil), msg.Data...)}:
			case <-subCtx.Done():
				return
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			subCancel()
			sub.Cancel()
		})
	}
	return out, cancel, nil
}

func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	b.cancel()
	if b.mdns != nil {
		_ = b.mdns.Close()
	}
	for _, t := range b.topics {
		_ = t.Close()
	}
	return b.host.Close()
}

func (b *Bus) PeerID() string {
	return b.host.ID().String()
}

// ListenAddrs returns the full addresses of the host, usable as bootstrap
// addresses by other peers.
func (b *Bus) ListenAddrs() []string {
	out := make([]string, 0, len(b.host.Addrs()))
	for _, addr := range b.host.Addrs() {
		out = append(out, fmt.Sprintf("%s/p2p/%s", addr.String(), b.host.ID().String()))
	}
	return out
}

func (b *Bus) ConnectedPeers() []string {
	peers := b.host.Network().Peers()
	out := make([]string, 0, len(peers))
	for _, pid := range peers {
		out = append(out, pid.String())
	}
	return out
}

// TopicPeers returns the peers we exchange messages of topic with.
func (b *Bus) TopicPeers(topic string) []string {
	t, err := b.getOrJoinTopic(topic)
	if err != nil {
		return nil
	}
	peers := t.ListPeers()
	out := make([]string, 0, len(peers))
	for _, pid := range peers {
		out = append(out, pid.String())
	}
	return out
}

func (b *Bus) getOrJoinTopic(name string) (*pubsub.Topic, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, bus.ErrClosed
	}
	if t, ok := b.topics[name]; ok {
		return t, nil
	}
	t, err := b.ps.Join(name)
	if err != nil {
		return nil, err
	}
	b.topics[name] = t
	return t, nil
}

type mdnsNotifee struct {
	host   host.Host
	logger *slog.Logger
}

func (n *mdnsNotifee) HandlePeerFound(info peer.AddrInfo) {
	if info.ID == n.host.ID() {
		return
	}
	if err := n.host.Connect(context.Background(), info); err != nil {
		n.logger.Debug("mdns connect failed", "peer", info.ID, "error", err)
		return
	}
	n.logger.Info("peer discovered", "peer", info.ID)
}

func loadOrCreateIdentityKey(path string) (crypto.PrivKey, error) {
	if b, err := os.ReadFile(path); err == nil && len(b) > 0 {
		key, err := crypto.UnmarshalPrivateKey(b)
		if err != nil {
			return nil, fmt.Errorf("unmarshal private key: %w", err)
		}
		return key, nil
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir key dir: %w", err)
	}
	key, _, err := crypto.GenerateEd25519Key(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ed25519 key: %w", err)
	}
	raw, err := crypto.MarshalPrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("marshal private key: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return nil, fmt.Errorf("write private key: %w", err)
	}
	return key, nil
}
