package storage

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"golang.org/x/sync/singleflight"

	"crafture/internal/domain"
)

// Session is the process-wide connection to the storage network: the signing
// wallet, the chain it lives on and the contracts payment setup talks to.
type Session struct {
	Network     string
	ChainID     *big.Int
	Address     common.Address
	Token       common.Address
	WarmStorage common.Address
	Chain       Chain

	close func()
}

// Close releases the RPC connection.
func (s *Session) Close() {
	if s != nil && s.close != nil {
		s.close()
	}
}

// ServiceAddress is the lowercase storage service address used in gateway hosts.
func (s *Session) ServiceAddress() string {
	return strings.ToLower(s.WarmStorage.Hex())
}

// DialConfig holds what is needed to open a session. An empty
// PaymentsAddress is read from the warm storage contract.
type DialConfig struct {
	PrivateKey         string
	RPCURL             string
	TokenAddress       string
	PaymentsAddress    string
	WarmStorageAddress string
}

// Dial connects to the RPC endpoint and binds the token and payments contracts.
func Dial(ctx context.Context, cfg DialConfig) (*Session, error) {
	keyHex := strings.TrimPrefix(strings.TrimSpace(cfg.PrivateKey), "0x")
	if keyHex == "" {
		return nil, fmt.Errorf("%w: FILECOIN_PRIVATE_KEY is not set", domain.ErrConfiguration)
	}
	key, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid private key: %w", domain.ErrConfiguration, err)
	}
	addrs := map[string]string{
		"FILECOIN_USDFC_ADDRESS":        cfg.TokenAddress,
		"FILECOIN_WARM_STORAGE_ADDRESS": cfg.WarmStorageAddress,
	}
	if cfg.PaymentsAddress != "" {
		addrs["FILECOIN_PAYMENTS_ADDRESS"] = cfg.PaymentsAddress
	}
	for name, addr := range addrs {
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("%w: %s is not a valid address", domain.ErrConfiguration, name)
		}
	}
	warmStorage := common.HexToAddress(cfg.WarmStorageAddress)

	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("read chain id: %w", err)
	}

	payments := common.HexToAddress(cfg.PaymentsAddress)
	if cfg.PaymentsAddress == "" {
		payments, err = paymentsFromWarmStorage(ctx, client, warmStorage)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("resolve payments contract: %w", err)
		}
	}

	token := common.HexToAddress(cfg.TokenAddress)
	chain, err := newEthChain(client, key, chainID, token, payments)
	if err != nil {
		client.Close()
		return nil, err
	}

	return &Session{
		Network:     NetworkName(chainID),
		ChainID:     chainID,
		Address:     chain.from,
		Token:       token,
		WarmStorage: warmStorage,
		Chain:       chain,
		close:       client.Close,
	}, nil
}

// NetworkName maps a Filecoin chain id to the name used in gateway hosts.
func NetworkName(chainID *big.Int) string {
	if chainID != nil && chainID.Int64() == 314 {
		return "mainnet"
	}
	return DefaultNetwork
}

// Connector opens a new session.
type Connector func(ctx context.Context) (*Session, error)

// SessionSource hands out the shared session.
type SessionSource interface {
	Session(ctx context.Context) (*Session, error)
}

// Manager owns the single shared session. Concurrent first callers share one
// connection attempt; a failed attempt is not remembered. The dial runs
// detached from any one caller's cancellation, and each caller stops waiting
// when its own context ends.
type Manager struct {
	connect Connector

	mu      sync.Mutex
	session *Session
	group   singleflight.Group
}

func NewManager(connect Connector) *Manager {
	return &Manager{connect: connect}
}

func (m *Manager) cached() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

func (m *Manager) Session(ctx context.Context) (*Session, error) {
	if s := m.cached(); s != nil {
		return s, nil
	}

	dialCtx := context.WithoutCancel(ctx)
	ch := m.group.DoChan("session", func() (any, error) {
		if s := m.cached(); s != nil {
			return s, nil
		}
		s, err := m.connect(dialCtx)
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		m.session = s
		m.mu.Unlock()
		return s, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Session), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("wait for storage session: %w", ctx.Err())
	}
}

// Close drops the cached session.
func (m *Manager) Close() {
	m.mu.Lock()
	s := m.session
	m.session = nil
	m.mu.Unlock()
	s.Close()
}

var _ SessionSource = (*Manager)(nil)
