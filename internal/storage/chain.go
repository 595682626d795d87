package storage

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

const erc20ABI = `[
{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"name","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
{"type":"function","name":"version","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
{"type":"function","name":"nonces","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`

const paymentsABI = `[
{"type":"function","name":"accounts","stateMutability":"view","inputs":[{"name":"token","type":"address"},{"name":"owner","type":"address"}],"outputs":[{"name":"funds","type":"uint256"},{"name":"lockupCurrent","type":"uint256"},{"name":"lockupRate","type":"uint256"},{"name":"lockupLastSettledAt","type":"uint256"}]},
{"type":"function","name":"depositWithPermit","stateMutability":"nonpayable","inputs":[{"name":"token","type":"address"},{"name":"to","type":"address"},{"name":"amount","type":"uint256"},{"name":"deadline","type":"uint256"},{"name":"v","type":"uint8"},{"name":"r","type":"bytes32"},{"name":"s","type":"bytes32"}],"outputs":[]},
{"type":"function","name":"setOperatorApproval","stateMutability":"nonpayable","inputs":[{"name":"token","type":"address"},{"name":"operator","type":"address"},{"name":"approved","type":"bool"},{"name":"rateAllowance","type":"uint256"},{"name":"lockupAllowance","type":"uint256"},{"name":"maxLockupPeriod","type":"uint256"}],"outputs":[]}
]`

const warmStorageABI = `[
{"type":"function","name":"paymentsContractAddress","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]}
]`

const (
	permitValidity  = time.Hour
	receiptInterval = 2 * time.Second
)

// Chain is the on-chain surface used by payment setup and storage stats.
type Chain interface {
	TokenBalance(ctx context.Context) (*big.Int, error)
	AccountFunds(ctx context.Context) (*big.Int, error)
	DepositWithPermit(ctx context.Context, amount *big.Int) (common.Hash, error)
	ApproveService(ctx context.Context, operator common.Address, rate, lockup, maxLockupPeriod *big.Int) (common.Hash, error)
	WaitForReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// receiptBackend is the part of ethclient used for receipt polling.
type receiptBackend interface {
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

type ethChain struct {
	client   *ethclient.Client
	receipts receiptBackend
	key      *ecdsa.PrivateKey
	from     common.Address
	chainID  *big.Int

	tokenAddr    common.Address
	paymentsAddr common.Address
	token        *bind.BoundContract
	payments     *bind.BoundContract
	interval     time.Duration
}

func newEthChain(client *ethclient.Client, key *ecdsa.PrivateKey, chainID *big.Int, tokenAddr, paymentsAddr common.Address) (*ethChain, error) {
	tokenABI, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("parse token abi: %w", err)
	}
	payABI, err := abi.JSON(strings.NewReader(paymentsABI))
	if err != nil {
		return nil, fmt.Errorf("parse payments abi: %w", err)
	}
	return &ethChain{
		client:       client,
		receipts:     client,
		key:          key,
		from:         crypto.PubkeyToAddress(key.PublicKey),
		chainID:      chainID,
		tokenAddr:    tokenAddr,
		paymentsAddr: paymentsAddr,
		token:        bind.NewBoundContract(tokenAddr, tokenABI, client, client, client),
		payments:     bind.NewBoundContract(paymentsAddr, payABI, client, client, client),
		interval:     receiptInterval,
	}, nil
}

func (c *ethChain) call(ctx context.Context, contract *bind.BoundContract, method string, params ...any) ([]any, error) {
	var out []any
	if err := contract.Call(&bind.CallOpts{Context: ctx, From: c.from}, &out, method, params...); err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	return out, nil
}

func (c *ethChain) callBig(ctx context.Context, contract *bind.BoundContract, method string, params ...any) (*big.Int, error) {
	out, err := c.call(ctx, contract, method, params...)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("call %s: empty result", method)
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("call %s: unexpected result %T", method, out[0])
	}
	return v, nil
}

func (c *ethChain) TokenBalance(ctx context.Context) (*big.Int, error) {
	return c.callBig(ctx, c.token, "balanceOf", c.from)
}

func (c *ethChain) AccountFunds(ctx context.Context) (*big.Int, error) {
	return c.callBig(ctx, c.payments, "accounts", c.tokenAddr, c.from)
}

func (c *ethChain) transactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(c.key, c.chainID)
	if err != nil {
		return nil, fmt.Errorf("transactor: %w", err)
	}
	opts.Context = ctx
	return opts, nil
}

// DepositWithPermit signs an EIP-2612 permit for the payments contract and
// deposits amount into the caller's own payments account in one transaction.
func (c *ethChain) DepositWithPermit(ctx context.Context, amount *big.Int) (common.Hash, error) {
	deadline := big.NewInt(time.Now().Add(permitValidity).Unix())
	v, r, s, err := c.signPermit(ctx, amount, deadline)
	if err != nil {
		return common.Hash{}, err
	}
	opts, err := c.transactOpts(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	tx, err := c.payments.Transact(opts, "depositWithPermit", c.tokenAddr, c.from, amount, deadline, v, r, s)
	if err != nil {
		return common.Hash{}, fmt.Errorf("send depositWithPermit: %w", err)
	}
	return tx.Hash(), nil
}

func (c *ethChain) ApproveService(ctx context.Context, operator common.Address, rate, lockup, maxLockupPeriod *big.Int) (common.Hash, error) {
	opts, err := c.transactOpts(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	tx, err := c.payments.Transact(opts, "setOperatorApproval", c.tokenAddr, operator, true, rate, lockup, maxLockupPeriod)
	if err != nil {
		return common.Hash{}, fmt.Errorf("send setOperatorApproval: %w", err)
	}
	return tx.Hash(), nil
}

func (c *ethChain) signPermit(ctx context.Context, amount, deadline *big.Int) (uint8, [32]byte, [32]byte, error) {
	var r, s [32]byte
	nameOut, err := c.call(ctx, c.token, "name")
	if err != nil {
		return 0, r, s, err
	}
	name, _ := nameOut[0].(string)
	version := "1"
	if out, err := c.call(ctx, c.token, "version"); err == nil && len(out) > 0 {
		if v, ok := out[0].(string); ok && v != "" {
			version = v
		}
	}
	nonce, err := c.callBig(ctx, c.token, "nonces", c.from)
	if err != nil {
		return 0, r, s, err
	}

	typed := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"Permit": {
				{Name: "owner", Type: "address"},
				{Name: "spender", Type: "address"},
				{Name: "value", Type: "uint256"},
				{Name: "nonce", Type: "uint256"},
				{Name: "deadline", Type: "uint256"},
			},
		},
		PrimaryType: "Permit",
		Domain: apitypes.TypedDataDomain{
			Name:              name,
			Version:           version,
			ChainId:           (*math.HexOrDecimal256)(c.chainID),
			VerifyingContract: c.tokenAddr.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"owner":    c.from.Hex(),
			"spender":  c.paymentsAddr.Hex(),
			"value":    amount,
			"nonce":    nonce,
			"deadline": deadline,
		},
	}
	digest, _, err := apitypes.TypedDataAndHash(typed)
	if err != nil {
		return 0, r, s, fmt.Errorf("hash permit: %w", err)
	}
	sig, err := crypto.Sign(digest, c.key)
	if err != nil {
		return 0, r, s, fmt.Errorf("sign permit: %w", err)
	}
	copy(r[:], sig[:32])
	copy(s[:], sig[32:64])
	return sig[64] + 27, r, s, nil
}

// WaitForReceipt polls until the transaction is mined or ctx ends. Failed
// execution is reported through the receipt status, not as an error.
func (c *ethChain) WaitForReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	return waitForReceipt(ctx, c.receipts, hash, c.interval)
}

func waitForReceipt(ctx context.Context, backend receiptBackend, hash common.Hash, interval time.Duration) (*types.Receipt, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		receipt, err := backend.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("get transaction receipt: %w", err)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("wait for receipt %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

// paymentsFromWarmStorage reads the payments contract the warm storage
// service settles through.
func paymentsFromWarmStorage(ctx context.Context, caller bind.ContractCaller, warmStorage common.Address) (common.Address, error) {
	parsed, err := abi.JSON(strings.NewReader(warmStorageABI))
	if err != nil {
		return common.Address{}, fmt.Errorf("parse warm storage abi: %w", err)
	}
	contract := bind.NewBoundContract(warmStorage, parsed, caller, nil, nil)
	var out []any
	if err := contract.Call(&bind.CallOpts{Context: ctx}, &out, "paymentsContractAddress"); err != nil {
		return common.Address{}, fmt.Errorf("call paymentsContractAddress: %w", err)
	}
	if len(out) == 0 {
		return common.Address{}, fmt.Errorf("call paymentsContractAddress: empty result")
	}
	addr, ok := out[0].(common.Address)
	if !ok || addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("call paymentsContractAddress: unexpected result %v", out[0])
	}
	return addr, nil
}

var _ Chain = (*ethChain)(nil)
