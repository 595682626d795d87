package storage

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

type fakeChain struct {
	mu sync.Mutex

	balance  *big.Int
	funds    *big.Int
	statuses map[string]uint64
	sendErr  error

	calls []string
	gate  chan struct{}
}

func newFakeChain(balance, funds *big.Int) *fakeChain {
	return &fakeChain{balance: balance, funds: funds, statuses: map[string]uint64{}}
}

func (f *fakeChain) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeChain) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeChain) TokenBalance(context.Context) (*big.Int, error) {
	f.record("balance")
	return f.balance, nil
}

func (f *fakeChain) AccountFunds(context.Context) (*big.Int, error) {
	f.record("funds")
	if f.gate != nil {
		<-f.gate
	}
	return f.funds, nil
}

func (f *fakeChain) DepositWithPermit(_ context.Context, amount *big.Int) (common.Hash, error) {
	f.record("deposit:" + amount.String())
	if f.sendErr != nil {
		return common.Hash{}, f.sendErr
	}
	return common.HexToHash("0x01"), nil
}

func (f *fakeChain) ApproveService(_ context.Context, operator common.Address, rate, lockup, maxPeriod *big.Int) (common.Hash, error) {
	f.record("approve:" + operator.Hex() + ":" + rate.String() + ":" + lockup.String() + ":" + maxPeriod.String())
	if f.sendErr != nil {
		return common.Hash{}, f.sendErr
	}
	return common.HexToHash("0x02"), nil
}

func (f *fakeChain) WaitForReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	f.record("wait:" + hash.Hex())
	status := types.ReceiptStatusSuccessful
	if s, ok := f.statuses[hash.Hex()]; ok {
		status = s
	}
	return &types.Receipt{Status: status, TxHash: hash, BlockNumber: big.NewInt(7)}, nil
}

type staticSessions struct {
	session *Session
	err     error
}

func (s staticSessions) Session(context.Context) (*Session, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.session, nil
}

var errBoom = errors.New("boom")

var testWarmStorage = common.HexToAddress("0x5233e4253bc38e8cf517c0768dbc8acc886f32b3")

func testSession(chain Chain) *Session {
	return &Session{
		Network:     "calibration",
		ChainID:     big.NewInt(314159),
		Address:     common.HexToAddress("0x00000000000000000000000000000000000000aa"),
		Token:       common.HexToAddress("0xb3042734b608a1B16e9e86B374A3f3e389B4cDf0"),
		WarmStorage: testWarmStorage,
		Chain:       chain,
	}
}
