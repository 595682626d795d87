package storage

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crafture/internal/domain"
)

func approveCall() string {
	return "approve:" + testWarmStorage.Hex() + ":" + RateAllowance.String() + ":" + LockupAllowance.String() + ":86400"
}

func TestEnsureFundedDepositsThenApproves(t *testing.T) {
	chain := newFakeChain(MustParseUnits("5", TokenDecimals), big.NewInt(0))
	setup := NewPaymentSetup(staticSessions{session: testSession(chain)}, 0, nil)

	require.NoError(t, setup.EnsureFunded(context.Background()))

	assert.Equal(t, []string{
		"funds",
		"balance",
		"deposit:" + DepositAmount.String(),
		"wait:" + common.HexToHash("0x01").Hex(),
		approveCall(),
		"wait:" + common.HexToHash("0x02").Hex(),
		"balance",
	}, chain.Calls())
}

func TestEnsureFundedInsufficientBalance(t *testing.T) {
	chain := newFakeChain(MustParseUnits("1.99", TokenDecimals), big.NewInt(0))
	setup := NewPaymentSetup(staticSessions{session: testSession(chain)}, 0, nil)

	err := setup.EnsureFunded(context.Background())
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.Equal(t, []string{"funds", "balance"}, chain.Calls(), "no transaction may be sent")
}

func TestEnsureFundedSkipsDepositWhenFunded(t *testing.T) {
	chain := newFakeChain(big.NewInt(0), MustParseUnits("2", TokenDecimals))
	setup := NewPaymentSetup(staticSessions{session: testSession(chain)}, 0, nil)

	require.NoError(t, setup.EnsureFunded(context.Background()))
	calls := chain.Calls()
	assert.NotContains(t, calls, "deposit:"+DepositAmount.String())
	assert.Contains(t, calls, approveCall())
}

func TestEnsureFundedRevertedDepositStops(t *testing.T) {
	chain := newFakeChain(MustParseUnits("5", TokenDecimals), big.NewInt(0))
	chain.statuses[common.HexToHash("0x01").Hex()] = types.ReceiptStatusFailed
	setup := NewPaymentSetup(staticSessions{session: testSession(chain)}, 0, nil)

	err := setup.EnsureFunded(context.Background())
	assert.ErrorIs(t, err, domain.ErrTransaction)
	assert.NotContains(t, chain.Calls(), approveCall())
}

func TestEnsureFundedSendFailure(t *testing.T) {
	chain := newFakeChain(MustParseUnits("5", TokenDecimals), big.NewInt(0))
	chain.sendErr = errBoom
	setup := NewPaymentSetup(staticSessions{session: testSession(chain)}, 0, nil)

	err := setup.EnsureFunded(context.Background())
	assert.ErrorIs(t, err, domain.ErrTransaction)
	assert.ErrorIs(t, err, errBoom)
}

func TestEnsureFundedSessionError(t *testing.T) {
	setup := NewPaymentSetup(staticSessions{err: domain.ErrConfiguration}, 0, nil)
	assert.ErrorIs(t, setup.EnsureFunded(context.Background()), domain.ErrConfiguration)
}

func TestEnsureFundedConcurrentCallersShareRun(t *testing.T) {
	chain := newFakeChain(MustParseUnits("5", TokenDecimals), big.NewInt(0))
	chain.gate = make(chan struct{})
	setup := NewPaymentSetup(staticSessions{session: testSession(chain)}, 0, nil)

	const callers = 5
	var wg sync.WaitGroup
	errs := make([]error, callers)
	started := make(chan struct{}, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			started <- struct{}{}
			errs[i] = setup.EnsureFunded(context.Background())
		}(i)
	}
	for i := 0; i < callers; i++ {
		<-started
	}
	// the leader is parked inside AccountFunds; give the others time to join
	time.Sleep(50 * time.Millisecond)
	close(chain.gate)
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	deposits := 0
	for _, c := range chain.Calls() {
		if c == "deposit:"+DepositAmount.String() {
			deposits++
		}
	}
	assert.Equal(t, 1, deposits)
}
