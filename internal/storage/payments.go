package storage

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"crafture/internal/domain"
	"crafture/internal/infra"
)

// EpochsPerMonth is thirty days of 30 second Filecoin epochs.
const EpochsPerMonth = 86400

var (
	DepositAmount   = MustParseUnits("2", TokenDecimals)
	MinimumBalance  = MustParseUnits("2", TokenDecimals)
	RateAllowance   = MustParseUnits("10", TokenDecimals)
	LockupAllowance = MustParseUnits("1000", TokenDecimals)
	MaxLockupPeriod = big.NewInt(EpochsPerMonth)
)

// PaymentSetup funds the payments account and approves the storage service
// as an operator. Concurrent callers share one in-flight run.
type PaymentSetup struct {
	sessions SessionSource
	timeout  time.Duration
	logger   infra.Logger
	group    singleflight.Group
}

func NewPaymentSetup(sessions SessionSource, timeout time.Duration, logger *infra.Logger) *PaymentSetup {
	l := zerolog.Nop()
	if logger != nil {
		l = *logger
	}
	if timeout <= 0 {
		timeout = 3 * time.Minute
	}
	return &PaymentSetup{sessions: sessions, timeout: timeout, logger: l}
}

// EnsureFunded runs the setup once. When the payments account already holds
// the deposit amount the deposit is skipped and only the approval is sent.
func (p *PaymentSetup) EnsureFunded(ctx context.Context) error {
	_, err, shared := p.group.Do("ensure-funded", func() (any, error) {
		return nil, p.run(ctx)
	})
	if shared {
		p.logger.Debug().Msg("payment setup joined in-flight run")
	}
	return err
}

func (p *PaymentSetup) run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	s, err := p.sessions.Session(ctx)
	if err != nil {
		return err
	}
	chain := s.Chain

	funds, err := chain.AccountFunds(ctx)
	if err != nil {
		return fmt.Errorf("%w: read payments account: %w", domain.ErrTransaction, err)
	}

	if funds.Cmp(DepositAmount) >= 0 {
		p.logger.Info().Str("funds", FormatUnits(funds, TokenDecimals)).Msg("payments account already funded, skipping deposit")
	} else {
		balance, err := chain.TokenBalance(ctx)
		if err != nil {
			return fmt.Errorf("%w: read wallet balance: %w", domain.ErrTransaction, err)
		}
		p.logger.Info().Str("balance", FormatUnits(balance, TokenDecimals)).Msg("wallet USDFC balance")
		if balance.Cmp(MinimumBalance) < 0 {
			return fmt.Errorf("%w: wallet holds %s USDFC, need %s", domain.ErrInsufficientFunds,
				FormatUnits(balance, TokenDecimals), FormatUnits(MinimumBalance, TokenDecimals))
		}

		hash, err := chain.DepositWithPermit(ctx, DepositAmount)
		if err != nil {
			return fmt.Errorf("%w: deposit: %w", domain.ErrTransaction, err)
		}
		p.logger.Info().Str("tx", hash.Hex()).Msg("deposit submitted")
		if err := p.await(ctx, chain, hash, "deposit"); err != nil {
			return err
		}
	}

	hash, err := chain.ApproveService(ctx, s.WarmStorage, RateAllowance, LockupAllowance, MaxLockupPeriod)
	if err != nil {
		return fmt.Errorf("%w: approve service: %w", domain.ErrTransaction, err)
	}
	p.logger.Info().Str("tx", hash.Hex()).Str("operator", s.WarmStorage.Hex()).Msg("service approval submitted")
	if err := p.await(ctx, chain, hash, "approve service"); err != nil {
		return err
	}

	if balance, err := chain.TokenBalance(ctx); err == nil {
		p.logger.Info().Str("balance", FormatUnits(balance, TokenDecimals)).Msg("payment setup complete")
	}
	return nil
}

func (p *PaymentSetup) await(ctx context.Context, chain Chain, hash common.Hash, step string) error {
	receipt, err := chain.WaitForReceipt(ctx, hash)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", domain.ErrTransaction, step, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("%w: %s: transaction %s reverted", domain.ErrTransaction, step, hash.Hex())
	}
	p.logger.Info().Str("tx", hash.Hex()).Str("block", receipt.BlockNumber.String()).Msgf("%s confirmed", step)
	return nil
}
