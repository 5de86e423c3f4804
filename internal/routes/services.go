package routes

import (
	"github.com/rovobit/exchange/internal/funding"
	"github.com/rovobit/exchange/internal/history"
	"github.com/rovobit/exchange/internal/infra"
	"github.com/rovobit/exchange/internal/ledger"
	"github.com/rovobit/exchange/internal/market"
	"github.com/rovobit/exchange/internal/notification"
	"github.com/rovobit/exchange/internal/settlement"
)

const sweepLockKey = "settlement:sweep:lock"

// Services holds the domain services shared by handlers and background workers.
type Services struct {
	Wallets    *ledger.Service
	Settlement *settlement.Service
	Funding    *funding.Service
	History    *history.Service
	Prices     market.Store
	Sweeper    *settlement.Sweeper
}

// NewServices picks Postgres and Redis backends when configured and falls back
// to in-memory ones otherwise.
func NewServices(d Deps) (*Services, error) {
	var (
		tx           infra.Transactor
		walletRepo   ledger.Repository
		trades       settlement.TradeRepository
		positions    settlement.PositionRepository
		requests     funding.RequestRepository
		transactions funding.TransactionRepository
	)
	if d.DB != nil {
		tx = infra.NewPostgresTransactor(d.DB, d.Cfg.CASMaxAttempts)
		walletRepo = ledger.NewPostgresRepository(d.DB)
		trades = settlement.NewPostgresTradeRepository(d.DB)
		positions = settlement.NewPostgresPositionRepository(d.DB)
		requests = funding.NewPostgresRequestRepository(d.DB)
		transactions = funding.NewPostgresTransactionRepository(d.DB)
	} else {
		tx = infra.NewMemoryTransactor()
		walletRepo = ledger.NewMemoryRepository()
		trades = settlement.NewMemoryTradeRepository()
		positions = settlement.NewMemoryPositionRepository()
		requests = funding.NewMemoryRequestRepository()
		transactions = funding.NewMemoryTransactionRepository()
	}

	var (
		notifier notification.Notifier = notification.NewLoggerNotifier(d.Logger)
		prices   market.Store
		flags    settlement.ProfitFlags
		lock     settlement.Lock
	)
	if d.Cache != nil {
		notifier = notification.Multi{notifier, notification.NewRedisNotifier(d.Cache, d.Cfg.NotifyChannel)}
		prices = market.NewRedisStore(d.Cache, market.DefaultPricesKey, notifier, d.Logger)
		flags = settlement.NewRedisFlags(d.Cache)
		lock = settlement.NewRedisLock(d.Cache, sweepLockKey, 2*d.Cfg.SweepInterval)
	} else {
		prices = market.NewMemoryStore(nil, notifier, d.Logger)
		flags = settlement.NewMemoryFlags()
	}

	wallets := ledger.NewService(walletRepo, tx, d.Metrics, d.Logger)
	settle, err := settlement.NewService(settlement.Deps{
		Trades:    trades,
		Positions: positions,
		Wallets:   wallets,
		Tx:        tx,
		Flags:     flags,
		Notifier:  notifier,
		Metrics:   d.Metrics,
		Logger:    d.Logger,
	})
	if err != nil {
		return nil, err
	}
	fund, err := funding.NewService(funding.Deps{
		Requests:     requests,
		Transactions: transactions,
		Wallets:      wallets,
		Tx:           tx,
		Notifier:     notifier,
		Metrics:      d.Metrics,
		Logger:       d.Logger,
	})
	if err != nil {
		return nil, err
	}
	hist, err := history.NewService(history.Deps{
		Trades:       trades,
		Positions:    positions,
		Requests:     requests,
		Transactions: transactions,
		Wallets:      wallets,
		Tx:           tx,
		Logger:       d.Logger,
	})
	if err != nil {
		return nil, err
	}

	sweeper := settlement.NewSweeper(settle, prices, lock, settlement.SweeperConfig{
		Interval: d.Cfg.SweepInterval,
		Workers:  d.Cfg.SweepWorkers,
	}, d.Metrics, d.Logger)

	return &Services{
		Wallets:    wallets,
		Settlement: settle,
		Funding:    fund,
		History:    hist,
		Prices:     prices,
		Sweeper:    sweeper,
	}, nil
}
