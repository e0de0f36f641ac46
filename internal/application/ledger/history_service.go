// Package ledger loads the balance history of the signed-in account.
package ledger

import (
	"context"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/logiride/client/internal/domain/identity"
	"github.com/logiride/client/internal/domain/ledger"
	"github.com/logiride/client/internal/infrastructure/config"
	"github.com/logiride/client/internal/infrastructure/httpclient"
)

// PathHistory is the balance history endpoint prefix
const PathHistory = "/api/balanceHistory"

// API is the part of the REST client the history service uses
type API interface {
	Get(ctx context.Context, path string, out any, opts ...httpclient.CallOption) error
}

var _ API = (*httpclient.Client)(nil)

// HistoryService fetches, groups and totals balance transactions
type HistoryService struct {
	api      API
	sessions identity.SessionStore
	policy   httpclient.RetryPolicy
	loc      *time.Location
	logger   *zap.Logger
}

// NewHistoryService creates a history service retrying as cfg says
func NewHistoryService(api API, sessions identity.SessionStore, cfg config.HistoryConfig, logger *zap.Logger) *HistoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &HistoryService{
		api:      api,
		sessions: sessions,
		loc:      cfg.Location(),
		logger:   logger,
		policy: httpclient.RetryPolicy{
			Attempts: cfg.Attempts,
			Base:     cfg.RetryBase,
		},
	}
	s.policy.OnRetry = func(attempt int, wait time.Duration, err error) {
		s.logger.Warn("Balance history fetch failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}
	return s
}

// Fetch loads every transaction of the signed-in account. Dates without a zone
// are read in the configured history timezone.
func (s *HistoryService) Fetch(ctx context.Context) ([]ledger.Transaction, error) {
	session, err := s.sessions.Get(ctx)
	if err != nil {
		return nil, err
	}

	path := PathHistory + "/" + url.PathEscape(session.AccountID)
	var records []ledger.Transaction
	err = httpclient.RetryLinear(ctx, s.policy, func(ctx context.Context) error {
		records = nil
		return s.api.Get(ctx, path, &records, httpclient.WithRoute(PathHistory+"/{accountId}"))
	})
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []ledger.Transaction{}
	}
	for i := range records {
		records[i].TransactionDate = records[i].TransactionDate.Anchor(s.loc)
	}
	return records, nil
}

// Grouped fetches and groups the history by local day relative to now
func (s *HistoryService) Grouped(ctx context.Context, now time.Time) ([]ledger.DayGroup, error) {
	records, err := s.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	return ledger.GroupByDay(records, now, s.loc), nil
}

// Summary fetches the history and totals it
func (s *HistoryService) Summary(ctx context.Context) (ledger.Summary, error) {
	records, err := s.Fetch(ctx)
	if err != nil {
		return ledger.Summary{}, err
	}
	return ledger.Summarize(records), nil
}
