package ledger

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logiride/client/internal/domain/identity"
	"github.com/logiride/client/internal/domain/ledger"
	"github.com/logiride/client/internal/domain/shared"
	"github.com/logiride/client/internal/infrastructure/config"
	"github.com/logiride/client/internal/infrastructure/httpclient"
	"github.com/logiride/client/internal/infrastructure/httpclient/httpclienttest"
	"github.com/logiride/client/internal/infrastructure/session"
)

func newHistoryService(t *testing.T) (*HistoryService, *httpclienttest.Server, *[]time.Duration) {
	t.Helper()
	srv := httpclienttest.NewServer(t)
	store := session.NewMemoryStore()
	require.NoError(t, store.Set(context.Background(), &identity.Session{AccessToken: "tok", AccountID: "acc-1"}))

	svc := NewHistoryService(srv.Client(t, store), store, config.HistoryConfig{
		Attempts:  3,
		RetryBase: 2 * time.Second,
		Timezone:  "Asia/Ho_Chi_Minh",
	}, nil)
	var waits []time.Duration
	svc.policy.Sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	return svc, srv, &waits
}

const historyPath = "/api/balanceHistory/acc-1"

func TestHistoryService_Grouped(t *testing.T) {
	svc, srv, _ := newHistoryService(t)
	srv.Handle(http.MethodGet, historyPath, func(*http.Request, []byte) (int, any) {
		return http.StatusOK, map[string]any{"code": 200, "message": "ok", "data": []map[string]any{
			{"id": "t1", "type": "DEPOSIT", "amount": 500000, "currentBalance": 500000, "transactionDate": "2024-06-14T10:00:00+07:00"},
			{"id": "t2", "type": "WITHDRAW", "amount": -200000, "currentBalance": 300000, "transactionDate": "2024-06-15T08:00:00+07:00"},
			{"id": "t3", "type": "PAYMENT_RECEIVED", "amount": 45000, "currentBalance": 345000, "transactionDate": "2024-06-15T09:30:00+07:00"},
			{"id": "t4", "type": "DEPOSIT", "amount": 1000, "currentBalance": 1000, "transactionDate": "2024-06-01 07:00:00"},
			{"id": "t5", "type": "DEPOSIT", "amount": 1, "currentBalance": 1, "transactionDate": "garbage"},
		}}
	})

	loc, err := time.LoadLocation("Asia/Ho_Chi_Minh")
	require.NoError(t, err)
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, loc)

	groups, err := svc.Grouped(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, groups, 4)

	assert.Equal(t, ledger.LabelToday, groups[0].Label)
	require.Len(t, groups[0].Records, 2)
	assert.Equal(t, "t3", groups[0].Records[0].ID)
	assert.Equal(t, "t2", groups[0].Records[1].ID)
	assert.Equal(t, ledger.LabelYesterday, groups[1].Label)
	assert.Equal(t, "01/06/2024", groups[2].Label)
	assert.Equal(t, ledger.LabelUnknownDate, groups[3].Label)

	assert.Len(t, ledger.Flatten(groups), 5)
}

func TestHistoryService_ZonelessDatesUseHistoryTimezone(t *testing.T) {
	srv := httpclienttest.NewServer(t)
	store := session.NewMemoryStore()
	require.NoError(t, store.Set(context.Background(), &identity.Session{AccessToken: "tok", AccountID: "acc-1"}))
	svc := NewHistoryService(srv.Client(t, store), store, config.HistoryConfig{
		Attempts:  1,
		RetryBase: time.Millisecond,
		Timezone:  "America/New_York",
	}, nil)
	srv.Handle(http.MethodGet, historyPath, func(*http.Request, []byte) (int, any) {
		return http.StatusOK, httpclienttest.OK([]map[string]any{
			{"id": "t1", "type": "DEPOSIT", "amount": 1000, "currentBalance": 1000, "transactionDate": "2024-06-15 02:00:00"},
		})
	})

	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	records, err := svc.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].When().Equal(time.Date(2024, 6, 15, 2, 0, 0, 0, ny)))

	groups, err := svc.Grouped(context.Background(), time.Date(2024, 6, 15, 9, 0, 0, 0, ny))
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "2024-06-15", groups[0].Key)
	assert.Equal(t, ledger.LabelToday, groups[0].Label)
}

func TestHistoryService_Summary(t *testing.T) {
	svc, srv, _ := newHistoryService(t)
	srv.Reply(http.MethodGet, historyPath, []ledger.Transaction{
		{ID: "a", Amount: decimal.NewFromInt(500000), CurrentBalance: decimal.NewFromInt(500000), TransactionDate: ledger.At(time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC))},
		{ID: "b", Amount: decimal.NewFromInt(-200000), CurrentBalance: decimal.NewFromInt(300000), TransactionDate: ledger.At(time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC))},
	})

	sum, err := svc.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Count)
	assert.True(t, sum.Credits.Equal(decimal.NewFromInt(500000)))
	assert.True(t, sum.Debits.Equal(decimal.NewFromInt(-200000)))
	assert.True(t, sum.Latest.Equal(decimal.NewFromInt(300000)))
}

func TestHistoryService_EmptyHistory(t *testing.T) {
	svc, srv, _ := newHistoryService(t)
	srv.Reply(http.MethodGet, historyPath, nil)

	groups, err := svc.Grouped(context.Background(), time.Now())
	require.NoError(t, err)
	assert.NotNil(t, groups)
	assert.Empty(t, groups)
}

func TestHistoryService_Retry(t *testing.T) {
	t.Run("recovers on the third attempt", func(t *testing.T) {
		svc, srv, waits := newHistoryService(t)
		var calls atomic.Int32
		srv.Handle(http.MethodGet, historyPath, func(*http.Request, []byte) (int, any) {
			if calls.Add(1) < 3 {
				return http.StatusServiceUnavailable, httpclienttest.Fail(503, "Hệ thống đang bận")
			}
			return http.StatusOK, httpclienttest.OK([]ledger.Transaction{{ID: "t1"}})
		})

		records, err := svc.Fetch(context.Background())
		require.NoError(t, err)
		assert.Len(t, records, 1)
		assert.Equal(t, int32(3), calls.Load())
		assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, *waits)
	})

	t.Run("gives up after three attempts with the last message", func(t *testing.T) {
		svc, srv, waits := newHistoryService(t)
		var calls atomic.Int32
		srv.Handle(http.MethodGet, historyPath, func(*http.Request, []byte) (int, any) {
			calls.Add(1)
			return http.StatusInternalServerError, httpclienttest.Fail(500, "Lỗi máy chủ")
		})

		_, err := svc.Fetch(context.Background())
		require.Error(t, err)
		assert.Equal(t, "Lỗi máy chủ", err.Error())
		assert.Equal(t, int32(3), calls.Load())
		assert.Len(t, *waits, 2)
	})

	t.Run("request timeouts are retried", func(t *testing.T) {
		srv := httpclienttest.NewServer(t)
		store := session.NewMemoryStore()
		require.NoError(t, store.Set(context.Background(), &identity.Session{AccessToken: "tok", AccountID: "acc-1"}))
		api, err := httpclient.New(config.APIConfig{BaseURL: srv.URL, Timeout: 50 * time.Millisecond}, store)
		require.NoError(t, err)
		svc := NewHistoryService(api, store, config.HistoryConfig{Attempts: 3, RetryBase: time.Millisecond}, nil)

		var calls atomic.Int32
		srv.Handle(http.MethodGet, historyPath, func(*http.Request, []byte) (int, any) {
			if calls.Add(1) < 3 {
				time.Sleep(200 * time.Millisecond)
			}
			return http.StatusOK, httpclienttest.OK([]ledger.Transaction{{ID: "t1"}})
		})

		records, err := svc.Fetch(context.Background())
		require.NoError(t, err)
		assert.Len(t, records, 1)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("session expiry is not retried", func(t *testing.T) {
		svc, srv, waits := newHistoryService(t)
		srv.Handle(http.MethodGet, historyPath, func(*http.Request, []byte) (int, any) {
			return http.StatusUnauthorized, httpclienttest.Fail(401, "expired")
		})
		_, err := svc.Fetch(context.Background())
		assert.True(t, errors.Is(err, httpclient.ErrSessionExpired))
		assert.Empty(t, *waits)
	})
}

func TestHistoryService_NoSession(t *testing.T) {
	srv := httpclienttest.NewServer(t)
	store := session.NewMemoryStore()
	svc := NewHistoryService(srv.Client(t, store), store, config.HistoryConfig{}, nil)

	_, err := svc.Fetch(context.Background())
	assert.True(t, errors.Is(err, shared.ErrNoSession))
	assert.Empty(t, srv.Calls())
}
