package ledger

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptorockets.net/backend/internal/common"
	"cryptorockets.net/backend/internal/db/postgres"
)

// fakeStore — in-memory хранилище пользователей и журнала.
type fakeStore struct {
	mu           sync.Mutex
	users        map[int64]*User
	transactions []*Transaction
	nextTxID     int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{users: make(map[int64]*User)}
}

func (f *fakeStore) addUser(telegramID int64, balances map[Currency]decimal.Decimal) {
	u := &User{ID: telegramID, TelegramID: telegramID}
	for c, v := range balances {
		u.setBalance(c, v)
	}
	f.users[telegramID] = u
}

func (f *fakeStore) GetUser(_ context.Context, _ postgres.Querier, telegramID int64) (*User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[telegramID]
	if !ok {
		return nil, common.ErrUserNotFound
	}
	copied := *u
	return &copied, nil
}

func (f *fakeStore) GetUserForUpdate(ctx context.Context, q postgres.Querier, telegramID int64) (*User, error) {
	return f.GetUser(ctx, q, telegramID)
}

func (f *fakeStore) UpdateBalance(_ context.Context, _ postgres.Querier, telegramID int64, c Currency, newBalance any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[telegramID].setBalance(c, newBalance.(decimal.Decimal))
	return nil
}

func (f *fakeStore) InsertTransaction(_ context.Context, _ postgres.Querier, t *Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextTxID++
	t.ID = f.nextTxID
	f.transactions = append(f.transactions, t)
	return nil
}

func (f *fakeStore) AttachRefund(_ context.Context, _ postgres.Querier, txID, refundID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.transactions {
		if t.ID == txID && t.RefundID == nil {
			t.RefundID = &refundID
			return nil
		}
	}
	return common.ErrUserNotFound
}

func (f *fakeStore) IncrementSpinCount(_ context.Context, _ postgres.Querier, telegramID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[telegramID].SpinCount++
	return nil
}

func (f *fakeStore) CreateUser(_ context.Context, _ postgres.Querier, telegramID int64, referralFrom *int64) (*User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := &User{
		ID:           telegramID,
		TelegramID:   telegramID,
		WheelBalance: decimal.NewFromInt(3),
		ReferralFrom: referralFrom,
	}
	f.users[telegramID] = u
	copied := *u
	return &copied, nil
}

// fakeTx сериализует транзакции мьютексом, как это делают блокировки строк.
type fakeTx struct {
	mu sync.Mutex
}

func (f *fakeTx) InTx(ctx context.Context, fn func(ctx context.Context, q postgres.Querier) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fn(ctx, nil)
}

type fakePublisher struct {
	mu     sync.Mutex
	events []string
}

func (f *fakePublisher) PublishAsync(event string, _ int64, _ any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

type fakeGranter struct {
	starterCalls []int64
	refillCalls  []int64
	refillDouble []bool
	refillErr    error
}

func (f *fakeGranter) GrantStarterSet(_ context.Context, _ postgres.Querier, telegramID int64) error {
	f.starterCalls = append(f.starterCalls, telegramID)
	return nil
}

func (f *fakeGranter) RefillPremium(_ context.Context, _ postgres.Querier, telegramID int64, double bool) error {
	f.refillCalls = append(f.refillCalls, telegramID)
	f.refillDouble = append(f.refillDouble, double)
	return f.refillErr
}

func newTestService(store *fakeStore) (*Service, *fakePublisher) {
	events := &fakePublisher{}
	return NewService(store, &fakeTx{}, events), events
}

func TestChangeBalanceArithmetic(t *testing.T) {
	store := newFakeStore()
	store.addUser(1, map[Currency]decimal.Decimal{CurrencyUSDT: decimal.NewFromInt(10)})
	svc, _ := newTestService(store)

	res, err := svc.ChangeBalance(context.Background(), nil, 1, CurrencyUSDT, decimal.RequireFromString("2.5"), TxTypeRocketLaunch)
	require.NoError(t, err)

	assert.True(t, res.Transaction.BalanceBefore.Equal(decimal.NewFromInt(10)))
	assert.True(t, res.Transaction.BalanceAfter.Equal(decimal.RequireFromString("12.5")))
	assert.True(t, res.Transaction.Amount.Equal(decimal.RequireFromString("2.5")))
	assert.True(t, res.User.USDTBalance.Equal(decimal.RequireFromString("12.5")))
	assert.Equal(t, TxStatusSuccess, res.Transaction.Status)
	require.Len(t, store.transactions, 1)
}

func TestChangeBalanceInsufficient(t *testing.T) {
	store := newFakeStore()
	store.addUser(1, map[Currency]decimal.Decimal{CurrencyUSDT: decimal.NewFromInt(5)})
	svc, _ := newTestService(store)

	_, err := svc.ChangeBalance(context.Background(), nil, 1, CurrencyUSDT, decimal.NewFromInt(-7), TxTypePurchase)
	require.ErrorIs(t, err, common.ErrInsufficientBalance)

	// Баланс не тронут, журнальной записи нет.
	u, _ := store.GetUser(context.Background(), nil, 1)
	assert.True(t, u.USDTBalance.Equal(decimal.NewFromInt(5)))
	assert.Empty(t, store.transactions)
}

func TestChangeBalanceDebitToZero(t *testing.T) {
	store := newFakeStore()
	store.addUser(1, map[Currency]decimal.Decimal{CurrencyWheel: decimal.NewFromInt(1)})
	svc, _ := newTestService(store)

	res, err := svc.ChangeBalance(context.Background(), nil, 1, CurrencyWheel, decimal.NewFromInt(-1), TxTypeWheelSpin)
	require.NoError(t, err)
	assert.True(t, res.Transaction.BalanceAfter.IsZero())
}

func TestChangeBalanceUnknownCurrency(t *testing.T) {
	store := newFakeStore()
	store.addUser(1, nil)
	svc, _ := newTestService(store)

	_, err := svc.ChangeBalance(context.Background(), nil, 1, CurrencyXTR, decimal.NewFromInt(1), TxTypePurchase)
	assert.ErrorIs(t, err, common.ErrUnknownCurrency)

	_, err = svc.ChangeBalance(context.Background(), nil, 1, Currency("btc"), decimal.NewFromInt(1), TxTypePurchase)
	assert.ErrorIs(t, err, common.ErrUnknownCurrency)
}

func TestChangeBalanceUserNotFound(t *testing.T) {
	svc, _ := newTestService(newFakeStore())

	_, err := svc.ChangeBalance(context.Background(), nil, 404, CurrencyTON, decimal.NewFromInt(1), TxTypeAds)
	assert.ErrorIs(t, err, common.ErrUserNotFound)
}

func TestChangeConcurrentSum(t *testing.T) {
	store := newFakeStore()
	store.addUser(1, map[Currency]decimal.Decimal{CurrencyToken: decimal.Zero})
	svc, events := newTestService(store)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Change(context.Background(), 1, CurrencyToken, decimal.NewFromInt(1), TxTypeTaskCompletion)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	u, _ := store.GetUser(context.Background(), nil, 1)
	assert.True(t, u.TokenBalance.Equal(decimal.NewFromInt(n)), "итог %s", u.TokenBalance)
	assert.Len(t, store.transactions, n)

	events.mu.Lock()
	defer events.mu.Unlock()
	assert.Len(t, events.events, n)
}

func TestChangeConcurrentDebitsNeverNegative(t *testing.T) {
	store := newFakeStore()
	store.addUser(1, map[Currency]decimal.Decimal{CurrencyWheel: decimal.NewFromInt(3)})
	svc, _ := newTestService(store)

	const n = 10
	var wg sync.WaitGroup
	var okCount int64
	var mu sync.Mutex
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Change(context.Background(), 1, CurrencyWheel, decimal.NewFromInt(-1), TxTypeWheelSpin); err == nil {
				mu.Lock()
				okCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	u, _ := store.GetUser(context.Background(), nil, 1)
	assert.EqualValues(t, 3, okCount, "списаний ровно по числу билетов")
	assert.True(t, u.WheelBalance.IsZero())
}

func TestRegisterWithReferral(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestService(store)
	granter := &fakeGranter{}

	referrer := int64(100)
	u, err := svc.Register(context.Background(), 200, &referrer, true, granter)
	require.NoError(t, err)

	assert.True(t, u.WheelBalance.Equal(decimal.NewFromInt(3)))
	assert.Equal(t, []int64{200}, granter.starterCalls)
	assert.Equal(t, []int64{100}, granter.refillCalls)
	assert.Equal(t, []bool{true}, granter.refillDouble)
}

func TestRegisterReferrerWithoutPremiumRocket(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestService(store)
	granter := &fakeGranter{refillErr: common.ErrRocketNotFound}

	referrer := int64(100)
	_, err := svc.Register(context.Background(), 200, &referrer, false, granter)
	require.NoError(t, err, "отсутствие премиум-ракеты у реферера не ломает регистрацию")
}

func TestAttachRefund(t *testing.T) {
	store := newFakeStore()
	store.addUser(1, map[Currency]decimal.Decimal{CurrencyUSDT: decimal.NewFromInt(10)})
	svc, _ := newTestService(store)

	res, err := svc.ChangeBalance(context.Background(), nil, 1, CurrencyUSDT, decimal.NewFromInt(1), TxTypePurchase)
	require.NoError(t, err)

	require.NoError(t, svc.AttachRefund(context.Background(), nil, res.Transaction.ID, 999))
	assert.EqualValues(t, 999, *store.transactions[0].RefundID)
}
