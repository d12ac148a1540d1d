package rockets

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptorockets.net/backend/internal/common"
	"cryptorockets.net/backend/internal/config"
	"cryptorockets.net/backend/internal/db/postgres"
	"cryptorockets.net/backend/internal/features/ledger"
)

func testConfig() *config.Config {
	return &config.Config{
		MaxBalance:            60,
		WheelCapMargin:        10,
		JackpotChance:         0.015,
		RocketCapacityDefault: 3,
		RocketCapacityOffline: 6,
		RocketCapacityPremium: 4,
		RocketCooldownDefault: time.Hour,
		RocketCooldownOffline: 8 * time.Hour,
		RocketCooldownPremium: 24 * time.Hour,
		WheelCooldown:         3 * time.Hour,
		RegenBatchSize:        500,
	}
}

// fakeRocketStore — in-memory таблица rockets и таймеры пользователя.
type fakeRocketStore struct {
	mu      sync.Mutex
	rockets map[int64]*Rocket
	nextID  int64

	timers      map[Type]time.Time
	wheelTimer  time.Time
	launchCalls int
}

func newFakeRocketStore() *fakeRocketStore {
	return &fakeRocketStore{rockets: make(map[int64]*Rocket), timers: make(map[Type]time.Time)}
}

func (f *fakeRocketStore) add(r *Rocket) *Rocket {
	f.nextID++
	r.ID = f.nextID
	f.rockets[r.ID] = r
	return r
}

func (f *fakeRocketStore) GetForUpdate(_ context.Context, _ postgres.Querier, telegramID, rocketID int64) (*Rocket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rockets[rocketID]
	if !ok || r.UserID != telegramID {
		return nil, common.ErrRocketNotFound
	}
	copied := *r
	return &copied, nil
}

func (f *fakeRocketStore) GetByTypeForUpdate(_ context.Context, _ postgres.Querier, telegramID int64, t Type) (*Rocket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rockets {
		if r.UserID == telegramID && r.Type == t {
			copied := *r
			return &copied, nil
		}
	}
	return nil, common.ErrRocketNotFound
}

func (f *fakeRocketStore) SetFuel(_ context.Context, _ postgres.Querier, rocketID int64, fuel int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rockets[rocketID].CurrentFuel = fuel
	return nil
}

func (f *fakeRocketStore) MarkLaunched(_ context.Context, _ postgres.Querier, rocketID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.rockets[rocketID]
	r.CurrentFuel = 0
	r.Enabled = false
	f.launchCalls++
	return nil
}

func (f *fakeRocketStore) SetEnabled(_ context.Context, _ postgres.Querier, rocketID int64, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rockets[rocketID].Enabled = enabled
	return nil
}

func (f *fakeRocketStore) Create(_ context.Context, _ postgres.Querier, rocket *Rocket) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.add(rocket)
	return nil
}

func (f *fakeRocketStore) HasEnabledOfType(_ context.Context, _ postgres.Querier, telegramID int64, t Type) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rockets {
		if r.UserID == telegramID && r.Type == t && r.Enabled {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRocketStore) AdvanceTimer(_ context.Context, _ postgres.Querier, _ int64, t Type, next time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if next.After(f.timers[t]) {
		f.timers[t] = next
	}
	return nil
}

func (f *fakeRocketStore) AdvanceWheelTimer(_ context.Context, _ postgres.Querier, _ int64, next time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if next.After(f.wheelTimer) {
		f.wheelTimer = next
	}
	return nil
}

func (f *fakeRocketStore) ListDueUsers(_ context.Context, _ postgres.Querier, _ int) ([]int64, error) {
	return nil, nil
}

// fakeBalances записывает мутации балансов.
type fakeBalances struct {
	mu    sync.Mutex
	users map[int64]*ledger.User
	calls []balanceCall
}

type balanceCall struct {
	currency ledger.Currency
	amount   decimal.Decimal
	txType   ledger.TxType
}

func newFakeBalances() *fakeBalances {
	return &fakeBalances{users: make(map[int64]*ledger.User)}
}

func (f *fakeBalances) ChangeBalance(_ context.Context, _ postgres.Querier, telegramID int64, c ledger.Currency, amount decimal.Decimal, t ledger.TxType) (*ledger.ChangeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, balanceCall{currency: c, amount: amount, txType: t})
	u, ok := f.users[telegramID]
	if !ok {
		return nil, common.ErrUserNotFound
	}
	copied := *u
	return &ledger.ChangeResult{User: &copied, Transaction: &ledger.Transaction{Amount: amount, Currency: c}}, nil
}

func (f *fakeBalances) GetUser(_ context.Context, _ postgres.Querier, telegramID int64) (*ledger.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[telegramID]
	if !ok {
		return nil, common.ErrUserNotFound
	}
	copied := *u
	return &copied, nil
}

func (f *fakeBalances) GetUserForUpdate(ctx context.Context, q postgres.Querier, telegramID int64) (*ledger.User, error) {
	return f.GetUser(ctx, q, telegramID)
}

type fakeTx struct{ mu sync.Mutex }

func (f *fakeTx) InTx(ctx context.Context, fn func(ctx context.Context, q postgres.Querier) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fn(ctx, nil)
}

type fakePublisher struct{}

func (fakePublisher) PublishAsync(string, int64, any) {}

func newTestService(store *fakeRocketStore, balances *fakeBalances) *Service {
	return NewService(store, balances, &fakeTx{}, fakePublisher{}, testConfig())
}

func TestAddFuelClamp(t *testing.T) {
	store := newFakeRocketStore()
	balances := newFakeBalances()
	svc := newTestService(store, balances)

	r := store.add(&Rocket{UserID: 1, Type: TypeDefault, FuelCapacity: 3, CurrentFuel: 2, Enabled: true})

	// Переполнение не ошибка, бак упирается в ёмкость.
	got, err := svc.AddFuel(context.Background(), 1, r.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, got.CurrentFuel)

	// И в минус не уходит.
	got, err = svc.AddFuel(context.Background(), 1, r.ID, -10)
	require.NoError(t, err)
	assert.Equal(t, 0, got.CurrentFuel)
}

func TestAddFuelForeignRocket(t *testing.T) {
	store := newFakeRocketStore()
	svc := newTestService(store, newFakeBalances())

	r := store.add(&Rocket{UserID: 1, Type: TypeDefault, FuelCapacity: 3, Enabled: true})

	_, err := svc.AddFuel(context.Background(), 2, r.ID, 1)
	assert.ErrorIs(t, err, common.ErrRocketNotFound)
}

func TestLaunchPreconditions(t *testing.T) {
	store := newFakeRocketStore()
	balances := newFakeBalances()
	balances.users[1] = &ledger.User{TelegramID: 1, USDTBalance: decimal.NewFromInt(5), TONBalance: decimal.NewFromInt(5)}
	svc := newTestService(store, balances)

	notFueled := store.add(&Rocket{UserID: 1, Type: TypeDefault, FuelCapacity: 3, CurrentFuel: 2, Enabled: true})
	disabled := store.add(&Rocket{UserID: 1, Type: TypeDefault, FuelCapacity: 3, CurrentFuel: 3, Enabled: false})

	_, err := svc.Launch(context.Background(), 1, notFueled.ID)
	assert.ErrorIs(t, err, common.ErrRocketNotFueled)

	_, err = svc.Launch(context.Background(), 1, disabled.ID)
	assert.ErrorIs(t, err, common.ErrRocketDisabled)

	_, err = svc.Launch(context.Background(), 1, 999)
	assert.ErrorIs(t, err, common.ErrRocketNotFound)

	// Состояние не тронуто: ни запусков, ни начислений.
	assert.Equal(t, 0, store.launchCalls)
	assert.Empty(t, balances.calls)
	assert.Equal(t, 2, store.rockets[notFueled.ID].CurrentFuel)
}

func TestLaunchRegularPaysOneCurrency(t *testing.T) {
	store := newFakeRocketStore()
	balances := newFakeBalances()
	balances.users[1] = &ledger.User{TelegramID: 1, USDTBalance: decimal.NewFromInt(5), TONBalance: decimal.NewFromInt(5)}
	svc := newTestService(store, balances)

	r := store.add(&Rocket{UserID: 1, Type: TypeDefault, FuelCapacity: 3, CurrentFuel: 3, Enabled: true})

	res, err := svc.Launch(context.Background(), 1, r.ID)
	require.NoError(t, err)

	assert.Len(t, res.Rewards, 1)
	assert.Len(t, balances.calls, 1)
	assert.Contains(t, []ledger.Currency{ledger.CurrencyUSDT, ledger.CurrencyTON, ledger.CurrencyToken}, balances.calls[0].currency)
	assert.Equal(t, ledger.TxTypeRocketLaunch, balances.calls[0].txType)

	// Ракета выключена и пуста.
	assert.False(t, store.rockets[r.ID].Enabled)
	assert.Equal(t, 0, store.rockets[r.ID].CurrentFuel)
}

func TestLaunchPremiumPaysAllCurrencies(t *testing.T) {
	store := newFakeRocketStore()
	balances := newFakeBalances()
	balances.users[1] = &ledger.User{TelegramID: 1, USDTBalance: decimal.NewFromInt(5), TONBalance: decimal.NewFromInt(5)}
	svc := newTestService(store, balances)

	r := store.add(&Rocket{UserID: 1, Type: TypePremium, FuelCapacity: 4, CurrentFuel: 4, Enabled: true})

	res, err := svc.Launch(context.Background(), 1, r.ID)
	require.NoError(t, err)

	require.Len(t, res.Rewards, 3)
	assert.Contains(t, res.Rewards, ledger.CurrencyUSDT)
	assert.Contains(t, res.Rewards, ledger.CurrencyTON)
	assert.Contains(t, res.Rewards, ledger.CurrencyToken)
}

func TestRewardTokenBounds(t *testing.T) {
	rc := newRewardCurve(testConfig())
	u := &ledger.User{USDTBalance: decimal.NewFromInt(5), TONBalance: decimal.NewFromInt(5)}

	for i := 0; i < 1000; i++ {
		v := rc.balanceDiff(u, ledger.CurrencyToken, TypeDefault)
		assert.True(t, v.GreaterThanOrEqual(decimal.NewFromInt(tokenRewardMin)), "награда %s", v)
		assert.True(t, v.LessThanOrEqual(decimal.NewFromInt(tokenRewardMax)), "награда %s", v)
		assert.True(t, v.Equal(v.Truncate(0)), "токены целые, получено %s", v)
	}
}

func TestRewardFreshUserBoost(t *testing.T) {
	rc := newRewardCurve(testConfig())
	u := &ledger.User{USDTBalance: decimal.RequireFromString("0.3"), TONBalance: decimal.RequireFromString("0.2")}

	for i := 0; i < 1000; i++ {
		v := rc.balanceDiff(u, ledger.CurrencyUSDT, TypeDefault)
		assert.True(t, v.GreaterThanOrEqual(decimal.NewFromInt(8)), "награда новичка %s", v)
		assert.True(t, v.LessThanOrEqual(decimal.NewFromInt(10)), "награда новичка %s", v)
	}
}

func TestRewardNearCapIsDust(t *testing.T) {
	rc := newRewardCurve(testConfig())
	u := &ledger.User{
		USDTBalance: decimal.RequireFromString("59.995"),
		TONBalance:  decimal.NewFromInt(5),
	}

	for i := 0; i < 1000; i++ {
		v := rc.balanceDiff(u, ledger.CurrencyUSDT, TypeDefault)
		assert.True(t, v.IsPositive(), "запуск всегда платит, получено %s", v)
		assert.True(t, u.USDTBalance.Add(v).LessThanOrEqual(decimal.NewFromInt(60).Add(decimal.RequireFromString("0.01"))),
			"кап не пробивается дальше пыли: %s", v)
	}
}

func TestRewardNeverExceedsCurveCap(t *testing.T) {
	rc := newRewardCurve(testConfig())
	u := &ledger.User{USDTBalance: decimal.NewFromInt(10), TONBalance: decimal.NewFromInt(10)}

	for i := 0; i < 2000; i++ {
		v := rc.balanceDiff(u, ledger.CurrencyTON, TypeDefault)
		assert.True(t, v.IsPositive())
		assert.True(t, v.LessThanOrEqual(decimal.NewFromInt(3)), "кривая с джекпотом ограничена тройкой: %s", v)
	}
}

func TestGrantStarterSet(t *testing.T) {
	store := newFakeRocketStore()
	svc := newTestService(store, newFakeBalances())

	require.NoError(t, svc.GrantStarterSet(context.Background(), nil, 1))

	byType := map[Type]int{}
	fullPremium := 0
	for _, r := range store.rockets {
		byType[r.Type]++
		if r.Type == TypePremium && r.Fueled() {
			fullPremium++
		}
	}
	assert.Equal(t, 2, byType[TypePremium])
	assert.Equal(t, 1, byType[TypeOffline])
	assert.Equal(t, 2, byType[TypeDefault])
	assert.Equal(t, 1, fullPremium, "ровно одна премиум-ракета с полным баком")
}

func TestRefillPremiumClampsAtCapacity(t *testing.T) {
	store := newFakeRocketStore()
	svc := newTestService(store, newFakeBalances())

	r := store.add(&Rocket{UserID: 1, Type: TypePremium, FuelCapacity: 4, CurrentFuel: 1, Enabled: true})

	require.NoError(t, svc.RefillPremium(context.Background(), nil, 1, true))
	assert.Equal(t, 4, store.rockets[r.ID].CurrentFuel)
}

func TestGrantDueIdempotentPerTier(t *testing.T) {
	store := newFakeRocketStore()
	balances := newFakeBalances()
	future := time.Now().Add(time.Hour)
	balances.users[1] = &ledger.User{
		TelegramID:          1,
		USDTBalance:         decimal.NewFromInt(5),
		TONBalance:          decimal.NewFromInt(5),
		NextDefaultRocketAt: time.Now().Add(-time.Minute),
		NextOfflineRocketAt: future,
		NextPremiumRocketAt: future,
		NextWheelAt:         future,
	}
	svc := newTestService(store, balances)

	// Первый проход выдаёт дефолтную ракету.
	require.NoError(t, svc.GrantDue(context.Background(), 1))
	held, _ := store.HasEnabledOfType(context.Background(), nil, 1, TypeDefault)
	assert.True(t, held)
	assert.Len(t, store.rockets, 1)

	// Повторный проход при включённой ракете тира — no-op.
	require.NoError(t, svc.GrantDue(context.Background(), 1))
	assert.Len(t, store.rockets, 1)
	assert.Empty(t, balances.calls, "билет колеса не выдаётся до таймера")
}

func TestGrantDueWheelTicket(t *testing.T) {
	store := newFakeRocketStore()
	balances := newFakeBalances()
	future := time.Now().Add(time.Hour)
	balances.users[1] = &ledger.User{
		TelegramID:          1,
		USDTBalance:         decimal.NewFromInt(5),
		TONBalance:          decimal.NewFromInt(5),
		NextDefaultRocketAt: future,
		NextOfflineRocketAt: future,
		NextPremiumRocketAt: future,
		NextWheelAt:         time.Now().Add(-time.Minute),
	}
	svc := newTestService(store, balances)

	require.NoError(t, svc.GrantDue(context.Background(), 1))

	require.Len(t, balances.calls, 1)
	assert.Equal(t, ledger.CurrencyWheel, balances.calls[0].currency)
	assert.True(t, balances.calls[0].amount.Equal(decimal.NewFromInt(1)))
	assert.Equal(t, ledger.TxTypeRetentionGrant, balances.calls[0].txType)
	assert.False(t, store.wheelTimer.IsZero(), "таймер колеса сдвинут вперёд")
}
