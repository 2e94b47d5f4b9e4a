package budget

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/voyagerhq/llm-gateway/models"
	"github.com/voyagerhq/llm-gateway/repositories"
	"github.com/voyagerhq/llm-gateway/services"
	"go.uber.org/zap"
)

const (
	windowDaily   = "daily"
	windowMonthly = "monthly"

	dailyKeyFormat   = "2006-01-02"
	monthlyKeyFormat = "2006-01"
)

// Limits configures one budget scope. A zero limit means unlimited for that
// window. AutoDisableAt is a fraction of the limit at which Authorize starts
// denying; zero defaults to 1.0. AlertThresholds are fractions that trigger
// notifications without blocking.
type Limits struct {
	DailyLimit      decimal.Decimal
	MonthlyLimit    decimal.Decimal
	AlertThresholds []float64
	AutoDisableAt   float64
}

func (l Limits) autoDisableAt() float64 {
	if l.AutoDisableAt <= 0 {
		return 1.0
	}
	return l.AutoDisableAt
}

// Config holds the limits for every scope level. Tenants without an explicit
// override fall back to TenantDefault; users are only limited when an
// override exists.
type Config struct {
	Global        Limits
	TenantDefault Limits
	Tenants       map[string]Limits
	Users         map[string]Limits
}

// window tracks one rolling window inside a ledger.
type window struct {
	periodKey string
	spent     decimal.Decimal
	reserved  decimal.Decimal
	alerted   float64
}

// ledger is the spend state for one scope. All mutation happens under the
// ledger mutex, giving the check-then-reserve step the required atomicity.
type ledger struct {
	mu       sync.Mutex
	scope    models.Scope
	limits   Limits
	daily    window
	monthly  window
	hydrated bool
}

// Manager owns every BudgetLedger. Authorize reserves the estimated cost
// before the provider call; Commit reconciles with the actual cost after;
// Release returns a reservation when the attempt failed. Reconciliation may
// push a ledger past its limit after the fact - the next Authorize is the
// enforcement point.
type Manager struct {
	mu       sync.Mutex
	ledgers  map[string]*ledger
	cfg      Config
	repo     repositories.BudgetRepository
	notifier Notifier
	logger   *zap.Logger

	now func() time.Time // test hook
}

// NewManager creates a budget manager. repo may be nil when running without
// durable spend tracking.
func NewManager(cfg Config, repo repositories.BudgetRepository, notifier Notifier, logger *zap.Logger) *Manager {
	return &Manager{
		ledgers:  make(map[string]*ledger),
		cfg:      cfg,
		repo:     repo,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// Authorize reserves estimate against every scope in the chain, most
// specific first. The most restrictive scope wins: a denial anywhere denies
// the request, and reservations already taken on earlier links are returned.
func (m *Manager) Authorize(ctx context.Context, chain []models.Scope, estimate decimal.Decimal) error {
	for i, scope := range chain {
		if err := m.authorizeScope(ctx, scope, estimate); err != nil {
			for _, earlier := range chain[:i] {
				m.releaseScope(earlier, estimate)
			}
			return err
		}
	}
	return nil
}

// Commit reconciles a completed, billed call: the reservation for estimate
// is replaced by the actual cost on every scope, and the durable store is
// updated. The ledger is adjusted by the delta, never re-added.
func (m *Manager) Commit(ctx context.Context, chain []models.Scope, estimate, actual decimal.Decimal) {
	now := m.now()
	for _, scope := range chain {
		l := m.ledgerFor(scope)

		l.mu.Lock()
		l.rollover(now)
		l.daily.settle(estimate, actual)
		l.monthly.settle(estimate, actual)
		fired := m.collectAlertsLocked(l)
		l.mu.Unlock()

		// Notifications run outside the ledger lock so a slow notifier
		// cannot serialize spend on the scope.
		for _, alert := range fired {
			m.notifier.NotifyThreshold(scope, alert.window, alert.threshold, alert.spent, alert.limit)
		}

		m.persistSpend(ctx, scope, now, actual)
	}
}

// Release returns the reservation for a failed attempt on every scope.
func (m *Manager) Release(chain []models.Scope, estimate decimal.Decimal) {
	for _, scope := range chain {
		m.releaseScope(scope, estimate)
	}
}

// Spent returns the committed spend for a scope's window. Used by tests and
// the metrics surface; the returned value excludes live reservations.
func (m *Manager) Spent(scope models.Scope, windowName string) decimal.Decimal {
	l := m.ledgerFor(scope)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollover(m.now())
	if windowName == windowMonthly {
		return l.monthly.spent
	}
	return l.daily.spent
}

func (m *Manager) authorizeScope(ctx context.Context, scope models.Scope, estimate decimal.Decimal) error {
	l := m.ledgerFor(scope)

	l.mu.Lock()
	defer l.mu.Unlock()

	now := m.now()
	l.rollover(now)
	m.hydrateLocked(ctx, l, now)

	if err := l.checkWindow(&l.daily, l.limits.DailyLimit, windowDaily, scope, estimate); err != nil {
		return err
	}
	if err := l.checkWindow(&l.monthly, l.limits.MonthlyLimit, windowMonthly, scope, estimate); err != nil {
		return err
	}

	l.daily.reserved = l.daily.reserved.Add(estimate)
	l.monthly.reserved = l.monthly.reserved.Add(estimate)
	return nil
}

func (l *ledger) checkWindow(w *window, limit decimal.Decimal, name string, scope models.Scope, estimate decimal.Decimal) error {
	if limit.IsZero() {
		return nil
	}
	disableAt := limit.Mul(decimal.NewFromFloat(l.limits.autoDisableAt()))
	projected := w.spent.Add(w.reserved).Add(estimate)
	if projected.GreaterThan(disableAt) {
		return services.NewDomainError(services.ErrorTypeBudget, "budget exceeded", nil).
			WithDetail("scope", scope.Key()).
			WithDetail("window", name).
			WithDetail("spent", w.spent.String()).
			WithDetail("limit", limit.String())
	}
	return nil
}

func (m *Manager) releaseScope(scope models.Scope, estimate decimal.Decimal) {
	l := m.ledgerFor(scope)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.daily.release(estimate)
	l.monthly.release(estimate)
}

func (m *Manager) ledgerFor(scope models.Scope) *ledger {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := scope.Key()
	l, exists := m.ledgers[key]
	if !exists {
		l = &ledger{scope: scope, limits: m.limitsFor(scope)}
		now := m.now()
		l.daily.periodKey = now.Format(dailyKeyFormat)
		l.monthly.periodKey = now.Format(monthlyKeyFormat)
		l.daily.spent = decimal.Zero
		l.monthly.spent = decimal.Zero
		m.ledgers[key] = l
	}
	return l
}

func (m *Manager) limitsFor(scope models.Scope) Limits {
	switch scope.Level {
	case models.ScopeUser:
		if limits, ok := m.cfg.Users[scope.ID]; ok {
			return limits
		}
		return Limits{}
	case models.ScopeTenant:
		if limits, ok := m.cfg.Tenants[scope.ID]; ok {
			return limits
		}
		return m.cfg.TenantDefault
	default:
		return m.cfg.Global
	}
}

// hydrateLocked loads persisted spend into a fresh ledger so restarts do not
// forget the day's committed costs. Best effort: a store failure only logs.
func (m *Manager) hydrateLocked(ctx context.Context, l *ledger, now time.Time) {
	if l.hydrated || m.repo == nil {
		l.hydrated = true
		return
	}
	l.hydrated = true

	scopeKey := l.scope.Key()
	if spent, err := m.repo.GetPeriodSpend(ctx, scopeKey, now.Format(dailyKeyFormat)); err == nil {
		l.daily.spent = spent
	} else {
		m.logger.Warn("failed to hydrate daily budget", zap.String("scope", scopeKey), zap.Error(err))
	}
	if spent, err := m.repo.GetPeriodSpend(ctx, scopeKey, now.Format(monthlyKeyFormat)); err == nil {
		l.monthly.spent = spent
	} else {
		m.logger.Warn("failed to hydrate monthly budget", zap.String("scope", scopeKey), zap.Error(err))
	}
}

func (m *Manager) persistSpend(ctx context.Context, scope models.Scope, now time.Time, actual decimal.Decimal) {
	if m.repo == nil || actual.IsZero() {
		return
	}
	scopeKey := scope.Key()
	if err := m.repo.UpsertSpend(ctx, scopeKey, now.Format(dailyKeyFormat), actual); err != nil {
		m.logger.Error("failed to persist daily spend", zap.String("scope", scopeKey), zap.Error(err))
	}
	if err := m.repo.UpsertSpend(ctx, scopeKey, now.Format(monthlyKeyFormat), actual); err != nil {
		m.logger.Error("failed to persist monthly spend", zap.String("scope", scopeKey), zap.Error(err))
	}
}

// firedAlert is a threshold crossing captured under the ledger lock and
// delivered after it is released.
type firedAlert struct {
	window    string
	threshold float64
	spent     decimal.Decimal
	limit     decimal.Decimal
}

// collectAlertsLocked marks each crossed threshold as alerted, at most once
// per window, and returns the crossings for delivery outside the lock.
func (m *Manager) collectAlertsLocked(l *ledger) []firedAlert {
	if m.notifier == nil {
		return nil
	}
	fired := m.collectWindowAlerts(l, &l.daily, l.limits.DailyLimit, windowDaily, nil)
	return m.collectWindowAlerts(l, &l.monthly, l.limits.MonthlyLimit, windowMonthly, fired)
}

func (m *Manager) collectWindowAlerts(l *ledger, w *window, limit decimal.Decimal, name string, fired []firedAlert) []firedAlert {
	if limit.IsZero() || len(l.limits.AlertThresholds) == 0 {
		return fired
	}
	fraction, _ := w.spent.Div(limit).Float64()

	thresholds := append([]float64(nil), l.limits.AlertThresholds...)
	sort.Float64s(thresholds)
	for _, t := range thresholds {
		if fraction >= t && w.alerted < t {
			w.alerted = t
			fired = append(fired, firedAlert{window: name, threshold: t, spent: w.spent, limit: limit})
		}
	}
	return fired
}

// rollover resets windows whose period key has moved on. Reservations for
// in-flight requests survive the reset; they settle or release normally.
func (l *ledger) rollover(now time.Time) {
	if key := now.Format(dailyKeyFormat); key != l.daily.periodKey {
		l.daily.periodKey = key
		l.daily.spent = decimal.Zero
		l.daily.alerted = 0
	}
	if key := now.Format(monthlyKeyFormat); key != l.monthly.periodKey {
		l.monthly.periodKey = key
		l.monthly.spent = decimal.Zero
		l.monthly.alerted = 0
	}
}

func (w *window) settle(estimate, actual decimal.Decimal) {
	w.release(estimate)
	w.spent = w.spent.Add(actual)
}

func (w *window) release(estimate decimal.Decimal) {
	w.reserved = w.reserved.Sub(estimate)
	if w.reserved.IsNegative() {
		w.reserved = decimal.Zero
	}
}
