package budget

import (
	"github.com/shopspring/decimal"
	"github.com/voyagerhq/llm-gateway/models"
	"go.uber.org/zap"
)

// Notifier receives budget threshold alerts. Alerts never block requests;
// only the auto-disable threshold does, and that is enforced by Authorize.
type Notifier interface {
	NotifyThreshold(scope models.Scope, window string, fraction float64, spent, limit decimal.Decimal)
}

// LogNotifier emits alerts as structured log warnings. Deployments with a
// real notification service substitute their own implementation.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a zap-backed notifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// NotifyThreshold implements Notifier.
func (n *LogNotifier) NotifyThreshold(scope models.Scope, window string, fraction float64, spent, limit decimal.Decimal) {
	n.logger.Warn("budget alert threshold crossed",
		zap.String("scope", scope.Key()),
		zap.String("window", window),
		zap.Float64("threshold", fraction),
		zap.String("spent", spent.String()),
		zap.String("limit", limit.String()))
}
