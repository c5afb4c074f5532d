// Package notify fans risk alerts and order events out to chat channels
// (Telegram, Discord). Events can be filtered by type and alerts by severity.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/riskbridge/internal/domain"
)

// Event types.
const (
	EventRiskAlert      = "risk.alert"
	EventOrderFilled    = "order.filled"
	EventOrderFailed    = "order.failed"
	EventPositionClosed = "position.closed"
)

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier dispatches to every Sender. Notify forwards only allowed event
// types; an empty allow list passes everything.
type Notifier struct {
	senders  []Sender
	events   map[string]bool
	minLevel domain.AlertLevel
	logger   *slog.Logger
}

// NewNotifier creates a Notifier. minLevel is the lowest alert severity
// forwarded by NotifyAlert; empty means WARNING.
func NewNotifier(senders []Sender, events []string, minLevel domain.AlertLevel, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	if minLevel == "" {
		minLevel = domain.AlertWarning
	}
	return &Notifier{
		senders:  senders,
		events:   allowed,
		minLevel: minLevel,
		logger:   logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool {
	return n != nil && len(n.senders) > 0
}

// Notify sends if event passes the filter.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if !n.Enabled() {
		return nil
	}
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "notifier: event filtered out", slog.String("event", event))
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// NotifyAlert forwards a risk alert at or above the configured severity.
func (n *Notifier) NotifyAlert(ctx context.Context, a domain.RiskAlert) error {
	if !n.Enabled() || a.Level.Rank() < n.minLevel.Rank() {
		return nil
	}
	title := fmt.Sprintf("%s %s risk alert", a.Level, strings.ToLower(string(a.Type)))
	if a.Symbol != "" {
		title += " (" + a.Symbol + ")"
	}
	msg := fmt.Sprintf("%s\n%s: %.4f (threshold %.4f)", a.Message, a.Metric, a.Value, a.Threshold)
	if a.RecommendedAction != "" {
		msg += "\nAction: " + a.RecommendedAction
	}
	return n.Notify(ctx, EventRiskAlert, title, msg)
}

// NotifyExecution reports a fill or a final failure.
func (n *Notifier) NotifyExecution(ctx context.Context, r domain.ExecutionResult) error {
	if !n.Enabled() {
		return nil
	}
	if r.Success {
		return n.Notify(ctx, EventOrderFilled,
			fmt.Sprintf("Filled %s %.2f %s", r.Action, r.Volume, r.BrokerSymbol),
			fmt.Sprintf("Order %d at %.5f, slippage %.5f, attempts %d", r.OrderID, r.ExecutedPrice, r.Slippage, r.Attempts),
		)
	}
	detail := "unknown error"
	if r.Error != nil {
		detail = r.Error.Error()
	}
	return n.Notify(ctx, EventOrderFailed,
		fmt.Sprintf("Order failed %s %.2f %s", r.Action, r.Volume, r.Symbol),
		fmt.Sprintf("%s\ncorrelation id %s, attempts %d", detail, r.CorrelationID, r.Attempts),
	)
}

// dispatch delivers to every sender; one failure does not stop the rest.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "notifier: sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notifier: sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
