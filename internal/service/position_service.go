package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/riskbridge/internal/domain"
	"github.com/alanyoungcy/riskbridge/internal/execution"
	"github.com/alanyoungcy/riskbridge/internal/metrics"
	"github.com/alanyoungcy/riskbridge/internal/notify"
	"github.com/alanyoungcy/riskbridge/internal/risk"
)

// PositionBroker lists and closes positions at the broker.
type PositionBroker interface {
	Positions(ctx context.Context) ([]domain.BrokerPosition, error)
	ClosePosition(ctx context.Context, ticket int64) (domain.CloseResult, error)
}

// CorrelationUpdater keeps the correlation table in step with the book.
type CorrelationUpdater interface {
	Update(ctx context.Context, symbol string, book []string) error
	Forget(symbol string)
}

// RiskEstimator estimates the fraction of the account at risk for a
// position the broker reports but the engine did not open.
type RiskEstimator func(bp domain.BrokerPosition) float64

// PositionService manages the open book: opening positions from fills,
// price updates, closing through the broker and reconciliation with the
// broker's view. Persistence, audit and notifications are optional.
type PositionService struct {
	book     *risk.PositionStore
	corr     CorrelationUpdater
	broker   PositionBroker
	records  domain.PositionRecordStore
	bus      domain.SignalBus
	audit    domain.AuditStore
	notifier *notify.Notifier
	estimate RiskEstimator
	logger   *slog.Logger
	now      func() time.Time
}

// NewPositionService creates a PositionService. broker, records, audit and
// notifier may be nil.
func NewPositionService(
	book *risk.PositionStore,
	corr CorrelationUpdater,
	broker PositionBroker,
	records domain.PositionRecordStore,
	bus domain.SignalBus,
	audit domain.AuditStore,
	notifier *notify.Notifier,
	estimate RiskEstimator,
	logger *slog.Logger,
) *PositionService {
	if estimate == nil {
		estimate = func(domain.BrokerPosition) float64 { return 0 }
	}
	return &PositionService{
		book:     book,
		corr:     corr,
		broker:   broker,
		records:  records,
		bus:      bus,
		audit:    audit,
		notifier: notifier,
		estimate: estimate,
		logger:   logger.With(slog.String("component", "position_service")),
		now:      time.Now,
	}
}

// positionEvent is the payload published on the positions channel.
type positionEvent struct {
	Event     string          `json:"event"`
	Position  domain.Position `json:"position"`
	Timestamp time.Time       `json:"timestamp"`
}

// Book returns a copy of the open book.
func (s *PositionService) Book() []domain.Position {
	return s.book.Snapshot()
}

// Get returns one open position.
func (s *PositionService) Get(id string) (domain.Position, error) {
	return s.book.Get(id)
}

// Restore loads the persisted open book into memory. It returns the number
// of positions restored.
func (s *PositionService) Restore(ctx context.Context) (int, error) {
	if s.records == nil {
		return 0, nil
	}
	open, err := s.records.ListOpen(ctx)
	if err != nil {
		return 0, fmt.Errorf("position_service: list open: %w", err)
	}
	n := 0
	for _, p := range open {
		if _, err := s.book.Upsert(p); err != nil {
			s.logger.WarnContext(ctx, "position_service: skipping invalid stored position",
				slog.String("position_id", p.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		n++
	}
	metrics.OpenPositions.Set(float64(s.book.Len()))
	s.logger.InfoContext(ctx, "position_service: book restored", slog.Int("positions", n))
	return n, nil
}

// Upsert adds or replaces a position and refreshes its correlations.
func (s *PositionService) Upsert(ctx context.Context, pos domain.Position) (domain.Position, error) {
	if pos.ID == "" && pos.Ticket != 0 {
		pos.ID = strconv.FormatInt(pos.Ticket, 10)
	}
	_, existed := s.lookup(pos.ID)
	stored, err := s.book.Upsert(pos)
	if err != nil {
		return domain.Position{}, fmt.Errorf("position_service: upsert: %w", err)
	}
	s.persist(ctx, stored)

	event := "position_updated"
	if !existed {
		event = "position_opened"
		s.refreshCorrelation(ctx, stored.Symbol)
	}
	s.publish(ctx, event, stored)
	s.auditLog(ctx, event, stored, nil)
	metrics.OpenPositions.Set(float64(s.book.Len()))
	return stored, nil
}

// OpenFromExecution records the position created by a successful fill.
func (s *PositionService) OpenFromExecution(ctx context.Context, order domain.Order, res domain.ExecutionResult) (domain.Position, error) {
	if !res.Success {
		return domain.Position{}, fmt.Errorf("position_service: open from failed execution %s: %w", res.CorrelationID, domain.ErrInvalidOrder)
	}
	size := res.Volume
	if res.Action == domain.ActionSell {
		size = -size
	}
	pos := domain.Position{
		Ticket:        res.OrderID,
		Symbol:        res.Symbol,
		BrokerSymbol:  res.BrokerSymbol,
		Strategy:      order.Strategy,
		Size:          size,
		EntryPrice:    res.ExecutedPrice,
		CurrentPrice:  res.ExecutedPrice,
		RiskPercent:   res.RiskAnalysis.ImpactOnAccount,
		StopLoss:      order.StopLoss,
		TakeProfit:    order.TakeProfit,
		CorrelationID: res.CorrelationID,
		OpenedAt:      res.Timestamp,
	}
	if pos.Ticket == 0 {
		pos.ID = res.CorrelationID
	}
	stored, err := s.Upsert(ctx, pos)
	if err != nil {
		return domain.Position{}, err
	}
	s.logger.InfoContext(ctx, "position_service: position opened",
		slog.String("position_id", stored.ID),
		slog.String("symbol", stored.Symbol),
		slog.Float64("size", stored.Size),
		slog.Float64("entry_price", stored.EntryPrice),
	)
	return stored, nil
}

// UpdatePrice sets the current price of a position.
func (s *PositionService) UpdatePrice(ctx context.Context, id string, price float64) (domain.Position, error) {
	if !(price > 0) || math.IsInf(price, 0) {
		return domain.Position{}, fmt.Errorf("position_service: update price %q: %w: price must be positive", id, risk.ErrInvalidPosition)
	}
	pos, err := s.book.Mutate(id, func(p *domain.Position) error {
		p.CurrentPrice = price
		return nil
	})
	if err != nil {
		return domain.Position{}, fmt.Errorf("position_service: update price %q: %w", id, err)
	}
	s.persist(ctx, pos)
	s.publish(ctx, "position_updated", pos)
	return pos, nil
}

// Remove drops a position from the book without touching the broker.
func (s *PositionService) Remove(ctx context.Context, id string) (domain.Position, error) {
	return s.remove(ctx, id, 0, "position_removed")
}

func (s *PositionService) remove(ctx context.Context, id string, exitPrice float64, event string) (domain.Position, error) {
	pos, err := s.book.Remove(id)
	if err != nil {
		return domain.Position{}, fmt.Errorf("position_service: remove %q: %w", id, err)
	}
	if exitPrice <= 0 {
		exitPrice = pos.CurrentPrice
	}
	if s.records != nil {
		if err := s.records.Close(ctx, pos.ID, exitPrice); err != nil && !errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "position_service: persist close failed",
				slog.String("position_id", pos.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	if len(s.book.BySymbol(pos.Symbol)) == 0 && s.corr != nil {
		s.corr.Forget(pos.Symbol)
	}
	s.publish(ctx, event, pos)
	s.auditLog(ctx, event, pos, map[string]any{"exit_price": exitPrice})
	metrics.OpenPositions.Set(float64(s.book.Len()))
	return pos, nil
}

// Close closes the position at the broker by ticket and removes it from the
// book once the broker confirms.
func (s *PositionService) Close(ctx context.Context, id string) (domain.CloseResult, error) {
	pos, err := s.book.Get(id)
	if err != nil {
		return domain.CloseResult{}, fmt.Errorf("position_service: close %q: %w", id, err)
	}
	if s.broker == nil {
		return domain.CloseResult{}, fmt.Errorf("position_service: close %q: %w", id, domain.ErrBridgeUnavailable)
	}
	if pos.Ticket == 0 {
		return domain.CloseResult{}, fmt.Errorf("position_service: close %q: %w: position has no broker ticket", id, domain.ErrInvalidOrder)
	}

	res, err := s.broker.ClosePosition(ctx, pos.Ticket)
	if err != nil {
		return res, fmt.Errorf("position_service: close ticket %d: %w", pos.Ticket, err)
	}
	if !res.Success {
		s.logger.WarnContext(ctx, "position_service: broker refused close",
			slog.String("position_id", id),
			slog.Int64("ticket", pos.Ticket),
			slog.String("error", res.Error),
		)
		return res, nil
	}

	closed, err := s.remove(ctx, id, res.Price, "position_closed")
	if err != nil {
		// Removed concurrently, e.g. by a sync; the broker side is done.
		s.logger.InfoContext(ctx, "position_service: position already gone after close",
			slog.String("position_id", id),
		)
		closed = pos
	}
	if nerr := s.notifier.Notify(ctx, notify.EventPositionClosed,
		fmt.Sprintf("Closed %s %.2f", closed.Symbol, math.Abs(closed.Size)),
		fmt.Sprintf("Ticket %d at %.5f (entry %.5f)", closed.Ticket, res.Price, closed.EntryPrice),
	); nerr != nil {
		s.logger.WarnContext(ctx, "position_service: close notification failed", slog.String("error", nerr.Error()))
	}
	s.logger.InfoContext(ctx, "position_service: position closed",
		slog.String("position_id", id),
		slog.Int64("ticket", pos.Ticket),
		slog.Float64("price", res.Price),
	)
	return res, nil
}

// Sync reconciles the book with the broker. Broker positions are added or
// refreshed by ticket; ticketed positions the broker no longer reports are
// removed. Positions without a ticket are left alone.
func (s *PositionService) Sync(ctx context.Context) (domain.SyncResult, error) {
	var out domain.SyncResult
	if s.broker == nil {
		return out, fmt.Errorf("position_service: sync: %w", domain.ErrBridgeUnavailable)
	}
	live, err := s.broker.Positions(ctx)
	if err != nil {
		return out, fmt.Errorf("position_service: sync: %w", err)
	}

	byTicket := make(map[int64]domain.Position)
	for _, p := range s.book.Snapshot() {
		if p.Ticket != 0 {
			byTicket[p.Ticket] = p
		}
	}

	seen := make(map[int64]bool, len(live))
	for _, bp := range live {
		seen[bp.Ticket] = true
		size := bp.Volume
		if bp.Type == domain.ActionSell {
			size = -size
		}

		if cur, ok := byTicket[bp.Ticket]; ok {
			pos, err := s.book.Mutate(cur.ID, func(p *domain.Position) error {
				p.Size = size
				if bp.PriceCurrent > 0 {
					p.CurrentPrice = bp.PriceCurrent
				}
				p.Profit = bp.Profit
				p.StopLoss = bp.StopLoss
				p.TakeProfit = bp.TakeProfit
				return nil
			})
			if err != nil {
				continue
			}
			s.persist(ctx, pos)
			out.Updated++
			continue
		}

		pos := domain.Position{
			ID:            strconv.FormatInt(bp.Ticket, 10),
			Ticket:        bp.Ticket,
			Symbol:        bp.Symbol,
			BrokerSymbol:  bp.Symbol,
			Strategy:      "broker",
			Size:          size,
			EntryPrice:    bp.PriceOpen,
			CurrentPrice:  bp.PriceCurrent,
			RiskPercent:   s.estimate(bp),
			StopLoss:      bp.StopLoss,
			TakeProfit:    bp.TakeProfit,
			Profit:        bp.Profit,
			CorrelationID: correlationFromComment(bp.Comment),
			OpenedAt:      bp.OpenedAt,
		}
		if pos.CurrentPrice <= 0 {
			pos.CurrentPrice = pos.EntryPrice
		}
		if _, err := s.Upsert(ctx, pos); err != nil {
			s.logger.WarnContext(ctx, "position_service: skipping broker position",
				slog.Int64("ticket", bp.Ticket),
				slog.String("error", err.Error()),
			)
			continue
		}
		out.Added++
	}

	for ticket, p := range byTicket {
		if seen[ticket] {
			continue
		}
		if _, err := s.remove(ctx, p.ID, 0, "position_closed"); err == nil {
			out.Removed++
		}
	}

	s.book.RefreshAges(s.now())
	s.logger.InfoContext(ctx, "position_service: synced with broker",
		slog.Int("added", out.Added),
		slog.Int("updated", out.Updated),
		slog.Int("removed", out.Removed),
	)
	return out, nil
}

func correlationFromComment(c string) string {
	if strings.HasPrefix(c, execution.CommentPrefix) {
		return strings.TrimPrefix(c, execution.CommentPrefix)
	}
	return ""
}

func (s *PositionService) lookup(id string) (domain.Position, bool) {
	if id == "" {
		return domain.Position{}, false
	}
	p, err := s.book.Get(id)
	return p, err == nil
}

func (s *PositionService) refreshCorrelation(ctx context.Context, symbol string) {
	if s.corr == nil {
		return
	}
	if err := s.corr.Update(ctx, symbol, s.book.Symbols()); err != nil {
		s.logger.WarnContext(ctx, "position_service: correlation update aborted",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
	}
}

func (s *PositionService) persist(ctx context.Context, pos domain.Position) {
	if s.records == nil {
		return
	}
	if err := s.records.Upsert(ctx, pos); err != nil {
		s.logger.WarnContext(ctx, "position_service: persist failed",
			slog.String("position_id", pos.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *PositionService) publish(ctx context.Context, event string, pos domain.Position) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(positionEvent{Event: event, Position: pos, Timestamp: s.now().UTC()})
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, domain.ChannelPositions, payload); err != nil {
		s.logger.WarnContext(ctx, "position_service: publish event failed",
			slog.String("position_id", pos.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *PositionService) auditLog(ctx context.Context, event string, pos domain.Position, extra map[string]any) {
	if s.audit == nil {
		return
	}
	detail := map[string]any{
		"position_id": pos.ID,
		"symbol":      pos.Symbol,
		"size":        pos.Size,
		"entry_price": pos.EntryPrice,
		"strategy":    pos.Strategy,
	}
	if pos.Ticket != 0 {
		detail["ticket"] = pos.Ticket
	}
	for k, v := range extra {
		detail[k] = v
	}
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "position_service: audit log failed",
			slog.String("position_id", pos.ID),
			slog.String("error", err.Error()),
		)
	}
}
