package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/riskbridge/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordSender struct {
	titles []string
	err    error
}

func (r *recordSender) Send(_ context.Context, title, _ string) error {
	r.titles = append(r.titles, title)
	return r.err
}

func (r *recordSender) Name() string { return "record" }

func TestNotifyAlertRespectsMinLevel(t *testing.T) {
	s := &recordSender{}
	n := NewNotifier([]Sender{s}, nil, domain.AlertCritical, discardLogger())

	require.NoError(t, n.NotifyAlert(context.Background(), domain.RiskAlert{Level: domain.AlertWarning, Type: domain.AlertPortfolio}))
	assert.Empty(t, s.titles)

	require.NoError(t, n.NotifyAlert(context.Background(), domain.RiskAlert{Level: domain.AlertCritical, Type: domain.AlertPosition, Symbol: "EURUSD"}))
	assert.Equal(t, []string{"CRITICAL position risk alert (EURUSD)"}, s.titles)
}

func TestNotifyEventFilter(t *testing.T) {
	s := &recordSender{}
	n := NewNotifier([]Sender{s}, []string{EventOrderFailed}, "", discardLogger())

	require.NoError(t, n.NotifyExecution(context.Background(), domain.ExecutionResult{Success: true}))
	assert.Empty(t, s.titles)

	require.NoError(t, n.NotifyExecution(context.Background(), domain.ExecutionResult{
		Action: domain.ActionBuy, Volume: 1, Symbol: "EURUSD",
		Error: &domain.ExecutionError{Code: domain.CodeNoMoney, Message: "No money"},
	}))
	assert.Len(t, s.titles, 1)
}

func TestDispatchContinuesPastFailures(t *testing.T) {
	bad := &recordSender{err: errors.New("down")}
	good := &recordSender{}
	n := NewNotifier([]Sender{bad, good}, nil, "", discardLogger())

	err := n.Notify(context.Background(), EventRiskAlert, "t", "m")
	require.Error(t, err)
	assert.Len(t, good.titles, 1)
}

func TestNilNotifierIsDisabled(t *testing.T) {
	var n *Notifier
	assert.False(t, n.Enabled())
	assert.NoError(t, n.NotifyAlert(context.Background(), domain.RiskAlert{Level: domain.AlertCritical}))
}

func TestTelegramSender(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewTelegramSender("TOKEN", "42").WithBaseURL(srv.URL)
	require.NoError(t, s.Send(context.Background(), "Title", "body"))
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "*Title*\nbody", got["text"])
}

func TestDiscordSenderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad webhook", http.StatusNotFound)
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}
