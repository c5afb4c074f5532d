package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/riskbridge/internal/domain"
)

type memBlobs struct {
	objects map[string][]byte
}

func (m *memBlobs) Put(_ context.Context, path string, data io.Reader, _ string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.objects[path] = b
	return nil
}


func (m *memBlobs) Exists(_ context.Context, path string) (bool, error) {
	_, ok := m.objects[path]
	return ok, nil
}

type memAudit struct {
	events []string
}

func (a *memAudit) Log(_ context.Context, event string, _ map[string]any) error {
	a.events = append(a.events, event)
	return nil
}

func (a *memAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func TestRiskArchiverWritesJSONL(t *testing.T) {
	blobs := &memBlobs{objects: map[string][]byte{}}
	audit := &memAudit{}
	a := NewRiskArchiver(blobs, blobs, audit, "")
	at := time.Date(2026, 3, 2, 12, 30, 5, 0, time.UTC)

	snaps := []domain.PortfolioRiskSnapshot{{RiskScore: 10}, {RiskScore: 20}}
	alerts := []domain.RiskAlert{{Level: domain.AlertWarning, Metric: "risk_score"}}
	out, err := a.Archive(context.Background(), at, snaps, alerts)
	require.NoError(t, err)

	assert.Equal(t, "risk-history/2026/03/02/snapshots-123005.jsonl", out.Path)
	assert.Equal(t, 2, out.Snapshots)
	assert.Equal(t, 1, out.Alerts)
	assert.Equal(t, []string{"archive.risk_history"}, audit.events)

	body := blobs.objects["risk-history/2026/03/02/snapshots-123005.jsonl"]
	sc := bufio.NewScanner(bytes.NewReader(body))
	var lines int
	for sc.Scan() {
		var snap domain.PortfolioRiskSnapshot
		require.NoError(t, json.Unmarshal(sc.Bytes(), &snap))
		lines++
	}
	assert.Equal(t, 2, lines)
	assert.Contains(t, blobs.objects, "risk-history/2026/03/02/alerts-123005.jsonl")
}

func TestRiskArchiverSkipsEmptyAndExisting(t *testing.T) {
	blobs := &memBlobs{objects: map[string][]byte{}}
	a := NewRiskArchiver(blobs, blobs, nil, "hist")
	at := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	out, err := a.Archive(context.Background(), at, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, out.Path)
	assert.Empty(t, blobs.objects)

	blobs.objects["hist/2026/03/02/snapshots-000000.jsonl"] = []byte("keep")
	_, err = a.Archive(context.Background(), at, []domain.PortfolioRiskSnapshot{{}}, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("keep"), blobs.objects["hist/2026/03/02/snapshots-000000.jsonl"])
}

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "https://e2.example.com", normaliseEndpoint("e2.example.com", true))
	assert.Equal(t, "http://minio:9000", normaliseEndpoint("minio:9000", false))
	assert.Equal(t, "https://r2.example.com", normaliseEndpoint("https://r2.example.com", false))
}
