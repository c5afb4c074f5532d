package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/alanyoungcy/riskbridge/internal/domain"
)

// multipartWriter is implemented by *Writer for payloads too large for a
// single PutObject.
type multipartWriter interface {
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// RiskArchive is one uploaded batch of risk history.
type RiskArchive struct {
	Path      string
	Snapshots int
	Alerts    int
}

// RiskArchiver uploads the in-memory risk history as JSONL so it outlives the
// bounded ring. Objects are written under
// <prefix>/YYYY/MM/DD/<kind>-HHMMSS.jsonl.
type RiskArchiver struct {
	writer domain.BlobWriter
	reader domain.BlobReader
	audit  domain.AuditStore
	prefix string
}

// NewRiskArchiver creates a RiskArchiver. reader and audit may be nil.
func NewRiskArchiver(writer domain.BlobWriter, reader domain.BlobReader, audit domain.AuditStore, prefix string) *RiskArchiver {
	if prefix == "" {
		prefix = "risk-history"
	}
	return &RiskArchiver{writer: writer, reader: reader, audit: audit, prefix: prefix}
}

// Archive writes snapshots and alerts taken since the previous call. Empty
// inputs upload nothing. An existing object at the target path is left
// untouched.
func (a *RiskArchiver) Archive(ctx context.Context, at time.Time, snaps []domain.PortfolioRiskSnapshot, alerts []domain.RiskAlert) (RiskArchive, error) {
	out := RiskArchive{}
	if len(snaps) > 0 {
		p := a.objectPath("snapshots", at)
		if err := upload(ctx, a, p, snaps); err != nil {
			return out, err
		}
		out.Path = p
		out.Snapshots = len(snaps)
	}
	if len(alerts) > 0 {
		p := a.objectPath("alerts", at)
		if err := upload(ctx, a, p, alerts); err != nil {
			return out, err
		}
		if out.Path == "" {
			out.Path = p
		}
		out.Alerts = len(alerts)
	}
	if out.Path == "" || a.audit == nil {
		return out, nil
	}
	if err := a.audit.Log(ctx, "archive.risk_history", map[string]any{
		"path":      out.Path,
		"snapshots": out.Snapshots,
		"alerts":    out.Alerts,
		"at":        at.UTC().Format(time.RFC3339),
	}); err != nil {
		return out, fmt.Errorf("s3blob: archive audit log: %w", err)
	}
	return out, nil
}

func (a *RiskArchiver) objectPath(kind string, at time.Time) string {
	at = at.UTC()
	return path.Join(a.prefix, at.Format("2006/01/02"), kind+"-"+at.Format("150405")+".jsonl")
}

func upload[T any](ctx context.Context, a *RiskArchiver, p string, records []T) error {
	if a.reader != nil {
		exists, err := a.reader.Exists(ctx, p)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return fmt.Errorf("s3blob: archive marshal %s: %w", p, err)
	}
	if mw, ok := a.writer.(multipartWriter); ok && int64(len(buf)) > minPartSize {
		if err := mw.PutMultipart(ctx, p, bytes.NewReader(buf), minPartSize); err != nil {
			return fmt.Errorf("s3blob: archive upload %s: %w", p, err)
		}
		return nil
	}
	if err := a.writer.Put(ctx, p, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return fmt.Errorf("s3blob: archive upload %s: %w", p, err)
	}
	return nil
}

// marshalJSONL encodes records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
