package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/prophecy/internal/domain"
)

// resolutionRecord is the archived form of a resolved market: the terminal
// market state, the payout summary, and the full trade log.
type resolutionRecord struct {
	Market     domain.Market            `json:"market"`
	Summary    domain.ResolutionSummary `json:"summary"`
	Trades     []domain.Trade           `json:"trades"`
	ArchivedAt time.Time                `json:"archived_at"`
}

// ArchiveImpl implements domain.Archiver by serializing each resolved market
// to JSON and uploading it to S3. Records in the primary store are never
// deleted here; the archive is a write-once audit trail.
type ArchiveImpl struct {
	writer domain.BlobWriter
	now    func() time.Time
}

var _ domain.Archiver = (*ArchiveImpl)(nil)

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(writer domain.BlobWriter) *ArchiveImpl {
	return &ArchiveImpl{
		writer: writer,
		now:    time.Now,
	}
}

// ArchiveResolution uploads the record to
// archive/resolutions/YYYY-MM/<market_id>.json, partitioned by resolution
// month.
func (a *ArchiveImpl) ArchiveResolution(ctx context.Context, m domain.Market, summary domain.ResolutionSummary, trades []domain.Trade) error {
	record := resolutionRecord{
		Market:     m,
		Summary:    summary,
		Trades:     trades,
		ArchivedAt: a.now().UTC(),
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(record); err != nil {
		return fmt.Errorf("s3blob: marshal resolution record %s: %w", m.ID, err)
	}

	path := resolutionPath(m)
	if err := a.writer.Put(ctx, path, &buf, "application/json"); err != nil {
		return fmt.Errorf("s3blob: archive resolution %s: %w", m.ID, err)
	}
	return nil
}

// resolutionPath builds the S3 key for an archived resolution.
//
//	archive/resolutions/2026-08/3f1c....json
func resolutionPath(m domain.Market) string {
	month := m.UpdatedAt
	if m.ResolvedAt != nil {
		month = *m.ResolvedAt
	}
	return fmt.Sprintf("archive/resolutions/%s/%s.json", month.Format("2006-01"), m.ID)
}
