package domain

import (
	"context"
	"io"
)

// BlobWriter uploads a single object to blob storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// Archiver persists a long-term record of a resolved market: the final
// market state, the resolution summary, and the full trade log.
type Archiver interface {
	ArchiveResolution(ctx context.Context, m Market, summary ResolutionSummary, trades []Trade) error
}
