package source

import (
	"context"
	"time"

	"github.com/seanblong/docschat/pkg/models"
)

// ContentSource is the read-only document feed the batch indexer consumes.
// A missing page is reported as ok=false, not as an error.
type ContentSource interface {
	// AllPages fetches every page from every configured space.
	AllPages(ctx context.Context) ([]models.Page, error)
	// UpdatedPagesSince fetches pages in one space modified at or after the
	// given time.
	UpdatedPagesSince(ctx context.Context, spaceKey string, since time.Time) ([]models.Page, error)
	// PageByID fetches a single page.
	PageByID(ctx context.Context, id string) (models.Page, bool, error)
}
