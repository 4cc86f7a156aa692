package metastore

import (
	"context"
	"fmt"

	"github.com/Snshadow/update-server-server-sync/internal/common"
)

// Copy streams every package of src into dst in index order, skipping
// identities dst already holds. Cancellation is honored at package
// boundaries; dst is flushed once at the end. Returns how many packages
// were copied.
func Copy(ctx context.Context, src, dst Store) (int, error) {
	copied := 0
	for _, entry := range src.Identities() {
		select {
		case <-ctx.Done():
			return copied, fmt.Errorf("%w: %v", common.ErrorCancelled, ctx.Err())
		default:
		}

		if dst.Contains(entry.ID) {
			continue
		}

		pkg, err := src.Package(entry.ID)
		if err != nil {
			return copied, fmt.Errorf("copy %s: %w", entry.ID, err)
		}
		if err := dst.AddPackage(pkg); err != nil {
			return copied, fmt.Errorf("copy %s: %w", entry.ID, err)
		}
		copied++
	}

	if err := dst.Flush(); err != nil {
		return copied, err
	}
	return copied, nil
}
