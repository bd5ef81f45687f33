// The cleanup job removes stored product images whose product no longer
// exists. Deletion normally cleans up the image in the same transaction,
// but an upload that raced a failed insert can leave an orphan behind.
package main

import (
	"context"
	"flag"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/unimart/unimart/internal/config"
	"github.com/unimart/unimart/internal/domain"
	"github.com/unimart/unimart/internal/logging"
	"github.com/unimart/unimart/internal/store"
	"github.com/unimart/unimart/supabase/client"
)

const listPageSize = 100

func main() {
	dryRun := flag.Bool("dry-run", false, "report orphans without deleting them")
	flag.Parse()

	logger := logging.New("cleanup")

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("configuration error")
	}

	apiKey := cfg.Supabase.ServiceKey
	if apiKey == "" {
		logger.Fatal("cleanup requires the service role key")
	}
	supa, err := client.New(client.Config{URL: cfg.Supabase.URL, APIKey: apiKey})
	if err != nil {
		logger.WithError(err).Fatal("supabase client setup failed")
	}

	st := store.New(supa, cfg.Supabase.Bucket, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	removed, err := sweep(ctx, st, logger, *dryRun)
	if err != nil {
		logger.WithError(err).Fatal("sweep failed")
	}
	logger.WithField("removed", removed).Info("sweep finished")
}

// sweep walks every user's image folder and removes objects that no
// longer correspond to an active product.
func sweep(ctx context.Context, st *store.Store, logger *logging.Logger, dryRun bool) (int, error) {
	users, err := listUserFolders(ctx, st)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, userID := range users {
		orphans, err := orphansForUser(ctx, st, userID)
		if err != nil {
			logger.WithError(err).WithField("user_id", userID).Warn("user sweep failed, skipping")
			continue
		}
		if len(orphans) == 0 {
			continue
		}

		logger.WithField("user_id", userID).
			WithField("orphans", len(orphans)).Info("orphaned images found")
		if dryRun {
			removed += len(orphans)
			continue
		}
		if err := st.Images().Remove(ctx, orphans); err != nil {
			logger.WithError(err).WithField("user_id", userID).Warn("orphan removal failed")
			continue
		}
		removed += len(orphans)
	}
	return removed, nil
}

// listUserFolders returns the top-level folder names in the image
// bucket; the upload key scheme makes each one a user id.
func listUserFolders(ctx context.Context, st *store.Store) ([]string, error) {
	var users []string
	for offset := 0; ; offset += listPageSize {
		entries, err := st.Images().List(ctx, "", listPageSize, offset)
		if err != nil {
			return nil, fmt.Errorf("list bucket root: %w", err)
		}
		for _, e := range entries {
			// Folder entries have no object id.
			if e.ID == "" {
				users = append(users, e.Name)
			}
		}
		if len(entries) < listPageSize {
			return users, nil
		}
	}
}

func orphansForUser(ctx context.Context, st *store.Store, userID string) ([]string, error) {
	active := make(map[string]bool)
	for page := 0; ; page++ {
		listings, err := st.Products.ByUser(ctx, userID, page, listPageSize)
		if err != nil {
			return nil, err
		}
		for _, p := range listings {
			active[p.ID] = true
		}
		if len(listings) < listPageSize {
			break
		}
		// The listing cap keeps this loop to a single page in practice.
		if page > domain.MaxActiveProducts {
			break
		}
	}

	var orphans []string
	for offset := 0; ; offset += listPageSize {
		entries, err := st.Images().List(ctx, userID+"/", listPageSize, offset)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.ID == "" {
				continue
			}
			productID := strings.TrimSuffix(e.Name, path.Ext(e.Name))
			if !active[productID] {
				orphans = append(orphans, userID+"/"+e.Name)
			}
		}
		if len(entries) < listPageSize {
			break
		}
	}
	return orphans, nil
}
