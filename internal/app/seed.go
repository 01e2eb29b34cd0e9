package app

import (
	"context"
	"fmt"

	"procurement-signals/internal/snapshot"
)

// SeedRedis copies the JSON market document at path into redis so that
// data.source=redis deployments can start from the same data.
func (a *App) SeedRedis(ctx context.Context, path string) error {
	if path == "" {
		path = a.Config.Data.Path
	}
	snap, err := snapshot.NewFileSource(path, a.Clock, a.Logger).Load(ctx)
	if err != nil {
		return err
	}

	client, err := snapshot.NewRedisClient(ctx, a.Config.Redis)
	if err != nil {
		return err
	}
	defer client.Close()

	store := snapshot.NewRedisStore(client, a.Config.Redis.KeyPrefix, a.Clock, a.Logger)
	if err := store.Save(ctx, snap); err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "seeded %d materials into redis (prefix %q)\n", len(snap.Materials), a.Config.Redis.KeyPrefix)
	return nil
}
