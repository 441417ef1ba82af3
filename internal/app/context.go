package app

import (
	"context"
	"errors"
	"fmt"

	"sprintdesk/internal/config"
	"sprintdesk/internal/repo"
)

// ResolveConfig loads the workspace configuration, seeding defaults if
// missing. Precedence: sprintdesk.yml in the workspace, then the copy stored
// in the database, then built-in defaults (which are persisted so later runs
// and the server see the same values).
func ResolveConfig(ctx context.Context, workspace string, r repo.Repo) (*config.Config, error) {
	fileCfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if fileCfg != nil {
		if err := r.UpsertWorkspaceConfig(ctx, fileCfg); err != nil {
			return nil, fmt.Errorf("store workspace config: %w", err)
		}
		return fileCfg, nil
	}

	cfg, err := r.GetWorkspaceConfig(ctx)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	seed := config.Default()
	if err := r.UpsertWorkspaceConfig(ctx, seed); err != nil {
		return nil, fmt.Errorf("seed workspace config: %w", err)
	}
	return seed, nil
}
