package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

var errUnknownCommand = errors.New("unknown command")

// runCommand executes a one-shot maintenance task instead of serving HTTP.
func (a *App) runCommand(ctx context.Context, name string, args []string) error {
	switch name {
	case "import":
		if len(args) != 1 {
			return errors.New("usage: import <file.csv|file.xlsx>")
		}
		return a.importFileCommand(ctx, args[0])
	case "backfill-locations":
		updated, err := a.backfillMunicipalities(ctx)
		if err != nil {
			return err
		}
		a.log.Info("location backfill finished", "updated", updated)
		return nil
	case "fix-health":
		updated, err := a.storeFillEmptyDistributions(ctx)
		if err != nil {
			return err
		}
		a.log.Info("health distributions filled", "updated", updated)
		return nil
	case "cleanup-taxonomy":
		removed, err := cleanupOrphans(ctx, a.db)
		if err != nil {
			return err
		}
		a.log.Info("orphaned taxonomy removed", "removed", removed)
		return nil
	default:
		return fmt.Errorf("%w %q (expected import, backfill-locations, fix-health or cleanup-taxonomy)", errUnknownCommand, name)
	}
}

func (a *App) importFileCommand(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	rows, source, err := readSpreadsheet(filepath.Base(path), data)
	if err != nil {
		return err
	}
	records, lines := rowsToRecords(rows)
	if len(records) == 0 {
		return errEmptyUpload
	}

	summary := a.importTreeRecords(ctx, source, records, lines, false)
	for _, rowErr := range summary.Errors {
		a.log.Warn("row rejected", "file", path, "row", rowErr.Row, "error", rowErr.Message)
	}
	a.log.Info("tree import finished",
		"file", path,
		"success_count", summary.SuccessCount,
		"error_count", summary.ErrorCount,
	)
	if summary.SuccessCount == 0 {
		return fmt.Errorf("no rows imported from %s", path)
	}
	return nil
}
