package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestRunCommandRejectsUnknownName(t *testing.T) {
	app, _ := newTestServer(t)
	err := app.runCommand(context.Background(), "drop-everything", nil)
	if !errors.Is(err, errUnknownCommand) {
		t.Fatalf("expected errUnknownCommand, got %v", err)
	}
}

func TestRunCommandImportRequiresPath(t *testing.T) {
	app, _ := newTestServer(t)
	if err := app.runCommand(context.Background(), "import", nil); err == nil {
		t.Fatal("expected usage error")
	}
}

func TestImportFileCommand(t *testing.T) {
	app, _ := newTestServer(t)
	created := 0
	app.treeCreate = func(ctx context.Context, input TreeInput) (*TreeRecord, error) {
		created++
		return &TreeRecord{CommonName: input.CommonName}, nil
	}

	path := filepath.Join(t.TempDir(), "trees.csv")
	if err := os.WriteFile(path, []byte(importCSV), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if err := app.runCommand(context.Background(), "import", []string{path}); err != nil {
		t.Fatalf("import: %v", err)
	}
	if created != 1 {
		t.Fatalf("expected one created record, got %d", created)
	}
}

func TestImportFileCommandFailsWhenNothingImports(t *testing.T) {
	app, _ := newTestServer(t)
	app.treeCreate = func(ctx context.Context, input TreeInput) (*TreeRecord, error) {
		t.Fatal("treeCreate must not run for invalid rows")
		return nil, nil
	}

	path := filepath.Join(t.TempDir(), "trees.csv")
	content := "common_name,latitude\nNarra,9.3\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if err := app.runCommand(context.Background(), "import", []string{path}); err == nil {
		t.Fatal("expected error when no row imports")
	}
}
