package printing

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/google/uuid"
)

// DefaultPaths is the standard three-tier chain: raw spool, raw file through
// the print utility, plain text through the generic print action.
func DefaultPaths(printerName, spoolDir string) []Path {
	return []Path{
		RawSpool(printerName),
		RawFile(spoolDir),
		PlainPrint(spoolDir),
	}
}

// RawSpool submits the ESC/POS payload straight to the spooler in raw mode.
func RawSpool(printerName string) Path {
	return Path{
		Name: "raw-spool",
		Send: func(ctx context.Context, job Job) error {
			args := []string{"-o", "raw", "-t", job.Name}
			if printerName != "" {
				args = append(args, "-d", printerName)
			}
			cmd := exec.CommandContext(ctx, "lp", args...)
			cmd.Stdin = bytes.NewReader(job.Raw)
			if out, err := cmd.CombinedOutput(); err != nil {
				return fmt.Errorf("lp raw: %w: %s", err, out)
			}
			return nil
		},
	}
}

// RawFile writes the payload to a temporary .prn file and hands it to the
// print utility in literal mode.
func RawFile(dir string) Path {
	return Path{
		Name: "raw-file",
		Send: func(ctx context.Context, job Job) error {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("spool dir: %w", err)
			}
			path := filepath.Join(dir, fmt.Sprintf("raw_%s.prn", uuid.NewString()))
			if err := os.WriteFile(path, job.Raw, 0o644); err != nil {
				return fmt.Errorf("write raw file: %w", err)
			}
			defer os.Remove(path)

			if out, err := exec.CommandContext(ctx, "lpr", "-l", path).CombinedOutput(); err != nil {
				return fmt.Errorf("lpr raw file: %w: %s", err, out)
			}
			return nil
		},
	}
}

// PlainPrint is the last resort: the simplified text ticket through the
// generic print action, losing formatting but keeping the comanda readable.
func PlainPrint(dir string) Path {
	return Path{
		Name: "plain-text",
		Send: func(ctx context.Context, job Job) error {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("spool dir: %w", err)
			}
			path := filepath.Join(dir, fmt.Sprintf("ticket_%s.txt", uuid.NewString()))
			if err := os.WriteFile(path, []byte(job.Plain), 0o644); err != nil {
				return fmt.Errorf("write text file: %w", err)
			}
			defer os.Remove(path)

			if out, err := exec.CommandContext(ctx, "lp", "-t", job.Name, path).CombinedOutput(); err != nil {
				return fmt.Errorf("lp text: %w: %s", err, out)
			}
			return nil
		},
	}
}
