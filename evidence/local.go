/*
Package evidence stores uploaded evidence files.

PURPOSE:
  Implements billing.EvidenceStore on the local filesystem. Production
  deployments point this at a mounted volume or swap in an object-store
  implementation with the same interface; the engine only sees URLs.

LAYOUT:
  Files land under <base>/<path>, where path is chosen by the engine:

    contract-payments/<record-id>/<doc-type>/<file-name>

USAGE:
  ev, err := evidence.NewLocal("./data/evidence")
  url, err := ev.Upload(ctx, "contract-payments/cp-1/invoice/inv.pdf", r)
*/
package evidence

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/warp/billing-engine/billing"
)

// Local writes evidence files under a base directory.
type Local struct {
	base string
}

var _ billing.EvidenceStore = (*Local)(nil)

// NewLocal creates the base directory if needed.
func NewLocal(base string) (*Local, error) {
	if base == "" {
		return nil, fmt.Errorf("evidence base directory is required")
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("create evidence directory: %w", err)
	}
	return &Local{base: base}, nil
}

// Upload writes the file and returns a file:// URL for it.
func (l *Local) Upload(ctx context.Context, path string, content io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	clean := filepath.Clean(filepath.FromSlash(path))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid evidence path %q", path)
	}

	full := filepath.Join(l.base, clean)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("create evidence subdirectory: %w", err)
	}

	f, err := os.Create(full)
	if err != nil {
		return "", fmt.Errorf("create evidence file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, content); err != nil {
		os.Remove(full)
		return "", fmt.Errorf("write evidence file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(full)
		return "", fmt.Errorf("flush evidence file: %w", err)
	}

	abs, err := filepath.Abs(full)
	if err != nil {
		abs = full
	}
	return "file://" + filepath.ToSlash(abs), nil
}
