package evidence_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/billing-engine/evidence"
)

func TestLocal_UploadWritesFileAndReturnsURL(t *testing.T) {
	base := t.TempDir()
	ev, err := evidence.NewLocal(base)
	require.NoError(t, err)

	url, err := ev.Upload(context.Background(),
		"contract-payments/cp-1/worksheet/hours.xlsx", strings.NewReader("cells"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "file://"))

	content, err := os.ReadFile(filepath.Join(base, "contract-payments", "cp-1", "worksheet", "hours.xlsx"))
	require.NoError(t, err)
	assert.Equal(t, "cells", string(content))
}

func TestLocal_RejectsPathEscape(t *testing.T) {
	ev, err := evidence.NewLocal(t.TempDir())
	require.NoError(t, err)

	for _, path := range []string{"../outside.txt", "/etc/passwd", "a/../../b"} {
		_, err := ev.Upload(context.Background(), path, strings.NewReader("x"))
		assert.Error(t, err, path)
	}
}

func TestLocal_CancelledContext(t *testing.T) {
	ev, err := evidence.NewLocal(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = ev.Upload(ctx, "contract-payments/cp-1/invoice/i.pdf", strings.NewReader("x"))
	assert.ErrorIs(t, err, context.Canceled)
}
