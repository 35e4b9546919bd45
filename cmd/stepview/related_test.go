package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/stepview/internal/config"
	"github.com/steveyegge/stepview/internal/session"
)

func TestPrintResult(t *testing.T) {
	ctx := context.Background()
	refresher := session.NewRefresher(walkSource(), walkSettings, logger)
	res, err := refresher.Refresh(ctx, session.New(), "CHK-1", true)
	require.NoError(t, err)
	res.Truncated = 4

	var buf bytes.Buffer
	printResult(&buf, res, "https://acme.atlassian.net/")
	out := buf.String()

	assert.Contains(t, out, "CHK-1 checkout regression")
	assert.Contains(t, out, "https://acme.atlassian.net/browse/CHK-1")
	assert.Contains(t, out, "Payments (1)")
	assert.Contains(t, out, "Search (2)")
	assert.Contains(t, out, "  Step 2 - checkout\n    REL-2 checkout")
	assert.Contains(t, out, "4 more related issues not shown")
	assert.Contains(t, out, "Worth checking:")
	assert.Contains(t, out, "CHK-9 login timeout on checkout  (1: 1 summary keywords)")
}

func TestPrintSettings(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printSettings(&buf, config.DefaultSettings()))
	out := buf.String()
	assert.Contains(t, out, "alert_enabled: true")
	assert.Contains(t, out, "product_label_prefix:")
}
