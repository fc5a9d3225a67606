package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sushiva/omni-channel-ai-servicing/internal/config"
	"github.com/sushiva/omni-channel-ai-servicing/internal/intent"
	"github.com/sushiva/omni-channel-ai-servicing/internal/retrieval"
	"github.com/sushiva/omni-channel-ai-servicing/internal/testutil"
)

func TestBuildIndex_WritesLoadableIndex(t *testing.T) {
	kb := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(kb, "policies"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(kb, "policies", "address_change.md"), []byte(`---
id: POL-ADDR-001
title: Address Change Policy
intents: [ADDRESS_UPDATE]
---
# Address Change Policy

Customers may update a mailing address online or at any branch.
`), 0o600))

	cfg := &config.Config{IndexPath: filepath.Join(t.TempDir(), "index.db")}
	var buf bytes.Buffer
	indexCmd.SetOut(&buf)
	t.Cleanup(func() { indexCmd.SetOut(nil) })

	require.NoError(t, buildIndex(context.Background(), cfg, kb, &testutil.HashEmbedder{}, indexCmd))
	assert.Contains(t, buf.String(), "Indexed 1 chunks")

	ix, err := retrieval.LoadIndex(context.Background(), cfg.IndexPath)
	require.NoError(t, err)
	assert.Equal(t, 1, ix.Len())
	assert.Equal(t, 1, ix.Tagged(intent.AddressUpdate))
}

func TestBuildIndex_EmptyKnowledgeBase(t *testing.T) {
	cfg := &config.Config{IndexPath: filepath.Join(t.TempDir(), "index.db")}

	err := buildIndex(context.Background(), cfg, t.TempDir(), &testutil.HashEmbedder{}, indexCmd)
	require.Error(t, err)
	assert.ErrorIs(t, err, retrieval.ErrIndexEmpty)
}

func TestIndexCmd_Flags(t *testing.T) {
	for _, name := range []string{"dir", "watch", "concurrency", "debounce"} {
		assert.NotNil(t, indexCmd.Flags().Lookup(name), "index flag %q should be registered", name)
	}
}
