package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vnmchuo/inference-gateway/internal/provider"
)

func TestSaveImage(t *testing.T) {
	out := filepath.Join(t.TempDir(), "fox.png")

	require.NoError(t, saveImage("data:image/png;base64,iVBORw0KGgo=", out, 0))
	require.NoError(t, saveImage("data:image/png;base64,iVBORw0KGgo=", out, 1))

	raw, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}, raw)
	assert.FileExists(t, filepath.Join(filepath.Dir(out), "fox-1.png"))

	assert.NoError(t, saveImage("https://example.com/fox.png", out, 0))
	assert.Error(t, saveImage("data:image/png,plain", out, 0))
}

func TestCommonOptions(t *testing.T) {
	model, system, extras = "gemini-2.5-flash", "be brief", map[string]string{"seed": "7"}
	t.Cleanup(func() { model, system, extras = provider.AutoModel, "", nil })

	req := &provider.Request{}
	for _, opt := range commonOptions() {
		opt(req)
	}
	assert.Equal(t, "gemini-2.5-flash", req.Model)
	assert.Equal(t, "be brief", req.SystemMessage)
	assert.Equal(t, map[string]any{"seed": "7"}, req.Extras)
}

func TestWarnings(t *testing.T) {
	resp := &provider.Response{Metadata: map[string]any{"warnings": []string{"size dropped"}}}
	assert.Equal(t, []string{"size dropped"}, warnings(resp))
	assert.Nil(t, warnings(&provider.Response{}))
}
