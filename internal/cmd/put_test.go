package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomasbasham/cli-runtime/iooption"

	"github.com/fundood999/agentic-ai-backend/internal/intake"
)

func runImgup(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := NewRootCommandWithArgs(NewImgupOptions(iooption.IOStreams{
		In:     &bytes.Buffer{},
		Out:    &out,
		ErrOut: &errOut,
	}))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func diskEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("STORAGE_BACKEND", "disk")
	t.Setenv("DISK_DIR", dir)
	return dir
}

func TestPutUploadsToDisk(t *testing.T) {
	storeDir := diskEnv(t)

	src := filepath.Join(t.TempDir(), "cat.jpg")
	require.NoError(t, os.WriteFile(src, bytes.Repeat([]byte{0xff}, 51200), 0o644))

	out, err := runImgup(t, "put", src, "--metadata", `{"album":"pets"}`)
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &body))
	assert.Equal(t, "Upload successful", body["message"])
	assert.Regexp(t, `^\d+-cat\.jpg$`, body["fileName"])
	assert.Equal(t, float64(51200), body["size"])
	assert.Equal(t, map[string]any{"album": "pets"}, body["metadata"])

	stored, err := os.ReadFile(filepath.Join(storeDir, body["fileName"].(string)))
	require.NoError(t, err)
	assert.Len(t, stored, 51200)
}

func TestPutRejectsNonJPEG(t *testing.T) {
	storeDir := diskEnv(t)

	src := filepath.Join(t.TempDir(), "cat.png")
	require.NoError(t, os.WriteFile(src, []byte("png"), 0o644))

	_, err := runImgup(t, "put", src)
	require.Error(t, err)
	assert.Equal(t, intake.MsgNotJPEG, intake.MessageOf(err))

	entries, err := os.ReadDir(storeDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPutSignUnsupportedOnDisk(t *testing.T) {
	diskEnv(t)

	_, err := runImgup(t, "put", "cat.jpg", "--sign")
	require.Error(t, err)
	assert.Equal(t, intake.MsgSignFailed, intake.MessageOf(err))
}

func TestPutRequiresFile(t *testing.T) {
	diskEnv(t)

	_, err := runImgup(t, "put")
	assert.Error(t, err)
}

func TestServeRejectsBadConfig(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "ftp")

	_, err := runImgup(t, "serve")
	assert.Error(t, err)
}
