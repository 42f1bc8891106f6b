package system

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/specialistvlad/stagegrid/internal/app"
	"github.com/specialistvlad/stagegrid/internal/model"
)

// runPipeline writes content as ci.yml into a fresh directory and runs it
// with the host shell. The directory doubles as the steps' working directory.
func runPipeline(t *testing.T, content string, cfg app.Config) (*model.ExecutionResult, string, error) {
	t.Helper()
	dir := t.TempDir()
	cfg.PipelinePath = filepath.Join(dir, "ci.yml")
	require.NoError(t, os.WriteFile(cfg.PipelinePath, []byte(content), 0o600))

	config, err := app.NewConfig(cfg)
	require.NoError(t, err)
	testApp, _ := app.SetupAppTest(t, config)

	res, err := testApp.Run(context.Background())
	return res, dir, err
}

func readFile(t *testing.T, dir, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	return string(data)
}
