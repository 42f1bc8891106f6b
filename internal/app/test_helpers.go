package app

import (
	"os"
	"testing"

	"github.com/specialistvlad/stagegrid/internal/testutil"
)

// SetupAppTest creates an app with debug logging captured in a buffer. Set
// STAGEGRID_TEST_LOGS=true to print the captured log after each test.
func SetupAppTest(t *testing.T, cfg *Config, opts ...Option) (*App, *testutil.SafeBuffer) {
	t.Helper()

	logBuffer := &testutil.SafeBuffer{}
	cfg.LogLevel = "debug"
	testApp := NewApp(logBuffer, cfg, opts...)

	t.Cleanup(func() {
		if os.Getenv("STAGEGRID_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
		}
	})

	return testApp, logBuffer
}
