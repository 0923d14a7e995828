// File: internal/agent/main_test.go
package agent

import (
	"fmt"
	"os"
	"testing"

	"go.uber.org/goleak"
	"go.uber.org/zap/zapcore"

	"github.com/goelayush89/robin-ai-sub000/internal/config"
	"github.com/goelayush89/robin-ai-sub000/internal/observability"
)

// TestMain instantiates the global logger before running the agent tests
// and verifies no goroutines leak past the suite.
func TestMain(m *testing.M) {
	logCfg := config.NewDefaultConfig().Logger
	logCfg.Level = "debug"
	logCfg.Format = "console"
	logCfg.ServiceName = "test-suite"
	observability.Initialize(logCfg, zapcore.Lock(os.Stdout))

	exitCode := m.Run()

	observability.Sync()
	observability.ResetForTest()

	if exitCode == 0 {
		if err := goleak.Find(); err != nil {
			fmt.Fprintf(os.Stderr, "goroutine leak: %v\n", err)
			exitCode = 1
		}
	}
	os.Exit(exitCode)
}
