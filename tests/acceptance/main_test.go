package acceptance

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

// binary is the zeroagent build under test, ZEROAGENT_BIN or ../../bin/zeroagent
var binary string

// TestMain skips the suite when no binary has been built
func TestMain(m *testing.M) {
	binary = os.Getenv("ZEROAGENT_BIN")
	if binary == "" {
		binary = filepath.Join("..", "..", "bin", "zeroagent")
	}
	if _, err := os.Stat(binary); err != nil {
		fmt.Printf("skipping acceptance tests: %s not found\n", binary)
		os.Exit(0)
	}
	os.Exit(m.Run())
}

// zeroagent runs the binary against an isolated agent home
func zeroagent(t *testing.T, home string, args ...string) *exec.Cmd {
	t.Helper()
	cmd := exec.Command(binary, append([]string{"--home", home}, args...)...)
	cmd.Env = append(os.Environ(), "HOME="+filepath.Dir(home), "ZEROAGENT_COLOR=never", "OTEL_SDK_DISABLED=true")
	return cmd
}
