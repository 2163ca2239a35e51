package acceptance

import (
	"strings"
	"testing"
)

func TestVersionCommand(t *testing.T) {
	output, err := zeroagent(t, t.TempDir(), "version").CombinedOutput()
	if err != nil {
		t.Fatalf("Failed to execute version command: %v", err)
	}

	outputStr := strings.TrimSpace(string(output))
	if !strings.Contains(outputStr, "version") || !strings.Contains(outputStr, "gitCommit") {
		t.Errorf("Version output should contain version and gitCommit fields. Got: %s", outputStr)
	}
}

func TestVersionCommandHelp(t *testing.T) {
	output, err := zeroagent(t, t.TempDir(), "version", "--help").CombinedOutput()
	if err != nil {
		t.Fatalf("Failed to execute version --help: %v", err)
	}

	if !strings.Contains(strings.ToLower(string(output)), "usage") {
		t.Errorf("Version help should contain usage information. Got: %s", output)
	}
}
