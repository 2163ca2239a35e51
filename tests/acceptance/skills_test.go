package acceptance

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const echoSkill = `#!/bin/sh
case "$1" in
  run) cat ;;
  check) echo false ;;
esac
`

func writeSkill(t *testing.T, name string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "skill"), []byte(echoSkill), 0o755); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestSkillLifecycle(t *testing.T) {
	home := filepath.Join(t.TempDir(), ".zeroagent")
	source := writeSkill(t, "echo")

	if output, err := zeroagent(t, home, "install", source).CombinedOutput(); err != nil {
		t.Fatalf("install failed: %v\n%s", err, output)
	}
	if _, err := os.Stat(filepath.Join(home, "skills", "echo", "skill")); err != nil {
		t.Fatalf("skill files were not materialized: %v", err)
	}

	output, err := zeroagent(t, home, "run", "echo", "--input", `{"city": "sf"}`).CombinedOutput()
	if err != nil {
		t.Fatalf("run failed: %v\n%s", err, output)
	}
	if !strings.Contains(string(output), `"city": "sf"`) {
		t.Errorf("run output should echo the inputs. Got: %s", output)
	}

	output, err = zeroagent(t, home, "list").CombinedOutput()
	if err != nil {
		t.Fatalf("list failed: %v\n%s", err, output)
	}
	if !strings.Contains(string(output), "echo") || !strings.Contains(string(output), "1 skill(s) installed") {
		t.Errorf("list should show the installed skill. Got: %s", output)
	}

	output, err = zeroagent(t, home, "status", "--json").Output()
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	var status struct {
		Tier      string `json:"tier"`
		Installed int    `json:"installed"`
		LastRun   struct {
			SkillName string `json:"skillName"`
			Success   bool   `json:"success"`
		} `json:"lastRun"`
	}
	if err := json.Unmarshal(output, &status); err != nil {
		t.Fatalf("status output is not JSON: %v\n%s", err, output)
	}
	if status.Tier != "free" || status.Installed != 1 {
		t.Errorf("unexpected status: %+v", status)
	}
	if status.LastRun.SkillName != "echo" || !status.LastRun.Success {
		t.Errorf("status should report the last run. Got: %+v", status.LastRun)
	}

	if output, err := zeroagent(t, home, "remove", "echo").CombinedOutput(); err != nil {
		t.Fatalf("remove failed: %v\n%s", err, output)
	}
	if _, err := os.Stat(filepath.Join(home, "skills", "echo")); !os.IsNotExist(err) {
		t.Errorf("skill directory should be gone, stat error: %v", err)
	}
}

func TestScheduleRequiresCloudTier(t *testing.T) {
	home := filepath.Join(t.TempDir(), ".zeroagent")
	if output, err := zeroagent(t, home, "install", writeSkill(t, "digest")).CombinedOutput(); err != nil {
		t.Fatalf("install failed: %v\n%s", err, output)
	}

	output, err := zeroagent(t, home, "schedule", "digest", "0 9 * * *").CombinedOutput()
	if err == nil {
		t.Fatalf("schedule should fail on the free tier. Got: %s", output)
	}
	if !strings.Contains(string(output), "zeroagentos.com") {
		t.Errorf("schedule should point at the upgrade page. Got: %s", output)
	}
}
