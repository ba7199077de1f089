package main

import (
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

func captureOutputWithExitCode(t *testing.T, run func() int) (int, string, string) {
	t.Helper()

	oldStdout := os.Stdout
	oldStderr := os.Stderr

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe stdout failed: %v", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe stderr failed: %v", err)
	}

	os.Stdout = stdoutW
	os.Stderr = stderrW

	code := run()

	_ = stdoutW.Close()
	_ = stderrW.Close()
	os.Stdout = oldStdout
	os.Stderr = oldStderr

	stdoutBytes, _ := io.ReadAll(stdoutR)
	stderrBytes, _ := io.ReadAll(stderrR)

	_ = stdoutR.Close()
	_ = stderrR.Close()

	return code, string(stdoutBytes), string(stderrBytes)
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestRunCheckValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
service:
  log_level: INFO
bridge:
  listen: "127.0.0.1:3055"
`)

	code, stdout, _ := captureOutputWithExitCode(t, func() int {
		return runCheck([]string{"--config", configPath})
	})
	if code != 0 {
		t.Fatalf("check exited %d", code)
	}
	if !strings.Contains(stdout, "Configuration OK") {
		t.Fatalf("unexpected output: %s", stdout)
	}
	if !regexp.MustCompile(`fingerprint:\s+[0-9a-f]{64}`).MatchString(stdout) {
		t.Fatalf("fingerprint missing from output: %s", stdout)
	}
}

func TestRunCheckRejectsBadListen(t *testing.T) {
	configPath := writeConfig(t, `
bridge:
  listen: "not-an-address"
`)

	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runCheck([]string{"--config", configPath})
	})
	if code != 1 {
		t.Fatalf("check exited %d, want 1", code)
	}
	if !strings.Contains(stderr, "Configuration invalid") {
		t.Fatalf("unexpected stderr: %s", stderr)
	}
}

func TestRunHistoryDisabled(t *testing.T) {
	configPath := writeConfig(t, `
history:
  enabled: false
`)

	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runHistory([]string{"--config", configPath})
	})
	if code != 1 {
		t.Fatalf("history exited %d, want 1", code)
	}
	if !strings.Contains(stderr, "disabled") {
		t.Fatalf("unexpected stderr: %s", stderr)
	}
}

func TestRunHistoryEmpty(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")
	configPath := writeConfig(t, `
history:
  enabled: true
  path: "`+dbPath+`"
`)

	code, stdout, _ := captureOutputWithExitCode(t, func() int {
		return runHistory([]string{"--config", configPath})
	})
	if code != 0 {
		t.Fatalf("history exited %d", code)
	}
	if !strings.Contains(stdout, "No recorded requests.") {
		t.Fatalf("unexpected output: %s", stdout)
	}
}

func TestPrintUsageListsCommands(t *testing.T) {
	_, stdout, _ := captureOutputWithExitCode(t, func() int {
		printUsage()
		return 0
	})
	for _, cmd := range []string{"start", "watch", "history", "check", "version"} {
		if !strings.Contains(stdout, cmd) {
			t.Fatalf("usage missing %q:\n%s", cmd, stdout)
		}
	}
}
