// Package main provides tests for the galsynth CLI.
package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/leapstack-labs/galsynth/internal/cli"
	"github.com/leapstack-labs/galsynth/internal/cli/config"
)

func isolate(t *testing.T) {
	t.Helper()
	config.ResetConfig()
	t.Cleanup(config.ResetConfig)
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := cli.NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestVersionCommand(t *testing.T) {
	isolate(t)

	output, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version command error = %v", err)
	}
	if !strings.Contains(output, "galsynth v"+cli.Version) {
		t.Errorf("version output should contain the version, got: %s", output)
	}
	if !strings.Contains(output, "data_dir not configured") {
		t.Errorf("expected a warning about the defaulted data_dir, got: %s", output)
	}
}

func TestHelpCommand(t *testing.T) {
	isolate(t)

	output, err := execute(t, "--help")
	if err != nil {
		t.Fatalf("help command error = %v", err)
	}
	for _, sub := range []string{"by-name", "by-ra-dec", "photometry", "batch", "runs", "serve"} {
		if !strings.Contains(output, sub) {
			t.Errorf("help should list %q, got: %s", sub, output)
		}
	}
}

func TestCompletionCommand(t *testing.T) {
	isolate(t)

	for _, shell := range []string{"bash", "zsh", "fish", "powershell"} {
		t.Run(shell, func(t *testing.T) {
			output, err := execute(t, "completion", shell)
			if err != nil {
				t.Fatalf("completion %s error = %v", shell, err)
			}
			if !strings.Contains(output, "galsynth") {
				t.Errorf("completion script should mention galsynth")
			}
		})
	}

	if _, err := execute(t, "completion", "tcsh"); err == nil {
		t.Error("expected error for unsupported shell")
	}
}

func TestInvalidConfiguration(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "missing config file", args: []string{"--config", filepath.Join("nope", "galsynth.yaml"), "runs"}, want: "config"},
		{name: "bad output mode", args: []string{"--data-dir", "data", "-o", "xml", "runs"}, want: "output"},
		{name: "bad radius", args: []string{"--data-dir", "data", "--radius=-1", "runs"}, want: "radius"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			_, err := execute(t, tt.args...)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should mention %q", err, tt.want)
			}
		})
	}
}

func TestRunsCommand_EmptyHistory(t *testing.T) {
	isolate(t)

	output, err := execute(t, "--data-dir", "data", "-o", "json", "runs")
	if err != nil {
		t.Fatalf("runs command error = %v", err)
	}
	if strings.TrimSpace(output) != "[]" {
		t.Errorf("expected an empty JSON list, got: %s", output)
	}
}
