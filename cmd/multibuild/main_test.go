// Package main provides tests for the multibuild CLI.
package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/leapstack-labs/multibuild/internal/cli"
)

func TestVersionCommand(t *testing.T) {
	cmd := cli.NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"version"})

	if err := cmd.Execute(); err != nil {
		t.Errorf("version command error = %v", err)
	}

	if output := buf.String(); !strings.Contains(output, "multibuild") {
		t.Errorf("version output should contain 'multibuild', got: %s", output)
	}
}

func TestUnknownCommand(t *testing.T) {
	cmd := cli.NewRootCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"deploy"})

	if err := cmd.Execute(); err == nil {
		t.Error("expected error for unknown command")
	}
}
