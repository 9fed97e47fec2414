package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/otherjamesbrown/foodwaste-data/pkg/buildinfo"
)

func TestVersionCommand(t *testing.T) {
	if versionCmd == nil {
		t.Fatal("versionCmd is nil")
	}

	if versionCmd.Use != "version" {
		t.Errorf("Unexpected Use: %s", versionCmd.Use)
	}

	if versionCmd.Short != "Print version information" {
		t.Errorf("Unexpected Short: %s", versionCmd.Short)
	}
}

func TestVersionFlags(t *testing.T) {
	if versionCmd.Flags().Lookup("output-json") == nil {
		t.Error("--output-json flag not found on version command")
	}
}

func TestVersionTextOutput(t *testing.T) {
	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	defer versionCmd.SetOut(nil)

	if err := versionCmd.RunE(versionCmd, nil); err != nil {
		t.Fatalf("version command failed: %v", err)
	}

	output := buf.String()
	if !strings.HasPrefix(output, "fwdata version "+buildinfo.Version) {
		t.Errorf("Unexpected version output: %q", output)
	}
	if !strings.Contains(output, "commit:") {
		t.Errorf("Expected commit line, got %q", output)
	}
}

func TestVersionJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	defer versionCmd.SetOut(nil)

	versionOutputJSON = true
	defer func() { versionOutputJSON = false }()

	if err := versionCmd.RunE(versionCmd, nil); err != nil {
		t.Fatalf("version --output-json failed: %v", err)
	}

	var info buildinfo.Info
	if err := json.Unmarshal(buf.Bytes(), &info); err != nil {
		t.Fatalf("version output is not valid JSON: %v\n%s", err, buf.String())
	}
	if info.ServiceName != "fwdata" {
		t.Errorf("Expected service_name fwdata, got %q", info.ServiceName)
	}
	if info.GoVersion == "" {
		t.Error("Expected go_version to be set")
	}
}

func TestRootCommand_Subcommands(t *testing.T) {
	want := []string{"db", "household", "member", "foodgroup", "fooditem", "auth", "config", "serve", "version"}
	for _, name := range want {
		found := false
		for _, c := range rootCmd.Commands() {
			if c.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("root command is missing %q", name)
		}
	}
}

func TestRootCommand_GlobalFlags(t *testing.T) {
	for _, name := range []string{"config", "timeout", "output", "driver", "debug"} {
		if rootCmd.PersistentFlags().Lookup(name) == nil {
			t.Errorf("--%s flag not found on root command", name)
		}
	}
}

func TestRootCommand_RejectsInvalidOutput(t *testing.T) {
	outputFormat = "xml"
	defer func() { outputFormat = "" }()

	err := rootCmd.PersistentPreRunE(rootCmd, nil)
	if err == nil || !strings.Contains(err.Error(), "invalid output format") {
		t.Errorf("Expected invalid output format error, got %v", err)
	}
}

func TestRootCommand_RejectsInvalidDriver(t *testing.T) {
	driver = "mysql"
	defer func() { driver = "" }()

	err := rootCmd.PersistentPreRunE(rootCmd, nil)
	if err == nil || !strings.Contains(err.Error(), "invalid driver") {
		t.Errorf("Expected invalid driver error, got %v", err)
	}
}
