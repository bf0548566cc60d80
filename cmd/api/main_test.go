package main

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := newRootCommand()
	for _, name := range []string{"serve", "migrate", "reindex", "seed"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Fatalf("expected subcommand %s, got %v (%v)", name, cmd, err)
		}
	}
	migrate, _, _ := root.Find([]string{"migrate"})
	for _, flag := range []string{"status", "down"} {
		if migrate.Flags().Lookup(flag) == nil {
			t.Fatalf("expected migrate --%s flag", flag)
		}
	}
	seedCmd, _, _ := root.Find([]string{"seed"})
	if seedCmd.Flags().Lookup("file") == nil {
		t.Fatal("expected seed --file flag")
	}
}

func TestBuildLoggerLevels(t *testing.T) {
	cases := []struct {
		level   string
		verbose bool
		want    zapcore.Level
	}{
		{level: "", want: zapcore.InfoLevel},
		{level: "WARN", want: zapcore.WarnLevel},
		{level: "error", verbose: true, want: zapcore.DebugLevel},
	}
	for _, tc := range cases {
		logger, err := buildLogger(tc.level, tc.verbose)
		if err != nil {
			t.Fatalf("buildLogger(%q) error = %v", tc.level, err)
		}
		if !logger.Core().Enabled(tc.want) || (tc.want > zapcore.DebugLevel && logger.Core().Enabled(tc.want-1)) {
			t.Fatalf("buildLogger(%q, %v) did not enable exactly %s", tc.level, tc.verbose, tc.want)
		}
	}

	if _, err := buildLogger("loud", false); err == nil {
		t.Fatal("expected error for unknown level")
	}
}
