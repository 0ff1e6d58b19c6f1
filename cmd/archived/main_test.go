package main

import (
	"bytes"
	"errors"
	"flag"
	"strings"
	"testing"

	"github.com/matheus3301/wpparchive/internal/config"
)

func TestParseFlags(t *testing.T) {
	var stderr bytes.Buffer
	opts, err := parseFlags([]string{"--session", "work", "--socket", "/tmp/a.sock", "--check"}, &stderr)
	if err != nil {
		t.Fatalf("parseFlags error = %v", err)
	}
	if opts.session != "work" || opts.socket != "/tmp/a.sock" || !opts.check {
		t.Errorf("options = %+v", opts)
	}

	opts, err = parseFlags(nil, &stderr)
	if err != nil || opts != (options{}) {
		t.Errorf("defaults = %+v, %v, want zero options", opts, err)
	}
}

func TestParseFlagsRejectsArguments(t *testing.T) {
	var stderr bytes.Buffer
	if _, err := parseFlags([]string{"start"}, &stderr); err == nil {
		t.Fatal("positional argument accepted")
	}
	if !strings.Contains(stderr.String(), "Usage: archived") {
		t.Errorf("usage not printed, stderr = %q", stderr.String())
	}

	stderr.Reset()
	if _, err := parseFlags([]string{"--bogus"}, &stderr); err == nil {
		t.Fatal("unknown flag accepted")
	}
}

func TestParseFlagsHelp(t *testing.T) {
	var stderr bytes.Buffer
	_, err := parseFlags([]string{"-h"}, &stderr)
	if !errors.Is(err, flag.ErrHelp) {
		t.Fatalf("err = %v, want flag.ErrHelp", err)
	}
	if !strings.Contains(stderr.String(), config.EnvPrefix) {
		t.Errorf("usage should mention the env prefix, got %q", stderr.String())
	}
}

func TestPrintEffective(t *testing.T) {
	cfg := config.Default()
	var out bytes.Buffer
	printEffective(&out, "work", "/tmp/a.sock", cfg)

	for _, want := range []string{"session:     work", "socket:      /tmp/a.sock", cfg.ServerURL, cfg.SocketURL, "log level:   info"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}
