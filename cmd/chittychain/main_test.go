package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestRunDispatch(t *testing.T) {
	var stdout, stderr bytes.Buffer

	if code := Run([]string{"chittychain", "help"}, &stdout, &stderr); code != 0 {
		t.Fatalf("help exited %d", code)
	}
	if !strings.Contains(stdout.String(), "validate") {
		t.Errorf("usage missing validate command: %q", stdout.String())
	}

	stdout.Reset()
	stderr.Reset()
	if code := Run([]string{"chittychain", "bogus"}, &stdout, &stderr); code != 2 {
		t.Fatalf("unknown command exited %d, want 2", code)
	}
	if !strings.Contains(stderr.String(), "Unknown command") {
		t.Errorf("stderr = %q", stderr.String())
	}

	stdout.Reset()
	stderr.Reset()
	if code := Run([]string{"chittychain"}, &stdout, &stderr); code != 2 {
		t.Fatalf("bare invocation exited %d, want 2", code)
	}
}

func TestStatusRequiresArtifactID(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := runStatusCmd(nil, &stdout, &stderr); code != 2 {
		t.Fatalf("exited %d, want 2", code)
	}
	if !strings.Contains(stderr.String(), "Usage:") {
		t.Errorf("stderr = %q", stderr.String())
	}
}
