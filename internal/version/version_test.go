package version

import (
	"strings"
	"testing"
)

func TestString(t *testing.T) {
	old := Version
	Version = "v1.2.3"
	defer func() { Version = old }()

	if !strings.HasPrefix(String(), "v1.2.3 (commit ") {
		t.Fatalf("String() = %q", String())
	}
	if Short() != "v1.2.3" || Get().Version != "v1.2.3" {
		t.Fatal("Short and Get should report the linked version")
	}
	if Get().GoVersion == "" {
		t.Fatal("GoVersion should be set")
	}
}
