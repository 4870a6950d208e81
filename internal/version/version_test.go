package version

import (
	"strings"
	"testing"
)

func TestGetInfoShortensCommit(t *testing.T) {
	oldVersion, oldCommit, oldBuild := Version, CommitHash, BuildTime
	t.Cleanup(func() { Version, CommitHash, BuildTime = oldVersion, oldCommit, oldBuild })

	Version = "v1.2.3"
	CommitHash = "0123456789abcdef"
	BuildTime = "2024-02-05T08:00:00Z"

	if got := GetInfo(); got != "v1.2.3 (0123456)" {
		t.Fatalf("unexpected info %q", got)
	}
	if got := Full(); !strings.HasSuffix(got, "built 2024-02-05T08:00:00Z") {
		t.Fatalf("unexpected full info %q", got)
	}
}
