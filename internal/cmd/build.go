package cmd

import (
	"fmt"
	goruntime "runtime"
	"runtime/debug"

	"github.com/dotcommander/newsagent/internal/storage"
)

// BuildInfo is injected by the build pipeline.
type BuildInfo struct {
	Version   string
	CommitSHA string
}

// versionTemplate returns the Cobra version template string including
// commit SHA, Go version, and OS/arch.
func versionTemplate(b BuildInfo) string {
	v := "{{.Name}} {{.Version}}"
	if len(b.CommitSHA) >= storage.ShortLen {
		v += " (" + b.CommitSHA[:storage.ShortLen] + ")"
	}
	v += fmt.Sprintf(" %s %s/%s\n", goruntime.Version(), goruntime.GOOS, goruntime.GOARCH)
	return v
}

func normalizeBuildInfo(b BuildInfo) BuildInfo {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		if b.Version == "" {
			b.Version = "unknown"
		}
		return b
	}

	if b.Version == "" {
		if info.Main.Version != "" && info.Main.Version != "(devel)" {
			b.Version = info.Main.Version
		}
	}

	// Extract VCS info embedded by Go 1.18+.
	var vcsRev, vcsModified string
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			vcsRev = s.Value
		case "vcs.modified":
			vcsModified = s.Value
		}
	}

	if b.CommitSHA == "" && vcsRev != "" {
		b.CommitSHA = vcsRev
	}

	if b.Version == "" {
		b.Version = "dev"
		if len(vcsRev) >= storage.ShortLen {
			b.Version += "-" + vcsRev[:storage.ShortLen]
		}
		if vcsModified == "true" {
			b.Version += "-dirty"
		}
	}

	return b
}
