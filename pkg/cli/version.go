package cli

import (
	"fmt"
	"runtime"
	runtimedebug "runtime/debug"
	"strings"

	"github.com/getmockd/reflector/pkg/cli/internal/output"
	"github.com/spf13/cobra"
)

var versionJSON bool

// VersionOutput represents JSON output format
type VersionOutput struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
	Go      string `json:"go"`
	OS      string `json:"os"`
	Arch    string `json:"arch"`
}

// buildInfo fills in whatever ldflags left unset from the VCS stamp the Go
// toolchain embeds.
func buildInfo() VersionOutput {
	out := VersionOutput{
		Version: Version,
		Commit:  Commit,
		Date:    BuildDate,
		Go:      runtime.Version(),
		OS:      runtime.GOOS,
		Arch:    runtime.GOARCH,
	}
	info, ok := runtimedebug.ReadBuildInfo()
	if !ok {
		return out
	}
	if out.Version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		out.Version = info.Main.Version
	}
	vcs := make(map[string]string, len(info.Settings))
	for _, s := range info.Settings {
		vcs[s.Key] = s.Value
	}
	if rev := vcs["vcs.revision"]; rev != "" && out.Commit == "none" {
		out.Commit = rev
		if vcs["vcs.modified"] == "true" {
			out.Commit += "-dirty"
		}
	}
	if t := vcs["vcs.time"]; t != "" && out.Date == "unknown" {
		out.Date = t
	}
	return out
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show reflector version information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := buildInfo()
		if versionJSON {
			return output.JSON(cmd.OutOrStdout(), out)
		}

		v := out.Version
		if v != "dev" && !strings.HasPrefix(v, "v") {
			v = "v" + v
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "reflector %s (%s, %s)\n", v, out.Commit, out.Date)
		fmt.Fprintf(w, "%s %s/%s\n", out.Go, out.OS, out.Arch)
		return nil
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "print version information as JSON")
	rootCmd.AddCommand(versionCmd)
}
