package main

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/pgtenant/pgtenant/internal/update"
	"github.com/pgtenant/pgtenant/internal/version"
)

var versionCheck bool

func init() {
	// If version wasn't set via ldflags, try to get it from Go module info.
	// This works when installed via "go install github.com/pgtenant/pgtenant/cmd/pgtenant@version".
	if version.Version == "dev" {
		if info, ok := debug.ReadBuildInfo(); ok {
			if info.Main.Version != "" && info.Main.Version != "(devel)" {
				version.Version = info.Main.Version
			}
			for _, setting := range info.Settings {
				switch setting.Key {
				case "vcs.revision":
					if len(setting.Value) >= 7 {
						version.Commit = setting.Value[:7]
					} else {
						version.Commit = setting.Value
					}
				case "vcs.time":
					version.Date = setting.Value
				}
			}
		}
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(version.Info())

		if versionCheck {
			info, err := update.CheckWithCache(cmd.Context(), version.Version)
			if err != nil {
				return fmt.Errorf("checking for updates: %w", err)
			}
			switch {
			case info.Newer && info.ReleaseURL != "":
				fmt.Printf("Update available: %s -> %s (%s)\n", version.Version, info.LatestVersion, info.ReleaseURL)
			case info.Newer:
				fmt.Printf("Update available: %s -> %s\n", version.Version, info.LatestVersion)
			case !quiet:
				fmt.Println("You are on the latest version.")
			}
		}
		return nil
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionCheck, "check", false, "check for a newer release")
}
