package cmd

import (
	"encoding/json"
	"fmt"
	"runtime"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"
)

type versionReport struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildDate string `json:"build_date,omitempty"`
	Go        string `json:"go,omitempty"`
	Gofulmen  string `json:"gofulmen,omitempty"`
	Crucible  string `json:"crucible,omitempty"`
}

func buildVersionReport(extended bool) versionReport {
	name := "erlocator"
	if identity := GetAppIdentity(); identity != nil && identity.BinaryName != "" {
		name = identity.BinaryName
	}
	report := versionReport{Name: name, Version: versionInfo.Version}
	if extended {
		report.Commit = versionInfo.Commit
		report.BuildDate = versionInfo.BuildDate
		report.Go = runtime.Version()
		v := crucible.GetVersion()
		report.Gofulmen = v.Gofulmen
		report.Crucible = v.Crucible
	}
	return report
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  "Print version information. Use --extended for commit, build and library versions.",
	RunE: func(cmd *cobra.Command, args []string) error {
		extended, _ := cmd.Flags().GetBool("extended")
		asJSON, _ := cmd.Flags().GetBool("json")
		report := buildVersionReport(extended)
		out := cmd.OutOrStdout()

		if asJSON {
			payload, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(out, string(payload))
			return err
		}

		_, _ = fmt.Fprintf(out, "%s %s\n", report.Name, report.Version)
		if extended {
			_, _ = fmt.Fprintf(out, "Commit: %s\nBuilt: %s\nGo: %s\n\n", report.Commit, report.BuildDate, report.Go)
			_, _ = fmt.Fprintf(out, "Gofulmen: %s\nCrucible: %s\n", report.Gofulmen, report.Crucible)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolP("extended", "e", false, "show extended version information")
	versionCmd.Flags().Bool("json", false, "print version information as JSON")
}
