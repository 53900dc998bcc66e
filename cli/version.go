package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ocfetch/fetcher/version"
)

func init() {
	RootCmd.AddCommand(versionCmd)
}

// versionCmd prints this binary's build info via
// version.GetBuildInfo (runtime/debug.ReadBuildInfo).
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "print build and dependency information",
	RunE: func(cmd *cobra.Command, args []string) error {
		info := version.GetBuildInfo()
		out, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}
