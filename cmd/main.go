/*
Command comfycollab runs the presence hub server and a headless presence
client for collaborative workflow canvases.

	comfycollab serve                    hub, auth and output endpoints
	comfycollab watch --canvas <id>      join a canvas and log remote presence
	comfycollab useradd --username <u>   create an account
*/
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"comfycollab/internal/pkg/logx"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "comfycollab",
	Short: "Realtime presence for collaborative workflow canvases",
	Long: `comfycollab shares cursors, node selections and the collaborator
roster between everyone editing the same workflow canvas.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprint(cmd.OutOrStdout(), versionString())
	},
}

func versionString() string {
	return fmt.Sprintf("comfycollab version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime)
}

func init() {
	rootCmd.SetVersionTemplate(versionString())

	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().Bool("dev", false, "Human-readable console logs")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(useraddCmd)
	rootCmd.AddCommand(versionCmd)
}

// initLogger configures logging from the persistent flags. dev forces the
// console writer regardless of --dev.
func initLogger(cmd *cobra.Command, dev bool) {
	level, _ := cmd.Flags().GetString("log-level")
	flagDev, _ := cmd.Flags().GetBool("dev")

	logx.InitGlobalLogger(logx.Options{
		Development: dev || flagDev,
		Level:       level,
	})
}
