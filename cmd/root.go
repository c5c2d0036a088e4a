package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "faceid",
	Short: "Face recognition access control service",
	Long: `faceid enrolls people by face embedding and decides, for a probe face,
which enrolled identity it belongs to and which access level to grant.

Run "faceid serve" to start the HTTP API, or use the enroll, match, import
and identity commands to work with the gallery directly.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
