// Package cli implements credctl, the offline companion tool of the credcore
// service: hashing, randomness, key derivation, key generation, signature
// verification and registry validation without a running server.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd builds the credctl command tree.
// NewRootCmd 构建 credctl 命令树。
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "credctl",
		Short: "Offline tooling for the credcore identity service.",
		Long: `credctl exercises the credcore cryptographic core locally: hash data,
draw secure random bytes, derive keys, generate key pairs, verify detached
signatures and validate application registry files.`,
		SilenceUsage: true,
	}
	root.AddCommand(
		newHashCmd(),
		newRandomCmd(),
		newDeriveCmd(),
		newKeygenCmd(),
		newVerifyCmd(),
		newAppsCmd(),
	)
	return root
}

// Execute is the main entry point for the CLI application.
// Execute 是 CLI 应用程序的主入口点。
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
