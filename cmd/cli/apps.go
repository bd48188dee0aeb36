package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/turtacn/credcore/internal/config"
	"github.com/turtacn/credcore/internal/domain/service"
)

func newAppsCmd() *cobra.Command {
	apps := &cobra.Command{
		Use:   "apps",
		Short: "Work with application registry files",
	}

	validate := &cobra.Command{
		Use:   "validate <file>",
		Short: "Check a registry file for unknown fields, invalid configs and shared namespaces",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := config.LoadRegistryFile(args[0])
			if err != nil {
				return err
			}
			added, err := config.ApplyRegistry(service.NewConfigRegistry(), f, false)
			if err != nil {
				return err
			}
			for _, id := range added {
				cfg := f.Apps[id]
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s-%d\t%s\t%s\n", id, cfg.Algorithm, cfg.KeySize, cfg.HashAlgorithm, cfg.StorageNamespace)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d application(s) OK\n", len(added))
			return nil
		},
	}

	apps.AddCommand(validate)
	return apps
}
