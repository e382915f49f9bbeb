package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sgx-labs/scout/internal/cli"
	"github.com/sgx-labs/scout/internal/config"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage scout configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), config.Show(cfg))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the config file in use",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.FindConfigFile()
			if path == "" {
				fmt.Fprintf(cmd.OutOrStdout(), "(none, defaults in use; 'scout config init' writes %s)\n",
					cli.ShortenHome(config.DefaultConfigPath()))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	})

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a commented default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.FileOverride
			if path == "" {
				path = config.DefaultConfigPath()
			}
			if _, err := os.Stat(path); err == nil && !force {
				return userError("Config file already exists: "+path, "Pass --force to overwrite it")
			}
			if err := config.Generate(path); err != nil {
				return err
			}
			cli.NewPrinter(cmd.OutOrStdout()).Success("Wrote " + cli.ShortenHome(path))
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	cmd.AddCommand(initCmd)

	return cmd
}
