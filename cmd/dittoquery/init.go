package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittoquery/pkg/config"
)

func initCmd() *cobra.Command {
	var (
		force bool
		path  string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		Long: `Write a commented default configuration file.

Without --config the file is written to $XDG_CONFIG_HOME/dittoquery/config.yaml
(or ~/.config/dittoquery/config.yaml).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				written, err := config.InitConfig(force)
				if err != nil {
					return err
				}
				path = written
			} else if err := config.InitConfigToPath(path, force); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing configuration file")
	cmd.Flags().StringVarP(&path, "config", "c", "", "Path of the configuration file to write")

	return cmd
}
