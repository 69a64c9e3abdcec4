/*
	Photoledger
	Copyright (c) 2024 The Photoledger Authors

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU Affero General Public License as published
	by the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU Affero General Public License for more details.

	You should have received a copy of the GNU Affero General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package plcmd facilitates the command line interface (CLI)
// and implements the main().
package plcmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/photoledger/photoledger/catalog"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Main runs the CLI and exits the process when it is done.
func Main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		catalog.Log.Sync() //nolint:errcheck
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configFlag string
	var jsonFlag bool

	cc := newCommandContext(&configFlag, &jsonFlag)

	rootCmd := &cobra.Command{
		Use:           "photoledger",
		Short:         "Keep a local catalog of Google Photos albums",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			cfg, err := cc.ensureConfig()
			if err != nil {
				return err
			}
			if err := catalog.SetLogLevel(cfg.Log.Level); err != nil {
				return err
			}
			catalog.Log.Debug("loaded configuration",
				zap.String("path", cc.configPath),
				zap.Bool("file_exists", cc.configExists))
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().BoolVar(&jsonFlag, "json", false, "Print results as JSON")

	rootCmd.AddCommand(newImportCommand(cc))
	rootCmd.AddCommand(newFoldersCommand(cc))
	rootCmd.AddCommand(newDownloadCommand(cc))
	rootCmd.AddCommand(newRedownloadCommand(cc))
	rootCmd.AddCommand(newDeleteCommand(cc))
	rootCmd.AddCommand(newDeletedCommand(cc))
	rootCmd.AddCommand(newKeywordsCommand(cc))
	rootCmd.AddCommand(newTakeoutsCommand(cc))
	rootCmd.AddCommand(newUploadCommand(cc))
	rootCmd.AddCommand(newConfigCommand(cc))

	return rootCmd
}
