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

package plcmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/photoledger/photoledger/catalog"
	"github.com/spf13/cobra"
)

func newConfigCommand(cc *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}

	var targetPath string
	var overwrite bool
	initCmd := &cobra.Command{
		Use:         "init",
		Short:       "Create a configuration file with the default settings",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			target := strings.TrimSpace(targetPath)
			if target == "" && cc.configFlag != nil {
				target = strings.TrimSpace(*cc.configFlag)
			}
			if target == "" {
				target = catalog.DefaultConfigFilePath()
			}
			target, err := catalog.ExpandPath(target)
			if err != nil {
				return fmt.Errorf("resolve config path: %w", err)
			}

			if !overwrite {
				if _, err := os.Stat(target); err == nil {
					return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
				} else if !errors.Is(err, fs.ErrNotExist) {
					return fmt.Errorf("check config path: %w", err)
				}
			}

			if err := catalog.CreateSample(target); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote configuration to %s\n", target)
			fmt.Fprintln(out, "Set client_id and client_secret in the [google] section (or export PHOTOLEDGER_CLIENT_ID and PHOTOLEDGER_CLIENT_SECRET) before using Google Photos.")
			return nil
		},
	}
	initCmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	initCmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite an existing configuration file")
	configCmd.AddCommand(initCmd)

	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := cc.ensureConfig()
			if err != nil {
				return err
			}
			shown := *cfg
			if shown.Google.ClientSecret != "" {
				shown.Google.ClientSecret = "(set)"
			}
			out := cmd.OutOrStdout()
			if cc.jsonOutput() {
				return writeJSON(out, shown)
			}
			source := cc.configPath
			if !cc.configExists {
				source += " (not found; defaults)"
			}
			fmt.Fprintf(out, "# %s\n", source)
			return toml.NewEncoder(out).Encode(shown)
		},
	})

	return configCmd
}
