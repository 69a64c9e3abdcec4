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
	"context"
	"fmt"
	"path/filepath"
	"slices"

	"github.com/photoledger/photoledger/datasources/googlephotos"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newTakeoutsCommand(cc *commandContext) *cobra.Command {
	takeoutsCmd := &cobra.Command{
		Use:   "takeouts",
		Short: "Manage registered Takeout exports",
	}

	var skipCheck bool
	addCmd := &cobra.Command{
		Use:   "add <label> <album> <path>",
		Short: "Register a Takeout export of an album",
		Long: "Registers a Takeout export, which may be a folder or an archive file.\n" +
			"Relative paths are relative to the configured takeouts_dir.",
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			label, album, path := args[0], args[1], args[2]
			return cc.withSession(cmd, sessionOptions{exclusive: true}, func(ctx context.Context, s *session) error {
				if !skipCheck {
					checkTakeoutAlbum(ctx, s, album, path)
				}
				t, err := s.reconciler.AddTakeout(ctx, label, album, path)
				if err != nil {
					return err
				}
				if cc.jsonOutput() {
					return writeJSON(cmd.OutOrStdout(), t)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Registered takeout %s\n", t.ID)
				return nil
			})
		},
	}
	addCmd.Flags().BoolVar(&skipCheck, "no-check", false, "Do not open the export to look for the album")
	takeoutsCmd.AddCommand(addCmd)

	takeoutsCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List registered Takeout exports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cc.withSession(cmd, sessionOptions{}, func(ctx context.Context, s *session) error {
				takeouts, err := s.reconciler.ListTakeouts(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if cc.jsonOutput() {
					return writeJSON(out, takeouts)
				}
				rows := make([][]string, 0, len(takeouts))
				for _, t := range takeouts {
					rows = append(rows, []string{t.ID, t.Label, t.AlbumName, t.Path})
				}
				printTable(out, []string{"ID", "Label", "Album", "Path"}, rows, nil)
				return nil
			})
		},
	})

	return takeoutsCmd
}

// checkTakeoutAlbum warns if the export cannot be opened or does not
// appear to contain the album. Neither stops the registration: the
// export may not be in place yet.
func checkTakeoutAlbum(ctx context.Context, s *session, album, path string) {
	resolved := path
	if s.reconciler.TakeoutsDir != "" && !filepath.IsAbs(path) {
		resolved = filepath.Join(s.reconciler.TakeoutsDir, path)
	}
	tk, err := googlephotos.OpenTakeout(ctx, resolved, nil, takeoutOptions(s.cfg))
	if err != nil {
		s.log.Warn("could not open takeout", zap.String("path", resolved), zap.Error(err))
		return
	}
	if titles := tk.AlbumTitles(); !slices.Contains(titles, album) {
		s.log.Warn("takeout has no album metadata with that title",
			zap.String("album", album),
			zap.Strings("albums_in_takeout", titles))
	}
}
