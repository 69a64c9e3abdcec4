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
	"io"
	"path/filepath"
	"strconv"

	"github.com/photoledger/photoledger/catalog"
	"github.com/spf13/cobra"
)

func newImportCommand(cc *commandContext) *cobra.Command {
	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Import photos into the catalog",
	}

	importCmd.AddCommand(&cobra.Command{
		Use:   "takeout <album> <path>",
		Short: "Import or merge an album, enriched with its Takeout export",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cc.withSession(cmd, sessionOptions{remote: true, exclusive: true}, func(ctx context.Context, s *session) error {
				added, err := s.reconciler.ImportFromTakeout(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return cc.printAdded(cmd.OutOrStdout(), args[0], added)
			})
		},
	})

	importCmd.AddCommand(&cobra.Command{
		Use:   "takeout-id <id>",
		Short: "Import or merge the album of a registered takeout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cc.withSession(cmd, sessionOptions{remote: true, exclusive: true}, func(ctx context.Context, s *session) error {
				added, err := s.reconciler.ImportTakeoutByID(ctx, args[0])
				if err != nil {
					return err
				}
				return cc.printAdded(cmd.OutOrStdout(), "takeout "+args[0], added)
			})
		},
	})

	importCmd.AddCommand(&cobra.Command{
		Use:   "folder <name|path>",
		Short: "Copy the images in a local folder into the catalog",
		Long: "Copies every image directly inside the folder into the catalog. A bare\n" +
			"name refers to a subfolder of the configured import_dir.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cc.withSession(cmd, sessionOptions{exclusive: true}, func(ctx context.Context, s *session) error {
				dir := resolveImportFolder(s.cfg.Paths.ImportDir, args[0])
				report, err := s.folders.ImportFolder(ctx, dir)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if cc.jsonOutput() {
					return writeJSON(out, report)
				}
				fmt.Fprintf(out, "Imported %d items from %s\n", len(report.Imported), dir)
				printTable(out, mediaItemHeaders, mediaItemRows(report.Imported), nil)
				printDuplicates(out, report.Duplicates)
				printFailures(out, report.Failures)
				return nil
			})
		},
	})

	return importCmd
}

func newFoldersCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "folders",
		Short: "List the folders that can be imported from the import directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := cc.ensureConfig()
			if err != nil {
				return err
			}
			names, err := catalog.ListImportFolders(cfg.Paths.ImportDir)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if cc.jsonOutput() {
				return writeJSON(out, names)
			}
			rows := make([][]string, 0, len(names))
			for _, name := range names {
				rows = append(rows, []string{name})
			}
			printTable(out, []string{"Folder in " + cfg.Paths.ImportDir}, rows, nil)
			return nil
		},
	}
}

// resolveImportFolder returns arg if it is a path, or else the folder by
// that name in importDir.
func resolveImportFolder(importDir, arg string) string {
	if filepath.IsAbs(arg) || filepath.Base(arg) != arg || arg == "." || arg == ".." {
		return arg
	}
	return filepath.Join(importDir, arg)
}

func (cc *commandContext) printAdded(out io.Writer, what string, added *catalog.AddedTakeoutData) error {
	if cc.jsonOutput() {
		return writeJSON(out, added)
	}
	if added == nil {
		fmt.Fprintf(out, "Nothing imported: no album found for %s\n", what)
		return nil
	}

	if added.Merge != nil {
		m := added.Merge
		fmt.Fprintln(out, renderTable(
			[]string{"Inserted", "Updated", "Unchanged", "Deleted"},
			[][]string{{
				strconv.Itoa(len(m.Inserted)),
				strconv.Itoa(len(m.Updated)),
				strconv.Itoa(len(m.Unchanged)),
				strconv.Itoa(len(m.Deleted)),
			}},
			[]columnAlignment{alignRight, alignRight, alignRight, alignRight},
		))
	} else {
		fmt.Fprintf(out, "Imported %d items\n", len(added.AddedMediaItems))
		printTable(out, mediaItemHeaders, mediaItemRows(added.AddedMediaItems), nil)
		if kd := added.AddedKeywordData; kd != nil && !kd.Empty() {
			fmt.Fprintf(out, "Created %d person keywords\n", len(kd.Keywords))
		}
	}

	printDownloadReport(out, added.Download)
	return nil
}
