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
	"strings"

	"github.com/photoledger/photoledger/catalog"
	"github.com/spf13/cobra"
)

func newDownloadCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "download",
		Short: "Download the bytes of every album item that is not local yet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cc.withSession(cmd, sessionOptions{remote: true, exclusive: true}, func(ctx context.Context, s *session) error {
				report, err := s.reconciler.DownloadAll(ctx)
				if err != nil {
					return err
				}
				if cc.jsonOutput() {
					return writeJSON(cmd.OutOrStdout(), report)
				}
				printDownloadReport(cmd.OutOrStdout(), &report)
				return nil
			})
		},
	}
}

func newRedownloadCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "redownload <id>",
		Short: "Download the bytes of an item again, replacing the local copy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cc.withSession(cmd, sessionOptions{remote: true, exclusive: true}, func(ctx context.Context, s *session) error {
				result, err := s.reconciler.Redownload(ctx, args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if cc.jsonOutput() {
					return writeJSON(out, result)
				}
				if result == nil {
					fmt.Fprintf(out, "No item with ID %s\n", args[0])
					return nil
				}
				fmt.Fprintf(out, "Downloaded %s to %s\n", result.Item.FileName, result.Item.FilePath)
				switch {
				case result.Changed:
					fmt.Fprintln(out, "The bytes differ from the previous copy")
				case result.PreviousChecksum != "":
					fmt.Fprintln(out, "The bytes are unchanged")
				}
				return nil
			})
		},
	}
}

func newDeleteCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete items from the catalog, keeping a restorable copy of their records",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cc.withSession(cmd, sessionOptions{exclusive: true}, func(ctx context.Context, s *session) error {
				report, err := s.reconciler.DeleteMediaItems(ctx, args)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if cc.jsonOutput() {
					return writeJSON(out, report)
				}
				fmt.Fprintf(out, "Deleted %d items\n", len(report.Deleted))
				if len(report.Missing) > 0 {
					fmt.Fprintf(out, "Not in the catalog: %s\n", strings.Join(report.Missing, ", "))
				}
				printFailures(out, report.FileFailures)
				return nil
			})
		},
	}
}

func newDeletedCommand(cc *commandContext) *cobra.Command {
	deletedCmd := &cobra.Command{
		Use:   "deleted",
		Short: "Manage the records of deleted items",
	}

	deletedCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List deleted items",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cc.withSession(cmd, sessionOptions{}, func(ctx context.Context, s *session) error {
				deleted, err := s.reconciler.ListDeletedMediaItems(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if cc.jsonOutput() {
					return writeJSON(out, deleted)
				}
				rows := make([][]string, 0, len(deleted))
				for _, d := range deleted {
					rows = append(rows, []string{d.ID, d.FileName, d.AlbumID, d.DeletedAt.Local().Format("2006-01-02 15:04")})
				}
				printTable(out, []string{"ID", "File", "Album", "Deleted"}, rows, nil)
				return nil
			})
		},
	})

	deletedCmd.AddCommand(&cobra.Command{
		Use:   "remove <id>",
		Short: "Forget a deleted item for good",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cc.withSession(cmd, sessionOptions{exclusive: true}, func(ctx context.Context, s *session) error {
				return s.reconciler.RemoveDeletedMediaItem(ctx, args[0])
			})
		},
	})

	deletedCmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Forget every deleted item",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cc.withSession(cmd, sessionOptions{exclusive: true}, func(ctx context.Context, s *session) error {
				return s.reconciler.ClearDeletedMediaItems(ctx)
			})
		},
	})

	deletedCmd.AddCommand(&cobra.Command{
		Use:   "restore <id>",
		Short: "Put a deleted item back in the catalog",
		Long:  "Restores the record of a deleted item. Its bytes are fetched again by the next download.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cc.withSession(cmd, sessionOptions{exclusive: true}, func(ctx context.Context, s *session) error {
				item, err := s.reconciler.RestoreDeletedMediaItem(ctx, args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if cc.jsonOutput() {
					return writeJSON(out, item)
				}
				if item == nil {
					fmt.Fprintf(out, "No deleted item with ID %s\n", args[0])
					return nil
				}
				printTable(out, mediaItemHeaders, mediaItemRows([]catalog.MediaItem{*item}), nil)
				return nil
			})
		},
	})

	return deletedCmd
}
