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
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/photoledger/photoledger/datasources/googlephotos"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newUploadCommand(cc *commandContext) *cobra.Command {
	var albumTitle, description string

	cmd := &cobra.Command{
		Use:   "upload <file>...",
		Short: "Upload photos to Google Photos",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cc.withSession(cmd, sessionOptions{remote: true}, func(ctx context.Context, s *session) error {
				var albumID string
				if albumTitle != "" {
					album, err := s.google.AlbumByTitle(ctx, albumTitle)
					if err != nil {
						return err
					}
					if album == nil {
						return fmt.Errorf("no album titled %q", albumTitle)
					}
					albumID = album.ID
				}

				uploads := make([]googlephotos.Upload, 0, len(args))
				var total uint64
				for _, name := range args {
					f, err := os.Open(name)
					if err != nil {
						return err
					}
					defer f.Close()
					if info, err := f.Stat(); err == nil {
						total += uint64(info.Size())
					}
					uploads = append(uploads, googlephotos.Upload{
						FileName:    filepath.Base(name),
						Description: description,
						Content:     f,
					})
				}
				s.log.Info("uploading files",
					zap.Int("count", len(uploads)),
					zap.String("size", humanize.Bytes(total)),
					zap.String("album_id", albumID))

				results, err := s.google.UploadItems(ctx, albumID, uploads)

				type uploadRow struct {
					FileName string `json:"fileName"`
					ID       string `json:"id,omitempty"`
					Error    string `json:"error,omitempty"`
				}
				view := make([]uploadRow, 0, len(results))
				var failed int
				for _, res := range results {
					row := uploadRow{FileName: res.FileName}
					switch {
					case res.Err != nil:
						row.Error = res.Err.Error()
					case res.Item != nil:
						row.ID = res.Item.ID
					default:
						row.Error = "not created"
					}
					if row.Error != "" {
						failed++
					}
					view = append(view, row)
				}

				out := cmd.OutOrStdout()
				if cc.jsonOutput() {
					if jerr := writeJSON(out, view); jerr != nil {
						return errors.Join(err, jerr)
					}
					return err
				}

				rows := make([][]string, 0, len(view))
				for _, row := range view {
					status := "ok"
					if row.Error != "" {
						status = row.Error
					}
					rows = append(rows, []string{row.FileName, row.ID, status})
				}
				printTable(out, []string{"File", "Media item ID", "Status"}, rows, nil)
				fmt.Fprintf(out, "%d files (%s), %d failed\n", len(results), humanize.Bytes(total), failed)
				return err
			})
		},
	}

	cmd.Flags().StringVar(&albumTitle, "album", "", "Title of the album to add the photos to")
	cmd.Flags().StringVar(&description, "description", "", "Description to give every uploaded photo")
	return cmd
}
