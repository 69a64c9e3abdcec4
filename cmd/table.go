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
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/photoledger/photoledger/catalog"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := range columns {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := range columns {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render()
}

func printTable(w io.Writer, headers []string, rows [][]string, aligns []columnAlignment) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "(none)")
		return
	}
	fmt.Fprintln(w, renderTable(headers, rows, aligns))
}

func mediaItemRows(items []catalog.MediaItem) [][]string {
	rows := make([][]string, 0, len(items))
	for _, it := range items {
		taken := ""
		if it.CreationTime != nil {
			taken = it.CreationTime.Format("2006-01-02 15:04")
		}
		rows = append(rows, []string{
			it.ID,
			it.FileName,
			taken,
			strings.Join(it.PersonNames(), ", "),
			localState(it.FilePath),
		})
	}
	return rows
}

var mediaItemHeaders = []string{"ID", "File", "Taken", "People", "Bytes"}

func localState(filePath string) string {
	if filePath == "" {
		return "remote"
	}
	return "local"
}

func failureRows(failures []catalog.ItemFailure) [][]string {
	rows := make([][]string, 0, len(failures))
	for _, f := range failures {
		who := f.ID
		if who == "" {
			who = f.Path
		}
		rows = append(rows, []string{who, f.Err.Error()})
	}
	return rows
}

func printFailures(w io.Writer, failures []catalog.ItemFailure) {
	if len(failures) == 0 {
		return
	}
	fmt.Fprintf(w, "%d failed:\n", len(failures))
	fmt.Fprintln(w, renderTable([]string{"Item", "Error"}, failureRows(failures), nil))
}

func printDuplicates(w io.Writer, dups []catalog.DuplicateFile) {
	if len(dups) == 0 {
		return
	}
	rows := make([][]string, len(dups))
	for i, d := range dups {
		rows[i] = []string{d.Path, d.ID, d.SameAs}
	}
	fmt.Fprintf(w, "%d already in the catalog:\n", len(dups))
	fmt.Fprintln(w, renderTable([]string{"File", "New item", "Same bytes as"}, rows, nil))
}

func printDownloadReport(w io.Writer, report *catalog.DownloadReport) {
	if report == nil {
		return
	}
	var size uint64
	for _, it := range report.Items {
		size += fileSize(it.FilePath)
	}
	fmt.Fprintln(w, renderTable(
		[]string{"Items", "Downloaded", "Already local", "Failed", "Local size"},
		[][]string{{
			strconv.Itoa(len(report.Items)),
			strconv.Itoa(report.Downloaded),
			strconv.Itoa(report.Skipped),
			strconv.Itoa(len(report.Failures)),
			humanize.Bytes(size),
		}},
		[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignRight},
	))
	printFailures(w, report.Failures)
}

func fileSize(path string) uint64 {
	if path == "" {
		return 0
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return uint64(info.Size())
}
