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

package googlephotos

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/photoledger/photoledger/catalog"
	"go.uber.org/zap"
)

// Upload is a file to add to the library.
type Upload struct {
	FileName    string
	Description string
	Content     io.Reader
}

// UploadResult is the outcome of creating one uploaded item.
type UploadResult struct {
	FileName string
	Item     *catalog.RemoteItem
	Err      error
}

// UploadBytes sends the raw bytes of a file and returns the upload token
// that stands for them until a media item is created from it.
func (c *Client) UploadBytes(ctx context.Context, fileName string, content io.Reader) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uploadURL, content)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("X-Goog-Upload-File-Name", fileName)
	req.Header.Set("X-Goog-Upload-Protocol", "raw")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("uploading %s: %w", fileName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", decodeError(resp)
	}

	const maxTokenLen = 1024 * 16
	token, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenLen))
	if err != nil {
		return "", fmt.Errorf("reading upload token: %w", err)
	}
	if len(token) == 0 {
		return "", errors.New("empty upload token")
	}
	return strings.TrimSpace(string(token)), nil
}

// UploadItems uploads each file and creates media items from them, added
// to the album if albumID is not empty. A failed upload affects only that
// file; the results are in input order.
func (c *Client) UploadItems(ctx context.Context, albumID string, uploads []Upload) ([]UploadResult, error) {
	results := make([]UploadResult, len(uploads))
	var batch []newMediaItem
	var batchIdx []int

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		created, err := c.batchCreate(ctx, albumID, batch)
		if err != nil {
			return err
		}
		for j, i := range batchIdx {
			if j >= len(created) {
				results[i].Err = errors.New("no result returned for upload")
				continue
			}
			res := created[j]
			if res.MediaItem == nil {
				results[i].Err = fmt.Errorf("creating media item: %s (code %d)", res.Status.Message, res.Status.Code)
				continue
			}
			item := res.MediaItem.remoteItem()
			results[i].Item = &item
		}
		batch, batchIdx = batch[:0], batchIdx[:0]
		return nil
	}

	for i, up := range uploads {
		results[i].FileName = up.FileName
		token, err := c.UploadBytes(ctx, up.FileName, up.Content)
		if err != nil {
			c.log.Error("uploading file", zap.String("filename", up.FileName), zap.Error(err))
			results[i].Err = err
			continue
		}
		batch = append(batch, newMediaItem{
			Description:     up.Description,
			SimpleMediaItem: simpleMediaItem{UploadToken: token, FileName: up.FileName},
		})
		batchIdx = append(batchIdx, i)
		if len(batch) == batchCreateMaxNew {
			if err := flush(); err != nil {
				return results, err
			}
		}
	}
	if err := flush(); err != nil {
		return results, err
	}

	return results, nil
}

func (c *Client) batchCreate(ctx context.Context, albumID string, items []newMediaItem) ([]newMediaItemResult, error) {
	req := batchCreateRequest{AlbumID: albumID, NewMediaItems: items}
	var resp batchCreateResponse
	if err := c.do(ctx, http.MethodPost, "/mediaItems:batchCreate", nil, req, &resp); err != nil {
		return nil, fmt.Errorf("creating %d media items: %w", len(items), err)
	}
	return resp.NewMediaItemResults, nil
}
