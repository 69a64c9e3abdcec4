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

// Package googlephotos accesses Google Photos through its Library API,
// documented at https://developers.google.com/photos/, and reads the
// album exports produced by Google Takeout.
package googlephotos

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/photoledger/photoledger/catalog"
	"go.uber.org/zap"
)

// Paging and batching limits imposed by the API.
const (
	albumsPageSize    = 50
	searchPageSize    = 100
	batchGetMaxIDs    = 50
	batchCreateMaxNew = 50
)

// Client is a client of the Google Photos Library API. It implements
// catalog.RemoteSource.
type Client struct {
	httpClient *http.Client
	baseURL    string
	uploadURL  string
	log        *zap.Logger
}

// NewClient returns a client that sends requests with httpClient, which
// is expected to add authorization. baseURL is the API root, for example
// "https://photoslibrary.googleapis.com/v1".
func NewClient(httpClient *http.Client, baseURL, uploadURL string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		uploadURL:  uploadURL,
		log:        catalog.Log.Named("googlephotos"),
	}
}

// APIError is an error reported by the API in its error envelope.
type APIError struct {
	HTTPStatus int    `json:"-"`
	Code       int    `json:"code"`
	Message    string `json:"message"`
	Status     string `json:"status"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("google photos API: HTTP %d", e.HTTPStatus)
	}
	return fmt.Sprintf("google photos API: HTTP %d: %s (%s)", e.HTTPStatus, e.Message, e.Status)
}

// AlbumByTitle returns the first album, owned or shared, whose title is
// exactly title. It returns nil if there is none.
func (c *Client) AlbumByTitle(ctx context.Context, title string) (*catalog.RemoteAlbum, error) {
	for _, endpoint := range []string{"/albums", "/sharedAlbums"} {
		var found *catalog.RemoteAlbum
		err := c.eachAlbum(ctx, endpoint, func(a gpAlbum) bool {
			if a.Title == title {
				found = a.remoteAlbum()
				return false
			}
			return true
		})
		if err != nil {
			return nil, err
		}
		if found != nil {
			return found, nil
		}
	}
	return nil, nil
}

// ListAlbums returns all albums owned by the user.
func (c *Client) ListAlbums(ctx context.Context) ([]catalog.RemoteAlbum, error) {
	var albums []catalog.RemoteAlbum
	err := c.eachAlbum(ctx, "/albums", func(a gpAlbum) bool {
		albums = append(albums, *a.remoteAlbum())
		return true
	})
	return albums, err
}

// eachAlbum pages through an album listing until fn returns false.
func (c *Client) eachAlbum(ctx context.Context, endpoint string, fn func(gpAlbum) bool) error {
	var pageToken string
	for {
		q := url.Values{"pageSize": {fmt.Sprint(albumsPageSize)}}
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}
		var page listAlbums
		if err := c.do(ctx, http.MethodGet, endpoint, q, nil, &page); err != nil {
			return fmt.Errorf("listing %s: %w", strings.TrimPrefix(endpoint, "/"), err)
		}
		for _, a := range append(page.Albums, page.SharedAlbums...) {
			if !fn(a) {
				return nil
			}
		}
		if page.NextPageToken == "" {
			return nil
		}
		pageToken = page.NextPageToken
	}
}

// ListAlbumItems returns all the items in the album, across all pages.
func (c *Client) ListAlbumItems(ctx context.Context, albumID string) ([]catalog.RemoteItem, error) {
	var items []catalog.RemoteItem
	req := listMediaItemsRequest{AlbumID: albumID, PageSize: searchPageSize}
	for {
		var page listMediaItems
		if err := c.do(ctx, http.MethodPost, "/mediaItems:search", nil, req, &page); err != nil {
			return nil, fmt.Errorf("searching media items of album %s: %w", albumID, err)
		}
		for _, m := range page.MediaItems {
			items = append(items, m.remoteItem())
		}
		if page.NextPageToken == "" {
			break
		}
		req.PageToken = page.NextPageToken
	}
	c.log.Debug("listed album items", zap.String("album_id", albumID), zap.Int("count", len(items)))
	return items, nil
}

// BatchGetItems returns current metadata, including fresh base URLs, for
// up to 50 items. Items the API could not return are left out.
func (c *Client) BatchGetItems(ctx context.Context, ids []string) ([]catalog.RemoteItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if len(ids) > batchGetMaxIDs {
		return nil, fmt.Errorf("batchGet accepts at most %d IDs, got %d", batchGetMaxIDs, len(ids))
	}

	var resp batchGetResponse
	if err := c.do(ctx, http.MethodGet, "/mediaItems:batchGet", url.Values{"mediaItemIds": ids}, nil, &resp); err != nil {
		return nil, fmt.Errorf("batch-getting %d media items: %w", len(ids), err)
	}

	items := make([]catalog.RemoteItem, 0, len(resp.MediaItemResults))
	for _, res := range resp.MediaItemResults {
		if res.MediaItem == nil {
			c.log.Warn("media item unavailable",
				zap.Int("code", res.Status.Code),
				zap.String("message", res.Status.Message))
			continue
		}
		items = append(items, res.MediaItem.remoteItem())
	}
	return items, nil
}

// OpenBytes starts downloading from a byte URL. The caller must close the
// returned body.
func (c *Client) OpenBytes(ctx context.Context, byteURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, byteURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("getting media contents: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, decodeError(resp)
	}
	return resp.Body, nil
}

// do performs an API request. A non-nil body is sent as JSON, and a
// successful response is decoded into out.
func (c *Client) do(ctx context.Context, method, endpoint string, query url.Values, body, out any) error {
	u := c.baseURL + endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// decodeError turns an unsuccessful response into an *APIError.
func decodeError(resp *http.Response) error {
	apiErr := &APIError{HTTPStatus: resp.StatusCode}

	const maxErrBody = 1024 * 256
	bodyText, err := io.ReadAll(io.LimitReader(resp.Body, maxErrBody))
	if err != nil {
		return apiErr
	}

	var envelope struct {
		Error *APIError `json:"error"`
	}
	if json.Unmarshal(bodyText, &envelope) == nil && envelope.Error != nil {
		envelope.Error.HTTPStatus = resp.StatusCode
		return envelope.Error
	}
	apiErr.Message = strings.TrimSpace(string(bodyText))
	apiErr.Status = resp.Status
	return apiErr
}

var _ catalog.RemoteSource = (*Client)(nil)
