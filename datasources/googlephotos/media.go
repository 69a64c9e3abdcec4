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
	"strconv"
	"time"

	"github.com/photoledger/photoledger/catalog"
)

// listMediaItems is the structure of the results
// of calling mediaItems:search in the Google Photos API.
type listMediaItems struct {
	MediaItems    []mediaItem `json:"mediaItems"`
	NextPageToken string      `json:"nextPageToken"`
}

type mediaItem struct {
	MediaID       string        `json:"id"`
	ProductURL    string        `json:"productUrl"`
	BaseURL       string        `json:"baseUrl"`
	MIMEType      string        `json:"mimeType"`
	MediaMetadata mediaMetadata `json:"mediaMetadata"`
	Filename      string        `json:"filename"`
}

func (m mediaItem) remoteItem() catalog.RemoteItem {
	return catalog.RemoteItem{
		ID:           m.MediaID,
		FileName:     m.Filename,
		ProductURL:   m.ProductURL,
		BaseURL:      m.BaseURL,
		MimeType:     m.MIMEType,
		CreationTime: m.MediaMetadata.CreationTime,
		Width:        m.MediaMetadata.Width,
		Height:       m.MediaMetadata.Height,
	}
}

type mediaMetadata struct {
	CreationTime time.Time `json:"creationTime"`
	Width        string    `json:"width"`
	Height       string    `json:"height"`
}

type listMediaItemsRequest struct {
	AlbumID   string `json:"albumId,omitempty"`
	PageSize  int    `json:"pageSize,omitempty"`
	PageToken string `json:"pageToken,omitempty"`
}

type batchGetResponse struct {
	MediaItemResults []mediaItemResult `json:"mediaItemResults"`
}

type mediaItemResult struct {
	Status    status     `json:"status"`
	MediaItem *mediaItem `json:"mediaItem,omitempty"`
}

type status struct {
	Code    int    `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

type listAlbums struct {
	Albums        []gpAlbum `json:"albums"`
	SharedAlbums  []gpAlbum `json:"sharedAlbums"`
	NextPageToken string    `json:"nextPageToken"`
}

type gpAlbum struct {
	ID                    string `json:"id"`
	Title                 string `json:"title,omitempty"`
	ProductURL            string `json:"productUrl"`
	MediaItemsCount       string `json:"mediaItemsCount"`
	CoverPhotoBaseURL     string `json:"coverPhotoBaseUrl"`
	CoverPhotoMediaItemID string `json:"coverPhotoMediaItemId"`
}

func (a gpAlbum) remoteAlbum() *catalog.RemoteAlbum {
	count, _ := strconv.Atoi(a.MediaItemsCount)
	return &catalog.RemoteAlbum{
		ID:              a.ID,
		Title:           a.Title,
		ProductURL:      a.ProductURL,
		MediaItemsCount: count,
	}
}

type batchCreateRequest struct {
	AlbumID       string         `json:"albumId,omitempty"`
	NewMediaItems []newMediaItem `json:"newMediaItems"`
}

type newMediaItem struct {
	Description     string          `json:"description,omitempty"`
	SimpleMediaItem simpleMediaItem `json:"simpleMediaItem"`
}

type simpleMediaItem struct {
	UploadToken string `json:"uploadToken"`
	FileName    string `json:"fileName,omitempty"`
}

type batchCreateResponse struct {
	NewMediaItemResults []newMediaItemResult `json:"newMediaItemResults"`
}

type newMediaItemResult struct {
	UploadToken string     `json:"uploadToken"`
	Status      status     `json:"status"`
	MediaItem   *mediaItem `json:"mediaItem,omitempty"`
}
