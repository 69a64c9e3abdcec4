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

package catalog

import (
	"context"
	"errors"
	"slices"
	"sync"
)

// ErrNotFound is returned by a Store when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Store persists the catalog. Implementations must be safe for concurrent use.
// List methods return records in insertion order.
type Store interface {
	ListMediaItems(ctx context.Context) ([]MediaItem, error)
	ListMediaItemsInAlbum(ctx context.Context, albumID string) ([]MediaItem, error)
	GetMediaItem(ctx context.Context, id string) (MediaItem, error)
	UpsertMediaItem(ctx context.Context, item MediaItem) error
	DeleteMediaItems(ctx context.Context, ids []string) error

	PutDeletedMediaItem(ctx context.Context, item DeletedMediaItem) error
	GetDeletedMediaItem(ctx context.Context, id string) (DeletedMediaItem, error)
	ListDeletedMediaItems(ctx context.Context) ([]DeletedMediaItem, error)
	RemoveDeletedMediaItem(ctx context.Context, id string) error
	ClearDeletedMediaItems(ctx context.Context) error

	PutKeyword(ctx context.Context, kw Keyword) error
	ListKeywords(ctx context.Context) ([]Keyword, error)
	PutKeywordNode(ctx context.Context, node KeywordNode) error
	GetKeywordNode(ctx context.Context, nodeID string) (KeywordNode, error)
	ListKeywordNodes(ctx context.Context) ([]KeywordNode, error)

	PutTakeout(ctx context.Context, t Takeout) error
	GetTakeout(ctx context.Context, id string) (Takeout, error)
	ListTakeouts(ctx context.Context) ([]Takeout, error)
}

// MemoryStore is a Store that keeps everything in memory.
type MemoryStore struct {
	mu       sync.RWMutex
	items    orderedMap[MediaItem]
	deleted  orderedMap[DeletedMediaItem]
	keywords orderedMap[Keyword]
	nodes    orderedMap[KeywordNode]
	takeouts orderedMap[Takeout]
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items:    newOrderedMap[MediaItem](),
		deleted:  newOrderedMap[DeletedMediaItem](),
		keywords: newOrderedMap[Keyword](),
		nodes:    newOrderedMap[KeywordNode](),
		takeouts: newOrderedMap[Takeout](),
	}
}

func (s *MemoryStore) ListMediaItems(_ context.Context) ([]MediaItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.items.values()
	for i := range out {
		out[i] = cloneItem(out[i])
	}
	return out, nil
}

func (s *MemoryStore) ListMediaItemsInAlbum(_ context.Context, albumID string) ([]MediaItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []MediaItem
	for _, it := range s.items.values() {
		if it.AlbumID == albumID {
			out = append(out, cloneItem(it))
		}
	}
	return out, nil
}

func (s *MemoryStore) GetMediaItem(_ context.Context, id string) (MediaItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.items.get(id)
	if !ok {
		return MediaItem{}, ErrNotFound
	}
	return cloneItem(it), nil
}

func (s *MemoryStore) UpsertMediaItem(_ context.Context, item MediaItem) error {
	s.mu.Lock()
	s.items.put(item.ID, cloneItem(item))
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) DeleteMediaItems(_ context.Context, ids []string) error {
	s.mu.Lock()
	for _, id := range ids {
		s.items.remove(id)
	}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) PutDeletedMediaItem(_ context.Context, item DeletedMediaItem) error {
	s.mu.Lock()
	item.MediaItem = cloneItem(item.MediaItem)
	s.deleted.put(item.ID, item)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) GetDeletedMediaItem(_ context.Context, id string) (DeletedMediaItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.deleted.get(id)
	if !ok {
		return DeletedMediaItem{}, ErrNotFound
	}
	return it, nil
}

func (s *MemoryStore) ListDeletedMediaItems(_ context.Context) ([]DeletedMediaItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.deleted.values(), nil
}

func (s *MemoryStore) RemoveDeletedMediaItem(_ context.Context, id string) error {
	s.mu.Lock()
	s.deleted.remove(id)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) ClearDeletedMediaItems(_ context.Context) error {
	s.mu.Lock()
	s.deleted = newOrderedMap[DeletedMediaItem]()
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) PutKeyword(_ context.Context, kw Keyword) error {
	s.mu.Lock()
	s.keywords.put(kw.KeywordID, kw)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) ListKeywords(_ context.Context) ([]Keyword, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.keywords.values(), nil
}

func (s *MemoryStore) PutKeywordNode(_ context.Context, node KeywordNode) error {
	s.mu.Lock()
	node.ChildrenNodeIDs = slices.Clone(node.ChildrenNodeIDs)
	s.nodes.put(node.NodeID, node)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) GetKeywordNode(_ context.Context, nodeID string) (KeywordNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	node, ok := s.nodes.get(nodeID)
	if !ok {
		return KeywordNode{}, ErrNotFound
	}
	node.ChildrenNodeIDs = slices.Clone(node.ChildrenNodeIDs)
	return node, nil
}

func (s *MemoryStore) ListKeywordNodes(_ context.Context) ([]KeywordNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.nodes.values()
	for i := range out {
		out[i].ChildrenNodeIDs = slices.Clone(out[i].ChildrenNodeIDs)
	}
	return out, nil
}

func (s *MemoryStore) PutTakeout(_ context.Context, t Takeout) error {
	s.mu.Lock()
	s.takeouts.put(t.ID, t)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) GetTakeout(_ context.Context, id string) (Takeout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.takeouts.get(id)
	if !ok {
		return Takeout{}, ErrNotFound
	}
	return t, nil
}

func (s *MemoryStore) ListTakeouts(_ context.Context) ([]Takeout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.takeouts.values(), nil
}

// orderedMap is a map that remembers insertion order. Replacing an
// existing key keeps its original position.
type orderedMap[V any] struct {
	keys []string
	m    map[string]V
}

func newOrderedMap[V any]() orderedMap[V] {
	return orderedMap[V]{m: make(map[string]V)}
}

func (om *orderedMap[V]) put(key string, val V) {
	if _, ok := om.m[key]; !ok {
		om.keys = append(om.keys, key)
	}
	om.m[key] = val
}

func (om *orderedMap[V]) get(key string) (V, bool) {
	v, ok := om.m[key]
	return v, ok
}

func (om *orderedMap[V]) remove(key string) {
	if _, ok := om.m[key]; !ok {
		return
	}
	delete(om.m, key)
	om.keys = slices.DeleteFunc(om.keys, func(k string) bool { return k == key })
}

func (om *orderedMap[V]) values() []V {
	out := make([]V, 0, len(om.keys))
	for _, k := range om.keys {
		out = append(out, om.m[k])
	}
	return out
}

// cloneItem copies the slices of an item so that stored records
// cannot be mutated through values handed to callers.
func cloneItem(it MediaItem) MediaItem {
	it.People = slices.Clone(it.People)
	it.KeywordNodeIDs = slices.Clone(it.KeywordNodeIDs)
	return it
}

var _ Store = (*MemoryStore)(nil)
