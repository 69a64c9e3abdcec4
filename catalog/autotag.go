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
	"fmt"
	"slices"
	"sort"

	"github.com/google/uuid"
	"github.com/maruel/natural"
	"go.uber.org/zap"
)

// Default IDs of the scaffolding of the keyword tree.
const (
	DefaultRootNodeID   = "rootKeywordNodeId"
	DefaultPeopleNodeID = "peopleKeywordNodeId"

	rootKeywordID   = "rootKeywordId"
	peopleKeywordID = "peopleKeywordId"
)

// AutoTagger maintains the keyword vocabulary, in particular the person
// keywords that are derived from the people tagged in archive sidecars.
type AutoTagger struct {
	store        Store
	rootNodeID   string
	peopleNodeID string
	log          *zap.Logger
}

// NewAutoTagger returns an AutoTagger that stores keywords in store. Empty
// node IDs are replaced by the defaults.
func NewAutoTagger(store Store, rootNodeID, peopleNodeID string) *AutoTagger {
	if rootNodeID == "" {
		rootNodeID = DefaultRootNodeID
	}
	if peopleNodeID == "" {
		peopleNodeID = DefaultPeopleNodeID
	}
	return &AutoTagger{
		store:        store,
		rootNodeID:   rootNodeID,
		peopleNodeID: peopleNodeID,
		log:          Log.Named("autotag"),
	}
}

// PersonKeywords is the outcome of EnsurePersonKeywords.
type PersonKeywords struct {
	// Created holds only the keywords and nodes that did not exist before.
	Created KeywordData

	// NodeIDByName maps every requested name to its node under the people node.
	NodeIDByName map[string]string
}

// EnsurePersonKeywords makes sure there is a person keyword with a node
// under the people node for every name. Existing ones are reused by label.
// If the keyword tree was never initialized, it is initialized first. An
// empty set of names does not touch the store.
func (at *AutoTagger) EnsurePersonKeywords(ctx context.Context, names []string) (PersonKeywords, error) {
	result := PersonKeywords{NodeIDByName: make(map[string]string)}
	if len(names) == 0 {
		return result, nil
	}

	keywords, err := at.store.ListKeywords(ctx)
	if err != nil {
		return result, fmt.Errorf("loading keywords: %w", err)
	}
	nodes, err := at.store.ListKeywordNodes(ctx)
	if err != nil {
		return result, fmt.Errorf("loading keyword nodes: %w", err)
	}

	labelByKeywordID := make(map[string]string, len(keywords))
	for _, kw := range keywords {
		if kw.Type == KeywordTypePerson {
			labelByKeywordID[kw.KeywordID] = kw.Label
		}
	}
	for _, node := range nodes {
		if node.ParentNodeID != at.peopleNodeID {
			continue
		}
		if label, ok := labelByKeywordID[node.KeywordID]; ok {
			if _, seen := result.NodeIDByName[label]; !seen {
				result.NodeIDByName[label] = node.NodeID
			}
		}
	}

	var missing []string
	for _, name := range names {
		if _, ok := result.NodeIDByName[name]; ok || slices.Contains(missing, name) {
			continue
		}
		missing = append(missing, name)
	}
	if len(missing) == 0 {
		return result, nil
	}
	sort.Slice(missing, func(i, j int) bool {
		return natural.Less(missing[i], missing[j])
	})

	peopleNode, err := at.store.GetKeywordNode(ctx, at.peopleNodeID)
	if errors.Is(err, ErrNotFound) {
		at.log.Info("initializing keyword tree for person keywords", zap.String("people_node_id", at.peopleNodeID))
		if err := at.InitializeKeywordTree(ctx); err != nil {
			return result, fmt.Errorf("initializing keyword tree: %w", err)
		}
		peopleNode, err = at.store.GetKeywordNode(ctx, at.peopleNodeID)
	}
	if err != nil {
		return result, fmt.Errorf("loading people keyword node: %w", err)
	}

	for _, name := range missing {
		kw := Keyword{KeywordID: uuid.NewString(), Label: name, Type: KeywordTypePerson}
		if err := at.store.PutKeyword(ctx, kw); err != nil {
			return result, err
		}
		node := KeywordNode{NodeID: uuid.NewString(), KeywordID: kw.KeywordID, ParentNodeID: at.peopleNodeID}
		if err := at.store.PutKeywordNode(ctx, node); err != nil {
			return result, err
		}
		result.Created.Keywords = append(result.Created.Keywords, kw)
		result.Created.KeywordNodes = append(result.Created.KeywordNodes, node)
		result.NodeIDByName[name] = node.NodeID
		peopleNode.ChildrenNodeIDs = append(peopleNode.ChildrenNodeIDs, node.NodeID)
	}

	if err := at.store.PutKeywordNode(ctx, peopleNode); err != nil {
		return result, fmt.Errorf("updating people keyword node: %w", err)
	}

	at.log.Info("created person keywords", zap.Int("count", len(missing)))

	return result, nil
}

// InitializeKeywordTree creates the root ("All") and people ("People")
// keywords and nodes, with the people node as a child of the root. It
// does nothing to parts of the tree that already exist.
func (at *AutoTagger) InitializeKeywordTree(ctx context.Context) error {
	root, err := at.ensureScaffoldNode(ctx, at.rootNodeID, rootKeywordID, "All", "")
	if err != nil {
		return err
	}
	if _, err := at.ensureScaffoldNode(ctx, at.peopleNodeID, peopleKeywordID, "People", at.rootNodeID); err != nil {
		return err
	}
	if !slices.Contains(root.ChildrenNodeIDs, at.peopleNodeID) {
		root.ChildrenNodeIDs = append(root.ChildrenNodeIDs, at.peopleNodeID)
		if err := at.store.PutKeywordNode(ctx, root); err != nil {
			return fmt.Errorf("linking people node to root: %w", err)
		}
	}
	return nil
}

func (at *AutoTagger) ensureScaffoldNode(ctx context.Context, nodeID, keywordID, label, parentNodeID string) (KeywordNode, error) {
	node, err := at.store.GetKeywordNode(ctx, nodeID)
	if err == nil {
		return node, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return KeywordNode{}, fmt.Errorf("loading keyword node %s: %w", nodeID, err)
	}

	kw := Keyword{KeywordID: keywordID, Label: label, Type: KeywordTypeTBD}
	if err := at.store.PutKeyword(ctx, kw); err != nil {
		return KeywordNode{}, err
	}
	node = KeywordNode{NodeID: nodeID, KeywordID: keywordID, ParentNodeID: parentNodeID}
	if err := at.store.PutKeywordNode(ctx, node); err != nil {
		return KeywordNode{}, err
	}
	at.log.Info("created keyword tree node", zap.String("node_id", nodeID), zap.String("label", label))
	return node, nil
}

// AddKeyword creates a new keyword.
func (at *AutoTagger) AddKeyword(ctx context.Context, label, keywordType string) (Keyword, error) {
	if label == "" {
		return Keyword{}, errors.New("keyword label is required")
	}
	switch keywordType {
	case "":
		keywordType = KeywordTypeUser
	case KeywordTypeUser, KeywordTypePerson, KeywordTypeTBD:
	default:
		return Keyword{}, fmt.Errorf("unknown keyword type %q", keywordType)
	}
	kw := Keyword{KeywordID: uuid.NewString(), Label: label, Type: keywordType}
	if err := at.store.PutKeyword(ctx, kw); err != nil {
		return Keyword{}, err
	}
	return kw, nil
}

// AddKeywordNode places a keyword in the tree as the last child of the
// parent node.
func (at *AutoTagger) AddKeywordNode(ctx context.Context, keywordID, parentNodeID string) (KeywordNode, error) {
	parent, err := at.store.GetKeywordNode(ctx, parentNodeID)
	if err != nil {
		return KeywordNode{}, fmt.Errorf("loading parent node %s: %w", parentNodeID, err)
	}
	node := KeywordNode{NodeID: uuid.NewString(), KeywordID: keywordID, ParentNodeID: parentNodeID}
	if err := at.store.PutKeywordNode(ctx, node); err != nil {
		return KeywordNode{}, err
	}
	parent.ChildrenNodeIDs = append(parent.ChildrenNodeIDs, node.NodeID)
	if err := at.store.PutKeywordNode(ctx, parent); err != nil {
		return KeywordNode{}, err
	}
	return node, nil
}

// UpdateKeywordNode replaces a keyword node that must already exist.
func (at *AutoTagger) UpdateKeywordNode(ctx context.Context, node KeywordNode) error {
	if _, err := at.store.GetKeywordNode(ctx, node.NodeID); err != nil {
		return fmt.Errorf("loading keyword node %s: %w", node.NodeID, err)
	}
	return at.store.PutKeywordNode(ctx, node)
}

// GetKeywordData returns the whole keyword vocabulary and tree.
func (at *AutoTagger) GetKeywordData(ctx context.Context) (KeywordData, error) {
	keywords, err := at.store.ListKeywords(ctx)
	if err != nil {
		return KeywordData{}, err
	}
	nodes, err := at.store.ListKeywordNodes(ctx)
	if err != nil {
		return KeywordData{}, err
	}
	return KeywordData{Keywords: keywords, KeywordNodes: nodes, RootNodeID: at.rootNodeID}, nil
}
