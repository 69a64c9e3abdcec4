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
	"slices"

	"github.com/jedib0t/go-pretty/v6/list"
	"github.com/photoledger/photoledger/catalog"
	"github.com/spf13/cobra"
)

func newKeywordsCommand(cc *commandContext) *cobra.Command {
	keywordsCmd := &cobra.Command{
		Use:   "keywords",
		Short: "Manage the keyword tree",
	}

	keywordsCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create the root and people nodes of the keyword tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cc.withSession(cmd, sessionOptions{exclusive: true}, func(ctx context.Context, s *session) error {
				return s.tagger.InitializeKeywordTree(ctx)
			})
		},
	})

	keywordsCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Show the keyword tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cc.withSession(cmd, sessionOptions{}, func(ctx context.Context, s *session) error {
				kd, err := s.tagger.GetKeywordData(ctx)
				if err != nil {
					return err
				}
				if cc.jsonOutput() {
					return writeJSON(cmd.OutOrStdout(), kd)
				}
				printKeywordTree(cmd.OutOrStdout(), kd)
				return nil
			})
		},
	})

	var keywordType, parentNodeID string
	addCmd := &cobra.Command{
		Use:   "add <label>",
		Short: "Add a keyword and place it in the tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cc.withSession(cmd, sessionOptions{exclusive: true}, func(ctx context.Context, s *session) error {
				parent := parentNodeID
				if parent == "" {
					parent = s.cfg.Keywords.RootNodeID
				}
				kw, err := s.tagger.AddKeyword(ctx, args[0], keywordType)
				if err != nil {
					return err
				}
				node, err := s.tagger.AddKeywordNode(ctx, kw.KeywordID, parent)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added keyword %q (%s) at node %s\n", kw.Label, kw.Type, node.NodeID)
				return nil
			})
		},
	}
	addCmd.Flags().StringVar(&keywordType, "type", catalog.KeywordTypeUser, "Keyword type (user, person, tbd)")
	addCmd.Flags().StringVar(&parentNodeID, "parent", "", "Parent node ID (defaults to the root node)")
	keywordsCmd.AddCommand(addCmd)

	keywordsCmd.AddCommand(&cobra.Command{
		Use:   "move <node-id> <new-parent-node-id>",
		Short: "Move a keyword node under another node",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cc.withSession(cmd, sessionOptions{exclusive: true}, func(ctx context.Context, s *session) error {
				return moveKeywordNode(ctx, s.tagger, args[0], args[1])
			})
		},
	})

	return keywordsCmd
}

func moveKeywordNode(ctx context.Context, tagger *catalog.AutoTagger, nodeID, newParentID string) error {
	if nodeID == newParentID {
		return fmt.Errorf("cannot move node %s under itself", nodeID)
	}
	kd, err := tagger.GetKeywordData(ctx)
	if err != nil {
		return err
	}
	nodes := make(map[string]catalog.KeywordNode, len(kd.KeywordNodes))
	for _, n := range kd.KeywordNodes {
		nodes[n.NodeID] = n
	}
	node, ok := nodes[nodeID]
	if !ok {
		return fmt.Errorf("no keyword node %s", nodeID)
	}
	newParent, ok := nodes[newParentID]
	if !ok {
		return fmt.Errorf("no keyword node %s", newParentID)
	}
	for i, p := 0, newParent; p.ParentNodeID != "" && i < len(nodes); i, p = i+1, nodes[p.ParentNodeID] {
		if p.ParentNodeID == nodeID {
			return fmt.Errorf("cannot move node %s under its own descendant %s", nodeID, newParentID)
		}
	}

	if oldParent, ok := nodes[node.ParentNodeID]; ok {
		oldParent.ChildrenNodeIDs = slices.DeleteFunc(oldParent.ChildrenNodeIDs, func(id string) bool { return id == nodeID })
		if err := tagger.UpdateKeywordNode(ctx, oldParent); err != nil {
			return err
		}
	}
	newParent.ChildrenNodeIDs = append(newParent.ChildrenNodeIDs, nodeID)
	if err := tagger.UpdateKeywordNode(ctx, newParent); err != nil {
		return err
	}
	node.ParentNodeID = newParentID
	return tagger.UpdateKeywordNode(ctx, node)
}

func printKeywordTree(w io.Writer, kd catalog.KeywordData) {
	labels := make(map[string]catalog.Keyword, len(kd.Keywords))
	for _, kw := range kd.Keywords {
		labels[kw.KeywordID] = kw
	}
	nodes := make(map[string]catalog.KeywordNode, len(kd.KeywordNodes))
	for _, n := range kd.KeywordNodes {
		nodes[n.NodeID] = n
	}

	root, ok := nodes[kd.RootNodeID]
	if !ok {
		fmt.Fprintln(w, "The keyword tree has not been initialized; run: photoledger keywords init")
		return
	}

	lw := list.NewWriter()
	lw.SetStyle(list.StyleConnectedRounded)

	seen := make(map[string]bool)
	var add func(n catalog.KeywordNode)
	add = func(n catalog.KeywordNode) {
		if seen[n.NodeID] {
			return
		}
		seen[n.NodeID] = true
		kw := labels[n.KeywordID]
		lw.AppendItem(fmt.Sprintf("%s [%s] (%s)", kw.Label, kw.Type, n.NodeID))
		if len(n.ChildrenNodeIDs) == 0 {
			return
		}
		lw.Indent()
		for _, childID := range n.ChildrenNodeIDs {
			if child, ok := nodes[childID]; ok {
				add(child)
			}
		}
		lw.UnIndent()
	}
	add(root)

	fmt.Fprintln(w, lw.Render())
}
