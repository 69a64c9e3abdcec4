package catalog

import (
	"context"
	"slices"
	"testing"
)

func TestEnsurePersonKeywordsEmptyDoesNotTouchStore(t *testing.T) {
	store := &countingStore{Store: NewMemoryStore()}
	tagger := NewAutoTagger(store, "", "")

	result, err := tagger.EnsurePersonKeywords(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Created.Empty() || len(result.NodeIDByName) != 0 {
		t.Errorf("Expected an empty result but got %+v", result)
	}
	if store.calls != 0 {
		t.Errorf("Expected no store calls but got %d", store.calls)
	}
}

func TestEnsurePersonKeywordsInitializesTree(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	tagger := NewAutoTagger(store, "", "")

	result, err := tagger.EnsurePersonKeywords(ctx, []string{"Ann"})
	if err != nil {
		t.Fatal(err)
	}
	root, err := store.GetKeywordNode(ctx, DefaultRootNodeID)
	if err != nil {
		t.Fatalf("Expected the root node to exist: %v", err)
	}
	if !slices.Contains(root.ChildrenNodeIDs, DefaultPeopleNodeID) {
		t.Errorf("Expected the people node under the root but got %v", root.ChildrenNodeIDs)
	}
	people, err := store.GetKeywordNode(ctx, DefaultPeopleNodeID)
	if err != nil {
		t.Fatalf("Expected the people node to exist: %v", err)
	}
	nodeID := result.NodeIDByName["Ann"]
	if nodeID == "" || !slices.Equal(people.ChildrenNodeIDs, []string{nodeID}) {
		t.Errorf("Expected Ann's node %s as the only child of the people node but got %v", nodeID, people.ChildrenNodeIDs)
	}
}

func TestEnsurePersonKeywords(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	tagger := mustInitKeywords(t, store)

	first, err := tagger.EnsurePersonKeywords(ctx, []string{"Person 10", "Person 2", "Person 10"})
	if err != nil {
		t.Fatal(err)
	}
	var labels []string
	for _, kw := range first.Created.Keywords {
		labels = append(labels, kw.Label)
		if kw.Type != KeywordTypePerson {
			t.Errorf("Expected type '%s' but got '%s'", KeywordTypePerson, kw.Type)
		}
	}
	if expect := []string{"Person 2", "Person 10"}; !slices.Equal(labels, expect) {
		t.Errorf("Expected created keywords %v but got %v", expect, labels)
	}
	for _, node := range first.Created.KeywordNodes {
		if node.ParentNodeID != DefaultPeopleNodeID {
			t.Errorf("Expected parent '%s' but got '%s'", DefaultPeopleNodeID, node.ParentNodeID)
		}
	}

	second, err := tagger.EnsurePersonKeywords(ctx, []string{"Person 2", "Carl"})
	if err != nil {
		t.Fatal(err)
	}
	if len(second.Created.Keywords) != 1 || second.Created.Keywords[0].Label != "Carl" {
		t.Errorf("Expected only Carl to be created but got %v", second.Created.Keywords)
	}
	if second.NodeIDByName["Person 2"] != first.NodeIDByName["Person 2"] {
		t.Errorf("Expected the existing node of Person 2 to be reused")
	}

	people, err := store.GetKeywordNode(ctx, DefaultPeopleNodeID)
	if err != nil {
		t.Fatal(err)
	}
	expect := []string{first.NodeIDByName["Person 2"], first.NodeIDByName["Person 10"], second.NodeIDByName["Carl"]}
	if !slices.Equal(people.ChildrenNodeIDs, expect) {
		t.Errorf("Expected people node children %v but got %v", expect, people.ChildrenNodeIDs)
	}
}

func TestInitializeKeywordTreeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	tagger := mustInitKeywords(t, store)
	if err := tagger.InitializeKeywordTree(ctx); err != nil {
		t.Fatal(err)
	}

	kd, err := tagger.GetKeywordData(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(kd.Keywords) != 2 || len(kd.KeywordNodes) != 2 {
		t.Errorf("Expected 2 keywords and 2 nodes but got %d and %d", len(kd.Keywords), len(kd.KeywordNodes))
	}
	root, err := store.GetKeywordNode(ctx, DefaultRootNodeID)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(root.ChildrenNodeIDs, []string{DefaultPeopleNodeID}) {
		t.Errorf("Expected root children [%s] but got %v", DefaultPeopleNodeID, root.ChildrenNodeIDs)
	}
}

func TestAddKeywordAndNode(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	tagger := mustInitKeywords(t, store)

	kw, err := tagger.AddKeyword(ctx, "Beach", "")
	if err != nil {
		t.Fatal(err)
	}
	if kw.Type != KeywordTypeUser {
		t.Errorf("Expected default type '%s' but got '%s'", KeywordTypeUser, kw.Type)
	}
	if _, err := tagger.AddKeyword(ctx, "Odd", "animal"); err == nil {
		t.Errorf("Expected an error for an unknown keyword type")
	}
	if _, err := tagger.AddKeyword(ctx, "", ""); err == nil {
		t.Errorf("Expected an error for an empty label")
	}

	node, err := tagger.AddKeywordNode(ctx, kw.KeywordID, DefaultRootNodeID)
	if err != nil {
		t.Fatal(err)
	}
	root, _ := store.GetKeywordNode(ctx, DefaultRootNodeID)
	if !slices.Contains(root.ChildrenNodeIDs, node.NodeID) {
		t.Errorf("Expected root to list the new node, got %v", root.ChildrenNodeIDs)
	}
	if _, err := tagger.AddKeywordNode(ctx, kw.KeywordID, "no-such-node"); err == nil {
		t.Errorf("Expected an error for a missing parent")
	}

	node.ParentNodeID = DefaultPeopleNodeID
	if err := tagger.UpdateKeywordNode(ctx, node); err != nil {
		t.Fatal(err)
	}
	if err := tagger.UpdateKeywordNode(ctx, KeywordNode{NodeID: "no-such-node"}); err == nil {
		t.Errorf("Expected an error updating a missing node")
	}
}
