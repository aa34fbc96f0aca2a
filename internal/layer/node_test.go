package layer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func way(id int64, tags ...string) Element {
	el := Element{ID: id, Refs: []int64{id * 10, id*10 + 1}}
	for i := 0; i+1 < len(tags); i += 2 {
		el.Tags = append(el.Tags, Tag{Key: tags[i], Value: tags[i+1]})
	}
	return el
}

func TestAddReusesGroups(t *testing.T) {
	root := NewRoot()
	root.Add([]string{"highway", "primary"}, Leaf{Element: way(1)})
	root.Add([]string{"highway", "primary"}, Leaf{Element: way(2)})
	root.Add([]string{"highway", "secondary"}, Leaf{Element: way(3)})

	require.Len(t, root.Items(), 1)
	highway, ok := root.Child("highway")
	require.True(t, ok)
	require.Len(t, highway.Groups(), 2)

	primary, ok := highway.Child("primary")
	require.True(t, ok)
	require.Len(t, primary.Items(), 2)
}

func TestAddNeverDuplicatesSiblings(t *testing.T) {
	root := NewRoot()
	paths := [][]string{
		{"a", "x"}, {"b"}, {"a", "y"}, {"a", "x"}, {"b", "z"}, {"c"}, {"a"},
	}
	for i, p := range paths {
		root.Add(p, Leaf{Element: way(int64(i))})
	}

	var check func(n *Node)
	check = func(n *Node) {
		seen := map[string]bool{}
		for _, g := range n.Groups() {
			require.False(t, seen[g.ID], "duplicate sibling %q under %q", g.ID, n.ID)
			seen[g.ID] = true
			check(g)
		}
	}
	check(root)

	ids := []string{}
	for _, g := range root.Groups() {
		ids = append(ids, g.ID)
	}
	require.Equal(t, []string{"a", "b", "c"}, ids)
}

func TestAddGroupMergesIntoSibling(t *testing.T) {
	root := NewRoot()
	root.Add([]string{"highway", "primary"}, Leaf{Element: way(1)})

	extra := NewNode("highway")
	extra.Add([]string{"primary"}, Leaf{Element: way(2)})
	extra.Add([]string{"service"}, Leaf{Element: way(3)})
	root.Add(nil, extra)
	root.Add([]string{"highway"}, Leaf{Element: way(4)})

	require.Len(t, root.Groups(), 1)
	highway, ok := root.Child("highway")
	require.True(t, ok)
	require.NotSame(t, extra, highway)

	ids := []string{}
	for _, g := range highway.Groups() {
		ids = append(ids, g.ID)
	}
	require.Equal(t, []string{"primary", "service"}, ids)
	require.Equal(t, map[string]int{"highway": 1, "highway/primary": 2, "highway/service": 1}, root.Summary())
}

func TestAddGroupRegistersNewSibling(t *testing.T) {
	root := NewRoot()
	water := NewNode("water")
	root.Add(nil, water)
	root.Add([]string{"water"}, Leaf{Element: way(1)})

	got, ok := root.Child("water")
	require.True(t, ok)
	require.Same(t, water, got)
	require.Len(t, root.Groups(), 1)
	require.Equal(t, 1, water.Count())

	root.Add(nil, water)
	require.Len(t, root.Groups(), 1)
}

func TestAddSameLeafTwice(t *testing.T) {
	root := NewRoot()
	leaf := Leaf{Element: way(7)}
	root.Add([]string{"building", "yes"}, leaf)
	root.Add([]string{"building", "yes"}, leaf)

	b, _ := root.Child("building")
	yes, _ := b.Child("yes")
	require.Len(t, yes.Items(), 2)
	require.Equal(t, 2, root.Count())
}

func TestAddEmptyPathAppendsToNode(t *testing.T) {
	root := NewRoot()
	root.Add(nil, Leaf{Element: way(1)})
	require.Len(t, root.Items(), 1)
	_, isLeaf := root.Items()[0].(Leaf)
	require.True(t, isLeaf)
}

func TestWalkOrderAndPaths(t *testing.T) {
	root := NewRoot()
	root.Add([]string{"highway", "primary"}, Leaf{Element: way(1)})
	root.Add([]string{"building", "yes"}, Leaf{Element: way(2)})
	root.Add([]string{"highway", "primary"}, Leaf{Element: way(3)})

	var visited []string
	root.Walk(func(path []string, it Item) {
		switch v := it.(type) {
		case *Node:
			visited = append(visited, "g:"+v.ID)
		case Leaf:
			visited = append(visited, "l:"+strings.Join(path, "/"))
		}
	})

	require.Equal(t, []string{
		"g:highway", "g:primary", "l:highway/primary", "l:highway/primary",
		"g:building", "g:yes", "l:building/yes",
	}, visited)

	require.Equal(t, map[string]int{"highway/primary": 2, "building/yes": 1}, root.Summary())
}
