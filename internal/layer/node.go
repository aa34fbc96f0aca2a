// Package layer groups tagged map elements into a category tree that the
// vector renderer turns into nested drawing groups.
package layer

import (
	"fmt"
	"strings"
)

// RootID is the id of the tree root. The root is drawn as an unlabeled group.
const RootID = "root"

// Tag is a single OSM key/value pair.
type Tag struct {
	Key   string
	Value string
}

// Element is a way: an ordered list of node references plus its tags in the
// order the source document listed them.
type Element struct {
	ID   int64
	Refs []int64
	Tags []Tag
}

// Tag returns the value for key and whether it was present.
func (e Element) Tag(key string) (string, bool) {
	for _, t := range e.Tags {
		if t.Key == key {
			return t.Value, true
		}
	}
	return "", false
}

// Item is a child of a Node: either a *Node (group) or a Leaf (element).
type Item interface {
	isItem()
}

// Leaf wraps an element stored in the tree.
type Leaf struct {
	Element Element
}

func (Leaf) isItem() {}
func (*Node) isItem() {}

// Node is a category group. Children keep insertion order; group lookup by id
// goes through an index so that adding to a wide level stays O(1).
type Node struct {
	ID    string
	items []Item
	index map[string]*Node
}

// NewNode creates an empty group.
func NewNode(id string) *Node {
	return &Node{ID: id}
}

// NewRoot creates the empty root group.
func NewRoot() *Node {
	return NewNode(RootID)
}

// Items returns the children in insertion order. The slice must not be modified.
func (n *Node) Items() []Item {
	return n.items
}

// Child returns the direct child group with the given id.
func (n *Node) Child(id string) (*Node, bool) {
	c, ok := n.index[id]
	return c, ok
}

// Groups returns the direct child groups in insertion order.
func (n *Node) Groups() []*Node {
	var out []*Node
	for _, it := range n.items {
		if g, ok := it.(*Node); ok {
			out = append(out, g)
		}
	}
	return out
}

// Add stores item under path, reusing existing groups along the way and
// creating missing ones in first-seen order. An empty path appends to n.
// Adding the same leaf twice stores it twice. A group item whose id matches
// an existing sibling is merged into it.
func (n *Node) Add(path []string, item Item) {
	cur := n
	for _, id := range path {
		cur = cur.group(id)
	}
	if g, ok := item.(*Node); ok {
		cur.adopt(g)
		return
	}
	cur.items = append(cur.items, item)
}

func (n *Node) adopt(g *Node) {
	if g == nil {
		return
	}
	existing, ok := n.index[g.ID]
	if !ok {
		if n.index == nil {
			n.index = make(map[string]*Node)
		}
		n.index[g.ID] = g
		n.items = append(n.items, g)
		return
	}
	if existing == g {
		return
	}
	for _, it := range g.items {
		existing.Add(nil, it)
	}
}

func (n *Node) group(id string) *Node {
	if c, ok := n.index[id]; ok {
		return c
	}
	c := NewNode(id)
	if n.index == nil {
		n.index = make(map[string]*Node)
	}
	n.index[id] = c
	n.items = append(n.items, c)
	return c
}

// WalkFunc is called for every item below a node. path holds the ids of the
// groups between the walk origin and the item, excluding the origin itself.
type WalkFunc func(path []string, item Item)

// Walk visits the children of n depth-first in insertion order. A group is
// visited before its own children.
func (n *Node) Walk(fn WalkFunc) {
	n.walk(nil, fn)
}

func (n *Node) walk(path []string, fn WalkFunc) {
	for _, it := range n.items {
		switch v := it.(type) {
		case *Node:
			fn(path, v)
			v.walk(append(path[:len(path):len(path)], v.ID), fn)
		case Leaf:
			fn(path, v)
		}
	}
}

// Count returns the number of leaves below n.
func (n *Node) Count() int {
	count := 0
	n.Walk(func(_ []string, it Item) {
		if _, ok := it.(Leaf); ok {
			count++
		}
	})
	return count
}

// Summary maps each group path ("highway/primary") holding leaves directly to
// its leaf count.
func (n *Node) Summary() map[string]int {
	out := make(map[string]int)
	n.Walk(func(path []string, it Item) {
		if _, ok := it.(Leaf); ok {
			out[strings.Join(path, "/")]++
		}
	})
	return out
}

func (n *Node) String() string {
	return fmt.Sprintf("layer %q (%d items, %d leaves)", n.ID, len(n.items), n.Count())
}
