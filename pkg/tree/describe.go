package tree

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/dukex/procshift/pkg/models"
)

// Node is a read-only nested description of an execution or activity instance
// tree.
type Node struct {
	ID         string  `json:"id"`
	ActivityID string  `json:"activity_id"`
	Scope      bool    `json:"scope,omitempty"`
	Children   []*Node `json:"children,omitempty"`
}

// DescribeExecutions renders the execution tree of s. It returns nil when the
// instance has no root execution.
func DescribeExecutions(s *models.Snapshot) *Node {
	root, ok := s.RootExecution()
	if !ok {
		return nil
	}

	children := map[string][]models.Execution{}
	for _, e := range s.Executions {
		if !e.IsRoot() {
			children[e.ParentID] = append(children[e.ParentID], e)
		}
	}

	var build func(e models.Execution, depth int) *Node
	build = func(e models.Execution, depth int) *Node {
		n := &Node{ID: e.ID, ActivityID: e.ActivityID, Scope: e.IsScope}

		if depth > len(s.Executions) {
			return n
		}

		for _, c := range children[e.ID] {
			n.Children = append(n.Children, build(c, depth+1))
		}

		sortNodes(n.Children)

		return n
	}

	return build(root, 0)
}

// DescribeActivityInstances renders the activity instance tree of s. It returns
// nil when the instance has no root activity instance.
func DescribeActivityInstances(s *models.Snapshot) *Node {
	root, ok := s.ActivityInstances[s.Instance.ID]
	if !ok {
		return nil
	}

	children := map[string][]models.ActivityInstance{}
	for _, ai := range s.ActivityInstances {
		if !ai.IsRoot() {
			children[ai.ParentID] = append(children[ai.ParentID], ai)
		}
	}

	var build func(ai models.ActivityInstance, depth int) *Node
	build = func(ai models.ActivityInstance, depth int) *Node {
		n := &Node{ID: ai.ID, ActivityID: ai.ActivityID}

		if depth > len(s.ActivityInstances) {
			return n
		}

		for _, c := range children[ai.ID] {
			n.Children = append(n.Children, build(c, depth+1))
		}

		sortNodes(n.Children)

		return n
	}

	return build(root, 0)
}

// String renders the tree one node per line, children indented.
func (n *Node) String() string {
	var b strings.Builder
	n.write(&b, 0)

	return b.String()
}

func (n *Node) write(b *strings.Builder, depth int) {
	activity := n.ActivityID
	if activity == "" {
		activity = "<process>"
	}

	fmt.Fprintf(b, "%s%s [%s]", strings.Repeat("  ", depth), activity, n.ID)

	if n.Scope {
		b.WriteString(" scope")
	}

	b.WriteString("\n")

	for _, c := range n.Children {
		c.write(b, depth+1)
	}
}

// Find returns the first node at activityID in depth-first order.
func (n *Node) Find(activityID string) *Node {
	if n == nil {
		return nil
	}

	if n.ActivityID == activityID {
		return n
	}

	for _, c := range n.Children {
		if found := c.Find(activityID); found != nil {
			return found
		}
	}

	return nil
}

// Shape is an expected tree used to verify a description. Empty IDs match any
// id and a nil Scope matches either scope flag.
type Shape struct {
	ActivityID string
	ID         string
	Scope      *bool
	Children   []Shape
}

// Expect builds a shape at activityID with the given children.
func Expect(activityID string, children ...Shape) Shape {
	return Shape{ActivityID: activityID, Children: children}
}

// WithID requires the matched node to have id.
func (s Shape) WithID(id string) Shape {
	s.ID = id
	return s
}

// AsScope requires the matched node to be a scope execution.
func (s Shape) AsScope() Shape {
	scope := true
	s.Scope = &scope

	return s
}

// AsNonScope requires the matched node not to be a scope execution.
func (s Shape) AsNonScope() Shape {
	scope := false
	s.Scope = &scope

	return s
}

// Matches reports whether the tree has exactly the expected shape. Children
// are matched regardless of order.
func (n *Node) Matches(s Shape) bool {
	if n == nil {
		return false
	}

	if n.ActivityID != s.ActivityID || (s.ID != "" && n.ID != s.ID) || (s.Scope != nil && n.Scope != *s.Scope) {
		return false
	}

	if len(n.Children) != len(s.Children) {
		return false
	}

	return matchChildren(n.Children, s.Children, make([]bool, len(n.Children)))
}

func matchChildren(nodes []*Node, shapes []Shape, used []bool) bool {
	if len(shapes) == 0 {
		return true
	}

	for i, node := range nodes {
		if used[i] || !node.Matches(shapes[0]) {
			continue
		}

		used[i] = true

		if matchChildren(nodes, shapes[1:], used) {
			return true
		}

		used[i] = false
	}

	return false
}

func sortNodes(nodes []*Node) {
	slices.SortFunc(nodes, func(a, b *Node) int {
		return cmp.Or(cmp.Compare(a.ActivityID, b.ActivityID), cmp.Compare(a.ID, b.ID))
	})
}
