package session

import (
	"time"

	"github.com/c360/jsonrender/assemble"
	"github.com/c360/jsonrender/catalog"
	"github.com/c360/jsonrender/types"
	"github.com/c360/jsonrender/visibility"
)

// RenderedNode is one position of the resolved render set. Loading marks
// elements the host should show as pending: placeholders for children that
// have not arrived yet, and elements whose required props are still missing.
type RenderedNode struct {
	Element  types.Element
	Loading  bool
	Children []*RenderedNode
}

// RenderSet is the host-facing view of the current tree after exclusion and
// visibility rules are applied. Root is nil when nothing is renderable yet.
type RenderSet struct {
	Root      *RenderedNode
	Streaming bool
}

// Render resolves the current tree into the set of nodes the host should
// show, against the current data snapshot and auth state:
//
//   - catalog-invalid elements are excluded together with their subtree;
//     valid siblings are unaffected
//   - elements whose visibility condition evaluates false are pruned with
//     their whole subtree
//   - placeholders and incomplete elements stay in the set flagged Loading
func (s *Session) Render() RenderSet {
	start := time.Now()

	s.mu.Lock()
	tree := s.assembler.Tree()
	auth := s.auth
	streaming := s.streaming
	s.mu.Unlock()

	snap := s.store.Snapshot()
	var invalid, incomplete int
	root := resolveNode(tree.Root, snap, auth, &invalid, &incomplete)

	if s.metrics != nil {
		s.metrics.RenderPasses.Inc()
		s.metrics.RenderDuration.Observe(time.Since(start).Seconds())
		s.metrics.ElementsInvalid.Set(float64(invalid))
		s.metrics.ElementsIncomplete.Set(float64(incomplete))
	}
	return RenderSet{Root: root, Streaming: streaming}
}

// resolveNode applies the exclusion and visibility rules to one subtree.
// Returns nil when the node must not render.
func resolveNode(node *assemble.Node, data visibility.Reader, auth types.AuthSnapshot,
	invalid, incomplete *int) *RenderedNode {
	if node == nil {
		return nil
	}
	if node.State == catalog.StateInvalid {
		*invalid++
		return nil
	}
	if !visibility.Eval(node.Element.Visible, data, auth) {
		return nil
	}

	out := &RenderedNode{
		Element: node.Element,
		Loading: node.Placeholder || node.State == catalog.StateIncomplete,
	}
	if out.Loading {
		*incomplete++
	}
	for _, child := range node.Children {
		if resolved := resolveNode(child, data, auth, invalid, incomplete); resolved != nil {
			out.Children = append(out.Children, resolved)
		}
	}
	return out
}
