package uischema

// Node is one section visited by Walk. Owners is the owning-table chain from
// the screen's table down to the table the section writes to; the last entry
// is the section's own table.
type Node struct {
	Path    []int
	Owners  []string
	Section Section
}

// Table returns the table the node's section writes to.
func (n Node) Table() string {
	if len(n.Owners) == 0 {
		return ""
	}
	return n.Owners[len(n.Owners)-1]
}

// Depth reports how many repeat blocks enclose the node.
func (n Node) Depth() int {
	return len(n.Owners) - 1
}

// Walk visits every section of the screen depth-first in declaration order,
// descending into nested and repeat blocks. Traversal uses an explicit stack
// so completion order can be reasoned about without recursion. Returning a
// non-nil error from fn stops the walk.
func Walk(screen Screen, fn func(Node) error) error {
	type frame struct {
		node Node
	}

	stack := make([]frame, 0, len(screen.Sections))
	for idx := len(screen.Sections) - 1; idx >= 0; idx-- {
		stack = append(stack, frame{node: Node{
			Path:    []int{idx},
			Owners:  []string{screen.Table},
			Section: screen.Sections[idx],
		}})
	}

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if err := fn(top.node); err != nil {
			return err
		}

		var spec *RepeatSpec
		switch body := top.node.Section.Body.(type) {
		case Simple:
			spec = body.Nested
		case Repeat:
			s := body.Spec
			spec = &s
		}
		if spec == nil {
			continue
		}

		owners := append(append([]string(nil), top.node.Owners...), spec.Table)
		for idx := len(spec.Sections) - 1; idx >= 0; idx-- {
			path := append(append([]int(nil), top.node.Path...), idx)
			stack = append(stack, frame{node: Node{
				Path:    path,
				Owners:  owners,
				Section: spec.Sections[idx],
			}})
		}
	}
	return nil
}
