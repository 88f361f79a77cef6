package bptree

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"go-btindex/pkg/customerrors"
	"go-btindex/pkg/stack"
	"go-btindex/util/helpers"

	"github.com/pkg/errors"
)

type DisplayMode int

const (
	// DisplayDepth prints every node on its own line in pre-order.
	DisplayDepth DisplayMode = iota
	// DisplayDot prints the tree as a graphviz digraph.
	DisplayDot
	// DisplaySorted prints only the leaf pairs, in ascending key order.
	DisplaySorted
)

func (m DisplayMode) String() string {
	switch m {
	case DisplayDepth:
		return "depth"
	case DisplayDot:
		return "dot"
	case DisplaySorted:
		return "sorted"
	}
	return fmt.Sprintf("DisplayMode(%d)", int(m))
}

func ParseDisplayMode(s string) (DisplayMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "depth":
		return DisplayDepth, nil
	case "dot":
		return DisplayDot, nil
	case "sorted":
		return DisplaySorted, nil
	}
	return DisplayDepth, errors.Errorf("unknown display mode %q", s)
}

// Display writes the tree to w. Nodes are visited depth first, parents
// before children and children left to right, so DisplaySorted lists the
// pairs in ascending key order.
func (tree *BPlusTree) Display(w io.Writer, mode DisplayMode) error {
	tree.mu.RLock()
	defer tree.mu.RUnlock()

	if err := tree.check(); err != nil {
		return err
	}

	bw := bufio.NewWriter(w)
	if err := tree.poison(tree.display(bw, mode)); err != nil {
		return err
	}
	return bw.Flush()
}

func (tree *BPlusTree) display(w *bufio.Writer, mode DisplayMode) error {
	if mode == DisplayDot {
		fmt.Fprintln(w, "digraph tree {")
	}

	pending := stack.New[uint64](16)
	pending.Push(tree.meta.root)

	for visited := uint64(0); !pending.Empty(); visited++ {
		if visited >= tree.store.BlockCount() {
			return errors.Wrap(customerrors.ErrInsane, "display visited more nodes than blocks")
		}

		addr, _ := pending.Pop()
		n, err := tree.readNode(addr)
		if err != nil {
			return err
		}

		switch {
		case addr == tree.meta.root && n.typ != typeRoot,
			addr != tree.meta.root && n.typ != typeInterior && n.typ != typeLeaf:
			return errors.Wrapf(customerrors.ErrInsane, "block %d is tagged %s", addr, n.typ)
		case n.typ == typeInterior && len(n.keys) == 0:
			return errors.Wrapf(customerrors.ErrInsane, "interior block %d has no keys", addr)
		}

		printNode(w, addr, n, mode)

		if n.isInterior() {
			if mode == DisplayDot {
				for _, child := range n.children {
					fmt.Fprintf(w, "%d -> %d;\n", addr, child)
				}
			}
			for i := len(n.children) - 1; i >= 0; i-- {
				pending.Push(n.children[i])
			}
		}
	}

	if mode == DisplayDot {
		fmt.Fprintln(w, "}")
	}
	return nil
}

func printNode(w io.Writer, addr uint64, n *node, mode DisplayMode) {
	if mode == DisplaySorted {
		if !n.isLeaf() {
			return
		}
		for i := range n.keys {
			fmt.Fprintf(w, "(%s,%s)\n", helpers.Render(n.keys[i]), helpers.Render(n.vals[i]))
		}
		return
	}

	var sb strings.Builder
	if n.isInterior() {
		if len(n.keys) == 0 {
			sb.WriteString("(empty)")
		}
		for i, child := range n.children {
			if i > 0 {
				sb.WriteByte(' ')
				sb.WriteString(helpers.Render(n.keys[i-1]))
				sb.WriteByte(' ')
			}
			fmt.Fprintf(&sb, "*%d", child)
		}
	} else {
		for i := range n.keys {
			if i > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(helpers.Render(n.keys[i]))
			sb.WriteByte(' ')
			sb.WriteString(helpers.Render(n.vals[i]))
		}
	}

	if mode == DisplayDot {
		fmt.Fprintf(w, "%d [ label=%q ];\n", addr, fmt.Sprintf("%d: %s", addr, sb.String()))
		return
	}
	fmt.Fprintf(w, "%d: %s: %s\n", addr, n.typ, sb.String())
}
