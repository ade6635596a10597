// Package dot renders a constructed SSA graph as a Graphviz dot file,
// one HTML-table node per block and one edge per control-flow edge,
// entirely through the graph's public query surface (§4.2) — it never
// reaches into ssa's unexported fields.
package dot

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xandfury/radeco/pkg/ir"
	"github.com/xandfury/radeco/pkg/ssa"
)

// Emit renders g as a complete "digraph cfg { ... }" dot document.
func Emit(g *ssa.Graph) string {
	var b strings.Builder
	b.WriteString("digraph cfg {\n")
	b.WriteString("node [fontname=\"monospace\"];\n")

	blocks := orderedActions(g)
	for _, a := range blocks {
		b.WriteString(blockToDot(g, a))
	}
	for _, a := range blocks {
		for _, e := range g.OutgoingEdges(a) {
			src, dst := g.EdgeInfo(e)
			b.WriteString(edgeToDot(g, src, dst, g.EdgeKindOf(e)))
		}
	}
	b.WriteString("}\n")
	return b.String()
}

// orderedActions returns every action node sorted by starting address,
// so repeated Emit calls over the same graph always produce identical
// byte output (AllActions' own order is arena-insertion order, which a
// split can perturb).
func orderedActions(g *ssa.Graph) []ssa.ActionRef {
	actions := append([]ssa.ActionRef(nil), g.AllActions()...)
	sort.Slice(actions, func(i, j int) bool {
		return g.StartingAddress(actions[i]).Less(g.StartingAddress(actions[j]))
	})
	return actions
}

func nodeName(g *ssa.Graph, a ssa.ActionRef) string {
	if a == g.Entry() {
		return "entry"
	}
	if a == g.Exit() {
		return "exit"
	}
	return fmt.Sprintf("block_%s", sanitizeAddr(g.StartingAddress(a)))
}

func sanitizeAddr(addr ir.MAddress) string {
	return strings.NewReplacer(":", "_", "-", "n").Replace(addr.String())
}

func blockToDot(g *ssa.Graph, a ssa.ActionRef) string {
	name := nodeName(g, a)
	if a == g.Entry() || a == g.Exit() {
		return fmt.Sprintf("%s [label=\"%s\" shape=ellipse];\n", name, name)
	}

	var rows strings.Builder
	rows.WriteString("<<table border=\"0\" cellborder=\"0\" cellpadding=\"1\">")
	for _, v := range orderedBlockValues(g, a) {
		rows.WriteString(valueRow(g, v))
	}
	rows.WriteString("</table>>")
	return fmt.Sprintf("%s [label=%s shape=box];\n", name, rows.String())
}

// orderedBlockValues lists every non-removed value whose block is a,
// sorted by arena insertion order (a stable proxy for construction
// order, since values are inserted as their instruction is processed).
func orderedBlockValues(g *ssa.Graph, a ssa.ActionRef) []ssa.ValueRef {
	var out []ssa.ValueRef
	for _, v := range g.AllValues() {
		if g.IsRemoved(v) {
			continue
		}
		if g.BlockOf(v) != a {
			continue
		}
		out = append(out, v)
	}
	return out
}

func valueRow(g *ssa.Graph, v ssa.ValueRef) string {
	return fmt.Sprintf(
		"<tr><td align=\"left\"><font color=\"grey50\" point-size=\"9\">%%%d:</font></td>"+
			"<td align=\"left\">%s</td></tr>",
		v, valueLabel(g, v))
}

func valueLabel(g *ssa.Graph, v ssa.ValueRef) string {
	switch g.KindOf(v) {
	case ssa.NodeConst:
		c, _ := g.ConstantOf(v)
		return fmt.Sprintf("const 0x%x", c)
	case ssa.NodeComment:
		return fmt.Sprintf("comment %q", g.CommentOf(v))
	case ssa.NodeUndefined:
		return "undefined"
	case ssa.NodePhi:
		return phiLabel(g, v)
	case ssa.NodeOp:
		return opLabel(g, v)
	default:
		return "?"
	}
}

func phiLabel(g *ssa.Graph, v ssa.ValueRef) string {
	ops := g.PhiOperandsOf(v)
	parts := make([]string, len(ops))
	for i, o := range ops {
		parts[i] = fmt.Sprintf("%%%d", o)
	}
	return fmt.Sprintf("phi(%s)", strings.Join(parts, ", "))
}

func opLabel(g *ssa.Graph, v ssa.ValueRef) string {
	op := g.OpcodeOf(v)
	operands := g.OperandsOf(v)
	parts := make([]string, 0, len(operands))
	for _, o := range operands {
		if o == ssa.InvalidValue {
			parts = append(parts, "_")
			continue
		}
		parts = append(parts, fmt.Sprintf("%%%d", o))
	}
	return fmt.Sprintf("%s(%s)", op.String(), strings.Join(parts, ", "))
}

func edgeToDot(g *ssa.Graph, src, dst ssa.ActionRef, kind ssa.EdgeKind) string {
	color, direction := "black", "forward"
	switch {
	case g.StartingAddress(dst).Less(g.StartingAddress(src)):
		color, direction = "blue", "back"
	case kind == ssa.FalseEdge:
		color = "red"
	case kind == ssa.TrueEdge:
		color = "darkgreen"
	}
	return fmt.Sprintf("%s -> %s [color=%s dir=%s];\n",
		nodeName(g, src), nodeName(g, dst), color, direction)
}
