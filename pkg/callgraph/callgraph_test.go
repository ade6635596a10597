package callgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xandfury/radeco/pkg/ir"
	"github.com/xandfury/radeco/pkg/regfile"
	"github.com/xandfury/radeco/pkg/ssa"
)

func buildCallerGraph(t *testing.T) (*ssa.Graph, uint64) {
	t.Helper()
	profile := regfile.Z80Profile()
	c := ssa.NewConstructor(profile, true, false, nil)

	instrs := []ssa.Instruction{
		{Address: 0x1000, Size: 3, RTL: "", Opcode: "sub.callee", Optype: "call"},
	}
	require.NoError(t, c.Process(instrs))
	return c.Graph(), 0x1000
}

func TestAnalyzeCallsiteInitialFindsCallSite(t *testing.T) {
	g, callAddr := buildCallerGraph(t)

	csites := AnalyzeCallsiteInitial(g)
	require.Len(t, csites, 1)

	ctx, ok := csites[ir.NewAddress(callAddr)]
	require.True(t, ok)
	assert.NotEqual(t, ssa.InvalidValue, ctx.SiteNode)
	assert.NotEqual(t, ssa.InvalidValue, ctx.Result)
	for _, r := range ctx.Resolved {
		assert.Equal(t, ssa.InvalidValue, r)
	}
}

func TestLoadBuildsEdgesOnlyBetweenKnownNodes(t *testing.T) {
	g, callAddr := buildCallerGraph(t)

	refs := map[uint64][]CallRef{
		0x1000: {{Source: callAddr, Target: 0x2000, Kind: "CALL"}},
	}
	funcGraphs := map[uint64]*ssa.Graph{0x1000: g}

	cg := Load([]uint64{0x1000, 0x2000}, refs, funcGraphs)
	edges := cg.EdgesFrom(FuncNode(0x1000))
	require.Len(t, edges, 1)
	assert.Equal(t, FuncNode(0x2000), edges[0].To)
	assert.NotEqual(t, ssa.InvalidValue, edges[0].Ctx.SiteNode)
}

func TestLoadDropsEdgeToUnknownNode(t *testing.T) {
	g, callAddr := buildCallerGraph(t)

	refs := map[uint64][]CallRef{
		0x1000: {{Source: callAddr, Target: 0x9999, Kind: "CALL"}},
	}
	cg := Load([]uint64{0x1000}, refs, map[uint64]*ssa.Graph{0x1000: g})
	assert.Empty(t, cg.EdgesFrom(FuncNode(0x1000)))
}

func TestBindCalleeResolvesArgs(t *testing.T) {
	ctx := CallContext{
		Args:     []ssa.ValueRef{1, 2},
		Resolved: []ssa.ValueRef{ssa.InvalidValue, ssa.InvalidValue},
	}
	ctx.BindCallee([]ssa.ValueRef{10, 20, 30})
	assert.Equal(t, []ssa.ValueRef{10, 20}, ctx.Resolved)
}
