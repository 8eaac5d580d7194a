package contextpack

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cortexlens/contextd/internal/chunk"
	"github.com/cortexlens/contextd/internal/corpus"
	"github.com/cortexlens/contextd/internal/symbolgraph"
)

func buildFixture(t *testing.T) (*corpus.Corpus, *symbolgraph.Graph) {
	t.Helper()
	c, err := corpus.Load(t.TempDir() + "/corpus.json")
	require.NoError(t, err)
	chunks := []chunk.Chunk{
		{ID: "svc.go:1:5", RelPath: "svc.go", StartLine: 1, EndLine: 5, Symbol: "Service", Kind: chunk.KindStruct, Content: "type Service struct {}"},
		{ID: "svc.go:7:12", RelPath: "svc.go", StartLine: 7, EndLine: 12, Symbol: "Run", Kind: chunk.KindMethod, ParentScope: "Service", Content: "func (s *Service) Run() { s.helper() }"},
		{ID: "svc.go:14:16", RelPath: "svc.go", StartLine: 14, EndLine: 16, Symbol: "helper", Kind: chunk.KindFunction, Content: "func helper() {}"},
	}
	c.SetFileChunks("svc.go", chunks)
	g := symbolgraph.Build(chunks)
	return c, g
}

func TestAssembleDirectHasNoRelated(t *testing.T) {
	_, g := buildFixture(t)
	items := Assemble([]Primary{{ChunkID: "svc.go:1:5", Score: 1}}, g, AssembleOptions{Strategy: StrategyDirect})
	require.Len(t, items, 1)
	require.Equal(t, RolePrimary, items[0].Role)
}

func TestAssembleExtendedAddsRelated(t *testing.T) {
	_, g := buildFixture(t)
	items := Assemble([]Primary{{ChunkID: "svc.go:1:5", Score: 1}}, g, AssembleOptions{
		Strategy: StrategyExtended, RelatedMode: RelatedExplore, MaxRelatedPerPrimary: 5, GlobalRelatedCap: 10,
	})
	require.Greater(t, len(items), 1)
	var sawRun bool
	for _, it := range items {
		if it.ChunkID == "svc.go:7:12" {
			sawRun = true
			require.Equal(t, RoleRelated, it.Role)
		}
	}
	require.True(t, sawRun)
}

func TestAssembleRespectsGlobalCap(t *testing.T) {
	_, g := buildFixture(t)
	items := Assemble([]Primary{{ChunkID: "svc.go:1:5", Score: 1}}, g, AssembleOptions{
		Strategy: StrategyDeep, RelatedMode: RelatedExplore, MaxRelatedPerPrimary: 5, GlobalRelatedCap: 1,
	})
	relatedCount := 0
	for _, it := range items {
		if it.Role == RoleRelated {
			relatedCount++
		}
	}
	require.Equal(t, 1, relatedCount)
}

func TestBuildPackUnbudgetedIncludesEverything(t *testing.T) {
	c, g := buildFixture(t)
	items := Assemble([]Primary{{ChunkID: "svc.go:1:5", Score: 1}}, g, AssembleOptions{
		Strategy: StrategyExtended, RelatedMode: RelatedExplore, MaxRelatedPerPrimary: 5, GlobalRelatedCap: 10,
	})
	pack := BuildPack(items, c, 0)
	require.False(t, pack.Budget.Truncated)
	require.Equal(t, len(items), len(pack.Items))
}

func TestBuildPackShrinksUnderBudget(t *testing.T) {
	c, g := buildFixture(t)
	items := Assemble([]Primary{{ChunkID: "svc.go:1:5", Score: 1}}, g, AssembleOptions{
		Strategy: StrategyExtended, RelatedMode: RelatedExplore, MaxRelatedPerPrimary: 5, GlobalRelatedCap: 10,
	})
	full := BuildPack(items, c, 0)
	tight := BuildPack(items, c, full.Budget.UsedChars/2)
	require.True(t, tight.Budget.Truncated)
	require.LessOrEqual(t, tight.Budget.UsedChars, full.Budget.UsedChars/2)
	require.Greater(t, tight.Budget.DroppedItems, 0)
}

func TestBuildPackUnshrinkableReturnsEmptyPack(t *testing.T) {
	c, g := buildFixture(t)
	items := Assemble([]Primary{{ChunkID: "svc.go:1:5", Score: 1}}, g, AssembleOptions{Strategy: StrategyDirect})
	pack := BuildPack(items, c, 1) // smaller than even the shrunk single item can reach
	require.True(t, pack.Budget.Truncated)
	require.Empty(t, pack.Items)
}

func TestBuildPackSkipsMissingChunks(t *testing.T) {
	c, g := buildFixture(t)
	items := Assemble([]Primary{{ChunkID: "does-not-exist"}}, g, AssembleOptions{Strategy: StrategyDirect})
	pack := BuildPack(items, c, 0)
	require.Empty(t, pack.Items)
}
