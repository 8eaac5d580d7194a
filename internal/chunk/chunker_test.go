package chunk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkGo_FunctionsAndMethods(t *testing.T) {
	src := []byte(`package sample

// Greet says hello.
func Greet(name string) string {
	return "hi " + name
}

type Server struct{}

func (s *Server) Start() error {
	return nil
}
`)
	opts := DefaultOptions()
	opts.MinChunkTokens = 0 // keep each small declaration as its own chunk
	c := New(opts)
	chunks, err := c.Chunk(src, "sample.go")
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	assert.Equal(t, KindFunction, chunks[0].Kind)
	assert.Equal(t, "Greet", chunks[0].Symbol)
	assert.Contains(t, chunks[0].Documentation, "Greet says hello")

	assert.Equal(t, KindStruct, chunks[1].Kind)

	assert.Equal(t, KindMethod, chunks[2].Kind)
	assert.Equal(t, "sample.Server.Start", chunks[2].QualifiedName)
}

func TestChunkPython_NestedClassMethod(t *testing.T) {
	src := []byte(`class Widget:
    def render(self):
        return 1
`)
	c := New(DefaultOptions())
	chunks, err := c.Chunk(src, "widget.py")
	require.NoError(t, err)

	var sawMethod bool
	for _, ch := range chunks {
		if ch.Kind == KindMethod && ch.Symbol == "render" {
			sawMethod = true
			assert.Equal(t, "Widget", ch.ParentScope)
		}
	}
	assert.True(t, sawMethod, "expected a Method chunk for nested Widget.render")
}

func TestChunkDoc_SplitsByHeader(t *testing.T) {
	src := []byte("# Title\n\nIntro text.\n\n## Section\n\nbody text that is long enough to stand on its own as a section\n")
	chunks := chunkDoc(src, "README.md", DefaultOptions())
	require.NotEmpty(t, chunks)
	for _, ch := range chunks {
		assert.Equal(t, KindDoc, ch.Kind)
	}
}

func TestChunkWindowed_Overlap(t *testing.T) {
	lines := make([]byte, 0)
	for i := 0; i < 300; i++ {
		lines = append(lines, []byte("line\n")...)
	}
	opts := Options{WindowLines: 100, WindowOverlap: 10, MaxFileBytes: 1 << 20}
	chunks := chunkWindowed(lines, "blob.unknownext", opts)
	require.NotEmpty(t, chunks)
	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Less(t, chunks[1].StartLine, chunks[0].EndLine+1)
}

func TestChunk_OversizeSkipped(t *testing.T) {
	c := New(Options{MaxFileBytes: 4})
	chunks, err := c.Chunk([]byte("more than four bytes"), "big.go")
	require.NoError(t, err)
	assert.Nil(t, chunks)
}

func TestMakeID(t *testing.T) {
	assert.Equal(t, "a/b.go:1:10", MakeID("a/b.go", 1, 10))
}
