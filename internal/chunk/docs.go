package chunk

import (
	"regexp"
	"strings"
)

var headerPattern = regexp.MustCompile(`^#{1,2}\s+`)
var codeFencePattern = regexp.MustCompile("^```")

// chunkDoc splits a markdown/rst/plaintext document into Kind=Doc chunks
// by top-level headers, the same algorithm the teacher's documentation
// chunker uses (internal/indexer/chunker.go ChunkDocument): split by
// headers, keep code fences intact, merge small sections.
func chunkDoc(src []byte, relPath string, opts Options) []Chunk {
	content := string(src)
	if strings.TrimSpace(content) == "" {
		return nil
	}
	lines := strings.Split(content, "\n")

	type section struct {
		start int
		lines []string
	}
	var sections []section
	cur := section{start: 1}
	inFence := false
	for i, line := range lines {
		if codeFencePattern.MatchString(strings.TrimSpace(line)) {
			inFence = !inFence
		}
		if !inFence && headerPattern.MatchString(line) && i > 0 {
			if len(cur.lines) > 0 {
				sections = append(sections, cur)
			}
			cur = section{start: i + 1}
		}
		cur.lines = append(cur.lines, line)
	}
	if len(cur.lines) > 0 {
		sections = append(sections, cur)
	}

	var chunks []Chunk
	for _, sec := range sections {
		text := strings.Join(sec.lines, "\n")
		if estimateTokens(text) < opts.MinChunkTokens && len(chunks) > 0 {
			// merge into previous chunk
			prev := &chunks[len(chunks)-1]
			prev.Content += "\n" + text
			prev.EndLine = sec.start + len(sec.lines) - 1
			prev.ID = MakeID(relPath, prev.StartLine, prev.EndLine)
			continue
		}
		end := sec.start + len(sec.lines) - 1
		chunks = append(chunks, Chunk{
			ID:        MakeID(relPath, sec.start, end),
			RelPath:   relPath,
			StartLine: sec.start,
			EndLine:   end,
			Content:   strings.TrimSpace(text),
			Kind:      KindDoc,
			Symbol:    firstHeading(sec.lines),
		})
	}
	return chunks
}

func firstHeading(lines []string) string {
	for _, l := range lines {
		if headerPattern.MatchString(l) {
			return strings.TrimSpace(headerPattern.ReplaceAllString(l, ""))
		}
	}
	return ""
}

func estimateTokens(s string) int {
	return len(strings.Fields(s))
}

// chunkConfig treats a configuration file (yaml/json/toml/ini/env) as a
// single Kind=Config chunk unless it exceeds the windowing threshold, in
// which case it falls back to chunkWindowed.
func chunkConfig(src []byte, relPath string, opts Options) []Chunk {
	lines := strings.Split(string(src), "\n")
	if len(lines) <= opts.WindowLines {
		return []Chunk{{
			ID:        MakeID(relPath, 1, len(lines)),
			RelPath:   relPath,
			StartLine: 1,
			EndLine:   len(lines),
			Content:   string(src),
			Kind:      KindConfig,
		}}
	}
	chunks := chunkWindowed(src, relPath, opts)
	for i := range chunks {
		chunks[i].Kind = KindConfig
	}
	return chunks
}

// chunkWindowed is the fallback for unsupported languages (spec.md
// §4.1): fixed-size line windows with overlap. Parse failures on a
// supported language use the whole-file fallback instead.
func chunkWindowed(src []byte, relPath string, opts Options) []Chunk {
	lines := strings.Split(string(src), "\n")
	if len(lines) == 0 {
		return nil
	}
	windowLines := opts.WindowLines
	if windowLines <= 0 {
		windowLines = 120
	}
	overlap := opts.WindowOverlap
	if overlap < 0 || overlap >= windowLines {
		overlap = 0
	}

	var chunks []Chunk
	start := 1
	for start <= len(lines) {
		end := start + windowLines - 1
		if end > len(lines) {
			end = len(lines)
		}
		chunks = append(chunks, Chunk{
			ID:        MakeID(relPath, start, end),
			RelPath:   relPath,
			StartLine: start,
			EndLine:   end,
			Content:   strings.Join(lines[start-1:end], "\n"),
			Kind:      KindBlock,
		})
		if end == len(lines) {
			break
		}
		start = end - overlap + 1
	}
	return chunks
}
