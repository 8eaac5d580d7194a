package mcptools

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/cortexlens/contextd/internal/corpus"
)

// fileSliceResult is the file_slice/cat tool's structured output
// (spec.md §6.3 "slice + sha256 + mtime").
type fileSliceResult struct {
	File      string `json:"file"`
	StartLine int    `json:"start_line"`
	Content   string `json:"content"`
	SHA256    string `json:"sha256"`
	MTime     int64  `json:"mtime"`
	Truncated bool   `json:"truncated"`
	Cursor    string `json:"cursor,omitempty"`
}

func isForbiddenPath(rel string) bool {
	base := strings.ToLower(filepath.Base(rel))
	return strings.Contains(base, "secret") || strings.Contains(base, ".env") || strings.HasSuffix(base, ".pem") || strings.HasSuffix(base, ".key")
}

const defaultMaxLines = 400

// AddFileSliceTool registers the file_slice tool (aliased as `cat`):
// a line-bounded read of one file, with a mandatory secret-path check
// and sha256/mtime on the returned bytes (spec.md §6.3, §8).
func AddFileSliceTool(s *server.MCPServer, root string) {
	desc := mcp.WithDescription("Read a slice of a file starting at a line, returning its content alongside a sha256 of the returned bytes and the file's mtime.")
	common := []mcp.ToolOption{
		desc,
		mcp.WithString("file", mcp.Required(), mcp.Description("project-relative file path")),
		mcp.WithNumber("start_line", mcp.Description("1-based starting line (alias line_start, default 1)")),
		mcp.WithNumber("line_start", mcp.Description("alias for start_line")),
		mcp.WithNumber("max_lines", mcp.Description("maximum lines to return (default 400)")),
		mcp.WithString("cursor", mcp.Description("continuation token from a truncated slice")),
		mcp.WithBoolean("allow_secrets", mcp.Description("permit reading files that look like secrets")),
		mcp.WithReadOnlyHintAnnotation(true),
	}
	fileSlice := mcp.NewTool("file_slice", common...)
	s.AddTool(fileSlice, createFileSliceHandler(root))

	catOpts := append([]mcp.ToolOption{mcp.WithDescription("Alias for file_slice.")}, common[1:]...)
	cat := mcp.NewTool("cat", catOpts...)
	s.AddTool(cat, createFileSliceHandler(root))
}

func createFileSliceHandler(root string) handlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := toolArgs(req)
		rel := argString(args, "file")
		if rel == "" {
			return mcp.NewToolResultError("file parameter is required"), nil
		}
		allowSecrets, _ := argBool(args, "allow_secrets")
		if isForbiddenPath(rel) && !allowSecrets {
			return mcp.NewToolResultError("forbidden_file: " + rel + " requires allow_secrets"), nil
		}

		startLine := 1
		if n, ok := argInt(args, "start_line"); ok {
			startLine = n
		} else if n, ok := argInt(args, "line_start"); ok {
			startLine = n
		}
		var cursorState struct{ Line int `json:"line"` }
		if cur := argString(args, "cursor"); cur != "" {
			raw, err := decodeCursor(cur)
			if err == nil {
				_ = json.Unmarshal(raw, &cursorState)
				startLine = cursorState.Line
			}
		}
		maxLines := defaultMaxLines
		if n, ok := argInt(args, "max_lines"); ok && n > 0 {
			maxLines = n
		}

		abs := filepath.Join(root, rel)
		data, err := os.ReadFile(abs)
		if err != nil {
			return mcp.NewToolResultError("not_found: " + rel), nil
		}
		info, statErr := os.Stat(abs)
		var mtime int64
		if statErr == nil {
			mtime = info.ModTime().Unix()
		}

		lines := strings.Split(string(data), "\n")
		if startLine < 1 {
			startLine = 1
		}
		if startLine > len(lines) {
			startLine = len(lines) + 1
		}
		end := startLine - 1 + maxLines
		truncated := end < len(lines)
		if end > len(lines) {
			end = len(lines)
		}
		slice := strings.Join(lines[startLine-1:end], "\n")
		sum := sha256.Sum256([]byte(slice))

		result := fileSliceResult{
			File: rel, StartLine: startLine, Content: slice,
			SHA256: hex.EncodeToString(sum[:]), MTime: mtime, Truncated: truncated,
		}
		if truncated {
			tok, err := encodeCursor(map[string]int{"line": end + 1})
			if err == nil {
				result.Cursor = tok
			}
		}
		return textResult(result)
	}
}

// grepHunk is one grep_context match with surrounding lines.
type grepHunk struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	Content string `json:"content"`
}

type grepContextResult struct {
	Hunks     []grepHunk `json:"hunks"`
	Truncated bool       `json:"truncated"`
	Cursor    string     `json:"cursor,omitempty"`
}

// AddGrepContextTool registers the grep_context tool: a regex scan over
// one file or a glob of files with before/after line context, bounded
// and resumable by (file, line) (spec.md §6.3).
func AddGrepContextTool(s *server.MCPServer, root string, c *corpus.Corpus) {
	tool := mcp.NewTool("grep_context",
		mcp.WithDescription("Scan files for a regex pattern, returning matches with surrounding line context."),
		mcp.WithString("pattern", mcp.Required(), mcp.Description("regular expression to match against lines")),
		mcp.WithString("file", mcp.Description("a single project-relative file to scan")),
		mcp.WithString("file_pattern", mcp.Description("glob restricting which corpus files are scanned")),
		mcp.WithNumber("before", mcp.Description("lines of context before a match")),
		mcp.WithNumber("after", mcp.Description("lines of context after a match")),
		mcp.WithNumber("max_matches", mcp.Description("maximum number of matches (default 50)")),
		mcp.WithNumber("max_hunks", mcp.Description("maximum number of hunks (default 20)")),
		mcp.WithString("cursor", mcp.Description("continuation token from a prior response")),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	s.AddTool(tool, createGrepContextHandler(root, c))
}

type grepCursorState struct {
	File string `json:"file"`
	Line int    `json:"line"`
}

func createGrepContextHandler(root string, c *corpus.Corpus) handlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := toolArgs(req)
		pattern := argString(args, "pattern")
		if pattern == "" {
			return mcp.NewToolResultError("pattern parameter is required"), nil
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return mcp.NewToolResultError("invalid_request: " + err.Error()), nil
		}

		files, err := selectFiles(c, argString(args, "file"), argString(args, "file_pattern"))
		if err != nil {
			return mcp.NewToolResultError("invalid_request: " + err.Error()), nil
		}

		before, _ := argInt(args, "before")
		after, _ := argInt(args, "after")
		maxMatches := 50
		if n, ok := argInt(args, "max_matches"); ok && n > 0 {
			maxMatches = n
		}
		maxHunks := 20
		if n, ok := argInt(args, "max_hunks"); ok && n > 0 {
			maxHunks = n
		}

		var state grepCursorState
		if cur := argString(args, "cursor"); cur != "" {
			raw, derr := decodeCursor(cur)
			if derr == nil {
				_ = json.Unmarshal(raw, &state)
			}
		}

		var hunks []grepHunk
		matches, hunkCount := 0, 0
		resuming := state.File != ""
		var nextCursor string

		for _, rel := range files {
			if resuming && rel != state.File {
				continue
			}
			lines, err := readFileLines(filepath.Join(root, rel))
			if err != nil {
				continue
			}
			startAt := 0
			if resuming && rel == state.File {
				startAt = state.Line
				resuming = false
			}
			for i := startAt; i < len(lines); i++ {
				if matches >= maxMatches || hunkCount >= maxHunks {
					if tok, err := encodeCursor(grepCursorState{File: rel, Line: i}); err == nil {
						nextCursor = tok
					}
					break
				}
				if !re.MatchString(lines[i]) {
					continue
				}
				matches++
				hunkCount++
				lo := i - before
				if lo < 0 {
					lo = 0
				}
				hi := i + after
				if hi > len(lines)-1 {
					hi = len(lines) - 1
				}
				hunks = append(hunks, grepHunk{File: rel, Line: i + 1, Content: strings.Join(lines[lo:hi+1], "\n")})
			}
			if nextCursor != "" {
				break
			}
		}
		return textResult(grepContextResult{Hunks: hunks, Truncated: nextCursor != "", Cursor: nextCursor})
	}
}

// textMatch is one text_search hit.
type textMatch struct {
	File string `json:"file"`
	Line int    `json:"line"`
	Text string `json:"text"`
}

type textSearchResult struct {
	Matches   []textMatch `json:"matches"`
	Truncated bool        `json:"truncated"`
	Cursor    string      `json:"cursor,omitempty"`
}

// AddTextSearchTool registers the text_search tool: a plain or
// whole-word, case-(in)sensitive literal scan over the corpus, distinct
// from grep_context's regex+hunk shape (spec.md §6.3).
func AddTextSearchTool(s *server.MCPServer, root string, c *corpus.Corpus) {
	tool := mcp.NewTool("text_search",
		mcp.WithDescription("Search indexed files for a literal pattern, with optional case sensitivity and whole-word matching."),
		mcp.WithString("pattern", mcp.Required(), mcp.Description("literal text to search for")),
		mcp.WithString("file_pattern", mcp.Description("glob restricting which corpus files are searched")),
		mcp.WithNumber("max_results", mcp.Description("maximum number of matches (default 50)")),
		mcp.WithBoolean("case_sensitive", mcp.Description("match case exactly (default false)")),
		mcp.WithBoolean("whole_word", mcp.Description("require word boundaries around the match")),
		mcp.WithString("cursor", mcp.Description("continuation token from a prior response")),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	s.AddTool(tool, createTextSearchHandler(root, c))
}

func createTextSearchHandler(root string, c *corpus.Corpus) handlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := toolArgs(req)
		pattern := argString(args, "pattern")
		if pattern == "" {
			return mcp.NewToolResultError("pattern parameter is required"), nil
		}
		caseSensitive, _ := argBool(args, "case_sensitive")
		wholeWord, _ := argBool(args, "whole_word")
		needle := pattern
		if !caseSensitive {
			needle = strings.ToLower(needle)
		}
		var wordRe *regexp.Regexp
		if wholeWord {
			wordRe = regexp.MustCompile(`\b` + regexp.QuoteMeta(pattern) + `\b`)
		}

		files, err := selectFiles(c, "", argString(args, "file_pattern"))
		if err != nil {
			return mcp.NewToolResultError("invalid_request: " + err.Error()), nil
		}

		maxResults := 50
		if n, ok := argInt(args, "max_results"); ok && n > 0 {
			maxResults = n
		}

		var state grepCursorState
		if cur := argString(args, "cursor"); cur != "" {
			raw, derr := decodeCursor(cur)
			if derr == nil {
				_ = json.Unmarshal(raw, &state)
			}
		}

		var matches []textMatch
		resuming := state.File != ""
		var nextCursor string

		for _, rel := range files {
			if resuming && rel != state.File {
				continue
			}
			lines, err := readFileLines(filepath.Join(root, rel))
			if err != nil {
				continue
			}
			startAt := 0
			if resuming && rel == state.File {
				startAt = state.Line
				resuming = false
			}
			for i := startAt; i < len(lines); i++ {
				if len(matches) >= maxResults {
					if tok, err := encodeCursor(grepCursorState{File: rel, Line: i}); err == nil {
						nextCursor = tok
					}
					break
				}
				hay := lines[i]
				ok := false
				switch {
				case wholeWord:
					ok = wordRe.MatchString(hay)
				case caseSensitive:
					ok = strings.Contains(hay, pattern)
				default:
					ok = strings.Contains(strings.ToLower(hay), needle)
				}
				if !ok {
					continue
				}
				matches = append(matches, textMatch{File: rel, Line: i + 1, Text: hay})
			}
			if nextCursor != "" {
				break
			}
		}
		return textResult(textSearchResult{Matches: matches, Truncated: nextCursor != "", Cursor: nextCursor})
	}
}

// mapEntry is one directory entry in the `map` tool's response.
type mapEntry struct {
	Dir    string `json:"dir"`
	Files  int    `json:"files"`
	Chunks int    `json:"chunks"`
}

// AddMapTool registers the map tool: a directory-level rollup of file
// and chunk counts from the indexed corpus (spec.md §6.3).
func AddMapTool(s *server.MCPServer, c *corpus.Corpus) {
	tool := mcp.NewTool("map",
		mcp.WithDescription("Summarize the indexed project as directory entries with file and chunk counts."),
		mcp.WithNumber("depth", mcp.Description("directory nesting depth to roll up to (default: full path)")),
		mcp.WithNumber("limit", mcp.Description("maximum number of directory entries (default 200)")),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	s.AddTool(tool, createMapHandler(c))
}

func createMapHandler(c *corpus.Corpus) handlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := toolArgs(req)
		depth, hasDepth := argInt(args, "depth")
		limit := 200
		if n, ok := argInt(args, "limit"); ok && n > 0 {
			limit = n
		}

		counts := make(map[string]*mapEntry)
		for _, rel := range c.Files() {
			dir := filepath.Dir(rel)
			if dir == "." {
				dir = ""
			}
			if hasDepth && depth >= 0 {
				parts := strings.Split(dir, string(filepath.Separator))
				if len(parts) > depth {
					dir = filepath.Join(parts[:depth]...)
				}
			}
			e, ok := counts[dir]
			if !ok {
				e = &mapEntry{Dir: dir}
				counts[dir] = e
			}
			e.Files++
			e.Chunks += len(c.FileChunks(rel))
		}

		entries := make([]mapEntry, 0, len(counts))
		for _, e := range counts {
			entries = append(entries, *e)
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Dir < entries[j].Dir })
		if len(entries) > limit {
			entries = entries[:limit]
		}
		return textResult(entries)
	}
}

// listFilesResult is one page of the list_files tool's output.
type listFilesResult struct {
	Files     []string `json:"files"`
	Total     int      `json:"total"`
	Truncated bool     `json:"truncated"`
	Cursor    string   `json:"cursor,omitempty"`
}

type listFilesCursorState struct {
	Offset   int `json:"offset"`
	Limit    int `json:"limit"`
	MaxChars int `json:"max_chars"`
}

// AddListFilesTool registers the list_files tool: a cursor-paginated
// walk over the corpus's tracked files in one stable sorted order. A
// continuation call may carry the cursor alone; the page size and
// character budget from the first call are preserved in the token.
func AddListFilesTool(s *server.MCPServer, c *corpus.Corpus) {
	tool := mcp.NewTool("list_files",
		mcp.WithDescription("List the indexed project's tracked files, paginated by a continuation cursor."),
		mcp.WithNumber("limit", mcp.Description("maximum files per page (default 100)")),
		mcp.WithNumber("max_chars", mcp.Description("character budget for the listed paths")),
		mcp.WithString("cursor", mcp.Description("continuation token from a prior page")),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	s.AddTool(tool, createListFilesHandler(c))
}

func createListFilesHandler(c *corpus.Corpus) handlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := toolArgs(req)

		state := listFilesCursorState{Limit: 100}
		if cur := argString(args, "cursor"); cur != "" {
			raw, err := decodeCursor(cur)
			if err != nil || json.Unmarshal(raw, &state) != nil {
				return mcp.NewToolResultError("invalid_cursor: " + cur), nil
			}
		}
		if n, ok := argInt(args, "limit"); ok && n > 0 {
			state.Limit = n
		}
		if n, ok := argInt(args, "max_chars"); ok && n > 0 {
			state.MaxChars = n
		}

		all := c.Files()
		sort.Strings(all)
		if state.Offset > len(all) {
			state.Offset = len(all)
		}

		var page []string
		used := 0
		i := state.Offset
		for ; i < len(all) && len(page) < state.Limit; i++ {
			if state.MaxChars > 0 && used+len(all[i]) > state.MaxChars && len(page) > 0 {
				break
			}
			page = append(page, all[i])
			used += len(all[i])
		}

		result := listFilesResult{Files: page, Total: len(all), Truncated: i < len(all)}
		if result.Truncated {
			next := state
			next.Offset = i
			if tok, err := encodeCursor(next); err == nil {
				result.Cursor = tok
			}
		}
		return textResult(result)
	}
}

func readFileLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return strings.Split(string(data), "\n"), nil
}

// selectFiles resolves the file/file_pattern arguments shared by
// grep_context and text_search against the corpus's tracked file list.
func selectFiles(c *corpus.Corpus, file, pattern string) ([]string, error) {
	if file != "" {
		return []string{file}, nil
	}
	all := c.Files()
	sort.Strings(all)
	if pattern == "" {
		return all, nil
	}
	var out []string
	for _, f := range all {
		ok, err := filepath.Match(pattern, f)
		if err != nil {
			return nil, err
		}
		if ok || strings.Contains(f, pattern) {
			out = append(out, f)
		}
	}
	return out, nil
}
