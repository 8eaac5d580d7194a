// Package readpack implements C11, the single read-pack entry point
// that dispatches a request to one of six intents and renders the
// result through C12 (spec.md §4.11).
package readpack

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cortexlens/contextd/internal/apperr"
	"github.com/cortexlens/contextd/internal/contextpack"
	"github.com/cortexlens/contextd/internal/corpus"
	"github.com/cortexlens/contextd/internal/cursorstore"
	"github.com/cortexlens/contextd/internal/embed"
	"github.com/cortexlens/contextd/internal/freshness"
	"github.com/cortexlens/contextd/internal/hybrid"
	"github.com/cortexlens/contextd/internal/indexpipeline"
	"github.com/cortexlens/contextd/internal/project"
	"github.com/cortexlens/contextd/internal/render"
	"github.com/cortexlens/contextd/internal/symbolgraph"
	"github.com/cortexlens/contextd/internal/vectorindex"
)

// Intent names one of the six read-pack behaviors (spec.md §4.11).
type Intent string

const (
	IntentAuto       Intent = "auto"
	IntentFile       Intent = "file"
	IntentGrep       Intent = "grep"
	IntentQuery      Intent = "query"
	IntentOnboarding Intent = "onboarding"
	IntentMemory     Intent = "memory"
	IntentRecall     Intent = "recall"
)

// ResponseMode controls diagnostic verbosity (spec.md §4.11).
type ResponseMode string

const (
	ModeFull    ResponseMode = "full"
	ModeFacts   ResponseMode = "facts"
	ModeMinimal ResponseMode = "minimal"
)

// minReserve/maxReserve/reserveDivisor bound the envelope allowance
// split out of max_chars (spec.md §4.11 "reserve is ... clamp(max_chars/10, 64, 800)").
const (
	minReserve     = 64
	maxReserve     = 800
	reserveDivisor = 10
)

// anchorDocNames are candidate onboarding/memory docs, in priority order
// (spec.md §4.11 "README/AGENTS/QUICK_START/etc.").
var anchorDocNames = []string{"README.md", "AGENTS.md", "QUICK_START.md", "CONTRIBUTING.md", "ARCHITECTURE.md"}

// anchorPolicyEnabled reports whether Memory/Onboarding should emit
// anchor-doc slices at all. CONTEXT_ANCHOR_POLICY=off disables anchors
// process-wide; any other value (including unset, "auto") keeps the
// default behavior (spec.md §6.4).
func anchorPolicyEnabled() bool {
	return os.Getenv("CONTEXT_ANCHOR_POLICY") != "off"
}

// Request is the read_pack tool's unified input (spec.md §4.11).
type Request struct {
	Path         string
	Intent       Intent
	File         string
	Pattern      string
	Query        string
	Ask          string
	Questions    []string
	IncludePaths []string
	ExcludePaths []string
	FilePattern  string
	Cursor       string
	MaxChars     int
	ResponseMode ResponseMode
	AllowSecrets bool
	Before       int
	After        int
	StartLine    int
	MaxLines     int
	TimeoutMS    int
	PreferCode   bool
	IncludeDocs  *bool
	Strategy     contextpack.Strategy
	RelatedMode  contextpack.RelatedMode

	// StalePolicy controls what to do when the index is stale before a
	// semantic read (spec.md §4.7). Empty selects the default: auto only
	// when no shared backend can do the work out of band.
	StalePolicy       freshness.Policy
	AutoIndexBudgetMS int
}

// Response is a composed read-pack result (spec.md §4.11).
type Response struct {
	Text        string
	Pack        *contextpack.Pack
	NextCursor  string
	NextActions []contextpack.NextAction
	Truncated   bool
	RootFingerprint string

	// IndexState/Reindex carry the freshness meta for semantic reads
	// (spec.md §4.7 "freshness meta", §8 scenario 1).
	IndexState *freshness.State
	Reindex    *freshness.ReindexResult
}

// cursorState is what gets serialized into a continuation cursor,
// covering the resume points spec.md §4.11 names.
type cursorState struct {
	QuestionIndex int    `json:"question_index,omitempty"`
	FileOffset    int    `json:"file_offset,omitempty"`
	GrepFile      string `json:"grep_file,omitempty"`
	GrepLine      int    `json:"grep_line,omitempty"`
	CandidateIdx  int    `json:"candidate_idx,omitempty"`
}

// Engine bundles the per-project collaborators the orchestrator reads
// from (spec.md §5 "per-project engine handle").
type Engine struct {
	Root     *project.Root
	Corpus   *corpus.Corpus
	Graph    *symbolgraph.Graph
	Registry *embed.Registry
	Indexes  map[string]vectorindex.Index
	Cursors  *cursorstore.Store

	// Pipeline, when set, lets semantic reads honor the stale policy by
	// running a bounded inline reindex (spec.md §4.7 "auto").
	Pipeline *indexpipeline.Pipeline
}

// Run dispatches req to its resolved intent and renders the result
// (spec.md §4.11).
func (e *Engine) Run(ctx context.Context, req Request) (Response, error) {
	maxChars := req.MaxChars
	if maxChars <= 0 {
		maxChars = 8000
	}
	reserve := clamp(maxChars/reserveDivisor, minReserve, maxReserve)
	innerMax := maxChars - reserve
	if innerMax < 0 {
		innerMax = 0
	}

	var state cursorState
	if req.Cursor != "" {
		ok, err := e.Cursors.Get(req.Cursor, "read_pack", string(req.ResponseMode), e.Root.Fingerprint, &state)
		if err != nil {
			return Response{}, apperr.Wrap(apperr.CodeInternal, err, "cursor lookup failed")
		}
		if !ok {
			return Response{}, apperr.New(apperr.CodeInvalidCursor, "cursor is invalid, expired, or bound to a different project/tool/mode").
				WithRoot(e.Root.Fingerprint)
		}
	}

	intent := req.Intent
	if intent == "" || intent == IntentAuto {
		intent = resolveIntent(req)
	}

	// Freshness is consulted before any index read (spec.md §2, §4.7).
	var indexState *freshness.State
	var reindex *freshness.ReindexResult
	var staleNotes []string
	if intent == IntentQuery || intent == IntentRecall {
		indexState, reindex, staleNotes = e.applyStalePolicy(ctx, req)
	}

	var env render.Envelope
	var pack *contextpack.Pack
	var nextState *cursorState
	var notes []string
	var nextActions []contextpack.NextAction

	switch intent {
	case IntentFile:
		env, nextState, notes = e.runFile(req, state, innerMax)
	case IntentGrep:
		env, nextState, notes = e.runGrep(req, state, innerMax)
	case IntentQuery:
		env, pack, nextActions, notes = e.runQuery(ctx, req, innerMax)
	case IntentMemory:
		env, nextState, notes = e.runMemory(req, state, innerMax)
	case IntentOnboarding:
		env, notes = e.runOnboarding(req, innerMax)
	case IntentRecall:
		env, nextState, notes = e.runRecall(ctx, req, state, innerMax)
	default:
		return Response{}, apperr.New(apperr.CodeInvalidRequest, "unresolved intent")
	}

	if req.ResponseMode == ModeFacts {
		nextActions = nil
	}
	if req.ResponseMode != ModeMinimal {
		env.Notes = append(env.Notes, staleNotes...)
		env.Notes = append(env.Notes, notes...)
	}

	var cursorToken string
	if nextState != nil {
		tok, err := e.Cursors.Put("read_pack", string(req.ResponseMode), e.Root.Path, e.Root.Fingerprint, *nextState)
		if err != nil {
			return Response{}, apperr.Wrap(apperr.CodeInternal, err, "failed to mint continuation cursor")
		}
		cursorToken = tok
		env.Cursor = tok
	}

	res := render.Render(env, maxChars)
	if res.Truncated && len(nextActions) == 0 {
		nextActions = append(nextActions, contextpack.NextAction{
			Tool:   "read_pack",
			Args:   map[string]any{"max_chars": maxChars * 2},
			Reason: "response was truncated; retry with a larger budget",
		})
	}

	return Response{
		Text: res.Text, Pack: pack, NextCursor: cursorToken,
		NextActions: nextActions, Truncated: res.Truncated,
		RootFingerprint: e.Root.Fingerprint,
		IndexState:      indexState, Reindex: reindex,
	}, nil
}

// defaultAutoIndexBudgetMS bounds an inline auto reindex when the
// request doesn't supply its own budget (spec.md §4.7, §5).
const defaultAutoIndexBudgetMS = 15000

// applyStalePolicy resolves and applies the request's staleness policy
// before a semantic read (spec.md §4.7). With no explicit policy, an
// inline reindex is allowed only when the process has no shared backend
// to delegate to (CONTEXT_DISABLE_DAEMON=1 or stub embeddings).
func (e *Engine) applyStalePolicy(ctx context.Context, req Request) (*freshness.State, *freshness.ReindexResult, []string) {
	if e.Pipeline == nil {
		return nil, nil, nil
	}
	st, err := e.Pipeline.FreshnessState()
	if err != nil {
		return nil, nil, nil
	}

	policy := req.StalePolicy
	if policy == "" {
		if os.Getenv("CONTEXT_DISABLE_DAEMON") == "1" || os.Getenv("CONTEXT_EMBEDDING_MODE") == "stub" {
			policy = freshness.PolicyAuto
		} else {
			policy = freshness.PolicyWarn
		}
	}
	if !st.Stale || policy == freshness.PolicyOff {
		return &st, nil, nil
	}
	if policy == freshness.PolicyWarn {
		return &st, nil, []string{"index stale (" + reasonList(st.StaleReasons) + "); pass stale_policy=auto to refresh"}
	}

	budget := req.AutoIndexBudgetMS
	if budget <= 0 {
		budget = defaultAutoIndexBudgetMS
	}
	budget = clamp(budget, 100, 120000)

	res := &freshness.ReindexResult{Attempted: true}
	ictx, cancel := context.WithTimeout(ctx, time.Duration(budget)*time.Millisecond)
	defer cancel()
	if _, ierr := e.Pipeline.Index(ictx); ierr == nil {
		res.Performed = true
		e.Graph = e.Pipeline.Graph
	}
	if fresh, ferr := e.Pipeline.FreshnessState(); ferr == nil {
		st = fresh
	}
	return &st, res, nil
}

func reasonList(reasons []freshness.Reason) string {
	parts := make([]string, len(reasons))
	for i, r := range reasons {
		parts[i] = string(r)
	}
	return strings.Join(parts, ",")
}

// resolveIntent picks a single intent from populated fields (spec.md
// §4.11 "Intent resolution (auto)").
func resolveIntent(req Request) Intent {
	switch {
	case req.File != "":
		return IntentFile
	case req.Pattern != "":
		return IntentGrep
	case len(req.Questions) > 0 || req.Ask != "":
		return IntentRecall
	case req.Query != "":
		return IntentQuery
	default:
		return IntentOnboarding
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// runFile implements the File intent: a single slice with a mandatory
// secret-path check and byte-offset cursor pagination (spec.md §4.11).
func (e *Engine) runFile(req Request, state cursorState, innerMax int) (render.Envelope, *cursorState, []string) {
	rel := req.File
	abs := filepath.Join(e.Root.Path, rel)
	if isForbiddenPath(rel) && !req.AllowSecrets {
		return render.Envelope{Answer: "file access denied"},
			nil, []string{"forbidden_file: " + rel + " requires allow_secrets"}
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return render.Envelope{Answer: "file not found: " + rel}, nil, nil
	}
	content := string(data)
	offset := state.FileOffset
	if offset > len(content) {
		offset = len(content)
	}
	slice := content[offset:]

	var next *cursorState
	block := slice
	if len(block) > innerMax && innerMax > 0 {
		block = block[:innerMax]
		next = &cursorState{FileOffset: offset + len(block)}
	}

	sum := sha256.Sum256([]byte(block))
	notes := []string{"sha256=" + hex.EncodeToString(sum[:])}
	if info, err := os.Stat(abs); err == nil {
		notes = append(notes, "mtime="+strconv.FormatInt(info.ModTime().Unix(), 10))
	}

	return render.Envelope{
		Answer: rel,
		Refs:   []render.Ref{{File: rel, Line: 1, Block: block}},
	}, next, notes
}

func isForbiddenPath(rel string) bool {
	base := strings.ToLower(filepath.Base(rel))
	return strings.Contains(base, "secret") || strings.Contains(base, ".env") || strings.HasSuffix(base, ".pem") || strings.HasSuffix(base, ".key")
}

// runGrep implements the Grep intent: regex matches with before/after
// context, bounded by matches/hunks/chars, resumable by (file, line)
// (spec.md §4.11).
func (e *Engine) runGrep(req Request, state cursorState, innerMax int) (render.Envelope, *cursorState, []string) {
	re, err := regexp.Compile(req.Pattern)
	if err != nil {
		return render.Envelope{Answer: "invalid pattern"}, nil, []string{"invalid_request: " + err.Error()}
	}

	files := e.Corpus.Files()
	if req.File != "" {
		files = []string{req.File}
	}
	sort.Strings(files)

	const maxMatches = 50
	const maxHunks = 20
	matches := 0
	hunks := 0
	resuming := state.GrepFile != ""
	var refs []render.Ref

	for _, rel := range files {
		if resuming && rel != state.GrepFile {
			continue
		}
		abs := filepath.Join(e.Root.Path, rel)
		f, err := os.Open(abs)
		if err != nil {
			continue
		}
		lines := readLines(f)
		f.Close()

		startAt := 0
		if resuming && rel == state.GrepFile {
			startAt = state.GrepLine
			resuming = false
		}
		for i := startAt; i < len(lines); i++ {
			if matches >= maxMatches || hunks >= maxHunks {
				return render.Envelope{Answer: "grep matches", Refs: refs},
					&cursorState{GrepFile: rel, GrepLine: i}, nil
			}
			if !re.MatchString(lines[i]) {
				continue
			}
			matches++
			hunks++
			lo := max(0, i-req.Before)
			hi := min(len(lines)-1, i+req.After)
			block := strings.Join(lines[lo:hi+1], "\n")
			refs = append(refs, render.Ref{File: rel, Line: i + 1, Block: block})
		}
	}
	return render.Envelope{Answer: "grep matches", Refs: refs}, nil, nil
}

func readLines(f *os.File) []string {
	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 1<<20), 1<<20)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines
}

// runQuery implements the Query intent: hybrid search + context
// assembly/packing (spec.md §4.11).
func (e *Engine) runQuery(ctx context.Context, req Request, innerMax int) (render.Envelope, *contextpack.Pack, []contextpack.NextAction, []string) {
	searcher, err := hybrid.New(e.Corpus, e.Registry, e.Indexes)
	if err != nil {
		return render.Envelope{Answer: "search unavailable"}, nil, nil, []string{"internal: " + err.Error()}
	}
	defer searcher.Close()

	includeDocs := req.IncludeDocs
	results, meta, err := searcher.Search(ctx, req.Query, hybrid.Options{
		Limit: 10, AllowSemantic: true,
		Filters: hybrid.Filters{
			IncludePaths: req.IncludePaths, ExcludePaths: req.ExcludePaths,
			FilePattern: req.FilePattern, PreferCode: req.PreferCode, IncludeDocs: includeDocs,
		},
	})
	if err != nil {
		return render.Envelope{Answer: "search failed"}, nil, nil, []string{string(apperr.CodeOf(err)) + ": " + err.Error()}
	}

	primaries := make([]contextpack.Primary, len(results))
	for i, r := range results {
		primaries[i] = contextpack.Primary{ChunkID: r.ChunkID, Score: r.Score}
	}
	strategy := req.Strategy
	if strategy == "" {
		strategy = contextpack.StrategyExtended
	}
	items := contextpack.Assemble(primaries, e.Graph, contextpack.AssembleOptions{
		Strategy: strategy, RelatedMode: req.RelatedMode,
		MaxRelatedPerPrimary: 5, GlobalRelatedCap: 25,
		QueryTokens: strings.Fields(req.Query),
	})
	pack := contextpack.BuildPack(items, e.Corpus, innerMax)

	var notes []string
	if meta.DegradationReason != "" {
		notes = append(notes, "degraded: "+meta.DegradationReason)
	}

	env := render.Envelope{Answer: "query results for: " + req.Query}
	limit := 5
	if req.ResponseMode == ModeFull {
		limit = len(pack.Items)
	}
	for i, it := range pack.Items {
		if i >= limit {
			break
		}
		env.Refs = append(env.Refs, render.Ref{File: it.File, Line: it.StartLine, Label: it.Symbol, Block: it.Content})
	}

	var nextActions []contextpack.NextAction
	if pack.Budget.Truncated {
		nextActions = append(nextActions, contextpack.NextAction{
			Tool: "context_pack", Args: map[string]any{"query": req.Query, "max_chars": innerMax * 2},
			Reason: "pack was shrunk to fit budget",
		})
	}
	return env, &pack, nextActions, notes
}

// runMemory implements the Memory intent: project facts plus anchor-doc
// slices in priority order, with cursor-resumable candidate index
// (spec.md §4.11).
func (e *Engine) runMemory(req Request, state cursorState, innerMax int) (render.Envelope, *cursorState, []string) {
	env := render.Envelope{Answer: "project memory"}
	facts := projectFacts(e.Root.Path)
	env.Notes = append(env.Notes, facts...)

	if !anchorPolicyEnabled() {
		return env, nil, nil
	}

	idx := state.CandidateIdx
	for ; idx < len(anchorDocNames); idx++ {
		name := anchorDocNames[idx]
		data, err := os.ReadFile(filepath.Join(e.Root.Path, name))
		if err != nil {
			continue
		}
		content := string(data)
		if len(content) > innerMax && innerMax > 0 {
			content = content[:innerMax]
		}
		env.Refs = append(env.Refs, render.Ref{File: name, Line: 1, Label: "anchor", Block: content})
		return env, &cursorState{CandidateIdx: idx + 1}, nil
	}

	// Anchors exhausted: close with one entrypoint snippet if it fits.
	if rel := entrypointFile(e.Corpus); rel != "" {
		if ref, ok := firstChunkRef(e.Corpus, rel); ok {
			if innerMax > 0 && len(ref.Block) > innerMax {
				ref.Block = ref.Block[:innerMax]
			}
			ref.Label = "entrypoint"
			env.Refs = append(env.Refs, ref)
		}
	}
	return env, nil, nil
}

// entrypointFile picks the most main-like file tracked by the corpus.
func entrypointFile(c *corpus.Corpus) string {
	files := c.Files()
	sort.Strings(files)
	for _, candidate := range []string{"main.go", "main.py", "main.rs", "index.ts", "index.js"} {
		for _, f := range files {
			if f == candidate || strings.HasSuffix(f, "/"+candidate) {
				return f
			}
		}
	}
	return ""
}

// projectFacts produces a small, deterministic list of project facts
// from filesystem signals (spec.md §4.11 "ecosystems, build tools, CI,
// ... key dirs, entry points, key configs").
func projectFacts(root string) []string {
	var facts []string
	checks := []struct {
		path string
		note string
	}{
		{"go.mod", "ecosystem: go module"},
		{"package.json", "ecosystem: node package"},
		{"pyproject.toml", "ecosystem: python project"},
		{"Cargo.toml", "ecosystem: rust crate"},
		{".github/workflows", "ci: github actions"},
		{"Makefile", "build: make"},
		{"Dockerfile", "build: docker"},
	}
	for _, c := range checks {
		if _, err := os.Stat(filepath.Join(root, c.path)); err == nil {
			facts = append(facts, c.note)
		}
	}
	return facts
}

// runOnboarding implements the Onboarding intent (spec.md §4.11): a
// repo-onboarding pack in full mode, anchor docs otherwise.
func (e *Engine) runOnboarding(req Request, innerMax int) (render.Envelope, []string) {
	env := render.Envelope{Answer: "repo onboarding"}
	env.Notes = projectFacts(e.Root.Path)

	if !anchorPolicyEnabled() {
		return env, nil
	}

	budgetPer := innerMax
	if req.ResponseMode == ModeFull && len(anchorDocNames) > 0 {
		budgetPer = innerMax / len(anchorDocNames)
	}
	for _, name := range anchorDocNames {
		data, err := os.ReadFile(filepath.Join(e.Root.Path, name))
		if err != nil {
			continue
		}
		content := string(data)
		if budgetPer > 0 && len(content) > budgetPer {
			content = content[:budgetPer]
		}
		env.Refs = append(env.Refs, render.Ref{File: name, Line: 1, Label: "anchor", Block: content})
		if req.ResponseMode != ModeFull {
			break
		}
	}
	return env, nil
}

// directivePattern recognizes recall mode directives embedded in a
// question (spec.md §4.11 "fast/deep/k:N/ctx:N/in:<prefix>/not:<prefix>/lit:<literal>").
var directivePattern = regexp.MustCompile(`\b(?:fast|deep|k:\d+|ctx:\d+)\b|\b(?:in|not|lit):\S+`)

// recallPolicy is the per-question retrieval policy computed from the
// directives embedded in its text (spec.md §4.11 "Recall intent").
type recallPolicy struct {
	fast     bool // skip semantic retrieval
	deep     bool
	k        int // snippet cap per question
	ctxLines int // grep context lines
	include  []string
	exclude  []string
	literals []string
}

// parseRecallPolicy extracts directives from q and returns the policy
// plus the question text with directives stripped.
func parseRecallPolicy(q string) (recallPolicy, string) {
	p := recallPolicy{k: 3, ctxLines: 2}
	stripped := directivePattern.ReplaceAllStringFunc(q, func(d string) string {
		switch {
		case d == "fast":
			p.fast = true
		case d == "deep":
			p.deep = true
			p.k = 5
		case strings.HasPrefix(d, "k:"):
			if n, err := strconv.Atoi(d[2:]); err == nil && n > 0 {
				p.k = n
			}
		case strings.HasPrefix(d, "ctx:"):
			if n, err := strconv.Atoi(d[4:]); err == nil && n >= 0 {
				p.ctxLines = n
			}
		case strings.HasPrefix(d, "in:"):
			p.include = append(p.include, d[3:])
		case strings.HasPrefix(d, "not:"):
			p.exclude = append(p.exclude, d[4:])
		case strings.HasPrefix(d, "lit:"):
			p.literals = append(p.literals, d[4:])
		}
		return ""
	})
	return p, strings.Join(strings.Fields(stripped), " ")
}

// allows applies the policy's in:/not: prefix filters to a corpus path.
func (p recallPolicy) allows(rel string) bool {
	for _, ex := range p.exclude {
		if strings.HasPrefix(rel, ex) {
			return false
		}
	}
	if len(p.include) == 0 {
		return true
	}
	for _, in := range p.include {
		if strings.HasPrefix(rel, in) {
			return true
		}
	}
	return false
}

// structuralCandidates maps a structural question (project identity,
// entry points, contracts, configuration) to a curated candidate list
// (spec.md §4.11 step (b)).
func structuralCandidates(q string, files []string) []string {
	lower := strings.ToLower(q)
	var prefer []string
	switch {
	case strings.Contains(lower, "entry point") || strings.Contains(lower, "entrypoint") || strings.Contains(lower, "main"):
		prefer = []string{"main.go", "main.py", "main.rs", "index.ts", "index.js", "cmd/"}
	case strings.Contains(lower, "what is this") || strings.Contains(lower, "project name") || strings.Contains(lower, "purpose"):
		prefer = []string{"README.md", "go.mod", "package.json", "Cargo.toml", "pyproject.toml"}
	case strings.Contains(lower, "api") || strings.Contains(lower, "contract") || strings.Contains(lower, "interface"):
		prefer = []string{"api/", "proto/", "openapi", "schema"}
	case strings.Contains(lower, "config"):
		prefer = []string{"config", ".yml", ".yaml", ".toml", ".json"}
	default:
		return nil
	}
	var out []string
	for _, needle := range prefer {
		for _, f := range files {
			if f == needle || strings.HasPrefix(f, needle) || strings.Contains(f, needle) {
				out = append(out, f)
			}
		}
	}
	return out
}

// opsNeedles match questions about running, building, or testing the
// project (spec.md §4.11 step (d) "ops snippets").
var opsNeedles = []string{"test", "build", "run", "install", "deploy"}

func opsCandidates(q string, files []string) []string {
	lower := strings.ToLower(q)
	hit := false
	for _, n := range opsNeedles {
		if strings.Contains(lower, n) {
			hit = true
			break
		}
	}
	if !hit {
		return nil
	}
	var out []string
	for _, f := range files {
		base := filepath.Base(f)
		if base == "Makefile" || base == "Dockerfile" || base == "Taskfile.yml" ||
			strings.HasPrefix(f, ".github/workflows/") || strings.HasPrefix(f, "scripts/") {
			out = append(out, f)
		}
	}
	return out
}

// isDocPath reports whether rel is a documentation file for the
// doc-to-code upgrade pass.
func isDocPath(rel string) bool {
	ext := strings.ToLower(filepath.Ext(rel))
	return ext == ".md" || ext == ".rst" || ext == ".txt"
}

// grepCorpusRefs scans corpus files for needle (literal or word match)
// honoring the policy's path filters, returning refs with ctxLines of
// surrounding context, capped at limit.
func (e *Engine) grepCorpusRefs(needle string, p recallPolicy, seen map[string]bool, limit int, codeOnly bool) []render.Ref {
	files := e.Corpus.Files()
	sort.Strings(files)
	lowerNeedle := strings.ToLower(needle)
	var refs []render.Ref
	for _, rel := range files {
		if len(refs) >= limit {
			break
		}
		if seen[rel] || !p.allows(rel) {
			continue
		}
		if codeOnly && isDocPath(rel) {
			continue
		}
		f, err := os.Open(filepath.Join(e.Root.Path, rel))
		if err != nil {
			continue
		}
		lines := readLines(f)
		f.Close()
		for i, line := range lines {
			if !strings.Contains(strings.ToLower(line), lowerNeedle) {
				continue
			}
			lo := max(0, i-p.ctxLines)
			hi := min(len(lines)-1, i+p.ctxLines)
			seen[rel] = true
			refs = append(refs, render.Ref{File: rel, Line: i + 1, Block: strings.Join(lines[lo:hi+1], "\n")})
			break
		}
	}
	return refs
}

// firstChunkRef turns a corpus file's leading chunk into a ref.
func firstChunkRef(c *corpus.Corpus, rel string) (render.Ref, bool) {
	ch := c.FileChunks(rel)
	if len(ch) == 0 {
		return render.Ref{}, false
	}
	return render.Ref{File: rel, Line: ch[0].StartLine, Block: ch[0].Content}, true
}

// runRecall implements the Recall intent over one question at a time,
// advancing a question-index cursor across calls (spec.md §4.11). Each
// question is answered by the first ladder step that produces snippets:
// literal file reference, structural candidates, directive-driven grep,
// ops snippets, semantic retrieval, then keyword grep — with per-call
// file de-duplication and a doc-to-code upgrade pass at the end.
func (e *Engine) runRecall(ctx context.Context, req Request, state cursorState, innerMax int) (render.Envelope, *cursorState, []string) {
	questions := req.Questions
	if len(questions) == 0 && req.Ask != "" {
		questions = []string{req.Ask}
	}
	idx := state.QuestionIndex
	if idx >= len(questions) {
		return render.Envelope{Answer: "no more questions"}, nil, nil
	}
	raw := questions[idx]
	policy, q := parseRecallPolicy(raw)

	env := render.Envelope{Answer: "answer for: " + q}
	seenFiles := make(map[string]bool)
	files := e.Corpus.Files()
	sort.Strings(files)

	// (a) literal file reference in the question.
	if rel := literalFileReference(q, e.Corpus); rel != "" && policy.allows(rel) {
		if ref, ok := firstChunkRef(e.Corpus, rel); ok {
			seenFiles[rel] = true
			env.Refs = append(env.Refs, ref)
		}
	}

	// (b) structural intent: curated candidate list.
	if len(env.Refs) < policy.k {
		for _, rel := range structuralCandidates(q, files) {
			if len(env.Refs) >= policy.k {
				break
			}
			if seenFiles[rel] || !policy.allows(rel) {
				continue
			}
			if ref, ok := firstChunkRef(e.Corpus, rel); ok {
				seenFiles[rel] = true
				env.Refs = append(env.Refs, ref)
			}
		}
	}

	// (c) directive-driven literal grep.
	for _, lit := range policy.literals {
		if len(env.Refs) >= policy.k {
			break
		}
		env.Refs = append(env.Refs, e.grepCorpusRefs(lit, policy, seenFiles, policy.k-len(env.Refs), false)...)
	}

	// (d) ops snippets for run/build/test questions.
	if len(env.Refs) < policy.k {
		for _, rel := range opsCandidates(q, files) {
			if len(env.Refs) >= policy.k {
				break
			}
			if seenFiles[rel] || !policy.allows(rel) {
				continue
			}
			if ref, ok := firstChunkRef(e.Corpus, rel); ok {
				seenFiles[rel] = true
				env.Refs = append(env.Refs, ref)
			}
		}
	}

	// (e) semantic retrieval, unless the fast directive suppressed it.
	if len(env.Refs) == 0 && !policy.fast {
		searcher, err := hybrid.New(e.Corpus, e.Registry, e.Indexes)
		if err == nil {
			defer searcher.Close()
			results, _, serr := searcher.Search(ctx, q, hybrid.Options{Limit: policy.k, AllowSemantic: true,
				Filters: hybrid.Filters{IncludePaths: policy.include, ExcludePaths: policy.exclude}})
			if serr == nil {
				for _, r := range results {
					if seenFiles[r.Chunk.RelPath] {
						continue
					}
					seenFiles[r.Chunk.RelPath] = true
					env.Refs = append(env.Refs, render.Ref{File: r.Chunk.RelPath, Line: r.Chunk.StartLine, Block: r.Chunk.Content})
				}
			}
		}
	}

	// (f) keyword grep over the question's longest tokens.
	if len(env.Refs) == 0 {
		for _, tok := range questionKeywords(q) {
			if len(env.Refs) >= policy.k {
				break
			}
			env.Refs = append(env.Refs, e.grepCorpusRefs(tok, policy, seenFiles, policy.k-len(env.Refs), false)...)
		}
	}

	// Doc-to-code upgrade: when every snippet landed in documentation,
	// try the same keywords against code files and prefer those anchors.
	if len(env.Refs) > 0 && allDocs(env.Refs) {
		for _, tok := range questionKeywords(q) {
			code := e.grepCorpusRefs(tok, policy, seenFiles, policy.k, true)
			if len(code) > 0 {
				env.Refs = append(code, env.Refs...)
				if len(env.Refs) > policy.k {
					env.Refs = env.Refs[:policy.k]
				}
				break
			}
		}
	}

	var notes []string
	if policy.fast {
		notes = append(notes, "policy: fast (semantic skipped)")
	}
	if len(env.Refs) == 0 {
		notes = append(notes, "no snippets found")
	}

	next := idx + 1
	if next >= len(questions) {
		return env, nil, notes
	}
	return env, &cursorState{QuestionIndex: next}, notes
}

func allDocs(refs []render.Ref) bool {
	for _, r := range refs {
		if !isDocPath(r.File) {
			return false
		}
	}
	return true
}

// questionKeywords picks the question's most selective tokens (longest
// first, stop-words dropped) for the keyword-grep fallback.
func questionKeywords(q string) []string {
	stop := map[string]bool{"what": true, "where": true, "how": true, "does": true, "this": true, "the": true, "is": true, "are": true, "a": true, "an": true, "in": true, "of": true, "to": true, "and": true, "for": true}
	var toks []string
	for _, tok := range strings.Fields(q) {
		tok = strings.Trim(tok, "`'\",.;:()?!")
		if len(tok) < 3 || stop[strings.ToLower(tok)] {
			continue
		}
		toks = append(toks, tok)
	}
	sort.SliceStable(toks, func(i, j int) bool { return len(toks[i]) > len(toks[j]) })
	if len(toks) > 4 {
		toks = toks[:4]
	}
	return toks
}

// literalFileReference returns a corpus file path directly named in q,
// if any (spec.md §4.11 step (a) "literal file reference in the question").
func literalFileReference(q string, c *corpus.Corpus) string {
	for _, tok := range strings.Fields(q) {
		tok = strings.Trim(tok, "`'\",.;:()")
		if strings.Contains(tok, "/") || strings.Contains(tok, ".") {
			for _, f := range c.Files() {
				if f == tok || strings.HasSuffix(f, "/"+tok) {
					return f
				}
			}
		}
	}
	return ""
}
