// Package mcptools registers the project's MCP tool surface (spec.md
// §6.3) on top of the teacher's mark3labs/mcp-go wiring convention: one
// AddXTool function per tool, a createXHandler factory kept separate so
// it can be exercised directly in tests, and a handler that marshals
// its response as JSON text.
package mcptools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/cortexlens/contextd/internal/capabilities"
	"github.com/cortexlens/contextd/internal/compare"
	"github.com/cortexlens/contextd/internal/freshness"
	"github.com/cortexlens/contextd/internal/meaning"
	"github.com/cortexlens/contextd/internal/readpack"
)

type handlerFunc = server.ToolHandlerFunc

func textResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

func marshalText(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal response: %w", err)
	}
	return string(data), nil
}

func toolArgs(req mcp.CallToolRequest) map[string]interface{} {
	argsMap, ok := req.Params.Arguments.(map[string]interface{})
	if !ok {
		return map[string]interface{}{}
	}
	return argsMap
}

func argString(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func argBool(args map[string]any, key string) (bool, bool) {
	v, ok := args[key].(bool)
	return v, ok
}

func argInt(args map[string]any, key string) (int, bool) {
	v, ok := args[key].(float64)
	return int(v), ok
}

func argStrings(args map[string]any, key string) []string {
	raw, ok := args[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// AddCapabilitiesTool registers the capabilities handshake tool.
func AddCapabilitiesTool(s *server.MCPServer, serverVersion string, indexed func() bool) {
	tool := mcp.NewTool("capabilities",
		mcp.WithDescription("Report server version, protocol/index schema versions, default budgets, and the suggested first tool call for this project."),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	s.AddTool(tool, createCapabilitiesHandler(serverVersion, indexed))
}

func createCapabilitiesHandler(serverVersion string, indexed func() bool) handlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return textResult(capabilities.Build(serverVersion, indexed()))
	}
}

// AddHelpTool registers the `.context` legend tool.
func AddHelpTool(s *server.MCPServer) {
	tool := mcp.NewTool("help",
		mcp.WithDescription("Return the `.context` text envelope legend, both as a compact text block and as a structured field list."),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	s.AddTool(tool, createHelpHandler())
}

func createHelpHandler() handlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return textResult(capabilities.Help())
	}
}

// AddReadPackTool registers the read_pack orchestrator tool (spec.md
// §4.11): the single entry point fronting file/grep/query/memory/
// onboarding/recall intents.
func AddReadPackTool(s *server.MCPServer, engine *readpack.Engine) {
	tool := mcp.NewTool("read_pack",
		mcp.WithDescription("Resolve an intent (file, grep, query, memory, onboarding, recall) into a budgeted `.context` envelope, optionally resuming from a cursor."),
		mcp.WithString("intent", mcp.Description("auto (default), file, grep, query, memory, onboarding, or recall")),
		mcp.WithString("path", mcp.Description("project root override")),
		mcp.WithString("file", mcp.Description("file path for the file or grep intents")),
		mcp.WithString("pattern", mcp.Description("regex pattern for the grep intent")),
		mcp.WithString("query", mcp.Description("search query for the query intent")),
		mcp.WithString("ask", mcp.Description("single question for the recall intent")),
		mcp.WithArray("questions", mcp.Description("questions for the recall intent, answered one per call")),
		mcp.WithString("cursor", mcp.Description("continuation token from a prior response")),
		mcp.WithNumber("max_chars", mcp.Description("character budget for the rendered envelope")),
		mcp.WithString("response_mode", mcp.Description("full (default), facts, or minimal")),
		mcp.WithBoolean("allow_secrets", mcp.Description("permit reading files that look like secrets")),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	s.AddTool(tool, createReadPackHandler(engine))
}

func createReadPackHandler(engine *readpack.Engine) handlerFunc {
	return func(ctx context.Context, callReq mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		argsMap := toolArgs(callReq)
		req := readpack.Request{
			Intent:       readpack.Intent(argString(argsMap, "intent")),
			Path:         argString(argsMap, "path"),
			File:         argString(argsMap, "file"),
			Pattern:      argString(argsMap, "pattern"),
			Query:        argString(argsMap, "query"),
			Ask:          argString(argsMap, "ask"),
			Questions:    argStrings(argsMap, "questions"),
			Cursor:       argString(argsMap, "cursor"),
			ResponseMode: readpack.ResponseMode(argString(argsMap, "response_mode")),
		}
		if n, ok := argInt(argsMap, "max_chars"); ok {
			req.MaxChars = n
		}
		if b, ok := argBool(argsMap, "allow_secrets"); ok {
			req.AllowSecrets = b
		}
		resp, err := engine.Run(ctx, req)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(resp.Text), nil
	}
}

// AddSearchTool registers the hybrid search tool (spec.md §4.8) as a
// thin wrapper over read_pack's query intent, so its results come back
// graph-expanded and budget-packed inside a `.context` envelope.
func AddSearchTool(s *server.MCPServer, engine *readpack.Engine) {
	tool := mcp.NewTool("search",
		mcp.WithDescription("Hybrid lexical+semantic search over the indexed project, with reciprocal rank fusion and AST-aware boosting."),
		mcp.WithString("query", mcp.Required(), mcp.Description("search query")),
		mcp.WithNumber("max_chars", mcp.Description("character budget for the rendered envelope (default 8000)")),
		mcp.WithString("stale_policy", mcp.Description("warn (default), auto, or off: what to do when the index is stale")),
		mcp.WithBoolean("auto_index", mcp.Description("shorthand for stale_policy=auto")),
		mcp.WithNumber("auto_index_budget_ms", mcp.Description("time budget for an inline auto reindex (default 15000)")),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	s.AddTool(tool, createSearchHandler(engine))
}

func createSearchHandler(engine *readpack.Engine) handlerFunc {
	return func(ctx context.Context, callReq mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		argsMap := toolArgs(callReq)
		query := argString(argsMap, "query")
		if query == "" {
			return mcp.NewToolResultError("query parameter is required"), nil
		}
		maxChars := 8000
		if n, ok := argInt(argsMap, "max_chars"); ok {
			maxChars = n
		}
		req := readpack.Request{
			Intent: readpack.IntentQuery, Query: query, MaxChars: maxChars,
			StalePolicy: freshness.Policy(argString(argsMap, "stale_policy")),
		}
		if auto, ok := argBool(argsMap, "auto_index"); ok && auto {
			req.StalePolicy = freshness.PolicyAuto
		}
		if n, ok := argInt(argsMap, "auto_index_budget_ms"); ok {
			req.AutoIndexBudgetMS = n
		}
		resp, err := engine.Run(ctx, req)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(resp.Text), nil
	}
}

// AddCompareSearchTool registers the compare_search regression tool
// (spec.md §6.3): baseline (lexical-only) vs. full hybrid result sets.
func AddCompareSearchTool(s *server.MCPServer, runner *compare.Runner, invalidate func() error) {
	tool := mcp.NewTool("compare_search",
		mcp.WithDescription("Run queries through both the lexical-only baseline and full hybrid search, side by side, for retrieval regression checks."),
		mcp.WithArray("queries", mcp.Required(), mcp.Description("queries to compare")),
		mcp.WithBoolean("invalidate_cache", mcp.Description("rebuild the search index before comparing")),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	s.AddTool(tool, createCompareSearchHandler(runner, invalidate))
}

func createCompareSearchHandler(runner *compare.Runner, invalidate func() error) handlerFunc {
	return func(ctx context.Context, callReq mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		argsMap := toolArgs(callReq)
		queries := argStrings(argsMap, "queries")
		if len(queries) == 0 {
			return mcp.NewToolResultError("queries parameter is required"), nil
		}
		invalidateCache, _ := argBool(argsMap, "invalidate_cache")
		if invalidateCache && invalidate != nil {
			if err := invalidate(); err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
		}
		res, err := runner.Run(ctx, compare.Options{Queries: queries, InvalidateCache: invalidateCache})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return textResult(res)
	}
}

// AddMeaningPackTool registers the meaning_pack tool (spec.md §4.14).
func AddMeaningPackTool(s *server.MCPServer, root string) {
	tool := mcp.NewTool("meaning_pack",
		mcp.WithDescription("Return the project's canon/artifact/entrypoint anchor documents."),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	s.AddTool(tool, createMeaningPackHandler(root))
}

func createMeaningPackHandler(root string) handlerFunc {
	return func(ctx context.Context, callReq mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return textResult(meaning.BuildPack(root))
	}
}

// AddMeaningFocusTool registers the meaning_focus tool (spec.md §4.14).
func AddMeaningFocusTool(s *server.MCPServer, root string) {
	tool := mcp.NewTool("meaning_focus",
		mcp.WithDescription("Return anchor documents whose title matches a focus query."),
		mcp.WithString("query", mcp.Required(), mcp.Description("focus area title substring")),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	s.AddTool(tool, createMeaningFocusHandler(root))
}

func createMeaningFocusHandler(root string) handlerFunc {
	return func(ctx context.Context, callReq mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		argsMap := toolArgs(callReq)
		query := argString(argsMap, "query")
		if query == "" {
			return mcp.NewToolResultError("query parameter is required"), nil
		}
		return textResult(meaning.Focus(root, query))
	}
}

// AddEvidenceFetchTool registers the evidence_fetch tool (spec.md
// §4.14): resolves anchor pointers to verbatim, staleness-checked text.
func AddEvidenceFetchTool(s *server.MCPServer, root string) {
	tool := mcp.NewTool("evidence_fetch",
		mcp.WithDescription("Fetch verbatim content for one or more evidence pointers, flagging any whose source hash no longer matches the live file."),
		mcp.WithArray("pointers", mcp.Required(), mcp.Description("list of {file, start_line, end_line, source_hash} pointers")),
		mcp.WithBoolean("strict_hash", mcp.Description("hard-fail instead of flagging staleness on a hash mismatch")),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	s.AddTool(tool, createEvidenceFetchHandler(root))
}

func createEvidenceFetchHandler(root string) handlerFunc {
	return func(ctx context.Context, callReq mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		argsMap := toolArgs(callReq)
		raw, _ := argsMap["pointers"].([]interface{})
		pointers := make([]meaning.Pointer, 0, len(raw))
		for _, item := range raw {
			m, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			p := meaning.Pointer{File: argString(m, "file"), SourceHash: argString(m, "source_hash")}
			if n, ok := argInt(m, "start_line"); ok {
				p.StartLine = n
			}
			if n, ok := argInt(m, "end_line"); ok {
				p.EndLine = n
			}
			pointers = append(pointers, p)
		}
		strict, _ := argBool(argsMap, "strict_hash")
		evidence, err := meaning.Fetch(root, pointers, strict)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return textResult(evidence)
	}
}
