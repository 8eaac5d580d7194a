package chunk

import (
	"path/filepath"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
	tsc "github.com/tree-sitter/tree-sitter-c/bindings/go"
	tsjava "github.com/tree-sitter/tree-sitter-java/bindings/go"
	tsphp "github.com/tree-sitter/tree-sitter-php/bindings/go"
	tspython "github.com/tree-sitter/tree-sitter-python/bindings/go"
	tsruby "github.com/tree-sitter/tree-sitter-ruby/bindings/go"
	tsrust "github.com/tree-sitter/tree-sitter-rust/bindings/go"
	tstypescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"
)

// langSpec describes how to walk a tree-sitter parse tree for one language:
// which node types are declarations (and their Kind), which node types are
// "containers" we must still recurse into to find nested declarations
// (modules/impls/namespaces — the "nested mods" requirement in spec.md §4.1),
// and the field name holding the identifier.
type langSpec struct {
	name        string
	language    func() *sitter.Language
	decls       map[string]Kind
	methodHint  map[string]bool // node types that, when nested under a container, should be Kind=Method
	containers  map[string]bool // node types that don't themselves become a chunk but must be walked
	nameField   string
	docField    string // comment is attached by scanning preceding sibling, not a field; kept for future per-language override
}

var languageTable = map[string]*langSpec{
	"python": {
		name:     "python",
		language: func() *sitter.Language { return sitter.NewLanguage(tspython.Language()) },
		decls: map[string]Kind{
			"function_definition": KindFunction,
			"class_definition":    KindClass,
		},
		methodHint: map[string]bool{"function_definition": true},
		containers: map[string]bool{"class_definition": true, "module": true, "block": true},
		nameField:  "name",
	},
	"rust": {
		name:     "rust",
		language: func() *sitter.Language { return sitter.NewLanguage(tsrust.Language()) },
		decls: map[string]Kind{
			"function_item":  KindFunction,
			"struct_item":    KindStruct,
			"enum_item":      KindEnum,
			"trait_item":     KindInterface,
			"impl_item":      KindBlock,
			"mod_item":       KindModule,
			"const_item":     KindConstant,
			"static_item":    KindVariable,
		},
		methodHint: map[string]bool{"function_item": true},
		containers: map[string]bool{"impl_item": true, "mod_item": true, "trait_item": true, "declaration_list": true},
		nameField:  "name",
	},
	"java": {
		name:     "java",
		language: func() *sitter.Language { return sitter.NewLanguage(tsjava.Language()) },
		decls: map[string]Kind{
			"method_declaration":      KindMethod,
			"constructor_declaration": KindMethod,
			"class_declaration":       KindClass,
			"interface_declaration":   KindInterface,
			"enum_declaration":        KindEnum,
			"field_declaration":       KindVariable,
		},
		containers: map[string]bool{"class_declaration": true, "interface_declaration": true, "class_body": true, "interface_body": true},
		nameField:  "name",
	},
	"c": {
		name:     "c",
		language: func() *sitter.Language { return sitter.NewLanguage(tsc.Language()) },
		decls: map[string]Kind{
			"function_definition": KindFunction,
			"struct_specifier":    KindStruct,
			"enum_specifier":      KindEnum,
		},
		containers: map[string]bool{"translation_unit": true},
		nameField:  "declarator",
	},
	"php": {
		name:     "php",
		language: func() *sitter.Language { return sitter.NewLanguage(tsphp.LanguagePHP()) },
		decls: map[string]Kind{
			"function_definition": KindFunction,
			"method_declaration":  KindMethod,
			"class_declaration":   KindClass,
			"interface_declaration": KindInterface,
			"enum_declaration":    KindEnum,
		},
		methodHint: map[string]bool{"function_definition": true},
		containers: map[string]bool{"class_declaration": true, "interface_declaration": true, "declaration_list": true, "namespace_definition": true},
		nameField:  "name",
	},
	"ruby": {
		name:     "ruby",
		language: func() *sitter.Language { return sitter.NewLanguage(tsruby.Language()) },
		decls: map[string]Kind{
			"method":        KindMethod,
			"singleton_method": KindMethod,
			"class":         KindClass,
			"module":        KindModule,
		},
		containers: map[string]bool{"class": true, "module": true, "body_statement": true},
		nameField:  "name",
	},
	"typescript": {
		name:     "typescript",
		language: func() *sitter.Language { return sitter.NewLanguage(tstypescript.LanguageTypescript()) },
		decls: map[string]Kind{
			"function_declaration":  KindFunction,
			"method_definition":     KindMethod,
			"class_declaration":     KindClass,
			"interface_declaration": KindInterface,
			"enum_declaration":      KindEnum,
			"lexical_declaration":   KindVariable,
		},
		containers: map[string]bool{"class_declaration": true, "class_body": true, "module": true, "namespace_declaration": true},
		nameField:  "name",
	},
}

// aliasLanguage maps a detected language id to the langSpec key, so
// javascript reuses the typescript grammar as the teacher's own config
// treats .js/.jsx as code patterns without a dedicated JS parser.
func aliasLanguage(lang string) string {
	switch lang {
	case "javascript", "jsx", "js", "tsx":
		return "typescript"
	case "cpp":
		return "c"
	}
	return lang
}

// detectLanguage classifies a file by extension, mirroring
// internal/indexer/parser.go's detectLanguage in the teacher.
func detectLanguage(relPath string) string {
	ext := strings.ToLower(filepath.Ext(relPath))
	switch ext {
	case ".go":
		return "go"
	case ".ts":
		return "typescript"
	case ".tsx":
		return "typescript"
	case ".js", ".jsx", ".mjs", ".cjs":
		return "javascript"
	case ".py":
		return "python"
	case ".rs":
		return "rust"
	case ".c", ".h":
		return "c"
	case ".cpp", ".cc", ".hpp":
		return "cpp"
	case ".php":
		return "php"
	case ".rb":
		return "ruby"
	case ".java":
		return "java"
	case ".md", ".rst", ".mdx", ".txt":
		return "doc"
	case ".yml", ".yaml", ".json", ".toml", ".ini", ".cfg", ".env":
		return "config"
	default:
		return "unknown"
	}
}
