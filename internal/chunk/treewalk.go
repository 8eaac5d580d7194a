package chunk

import (
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// walkTree recursively walks a tree-sitter tree, calling visitor for every
// node. Returning false from visitor skips that node's children. Adapted
// from the teacher's internal/indexer/parsers/treesitter.go walkTree.
func walkTree(node *sitter.Node, visitor func(*sitter.Node) bool) {
	if node == nil {
		return
	}
	if !visitor(node) {
		return
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		walkTree(node.Child(uint(i)), visitor)
	}
}

func nodeText(n *sitter.Node, src []byte) string {
	if n == nil {
		return ""
	}
	return string(src[n.StartByte():n.EndByte()])
}

func nodeLines(n *sitter.Node) (int, int) {
	return int(n.StartPosition().Row) + 1, int(n.EndPosition().Row) + 1
}

// chunkTreeSitter parses source with the language's grammar and emits one
// chunk per declaration, recursing into container node types (impls,
// classes, modules/namespaces) so nested declarations — e.g. methods
// inside a Rust `mod`/`impl` or a TypeScript namespace — still surface
// with the correct Kind (spec.md §4.1: "Methods inside nested
// modules/impls must still be emitted with kind=Method").
func chunkTreeSitter(spec *langSpec, src []byte, relPath string) ([]Chunk, error) {
	parser := sitter.NewParser()
	defer parser.Close()

	lang := spec.language()
	if err := parser.SetLanguage(lang); err != nil {
		return nil, err
	}

	tree := parser.Parse(src, nil)
	if tree == nil {
		return nil, errParseFailed
	}
	defer tree.Close()

	root := tree.RootNode()
	lines := strings.Split(string(src), "\n")

	w := &walker{spec: spec, src: src, lines: lines, relPath: relPath}
	w.walk(root, "", false)

	if len(w.chunks) == 0 {
		// No declarations found at all (e.g. a script with only top-level
		// statements): fall back to a single module chunk so the file is
		// still represented in the corpus.
		start, end := nodeLines(root)
		w.chunks = append(w.chunks, Chunk{
			ID:        MakeID(relPath, start, end),
			RelPath:   relPath,
			StartLine: start,
			EndLine:   end,
			Content:   string(src),
			Kind:      KindModule,
		})
	}

	return w.chunks, nil
}

type walker struct {
	spec    *langSpec
	src     []byte
	lines   []string
	relPath string
	chunks  []Chunk
}

// walk visits node's children looking for declarations and containers.
// parentScope is the qualified-name prefix inherited from enclosing
// containers; insideContainer marks function-kind nodes as methods once
// we're nested inside a class/impl/module body.
func (w *walker) walk(node *sitter.Node, parentScope string, insideContainer bool) {
	if node == nil {
		return
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(uint(i))
		if child == nil {
			continue
		}
		kindType := child.Kind()

		if declKind, ok := w.spec.decls[kindType]; ok {
			effectiveKind := declKind
			if insideContainer && w.spec.methodHint[kindType] {
				effectiveKind = KindMethod
			}
			name := w.declName(child)
			qualified := name
			if parentScope != "" && name != "" {
				qualified = parentScope + "." + name
			}
			start, end := nodeLines(child)
			c := Chunk{
				ID:            MakeID(w.relPath, start, end),
				RelPath:       w.relPath,
				StartLine:     start,
				EndLine:       end,
				Content:       strings.Join(safeSlice(w.lines, start, end), "\n"),
				Symbol:        name,
				Kind:          effectiveKind,
				ParentScope:   parentScope,
				QualifiedName: qualified,
				Documentation: w.leadingDoc(child),
			}
			w.chunks = append(w.chunks, c)

			// Still descend into the declaration body in case it is also a
			// container (e.g. a class that is simultaneously a decl node).
			if w.spec.containers[kindType] {
				nextScope := qualified
				if nextScope == "" {
					nextScope = parentScope
				}
				w.walk(child, nextScope, true)
			}
			continue
		}

		if w.spec.containers[kindType] {
			// Pure container (declaration_list, class_body, module body):
			// transparent to scope, just keep recursing.
			w.walk(child, parentScope, insideContainer)
			continue
		}

		// Not a declaration or a recognized container: keep looking deeper
		// in case declarations are nested further down (e.g. inside a
		// generic block or decorator wrapper).
		w.walk(child, parentScope, insideContainer)
	}
}

func (w *walker) declName(n *sitter.Node) string {
	field := w.spec.nameField
	if field == "" {
		field = "name"
	}
	if nameNode := n.ChildByFieldName(field); nameNode != nil {
		return nodeText(nameNode, w.src)
	}
	return ""
}

// leadingDoc captures a contiguous block of comment lines immediately
// preceding the declaration as its documentation (spec.md §4.1).
func (w *walker) leadingDoc(n *sitter.Node) string {
	prev := n.PrevSibling()
	var docLines []string
	for prev != nil && isCommentKind(prev.Kind()) {
		docLines = append([]string{nodeText(prev, w.src)}, docLines...)
		prev = prev.PrevSibling()
	}
	return strings.TrimSpace(strings.Join(docLines, "\n"))
}

func isCommentKind(k string) bool {
	return strings.Contains(k, "comment")
}

func safeSlice(lines []string, start, end int) []string {
	if start < 1 {
		start = 1
	}
	if end > len(lines) {
		end = len(lines)
	}
	if start > end || start > len(lines) {
		return nil
	}
	return lines[start-1 : end]
}
