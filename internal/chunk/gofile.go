package chunk

import (
	"go/ast"
	"go/parser"
	"go/token"
	"strings"
)

// chunkGo parses a Go source file with the standard library's go/ast —
// the teacher's own multiLanguageParser does the same rather than
// reaching for tree-sitter on its own language (internal/indexer/parser.go
// parseGoFile) — and emits one chunk per top-level func/type/var/const.
func chunkGo(src []byte, relPath string) ([]Chunk, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, relPath, src, parser.ParseComments)
	if err != nil {
		return nil, err
	}

	lines := strings.Split(string(src), "\n")
	var chunks []Chunk
	packageName := file.Name.Name

	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			kind := KindFunction
			scope := packageName
			qualified := d.Name.Name
			if d.Recv != nil && len(d.Recv.List) > 0 {
				kind = KindMethod
				recv := recvTypeName(d.Recv.List[0].Type)
				scope = packageName + "." + recv
				qualified = scope + "." + d.Name.Name
			}
			start := fset.Position(d.Pos()).Line
			end := fset.Position(d.End()).Line
			doc := strings.TrimSpace(d.Doc.Text())
			chunks = append(chunks, Chunk{
				ID:            MakeID(relPath, start, end),
				RelPath:       relPath,
				StartLine:     start,
				EndLine:       end,
				Content:       strings.Join(safeSlice(lines, start, end), "\n"),
				Symbol:        d.Name.Name,
				Kind:          kind,
				ParentScope:   scope,
				QualifiedName: qualified,
				Documentation: doc,
			})

		case *ast.GenDecl:
			chunks = append(chunks, chunkGenDecl(fset, d, lines, relPath, packageName)...)
		}
	}

	if len(chunks) == 0 {
		start := fset.Position(file.Pos()).Line
		end := fset.Position(file.End()).Line
		chunks = append(chunks, Chunk{
			ID:        MakeID(relPath, start, end),
			RelPath:   relPath,
			StartLine: start,
			EndLine:   end,
			Content:   string(src),
			Kind:      KindModule,
		})
	}

	return chunks, nil
}

func chunkGenDecl(fset *token.FileSet, d *ast.GenDecl, lines []string, relPath, packageName string) []Chunk {
	var out []Chunk
	doc := strings.TrimSpace(d.Doc.Text())

	for _, spec := range d.Specs {
		switch s := spec.(type) {
		case *ast.TypeSpec:
			kind := KindStruct
			switch s.Type.(type) {
			case *ast.InterfaceType:
				kind = KindInterface
			case *ast.StructType:
				kind = KindStruct
			default:
				kind = KindStruct
			}
			start := fset.Position(s.Pos()).Line
			end := fset.Position(s.End()).Line
			out = append(out, Chunk{
				ID:            MakeID(relPath, start, end),
				RelPath:       relPath,
				StartLine:     start,
				EndLine:       end,
				Content:       strings.Join(safeSlice(lines, start, end), "\n"),
				Symbol:        s.Name.Name,
				Kind:          kind,
				ParentScope:   packageName,
				QualifiedName: packageName + "." + s.Name.Name,
				Documentation: doc,
			})
		case *ast.ValueSpec:
			kind := KindVariable
			if d.Tok == token.CONST {
				kind = KindConstant
			}
			start := fset.Position(s.Pos()).Line
			end := fset.Position(s.End()).Line
			name := ""
			if len(s.Names) > 0 {
				name = s.Names[0].Name
			}
			out = append(out, Chunk{
				ID:            MakeID(relPath, start, end),
				RelPath:       relPath,
				StartLine:     start,
				EndLine:       end,
				Content:       strings.Join(safeSlice(lines, start, end), "\n"),
				Symbol:        name,
				Kind:          kind,
				ParentScope:   packageName,
				QualifiedName: packageName + "." + name,
				Documentation: doc,
			})
		}
	}
	return out
}

func recvTypeName(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.StarExpr:
		return recvTypeName(t.X)
	case *ast.Ident:
		return t.Name
	default:
		return "?"
	}
}

// goImports returns the import paths declared by a Go source file.
func goImports(src []byte, relPath string) []string {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, relPath, src, parser.ImportsOnly)
	if err != nil {
		return nil
	}
	imports := make([]string, 0, len(file.Imports))
	for _, imp := range file.Imports {
		imports = append(imports, strings.Trim(imp.Path.Value, `"`))
	}
	return imports
}
