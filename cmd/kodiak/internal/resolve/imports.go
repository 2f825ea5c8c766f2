// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package resolve

import (
	"context"
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/AleutianAI/kodiak/cmd/kodiak/internal/fileset"
)

// stdlibModules are runtime built-ins and testing-framework modules the
// resolver must never try to locate in the repository.
var stdlibModules = map[string]struct{}{
	"sys": {}, "os": {}, "json": {}, "base64": {}, "subprocess": {},
	"unittest": {}, "pytest": {}, "typing": {}, "re": {}, "ast": {},
	"collections": {}, "datetime": {}, "time": {}, "random": {}, "math": {},
}

// importLine captures the leading dotted identifier of an import-like
// line. Used only when syntax-tree parsing fails for a file.
var importLine = regexp.MustCompile(`^(?:from|import)\s+([a-zA-Z_][a-zA-Z0-9_]*(?:\.[a-zA-Z_][a-zA-Z0-9_]*)*)`)

// ExtractImportedModules walks the import statements of every Python
// test file and returns the referenced module paths. For a dotted path
// like "app.auth" both the full path and its first segment ("app") are
// included, so callers can match either an exact module file or its
// containing package directory.
//
// Files that fail to parse fall back to a line-anchored pattern match;
// extraction never returns an error.
func ExtractImportedModules(ctx context.Context, tests fileset.FileSet) map[string]struct{} {
	modules := make(map[string]struct{})

	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())

	for path, content := range tests {
		if !strings.HasSuffix(path, ".py") {
			continue
		}

		tree, err := parser.ParseCtx(ctx, nil, []byte(content))
		if err != nil || tree.RootNode().HasError() {
			if tree != nil {
				tree.Close()
			}
			extractWithRegex(content, modules)
			continue
		}

		walkImports(tree.RootNode(), []byte(content), modules)
		tree.Close()
	}
	return modules
}

// walkImports visits import_statement and import_from_statement nodes.
func walkImports(node *sitter.Node, src []byte, modules map[string]struct{}) {
	switch node.Type() {
	case "import_statement":
		// import a.b, c as d
		for i := 0; i < int(node.NamedChildCount()); i++ {
			child := node.NamedChild(i)
			switch child.Type() {
			case "dotted_name":
				addModule(modules, child.Content(src))
			case "aliased_import":
				if name := child.ChildByFieldName("name"); name != nil {
					addModule(modules, name.Content(src))
				}
			}
		}
		return
	case "import_from_statement":
		// from a.b import c
		if mod := node.ChildByFieldName("module_name"); mod != nil {
			addModule(modules, strings.TrimLeft(mod.Content(src), "."))
		}
		return
	}

	for i := 0; i < int(node.NamedChildCount()); i++ {
		walkImports(node.NamedChild(i), src, modules)
	}
}

func extractWithRegex(content string, modules map[string]struct{}) {
	for _, line := range strings.Split(content, "\n") {
		if m := importLine.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			addModule(modules, m[1])
		}
	}
}

// addModule records a dotted module path plus its first segment.
func addModule(modules map[string]struct{}, name string) {
	if name == "" {
		return
	}
	modules[name] = struct{}{}
	if i := strings.IndexByte(name, '.'); i > 0 {
		modules[name[:i]] = struct{}{}
	}
}
