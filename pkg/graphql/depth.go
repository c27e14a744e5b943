package graphql

import (
	"fmt"
	"strings"

	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/parser"
)

// fragments indexes a document's fragment definitions by name
func fragments(document *ast.Document) map[string]*ast.FragmentDefinition {
	out := make(map[string]*ast.FragmentDefinition)
	for _, def := range document.Definitions {
		if f, ok := def.(*ast.FragmentDefinition); ok {
			out[f.Name.Value] = f
		}
	}
	return out
}

// calculateQueryDepth calculates the maximum depth of a GraphQL query
func calculateQueryDepth(document *ast.Document) int {
	frags := fragments(document)
	maxDepth := 0
	for _, definition := range document.Definitions {
		if def, ok := definition.(*ast.OperationDefinition); ok {
			depth := calculateSelectionSetDepth(def.SelectionSet, 1, frags, map[string]bool{})
			maxDepth = max(maxDepth, depth)
		}
	}
	return maxDepth
}

// calculateSelectionSetDepth recursively calculates the depth of a selection
// set. Fragment spreads are expanded; a fragment already being expanded on
// the current path counts no further.
func calculateSelectionSetDepth(selectionSet *ast.SelectionSet, currentDepth int, frags map[string]*ast.FragmentDefinition, expanding map[string]bool) int {
	if selectionSet == nil || len(selectionSet.Selections) == 0 {
		return currentDepth
	}

	maxDepth := currentDepth
	for _, selection := range selectionSet.Selections {
		switch sel := selection.(type) {
		case *ast.Field:
			if isIntrospectionField(sel.Name.Value) || sel.SelectionSet == nil {
				continue
			}
			maxDepth = max(maxDepth, calculateSelectionSetDepth(sel.SelectionSet, currentDepth+1, frags, expanding))

		case *ast.InlineFragment:
			maxDepth = max(maxDepth, calculateSelectionSetDepth(sel.SelectionSet, currentDepth, frags, expanding))

		case *ast.FragmentSpread:
			name := sel.Name.Value
			frag, ok := frags[name]
			if !ok || expanding[name] {
				continue
			}
			expanding[name] = true
			maxDepth = max(maxDepth, calculateSelectionSetDepth(frag.SelectionSet, currentDepth, frags, expanding))
			delete(expanding, name)
		}
	}
	return maxDepth
}

// isIntrospectionField checks if a field is an introspection field
func isIntrospectionField(fieldName string) bool {
	return strings.HasPrefix(fieldName, "__")
}

// ValidateQueryDepth validates a query against the depth limit
func ValidateQueryDepth(query string, maxDepth int) error {
	document, err := parser.Parse(parser.ParseParams{Source: query})
	if err != nil {
		return fmt.Errorf("failed to parse query: %w", err)
	}
	return checkDepth(document, maxDepth)
}

func checkDepth(document *ast.Document, maxDepth int) error {
	if depth := calculateQueryDepth(document); depth > maxDepth {
		return fmt.Errorf("query depth %d exceeds maximum allowed depth %d", depth, maxDepth)
	}
	return nil
}
