package graphql

import (
	"fmt"
	"strconv"

	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/parser"
)

// ComplexityConfig defines configuration for query complexity analysis
type ComplexityConfig struct {
	MaxComplexity    int // Maximum allowed complexity score
	DefaultListLimit int // Assumed length of lists without an explicit limit
}

// ValidateComplexityConfig validates the complexity configuration and fills defaults
func ValidateComplexityConfig(config *ComplexityConfig) error {
	if config.MaxComplexity <= 0 {
		return fmt.Errorf("max complexity must be greater than 0, got %d", config.MaxComplexity)
	}
	if config.DefaultListLimit <= 0 {
		config.DefaultListLimit = 100
	}
	return nil
}

// listFields are the schema fields that return lists of objects
var listFields = map[string]bool{
	"zones":       true,
	"nodes":       true,
	"segments":    true,
	"alerts":      true,
	"leakCases":   true,
	"cases":       true,
	"boundary":    true,
	"incident":    true,
	"reachable":   true,
	"isolatedBy":  true,
	"endpoints":   true,
	"sensors":     true,
	"periods":     true,
	"annotations": true,
	"history":     true,
}

// calculateQueryComplexity calculates the complexity score of a GraphQL query
func calculateQueryComplexity(document *ast.Document, config *ComplexityConfig, variableValues map[string]any) int {
	frags := fragments(document)
	total := 0
	for _, definition := range document.Definitions {
		if def, ok := definition.(*ast.OperationDefinition); ok {
			total += calculateSelectionSetComplexity(def.SelectionSet, config, variableValues, 1, frags, map[string]bool{})
		}
	}
	return total
}

// calculateSelectionSetComplexity recursively calculates complexity of a
// selection set. Every leaf costs the product of the list sizes above it.
func calculateSelectionSetComplexity(selectionSet *ast.SelectionSet, config *ComplexityConfig, variableValues map[string]any, multiplier int, frags map[string]*ast.FragmentDefinition, expanding map[string]bool) int {
	if selectionSet == nil {
		return 0
	}

	complexity := 0
	for _, selection := range selectionSet.Selections {
		switch sel := selection.(type) {
		case *ast.Field:
			if isIntrospectionField(sel.Name.Value) {
				complexity++
				continue
			}
			if sel.SelectionSet == nil {
				complexity += multiplier
				continue
			}
			fieldMultiplier := multiplier
			if listFields[sel.Name.Value] {
				fieldMultiplier = multiplier * extractLimitFromArguments(sel.Arguments, variableValues, config.DefaultListLimit)
			}
			complexity += calculateSelectionSetComplexity(sel.SelectionSet, config, variableValues, fieldMultiplier, frags, expanding)

		case *ast.InlineFragment:
			complexity += calculateSelectionSetComplexity(sel.SelectionSet, config, variableValues, multiplier, frags, expanding)

		case *ast.FragmentSpread:
			name := sel.Name.Value
			frag, ok := frags[name]
			if !ok || expanding[name] {
				complexity += multiplier
				continue
			}
			expanding[name] = true
			complexity += calculateSelectionSetComplexity(frag.SelectionSet, config, variableValues, multiplier, frags, expanding)
			delete(expanding, name)
		}
	}
	return complexity
}

// extractLimitFromArguments extracts the limit value from field arguments
func extractLimitFromArguments(arguments []*ast.Argument, variableValues map[string]any, defaultLimit int) int {
	for _, arg := range arguments {
		if arg.Name.Value != "limit" {
			continue
		}
		switch value := arg.Value.(type) {
		case *ast.IntValue:
			if limit, err := strconv.Atoi(value.Value); err == nil && limit >= 0 {
				return max(limit, 1)
			}
		case *ast.Variable:
			switch limit := variableValues[value.Name.Value].(type) {
			case int:
				if limit >= 0 {
					return max(limit, 1)
				}
			case float64:
				// JSON-decoded variables arrive as float64
				if limit >= 0 {
					return max(int(limit), 1)
				}
			}
		}
	}
	return defaultLimit
}

// ValidateQueryComplexity validates a query against the complexity limit
func ValidateQueryComplexity(query string, config *ComplexityConfig, variableValues map[string]any) (int, error) {
	document, err := parser.Parse(parser.ParseParams{Source: query})
	if err != nil {
		return 0, fmt.Errorf("failed to parse query: %w", err)
	}
	return checkComplexity(document, config, variableValues)
}

func checkComplexity(document *ast.Document, config *ComplexityConfig, variableValues map[string]any) (int, error) {
	score := calculateQueryComplexity(document, config, variableValues)
	if score > config.MaxComplexity {
		return score, fmt.Errorf("query complexity %d exceeds maximum allowed complexity %d", score, config.MaxComplexity)
	}
	return score, nil
}
