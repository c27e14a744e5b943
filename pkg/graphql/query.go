package graphql

import (
	"context"
	"errors"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/gqlerrors"
	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/parser"
)

// Request is a GraphQL operation as sent by clients
type Request struct {
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables,omitempty"`
	OperationName string         `json:"operationName,omitempty"`
}

// Limits bounds the cost of an operation before it runs
type Limits struct {
	MaxDepth   int
	Complexity ComplexityConfig
}

// DefaultLimits returns the query limits used by the API server
func DefaultLimits() Limits {
	return Limits{
		MaxDepth:   8,
		Complexity: ComplexityConfig{MaxComplexity: 100000, DefaultListLimit: 100},
	}
}

var errSubscriptionOverHTTP = errors.New("subscriptions must use the stream endpoint")

func failed(err error) *graphql.Result {
	return &graphql.Result{Errors: []gqlerrors.FormattedError{gqlerrors.FormatError(err)}}
}

// check parses the request and enforces the depth and complexity limits
func (l Limits) check(req Request) (*ast.Document, error) {
	document, err := parser.Parse(parser.ParseParams{Source: req.Query})
	if err != nil {
		return nil, err
	}
	if l.MaxDepth > 0 {
		if err := checkDepth(document, l.MaxDepth); err != nil {
			return nil, err
		}
	}
	if l.Complexity.MaxComplexity > 0 {
		if _, err := checkComplexity(document, &l.Complexity, req.Variables); err != nil {
			return nil, err
		}
	}
	return document, nil
}

func isSubscription(document *ast.Document, name string) bool {
	for _, def := range document.Definitions {
		op, ok := def.(*ast.OperationDefinition)
		if !ok || (name != "" && (op.Name == nil || op.Name.Value != name)) {
			continue
		}
		return op.Operation == ast.OperationTypeSubscription
	}
	return false
}

// Execute runs a query or mutation after checking it against the limits
func Execute(ctx context.Context, schema graphql.Schema, req Request, limits Limits) *graphql.Result {
	document, err := limits.check(req)
	if err != nil {
		return failed(err)
	}
	if isSubscription(document, req.OperationName) {
		return failed(errSubscriptionOverHTTP)
	}
	return graphql.Do(graphql.Params{
		Schema:         schema,
		RequestString:  req.Query,
		VariableValues: req.Variables,
		OperationName:  req.OperationName,
		Context:        ctx,
	})
}

// Subscribe runs a subscription until ctx is cancelled. The returned
// channel yields one result per matching event and is closed when the
// subscription ends.
func Subscribe(ctx context.Context, schema graphql.Schema, req Request, limits Limits) <-chan *graphql.Result {
	if _, err := limits.check(req); err != nil {
		out := make(chan *graphql.Result, 1)
		out <- failed(err)
		close(out)
		return out
	}
	src := graphql.Subscribe(graphql.Params{
		Schema:         schema,
		RequestString:  req.Query,
		VariableValues: req.Variables,
		OperationName:  req.OperationName,
		Context:        ctx,
	})
	out := make(chan *graphql.Result)
	go func() {
		defer close(out)
		for res := range src {
			select {
			case out <- res:
			case <-ctx.Done():
				// drain until the executor notices the cancellation
			}
		}
	}()
	return out
}
