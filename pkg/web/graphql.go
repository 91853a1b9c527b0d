package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/alim08/tradesite/pkg/display"
	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"
)

// graphQLRequest is the body of POST /graphql.
type graphQLRequest struct {
	Query         string                 `json:"query"`
	OperationName string                 `json:"operationName"`
	Variables     map[string]interface{} `json:"variables"`
}

// createSchema builds the read-only schema over the mounted displays.
func createSchema(displays map[string]*display.Display) (graphql.Schema, error) {
	timestampType := graphql.NewScalar(graphql.ScalarConfig{
		Name:        "Timestamp",
		Description: "RFC 3339 timestamp",
		Serialize: func(value interface{}) interface{} {
			switch v := value.(type) {
			case time.Time:
				if v.IsZero() {
					return nil
				}
				return v.Format(time.RFC3339)
			case int64:
				return time.Unix(v, 0).UTC().Format(time.RFC3339)
			default:
				return nil
			}
		},
		ParseValue: func(value interface{}) interface{} {
			return value
		},
		ParseLiteral: func(valueAST ast.Value) interface{} {
			return nil // timestamps are output only
		},
	})

	logoType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Logo",
		Fields: graphql.Fields{
			"src":      &graphql.Field{Type: graphql.String},
			"alt":      &graphql.Field{Type: graphql.String},
			"badge":    &graphql.Field{Type: graphql.String},
			"fallback": &graphql.Field{Type: graphql.Boolean},
		},
	})

	quoteType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Quote",
		Fields: graphql.Fields{
			"symbol":       &graphql.Field{Type: graphql.String},
			"name":         &graphql.Field{Type: graphql.String},
			"price":        &graphql.Field{Type: graphql.Float},
			"change":       &graphql.Field{Type: graphql.Float},
			"volume":       &graphql.Field{Type: graphql.String},
			"priceText":    &graphql.Field{Type: graphql.String},
			"changeText":   &graphql.Field{Type: graphql.String},
			"movementText": &graphql.Field{Type: graphql.String},
			"up":           &graphql.Field{Type: graphql.Boolean},
			"logo":         &graphql.Field{Type: logoType},
		},
	})

	statusType := graphql.NewObject(graphql.ObjectConfig{
		Name: "DisplayStatus",
		Fields: graphql.Fields{
			"view":      &graphql.Field{Type: graphql.String},
			"status":    &graphql.Field{Type: graphql.String},
			"error":     &graphql.Field{Type: graphql.String},
			"errorKey":  &graphql.Field{Type: graphql.String},
			"quotes":    &graphql.Field{Type: graphql.Int},
			"updatedAt": &graphql.Field{Type: timestampType},
			// Symbols showing the fallback badge instead of their logo.
			"failedLogos": &graphql.Field{Type: graphql.NewList(graphql.String)},
		},
	})

	viewArgs := graphql.FieldConfigArgument{
		"view": &graphql.ArgumentConfig{
			Type: graphql.NewNonNull(graphql.String),
		},
	}
	lookup := func(p graphql.ResolveParams) (*display.Display, error) {
		name, _ := p.Args["view"].(string)
		d, ok := displays[name]
		if !ok {
			return nil, fmt.Errorf("unknown view %q", name)
		}
		return d, nil
	}

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"views": &graphql.Field{
				Type: graphql.NewList(graphql.String),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					names := make([]string, 0, len(displays))
					for name := range displays {
						names = append(names, name)
					}
					sort.Strings(names)
					return names, nil
				},
			},
			"quotes": &graphql.Field{
				Type: graphql.NewList(quoteType),
				Args: viewArgs,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					d, err := lookup(p)
					if err != nil {
						return nil, err
					}
					v := d.View()
					out := make([]map[string]interface{}, 0, len(v.Quotes))
					for _, q := range v.Quotes {
						out = append(out, quoteFields(q))
					}
					return out, nil
				},
			},
			"status": &graphql.Field{
				Type: statusType,
				Args: viewArgs,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					d, err := lookup(p)
					if err != nil {
						return nil, err
					}
					v := d.View()
					failed := d.FailedLogos()
					if failed == nil {
						failed = []string{}
					}
					return map[string]interface{}{
						"view":        v.Name,
						"status":      string(v.Status),
						"error":       v.Error,
						"errorKey":    v.ErrorKey,
						"quotes":      len(v.Quotes),
						"updatedAt":   v.UpdatedAt,
						"failedLogos": failed,
					}, nil
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{Query: queryType})
}

func quoteFields(q display.QuoteView) map[string]interface{} {
	return map[string]interface{}{
		"symbol":       q.Symbol,
		"name":         q.Name,
		"price":        q.Price,
		"change":       q.Change,
		"volume":       q.Volume,
		"priceText":    q.PriceText,
		"changeText":   q.ChangeText,
		"movementText": q.MovementText,
		"up":           q.Up,
		"logo": map[string]interface{}{
			"src":      q.Logo.Src,
			"alt":      q.Logo.Alt,
			"badge":    q.Logo.Badge,
			"fallback": q.Logo.Fallback,
		},
	}
}

// graphQLHandler executes GET ?query= and POST JSON requests.
func (s *Server) graphQLHandler(w http.ResponseWriter, r *http.Request) {
	var req graphQLRequest
	switch r.Method {
	case http.MethodGet:
		req.Query = r.URL.Query().Get("query")
		req.OperationName = r.URL.Query().Get("operationName")
	default:
		r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid GraphQL request body")
			return
		}
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "Missing query")
		return
	}

	result := graphql.Do(graphql.Params{
		Schema:         s.schema,
		RequestString:  req.Query,
		VariableValues: req.Variables,
		OperationName:  req.OperationName,
		Context:        r.Context(),
	})
	writeJSON(w, http.StatusOK, result)
}
