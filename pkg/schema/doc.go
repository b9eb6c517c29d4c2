// Package schema validates graph documents before they are decoded.
//
// A graph document is the generic form of a graph file (YAML or JSON decoded
// into maps and slices). It is checked against an embedded JSON Schema, and
// every violation is reported as a ValidationError inside an
// AggregateError:
//
//	var doc map[string]any
//	_ = yaml.Unmarshal(data, &doc)
//	if err := schema.ValidateGraph(doc); err != nil {
//	    for _, e := range schema.ValidationErrors(err) {
//	        fmt.Println(e)
//	    }
//	}
//
// Structural rules a schema cannot express (a single start node, links to
// existing nodes) are enforced later by domain.NewGraph.
package schema
