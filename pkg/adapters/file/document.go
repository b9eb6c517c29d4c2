package file

// GraphDocument is the file form of a graph.
type GraphDocument struct {
	ID     string         `json:"id" mapstructure:"id"`
	Title  string         `json:"title" mapstructure:"title"`
	Meta   map[string]any `json:"meta" mapstructure:"meta"`
	Layout []NodeDocument `json:"layout" mapstructure:"layout"`
}

// NodeDocument is the file form of a node. Link holds a node id, a
// LinkDocument, or a list of either; nil links the node to the next one in
// the layout.
type NodeDocument struct {
	ID    string         `json:"id" mapstructure:"id"`
	Type  string         `json:"type" mapstructure:"type"`
	Title string         `json:"title" mapstructure:"title"`
	Meta  map[string]any `json:"meta" mapstructure:"meta"`
	Task  string         `json:"task" mapstructure:"task"`
	When  string         `json:"when" mapstructure:"when"`
	Link  any            `json:"link" mapstructure:"link"`
}

// LinkDocument is the object form of a link.
type LinkDocument struct {
	NextID string `json:"nextId" mapstructure:"nextId"`
	Title  string `json:"title" mapstructure:"title"`
	When   string `json:"when" mapstructure:"when"`
	// Condition is accepted as an alias of When.
	Condition string `json:"condition" mapstructure:"condition"`
	Priority  int    `json:"priority" mapstructure:"priority"`
}
