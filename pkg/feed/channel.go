package feed

// Table names carried on the change feed.
const (
	TableNodes    = "nodes"
	TableEdges    = "edges"
	TableMessages = "messages"
)

// Binding subscribes to one table, filtered to rows whose Column equals
// Value.
type Binding struct {
	Table  string `json:"table"`
	Column string `json:"column"`
	Value  string `json:"value"`
}

// Channel is a named set of bindings opened as one subscription.
type Channel struct {
	Name     string    `json:"name"`
	Bindings []Binding `json:"bindings"`
}

// TreeChannel binds the nodes and edges of one tree.
func TreeChannel(graphID string) Channel {
	return Channel{
		Name: "tree:" + graphID,
		Bindings: []Binding{
			{Table: TableNodes, Column: "graph_id", Value: graphID},
			{Table: TableEdges, Column: "graph_id", Value: graphID},
		},
	}
}

// ConversationChannel binds the messages of one conversation.
func ConversationChannel(conversationID string) Channel {
	return Channel{
		Name: "conversation:" + conversationID,
		Bindings: []Binding{
			{Table: TableMessages, Column: "conversation_id", Value: conversationID},
		},
	}
}

// Binding returns the binding for table.
func (c Channel) Binding(table string) (Binding, bool) {
	for _, b := range c.Bindings {
		if b.Table == table {
			return b, true
		}
	}
	return Binding{}, false
}

// Match reports whether ev belongs to the channel: its table is bound and
// the filter column, where present in the event, has the bound value.
// Delete events often carry only the primary key; those are matched on the
// table alone and rely on the transport's server-side filter.
func (c Channel) Match(ev Event) bool {
	b, ok := c.Binding(ev.Table)
	if !ok {
		return false
	}
	for _, row := range []Row{ev.New, ev.Old} {
		if row.Has(b.Column) {
			return row.String(b.Column) == b.Value
		}
	}
	return true
}
