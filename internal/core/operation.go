package core

// Operation identifies one of the nine E-utilities request kinds.
type Operation string

const (
	OperationSearch      Operation = "esearch"
	OperationFetch       Operation = "efetch"
	OperationSummary     Operation = "esummary"
	OperationPost        Operation = "epost"
	OperationLink        Operation = "elink"
	OperationInfo        Operation = "einfo"
	OperationGlobalQuery Operation = "egquery"
	OperationSpell       Operation = "espell"
	OperationCitMatch    Operation = "ecitmatch"
)

// Composite and local tool names handled by the dispatcher on top of the primitives.
const (
	ToolSearchAndFetch = "search_and_fetch"
	ToolGetDatabases   = "get_databases"
	ToolServerInfo     = "server_info"
)

// Operations lists the primitive operations in catalog order.
var Operations = []Operation{
	OperationSearch,
	OperationFetch,
	OperationSummary,
	OperationPost,
	OperationLink,
	OperationInfo,
	OperationGlobalQuery,
	OperationSpell,
	OperationCitMatch,
}

// Path returns the endpoint path segment for the operation.
func (o Operation) Path() string {
	return string(o) + ".fcgi"
}

// UsesHistory reports whether the operation can consume a history session.
func (o Operation) UsesHistory() bool {
	switch o {
	case OperationFetch, OperationSummary, OperationLink:
		return true
	default:
		return false
	}
}

// CreatesHistory reports whether the operation can produce a history session.
func (o Operation) CreatesHistory() bool {
	return o == OperationSearch || o == OperationPost
}
