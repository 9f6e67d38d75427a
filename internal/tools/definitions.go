package tools

import "github.com/ncbimcp/ncbimcp/internal/core"

func historyParams() []Parameter {
	return []Parameter{
		{Name: "webenv", Type: TypeString, Description: "Web environment from history server", Local: true},
		{Name: "query_key", Type: TypeInteger, Description: "Query key from history server", Local: true},
	}
}

var catalog = []Tool{
	{
		Name:        string(core.OperationSearch),
		Description: "Search NCBI databases for records matching a query",
		Group:       GroupEUtilities,
		Operation:   core.OperationSearch,
		Parameters: []Parameter{
			{Name: "db", Type: TypeString, Description: "Database name (e.g., pubmed, protein, nuccore, gene)"},
			{Name: "term", Type: TypeString, Description: "Search query (e.g., 'cancer therapy', 'insulin[protein]')"},
			{Name: "retmax", Type: TypeInteger, Description: "Maximum number of results to return (default: 20, max: 10000)", Default: 20},
			{Name: "retstart", Type: TypeInteger, Description: "Starting index for results (default: 0)", Default: 0},
			{Name: "sort", Type: TypeString, Description: "Sort order (e.g., relevance, pub_date, author)"},
			{Name: "field", Type: TypeString, Description: "Search field to limit search (e.g., title, author)"},
			{Name: "datetype", Type: TypeString, Description: "Date type for date range (pdat, mdat, edat)"},
			{Name: "reldate", Type: TypeInteger, Description: "Days back from today for search"},
			{Name: "mindate", Type: TypeString, Description: "Start date (YYYY/MM/DD format)"},
			{Name: "maxdate", Type: TypeString, Description: "End date (YYYY/MM/DD format)"},
			{Name: "usehistory", Type: TypeBoolean, Description: "Store results on history server for large datasets", Default: false},
			{Name: "retmode", Type: TypeString, Description: "Return mode (json or xml)", Default: "json"},
		},
		Required: []string{"db", "term"},
	},
	{
		Name:        string(core.OperationFetch),
		Description: "Retrieve full records from NCBI databases by ID",
		Group:       GroupEUtilities,
		Operation:   core.OperationFetch,
		Parameters: append([]Parameter{
			{Name: "db", Type: TypeString, Description: "Database name"},
			{Name: "id_list", Type: TypeArray, Description: "List of record IDs to fetch", Wire: "id"},
			{Name: "rettype", Type: TypeString, Description: "Retrieval type (abstract, fasta, gb, docsum, etc.)"},
			{Name: "retmode", Type: TypeString, Description: "Retrieval mode (xml, text, json)", Default: "xml"},
			{Name: "retstart", Type: TypeInteger, Description: "Starting index"},
			{Name: "retmax", Type: TypeInteger, Description: "Maximum records to fetch"},
			{Name: "strand", Type: TypeInteger, Description: "DNA strand (1 or 2)"},
			{Name: "seq_start", Type: TypeInteger, Description: "Sequence start position"},
			{Name: "seq_stop", Type: TypeInteger, Description: "Sequence stop position"},
		}, historyParams()...),
		Required: []string{"db"},
		AnyOf:    [][]string{{"db", "id_list"}, {"db", "webenv"}},
	},
	{
		Name:        string(core.OperationSummary),
		Description: "Get document summaries with key metadata for records",
		Group:       GroupEUtilities,
		Operation:   core.OperationSummary,
		Parameters: append([]Parameter{
			{Name: "db", Type: TypeString, Description: "Database name"},
			{Name: "id_list", Type: TypeArray, Description: "List of record IDs", Wire: "id"},
			{Name: "version", Type: TypeString, Description: "ESummary version (1.0 or 2.0)", Default: "1.0"},
			{Name: "retstart", Type: TypeInteger, Description: "Starting index"},
			{Name: "retmax", Type: TypeInteger, Description: "Maximum records to return"},
			{Name: "retmode", Type: TypeString, Description: "Return mode (json or xml)", Default: "json"},
		}, historyParams()...),
		Required: []string{"db"},
		AnyOf:    [][]string{{"db", "id_list"}, {"db", "webenv"}},
	},
	{
		Name:        string(core.OperationPost),
		Description: "Upload ID lists to NCBI history server for efficient batch processing",
		Group:       GroupEUtilities,
		Operation:   core.OperationPost,
		Parameters: []Parameter{
			{Name: "db", Type: TypeString, Description: "Database name"},
			{Name: "id_list", Type: TypeArray, Description: "List of record IDs to post", Wire: "id"},
			{Name: "webenv", Type: TypeString, Description: "Existing web environment to append to", Wire: "WebEnv"},
		},
		Required: []string{"db", "id_list"},
	},
	{
		Name:        string(core.OperationLink),
		Description: "Find related records across NCBI databases",
		Group:       GroupEUtilities,
		Operation:   core.OperationLink,
		Parameters: append([]Parameter{
			{Name: "dbfrom", Type: TypeString, Description: "Source database name"},
			{Name: "db", Type: TypeString, Description: "Target database name"},
			{Name: "id_list", Type: TypeArray, Description: "List of source record IDs", Wire: "id"},
			{Name: "cmd", Type: TypeString, Description: "Link command (neighbor, neighbor_score, etc.)", Default: "neighbor"},
			{Name: "linkname", Type: TypeString, Description: "Specific link type"},
			{Name: "term", Type: TypeString, Description: "Filter term for linked results"},
			{Name: "holding", Type: TypeString, Description: "Holding library"},
			{Name: "retmode", Type: TypeString, Description: "Return mode (json or xml)", Default: "json"},
		}, historyParams()...),
		Required: []string{"dbfrom", "db"},
		AnyOf:    [][]string{{"dbfrom", "db", "id_list"}, {"dbfrom", "db", "webenv"}},
	},
	{
		Name:        string(core.OperationInfo),
		Description: "Get information about NCBI databases and search fields",
		Group:       GroupEUtilities,
		Operation:   core.OperationInfo,
		Parameters: []Parameter{
			{Name: "db", Type: TypeString, Description: "Database name (omit to get list of all databases)"},
			{Name: "retmode", Type: TypeString, Description: "Return mode (xml or json)", Default: "json"},
		},
	},
	{
		Name:        string(core.OperationGlobalQuery),
		Description: "Search all NCBI databases simultaneously with a single query",
		Group:       GroupEUtilities,
		Operation:   core.OperationGlobalQuery,
		Parameters: []Parameter{
			{Name: "term", Type: TypeString, Description: "Search term to query across all databases"},
		},
		Required: []string{"term"},
	},
	{
		Name:        string(core.OperationSpell),
		Description: "Get spelling suggestions for search terms",
		Group:       GroupEUtilities,
		Operation:   core.OperationSpell,
		Parameters: []Parameter{
			{Name: "db", Type: TypeString, Description: "Database name"},
			{Name: "term", Type: TypeString, Description: "Search term to check spelling"},
		},
		Required: []string{"db", "term"},
	},
	{
		Name:        string(core.OperationCitMatch),
		Description: "Match citations to PubMed IDs",
		Group:       GroupEUtilities,
		Operation:   core.OperationCitMatch,
		Parameters: []Parameter{
			{Name: "citations", Type: TypeArray, Description: "List of citation strings in NCBI format (journal|year|volume|first page|author|key|)", Wire: "bdata", Separator: "\r"},
			{Name: "db", Type: TypeString, Description: "Database (usually pubmed)", Default: "pubmed"},
			{Name: "retmode", Type: TypeString, Description: "Return mode", Default: "xml"},
		},
		Required: []string{"citations"},
	},
	{
		Name:        core.ToolSearchAndFetch,
		Description: "Combined search and fetch operation for common workflows",
		Group:       GroupHelpers,
		Parameters: []Parameter{
			{Name: "db", Type: TypeString, Description: "Database name"},
			{Name: "term", Type: TypeString, Description: "Search query"},
			{Name: "retmax", Type: TypeInteger, Description: "Maximum results to search and fetch", Default: 10, Local: true},
			{Name: "rettype", Type: TypeString, Description: "Fetch retrieval type", Default: "abstract"},
			{Name: "retmode", Type: TypeString, Description: "Fetch retrieval mode", Default: "text"},
		},
		Required: []string{"db", "term"},
	},
	{
		Name:        core.ToolGetDatabases,
		Description: "Get list of all available NCBI databases",
		Group:       GroupHelpers,
	},
	{
		Name:        core.ToolServerInfo,
		Description: "Get information about the NCBI-MCP server, its capabilities and the limits in effect",
		Group:       GroupHelpers,
	},
}
