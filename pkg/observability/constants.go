package observability

// Span names.
const (
	SpanTurn          = "fosrc.turn"
	SpanLLMRequest    = "fosrc.llm_request"
	SpanToolExecution = "fosrc.tool_execution"
	SpanCatalogSearch = "fosrc.catalog_search"
	SpanVectorSearch  = "fosrc.vector_search"
	SpanCompaction    = "fosrc.compaction"
	SpanIngest        = "fosrc.ingest"
	SpanHTTPRequest   = "http.request"
)

// Attribute keys.
const (
	AttrSessionID  = "fosrc.session_id"
	AttrIteration  = "fosrc.iteration"
	AttrToolName   = "fosrc.tool.name"
	AttrToolCallID = "fosrc.tool.call_id"
	AttrLLMModel   = "gen_ai.request.model"
	AttrLLMInput   = "gen_ai.usage.input_tokens"
	AttrLLMOutput  = "gen_ai.usage.output_tokens"
	AttrFinish     = "gen_ai.response.finish_reason"
	AttrBackend    = "fosrc.backend"
	AttrStatusCode = "http.response.status_code"
	AttrResults    = "fosrc.results"
	AttrHTTPMethod = "http.request.method"
	AttrHTTPRoute  = "http.route"

	DefaultServiceName = "fosrc"
)
