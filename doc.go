// Package fosrc is a chat assistant for the Federal Open Science Repository
// of Canada (FOSRC).
//
// A user question goes to a language model together with three tools: one
// counts matching repository items, one lists them, and one answers from
// indexed document text. The model may call tools any number of times; the
// results are fed back until it produces a final answer or the iteration cap
// is reached. Long conversations are folded into a rolling summary so the
// prompt stays bounded.
//
// # Quick Start
//
//	export OPENAI_API_KEY=sk-...
//	export FOSRC_SERVER_LINK=https://open-science.canada.ca
//	fosrc ask "How many publications about coral reefs?"
//
// Or with a config file:
//
//	llm:
//	  provider: openai
//	  model: gpt-4o-mini
//	  api_key: ${OPENAI_API_KEY}
//	catalog:
//	  server: https://open-science.canada.ca
//	vector:
//	  type: pinecone
//	  index: pdf-index
//	  pinecone:
//	    api_key: ${PINECONE_API_KEY}
//
//	fosrc serve --config fosrc.yaml --watch
//
// # Packages
//
//   - pkg/tool: tool registry, schemas and argument validation
//   - pkg/catalog, pkg/retrieval: repository search and vector retrieval
//   - pkg/agent: the tool-dispatch loop
//   - pkg/memory: rolling-summary compaction
//   - pkg/conversation: sessions
//   - pkg/ingest: document summary, citation, ingestion and site crawling
//   - pkg/server, pkg/mcpserver: HTTP API and MCP tool server
//   - pkg/auth, pkg/ratelimit: JWT auth and per-client quotas for the API
package fosrc
