// Package api defines the JSON shapes of the recipe chat HTTP API.
//
// # Endpoints
//
//	POST /api/v1/chat          ChatRequest  -> ChatResponse
//	POST /api/v1/chat/stream   ChatRequest  -> text/event-stream of StreamEvent
//	GET  /api/v1/chat/ws       websocket; first frame ChatRequest, then StreamEvent frames
//	POST /api/v1/docs/query    DocsQueryRequest -> DocsQueryResponse
//	POST /api/v1/tuners        TunersRequest -> TunersResponse
//	GET  /api/v1/turns         TurnsResponse for the authenticated caller
//	GET  /health, /ready, /version
//
// # Authentication
//
// When API keys are configured, requests carry them in the X-API-Key header.
// When a JWT secret or public key is configured, requests carry
// "Authorization: Bearer <token>" instead. Health endpoints are never
// authenticated.
//
// # Configuration overlay
//
// The optional "config" object of a request is decoded over the server's
// default retrieval config, so a client only sends the fields it changes:
//
//	{"prompt": "vegan curry", "config": {"retriever": "reranker", "reranker_top_n": 3}}
package api
