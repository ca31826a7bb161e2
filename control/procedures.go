// Package control is the operator surface: session administration over
// Connect RPC and the HTTP router that mounts it next to the WebSocket
// endpoint, metrics and health checks.
//
// Procedures use protobuf well-known types, so any Connect, gRPC or
// gRPC-Web client can call them without generated stubs:
//
//	curl -H 'Content-Type: application/json' -d '"my chat"' \
//	    localhost:8080/chatstream.v1.SessionService/CreateSession
package control

const ServiceName = "chatstream.v1.SessionService"

const (
	CreateSessionProcedure = "/" + ServiceName + "/CreateSession"
	GetSessionProcedure    = "/" + ServiceName + "/GetSession"
	ListSessionsProcedure  = "/" + ServiceName + "/ListSessions"
	DeleteSessionProcedure = "/" + ServiceName + "/DeleteSession"
	FetchHistoryProcedure  = "/" + ServiceName + "/FetchHistory"
	ValidateQueryProcedure = "/" + ServiceName + "/ValidateQuery"
	QueryHistoryProcedure  = "/" + ServiceName + "/QueryHistory"

	SchemaInfoProcedure       = "/" + ServiceName + "/SchemaInfo"
	QuickInsightsProcedure    = "/" + ServiceName + "/QuickInsights"
	QuerySuggestionsProcedure = "/" + ServiceName + "/QuerySuggestions"
)
