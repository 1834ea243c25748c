package tracing

// Common span attribute keys.
const (
	AttrHTTPHost       = "http.host"
	AttrHTTPMethod     = "http.method"
	AttrHTTPPath       = "http.path"
	AttrHTTPRoute      = "http.route"
	AttrHTTPURL        = "http.url"
	AttrHTTPStatusCode = "http.status_code"
	AttrHTTPUserAgent  = "http.user_agent"

	AttrRPCSystem = "rpc.system"
	AttrRPCMethod = "rpc.method"
	AttrRPCCode   = "rpc.grpc.status_code"
	AttrRequestID = "request.id"
	AttrErrorType = "error.type"
	AttrCancelled = "request.cancelled"
	AttrStreaming = "rpc.streaming"
	AttrPeerAddr  = "net.peer.addr"
)
