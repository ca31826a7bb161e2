package control

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Client calls a SessionService over Connect.
type Client struct {
	createSession *connect.Client[wrapperspb.StringValue, structpb.Struct]
	getSession    *connect.Client[wrapperspb.StringValue, structpb.Struct]
	listSessions  *connect.Client[emptypb.Empty, structpb.ListValue]
	deleteSession *connect.Client[wrapperspb.StringValue, emptypb.Empty]
	fetchHistory  *connect.Client[structpb.Struct, structpb.ListValue]
	validateQuery *connect.Client[wrapperspb.StringValue, structpb.Struct]
	queryHistory  *connect.Client[wrapperspb.StringValue, structpb.ListValue]

	schemaInfo       *connect.Client[wrapperspb.StringValue, structpb.Struct]
	quickInsights    *connect.Client[wrapperspb.StringValue, structpb.Struct]
	querySuggestions *connect.Client[structpb.Struct, structpb.ListValue]
}

// NewClient creates a client for the service at baseURL, for example
// "http://localhost:8080".
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	baseURL = strings.TrimRight(baseURL, "/")

	return &Client{
		createSession: connect.NewClient[wrapperspb.StringValue, structpb.Struct](httpClient, baseURL+CreateSessionProcedure, opts...),
		getSession:    connect.NewClient[wrapperspb.StringValue, structpb.Struct](httpClient, baseURL+GetSessionProcedure, opts...),
		listSessions:  connect.NewClient[emptypb.Empty, structpb.ListValue](httpClient, baseURL+ListSessionsProcedure, opts...),
		deleteSession: connect.NewClient[wrapperspb.StringValue, emptypb.Empty](httpClient, baseURL+DeleteSessionProcedure, opts...),
		fetchHistory:  connect.NewClient[structpb.Struct, structpb.ListValue](httpClient, baseURL+FetchHistoryProcedure, opts...),
		validateQuery: connect.NewClient[wrapperspb.StringValue, structpb.Struct](httpClient, baseURL+ValidateQueryProcedure, opts...),
		queryHistory:  connect.NewClient[wrapperspb.StringValue, structpb.ListValue](httpClient, baseURL+QueryHistoryProcedure, opts...),

		schemaInfo:       connect.NewClient[wrapperspb.StringValue, structpb.Struct](httpClient, baseURL+SchemaInfoProcedure, opts...),
		quickInsights:    connect.NewClient[wrapperspb.StringValue, structpb.Struct](httpClient, baseURL+QuickInsightsProcedure, opts...),
		querySuggestions: connect.NewClient[structpb.Struct, structpb.ListValue](httpClient, baseURL+QuerySuggestionsProcedure, opts...),
	}
}

func (c *Client) CreateSession(ctx context.Context, title string) (map[string]any, error) {
	res, err := c.createSession.CallUnary(ctx, connect.NewRequest(wrapperspb.String(title)))
	if err != nil {
		return nil, err
	}
	return res.Msg.AsMap(), nil
}

func (c *Client) GetSession(ctx context.Context, id string) (map[string]any, error) {
	res, err := c.getSession.CallUnary(ctx, connect.NewRequest(wrapperspb.String(id)))
	if err != nil {
		return nil, err
	}
	return res.Msg.AsMap(), nil
}

func (c *Client) ListSessions(ctx context.Context) ([]any, error) {
	res, err := c.listSessions.CallUnary(ctx, connect.NewRequest(&emptypb.Empty{}))
	if err != nil {
		return nil, err
	}
	return res.Msg.AsSlice(), nil
}

func (c *Client) DeleteSession(ctx context.Context, id string) error {
	_, err := c.deleteSession.CallUnary(ctx, connect.NewRequest(wrapperspb.String(id)))
	return err
}

func (c *Client) FetchHistory(ctx context.Context, id string, offset, limit int) ([]any, error) {
	req, err := structpb.NewStruct(map[string]any{
		"session_id": id,
		"offset":     offset,
		"limit":      limit,
	})
	if err != nil {
		return nil, err
	}
	res, err := c.fetchHistory.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return res.Msg.AsSlice(), nil
}

// ValidateQuery returns whether statement is safe and the checker's
// explanation.
func (c *Client) ValidateQuery(ctx context.Context, statement string) (bool, string, error) {
	res, err := c.validateQuery.CallUnary(ctx, connect.NewRequest(wrapperspb.String(statement)))
	if err != nil {
		return false, "", err
	}
	return res.Msg.GetFields()["safe"].GetBoolValue(), stringField(res.Msg, "message"), nil
}

func (c *Client) QueryHistory(ctx context.Context, id string) ([]any, error) {
	res, err := c.queryHistory.CallUnary(ctx, connect.NewRequest(wrapperspb.String(id)))
	if err != nil {
		return nil, err
	}
	return res.Msg.AsSlice(), nil
}

func (c *Client) SchemaInfo(ctx context.Context, source string) (map[string]any, error) {
	res, err := c.schemaInfo.CallUnary(ctx, connect.NewRequest(wrapperspb.String(source)))
	if err != nil {
		return nil, err
	}
	return res.Msg.AsMap(), nil
}

func (c *Client) QuickInsights(ctx context.Context, source string) (map[string]any, error) {
	res, err := c.quickInsights.CallUnary(ctx, connect.NewRequest(wrapperspb.String(source)))
	if err != nil {
		return nil, err
	}
	return res.Msg.AsMap(), nil
}

// QuerySuggestions returns up to limit questions for source, optionally
// about focus.
func (c *Client) QuerySuggestions(ctx context.Context, source, focus string, limit int) ([]string, error) {
	req, err := structpb.NewStruct(map[string]any{
		"source": source,
		"focus":  focus,
		"limit":  limit,
	})
	if err != nil {
		return nil, err
	}
	res, err := c.querySuggestions.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(res.Msg.GetValues()))
	for _, v := range res.Msg.GetValues() {
		out = append(out, v.GetStringValue())
	}
	return out, nil
}

// WithToken sends token as a bearer credential on every call.
func WithToken(token string) connect.ClientOption {
	return connect.WithInterceptors(connect.UnaryInterceptorFunc(func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if token != "" {
				req.Header().Set("Authorization", "Bearer "+token)
			}
			return next(ctx, req)
		}
	}))
}
