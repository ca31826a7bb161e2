package control

import (
	"context"
	"net/http"
	"strings"
	"time"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/tailored-agentic-units/chatstream/lookup"
	"github.com/tailored-agentic-units/chatstream/observability"
	"github.com/tailored-agentic-units/chatstream/session"
	"github.com/tailored-agentic-units/chatstream/store"
)

// DefaultHistoryLimit bounds FetchHistory when the caller sets no limit.
const DefaultHistoryLimit = 100

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithManager lets DeleteSession close a live session before removing it.
func WithManager(m *session.Manager) ServiceOption {
	return func(s *Service) { s.manager = m }
}

// WithServiceObserver sets the observer for control events.
func WithServiceObserver(o observability.Observer) ServiceOption {
	return func(s *Service) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithLookups exposes the schema procedures over the sources in reg.
func WithLookups(reg *lookup.Registry) ServiceOption {
	return func(s *Service) { s.lookups = reg }
}

// WithSuggester sets the model that proposes questions for
// QuerySuggestions. Without one, suggestions are derived from table names.
func WithSuggester(c lookup.Completer) ServiceOption {
	return func(s *Service) { s.suggester = c }
}

// Service implements the session administration procedures.
type Service struct {
	store     store.Store
	manager   *session.Manager
	lookups   *lookup.Registry
	suggester lookup.Completer
	observer  observability.Observer
}

func NewService(st store.Store, opts ...ServiceOption) *Service {
	s := &Service{
		store:    st,
		observer: observability.NoOpObserver{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateSession mints a session with the given title, or the default
// title when it is empty.
func (s *Service) CreateSession(ctx context.Context, req *connect.Request[wrapperspb.StringValue]) (*connect.Response[structpb.Struct], error) {
	id := store.NewID()
	rec, err := s.store.CreateOrGetSession(ctx, id, strings.TrimSpace(req.Msg.GetValue()))
	if err != nil {
		return nil, connectError(err)
	}
	return respond(toStruct(rec))
}

func (s *Service) GetSession(ctx context.Context, req *connect.Request[wrapperspb.StringValue]) (*connect.Response[structpb.Struct], error) {
	id, err := requireID(req.Msg.GetValue())
	if err != nil {
		return nil, err
	}
	rec, err := s.store.GetSession(ctx, id)
	if err != nil {
		return nil, connectError(err)
	}
	return respond(toStruct(rec))
}

// ListSessions returns every session, most recently updated first.
func (s *Service) ListSessions(ctx context.Context, _ *connect.Request[emptypb.Empty]) (*connect.Response[structpb.ListValue], error) {
	recs, err := s.store.ListSessions(ctx, 0)
	if err != nil {
		return nil, connectError(err)
	}
	return respond(toList(recs))
}

// DeleteSession closes the session if it is live, then removes it with
// its turns and audit records.
func (s *Service) DeleteSession(ctx context.Context, req *connect.Request[wrapperspb.StringValue]) (*connect.Response[emptypb.Empty], error) {
	id, err := requireID(req.Msg.GetValue())
	if err != nil {
		return nil, err
	}

	if s.manager != nil {
		if live, ok := s.manager.Get(id); ok {
			live.Close("session deleted")
		}
	}

	if err := s.store.DeleteSession(ctx, id); err != nil {
		return nil, connectError(err)
	}

	s.observer.OnEvent(ctx, observability.NewEvent(EventSessionDeleted, observability.LevelInfo, "control.DeleteSession", map[string]any{
		"session_id": id,
	}))
	return connect.NewResponse(&emptypb.Empty{}), nil
}

// FetchHistory pages through a session's turns, oldest first. The request
// carries session_id, limit and offset.
func (s *Service) FetchHistory(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.ListValue], error) {
	id, err := requireID(stringField(req.Msg, "session_id"))
	if err != nil {
		return nil, err
	}
	if _, err := s.store.GetSession(ctx, id); err != nil {
		return nil, connectError(err)
	}

	limit := intField(req.Msg, "limit")
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	turns, err := s.store.ListTurns(ctx, id, max(intField(req.Msg, "offset"), 0), limit)
	if err != nil {
		return nil, connectError(err)
	}
	return respond(toList(turns))
}

// ValidateQuery reports whether a lookup statement would pass the safety
// check.
func (s *Service) ValidateQuery(_ context.Context, req *connect.Request[wrapperspb.StringValue]) (*connect.Response[structpb.Struct], error) {
	safe, message := lookup.CheckSafe(req.Msg.GetValue())
	return respond(structpb.NewStruct(map[string]any{
		"safe":    safe,
		"message": message,
	}))
}

// QueryHistory returns the lookup audit log of a session, newest first.
func (s *Service) QueryHistory(ctx context.Context, req *connect.Request[wrapperspb.StringValue]) (*connect.Response[structpb.ListValue], error) {
	id, err := requireID(req.Msg.GetValue())
	if err != nil {
		return nil, err
	}
	recs, err := s.store.ListQueries(ctx, id, 0)
	if err != nil {
		return nil, connectError(err)
	}
	return respond(toList(recs))
}

// SchemaInfo describes the tables of a lookup source. An empty name selects
// the first source that exposes a schema.
func (s *Service) SchemaInfo(ctx context.Context, req *connect.Request[wrapperspb.StringValue]) (*connect.Response[structpb.Struct], error) {
	schema, err := s.schema(ctx, req.Msg.GetValue())
	if err != nil {
		return nil, err
	}
	return respond(toStruct(schema))
}

// QuickInsights returns row counts for every table of a lookup source.
func (s *Service) QuickInsights(ctx context.Context, req *connect.Request[wrapperspb.StringValue]) (*connect.Response[structpb.Struct], error) {
	name, in, err := s.introspect(req.Msg.GetValue())
	if err != nil {
		return nil, err
	}
	insights, err := in.Insights(ctx)
	if err != nil {
		return nil, connectError(err)
	}
	insights.Source = name
	return respond(toStruct(insights))
}

// QuerySuggestions proposes questions for a source. The request carries
// "source", an optional "focus" topic and "limit". When the model fails or
// none is configured, questions are derived from the table names.
func (s *Service) QuerySuggestions(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.ListValue], error) {
	schema, err := s.schema(ctx, stringField(req.Msg, "source"))
	if err != nil {
		return nil, err
	}
	limit := intField(req.Msg, "limit")

	if s.suggester != nil {
		suggestions, err := lookup.Suggest(ctx, s.suggester, schema, stringField(req.Msg, "focus"), limit)
		if err == nil {
			return respond(toList(suggestions))
		}
		s.observer.OnEvent(ctx, observability.NewEvent(EventSuggestFallback, observability.LevelWarning, "control", map[string]any{
			"source": schema.Source,
			"error":  err.Error(),
		}))
	}
	return respond(toList(lookup.TableSuggestions(schema, limit)))
}

func (s *Service) introspect(name string) (string, lookup.Introspector, error) {
	if s.lookups == nil {
		return "", nil, connectError(lookup.ErrNoSchema)
	}
	name, in, err := s.lookups.Introspect(strings.TrimSpace(name))
	if err != nil {
		return "", nil, connectError(err)
	}
	return name, in, nil
}

func (s *Service) schema(ctx context.Context, name string) (*lookup.Schema, error) {
	name, in, err := s.introspect(name)
	if err != nil {
		return nil, err
	}
	schema, err := in.Schema(ctx)
	if err != nil {
		return nil, connectError(err)
	}
	schema.Source = name
	return schema, nil
}

// Handler returns the path prefix and handler serving every procedure.
func (s *Service) Handler(opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithInterceptors(observeCalls(s.observer))}, opts...)

	mux := http.NewServeMux()
	mux.Handle(CreateSessionProcedure, connect.NewUnaryHandler(CreateSessionProcedure, s.CreateSession, opts...))
	mux.Handle(GetSessionProcedure, connect.NewUnaryHandler(GetSessionProcedure, s.GetSession, opts...))
	mux.Handle(ListSessionsProcedure, connect.NewUnaryHandler(ListSessionsProcedure, s.ListSessions, opts...))
	mux.Handle(DeleteSessionProcedure, connect.NewUnaryHandler(DeleteSessionProcedure, s.DeleteSession, opts...))
	mux.Handle(FetchHistoryProcedure, connect.NewUnaryHandler(FetchHistoryProcedure, s.FetchHistory, opts...))
	mux.Handle(ValidateQueryProcedure, connect.NewUnaryHandler(ValidateQueryProcedure, s.ValidateQuery, opts...))
	mux.Handle(QueryHistoryProcedure, connect.NewUnaryHandler(QueryHistoryProcedure, s.QueryHistory, opts...))
	mux.Handle(SchemaInfoProcedure, connect.NewUnaryHandler(SchemaInfoProcedure, s.SchemaInfo, opts...))
	mux.Handle(QuickInsightsProcedure, connect.NewUnaryHandler(QuickInsightsProcedure, s.QuickInsights, opts...))
	mux.Handle(QuerySuggestionsProcedure, connect.NewUnaryHandler(QuerySuggestionsProcedure, s.QuerySuggestions, opts...))
	return "/" + ServiceName + "/", mux
}

// observeCalls reports every procedure call with its outcome.
func observeCalls(o observability.Observer) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			start := time.Now()
			res, err := next(ctx, req)

			level, code := observability.LevelVerbose, "ok"
			if err != nil {
				level, code = observability.LevelWarning, connect.CodeOf(err).String()
			}
			o.OnEvent(ctx, observability.NewEvent(EventCall, level, "control", map[string]any{
				"procedure":   req.Spec().Procedure,
				"code":        code,
				"duration_ms": time.Since(start).Milliseconds(),
			}))
			return res, err
		}
	}
}

func requireID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", connectError(ErrMissingID)
	}
	return id, nil
}

func respond[T any](msg *T, err error) (*connect.Response[T], error) {
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(msg), nil
}
