package lookup_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailored-agentic-units/chatstream/lookup"
	"github.com/tailored-agentic-units/chatstream/observability"
	"github.com/tailored-agentic-units/chatstream/store"
)

func TestResolver_Success(t *testing.T) {
	reg := lookup.NewRegistry()
	require.NoError(t, reg.Register("sql", lookup.Func(func(_ context.Context, q string) (*lookup.Result, error) {
		return &lookup.Result{Query: q, Statement: "SELECT 1", Text: "1", Rows: 1}, nil
	})))

	audit := store.NewMemory()
	r := lookup.NewResolver(reg, lookup.WithRecorder(audit))

	res, err := r.Resolve(context.Background(), "s1", "sql", "one?")
	require.NoError(t, err)
	assert.Equal(t, "1", res.Text)

	records, err := audit.ListQueries(context.Background(), "s1", 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, store.QuerySuccess, records[0].Status)
	assert.Equal(t, "SELECT 1", records[0].Statement)
	assert.Equal(t, "one?", records[0].Question)
	assert.Equal(t, 1, records[0].ResultCount)
}

func TestResolver_TimeoutIgnoringCapability(t *testing.T) {
	reg := lookup.NewRegistry()
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	require.NoError(t, reg.Register("slow", lookup.Func(func(_ context.Context, q string) (*lookup.Result, error) {
		<-release
		return &lookup.Result{}, nil
	})))

	audit := store.NewMemory()
	r := lookup.NewResolver(reg, lookup.WithTimeout(20*time.Millisecond), lookup.WithRecorder(audit))

	start := time.Now()
	_, err := r.Resolve(context.Background(), "s1", "slow", "q")

	assert.ErrorIs(t, err, lookup.ErrTimeout)
	assert.Less(t, time.Since(start), time.Second)

	records, _ := audit.ListQueries(context.Background(), "s1", 0)
	require.Len(t, records, 1)
	assert.Equal(t, store.QueryFailed, records[0].Status)
}

func TestResolver_CallerCancel(t *testing.T) {
	reg := lookup.NewRegistry()
	require.NoError(t, reg.Register("slow", lookup.Func(func(ctx context.Context, q string) (*lookup.Result, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})))

	r := lookup.NewResolver(reg, lookup.WithTimeout(time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := r.Resolve(ctx, "s1", "slow", "q")
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, lookup.ErrTimeout)
}

func TestResolver_BlockedIsAudited(t *testing.T) {
	reg := lookup.NewRegistry()
	require.NoError(t, reg.Register("sql", lookup.Func(func(_ context.Context, q string) (*lookup.Result, error) {
		return nil, lookup.Validate(q)
	})))

	var events []observability.EventType
	audit := store.NewMemory()
	r := lookup.NewResolver(reg,
		lookup.WithRecorder(audit),
		lookup.WithObserver(observability.ObserverFunc(func(_ context.Context, e observability.Event) {
			events = append(events, e.Type)
		})),
	)

	_, err := r.Resolve(context.Background(), "s1", "sql", "DROP TABLE x")
	require.Error(t, err)

	records, _ := audit.ListQueries(context.Background(), "s1", 0)
	require.Len(t, records, 1)
	assert.Equal(t, store.QueryBlocked, records[0].Status)
	assert.Equal(t, "DROP TABLE x", records[0].Statement)
	assert.Equal(t, []observability.EventType{lookup.EventBlocked}, events)
}

func TestResolver_UnknownSource(t *testing.T) {
	r := lookup.NewResolver(lookup.NewRegistry())

	_, err := r.Resolve(context.Background(), "", "missing", "q")
	assert.True(t, errors.Is(err, lookup.ErrUnknownSource))
}

func TestBuild(t *testing.T) {
	cfg := lookup.DefaultConfig()
	cfg.Merge(&lookup.Config{
		Sources: []lookup.SourceConfig{
			{Name: "warehouse", Kind: lookup.KindSQL, Driver: store.DriverSQLite, DSN: t.TempDir() + "/w.db"},
		},
	})

	reg, closers, err := lookup.Build(context.Background(), &cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		for _, c := range closers {
			c.Close()
		}
	})

	assert.Equal(t, []string{"warehouse"}, reg.Names())
	assert.Equal(t, lookup.DefaultTimeout, cfg.Timeout.Std())

	_, _, err = lookup.Build(context.Background(), &lookup.Config{
		Sources: []lookup.SourceConfig{{Name: "x", Kind: "graphql"}},
	}, nil)
	assert.ErrorIs(t, err, lookup.ErrUnknownKind)
}
