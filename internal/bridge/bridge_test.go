package bridge

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forest/internal/types"
)

func TestBridge_DelegateThenResolve(t *testing.T) {
	b := New(time.Second)

	env := b.Delegate(Params{
		System: "you are a planner",
		User:   "plan it",
		Schema: Schema{"required": []interface{}{"title"}},
	})
	require.Equal(t, RequestType, env.Type)
	require.NotEmpty(t, env.RequestID)
	assert.Equal(t, "structured_json", env.ResponseFormat)

	var wg sync.WaitGroup
	wg.Add(1)
	var got map[string]interface{}
	var awaitErr error
	go func() {
		defer wg.Done()
		got, awaitErr = b.Await(context.Background(), env.RequestID, time.Second)
	}()

	resp, err := b.ProcessResponse(env.RequestID, `{"title":"x","extra":1}`)
	require.NoError(t, err)
	assert.Equal(t, ResponseType, resp.Type)
	assert.True(t, resp.Metadata.SchemaValid)

	wg.Wait()
	require.NoError(t, awaitErr)
	assert.Equal(t, "x", got["title"])
	assert.Equal(t, 0, b.PendingCount())
}

func TestBridge_SchemaRejectionNamesKey(t *testing.T) {
	b := New(time.Second)
	env := b.Delegate(Params{
		Schema: Schema{"required": []interface{}{"title", "description"}},
	})

	_, err := b.ProcessResponse(env.RequestID, `{"title":"x"}`)
	require.Error(t, err)
	var te *types.TaggedError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, types.TagValidation, te.Tag)
	assert.Equal(t, "description", te.Key)

	// Rejection burns the request id.
	assert.Equal(t, 0, b.PendingCount())
}

func TestBridge_UnknownRequestID(t *testing.T) {
	b := New(time.Second)
	_, err := b.ProcessResponse("nope", `{}`)
	require.Error(t, err)
	assert.Equal(t, types.TagValidation, types.TagOf(err))
}

func TestBridge_AwaitTimeoutRemovesEntry(t *testing.T) {
	b := New(time.Second)
	env := b.Delegate(Params{})

	_, err := b.Await(context.Background(), env.RequestID, 20*time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, types.TagTimeout, types.TagOf(err))
	assert.Equal(t, 0, b.PendingCount())

	// Late delivery now fails.
	_, err = b.ProcessResponse(env.RequestID, `{}`)
	assert.Error(t, err)
}

func TestBridge_AwaitCancellation(t *testing.T) {
	b := New(time.Second)
	env := b.Delegate(Params{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := b.Await(ctx, env.RequestID, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, b.PendingCount())
}

func TestBridge_NonJSONWithoutSchemaDegrades(t *testing.T) {
	b := New(time.Second)
	env := b.Delegate(Params{})

	resp, err := b.ProcessResponse(env.RequestID, "plain text answer")
	require.NoError(t, err)
	assert.Equal(t, "plain text answer", resp.Data["content"])
}

func TestBridge_NonJSONWithSchemaFails(t *testing.T) {
	b := New(time.Second)
	env := b.Delegate(Params{Schema: Schema{"required": []interface{}{"title"}}})

	_, err := b.ProcessResponse(env.RequestID, "not json")
	require.Error(t, err)
	assert.Equal(t, types.TagValidation, types.TagOf(err))

	// A malformed delivery burns the request id, same as a schema
	// rejection.
	assert.Equal(t, 0, b.PendingCount())
}

func TestBridge_ConcurrentDelegations(t *testing.T) {
	b := New(time.Second)
	envA := b.Delegate(Params{})
	envB := b.Delegate(Params{})

	var wg sync.WaitGroup
	results := make(map[string]string)
	var mu sync.Mutex
	for _, env := range []*Envelope{envA, envB} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			data, err := b.Await(context.Background(), id, time.Second)
			if err == nil {
				mu.Lock()
				results[id], _ = data["who"].(string)
				mu.Unlock()
			}
		}(env.RequestID)
	}

	// Resolve out of order.
	_, err := b.ProcessResponse(envB.RequestID, `{"who":"b"}`)
	require.NoError(t, err)
	_, err = b.ProcessResponse(envA.RequestID, `{"who":"a"}`)
	require.NoError(t, err)

	wg.Wait()
	assert.Equal(t, "a", results[envA.RequestID])
	assert.Equal(t, "b", results[envB.RequestID])
}
