package llm

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type tempNetErr struct{}

func (tempNetErr) Error() string   { return "temp net err" }
func (tempNetErr) Timeout() bool   { return false }
func (tempNetErr) Temporary() bool { return true }

func TestClassifyGeminiErr(t *testing.T) {
	tests := []struct {
		name          string
		in            error
		wantTransient bool
	}{
		{name: "nil", in: nil, wantTransient: false},
		{name: "api_429", in: genai.APIError{Code: 429}, wantTransient: true},
		{name: "api_500", in: genai.APIError{Code: 500}, wantTransient: true},
		{name: "api_401", in: genai.APIError{Code: 401}, wantTransient: false},
		{name: "net_temporary", in: tempNetErr{}, wantTransient: true},
		{name: "stringified_api_429", in: errors.New(genai.APIError{Code: 429}.Error()), wantTransient: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantTransient, IsTransient(classifyGeminiErr(tt.in)))
		})
	}
}

func TestClassifyOpenAIErr(t *testing.T) {
	tests := []struct {
		name          string
		in            error
		wantTransient bool
	}{
		{name: "rate_limited", in: &openai.APIError{HTTPStatusCode: 429}, wantTransient: true},
		{name: "server_error", in: &openai.APIError{HTTPStatusCode: 503}, wantTransient: true},
		{name: "unauthorized", in: &openai.APIError{HTTPStatusCode: 401}, wantTransient: false},
		{name: "request_502", in: &openai.RequestError{HTTPStatusCode: 502, Err: errors.New("bad gateway")}, wantTransient: true},
		{name: "request_400", in: &openai.RequestError{HTTPStatusCode: 400, Err: errors.New("bad request")}, wantTransient: false},
		{name: "net_temporary", in: tempNetErr{}, wantTransient: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantTransient, IsTransient(classifyOpenAIErr(tt.in)))
		})
	}
}

func fastOptions(maxRetries int) Options {
	return Options{
		MaxRetries:        maxRetries,
		RequestTimeout:    time.Second,
		BackoffInitial:    time.Millisecond,
		BackoffMax:        2 * time.Millisecond,
		BackoffJitterFrac: 0,
	}
}

func TestClient_RetriesTransient(t *testing.T) {
	var calls atomic.Int32
	next := GeneratorFunc(func(context.Context, Prompt) (string, error) {
		if calls.Add(1) <= 2 {
			return "", &TransientError{Err: errors.New("try again")}
		}
		return "ok", nil
	})

	out, err := NewClient(next, fastOptions(3), nil).Generate(context.Background(), Prompt{Purpose: PurposeDraft})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.EqualValues(t, 3, calls.Load())
}

func TestClient_DoesNotRetryPermanent(t *testing.T) {
	var calls atomic.Int32
	next := GeneratorFunc(func(context.Context, Prompt) (string, error) {
		calls.Add(1)
		return "", errors.New("permanent")
	})

	_, err := NewClient(next, fastOptions(5), nil).Generate(context.Background(), Prompt{})
	require.EqualError(t, err, "permanent")
	assert.EqualValues(t, 1, calls.Load())
}

func TestClient_StopsAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	next := GeneratorFunc(func(context.Context, Prompt) (string, error) {
		calls.Add(1)
		return "", &TransientError{Err: errors.New("overloaded")}
	})

	_, err := NewClient(next, fastOptions(2), nil).Generate(context.Background(), Prompt{})
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.EqualValues(t, 3, calls.Load())
}

func TestClient_TimeoutIsRetriedThenReported(t *testing.T) {
	var calls atomic.Int32
	next := GeneratorFunc(func(ctx context.Context, _ Prompt) (string, error) {
		calls.Add(1)
		<-ctx.Done()
		return "", ctx.Err()
	})

	opts := fastOptions(1)
	opts.RequestTimeout = 5 * time.Millisecond
	_, err := NewClient(next, opts, nil).Generate(context.Background(), Prompt{})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.EqualValues(t, 2, calls.Load())
}

func TestClient_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	next := GeneratorFunc(func(context.Context, Prompt) (string, error) {
		t.Fatal("backend must not be called with a cancelled context")
		return "", nil
	})
	_, err := NewClient(next, fastOptions(3), nil).Generate(ctx, Prompt{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestBackoffSleep(t *testing.T) {
	assert.Equal(t, 10*time.Millisecond, backoffSleep(10*time.Millisecond, time.Second, 0, 0))
	assert.Equal(t, 40*time.Millisecond, backoffSleep(10*time.Millisecond, time.Second, 0, 2))
	assert.Equal(t, 25*time.Millisecond, backoffSleep(10*time.Millisecond, 25*time.Millisecond, 0, 5))
}

func TestTemperaturesFor(t *testing.T) {
	temps := DefaultTemperatures()
	assert.InDelta(t, 0.3, temps.For(PurposeClassification), 1e-9)
	assert.InDelta(t, 0.5, temps.For(PurposeDraft), 1e-9)
	assert.InDelta(t, 0.2, temps.For(PurposeReview), 1e-9)
}

func TestNewProvider(t *testing.T) {
	ctx := context.Background()

	g, err := NewProvider(ctx, ProviderConfig{Name: "static"})
	require.NoError(t, err)
	assert.IsType(t, &Static{}, g)

	g, err = NewProvider(ctx, ProviderConfig{Name: "groq", APIKey: "gsk_test", Model: "llama3-8b-8192"})
	require.NoError(t, err)
	assert.IsType(t, &OpenAI{}, g)

	_, err = NewProvider(ctx, ProviderConfig{Name: "openai", Model: "gpt-4"})
	require.Error(t, err)

	_, err = NewProvider(ctx, ProviderConfig{Name: "carrier-pigeon"})
	require.ErrorContains(t, err, "unknown llm provider")
}

func TestStatic(t *testing.T) {
	s := NewStatic()
	ctx := context.Background()

	out, err := s.Generate(ctx, Prompt{Purpose: PurposeClassification, User: "Subject: Refund please\nDescription: double charge"})
	require.NoError(t, err)
	assert.Equal(t, "Billing", out)

	out, err = s.Generate(ctx, Prompt{Purpose: PurposeClassification, User: "Subject: Hi\nDescription: hello"})
	require.NoError(t, err)
	assert.Equal(t, "General", out)

	out, err = s.Generate(ctx, Prompt{Purpose: PurposeDraft, User: "Ticket Subject: API not working\nDescription: 500s"})
	require.NoError(t, err)
	assert.Contains(t, out, `"API not working"`)

	out, err = s.Generate(ctx, Prompt{Purpose: PurposeReview})
	require.NoError(t, err)
	assert.Contains(t, out, `"approved": true`)

	s.Replies = map[Purpose]string{PurposeReview: "nope"}
	out, err = s.Generate(ctx, Prompt{Purpose: PurposeReview})
	require.NoError(t, err)
	assert.Equal(t, "nope", out)
}
