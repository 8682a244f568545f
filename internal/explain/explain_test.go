package explain

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"icdlookup/internal"
	"icdlookup/internal/config"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

type memStore struct {
	entries map[string]string
	puts    int
}

func (m *memStore) GetExplanation(code, audience string) (*string, error) {
	if v, ok := m.entries[code+"|"+audience]; ok {
		return &v, nil
	}
	return nil, nil
}

func (m *memStore) PutExplanation(code, audience, model, text string) error {
	m.puts++
	m.entries[code+"|"+audience] = text
	return nil
}

func testClient(t *testing.T, rt roundTripFunc) *Client {
	t.Helper()
	cfg, _ := config.Load()
	cfg.AIAPIKey = "test"
	cfg.AIAPIBaseURL = "https://example.test/v1/"
	cfg.AIModel = "test-model"
	cfg.AIRateLimitRPS = 1000
	client := NewClient(cfg)
	client.httpClient = &http.Client{Transport: rt}
	orig := backoff
	backoff = func(int) time.Duration { return time.Millisecond }
	t.Cleanup(func() { backoff = orig })
	return client
}

var diabetes = internal.CanonicalRecord{
	Code:             "E119",
	ShortDescription: "Type 2 diabetes mellitus w/o complications",
	LongDescription:  "Type 2 diabetes mellitus without complications",
	Category:         "E11",
	Chapter:          "Endocrine & Metabolic",
}

func TestCompleteRetriesAndParses(t *testing.T) {
	attempt := 0
	client := testClient(t, func(r *http.Request) (*http.Response, error) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test" {
			t.Fatalf("missing bearer token")
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req.Model != "test-model" || len(req.Messages) != 2 {
			t.Fatalf("unexpected request: %+v", req)
		}
		attempt++
		if attempt == 1 {
			return jsonResponse(http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`), nil
		}
		return jsonResponse(http.StatusOK, `{"choices":[{"message":{"role":"assistant","content":"  A common form of diabetes.  "}}]}`), nil
	})

	text, err := client.Complete(context.Background(), "sys", "user")
	if err != nil {
		t.Fatal(err)
	}
	if text != "A common form of diabetes." || attempt != 2 {
		t.Fatalf("text=%q attempt=%d", text, attempt)
	}
}

func TestCompleteFailures(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
	}{
		{name: "bad request", status: http.StatusBadRequest, body: `{"error":{"message":"nope"}}`},
		{name: "malformed", status: http.StatusOK, body: `{"choices":`},
		{name: "empty choices", status: http.StatusOK, body: `{"choices":[]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := testClient(t, func(*http.Request) (*http.Response, error) {
				return jsonResponse(tc.status, tc.body), nil
			})
			if _, err := client.Complete(context.Background(), "s", "u"); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestCompleteBacksOffOnTransportErrors(t *testing.T) {
	attempt := 0
	client := testClient(t, func(*http.Request) (*http.Response, error) {
		attempt++
		if attempt < 3 {
			return nil, errors.New("connection reset by peer")
		}
		return jsonResponse(http.StatusOK, `{"choices":[{"message":{"content":"ok"}}]}`), nil
	})
	var waits []int
	backoff = func(n int) time.Duration {
		waits = append(waits, n)
		return time.Millisecond
	}

	text, err := client.Complete(context.Background(), "s", "u")
	if err != nil || text != "ok" {
		t.Fatalf("text=%q err=%v", text, err)
	}
	if attempt != 3 || !reflect.DeepEqual(waits, []int{1, 2}) {
		t.Fatalf("attempt=%d waits=%v", attempt, waits)
	}
}

func TestCompleteGivesUpAfterRetries(t *testing.T) {
	attempt := 0
	client := testClient(t, func(*http.Request) (*http.Response, error) {
		attempt++
		return jsonResponse(http.StatusServiceUnavailable, `{}`), nil
	})
	if _, err := client.Complete(context.Background(), "s", "u"); err == nil {
		t.Fatal("expected error")
	}
	if attempt != maxAttempts {
		t.Fatalf("attempt=%d", attempt)
	}
}

func TestCompleteCancelledKeepsLimiterToken(t *testing.T) {
	client := testClient(t, func(*http.Request) (*http.Response, error) {
		t.Fatal("no request expected")
		return nil, nil
	})
	client.limiter = rate.NewLimiter(rate.Every(time.Hour), 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := client.Complete(ctx, "s", "u"); !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v", err)
	}
	if !client.limiter.Allow() {
		t.Fatal("cancelled call used up the limiter token")
	}
}

func TestCompleteMissingKey(t *testing.T) {
	client := testClient(t, func(*http.Request) (*http.Response, error) {
		t.Fatal("no request expected")
		return nil, nil
	})
	client.apiKey = ""
	if _, err := client.Complete(context.Background(), "s", "u"); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("err=%v", err)
	}
}

func TestExplainCachesAndFallsBack(t *testing.T) {
	calls := 0
	client := testClient(t, func(*http.Request) (*http.Response, error) {
		calls++
		return jsonResponse(http.StatusOK, `{"choices":[{"message":{"content":"plain words"}}]}`), nil
	})
	store := &memStore{entries: map[string]string{}}
	explainer := NewExplainer(client, store)

	first := explainer.Explain(context.Background(), diabetes, AudiencePatient)
	if first.Source != SourceAI || first.Text != "plain words" {
		t.Fatalf("first=%+v", first)
	}
	second := explainer.Explain(context.Background(), diabetes, AudiencePatient)
	if second.Source != SourceCache || calls != 1 || store.puts != 1 {
		t.Fatalf("second=%+v calls=%d puts=%d", second, calls, store.puts)
	}

	failing := testClient(t, func(*http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})
	var reported error
	explainer = NewExplainer(failing, nil)
	explainer.OnError = func(_ string, err error) { reported = err }
	got := explainer.Explain(context.Background(), diabetes, AudienceClinician)
	if got.Source != SourceFallback || reported == nil {
		t.Fatalf("got=%+v reported=%v", got, reported)
	}
	if !strings.Contains(got.Text, "E119") || !strings.Contains(got.Text, diabetes.LongDescription) {
		t.Fatalf("fallback text=%q", got.Text)
	}
}

func TestExplainWithoutCompleter(t *testing.T) {
	got := NewExplainer(nil, nil).Explain(context.Background(), internal.CanonicalRecord{Code: "Z00"}, AudiencePatient)
	if got.Source != SourceFallback || !strings.Contains(got.Text, "no description available") {
		t.Fatalf("got=%+v", got)
	}
}

func TestParseAudience(t *testing.T) {
	if a, err := ParseAudience(""); err != nil || a != AudiencePatient {
		t.Fatalf("a=%q err=%v", a, err)
	}
	if a, err := ParseAudience("Clinician"); err != nil || a != AudienceClinician {
		t.Fatalf("a=%q err=%v", a, err)
	}
	if _, err := ParseAudience("lawyer"); err == nil {
		t.Fatal("expected error")
	}
}
