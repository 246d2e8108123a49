package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/params"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/pkg/config"
)

func TestRequestParams(t *testing.T) {
	p, err := requestParams([]string{"qf=title^2 body", "pf=title", "qf=extra"})
	require.NoError(t, err)
	assert.Equal(t, []string{"title^2 body", "extra"}, p.GetAll(params.QF))
	assert.Equal(t, "title", p.Get("pf"))

	_, err = requestParams([]string{"novalue"})
	assert.Error(t, err)
	_, err = requestParams([]string{"=x"})
	assert.Error(t, err)
}

func TestReadDocuments(t *testing.T) {
	in := `{"id":"d1","fields":{"title":"red apple"}}

{"id":"d2","fields":{"title":"green pear"}}
`
	var got []*ingestion.IngestRequest
	err := readDocuments(strings.NewReader(in), func(r *ingestion.IngestRequest) error {
		got = append(got, r)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "d2", got[1].ID)
	assert.Equal(t, "green pear", got[1].Fields["title"])

	err = readDocuments(strings.NewReader("{\"id\":\"d1\",\"fields\":{\"t\":\"x\"}}\nnot json\n"), func(*ingestion.IngestRequest) error { return nil })
	assert.ErrorContains(t, err, "line 2")

	err = readDocuments(strings.NewReader(`{"id":"","fields":{"t":"x"}}`), func(*ingestion.IngestRequest) error { return nil })
	assert.ErrorContains(t, err, "line 1")
}

func TestSynonymRulesRoundTrip(t *testing.T) {
	in := `# fruit
apple, pomme => malus
apple => malus, fruit

pear => pyrus
`
	entries, err := parseSynonymRules(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{
		"apple": {"malus", "fruit"},
		"pomme": {"malus"},
		"pear":  {"pyrus"},
	}, entries)

	var buf bytes.Buffer
	writeSynonymRules(&buf, entries)
	assert.Equal(t, "apple => malus, fruit\npear => pyrus\npomme => malus\n", buf.String())

	_, err = parseSynonymRules(strings.NewReader("apple malus\n"))
	assert.ErrorContains(t, err, "line 1")
}

func TestExplain(t *testing.T) {
	req, err := requestParams([]string{"qf=title"})
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, explain(context.Background(), &buf, config.Default(), "red apple", req))
	out := buf.String()
	assert.Contains(t, out, "expression: ")
	assert.Contains(t, out, "terms:      red apple")
	assert.Contains(t, out, "title:")
}

func TestSearchCommandDecodesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") == "" {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "q is required"})
			return
		}
		_ = json.NewEncoder(w).Encode(executor.SearchResult{
			Query:      r.URL.Query().Get("q"),
			TotalHits:  1,
			Results:    []ranker.ScoredDoc{{DocID: "d1", Score: 1.25}},
			Generation: 2,
		})
	}))
	defer srv.Close()

	res, err := search(context.Background(), srv.Client(), srv.URL, url.Values{"q": {"red"}})
	require.NoError(t, err)
	assert.Equal(t, "red", res.Query)
	var buf bytes.Buffer
	printResult(&buf, res)
	assert.Contains(t, buf.String(), "1 hits (generation 2)")
	assert.Contains(t, buf.String(), "d1")

	_, err = search(context.Background(), srv.Client(), srv.URL, url.Values{})
	assert.ErrorContains(t, err, "q is required")
}

func TestRunLoadTest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(handler.CacheHeader, "HIT")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	stats := runLoadTest(context.Background(), loadTestConfig{
		BaseURL:     srv.URL,
		Concurrency: 1,
		Duration:    200 * time.Millisecond,
		QPS:         50,
		Queries:     []string{"a", "b"},
		Params:      url.Values{"qf": {"title"}},
	})
	assert.Positive(t, stats.total.Load())
	assert.Equal(t, stats.total.Load(), stats.succeeded.Load())
	assert.Equal(t, stats.total.Load(), stats.cacheHits.Load())

	var buf bytes.Buffer
	report(&buf, stats, 200*time.Millisecond)
	assert.Contains(t, buf.String(), "200: ")
}

func TestPercentile(t *testing.T) {
	sorted := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	assert.Equal(t, time.Duration(5), percentile(sorted, 50))
	assert.Equal(t, time.Duration(10), percentile(sorted, 99))
	assert.Equal(t, time.Duration(1), percentile(sorted, 0))
	assert.Equal(t, time.Duration(0), percentile(nil, 50))
	assert.Equal(t, time.Duration(0), stddev([]time.Duration{4, 4, 4}))
}
