package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"marketing-api/internal/config"
	"marketing-api/internal/events"
)

// fakeElasticsearch answers the product check and records indexed documents.
func fakeElasticsearch(t *testing.T, indexStatus int) (*httptest.Server, *[]string) {
	t.Helper()
	var paths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodGet && r.URL.Path == "/" {
			_, _ = w.Write([]byte(`{"version":{"number":"8.19.0"},"tagline":"You Know, for Search"}`))
			return
		}
		paths = append(paths, r.Method+" "+r.URL.Path)
		w.WriteHeader(indexStatus)
		if indexStatus >= 300 {
			_, _ = w.Write([]byte(`{"error":{"type":"mapper_parsing_exception","reason":"failed to parse"}}`))
			return
		}
		var doc map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&doc))
		assert.Equal(t, "signup", doc["form"])
		_, _ = w.Write([]byte(`{"result":"created"}`))
	}))
	t.Cleanup(server.Close)
	return server, &paths
}

func TestESClient_Publish(t *testing.T) {
	server, paths := fakeElasticsearch(t, http.StatusCreated)

	cfg := &config.Config{Elasticsearch: config.ElasticsearchConfig{URL: server.URL, Index: "form-events"}}
	es, err := NewElasticsearchClient(cfg, zap.NewNop())
	require.NoError(t, err)

	e := events.New(events.FormSignup, events.OutcomeAccepted)
	require.NoError(t, es.Publish(context.Background(), e))

	require.Len(t, *paths, 1)
	assert.True(t, strings.HasPrefix((*paths)[0], http.MethodPut+" /form-events/_doc/"+e.ID))
}

func TestESClient_PublishErrorStatus(t *testing.T) {
	server, _ := fakeElasticsearch(t, http.StatusBadRequest)

	cfg := &config.Config{Elasticsearch: config.ElasticsearchConfig{URL: server.URL, Index: "form-events"}}
	es, err := NewElasticsearchClient(cfg, zap.NewNop())
	require.NoError(t, err)

	err = es.Publish(context.Background(), events.New(events.FormSignup, events.OutcomeAccepted))
	assert.ErrorContains(t, err, "mapper_parsing_exception")
}
