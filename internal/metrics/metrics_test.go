package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/book-expert/voice-assistant/internal/metrics"
)

func TestInstrumentHandler_RecordsRoutePattern(t *testing.T) {
	t.Parallel()

	router := chi.NewRouter()
	router.Use(metrics.InstrumentHandler)
	router.Get("/probe/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	counter := metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/probe/{id}", "418")
	before := testutil.ToFloat64(counter)

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/probe/42", nil))

	assert.Equal(t, http.StatusTeapot, recorder.Code)
	assert.InDelta(t, before+1, testutil.ToFloat64(counter), 0.001)
}

func TestObserveProviderCall_DefaultsKind(t *testing.T) {
	t.Parallel()

	counter := metrics.ProviderCallsTotal.WithLabelValues("llm", "probe-provider", "ok")
	before := testutil.ToFloat64(counter)

	metrics.ObserveProviderCall("llm", "probe-provider", "")

	assert.InDelta(t, before+1, testutil.ToFloat64(counter), 0.001)
}
