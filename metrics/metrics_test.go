package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIncrCounterWithGroup(t *testing.T) {
	before := testutil.ToFloat64(Counter("test", "plain_total", nil))
	IncrCounterWithGroup("test", "plain_total", 1)
	IncrCounterWithGroup("test", "plain_total", 2)
	assert.Equal(t, before+3, testutil.ToFloat64(Counter("test", "plain_total", nil)))
}

func TestIncrCounterWithDimGroup(t *testing.T) {
	dimA := Dimension{"reason": "timeout"}
	dimB := Dimension{"reason": "local"}

	IncrCounterWithDimGroup("test", "dim_total", 1, dimA)
	IncrCounterWithDimGroup("test", "dim_total", 1, dimA)
	IncrCounterWithDimGroup("test", "dim_total", 1, dimB)

	assert.Equal(t, 2.0, testutil.ToFloat64(Counter("test", "dim_total", dimA)))
	assert.Equal(t, 1.0, testutil.ToFloat64(Counter("test", "dim_total", dimB)))
}

func TestUpdateGauge(t *testing.T) {
	UpdateGaugeWithGroup("test", "peers", 4)
	assert.Equal(t, 4.0, testutil.ToFloat64(Gauge("test", "peers", nil)))
	UpdateGaugeWithGroup("test", "peers", 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(Gauge("test", "peers", nil)))

	UpdateGaugeWithDimGroup("test", "role_peers", 2, Dimension{"role": "server"})
	assert.Equal(t, 2.0, testutil.ToFloat64(Gauge("test", "role_peers", Dimension{"role": "server"})))
}

func TestHandlerExposesMetrics(t *testing.T) {
	IncrCounterWithGroup("test", "exposed_total", 1)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "rift_test_exposed_total")
}
