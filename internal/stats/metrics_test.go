package stats

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollectorsRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	for _, c := range Collectors() {
		assert.Nil(t, reg.Register(c))
	}
}

func TestObserveRequest(t *testing.T) {
	before := testutil.ToFloat64(RequestsTotal.WithLabelValues("404"))
	ObserveRequest(404, time.Now())
	assert.Equal(t, before+1, testutil.ToFloat64(RequestsTotal.WithLabelValues("404")))
}
