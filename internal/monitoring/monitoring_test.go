package monitoring

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/seventv/deepzoom/internal/configure"
	"github.com/seventv/deepzoom/internal/global"
	"github.com/seventv/deepzoom/internal/svc/prometheus"
	"github.com/seventv/deepzoom/internal/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMonitoring(t *testing.T) {
	config := &configure.Config{}
	config.Monitoring.Enabled = true
	config.Monitoring.Bind = "127.0.1.1:3001"

	gCtx, cancel := global.WithCancel(global.New(context.Background(), config))

	gCtx.Inst().Prometheus = prometheus.New(prometheus.Options{})
	gCtx.Inst().Prometheus.StartBuild()(true)

	done := New(gCtx)

	time.Sleep(time.Millisecond * 50)

	resp, err := http.DefaultClient.Get("http://127.0.1.1:3001/metrics")
	testutil.IsNil(t, err, "No error")
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	testutil.IsNil(t, err, "body reads")
	testutil.Assert(t, http.StatusOK, resp.StatusCode, "response code")
	assert.Contains(t, string(body), "deepzoom_total_builds")

	cancel()

	<-done
}
