package telemetry

import (
	"context"
	"net"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/walrusgate/contentgate/common/logger"
)

func TestStartServesPprof(t *testing.T) {
	tel := New(0, logger.Discard())
	assert.Empty(t, tel.Addr())
	require.NoError(t, tel.Start(context.Background()))
	defer tel.Stop(context.Background())

	resp, err := http.Get("http://" + tel.Addr() + "/debug/pprof/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStartPortInUse(t *testing.T) {
	first := New(0, logger.Discard())
	require.NoError(t, first.Start(context.Background()))
	defer first.Stop(context.Background())

	port := first.ln.Addr().(*net.TCPAddr).Port
	second := New(port, logger.Discard())
	assert.Error(t, second.Start(context.Background()))
}
