package server

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/gochat-relay/internal/group"
)

func newBareServer() *Server {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	return New(*NewConfig(), Deps{Log: log, Registry: group.NewHub(log, nil)})
}

func TestStartSessionRefusedAfterShutdown(t *testing.T) {
	s := newBareServer()
	require.NoError(t, s.Shutdown(time.Second))

	ran := false
	require.False(t, s.startSession(func(context.Context) { ran = true }))
	require.False(t, ran)
	require.Zero(t, s.ActiveSessions())
}

func TestShutdownRacingSessionStarts(t *testing.T) {
	s := newBareServer()

	var started, finished atomic.Int32
	run := func(ctx context.Context) {
		defer finished.Add(1)
		<-ctx.Done()
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.startSession(run) {
				started.Add(1)
			}
		}()
	}

	require.NoError(t, s.Shutdown(2*time.Second))
	wg.Wait()

	require.Equal(t, started.Load(), finished.Load())
	require.Zero(t, s.ActiveSessions())
}
