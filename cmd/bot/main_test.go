package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type shutdownRecorder struct {
	calls       []string
	shutdownErr error
}

type recordingServer struct{ r *shutdownRecorder }

func (s recordingServer) Shutdown(context.Context) error {
	s.r.calls = append(s.r.calls, "server")
	return s.r.shutdownErr
}

type recordingJobs struct{ r *shutdownRecorder }

func (j recordingJobs) Stop() { j.r.calls = append(j.r.calls, "scheduler") }

type recordingStore struct{ r *shutdownRecorder }

func (s recordingStore) Close() error {
	s.r.calls = append(s.r.calls, "storage")
	return nil
}

func TestShutdown_StopsJobsBeforeClosingStorage(t *testing.T) {
	tests := []struct {
		name        string
		shutdownErr error
	}{
		{"Clean server shutdown", nil},
		{"Server shutdown timed out", errors.New("deadline exceeded")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &shutdownRecorder{shutdownErr: tt.shutdownErr}

			shutdown(context.Background(), recordingServer{r}, recordingJobs{r}, recordingStore{r})

			assert.Equal(t, []string{"server", "scheduler", "storage"}, r.calls)
		})
	}
}

func TestShutdown_StoreWithoutClose(t *testing.T) {
	r := &shutdownRecorder{}

	shutdown(context.Background(), recordingServer{r}, recordingJobs{r}, struct{}{})

	assert.Equal(t, []string{"server", "scheduler"}, r.calls)
}
