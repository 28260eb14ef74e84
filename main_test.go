package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"testing"
	"time"

	"linkedsongs/controller"
	"linkedsongs/mapping"
)

type idleProvider struct{}

func (idleProvider) CurrentlyPlaying(ctx context.Context) (string, bool, error) {
	return "", false, nil
}

func (idleProvider) Queue(ctx context.Context, uri string) error {
	return nil
}

func (idleProvider) PlaybackActive(ctx context.Context) (bool, error) {
	return true, nil
}

func (idleProvider) StartPlayback(ctx context.Context, deviceID string, contextURI string) error {
	return nil
}

func startServing(t *testing.T, ctx context.Context) (net.Listener, *controller.Controller, chan error) {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}

	ctrl := controller.NewController(time.Millisecond)
	if _, err := ctrl.Start(context.Background(), "alice", "sess-1", idleProvider{}, mapping.Build(nil, nil), controller.PlaybackTarget{}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- serve(ctx, &http.Server{Handler: http.NotFoundHandler()}, listener, ctrl)
	}()
	return listener, ctrl, done
}

func wait(t *testing.T, done chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return")
		return nil
	}
}

func TestServeListenerClosedOnSignal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	listener, ctrl, done := startServing(t, ctx)

	// the tunnel goes down together with the signal
	cancel()
	listener.Close()

	if err := wait(t, done); err != nil {
		t.Errorf("serve() = %v, want a clean shutdown", err)
	}
	if ctrl.IsRunning("alice") {
		t.Error("followers should be stopped on shutdown")
	}
}

func TestServeListenerFailure(t *testing.T) {
	listener, ctrl, done := startServing(t, context.Background())

	listener.Close()

	err := wait(t, done)
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		t.Errorf("serve() = %v, want the listener error", err)
	}
	if ctrl.IsRunning("alice") {
		t.Error("followers should be stopped when the server fails")
	}
}
