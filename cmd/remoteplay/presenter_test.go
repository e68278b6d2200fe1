package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeadlessPresenter_ConfirmsBinds(t *testing.T) {
	reports := &reportRecorder{}
	p := newHeadlessPresenter(720, reports.report, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.NoError(t, p.Bind(3, MediaItem{DisplayName: "a.mp4", Locator: "/m/a.mp4"}))
	require.Eventually(t, func() bool { return len(reports.all()) == 1 }, time.Second, 10*time.Millisecond)

	confirmed, ok := reports.all()[0].(BindConfirmed)
	require.True(t, ok)
	assert.Equal(t, uint64(3), confirmed.Token)
	assert.Equal(t, 720, p.RenderHeight())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("headless presenter did not stop")
	}
}

func TestHeadlessPresenter_BusyWhenNotRunning(t *testing.T) {
	p := newHeadlessPresenter(0, nil, discardLogger())
	for i := 0; i < cap(p.confirms); i++ {
		require.NoError(t, p.Bind(uint64(i+1), MediaItem{}))
	}
	assert.ErrorIs(t, p.Bind(99, MediaItem{}), errPresenterBusy)
}
