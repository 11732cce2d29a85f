package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDelayDoublesPerAttempt(t *testing.T) {
	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{attempts: 1, want: 1 * time.Second},
		{attempts: 2, want: 2 * time.Second},
		{attempts: 3, want: 4 * time.Second},
		{attempts: 4, want: 8 * time.Second},
		{attempts: 5, want: 16 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, BackoffDelay(tt.attempts))
	}
}

func TestBackoffDelayClampsBelowOne(t *testing.T) {
	assert.Equal(t, time.Second, BackoffDelay(0))
	assert.Equal(t, time.Second, BackoffDelay(-3))
}

func TestAllChannelsCoversEveryChannel(t *testing.T) {
	assert.ElementsMatch(t,
		[]Channel{ChannelEmail, ChannelBrowser, ChannelMobile, ChannelSlack},
		AllChannels(),
	)
}
