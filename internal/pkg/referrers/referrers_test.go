package referrers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFriendlyName(t *testing.T) {
	tests := []struct {
		hostname string
		expected string
	}{
		{"google.com", "Google"},
		{"news.ycombinator.com", "Hacker News"},
		{"t.co", "X/Twitter"},
		{"www.reddit.com", "Reddit"},
		{"m.facebook.com", "Facebook"},
		{"mail.google.com", "Gmail"},
		{"example.com", "Example.com"},
		{"www.example.com", "Example.com"},
		{"GOOGLE.COM", "Google"},
		{"", "Direct"},
		{"direct", "Direct"},
	}

	for _, tt := range tests {
		t.Run(tt.hostname, func(t *testing.T) {
			assert.Equal(t, tt.expected, FriendlyName(tt.hostname))
		})
	}
}

func TestChannel(t *testing.T) {
	assert.Equal(t, ChannelSearch, Channel("www.google.de"))
	assert.Equal(t, ChannelEmail, Channel("mail.google.com"))
	assert.Equal(t, ChannelSocial, Channel("bsky.app"))
	assert.Equal(t, ChannelCommunity, Channel("old.reddit.com"))
	assert.Equal(t, ChannelOther, Channel("someblog.net"))
	assert.Equal(t, ChannelDirect, Channel(""))
}
