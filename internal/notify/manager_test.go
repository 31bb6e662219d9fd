package notify

import (
	"context"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestNewManager_SlackDisabledByDefault(t *testing.T) {
	viper.Reset()
	m := NewManager(nil)
	require.Nil(t, m.client)
}

func TestManager_NotifyNoopsWhenDisabled(t *testing.T) {
	viper.Reset()
	viper.Set("notifications.slack.enabled", false)
	m := NewManager(nil)

	ts, err := m.Notify(context.Background(), EventTaskFailed, "task failed", "")
	require.NoError(t, err)
	require.Empty(t, ts)
}

func TestManager_NotifyUnknownEventDisabled(t *testing.T) {
	viper.Reset()
	viper.Set("notifications.slack.enabled", true)
	m := &Manager{client: nil}

	ts, err := m.Notify(context.Background(), "unregistered_event", "hi", "prev")
	require.NoError(t, err)
	require.Equal(t, "prev", ts)
}

func TestManager_AddReactionNoopsWithoutClient(t *testing.T) {
	m := &Manager{}
	err := m.AddReaction(context.Background(), "", "thumbsup")
	require.NoError(t, err)
}
