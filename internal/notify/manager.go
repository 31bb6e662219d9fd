package notify

import (
	"context"
	"os"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"
	"github.com/spf13/viper"
)

// Event types a grind run raises notifications for.
const (
	EventBatchComplete EventType = "on_batch_complete"
	EventTaskFailed    EventType = "on_task_failed"
	EventEmergency     EventType = "on_emergency"
	EventUserInput     EventType = "on_user_input_needed"
	EventDrainComplete EventType = "on_drain_complete"
)

// Manager sends human-facing notifications over Slack.
type Manager struct {
	client       *slack.Client
	socketClient *socketmode.Client
	channelID    string

	logger func(string, ...interface{})
}

// NewManager creates a notification Manager, wiring Slack if configured.
func NewManager(logger func(string, ...interface{})) *Manager {
	m := &Manager{logger: logger}
	m.initSlack()
	return m
}

func (m *Manager) initSlack() {
	if !viper.GetBool("notifications.slack.enabled") {
		return
	}

	botToken := os.Getenv("SLACK_BOT_USER_TOKEN")
	appToken := os.Getenv("SLACK_APP_TOKEN")

	if botToken == "" {
		if m.logger != nil {
			m.logger("slack notifications enabled but SLACK_BOT_USER_TOKEN not set, disabling")
		}
		return
	}

	api := slack.New(botToken, slack.OptionAppLevelToken(appToken))
	m.client = api
	m.channelID = viper.GetString("notifications.slack.channel")

	if len(appToken) > 5 && appToken[:5] == "xapp-" {
		m.socketClient = socketmode.New(api)
	}
}

// Start runs the socket-mode client in the background, if configured.
func (m *Manager) Start(ctx context.Context) {
	if m.socketClient == nil {
		return
	}
	go func() {
		if m.logger != nil {
			m.logger("starting slack socket mode")
		}
		if err := m.socketClient.RunContext(ctx); err != nil && err != context.Canceled {
			if m.logger != nil {
				m.logger("slack socket mode error: %v", err)
			}
		}
	}()
}

// Notify posts message under eventType if that event class is enabled in
// config, threading it onto threadTS when non-empty. Returns the thread
// timestamp to persist for follow-up replies/reactions.
func (m *Manager) Notify(ctx context.Context, eventType EventType, message, threadTS string) (string, error) {
	if !m.isEnabled(eventType) {
		return threadTS, nil
	}
	if m.client == nil {
		return threadTS, nil
	}

	channelID := m.channelID
	if channelID == "" {
		channelID = "#general"
	}

	opts := []slack.MsgOption{slack.MsgOptionText(message, false)}
	if threadTS != "" {
		opts = append(opts, slack.MsgOptionTS(threadTS))
	}

	_, newTS, err := m.client.PostMessageContext(ctx, channelID, opts...)
	if err != nil {
		if m.logger != nil {
			m.logger("failed to send slack notification: %v", err)
		}
		return threadTS, err
	}
	return newTS, nil
}

// AddReaction attaches an emoji reaction to a previously-posted message.
func (m *Manager) AddReaction(ctx context.Context, timestamp, reaction string) error {
	if m.client == nil || timestamp == "" {
		return nil
	}
	channelID := m.channelID
	if channelID == "" {
		channelID = "#general"
	}
	err := m.client.AddReactionContext(ctx, reaction, slack.ItemRef{
		Channel:   channelID,
		Timestamp: timestamp,
	})
	if err != nil && m.logger != nil {
		m.logger("failed to add slack reaction %s: %v", reaction, err)
	}
	return nil
}

func (m *Manager) isEnabled(eventType EventType) bool {
	if !viper.GetBool("notifications.slack.enabled") {
		return false
	}
	return viper.GetBool("notifications.slack.events." + string(eventType))
}
