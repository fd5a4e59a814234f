package events

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"zerolock/pkg/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFeed_Formats(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	feed, err := NewFeed(nil, logger)
	require.NoError(t, err)
	assert.IsType(t, &NoopFeed{}, feed)

	feed, err = NewFeed(&FeedConfig{Format: "noop"}, logger)
	require.NoError(t, err)
	assert.NoError(t, feed.Publish(&models.Event{Type: models.EventBountyPaid}))

	_, err = NewFeed(&FeedConfig{Format: "unknown"}, logger)
	assert.Error(t, err)
}

func TestFileFeed(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	dir := t.TempDir()
	feed, err := NewFileFeed(dir, logger)
	require.NoError(t, err)

	require.NoError(t, feed.Publish(&models.Event{
		Type:        models.EventChallengeCreated,
		ChallengeID: 7,
		Actor:       "company-1",
		Amount:      100,
		Timestamp:   42,
	}))
	require.NoError(t, feed.Publish(&models.Event{
		Type:        models.EventBountyPaid,
		ChallengeID: 7,
		Recipient:   "hacker-1",
	}))
	require.NoError(t, feed.Close())

	// 按行追加的JSON
	file, err := os.Open(filepath.Join(dir, "platform_events.jsonl"))
	require.NoError(t, err)
	defer file.Close()

	var lines []models.Event
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var event models.Event
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &event))
		lines = append(lines, event)
	}

	require.Len(t, lines, 2)
	assert.Equal(t, models.EventChallengeCreated, lines[0].Type)
	assert.Equal(t, uint64(7), lines[0].ChallengeID)
	assert.Equal(t, models.EventBountyPaid, lines[1].Type)
}

func TestEventTopicKeys_AllTypesMapped(t *testing.T) {
	types := []models.EventType{
		models.EventChallengeCreated,
		models.EventChallengeActivated,
		models.EventAttackAttempted,
		models.EventAttackSuccessful,
		models.EventChallengeCompleted,
		models.EventChallengeExpired,
		models.EventChallengeCancelled,
		models.EventFundsLocked,
		models.EventBountyPaid,
	}

	for _, eventType := range types {
		key, exists := eventTopicKeys[eventType]
		assert.True(t, exists, "事件类型 %s 缺少topic归类", eventType)
		_, exists = defaultTopics[key]
		assert.True(t, exists, "topic键 %s 缺少默认topic", key)
	}
}
