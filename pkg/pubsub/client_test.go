package pubsub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/angelmondragon/packfinderz-escrow/pkg/config"
)

func TestConfiguredTopics(t *testing.T) {
	assert.Equal(t, []string{"pf-domain-events", "pf-notification-events"}, configuredTopics(config.PubSubConfig{
		DomainTopic:       " pf-domain-events ",
		NotificationTopic: "pf-notification-events",
	}))
	assert.Equal(t, []string{"pf-events"}, configuredTopics(config.PubSubConfig{DomainTopic: "pf-events", NotificationTopic: "pf-events"}))
	assert.Empty(t, configuredTopics(config.PubSubConfig{}))
}

func TestResourceName(t *testing.T) {
	assert.Equal(t, "projects/pf-prod/topics/pf-domain-events", resourceName("pf-prod", "topics", "pf-domain-events"))
	assert.Equal(t, "projects/other/topics/t", resourceName("pf-prod", "topics", "projects/other/topics/t"))
	assert.Empty(t, resourceName("pf-prod", "topics", "  "))
	assert.Empty(t, resourceName("", "topics", "t"))
}

func TestNilClient(t *testing.T) {
	var c *Client
	assert.Nil(t, c.Publisher("t"))
	assert.Error(t, c.Ping(context.Background()))
	assert.NoError(t, c.Close())
}
