// Package pubsub wraps the Pub/Sub v2 client the outbox publisher writes
// escrow domain and notification events through.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/packfinderz-escrow/pkg/config"
	"github.com/angelmondragon/packfinderz-escrow/pkg/logger"
)

// ErrTopicMissing is wrapped when a configured topic does not exist.
var ErrTopicMissing = errors.New("pubsub topic does not exist")

type Client struct {
	client    *pubsub.Client
	projectID string
	topics    []string
}

// NewClient connects to Pub/Sub and fails fast when a configured topic is
// missing, since every publish to it would otherwise dead-letter.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errors.New("gcp project id is required")
	}
	topics := configuredTopics(cfg)
	if len(topics) == 0 {
		return nil, errors.New("at least one pubsub topic is required")
	}

	ps, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	c := &Client{client: ps, projectID: projectID, topics: topics}
	if err := c.Ping(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"gcp_project": projectID, "topics": topics}), "pubsub client initialized")
	}
	return c, nil
}

func configuredTopics(cfg config.PubSubConfig) []string {
	var out []string
	for _, name := range []string{cfg.DomainTopic, cfg.NotificationTopic} {
		name = strings.TrimSpace(name)
		if name != "" && !slices.Contains(out, name) {
			out = append(out, name)
		}
	}
	return out
}

// Publisher returns a publisher for a topic id or full resource name. The
// caller owns the handle and must Stop it.
func (c *Client) Publisher(topic string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	name := resourceName(c.projectID, "topics", topic)
	if name == "" {
		return nil
	}
	return c.client.Publisher(name)
}

// Ping confirms every configured topic is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errors.New("pubsub client not initialized")
	}
	for _, topic := range c.topics {
		_, err := c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{
			Topic: resourceName(c.projectID, "topics", topic),
		})
		switch {
		case status.Code(err) == codes.NotFound:
			return fmt.Errorf("%w: %s", ErrTopicMissing, topic)
		case err != nil:
			return fmt.Errorf("checking topic %s: %w", topic, err)
		}
	}
	return nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// resourceName expands a short id to projects/<project>/<kind>/<id>. Names
// that are already fully qualified pass through.
func resourceName(projectID, kind, name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if strings.HasPrefix(name, "projects/") && strings.Contains(name, "/"+kind+"/") {
		return name
	}
	if projectID == "" {
		return ""
	}
	return "projects/" + projectID + "/" + kind + "/" + name
}
