package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/teamprint-backend/pkg/config"
	"github.com/angelmondragon/teamprint-backend/pkg/logger"
)

var errNotInitialized = errors.New("pubsub: client not initialized")

// Client holds the Pub/Sub connection plus the fully qualified names of the
// orders topic and subscription. PUBSUB_EMULATOR_HOST is honoured by the
// underlying library.
type Client struct {
	conn         *pubsub.Client
	project      string
	topic        string
	subscription string
	receive      pubsub.ReceiveSettings
}

// NewClient connects and fails when the orders topic or subscription is
// missing. Resources are provisioned by infrastructure, never here.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	project := strings.TrimSpace(gcp.ProjectID)
	if project == "" {
		return nil, errors.New("pubsub: gcp project id is required")
	}
	topic := topicResourceName(project, cfg.OrdersTopic)
	if topic == "" {
		return nil, errors.New("pubsub: orders topic is required")
	}

	conn, err := pubsub.NewClient(ctx, project, clientOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("pubsub: connect: %w", err)
	}
	c := &Client{
		conn:         conn,
		project:      project,
		topic:        topic,
		subscription: subscriptionResourceName(project, cfg.OrdersSubscription),
		receive:      receiveSettings(cfg),
	}
	if err := c.verify(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"topic": c.topic, "subscription": c.subscription}), "pubsub.connected")
	}
	return c, nil
}

func clientOptions(gcp config.GCPConfig) []option.ClientOption {
	if creds := strings.TrimSpace(gcp.CredentialsJSON); creds != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(creds))}
	}
	if path := strings.TrimSpace(gcp.ApplicationCredentials); path != "" {
		return []option.ClientOption{option.WithCredentialsFile(path)}
	}
	return nil
}

func receiveSettings(cfg config.PubSubConfig) pubsub.ReceiveSettings {
	settings := pubsub.DefaultReceiveSettings
	if cfg.MaxOutstanding > 0 {
		settings.MaxOutstandingMessages = cfg.MaxOutstanding
	}
	if cfg.ReceiveGoroutines > 0 {
		settings.NumGoroutines = cfg.ReceiveGoroutines
	}
	return settings
}

// verify looks up the topic and, when configured, the subscription.
func (c *Client) verify(ctx context.Context) error {
	_, err := c.conn.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: c.topic})
	if err := lookupError("topic", c.topic, err); err != nil {
		return err
	}
	if c.subscription == "" {
		return nil
	}
	_, err = c.conn.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: c.subscription})
	return lookupError("subscription", c.subscription, err)
}

func lookupError(kind, name string, err error) error {
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("pubsub: %s %q does not exist", kind, name)
	default:
		return fmt.Errorf("pubsub: look up %s %q: %w", kind, name, err)
	}
}

// OrdersSubscription is the fulfillment worker's subscriber, with the
// configured flow control applied.
func (c *Client) OrdersSubscription() *pubsub.Subscriber {
	if c == nil || c.conn == nil || c.subscription == "" {
		return nil
	}
	sub := c.conn.Subscriber(c.subscription)
	sub.ReceiveSettings = c.receive
	return sub
}

// Publisher accepts a short topic id or a full resource name.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	if c == nil || c.conn == nil {
		return nil
	}
	full := topicResourceName(c.project, name)
	if full == "" {
		return nil
	}
	return c.conn.Publisher(full)
}

// Ping repeats the start-up resource lookup.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.conn == nil {
		return errNotInitialized
	}
	return c.verify(ctx)
}

func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func subscriptionResourceName(projectID, name string) string {
	return resourceName(projectID, "subscriptions", name)
}

func topicResourceName(projectID, name string) string {
	return resourceName(projectID, "topics", name)
}

// resourceName expands an id to projects/<p>/<kind>/<id>. Full names pass
// through.
func resourceName(projectID, kind, name string) string {
	name = strings.TrimSpace(name)
	projectID = strings.TrimSpace(projectID)
	switch {
	case name == "":
		return ""
	case strings.HasPrefix(name, "projects/") && strings.Contains(name, "/"+kind+"/"):
		return name
	case projectID == "":
		return ""
	}
	return "projects/" + projectID + "/" + kind + "/" + name
}
