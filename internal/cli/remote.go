package cli

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/matzehuels/kinship/pkg/backend"
	"github.com/matzehuels/kinship/pkg/config"
	kerrors "github.com/matzehuels/kinship/pkg/errors"
	"github.com/matzehuels/kinship/pkg/feed"
	"github.com/matzehuels/kinship/pkg/feed/mongofeed"
	"github.com/matzehuels/kinship/pkg/feed/realtime"
	"github.com/matzehuels/kinship/pkg/feed/redisfeed"
)

// =============================================================================
// Backend
// =============================================================================

func (c *CLI) openPostgres(ctx context.Context) (*backend.Postgres, error) {
	dsn := c.Config.Backend.DatabaseURL
	if dsn == "" {
		return nil, kerrors.New(kerrors.ErrCodeInvalidInput,
			"no database configured: set backend.database_url or KINSHIP_DATABASE_URL")
	}
	return backend.OpenPostgres(ctx, dsn)
}

func (c *CLI) newFunctions() (*backend.Functions, error) {
	b := c.Config.Backend
	if b.URL == "" {
		return nil, kerrors.New(kerrors.ErrCodeInvalidInput,
			"no backend configured: set backend.url or KINSHIP_BACKEND_URL")
	}
	return backend.NewFunctions(
		strings.TrimRight(b.URL, "/")+"/functions/v1",
		b.AccessToken,
		backend.WithAPIKey(b.AnonKey),
		backend.WithHTTPClient(&http.Client{Timeout: b.Timeout}),
	)
}

// realtimeURL derives the websocket endpoint from the project URL.
func realtimeURL(base string) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil || u.Host == "" {
		return "", kerrors.New(kerrors.ErrCodeInvalidInput, "invalid backend URL %q", base)
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path += "/realtime/v1/websocket"
	return u.String(), nil
}

// =============================================================================
// Change Feed
// =============================================================================

// newFeed connects the configured change-feed transport. It returns a nil
// client for transport "none". The returned func releases the connection
// and must be called after every subscription is closed.
func (c *CLI) newFeed(ctx context.Context) (*feed.Client, func(), error) {
	f := c.Config.Feed
	var (
		t       feed.Transport
		release = func() {}
	)
	switch f.Transport {
	case config.FeedNone:
		return nil, release, nil

	case config.FeedRealtime:
		if c.Config.Backend.URL == "" {
			return nil, nil, kerrors.New(kerrors.ErrCodeInvalidInput,
				"the realtime feed needs backend.url; set feed.transport = \"none\" to watch a static snapshot")
		}
		endpoint, err := realtimeURL(c.Config.Backend.URL)
		if err != nil {
			return nil, nil, err
		}
		rt, err := realtime.New(realtime.Config{
			URL:         endpoint,
			APIKey:      c.Config.Backend.AnonKey,
			AccessToken: c.Config.Backend.AccessToken,
			Heartbeat:   f.Heartbeat,
		})
		if err != nil {
			return nil, nil, err
		}
		t = rt

	case config.FeedRedis:
		client := redis.NewClient(&redis.Options{Addr: f.RedisAddr})
		t = redisfeed.New(client)
		release = func() { _ = client.Close() }

	case config.FeedMongo:
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(f.MongoURI))
		if err != nil {
			return nil, nil, kerrors.Wrap(kerrors.ErrCodeRemoteCall, err, "could not connect to MongoDB")
		}
		t = mongofeed.New(client.Database(f.MongoDatabase))
		release = func() { _ = client.Disconnect(context.Background()) }

	default:
		return nil, nil, kerrors.New(kerrors.ErrCodeInvalidInput, "unknown feed transport %q", f.Transport)
	}

	c.Logger.Debug("change feed", "transport", t.Name())
	return feed.NewClient(t, feed.WithLogger(c.Logger), feed.WithReconnect(f.Reconnect, feed.DefaultReconnectBurst)), release, nil
}
