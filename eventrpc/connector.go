package eventrpc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Connector is the producer-side reverse-connect client: it dials the
// consumer's per-brick UNIX socket and redials with exponential backoff on
// failure, exactly as modules/route/bird-adapter/service.go's
// reconnectStream redials its gRPC stream (SPEC_FULL.md §4.4).
type Connector struct {
	target string
	log    *zap.SugaredLogger

	mu     sync.Mutex
	conn   *grpc.ClientConn
	client EventServiceClient
}

// NewConnector builds a connector for the UNIX socket at socketPath, used
// as given; no name is derived from the brick path.
func NewConnector(socketPath string, log *zap.SugaredLogger) *Connector {
	return &Connector{target: "unix:" + socketPath, log: log}
}

// dial builds the gRPC client for target. grpc.NewClient does no I/O: the
// connection itself is opened on the first Deliver.
func (c *Connector) dial(ctx context.Context) error {
	conn, err := grpc.NewClient(c.target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("eventrpc: dial %s: %w", c.target, err)
	}
	c.mu.Lock()
	c.conn = conn
	c.client = NewEventServiceClient(conn)
	c.mu.Unlock()
	return nil
}

// Connect blocks, retrying dial with exponential backoff, until the client
// is built or ctx is cancelled; it does not wait for the socket to accept
// (spec.md §9 REDESIGN FLAGS notes the
// original's reconnect loop is consumer-`max_reconnects`-gated; here the
// producer side always keeps retrying, see SPEC_FULL.md §4.4).
func (c *Connector) Connect(ctx context.Context) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		if err := c.dial(ctx); err != nil {
			c.log.Warnw("reverse-connect attempt failed, retrying", "target", c.target, "error", err)
			return struct{}{}, err
		}
		return struct{}{}, nil
	}, backoff.WithBackOff(&backoff.ExponentialBackOff{
		InitialInterval:     500 * time.Millisecond,
		RandomizationFactor: backoff.DefaultRandomizationFactor,
		Multiplier:          backoff.DefaultMultiplier,
		MaxInterval:         30 * time.Second,
	}))
	return err
}

// Deliver forwards one dispatcher batch to the consumer's Endpoint.
func (c *Connector) Deliver(ctx context.Context, in *EventEnvelope) (*EventAck, error) {
	c.mu.Lock()
	client := c.client
	c.mu.Unlock()
	if client == nil {
		return nil, fmt.Errorf("eventrpc: connector not connected to %s", c.target)
	}
	return client.Deliver(ctx, in)
}

func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}
