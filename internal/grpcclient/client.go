package grpcclient

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"

	apperrors "github.com/phoneixtaperlabs/shadow-screenshot/internal/errors"
	"github.com/phoneixtaperlabs/shadow-screenshot/internal/grpcserver"
	"github.com/phoneixtaperlabs/shadow-screenshot/internal/resilience"
	"github.com/phoneixtaperlabs/shadow-screenshot/internal/trace"
)

// Client wraps the daemon's health client.
type Client struct {
	conn   *grpc.ClientConn
	health healthpb.HealthClient
	retry  resilience.RetryConfig
}

// Status is what a probe learned about the daemon.
type Status struct {
	Up        bool // process-level service is SERVING
	Capturing bool // capture service is SERVING
}

// New creates a client for addr. Extra options are appended to the
// defaults, which is how tests inject an in-memory dialer.
func New(addr string, opts ...grpc.DialOption) (*Client, error) {
	base := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:    DefaultKeepaliveTime,
			Timeout: DefaultKeepaliveTimeout,
		}),
		grpc.WithChainUnaryInterceptor(trace.UnaryClientInterceptor()),
		grpc.WithChainStreamInterceptor(trace.StreamClientInterceptor()),
	}
	conn, err := grpc.NewClient(addr, append(base, opts...)...)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.CodeInvalidArgument, "dial %s", addr)
	}
	return &Client{conn: conn, health: healthpb.NewHealthClient(conn), retry: resilience.ProbeRetryConfig()}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Status probes both health services, retrying transient failures.
func (c *Client) Status(ctx context.Context) (Status, error) {
	ctx, span := trace.StartSpan(ctx, "daemon_status")
	defer span.End()

	up, err := c.check(ctx, "")
	if err != nil {
		span.SetAttr("error", err.Error())
		return Status{}, apperrors.FromGRPCError(err)
	}
	capturing, err := c.check(ctx, grpcserver.ServiceName)
	if err != nil {
		span.SetAttr("error", err.Error())
		return Status{}, apperrors.FromGRPCError(err)
	}
	return Status{Up: up, Capturing: capturing}, nil
}

func (c *Client) check(ctx context.Context, service string) (bool, error) {
	var serving bool
	err := resilience.Retry(ctx, c.retry, func() error {
		callCtx, cancel := context.WithTimeout(ctx, HealthCheckTimeout)
		defer cancel()
		resp, err := c.health.Check(callCtx, &healthpb.HealthCheckRequest{Service: service})
		if err != nil {
			return err
		}
		serving = resp.GetStatus() == healthpb.HealthCheckResponse_SERVING
		return nil
	})
	return serving, err
}
