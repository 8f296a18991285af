package session

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"

	"github.com/netobserv-lab/gnmi-exporter/internal/model"
	gpb "github.com/openconfig/gnmi/proto/gnmi"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

// Dialer opens a gNMI client for a target. Sessions own the returned
// closer exclusively and close it on every reconnect.
type Dialer func(cfg model.TargetConfig) (gpb.GNMIClient, io.Closer, error)

// grpcDial is the production dialer.
func grpcDial(cfg model.TargetConfig) (gpb.GNMIClient, io.Closer, error) {
	var creds grpc.DialOption
	if cfg.TLS {
		creds = grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{}))
	} else {
		creds = grpc.WithTransportCredentials(insecure.NewCredentials())
	}

	conn, err := grpc.NewClient(cfg.Address, creds)
	if err != nil {
		return nil, nil, fmt.Errorf("session: dial %s: %w", cfg.Address, err)
	}
	return gpb.NewGNMIClient(conn), conn, nil
}

// withCredentials attaches the per-RPC username/password metadata the
// way gNMI devices conventionally expect it.
func withCredentials(ctx context.Context, cfg model.TargetConfig) context.Context {
	if cfg.Username == "" && cfg.Password == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx,
		"username", cfg.Username,
		"password", cfg.Password)
}
