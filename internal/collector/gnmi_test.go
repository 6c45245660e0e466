package collector

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/openconfig/gnmi/proto/gnmi"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
)

type capabilitiesServer struct {
	gnmi.UnimplementedGNMIServer
}

func (capabilitiesServer) Capabilities(context.Context, *gnmi.CapabilityRequest) (*gnmi.CapabilityResponse, error) {
	return &gnmi.CapabilityResponse{
		SupportedModels: []*gnmi.ModelData{
			{Name: "ict-engine", Organization: "ict", Version: "1.0.0"},
			{Name: "ict-broker", Organization: "ict", Version: "1.0.0"},
		},
		GNMIVersion: "0.10.0",
	}, nil
}

func startTarget(t *testing.T) int {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := grpc.NewServer()
	gnmi.RegisterGNMIServer(srv, capabilitiesServer{})
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	return lis.Addr().(*net.TCPAddr).Port
}

func TestTestConnection(t *testing.T) {
	port := startTarget(t)

	col, err := NewCollector(Options{Address: "127.0.0.1", Port: port}, zerolog.Nop())
	require.NoError(t, err)
	defer col.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	models, version, err := col.TestConnection(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, models)
	assert.Equal(t, "0.10.0", version)
}

func TestTestConnection_Unreachable(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := lis.Addr().(*net.TCPAddr).Port
	require.NoError(t, lis.Close())

	col, err := NewCollector(Options{Address: "127.0.0.1", Port: port}, zerolog.Nop())
	require.NoError(t, err)
	defer col.Close()
	col.dialTimeout = 200 * time.Millisecond

	_, _, err = col.TestConnection(context.Background())
	assert.Error(t, err)
}
