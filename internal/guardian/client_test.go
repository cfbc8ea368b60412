package guardian

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

const treasury = "11111111111111111111111111111111"

// fakeGateway records requests and answers with canned responses.
type fakeGateway struct {
	mu        sync.Mutex
	requests  map[string][]map[string]interface{}
	responses map[string]map[string]interface{}
	delay     time.Duration
}

func (g *fakeGateway) handler(method string) grpc.MethodHandler {
	return func(_ interface{}, ctx context.Context, dec func(interface{}) error, _ grpc.UnaryServerInterceptor) (interface{}, error) {
		req := &structpb.Struct{}
		if err := dec(req); err != nil {
			return nil, err
		}
		g.mu.Lock()
		g.requests[method] = append(g.requests[method], req.AsMap())
		resp := g.responses[method]
		delay := g.delay
		g.mu.Unlock()

		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		return structpb.NewStruct(resp)
	}
}

func (g *fakeGateway) lastRequest(method string) map[string]interface{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	reqs := g.requests["/"+ServiceName+"/"+method]
	if len(reqs) == 0 {
		return nil
	}
	return reqs[len(reqs)-1]
}

func startGateway(t *testing.T, responses map[string]map[string]interface{}) (*fakeGateway, *grpc.ClientConn) {
	t.Helper()
	gw := &fakeGateway{requests: map[string][]map[string]interface{}{}, responses: map[string]map[string]interface{}{}}
	for name, resp := range responses {
		gw.responses["/"+ServiceName+"/"+name] = resp
	}

	desc := grpc.ServiceDesc{
		ServiceName: ServiceName,
		HandlerType: (*interface{})(nil),
	}
	for _, name := range []string{"SubmitClaim", "SubmitCompound", "GetTreasuryBalance"} {
		desc.Methods = append(desc.Methods, grpc.MethodDesc{MethodName: name, Handler: gw.handler("/" + ServiceName + "/" + name)})
	}

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	srv.RegisterService(&desc, gw)
	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.Dial("bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return gw, conn
}

func newTestClient(t *testing.T, conn *grpc.ClientConn) *Client {
	t.Helper()
	c, err := NewClient(conn, Config{TreasuryWallet: treasury, Denom: "brain", Precision: 9, CallTimeout: time.Second})
	require.NoError(t, err)
	return c
}

func TestSubmitClaim(t *testing.T) {
	gw, conn := startGateway(t, map[string]map[string]interface{}{
		"SubmitClaim": {"success": true, "tx_hash": "5xYz"},
	})
	c := newTestClient(t, conn)

	receipt, err := c.SubmitClaim(context.Background(), "holder", 13.333333333333334)
	require.NoError(t, err)
	assert.Equal(t, "5xYz", receipt.TxRef)

	req := gw.lastRequest("SubmitClaim")
	assert.Equal(t, "holder", req["wallet"])
	assert.Equal(t, "13333333333brain", req["amount"])
}

func TestSubmitClaimRejected(t *testing.T) {
	_, conn := startGateway(t, map[string]map[string]interface{}{
		"SubmitClaim": {"success": false, "error": "insufficient funds"},
	})
	c := newTestClient(t, conn)

	_, err := c.SubmitClaim(context.Background(), "holder", 1)
	assert.ErrorIs(t, err, ErrRejected)
	assert.ErrorContains(t, err, "insufficient funds")
}

func TestSubmitClaimRejectsDust(t *testing.T) {
	gw, conn := startGateway(t, nil)
	c := newTestClient(t, conn)

	_, err := c.SubmitClaim(context.Background(), "holder", 1e-12)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	assert.Nil(t, gw.lastRequest("SubmitClaim"))
}

func TestSubmitClaimTimesOut(t *testing.T) {
	gw, conn := startGateway(t, map[string]map[string]interface{}{
		"SubmitClaim": {"success": true, "tx_hash": "late"},
	})
	gw.delay = 500 * time.Millisecond
	c, err := NewClient(conn, Config{TreasuryWallet: treasury, Denom: "brain", Precision: 9, CallTimeout: 50 * time.Millisecond})
	require.NoError(t, err)

	_, err = c.SubmitClaim(context.Background(), "holder", 1)
	assert.ErrorIs(t, err, ErrCallFailed)
}

func TestSubmitCompound(t *testing.T) {
	gw, conn := startGateway(t, map[string]map[string]interface{}{
		"SubmitCompound": {"success": true},
	})
	c := newTestClient(t, conn)

	require.NoError(t, c.SubmitCompound(context.Background(), "whale", 40))
	assert.Equal(t, "40000000000brain", gw.lastRequest("SubmitCompound")["amount"])
}

func TestGetTreasuryBalance(t *testing.T) {
	gw, conn := startGateway(t, map[string]map[string]interface{}{
		"GetTreasuryBalance": {"success": true, "balance": "1500000000"},
	})
	c := newTestClient(t, conn)

	balance, err := c.GetTreasuryBalance(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 1.5, balance, 1e-12)
	assert.Equal(t, treasury, gw.lastRequest("GetTreasuryBalance")["wallet"])
}

func TestGetTreasuryBalanceInvalid(t *testing.T) {
	_, conn := startGateway(t, map[string]map[string]interface{}{
		"GetTreasuryBalance": {"success": true, "balance": "lots"},
	})
	c := newTestClient(t, conn)

	_, err := c.GetTreasuryBalance(context.Background())
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestPing(t *testing.T) {
	_, conn := startGateway(t, nil)
	c := newTestClient(t, conn)
	assert.NoError(t, c.Ping(context.Background()))
}

func TestClosedConnection(t *testing.T) {
	_, conn := startGateway(t, nil)
	c := newTestClient(t, conn)
	require.NoError(t, conn.Close())

	_, err := c.SubmitClaim(context.Background(), "holder", 1)
	assert.True(t, errors.Is(err, ErrInvalidConnection))
}

func TestNewClientValidation(t *testing.T) {
	_, conn := startGateway(t, nil)
	good := Config{TreasuryWallet: treasury, Denom: "brain", Precision: 9, CallTimeout: time.Second}

	_, err := NewClient(nil, good)
	assert.ErrorIs(t, err, ErrInvalidConnection)

	bad := good
	bad.Denom = "1"
	_, err = NewClient(conn, bad)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	bad = good
	bad.TreasuryWallet = "nope"
	_, err = NewClient(conn, bad)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	bad = good
	bad.CallTimeout = 0
	_, err = NewClient(conn, bad)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
