package guardian

import (
	"context"
	"errors"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/elys-network/rdm/internal/logger"
	"github.com/elys-network/rdm/internal/settlement"
	"github.com/elys-network/rdm/internal/types"
	"github.com/elys-network/rdm/internal/utils"
)

// Error definitions for zero-tolerance error handling
var (
	ErrInvalidConnection = errors.New("connection is invalid")
	ErrInvalidConfig     = errors.New("guardian client config is invalid")
	ErrInvalidAmount     = errors.New("amount is invalid")
	ErrCallFailed        = errors.New("guardian call failed")
	ErrRejected          = errors.New("guardian rejected the request")
	ErrInvalidResponse   = errors.New("response data is invalid")
)

// Full method names on the guardian gateway.
const (
	ServiceName              = "guardian.v1.Guardian"
	MethodSubmitClaim        = "/" + ServiceName + "/SubmitClaim"
	MethodSubmitCompound     = "/" + ServiceName + "/SubmitCompound"
	MethodGetTreasuryBalance = "/" + ServiceName + "/GetTreasuryBalance"
)

// Config describes the reward token and call limits.
type Config struct {
	TreasuryWallet string
	Denom          string
	Precision      int
	CallTimeout    time.Duration
}

// Client talks to the guardian gateway. Transaction construction and signing
// happen behind the gateway; every call here is a unary request carrying a
// structpb payload.
type Client struct {
	conn   *grpc.ClientConn
	cfg    Config
	logger zerolog.Logger
}

var (
	_ settlement.ClaimSubmitter    = (*Client)(nil)
	_ settlement.CompoundSubmitter = (*Client)(nil)
)

// NewClient validates the configuration and wraps an established connection.
func NewClient(conn *grpc.ClientConn, cfg Config) (*Client, error) {
	if conn == nil {
		return nil, fmt.Errorf("%w: gRPC connection is nil", ErrInvalidConnection)
	}
	if err := sdk.ValidateDenom(cfg.Denom); err != nil {
		return nil, fmt.Errorf("%w: denom: %w", ErrInvalidConfig, err)
	}
	if cfg.Precision < 0 || cfg.Precision > 18 {
		return nil, fmt.Errorf("%w: precision %d", ErrInvalidConfig, cfg.Precision)
	}
	if cfg.CallTimeout <= 0 {
		return nil, fmt.Errorf("%w: call timeout must be positive", ErrInvalidConfig)
	}
	if err := types.ValidateWallet(cfg.TreasuryWallet); err != nil {
		return nil, fmt.Errorf("%w: treasury: %w", ErrInvalidConfig, err)
	}
	return &Client{
		conn:   conn,
		cfg:    cfg,
		logger: logger.GetForComponent("guardian_client"),
	}, nil
}

// SubmitClaim pays amount tokens out to wallet and returns the tx hash.
func (c *Client) SubmitClaim(ctx context.Context, wallet string, amount float64) (settlement.ClaimReceipt, error) {
	coin, err := c.coin(amount)
	if err != nil {
		return settlement.ClaimReceipt{}, err
	}
	resp, err := c.invoke(ctx, MethodSubmitClaim, map[string]interface{}{
		"wallet": wallet,
		"amount": coin.String(),
	})
	if err != nil {
		return settlement.ClaimReceipt{}, err
	}
	txRef := resp.GetFields()["tx_hash"].GetStringValue()
	if txRef == "" {
		return settlement.ClaimReceipt{}, fmt.Errorf("%w: claim accepted without tx_hash", ErrInvalidResponse)
	}
	c.logger.Debug().Str("wallet", wallet).Str("amount", coin.String()).Str("txHash", txRef).Msg("Claim broadcast")
	return settlement.ClaimReceipt{TxRef: txRef}, nil
}

// SubmitCompound stakes amount tokens on behalf of wallet.
func (c *Client) SubmitCompound(ctx context.Context, wallet string, amount float64) error {
	coin, err := c.coin(amount)
	if err != nil {
		return err
	}
	_, err = c.invoke(ctx, MethodSubmitCompound, map[string]interface{}{
		"wallet": wallet,
		"amount": coin.String(),
	})
	return err
}

// GetTreasuryBalance returns the treasury balance in tokens.
func (c *Client) GetTreasuryBalance(ctx context.Context) (float64, error) {
	resp, err := c.invoke(ctx, MethodGetTreasuryBalance, map[string]interface{}{
		"wallet": c.cfg.TreasuryWallet,
		"denom":  c.cfg.Denom,
	})
	if err != nil {
		return 0, err
	}
	raw := resp.GetFields()["balance"].GetStringValue()
	balance, ok := sdkmath.NewIntFromString(raw)
	if !ok {
		return 0, fmt.Errorf("%w: balance %q is not an integer", ErrInvalidResponse, raw)
	}
	tokens, err := utils.BaseUnitsToTokens(balance, c.cfg.Precision)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	return tokens, nil
}

// Ping checks the gateway's health service.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()

	resp, err := healthpb.NewHealthClient(c.conn).Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return fmt.Errorf("%w: health check: %w", ErrCallFailed, err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("%w: guardian status %s", ErrInvalidConnection, resp.GetStatus())
	}
	return nil
}

func (c *Client) coin(amount float64) (sdk.Coin, error) {
	units, err := utils.TokensToBaseUnits(amount, c.cfg.Precision)
	if err != nil {
		return sdk.Coin{}, fmt.Errorf("%w: %w", ErrInvalidAmount, err)
	}
	if !units.IsPositive() {
		return sdk.Coin{}, fmt.Errorf("%w: %v tokens is below one base unit", ErrInvalidAmount, amount)
	}
	return sdk.NewCoin(c.cfg.Denom, units), nil
}

func (c *Client) invoke(ctx context.Context, method string, payload map[string]interface{}) (*structpb.Struct, error) {
	if err := c.ensureConnection(); err != nil {
		return nil, err
	}
	req, err := structpb.NewStruct(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %w", ErrCallFailed, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()

	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, method, req, resp); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCallFailed, method, err)
	}
	if !resp.GetFields()["success"].GetBoolValue() {
		reason := resp.GetFields()["error"].GetStringValue()
		if reason == "" {
			reason = "no reason given"
		}
		return nil, fmt.Errorf("%w: %s: %s", ErrRejected, method, reason)
	}
	return resp, nil
}

// ensureConnection ensures we have a usable gRPC connection
func (c *Client) ensureConnection() error {
	switch c.conn.GetState() {
	case connectivity.Shutdown:
		return fmt.Errorf("%w: gRPC connection is shut down", ErrInvalidConnection)
	case connectivity.TransientFailure:
		c.conn.Connect()
		return fmt.Errorf("%w: gRPC connection is in transient failure", ErrInvalidConnection)
	}
	return nil
}
