package config

import (
	"time"

	"github.com/rs/zerolog/log"
)

// Endpoints describes how to reach the guardian gateway that submits claims,
// compounds and reports the treasury balance.
type Endpoints struct {
	// GuardianGRPC is the host:port of the guardian gateway.
	GuardianGRPC string
	// CallTimeout bounds every unary call to the gateway.
	CallTimeout time.Duration
}

// loadEndpointConfig loads endpoint configuration from environment variables.
// This function is called by Load() in General.go.
func loadEndpointConfig() (Endpoints, error) {
	log.Info().Msg("Loading endpoint configuration from environment variables...")

	var ep Endpoints
	var err error

	if ep.GuardianGRPC, err = getEnv("GUARDIAN_GRPC"); err != nil {
		return ep, err
	}
	if ep.CallTimeout, err = getEnvAsDurationDefault("GUARDIAN_CALL_TIMEOUT", DefaultCallTimeout); err != nil {
		return ep, err
	}

	log.Debug().
		Str("GuardianGRPC", ep.GuardianGRPC).
		Dur("CallTimeout", ep.CallTimeout).
		Msg("Endpoint configuration loaded successfully.")

	return ep, nil
}
