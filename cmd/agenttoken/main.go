// agenttoken prints a bearer token for a validation agent, signed with the service's JWT key.
// JWT_PRIVATE_KEY and JWT_PUBLIC_KEY must be set to the keys the server uses.
package main

import (
	"flag"
	"fmt"
	"os"

	"merchant-voice-auth/internal/config"
	"merchant-voice-auth/internal/logging"
	"merchant-voice-auth/internal/security"
)

func main() {
	agentID := flag.String("agent", "", "agent id (subject of the token)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.New("text", "info").Error("config", "error", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogFormat, cfg.LogLevel)
	if *agentID == "" {
		logger.Error("-agent is required")
		os.Exit(2)
	}

	signer, pub, generated, err := security.LoadSigningKeys(cfg.JWTPrivateKey, cfg.JWTPublicKey)
	if err != nil {
		logger.Error("session keys", "error", err)
		os.Exit(1)
	}
	if generated {
		logger.Error("JWT_PRIVATE_KEY and JWT_PUBLIC_KEY are not set; a token from an ephemeral key is useless")
		os.Exit(1)
	}
	tokens := security.NewTokenProvider(signer, pub, cfg.JWTIssuer, cfg.JWTAudience, cfg.SessionLifetime())
	token, expiresAt, err := tokens.IssueAgent(*agentID)
	if err != nil {
		logger.Error("issue", "error", err)
		os.Exit(1)
	}
	logger.Info("agent token issued", "agent_id", *agentID, "expires_at", expiresAt)
	fmt.Println(token)
}
