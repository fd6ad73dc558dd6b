package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"portfolio-copilot/handler"
	"portfolio-copilot/internal/config"
	"portfolio-copilot/internal/integrations/agent"
	"portfolio-copilot/internal/integrations/paramstore"
	"portfolio-copilot/internal/logging"
	"portfolio-copilot/internal/repository"
	"portfolio-copilot/internal/usecase"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	cfg := config.Load()
	logger := logging.Setup(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	if err := cfg.ValidateLambda(); err != nil {
		fatal(logger, "invalid configuration", err)
	}

	// ---- AWS SDK config ----
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		fatal(logger, "failed to load AWS config", err)
	}

	// ---- Clients ----
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
	if err != nil {
		fatal(logger, "failed to create SSM client", err)
	}
	gate, err := repository.NewGate(awsdynamodb.NewFromConfig(awsCfg), cfg.GateTable, repository.WithLease(cfg.GateLease))
	if err != nil {
		fatal(logger, "failed to create session gate", err)
	}
	agentClient, err := agent.NewClient(ssmClient, cfg.APIKeyParam(),
		agent.Identity{UserID: cfg.AgentUserID, AgentID: cfg.AgentID},
		agent.WithEndpoint(cfg.AgentEndpoint),
		agent.WithHTTPClient(&http.Client{Timeout: cfg.AgentTimeout}),
	)
	if err != nil {
		fatal(logger, "failed to create agent client", err)
	}

	// ---- Handler ----
	askService, err := usecase.NewAskService(agentClient, gate, cfg.MaxMessageLength, logger)
	if err != nil {
		fatal(logger, "failed to create ask service", err)
	}
	h, err := handler.NewHandler(askService,
		handler.WithAllowedOrigin(cfg.AllowedOrigin),
		handler.WithLogger(logger),
	)
	if err != nil {
		fatal(logger, "failed to create handler", err)
	}

	lambda.Start(h.Handle)
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "err", err)
	os.Exit(1)
}
