// Command copilot is a terminal version of the portfolio chat widget. It
// talks to the same hosted agent as the Lambda and keeps the transcript in
// memory until /reset or exit.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"portfolio-copilot/internal/chat"
	"portfolio-copilot/internal/config"
	"portfolio-copilot/internal/integrations/agent"
	"portfolio-copilot/internal/integrations/paramstore"
	"portfolio-copilot/internal/logging"
	"portfolio-copilot/internal/usecase"
)

const prompt = "you> "

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg := config.Load()
	logger := logging.Setup(os.Stderr, cfg.LogLevel, "text")
	if err := cfg.ValidateTerminal(); err != nil {
		logger.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	askService, err := newAskService(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to start", "err", err)
		os.Exit(1)
	}

	if err := run(ctx, os.Stdin, os.Stdout, askService); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("chat ended with error", "err", err)
		os.Exit(1)
	}
}

func newAskService(ctx context.Context, cfg config.Config, logger *slog.Logger) (*usecase.AskService, error) {
	identity := agent.Identity{UserID: cfg.AgentUserID, AgentID: cfg.AgentID}
	opts := []agent.Option{
		agent.WithEndpoint(cfg.AgentEndpoint),
		agent.WithHTTPClient(&http.Client{Timeout: cfg.AgentTimeout}),
	}

	var getter agent.Getter
	if cfg.AgentAPIKey != "" {
		opts = append(opts, agent.WithAPIKey(cfg.AgentAPIKey))
	} else {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}
		ps, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
		if err != nil {
			return nil, err
		}
		getter = ps
	}

	client, err := agent.NewClient(getter, cfg.APIKeyParam(), identity, opts...)
	if err != nil {
		return nil, err
	}
	return usecase.NewAskService(client, usecase.NewLocalGate(), cfg.MaxMessageLength, logger)
}

// run reads one message per line from in and writes the transcript to out.
// "/reset" starts a fresh session, "/quit" or EOF ends the loop.
func run(ctx context.Context, in io.Reader, out io.Writer, asker chat.Asker) error {
	session, err := chat.NewSession(asker)
	if err != nil {
		return err
	}
	printAssistant(out, session.Messages()[0].Content)

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, prompt)
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "/quit", "/exit":
			return nil
		case "/reset":
			if session, err = chat.NewSession(asker); err != nil {
				return err
			}
			printAssistant(out, session.Messages()[0].Content)
			continue
		}

		msg, ok, err := session.Send(ctx, line)
		if err != nil {
			return err
		}
		if ok {
			printAssistant(out, msg.Content)
		}
	}
}

func printAssistant(out io.Writer, content string) {
	fmt.Fprintf(out, "co-pilot> %s\n", content)
}
