// custodianhub is the hub-account entrypoint for event-driven policy
// execution across tenant accounts. It normally runs under Lambda; the
// -event flag replays a JSON event file locally for debugging.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"github.com/catherinevee/custodianhub/internal/config"
	"github.com/catherinevee/custodianhub/internal/credentials"
	"github.com/catherinevee/custodianhub/internal/logger"
	"github.com/catherinevee/custodianhub/internal/runtime"
)

func main() {
	eventFile := flag.String("event", "", "path to a JSON event file to process locally instead of serving Lambda")
	checkAccount := flag.String("check", "", "account ID to probe for cross-account role access, then exit")
	dryrun := flag.Bool("dryrun", false, "evaluate filters but skip all actions")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}
	logger.Initialize(cfg.LogLevel)

	ctx := context.Background()
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load credentials: %v\n", err)
		os.Exit(1)
	}

	if *checkAccount != "" {
		if err := runCheck(ctx, cfg, awsCfg, *checkAccount); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		return
	}

	handler := runtime.New(cfg, awsCfg, *dryrun)

	if *eventFile != "" {
		if err := runLocal(ctx, handler, *eventFile); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		return
	}

	lambda.Start(handler.Handle)
}

// runCheck assumes the execution role in the given account and verifies the
// resulting session answers a caller-identity call.
func runCheck(ctx context.Context, cfg *config.Config, awsCfg aws.Config, accountID string) error {
	broker := credentials.NewBroker(awsCfg, cfg.CrossAccountRoleName, cfg.ExternalIDPrefix)

	session, err := broker.Acquire(ctx, accountID, awsCfg.Region)
	if err != nil {
		return fmt.Errorf("failed to assume role in %s: %w", accountID, err)
	}
	if err := broker.TestConnectivity(ctx, session); err != nil {
		return fmt.Errorf("connectivity check failed for %s: %w", accountID, err)
	}
	fmt.Printf("ok: %s reachable via %s\n", accountID, broker.RoleARN(accountID))
	return nil
}

// runLocal replays one event file through the handler and prints the
// response the platform would have seen.
func runLocal(ctx context.Context, handler *runtime.Handler, path string) error {
	body, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read event file: %w", err)
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return fmt.Errorf("failed to parse event file: %w", err)
	}

	resp, err := handler.Handle(ctx, raw)
	if err != nil {
		return err
	}
	fmt.Printf("status: %d\n%s\n", resp.StatusCode, resp.Body)
	return nil
}
