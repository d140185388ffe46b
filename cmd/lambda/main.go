// Command lambda serves vanishbin from AWS Lambda behind an HTTP API or a
// function URL (payload format 2.0).
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"

	"vanishbin/internal/app"
	"vanishbin/internal/config"
	"vanishbin/internal/logging"
)

func main() {
	cfg, err := config.Load(nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	// The local filesystem does not outlive an invocation.
	if _, ok := os.LookupEnv("VANISHBIN_STORE_BACKEND"); !ok {
		cfg.Store.Backend = "dynamodb"
	}
	if _, ok := os.LookupEnv("VANISHBIN_LOG_FORMAT"); !ok {
		cfg.Log.Format = "json"
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	logger, _, err := logging.New(cfg.Log, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(2)
	}

	a, err := app.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to construct server", "error", err)
		os.Exit(1)
	}

	adapter := httpadapter.NewV2(a.Handler)
	lambda.Start(adapter.ProxyWithContext)
}
