package main

import (
	"context"
	"net/http"
	"followtrace-backend/lib/configuration"
	followerdb "followtrace-backend/lib/followerstore/db"
	"followtrace-backend/lib/serviceutil"
	"followtrace-backend/lib/telemetry"
	"followtrace-backend/services/keychain"
	keychaindb "followtrace-backend/services/keychain/db"
	"followtrace-backend/services/ledger"
	ledgerdb "followtrace-backend/services/ledger/db"
	"followtrace-backend/services/scanner"
	scannerdb "followtrace-backend/services/scanner/db"
	"followtrace-backend/services/scanner/executor"
	"followtrace-backend/services/scanner/executor/directapi"
	"followtrace-backend/services/scanner/executor/sandbox"
	"followtrace-backend/services/scanner/executor/scrapeservice"

	"github.com/joho/godotenv"
)

func main() {
	godotenv.Load()

	ctx := serviceutil.SignalContext()

	config, err := configuration.ReadConfig[Config]("config.json5")
	if err != nil {
		serviceutil.Fatal("failed to read config", err)
	}
	if config.Port == 0 {
		config.Port = 8480
	}

	db, err := config.Database.OpenDB()
	if err != nil {
		serviceutil.Fatal("failed to open database", err)
	}
	for _, schema := range []string{
		scannerdb.Schema,
		followerdb.Schema,
		ledgerdb.Schema,
		keychaindb.Schema,
	} {
		_, err = db.Exec(schema)
		if err != nil {
			serviceutil.Fatal("failed to apply schema", err)
		}
	}

	t, err := telemetry.SetupFromEnv(ctx, "scannerd")
	if err != nil {
		serviceutil.Fatal("failed to setup telemetry", err)
	}
	defer t.Shutdown(context.Background())
	telemetry.InstrumentPerfStats(ctx)

	directClient := directapi.NewClient(config.DirectApi)
	sandboxClient := sandbox.NewClient(config.Sandbox)
	scrapeClient := scrapeservice.NewClient(config.ScrapeService)

	ledgerService := ledger.NewService(db, ledger.Options{
		DefaultQuotas: config.DefaultQuotas,
	})
	keychainService := keychain.NewService(ctx, db)
	scannerService := scanner.NewService(ctx, db, scanner.Collaborators{
		Ledger:   ledgerService,
		Keychain: keychainService,
		Executors: map[string]executor.Executor{
			executor.MethodDirectAPI:       directClient,
			executor.MethodSandboxBrowser:  sandboxClient,
			executor.MethodScrapingService: scrapeClient,
		},
		Releaser: sandboxClient,
		Checker:  directClient,
	}, config.Scanner.Options())
	defer scannerService.Shutdown()

	api := Api{
		scanner:  scannerService,
		ledger:   ledgerService,
		keychain: keychainService,
	}
	mux := http.NewServeMux()
	api.Register(mux)
	go serviceutil.StartHttpServer(config.Port, mux)

	<-ctx.Done()
}
