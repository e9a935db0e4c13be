package main

import (
	"time"
	"followtrace-backend/lib/configuration"
	"followtrace-backend/services/scanner"
	"followtrace-backend/services/scanner/executor/directapi"
	"followtrace-backend/services/scanner/executor/sandbox"
	"followtrace-backend/services/scanner/executor/scrapeservice"
)

type ScannerConfig struct {
	DefaultMaxItems     int `json:"default_max_items"`
	LeaseGraceSeconds   int `json:"lease_grace_seconds"`
	CleanupIntervalSecs int `json:"cleanup_interval_seconds"`
	RetryBackoffSecs    int `json:"retry_backoff_seconds"`
}

func (c ScannerConfig) Options() scanner.Options {
	return scanner.Options{
		DefaultMaxItems: c.DefaultMaxItems,
		LeaseGrace:      time.Duration(c.LeaseGraceSeconds) * time.Second,
		CleanupInterval: time.Duration(c.CleanupIntervalSecs) * time.Second,
		RetryBackoff:    time.Duration(c.RetryBackoffSecs) * time.Second,
	}
}

type Config struct {
	Port          int                  `json:"port"`
	Database      configuration.Libsql `json:"database"`
	Scanner       ScannerConfig        `json:"scanner"`
	DirectApi     directapi.Config     `json:"direct_api"`
	Sandbox       sandbox.Config       `json:"sandbox"`
	ScrapeService scrapeservice.Config `json:"scrape_service"`
	// quota per resource kind applied to owners billing has not seeded
	DefaultQuotas map[string]int64 `json:"default_quotas"`
}
