package infra

import (
	"fmt"
	"strings"
)

// ANSI Color Codes
const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorCyan   = "\033[36m"
)

// PrintBanner displays the startup banner with the feed and storage setup.
func PrintBanner(cfg *Config) {
	symbol := strings.ToUpper(cfg.Feed.Symbol)
	backend := strings.ToUpper(cfg.Storage.AuditBackend)

	color := ColorGreen
	switch cfg.Storage.AuditBackend {
	case AuditBackendKafka:
		color = ColorCyan
	case AuditBackendMemory:
		color = ColorYellow
	}

	auth := "PUBLIC"
	if cfg.Feed.APIKey != "" {
		auth = "API KEY"
	}

	fmt.Println()
	fmt.Printf("%s###########################################################%s\n", color, ColorReset)
	fmt.Printf("%s#                                                         #%s\n", color, ColorReset)
	fmt.Printf("%s#               📖 BitMEX L2 Order Book Recorder          #%s\n", color, ColorReset)
	fmt.Printf("%s#                                                         #%s\n", color, ColorReset)
	fmt.Printf("%s#   SYMBOL:  %-36s #%s\n", color, symbol, ColorReset)
	fmt.Printf("%s#   AUDIT:   %-36s #%s\n", color, backend, ColorReset)
	fmt.Printf("%s#   FEED:    %-36s #%s\n", color, auth, ColorReset)
	fmt.Printf("%s#   VERSION: %-36s #%s\n", color, cfg.App.Version, ColorReset)
	fmt.Printf("%s#                                                         #%s\n", color, ColorReset)

	if cfg.Storage.AuditBackend == AuditBackendMemory {
		fmt.Printf("%s#   ⚠️  WARNING: AUDIT RECORDS ARE NOT PERSISTED  ⚠️       #%s\n", ColorRed, ColorReset)
	}

	fmt.Printf("%s###########################################################%s\n", color, ColorReset)
	fmt.Println()
}
