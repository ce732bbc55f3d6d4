package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/MarcFord/netlog/internal/config"
)

func main() {
	flag.Parse()

	if len(flag.Args()) < 1 {
		fmt.Println("Error: Config file path is required")
		fmt.Println("Usage: config-validator <config-file>")
		os.Exit(1)
	}
	configPath := flag.Args()[0]

	// LoadConfig runs struct and semantic validation
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	if err := checkBackends(cfg); err != nil {
		fmt.Printf("Validation error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Configuration is valid!")
}

// checkBackends enforces deploy-time expectations beyond what the
// library requires: at least one backend must be enabled.
func checkBackends(cfg *config.Config) error {
	for _, b := range cfg.Backends {
		if b.Enabled {
			return nil
		}
	}
	return fmt.Errorf("at least one backend must be enabled")
}
