package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/SrujanaJ313/claimant-gateway/internal"
	"github.com/SrujanaJ313/claimant-gateway/internal/config"
	"github.com/SrujanaJ313/claimant-gateway/internal/log"
)

var BuildVersion = "dev"

func generateDefaultConfig(path string) error {
	defaultConfig := map[string]any{
		"gateway": map[string]any{
			"addr":          ":8080",
			"baseUrl":       "https://claims.yourstate.gov",
			"sessionTtl":    "12h",
			"postLoginPath": "/",
			"encryptionKey": map[string]string{"$env": "ENCRYPTION_KEY"},
		},
		"provider": map[string]any{
			"kind":        "forgerock",
			"authority":   "https://sso.yourstate.gov/sso/oauth2/realms/root/realms/claimants",
			"clientId":    "claimant-portal",
			"redirectUri": "https://claims.yourstate.gov/oauth/callback",
			"scope":       "openid profile email",
			"journey":     "UsernamePassword",
		},
		"storage": map[string]any{
			"kind": "memory",
		},
	}

	data, err := json.MarshalIndent(defaultConfig, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func validateConfig(path string) error {
	_, err := config.Load(path)
	fmt.Printf("Validating: %s\n", path)
	if err != nil {
		fmt.Printf("\n%v\n\nResult: FAIL\n", err)
		return err
	}
	fmt.Println("Result: PASS")
	return nil
}

func main() {
	conf := flag.String("config", "", "path to config file (required)")
	version := flag.Bool("version", false, "print version and exit")
	help := flag.Bool("help", false, "print help and exit")
	configInit := flag.String("config-init", "", "generate default config file at specified path")
	validate := flag.Bool("validate", false, "validate config file and exit")
	flag.Parse()
	if *help {
		flag.Usage()
		return
	}
	if *version {
		fmt.Println(BuildVersion)
		return
	}
	if *configInit != "" {
		if err := generateDefaultConfig(*configInit); err != nil {
			log.LogError("Failed to generate config: %v", err)
			os.Exit(1)
		}
		fmt.Printf("Generated default config at: %s\n", *configInit)
		return
	}

	if *validate {
		if *conf == "" {
			fmt.Fprintf(os.Stderr, "Error: -config flag is required for validation\n")
			os.Exit(1)
		}
		if err := validateConfig(*conf); err != nil {
			os.Exit(1)
		}
		return
	}

	if *conf == "" {
		fmt.Fprintf(os.Stderr, "Error: -config flag is required\n")
		fmt.Fprintf(os.Stderr, "Run with -help for usage information\n")
		os.Exit(1)
	}

	cfg, err := config.Load(*conf)
	if err != nil {
		log.LogError("Failed to load config: %v", err)
		os.Exit(1)
	}

	log.LogInfoWithFields("main", "Starting claimant-gateway", map[string]any{
		"version": BuildVersion,
		"config":  *conf,
	})

	ctx := context.Background()
	gateway, err := internal.NewGateway(ctx, cfg)
	if err != nil {
		log.LogError("Failed to create gateway: %v", err)
		os.Exit(1)
	}

	if err := gateway.Run(); err != nil {
		log.LogError("Failed to start server: %v", err)
		os.Exit(1)
	}
}
