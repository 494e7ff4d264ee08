package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/naotama2002/odesk-go/auth"
	"github.com/naotama2002/odesk-go/client"
	"github.com/naotama2002/odesk-go/internal/config"
	"github.com/naotama2002/odesk-go/pkg/mcpserver"
)

func main() {
	var configPath string
	var authorizeOnly bool

	flag.StringVar(&configPath, "config", "", "Config file (default "+config.DefaultPath()+")")
	flag.BoolVar(&authorizeOnly, "authorize", false, "Run the authorization and exit")
	flag.Parse()

	// stdout carries the MCP protocol
	log.SetOutput(os.Stderr)

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	api, err := client.New(cfg.ClientConfig())
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}

	if api.Session().Mode() == auth.ModeWeb {
		if _, err := auth.BrowserAuthorize(context.Background(), api.Session(), cfg.CallbackOptions()); err != nil {
			log.Fatalf("Authorization failed: %v", err)
		}
	} else if authorizeOnly {
		if _, err := api.Auth(context.Background()); err != nil {
			log.Fatalf("Authorization failed: %v", err)
		}
	}
	if authorizeOnly {
		log.Println("Authorized")
		return
	}

	if err := mcpserver.New(api, mcpserver.Options{}).ServeStdio(); err != nil {
		log.Fatalf("MCP server error: %v", err)
	}
}
