package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/naotama2002/odesk-go/auth"
	"github.com/naotama2002/odesk-go/client"
	"github.com/naotama2002/odesk-go/internal/config"
	"github.com/naotama2002/odesk-go/jobs"
	"github.com/naotama2002/odesk-go/webauth"
)

func main() {
	var configPath, listen string
	var secureCookie bool

	flag.StringVar(&configPath, "config", "", "Config file (default "+config.DefaultPath()+")")
	flag.StringVar(&listen, "listen", "", "Listen address (default :8080)")
	flag.BoolVar(&secureCookie, "secure-cookie", false, "Mark the token cookie Secure (serve over HTTPS)")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if listen != "" {
		cfg.Web.Listen = listen
	}
	if cfg.Web.Listen == "" {
		cfg.Web.Listen = ":8080"
	}

	// Tokens belong to browsers here, never to the process
	cfg.Mode = string(auth.ModeWeb)
	cfg.TokenFile = config.NoTokenFile

	api, err := client.New(cfg.ClientConfig())
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}

	router := newRouter(api, webauth.Options{Secure: secureCookie || cfg.Web.CookieSecure}, jobs.SearchURL)
	server := &http.Server{
		Addr:              cfg.Web.Listen,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Listening on %s", cfg.Web.Listen)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	<-signals

	log.Println("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}

func newRouter(api *client.Client, opts webauth.Options, searchURL string) *gin.Engine {
	a := webauth.New(api, opts)

	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/logout", func(c *gin.Context) {
		a.Forget(c)
		c.JSON(http.StatusOK, gin.H{"status": "logged out"})
	})

	authorized := router.Group("/", a.Middleware())
	authorized.GET("/", func(c *gin.Context) {
		user, _ := webauth.ClientFrom(c)
		result, err := jobs.NewService(user).WithURL(searchURL).Web(c.Request.Context())
		if err != nil {
			a.Fail(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	})

	return router
}
