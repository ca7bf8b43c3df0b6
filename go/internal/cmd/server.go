package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/mcdev12/chimera/go/internal/gateway"
)

func setupServer(cfg *Config, svc *gateway.Service) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Gateway.Port),
		Handler:           gateway.NewHandler(svc),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
