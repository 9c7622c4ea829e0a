package rest

import (
	"fmt"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
)

// Start - starts the REST server.
func Start(port string, handlers *Handlers) error {
	mux := httprouter.New()

	mux.POST("/games", handlers.CreateGame)
	mux.GET("/games/:code", handlers.GetGame)
	mux.GET("/health", handlers.Health)

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	if err := srv.ListenAndServe(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}
