package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/gregorizeidler/IPTU-Checker/internal/observability"
	"github.com/gregorizeidler/IPTU-Checker/internal/server"
)

func main() {
	logger := observability.InitLogger("iptu-api")

	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg("no .env file found, using defaults")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	srv := server.NewServer(logger)
	r := srv.SetupRouter()

	logger.Info().Str("port", port).Msg("starting server")
	if err := r.Run(":" + port); err != nil {
		logger.Fatal().Err(err).Msg("server exited")
	}
}
