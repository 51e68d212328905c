package main

import (
	"fmt"
	"log"
	"os"

	"github.com/packsmith/mailflow/config"
	"github.com/packsmith/mailflow/internal/database"
	"github.com/packsmith/mailflow/internal/repository"
	"github.com/packsmith/mailflow/server"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: mailflow <command>")
		fmt.Println("Commands:")
		fmt.Println("  migrate   Run database migrations")
		fmt.Println("  server    Start the application server")
		os.Exit(1)
	}

	cfg, err := config.InitConfig()
	if err != nil {
		log.Fatalf("Config initialization failed: %v", err)
	}
	if cfg == nil {
		log.Fatalf("config is empty")
	}

	mailflowDB, err := database.NewConnection(cfg.DatabaseConfig)
	if err != nil {
		log.Fatalf("Database initialization failed: %v", err)
	}

	switch os.Args[1] {
	case "migrate":

		err := repository.MigrateDB(&repository.MigrationConfig{
			MaxConn:         cfg.DatabaseConfig.MaxConn,
			MaxIdleConn:     cfg.DatabaseConfig.MaxIdleConn,
			ConnMaxLifetime: cfg.DatabaseConfig.ConnMaxLifetime,
		}, mailflowDB)
		if err != nil {
			log.Fatalf("Database migration failed: %v", err)
		}
		log.Println("Database migration completed successfully")

	case "server":

		log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
		log.Println("MailFlow starting up...")

		srv, err := server.NewServer(cfg, mailflowDB)
		if err != nil {
			log.Fatalf("Server setup failed: %v", err)
		}

		err = srv.Run()
		if err != nil {
			log.Fatalf("Server startup failed: %v", err)
		}

		log.Println("Shutdown complete")

	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		fmt.Println("Usage: mailflow <command>")
		fmt.Println("Commands:")
		fmt.Println("  migrate   Run database migrations")
		fmt.Println("  server    Start the application server")
		os.Exit(1)
	}
}
