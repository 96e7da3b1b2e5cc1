package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"os"

	_ "github.com/lib/pq"

	"github.com/andre-fig/backoffice/internal/config"
	"github.com/andre-fig/backoffice/migrations"
)

func main() {
	target := flag.String("target", "all", "database to migrate: backoffice, appchat or all")
	flag.Parse()

	if err := config.LoadConfig(os.Getenv("BACKOFFICE_CONFIG_PATH")); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	jobs := map[migrations.Target]string{}
	switch *target {
	case "all":
		jobs[migrations.Backoffice] = config.App.BackofficeDatabaseURL
		jobs[migrations.AppChat] = config.App.AppChatDatabaseURL
	case string(migrations.Backoffice):
		jobs[migrations.Backoffice] = config.App.BackofficeDatabaseURL
	case string(migrations.AppChat):
		jobs[migrations.AppChat] = config.App.AppChatDatabaseURL
	default:
		log.Fatalf("Unknown target %q", *target)
	}

	ctx := context.Background()
	for _, t := range []migrations.Target{migrations.Backoffice, migrations.AppChat} {
		dbURL, ok := jobs[t]
		if !ok {
			continue
		}
		if dbURL == "" {
			log.Fatalf("Database URL for %s is required", t)
		}
		run(ctx, t, dbURL)
	}

	log.Println("Migrations applied successfully!")
}

func run(ctx context.Context, target migrations.Target, dbURL string) {
	pg, err := sql.Open("postgres", dbURL)
	if err != nil {
		log.Fatalf("Failed to connect to %s DB: %v", target, err)
	}
	defer pg.Close()

	if err := pg.PingContext(ctx); err != nil {
		log.Fatalf("Failed to ping %s DB: %v", target, err)
	}

	log.Printf("Running %s migrations...", target)
	applied, err := migrations.Apply(ctx, pg, target)
	for _, name := range applied {
		log.Printf("  applied %s", name)
	}
	if err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
}
