package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"

	"go-marketplace-backend/config"
	"go-marketplace-backend/migrations"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
)

func main() {
	var (
		migrationsDir string
		verbose       bool
	)
	flag.StringVar(&migrationsDir, "dir", "", "directory with migration files (default: the embedded set)")
	flag.BoolVar(&verbose, "v", false, "log every applied migration")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("migrate: failed to load config: %v", err)
	}
	if cfg.DBUrl == "" {
		log.Fatal("migrate: DATABASE_URL is required")
	}

	db, err := sql.Open("postgres", cfg.DBUrl)
	if err != nil {
		log.Fatalf("goose: failed to open DB: %v\n", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Fatalf("goose: failed to close DB: %v\n", err)
		}
	}()
	if err := db.Ping(); err != nil {
		log.Fatalf("goose: failed to connect to DB: %v\n", err)
	}

	if err := goose.SetDialect("postgres"); err != nil {
		log.Fatalf("goose: %v", err)
	}
	if migrationsDir == "" {
		goose.SetBaseFS(migrations.FS)
		migrationsDir = "."
	}
	if !verbose {
		goose.SetLogger(goose.NopLogger())
	}

	arguments := flag.Args()
	if len(arguments) == 0 {
		arguments = []string{"up"}
	}

	command := arguments[0]
	var args []string
	if len(arguments) > 1 {
		args = arguments[1:]
	}

	if err := goose.Run(command, db, migrationsDir, args...); err != nil {
		fmt.Fprintf(os.Stderr, "goose %v: %v\n", command, err)
		os.Exit(1)
	}

	fmt.Printf("goose %s success\n", command)
}
