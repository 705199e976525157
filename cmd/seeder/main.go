// cmd/seeder/main.go
package main

import (
	"log/slog"
	"os"

	"github.com/hearthside/crm-backend/internal/config"
	"github.com/hearthside/crm-backend/internal/db"
)

// Applies the schema and sample data. Extra SQL files can be passed as
// arguments and run in order after the defaults.
func main() {
	cfg := config.MustLoad()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	conn := db.MustConnect(cfg.DB)
	defer conn.Close()

	files := []string{"seed/schema.sql", "seed/contacts.sql"}
	if len(os.Args) > 1 {
		files = append(files, os.Args[1:]...)
	}

	for _, file := range files {
		sqlText, err := os.ReadFile(file)
		if err != nil {
			logger.Error("cannot read seed file", "file", file, "error", err)
			os.Exit(1)
		}
		if _, err := conn.Exec(string(sqlText)); err != nil {
			logger.Error("seed file failed", "file", file, "error", err)
			os.Exit(1)
		}
		logger.Info("seeded", "file", file)
	}
	logger.Info("seeding complete", "files", len(files))
}
