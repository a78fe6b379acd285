// Command import-snitches loads a SnitchMod SQLite database into the guild's
// snitch records, scoped to the given namelayer groups and visible to the
// given roles.
//
// Usage:
//
//	import-snitches -db /path/to/snitchmod.db -guild 123 -groups guard,perimeter -roles 7,8
//
// Pass -groups all to import every group in the file.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/onnwee/snitchvis/backend/config"
	"github.com/onnwee/snitchvis/backend/db"
	"github.com/onnwee/snitchvis/backend/snitch"
)

func main() {
	_ = godotenv.Load("backend/.env")

	var (
		path   = flag.String("db", "", "path to the SnitchMod SQLite database")
		guild  = flag.Int64("guild", 0, "guild id to import into")
		groups = flag.String("groups", "", "comma-separated namelayer groups, or 'all'")
		roles  = flag.String("roles", "", "comma-separated role ids allowed to see the snitches")
	)
	flag.Parse()

	if *path == "" || *guild == 0 || *groups == "" {
		flag.Usage()
		os.Exit(2)
	}

	var roleIDs []int64
	if *roles != "" {
		for _, part := range strings.Split(*roles, ",") {
			id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
			if err != nil {
				fmt.Fprintf(os.Stderr, "invalid role id %q\n", part)
				os.Exit(2)
			}
			roleIDs = append(roleIDs, id)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	database, err := db.Connect(cfg.DBDsn)
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}
	defer database.Close()

	ctx := context.Background()
	if err := db.Migrate(ctx, database); err != nil {
		slog.Error("migrate failed", slog.Any("err", err))
		os.Exit(1)
	}

	added, err := snitch.ImportSnitchMod(ctx, database, *path, *guild, strings.Split(*groups, ","), roleIDs)
	if err != nil {
		slog.Error("import failed", slog.Any("err", err))
		os.Exit(1)
	}
	slog.Info("import complete", slog.Int("snitches_added", added), slog.Int64("guild_id", *guild))
}
