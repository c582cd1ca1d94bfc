package wire

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/jackc/pgpassfile"
)

// lookupPgpass resolves a missing password from ~/.pgpass, following
// libpq's PGPASSFILE convention the same way pgconn/config.go resolves
// settings["passfile"].
func lookupPgpass(cfg *Config) (string, bool) {
	path := os.Getenv("PGPASSFILE")
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", false
		}
		path = filepath.Join(home, ".pgpass")
	}

	pf, err := pgpassfile.ReadPassfile(path)
	if err != nil {
		return "", false
	}

	return pf.FindPassword(cfg.Host, strconv.Itoa(int(cfg.Port)), cfg.Database, cfg.User)
}
