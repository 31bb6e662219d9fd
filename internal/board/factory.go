package board

import (
	"fmt"
	"os"
	"path/filepath"
)

// Open builds a Store from the UNDERCITY_DB_TYPE / UNDERCITY_DB_URL
// environment, defaulting to a SQLite file under stateDir.
func Open(stateDir string) (Store, error) {
	switch os.Getenv("UNDERCITY_DB_TYPE") {
	case "postgres":
		url := os.Getenv("UNDERCITY_DB_URL")
		if url == "" {
			return nil, fmt.Errorf("UNDERCITY_DB_TYPE=postgres requires UNDERCITY_DB_URL")
		}
		return NewPostgresStore(url)
	default:
		path := filepath.Join(stateDir, "tasks.db")
		return NewSQLiteStore(path)
	}
}
