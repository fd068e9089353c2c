package commands

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"osscprep/internal/config"
	"osscprep/internal/di"
	"osscprep/internal/observability"
	contextutils "osscprep/internal/utils"
)

// Env carries the shared resources every command needs
type Env struct {
	Config *config.Config
	Logger *observability.Logger
}

// container builds and initializes a service container for one command
func (e *Env) container(ctx context.Context) (*di.ServiceContainer, error) {
	sc := di.NewServiceContainer(e.Config, e.Logger)
	if err := sc.Initialize(ctx); err != nil {
		return nil, contextutils.WrapError(err, "failed to initialize services")
	}
	return sc, nil
}

// maskDatabaseURL masks sensitive parts of the database URL for display
func maskDatabaseURL(url string) string {
	if i := strings.LastIndex(url, "@"); i >= 0 {
		scheme := "postgres://"
		if j := strings.Index(url, "://"); j >= 0 {
			scheme = url[:j+3]
		}
		return scheme + "***:***@" + url[i+1:]
	}
	return url
}

// getDatabaseInfo returns database connection information
func getDatabaseInfo(ctx context.Context, db *sql.DB) string {
	if db == nil {
		return "Not connected"
	}

	var dbName string
	if err := db.QueryRowContext(ctx, "SELECT current_database()").Scan(&dbName); err != nil {
		return "Connected (unknown database)"
	}

	var host string
	if err := db.QueryRowContext(ctx, "SELECT inet_server_addr()::text").Scan(&host); err != nil {
		return fmt.Sprintf("Connected to %s", dbName)
	}

	return fmt.Sprintf("Connected to %s on %s", dbName, host)
}

// printJSON writes v as indented JSON
func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
