package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dexhound/dexhound/internal/utils"
	"github.com/dexhound/dexhound/pkg/storage"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// setting prefers an explicitly passed flag over the config file and env.
// Keys shared by several commands are read this way instead of BindPFlag,
// which only keeps the last binding.
func setting(cmd *cobra.Command, flag, key string) string {
	if f := cmd.Flags().Lookup(flag); f != nil && f.Changed {
		return f.Value.String()
	}
	return viper.GetString(key)
}

func resolveDBPath(cmd *cobra.Command) (string, error) {
	dbPath := setting(cmd, "dbpath", "dbpath")
	if dbPath == "" {
		return utils.DefaultDBPath()
	}
	return utils.ExpandPath(dbPath)
}

func openDB(cmd *cobra.Command, mustExist bool) (*storage.DB, string, error) {
	dbPath, err := resolveDBPath(cmd)
	if err != nil {
		return nil, "", err
	}
	if mustExist {
		if _, err := os.Stat(dbPath); err != nil {
			return nil, dbPath, fmt.Errorf("database not found: %s", dbPath)
		}
	} else if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, dbPath, err
	}
	db, err := storage.Open(dbPath)
	if err != nil {
		return nil, dbPath, err
	}
	return db, dbPath, nil
}
