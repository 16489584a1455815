// Command ledgerctl imports broker statements and inspects holdings against
// the same database the server uses.
package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"
	"github.com/username/holdfolio/backend/src/config"
	"github.com/username/holdfolio/backend/src/logger"
)

var (
	dbPath   string
	logLevel string
)

func main() {
	config.LoadConfig()

	flag.StringVar(&dbPath, "db", config.Cfg.DatabasePath, "path to the SQLite database")
	flag.StringVar(&logLevel, "log", "warn", "log level (debug, info, warn, error)")

	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	for _, c := range Commands {
		commander.Register(c, "")
	}

	flag.Parse()
	logger.InitLogger(logLevel)
	os.Exit(int(commander.Execute(context.Background())))
}
