package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"

	"github.com/google/subcommands"
	"github.com/username/holdfolio/backend/src/config"
	"github.com/username/holdfolio/backend/src/database"
	"github.com/username/holdfolio/backend/src/models"
	"github.com/username/holdfolio/backend/src/parsers"
	"github.com/username/holdfolio/backend/src/security/validation"
	"github.com/username/holdfolio/backend/src/services"
)

// Commands lists every ledgerctl subcommand.
var Commands = []subcommands.Command{
	&importCmd{out: os.Stdout},
	&holdingsCmd{out: os.Stdout},
	&recomputeCmd{out: os.Stdout},
	&refreshCmd{out: os.Stdout},
	&sampleCmd{out: os.Stdout},
	&migrateCmd{},
}

type importCmd struct {
	out     io.Writer
	user    string
	file    string
	broker  string
	account string
	maxSize int64
}

func (*importCmd) Name() string     { return "import" }
func (*importCmd) Synopsis() string { return "import a broker statement CSV" }
func (*importCmd) Usage() string {
	return `ledgerctl import -user <id> -file <statement.csv> [-broker zerodha|generic] [-account <id>]

  Parses the statement, stores its transactions and recomputes the affected
  holdings. The broker is detected from the file when -broker is omitted.
`
}

func (c *importCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.user, "user", "", "owner of the imported transactions")
	f.StringVar(&c.file, "file", "", "statement file to import")
	f.StringVar(&c.broker, "broker", "", "broker format, detected when empty")
	f.StringVar(&c.account, "account", "", "optional account id")
	f.Int64Var(&c.maxSize, "max-size", config.Cfg.MaxUploadSizeBytes, "largest statement accepted, in bytes")
}

func (c *importCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.user == "" || c.file == "" {
		fmt.Fprintln(os.Stderr, "-user and -file are required")
		return subcommands.ExitUsageError
	}
	accountID, err := parseAccount(c.account)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}
	if err := validation.ValidateBrokerCode(c.broker); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}
	content, err := readStatement(c.file, c.maxSize)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, validation.ErrValidationFailed) {
			return subcommands.ExitUsageError
		}
		return subcommands.ExitFailure
	}

	e, err := openEnv(dbPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer e.Close()
	return c.run(ctx, e, filepath.Base(c.file), content, accountID)
}

// readStatement applies the upload checks to a local file before its content
// is handed to the importer.
func readStatement(path string, maxBytes int64) (string, error) {
	if err := validation.ValidateFileExtension(filepath.Base(path)); err != nil {
		return "", err
	}
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	if err := validation.ValidateFileSize(info.Size(), maxBytes); err != nil {
		return "", err
	}
	if _, err := validation.ValidateFileContentByMagicBytes(f); err != nil {
		return "", err
	}

	content, err := io.ReadAll(io.LimitReader(f, maxBytes))
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return string(content), nil
}

func (c *importCmd) run(ctx context.Context, e *env, filename, content string, accountID *int64) subcommands.ExitStatus {
	summary, err := e.upload.ProcessUpload(ctx, services.UploadRequest{
		UserID:     c.user,
		AccountID:  accountID,
		Filename:   filename,
		BrokerCode: c.broker,
		Content:    content,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error importing %s: %v\n", filename, err)
		return subcommands.ExitFailure
	}

	fmt.Fprintf(c.out, "statement %d (%s): %s\n", summary.StatementID, summary.BrokerCode, summary.Status)
	fmt.Fprintf(c.out, "%s; %d of %d rows committed\n", summary.Message, summary.CommittedCount, summary.TotalRows)
	for _, rowErr := range summary.Errors {
		fmt.Fprintf(c.out, "  %s\n", rowErr.Error())
	}
	if summary.Status == models.StatusFailed {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func parseAccount(s string) (*int64, error) {
	if s == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return nil, fmt.Errorf("invalid account id %q", s)
	}
	return &id, nil
}

type holdingsCmd struct {
	out  io.Writer
	user string
}

func (*holdingsCmd) Name() string     { return "holdings" }
func (*holdingsCmd) Synopsis() string { return "list the current holdings of a user" }
func (*holdingsCmd) Usage() string {
	return `ledgerctl holdings -user <id>
`
}

func (c *holdingsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.user, "user", "", "user whose holdings are listed")
}

func (c *holdingsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.user == "" {
		fmt.Fprintln(os.Stderr, "-user is required")
		return subcommands.ExitUsageError
	}
	e, err := openEnv(dbPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer e.Close()
	return c.run(ctx, e)
}

func (c *holdingsCmd) run(ctx context.Context, e *env) subcommands.ExitStatus {
	holdings, err := e.ledger.GetHoldings(ctx, c.user)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "Symbol\tExchange\tAccount\tQty\tAvg Cost\tLast\tMarket Value\t")
	for _, h := range holdings {
		account := "-"
		if h.AccountID != nil {
			account = strconv.FormatInt(*h.AccountID, 10)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t\n",
			h.Symbol, h.Exchange, account, h.Quantity.String(), h.AverageCost.StringFixed(2),
			h.LastPrice.StringFixed(2), h.MarketValueDisplay)
	}
	if err := w.Flush(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type recomputeCmd struct {
	out  io.Writer
	user string
}

func (*recomputeCmd) Name() string     { return "recompute" }
func (*recomputeCmd) Synopsis() string { return "rebuild every holding of a user from its transactions" }
func (*recomputeCmd) Usage() string {
	return `ledgerctl recompute -user <id>
`
}

func (c *recomputeCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.user, "user", "", "user whose holdings are rebuilt")
}

func (c *recomputeCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.user == "" {
		fmt.Fprintln(os.Stderr, "-user is required")
		return subcommands.ExitUsageError
	}
	e, err := openEnv(dbPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer e.Close()

	n, err := e.ledger.RecomputeUser(ctx, c.user)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	fmt.Fprintf(c.out, "%d positions recomputed\n", n)
	return subcommands.ExitSuccess
}

type refreshCmd struct {
	out  io.Writer
	user string
}

func (*refreshCmd) Name() string     { return "refresh-prices" }
func (*refreshCmd) Synopsis() string { return "fetch closing prices and revalue a user's holdings" }
func (*refreshCmd) Usage() string {
	return `ledgerctl refresh-prices -user <id>
`
}

func (c *refreshCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.user, "user", "", "user whose holdings are revalued")
}

func (c *refreshCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.user == "" {
		fmt.Fprintln(os.Stderr, "-user is required")
		return subcommands.ExitUsageError
	}
	e, err := openEnv(dbPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer e.Close()

	n, err := e.ledger.RefreshPrices(ctx, c.user)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	fmt.Fprintf(c.out, "%d prices updated\n", n)
	return subcommands.ExitSuccess
}

type sampleCmd struct {
	out io.Writer
}

func (*sampleCmd) Name() string     { return "sample" }
func (*sampleCmd) Synopsis() string { return "print a sample Zerodha tradebook" }
func (*sampleCmd) Usage() string {
	return `ledgerctl sample > tradebook.csv
`
}
func (*sampleCmd) SetFlags(*flag.FlagSet) {}

func (c *sampleCmd) Execute(context.Context, *flag.FlagSet, ...interface{}) subcommands.ExitStatus {
	fmt.Fprint(c.out, parsers.SampleZerodhaCSV)
	return subcommands.ExitSuccess
}

type migrateCmd struct{}

func (*migrateCmd) Name() string     { return "migrate" }
func (*migrateCmd) Synopsis() string { return "apply pending database migrations" }
func (*migrateCmd) Usage() string {
	return `ledgerctl [-db <path>] migrate
`
}
func (*migrateCmd) SetFlags(*flag.FlagSet) {}

func (*migrateCmd) Execute(context.Context, *flag.FlagSet, ...interface{}) subcommands.ExitStatus {
	db, err := database.Open(dbPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer db.Close()
	if err := database.Migrate(db); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
