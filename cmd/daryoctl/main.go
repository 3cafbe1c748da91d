// daryoctl manages a DaryoAI deployment from the command line: API keys,
// usage limits, console admins, corpus uploads and selection probes. It
// reads the same environment as the server.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"DaryoAI/models"
	"DaryoAI/pkg/config"
	"DaryoAI/pkg/database"
	"DaryoAI/pkg/logger"
	utils "DaryoAI/pkg/utills"
	"DaryoAI/pkg/usage"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, env *environment, args []string) error
}

var commands = []command{
	{"key-create", "issue a new API key", runKeyCreate},
	{"key-list", "list API keys and their budgets", runKeyList},
	{"key-update", "activate, deactivate, re-budget or reset a key", runKeyUpdate},
	{"limit-set", "set the daily message limit of a client class", runLimitSet},
	{"admin-create", "create a console admin", runAdminCreate},
	{"ingest", "import a CSV or XLSX corpus file", runIngest},
	{"probe", "run questions through context selection and report the picks", runProbe},
}

type environment struct {
	db  *gorm.DB
	log *zap.Logger
	out io.Writer
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printUsage(os.Stdout)
		return nil
	}
	var cmd *command
	for i := range commands {
		if commands[i].name == args[0] {
			cmd = &commands[i]
		}
	}
	if cmd == nil {
		printUsage(os.Stderr)
		return fmt.Errorf("unknown command %q", args[0])
	}

	if err := config.Load(); err != nil {
		return err
	}
	log, err := logger.New(config.IsProduction)
	if err != nil {
		return err
	}
	defer log.Sync()

	db, err := database.Connect(database.Config{Driver: config.DBDriver, DSN: config.DBDSN}, true)
	if err != nil {
		return err
	}
	ctx := context.Background()
	if err := database.SeedUsageLimits(ctx, db, config.DefaultDailyLimit, config.MuhbirDailyLimit); err != nil {
		return err
	}
	return cmd.run(ctx, &environment{db: db, log: log, out: os.Stdout}, args[1:])
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "usage: daryoctl <command> [flags]")
	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, c := range commands {
		fmt.Fprintf(tw, "  %s\t%s\n", c.name, c.summary)
	}
	tw.Flush()
}

func newFlagSet(name string) *pflag.FlagSet {
	return pflag.NewFlagSet("daryoctl "+name, pflag.ContinueOnError)
}

func runKeyCreate(ctx context.Context, env *environment, args []string) error {
	fs := newFlagSet("key-create")
	name := fs.String("name", "", "label of the key owner")
	limit := fs.Int64("limit", 100000, "token budget")
	if err := fs.Parse(args); err != nil {
		return err
	}
	key, err := usage.NewLimiter(env.db, config.Location).CreateKey(ctx, strings.TrimSpace(*name), *limit)
	if err != nil {
		return err
	}
	fmt.Fprintf(env.out, "created key %d (%s)\n%s\n", key.ID, key.Name, key.Key)
	return nil
}

func runKeyList(ctx context.Context, env *environment, args []string) error {
	if err := newFlagSet("key-list").Parse(args); err != nil {
		return err
	}
	keys, err := usage.NewLimiter(env.db, config.Location).ListKeys(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(env.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tACTIVE\tUSED\tLIMIT\tKEY")
	for _, k := range keys {
		fmt.Fprintf(tw, "%d\t%s\t%t\t%d\t%d\t%s\n", k.ID, k.Name, k.IsActive, k.TokensUsed, k.TokenLimit, k.Key)
	}
	return tw.Flush()
}

func runKeyUpdate(ctx context.Context, env *environment, args []string) error {
	fs := newFlagSet("key-update")
	id := fs.Uint("id", 0, "key id")
	active := fs.Bool("active", true, "whether the key is accepted")
	limit := fs.Int64("limit", -1, "new token budget (unchanged when negative)")
	reset := fs.Bool("reset", false, "set tokens_used back to zero")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == 0 {
		return errors.New("--id is required")
	}
	var u usage.KeyUpdate
	if fs.Changed("active") {
		u.IsActive = active
	}
	if *limit >= 0 {
		u.TokenLimit = limit
	}
	u.ResetUsage = *reset
	key, err := usage.NewLimiter(env.db, config.Location).UpdateKey(ctx, *id, u)
	if err != nil {
		return err
	}
	fmt.Fprintf(env.out, "key %d: active=%t used=%d limit=%d\n", key.ID, key.IsActive, key.TokensUsed, key.TokenLimit)
	return nil
}

func runLimitSet(ctx context.Context, env *environment, args []string) error {
	fs := newFlagSet("limit-set")
	muhbir := fs.Bool("muhbir", false, "set the limit of the muhbir class")
	daily := fs.Int("daily", -1, "messages per day")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *daily < 0 {
		return errors.New("--daily is required")
	}
	if err := usage.NewLimiter(env.db, config.Location).SetDailyLimit(ctx, *muhbir, *daily); err != nil {
		return err
	}
	fmt.Fprintf(env.out, "daily limit for muhbir=%t is now %d\n", *muhbir, *daily)
	return nil
}

func runAdminCreate(ctx context.Context, env *environment, args []string) error {
	fs := newFlagSet("admin-create")
	username := fs.String("username", "", "console login")
	password := fs.String("password", "", "console password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	name := strings.TrimSpace(*username)
	if name == "" {
		return errors.New("--username is required")
	}
	if !utils.ValidPassword(*password) {
		return fmt.Errorf("password must have at least %d characters with one letter and one number", utils.MinPasswordLength)
	}
	admin := models.Admin{Username: name}
	if err := admin.SetPassword(*password); err != nil {
		return err
	}
	if err := env.db.WithContext(ctx).Create(&admin).Error; err != nil {
		return fmt.Errorf("create admin: %w", err)
	}
	fmt.Fprintf(env.out, "admin %q created\n", admin.Username)
	return nil
}
