package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/illarion/passvault/cmd"
	"github.com/illarion/passvault/internal/config"
	"github.com/illarion/passvault/internal/generator"
	"github.com/illarion/passvault/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "help", "-h", "--help":
		if len(os.Args) <= 2 {
			printUsage()
			return
		}
		printCommandHelp(os.Args[2])
		return
	case "completion":
		runCompletion(os.Args[2:])
		return
	}

	env := newEnv()
	args := os.Args[2:]

	switch os.Args[1] {
	case "init":
		runInit(env, args)
	case "status":
		runStatus(env, args)
	case "ls":
		runLs(env, args)
	case "show":
		runShow(env, args)
	case "add":
		runAdd(ctx, env, args)
	case "set":
		runSet(ctx, env, args)
	case "rm":
		runRm(env, args)
	case "passwd":
		runPasswd(env, args)
	case "gen":
		runGen(ctx, env, args)
	case "check":
		runCheck(ctx, env, args)
	case "totp":
		runTOTP(env, args)
	case "sync":
		runSync(ctx, env, args)
	case "keyring":
		runKeyring(env, args)
	case "compact":
		runCompact(env, args)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func newEnv() *cmd.Env {
	cfg, err := config.Load(config.Options{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	log, err := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	return &cmd.Env{Config: cfg, Log: log}
}

func parse(fs *flag.FlagSet, args []string) {
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func recordArg(fs *flag.FlagSet, usage string) uint64 {
	if fs.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: %s\n", usage)
		os.Exit(1)
	}
	return cmd.ParseID(fs.Arg(0))
}

func runInit(env *cmd.Env, args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	parse(fs, args)

	env.Init()
}

func runStatus(env *cmd.Env, args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	parse(fs, args)

	env.Status()
}

func runLs(env *cmd.Env, args []string) {
	fs := flag.NewFlagSet("ls", flag.ExitOnError)
	category := fs.String("c", "", "Only records of this category")
	parse(fs, args)

	env.Ls(*category, fs.Arg(0))
}

func runShow(env *cmd.Env, args []string) {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	reveal := fs.Bool("reveal", false, "Show sensitive values")
	parse(fs, args)

	env.Show(recordArg(fs, "passvault show [--reveal] <id>"), *reveal)
}

func runAdd(ctx context.Context, env *cmd.Env, args []string) {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	var opts cmd.AddOptions
	fs.StringVar(&opts.Category, "c", "Login", "Category: Login, BankCard, Note or any custom name")
	fs.StringVar(&opts.Title, "t", "", "Title")
	fs.StringVar(&opts.Subtitle, "s", "", "Subtitle")
	fs.Var(&opts.Fields, "f", "Field as Label[:Kind]=value, repeatable")
	fs.BoolVar(&opts.Generate, "generate", false, "Generate passwords that are not given")
	parse(fs, args)

	env.Add(ctx, opts)
}

func runSet(ctx context.Context, env *cmd.Env, args []string) {
	fs := flag.NewFlagSet("set", flag.ExitOnError)
	var opts cmd.SetOptions
	fs.StringVar(&opts.Title, "title", "", "New title")
	fs.StringVar(&opts.Subtitle, "subtitle", "", "New subtitle")
	fs.StringVar(&opts.Kind, "kind", "", "Kind of a new field (default Text)")
	fs.BoolVar(&opts.Generate, "generate", false, "Generate the new password")
	parse(fs, args)

	id := recordArg(fs, "passvault set [flags] <id> [<label> [value]]")
	opts.Label = fs.Arg(1)
	if fs.NArg() > 2 {
		v := fs.Arg(2)
		opts.Value = &v
	}
	env.Set(ctx, id, opts)
}

func runRm(env *cmd.Env, args []string) {
	fs := flag.NewFlagSet("rm", flag.ExitOnError)
	force := fs.Bool("force", false, "Delete without confirmation")
	parse(fs, args)

	env.Remove(recordArg(fs, "passvault rm [--force] <id> [label]"), fs.Arg(1), *force)
}

func runPasswd(env *cmd.Env, args []string) {
	fs := flag.NewFlagSet("passwd", flag.ExitOnError)
	parse(fs, args)

	env.Passwd()
}

func runGen(ctx context.Context, env *cmd.Env, args []string) {
	fs := flag.NewFlagSet("gen", flag.ExitOnError)
	length := fs.Int("l", generator.DefaultLength, "Password length")
	noNumbers := fs.Bool("no-numbers", false, "Leave out digits")
	noLower := fs.Bool("no-lower", false, "Leave out lowercase letters")
	noUpper := fs.Bool("no-upper", false, "Leave out uppercase letters")
	noSymbols := fs.Bool("no-symbols", false, "Leave out symbols")
	check := fs.Bool("check", false, "Check the result against common and breached passwords")
	parse(fs, args)

	env.Gen(ctx, generator.Options{
		Length:    *length,
		Numbers:   !*noNumbers,
		Lowercase: !*noLower,
		Uppercase: !*noUpper,
		Symbols:   !*noSymbols,
	}, *check)
}

func runCheck(ctx context.Context, env *cmd.Env, args []string) {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	prompt := fs.Bool("p", false, "Check a password typed at the prompt")
	parse(fs, args)

	if *prompt {
		env.CheckPrompted(ctx)
		return
	}
	var id uint64
	if fs.NArg() > 0 {
		id = cmd.ParseID(fs.Arg(0))
	}
	env.Check(ctx, id)
}

func runTOTP(env *cmd.Env, args []string) {
	fs := flag.NewFlagSet("totp", flag.ExitOnError)
	parse(fs, args)

	env.TOTP(recordArg(fs, "passvault totp <id> [label]"), fs.Arg(1))
}

func runSync(ctx context.Context, env *cmd.Env, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: passvault sync <enable|disable|status|push|pull|diff>")
		os.Exit(1)
	}

	fs := flag.NewFlagSet("sync "+args[0], flag.ExitOnError)
	force := fs.Bool("force", false, "Overwrite a newer copy without asking")
	parse(fs, args[1:])

	switch args[0] {
	case "enable":
		if fs.NArg() < 2 {
			fmt.Fprintln(os.Stderr, "Usage: passvault sync enable <address> <user>")
			os.Exit(1)
		}
		env.SyncEnable(ctx, fs.Arg(0), fs.Arg(1))
	case "disable":
		env.SyncDisable()
	case "status":
		env.SyncStatus(ctx)
	case "push":
		env.SyncPush(ctx, *force)
	case "pull":
		env.SyncPull(ctx, *force)
	case "diff":
		env.SyncDiff(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown sync command: %s\n", args[0])
		os.Exit(1)
	}
}

func runKeyring(env *cmd.Env, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: passvault keyring <save|delete|status>")
		os.Exit(1)
	}
	switch args[0] {
	case "save":
		env.KeyringSave()
	case "delete":
		env.KeyringDelete()
	case "status":
		env.KeyringStatus()
	default:
		fmt.Fprintf(os.Stderr, "Unknown keyring command: %s\n", args[0])
		os.Exit(1)
	}
}

func runCompact(env *cmd.Env, args []string) {
	fs := flag.NewFlagSet("compact", flag.ExitOnError)
	parse(fs, args)

	env.Compact()
}

func runCompletion(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: passvault completion <bash|zsh|fish>")
		os.Exit(1)
	}
	cmd.Completion(args[0])
}
