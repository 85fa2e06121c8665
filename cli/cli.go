package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"

	"querypanel/config"
	"querypanel/core/session"
	"querypanel/core/store"
	"querypanel/core/utils"
)

// Run executes one admin command and returns the process exit code.
func Run(args []string, out io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(out, "commands: engines, seed-notes")
		return 2
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(out, "config: %v\n", err)
		return 1
	}
	logger := utils.NewLoggerWithLevel(cfg.LogLevel)

	switch args[0] {
	case "engines":
		return listEngines(cfg, logger, out)
	case "seed-notes":
		fs := flag.NewFlagSet("seed-notes", flag.ContinueOnError)
		fs.SetOutput(out)
		engineName := fs.String("e", "primary", "engine name")
		titles := fs.String("t", "first,second,third", "comma separated titles")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		return seedNotes(cfg, logger, out, *engineName, splitList(*titles))
	default:
		fmt.Fprintf(out, "unknown command %q\n", args[0])
		return 2
	}
}

func listEngines(cfg *config.AppConfig, logger *utils.Logger, out io.Writer) int {
	engines, err := store.OpenEngines(cfg.Engines, logger)
	if err != nil {
		fmt.Fprintf(out, "engines: %v\n", err)
		return 1
	}
	defer engines.Close()
	for _, e := range engines.All() {
		st, err := store.GetMigrationStatus(context.Background(), e)
		if err != nil {
			fmt.Fprintf(out, "%s\t%s\t%s\terror: %v\n", e.Name(), e.Driver(), e.URL(), err)
			continue
		}
		fmt.Fprintf(out, "%s\t%s\t%s\tversion=%d/%d\n", e.Name(), e.Driver(), e.URL(), st.CurrentVersion, st.LatestVersion)
	}
	return 0
}

func seedNotes(cfg *config.AppConfig, logger *utils.Logger, out io.Writer, name string, titles []string) int {
	engines, err := store.OpenEngines(cfg.Engines, logger)
	if err != nil {
		fmt.Fprintf(out, "engines: %v\n", err)
		return 1
	}
	defer engines.Close()
	e, ok := engines.Get(name)
	if !ok {
		fmt.Fprintf(out, "unknown engine %q\n", name)
		return 1
	}
	ctx := context.Background()
	if err := store.ApplyMigrations(ctx, e, logger); err != nil {
		fmt.Fprintf(out, "migrations: %v\n", err)
		return 1
	}
	sess := session.New(e)
	defer sess.Close()
	notes := store.NewNotesStore()
	for _, t := range titles {
		n, err := notes.Create(ctx, sess, t, "")
		if err != nil {
			fmt.Fprintf(out, "create %q: %v\n", t, err)
			return 1
		}
		fmt.Fprintf(out, "note %d created\n", n.ID)
	}
	return 0
}

func splitList(r string) []string {
	var res []string
	for _, part := range strings.Split(r, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			res = append(res, part)
		}
	}
	return res
}
