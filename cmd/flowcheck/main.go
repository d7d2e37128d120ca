// Command flowcheck validates wizard flow definitions and prints their shape.
//
//	flowcheck validate                 check the embedded catalog
//	flowcheck validate ./definitions   check YAML files in a directory
//	flowcheck describe investment_project
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"sprout/internal/flows"
	"sprout/internal/platform/config"
	"sprout/internal/platform/logger"
	"sprout/internal/wizard/models"
	id "sprout/pkg/domain"
)

// Version is set at build time.
var Version = "dev"

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:      "flowcheck",
		Usage:     "Validate and inspect wizard flow definitions",
		Version:   Version,
		Writer:    out,
		ErrWriter: out,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "dir",
				Usage:   "Directory of *.yaml flow definitions (default: embedded catalog)",
				EnvVars: []string{"SPROUT_FLOWS_DIR"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "validate",
				Usage:     "Parse every definition and report errors",
				ArgsUsage: "[dir]",
				Action: func(c *cli.Context) error {
					dir := c.String("dir")
					if c.Args().Present() {
						dir = c.Args().First()
					}
					catalog, err := load(dir)
					if err != nil {
						return err
					}
					for _, flowID := range catalog.IDs() {
						f, _ := catalog.Get(flowID)
						fmt.Fprintf(out, "ok  %-24s %d steps, %d cross-field rules\n", f.ID, len(f.Steps), len(f.CrossRules))
					}
					return nil
				},
			},
			{
				Name:      "describe",
				Usage:     "Print the steps, fields and attachments of one flow",
				ArgsUsage: "<flow>",
				Action: func(c *cli.Context) error {
					if !c.Args().Present() {
						return cli.Exit("describe needs a flow ID", 2)
					}
					catalog, err := load(c.String("dir"))
					if err != nil {
						return err
					}
					f, err := catalog.Get(id.FlowID(c.Args().First()))
					if err != nil {
						return err
					}
					describe(out, f)
					return nil
				},
			},
		},
	}
}

func load(dir string) (*flows.Catalog, error) {
	log := newLogger()
	if dir == "" {
		log.Debug("loading embedded flow catalog")
		return flows.Load()
	}
	log.Debug("loading flow definitions", "dir", dir)
	return flows.LoadFS(os.DirFS(dir), "*.yaml")
}

// newLogger honours SPROUT_LOG_*; a broken environment falls back to warnings
// on stderr so the tool still runs.
func newLogger() *slog.Logger {
	cfg, err := config.Load()
	if err != nil {
		return logger.NewWithWriter(config.LogConfig{Level: "warn", Format: "text"}, os.Stderr)
	}
	return logger.NewWithWriter(cfg.Log, os.Stderr)
}

func describe(out io.Writer, f *models.Flow) {
	fmt.Fprintf(out, "%s (%s)\n", f.Title, f.ID)
	for i, step := range f.Steps {
		fmt.Fprintf(out, "%d. %s [%s]\n", i+1, step.Title, step.ID)
		for _, field := range step.Fields {
			fmt.Fprintf(out, "   field      %s\n", field.Key)
		}
		for _, g := range step.Groups {
			fmt.Fprintf(out, "   group      %s (min %d)\n", g.Key, g.MinItems)
		}
		for _, a := range step.Attachments {
			req := "optional"
			if a.Required {
				req = "required"
			}
			fmt.Fprintf(out, "   attachment %s %s, %s\n", a.Key, strings.Join(a.Accept, "|"), req)
		}
	}
	for _, r := range f.CrossRules {
		fmt.Fprintf(out, "rule %s: %s\n", r.ID, r.Message)
	}
}
