// Package transfers holds the export and import subcommands.
package transfers

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/julianstephens/planmate/internal/cli"
	"github.com/julianstephens/planmate/internal/transfer"
)

// ExportCmd writes plans, conversations, settings and state as YAML.
type ExportCmd struct {
	Output string `short:"o" help:"Write to this file instead of stdout." type:"path"`
}

func (c *ExportCmd) Run(ctx *cli.Context) error {
	doc, err := transfer.Export(context.Background(), ctx.Services().Records)
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	if c.Output == "" {
		return transfer.Write(ctx.Output(), doc)
	}

	f, err := os.OpenFile(c.Output, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if err := transfer.Write(f, doc); err != nil {
		f.Close()
		return fmt.Errorf("export failed: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	ctx.Printf("✓ Exported %d plan(s) and %d conversation(s) to %s\n", len(doc.Plans), len(doc.Conversations), c.Output)
	return nil
}

// ImportCmd replaces the stored records with an export file.
type ImportCmd struct {
	File string `arg:"" help:"Export file to import, or - for stdin."`
	Yes  bool   `short:"y" help:"Skip the confirmation prompt."`

	stdin io.Reader
}

func (c *ImportCmd) Run(ctx *cli.Context) error {
	var r io.Reader
	if c.File == "-" {
		r = c.stdin
		if r == nil {
			r = os.Stdin
		}
	} else {
		f, err := os.Open(c.File)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	doc, err := transfer.Read(r)
	if err != nil {
		return fmt.Errorf("invalid export file: %w", err)
	}

	ok, err := ctx.Ask(fmt.Sprintf("Replace all plans and conversations with %d plan(s) and %d conversation(s)?",
		len(doc.Plans), len(doc.Conversations)), c.Yes)
	if err != nil {
		return err
	}
	if !ok {
		ctx.Println("Import cancelled.")
		return nil
	}

	ctx.PerformAutomaticBackup()
	sum, err := transfer.Import(context.Background(), ctx.Services().Records, doc)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}
	ctx.Printf("✓ Imported %d plan(s), %d conversation(s), %d setting(s)\n", sum.Plans, sum.Conversations, sum.Settings)
	if len(sum.Skipped) > 0 {
		ctx.Println(cli.WarningStyle.Render("Skipped: " + strings.Join(sum.Skipped, ", ")))
	}
	return nil
}
