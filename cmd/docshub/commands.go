package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"docshub/api/internal/client"
	"docshub/api/internal/document"
	"docshub/api/internal/store"
)

func newClient() *client.Client {
	token := tokenFlag
	if token == "" {
		token, _ = readToken()
	}
	return client.New(serverURL, client.WithToken(token))
}

func runSignUp(cmd *cobra.Command, args []string) error {
	return authenticate(cmd, func(ctx context.Context, c *client.Client) (client.Auth, error) {
		return c.SignUp(ctx, args[0], password)
	})
}

func runLogin(cmd *cobra.Command, args []string) error {
	return authenticate(cmd, func(ctx context.Context, c *client.Client) (client.Auth, error) {
		return c.Login(ctx, args[0], password)
	})
}

func authenticate(cmd *cobra.Command, call func(context.Context, *client.Client) (client.Auth, error)) error {
	if password == "" {
		return errors.New("a password is required (--password or DOCSHUB_PASSWORD)")
	}
	result, err := call(cmd.Context(), client.New(serverURL))
	if err != nil {
		return err
	}
	if err := writeToken(result.Token); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s (%s, %s)\n", result.Message, result.Username, result.Role)
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	if err := removeToken(); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
	return nil
}

func runProjects(cmd *cobra.Command, args []string) error {
	list, err := newClient().ListProjects(cmd.Context())
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\tID\tNAME\tDOCUMENTS\tUPDATED")
	for _, project := range list.Projects {
		marker := ""
		if list.CurrentProjectID != nil && *list.CurrentProjectID == project.ID {
			marker = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", marker, project.ID, project.Name,
			len(project.Documents), project.UpdatedAt.Local().Format(time.DateTime))
	}
	return tw.Flush()
}

func runProjectCreate(cmd *cobra.Command, args []string) error {
	project, _, err := newClient().CreateProject(cmd.Context(), client.ProjectDraft{Name: args[0]})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created %s (%s)\n", project.Name, project.ID)
	return nil
}

func runProjectDelete(cmd *cobra.Command, args []string) error {
	list, err := newClient().DeleteProject(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	current := "none"
	if list.CurrentProjectID != nil {
		current = *list.CurrentProjectID
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s; current project is %s\n", args[0], current)
	return nil
}

func runProjectSelect(cmd *cobra.Command, args []string) error {
	project, err := newClient().SelectProject(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Current project is %s\n", project.Name)
	return nil
}

func runDocs(cmd *cobra.Command, args []string) error {
	project, err := newClient().GetProject(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	documents := project.Documents
	if len(documents) == 0 {
		documents = document.DefaultSnapshot().Documents
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tCATEGORY\tWORDS")
	for _, meta := range documents {
		words := 0
		if content, ok := project.DocumentContent.Get(meta.ID); ok {
			words = document.WordCount(content.Content)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", meta.ID, meta.Title, meta.Category, words)
	}
	return tw.Flush()
}

// openWorkspace opens projectID for editing. The caller must Close it so the
// last edits are saved.
func openWorkspace(ctx context.Context, projectID string) (*client.Workspace, error) {
	return client.Open(ctx, newClient(), projectID, client.WorkspaceOptions{
		Debounce: cfg.AutosaveDebounce,
		Logger:   logger,
	})
}

func runDocAdd(cmd *cobra.Command, args []string) (err error) {
	ctx := cmd.Context()
	w, err := openWorkspace(ctx, args[0])
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, w.Close(ctx))
	}()

	meta, err := w.Editor().AddDocument(args[1], document.ParseCategory(category))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Added %s (%s)\n", meta.Title, meta.ID)
	return nil
}

func runWrite(cmd *cobra.Command, args []string) (err error) {
	text, err := readInput(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	w, err := openWorkspace(ctx, args[0])
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, w.Close(ctx))
	}()

	ed := w.Editor()
	if err := ed.Select(args[1]); err != nil {
		return err
	}
	if err := ed.StartEditing(); err != nil {
		return err
	}
	if err := ed.UpdateDraft(text); err != nil {
		return err
	}
	if err := ed.SaveEdit(); err != nil {
		return err
	}
	if err := w.Flush(ctx); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Saved %s at %s\n", args[1], w.LastSaved().Local().Format(time.DateTime))
	return nil
}

func readInput(cmd *cobra.Command) (string, error) {
	if inFile == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		return string(data), err
	}
	data, err := os.ReadFile(inFile)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", inFile, err)
	}
	return string(data), nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	response, err := newClient().Search(cmd.Context(), args[0], args[1])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%d result(s) for %q\n", response.Total, response.Query)
	for _, result := range response.Results {
		fmt.Fprintf(out, "  %s  %s [%s]\n", result.DocumentID, result.Title, result.Category)
		if result.Snippet != "" {
			fmt.Fprintf(out, "      %s\n", strings.ReplaceAll(result.Snippet, "\n", " "))
		}
	}
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	commits, err := newClient().History(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if len(commits) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No history")
		return nil
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "HASH\tWHEN\tAUTHOR\tMESSAGE")
	for _, commit := range commits {
		hash := commit.Hash
		if len(hash) > 10 {
			hash = hash[:10]
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", hash, commit.CreatedAt.Local().Format(time.DateTime), commit.Author, commit.Message)
	}
	return tw.Flush()
}

func runExport(cmd *cobra.Command, args []string) error {
	c := newClient()
	var (
		file client.File
		err  error
	)
	if len(args) == 2 {
		file, err = c.ExportDocument(cmd.Context(), args[0], args[1])
	} else {
		file, err = c.ExportArchive(cmd.Context(), args[0])
	}
	if err != nil {
		return err
	}
	name := filepath.Base(file.Name)
	if name == "." || name == string(filepath.Separator) || name == "" {
		name = "export"
	}
	path := filepath.Join(outDir, name)
	if err := os.WriteFile(path, file.Data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d bytes)\n", path, len(file.Data))
	return nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	answer, err := newClient().Ask(cmd.Context(), args[0], args[1])
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), answer)
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	events, err := newClient().Watch(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	for event := range events {
		if err := enc.Encode(event); err != nil {
			return err
		}
	}
	if ctx.Err() == nil {
		return errors.New("event stream closed by server")
	}
	return nil
}

func runMigrateUp(cmd *cobra.Command, args []string) error {
	return migrate(cmd, func(ctx context.Context) ([]string, error) {
		db, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		defer db.Close()
		return store.ApplyMigrations(ctx, db, cfg.MigrationsDir, logger)
	}, "Applied")
}

func runMigrateDown(cmd *cobra.Command, args []string) error {
	return migrate(cmd, func(ctx context.Context) ([]string, error) {
		db, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		defer db.Close()
		return store.RollbackMigrations(ctx, db, cfg.MigrationsDir, logger)
	}, "Rolled back")
}

func migrate(cmd *cobra.Command, run func(context.Context) ([]string, error), verb string) error {
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is not set; the embedded store needs no migrations")
	}
	versions, err := run(cmd.Context())
	if err != nil {
		return err
	}
	if len(versions) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "Nothing to do")
		return nil
	}
	for _, version := range versions {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", verb, version)
	}
	return nil
}
