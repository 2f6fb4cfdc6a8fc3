package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"docshub/api/internal/config"
	"docshub/api/internal/logging"
)

var (
	cfg    config.Config
	logger zerolog.Logger

	serverURL string
	tokenFlag string
	password  string
	outDir    string
	inFile    string
	category  string
	verbose   bool

	rootCmd = &cobra.Command{
		Use:   "docshub",
		Short: "Command line client for the docshub documentation API",
		Long: `docshub talks to a running docshub API: sign in, manage projects,
edit documents with autosave and export them.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cfg = config.Load()
			level := "warn"
			if verbose {
				level = "debug"
			}
			logger = logging.New(level, os.Stderr)
		},
	}

	signupCmd = &cobra.Command{
		Use:   "signup [username]",
		Short: "Create an account and remember its token",
		Args:  cobra.ExactArgs(1),
		RunE:  runSignUp,
	}
	loginCmd = &cobra.Command{
		Use:   "login [username]",
		Short: "Sign in and remember the token",
		Args:  cobra.ExactArgs(1),
		RunE:  runLogin,
	}
	logoutCmd = &cobra.Command{
		Use:   "logout",
		Short: "Forget the remembered token",
		Args:  cobra.NoArgs,
		RunE:  runLogout,
	}

	projectsCmd = &cobra.Command{
		Use:   "projects",
		Short: "List your projects",
		Args:  cobra.NoArgs,
		RunE:  runProjects,
	}
	projectCreateCmd = &cobra.Command{
		Use:   "create [name]",
		Short: "Create a project",
		Args:  cobra.ExactArgs(1),
		RunE:  runProjectCreate,
	}
	projectDeleteCmd = &cobra.Command{
		Use:   "delete [project-id]",
		Short: "Delete a project and everything in it",
		Args:  cobra.ExactArgs(1),
		RunE:  runProjectDelete,
	}
	projectSelectCmd = &cobra.Command{
		Use:   "select [project-id]",
		Short: "Make a project the current one",
		Args:  cobra.ExactArgs(1),
		RunE:  runProjectSelect,
	}

	docsCmd = &cobra.Command{
		Use:   "docs [project-id]",
		Short: "List the documents of a project",
		Args:  cobra.ExactArgs(1),
		RunE:  runDocs,
	}
	docAddCmd = &cobra.Command{
		Use:   "add [project-id] [title]",
		Short: "Add a document to a project",
		Args:  cobra.ExactArgs(2),
		RunE:  runDocAdd,
	}
	writeCmd = &cobra.Command{
		Use:   "write [project-id] [document-id]",
		Short: "Replace a document's content from a file or stdin",
		Args:  cobra.ExactArgs(2),
		RunE:  runWrite,
	}
	searchCmd = &cobra.Command{
		Use:   "search [project-id] [query]",
		Short: "Search a project's documents",
		Args:  cobra.ExactArgs(2),
		RunE:  runSearch,
	}
	historyCmd = &cobra.Command{
		Use:   "history [project-id]",
		Short: "List saved snapshots of a project",
		Args:  cobra.ExactArgs(1),
		RunE:  runHistory,
	}
	exportCmd = &cobra.Command{
		Use:   "export [project-id] [document-id]",
		Short: "Download one document as markdown, or the whole project as a zip",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  runExport,
	}
	askCmd = &cobra.Command{
		Use:   "ask [project-id] [question]",
		Short: "Ask the assistant about a project's documents",
		Args:  cobra.ExactArgs(2),
		RunE:  runAsk,
	}
	watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Print your change events as they happen",
		Args:  cobra.NoArgs,
		RunE:  runWatch,
	}

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Manage the Postgres schema",
	}
	migrateUpCmd = &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE:  runMigrateUp,
	}
	migrateDownCmd = &cobra.Command{
		Use:   "down",
		Short: "Roll back every applied migration",
		Args:  cobra.NoArgs,
		RunE:  runMigrateDown,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("DOCSHUB_SERVER", "http://localhost:5000"), "API base URL")
	rootCmd.PersistentFlags().StringVar(&tokenFlag, "token", os.Getenv("DOCSHUB_TOKEN"), "Bearer token; defaults to the remembered one")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output to stderr")

	rootCmd.AddCommand(signupCmd, loginCmd, logoutCmd)
	for _, cmd := range []*cobra.Command{signupCmd, loginCmd} {
		cmd.Flags().StringVarP(&password, "password", "p", os.Getenv("DOCSHUB_PASSWORD"), "Account password")
	}

	rootCmd.AddCommand(projectsCmd)
	projectsCmd.AddCommand(projectCreateCmd, projectDeleteCmd, projectSelectCmd)

	rootCmd.AddCommand(docsCmd)
	docsCmd.AddCommand(docAddCmd)
	docAddCmd.Flags().StringVarP(&category, "category", "c", "Custom", "Document category")

	rootCmd.AddCommand(writeCmd)
	writeCmd.Flags().StringVarP(&inFile, "file", "f", "-", "Content file; - reads stdin")

	rootCmd.AddCommand(searchCmd, historyCmd, askCmd, watchCmd)

	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVarP(&outDir, "out", "o", ".", "Directory to write the export into")

	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
