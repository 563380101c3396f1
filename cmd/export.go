package cmd

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/hjtapia74/agiloft-api-example/agiloft"
	"github.com/hjtapia74/agiloft-api-example/authcode"
	"github.com/hjtapia74/agiloft-api-example/config"
	"github.com/hjtapia74/agiloft-api-example/export"
	"github.com/hjtapia74/agiloft-api-example/httpclient"
	"github.com/hjtapia74/agiloft-api-example/session"
)

var exportFlags struct {
	configPath string
	outPath    string
	query      string
	fields     []string
	pageSize   int
	verbose    bool
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export all contracts to a CSV file",
	Long: `Export pages through every contract matching the query and writes
them to a CSV file, one row per contract.`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportFlags.configPath, "config", "c", "", "config file (default config.yaml)")
	exportCmd.Flags().StringVarP(&exportFlags.outPath, "out", "o", "contracts.csv", "output CSV file, - for stdout")
	exportCmd.Flags().StringVarP(&exportFlags.query, "query", "q", "", "search expression; empty exports everything")
	exportCmd.Flags().StringSliceVar(&exportFlags.fields, "fields", nil, "fields to export (default contract summary fields)")
	exportCmd.Flags().IntVar(&exportFlags.pageSize, "page-size", export.DefaultPageSize, "contracts fetched per search call")
	exportCmd.Flags().BoolVarP(&exportFlags.verbose, "verbose", "v", false, "log progress to stderr")

	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(exportFlags.configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	mgr, err := newSession(cmd, cfg)
	if err != nil {
		return err
	}

	httpClient, err := httpclient.NewBuilder().WithSession(mgr).Build()
	if err != nil {
		return err
	}

	client := agiloft.NewClient(cfg.Agiloft.BaseURL, mgr,
		agiloft.WithHTTPClient(httpClient),
		agiloft.WithLanguage(cfg.Agiloft.Language),
	)

	out := cmd.OutOrStdout()
	if exportFlags.outPath != "-" {
		f, err := os.Create(exportFlags.outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	exporter := &export.Exporter{
		Client:   client,
		Query:    exportFlags.query,
		Fields:   exportFlags.fields,
		PageSize: exportFlags.pageSize,
	}
	if exportFlags.verbose {
		exporter.Logger = log.New(cmd.ErrOrStderr(), "", log.LstdFlags)
	}

	total, err := exporter.Run(cmd.Context(), out)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d contracts to %s\n", total, exportFlags.outPath)
	return nil
}

// newSession builds the session manager for the configured auth method. The
// authorization-code method runs the interactive browser flow first.
func newSession(cmd *cobra.Command, cfg *config.Config) (*session.Manager, error) {
	var opts []session.Option
	if exportFlags.verbose {
		opts = append(opts, session.WithLoggingEnabled())
	}

	if cfg.Agiloft.AuthMethod == config.AuthMethodAuthorizationCode {
		// The session falls back to the refresh grant at the OAuth2 token
		// endpoint once the interactive flow has seeded it.
		mgr := session.NewManager(session.OAuth2Credentials{
			ClientID: cfg.Agiloft.OAuth2.ClientID,
			TokenURL: cfg.Agiloft.OAuth2.TokenEndpoint,
			KB:       cfg.Agiloft.KB,
		}, opts...)

		flow := &authcode.Flow{
			ClientID:              cfg.Agiloft.OAuth2.ClientID,
			ClientSecret:          cfg.Agiloft.OAuth2.ClientSecret,
			AuthorizationEndpoint: cfg.Agiloft.OAuth2.AuthorizationEndpoint,
			TokenURL:              cfg.Agiloft.OAuth2.TokenEndpoint,
			RedirectURI:           cfg.Agiloft.OAuth2.RedirectURI,
			Scope:                 cfg.Agiloft.OAuth2.Scope,
		}
		if err := flow.Authenticate(cmd.Context(), mgr); err != nil {
			return nil, err
		}
		return mgr, nil
	}

	creds, err := cfg.Credentials()
	if err != nil {
		return nil, err
	}
	return session.NewManager(creds, opts...), nil
}
