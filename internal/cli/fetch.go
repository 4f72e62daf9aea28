package cli

import (
	"fmt"
	"net/url"
	"path"

	"github.com/spf13/cobra"

	"github.com/glorpus-work/srtm1dl/pkg/errors"
)

// NewFetchCmd creates the fetch command.
func NewFetchCmd() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "fetch URL",
		Short: "Fetch a reference file through the cache",
		Long: `Fetch an ftp, http or https URL into the cache and print the local path.
The cached copy is reused until it is older than cache_ttl.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(cmd, args[0], name)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Cache entry name (default: last element of the URL path)")

	return cmd
}

func runFetch(cmd *cobra.Command, rawURL, name string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if name == "" {
		name, err = entryName(rawURL)
		if err != nil {
			return err
		}
	}

	p, err := newCacheManager(cfg).Get(cmd.Context(), name, rawURL)
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintln(cmd.OutOrStdout(), p)
	return nil
}

func entryName(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", errors.Protocolf("invalid url %q", rawURL)
	}
	name := path.Base(u.Path)
	if name == "/" || name == "." {
		return "", fmt.Errorf("cannot derive a cache name from %q, pass --name", rawURL)
	}
	return name, nil
}
