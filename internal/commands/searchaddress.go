// Package commands implements the CLI subcommands used for one-time setup.
package commands

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mskaar/renovasjon/internal/api"
	"github.com/mskaar/renovasjon/internal/models"
)

const searchTimeout = 60 * time.Second

// SearchAddress handles the search-address subcommand: it resolves a
// free-text address to the candidate ids the service config needs, and
// optionally validates one by fetching its schedule.
func SearchAddress(args []string) {
	fs := flag.NewFlagSet("search-address", flag.ExitOnError)
	baseURL := fs.String("api-url", api.DefaultBaseURL, "Base URL of the Renovasjonsportal API")
	selectID := fs.String("select", "", "Validate this address id and print a config snippet")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: renovasjon search-address [OPTIONS] QUERY\n\n")
		fmt.Fprintf(os.Stderr, "Searches for an address and prints the candidates. Pick one and\n")
		fmt.Fprintf(os.Stderr, "re-run with -select ID to validate it and emit a config snippet.\n\n")
		fmt.Fprintf(os.Stderr, "Example:\n")
		fmt.Fprintf(os.Stderr, "  renovasjon search-address \"Storgata 1, Oslo\"\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
	}
	_ = fs.Parse(args)

	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(2)
	}
	query := fs.Arg(0)

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	client := api.NewClient(*baseURL, logger)

	ctx, cancel := context.WithTimeout(context.Background(), searchTimeout)
	defer cancel()

	results, err := client.SearchAddress(ctx, query)
	if err != nil {
		switch {
		case errors.Is(err, api.ErrAddressNotFound):
			fmt.Fprintf(os.Stderr, "No addresses found for %q. Try a broader query.\n", query)
		case errors.Is(err, api.ErrConnection):
			fmt.Fprintf(os.Stderr, "Could not reach the API: %v\n", err)
		default:
			fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		}
		os.Exit(1)
	}

	fmt.Printf("Found %d address(es) for %q:\n\n", len(results), query)
	for _, result := range results {
		fmt.Printf("  %s\n    %s (%s)\n", result.ID, result.Title, result.Municipality)
	}

	if *selectID == "" {
		fmt.Printf("\nRe-run with -select ID to validate an address and print its config.\n")
		return
	}

	var selected *models.AddressSearchResult
	for i := range results {
		if results[i].ID == *selectID {
			selected = &results[i]
			break
		}
	}
	if selected == nil {
		fmt.Fprintf(os.Stderr, "\nAddress id %q is not among the candidates above.\n", *selectID)
		os.Exit(1)
	}

	// Validate the id resolves to a schedule before handing it to config.
	snap, err := client.GetSchedule(ctx, selected.ID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "\nCould not fetch a schedule for %s: %v\n", selected.ID, err)
		os.Exit(1)
	}
	if len(snap.Fractions) == 0 {
		fmt.Fprintf(os.Stderr, "\nWarning: no disposals listed for this address yet, continuing anyway.\n")
	} else {
		fmt.Printf("\nValidated: %d fraction(s): %s\n", len(snap.Fractions), strings.Join(snap.FractionNames(), ", "))
	}

	fmt.Printf("\nAdd this to config.yaml:\n\n")
	fmt.Printf("address:\n")
	fmt.Printf("  id: %q\n", selected.ID)
	fmt.Printf("  name: %q\n", selected.Title)
	fmt.Printf("  municipality: %q\n", selected.Municipality)
}
