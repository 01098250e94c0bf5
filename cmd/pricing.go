package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/deep-research/internal/cost"
)

var pricingServer string

var pricingCmd = &cobra.Command{
	Use:   "pricing",
	Short: "Show or change the rates used by the cost ledger",
	Long:  "Without --server the rates come from configuration. With --server they are read from, or written to, a running API server.",
}

var pricingShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current rates",
	RunE: func(cmd *cobra.Command, _ []string) error {
		p := pricingFrom(cfg)
		if pricingServer != "" {
			var err error
			p, err = pricingRequest(cmd.Context(), http.MethodGet, nil)
			if err != nil {
				return err
			}
		}
		formatPricing(os.Stdout, p)
		return nil
	},
}

var pricingSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Replace the rates on a running server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if pricingServer == "" {
			return eris.New("pricing set needs --server; edit config.yaml to change the configured rates")
		}
		ctx := cmd.Context()
		current, err := pricingRequest(ctx, http.MethodGet, nil)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("per-search") {
			current.TavilyPerSearch, _ = cmd.Flags().GetFloat64("per-search")
		}
		if cmd.Flags().Changed("per-1k-tokens") {
			current.LLMPer1KTokens, _ = cmd.Flags().GetFloat64("per-1k-tokens")
		}
		updated, err := pricingRequest(ctx, http.MethodPut, &current)
		if err != nil {
			return err
		}
		formatPricing(os.Stdout, updated)
		return nil
	},
}

func pricingRequest(ctx context.Context, method string, body *cost.Pricing) (cost.Pricing, error) {
	var p cost.Pricing
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return p, eris.Wrap(err, "pricing: marshal")
		}
		reader = bytes.NewReader(data)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(pricingServer, "/")+"/api/v1/pricing", reader)
	if err != nil {
		return p, eris.Wrap(err, "pricing: build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return p, eris.Wrap(err, "pricing: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return p, eris.Errorf("pricing: server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return p, eris.Wrap(err, "pricing: decode response")
	}
	return p, nil
}

func formatPricing(out io.Writer, p cost.Pricing) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Per search:\t$%.4f\n", p.TavilyPerSearch)
	_, _ = fmt.Fprintf(w, "Per 1k tokens:\t$%.4f\n", p.LLMPer1KTokens)
	_ = w.Flush()
}

func init() {
	pricingCmd.PersistentFlags().StringVar(&pricingServer, "server", "", "API server base URL (e.g. http://localhost:8080)")
	pricingSetCmd.Flags().Float64("per-search", 0, "USD per search operation")
	pricingSetCmd.Flags().Float64("per-1k-tokens", 0, "USD per 1000 reasoning tokens")

	pricingCmd.AddCommand(pricingShowCmd, pricingSetCmd)
	rootCmd.AddCommand(pricingCmd)
}
