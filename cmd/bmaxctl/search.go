package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/searcher/executor"
)

func newSearchCmd() *cobra.Command {
	var (
		baseURL string
		extra   []string
		debug   bool
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run a query against a running searcher",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := requestParams(extra)
			if err != nil {
				return err
			}
			v := url.Values(req)
			v.Set("q", args[0])
			if debug {
				v.Set("debug", "true")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			res, err := search(ctx, http.DefaultClient, baseURL, v)
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), res)
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "url", "http://localhost:8080", "base URL of the search service")
	cmd.Flags().StringArrayVarP(&extra, "param", "p", nil, "request parameter as key=value (repeatable)")
	cmd.Flags().BoolVar(&debug, "debug", false, "request debug output")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "request timeout")
	return cmd
}

func search(ctx context.Context, client *http.Client, baseURL string, v url.Values) (*executor.SearchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/v1/search?"+v.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var body struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return nil, fmt.Errorf("search failed: %s: %s", resp.Status, body.Error)
	}
	var res executor.SearchResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &res, nil
}

func printResult(w io.Writer, res *executor.SearchResult) {
	fmt.Fprintf(w, "%d hits (generation %d)\n", res.TotalHits, res.Generation)
	for i, d := range res.Results {
		fmt.Fprintf(w, "%3d. %-24s %.4f\n", i+1, d.DocID, d.Score)
	}
	if res.Debug == nil {
		return
	}
	fmt.Fprintf(w, "\nexpression: %s\nclauses:    %d\n", res.Debug.Expression, res.Debug.ClauseCount)
	if res.Debug.Rerank != "" {
		fmt.Fprintf(w, "rerank:     %s\n", res.Debug.Rerank)
	}
	for name, msg := range res.Debug.Caches {
		fmt.Fprintf(w, "%s: %s\n", name, msg)
	}
}
