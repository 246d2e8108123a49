package main

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/analysis"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/bmax"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/params"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/pkg/config"
)

func newExplainCmd() *cobra.Command {
	var extra []string
	cmd := &cobra.Command{
		Use:   "explain <query>",
		Short: "Print the expression bmax builds for a query",
		Long: `Explain parses a query the way the searcher does, without an index.
Term inspection is off because no dictionaries are loaded. Request
parameters are passed as key=value pairs, for example:

  bmaxctl explain "red apple" -p qf="title^2 body" -p pf=title`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			req, err := requestParams(extra)
			if err != nil {
				return err
			}
			return explain(cmd.Context(), cmd.OutOrStdout(), cfg, args[0], req)
		},
	}
	cmd.Flags().StringArrayVarP(&extra, "param", "p", nil, "request parameter as key=value (repeatable)")
	return cmd
}

func requestParams(pairs []string) (params.Params, error) {
	v := url.Values{}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("parameter %q is not key=value", pair)
		}
		v.Add(key, value)
	}
	return params.FromValues(v), nil
}

func explain(ctx context.Context, w io.Writer, cfg *config.Config, q string, req params.Params) error {
	reg, err := analysis.NewRegistry(cfg.Analysis)
	if err != nil {
		return err
	}
	analyzers, err := bmax.AnalyzersFromRegistry(reg, cfg.Bmax)
	if err != nil {
		return err
	}
	bp, err := bmax.NewParser(analyzers, cfg.Bmax, nil)
	if err != nil {
		return err
	}
	qp := parser.New(bp, reg.FieldAnalyzer(), nil, cfg.Bmax)

	boosts, err := qp.Boosts(ctx, req)
	if err != nil {
		return err
	}
	res, err := bp.Parse(ctx, q, req, boosts)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "expression: %s\n", res.Expression)
	fmt.Fprintf(w, "clauses:    %d\n", res.ClauseCount)
	fmt.Fprintf(w, "terms:      %s\n", strings.Join(res.Model.TermTexts(), " "))
	if syn := res.Model.AllSynonyms(); len(syn) > 0 {
		fmt.Fprintf(w, "synonyms:   %s\n", strings.Join(syn, " "))
	}
	if sub := res.Model.AllSubtopics(); len(sub) > 0 {
		fmt.Fprintf(w, "subtopics:  %s\n", strings.Join(sub, " "))
	}
	if len(res.BoostUpTerms) > 0 {
		fmt.Fprintf(w, "boost up:   %s\n", strings.Join(res.BoostUpTerms, " "))
	}
	if len(res.BoostDownTerms) > 0 {
		fmt.Fprintf(w, "boost down: %s\n", strings.Join(res.BoostDownTerms, " "))
	}
	if req.Has(params.RQ) {
		fmt.Fprintf(w, "rq:         %s\n", req.Get(params.RQ))
		fmt.Fprintf(w, "rqq:        %s\n", req.Get(bmax.ParamRerankQuery))
	}
	return nil
}
