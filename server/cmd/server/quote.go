package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/senseease/senseease/server/internal/api"
	"github.com/senseease/senseease/server/internal/pricing"
)

var quoteJSON bool

func init() {
	quoteCmd.Flags().BoolVar(&quoteJSON, "json", false, "print the quote as JSON")
}

var quoteCmd = &cobra.Command{
	Use:   "quote [file]",
	Short: "Price a cart offline from a JSON file or stdin",
	Long: `Price a cart using the pricing policy from the config, without a server.

The input has the same shape as the body of POST /api/v1/quote:
  {"lines":[{"product_id":"tee","quantity":2,"unit_price":"12.50"}],
   "coupons":[{"code":"SAVE10","kind":"percentage","amount":10}]}

Examples:
  senseease-server quote cart.json
  cat cart.json | senseease-server quote -`,
	Args: cobra.MaximumNArgs(1),
	RunE: runQuote,
}

type quoteOutput struct {
	Lines  []quoteLine   `json:"lines"`
	Totals quoteTotals   `json:"totals"`
	Policy pricingPolicy `json:"policy"`
}

type quoteLine struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	LineTotal string `json:"line_total"`
}

type quoteTotals struct {
	Subtotal  string `json:"subtotal"`
	ItemCount int    `json:"item_count"`
	Tax       string `json:"tax"`
	Shipping  string `json:"shipping"`
	Discount  string `json:"discount"`
	Total     string `json:"total"`
}

type pricingPolicy struct {
	TaxRate               string `json:"tax_rate"`
	FreeShippingThreshold string `json:"free_shipping_threshold"`
	FlatShipping          string `json:"flat_shipping"`
}

func runQuote(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	policy, err := cfg.Server.Pricing.Policy()
	if err != nil {
		return fmt.Errorf("pricing policy: %w", err)
	}

	var in io.Reader = cmd.InOrStdin()
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	var req api.QuoteRequest
	dec := json.NewDecoder(in)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return fmt.Errorf("decode quote request: %w", err)
	}

	out, err := priceQuote(req, policy)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if quoteJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	return printQuote(w, out)
}

// priceQuote prices req under policy and formats it for output.
func priceQuote(req api.QuoteRequest, policy pricing.Policy) (quoteOutput, error) {
	q, err := api.PriceQuote(req, policy)
	if err != nil {
		return quoteOutput{}, err
	}

	out := quoteOutput{
		Policy: pricingPolicy{
			TaxRate:               policy.TaxRate.String(),
			FreeShippingThreshold: policy.FreeShippingThreshold.StringFixed(2),
			FlatShipping:          policy.FlatShipping.StringFixed(2),
		},
	}
	for _, l := range q.Lines {
		out.Lines = append(out.Lines, quoteLine{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitEffective().StringFixed(2),
			LineTotal: pricing.Round(l.Effective()).StringFixed(2),
		})
	}
	t := q.Totals
	out.Totals = quoteTotals{
		Subtotal:  t.Subtotal.StringFixed(2),
		ItemCount: t.ItemCount,
		Tax:       t.Tax.StringFixed(2),
		Shipping:  t.Shipping.StringFixed(2),
		Discount:  t.Discount.StringFixed(2),
		Total:     t.Total.StringFixed(2),
	}
	return out, nil
}

func printQuote(w io.Writer, q quoteOutput) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "PRODUCT\tQTY\tUNIT\tLINE\t")
	for _, l := range q.Lines {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t\n", l.ProductID, l.Quantity, l.UnitPrice, l.LineTotal)
	}
	fmt.Fprintln(tw, "\t\t\t\t")
	fmt.Fprintf(tw, "Subtotal (%d items)\t\t\t%s\t\n", q.Totals.ItemCount, q.Totals.Subtotal)
	fmt.Fprintf(tw, "Tax\t\t\t%s\t\n", q.Totals.Tax)
	fmt.Fprintf(tw, "Shipping\t\t\t%s\t\n", q.Totals.Shipping)
	fmt.Fprintf(tw, "Discount\t\t\t-%s\t\n", q.Totals.Discount)
	fmt.Fprintf(tw, "Total\t\t\t%s\t\n", q.Totals.Total)
	return tw.Flush()
}
