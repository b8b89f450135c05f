package infra

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/themule888/spread-scanner/business/arbitrage/app"
	"github.com/themule888/spread-scanner/business/arbitrage/domain"
)

var _ app.Sink = (*ConsoleSink)(nil)

// ConsoleSink prints every tick as a one-line summary and expands
// opportunities into a framed block, so they stand out when tailing the
// process output.
type ConsoleSink struct {
	mu  sync.Mutex
	out io.Writer
}

func NewConsoleSink() *ConsoleSink {
	return &ConsoleSink{out: os.Stdout}
}

// NewConsoleSinkWriter is NewConsoleSink with an explicit destination.
func NewConsoleSinkWriter(w io.Writer) *ConsoleSink {
	return &ConsoleSink{out: w}
}

func (c *ConsoleSink) Record(_ context.Context, r *domain.Report) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if r.Spread == nil {
		fmt.Fprintf(c.out, "[tick %d] %s: %d/%d quotes, no spread\n",
			r.Tick, r.Batch.Asset, len(r.Batch.Successful()), len(r.Batch.Quotes))
		return nil
	}

	if !r.Spread.Opportunity {
		fmt.Fprintf(c.out, "[tick %d] %s: spread %s%% (%s %s -> %s %s), below threshold\n",
			r.Tick, r.Batch.Asset, r.Spread.Percent.StringFixed(4),
			r.Spread.Low.Source, r.Spread.Low.Price.StringFixed(2),
			r.Spread.High.Source, r.Spread.High.Price.StringFixed(2))
		return nil
	}

	line := strings.Repeat("=", 64)
	fmt.Fprintf(c.out, "\n%s\n", line)
	fmt.Fprintf(c.out, "  SPREAD OPPORTUNITY  tick %d", r.Tick)
	if r.BlockNumber > 0 {
		fmt.Fprintf(c.out, "  block %d", r.BlockNumber)
	}
	fmt.Fprintf(c.out, "\n%s\n", line)
	fmt.Fprintf(c.out, "  Asset:        %s\n", r.Batch.Asset)
	fmt.Fprintf(c.out, "  Buy on:       %-16s @ %s\n",
		r.Spread.Low.Source, r.Spread.Low.Price.StringFixed(2))
	fmt.Fprintf(c.out, "  Sell on:      %-16s @ %s\n",
		r.Spread.High.Source, r.Spread.High.Price.StringFixed(2))
	fmt.Fprintf(c.out, "  Spread:       %s (%s%%)\n",
		r.Spread.Absolute.StringFixed(2), r.Spread.Percent.StringFixed(4))

	if p := r.Profit; p != nil {
		fmt.Fprintf(c.out, "%s\n", strings.Repeat("-", 64))
		fmt.Fprintf(c.out, "  Trade size:   %s\n", p.AmountIn.StringFixed(2))
		fmt.Fprintf(c.out, "  Gross profit: %s\n", p.GrossProfit.StringFixed(2))
		fmt.Fprintf(c.out, "  Gas cost:     %s\n", p.GasCost.StringFixed(2))
		fmt.Fprintf(c.out, "  Flash fee:    %s\n", p.FlashLoanFee.StringFixed(2))
		fmt.Fprintf(c.out, "  Net profit:   %s\n", p.NetProfit.StringFixed(2))
		fmt.Fprintf(c.out, "  Impact:       buy %s%%, sell %s%%\n",
			p.ImpactBuy.StringFixed(4), p.ImpactSell.StringFixed(4))
		verdict := "NOT PROFITABLE"
		if p.Profitable {
			verdict = "PROFITABLE"
		}
		fmt.Fprintf(c.out, "  Verdict:      %s\n", verdict)
	} else {
		fmt.Fprintf(c.out, "  (no on-chain reserves on both legs, not sized)\n")
	}
	fmt.Fprintf(c.out, "%s\n\n", line)
	return nil
}

func (c *ConsoleSink) Close() error {
	return nil
}
