package main

import (
	"fmt"
	"time"

	"github.com/urfave/cli"
	"github.com/warp/scheduled-payments/schedule"
)

const maxEstimateCount = 100

var estimateFlags = []cli.Flag{
	cli.StringFlag{
		Name:  "when, w",
		Usage: "schedule `TEXT`, e.g. \"WEEKDAY-1 TIME-09:00\" or \"MONTHDAY-15 TIME-12:30\"",
	},
	cli.StringFlag{
		Name:  "from",
		Usage: "start `INSTANT` (RFC 3339, default now)",
	},
	cli.StringFlag{
		Name:  "until",
		Usage: "last `INSTANT` to include (RFC 3339)",
	},
	cli.IntFlag{
		Name:  "count, n",
		Usage: "number of occurrences (1-100)",
		Value: 5,
	},
}

// estimate prints upcoming occurrences, one per line.
func estimate(c *cli.Context) error {
	rule := schedule.FromText(c.String("when"))
	if err := rule.Validate(); err != nil {
		return fmt.Errorf("--when: %w", err)
	}

	count := c.Int("count")
	if count < 1 || count > maxEstimateCount {
		return fmt.Errorf("--count must be between 1 and %d", maxEstimateCount)
	}
	bounds := schedule.Bounds{MaxMatches: count}

	from := time.Now()
	if v := c.String("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return fmt.Errorf("--from: %w", err)
		}
		from = t
	}
	if v := c.String("until"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return fmt.Errorf("--until: %w", err)
		}
		bounds.Until = t
	}

	got, err := schedule.Estimate(rule, from, bounds)
	if err != nil {
		return err
	}

	w := c.App.Writer
	fmt.Fprintf(w, "%s (%s)\n", rule.String(), rule.ToText())
	for _, at := range got {
		fmt.Fprintf(w, "  %s  %s\n", at.Format("2006-01-02 15:04"), at.Format("Mon"))
	}
	if len(got) == 0 {
		fmt.Fprintln(w, "  no occurrences")
	}
	return nil
}
