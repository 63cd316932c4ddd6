package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/gasoline/internal/codec"
	"github.com/roach88/gasoline/internal/persist"
)

// ActionsOptions holds flags for the actions commands.
type ActionsOptions struct {
	*RootOptions
	dbFlags
	After int64
	Limit int
}

// ActionsListResult is the JSON payload of actions list.
type ActionsListResult struct {
	Actions []persist.ActionRecord `json:"actions"`

	// Next is the --after value that continues the listing.
	Next int64 `json:"next"`
}

// NewActionsCommand creates the actions command group.
func NewActionsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ActionsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "actions",
		Short: "Inspect the recorded action log",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List recorded actions in log order",
		Long: `List the actions a store recorded, in the order they were logged.

Use --after with the "next" value of a previous listing to page through
the log.

Examples:
  gasoline actions list --db ./gasoline.db
  gasoline actions list --db ./gasoline.db --after 120 --limit 20
  gasoline actions list --config ./gasoline.yaml --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runActionsList(opts, cmd)
		},
	}
	opts.register(list)
	list.Flags().Int64Var(&opts.After, "after", 0, "only list actions logged after this position")
	list.Flags().IntVar(&opts.Limit, "limit", 100, "maximum number of actions (0 for all)")

	cmd.AddCommand(list)
	return cmd
}

func runActionsList(opts *ActionsOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	if opts.After < 0 {
		return fail(formatter, ExitCommandError, ErrCodeGeneric, "--after must not be negative", nil)
	}

	db, err := openDB(opts.RootOptions, &opts.dbFlags, cmd)
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeDatabase, "failed to open database", err)
	}
	defer db.Close()

	records, err := db.ReadActions(context.Background(), opts.After, opts.Limit)
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeDatabase, "failed to read actions", err)
	}

	result := ActionsListResult{Actions: records, Next: opts.After}
	if n := len(records); n > 0 {
		result.Next = records[n-1].Pos
	}
	formatter.VerboseLog("read %d action(s) after position %d", len(records), opts.After)

	if formatter.JSON() {
		return formatter.Success(result)
	}
	if len(records) == 0 {
		fmt.Fprintln(formatter.Writer, "No actions found in database.")
		return nil
	}

	tw := tabwriter.NewWriter(formatter.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "POS\tSEQ\tID\tTYPE\tTARGET\tPAYLOAD")
	for _, r := range records {
		payload := "-"
		if r.Payload != nil {
			data, err := codec.MarshalCanonical(r.Payload)
			if err != nil {
				return fail(formatter, ExitCommandError, ErrCodeGeneric, "failed to render payload", err)
			}
			payload = string(data)
		}
		target := "-"
		if len(r.Target) > 0 {
			target = strings.Join(r.Target, ",")
		}
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\t%s\n", r.Pos, r.Seq, r.DispatchID, r.Type, target, payload)
	}
	return tw.Flush()
}
