package main

import (
	"net/http"
	"net/url"

	"github.com/spf13/cobra"
)

func newGaugesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gauges",
		Short: "Manage individual gauges",
		Long:  "Inspect gauges and move them through status, location, checkout, deletion and customer return.",
	}

	cmd.AddCommand(newGaugesGetCmd())
	cmd.AddCommand(newGaugesListCmd())
	cmd.AddCommand(newGaugesStatusCmd())
	cmd.AddCommand(newGaugesMoveCmd())
	cmd.AddCommand(newGaugesCheckoutCmd())
	cmd.AddCommand(newGaugesDeleteCmd())
	cmd.AddCommand(newGaugesReturnCmd())
	cmd.AddCommand(newGaugesHistoryCmd())

	return cmd
}

func newGaugesGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one gauge, with set status when paired",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := globalClient.doRequest(http.MethodGet, "/gauges/"+args[0], nil)
			if err != nil {
				return err
			}
			printJSON(resp)
			return nil
		},
	}
}

func newGaugesListCmd() *cobra.Command {
	var (
		category string
		status   string
		spares   bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List gauges",
		RunE: func(cmd *cobra.Command, args []string) error {
			query := url.Values{}
			if category != "" {
				query.Set("category", category)
			}
			if status != "" {
				query.Set("status", status)
			}
			if spares {
				query.Set("spares", "true")
			}
			path := "/gauges"
			if encoded := query.Encode(); encoded != "" {
				path += "?" + encoded
			}
			resp, err := globalClient.doRequest(http.MethodGet, path, nil)
			if err != nil {
				return err
			}
			printJSON(resp)
			return nil
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "Filter by category")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status")
	cmd.Flags().BoolVar(&spares, "spares", false, "Only uncompanioned gauges")

	return cmd
}

func newGaugesStatusCmd() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "status <id> <new-status>",
		Short: "Change a gauge's status (cascades to the companion where the rules say so)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{"status": args[1], "reason": reason}
			resp, err := globalClient.doRequest(http.MethodPost, "/gauges/"+args[0]+"/status", body)
			if err != nil {
				return err
			}
			printJSON(resp)
			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Reason recorded with a cascade")

	return cmd
}

func newGaugesMoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "move <id> <location>",
		Short: "Change a gauge's storage location (companioned gauges move together)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{"location": args[1]}
			resp, err := globalClient.doRequest(http.MethodPost, "/gauges/"+args[0]+"/location", body)
			if err != nil {
				return err
			}
			printJSON(resp)
			return nil
		},
	}
}

func newGaugesCheckoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "checkout <member-id>",
		Short: "Check out a complete pair as a unit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := globalClient.doRequest(http.MethodPost, "/gauges/"+args[0]+"/checkout", nil)
			if err != nil {
				return err
			}
			printJSON(resp)
			return nil
		},
	}
}

func newGaugesDeleteCmd() *cobra.Command {
	var (
		retire bool
		reason string
	)

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a gauge, or retire it with --retire; the companion is orphaned, never deleted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := url.Values{}
			if retire {
				query.Set("retire", "true")
			}
			if reason != "" {
				query.Set("reason", reason)
			}
			path := "/gauges/" + args[0]
			if encoded := query.Encode(); encoded != "" {
				path += "?" + encoded
			}
			resp, err := globalClient.doRequest(http.MethodDelete, path, nil)
			if err != nil {
				return err
			}
			printJSON(resp)
			return nil
		},
	}

	cmd.Flags().BoolVar(&retire, "retire", false, "Retire instead of delete")
	cmd.Flags().StringVar(&reason, "reason", "", "Reason recorded in the history ledger")

	return cmd
}

func newGaugesReturnCmd() *cobra.Command {
	var (
		both   bool
		reason string
	)

	cmd := &cobra.Command{
		Use:   "return <id>",
		Short: "Return a customer-owned gauge (requires the customer-returns role)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{"both": both, "reason": reason}
			resp, err := globalClient.doRequest(http.MethodPost, "/gauges/"+args[0]+"/return", body)
			if err != nil {
				return err
			}
			printJSON(resp)
			return nil
		},
	}

	cmd.Flags().BoolVar(&both, "both", false, "Return both members of the set")
	cmd.Flags().StringVar(&reason, "reason", "", "Reason recorded in the history ledger")

	return cmd
}

func newGaugesHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <id>",
		Short: "Show the relationship history ledger for a gauge",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := globalClient.doRequest(http.MethodGet, "/gauges/"+args[0]+"/history", nil)
			if err != nil {
				return err
			}
			printJSON(resp)
			return nil
		},
	}
}
