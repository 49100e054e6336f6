package main

import (
	"net/http"

	"github.com/spf13/cobra"
)

func newSetsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sets",
		Short: "Manage matched gauge sets",
		Long:  "Create, inspect, pair, unpair and repair GO / NO GO gauge sets.",
	}

	cmd.AddCommand(newSetsCreateCmd())
	cmd.AddCommand(newSetsGetCmd())
	cmd.AddCommand(newSetsPairCmd())
	cmd.AddCommand(newSetsUnpairCmd())
	cmd.AddCommand(newSetsReplaceCmd())

	return cmd
}

// --- sets create ---

func newSetsCreateCmd() *cobra.Command {
	var (
		base      string
		equipment string
		category  string
		size      string
		class     string
		form      string
		location  string
		ownership string
		customer  string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new GO / NO GO set",
		RunE: func(cmd *cobra.Command, args []string) error {
			spec := map[string]string{"size": size, "class": class, "form": form}
			member := func(role string) map[string]any {
				return map[string]any{
					"equipmentType": equipment,
					"category":      category,
					"spec":          spec,
					"role":          role,
					"location":      location,
					"ownership":     ownership,
					"customerId":    customer,
				}
			}
			body := map[string]any{
				"baseIdentifier": base,
				"go":             member("A"),
				"noGo":           member("B"),
			}
			resp, err := globalClient.doRequest(http.MethodPost, "/sets", body)
			if err != nil {
				return err
			}
			printJSON(resp)
			return nil
		},
	}

	cmd.Flags().StringVar(&base, "base", "", "Custom base identifier (allocated when empty)")
	cmd.Flags().StringVar(&equipment, "equipment", "thread_ring", "Equipment type")
	cmd.Flags().StringVar(&category, "category", "thread_gauge", "Category")
	cmd.Flags().StringVar(&size, "size", "", "Thread size, e.g. .312-18")
	cmd.Flags().StringVar(&class, "class", "", "Thread class, e.g. 2A")
	cmd.Flags().StringVar(&form, "form", "", "Gauge form, e.g. Ring")
	cmd.Flags().StringVar(&location, "location", "", "Storage location")
	cmd.Flags().StringVar(&ownership, "ownership", "organization", "Ownership: organization or customer")
	cmd.Flags().StringVar(&customer, "customer", "", "Customer id (customer-owned only)")
	_ = cmd.MarkFlagRequired("size")
	_ = cmd.MarkFlagRequired("class")

	return cmd
}

// --- sets get ---

func newSetsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <member-id>",
		Short: "Show a set with its computed status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := globalClient.doRequest(http.MethodGet, "/sets/"+args[0], nil)
			if err != nil {
				return err
			}
			printJSON(resp)
			return nil
		},
	}
}

// --- sets pair ---

func newSetsPairCmd() *cobra.Command {
	var location string

	cmd := &cobra.Command{
		Use:   "pair <gauge-a> <gauge-b>",
		Short: "Pair two spare gauges into a set",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{
				"gaugeA":   args[0],
				"gaugeB":   args[1],
				"location": location,
			}
			resp, err := globalClient.doRequest(http.MethodPost, "/sets/pair", body)
			if err != nil {
				return err
			}
			printJSON(resp)
			return nil
		},
	}

	cmd.Flags().StringVar(&location, "location", "", "Target storage location for the set")
	_ = cmd.MarkFlagRequired("location")

	return cmd
}

// --- sets unpair ---

func newSetsUnpairCmd() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "unpair <member-id>",
		Short: "Dissolve the set a gauge belongs to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{"reason": reason}
			resp, err := globalClient.doRequest(http.MethodPost, "/sets/"+args[0]+"/unpair", body)
			if err != nil {
				return err
			}
			printJSON(resp)
			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Reason recorded in the history ledger")

	return cmd
}

// --- sets replace ---

func newSetsReplaceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replace <member-id> <replacement-id>",
		Short: "Swap a set member for a replacement spare",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{"replacementId": args[1]}
			resp, err := globalClient.doRequest(http.MethodPost, "/sets/"+args[0]+"/replace", body)
			if err != nil {
				return err
			}
			printJSON(resp)
			return nil
		},
	}
}
