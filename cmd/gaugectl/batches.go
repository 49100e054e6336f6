package main

import (
	"net/http"

	"github.com/spf13/cobra"
)

func newBatchesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batches",
		Short: "Drive the calibration workflow",
		Long:  "Create calibration batches, send and receive them, record certificates and release gauges back to service.",
	}

	cmd.AddCommand(newBatchesCreateCmd())
	cmd.AddCommand(newBatchesAddCmd())
	cmd.AddCommand(newBatchesSendCmd())
	cmd.AddCommand(newBatchesReceiveCmd())
	cmd.AddCommand(newBatchesCancelCmd())
	cmd.AddCommand(newCertificateCmd())
	cmd.AddCommand(newReleaseCmd())

	return cmd
}

func newBatchesCreateCmd() *cobra.Command {
	var (
		source    string
		vendorRef string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a calibration batch",
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{"source": source, "vendorRef": vendorRef}
			resp, err := globalClient.doRequest(http.MethodPost, "/batches", body)
			if err != nil {
				return err
			}
			printJSON(resp)
			return nil
		},
	}

	cmd.Flags().StringVar(&source, "source", "external", "Calibration source: internal or external")
	cmd.Flags().StringVar(&vendorRef, "vendor-ref", "", "Vendor or tracking reference")

	return cmd
}

func newBatchesAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <batch-id> <gauge-id>",
		Short: "Add a gauge to a pending batch",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{"gaugeId": args[1]}
			resp, err := globalClient.doRequest(http.MethodPost, "/batches/"+args[0]+"/members", body)
			if err != nil {
				return err
			}
			printJSON(resp)
			return nil
		},
	}
}

func newBatchesSendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <batch-id>",
		Short: "Send a batch; every member moves to out_for_calibration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := globalClient.doRequest(http.MethodPost, "/batches/"+args[0]+"/send", nil)
			if err != nil {
				return err
			}
			printJSON(resp)
			return nil
		},
	}
}

func newBatchesReceiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "receive <batch-id> <gauge-id>...",
		Short: "Book gauges back in; each moves to pending_certificate, sealed",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{"gaugeIds": args[1:]}
			resp, err := globalClient.doRequest(http.MethodPost, "/batches/"+args[0]+"/receive", body)
			if err != nil {
				return err
			}
			printJSON(resp)
			return nil
		},
	}
}

func newBatchesCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <batch-id>",
		Short: "Cancel a batch that has not been sent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := globalClient.doRequest(http.MethodPost, "/batches/"+args[0]+"/cancel", nil)
			if err != nil {
				return err
			}
			printJSON(resp)
			return nil
		},
	}
}

func newCertificateCmd() *cobra.Command {
	var documentRef string

	cmd := &cobra.Command{
		Use:   "certify <gauge-id>",
		Short: "Record a calibration certificate for a gauge",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{"documentRef": documentRef}
			resp, err := globalClient.doRequest(http.MethodPost, "/gauges/"+args[0]+"/certificates", body)
			if err != nil {
				return err
			}
			printJSON(resp)
			return nil
		},
	}

	cmd.Flags().StringVar(&documentRef, "document", "", "Reference to the stored certificate document")
	_ = cmd.MarkFlagRequired("document")

	return cmd
}

func newReleaseCmd() *cobra.Command {
	var location string

	cmd := &cobra.Command{
		Use:   "release <gauge-id>",
		Short: "Verify certificate evidence and release a gauge (requires the calibration-release role)",
		Long: `Verify certificate evidence and release a gauge back to service.

Without --location the gauge stops in pending_release until an operator
confirms where it is stored.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{"location": location}
			resp, err := globalClient.doRequest(http.MethodPost, "/gauges/"+args[0]+"/release", body)
			if err != nil {
				return err
			}
			printJSON(resp)
			return nil
		},
	}

	cmd.Flags().StringVar(&location, "location", "", "Confirmed storage location")

	return cmd
}
