package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sushiva/omni-channel-ai-servicing/internal/pipeline"
)

var (
	processCustomer string
	processChannel  string
	processMetadata []string
	processJSON     bool
)

var processCmd = &cobra.Command{
	Use:   "process [message]",
	Short: "Run one customer message through the pipeline",
	Long: `Runs one customer message through the full pipeline against the configured
services and prints the reply. Use "-" or no argument to read the message from stdin.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runProcess,
}

func init() {
	processCmd.Flags().StringVar(&processCustomer, "customer", "", "Customer ID (required)")
	processCmd.Flags().StringVar(&processChannel, "channel", string(pipeline.ChannelChat), "Channel: chat, email, mobile, voice, web")
	processCmd.Flags().StringArrayVar(&processMetadata, "metadata", nil, "Request metadata as key=value (repeatable)")
	processCmd.Flags().BoolVar(&processJSON, "json", false, "Print the full response as JSON")
	_ = processCmd.MarkFlagRequired("customer")
	rootCmd.AddCommand(processCmd)
}

func runProcess(cmd *cobra.Command, args []string) error {
	ctx, span := tracer.Start(cmd.Context(), "process")
	defer span.End()

	text, err := readMessage(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}
	req, err := buildRequest(text, processCustomer, processChannel, processMetadata)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	svc, err := newServices(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	resp := svc.pipeline.Process(ctx, req)
	out := cmd.OutOrStdout()
	if processJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	renderResponse(out, resp)
	return nil
}

func readMessage(stdin io.Reader, args []string) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		return args[0], nil
	}
	b, err := io.ReadAll(io.LimitReader(stdin, 1<<20))
	if err != nil {
		return "", fmt.Errorf("reading message from stdin: %w", err)
	}
	return string(b), nil
}

func buildRequest(text, customer, channel string, metadata []string) (pipeline.Request, error) {
	req := pipeline.Request{
		RawText:    text,
		CustomerID: strings.TrimSpace(customer),
		Channel:    pipeline.Channel(channel),
	}
	if strings.TrimSpace(req.RawText) == "" {
		return req, fmt.Errorf("message is empty")
	}
	if req.CustomerID == "" {
		return req, fmt.Errorf("--customer is required")
	}
	if !req.Channel.Valid() {
		return req, fmt.Errorf("unknown channel %q", channel)
	}
	for _, kv := range metadata {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return req, fmt.Errorf("metadata %q: want key=value", kv)
		}
		if req.Metadata == nil {
			req.Metadata = make(map[string]string)
		}
		req.Metadata[k] = v
	}
	return req, nil
}

// renderResponse writes a human-readable summary of resp to w (testable).
func renderResponse(w io.Writer, resp pipeline.Response) {
	fmt.Fprintln(w, resp.ResponseText)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  request:  %s\n", resp.RequestID)
	fmt.Fprintf(w, "  status:   %s", resp.Status)
	if resp.ErrorCode != "" {
		fmt.Fprintf(w, " (%s)", resp.ErrorCode)
	}
	fmt.Fprintln(w)
	if resp.Intent != "" {
		fmt.Fprintf(w, "  intent:   %s\n", resp.Intent.Name())
	}
	if resp.WorkflowName != "" {
		fmt.Fprintf(w, "  workflow: %s\n", resp.WorkflowName)
	}
	if len(resp.ContextSources) > 0 {
		fmt.Fprintf(w, "  sources:  %s\n", strings.Join(resp.ContextSources, ", "))
	}
	for _, v := range resp.GuardrailViolations {
		fmt.Fprintf(w, "  guardrail: %s/%s (%s)\n", v.Category, v.Rule, v.Severity)
	}
}
