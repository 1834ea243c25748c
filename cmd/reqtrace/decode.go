package main

import (
	"fmt"
	"io"
	"slices"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/reqtrace/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/reqtrace/internal/interceptor"
)

var decodeFlags struct {
	propagator string
	traceState string
	json       bool
}

var decodeCmd = &cobra.Command{
	Use:   "decode <header>",
	Short: "Decode a trace context header",
	Long: `Decode a traceparent (or X-Cloud-Trace-Context) header the way the server
does. A malformed header is not an error: the output shows the fresh root
context the server would fall back to, with remote=false.

Examples:
  reqtrace decode 00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01
  reqtrace decode --propagator cloudtrace "105445aa7843bc8bf206b12000100000/1;o=1"`,
	Args: cobra.ExactArgs(1),
	RunE: runDecode,
}

func init() {
	rootCmd.AddCommand(decodeCmd)

	decodeCmd.Flags().StringVarP(&decodeFlags.propagator, "propagator", "p", "tracecontext", "propagator (tracecontext, cloudtrace)")
	decodeCmd.Flags().StringVar(&decodeFlags.traceState, "tracestate", "", "tracestate header to decode alongside")
	decodeCmd.Flags().BoolVar(&decodeFlags.json, "json", false, "print JSON")
}

// decodedContext is the printable form of a decoded span context.
type decodedContext struct {
	TraceID    string            `json:"trace_id"`
	SpanID     string            `json:"span_id"`
	Sampled    bool              `json:"sampled"`
	Remote     bool              `json:"remote"`
	TraceState string            `json:"trace_state,omitempty"`
	Headers    map[string]string `json:"headers"`
}

func runDecode(cmd *cobra.Command, args []string) error {
	p, err := interceptor.NewRegistry().Propagator(decodeFlags.propagator)
	if err != nil {
		return err
	}

	carrier := tracing.MapCarrier{}
	fields := p.Fields()
	carrier.Set(fields[0], args[0])
	if decodeFlags.traceState != "" && len(fields) > 1 {
		carrier.Set(fields[1], decodeFlags.traceState)
	}

	sc, remote := p.Decode(carrier)
	out := decodedContext{
		TraceID:    sc.TraceID.String(),
		SpanID:     sc.SpanID.String(),
		Sampled:    sc.IsSampled(),
		Remote:     remote,
		TraceState: string(sc.TraceState),
		Headers:    tracing.EncodeToMap(p, sc),
	}
	return printDecoded(cmd.OutOrStdout(), out, decodeFlags.json)
}

func printDecoded(w io.Writer, d decodedContext, asJSON bool) error {
	if asJSON {
		b, err := sonic.ConfigStd.MarshalIndent(d, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(b))
		return err
	}

	fmt.Fprintf(w, "trace_id:    %s\n", d.TraceID)
	fmt.Fprintf(w, "span_id:     %s\n", d.SpanID)
	fmt.Fprintf(w, "sampled:     %t\n", d.Sampled)
	fmt.Fprintf(w, "remote:      %t\n", d.Remote)
	if d.TraceState != "" {
		fmt.Fprintf(w, "tracestate:  %s\n", d.TraceState)
	}
	for _, k := range sortedKeys(d.Headers) {
		fmt.Fprintf(w, "%s: %s\n", k, d.Headers[k])
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
