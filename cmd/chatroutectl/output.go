package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

// outputResult writes result to w in the specified format.
func outputResult(w io.Writer, result any, format string) error {
	switch format {
	case "json":
		return outputJSON(w, result)
	case "yaml":
		return outputYAML(w, result)
	case "table", "":
		return outputTable(w, result)
	default:
		return fmt.Errorf("unknown output format %q (want table, json or yaml)", format)
	}
}

func outputJSON(w io.Writer, result any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func outputYAML(w io.Writer, result any) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(result); err != nil {
		return err
	}
	return encoder.Close()
}

func outputTable(out io.Writer, result any) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	switch r := result.(type) {
	case ValidateResult:
		outputValidateTable(w, r)
	case RoutesResult:
		outputRoutesTable(w, r)
	case MatchResult:
		outputMatchTable(w, r)
	default:
		// Fall back to JSON for unknown types
		return outputJSON(out, result)
	}
	return nil
}

func outputValidateTable(w io.Writer, r ValidateResult) {
	fmt.Fprintf(w, "CONFIG\t%s\n", r.Config)
	fmt.Fprintf(w, "VALID\t%t\n", r.Valid)
	fmt.Fprintf(w, "ROUTES\t%d (%d fuzzy)\n", r.Routes, r.Fuzzy)
	fmt.Fprintf(w, "HANDLERS\t%s\n", strings.Join(r.Handlers, ", "))
	for _, warn := range r.Warnings {
		fmt.Fprintf(w, "WARNING\t%s\n", warn)
	}
}

func outputRoutesTable(w io.Writer, r RoutesResult) {
	fmt.Fprintln(w, "#\tNAME\tHANDLER\tACCESS\tTEMP\tFLAGS\tALIASES")
	for i, ri := range r.Routes {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\t%s\n",
			i, ri.Name, ri.Handler, ri.Access, ri.Temperature, routeFlags(ri), strings.Join(ri.Aliases, " | "))
	}
}

func routeFlags(ri RouteInfo) string {
	var flags []string
	if ri.ReturnData {
		flags = append(flags, "data")
	}
	if ri.RequireData {
		flags = append(flags, "require-data")
	}
	if ri.MatchBotName {
		flags = append(flags, "@name")
	}
	if len(flags) == 0 {
		return "-"
	}
	return strings.Join(flags, ",")
}

func outputMatchTable(w io.Writer, r MatchResult) {
	fmt.Fprintf(w, "TEXT\t%q\n", r.Text)
	switch {
	case r.Handled:
		fmt.Fprintf(w, "ROUTE\t%s\n", r.Route)
		fmt.Fprintf(w, "PHASE\t%s\n", r.Phase)
		if r.Similarity > 0 {
			fmt.Fprintf(w, "SIMILARITY\t%.2f%%\n", r.Similarity)
		}
		if r.Args != nil {
			fmt.Fprintf(w, "ARGS\t%q\n", r.Args)
		}
	case r.NoInput:
		fmt.Fprintln(w, "RESULT\tno input")
	default:
		fmt.Fprintln(w, "RESULT\tno match")
	}
	if r.Aborted {
		fmt.Fprintln(w, "ABORTED\texact phase stopped by a message addressed to another bot")
	}
	if r.Error != "" {
		fmt.Fprintf(w, "ERROR\t%s\n", r.Error)
	}
	for _, reply := range r.Replies {
		fmt.Fprintf(w, "REPLY\t%s\n", strings.ReplaceAll(reply, "\n", " / "))
	}
}
