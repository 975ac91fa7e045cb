package main

import (
	"github.com/spf13/cobra"
)

func routesCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "routes",
		Short:   "List the route table in dispatch order",
		Example: `  chatroutectl routes -c config.yaml -o yaml`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w, err := loadWorkspace(configPath)
			if err != nil {
				return err
			}
			return outputResult(cmd.OutOrStdout(), routesResult(w), outputFmt)
		},
	}
}

// RoutesResult is the result of the routes command.
type RoutesResult struct {
	Routes []RouteInfo `json:"routes" yaml:"routes"`
}

// RouteInfo describes one route of the table.
type RouteInfo struct {
	Name         string   `json:"name" yaml:"name"`
	Handler      string   `json:"handler" yaml:"handler"`
	Aliases      []string `json:"aliases" yaml:"aliases"`
	Access       string   `json:"access" yaml:"access"`
	Temperature  int      `json:"temperature" yaml:"temperature"`
	ReturnData   bool     `json:"returnData,omitempty" yaml:"returnData,omitempty"`
	RequireData  bool     `json:"requireData,omitempty" yaml:"requireData,omitempty"`
	MatchBotName bool     `json:"matchBotName,omitempty" yaml:"matchBotName,omitempty"`
	Description  string   `json:"description,omitempty" yaml:"description,omitempty"`
}

// routesResult lists the table. BuildTable keeps declaration order, so the
// i-th route was built from the i-th route config.
func routesResult(w *workspace) RoutesResult {
	res := RoutesResult{Routes: make([]RouteInfo, 0, w.table.Len())}
	for i, r := range w.table.All() {
		res.Routes = append(res.Routes, RouteInfo{
			Name:         r.Name,
			Handler:      w.cfg.Routes[i].Handler,
			Aliases:      r.Aliases,
			Access:       accessLabel(r.Access),
			Temperature:  r.Temperature,
			ReturnData:   r.ReturnData,
			RequireData:  r.RequireData,
			MatchBotName: r.MatchBotName,
			Description:  r.Description,
		})
	}
	return res
}
