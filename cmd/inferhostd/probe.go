package main

import (
	"fmt"
	"text/tabwriter"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"inferhost/internal/host"
	"inferhost/pkg/types"
)

type probeReport struct {
	Adapters types.AdaptersResponse `json:"adapters"`
	Features []types.FeatureStatus  `json:"features"`
}

func newProbeCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Load the core, print adapters and plugin compatibility, then unload",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := a.loadCore()
			if err != nil {
				return err
			}
			defer reg.UnloadCore()

			svc := host.New(reg, a.cfg.ModelsDir, &a.log)
			rep := probeReport{Adapters: svc.Adapters(), Features: svc.Features()}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(rep)
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ADAPTER\tNAME\tVENDOR\tARCH\tDRIVER\tSELECTED")
			for i, ad := range rep.Adapters.Adapters {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%t\n", i, ad.Name, ad.Vendor, ad.Architecture, ad.Driver, i == rep.Adapters.Selected)
			}
			fmt.Fprintln(tw)
			fmt.Fprintln(tw, "FEATURE\tPLUGIN\tVENDOR\tDRIVER\tCOMPATIBLE\tREASON")
			for _, f := range rep.Features {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\t%s\n", f.ID, f.Name, f.RequiredVendor, f.RequiredDriver, f.Compatible, f.Reason)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	return cmd
}
