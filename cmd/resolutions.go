package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/nvr-ai/facematch/images"
	"github.com/spf13/cobra"
)

var resolutionsCmd = &cobra.Command{
	Use:   "resolutions",
	Short: "List the named capture resolutions accepted by camera.resolution",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tSIZE\tASPECT\tPIXELS")
		for _, r := range images.GetAllResolutions() {
			fmt.Fprintf(w, "%s\t%dx%d\t%s\t%s\n",
				r.Name, r.Pixels.Width, r.Pixels.Height, r.AspectRatio,
				humanize.Comma(int64(r.Pixels.Width*r.Pixels.Height)))
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(resolutionsCmd)
}
