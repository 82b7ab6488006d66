package cmd

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Copy the detector model and reference image into the cache directory",
	RunE:  runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)
	extractCmd.Flags().String("dir", "", "Target directory (default from config)")
}

func runExtract(cmd *cobra.Command, args []string) error {
	dir := mustGetString(cmd, "dir")
	if dir == "" {
		dir = cfg.Assets.CacheDir
	}

	paths, err := newBundle(cfg, logger).ExtractAll(dir)
	if err != nil {
		return err
	}
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return err
		}
		fmt.Printf("%s\t%s\n", p, humanize.Bytes(uint64(info.Size())))
	}
	return nil
}
