package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nvr-ai/facematch/classifier"
	"github.com/nvr-ai/facematch/images"
	"github.com/nvr-ai/facematch/logging"
	"github.com/nvr-ai/facematch/reference"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var classifyCmd = &cobra.Command{
	Use:   "classify <image|directory>",
	Short: "Classify still images against the reference face",
	Long: `Runs the frame pipeline on one image or every image in a directory,
writes the annotated copies to the output directory and prints the decision
for each image.`,
	Args: cobra.ExactArgs(1),
	RunE: runClassify,
}

func init() {
	rootCmd.AddCommand(classifyCmd)

	classifyCmd.Flags().StringP("out", "o", "annotated", "Directory for annotated images")
	classifyCmd.Flags().Int("quality", 90, "JPEG quality of annotated images")
}

func runClassify(cmd *cobra.Command, args []string) error {
	outDir := mustGetString(cmd, "out")
	quality := mustGetInt(cmd, "quality")

	files, err := listImages(args[0])
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Println("No images found.")
		return nil
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return errors.Wrap(err, "create output directory")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	bundle := newBundle(cfg, logger)
	backend := buildBackend(cfg, bundle, logger)
	defer backend.Close()

	// Offline runs load the reference up front instead of in the background.
	store := &reference.Store{}
	if loader := referenceLoader(bundle, logger); loader != nil {
		if face, err := loader.Load(ctx); err != nil {
			logger.Warn().Err(err).Msg("reference face unavailable, detection only")
		} else if err := store.Set(face); err != nil {
			return err
		}
	}

	cls := classifier.New(backend, store, classifier.WithLogger(logging.Component(logger, "classifier")))
	defer cls.Stop()

	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetDescription("Classifying"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("images"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWriter(os.Stderr),
	)

	lines := make([]string, 0, len(files))
	var failed int
	for _, path := range files {
		line, err := classifyFile(ctx, cls, path, outDir, quality)
		if err != nil {
			failed++
			line = fmt.Sprintf("%s: %v", path, err)
		}
		lines = append(lines, line)
		_ = bar.Add(1)
	}
	_ = bar.Finish()
	fmt.Fprintln(os.Stderr)

	for _, line := range lines {
		fmt.Println(line)
	}
	fmt.Printf("\nTotal: %d images, %d failed\n", len(files), failed)
	return nil
}

func classifyFile(ctx context.Context, cls *classifier.Classifier, path, outDir string, quality int) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	img, _, err := images.Decode(f)
	f.Close()
	if err != nil {
		return "", err
	}

	frame := images.NewFrame(0, img)
	cls.Start(frame.Size().X, frame.Size().Y)
	result := cls.Process(ctx, frame)

	outPath := filepath.Join(outDir, strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))+".jpg")
	out, err := os.Create(outPath)
	if err != nil {
		return "", errors.Wrap(err, "create annotated image")
	}
	defer out.Close()
	if err := images.EncodeJPEG(out, result.Frame.Color, quality); err != nil {
		return "", err
	}

	return describe(path, result), nil
}

func describe(path string, r classifier.Result) string {
	switch {
	case r.Err != nil:
		return fmt.Sprintf("%s: %d faces, passed through (%v)", path, len(r.Regions), r.Err)
	case r.Decision != nil:
		return fmt.Sprintf("%s: %d faces, %s", path, len(r.Regions), r.Decision)
	default:
		return fmt.Sprintf("%s: %d faces", path, len(r.Regions))
	}
}

func listImages(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png", ".bmp", ".webp":
			files = append(files, filepath.Join(path, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}
