package cli

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"

	"github.com/Brownie44l1/asl-api/internal/history"
	"github.com/Brownie44l1/asl-api/internal/model"
	"github.com/spf13/cobra"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

func newPredictCmd(a *app) *cobra.Command {
	var top int
	var save bool

	cmd := &cobra.Command{
		Use:   "predict <image>...",
		Short: "Classify image files",
		Long: `Classifies each image and prints the top predictions. A file that cannot
be read or classified is reported and the rest of the batch continues.`,
		Example: `  asl-api predict hand.jpg
  asl-api predict --top 3 --save captures/*.png`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loader := a.loader()
			defer loader.Close()
			clf, err := loader.Get()
			if err != nil {
				var loadErr *model.LoadError
				if errors.As(err, &loadErr) {
					return errors.New(loadErr.Remedy())
				}
				return err
			}

			var store *history.Store
			if save {
				store = a.historyStore()
				store.Init()
			}

			failed := 0
			for _, path := range args {
				if err := predictFile(cmd.OutOrStdout(), clf, store, path, top); err != nil {
					var persistErr *history.PersistError
					if errors.As(err, &persistErr) {
						return err
					}
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", path, err)
					failed++
				}
			}
			if failed != 0 {
				return fmt.Errorf("%d of %d images failed", failed, len(args))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&top, "top", "k", 5, "Number of labels to print per image")
	cmd.Flags().BoolVar(&save, "save", false, "Record predictions in the upload history")

	return cmd
}

func predictFile(out io.Writer, clf *model.Classifier, store *history.Store, path string, top int) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	img, _, err := image.Decode(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("invalid image: %w", err)
	}

	result, err := clf.PredictImage(img)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "%s: %s (%.1f%%)\n", path, result.Label, result.Confidence*100)
	for i, r := range result.TopK(top) {
		fmt.Fprintf(out, "  %d. %-8s %.4f\n", i+1, r.Label, r.Confidence)
	}

	if store != nil {
		saved, err := store.Save(history.SourceUpload, history.NewPredictionEntry(filepath.Base(path), result, img))
		if err != nil {
			return err
		}
		for _, w := range saved.Warnings {
			fmt.Fprintf(out, "  warning: %v\n", w)
		}
	}
	return nil
}
