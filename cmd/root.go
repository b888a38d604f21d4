// Package cmd implements the rouge command line interface.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/xen-troops/rouge/internal/config"
	"github.com/xen-troops/rouge/internal/image"
	"github.com/xen-troops/rouge/internal/rouge"
)

var (
	verbose      bool
	listImages   bool
	imageName    string
	outputPath   string
	force        bool
	allowSpecial bool
)

var rootCmd = &cobra.Command{
	Use:   "rouge <config>",
	Short: "Declarative GPT disk image composer",
	Long: `rouge builds byte-exact, GPT-partitioned disk images from a declarative
YAML description: a tree of partitions holding raw images, Android sparse
images, freshly built ext4/vfat filesystems or nested partition tables.`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(args[0])
	},
}

func init() {
	rootCmd.Flags().BoolVarP(&listImages, "list", "l", false, "list available images")
	rootCmd.Flags().StringVarP(&imageName, "image", "i", "", "name of the image to build")
	rootCmd.Flags().StringVarP(&outputPath, "output", "o", "", "output file (default <image>.img)")
	rootCmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing output file")
	rootCmd.Flags().BoolVarP(&allowSpecial, "special", "s", false, "allow writing to a block device")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.MarkFlagsMutuallyExclusive("list", "image")
}

func run(configPath string) error {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	root, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if listImages {
		return printImages(root)
	}
	if imageName == "" {
		return fmt.Errorf("either --image or --list is required")
	}

	settings, err := rouge.LoadSettings()
	if err != nil {
		return err
	}
	img, err := rouge.FindImage(root, imageName)
	if err != nil {
		return err
	}
	out := outputPath
	if out == "" {
		out = img.Name + ".img"
	}
	return settings.Build(img, out, image.Options{
		Force:            force,
		AllowBlockDevice: allowSpecial,
	})
}

func printImages(root *config.Node) error {
	images, err := rouge.AvailableImages(root)
	if err != nil {
		return err
	}
	for _, img := range images {
		fmt.Printf("%-20s %s\n", img.Name, img.Desc)
	}
	return nil
}

// Execute runs the root command and exits non-zero on any fatal condition.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
