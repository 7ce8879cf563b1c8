package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"oncostats/internal/registry"
	"oncostats/internal/render"
)

var (
	jsonOut    bool
	style      string
	previewRow int
	chartIndex int
	chartOut   string
)

var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "List the selectable categories in display order",
	Args:  cobra.NoArgs,
	RunE:  runCategories,
}

var overviewCmd = &cobra.Command{
	Use:   "overview",
	Short: "Print the application overview",
	Args:  cobra.NoArgs,
	RunE:  runOverview,
}

var showCmd = &cobra.Command{
	Use:   "show <category>",
	Short: "Show a category: charts, a data preview and its text sections",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

var renderCmd = &cobra.Command{
	Use:   "render <category>",
	Short: "Draw one of a category's charts as a PNG",
	Args:  cobra.ExactArgs(1),
	RunE:  runRender,
}

func init() {
	categoriesCmd.Flags().BoolVar(&jsonOut, "json", false, "Print JSON")
	showCmd.Flags().BoolVar(&jsonOut, "json", false, "Print the dispatch result as JSON")
	showCmd.Flags().StringVar(&style, "style", "", "glamour style (dark, light, notty); empty detects the terminal")
	showCmd.Flags().IntVar(&previewRow, "rows", 10, "Table rows to preview")
	overviewCmd.Flags().StringVar(&style, "style", "", "glamour style (dark, light, notty); empty detects the terminal")
	renderCmd.Flags().IntVar(&chartIndex, "chart", 0, "Chart index, starting at 0")
	renderCmd.Flags().StringVarP(&chartOut, "out", "o", "", "Output file (default <source>-<chart>.png)")
}

func runCategories(cmd *cobra.Command, args []string) error {
	reg, err := registry.Load(cfg.Catalog)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if jsonOut {
		return writeJSON(out, reg.List())
	}
	for i, id := range reg.List() {
		fmt.Fprintf(out, "%2d. %s\n", i+1, id)
	}
	return nil
}

func runOverview(cmd *cobra.Command, args []string) error {
	reg, err := registry.Load(cfg.Catalog)
	if err != nil {
		return err
	}
	term, err := render.NewTerminal(style)
	if err != nil {
		return err
	}
	text, err := term.Overview(reg.Overview())
	if err != nil {
		return err
	}
	_, err = io.WriteString(cmd.OutOrStdout(), text)
	return err
}

func runShow(cmd *cobra.Command, args []string) error {
	d, _, closeSrc, err := openDispatcher()
	if err != nil {
		return err
	}
	defer func() { _ = closeSrc() }()

	res, err := d.Dispatch(commandContext(cmd), args[0])
	if err != nil {
		return err
	}
	if jsonOut {
		return writeJSON(cmd.OutOrStdout(), res)
	}

	term, err := render.NewTerminal(style)
	if err != nil {
		return err
	}
	term.Preview = previewRow
	text, err := term.Category(res)
	if err != nil {
		return err
	}
	_, err = io.WriteString(cmd.OutOrStdout(), text)
	return err
}

func runRender(cmd *cobra.Command, args []string) error {
	d, _, closeSrc, err := openDispatcher()
	if err != nil {
		return err
	}
	defer func() { _ = closeSrc() }()

	res, err := d.Dispatch(commandContext(cmd), args[0])
	if err != nil {
		return err
	}
	if chartIndex < 0 || chartIndex >= len(res.Charts) {
		return fmt.Errorf("%s has %d charts, no chart %d", res.Category, len(res.Charts), chartIndex)
	}
	spec := res.Charts[chartIndex]
	if !render.Supported(spec.Kind) {
		return fmt.Errorf("chart %d (%s): %w", chartIndex, spec.Kind, render.ErrUnsupportedKind)
	}

	path := chartOut
	if path == "" {
		path = fmt.Sprintf("%s-%d.png", strings.TrimSuffix(filepath.Base(res.Source), filepath.Ext(res.Source)), chartIndex)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := render.PNG(f, spec, res.Table); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	logger.Debug("chart rendered",
		zap.String("category", res.Category),
		zap.Int("chart", chartIndex),
		zap.String("path", path),
	)
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%q)\n", path, spec.Title)
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
