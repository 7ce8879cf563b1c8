package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"oncostats/internal/dataset"
	"oncostats/internal/registry"
)

var (
	importDir string
	exportDir string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Copy every catalog dataset from the CSV directory into the database",
	Long: `import reads each dataset the catalog names from the CSV directory and
writes it into the configured database (sqlite by default, postgres when
source is postgres). Datasets missing from the directory are skipped.`,
	Args: cobra.NoArgs,
	RunE: runImport,
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write every catalog dataset from the database back out as CSV",
	Args:  cobra.NoArgs,
	RunE:  runExport,
}

var importsCmd = &cobra.Command{
	Use:   "imports",
	Short: "List the database import ledger",
	Args:  cobra.NoArgs,
	RunE:  runImports,
}

func init() {
	importCmd.Flags().StringVar(&importDir, "dir", "", "CSV directory (default data_dir from config)")
	exportCmd.Flags().StringVarP(&exportDir, "out", "o", "export", "Output directory")
	importsCmd.Flags().BoolVar(&jsonOut, "json", false, "Print JSON")
}

func runImport(cmd *cobra.Command, args []string) error {
	reg, err := registry.Load(cfg.Catalog)
	if err != nil {
		return err
	}
	dir := importDir
	if dir == "" {
		dir = cfg.DataDir
	}
	if err := dataset.CheckTableNames(reg.Sources()); err != nil {
		return err
	}
	store, err := dataset.OpenStore(cfg.Database())
	if err != nil {
		return err
	}
	defer store.DB.Close()

	start := time.Now()
	tr, err := dataset.Copy(commandContext(cmd), dataset.NewCSVDir(dir), store, reg.Sources())
	logger.Info("import finished",
		zap.String("dir", dir),
		zap.Int("copied", len(tr.Copied)),
		zap.Int("skipped", len(tr.Skipped)),
		zap.Duration("took", time.Since(start)),
	)
	printTransfer(cmd.OutOrStdout(), tr)
	return err
}

func runExport(cmd *cobra.Command, args []string) error {
	reg, err := registry.Load(cfg.Catalog)
	if err != nil {
		return err
	}
	store, err := dataset.OpenStore(cfg.Database())
	if err != nil {
		return err
	}
	defer store.DB.Close()

	tr, err := dataset.Copy(commandContext(cmd), store, dataset.NewCSVDir(exportDir), reg.Sources())
	logger.Info("export finished",
		zap.String("out", exportDir),
		zap.Int("copied", len(tr.Copied)),
		zap.Int("skipped", len(tr.Skipped)),
	)
	printTransfer(cmd.OutOrStdout(), tr)
	return err
}

func runImports(cmd *cobra.Command, args []string) error {
	store, err := dataset.OpenStore(cfg.Database())
	if err != nil {
		return err
	}
	defer store.DB.Close()

	ledger, err := store.Imports(commandContext(cmd))
	if err != nil {
		return err
	}
	if jsonOut {
		return writeJSON(cmd.OutOrStdout(), ledger)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LOCATOR\tTABLE\tROWS\tIMPORTED")
	for _, imp := range ledger {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", imp.Locator, imp.Table, imp.Rows, imp.ImportedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

func printTransfer(w io.Writer, tr dataset.Transfer) {
	for _, loc := range tr.Copied {
		fmt.Fprintf(w, "copied  %s\n", loc)
	}
	for _, loc := range tr.Skipped {
		fmt.Fprintf(w, "skipped %s (not found)\n", loc)
	}
}
