package main

import (
	"github.com/spf13/cobra"
)

// flags shared by every subcommand; zero values leave the config untouched
type globalFlags struct {
	configPath  string
	verbose     bool
	tempDir     string
	keepTemps   bool
	maxMemoryMB int
	timeoutSec  int
	workers     int
	noCompress  bool
	storePath   string
	metricsAddr string
	format      string
}

var flags globalFlags

var rootCmd = &cobra.Command{
	Use:   "docproc",
	Short: "Turn documents into prompt-ready text and page images",
	Long: `docproc reads text files, office documents, spreadsheets, PDFs and images
and produces a query of ordered prompt parts and page attachments, optionally
archiving results in a SQLite store.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "configuration file (TOML or YAML)")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "debug logging")
	pf.StringVar(&flags.tempDir, "temp-dir", "", "directory for intermediate files")
	pf.BoolVar(&flags.keepTemps, "keep-temps", false, "keep intermediate files after processing")
	pf.IntVar(&flags.maxMemoryMB, "max-memory", 0, "per-step memory limit in MB")
	pf.IntVar(&flags.timeoutSec, "timeout", 0, "per-document timeout in seconds")
	pf.IntVar(&flags.workers, "workers", 0, "parallel pages/sheets per document")
	pf.BoolVar(&flags.noCompress, "no-compress", false, "attach images without optimizing them")
	pf.StringVar(&flags.storePath, "store", "", "SQLite result archive path")
	pf.StringVar(&flags.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	pf.StringVarP(&flags.format, "format", "f", "json", "output format: json, html or protobuf")
}
