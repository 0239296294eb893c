package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/spf13/cobra"

	"github.com/syncore-project/syncore/cmd"
	"github.com/syncore-project/syncore/pkg/hasher"
	"github.com/syncore-project/syncore/pkg/index"
	"github.com/syncore-project/syncore/pkg/logging"
	"github.com/syncore-project/syncore/pkg/reconcile"
	"github.com/syncore-project/syncore/pkg/syncore"
	"github.com/syncore-project/syncore/pkg/uploader"
	"github.com/syncore-project/syncore/pkg/watch"
)

func rootMain(command *cobra.Command, arguments []string) error {
	// Print version information, if requested.
	if rootConfiguration.version {
		fmt.Println(syncore.Version)
		return nil
	}

	// Print legal information, if requested.
	if rootConfiguration.legal {
		fmt.Print(syncore.LegalNotice)
		return nil
	}

	if len(arguments) != 1 {
		command.Help()
		return nil
	}
	root := arguments[0]

	if rootConfiguration.debug {
		syncore.DebugEnabled = true
	}

	info, err := os.Stat(root)
	if err != nil {
		return errors.Wrap(err, "unable to access watch root")
	}
	if !info.IsDir() {
		return errors.Errorf("%s is not a directory", root)
	}

	indexPath := rootConfiguration.indexPath
	if indexPath == "" {
		indexPath = filepath.Join(root, ".syncore", "index.db")
	}
	if err := os.MkdirAll(filepath.Dir(indexPath), 0o755); err != nil {
		return errors.Wrap(err, "unable to create index directory")
	}

	logger := logging.RootLogger.Sublogger("syncore")

	idx, err := index.Open(indexPath, logger.Sublogger("index"))
	if err != nil {
		return errors.Wrap(err, "unable to open index")
	}
	defer idx.Close()

	up := uploader.New(rootConfiguration.endpoint, rootConfiguration.attachContents)
	hashers := hasher.NewPool(logger.Sublogger("hasher"))
	reconciler := reconcile.New(root, filepath.Dir(indexPath), idx, hashers, up, logger.Sublogger("reconcile"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if rootConfiguration.once {
		result, err := reconciler.Initialize(ctx)
		if err != nil {
			return errors.Wrap(err, "reconciliation pass failed")
		}
		logger.Printf("inserted %d, updated %d, deleted %d, unchanged %d",
			result.Inserted, result.Updated, result.Deleted, result.Unchanged)
		return nil
	}

	watcher, err := watch.New(root, logger.Sublogger("watch"))
	if err != nil {
		return errors.Wrap(err, "unable to create watcher")
	}
	defer watcher.Close()

	signalTermination := make(chan os.Signal, 1)
	signal.Notify(signalTermination, cmd.TerminationSignals...)
	go func() {
		<-signalTermination
		logger.Println("received termination signal, finishing current pass")
		cancel()
	}()

	go watcher.Run(ctx)

	if err := reconciler.Run(ctx, watcher.Batches); err != nil {
		return errors.Wrap(err, "reconciliation loop failed")
	}
	return nil
}

var rootCommand = &cobra.Command{
	Use:   "syncore <directory>",
	Short: "Syncore watches a directory, reconciles its contents against a local index, and uploads the changes to a remote endpoint.",
	Args:  cobra.MaximumNArgs(1),
	Run:   cmd.Mainify(rootMain),
}

var versionCommand = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Args:  cmd.DisallowArguments,
	Run: cmd.Mainify(func(_ *cobra.Command, _ []string) error {
		fmt.Println(syncore.Version)
		return nil
	}),
}

var legalCommand = &cobra.Command{
	Use:   "legal",
	Short: "Show legal information",
	Args:  cmd.DisallowArguments,
	Run: cmd.Mainify(func(_ *cobra.Command, _ []string) error {
		fmt.Print(syncore.LegalNotice)
		return nil
	}),
}

var rootConfiguration struct {
	help           bool
	version        bool
	legal          bool
	debug          bool
	once           bool
	attachContents bool
	endpoint       string
	indexPath      string
}

func init() {
	flags := rootCommand.Flags()
	flags.BoolVarP(&rootConfiguration.help, "help", "h", false, "Show help information")
	flags.BoolVarP(&rootConfiguration.version, "version", "V", false, "Show version information")
	flags.BoolVarP(&rootConfiguration.legal, "legal", "l", false, "Show legal information")
	flags.BoolVar(&rootConfiguration.debug, "debug", false, "Enable debug logging")
	flags.BoolVar(&rootConfiguration.once, "once", false, "Run a single reconciliation pass and exit instead of watching")
	flags.BoolVar(&rootConfiguration.attachContents, "attach-contents", false, "Upload file contents alongside metadata, as a multipart request")
	flags.StringVar(&rootConfiguration.endpoint, "endpoint", "http://localhost:8080/sync", "Remote sync endpoint to upload reconciliation results to")
	flags.StringVar(&rootConfiguration.indexPath, "index", "", "Path to the index database (defaults to <directory>/.syncore/index.db)")

	cobra.EnableCommandSorting = false
	cobra.MousetrapHelpText = ""

	rootCommand.AddCommand(versionCommand, legalCommand)
}

func main() {
	cmd.HandleTerminalCompatibility()

	if err := rootCommand.Execute(); err != nil {
		os.Exit(1)
	}
}
