package main

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/ruteri/keys-api/cmd/flags"
	"github.com/ruteri/keys-api/interfaces"
	"github.com/ruteri/keys-api/storage"
	"github.com/urfave/cli/v2"
)

var sourceFlag = &cli.StringFlag{
	Name:     "source",
	Required: true,
	Usage:    "snapshot to import, file:// or s3:// URI",
}

var targetFlag = &cli.StringFlag{
	Name:     "target",
	EnvVars:  []string{"STORE_URI"},
	Required: true,
	Usage:    "store to write, e.g. sqlite:///var/lib/keys-api/registry.db",
}

var outputFlag = &cli.StringFlag{
	Name:     "output",
	Required: true,
	Usage:    "path of the JSON snapshot to write",
}

func main() {
	app := &cli.App{
		Name:  "registry-import",
		Usage: "Load registry snapshots into a keys-api store and export them back",
		Flags: append([]cli.Flag{flags.LogServiceFlagFn("registry-import")}, flags.LogFlags...),
		Commands: []*cli.Command{
			{
				Name:   "import",
				Usage:  "replace the store contents with a JSON snapshot",
				Flags:  []cli.Flag{sourceFlag, targetFlag},
				Action: importSnapshot,
			},
			{
				Name:   "export",
				Usage:  "write the store contents as a JSON snapshot",
				Flags:  []cli.Flag{targetFlag, outputFlag},
				Action: exportSnapshot,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func importSnapshot(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)
	factory := storage.NewRegistryStoreFactory(logger)

	source, err := factory.SourceFor(cCtx.String(sourceFlag.Name))
	if err != nil {
		return err
	}

	snapshot, err := source.Load(cCtx.Context)
	if err != nil {
		return fmt.Errorf("could not load snapshot from %s: %w", source.Name(), err)
	}

	store, err := factory.StoreFor(cCtx.String(targetFlag.Name))
	if err != nil {
		return err
	}
	defer store.Close()

	writer, ok := store.(interfaces.SnapshotWriter)
	if !ok {
		return errors.New("target store is not writable")
	}
	if err := writer.ReplaceSnapshot(cCtx.Context, snapshot); err != nil {
		return fmt.Errorf("could not write snapshot: %w", err)
	}

	attrs := []any{"store", store.Name(), "keys", len(snapshot.Keys), "operators", len(snapshot.Operators)}
	if snapshot.Meta != nil {
		attrs = append(attrs, "blockNumber", snapshot.Meta.BlockNumber, "keysOpIndex", snapshot.Meta.KeysOpIndex)
	} else {
		logger.Warn("Imported snapshot has no meta, the API will answer not-ready")
	}
	logger.Info("Snapshot imported", attrs...)
	return nil
}

func exportSnapshot(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)
	factory := storage.NewRegistryStoreFactory(logger)

	store, err := factory.StoreFor(cCtx.String(targetFlag.Name))
	if err != nil {
		return err
	}
	defer store.Close()

	if reloadable, ok := store.(interfaces.Reloadable); ok {
		if err := reloadable.Reload(cCtx.Context); err != nil {
			return err
		}
	}

	snapshot, err := storage.ExportSnapshot(cCtx.Context, store)
	if err != nil {
		return fmt.Errorf("could not read store: %w", err)
	}

	output := cCtx.String(outputFlag.Name)
	if err := storage.WriteSnapshotFile(output, snapshot); err != nil {
		return err
	}
	logger.Info("Snapshot exported", "output", output, "keys", len(snapshot.Keys), "operators", len(snapshot.Operators))
	return nil
}
