package cmd

import (
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/mtpsync/mtpsync/cmd/util"
	versionCmd "github.com/mtpsync/mtpsync/cmd/version"
	"github.com/mtpsync/mtpsync/pkg/checksum"
	"github.com/mtpsync/mtpsync/pkg/config"
	"github.com/mtpsync/mtpsync/pkg/errors"
	"github.com/mtpsync/mtpsync/pkg/fswatch"
	"github.com/mtpsync/mtpsync/pkg/mtp"
	"github.com/mtpsync/mtpsync/pkg/mtp/mounted"
	"github.com/mtpsync/mtpsync/pkg/prompt"
	"github.com/mtpsync/mtpsync/pkg/retry"
	"github.com/mtpsync/mtpsync/pkg/sync"
)

// verboseLogKey is the environment variable used to enable verbose logging.
// When it's set to `true`, Debug events are logged, rather than just Info
// and above.
const verboseLogKey = "MTPSYNC_LOG_VERBOSE"

// pollSeconds is the interval watch mode polls the filesystem for changes
// that the watcher missed.
const pollSeconds = 15

type syncCmd struct {
	sourceDir string

	destPath   string
	storageID  uint32
	mode       string
	noChecksum bool
	planPath   string
	mountPath  string
	watch      bool
	logLevel   string
}

// Execute runs the main CLI process.
func Execute() {
	var cmd syncCmd
	rootCmd := &cobra.Command{
		Use:   "mtpsync SOURCE_DIR",
		Short: "One-way sync of a local directory onto an MTP device",
		Long: `Push a local directory tree onto an MTP device.

"verify" mode diffs the source against the device and writes an execution
plan. "exec" mode applies a plan, creating missing folders and uploading
missing or changed files, and records any failures in a retry plan that can
be executed again later.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,

		// The call to rootCmd.Execute prints the error, so we silence errors
		// here to avoid double printing.
		SilenceErrors: true,
		Run: func(_ *cobra.Command, args []string) {
			cmd.sourceDir = args[0]
			if err := cmd.run(); err != nil {
				util.HandleFatalError(err)
			}
		},
	}

	flags := rootCmd.Flags()
	flags.StringVar(&cmd.destPath, "dest", "/", "destination path on the device")
	flags.Uint32Var(&cmd.storageID, "storage", 0, "device storage ID (prompted if missing)")
	flags.StringVar(&cmd.mode, "mode", "verify", "flow mode: verify or exec")
	flags.BoolVar(&cmd.noChecksum, "no-checksum", false, "compare and validate by size only")
	flags.StringVar(&cmd.planPath, "plan", "", "path to an execution plan")
	flags.StringVar(&cmd.mountPath, "mount", "", "device mount point (detected if missing)")
	flags.BoolVar(&cmd.watch, "watch", false, "with --mode exec, keep watching the source for changes")
	flags.StringVar(&cmd.logLevel, "log-level", "info", "log level: debug, info, warn, or error")

	rootCmd.AddCommand(versionCmd.New())

	if err := rootCmd.Execute(); err != nil {
		util.HandleFatalError(err)
	}
}

func (cmd *syncCmd) run() error {
	if os.Getenv(verboseLogKey) == "true" {
		cmd.logLevel = "debug"
	}
	if err := util.SetupLogging(cmd.logLevel); err != nil {
		return err
	}

	if cmd.mode != "verify" && cmd.mode != "exec" {
		return errors.NewFriendlyError("Unknown mode %q. Expected verify or exec.", cmd.mode)
	}

	conf, err := config.ParseUser()
	if err != nil {
		return errors.WithContext(err, "parse config")
	}

	fs := afero.NewOsFs()
	client := mounted.New(fs, conf.ScratchDir)

	device, err := cmd.selectDevice(client)
	if err != nil {
		return err
	}
	if err := client.OpenDevice(device); err != nil {
		return errors.WithContext(err, "open device")
	}
	defer func() {
		if err := client.Close(); err != nil {
			log.WithError(err).Warn("Failed to close device")
		}
	}()

	storage, err := cmd.selectStorage(client)
	if err != nil {
		return err
	}

	fmt.Printf("Building file tree for %s...\n", storage.Description)
	index, err := client.BuildIndex(storage.ID, cmd.destPath)
	if err != nil {
		return errors.WithContext(err, "build device index")
	}

	defaultPlanPath, err := config.DefaultPlanPath()
	if err != nil {
		return err
	}
	retryDir, err := config.RetryDir()
	if err != nil {
		return err
	}

	engine := sync.New(fs, client, index, sync.Options{
		SourceDir:       cmd.sourceDir,
		DestPath:        cmd.destPath,
		StorageID:       storage.ID,
		UseChecksum:     !cmd.noChecksum,
		Algorithm:       checksum.Algorithm(conf.ChecksumAlgorithm),
		ScratchDir:      conf.ScratchDir,
		DefaultPlanPath: defaultPlanPath,
		RetryDir:        retryDir,
		Retry:           retry.New(conf.MaxRetries, conf.RetryBackoffFactor, errors.IsDeviceIO),
	})

	if cmd.mode == "verify" {
		return cmd.runVerify(engine)
	}
	if cmd.watch {
		return cmd.runWatch(engine)
	}
	return cmd.runExec(engine, cmd.planPath, true)
}

func (cmd *syncCmd) runVerify(engine *sync.Engine) error {
	fmt.Printf("Verifying %s against %s...\n", cmd.sourceDir, cmd.destPath)
	planPath, err := engine.Verify(cmd.planPath)
	if err != nil {
		return err
	}
	fmt.Printf("Execution plan generated: %s\n", planPath)

	execNow, err := prompt.YesNo("Execute sync plan now?", false)
	if err != nil || !execNow {
		return err
	}
	return cmd.runExec(engine, planPath, false)
}

// runExec applies a plan, and offers one interactive round of retrying the
// failed entries.
func (cmd *syncCmd) runExec(engine *sync.Engine, planPath string, offerRetry bool) error {
	success, retryPath, err := engine.Execute(planPath)
	if err != nil {
		return err
	}
	if success {
		fmt.Println("Sync completed successfully.")
		return nil
	}

	fmt.Printf("Sync completed with errors. Retry plan saved to: %s\n", retryPath)
	if !offerRetry {
		return nil
	}

	retryNow, err := prompt.YesNo("Retry failed items now?", false)
	if err != nil || !retryNow {
		return err
	}

	fmt.Println("Retrying failed items...")
	return cmd.runExec(engine, retryPath, false)
}

// runWatch keeps the destination in sync: every change to the source tree
// (or at the latest every pollSeconds) triggers a fresh verify and execute.
func (cmd *syncCmd) runWatch(engine *sync.Engine) error {
	watcher, err := fswatch.Watch(cmd.sourceDir)
	if err != nil {
		return errors.WithContext(err, "watch source")
	}

	fmt.Printf("Watching %s. Press Ctrl-C to stop.\n", cmd.sourceDir)
	ticker := time.NewTicker(pollSeconds * time.Second)
	for {
		if err := cmd.syncOnce(engine); err != nil {
			log.WithError(err).Error("Sync failed")
		}

		select {
		case <-watcher:
		case <-ticker.C:
		}
	}
}

func (cmd *syncCmd) syncOnce(engine *sync.Engine) error {
	planPath, err := engine.Verify("")
	if err != nil {
		return err
	}

	success, retryPath, err := engine.Execute(planPath)
	if err != nil {
		return err
	}
	if !success {
		log.WithField("plan", retryPath).Warn("Some entries failed; will retry on the next pass")
	}
	return nil
}

func (cmd *syncCmd) selectDevice(client *mounted.Client) (mtp.DeviceInfo, error) {
	if cmd.mountPath != "" {
		return mtp.DeviceInfo{Product: "mounted device", MountPath: cmd.mountPath}, nil
	}

	devices, err := client.DetectDevices()
	if err != nil {
		return mtp.DeviceInfo{}, errors.WithContext(err, "detect devices")
	}

	if len(devices) == 0 {
		return mtp.DeviceInfo{}, errors.NewFriendlyError(
			"No MTP devices detected. Please connect a device and try again,\n" +
				"or pass the device's mount point with --mount.")
	}
	if len(devices) == 1 {
		fmt.Printf("Using device: %s\n", devices[0].Product)
		return devices[0], nil
	}

	idx, err := prompt.Choice("Select MTP device:", len(devices), func(i int) string {
		return fmt.Sprintf("%s (%s)", devices[i].Product, devices[i].Serial)
	})
	if err != nil {
		return mtp.DeviceInfo{}, err
	}
	return devices[idx], nil
}

func (cmd *syncCmd) selectStorage(client *mounted.Client) (mtp.StorageInfo, error) {
	storages, err := client.ListStorages()
	if err != nil {
		return mtp.StorageInfo{}, errors.WithContext(err, "list storages")
	}

	if len(storages) == 0 {
		return mtp.StorageInfo{}, errors.NewFriendlyError(
			"No storage found on the connected device. Is it unlocked?")
	}

	if cmd.storageID != 0 {
		for _, storage := range storages {
			if storage.ID == cmd.storageID {
				fmt.Printf("Using storage: %s\n", storage.Description)
				return storage, nil
			}
		}
		return mtp.StorageInfo{}, errors.NewFriendlyError(
			"Storage ID %d not found on device.", cmd.storageID)
	}

	if len(storages) == 1 {
		fmt.Printf("Using storage: %s\n", storages[0].Description)
		return storages[0], nil
	}

	idx, err := prompt.Choice("Select storage:", len(storages), func(i int) string {
		storage := storages[i]
		return fmt.Sprintf("%s (%.1f GB, %.1f GB free)", storage.Description,
			float64(storage.Capacity)/(1<<30), float64(storage.FreeSpace)/(1<<30))
	})
	if err != nil {
		return mtp.StorageInfo{}, err
	}
	return storages[idx], nil
}
