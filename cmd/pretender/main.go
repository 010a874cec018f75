// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"storj.io/common/cfgstruct"
	"storj.io/common/fpath"
	"storj.io/common/process"
	"storj.io/pretender/itembase"
	"storj.io/pretender/itembase/expireddeletion"
	"storj.io/pretender/server"
	"storj.io/pretender/streams"
	"storj.io/pretender/streams/retention"
)

var (
	rootCmd = &cobra.Command{
		Use:   "pretender",
		Short: "DynamoDB-compatible document store on SQL",
	}
	setupCmd = &cobra.Command{
		Use:         "setup",
		Short:       "Create config files",
		RunE:        cmdSetup,
		Annotations: map[string]string{"type": "setup"},
	}
	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run the pretender server",
		RunE:  cmdRun,
	}
	confDir string

	runCfg   PretenderConf
	setupCfg PretenderConf
)

// PretenderConf is the process configuration.
type PretenderConf struct {
	DatabaseURL string `help:"URL to connect to the item database" default:"sqlite3://:memory:"`

	Server          server.Config
	ExpiredDeletion expireddeletion.Config
	StreamRetention retention.Config
}

func cmdSetup(cmd *cobra.Command, args []string) (err error) {
	setupDir, err := filepath.Abs(confDir)
	if err != nil {
		return err
	}

	valid, _ := fpath.IsValidSetupDir(setupDir)
	if !valid {
		return fmt.Errorf("pretender configuration already exists (%v)", setupDir)
	}

	err = os.MkdirAll(setupDir, 0700)
	if err != nil {
		return err
	}

	return process.SaveConfig(cmd, filepath.Join(setupDir, "config.yaml"))
}

func cmdRun(cmd *cobra.Command, args []string) (err error) {
	ctx, _ := process.Ctx(cmd)
	log := zap.L()

	db, err := itembase.Open(ctx, log.Named("itembase"), runCfg.DatabaseURL)
	if err != nil {
		return errs.New("error opening item database: %+v", err)
	}
	defer func() {
		err = errs.Combine(err, db.Close())
	}()

	if err := db.MigrateToLatest(ctx); err != nil {
		return errs.New("error migrating item database: %+v", err)
	}

	streamsService := streams.NewService(log.Named("streams"), db)
	apiServer := server.NewServer(log.Named("server"), db, streamsService, runCfg.Server)

	expiredChore := expireddeletion.NewChore(log.Named("expireddeletion"), runCfg.ExpiredDeletion, db)
	defer func() {
		err = errs.Combine(err, expiredChore.Close())
	}()

	retentionChore := retention.NewChore(log.Named("retention"), runCfg.StreamRetention, db)
	defer func() {
		err = errs.Combine(err, retentionChore.Close())
	}()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return apiServer.Run(groupCtx)
	})
	group.Go(func() error {
		return expiredChore.Run(groupCtx)
	})
	group.Go(func() error {
		return retentionChore.Run(groupCtx)
	})
	return group.Wait()
}

func init() {
	defaultConfDir := fpath.ApplicationDir("storj", "pretender")
	cfgstruct.SetupFlag(zap.L(), rootCmd, &confDir, "config-dir", defaultConfDir, "main directory for pretender configuration")
	defaults := cfgstruct.DefaultsFlag(rootCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(setupCmd)
	process.Bind(runCmd, &runCfg, defaults, cfgstruct.ConfDir(confDir))
	process.Bind(setupCmd, &setupCfg, defaults, cfgstruct.ConfDir(confDir), cfgstruct.SetupMode())
}

func main() {
	logger, _, _ := process.NewLogger("pretender")
	zap.ReplaceGlobals(logger)

	process.Exec(rootCmd)
}
