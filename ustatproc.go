// Copyright 2017 Tomas Machalek <tomas.machalek@gmail.com>
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"ustatproc/config"
)

var (
	version   string
	buildDate string
	gitCommit string
)

func setupLog(path, level string) *os.File {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	if path == "" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		return nil
	}
	logf, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("failed to initialize log")
	}
	log.Logger = zerolog.New(logf).With().Timestamp().Logger()
	return logf
}

func setup(confPath, action, logLevel string) (*config.Main, *os.File) {
	conf, err := config.Load(confPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if logLevel != "" {
		conf.LogLevel = logLevel
	}
	logf := setupLog(conf.LogPath, conf.LogLevel)
	config.Validate(conf, action)
	return conf, logf
}

func main() {
	var logLevel string
	pflag.StringVar(&logLevel, "log-level", "", "override the log level from the configuration")
	pflag.CommandLine.SetInterspersed(false)
	pflag.Usage = func() {
		fmt.Fprintf(
			os.Stderr,
			"Ustatproc - an utility for recording and maintaining repository usage statistics\n\n"+
				"Usage:\n\t%s [options] [action] [config.yaml] [action options]\n\n"+
				"Available actions:\n\t%s\n\nOptions:\n",
			filepath.Base(os.Args[0]),
			strings.Join(availableActions, ", "),
		)
		pflag.PrintDefaults()
	}
	pflag.Parse()
	action := pflag.Arg(0)

	switch action {
	case config.ActionHelp:
		help(pflag.Arg(1))
		return
	case config.ActionVersion:
		fmt.Printf("ustatproc %s\nbuild date: %s\nlast commit: %s\n", version, buildDate, gitCommit)
		return
	case config.ActionScriptStub:
		generateScriptStub()
		return
	}
	if !isAction(action) {
		fmt.Printf("Unknown action [%s]. Try -h for help\n", action)
		os.Exit(1)
	}
	conf, logf := setup(pflag.Arg(1), action, logLevel)
	var exitCode int
	defer func() {
		if logf != nil {
			logf.Close()
		}
		os.Exit(exitCode)
	}()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	actionArgs := pflag.Args()[min(2, pflag.NArg()):]

	var err error
	switch action {
	case config.ActionIngest:
		err = runIngest(ctx, conf, actionArgs)
	case config.ActionAnonymize:
		err = runAnonymize(ctx, conf, actionArgs)
	case config.ActionShard:
		err = runShardMigration(ctx, conf, actionArgs)
	case config.ActionDocupdate:
		err = runDocupdate(ctx, conf, actionArgs)
	case config.ActionMarkBots:
		err = runMarkBots(ctx, conf, actionArgs)
	case config.ActionDeleteBots:
		err = runDeleteBots(ctx, conf, actionArgs)
	case config.ActionWatch:
		err = runWatch(ctx, conf)
	case config.ActionTestNotification:
		err = runTestNotification(conf)
	}
	if errors.Is(err, pflag.ErrHelp) {
		exitCode = -1

	} else if err != nil {
		log.Error().Err(err).Str("action", action).Msg("action failed")
		exitCode = 1
	}
}
