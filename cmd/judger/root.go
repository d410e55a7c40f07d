// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/saiblo/local-judger-go/internal/config"
	"github.com/saiblo/local-judger-go/internal/coordinator"
	"github.com/saiblo/local-judger-go/internal/log"
)

var rootCmd = &cobra.Command{
	Use:   "judger",
	Short: "Local match judger for turn-based multi-agent contests",
	Long:  `judger accepts a fixed number of AI player connections over TCP, drives a game-logic subprocess, and produces a final score or a classified failure.`,
	RunE:  runJudger,
}

// Execute runs the root command, classifying any panic on the way out so
// an illegal-state exit reads differently from a plain crash.
func Execute() {
	defer func() {
		if r := recover(); r != nil {
			if ill, ok := r.(illegalState); ok {
				fmt.Fprintf(os.Stderr, "judger is exiting due to an unrecoverable illegal state: %s\n", ill.reason)
			} else {
				fmt.Fprintf(os.Stderr, "judger crashed unexpectedly: %v\n", r)
			}
			os.Exit(1)
		}
	}()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().Int("port", 0, "TCP listener port (0 = ephemeral)")
	rootCmd.Flags().Int("player-count", 0, "Required. Number of AI players to start a match.")
	rootCmd.Flags().String("config-file", "", "Game config file (JSON), forwarded verbatim to logic.")
	rootCmd.Flags().String("output", "", "Output directory. Defaults to res-<random 10 digits>.")
	rootCmd.Flags().String("logic-path", "", "Required. Path to the game logic executable.")
	rootCmd.Flags().Int("protocol-version", 1, "Communication protocol version (advisory only).")
	rootCmd.Flags().String("log-level", "info", "Console log level (debug, info, warn, error).")

	_ = viper.BindPFlag("port", rootCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("player_count", rootCmd.Flags().Lookup("player-count"))
	_ = viper.BindPFlag("config_file", rootCmd.Flags().Lookup("config-file"))
	_ = viper.BindPFlag("output", rootCmd.Flags().Lookup("output"))
	_ = viper.BindPFlag("logic_path", rootCmd.Flags().Lookup("logic-path"))
	_ = viper.BindPFlag("protocol_version", rootCmd.Flags().Lookup("protocol-version"))
	_ = viper.BindPFlag("log_level", rootCmd.Flags().Lookup("log-level"))
}

func runJudger(cmd *cobra.Command, args []string) error {
	opts := config.Options{
		Port:            viper.GetInt("port"),
		PlayerCount:     viper.GetInt("player_count"),
		ConfigFile:      viper.GetString("config_file"),
		Output:          viper.GetString("output"),
		LogicPath:       viper.GetString("logic_path"),
		ProtocolVersion: viper.GetInt("protocol_version"),
		LogLevel:        viper.GetString("log_level"),
	}

	if opts.PlayerCount <= 0 || opts.LogicPath == "" {
		return cmd.Usage()
	}

	cfg, err := config.Load(opts)
	if err != nil {
		return err
	}

	logger, err := log.New(log.ParseLevel(cfg.LogLevel), cfg.OutputDir)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck
	log.SetLogger(logger)

	logger.Info("SaibloLocalJudger starting",
		zap.Int("port", cfg.Port),
		zap.Int("player_count", cfg.PlayerCount),
		zap.String("logic_path", cfg.LogicPath),
		zap.String("output_dir", cfg.OutputDir),
	)

	coord := coordinator.New(cfg, logger)
	coord.SetEventHandler(func(e coordinator.Event) {
		logger.Debug("event", zap.Int("type", int(e.Type)))
	})

	summary, err := coord.Start(context.Background())
	if err != nil {
		return fmt.Errorf("running match: %w", err)
	}

	logger.Info("judger exited",
		zap.String("match_id", summary.MatchID),
		zap.String("final_state", summary.FinalState.String()),
		zap.Ints("final_score", summary.FinalScore),
		zap.Int("total_round", summary.TotalRound),
		zap.Duration("total_time", summary.TotalTime),
	)
	return nil
}
