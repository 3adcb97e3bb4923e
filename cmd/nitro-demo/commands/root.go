// Copyright 2025 PolyCrypt GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package commands implements the nitro-demo command line.
package commands

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	plogrus "perun.network/go-perun/log/logrus"

	"perun.network/perun-nitro-backend/config"
)

const (
	configFlag    = "config"
	logLevelFlag  = "log-level"
	storeFlag     = "store"
	storePathFlag = "store-path"
	modeFlag      = "mode"
)

// NewRootCmd returns the nitro-demo root command.
func NewRootCmd() *cobra.Command {
	v := viper.New()
	var cfg *config.Config

	root := &cobra.Command{
		Use:           "nitro-demo",
		Short:         "Virtual funding on a simulated state channel adjudicator",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			configFile, err := cmd.Flags().GetString(configFlag)
			if err != nil {
				return err
			}
			if cfg, err = config.Load(v, configFile); err != nil {
				return err
			}
			lvl, err := cfg.Log.ParseLevel()
			if err != nil {
				return err
			}
			plogrus.Set(lvl, &logrus.TextFormatter{FullTimestamp: true})
			return nil
		},
	}
	root.PersistentFlags().String(configFlag, "", "config file (toml, yaml or json)")
	root.PersistentFlags().String(logLevelFlag, config.DefaultLogConfig().Level, "log level")
	mustBind(v, "log.level", root.PersistentFlags().Lookup(logLevelFlag))

	root.AddCommand(newRunCmd(v, func() *config.Config { return cfg }))
	return root
}
