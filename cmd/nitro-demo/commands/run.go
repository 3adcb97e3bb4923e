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

package commands

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"perun.network/go-perun/log"

	"perun.network/perun-nitro-backend/channel"
	"perun.network/perun-nitro-backend/config"
	"perun.network/perun-nitro-backend/ledger"
	"perun.network/perun-nitro-backend/payment"
)

func mustBind(v *viper.Viper, key string, flag *pflag.Flag) {
	if err := v.BindPFlag(key, flag); err != nil {
		panic(err)
	}
}

func newRunCmd(v *viper.Viper, cfg func() *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a payment from Bob to Alice through Irene and settle it",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()
			return run(ctx, cfg(), cmd.OutOrStdout())
		},
	}
	d := config.DefaultConfig()
	cmd.Flags().String(modeFlag, d.Payment.Mode, `settlement mode, "dispute" or "cooperative"`)
	cmd.Flags().String(storeFlag, d.Store.Backend, `custody store backend, "mem" or "bolt"`)
	cmd.Flags().String(storePathFlag, d.Store.Path, "database file of the bolt backend")
	mustBind(v, "payment.mode", cmd.Flags().Lookup(modeFlag))
	mustBind(v, "store.backend", cmd.Flags().Lookup(storeFlag))
	mustBind(v, "store.path", cmd.Flags().Lookup(storePathFlag))
	return cmd
}

func openStore(cfg *config.StoreConfig) (ledger.Store, error) {
	if cfg.Backend == config.StoreBackendBolt {
		return ledger.OpenBoltStore(cfg.Path)
	}
	return ledger.NewMemStore(), nil
}

func params(cfg *config.Config) payment.Params {
	return payment.Params{
		ChainID:           new(big.Int).SetUint64(cfg.Ledger.ChainID),
		ChallengeDuration: cfg.Ledger.ChallengeDuration,
		InitialBalance:    big.NewInt(cfg.Payment.InitialBalance),
		LedgerDeposit:     big.NewInt(cfg.Payment.LedgerDeposit),
		VirtualDeposit:    big.NewInt(cfg.Payment.VirtualDeposit),
		Payment:           big.NewInt(cfg.Payment.Amount),
	}
}

func run(ctx context.Context, cfg *config.Config, out io.Writer) error {
	mode, err := payment.ParseMode(cfg.Payment.Mode)
	if err != nil {
		return err
	}
	store, err := openStore(cfg.Store)
	if err != nil {
		return errors.WithMessage(err, "opening store")
	}
	defer store.Close()

	var opts []channel.AdjudicatorOption
	if inst := cfg.Instrumentation; inst.Prometheus {
		opts = append(opts, channel.WithMetrics(channel.PrometheusMetrics(inst.Namespace)))
		srv := &http.Server{Addr: inst.PrometheusListenAddr, Handler: promhttp.Handler(), ReadHeaderTimeout: 10 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.WithError(err).Error("prometheus server stopped")
			}
		}()
		defer srv.Close()
	}

	n, err := payment.NewNetwork(store, params(cfg), rand.Reader, opts...)
	if err != nil {
		return err
	}
	for _, p := range n.Parties() {
		log.WithField("party", p.Name).Infof("address %s", p.Address().Hex())
	}

	report, err := n.Run(ctx, mode)
	if err != nil {
		return err
	}
	printReport(out, n, report)
	return nil
}

func printReport(out io.Writer, n *payment.Network, r *payment.Report) {
	fmt.Fprintf(out, "settled by %s\n", r.Mode)
	for _, p := range r.Payouts {
		fmt.Fprintf(out, "  payout %-6s %v\n", n.Name(p.To), p.Amount)
	}
	names := make([]string, 0, len(r.Deltas))
	for name := range r.Deltas {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(out, "  delta  %-6s %v\n", name, r.Deltas[name])
	}
}
