// File: cmd/client/main.go
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/iyunix/go-telemed/internal/apiclient"
	"github.com/iyunix/go-telemed/internal/config"
	"github.com/iyunix/go-telemed/internal/localstore"
	"github.com/iyunix/go-telemed/internal/services"
	"github.com/iyunix/go-telemed/internal/services/coordinator"
)

// app is the state shared by every subcommand for one invocation.
type app struct {
	cfg      *config.ClientConfig
	log      services.Logger
	coord    *coordinator.Coordinator
	local    *localstore.Store
	registry *prometheus.Registry
	out      io.Writer
	errOut   io.Writer
}

func main() {
	if err := execute(context.Background(), os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// execute runs one invocation and releases what it opened, also on failure.
func execute(ctx context.Context, out, errOut io.Writer, args []string) error {
	root, a := newRootCmd(out, errOut)
	defer a.close()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func newRootCmd(out, errOut io.Writer) (*cobra.Command, *app) {
	v := viper.New()
	a := &app{out: out, errOut: errOut}

	root := &cobra.Command{
		Use:           "telemed",
		Short:         "Telemedicine client with offline fallback",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.open(cmd.Context(), v)
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	flags := root.PersistentFlags()
	flags.String("api-url", "", "backend base URL including /api")
	flags.String("local-db", "", "path of the local SQLite database")
	flags.Duration("timeout", 0, "per-call backend timeout")
	flags.String("log-level", "", "debug, info, warn or error")
	_ = v.BindPFlag("TELEMED_API_URL", flags.Lookup("api-url"))
	_ = v.BindPFlag("TELEMED_LOCAL_DB", flags.Lookup("local-db"))
	_ = v.BindPFlag("TELEMED_REMOTE_TIMEOUT", flags.Lookup("timeout"))
	_ = v.BindPFlag("LOG_LEVEL", flags.Lookup("log-level"))

	root.AddCommand(
		statusCmd(a),
		patientCmd(a),
		loginCmd(a),
		logoutCmd(a),
		consultCmd(a),
		recordsCmd(a),
		imagesCmd(a),
		analyticsCmd(a),
		statsCmd(a),
		exportCmd(a),
		syncCmd(a),
	)
	return root, a
}

func (a *app) open(ctx context.Context, v *viper.Viper) error {
	cfg, err := config.LoadClient(v)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = services.NewZerologLogger(a.errOut, "telemed-client", services.ParseLevel(cfg.LogLevel), true)

	kv, err := localstore.OpenSQLite(cfg.LocalDB)
	if err != nil {
		return fmt.Errorf("open local store: %w", err)
	}
	a.local = localstore.New(kv)

	remote := apiclient.New(apiclient.Config{BaseURL: cfg.APIURL, Timeout: cfg.RemoteTimeout}, &http.Client{})

	a.registry = prometheus.NewRegistry()
	ccfg := coordinator.DefaultConfig()
	ccfg.RemoteTimeout = cfg.RemoteTimeout
	ccfg.ProbeInterval = cfg.ProbeInterval
	ccfg.AutoSync = cfg.AutoSync
	ccfg.Registerer = a.registry

	a.coord = coordinator.New(remote, a.local, a.log, ccfg)
	if ctx == nil {
		ctx = context.Background()
	}
	return a.coord.Start(ctx)
}

func (a *app) close() {
	if a.coord != nil {
		a.reportFallbacks()
		a.coord.Close()
		a.coord = nil
	}
	if a.local != nil {
		if err := a.local.Close(); err != nil {
			a.log.Warn("Failed to close local store", "error", err)
		}
		a.local = nil
	}
}

// reportFallbacks tells the user which operations were served locally.
func (a *app) reportFallbacks() {
	families, err := a.registry.Gather()
	if err != nil {
		return
	}
	var ops []string
	for _, mf := range families {
		if mf.GetName() != "telemed_coordinator_fallbacks_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "op" && m.GetCounter().GetValue() > 0 {
					ops = append(ops, l.GetValue())
				}
			}
		}
	}
	if len(ops) > 0 {
		fmt.Fprintf(a.errOut, "served from local storage: %s\n", strings.Join(ops, ", "))
	}
}

// patientID resolves an optional --patient flag against the signed-in user.
func (a *app) patientID(flag string) string {
	if flag != "" {
		return flag
	}
	if user, ok := a.coord.CurrentUser(); ok {
		return user.PatientID
	}
	return coordinator.AnonymousPatient
}
