package tagfsserver

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/function61/gokit/httputils"
	"github.com/function61/gokit/logex"
	"github.com/function61/gokit/ossignal"
	"github.com/function61/gokit/osutil"
	"github.com/function61/gokit/taskrunner"
	"github.com/function61/tagfs/pkg/tagdiscovery"
	"github.com/function61/tagfs/pkg/tagfsutils"
	"github.com/spf13/cobra"
)

func Entrypoint() *cobra.Command {
	configPath := DefaultConfigFilename

	// flags override the config file
	dataDir := ""
	capacity := int64(0)
	addr := ""
	advertise := ""
	noDiscovery := false

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Starts a storage node",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			rootLogger := logex.StandardLogger()

			osutil.ExitIfError(func() error {
				scf, err := readServerConfigFile(configPath)
				if err != nil {
					return err
				}

				if cmd.Flags().Changed("data-dir") {
					scf.DataDir = dataDir
				}
				if cmd.Flags().Changed("capacity") {
					scf.Capacity = capacity
				}
				if cmd.Flags().Changed("addr") {
					scf.ListenAddr = addr
				}
				if cmd.Flags().Changed("advertise") {
					scf.AdvertiseAddr = advertise
				}
				if noDiscovery {
					scf.DisableDiscovery = true
				}

				if err := scf.Validate(); err != nil {
					return err
				}

				return runServer(
					ossignal.InterruptOrTerminateBackgroundCtx(rootLogger),
					*scf,
					rootLogger)
			}())
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", configPath, "Config file")
	cmd.Flags().StringVarP(&dataDir, "data-dir", "", dataDir, "Data directory (index + files)")
	cmd.Flags().Int64VarP(&capacity, "capacity", "", capacity, "Capacity in bytes")
	cmd.Flags().StringVarP(&addr, "addr", "", DefaultListenAddr, "Address to listen on")
	cmd.Flags().StringVarP(&advertise, "advertise", "", advertise, "Address to advertise to clients (default: autodetect)")
	cmd.Flags().BoolVarP(&noDiscovery, "no-discovery", "", noDiscovery, "Don't advertise over mDNS")

	return cmd
}

func runServer(ctx context.Context, scf ServerConfigFile, rootLogger *log.Logger) error {
	logl := logex.Levels(logex.Prefix("main", rootLogger))

	node, err := Open(ctx, scf.NodeConfig(), logex.Prefix("node", rootLogger))
	if err != nil {
		return err
	}
	defer func() {
		if err := node.Close(); err != nil {
			logl.Error.Printf("close: %v", err)
		}
	}()

	listener, err := tagfsutils.CreateTCPOrDomainSocketListener(scf.ListenAddr, logl)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           NewHTTPHandler(node, logex.Prefix("restapi", rootLogger)),
		ReadHeaderTimeout: 30 * time.Second,
	}

	tasks := taskrunner.New(ctx, rootLogger)

	tasks.Start("listener "+listener.Addr().String(), func(ctx context.Context) error {
		return httputils.RemoveGracefulServerClosedError(srv.Serve(listener))
	})

	tasks.Start("listenershutdowner", httputils.ServerShutdownTask(srv))

	if scf.IntegrityCheckSchedule != "" {
		tasks.Start("integrityscan", integrityScanTask(node, scf.IntegrityCheckSchedule, logex.Prefix("integrityscan", rootLogger)))
	}

	if !scf.DisableDiscovery && tagfsutils.ParseDomainSocketPath(scf.ListenAddr) == "" {
		advertiseAddr := scf.AdvertiseAddr
		if advertiseAddr == "" {
			advertiseAddr, err = tagfsutils.AdvertiseAddr(listener.Addr().String())
			if err != nil {
				return err
			}
		}

		tasks.Start("discovery", tagdiscovery.RegistrationTask(advertiseAddr, logex.Prefix("discovery", rootLogger)))
	}

	return tasks.Wait()
}
