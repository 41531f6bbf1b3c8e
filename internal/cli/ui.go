// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// jwtworkbench is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jhahn/jwtworkbench/internal/apperr"
	"github.com/jhahn/jwtworkbench/internal/rest"
)

var uiAddr string

var uiCmd = &cobra.Command{
	Use:   "ui",
	Short: "Start the localhost HTTP API and web UI",
	Long: `ui starts the loopback-bound HTTP JSON API that backs the workbench's
web UI. It binds to 127.0.0.1 only, and never to a network-reachable
address, since the server has no bearer-auth layer of its own.`,
	RunE: runUI,
}

func init() {
	uiCmd.Flags().StringVar(&uiAddr, "addr", "", "loopback address to bind (default from config: 127.0.0.1:8643)")
}

func runUI(cmd *cobra.Command, args []string) error {
	addr := uiAddr
	if addr == "" {
		addr = globalConfig.HTTPAddr
	}

	srv, err := rest.NewServer(&rest.Config{
		Addr:         addr,
		Service:      svc,
		Version:      appVersion,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	})
	if err != nil {
		return apperr.Wrap(apperr.Internal, err, "failed to configure HTTP server")
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	fmt.Fprintf(os.Stdout, "listening on http://%s\n", srv.Addr())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			return apperr.Wrap(apperr.Internal, err, "HTTP server failed")
		}
		return nil
	case <-sigCh:
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Stop(ctx)
	}
}
