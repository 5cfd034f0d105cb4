package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Norgate-AV/fuser/internal/server"
)

// shutdownTimeout bounds how long in-flight requests may take after a signal
const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve every bundle over HTTP",
	Long: `Watch every bundle in the manifest and serve its combined file,
rebuilding on request when a source changed. Append ?hash to get the MD5 of
a combined file, or .jsm to get its position map.`,
	Args:         cobra.NoArgs,
	RunE:         runServe,
	SilenceUsage: true,
}

func init() {
	serveCmd.Flags().StringP("listen", "l", "", "Address to listen on (default 127.0.0.1:9011)")
}

func runServe(cmd *cobra.Command, args []string) error {
	s, err := loadSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry, err := server.OpenManifest(ctx, s.manifest, s.fuserOptions()...)
	if err != nil {
		return err
	}
	defer registry.Close()

	srv := server.New(registry, cmd.ErrOrStderr())
	if err := srv.Start(s.cfg.Listen); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Serving %d bundles on http://%s\n", len(s.manifest.Bundles), srv.Addr())

	if s.cfg.Verbose {
		for _, route := range registry.Routes() {
			fmt.Fprintf(out, "  %s\n", route)
		}
	}

	<-ctx.Done()
	fmt.Fprintln(out, "Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return srv.Stop(shutdownCtx)
}
