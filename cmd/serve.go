package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kiesman99/mosaic/internal/mosaic"
	"github.com/kiesman99/mosaic/internal/prepare"
	"github.com/kiesman99/mosaic/internal/server"
	"github.com/kiesman99/mosaic/pkg/tile"
)

// version is reported by the health endpoint
const version = "1.0.0"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server for the mosaic API",
	Long: `Start an HTTP server that provides a REST API for building mosaics.

The tile library is loaded once at startup. Clients post a target image and
receive the encoded mosaic.

Examples:
  # Start server on default port 8080 with 10x10 tiles
  mosaic serve --tiles ./tiles --tile-size 10

  # Start server on custom port
  mosaic serve --tiles ./tiles --port 3000

  # Start server with custom bind address
  mosaic serve --tiles ./tiles --bind 0.0.0.0 --port 8080`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	// Server configuration
	serveCmd.Flags().StringP("bind", "b", "localhost", "bind address")
	serveCmd.Flags().IntP("port", "p", 8080, "port to listen on")
	serveCmd.Flags().Duration("timeout", 60*time.Second, "request timeout")
	serveCmd.Flags().StringP("tiles", "d", "", "directory of tile images (required)")
	serveCmd.Flags().IntP("tile-size", "t", mosaic.DefaultOptions().TileSize, "tile side length in pixels")
	serveCmd.Flags().Int64("max-body", server.DefaultMaxBodyBytes, "maximum upload size in bytes")

	// Bind flags to viper
	viper.BindPFlag("server.bind", serveCmd.Flags().Lookup("bind"))
	viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	viper.BindPFlag("server.timeout", serveCmd.Flags().Lookup("timeout"))
	viper.BindPFlag("server.tiles", serveCmd.Flags().Lookup("tiles"))
	viper.BindPFlag("server.tile-size", serveCmd.Flags().Lookup("tile-size"))
	viper.BindPFlag("server.max-body", serveCmd.Flags().Lookup("max-body"))
}

// loadLibrary reads the tile library the server works with
func loadLibrary() (*tile.Set, error) {
	dir := viper.GetString("server.tiles")
	if dir == "" {
		return nil, fmt.Errorf("%w: tile directory is required (use --tiles)", mosaic.ErrInvalidConfig)
	}
	dir, err := expandPath(dir)
	if err != nil {
		return nil, err
	}

	loader := prepare.NewLoader(afero.NewOsFs())
	loader.Interpolation = prepare.Interpolation(viper.GetUint("resize-quality"))
	loader.Workers = max(viper.GetInt("threads"), 1)

	tiles, err := loader.PrepareTiles(dir, tile.Square(viper.GetInt("server.tile-size")), viper.GetBool("verbose"))
	if err != nil {
		return nil, err
	}
	if tiles.Len() == 0 {
		return nil, fmt.Errorf("%w in %s", mosaic.ErrNoTiles, dir)
	}
	return tiles, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	bind := viper.GetString("server.bind")
	port := viper.GetInt("server.port")
	timeout := viper.GetDuration("server.timeout")

	addr := fmt.Sprintf("%s:%d", bind, port)

	tiles, err := loadLibrary()
	if err != nil {
		return err
	}

	// Create server implementation
	apiServer := server.NewServer(version, tiles, viper.GetInt("threads"))
	apiServer.MaxBodyBytes = viper.GetInt64("server.max-body")

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      server.NewRouter(apiServer, timeout),
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info("Shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(ctx); err != nil {
			log.WithError(err).Error("Server shutdown error")
		}
	}()

	log.WithFields(log.Fields{
		"addr":      addr,
		"tiles":     tiles.Len(),
		"tile_size": tiles.Size,
	}).Info("Starting mosaic server")
	fmt.Fprintf(cmd.ErrOrStderr(), "Health check: http://%s/api/v1/health\n", addr)
	fmt.Fprintf(cmd.ErrOrStderr(), "Mosaic endpoint: http://%s/api/v1/mosaic\n", addr)

	if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %v", err)
	}

	return nil
}
