package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/RyanBlaney/magictales/internal/app"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MagicTales web application",
	Long: `Start the HTTP server: user and admin pages, the /api/analyze endpoint,
/healthz and prometheus /metrics. SIGINT or SIGTERM shuts it down gracefully.

Examples:
  magictales serve
  magictales serve --addr :8080 --base-url https://tales.example.com
  MAGICTALES_STORY_GROQ_API_KEY=... magictales serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", ":5000", "listen address")
	serveCmd.Flags().String("base-url", "", "external URL used in password reset links")
	serveCmd.Flags().String("upload-dir", "uploads", "directory for uploaded files")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.LogLevel != "debug" && !verbose {
		gin.SetMode(gin.ReleaseMode)
	}

	a, err := app.New(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return a.Serve(ctx)
}
