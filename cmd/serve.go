package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/LAG-4/cafefinder/internal/server"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the offers HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		listenAddr, _ := cmd.Flags().GetString("listen")
		if listenAddr == "" {
			listenAddr = viper.GetString("server.listen")
		}
		adminToken, _ := cmd.Flags().GetString("admin-token")
		if adminToken == "" {
			adminToken = viper.GetString("server.admin_token")
		}

		srv := server.New(a.db, a.svc, a.orch, adminToken)
		return srv.Start(listenAddr)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("listen", "", "HTTP listen address (default from config)")
	serveCmd.Flags().String("admin-token", "", "Bearer token for admin endpoints (default from config)")
}
