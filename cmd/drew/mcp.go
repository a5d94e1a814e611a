package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/quotecraft/drew/pkg/adapters/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP server",
	Long:  `Exposes the quote engine as Model Context Protocol tools over stdio or SSE.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		transport, _ := cmd.Flags().GetString("transport")
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.Server.MCPAddr = addr
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := buildApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		srv := mcp.NewServer(a.engine,
			mcp.WithKnowledgeBase(a.library),
			mcp.WithSessions(a.sessions),
			mcp.WithMetrics(a.metrics),
			mcp.WithSettings(cfg.Quote),
			mcp.WithLogger(logger),
		)

		switch transport {
		case "stdio":
			return srv.ServeStdio()
		case "sse":
			return srv.ServeSSE(ctx, cfg.Server.MCPAddr)
		default:
			return fmt.Errorf("unknown transport %q (use stdio or sse)", transport)
		}
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().String("transport", "stdio", "Transport to use: stdio or sse")
	mcpCmd.Flags().String("addr", "", "Address for the SSE transport (default from config, :8081)")
}
