package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nvandessel/tbc/internal/config"
	"github.com/nvandessel/tbc/internal/mcp"
)

func newMCPServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp-server",
		Short: "Serve tbc tools over MCP (stdio)",
		Long: `Run a Model Context Protocol server on stdin/stdout exposing
tbc_distance, tbc_estimate, tbc_null_stats, tbc_fano and tbc_poisson.

File arguments are resolved against --root and may not leave it. Tool calls
are rate limited and recorded in ~/.tbc/audit.jsonl unless --no-audit is set.

Shape parameters for tbc_estimate are required, resolved as for
"tbc estimate": --builtin-shape, --shape-params or
estimator.shape_params_path.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			root, err := filepath.Abs(e.root)
			if err != nil {
				return fmt.Errorf("failed to resolve root: %w", err)
			}

			params, err := e.shapeParams(cmd)
			if err != nil {
				return err
			}

			var auditDir string
			if noAudit, _ := cmd.Flags().GetBool("no-audit"); !noAudit {
				if auditDir, err = config.Dir(); err != nil {
					return err
				}
			}

			server, err := mcp.NewServer(&mcp.Config{
				Name:        "tbc",
				Version:     version,
				Root:        root,
				Compute:     e.cfg.Compute,
				ShapeParams: params,
				AuditDir:    auditDir,
				Logger:      e.logger,
			})
			if err != nil {
				return fmt.Errorf("failed to create MCP server: %w", err)
			}
			defer server.Close()

			return server.Run(cmdContext(cmd))
		},
	}

	cmd.Flags().Bool("no-audit", false, "Do not write the tool-call audit log")
	addShapeFlags(cmd)

	return cmd
}
