package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MrEthical07/medAuth"
)

func newCheckConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Load and validate the configuration, then print it with secrets redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "configuration OK")
			fmt.Fprintf(out, "  access token ttl:   %s\n", cfg.JWT.AccessTTL)
			fmt.Fprintf(out, "  refresh token ttl:  %s\n", cfg.JWT.RefreshTTL)
			fmt.Fprintf(out, "  access secret:      %s\n", redact(cfg.JWT.AccessSecret))
			fmt.Fprintf(out, "  refresh secret:     %s\n", redact(cfg.JWT.RefreshSecret))
			fmt.Fprintf(out, "  bcrypt cost:        %d\n", cfg.Password.Cost)
			fmt.Fprintf(out, "  lockout:            %d attempts, %s\n", cfg.Lockout.MaxAttempts, cfg.Lockout.Duration)
			fmt.Fprintf(out, "  reset token ttl:    %s\n", cfg.Reset.TokenTTL)
			fmt.Fprintf(out, "  audit enabled:      %t\n", cfg.Audit.Enabled)
			fmt.Fprintf(out, "  rate limit enabled: %t\n", cfg.RateLimit.Enabled)
			fmt.Fprintf(out, "  metrics enabled:    %t\n", cfg.Metrics.Enabled)
			return nil
		},
	}
}

func loadConfig(cmd *cobra.Command) (medAuth.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return medAuth.LoadConfig(path)
}

func redact(secret string) string {
	if secret == "" {
		return "(unset)"
	}
	return fmt.Sprintf("(%d bytes)", len(secret))
}
