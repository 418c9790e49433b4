package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MrEthical07/medAuth/password"
)

func newHashPasswordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print a bcrypt digest for seeding accounts",
		Long:  "Print a bcrypt digest for seeding accounts. Without an argument the password is read from the first line of stdin.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cost, _ := cmd.Flags().GetInt("cost")

			var plain string
			if len(args) == 1 {
				plain = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return errors.New("no password on stdin")
				}
				plain = strings.TrimRight(line, "\r\n")
			}

			if res := password.ValidateStrength(plain); !res.Valid {
				return fmt.Errorf("password does not meet requirements: %s", strings.Join(res.Errors, "; "))
			}

			hasher, err := password.New(password.Config{Cost: cost})
			if err != nil {
				return err
			}
			digest, err := hasher.Hash(plain)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), digest)
			return nil
		},
	}
	cmd.Flags().Int("cost", password.DefaultCost, "bcrypt cost")
	return cmd
}
