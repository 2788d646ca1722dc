package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"fintrack/internal/api"
	"fintrack/internal/storage"
)

func newLoginCommand(opts *RootOptions) *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store the bearer token used for backend requests",
		Long: `Store the bearer token used for backend requests.

The token is read from --token, or from the first line of stdin.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.openState(); err != nil {
				return err
			}

			if token == "" {
				if token, err = readToken(cmd.InOrStdin()); err != nil {
					return err
				}
			}
			if err := a.holder.SetToken(cmd.Context(), token); err != nil {
				return err
			}
			return a.out.Success(map[string]string{"status": "logged_in"}, func(w io.Writer) error {
				_, err := fmt.Fprintln(w, "Token saved.")
				return err
			})
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "Bearer token")
	return cmd
}

func newLogoutCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored token and every cached collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.openState(); err != nil {
				return err
			}
			if err := a.holder.Clear(cmd.Context()); err != nil {
				return err
			}
			// Cached records belong to the user who logged out.
			for _, collection := range []string{api.Tickets, api.Expenses, api.Revenues, api.Categories} {
				if err := a.repo.Delete(cmd.Context(), storage.NamespaceSnapshots, collection); err != nil {
					return fmt.Errorf("drop %s snapshot: %w", collection, err)
				}
			}
			return a.out.Success(map[string]string{"status": "logged_out"}, func(w io.Writer) error {
				_, err := fmt.Fprintln(w, "Token removed.")
				return err
			})
		},
	}
}

func readToken(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read token: %w", err)
	}
	return strings.TrimSpace(line), nil
}
