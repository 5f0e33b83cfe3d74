package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"mailgate/internal/db"
	"mailgate/internal/mail"
)

type storeRunner func(cmd *cobra.Command, fn func(ctx context.Context, store db.Store) error) error

type passwordOptions struct {
	password      string
	passwordStdin bool
}

func (o *passwordOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.password, "password", "", "Password for the user")
	cmd.Flags().BoolVar(&o.passwordStdin, "password-stdin", false, "Read the password from the first line of stdin")
}

// resolve returns the password from the flag or stdin.
func (o *passwordOptions) resolve(in io.Reader) (string, error) {
	password := o.password
	if o.passwordStdin {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}
	if password == "" {
		return "", errors.New("a password is required (--password or --password-stdin)")
	}
	return password, nil
}

func newUserCmd(run storeRunner) *cobra.Command {
	userCmd := &cobra.Command{
		Use:   "user",
		Short: "Add, list and remove users",
	}

	// user add
	var addOpts passwordOptions
	addCmd := &cobra.Command{
		Use:   "add <email>",
		Short: "Create a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			email := db.NormalizeEmail(args[0])
			if !strings.Contains(email, "@") {
				return fmt.Errorf("invalid email address %q", args[0])
			}
			password, err := addOpts.resolve(cmd.InOrStdin())
			if err != nil {
				return err
			}
			return run(cmd, func(ctx context.Context, store db.Store) error {
				if _, err := store.GetUser(ctx, email); err == nil {
					return fmt.Errorf("user %s already exists", email)
				} else if !errors.Is(err, db.ErrUserNotFound) {
					return err
				}
				hash, err := mail.HashPassword(password)
				if err != nil {
					return err
				}
				if err := store.PutUser(ctx, db.User{Email: email, PasswordHash: hash, CreatedAt: time.Now().UTC()}); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created %s\n", email)
				return nil
			})
		},
	}
	addOpts.addFlags(addCmd)

	// user passwd
	var passwdOpts passwordOptions
	passwdCmd := &cobra.Command{
		Use:   "passwd <email>",
		Short: "Change a user's password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := passwdOpts.resolve(cmd.InOrStdin())
			if err != nil {
				return err
			}
			return run(cmd, func(ctx context.Context, store db.Store) error {
				user, err := store.GetUser(ctx, args[0])
				if err != nil {
					return err
				}
				hash, err := mail.HashPassword(password)
				if err != nil {
					return err
				}
				user.PasswordHash = hash
				if err := store.PutUser(ctx, *user); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "updated %s\n", user.Email)
				return nil
			})
		},
	}
	passwdOpts.addFlags(passwdCmd)

	// user list
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, store db.Store) error {
				users, err := store.ListUsers(ctx)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "EMAIL\tCREATED")
				for _, u := range users {
					created := "-"
					if !u.CreatedAt.IsZero() {
						created = u.CreatedAt.UTC().Format(time.RFC3339)
					}
					fmt.Fprintf(w, "%s\t%s\n", u.Email, created)
				}
				return w.Flush()
			})
		},
	}

	// user delete
	deleteCmd := &cobra.Command{
		Use:     "delete <email>",
		Aliases: []string{"rm"},
		Short:   "Remove a user",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, store db.Store) error {
				if err := store.DeleteUser(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", db.NormalizeEmail(args[0]))
				return nil
			})
		},
	}

	userCmd.AddCommand(addCmd, passwdCmd, listCmd, deleteCmd)
	return userCmd
}
