package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func loginCmd(a *app) *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "login <school-id>",
		Short: "Sign in and store the credential pair",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv("PAMANA_PASSWORD")
			}
			if password == "" {
				return errors.New("password required (--password or PAMANA_PASSWORD)")
			}
			if err := a.gw.Login(cmd.Context(), args[0], password); err != nil {
				return err
			}
			role, _ := a.session.Role(cmd.Context())
			a.printf("signed in as %s (%s)\n", args[0], role)
			return nil
		},
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "Account password")
	return cmd
}

func logoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.gw.Logout(cmd.Context()); err != nil {
				return err
			}
			a.printf("signed out\n")
			return nil
		},
	}
}

func whoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the current session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			claims, ok := a.session.Claims(cmd.Context())
			if !ok {
				a.printf("not signed in\n")
				return nil
			}
			exp, _ := claims.Expiry()
			course := claims.Course
			if course == "" {
				course = "-"
			}
			w := a.table()
			defer w.Flush()
			fmt.Fprintf(w, "school id\t%s\n", claims.SchoolID)
			fmt.Fprintf(w, "role\t%s\n", claims.ResolvedRole())
			fmt.Fprintf(w, "course\t%s\n", course)
			fmt.Fprintf(w, "expires\t%s\n", since(exp))
			return nil
		},
	}
}
