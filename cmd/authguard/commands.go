package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/MrEthical07/authguard"
	"github.com/MrEthical07/authguard/route"
	"github.com/MrEthical07/authguard/session"
)

var errSessionExpired = errors.New("session expired; run login again")

type loginOptions struct {
	identifier    string
	password      string
	passwordStdin bool
	totp          string
}

func newLoginCmd(deps Deps) *cobra.Command {
	opts := &loginOptions{}

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and persist the session",
		Long: `Sign in against the authentication service. The resulting session is
persisted so later commands reuse it until it expires or you log out.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLogin(cmd, deps, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.identifier, "identifier", "u", "", "user name or email")
	cmd.Flags().StringVar(&opts.password, "password", "", "password (prefer --password-stdin)")
	cmd.Flags().BoolVar(&opts.passwordStdin, "password-stdin", false, "read the password from stdin")
	cmd.Flags().StringVar(&opts.totp, "totp", "", "one-time code, when the account requires one")
	_ = cmd.MarkFlagRequired("identifier")

	return cmd
}

func runLogin(cmd *cobra.Command, deps Deps, opts *loginOptions) error {
	password := opts.password
	if opts.passwordStdin {
		line, err := readLine(cmd.InOrStdin())
		if err != nil {
			return oops.Code("INPUT_FAILED").Wrap(err)
		}
		password = line
	}
	if password == "" {
		return oops.Code("INPUT_INVALID").Errorf("password required; use --password-stdin")
	}

	a, err := openApp(cmd.Context(), cmd, deps)
	if err != nil {
		return err
	}
	defer a.Close()

	snap, err := a.store.Login(cmd.Context(), authguard.Credentials{
		Identifier: opts.identifier,
		Password:   password,
		TOTPCode:   opts.totp,
	})
	switch {
	case errors.Is(err, authguard.ErrAlreadyAuthenticated):
		current := a.store.CurrentSession()
		return oops.Code("ALREADY_SIGNED_IN").
			With("user", current.User.ID).
			Errorf("already signed in as %s; run logout first", displayName(current.User))
	case err != nil:
		return oops.Code("LOGIN_FAILED").With("identifier", opts.identifier).Wrap(err)
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "signed in as %s (expires %s)\n", displayName(snap.User), formatExpiry(snap.ExpiresAt))
	return nil
}

func newLogoutCmd(deps Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and clear the persisted session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), cmd, deps)
			if err != nil {
				return err
			}
			defer a.Close()

			previous := a.store.CurrentSession()
			if err := a.store.Logout(cmd.Context()); err != nil {
				return oops.Code("LOGOUT_FAILED").Wrap(err)
			}
			if previous.Authenticated() {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "signed out %s\n", displayName(previous.User))
				return nil
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "not signed in")
			return nil
		},
	}
}

type statusOutput struct {
	Status     string     `json:"status"`
	UserID     string     `json:"user_id,omitempty"`
	Name       string     `json:"name,omitempty"`
	Roles      []string   `json:"roles,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	Previous   string     `json:"previous_user_id,omitempty"`
	InstanceID string     `json:"instance_id"`
}

func newStatusCmd(deps Deps) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the persisted session",
		Long:  `Show the session restored from persistence: status, user and expiry.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), cmd, deps)
			if err != nil {
				return err
			}
			defer a.Close()

			snap := a.store.CurrentSession()
			out := statusOutput{
				Status:     snap.Status.String(),
				InstanceID: snap.InstanceID,
			}
			if snap.User != nil {
				out.UserID = snap.User.ID
				out.Name = snap.User.Name
				out.Roles = snap.User.Roles
			}
			if !snap.ExpiresAt.IsZero() {
				exp := snap.ExpiresAt.UTC()
				out.ExpiresAt = &exp
			}
			if snap.Previous != nil {
				out.Previous = snap.Previous.ID
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintf(w, "status:\t%s\n", out.Status)
			if snap.User != nil {
				_, _ = fmt.Fprintf(w, "user:\t%s\n", displayName(snap.User))
				if len(out.Roles) > 0 {
					_, _ = fmt.Fprintf(w, "roles:\t%s\n", strings.Join(out.Roles, ", "))
				}
				_, _ = fmt.Fprintf(w, "expires:\t%s\n", formatExpiry(snap.ExpiresAt))
			}
			if snap.Previous != nil {
				_, _ = fmt.Fprintf(w, "previous user:\t%s\n", displayName(snap.Previous))
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	return cmd
}

func newRefreshCmd(deps Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Renew the session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), cmd, deps)
			if err != nil {
				return err
			}
			defer a.Close()

			snap, err := a.store.Refresh(cmd.Context())
			if err != nil {
				if errors.Is(err, authguard.ErrNotAuthenticated) {
					return oops.Code("NOT_SIGNED_IN").Wrapf(err, "nothing to refresh")
				}
				return oops.Code("REFRESH_FAILED").Wrap(err)
			}
			if snap.Status == session.StatusExpired {
				return oops.Code("SESSION_EXPIRED").Wrap(errSessionExpired)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "token renewed (expires %s)\n", formatExpiry(snap.ExpiresAt))
			return nil
		},
	}
}

func newCheckCmd(deps Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "check <path>",
		Short: "Evaluate a navigation against the route table",
		Long: `Evaluate the route table for path with the persisted session and print
the decision: allow, redirect, defer or not_found.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), cmd, deps)
			if err != nil {
				return err
			}
			defer a.Close()

			table, err := a.cfg.table()
			if err != nil {
				return err
			}
			d := table.Evaluate(args[0], a.store.CurrentSession())
			a.logger.Debug("route evaluated", "path", d.Path, "decision", d.Kind.String())
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), formatDecision(d))
			return nil
		},
	}
}

func newRoutesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "routes",
		Short: "List the route table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadFromCommand(cmd)
			if err != nil {
				return err
			}
			table, err := cfg.table()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintf(w, "landing: %s\n", table.Landing())
			_, _ = fmt.Fprintln(w, "PATH\tACCESS\tREDIRECT")
			for _, spec := range table.Specs() {
				access := "public"
				switch {
				case spec.GuestOnly:
					access = "guest"
				case spec.RequiresAuth:
					access = "auth"
				}
				redirect := spec.RedirectOnFail
				if redirect == "" {
					redirect = "-"
				}
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", spec.Path, access, redirect)
			}
			return w.Flush()
		},
	}
}

func formatDecision(d route.Decision) string {
	switch d.Kind {
	case route.Redirect:
		if d.ReturnTo != "" {
			return fmt.Sprintf("redirect %s (return_to=%s)", d.Target, d.ReturnTo)
		}
		return "redirect " + d.Target
	case route.Allow, route.Defer:
		return d.Kind.String() + " " + d.Path
	default:
		return "not_found " + d.Path
	}
}

func displayName(id *session.Identity) string {
	switch {
	case id == nil:
		return "-"
	case id.Name != "":
		return fmt.Sprintf("%s <%s>", id.Name, id.ID)
	default:
		return id.ID
	}
}

func formatExpiry(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.UTC().Format(time.RFC3339)
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
