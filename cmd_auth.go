package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/arunshreyas/Marketa/internal/domain"
	"github.com/arunshreyas/Marketa/internal/oauth"
	"github.com/arunshreyas/Marketa/internal/session"
)

const oauthWait = 5 * time.Minute

func (a *app) signupCmd() *cobra.Command {
	var req domain.SignupRequest
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account and sign in",
		Long: `Creates a Marketa account. The password is read from stdin when
--password is not given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.services(ctx); err != nil {
				return err
			}
			if req.Password == "" {
				req.Password = readLine(cmd.InOrStdin())
			}
			if err := a.validator.Signup(ctx, req); err != nil {
				return err
			}
			resp, err := a.client.Signup(ctx, req)
			if err != nil {
				return err
			}
			return a.startSession(cmd, &domain.Session{Token: resp.Token, User: resp.User})
		},
	}
	cmd.Flags().StringVar(&req.Username, "username", "", "Username")
	cmd.Flags().StringVar(&req.Name, "name", "", "Full name")
	cmd.Flags().StringVar(&req.Email, "email", "", "Email address")
	cmd.Flags().StringVar(&req.Password, "password", "", "Password (read from stdin when empty)")
	return cmd
}

func (a *app) loginCmd() *cobra.Command {
	var (
		req         domain.LoginRequest
		provider    string
		callbackURL string
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password or an identity provider",
		Long: `Signs in with email and password, or through Google, GitHub or Discord.

With --provider a local listener receives the browser redirect. When the
browser runs on another machine, open the printed URL there and pass the
address it lands on with --callback-url.

Example:
  marketa login --email ana@example.com
  marketa login --provider github`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.services(ctx); err != nil {
				return err
			}
			switch {
			case callbackURL != "":
				sess, _, err := session.FromCallbackURL(callbackURL)
				if err != nil {
					return err
				}
				return a.startSession(cmd, sess)
			case provider != "":
				return a.oauthLogin(cmd, domain.OAuthProvider(strings.ToLower(provider)))
			}

			if req.Password == "" {
				req.Password = readLine(cmd.InOrStdin())
			}
			if err := a.validator.Login(ctx, req); err != nil {
				return err
			}
			resp, err := a.client.Login(ctx, req)
			if err != nil {
				return err
			}
			return a.startSession(cmd, &domain.Session{Token: resp.Token, User: resp.User})
		},
	}
	cmd.Flags().StringVar(&req.Email, "email", "", "Email address")
	cmd.Flags().StringVar(&req.Password, "password", "", "Password (read from stdin when empty)")
	cmd.Flags().StringVar(&provider, "provider", "", "Identity provider: google, github or discord")
	cmd.Flags().StringVar(&callbackURL, "callback-url", "", "Finish a provider sign-in with the URL the browser landed on")
	return cmd
}

func (a *app) oauthLogin(cmd *cobra.Command, provider domain.OAuthProvider) error {
	start, err := a.client.OAuthURL(provider)
	if err != nil {
		return err
	}
	l, err := oauth.Listen(fmt.Sprintf("127.0.0.1:%d", a.cfg.OAuthCallbackPort), a.logger)
	if err != nil {
		return err
	}
	defer l.Close()

	target, err := l.AuthorizeURL(start)
	if err != nil {
		return err
	}
	printf(cmd.OutOrStdout(), "Open this address in your browser to continue:\n\n  %s\n\nWaiting for the sign-in to finish...\n", target)

	ctx, cancel := context.WithTimeout(cmd.Context(), oauthWait)
	defer cancel()
	ctx, stop := signalContext(ctx)
	defer stop()

	sess, err := l.Wait(ctx)
	if err != nil {
		return fmt.Errorf("sign-in did not complete: %w", err)
	}
	return a.startSession(cmd, sess)
}

// startSession stores sess and refreshes the cached profile.
func (a *app) startSession(cmd *cobra.Command, sess *domain.Session) error {
	ctx := cmd.Context()
	if err := a.sessions.Login(ctx, sess); err != nil {
		return err
	}
	if user, err := a.client.Me(ctx); err == nil {
		if err := a.sessions.SetUser(ctx, user); err != nil {
			a.logger.Warn("failed to cache profile", zap.Error(err))
		}
	} else {
		a.logger.Debug("failed to refresh profile", zap.Error(err))
	}
	cur := a.sessions.Current()
	if cur == nil {
		return session.ErrNotSignedIn
	}
	printf(cmd.OutOrStdout(), "Signed in as %s\n", displayName(cur.User))
	return nil
}

func (a *app) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.services(cmd.Context()); err != nil {
				return err
			}
			if err := a.sessions.Logout(cmd.Context()); err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "Signed out\n")
			return nil
		},
	}
}

func (a *app) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.services(ctx); err != nil {
				return err
			}
			if _, err := a.requireUser(); err != nil {
				return err
			}
			user, err := a.client.Me(ctx)
			if err != nil {
				return err
			}
			if err := a.sessions.SetUser(ctx, user); err != nil {
				a.logger.Warn("failed to cache profile", zap.Error(err))
			}
			printUser(cmd.OutOrStdout(), user)
			return nil
		},
	}
}

func printUser(w io.Writer, u *domain.User) {
	printf(w, "%s\n", displayName(u))
	printf(w, "  id:       %s\n", u.ID)
	printf(w, "  username: %s\n", u.Username)
	printf(w, "  email:    %s\n", u.Email)
	if u.ProfilePicture != "" {
		printf(w, "  picture:  %s\n", u.ProfilePicture)
	}
	if bp := u.BusinessProfile; bp != nil {
		printf(w, "  industry: %s\n  audience: %s\n  goals:    %s\n", bp.Industry, bp.TargetAudience, bp.MarketingGoals)
	}
	if u.HasBrand {
		printf(w, "  brand:    set up\n")
	}
}

func displayName(u *domain.User) string {
	switch {
	case u == nil:
		return "unknown user"
	case u.Name != "" && u.Email != "":
		return fmt.Sprintf("%s <%s>", u.Name, u.Email)
	case u.Email != "":
		return u.Email
	case u.Name != "":
		return u.Name
	}
	return u.ID
}

func readLine(r io.Reader) string {
	line, _ := bufio.NewReader(r).ReadString('\n')
	return strings.TrimRight(line, "\r\n")
}
