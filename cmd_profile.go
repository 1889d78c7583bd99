package main

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/arunshreyas/Marketa/internal/domain"
)

func (a *app) profileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage your profile",
	}
	cmd.AddCommand(a.profileUpdateCmd(), a.pictureCmd())
	return cmd
}

func (a *app) profileUpdateCmd() *cobra.Command {
	var (
		update   domain.ProfileUpdate
		business domain.BusinessProfile
	)
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Change profile fields; unset flags keep their current value",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.services(ctx); err != nil {
				return err
			}
			userID, err := a.requireUser()
			if err != nil {
				return err
			}
			current, err := a.client.Me(ctx)
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			next := domain.ProfileUpdate{
				Name:            pick(flags.Changed("name"), update.Name, current.Name),
				Username:        pick(flags.Changed("username"), update.Username, current.Username),
				Email:           pick(flags.Changed("email"), update.Email, current.Email),
				BusinessProfile: current.BusinessProfile,
			}
			if flags.Changed("industry") || flags.Changed("audience") || flags.Changed("goals") {
				bp := domain.BusinessProfile{}
				if current.BusinessProfile != nil {
					bp = *current.BusinessProfile
				}
				bp.Industry = pick(flags.Changed("industry"), business.Industry, bp.Industry)
				bp.TargetAudience = pick(flags.Changed("audience"), business.TargetAudience, bp.TargetAudience)
				bp.MarketingGoals = pick(flags.Changed("goals"), business.MarketingGoals, bp.MarketingGoals)
				next.BusinessProfile = &bp
			}

			if err := a.validator.Profile(ctx, next); err != nil {
				return err
			}
			user, err := a.client.UpdateUser(ctx, userID, next)
			if err != nil {
				return err
			}
			a.cacheUser(cmd, user)
			printf(cmd.OutOrStdout(), "Profile updated successfully!\n")
			printUser(cmd.OutOrStdout(), user)
			return nil
		},
	}
	cmd.Flags().StringVar(&update.Name, "name", "", "Full name")
	cmd.Flags().StringVar(&update.Username, "username", "", "Username")
	cmd.Flags().StringVar(&update.Email, "email", "", "Email address")
	cmd.Flags().StringVar(&business.Industry, "industry", "", "Business industry")
	cmd.Flags().StringVar(&business.TargetAudience, "audience", "", "Target audience")
	cmd.Flags().StringVar(&business.MarketingGoals, "goals", "", "Marketing goals")
	return cmd
}

func (a *app) pictureCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "picture",
		Short: "Upload or remove your profile picture",
	}

	upload := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a JPEG, PNG, GIF or WebP image up to 5MB",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.services(ctx); err != nil {
				return err
			}
			userID, err := a.requireUser()
			if err != nil {
				return err
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			info, err := f.Stat()
			if err != nil {
				return err
			}
			contentType, err := detectContentType(f, args[0])
			if err != nil {
				return err
			}
			if err := a.validator.ProfilePicture(ctx, contentType, info.Size()); err != nil {
				return err
			}

			user, err := a.client.UploadProfilePicture(ctx, userID, filepath.Base(args[0]), contentType, f)
			if err != nil {
				return err
			}
			a.cacheUser(cmd, user)
			printf(cmd.OutOrStdout(), "Profile picture updated successfully!\n")
			if user.ProfilePicture != "" {
				printf(cmd.OutOrStdout(), "%s\n", user.ProfilePicture)
			}
			return nil
		},
	}

	remove := &cobra.Command{
		Use:   "delete",
		Short: "Remove your profile picture",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.services(ctx); err != nil {
				return err
			}
			userID, err := a.requireUser()
			if err != nil {
				return err
			}
			if err := a.client.DeleteProfilePicture(ctx, userID); err != nil {
				return err
			}
			if cur := a.sessions.Current(); cur != nil && cur.User != nil {
				user := *cur.User
				user.ProfilePicture = ""
				a.cacheUser(cmd, &user)
			}
			printf(cmd.OutOrStdout(), "Profile picture removed\n")
			return nil
		},
	}

	cmd.AddCommand(upload, remove)
	return cmd
}

// detectContentType sniffs the first bytes of f, falling back to the file
// extension, and rewinds f.
func detectContentType(f *os.File, name string) (string, error) {
	head := make([]byte, 512)
	n, err := f.Read(head)
	if err != nil && n == 0 {
		return "", fmt.Errorf("read %s: %w", name, err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	contentType := http.DetectContentType(head[:n])
	if contentType == "application/octet-stream" {
		if byExt := mime.TypeByExtension(filepath.Ext(name)); byExt != "" {
			contentType = byExt
		}
	}
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		contentType = mediaType
	}
	return contentType, nil
}

func (a *app) cacheUser(cmd *cobra.Command, user *domain.User) {
	if err := a.sessions.SetUser(cmd.Context(), user); err != nil {
		a.logger.Warn("failed to cache profile", zap.Error(err))
	}
}

func pick(changed bool, flag, current string) string {
	if changed {
		return flag
	}
	return current
}

func (a *app) brandCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "brand",
		Short: "Show or set up your brand",
	}

	get := &cobra.Command{
		Use:   "get",
		Short: "Show your brand",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.services(ctx); err != nil {
				return err
			}
			brand, err := a.client.GetBrand(ctx)
			if err != nil {
				return err
			}
			printBrand(cmd, brand)
			return nil
		},
	}

	var brand domain.Brand
	set := &cobra.Command{
		Use:   "set",
		Short: "Describe your brand for the assistant",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.services(ctx); err != nil {
				return err
			}
			if err := a.validator.Brand(ctx, brand); err != nil {
				return err
			}
			saved, err := a.client.SaveBrand(ctx, brand)
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "Brand saved\n")
			printBrand(cmd, saved)
			return nil
		},
	}
	set.Flags().StringVar(&brand.BrandName, "name", "", "Brand name")
	set.Flags().StringVar(&brand.ProductDescription, "description", "", "What you sell")
	set.Flags().StringVar(&brand.TargetAudience, "audience", "", "Who you sell to")
	set.Flags().StringVar(&brand.BrandTone, "tone", "", "Brand tone, e.g. playful or formal")

	cmd.AddCommand(get, set)
	return cmd
}

func printBrand(cmd *cobra.Command, b *domain.Brand) {
	w := cmd.OutOrStdout()
	printf(w, "%s\n", b.BrandName)
	printf(w, "  product:  %s\n", b.ProductDescription)
	printf(w, "  audience: %s\n", b.TargetAudience)
	if b.BrandTone != "" {
		printf(w, "  tone:     %s\n", b.BrandTone)
	}
}
