package main

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"holidaze/internal/app/account"
	"holidaze/internal/app/storage"
	"holidaze/internal/pkg/errs"
)

var (
	profileBio       string
	profileAvatar    string
	profileAvatarAlt string
	profileBanner    string
	profileBannerAlt string
	profileManager   bool

	uploadBanner bool
	uploadAlt    string
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Show or edit your profile",
}

var profileShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show your profile with the images clients display",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			snap, err := a.account.RequireAuthenticated()
			if err != nil {
				return err
			}
			appearance, err := a.account.Appearance(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"profile":    snap.User,
				"appearance": appearance,
				"favorites":  a.account.Favorites.List(),
			})
		})
	},
}

var profileUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Edit your bio, images or role",
	RunE: func(cmd *cobra.Command, args []string) error {
		in := account.ProfileUpdate{
			AvatarURL: profileAvatar,
			AvatarAlt: profileAvatarAlt,
			BannerURL: profileBanner,
			BannerAlt: profileBannerAlt,
		}
		if cmd.Flags().Changed("bio") {
			in.Bio = &profileBio
		}
		if cmd.Flags().Changed("venue-manager") {
			in.VenueManager = &profileManager
		}

		return withApp(cmd.Context(), func(a *app) error {
			profile, err := a.account.UpdateProfile(cmd.Context(), in)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), profile)
		})
	},
}

var avatarCmd = &cobra.Command{
	Use:   "avatar",
	Short: "Manage profile images",
}

var avatarUploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload an image and use it as your avatar (or banner)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		path := args[0]

		media, err := storage.NewStorageService(ctx, cfg.Storage)
		if err != nil {
			return err
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return err
		}
		mime, ok := storage.MIMEFor(path)
		if !ok {
			return errs.NewError(errs.ErrFileTypeInvalid)
		}

		kind := storage.KindAvatar
		if uploadBanner {
			kind = storage.KindBanner
		}

		return withApp(ctx, func(a *app) error {
			snap, err := a.account.RequireAuthenticated()
			if err != nil {
				return err
			}

			upload, err := media.PresignImage(ctx, snap.Handle(), storage.UploadRequest{
				Kind:     kind,
				FileName: filepath.Base(path),
				MimeType: mime,
				Size:     info.Size(),
			})
			if err != nil {
				return err
			}

			if err := storage.Put(ctx, &http.Client{Timeout: cfg.API.Timeout}, upload.URL, mime, f, info.Size()); err != nil {
				return err
			}

			url, err := media.Confirm(ctx, snap.Handle(), upload.Key)
			if err != nil {
				return err
			}

			update := account.ProfileUpdate{AvatarURL: url, AvatarAlt: uploadAlt}
			if kind == storage.KindBanner {
				update = account.ProfileUpdate{BannerURL: url, BannerAlt: uploadAlt}
			}
			if _, err := a.account.UpdateProfile(ctx, update); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %s: %s\n", kind, url)
			return nil
		})
	},
}

func init() {
	f := profileUpdateCmd.Flags()
	f.StringVar(&profileBio, "bio", "", "new bio")
	f.StringVar(&profileAvatar, "avatar", "", "avatar image URL")
	f.StringVar(&profileAvatarAlt, "avatar-alt", "", "avatar alt text")
	f.StringVar(&profileBanner, "banner", "", "banner image URL")
	f.StringVar(&profileBannerAlt, "banner-alt", "", "banner alt text")
	f.BoolVar(&profileManager, "venue-manager", false, "act as a venue manager")

	avatarUploadCmd.Flags().BoolVar(&uploadBanner, "banner", false, "use the image as the banner instead")
	avatarUploadCmd.Flags().StringVar(&uploadAlt, "alt", "", "alt text")

	profileCmd.AddCommand(profileShowCmd, profileUpdateCmd)
	avatarCmd.AddCommand(avatarUploadCmd)
	rootCmd.AddCommand(profileCmd, avatarCmd)
}
