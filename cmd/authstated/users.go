package main

import (
	"embed"
	"io"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-auth-state/store"
	"github.com/goliatone/go-auth-state/web"
	"github.com/goliatone/go-errors"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

//go:embed data/fixtures/*.yml
var fixturesFS embed.FS

const defaultFixture = "data/fixtures/users.yml"

func newUsersCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage users, roles and security stamps",
	}

	cmd.AddCommand(
		newUsersCreateCmd(app),
		newUsersSeedCmd(app),
		newUsersRolesCmd(app),
		newUsersRotateStampCmd(app),
		newUsersTokenCmd(app),
	)

	return cmd
}

func newUsersCreateCmd(app *App) *cobra.Command {
	msg := store.RegisterUserMessage{}

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a user",
		RunE: withPersistence(app, func(cmd *cobra.Command, args []string) error {
			user, err := store.NewRegisterUserHandler(app.repo).Register(cmd.Context(), msg)
			if err != nil {
				return err
			}
			pterm.Success.Printf("created %s (%s)\n", user.Username, user.ID)
			return nil
		}),
	}

	cmd.Flags().StringVar(&msg.Email, "email", "", "Email address")
	cmd.Flags().StringVar(&msg.Username, "username", "", "Username, defaults to the email local part")
	cmd.Flags().StringVar(&msg.FirstName, "first-name", "", "First name")
	cmd.Flags().StringVar(&msg.LastName, "last-name", "", "Last name")
	cmd.Flags().StringSliceVar(&msg.Roles, "role", nil, "Role, repeatable")
	cmd.Flags().BoolVar(&msg.UseHashid, "hashid", false, "Derive the id from the email")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func newUsersSeedCmd(app *App) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create or update users from a YAML fixture",
		RunE: withPersistence(app, func(cmd *cobra.Command, args []string) error {
			msg, err := loadSeed(file)
			if err != nil {
				return err
			}

			result, err := store.NewSeedUsersHandler(app.repo).Seed(cmd.Context(), msg)
			if err != nil {
				return err
			}

			pterm.Success.Printf("seeded users: %d created, %d updated\n", result.Created, result.Updated)
			return nil
		}),
	}

	cmd.Flags().StringVar(&file, "file", "", "Fixture file, the embedded fixture is used when empty")

	return cmd
}

func loadSeed(file string) (store.SeedUsersMessage, error) {
	msg := store.SeedUsersMessage{}

	var (
		r   io.ReadCloser
		err error
	)
	if file == "" {
		r, err = fixturesFS.Open(defaultFixture)
	} else {
		r, err = os.Open(file)
	}
	if err != nil {
		return msg, errors.Wrap(err, errors.CategoryBadInput, "unable to open fixture").
			WithMetadata(map[string]any{"file": file})
	}
	defer r.Close()

	if err := yaml.NewDecoder(r).Decode(&msg); err != nil {
		return msg, errors.Wrap(err, errors.CategoryBadInput, "unable to parse fixture").
			WithMetadata(map[string]any{"file": file})
	}

	return msg, nil
}

func newUsersRolesCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "roles <identifier> [role...]",
		Short: "Replace the roles of a user, no roles clears them",
		Args:  cobra.MinimumNArgs(1),
		RunE: withPersistence(app, func(cmd *cobra.Command, args []string) error {
			err := store.NewSetRolesHandler(app.repo).Execute(cmd.Context(), store.SetRolesMessage{
				Identifier: args[0],
				Roles:      args[1:],
			})
			if err != nil {
				return err
			}
			pterm.Success.Printf("roles updated for %s\n", args[0])
			return nil
		}),
	}
}

func newUsersRotateStampCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "rotate-stamp <identifier>",
		Short: "Issue a new security stamp, signing out existing sessions",
		Args:  cobra.ExactArgs(1),
		RunE: withPersistence(app, func(cmd *cobra.Command, args []string) error {
			stamp, err := store.NewRotateSecurityStampHandler(app.repo).Rotate(cmd.Context(), store.RotateSecurityStampMessage{
				Identifier: args[0],
			})
			if err != nil {
				return err
			}
			pterm.Success.Printf("security stamp rotated for %s: %s\n", args[0], stamp)
			return nil
		}),
	}
}

func newUsersTokenCmd(app *App) *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token <identifier>",
		Short: "Mint a development session token for a user",
		Args:  cobra.ExactArgs(1),
		RunE: withPersistence(app, func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			session := app.Config().GetSession()
			if session.GetSigningKey() == "" {
				return errors.New("token minting needs session.signing_key", errors.CategoryBadInput)
			}

			user, err := app.repo.Users().GetByIdentifier(ctx, args[0])
			if err != nil {
				return err
			}

			roles, err := app.repo.Users().RolesTx(ctx, app.bunDB, user.ID)
			if err != nil {
				return err
			}

			token, err := mintSessionToken(session, user, roles, ttl, time.Now())
			if err != nil {
				return err
			}

			pterm.Println(token)
			return nil
		}),
	}

	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")

	return cmd
}

func mintSessionToken(cfg web.Config, user *store.User, roles []string, ttl time.Duration, now time.Time) (string, error) {
	claims := web.SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			Issuer:    cfg.GetIssuer(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Name:          user.Username,
		Email:         user.Email,
		SecurityStamp: user.SecurityStamp,
		Roles:         roles,
	}

	method := jwt.GetSigningMethod(cfg.GetSigningMethod())
	if method == nil {
		return "", errors.New("unknown signing method", errors.CategoryBadInput).
			WithMetadata(map[string]any{"method": cfg.GetSigningMethod()})
	}

	token, err := jwt.NewWithClaims(method, &claims).SignedString([]byte(cfg.GetSigningKey()))
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "unable to sign session token")
	}
	return token, nil
}
