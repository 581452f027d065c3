package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/docstore/internal/identity"
	"github.com/dropDatabas3/docstore/internal/jwt"
	"github.com/dropDatabas3/docstore/internal/observability/logger"
)

// resultErr convierte un Result fallido en error para cobra.
func resultErr(res identity.Result) error {
	if res.Succeeded {
		return nil
	}
	return errors.New(res.String())
}

func pingCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Verifica la conexión con el storage (y el cache, si hay)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.conn.Ping(ctx); err != nil {
				return err
			}
			if a.cache != nil {
				if err := a.cache.Ping(ctx); err != nil {
					return fmt.Errorf("cache: %w", err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok driver=%s\n", a.conn.Name())
			return nil
		},
	}
}

func ensureIndexesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ensure-indexes",
		Short: "Crea los índices de las colecciones de usuarios y roles",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.users().EnsureIndexes(ctx); err != nil {
				return fmt.Errorf("users: %w", err)
			}
			if err := a.roles().EnsureIndexes(ctx); err != nil {
				return fmt.Errorf("roles: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
}

func roleCmd(a *app) *cobra.Command {
	root := &cobra.Command{Use: "role", Short: "Administración de roles"}

	create := &cobra.Command{
		Use:   "create NAME",
		Short: "Crea un rol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r := &identity.Role{Name: args[0]}
			res, err := a.roles().Create(cmd.Context(), r)
			if err != nil {
				return err
			}
			if err := resultErr(res); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", r.IDHex(), r.Name)
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "Lista los roles ordenados por nombre",
		RunE: func(cmd *cobra.Command, args []string) error {
			roles, err := a.roles().List(cmd.Context())
			if err != nil {
				return err
			}
			for _, r := range roles {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", r.IDHex(), r.Name, r.NormalizedName)
			}
			return nil
		},
	}

	del := &cobra.Command{
		Use:   "delete NAME",
		Short: "Borra un rol por nombre",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			r, err := a.roles().FindByName(ctx, args[0])
			if err != nil {
				return err
			}
			if r == nil {
				return fmt.Errorf("role %q not found", args[0])
			}
			res, err := a.roles().Delete(ctx, r)
			if err != nil {
				return err
			}
			return resultErr(res)
		},
	}

	root.AddCommand(create, list, del)
	return root
}

func userCmd(a *app) *cobra.Command {
	root := &cobra.Command{Use: "user", Short: "Administración de usuarios"}

	var email, userName, firstName, lastName, pass string
	create := &cobra.Command{
		Use:   "create",
		Short: "Crea un usuario (opcionalmente con contraseña)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			u := &identity.User{Email: email, UserName: userName, FirstName: firstName, LastName: lastName}
			res, err := a.users().Create(ctx, u)
			if err != nil {
				return err
			}
			if err := resultErr(res); err != nil {
				return err
			}
			if pass != "" {
				if err := a.users().SetPassword(ctx, u, pass); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", u.IDHex(), u.Email)
			return nil
		},
	}
	create.Flags().StringVar(&email, "email", "", "email (requerido)")
	create.Flags().StringVar(&userName, "username", "", "nombre de usuario (default: email)")
	create.Flags().StringVar(&firstName, "first-name", "", "nombre")
	create.Flags().StringVar(&lastName, "last-name", "", "apellido")
	create.Flags().StringVar(&pass, "password", "", "contraseña inicial")
	_ = create.MarkFlagRequired("email")

	addRole := &cobra.Command{
		Use:   "add-role EMAIL ROLE",
		Short: "Asigna un rol existente al usuario",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			u, err := findUser(cmd, a, args[0])
			if err != nil {
				return err
			}
			r, err := a.roles().FindByName(ctx, args[1])
			if err != nil {
				return err
			}
			if r == nil {
				return fmt.Errorf("role %q not found", args[1])
			}
			return a.users().AddToRole(ctx, u, r.Name)
		},
	}

	removeRole := &cobra.Command{
		Use:   "remove-role EMAIL ROLE",
		Short: "Quita un rol al usuario",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := findUser(cmd, a, args[0])
			if err != nil {
				return err
			}
			return a.users().RemoveFromRole(cmd.Context(), u, args[1])
		},
	}

	roles := &cobra.Command{
		Use:   "roles EMAIL",
		Short: "Lista los roles del usuario",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := findUser(cmd, a, args[0])
			if err != nil {
				return err
			}
			names, err := a.users().GetRoles(cmd.Context(), u)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(names, "\n"))
			return nil
		},
	}

	var lifetime time.Duration
	token := &cobra.Command{
		Use:   "token EMAIL PASSWORD",
		Short: "Verifica la contraseña y emite un access token JWT (usuarios no bloqueados)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if lifetime <= 0 {
				lifetime = a.cfg.JWTLifetime()
			}
			iss, err := jwt.NewIssuer(jwt.Config{
				Issuer:   a.cfg.JWT.Issuer,
				Audience: a.cfg.JWT.Audience,
				Key:      a.cfg.JWT.Key,
				Lifetime: lifetime,
			})
			if err != nil {
				return err
			}
			tok, exp, err := issueToken(cmd.Context(), a.users(), iss, logger.Named("cli"), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", exp.Format(time.RFC3339))
			return nil
		},
	}
	token.Flags().DurationVar(&lifetime, "lifetime", 0, "TTL del token (default: jwt.lifetime)")

	root.AddCommand(create, addRole, removeRole, roles, token)
	return root
}

func findUser(cmd *cobra.Command, a *app, email string) (*identity.User, error) {
	u, err := a.users().FindByEmail(cmd.Context(), email)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, fmt.Errorf("user %q not found", email)
	}
	return u, nil
}
