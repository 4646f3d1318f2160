package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/stemsi/shikkha-backend/internal/database"
	"github.com/stemsi/shikkha-backend/internal/model"
	"github.com/stemsi/shikkha-backend/internal/repository"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"
)

const minPasswordLength = 6

func newCreateUserCmd(e *env) *cobra.Command {
	var name, email, role string

	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Create an account of any role, including admin",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := parseRole(role)
			if err != nil {
				return err
			}
			name = strings.TrimSpace(name)
			email = strings.TrimSpace(email)
			if name == "" || email == "" {
				return fmt.Errorf("--name and --email are required")
			}

			password, err := readPassword(cmd.InOrStdin(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			hash, err := bcrypt.GenerateFromPassword([]byte(password), e.cfg.BcryptCost)
			if err != nil {
				return fmt.Errorf("hash password: %w", err)
			}

			ctx := cmd.Context()
			pool, err := database.NewPostgresPool(ctx, e.cfg, e.log)
			if err != nil {
				return err
			}
			defer pool.Close()

			u := &model.User{Name: name, Email: email, Role: r, PasswordHash: string(hash)}
			if err := repository.NewUserRepository(pool).Create(ctx, u); err != nil {
				return fmt.Errorf("create user: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s %q <%s> with ID %s\n", u.Role, u.Name, u.Email, u.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&email, "email", "", "login email")
	cmd.Flags().StringVar(&role, "role", string(model.RoleAdmin), "student, teacher or admin")
	return cmd
}

func newResetPasswordCmd(e *env) *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "reset-password",
		Short: "Replace an account's password",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, err := database.NewPostgresPool(ctx, e.cfg, e.log)
			if err != nil {
				return err
			}
			defer pool.Close()

			users := repository.NewUserRepository(pool)
			u, err := users.GetByEmail(ctx, strings.TrimSpace(email))
			if err != nil {
				return fmt.Errorf("find %s: %w", email, err)
			}

			password, err := readPassword(cmd.InOrStdin(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			hash, err := bcrypt.GenerateFromPassword([]byte(password), e.cfg.BcryptCost)
			if err != nil {
				return fmt.Errorf("hash password: %w", err)
			}
			if err := users.UpdatePassword(ctx, u.ID, string(hash)); err != nil {
				return fmt.Errorf("update password: %w", err)
			}
			e.log.Info().Str("user_id", u.ID.String()).Msg("Password replaced")
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "login email")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func parseRole(s string) (model.Role, error) {
	switch r := model.Role(strings.ToLower(strings.TrimSpace(s))); r {
	case model.RoleStudent, model.RoleTeacher, model.RoleAdmin:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// readPassword prompts without echo on a terminal and reads one line otherwise,
// so the command also works in scripts.
func readPassword(in io.Reader, prompt io.Writer) (string, error) {
	var password string
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(prompt, "Password: ")
		raw, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		password = string(raw)
	} else {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && err != io.EOF {
			return "", fmt.Errorf("read password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}

	if len(password) < minPasswordLength {
		return "", fmt.Errorf("password must be at least %d characters", minPasswordLength)
	}
	return password, nil
}
