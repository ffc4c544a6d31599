package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/steeplehq/steeple/internal/auth"
	"github.com/steeplehq/steeple/internal/identity"
	"github.com/steeplehq/steeple/internal/notify"
)

func newAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage admin accounts",
		Long:  "Create and list the administrative accounts that sign in to the dashboard.",
	}

	cmd.AddCommand(newAdminCreateCmd())
	cmd.AddCommand(newAdminListCmd())
	cmd.AddCommand(newAdminInitCmd())

	return cmd
}

// openAuthService wires the auth service against the configured store for
// offline CLI use.
func openAuthService(ctx context.Context) (*auth.Service, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}

	logger := newLogger(cfg, false)
	idp := identity.NewLocal(store, jwtSecret(cfg), jwtExpiry(cfg))
	svc := auth.NewService(store, idp, notify.LogSender{Logger: logger}, 0, logger)
	return svc, func() { store.Close() }, nil
}

// promptPassword reads and confirms a password without echoing it.
func promptPassword() (string, error) {
	fmt.Print("Password: ")
	pwBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	fmt.Println()

	fmt.Print("Confirm password: ")
	confirmBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return "", fmt.Errorf("failed to read confirmation: %w", err)
	}
	fmt.Println()

	if string(pwBytes) != string(confirmBytes) {
		return "", fmt.Errorf("passwords do not match")
	}
	return string(pwBytes), nil
}

// ---------- admin create ----------

func newAdminCreateCmd() *cobra.Command {
	var (
		email    string
		password string
		name     string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new admin account",
		Example: `  steeple admin create --email admin@example.com --password secret123
  steeple admin create --email admin@example.com  # prompts for password`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdminCreate(cmd.Context(), email, password, name)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Admin email address (required)")
	cmd.Flags().StringVar(&password, "password", "", "Admin password (prompted if omitted)")
	cmd.Flags().StringVar(&name, "name", "", "Admin display name")
	cmd.MarkFlagRequired("email")

	return cmd
}

func runAdminCreate(ctx context.Context, email, password, name string) error {
	if !strings.Contains(email, "@") {
		return fmt.Errorf("invalid email address: %q", email)
	}

	if password == "" {
		var err error
		if password, err = promptPassword(); err != nil {
			return err
		}
	}
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters")
	}

	svc, closeStore, err := openAuthService(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	u, err := svc.CreateUser(ctx, email, password, name, "admin")
	if err != nil {
		return fmt.Errorf("create admin: %w", err)
	}

	fmt.Printf("Created admin account %q (id %s)\n", u.Email, u.ID)
	return nil
}

// ---------- admin list ----------

func newAdminListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdminList(cmd.Context(), jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runAdminList(ctx context.Context, jsonOutput bool) error {
	svc, closeStore, err := openAuthService(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	users, err := svc.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("list accounts: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(users)
	}

	if len(users) == 0 {
		fmt.Println("No accounts configured. Use 'steeple admin create' to create one.")
		return nil
	}

	fmt.Printf("%-30s %-24s %-12s\n", "EMAIL", "NAME", "ROLE")
	fmt.Printf("%-30s %-24s %-12s\n", "-----", "----", "----")
	for _, u := range users {
		fmt.Printf("%-30s %-24s %-12s\n", u.Email, u.Name, u.Role)
	}

	return nil
}

// ---------- admin init ----------

func newAdminInitCmd() *cobra.Command {
	var (
		email    string
		password string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create or re-key the super admin account",
		Long:  "Bootstrap the single super admin account. This is the only way to assign the super admin role.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdminInit(cmd.Context(), email, password)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Super admin email address (required)")
	cmd.Flags().StringVar(&password, "password", "", "Super admin password (prompted if omitted)")
	cmd.MarkFlagRequired("email")

	return cmd
}

func runAdminInit(ctx context.Context, email, password string) error {
	if !strings.Contains(email, "@") {
		return fmt.Errorf("invalid email address: %q", email)
	}

	if password == "" {
		var err error
		if password, err = promptPassword(); err != nil {
			return err
		}
	}
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters")
	}

	svc, closeStore, err := openAuthService(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	rec, existed, err := svc.InitDefaultAdmin(ctx, email, password)
	if err != nil {
		return fmt.Errorf("init super admin: %w", err)
	}

	if existed {
		fmt.Printf("Updated super admin account %q (id %s)\n", rec.Email, rec.ID)
	} else {
		fmt.Printf("Created super admin account %q (id %s)\n", rec.Email, rec.ID)
	}
	return nil
}
