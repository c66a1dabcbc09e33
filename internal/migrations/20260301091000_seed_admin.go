package migrations

import (
	"fmt"

	"github.com/curaious/xm/internal/config"
	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	m.addMigration(&migration{
		version: "20260301091000",
		up:      mig_20260301091000_seed_admin_up,
		down:    mig_20260301091000_seed_admin_down,
	})
}

// Seeds a global admin so the first workspaces can be created
func mig_20260301091000_seed_admin_up(tx *sqlx.Tx) error {
	email := config.GetEnvOrDefault("ADMIN_EMAIL", "admin@admin.com")
	password := config.GetEnvOrDefault("ADMIN_PASSWORD", "admin")

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash default password: %w", err)
	}

	_, err = tx.Exec(`
        INSERT INTO users (name, email, password_hash, password_auth_enabled)
        VALUES ($1, $2, $3, TRUE)
        ON CONFLICT (email) DO NOTHING;
    `, "Global Admin", email, string(hashedPassword))
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
        INSERT INTO user_entity_roles (user_id, workspace_id, rolename)
        SELECT id, NULL, 'ROLE_GLOBAL_ADMIN' FROM users WHERE email = $1
        ON CONFLICT DO NOTHING;
    `, email)
	return err
}

func mig_20260301091000_seed_admin_down(tx *sqlx.Tx) error {
	email := config.GetEnvOrDefault("ADMIN_EMAIL", "admin@admin.com")
	_, err := tx.Exec(`DELETE FROM users WHERE email = $1;`, email)
	return err
}
