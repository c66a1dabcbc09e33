package migrations

import "github.com/jmoiron/sqlx"

func init() {
	m.addMigration(&migration{
		version: "20260301090500",
		up:      mig_20260301090500_workspaces_up,
		down:    mig_20260301090500_workspaces_down,
	})
}

func mig_20260301090500_workspaces_up(tx *sqlx.Tx) error {
	_, err := tx.Exec(`
        CREATE TABLE IF NOT EXISTS workspaces (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            name VARCHAR(255) NOT NULL,
            description TEXT NOT NULL DEFAULT '',
            created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
        );
    `)
	if err != nil {
		return err
	}

	// workspace_id is NULL for global roles
	_, err = tx.Exec(`
        CREATE TABLE IF NOT EXISTS user_entity_roles (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            user_id UUID NOT NULL,
            workspace_id UUID,
            rolename VARCHAR(64) NOT NULL CHECK (rolename IN (
                'ROLE_GLOBAL_ADMIN', 'ROLE_EXAMINEE', 'ROLE_WORKSPACE_ADMIN', 'ROLE_EXAMINER', 'ROLE_REVIEWER'
            )),
            created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
            CONSTRAINT user_entity_roles_user_id_fkey FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
            CONSTRAINT user_entity_roles_workspace_id_fkey FOREIGN KEY (workspace_id) REFERENCES workspaces(id) ON DELETE CASCADE
        );
    `)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
        CREATE UNIQUE INDEX IF NOT EXISTS uq_user_entity_roles_workspace
        ON user_entity_roles(user_id, workspace_id, rolename)
        WHERE workspace_id IS NOT NULL;
    `)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
        CREATE UNIQUE INDEX IF NOT EXISTS uq_user_entity_roles_global
        ON user_entity_roles(user_id, rolename)
        WHERE workspace_id IS NULL;
    `)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
        CREATE INDEX IF NOT EXISTS idx_user_entity_roles_workspace ON user_entity_roles(workspace_id);
    `)
	return err
}

func mig_20260301090500_workspaces_down(tx *sqlx.Tx) error {
	_, err := tx.Exec(`DROP TABLE IF EXISTS user_entity_roles;`)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`DROP TABLE IF EXISTS workspaces;`)
	return err
}
