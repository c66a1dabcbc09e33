package migrations

import "github.com/jmoiron/sqlx"

func init() {
	m.addMigration(&migration{
		version: "20260301091500",
		up:      mig_20260301091500_pubsub_up,
		down:    mig_20260301091500_pubsub_down,
	})
}

func mig_20260301091500_pubsub_up(tx *sqlx.Tx) error {
	// Payload: table:operation:user_id:workspace_id
	_, err := tx.Exec(`
		CREATE OR REPLACE FUNCTION notify_role_change()
		RETURNS TRIGGER AS $$
		DECLARE
			rec RECORD;
			payload TEXT;
		BEGIN
			IF TG_OP = 'DELETE' THEN
				rec := OLD;
			ELSE
				rec := NEW;
			END IF;
			payload := TG_TABLE_NAME || ':' || TG_OP || ':' || rec.user_id::text || ':' || COALESCE(rec.workspace_id::text, '');
			PERFORM pg_notify('workspace_changes', payload);
			RETURN rec;
		END;
		$$ LANGUAGE plpgsql;
	`)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
		CREATE TRIGGER user_entity_roles_notify
		AFTER INSERT OR UPDATE OR DELETE ON user_entity_roles
		FOR EACH ROW EXECUTE FUNCTION notify_role_change();
	`)
	return err
}

func mig_20260301091500_pubsub_down(tx *sqlx.Tx) error {
	_, err := tx.Exec(`DROP TRIGGER IF EXISTS user_entity_roles_notify ON user_entity_roles;`)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`DROP FUNCTION IF EXISTS notify_role_change();`)
	return err
}
