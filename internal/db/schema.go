package db

// SchemaSQL contains the database schema initialization DDL.
const SchemaSQL = `
    CREATE TABLE IF NOT EXISTS import_sources (
        id                BIGSERIAL PRIMARY KEY,
        name              TEXT NOT NULL UNIQUE,
        source_type       TEXT NOT NULL,
        connection_params JSONB NOT NULL DEFAULT '{}',
        config            JSONB NOT NULL DEFAULT '{}',
        is_active         BOOLEAN NOT NULL DEFAULT TRUE,
        schedule_cron     TEXT NOT NULL DEFAULT '',
        last_run          TIMESTAMPTZ,
        created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
        updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
    );

    CREATE TABLE IF NOT EXISTS configuration_items (
        id                BIGSERIAL PRIMARY KEY,
        name              TEXT NOT NULL,
        ci_type           TEXT NOT NULL DEFAULT 'other',
        status            TEXT NOT NULL DEFAULT 'active',
        description       TEXT NOT NULL DEFAULT '',
        owner             TEXT NOT NULL DEFAULT '',
        location          TEXT NOT NULL DEFAULT '',
        environment       TEXT NOT NULL DEFAULT '',
        cost_center       TEXT NOT NULL DEFAULT '',
        domain            TEXT NOT NULL DEFAULT '',
        os_db_system      TEXT NOT NULL DEFAULT '',
        service_provider  TEXT NOT NULL DEFAULT '',
        contact           TEXT NOT NULL DEFAULT '',
        sla               TEXT NOT NULL DEFAULT '',
        eol               TEXT NOT NULL DEFAULT '',
        technical_details TEXT NOT NULL DEFAULT '',
        external_id       TEXT,
        import_source_id  BIGINT REFERENCES import_sources(id),
        last_sync         TIMESTAMPTZ,
        raw_data          JSONB NOT NULL DEFAULT '{}',
        created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
        updated_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
        deleted_at        TIMESTAMPTZ
    );

    -- At most one CI per (external_id, import_source_id) when an external id
    -- is present.
    CREATE UNIQUE INDEX IF NOT EXISTS configuration_items_external_identity
        ON configuration_items (external_id, import_source_id)
        WHERE external_id IS NOT NULL AND import_source_id IS NOT NULL;

    CREATE INDEX IF NOT EXISTS configuration_items_name
        ON configuration_items (name);
    CREATE INDEX IF NOT EXISTS configuration_items_name_lower
        ON configuration_items (lower(name));

    CREATE TABLE IF NOT EXISTS relationships (
        id                BIGSERIAL PRIMARY KEY,
        source_ci_id      BIGINT NOT NULL REFERENCES configuration_items(id) ON DELETE CASCADE,
        target_ci_id      BIGINT NOT NULL REFERENCES configuration_items(id) ON DELETE CASCADE,
        relationship_type TEXT NOT NULL,
        description       TEXT NOT NULL DEFAULT '',
        created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
        UNIQUE (source_ci_id, target_ci_id, relationship_type)
    );

    CREATE TABLE IF NOT EXISTS import_logs (
        id                BIGSERIAL PRIMARY KEY,
        import_source_id  BIGINT REFERENCES import_sources(id),
        source            TEXT NOT NULL DEFAULT '',
        status            TEXT NOT NULL,
        records_processed INTEGER NOT NULL DEFAULT 0,
        records_success   INTEGER NOT NULL DEFAULT 0,
        records_created   INTEGER NOT NULL DEFAULT 0,
        records_updated   INTEGER NOT NULL DEFAULT 0,
        records_failed    INTEGER NOT NULL DEFAULT 0,
        details           JSONB,
        started_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
        completed_at      TIMESTAMPTZ
    );

    CREATE INDEX IF NOT EXISTS import_logs_source
        ON import_logs (import_source_id, started_at DESC);
`
