package db

// SchemaSQL contains the database schema initialization SQL.
const SchemaSQL = `
    -- ==========================================================================
    -- DAO BOT TABLE (agent records)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS dao_bot SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS seed ON dao_bot TYPE string;
    DEFINE FIELD IF NOT EXISTS pubkey ON dao_bot TYPE string;
    DEFINE FIELD IF NOT EXISTS name ON dao_bot TYPE string;
    DEFINE FIELD IF NOT EXISTS dao_name ON dao_bot TYPE string;
    DEFINE FIELD IF NOT EXISTS profile_addr ON dao_bot TYPE option<string>;
    -- null until every bootstrap stage is confirmed; monotonic once set
    DEFINE FIELD IF NOT EXISTS initialized_at ON dao_bot TYPE option<datetime>;
    DEFINE FIELD IF NOT EXISTS version ON dao_bot TYPE string DEFAULT "v1";
    DEFINE FIELD IF NOT EXISTS created_at ON dao_bot TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS dao_bot_dao_name ON dao_bot FIELDS dao_name UNIQUE;

    -- ==========================================================================
    -- REPO IMPORT TABLE (resumability checkpoint)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS repo_import SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS source_url ON repo_import TYPE string;
    DEFINE FIELD IF NOT EXISTS target ON repo_import TYPE string;
    DEFINE FIELD IF NOT EXISTS dao_bot ON repo_import TYPE option<record<dao_bot>>;
    DEFINE FIELD IF NOT EXISTS owner ON repo_import TYPE string;
    DEFINE FIELD IF NOT EXISTS size_units ON repo_import TYPE option<int>;
    DEFINE FIELD IF NOT EXISTS ignore ON repo_import TYPE bool DEFAULT false;
    DEFINE FIELD IF NOT EXISTS resolution ON repo_import TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS completed_at ON repo_import TYPE option<datetime>;
    DEFINE FIELD IF NOT EXISTS created_at ON repo_import TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS updated_at ON repo_import TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS repo_import_owner ON repo_import FIELDS owner;
    DEFINE INDEX IF NOT EXISTS repo_import_bot ON repo_import FIELDS dao_bot;

    -- ==========================================================================
    -- ONBOARDING USER TABLE
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS onboarding_user SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS email ON onboarding_user TYPE string;
    DEFINE FIELD IF NOT EXISTS username ON onboarding_user TYPE string;
    DEFINE FIELD IF NOT EXISTS onboarded_at ON onboarding_user TYPE option<datetime>;

    DEFINE INDEX IF NOT EXISTS onboarding_user_email ON onboarding_user FIELDS email UNIQUE;

    -- ==========================================================================
    -- QUEUE JOB TABLE (durable job rows, written best-effort)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS queue_job SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS queue ON queue_job TYPE string;
    DEFINE FIELD IF NOT EXISTS dedup_key ON queue_job TYPE string;
    DEFINE FIELD IF NOT EXISTS payload ON queue_job TYPE option<object> FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS attempts ON queue_job TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS max_retries ON queue_job TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS backoff_ms ON queue_job TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS status ON queue_job TYPE string DEFAULT "pending";
    DEFINE FIELD IF NOT EXISTS last_error ON queue_job TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS created_at ON queue_job TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS finished_at ON queue_job TYPE option<datetime>;

    DEFINE INDEX IF NOT EXISTS queue_job_queue ON queue_job FIELDS queue;
    DEFINE INDEX IF NOT EXISTS queue_job_status ON queue_job FIELDS status;
`
