package database

const schema = `
CREATE TABLE IF NOT EXISTS sync_sources (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id TEXT NOT NULL,
    account_id TEXT NOT NULL,
    name TEXT NOT NULL,
    institution TEXT NOT NULL,
    account_type TEXT NOT NULL,
    email_address TEXT NOT NULL,
    imap_host TEXT NOT NULL,
    imap_port INTEGER NOT NULL DEFAULT 993,
    password_enc TEXT NOT NULL,
    folder TEXT NOT NULL DEFAULT 'INBOX',
    insecure_tls BOOLEAN DEFAULT false,
    last_uid INTEGER DEFAULT 0,
    status TEXT NOT NULL DEFAULT 'active',
    last_synced_at DATETIME,
    is_active BOOLEAN DEFAULT true,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(email_address, folder)
);

CREATE TABLE IF NOT EXISTS processed_emails (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id TEXT NOT NULL,
    sync_source_id INTEGER NOT NULL REFERENCES sync_sources(id) ON DELETE CASCADE,
    message_uid INTEGER NOT NULL,
    content_hash TEXT,
    processed_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(sync_source_id, message_uid)
);

CREATE TABLE IF NOT EXISTS email_alert_dlq (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id TEXT NOT NULL,
    sync_source_id INTEGER NOT NULL REFERENCES sync_sources(id) ON DELETE CASCADE,
    message_uid INTEGER NOT NULL,
    subject TEXT,
    from_address TEXT,
    date DATETIME,
    body_text TEXT,
    body_html TEXT,
    error_message TEXT NOT NULL,
    error_type TEXT NOT NULL,
    error_stack TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(sync_source_id, message_uid)
);

CREATE TABLE IF NOT EXISTS transactions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id TEXT NOT NULL,
    account_id TEXT NOT NULL,
    sync_source_id INTEGER NOT NULL REFERENCES sync_sources(id) ON DELETE CASCADE,
    processed_email_id INTEGER NOT NULL REFERENCES processed_emails(id) ON DELETE CASCADE,
    amount TEXT NOT NULL,
    date DATETIME NOT NULL,
    name TEXT NOT NULL,
    merchant_name TEXT,
    pending BOOLEAN DEFAULT false,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS balance_updates (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id TEXT NOT NULL,
    account_id TEXT NOT NULL,
    sync_source_id INTEGER NOT NULL REFERENCES sync_sources(id) ON DELETE CASCADE,
    processed_email_id INTEGER NOT NULL REFERENCES processed_emails(id) ON DELETE CASCADE,
    balance_type TEXT NOT NULL,
    new_balance TEXT NOT NULL,
    update_source TEXT NOT NULL,
    source_detail TEXT,
    update_date DATETIME NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS jobs (
    id TEXT PRIMARY KEY,
    payload TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'queued',
    attempts INTEGER NOT NULL DEFAULT 0,
    max_attempts INTEGER NOT NULL DEFAULT 3,
    last_error TEXT,
    next_run_at DATETIME NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_sources_active ON sync_sources(is_active);
CREATE INDEX IF NOT EXISTS idx_processed_source ON processed_emails(sync_source_id);
CREATE INDEX IF NOT EXISTS idx_dlq_source ON email_alert_dlq(sync_source_id);
CREATE INDEX IF NOT EXISTS idx_transactions_account ON transactions(account_id);
CREATE INDEX IF NOT EXISTS idx_jobs_status_next ON jobs(status, next_run_at);
`
