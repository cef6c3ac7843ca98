package sqliterepo

const schema = `
CREATE TABLE IF NOT EXISTS chat_sessions (
	session_key    TEXT PRIMARY KEY,
	address        TEXT NOT NULL,
	user_object_id TEXT NOT NULL DEFAULT '',
	created_at     TEXT NOT NULL,
	updated_at     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chat_sessions_user ON chat_sessions (user_object_id);

CREATE TABLE IF NOT EXISTS oauth_states (
	session_key TEXT NOT NULL REFERENCES chat_sessions (session_key) ON DELETE CASCADE,
	provider    TEXT NOT NULL,
	nonce       TEXT NOT NULL,
	PRIMARY KEY (session_key, provider)
);

CREATE TABLE IF NOT EXISTS provider_tokens (
	session_key       TEXT NOT NULL REFERENCES chat_sessions (session_key) ON DELETE CASCADE,
	provider          TEXT NOT NULL,
	access_token      TEXT NOT NULL,
	expires_at        TEXT NOT NULL DEFAULT '',
	verification_code TEXT NOT NULL DEFAULT '',
	status            TEXT NOT NULL,
	issued_at         TEXT NOT NULL DEFAULT '',
	activated_at      TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (session_key, provider)
);
`
