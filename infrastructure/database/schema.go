package database

var schema = []string{
	`CREATE TABLE IF NOT EXISTS events (
		id             BIGSERIAL PRIMARY KEY,
		event_id       TEXT NOT NULL UNIQUE,
		aggregate_id   TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		event_type     TEXT NOT NULL,
		version        INT  NOT NULL,
		event_data     JSONB NOT NULL,
		metadata       JSONB NOT NULL DEFAULT '{}',
		created_at     TIMESTAMPTZ NOT NULL,
		UNIQUE (aggregate_id, version)
	)`,
	`CREATE TABLE IF NOT EXISTS outbox (
		id           BIGSERIAL PRIMARY KEY,
		event_id     TEXT NOT NULL UNIQUE,
		aggregate_id TEXT NOT NULL,
		event_type   TEXT NOT NULL,
		event_data   JSONB NOT NULL,
		published    BOOLEAN NOT NULL DEFAULT false,
		created_at   TIMESTAMPTZ NOT NULL,
		published_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS outbox_unpublished ON outbox (id) WHERE published = false`,
	`CREATE TABLE IF NOT EXISTS processed_events (
		event_id     TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		event_type   TEXT NOT NULL,
		processed_by TEXT NOT NULL,
		processed_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (event_id, processed_by)
	)`,
	`CREATE TABLE IF NOT EXISTS workshops (
		id     TEXT PRIMARY KEY,
		name   TEXT NOT NULL,
		status TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS customers (
		id           TEXT PRIMARY KEY,
		email        TEXT NOT NULL,
		display_name TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS vehicles (
		id       TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		brand    TEXT NOT NULL,
		model    TEXT NOT NULL,
		year     INT  NOT NULL,
		plate    TEXT NOT NULL,
		odometer BIGINT NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS settlements (
		order_id        TEXT PRIMARY KEY,
		booking_id      TEXT NOT NULL UNIQUE,
		customer_id     TEXT NOT NULL,
		workshop_id     TEXT NOT NULL,
		amount          BIGINT NOT NULL,
		currency        TEXT NOT NULL,
		commission      BIGINT,
		commission_rate TEXT NOT NULL DEFAULT '',
		transaction_id  TEXT NOT NULL DEFAULT '',
		status          TEXT NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL,
		settled_at      TIMESTAMPTZ,
		refunded_at     TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS payment_sessions (
		id             TEXT PRIMARY KEY,
		booking_id     TEXT NOT NULL,
		order_id       TEXT NOT NULL,
		amount         BIGINT NOT NULL,
		currency       TEXT NOT NULL,
		status         TEXT NOT NULL,
		transaction_id TEXT NOT NULL DEFAULT '',
		redirect_url   TEXT NOT NULL DEFAULT '',
		created_at     TIMESTAMPTZ NOT NULL,
		updated_at     TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS payment_sessions_booking ON payment_sessions (booking_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS alerts (
		id          TEXT PRIMARY KEY,
		severity    TEXT NOT NULL,
		category    TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		entity_id   TEXT NOT NULL,
		details     TEXT NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS booking_view (
		id               TEXT PRIMARY KEY,
		customer_id      TEXT NOT NULL,
		workshop_id      TEXT NOT NULL,
		status           TEXT NOT NULL,
		appointment_date TIMESTAMPTZ NOT NULL,
		suggested_at     TIMESTAMPTZ,
		version          INT NOT NULL,
		updated_at       TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS booking_view_status ON booking_view (status, suggested_at)`,
}
