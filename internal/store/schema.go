package store

var schema = []string{
	`CREATE TABLE IF NOT EXISTS orders (
		id             TEXT PRIMARY KEY,
		user_id        TEXT NOT NULL DEFAULT '',
		total_amount   NUMERIC(14, 2) NOT NULL,
		currency       VARCHAR(3) NOT NULL DEFAULT 'KES',
		customer_email TEXT NOT NULL DEFAULT '',
		customer_phone TEXT NOT NULL DEFAULT '',
		first_name     TEXT NOT NULL DEFAULT '',
		last_name      TEXT NOT NULL DEFAULT '',
		status         VARCHAR(20) NOT NULL DEFAULT 'PENDING',
		payment_status VARCHAR(20) NOT NULL DEFAULT 'PENDING',
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	// one row per order: a new attempt overwrites the previous one
	`CREATE TABLE IF NOT EXISTS pesapal_payments (
		id                         UUID PRIMARY KEY,
		order_id                   TEXT NOT NULL UNIQUE REFERENCES orders(id),
		order_tracking_id          TEXT NOT NULL DEFAULT '',
		pesapal_transaction_id     TEXT,
		payment_method             VARCHAR(20) NOT NULL,
		phone_number               TEXT NOT NULL DEFAULT '',
		amount                     NUMERIC(14, 2) NOT NULL,
		currency                   VARCHAR(3) NOT NULL,
		status                     VARCHAR(20) NOT NULL DEFAULT 'PENDING',
		payment_status_description TEXT NOT NULL DEFAULT '',
		created_at                 TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at                 TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS pesapal_ipns (
		id                     UUID PRIMARY KEY,
		pesapal_transaction_id TEXT NOT NULL DEFAULT '',
		pesapal_tracking_id    TEXT NOT NULL DEFAULT '',
		pesapal_merchant_ref   TEXT NOT NULL DEFAULT '',
		notification_type      TEXT NOT NULL DEFAULT '',
		payment_method         TEXT NOT NULL DEFAULT '',
		amount                 NUMERIC(14, 2),
		currency               TEXT NOT NULL DEFAULT '',
		status                 TEXT NOT NULL DEFAULT '',
		status_description     TEXT NOT NULL DEFAULT '',
		raw_data               JSONB NOT NULL,
		processed_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE INDEX IF NOT EXISTS idx_pesapal_ipns_merchant_ref ON pesapal_ipns (pesapal_merchant_ref, processed_at DESC)`,
}
