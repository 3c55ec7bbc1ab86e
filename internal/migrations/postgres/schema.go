package postgres

// migration is one forward-only schema step. Versions are applied in order
// and recorded in schema_migrations.
type migration struct {
	Version    int
	Name       string
	Statements []string
}

var migrations = []migration{
	{
		Version: 1,
		Name:    "accommodations",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS accommodations (
				id                 TEXT PRIMARY KEY,
				host_id            TEXT NOT NULL,
				name               TEXT NOT NULL,
				nightly_rate       BIGINT NOT NULL CHECK (nightly_rate >= 0),
				currency           CHAR(3) NOT NULL,
				max_guests         INTEGER NOT NULL CHECK (max_guests >= 1),
				approval_status    TEXT NOT NULL,
				operational_status TEXT NOT NULL,
				fee_type           TEXT NOT NULL DEFAULT '',
				fee_amount         BIGINT NOT NULL DEFAULT 0,
				fee_basis_points   BIGINT NOT NULL DEFAULT 0,
				discount_tiers     JSONB NOT NULL DEFAULT '[]',
				instant_book       BOOLEAN NOT NULL DEFAULT FALSE,
				created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
				updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
			)`,
			`CREATE INDEX IF NOT EXISTS accommodations_host_idx ON accommodations (host_id)`,
			`CREATE TABLE IF NOT EXISTS accommodation_services (
				id               TEXT PRIMARY KEY,
				accommodation_id TEXT NOT NULL REFERENCES accommodations (id),
				name             TEXT NOT NULL,
				price            BIGINT NOT NULL CHECK (price >= 0)
			)`,
			`CREATE INDEX IF NOT EXISTS accommodation_services_accommodation_idx
				ON accommodation_services (accommodation_id)`,
		},
	},
	{
		Version: 2,
		Name:    "bookings",
		Statements: []string{
			`CREATE EXTENSION IF NOT EXISTS btree_gist`,
			`CREATE TABLE IF NOT EXISTS bookings (
				id                  TEXT PRIMARY KEY,
				accommodation_id    TEXT NOT NULL REFERENCES accommodations (id),
				guest_id            TEXT NOT NULL,
				check_in            DATE NOT NULL,
				check_out           DATE NOT NULL,
				state               TEXT NOT NULL,
				total_price         BIGINT NOT NULL CHECK (total_price >= 0),
				currency            CHAR(3) NOT NULL,
				payment_confirmed   BOOLEAN NOT NULL DEFAULT FALSE,
				refund_eligible     BOOLEAN,
				cancelled_by        TEXT NOT NULL DEFAULT '',
				cancellation_reason TEXT NOT NULL DEFAULT '',
				cancelled_at        TIMESTAMPTZ,
				version             BIGINT NOT NULL DEFAULT 0,
				created_at          TIMESTAMPTZ NOT NULL,
				updated_at          TIMESTAMPTZ NOT NULL,
				CONSTRAINT bookings_range_check CHECK (check_out > check_in),
				CONSTRAINT bookings_state_check
					CHECK (state IN ('PENDING', 'CONFIRMED', 'CHECK_IN', 'CHECK_OUT', 'CANCELLED'))
			)`,
			`ALTER TABLE bookings DROP CONSTRAINT IF EXISTS bookings_no_overlap`,
			`ALTER TABLE bookings ADD CONSTRAINT bookings_no_overlap
				EXCLUDE USING gist (
					accommodation_id WITH =,
					daterange(check_in, check_out, '[)') WITH &&
				) WHERE (state IN ('PENDING', 'CONFIRMED', 'CHECK_IN'))`,
			`CREATE INDEX IF NOT EXISTS bookings_state_check_in_idx ON bookings (state, check_in)`,
			`CREATE INDEX IF NOT EXISTS bookings_state_check_out_idx ON bookings (state, check_out)`,
			`CREATE TABLE IF NOT EXISTS booking_details (
				booking_id   TEXT PRIMARY KEY REFERENCES bookings (id) ON DELETE CASCADE,
				nightly_rate BIGINT NOT NULL,
				nights       INTEGER NOT NULL CHECK (nights >= 1),
				guest_count  INTEGER NOT NULL CHECK (guest_count >= 1),
				subtotal     BIGINT NOT NULL,
				discount     BIGINT NOT NULL DEFAULT 0,
				policy_fee   BIGINT NOT NULL DEFAULT 0,
				service_fee  BIGINT NOT NULL DEFAULT 0,
				total        BIGINT NOT NULL,
				add_ons      JSONB NOT NULL DEFAULT '[]',
				service_ids  JSONB NOT NULL DEFAULT '[]'
			)`,
		},
	},
	{
		Version: 3,
		Name:    "vouchers",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS vouchers (
				id                TEXT PRIMARY KEY,
				booking_id        TEXT NOT NULL REFERENCES bookings (id),
				total             BIGINT NOT NULL,
				currency          CHAR(3) NOT NULL,
				payment_reference TEXT NOT NULL,
				issued_at         TIMESTAMPTZ NOT NULL,
				CONSTRAINT vouchers_booking_unique UNIQUE (booking_id)
			)`,
		},
	},
}
