package postgres

// schemaStatements holds the full database schema: tables in dependency
// order, the booking function, views, indexes and the seeded
// bookkeeping rows. Every statement is idempotent so Open can run them
// unconditionally on every start.
var schemaStatements = []string{
	// Node scoping. Single-event deployments only ever see the seeded
	// root node; the id stays an opaque filter everywhere else.
	`CREATE TABLE IF NOT EXISTS node (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL UNIQUE
	)`,

	// NFC tags. The uid is an 8-byte chip id, stored as numeric since
	// it may exceed the signed 64-bit range.
	`CREATE TABLE IF NOT EXISTS user_tag (
		id BIGSERIAL PRIMARY KEY,
		node_id BIGINT NOT NULL REFERENCES node(id),
		uid NUMERIC(20) NOT NULL UNIQUE,
		pin TEXT,
		restriction TEXT CHECK (restriction IN ('under_16', 'under_18'))
	)`,

	`CREATE TABLE IF NOT EXISTS account (
		id BIGSERIAL PRIMARY KEY,
		node_id BIGINT NOT NULL REFERENCES node(id),
		user_tag_id BIGINT UNIQUE REFERENCES user_tag(id),
		type TEXT NOT NULL CHECK (type IN (
			'private', 'cashier', 'cash_register', 'cash_vault',
			'cash_entry', 'sumup', 'imbalance', 'sepa_exit',
			'donation_exit', 'virtual_till', 'sale_exit')),
		name TEXT,
		comment TEXT,
		balance NUMERIC NOT NULL DEFAULT 0,
		vouchers BIGINT NOT NULL DEFAULT 0
	)`,

	`CREATE TABLE IF NOT EXISTS cash_register (
		id BIGSERIAL PRIMARY KEY,
		node_id BIGINT NOT NULL REFERENCES node(id),
		name TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS usr (
		id BIGSERIAL PRIMARY KEY,
		node_id BIGINT NOT NULL REFERENCES node(id),
		login TEXT NOT NULL,
		password TEXT,
		display_name TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		user_tag_id BIGINT UNIQUE REFERENCES user_tag(id),
		cashier_account_id BIGINT REFERENCES account(id),
		transport_account_id BIGINT REFERENCES account(id),
		cash_register_id BIGINT UNIQUE REFERENCES cash_register(id),
		UNIQUE (node_id, login)
	)`,

	`CREATE TABLE IF NOT EXISTS user_role (
		id BIGSERIAL PRIMARY KEY,
		node_id BIGINT NOT NULL REFERENCES node(id),
		name TEXT NOT NULL,
		privileges TEXT[] NOT NULL DEFAULT '{}',
		UNIQUE (node_id, name)
	)`,

	`CREATE TABLE IF NOT EXISTS user_to_role (
		user_id BIGINT NOT NULL REFERENCES usr(id) ON DELETE CASCADE,
		role_id BIGINT NOT NULL REFERENCES user_role(id) ON DELETE CASCADE,
		PRIMARY KEY (user_id, role_id)
	)`,

	`CREATE TABLE IF NOT EXISTS usr_session (
		id BIGSERIAL PRIMARY KEY,
		usr BIGINT NOT NULL REFERENCES usr(id) ON DELETE CASCADE,
		uuid UUID NOT NULL UNIQUE DEFAULT gen_random_uuid()
	)`,

	// Tax rates are keyed by name; bookings and line items reference the
	// name and freeze the numeric rate at booking time.
	`CREATE TABLE IF NOT EXISTS tax (
		name TEXT PRIMARY KEY,
		node_id BIGINT NOT NULL REFERENCES node(id),
		rate NUMERIC NOT NULL,
		description TEXT NOT NULL DEFAULT ''
	)`,

	`CREATE TABLE IF NOT EXISTS product (
		id BIGSERIAL PRIMARY KEY,
		node_id BIGINT NOT NULL REFERENCES node(id),
		name TEXT NOT NULL,
		price NUMERIC,
		fixed_price BOOLEAN NOT NULL DEFAULT TRUE,
		price_in_vouchers BIGINT,
		tax_name TEXT NOT NULL REFERENCES tax(name),
		is_locked BOOLEAN NOT NULL DEFAULT FALSE,
		is_returnable BOOLEAN NOT NULL DEFAULT FALSE,
		target_account_id BIGINT REFERENCES account(id),
		UNIQUE (node_id, name),
		CONSTRAINT product_price_iff_fixed CHECK ((price IS NULL) = (NOT fixed_price))
	)`,

	`CREATE TABLE IF NOT EXISTS product_restriction (
		id BIGINT NOT NULL REFERENCES product(id) ON DELETE CASCADE,
		restriction TEXT NOT NULL CHECK (restriction IN ('under_16', 'under_18')),
		PRIMARY KEY (id, restriction)
	)`,

	`CREATE TABLE IF NOT EXISTS till_button (
		id BIGSERIAL PRIMARY KEY,
		node_id BIGINT NOT NULL REFERENCES node(id),
		name TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS till_button_product (
		button_id BIGINT NOT NULL REFERENCES till_button(id) ON DELETE CASCADE,
		product_id BIGINT NOT NULL REFERENCES product(id),
		PRIMARY KEY (button_id, product_id)
	)`,

	`CREATE TABLE IF NOT EXISTS till_layout (
		id BIGSERIAL PRIMARY KEY,
		node_id BIGINT NOT NULL REFERENCES node(id),
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT ''
	)`,

	`CREATE TABLE IF NOT EXISTS till_layout_to_button (
		layout_id BIGINT NOT NULL REFERENCES till_layout(id) ON DELETE CASCADE,
		button_id BIGINT NOT NULL REFERENCES till_button(id),
		sequence_number BIGINT NOT NULL,
		PRIMARY KEY (layout_id, button_id),
		UNIQUE (layout_id, sequence_number)
	)`,

	`CREATE TABLE IF NOT EXISTS till_profile (
		id BIGSERIAL PRIMARY KEY,
		node_id BIGINT NOT NULL REFERENCES node(id),
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		layout_id BIGINT NOT NULL REFERENCES till_layout(id),
		allow_top_up BOOLEAN NOT NULL DEFAULT FALSE,
		allow_cash_out BOOLEAN NOT NULL DEFAULT FALSE,
		allow_ticket_sale BOOLEAN NOT NULL DEFAULT FALSE
	)`,

	`CREATE TABLE IF NOT EXISTS allowed_user_roles_for_till_profile (
		profile_id BIGINT NOT NULL REFERENCES till_profile(id) ON DELETE CASCADE,
		role_id BIGINT NOT NULL REFERENCES user_role(id) ON DELETE CASCADE,
		PRIMARY KEY (profile_id, role_id)
	)`,

	// A till either offers itself for registration or is bound to a
	// terminal session, never both.
	`CREATE TABLE IF NOT EXISTS till (
		id BIGSERIAL PRIMARY KEY,
		node_id BIGINT NOT NULL REFERENCES node(id),
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		registration_uuid UUID UNIQUE DEFAULT gen_random_uuid(),
		session_uuid UUID UNIQUE,
		active_profile_id BIGINT NOT NULL REFERENCES till_profile(id),
		active_user_id BIGINT REFERENCES usr(id),
		active_user_role_id BIGINT REFERENCES user_role(id),
		active_cash_register_id BIGINT REFERENCES cash_register(id),
		z_nr BIGINT NOT NULL DEFAULT 1,
		CONSTRAINT registration_or_session
			CHECK ((registration_uuid IS NULL) != (session_uuid IS NULL))
	)`,

	`CREATE TABLE IF NOT EXISTS cash_register_stocking (
		id BIGSERIAL PRIMARY KEY,
		node_id BIGINT NOT NULL REFERENCES node(id),
		name TEXT NOT NULL,
		euro200 BIGINT NOT NULL DEFAULT 0,
		euro100 BIGINT NOT NULL DEFAULT 0,
		euro50 BIGINT NOT NULL DEFAULT 0,
		euro20 BIGINT NOT NULL DEFAULT 0,
		euro10 BIGINT NOT NULL DEFAULT 0,
		euro5 BIGINT NOT NULL DEFAULT 0,
		euro2 BIGINT NOT NULL DEFAULT 0,
		euro1 BIGINT NOT NULL DEFAULT 0,
		cent50 BIGINT NOT NULL DEFAULT 0,
		cent20 BIGINT NOT NULL DEFAULT 0,
		cent10 BIGINT NOT NULL DEFAULT 0,
		cent5 BIGINT NOT NULL DEFAULT 0,
		cent2 BIGINT NOT NULL DEFAULT 0,
		cent1 BIGINT NOT NULL DEFAULT 0,
		variable_in_euro NUMERIC NOT NULL DEFAULT 0
	)`,

	// The order table. "order" is reserved in SQL, hence ordr.
	`CREATE TABLE IF NOT EXISTS ordr (
		id BIGSERIAL PRIMARY KEY,
		uuid UUID NOT NULL UNIQUE DEFAULT gen_random_uuid(),
		node_id BIGINT NOT NULL REFERENCES node(id),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		booked_at TIMESTAMPTZ,
		item_count BIGINT NOT NULL DEFAULT 0,
		value_sum NUMERIC NOT NULL DEFAULT 0,
		value_tax NUMERIC NOT NULL DEFAULT 0,
		value_notax NUMERIC NOT NULL DEFAULT 0,
		status TEXT NOT NULL CHECK (status IN ('pending', 'done', 'cancelled')),
		order_type TEXT NOT NULL CHECK (order_type IN (
			'sale', 'topup_cash', 'topup_sumup', 'pay_out', 'ticket',
			'money_transfer', 'money_transfer_imbalance')),
		payment_method TEXT NOT NULL CHECK (payment_method IN ('cash', 'sumup', 'tag')),
		cashier_id BIGINT NOT NULL REFERENCES usr(id),
		till_id BIGINT NOT NULL REFERENCES till(id),
		customer_account_id BIGINT REFERENCES account(id),
		cash_register_id BIGINT REFERENCES cash_register(id),
		z_nr BIGINT NOT NULL DEFAULT 0
	)`,

	`CREATE TABLE IF NOT EXISTS line_item (
		order_id BIGINT NOT NULL REFERENCES ordr(id),
		item_id BIGINT NOT NULL,
		product_id BIGINT NOT NULL REFERENCES product(id),
		quantity BIGINT NOT NULL CHECK (quantity != 0),
		price NUMERIC NOT NULL,
		tax_name TEXT NOT NULL,
		tax_rate NUMERIC NOT NULL,
		PRIMARY KEY (order_id, item_id)
	)`,

	// The transaction log. Rows are written only by book_transaction
	// and never updated or deleted.
	`CREATE TABLE IF NOT EXISTS transaction (
		id BIGSERIAL PRIMARY KEY,
		order_id BIGINT REFERENCES ordr(id),
		description TEXT NOT NULL DEFAULT '',
		source_account BIGINT NOT NULL REFERENCES account(id),
		target_account BIGINT NOT NULL REFERENCES account(id),
		booked_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		amount NUMERIC NOT NULL CHECK (amount >= 0),
		tax_name TEXT NOT NULL,
		tax_rate NUMERIC NOT NULL,
		CONSTRAINT source_target_distinct CHECK (source_account != target_account)
	)`,

	`CREATE TABLE IF NOT EXISTS bon (
		id BIGINT PRIMARY KEY REFERENCES ordr(id),
		generated BOOLEAN NOT NULL DEFAULT FALSE,
		generated_at TIMESTAMPTZ,
		error TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS payout_run (
		id BIGSERIAL PRIMARY KEY,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		created_by TEXT NOT NULL,
		execution_date DATE NOT NULL,
		set_done_at TIMESTAMPTZ
	)`,

	`CREATE TABLE IF NOT EXISTS customer_info (
		customer_account_id BIGINT PRIMARY KEY REFERENCES account(id),
		iban TEXT,
		account_name TEXT,
		email TEXT,
		donation NUMERIC,
		donate_all BOOLEAN NOT NULL DEFAULT FALSE,
		has_entered_info BOOLEAN NOT NULL DEFAULT FALSE,
		payout_run_id BIGINT REFERENCES payout_run(id),
		payout_error TEXT,
		payout_export BOOLEAN NOT NULL DEFAULT FALSE
	)`,

	`CREATE TABLE IF NOT EXISTS customer_session (
		id BIGSERIAL PRIMARY KEY,
		customer BIGINT NOT NULL REFERENCES account(id) ON DELETE CASCADE,
		uuid UUID NOT NULL UNIQUE DEFAULT gen_random_uuid()
	)`,

	`CREATE TABLE IF NOT EXISTS config (
		key TEXT PRIMARY KEY,
		value TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS tse (
		id BIGSERIAL PRIMARY KEY,
		node_id BIGINT NOT NULL REFERENCES node(id),
		name TEXT NOT NULL UNIQUE,
		status TEXT NOT NULL DEFAULT 'new'
			CHECK (status IN ('new', 'active', 'disabled', 'failed')),
		serial TEXT,
		ws_url TEXT NOT NULL,
		ws_timeout NUMERIC NOT NULL DEFAULT 5,
		password TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS cashier_shift (
		id BIGSERIAL PRIMARY KEY,
		cashier_id BIGINT NOT NULL REFERENCES usr(id),
		started_at TIMESTAMPTZ NOT NULL,
		ended_at TIMESTAMPTZ NOT NULL,
		actual_cash_drawer_balance NUMERIC NOT NULL,
		expected_cash_drawer_balance NUMERIC NOT NULL,
		cash_drawer_imbalance NUMERIC GENERATED ALWAYS AS
			(actual_cash_drawer_balance - expected_cash_drawer_balance) STORED,
		comment TEXT NOT NULL DEFAULT '',
		close_out_order_id BIGINT NOT NULL REFERENCES ordr(id),
		imbalance_order_id BIGINT NOT NULL REFERENCES ordr(id),
		closing_out_user_id BIGINT NOT NULL REFERENCES usr(id)
	)`,

	// The booking primitive. Locks both account rows in ascending id
	// order, flips direction for negative amounts so persisted rows stay
	// positive, enforces the private-source funds rule, moves the
	// balances and appends the transaction row.
	`CREATE OR REPLACE FUNCTION book_transaction(
		order_id BIGINT,
		description TEXT,
		source_account_id BIGINT,
		target_account_id BIGINT,
		amount NUMERIC,
		tax_name TEXT
	) RETURNS BIGINT AS $$
	<<locals>> DECLARE
		source_account account%ROWTYPE;
		target_account account%ROWTYPE;
		tax_rate NUMERIC;
		transaction_id BIGINT;
		tmp_account_id BIGINT;
	BEGIN
		IF source_account_id = target_account_id THEN
			RAISE EXCEPTION 'source and target account must differ';
		END IF;

		IF amount < 0 THEN
			tmp_account_id := source_account_id;
			source_account_id := target_account_id;
			target_account_id := tmp_account_id;
			amount := -amount;
		END IF;

		SELECT rate INTO locals.tax_rate FROM tax WHERE name = tax_name;
		IF locals.tax_rate IS NULL THEN
			RAISE EXCEPTION 'tax rate % does not exist', tax_name;
		END IF;

		IF source_account_id < target_account_id THEN
			SELECT * INTO locals.source_account FROM account WHERE id = source_account_id FOR UPDATE;
			SELECT * INTO locals.target_account FROM account WHERE id = target_account_id FOR UPDATE;
		ELSE
			SELECT * INTO locals.target_account FROM account WHERE id = target_account_id FOR UPDATE;
			SELECT * INTO locals.source_account FROM account WHERE id = source_account_id FOR UPDATE;
		END IF;

		IF locals.source_account.id IS NULL THEN
			RAISE EXCEPTION 'source account % does not exist', source_account_id;
		END IF;
		IF locals.target_account.id IS NULL THEN
			RAISE EXCEPTION 'target account % does not exist', target_account_id;
		END IF;

		IF locals.source_account.type = 'private' AND locals.source_account.balance < amount THEN
			RAISE EXCEPTION 'insufficient funds on account %: balance %, needed %',
				source_account_id, locals.source_account.balance, amount;
		END IF;

		UPDATE account SET balance = balance - amount WHERE id = source_account_id;
		UPDATE account SET balance = balance + amount WHERE id = target_account_id;

		INSERT INTO transaction
			(order_id, description, source_account, target_account, amount, tax_name, tax_rate)
		VALUES
			(book_transaction.order_id, book_transaction.description,
			 source_account_id, target_account_id, amount,
			 book_transaction.tax_name, locals.tax_rate)
		RETURNING id INTO locals.transaction_id;

		RETURN locals.transaction_id;
	END;
	$$ LANGUAGE plpgsql`,

	// Accounts joined with their tag, the shape the portal and terminal
	// lookups read.
	`CREATE OR REPLACE VIEW account_with_tag AS
		SELECT a.*, ut.uid AS user_tag_uid, ut.restriction
		FROM account a
		LEFT JOIN user_tag ut ON a.user_tag_id = ut.id`,

	// One row per customer eligible for a payout: bank data entered and
	// exportable, no previous error, positive residual after donation.
	`CREATE OR REPLACE VIEW payout AS
		SELECT a.id AS customer_account_id,
			ci.iban,
			ci.account_name,
			ci.email,
			ut.uid AS user_tag_uid,
			ROUND(a.balance - COALESCE(
				CASE WHEN ci.donate_all THEN a.balance ELSE ci.donation END, 0), 2) AS amount,
			ci.payout_run_id
		FROM account a
		JOIN customer_info ci ON ci.customer_account_id = a.id
		JOIN user_tag ut ON ut.id = a.user_tag_id
		WHERE a.type = 'private'
			AND ci.iban IS NOT NULL
			AND ci.payout_export
			AND ci.payout_error IS NULL
			AND ROUND(a.balance - COALESCE(
				CASE WHEN ci.donate_all THEN a.balance ELSE ci.donation END, 0), 2) > 0`,

	`CREATE INDEX IF NOT EXISTS idx_transaction_order ON transaction(order_id)`,
	`CREATE INDEX IF NOT EXISTS idx_transaction_source ON transaction(source_account)`,
	`CREATE INDEX IF NOT EXISTS idx_transaction_target ON transaction(target_account)`,
	`CREATE INDEX IF NOT EXISTS idx_ordr_customer ON ordr(customer_account_id)`,
	`CREATE INDEX IF NOT EXISTS idx_ordr_till ON ordr(till_id)`,
	`CREATE INDEX IF NOT EXISTS idx_ordr_cashier ON ordr(cashier_id)`,
	`CREATE INDEX IF NOT EXISTS idx_bon_pending ON bon(id) WHERE NOT generated AND error IS NULL`,
	`CREATE INDEX IF NOT EXISTS idx_customer_info_run ON customer_info(payout_run_id)`,
	`CREATE INDEX IF NOT EXISTS idx_user_tag_pin ON user_tag(pin)`,
	`CREATE INDEX IF NOT EXISTS idx_usr_session_usr ON usr_session(usr)`,
	`CREATE INDEX IF NOT EXISTS idx_customer_session_customer ON customer_session(customer)`,

	// Seeded rows. Ids are fixed and referenced from code; the sequences
	// are advanced past them afterwards.
	`INSERT INTO node (id, name) VALUES (1, 'event')
		ON CONFLICT (id) DO NOTHING`,

	`INSERT INTO tax (name, node_id, rate, description) VALUES
		('none', 1, 0, 'no tax'),
		('ust', 1, 0.19, 'normal sales tax'),
		('eust', 1, 0.07, 'reduced sales tax')
		ON CONFLICT (name) DO NOTHING`,

	`INSERT INTO account (id, node_id, type, name, comment) VALUES
		(1, 1, 'cash_vault', 'Cash Vault', 'cash transport target'),
		(2, 1, 'cash_entry', 'Cash Entry', 'source of all cash taken in'),
		(3, 1, 'sumup', 'SumUp', 'source of all card top ups'),
		(4, 1, 'imbalance', 'Imbalance', 'cash drawer differences'),
		(5, 1, 'sepa_exit', 'SEPA Exit', 'payout run exit'),
		(6, 1, 'donation_exit', 'Donation Exit', 'donation exit'),
		(7, 1, 'sale_exit', 'Sale Exit', 'default sale revenue target')
		ON CONFLICT (id) DO NOTHING`,

	`INSERT INTO product (id, node_id, name, price, fixed_price, tax_name, is_locked) VALUES
		(1, 1, 'Rabatt', NULL, FALSE, 'none', TRUE),
		(2, 1, 'Aufladen', NULL, FALSE, 'none', TRUE),
		(3, 1, 'Auszahlen', NULL, FALSE, 'none', TRUE),
		(4, 1, 'Geldtransit', NULL, FALSE, 'none', TRUE),
		(5, 1, 'DifferenzSollIst', NULL, FALSE, 'none', TRUE)
		ON CONFLICT (id) DO NOTHING`,

	`INSERT INTO till_layout (id, node_id, name, description) VALUES
		(1, 1, 'virtual', 'layout of the virtual till')
		ON CONFLICT (id) DO NOTHING`,

	`INSERT INTO till_profile (id, node_id, name, description, layout_id) VALUES
		(1, 1, 'virtual', 'profile of the virtual till', 1)
		ON CONFLICT (id) DO NOTHING`,

	// The virtual till is the counter-party for close-outs and inter-till
	// transfers. It keeps a registration uuid but is never handed out.
	`INSERT INTO till (id, node_id, name, description, active_profile_id) VALUES
		(1, 1, 'Virtual Till', 'counter-party for reconciliation orders', 1)
		ON CONFLICT (id) DO NOTHING`,

	`INSERT INTO config (key, value) VALUES
		('currency.symbol', '€'),
		('currency.identifier', 'EUR'),
		('customer_portal.contact_email', ''),
		('sumup_topup.enabled', 'true'),
		('voucher.price_per_voucher', '2.50'),
		('sale.exit_account_id', '7'),
		('bon.title', ''),
		('bon.issuer', ''),
		('bon.address', ''),
		('bon.ust_id', '')
		ON CONFLICT (key) DO NOTHING`,

	`SELECT setval('node_id_seq', GREATEST((SELECT MAX(id) FROM node), 1))`,
	`SELECT setval('account_id_seq', GREATEST((SELECT MAX(id) FROM account), 1))`,
	`SELECT setval('product_id_seq', GREATEST((SELECT MAX(id) FROM product), 1))`,
	`SELECT setval('till_layout_id_seq', GREATEST((SELECT MAX(id) FROM till_layout), 1))`,
	`SELECT setval('till_profile_id_seq', GREATEST((SELECT MAX(id) FROM till_profile), 1))`,
	`SELECT setval('till_id_seq', GREATEST((SELECT MAX(id) FROM till), 1))`,
}
