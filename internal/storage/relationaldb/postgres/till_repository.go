package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/stustapay/stustapayd/internal/core/till"
	"github.com/stustapay/stustapayd/internal/storage/relationaldb"
)

// TillRepository implements the TillRepository interface for PostgreSQL
type TillRepository struct {
	db *sql.DB
	tx *sql.Tx // Optional transaction context
}

// NewTillRepository creates a new PostgreSQL till repository
func NewTillRepository(db *sql.DB) *TillRepository {
	return &TillRepository{db: db}
}

// NewTillRepositoryWithTx creates a new PostgreSQL till repository within a transaction
func NewTillRepositoryWithTx(tx *sql.Tx) *TillRepository {
	return &TillRepository{tx: tx}
}

// getExecutor returns the appropriate executor (db or tx)
func (r *TillRepository) getExecutor() executor {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

const tillColumns = `id, node_id, name, description, active_profile_id,
	active_user_id, active_user_role_id, active_cash_register_id,
	registration_uuid, session_uuid, z_nr`

func (r *TillRepository) CreateTill(ctx context.Context, nodeID int64, newTill till.NewTill) (*till.Till, error) {
	var id int64
	err := r.getExecutor().QueryRowContext(ctx,
		`INSERT INTO till (node_id, name, description, active_profile_id)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		nodeID, newTill.Name, newTill.Description, newTill.ActiveProfileID).Scan(&id)
	if err != nil {
		return nil, classifyError("create_till", "failed to create till", err)
	}

	return r.GetTill(ctx, id)
}

func (r *TillRepository) GetTill(ctx context.Context, id int64) (*till.Till, error) {
	query := `SELECT ` + tillColumns + ` FROM till WHERE id = $1`

	t, err := scanTill(r.getExecutor().QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, relationaldb.NewNotFoundError("get_till", relationaldb.ErrTillNotFound, "TILL_NOT_FOUND")
	}
	if err != nil {
		return nil, relationaldb.NewQueryError("get_till", "failed to query till", err)
	}

	return t, nil
}

func (r *TillRepository) GetTillByRegistrationUUID(ctx context.Context, registration uuid.UUID) (*till.Till, error) {
	query := `SELECT ` + tillColumns + ` FROM till WHERE registration_uuid = $1`

	t, err := scanTill(r.getExecutor().QueryRowContext(ctx, query, registration))
	if err == sql.ErrNoRows {
		return nil, relationaldb.NewNotFoundError("get_till_by_registration_uuid", relationaldb.ErrTillNotFound, "TILL_NOT_FOUND")
	}
	if err != nil {
		return nil, relationaldb.NewQueryError("get_till_by_registration_uuid", "failed to query till", err)
	}

	return t, nil
}

// GetTillBySession resolves a till only if the presented session uuid is
// the one currently bound, so tokens from a superseded registration stop
// working immediately.
func (r *TillRepository) GetTillBySession(ctx context.Context, tillID int64, session uuid.UUID) (*till.Till, error) {
	query := `SELECT ` + tillColumns + ` FROM till WHERE id = $1 AND session_uuid = $2`

	t, err := scanTill(r.getExecutor().QueryRowContext(ctx, query, tillID, session))
	if err == sql.ErrNoRows {
		return nil, relationaldb.NewNotFoundError("get_till_by_session", relationaldb.ErrTillNotFound, "TILL_NOT_FOUND")
	}
	if err != nil {
		return nil, relationaldb.NewQueryError("get_till_by_session", "failed to query till", err)
	}

	return t, nil
}

func (r *TillRepository) ListTills(ctx context.Context, nodeID int64) ([]till.Till, error) {
	query := `SELECT ` + tillColumns + ` FROM till WHERE node_id = $1 ORDER BY id`

	return r.listTills(ctx, "list_tills", query, nodeID)
}

func (r *TillRepository) ListActiveTerminals(ctx context.Context, nodeID int64) ([]till.Till, error) {
	query := `SELECT ` + tillColumns + ` FROM till
			  WHERE node_id = $1 AND session_uuid IS NOT NULL ORDER BY id`

	return r.listTills(ctx, "list_active_terminals", query, nodeID)
}

func (r *TillRepository) UpdateTill(ctx context.Context, id int64, update till.NewTill) (*till.Till, error) {
	result, err := r.getExecutor().ExecContext(ctx,
		`UPDATE till SET name = $1, description = $2, active_profile_id = $3 WHERE id = $4`,
		update.Name, update.Description, update.ActiveProfileID, id)
	if err != nil {
		return nil, classifyError("update_till", "failed to update till", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, relationaldb.NewQueryError("update_till", "failed to check update result", err)
	}
	if affected == 0 {
		return nil, relationaldb.NewNotFoundError("update_till", relationaldb.ErrTillNotFound, "TILL_NOT_FOUND")
	}

	return r.GetTill(ctx, id)
}

func (r *TillRepository) DeleteTill(ctx context.Context, id int64) error {
	result, err := r.getExecutor().ExecContext(ctx, `DELETE FROM till WHERE id = $1`, id)
	if err != nil {
		return classifyError("delete_till", "failed to delete till", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return relationaldb.NewQueryError("delete_till", "failed to check delete result", err)
	}
	if affected == 0 {
		return relationaldb.NewNotFoundError("delete_till", relationaldb.ErrTillNotFound, "TILL_NOT_FOUND")
	}

	return nil
}

// StartTillSession consumes the registration offer and binds a fresh
// session. The guard on registration_uuid makes concurrent registrations
// race safely: exactly one terminal wins.
func (r *TillRepository) StartTillSession(ctx context.Context, tillID int64) (uuid.UUID, error) {
	var session uuid.UUID
	err := r.getExecutor().QueryRowContext(ctx,
		`UPDATE till SET session_uuid = gen_random_uuid(), registration_uuid = NULL
		 WHERE id = $1 AND registration_uuid IS NOT NULL
		 RETURNING session_uuid`, tillID).Scan(&session)
	if err == sql.ErrNoRows {
		return uuid.Nil, relationaldb.NewDataError("start_till_session",
			"till is not open for registration", relationaldb.ErrTillNotFound).
			WithCode("REGISTRATION_NOT_OPEN")
	}
	if err != nil {
		return uuid.Nil, relationaldb.NewQueryError("start_till_session", "failed to start till session", err)
	}

	return session, nil
}

// ResetTillRegistration ends any terminal session and offers the till
// for registration again under a fresh uuid.
func (r *TillRepository) ResetTillRegistration(ctx context.Context, tillID int64) (uuid.UUID, error) {
	var registration uuid.UUID
	err := r.getExecutor().QueryRowContext(ctx,
		`UPDATE till SET registration_uuid = gen_random_uuid(), session_uuid = NULL,
			active_user_id = NULL, active_user_role_id = NULL, active_cash_register_id = NULL
		 WHERE id = $1
		 RETURNING registration_uuid`, tillID).Scan(&registration)
	if err == sql.ErrNoRows {
		return uuid.Nil, relationaldb.NewNotFoundError("reset_till_registration", relationaldb.ErrTillNotFound, "TILL_NOT_FOUND")
	}
	if err != nil {
		return uuid.Nil, relationaldb.NewQueryError("reset_till_registration", "failed to reset till registration", err)
	}

	return registration, nil
}

// SwitchTillSession moves a terminal's session to another till that is
// open for registration. Callers run this inside a transaction; the
// source is cleared first because session uuids are unique.
func (r *TillRepository) SwitchTillSession(ctx context.Context, fromTillID, toTillID int64) error {
	var session uuid.NullUUID
	err := r.getExecutor().QueryRowContext(ctx,
		`SELECT session_uuid FROM till WHERE id = $1 FOR UPDATE`, fromTillID).Scan(&session)
	if err == sql.ErrNoRows {
		return relationaldb.NewNotFoundError("switch_till_session", relationaldb.ErrTillNotFound, "TILL_NOT_FOUND")
	}
	if err != nil {
		return relationaldb.NewQueryError("switch_till_session", "failed to query source till", err)
	}
	if !session.Valid {
		return relationaldb.NewDataError("switch_till_session",
			"source till has no active session", relationaldb.ErrTillNotFound).
			WithCode("SESSION_NOT_ACTIVE")
	}

	_, err = r.getExecutor().ExecContext(ctx,
		`UPDATE till SET session_uuid = NULL, registration_uuid = gen_random_uuid(),
			active_user_id = NULL, active_user_role_id = NULL, active_cash_register_id = NULL
		 WHERE id = $1`, fromTillID)
	if err != nil {
		return relationaldb.NewQueryError("switch_till_session", "failed to release source till", err)
	}

	result, err := r.getExecutor().ExecContext(ctx,
		`UPDATE till SET session_uuid = $1, registration_uuid = NULL
		 WHERE id = $2 AND registration_uuid IS NOT NULL`, session.UUID, toTillID)
	if err != nil {
		return classifyError("switch_till_session", "failed to bind target till", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return relationaldb.NewQueryError("switch_till_session", "failed to check switch result", err)
	}
	if affected == 0 {
		return relationaldb.NewDataError("switch_till_session",
			"target till is not open for registration", relationaldb.ErrTillNotFound).
			WithCode("REGISTRATION_NOT_OPEN")
	}

	return nil
}

// SetTillActiveUser records who is logged in on the till. The cash
// register follows the user: whatever register is bound to them becomes
// the till's active register, and a logout clears all three.
func (r *TillRepository) SetTillActiveUser(ctx context.Context, tillID int64, userID, roleID *int64) error {
	result, err := r.getExecutor().ExecContext(ctx,
		`UPDATE till SET active_user_id = $1, active_user_role_id = $2,
			active_cash_register_id = (SELECT cash_register_id FROM usr WHERE id = $1)
		 WHERE id = $3`, userID, roleID, tillID)
	if err != nil {
		return classifyError("set_till_active_user", "failed to set active user", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return relationaldb.NewQueryError("set_till_active_user", "failed to check update result", err)
	}
	if affected == 0 {
		return relationaldb.NewNotFoundError("set_till_active_user", relationaldb.ErrTillNotFound, "TILL_NOT_FOUND")
	}

	return nil
}

func (r *TillRepository) BumpZNr(ctx context.Context, tillID int64) (int64, error) {
	var zNr int64
	err := r.getExecutor().QueryRowContext(ctx,
		`UPDATE till SET z_nr = z_nr + 1 WHERE id = $1 RETURNING z_nr`, tillID).Scan(&zNr)
	if err == sql.ErrNoRows {
		return 0, relationaldb.NewNotFoundError("bump_z_nr", relationaldb.ErrTillNotFound, "TILL_NOT_FOUND")
	}
	if err != nil {
		return 0, relationaldb.NewQueryError("bump_z_nr", "failed to bump z number", err)
	}

	return zNr, nil
}

func (r *TillRepository) listTills(ctx context.Context, operation, query string, args ...interface{}) ([]till.Till, error) {
	rows, err := r.getExecutor().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, relationaldb.NewQueryError(operation, "failed to query tills", err)
	}
	defer rows.Close()

	var tills []till.Till
	for rows.Next() {
		t, err := scanTill(rows)
		if err != nil {
			return nil, relationaldb.NewQueryError(operation, "failed to scan till", err)
		}
		tills = append(tills, *t)
	}

	if err := rows.Err(); err != nil {
		return nil, relationaldb.NewQueryError(operation, "failed to iterate tills", err)
	}

	return tills, nil
}

const profileQuery = `SELECT p.id, p.node_id, p.name, p.description, p.layout_id,
		p.allow_top_up, p.allow_cash_out, p.allow_ticket_sale,
		COALESCE(array_agg(a.role_id ORDER BY a.role_id)
			FILTER (WHERE a.role_id IS NOT NULL), '{}')
	FROM till_profile p
	LEFT JOIN allowed_user_roles_for_till_profile a ON p.id = a.profile_id`

func (r *TillRepository) CreateProfile(ctx context.Context, nodeID int64, newProfile till.NewProfile) (*till.Profile, error) {
	var id int64
	err := r.getExecutor().QueryRowContext(ctx,
		`INSERT INTO till_profile (node_id, name, description, layout_id,
			allow_top_up, allow_cash_out, allow_ticket_sale)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		nodeID, newProfile.Name, newProfile.Description, newProfile.LayoutID,
		newProfile.AllowTopUp, newProfile.AllowCashOut, newProfile.AllowTicketSale).Scan(&id)
	if err != nil {
		return nil, classifyError("create_till_profile", "failed to create profile", err)
	}

	if err := r.setProfileRoles(ctx, id, newProfile.AllowedRoleIDs); err != nil {
		return nil, err
	}

	return r.GetProfile(ctx, id)
}

func (r *TillRepository) GetProfile(ctx context.Context, id int64) (*till.Profile, error) {
	query := profileQuery + ` WHERE p.id = $1 GROUP BY p.id`

	p, err := scanProfile(r.getExecutor().QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, relationaldb.NewNotFoundError("get_till_profile", relationaldb.ErrProfileNotFound, "PROFILE_NOT_FOUND")
	}
	if err != nil {
		return nil, relationaldb.NewQueryError("get_till_profile", "failed to query profile", err)
	}

	return p, nil
}

func (r *TillRepository) ListProfiles(ctx context.Context, nodeID int64) ([]till.Profile, error) {
	query := profileQuery + ` WHERE p.node_id = $1 GROUP BY p.id ORDER BY p.name`

	rows, err := r.getExecutor().QueryContext(ctx, query, nodeID)
	if err != nil {
		return nil, relationaldb.NewQueryError("list_till_profiles", "failed to query profiles", err)
	}
	defer rows.Close()

	var profiles []till.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, relationaldb.NewQueryError("list_till_profiles", "failed to scan profile", err)
		}
		profiles = append(profiles, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, relationaldb.NewQueryError("list_till_profiles", "failed to iterate profiles", err)
	}

	return profiles, nil
}

func (r *TillRepository) UpdateProfile(ctx context.Context, id int64, update till.NewProfile) (*till.Profile, error) {
	result, err := r.getExecutor().ExecContext(ctx,
		`UPDATE till_profile SET name = $1, description = $2, layout_id = $3,
			allow_top_up = $4, allow_cash_out = $5, allow_ticket_sale = $6
		 WHERE id = $7`,
		update.Name, update.Description, update.LayoutID,
		update.AllowTopUp, update.AllowCashOut, update.AllowTicketSale, id)
	if err != nil {
		return nil, classifyError("update_till_profile", "failed to update profile", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, relationaldb.NewQueryError("update_till_profile", "failed to check update result", err)
	}
	if affected == 0 {
		return nil, relationaldb.NewNotFoundError("update_till_profile", relationaldb.ErrProfileNotFound, "PROFILE_NOT_FOUND")
	}

	_, err = r.getExecutor().ExecContext(ctx,
		`DELETE FROM allowed_user_roles_for_till_profile WHERE profile_id = $1`, id)
	if err != nil {
		return nil, relationaldb.NewQueryError("update_till_profile", "failed to clear allowed roles", err)
	}
	if err := r.setProfileRoles(ctx, id, update.AllowedRoleIDs); err != nil {
		return nil, err
	}

	return r.GetProfile(ctx, id)
}

func (r *TillRepository) DeleteProfile(ctx context.Context, id int64) error {
	result, err := r.getExecutor().ExecContext(ctx, `DELETE FROM till_profile WHERE id = $1`, id)
	if err != nil {
		return classifyError("delete_till_profile", "failed to delete profile", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return relationaldb.NewQueryError("delete_till_profile", "failed to check delete result", err)
	}
	if affected == 0 {
		return relationaldb.NewNotFoundError("delete_till_profile", relationaldb.ErrProfileNotFound, "PROFILE_NOT_FOUND")
	}

	return nil
}

func (r *TillRepository) setProfileRoles(ctx context.Context, profileID int64, roleIDs []int64) error {
	if len(roleIDs) == 0 {
		return nil
	}

	_, err := r.getExecutor().ExecContext(ctx,
		`INSERT INTO allowed_user_roles_for_till_profile (profile_id, role_id)
		 SELECT $1, unnest($2::BIGINT[])`,
		profileID, pq.Int64Array(roleIDs))
	if err != nil {
		return classifyError("set_profile_roles", "failed to set allowed roles", err)
	}

	return nil
}

// Layout buttons keep their screen order through the sequence number.
const layoutQuery = `SELECT l.id, l.node_id, l.name, l.description,
		COALESCE(array_agg(lb.button_id ORDER BY lb.sequence_number)
			FILTER (WHERE lb.button_id IS NOT NULL), '{}')
	FROM till_layout l
	LEFT JOIN till_layout_to_button lb ON l.id = lb.layout_id`

func (r *TillRepository) CreateLayout(ctx context.Context, nodeID int64, newLayout till.NewLayout) (*till.Layout, error) {
	var id int64
	err := r.getExecutor().QueryRowContext(ctx,
		`INSERT INTO till_layout (node_id, name, description) VALUES ($1, $2, $3) RETURNING id`,
		nodeID, newLayout.Name, newLayout.Description).Scan(&id)
	if err != nil {
		return nil, classifyError("create_till_layout", "failed to create layout", err)
	}

	if err := r.setLayoutButtons(ctx, id, newLayout.ButtonIDs); err != nil {
		return nil, err
	}

	return r.GetLayout(ctx, id)
}

func (r *TillRepository) GetLayout(ctx context.Context, id int64) (*till.Layout, error) {
	query := layoutQuery + ` WHERE l.id = $1 GROUP BY l.id`

	l, err := scanLayout(r.getExecutor().QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, relationaldb.NewNotFoundError("get_till_layout", relationaldb.ErrLayoutNotFound, "LAYOUT_NOT_FOUND")
	}
	if err != nil {
		return nil, relationaldb.NewQueryError("get_till_layout", "failed to query layout", err)
	}

	return l, nil
}

func (r *TillRepository) ListLayouts(ctx context.Context, nodeID int64) ([]till.Layout, error) {
	query := layoutQuery + ` WHERE l.node_id = $1 GROUP BY l.id ORDER BY l.name`

	rows, err := r.getExecutor().QueryContext(ctx, query, nodeID)
	if err != nil {
		return nil, relationaldb.NewQueryError("list_till_layouts", "failed to query layouts", err)
	}
	defer rows.Close()

	var layouts []till.Layout
	for rows.Next() {
		l, err := scanLayout(rows)
		if err != nil {
			return nil, relationaldb.NewQueryError("list_till_layouts", "failed to scan layout", err)
		}
		layouts = append(layouts, *l)
	}

	if err := rows.Err(); err != nil {
		return nil, relationaldb.NewQueryError("list_till_layouts", "failed to iterate layouts", err)
	}

	return layouts, nil
}

func (r *TillRepository) UpdateLayout(ctx context.Context, id int64, update till.NewLayout) (*till.Layout, error) {
	result, err := r.getExecutor().ExecContext(ctx,
		`UPDATE till_layout SET name = $1, description = $2 WHERE id = $3`,
		update.Name, update.Description, id)
	if err != nil {
		return nil, classifyError("update_till_layout", "failed to update layout", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, relationaldb.NewQueryError("update_till_layout", "failed to check update result", err)
	}
	if affected == 0 {
		return nil, relationaldb.NewNotFoundError("update_till_layout", relationaldb.ErrLayoutNotFound, "LAYOUT_NOT_FOUND")
	}

	_, err = r.getExecutor().ExecContext(ctx,
		`DELETE FROM till_layout_to_button WHERE layout_id = $1`, id)
	if err != nil {
		return nil, relationaldb.NewQueryError("update_till_layout", "failed to clear layout buttons", err)
	}
	if err := r.setLayoutButtons(ctx, id, update.ButtonIDs); err != nil {
		return nil, err
	}

	return r.GetLayout(ctx, id)
}

func (r *TillRepository) DeleteLayout(ctx context.Context, id int64) error {
	result, err := r.getExecutor().ExecContext(ctx, `DELETE FROM till_layout WHERE id = $1`, id)
	if err != nil {
		return classifyError("delete_till_layout", "failed to delete layout", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return relationaldb.NewQueryError("delete_till_layout", "failed to check delete result", err)
	}
	if affected == 0 {
		return relationaldb.NewNotFoundError("delete_till_layout", relationaldb.ErrLayoutNotFound, "LAYOUT_NOT_FOUND")
	}

	return nil
}

func (r *TillRepository) setLayoutButtons(ctx context.Context, layoutID int64, buttonIDs []int64) error {
	if len(buttonIDs) == 0 {
		return nil
	}

	_, err := r.getExecutor().ExecContext(ctx,
		`INSERT INTO till_layout_to_button (layout_id, button_id, sequence_number)
		 SELECT $1, button_id, ordinality
		 FROM unnest($2::BIGINT[]) WITH ORDINALITY AS t(button_id, ordinality)`,
		layoutID, pq.Int64Array(buttonIDs))
	if err != nil {
		return classifyError("set_layout_buttons", "failed to set layout buttons", err)
	}

	return nil
}

const buttonQuery = `SELECT b.id, b.node_id, b.name,
		COALESCE(array_agg(bp.product_id ORDER BY bp.product_id)
			FILTER (WHERE bp.product_id IS NOT NULL), '{}')
	FROM till_button b
	LEFT JOIN till_button_product bp ON b.id = bp.button_id`

func (r *TillRepository) CreateButton(ctx context.Context, nodeID int64, newButton till.NewButton) (*till.Button, error) {
	var id int64
	err := r.getExecutor().QueryRowContext(ctx,
		`INSERT INTO till_button (node_id, name) VALUES ($1, $2) RETURNING id`,
		nodeID, newButton.Name).Scan(&id)
	if err != nil {
		return nil, classifyError("create_till_button", "failed to create button", err)
	}

	if err := r.setButtonProducts(ctx, id, newButton.ProductIDs); err != nil {
		return nil, err
	}

	return r.GetButton(ctx, id)
}

func (r *TillRepository) GetButton(ctx context.Context, id int64) (*till.Button, error) {
	query := buttonQuery + ` WHERE b.id = $1 GROUP BY b.id`

	b, err := scanButton(r.getExecutor().QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, relationaldb.NewNotFoundError("get_till_button", relationaldb.ErrButtonNotFound, "BUTTON_NOT_FOUND")
	}
	if err != nil {
		return nil, relationaldb.NewQueryError("get_till_button", "failed to query button", err)
	}

	return b, nil
}

func (r *TillRepository) ListButtons(ctx context.Context, nodeID int64) ([]till.Button, error) {
	query := buttonQuery + ` WHERE b.node_id = $1 GROUP BY b.id ORDER BY b.name`

	rows, err := r.getExecutor().QueryContext(ctx, query, nodeID)
	if err != nil {
		return nil, relationaldb.NewQueryError("list_till_buttons", "failed to query buttons", err)
	}
	defer rows.Close()

	var buttons []till.Button
	for rows.Next() {
		b, err := scanButton(rows)
		if err != nil {
			return nil, relationaldb.NewQueryError("list_till_buttons", "failed to scan button", err)
		}
		buttons = append(buttons, *b)
	}

	if err := rows.Err(); err != nil {
		return nil, relationaldb.NewQueryError("list_till_buttons", "failed to iterate buttons", err)
	}

	return buttons, nil
}

func (r *TillRepository) UpdateButton(ctx context.Context, id int64, update till.NewButton) (*till.Button, error) {
	result, err := r.getExecutor().ExecContext(ctx,
		`UPDATE till_button SET name = $1 WHERE id = $2`, update.Name, id)
	if err != nil {
		return nil, classifyError("update_till_button", "failed to update button", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, relationaldb.NewQueryError("update_till_button", "failed to check update result", err)
	}
	if affected == 0 {
		return nil, relationaldb.NewNotFoundError("update_till_button", relationaldb.ErrButtonNotFound, "BUTTON_NOT_FOUND")
	}

	_, err = r.getExecutor().ExecContext(ctx,
		`DELETE FROM till_button_product WHERE button_id = $1`, id)
	if err != nil {
		return nil, relationaldb.NewQueryError("update_till_button", "failed to clear button products", err)
	}
	if err := r.setButtonProducts(ctx, id, update.ProductIDs); err != nil {
		return nil, err
	}

	return r.GetButton(ctx, id)
}

func (r *TillRepository) DeleteButton(ctx context.Context, id int64) error {
	result, err := r.getExecutor().ExecContext(ctx, `DELETE FROM till_button WHERE id = $1`, id)
	if err != nil {
		return classifyError("delete_till_button", "failed to delete button", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return relationaldb.NewQueryError("delete_till_button", "failed to check delete result", err)
	}
	if affected == 0 {
		return relationaldb.NewNotFoundError("delete_till_button", relationaldb.ErrButtonNotFound, "BUTTON_NOT_FOUND")
	}

	return nil
}

func (r *TillRepository) setButtonProducts(ctx context.Context, buttonID int64, productIDs []int64) error {
	if len(productIDs) == 0 {
		return nil
	}

	_, err := r.getExecutor().ExecContext(ctx,
		`INSERT INTO till_button_product (button_id, product_id)
		 SELECT $1, unnest($2::BIGINT[])`,
		buttonID, pq.Int64Array(productIDs))
	if err != nil {
		return classifyError("set_button_products", "failed to set button products", err)
	}

	return nil
}

// ListTerminalButtons aggregates each button over its products the way
// terminals price them: the sum of fixed prices, fixed only if every
// product is, returnable only if every product is.
func (r *TillRepository) ListTerminalButtons(ctx context.Context, layoutID int64) ([]till.TerminalButton, error) {
	query := `SELECT b.id, b.name, SUM(p.price), bool_and(p.fixed_price),
			SUM(p.price_in_vouchers), bool_and(p.is_returnable),
			array_agg(p.id ORDER BY p.id)
		FROM till_layout_to_button lb
		JOIN till_button b ON lb.button_id = b.id
		JOIN till_button_product bp ON b.id = bp.button_id
		JOIN product p ON bp.product_id = p.id
		WHERE lb.layout_id = $1
		GROUP BY b.id, lb.sequence_number
		ORDER BY lb.sequence_number`

	rows, err := r.getExecutor().QueryContext(ctx, query, layoutID)
	if err != nil {
		return nil, relationaldb.NewQueryError("list_terminal_buttons", "failed to query terminal buttons", err)
	}
	defer rows.Close()

	var buttons []till.TerminalButton
	for rows.Next() {
		var b till.TerminalButton
		var price decimal.NullDecimal
		var priceInVouchers sql.NullInt64
		var productIDs pq.Int64Array

		err := rows.Scan(&b.ID, &b.Name, &price, &b.FixedPrice,
			&priceInVouchers, &b.IsReturnable, &productIDs)
		if err != nil {
			return nil, relationaldb.NewQueryError("list_terminal_buttons", "failed to scan terminal button", err)
		}

		b.Price = ptrDecimal(price)
		b.PriceInVouchers = ptrInt64(priceInVouchers)
		b.ProductIDs = []int64(productIDs)
		buttons = append(buttons, b)
	}

	if err := rows.Err(); err != nil {
		return nil, relationaldb.NewQueryError("list_terminal_buttons", "failed to iterate terminal buttons", err)
	}

	return buttons, nil
}

func (r *TillRepository) CreateCashRegister(ctx context.Context, nodeID int64, name string) (*till.CashRegister, error) {
	var register till.CashRegister
	err := r.getExecutor().QueryRowContext(ctx,
		`INSERT INTO cash_register (node_id, name) VALUES ($1, $2)
		 RETURNING id, node_id, name`, nodeID, name).
		Scan(&register.ID, &register.NodeID, &register.Name)
	if err != nil {
		return nil, classifyError("create_cash_register", "failed to create cash register", err)
	}

	return &register, nil
}

func (r *TillRepository) GetCashRegister(ctx context.Context, id int64) (*till.CashRegister, error) {
	var register till.CashRegister
	err := r.getExecutor().QueryRowContext(ctx,
		`SELECT id, node_id, name FROM cash_register WHERE id = $1`, id).
		Scan(&register.ID, &register.NodeID, &register.Name)
	if err == sql.ErrNoRows {
		return nil, relationaldb.NewNotFoundError("get_cash_register", relationaldb.ErrRegisterNotFound, "CASH_REGISTER_NOT_FOUND")
	}
	if err != nil {
		return nil, relationaldb.NewQueryError("get_cash_register", "failed to query cash register", err)
	}

	return &register, nil
}

func (r *TillRepository) ListCashRegisters(ctx context.Context, nodeID int64) ([]till.CashRegister, error) {
	rows, err := r.getExecutor().QueryContext(ctx,
		`SELECT id, node_id, name FROM cash_register WHERE node_id = $1 ORDER BY name`, nodeID)
	if err != nil {
		return nil, relationaldb.NewQueryError("list_cash_registers", "failed to query cash registers", err)
	}
	defer rows.Close()

	var registers []till.CashRegister
	for rows.Next() {
		var register till.CashRegister
		if err := rows.Scan(&register.ID, &register.NodeID, &register.Name); err != nil {
			return nil, relationaldb.NewQueryError("list_cash_registers", "failed to scan cash register", err)
		}
		registers = append(registers, register)
	}

	if err := rows.Err(); err != nil {
		return nil, relationaldb.NewQueryError("list_cash_registers", "failed to iterate cash registers", err)
	}

	return registers, nil
}

func (r *TillRepository) UpdateCashRegister(ctx context.Context, id int64, name string) (*till.CashRegister, error) {
	var register till.CashRegister
	err := r.getExecutor().QueryRowContext(ctx,
		`UPDATE cash_register SET name = $1 WHERE id = $2 RETURNING id, node_id, name`,
		name, id).Scan(&register.ID, &register.NodeID, &register.Name)
	if err == sql.ErrNoRows {
		return nil, relationaldb.NewNotFoundError("update_cash_register", relationaldb.ErrRegisterNotFound, "CASH_REGISTER_NOT_FOUND")
	}
	if err != nil {
		return nil, classifyError("update_cash_register", "failed to update cash register", err)
	}

	return &register, nil
}

func (r *TillRepository) DeleteCashRegister(ctx context.Context, id int64) error {
	result, err := r.getExecutor().ExecContext(ctx, `DELETE FROM cash_register WHERE id = $1`, id)
	if err != nil {
		return classifyError("delete_cash_register", "failed to delete cash register", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return relationaldb.NewQueryError("delete_cash_register", "failed to check delete result", err)
	}
	if affected == 0 {
		return relationaldb.NewNotFoundError("delete_cash_register", relationaldb.ErrRegisterNotFound, "CASH_REGISTER_NOT_FOUND")
	}

	return nil
}

const stockingColumns = `id, node_id, name, euro200, euro100, euro50, euro20,
	euro10, euro5, euro2, euro1, cent50, cent20, cent10, cent5, cent2, cent1,
	variable_in_euro`

func (r *TillRepository) CreateStocking(ctx context.Context, nodeID int64, newStocking till.NewCashRegisterStocking) (*till.CashRegisterStocking, error) {
	var id int64
	err := r.getExecutor().QueryRowContext(ctx,
		`INSERT INTO cash_register_stocking (node_id, name, euro200, euro100,
			euro50, euro20, euro10, euro5, euro2, euro1, cent50, cent20,
			cent10, cent5, cent2, cent1, variable_in_euro)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		 RETURNING id`,
		nodeID, newStocking.Name, newStocking.Euro200, newStocking.Euro100,
		newStocking.Euro50, newStocking.Euro20, newStocking.Euro10, newStocking.Euro5,
		newStocking.Euro2, newStocking.Euro1, newStocking.Cent50, newStocking.Cent20,
		newStocking.Cent10, newStocking.Cent5, newStocking.Cent2, newStocking.Cent1,
		newStocking.VariableInEuro).Scan(&id)
	if err != nil {
		return nil, classifyError("create_stocking", "failed to create stocking", err)
	}

	return r.GetStocking(ctx, id)
}

func (r *TillRepository) GetStocking(ctx context.Context, id int64) (*till.CashRegisterStocking, error) {
	query := `SELECT ` + stockingColumns + ` FROM cash_register_stocking WHERE id = $1`

	s, err := scanStocking(r.getExecutor().QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, relationaldb.NewNotFoundError("get_stocking", relationaldb.ErrStockingNotFound, "STOCKING_NOT_FOUND")
	}
	if err != nil {
		return nil, relationaldb.NewQueryError("get_stocking", "failed to query stocking", err)
	}

	return s, nil
}

func (r *TillRepository) ListStockings(ctx context.Context, nodeID int64) ([]till.CashRegisterStocking, error) {
	query := `SELECT ` + stockingColumns + ` FROM cash_register_stocking
			  WHERE node_id = $1 ORDER BY name`

	rows, err := r.getExecutor().QueryContext(ctx, query, nodeID)
	if err != nil {
		return nil, relationaldb.NewQueryError("list_stockings", "failed to query stockings", err)
	}
	defer rows.Close()

	var stockings []till.CashRegisterStocking
	for rows.Next() {
		s, err := scanStocking(rows)
		if err != nil {
			return nil, relationaldb.NewQueryError("list_stockings", "failed to scan stocking", err)
		}
		stockings = append(stockings, *s)
	}

	if err := rows.Err(); err != nil {
		return nil, relationaldb.NewQueryError("list_stockings", "failed to iterate stockings", err)
	}

	return stockings, nil
}

func (r *TillRepository) UpdateStocking(ctx context.Context, id int64, update till.NewCashRegisterStocking) (*till.CashRegisterStocking, error) {
	result, err := r.getExecutor().ExecContext(ctx,
		`UPDATE cash_register_stocking SET name = $1, euro200 = $2, euro100 = $3,
			euro50 = $4, euro20 = $5, euro10 = $6, euro5 = $7, euro2 = $8,
			euro1 = $9, cent50 = $10, cent20 = $11, cent10 = $12, cent5 = $13,
			cent2 = $14, cent1 = $15, variable_in_euro = $16
		 WHERE id = $17`,
		update.Name, update.Euro200, update.Euro100, update.Euro50, update.Euro20,
		update.Euro10, update.Euro5, update.Euro2, update.Euro1, update.Cent50,
		update.Cent20, update.Cent10, update.Cent5, update.Cent2, update.Cent1,
		update.VariableInEuro, id)
	if err != nil {
		return nil, classifyError("update_stocking", "failed to update stocking", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, relationaldb.NewQueryError("update_stocking", "failed to check update result", err)
	}
	if affected == 0 {
		return nil, relationaldb.NewNotFoundError("update_stocking", relationaldb.ErrStockingNotFound, "STOCKING_NOT_FOUND")
	}

	return r.GetStocking(ctx, id)
}

func (r *TillRepository) DeleteStocking(ctx context.Context, id int64) error {
	result, err := r.getExecutor().ExecContext(ctx,
		`DELETE FROM cash_register_stocking WHERE id = $1`, id)
	if err != nil {
		return classifyError("delete_stocking", "failed to delete stocking", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return relationaldb.NewQueryError("delete_stocking", "failed to check delete result", err)
	}
	if affected == 0 {
		return relationaldb.NewNotFoundError("delete_stocking", relationaldb.ErrStockingNotFound, "STOCKING_NOT_FOUND")
	}

	return nil
}

func scanStocking(row scanner) (*till.CashRegisterStocking, error) {
	var s till.CashRegisterStocking

	err := row.Scan(&s.ID, &s.NodeID, &s.Name, &s.Euro200, &s.Euro100, &s.Euro50,
		&s.Euro20, &s.Euro10, &s.Euro5, &s.Euro2, &s.Euro1, &s.Cent50, &s.Cent20,
		&s.Cent10, &s.Cent5, &s.Cent2, &s.Cent1, &s.VariableInEuro)
	if err != nil {
		return nil, err
	}

	return &s, nil
}

func scanTill(row scanner) (*till.Till, error) {
	var t till.Till
	var userID, roleID, registerID sql.NullInt64
	var registration, session uuid.NullUUID

	err := row.Scan(&t.ID, &t.NodeID, &t.Name, &t.Description, &t.ActiveProfileID,
		&userID, &roleID, &registerID, &registration, &session, &t.ZNr)
	if err != nil {
		return nil, err
	}

	t.ActiveUserID = ptrInt64(userID)
	t.ActiveUserRoleID = ptrInt64(roleID)
	t.ActiveCashRegisterID = ptrInt64(registerID)
	t.RegistrationUUID = ptrUUID(registration)
	t.SessionUUID = ptrUUID(session)

	return &t, nil
}

func scanProfile(row scanner) (*till.Profile, error) {
	var p till.Profile
	var roleIDs pq.Int64Array

	err := row.Scan(&p.ID, &p.NodeID, &p.Name, &p.Description, &p.LayoutID,
		&p.AllowTopUp, &p.AllowCashOut, &p.AllowTicketSale, &roleIDs)
	if err != nil {
		return nil, err
	}

	p.AllowedRoleIDs = []int64(roleIDs)
	return &p, nil
}

func scanLayout(row scanner) (*till.Layout, error) {
	var l till.Layout
	var buttonIDs pq.Int64Array

	err := row.Scan(&l.ID, &l.NodeID, &l.Name, &l.Description, &buttonIDs)
	if err != nil {
		return nil, err
	}

	l.ButtonIDs = []int64(buttonIDs)
	return &l, nil
}

func scanButton(row scanner) (*till.Button, error) {
	var b till.Button
	var productIDs pq.Int64Array

	err := row.Scan(&b.ID, &b.NodeID, &b.Name, &productIDs)
	if err != nil {
		return nil, err
	}

	b.ProductIDs = []int64(productIDs)
	return &b, nil
}
