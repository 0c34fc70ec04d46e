package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/stustapay/stustapayd/internal/core/user"
	"github.com/stustapay/stustapayd/internal/storage/relationaldb"
)

// UserRepository implements the UserRepository interface for PostgreSQL
type UserRepository struct {
	db *sql.DB
	tx *sql.Tx // Optional transaction context
}

// NewUserRepository creates a new PostgreSQL user repository
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// NewUserRepositoryWithTx creates a new PostgreSQL user repository within a transaction
func NewUserRepositoryWithTx(tx *sql.Tx) *UserRepository {
	return &UserRepository{tx: tx}
}

// getExecutor returns the appropriate executor (db or tx)
func (r *UserRepository) getExecutor() executor {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

const userColumns = `u.id, u.node_id, u.login, u.display_name, u.description,
	u.user_tag_id, ut.uid, u.cashier_account_id, u.transport_account_id, u.cash_register_id`

const userFrom = ` FROM usr u LEFT JOIN user_tag ut ON u.user_tag_id = ut.id`

func (r *UserRepository) CreateUser(ctx context.Context, nodeID int64, newUser user.NewUser, passwordHash *string) (*user.User, error) {
	tagID, err := r.resolveTagID(ctx, "create_user", newUser.UserTagUID)
	if err != nil {
		return nil, err
	}

	var id int64
	err = r.getExecutor().QueryRowContext(ctx,
		`INSERT INTO usr (node_id, login, password, display_name, description, user_tag_id)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		nodeID, newUser.Login, passwordHash, newUser.DisplayName, newUser.Description, tagID).Scan(&id)
	if err != nil {
		return nil, classifyError("create_user", "failed to create user", err)
	}

	if len(newUser.RoleNames) > 0 {
		if err := r.assignRolesByName(ctx, id, nodeID, newUser.RoleNames); err != nil {
			return nil, err
		}
	}

	return r.GetUser(ctx, id)
}

func (r *UserRepository) GetUser(ctx context.Context, id int64) (*user.User, error) {
	query := `SELECT ` + userColumns + userFrom + ` WHERE u.id = $1`

	u, err := scanUser(r.getExecutor().QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, relationaldb.NewNotFoundError("get_user", relationaldb.ErrUserNotFound, "USER_NOT_FOUND")
	}
	if err != nil {
		return nil, relationaldb.NewQueryError("get_user", "failed to query user", err)
	}

	return u, nil
}

func (r *UserRepository) GetUserByLogin(ctx context.Context, nodeID int64, login string) (*user.User, error) {
	query := `SELECT ` + userColumns + userFrom + ` WHERE u.node_id = $1 AND u.login = $2`

	u, err := scanUser(r.getExecutor().QueryRowContext(ctx, query, nodeID, login))
	if err == sql.ErrNoRows {
		return nil, relationaldb.NewNotFoundError("get_user_by_login", relationaldb.ErrUserNotFound, "USER_NOT_FOUND")
	}
	if err != nil {
		return nil, relationaldb.NewQueryError("get_user_by_login", "failed to query user", err)
	}

	return u, nil
}

func (r *UserRepository) GetUserByTagUID(ctx context.Context, tagUID uint64) (*user.User, error) {
	query := `SELECT ` + userColumns + userFrom + ` WHERE ut.uid = $1`

	u, err := scanUser(r.getExecutor().QueryRowContext(ctx, query, tagUIDArg(tagUID)))
	if err == sql.ErrNoRows {
		return nil, relationaldb.NewNotFoundError("get_user_by_tag_uid", relationaldb.ErrUserNotFound, "USER_NOT_FOUND")
	}
	if err != nil {
		return nil, relationaldb.NewQueryError("get_user_by_tag_uid", "failed to query user", err)
	}

	return u, nil
}

func (r *UserRepository) GetUserByCashRegister(ctx context.Context, registerID int64) (*user.User, error) {
	query := `SELECT ` + userColumns + userFrom + ` WHERE u.cash_register_id = $1`

	u, err := scanUser(r.getExecutor().QueryRowContext(ctx, query, registerID))
	if err == sql.ErrNoRows {
		return nil, relationaldb.NewNotFoundError("get_user_by_cash_register", relationaldb.ErrUserNotFound, "USER_NOT_FOUND")
	}
	if err != nil {
		return nil, relationaldb.NewQueryError("get_user_by_cash_register", "failed to query user", err)
	}

	return u, nil
}

func (r *UserRepository) GetUserInfo(ctx context.Context, tagUID uint64) (*user.UserInfo, error) {
	query := `SELECT ` + userColumns + `, ca.balance, ta.balance, cr.name
		FROM usr u
		JOIN user_tag ut ON u.user_tag_id = ut.id
		LEFT JOIN account ca ON u.cashier_account_id = ca.id
		LEFT JOIN account ta ON u.transport_account_id = ta.id
		LEFT JOIN cash_register cr ON u.cash_register_id = cr.id
		WHERE ut.uid = $1`

	var info user.UserInfo
	var tagID, cashierAccID, transportAccID, registerID sql.NullInt64
	var uid, registerName sql.NullString
	var drawerBalance, transportBalance decimal.NullDecimal

	err := r.getExecutor().QueryRowContext(ctx, query, tagUIDArg(tagUID)).Scan(
		&info.ID, &info.NodeID, &info.Login, &info.DisplayName, &info.Description,
		&tagID, &uid, &cashierAccID, &transportAccID, &registerID,
		&drawerBalance, &transportBalance, &registerName)
	if err == sql.ErrNoRows {
		return nil, relationaldb.NewNotFoundError("get_user_info", relationaldb.ErrUserNotFound, "USER_NOT_FOUND")
	}
	if err != nil {
		return nil, relationaldb.NewQueryError("get_user_info", "failed to query user info", err)
	}

	info.UserTagID = ptrInt64(tagID)
	info.CashierAccountID = ptrInt64(cashierAccID)
	info.TransportAccountID = ptrInt64(transportAccID)
	info.CashRegisterID = ptrInt64(registerID)
	info.CashDrawerBalance = ptrDecimal(drawerBalance)
	info.TransportAccountBalance = ptrDecimal(transportBalance)
	info.CashRegisterName = ptrString(registerName)

	info.UserTagUID, err = ptrTagUID(uid)
	if err != nil {
		return nil, err
	}

	return &info, nil
}

func (r *UserRepository) ListUsers(ctx context.Context, nodeID int64) ([]user.User, error) {
	query := `SELECT ` + userColumns + userFrom + ` WHERE u.node_id = $1 ORDER BY u.login`

	rows, err := r.getExecutor().QueryContext(ctx, query, nodeID)
	if err != nil {
		return nil, relationaldb.NewQueryError("list_users", "failed to query users", err)
	}
	defer rows.Close()

	var users []user.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, relationaldb.NewQueryError("list_users", "failed to scan user", err)
		}
		users = append(users, *u)
	}

	if err := rows.Err(); err != nil {
		return nil, relationaldb.NewQueryError("list_users", "failed to iterate users", err)
	}

	return users, nil
}

func (r *UserRepository) UpdateUser(ctx context.Context, id int64, update user.NewUser, passwordHash *string) (*user.User, error) {
	tagID, err := r.resolveTagID(ctx, "update_user", update.UserTagUID)
	if err != nil {
		return nil, err
	}

	var nodeID int64
	if passwordHash != nil {
		err = r.getExecutor().QueryRowContext(ctx,
			`UPDATE usr SET login = $1, display_name = $2, description = $3,
				user_tag_id = $4, password = $5
			 WHERE id = $6 RETURNING node_id`,
			update.Login, update.DisplayName, update.Description, tagID, passwordHash, id).Scan(&nodeID)
	} else {
		err = r.getExecutor().QueryRowContext(ctx,
			`UPDATE usr SET login = $1, display_name = $2, description = $3,
				user_tag_id = $4
			 WHERE id = $5 RETURNING node_id`,
			update.Login, update.DisplayName, update.Description, tagID, id).Scan(&nodeID)
	}
	if err == sql.ErrNoRows {
		return nil, relationaldb.NewNotFoundError("update_user", relationaldb.ErrUserNotFound, "USER_NOT_FOUND")
	}
	if err != nil {
		return nil, classifyError("update_user", "failed to update user", err)
	}

	if update.RoleNames != nil {
		_, err = r.getExecutor().ExecContext(ctx, `DELETE FROM user_to_role WHERE user_id = $1`, id)
		if err != nil {
			return nil, relationaldb.NewQueryError("update_user", "failed to clear user roles", err)
		}
		if len(update.RoleNames) > 0 {
			if err := r.assignRolesByName(ctx, id, nodeID, update.RoleNames); err != nil {
				return nil, err
			}
		}
	}

	return r.GetUser(ctx, id)
}

func (r *UserRepository) DeleteUser(ctx context.Context, id int64) error {
	result, err := r.getExecutor().ExecContext(ctx, `DELETE FROM usr WHERE id = $1`, id)
	if err != nil {
		return classifyError("delete_user", "failed to delete user", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return relationaldb.NewQueryError("delete_user", "failed to check delete result", err)
	}
	if affected == 0 {
		return relationaldb.NewNotFoundError("delete_user", relationaldb.ErrUserNotFound, "USER_NOT_FOUND")
	}

	return nil
}

// GetUserPasswordHash treats users without a password the same as
// missing users so login failures do not leak which accounts exist.
func (r *UserRepository) GetUserPasswordHash(ctx context.Context, nodeID int64, login string) (int64, string, error) {
	var id int64
	var hash sql.NullString

	err := r.getExecutor().QueryRowContext(ctx,
		`SELECT id, password FROM usr WHERE node_id = $1 AND login = $2`,
		nodeID, login).Scan(&id, &hash)
	if err == sql.ErrNoRows {
		return 0, "", relationaldb.NewNotFoundError("get_user_password_hash", relationaldb.ErrUserNotFound, "USER_NOT_FOUND")
	}
	if err != nil {
		return 0, "", relationaldb.NewQueryError("get_user_password_hash", "failed to query password hash", err)
	}

	if !hash.Valid {
		return 0, "", relationaldb.NewNotFoundError("get_user_password_hash", relationaldb.ErrUserNotFound, "USER_NOT_FOUND")
	}

	return id, hash.String, nil
}

func (r *UserRepository) SetUserAccounts(ctx context.Context, userID int64, cashierAccountID, transportAccountID *int64) error {
	result, err := r.getExecutor().ExecContext(ctx,
		`UPDATE usr SET cashier_account_id = $1, transport_account_id = $2 WHERE id = $3`,
		cashierAccountID, transportAccountID, userID)
	if err != nil {
		return classifyError("set_user_accounts", "failed to update user accounts", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return relationaldb.NewQueryError("set_user_accounts", "failed to check update result", err)
	}
	if affected == 0 {
		return relationaldb.NewNotFoundError("set_user_accounts", relationaldb.ErrUserNotFound, "USER_NOT_FOUND")
	}

	return nil
}

func (r *UserRepository) SetUserCashRegister(ctx context.Context, userID int64, registerID *int64) error {
	result, err := r.getExecutor().ExecContext(ctx,
		`UPDATE usr SET cash_register_id = $1 WHERE id = $2`, registerID, userID)
	if err != nil {
		return classifyError("set_user_cash_register", "failed to update cash register binding", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return relationaldb.NewQueryError("set_user_cash_register", "failed to check update result", err)
	}
	if affected == 0 {
		return relationaldb.NewNotFoundError("set_user_cash_register", relationaldb.ErrUserNotFound, "USER_NOT_FOUND")
	}

	return nil
}

func (r *UserRepository) CreateUserRole(ctx context.Context, nodeID int64, newRole user.NewRole) (*user.Role, error) {
	var id int64
	err := r.getExecutor().QueryRowContext(ctx,
		`INSERT INTO user_role (node_id, name, privileges) VALUES ($1, $2, $3) RETURNING id`,
		nodeID, newRole.Name, privilegesArg(newRole.Privileges)).Scan(&id)
	if err != nil {
		return nil, classifyError("create_user_role", "failed to create role", err)
	}

	return r.GetUserRole(ctx, id)
}

func (r *UserRepository) GetUserRole(ctx context.Context, id int64) (*user.Role, error) {
	query := `SELECT id, node_id, name, privileges FROM user_role WHERE id = $1`

	role, err := scanRole(r.getExecutor().QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, relationaldb.NewNotFoundError("get_user_role", relationaldb.ErrRoleNotFound, "ROLE_NOT_FOUND")
	}
	if err != nil {
		return nil, relationaldb.NewQueryError("get_user_role", "failed to query role", err)
	}

	return role, nil
}

func (r *UserRepository) GetUserRoleByName(ctx context.Context, nodeID int64, name string) (*user.Role, error) {
	query := `SELECT id, node_id, name, privileges FROM user_role WHERE node_id = $1 AND name = $2`

	role, err := scanRole(r.getExecutor().QueryRowContext(ctx, query, nodeID, name))
	if err == sql.ErrNoRows {
		return nil, relationaldb.NewNotFoundError("get_user_role_by_name", relationaldb.ErrRoleNotFound, "ROLE_NOT_FOUND")
	}
	if err != nil {
		return nil, relationaldb.NewQueryError("get_user_role_by_name", "failed to query role", err)
	}

	return role, nil
}

func (r *UserRepository) ListUserRoles(ctx context.Context, nodeID int64) ([]user.Role, error) {
	query := `SELECT id, node_id, name, privileges FROM user_role WHERE node_id = $1 ORDER BY name`

	return r.listRoles(ctx, "list_user_roles", query, nodeID)
}

func (r *UserRepository) UpdateUserRole(ctx context.Context, id int64, update user.NewRole) (*user.Role, error) {
	result, err := r.getExecutor().ExecContext(ctx,
		`UPDATE user_role SET name = $1, privileges = $2 WHERE id = $3`,
		update.Name, privilegesArg(update.Privileges), id)
	if err != nil {
		return nil, classifyError("update_user_role", "failed to update role", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, relationaldb.NewQueryError("update_user_role", "failed to check update result", err)
	}
	if affected == 0 {
		return nil, relationaldb.NewNotFoundError("update_user_role", relationaldb.ErrRoleNotFound, "ROLE_NOT_FOUND")
	}

	return r.GetUserRole(ctx, id)
}

func (r *UserRepository) DeleteUserRole(ctx context.Context, id int64) error {
	result, err := r.getExecutor().ExecContext(ctx, `DELETE FROM user_role WHERE id = $1`, id)
	if err != nil {
		return classifyError("delete_user_role", "failed to delete role", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return relationaldb.NewQueryError("delete_user_role", "failed to check delete result", err)
	}
	if affected == 0 {
		return relationaldb.NewNotFoundError("delete_user_role", relationaldb.ErrRoleNotFound, "ROLE_NOT_FOUND")
	}

	return nil
}

func (r *UserRepository) SetUserRoles(ctx context.Context, userID int64, roleIDs []int64) error {
	_, err := r.getExecutor().ExecContext(ctx, `DELETE FROM user_to_role WHERE user_id = $1`, userID)
	if err != nil {
		return relationaldb.NewQueryError("set_user_roles", "failed to clear user roles", err)
	}

	if len(roleIDs) == 0 {
		return nil
	}

	_, err = r.getExecutor().ExecContext(ctx,
		`INSERT INTO user_to_role (user_id, role_id) SELECT $1, unnest($2::BIGINT[])`,
		userID, pq.Int64Array(roleIDs))
	if err != nil {
		return classifyError("set_user_roles", "failed to assign user roles", err)
	}

	return nil
}

func (r *UserRepository) GetUserRoles(ctx context.Context, userID int64) ([]user.Role, error) {
	query := `SELECT r.id, r.node_id, r.name, r.privileges
			  FROM user_role r
			  JOIN user_to_role utr ON r.id = utr.role_id
			  WHERE utr.user_id = $1 ORDER BY r.name`

	return r.listRoles(ctx, "get_user_roles", query, userID)
}

func (r *UserRepository) GetUserPrivileges(ctx context.Context, userID int64) ([]user.Privilege, error) {
	query := `SELECT DISTINCT unnest(r.privileges)
			  FROM user_role r
			  JOIN user_to_role utr ON r.id = utr.role_id
			  WHERE utr.user_id = $1 ORDER BY 1`

	rows, err := r.getExecutor().QueryContext(ctx, query, userID)
	if err != nil {
		return nil, relationaldb.NewQueryError("get_user_privileges", "failed to query privileges", err)
	}
	defer rows.Close()

	var privileges []user.Privilege
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, relationaldb.NewQueryError("get_user_privileges", "failed to scan privilege", err)
		}
		privileges = append(privileges, user.Privilege(p))
	}

	if err := rows.Err(); err != nil {
		return nil, relationaldb.NewQueryError("get_user_privileges", "failed to iterate privileges", err)
	}

	return privileges, nil
}

// ListTerminalLoginRoles returns the roles the tagged user may assume on
// a terminal running the given profile: the intersection of the user's
// roles and the profile's allowed roles.
func (r *UserRepository) ListTerminalLoginRoles(ctx context.Context, tagUID uint64, profileID int64) ([]user.Role, error) {
	query := `SELECT r.id, r.node_id, r.name, r.privileges
			  FROM user_role r
			  JOIN user_to_role utr ON r.id = utr.role_id
			  JOIN usr u ON u.id = utr.user_id
			  JOIN user_tag ut ON u.user_tag_id = ut.id
			  JOIN allowed_user_roles_for_till_profile a
				ON a.role_id = r.id AND a.profile_id = $2
			  WHERE ut.uid = $1 ORDER BY r.name`

	return r.listRoles(ctx, "list_terminal_login_roles", query, tagUIDArg(tagUID), profileID)
}

func (r *UserRepository) CreateUserSession(ctx context.Context, userID int64) (uuid.UUID, error) {
	var session uuid.UUID
	err := r.getExecutor().QueryRowContext(ctx,
		`INSERT INTO usr_session (usr) VALUES ($1) RETURNING uuid`, userID).Scan(&session)
	if err != nil {
		return uuid.Nil, classifyError("create_user_session", "failed to create session", err)
	}

	return session, nil
}

func (r *UserRepository) HasUserSession(ctx context.Context, userID int64, session uuid.UUID) (bool, error) {
	var exists bool
	err := r.getExecutor().QueryRowContext(ctx,
		`SELECT EXISTS (SELECT FROM usr_session WHERE usr = $1 AND uuid = $2)`,
		userID, session).Scan(&exists)
	if err != nil {
		return false, relationaldb.NewQueryError("has_user_session", "failed to query session", err)
	}

	return exists, nil
}

// DeleteUserSession is idempotent: logging out an already expired
// session is not an error.
func (r *UserRepository) DeleteUserSession(ctx context.Context, userID int64, session uuid.UUID) error {
	_, err := r.getExecutor().ExecContext(ctx,
		`DELETE FROM usr_session WHERE usr = $1 AND uuid = $2`, userID, session)
	if err != nil {
		return relationaldb.NewQueryError("delete_user_session", "failed to delete session", err)
	}

	return nil
}

func (r *UserRepository) resolveTagID(ctx context.Context, operation string, tagUID *uint64) (*int64, error) {
	if tagUID == nil {
		return nil, nil
	}

	var id int64
	err := r.getExecutor().QueryRowContext(ctx,
		`SELECT id FROM user_tag WHERE uid = $1`, tagUIDArg(*tagUID)).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, relationaldb.NewNotFoundError(operation, relationaldb.ErrUserTagNotFound, "USER_TAG_NOT_FOUND")
	}
	if err != nil {
		return nil, relationaldb.NewQueryError(operation, "failed to resolve user tag", err)
	}

	return &id, nil
}

func (r *UserRepository) assignRolesByName(ctx context.Context, userID, nodeID int64, roleNames []string) error {
	result, err := r.getExecutor().ExecContext(ctx,
		`INSERT INTO user_to_role (user_id, role_id)
		 SELECT $1, id FROM user_role WHERE node_id = $2 AND name = ANY($3)`,
		userID, nodeID, pq.StringArray(roleNames))
	if err != nil {
		return classifyError("assign_user_roles", "failed to assign user roles", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return relationaldb.NewQueryError("assign_user_roles", "failed to check assignment result", err)
	}
	if affected != int64(len(roleNames)) {
		return relationaldb.NewNotFoundError("assign_user_roles", relationaldb.ErrRoleNotFound, "ROLE_NOT_FOUND")
	}

	return nil
}

func (r *UserRepository) listRoles(ctx context.Context, operation, query string, args ...interface{}) ([]user.Role, error) {
	rows, err := r.getExecutor().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, relationaldb.NewQueryError(operation, "failed to query roles", err)
	}
	defer rows.Close()

	var roles []user.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, relationaldb.NewQueryError(operation, "failed to scan role", err)
		}
		roles = append(roles, *role)
	}

	if err := rows.Err(); err != nil {
		return nil, relationaldb.NewQueryError(operation, "failed to iterate roles", err)
	}

	return roles, nil
}

func scanUser(row scanner) (*user.User, error) {
	var u user.User
	var tagID, cashierAccID, transportAccID, registerID sql.NullInt64
	var uid sql.NullString

	err := row.Scan(&u.ID, &u.NodeID, &u.Login, &u.DisplayName, &u.Description,
		&tagID, &uid, &cashierAccID, &transportAccID, &registerID)
	if err != nil {
		return nil, err
	}

	u.UserTagID = ptrInt64(tagID)
	u.CashierAccountID = ptrInt64(cashierAccID)
	u.TransportAccountID = ptrInt64(transportAccID)
	u.CashRegisterID = ptrInt64(registerID)

	u.UserTagUID, err = ptrTagUID(uid)
	if err != nil {
		return nil, err
	}

	return &u, nil
}

func scanRole(row scanner) (*user.Role, error) {
	var role user.Role
	var privileges pq.StringArray

	err := row.Scan(&role.ID, &role.NodeID, &role.Name, &privileges)
	if err != nil {
		return nil, err
	}

	role.Privileges = make([]user.Privilege, len(privileges))
	for i, p := range privileges {
		role.Privileges[i] = user.Privilege(p)
	}

	return &role, nil
}

func privilegesArg(privileges []user.Privilege) pq.StringArray {
	arr := make(pq.StringArray, len(privileges))
	for i, p := range privileges {
		arr[i] = string(p)
	}
	return arr
}
