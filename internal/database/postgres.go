package database

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"chat-realtime/internal/models"
	"chat-realtime/pkg/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

//go:embed migrations/schema.sql
var schemaSQL string

// ErrDuplicate is returned when a unique constraint rejects an insert.
var ErrDuplicate = errors.New("already exists")

type PostgresDB struct {
	pool *pgxpool.Pool
}

func NewPostgresDB(ctx context.Context, databaseURL string) (*PostgresDB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Connected to database successfully")
	return &PostgresDB{pool: pool}, nil
}

// Migrate creates any missing tables and indexes.
func (db *PostgresDB) Migrate(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (db *PostgresDB) Close() error {
	db.pool.Close()
	return nil
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// User Repository Implementation
func (db *PostgresDB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT id, username, email, password_hash, created_at FROM users WHERE email = $1`

	user := &models.User{}
	err := db.pool.QueryRow(ctx, query, email).Scan(
		&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.CreatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}

	return user, nil
}

func (db *PostgresDB) CreateUser(ctx context.Context, req *models.RegisterRequest) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	query := `
		INSERT INTO users (username, email, password_hash, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING id, username, email, created_at`

	user := &models.User{PasswordHash: string(hash)}
	err = db.pool.QueryRow(ctx, query, req.Username, req.Email, string(hash)).Scan(
		&user.ID, &user.Username, &user.Email, &user.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("user %q: %w", req.Email, ErrDuplicate)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return user, nil
}

func (db *PostgresDB) GetUserByID(ctx context.Context, id int) (*models.User, error) {
	query := `SELECT id, username, email, created_at FROM users WHERE id = $1`

	user := &models.User{}
	err := db.pool.QueryRow(ctx, query, id).Scan(
		&user.ID, &user.Username, &user.Email, &user.CreatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}

	return user, nil
}

// Group Repository Implementation
func (db *PostgresDB) CreateGroup(ctx context.Context, name string, creatorID int) (*models.Group, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	group := &models.Group{}
	err = tx.QueryRow(ctx, `
		INSERT INTO groups (name, created_by, created_at)
		VALUES ($1, $2, NOW())
		RETURNING id, name, created_by, created_at`,
		name, creatorID,
	).Scan(&group.ID, &group.Name, &group.CreatedBy, &group.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create group: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO group_members (group_id, user_id, is_admin, joined_at)
		VALUES ($1, $2, TRUE, NOW())`,
		group.ID, creatorID,
	); err != nil {
		return nil, fmt.Errorf("failed to add group creator: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return group, nil
}

func (db *PostgresDB) GetGroupByID(ctx context.Context, id int) (*models.Group, error) {
	query := `SELECT id, name, created_by, created_at FROM groups WHERE id = $1`

	group := &models.Group{}
	err := db.pool.QueryRow(ctx, query, id).Scan(
		&group.ID, &group.Name, &group.CreatedBy, &group.CreatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}

	return group, nil
}

func (db *PostgresDB) ListUserGroups(ctx context.Context, userID int) ([]*models.Group, error) {
	query := `
		SELECT g.id, g.name, g.created_by, g.created_at
		FROM groups g
		JOIN group_members m ON g.id = m.group_id
		WHERE m.user_id = $1
		ORDER BY g.name`

	rows, err := db.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []*models.Group
	for rows.Next() {
		group := &models.Group{}
		if err := rows.Scan(&group.ID, &group.Name, &group.CreatedBy, &group.CreatedAt); err != nil {
			return nil, err
		}
		groups = append(groups, group)
	}

	return groups, rows.Err()
}

// Membership Repository Implementation
func (db *PostgresDB) AddMember(ctx context.Context, groupID, userID int, isAdmin bool) error {
	query := `
		INSERT INTO group_members (group_id, user_id, is_admin, joined_at) VALUES ($1, $2, $3, NOW())
		ON CONFLICT (group_id, user_id) DO NOTHING`

	_, err := db.pool.Exec(ctx, query, groupID, userID, isAdmin)
	return err
}

func (db *PostgresDB) RemoveMember(ctx context.Context, groupID, userID int) error {
	query := `DELETE FROM group_members WHERE group_id = $1 AND user_id = $2`
	_, err := db.pool.Exec(ctx, query, groupID, userID)
	return err
}

func (db *PostgresDB) SetAdmin(ctx context.Context, groupID, userID int, isAdmin bool) error {
	query := `UPDATE group_members SET is_admin = $3 WHERE group_id = $1 AND user_id = $2`

	tag, err := db.pool.Exec(ctx, query, groupID, userID, isAdmin)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *PostgresDB) IsGroupMember(ctx context.Context, groupID, userID int) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM group_members WHERE group_id = $1 AND user_id = $2)`

	var exists bool
	err := db.pool.QueryRow(ctx, query, groupID, userID).Scan(&exists)
	return exists, err
}

func (db *PostgresDB) IsGroupAdmin(ctx context.Context, groupID, userID int) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM group_members WHERE group_id = $1 AND user_id = $2 AND is_admin)`

	var admin bool
	err := db.pool.QueryRow(ctx, query, groupID, userID).Scan(&admin)
	return admin, err
}

func (db *PostgresDB) GetGroupMembers(ctx context.Context, groupID int) ([]*models.GroupMember, error) {
	query := `
		SELECT m.group_id, u.id, u.username, m.is_admin, m.joined_at
		FROM group_members m
		JOIN users u ON m.user_id = u.id
		WHERE m.group_id = $1
		ORDER BY u.username`

	rows, err := db.pool.Query(ctx, query, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []*models.GroupMember
	for rows.Next() {
		member := &models.GroupMember{}
		if err := rows.Scan(&member.GroupID, &member.UserID, &member.Username, &member.IsAdmin, &member.JoinedAt); err != nil {
			return nil, err
		}
		members = append(members, member)
	}

	return members, rows.Err()
}

// Message Repository Implementation
func (db *PostgresDB) SaveDirectMessage(ctx context.Context, msg *models.DirectMessage) error {
	query := `
		INSERT INTO direct_messages (sender_id, receiver_id, body, sent_at, is_read)
		VALUES ($1, $2, $3, NOW(), $4)
		RETURNING id, sent_at`

	err := db.pool.QueryRow(ctx, query, msg.SenderID, msg.ReceiverID, msg.Body, msg.IsRead).Scan(
		&msg.ID, &msg.SentAtUTC,
	)
	if err != nil {
		return fmt.Errorf("failed to save direct message: %w", err)
	}
	msg.SentAtUTC = msg.SentAtUTC.UTC()
	return nil
}

func (db *PostgresDB) MarkDirectMessageRead(ctx context.Context, id int) (bool, error) {
	query := `UPDATE direct_messages SET is_read = TRUE WHERE id = $1 AND NOT is_read`

	tag, err := db.pool.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to mark message %d read: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (db *PostgresDB) MarkDirectMessagesRead(ctx context.Context, senderID, receiverID int) (int64, error) {
	query := `UPDATE direct_messages SET is_read = TRUE WHERE sender_id = $1 AND receiver_id = $2 AND NOT is_read`

	tag, err := db.pool.Exec(ctx, query, senderID, receiverID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark messages read: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (db *PostgresDB) ListDirectMessages(ctx context.Context, userID, peerID int, q models.HistoryQuery) ([]*models.DirectMessage, error) {
	query := `
		SELECT m.id, m.sender_id, s.username, m.receiver_id, r.username, m.body, m.sent_at, m.is_read
		FROM direct_messages m
		JOIN users s ON m.sender_id = s.id
		JOIN users r ON m.receiver_id = r.id
		WHERE ((m.sender_id = $1 AND m.receiver_id = $2) OR (m.sender_id = $2 AND m.receiver_id = $1))
		  AND ($3 = 0 OR m.id < $3)
		ORDER BY m.id DESC
		LIMIT $4`

	rows, err := db.pool.Query(ctx, query, userID, peerID, q.Before, q.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*models.DirectMessage
	for rows.Next() {
		msg := &models.DirectMessage{}
		if err := rows.Scan(&msg.ID, &msg.SenderID, &msg.SenderUsername, &msg.ReceiverID,
			&msg.ReceiverUsername, &msg.Body, &msg.SentAtUTC, &msg.IsRead); err != nil {
			return nil, err
		}
		msg.SentAtUTC = msg.SentAtUTC.UTC()
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to show oldest first
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

func (db *PostgresDB) SaveGroupMessage(ctx context.Context, msg *models.GroupMessage) error {
	query := `
		INSERT INTO group_messages (group_id, sender_id, body, sent_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING id, sent_at`

	err := db.pool.QueryRow(ctx, query, msg.GroupID, msg.SenderID, msg.Body).Scan(&msg.ID, &msg.SentAtUTC)
	if err != nil {
		return fmt.Errorf("failed to save group message: %w", err)
	}
	msg.SentAtUTC = msg.SentAtUTC.UTC()
	return nil
}

func (db *PostgresDB) ListGroupMessages(ctx context.Context, groupID int, q models.HistoryQuery) ([]*models.GroupMessage, error) {
	query := `
		SELECT m.id, m.group_id, m.sender_id, u.username, m.body, m.sent_at
		FROM group_messages m
		JOIN users u ON m.sender_id = u.id
		WHERE m.group_id = $1 AND ($2 = 0 OR m.id < $2)
		ORDER BY m.id DESC
		LIMIT $3`

	rows, err := db.pool.Query(ctx, query, groupID, q.Before, q.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*models.GroupMessage
	for rows.Next() {
		msg := &models.GroupMessage{}
		if err := rows.Scan(&msg.ID, &msg.GroupID, &msg.SenderID, &msg.SenderUsername, &msg.Body, &msg.SentAtUTC); err != nil {
			return nil, err
		}
		msg.SentAtUTC = msg.SentAtUTC.UTC()
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}
