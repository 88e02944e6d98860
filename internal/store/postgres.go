package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"thoughtful/api/internal/util"
)

const userColumns = `id, username, password_hash, status_definitions, api_keys, version, created_at`

var ideaColumns = []string{
	"id", "user_id", "title", "description", "tags", "icon", "status_id",
	"todos", "resources", "created_at", "updated_at",
}

var sortColumns = map[SortField]string{
	SortCreatedAt: "created_at",
	SortUpdatedAt: "updated_at",
	SortTitle:     "title",
}

type PostgresStore struct {
	db *sqlx.DB
	sb squirrel.StatementBuilderType
}

func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{
		db: db,
		sb: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (s *PostgresStore) DB() *sqlx.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, password_hash, status_definitions, api_keys, version, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, user.ID, user.Username, user.PasswordHash, user.StatusDefinitions, user.APIKeys, user.Version, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert user: %w", ErrConflict)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID)
}

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (User, error) {
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
}

func (s *PostgresStore) GetUserByAPIKeyHash(ctx context.Context, keyHash string) (User, error) {
	return s.getUser(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE api_keys @> jsonb_build_array(jsonb_build_object('keyHash', $1::text))
	`, keyHash)
}

func (s *PostgresStore) getUser(ctx context.Context, query string, arg any) (User, error) {
	var user User
	if err := s.db.GetContext(ctx, &user, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("read user: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password_hash = $2, version = version + 1 WHERE id = $1
	`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return requireAffected(res, ErrNotFound)
}

// SaveUserCollections replaces the embedded status definitions and api keys
// of user, provided the stored version still equals user.Version.
func (s *PostgresStore) SaveUserCollections(ctx context.Context, user User) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET status_definitions = $1, api_keys = $2, version = version + 1
		WHERE id = $3 AND version = $4
	`, user.StatusDefinitions, user.APIKeys, user.ID, user.Version)
	if err != nil {
		return fmt.Errorf("save user collections: %w", err)
	}
	return requireAffected(res, ErrVersionConflict)
}

func (s *PostgresStore) DeleteUser(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, userID); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateSession(ctx context.Context, session Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, token, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`, session.ID, session.UserID, session.Token, session.CreatedAt, session.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSession(ctx context.Context, token string) (Session, error) {
	var session Session
	err := s.db.GetContext(ctx, &session, `
		SELECT id, user_id, token, created_at, expires_at FROM sessions WHERE token = $1
	`, token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, ErrNotFound
		}
		return Session{}, fmt.Errorf("read session: %w", err)
	}
	return session, nil
}

func (s *PostgresStore) DeleteSession(ctx context.Context, token string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = $1`, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteUserSessions(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete user sessions: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertIdea(ctx context.Context, idea Idea) error {
	query, args, err := s.sb.Insert("ideas").
		Columns(ideaColumns...).
		Values(idea.ID, idea.UserID, idea.Title, idea.Description, idea.Tags, idea.Icon, idea.StatusID,
			idea.Todos, idea.Resources, idea.CreatedAt, idea.UpdatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert idea: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert idea: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetIdea(ctx context.Context, userID, ideaID string) (Idea, error) {
	if !util.IsID(ideaID) {
		return Idea{}, ErrNotFound
	}
	query, args, err := s.sb.Select(ideaColumns...).
		From("ideas").
		Where(squirrel.Eq{"id": ideaID, "user_id": userID}).
		ToSql()
	if err != nil {
		return Idea{}, fmt.Errorf("build get idea: %w", err)
	}
	var idea Idea
	if err := s.db.GetContext(ctx, &idea, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Idea{}, ErrNotFound
		}
		return Idea{}, fmt.Errorf("read idea: %w", err)
	}
	return idea, nil
}

// UpdateIdea applies patch to the idea owned by userID and always sets
// updated_at. It returns ErrNotFound when no owned idea matched.
func (s *PostgresStore) UpdateIdea(ctx context.Context, userID, ideaID string, patch IdeaPatch, updatedAt time.Time) error {
	if !util.IsID(ideaID) {
		return ErrNotFound
	}
	fields := map[string]any{"updated_at": updatedAt}
	if patch.Title != nil {
		fields["title"] = *patch.Title
	}
	if patch.Description != nil {
		fields["description"] = *patch.Description
	}
	if patch.Tags != nil {
		fields["tags"] = pq.StringArray(*patch.Tags)
	}
	if patch.Icon != nil {
		fields["icon"] = *patch.Icon
	}
	if patch.StatusID != nil {
		if *patch.StatusID == "" {
			fields["status_id"] = nil
		} else {
			fields["status_id"] = *patch.StatusID
		}
	}
	if patch.Todos != nil {
		fields["todos"] = TodoLists(*patch.Todos)
	}
	if patch.Resources != nil {
		fields["resources"] = Resources(*patch.Resources)
	}

	query, args, err := s.sb.Update("ideas").
		SetMap(fields).
		Where(squirrel.Eq{"id": ideaID, "user_id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update idea: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update idea: %w", err)
	}
	return requireAffected(res, ErrNotFound)
}

func (s *PostgresStore) DeleteIdea(ctx context.Context, userID, ideaID string) (int64, error) {
	if !util.IsID(ideaID) {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM ideas WHERE id = $1 AND user_id = $2`, ideaID, userID)
	if err != nil {
		return 0, fmt.Errorf("delete idea: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete idea: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) ListIdeas(ctx context.Context, userID string, filter IdeaFilter) ([]Idea, error) {
	where := squirrel.Eq{"user_id": userID}
	if filter.StatusID != "" {
		where["status_id"] = filter.StatusID
	}

	column, ok := sortColumns[filter.SortBy]
	if !ok {
		column = sortColumns[SortUpdatedAt]
	}
	direction := "DESC"
	if filter.SortOrder == SortAsc {
		direction = "ASC"
	}

	builder := s.sb.Select(ideaColumns...).
		From("ideas").
		Where(where).
		OrderBy(column+" "+direction, "id "+direction)
	return s.selectIdeas(ctx, builder)
}

// SearchIdeas returns the ideas of userID whose title, description or any tag
// contains query, ignoring case.
func (s *PostgresStore) SearchIdeas(ctx context.Context, userID, query string) ([]Idea, error) {
	pattern := likePattern(query)
	builder := s.sb.Select(ideaColumns...).
		From("ideas").
		Where(squirrel.Eq{"user_id": userID}).
		Where(squirrel.Or{
			squirrel.ILike{"title": pattern},
			squirrel.ILike{"description": pattern},
			squirrel.Expr("EXISTS (SELECT 1 FROM unnest(tags) AS tag WHERE tag ILIKE ?)", pattern),
		}).
		OrderBy("updated_at DESC", "id DESC")
	return s.selectIdeas(ctx, builder)
}

func (s *PostgresStore) selectIdeas(ctx context.Context, builder squirrel.SelectBuilder) ([]Idea, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build idea query: %w", err)
	}
	items := make([]Idea, 0)
	if err := s.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("list ideas: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) CountIdeasWithStatus(ctx context.Context, userID, statusID string) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM ideas WHERE user_id = $1 AND status_id = $2
	`, userID, statusID)
	if err != nil {
		return 0, fmt.Errorf("count ideas with status: %w", err)
	}
	return count, nil
}

// ReassignIdeaStatus moves every idea of userID at fromStatus to toStatus and
// returns how many ideas changed.
func (s *PostgresStore) ReassignIdeaStatus(ctx context.Context, userID, fromStatus, toStatus string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE ideas SET status_id = $3
		WHERE user_id = $1 AND status_id = $2 AND status_id <> $3
	`, userID, fromStatus, toStatus)
	if err != nil {
		return 0, fmt.Errorf("reassign idea status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reassign idea status: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) DeleteUserIdeas(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM ideas WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete user ideas: %w", err)
	}
	return nil
}

// ListIdeasAfter pages through every stored idea ordered by id.
func (s *PostgresStore) ListIdeasAfter(ctx context.Context, afterID string, limit int) ([]Idea, error) {
	builder := s.sb.Select(ideaColumns...).From("ideas")
	if afterID != "" {
		builder = builder.Where(squirrel.Gt{"id": afterID})
	}
	builder = builder.OrderBy("id ASC").Limit(uint64(limit))
	return s.selectIdeas(ctx, builder)
}

func requireAffected(res sql.Result, none error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return none
	}
	return nil
}

func likePattern(query string) string {
	escaper := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + escaper.Replace(query) + "%"
}
