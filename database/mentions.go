package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/dishgraph/dishgraph/helper"
	"github.com/dishgraph/dishgraph/model"
	"github.com/dishgraph/dishgraph/sql"
	"github.com/google/uuid"
)

// MentionsDBHandlerFunctions defines the interface for mention database operations.
type MentionsDBHandlerFunctions interface {
	InsertMention(mention *model.Mention) (bool, error)
	SelectMentionsByConnection(connectionID uuid.UUID) ([]*model.Mention, error)
	DeleteMention(id uuid.UUID) error
}

// MentionsDBHandler handles mention-related database operations
type MentionsDBHandler struct {
	db *helper.Database
}

// NewMentionsDBHandler creates a new mentions database handler.
// It initializes the database connection and loads mention-related SQL functions.
// If force is true, it will reload the SQL functions even if they already exist.
func NewMentionsDBHandler(db *helper.Database, force bool) (*MentionsDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	mentionsDbHandler := &MentionsDBHandler{
		db: db,
	}

	err := sql.LoadMentionsSql(mentionsDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load mentions sql", err)
	}

	err = mentionsDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized MentionsDBHandler")

	return mentionsDbHandler, nil
}

// CreateTable creates the 'mentions' table in the database.
// If the table already exists, it does not create it again.
// It also creates all necessary indexes.
func (h *MentionsDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_mentions();`)
	if err != nil {
		log.Panicf("error initializing mentions table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table mentions")

	return nil
}

// InsertMention inserts a mention unless its source is already known.
// Returns whether a row was created.
func (h *MentionsDBHandler) InsertMention(mention *model.Mention) (bool, error) {
	var created bool
	err := h.db.Instance.QueryRow(
		`SELECT insert_mention($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		mention.ID,
		mention.ConnectionID,
		mention.SourceType,
		mention.SourceID,
		mention.SourceURL,
		mention.Subreddit,
		mention.Excerpt,
		mention.Author,
		mention.Upvotes,
		mention.CreatedAt,
	).Scan(&created)
	if err != nil {
		return false, helper.NewError("scan", err)
	}

	return created, nil
}

// SelectMentionsByConnection retrieves the mentions of a connection, newest first
func (h *MentionsDBHandler) SelectMentionsByConnection(connectionID uuid.UUID) ([]*model.Mention, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_mentions_by_connection($1)`,
		connectionID,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var mentions []*model.Mention
	for rows.Next() {
		mention := &model.Mention{}
		err := rows.Scan(
			&mention.ID,
			&mention.ConnectionID,
			&mention.SourceType,
			&mention.SourceID,
			&mention.SourceURL,
			&mention.Subreddit,
			&mention.Excerpt,
			&mention.Author,
			&mention.Upvotes,
			&mention.CreatedAt,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		mentions = append(mentions, mention)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return mentions, nil
}

// DeleteMention deletes a mention by ID
func (h *MentionsDBHandler) DeleteMention(id uuid.UUID) error {
	_, err := h.db.Instance.Exec(
		`SELECT delete_mention($1)`,
		id,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}
