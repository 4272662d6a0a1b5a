package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/dishgraph/dishgraph/helper"
	"github.com/dishgraph/dishgraph/model"
	dishsql "github.com/dishgraph/dishgraph/sql"
	"github.com/google/uuid"
)

// ConnectionsDBHandlerFunctions defines the interface for connection database operations.
type ConnectionsDBHandlerFunctions interface {
	InsertConnection(connection *model.Connection) error
	SelectConnection(id uuid.UUID) (*model.Connection, error)
	SelectConnectionByTuple(restaurantID, dishOrCategoryID uuid.UUID, signature string) (*model.Connection, error)
	SelectConnectionsByPair(restaurantID, dishOrCategoryID uuid.UUID) ([]*model.Connection, error)
	SelectConnectionsByRestaurant(restaurantID uuid.UUID) ([]*model.Connection, error)
	UpdateConnection(connection *model.Connection) error
	UpdateQualityScore(id uuid.UUID, score float64) error
	DeleteConnection(id uuid.UUID) error
}

// ConnectionsDBHandler handles connection-related database operations
type ConnectionsDBHandler struct {
	db *helper.Database
}

// NewConnectionsDBHandler creates a new connections database handler.
// It initializes the database connection and loads connection-related SQL functions.
// If force is true, it will reload the SQL functions even if they already exist.
func NewConnectionsDBHandler(db *helper.Database, force bool) (*ConnectionsDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	connectionsDbHandler := &ConnectionsDBHandler{
		db: db,
	}

	err := dishsql.LoadConnectionsSql(connectionsDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load connections sql", err)
	}

	err = connectionsDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized ConnectionsDBHandler")

	return connectionsDbHandler, nil
}

// CreateTable creates the 'connections' table in the database.
// If the table already exists, it does not create it again.
// It also creates all necessary indexes.
func (h *ConnectionsDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_connections();`)
	if err != nil {
		log.Panicf("error initializing connections table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table connections")

	return nil
}

// scanConnection scans one connection row, mapping the nullable quality score.
func scanConnection(row interface{ Scan(...interface{}) error }) (*model.Connection, error) {
	connection := &model.Connection{}
	var score sql.NullFloat64

	err := row.Scan(
		&connection.ID,
		&connection.RestaurantID,
		&connection.DishOrCategoryID,
		&connection.Attributes,
		&connection.Metrics,
		&score,
		&connection.CreatedAt,
		&connection.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if score.Valid {
		connection.QualityScore = &score.Float64
	}

	return connection, nil
}

// InsertConnection inserts a new connection. Fails on a duplicate
// (restaurant, dish, signature) tuple.
func (h *ConnectionsDBHandler) InsertConnection(connection *model.Connection) error {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM insert_connection($1, $2, $3, $4, $5)`,
		connection.RestaurantID,
		connection.DishOrCategoryID,
		connection.SelectiveSignature(),
		connection.Attributes,
		connection.Metrics,
	)

	inserted, err := scanConnection(row)
	if err != nil {
		return helper.NewError("scan", err)
	}
	*connection = *inserted

	return nil
}

// SelectConnection retrieves a connection by ID
func (h *ConnectionsDBHandler) SelectConnection(id uuid.UUID) (*model.Connection, error) {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_connection($1)`,
		id,
	)

	connection, err := scanConnection(row)
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return connection, nil
}

// SelectConnectionByTuple retrieves a connection by its identity tuple
func (h *ConnectionsDBHandler) SelectConnectionByTuple(restaurantID, dishOrCategoryID uuid.UUID, signature string) (*model.Connection, error) {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_connection_by_tuple($1, $2, $3)`,
		restaurantID,
		dishOrCategoryID,
		signature,
	)

	connection, err := scanConnection(row)
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return connection, nil
}

// SelectConnectionsByPair retrieves all connections of a restaurant-dish pair
func (h *ConnectionsDBHandler) SelectConnectionsByPair(restaurantID, dishOrCategoryID uuid.UUID) ([]*model.Connection, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_connections_by_pair($1, $2)`,
		restaurantID,
		dishOrCategoryID,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	return scanConnections(rows)
}

// SelectConnectionsByRestaurant retrieves all connections of a restaurant
func (h *ConnectionsDBHandler) SelectConnectionsByRestaurant(restaurantID uuid.UUID) ([]*model.Connection, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_connections_by_restaurant($1)`,
		restaurantID,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	return scanConnections(rows)
}

func scanConnections(rows *sql.Rows) ([]*model.Connection, error) {
	var connections []*model.Connection
	for rows.Next() {
		connection, err := scanConnection(rows)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		connections = append(connections, connection)
	}

	err := rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return connections, nil
}

// UpdateConnection overwrites attributes and metrics of a connection
func (h *ConnectionsDBHandler) UpdateConnection(connection *model.Connection) error {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM update_connection($1, $2, $3)`,
		connection.ID,
		connection.Attributes,
		connection.Metrics,
	)

	updated, err := scanConnection(row)
	if err != nil {
		return helper.NewError("scan", err)
	}
	*connection = *updated

	return nil
}

// UpdateQualityScore stores a freshly computed quality score
func (h *ConnectionsDBHandler) UpdateQualityScore(id uuid.UUID, score float64) error {
	_, err := h.db.Instance.Exec(
		`SELECT update_quality_score($1, $2)`,
		id,
		score,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

// DeleteConnection deletes a connection by ID
func (h *ConnectionsDBHandler) DeleteConnection(id uuid.UUID) error {
	_, err := h.db.Instance.Exec(
		`SELECT delete_connection($1)`,
		id,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}
