package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kathanshah86/battle-mitra-hub-sub000/internal/domain"
)

const (
	createRoomQuery = `
		INSERT INTO rooms (name, type, description, image_url)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	getRoomByNameQuery = `
		SELECT id, name, type, description, image_url, created_at
		FROM rooms
		WHERE name = $1
	`
	listRoomsQuery = `
		SELECT id, name, type, description, image_url, created_at
		FROM rooms
		ORDER BY name ASC
		LIMIT $1
	`
)

// RoomRepository implements domain.RoomRepository for PostgreSQL
type RoomRepository struct {
	db            *sql.DB
	createStmt    *sql.Stmt
	getByNameStmt *sql.Stmt
	listStmt      *sql.Stmt
}

// NewRoomRepository creates a new RoomRepository with prepared statements.
func NewRoomRepository(db *sql.DB) (*RoomRepository, error) {
	repo := &RoomRepository{db: db}

	var err error
	repo.createStmt, err = db.Prepare(createRoomQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare create statement: %w", err)
	}

	repo.getByNameStmt, err = db.Prepare(getRoomByNameQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare getByName statement: %w", err)
	}

	repo.listStmt, err = db.Prepare(listRoomsQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare list statement: %w", err)
	}

	return repo, nil
}

// Create inserts a new room. Returns domain.ErrRoomExists when the name is taken.
func (r *RoomRepository) Create(ctx context.Context, room *domain.Room) error {
	if room.Type == "" {
		room.Type = domain.RoomTypeGeneral
	}
	err := r.createStmt.QueryRowContext(ctx,
		room.Name,
		string(room.Type),
		nullString(room.Description),
		nullString(room.ImageURL),
	).Scan(&room.ID, &room.CreatedAt)
	if IsRoomNameTaken(err) {
		return domain.ErrRoomExists
	}
	if err != nil {
		return fmt.Errorf("failed to create room: %w", err)
	}
	return nil
}

// GetByName retrieves a room by its unique name
func (r *RoomRepository) GetByName(ctx context.Context, name string) (*domain.Room, error) {
	room, err := scanRoom(r.getByNameStmt.QueryRowContext(ctx, name))
	if err == sql.ErrNoRows {
		return nil, domain.ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get room by name: %w", err)
	}
	return room, nil
}

// List retrieves up to limit rooms ordered by name
func (r *RoomRepository) List(ctx context.Context, limit int) ([]*domain.Room, error) {
	rows, err := r.listStmt.QueryContext(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query rooms: %w", err)
	}
	defer rows.Close()

	rooms := make([]*domain.Room, 0, limit)
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan room: %w", err)
		}
		rooms = append(rooms, room)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rooms: %w", err)
	}
	return rooms, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRoom(row rowScanner) (*domain.Room, error) {
	var (
		room        domain.Room
		roomType    string
		description sql.NullString
		imageURL    sql.NullString
	)
	if err := row.Scan(&room.ID, &room.Name, &roomType, &description, &imageURL, &room.CreatedAt); err != nil {
		return nil, err
	}
	room.Type = domain.RoomType(roomType)
	room.Description = description.String
	room.ImageURL = imageURL.String
	return &room, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
