package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"
)

// WorkshopApproved is the only workshop status that accepts bookings.
const WorkshopApproved = "approved"

var (
	ErrWorkshopNotFound = errors.New("workshop not found")
	ErrVehicleNotFound  = errors.New("vehicle not found")
	ErrCustomerNotFound = errors.New("customer not found")
)

type Workshop struct {
	ID     string `db:"id" json:"id"`
	Name   string `db:"name" json:"name"`
	Status string `db:"status" json:"status"`
}

type Vehicle struct {
	ID       string `db:"id" json:"id"`
	OwnerID  string `db:"owner_id" json:"owner_id"`
	Brand    string `db:"brand" json:"brand"`
	Model    string `db:"model" json:"model"`
	Year     int    `db:"year" json:"year"`
	Plate    string `db:"plate" json:"plate"`
	Odometer int64  `db:"odometer" json:"odometer"`
}

type Customer struct {
	ID          string `db:"id" json:"id"`
	Email       string `db:"email" json:"email"`
	DisplayName string `db:"display_name" json:"display_name"`
}

type WorkshopDirectory interface {
	GetWorkshop(ctx context.Context, id string) (*Workshop, error)
}

type VehicleDirectory interface {
	GetVehicle(ctx context.Context, id string) (*Vehicle, error)
}

type CustomerDirectory interface {
	GetCustomer(ctx context.Context, id string) (*Customer, error)
}

// SQLDirectory reads workshops, vehicles and customers owned by the
// marketplace's CRUD side.
type SQLDirectory struct {
	db *sqlx.DB
}

func NewSQLDirectory(db *sqlx.DB) *SQLDirectory {
	return &SQLDirectory{db: db}
}

func (d *SQLDirectory) GetWorkshop(ctx context.Context, id string) (*Workshop, error) {
	var w Workshop
	err := d.db.GetContext(ctx, &w, `SELECT id, name, status FROM workshops WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrWorkshopNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workshop: %w", err)
	}
	return &w, nil
}

func (d *SQLDirectory) GetVehicle(ctx context.Context, id string) (*Vehicle, error) {
	var v Vehicle
	err := d.db.GetContext(ctx, &v, `
		SELECT id, owner_id, brand, model, year, plate, odometer
		FROM vehicles WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrVehicleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get vehicle: %w", err)
	}
	return &v, nil
}

func (d *SQLDirectory) GetCustomer(ctx context.Context, id string) (*Customer, error) {
	var c Customer
	err := d.db.GetContext(ctx, &c, `SELECT id, email, display_name FROM customers WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCustomerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	return &c, nil
}

// MemoryDirectory is a seeded in-process directory.
type MemoryDirectory struct {
	mu        sync.RWMutex
	workshops map[string]Workshop
	vehicles  map[string]Vehicle
	customers map[string]Customer
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		workshops: make(map[string]Workshop),
		vehicles:  make(map[string]Vehicle),
		customers: make(map[string]Customer),
	}
}

func (d *MemoryDirectory) AddWorkshop(w Workshop) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.workshops[w.ID] = w
}

func (d *MemoryDirectory) AddVehicle(v Vehicle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.vehicles[v.ID] = v
}

func (d *MemoryDirectory) AddCustomer(c Customer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.customers[c.ID] = c
}

func (d *MemoryDirectory) GetWorkshop(ctx context.Context, id string) (*Workshop, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	w, ok := d.workshops[id]
	if !ok {
		return nil, ErrWorkshopNotFound
	}
	return &w, nil
}

func (d *MemoryDirectory) GetVehicle(ctx context.Context, id string) (*Vehicle, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	v, ok := d.vehicles[id]
	if !ok {
		return nil, ErrVehicleNotFound
	}
	return &v, nil
}

func (d *MemoryDirectory) GetCustomer(ctx context.Context, id string) (*Customer, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.customers[id]
	if !ok {
		return nil, ErrCustomerNotFound
	}
	return &c, nil
}
