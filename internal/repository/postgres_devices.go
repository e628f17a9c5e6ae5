package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"babyguardian-vitals/internal/models"

	"go.uber.org/zap"
)

// PostgresDeviceRepository devices 表
type PostgresDeviceRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresDeviceRepository 创建设备仓库
func NewPostgresDeviceRepository(db *sql.DB, logger *zap.Logger) *PostgresDeviceRepository {
	return &PostgresDeviceRepository{db: db, logger: logger}
}

// EnsureDevice 实现 DeviceRepository
func (r *PostgresDeviceRepository) EnsureDevice(ctx context.Context, deviceID, hardwareAddress string) (Registration, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO devices (device_id, mac_address)
		VALUES ($1, $2)
		ON CONFLICT (device_id) DO NOTHING
	`, deviceID, hardwareAddress)
	if err != nil {
		return Registration{}, fmt.Errorf("failed to insert device: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return Registration{Created: true}, nil
	}

	if hardwareAddress == "" {
		return Registration{}, nil
	}

	var current string
	err = r.db.QueryRowContext(ctx, `SELECT mac_address FROM devices WHERE device_id = $1`, deviceID).Scan(&current)
	if err != nil {
		return Registration{}, fmt.Errorf("failed to query device mac: %w", err)
	}
	if current == hardwareAddress {
		return Registration{}, nil
	}

	_, err = r.db.ExecContext(ctx, `
		UPDATE devices SET mac_address = $2, updated_at = now()
		WHERE device_id = $1
	`, deviceID, hardwareAddress)
	if err != nil {
		return Registration{}, fmt.Errorf("failed to update device mac: %w", err)
	}
	return Registration{AddressChanged: true, PreviousAddress: current}, nil
}

// GetDevice 查询单个设备
func (r *PostgresDeviceRepository) GetDevice(ctx context.Context, deviceID string) (*models.DeviceIdentity, error) {
	query := `
		SELECT device_id, mac_address, owner_user_id, created_at, updated_at
		FROM devices
		WHERE device_id = $1
		LIMIT 1
	`

	d := &models.DeviceIdentity{}
	var owner sql.NullString
	err := r.db.QueryRowContext(ctx, query, deviceID).Scan(
		&d.DeviceID,
		&d.HardwareAddress,
		&owner,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("failed to query device: %w", err)
	}
	if owner.Valid {
		d.OwnerID = &owner.String
	}
	return d, nil
}

// FindOwnedDeviceIDs 用户拥有的设备ID
func (r *PostgresDeviceRepository) FindOwnedDeviceIDs(ctx context.Context, ownerID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT device_id FROM devices WHERE owner_user_id = $1 ORDER BY device_id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query owned devices: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan device id: %w", err)
		}
		ids = append(ids, models.NormalizeDeviceID(id))
	}
	return ids, rows.Err()
}

// IsOwner 用户是否拥有该设备（设备ID不区分大小写）
func (r *PostgresDeviceRepository) IsOwner(ctx context.Context, ownerID, deviceID string) (bool, error) {
	var ok bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM devices WHERE lower(device_id) = $1 AND owner_user_id = $2)`,
		models.NormalizeDeviceID(deviceID), ownerID,
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("failed to check device owner: %w", err)
	}
	return ok, nil
}
