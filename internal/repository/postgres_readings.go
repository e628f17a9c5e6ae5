package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"babyguardian-vitals/internal/models"

	"go.uber.org/zap"
)

// PostgresReadingRepository sensor_readings 表
type PostgresReadingRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresReadingRepository 创建读数仓库
func NewPostgresReadingRepository(db *sql.DB, logger *zap.Logger) *PostgresReadingRepository {
	return &PostgresReadingRepository{db: db, logger: logger}
}

// Save 写入一条读数
func (r *PostgresReadingRepository) Save(ctx context.Context, reading models.CleanReading) (int64, error) {
	query := `
		INSERT INTO sensor_readings (
			device_id, temp, spo2, heart_rate, finger, quality, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	var id int64
	err := r.db.QueryRowContext(ctx, query,
		reading.DeviceID,
		reading.TemperatureC,
		reading.SpO2,
		reading.HeartRate,
		reading.Finger,
		string(reading.Quality),
		reading.Timestamp,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert sensor reading: %w", err)
	}
	return id, nil
}

// FindRecent 查询 before 之前最近的 limit 条读数
func (r *PostgresReadingRepository) FindRecent(ctx context.Context, deviceID string, before time.Time, limit int) ([]models.CleanReading, error) {
	if limit <= 0 {
		limit = 60
	}

	query := `
		SELECT device_id, temp, spo2, heart_rate, finger, quality, created_at
		FROM sensor_readings
		WHERE device_id = $1 AND created_at < $2
		ORDER BY created_at DESC
		LIMIT $3
	`

	rows, err := r.db.QueryContext(ctx, query, deviceID, before, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sensor readings: %w", err)
	}
	defer rows.Close()

	readings := make([]models.CleanReading, 0, limit)
	for rows.Next() {
		var (
			rd      models.CleanReading
			temp    sql.NullFloat64
			spo2    sql.NullInt64
			hr      sql.NullInt64
			finger  sql.NullBool
			quality string
		)
		if err := rows.Scan(&rd.DeviceID, &temp, &spo2, &hr, &finger, &quality, &rd.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan sensor reading: %w", err)
		}
		rd.TemperatureC = temp.Float64
		rd.SpO2 = int(spo2.Int64)
		rd.HeartRate = int(hr.Int64)
		rd.Finger = finger.Bool
		rd.Quality = models.Quality(quality)
		readings = append(readings, rd)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sensor readings: %w", err)
	}
	return readings, nil
}
