package db

import (
	"context"
	"fmt"
)

var schema = []struct {
	table string
	ddl   string
}{
	{"destinations", `
CREATE TABLE IF NOT EXISTS destinations (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	name VARCHAR(255) NOT NULL,
	created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`},
	{"pricing_tiers", `
CREATE TABLE IF NOT EXISTS pricing_tiers (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	destination_id BIGINT NOT NULL,
	min_passengers INT NOT NULL,
	cost_per_person BIGINT NOT NULL,
	UNIQUE KEY uniq_destination_min (destination_id, min_passengers)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`},
	{"trips", `
CREATE TABLE IF NOT EXISTS trips (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	destination_id BIGINT NOT NULL,
	start_time DATETIME(6) NOT NULL,
	end_time DATETIME(6) NOT NULL,
	max_passengers INT NOT NULL,
	current_passengers INT NOT NULL DEFAULT 0,
	flat_rate BIGINT NOT NULL DEFAULT 0,
	created_by BIGINT NOT NULL DEFAULT 0,
	created_at DATETIME(6) NOT NULL,
	updated_at DATETIME(6) NOT NULL,
	KEY idx_destination (destination_id),
	KEY idx_start (start_time)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`},
	{"bookings", `
CREATE TABLE IF NOT EXISTS bookings (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	trip_id BIGINT NOT NULL,
	user_id BIGINT NOT NULL,
	rider_id BIGINT NULL,
	guest_name VARCHAR(255) NOT NULL DEFAULT '',
	passenger_count INT NOT NULL DEFAULT 1,
	credits_cost BIGINT NOT NULL,
	status VARCHAR(20) NOT NULL,
	created_at DATETIME(6) NOT NULL,
	updated_at DATETIME(6) NOT NULL,
	KEY idx_trip_status (trip_id, status),
	KEY idx_user (user_id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`},
	{"credit_balances", `
CREATE TABLE IF NOT EXISTS credit_balances (
	user_id BIGINT PRIMARY KEY,
	credits BIGINT NOT NULL DEFAULT 0,
	updated_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`},
	{"credit_transactions", `
CREATE TABLE IF NOT EXISTS credit_transactions (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	user_id BIGINT NOT NULL,
	type VARCHAR(32) NOT NULL,
	amount BIGINT NOT NULL,
	balance_after BIGINT NOT NULL,
	description VARCHAR(500) NOT NULL DEFAULT '',
	booking_id BIGINT NULL,
	trip_id BIGINT NULL,
	reference VARCHAR(64) NOT NULL,
	created_at DATETIME(6) NOT NULL,
	UNIQUE KEY uniq_reference (reference),
	KEY idx_user_created (user_id, created_at),
	KEY idx_booking (booking_id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`},
	{"calendar_events", `
CREATE TABLE IF NOT EXISTS calendar_events (
	trip_id BIGINT NOT NULL,
	provider VARCHAR(64) NOT NULL,
	external_id VARCHAR(255) NOT NULL,
	created_at DATETIME(6) NOT NULL,
	PRIMARY KEY (trip_id, provider)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`},
	{"calendar_blocks", `
CREATE TABLE IF NOT EXISTS calendar_blocks (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	trip_id BIGINT NOT NULL,
	start_time DATETIME(6) NOT NULL,
	end_time DATETIME(6) NOT NULL,
	UNIQUE KEY uniq_trip (trip_id),
	KEY idx_window (start_time, end_time)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`},
}

// EnsureSchema creates any missing table. Existing tables are left untouched.
func EnsureSchema(ctx context.Context, q DBTX) error {
	for _, t := range schema {
		if _, err := q.ExecContext(ctx, t.ddl); err != nil {
			return fmt.Errorf("create table %s: %w", t.table, err)
		}
	}
	return nil
}
