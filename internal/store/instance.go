package store

import (
	"database/sql"
	"time"
)

// InsertInstance persists a newly created instance record.
func (db *DB) InsertInstance(inst *Instance) error {
	now := time.Now().UnixMilli()
	inst.CreatedAt = now
	inst.UpdatedAt = now
	_, err := db.Exec(`
		INSERT INTO instances (id, owner, name, remote_session_id, connection_state, qr_code, phone, profile_name, last_synced_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inst.ID, inst.Owner, inst.Name, inst.RemoteSessionID, inst.ConnectionState,
		inst.QRCode, inst.Phone, inst.ProfileName, inst.LastSyncedAt, inst.CreatedAt, inst.UpdatedAt)
	return err
}

// GetInstance returns a single instance by id, or nil if absent.
func (db *DB) GetInstance(id string) (*Instance, error) {
	return db.scanOne(`WHERE id = ?`, id)
}

// GetByRemoteSession returns the instance addressed by a remote session id,
// or nil if absent. Used by the gateway webhook ingest path.
func (db *DB) GetByRemoteSession(remoteSessionID string) (*Instance, error) {
	return db.scanOne(`WHERE remote_session_id = ?`, remoteSessionID)
}

func (db *DB) scanOne(where string, arg any) (*Instance, error) {
	var inst Instance
	err := db.QueryRow(`
		SELECT id, owner, name, remote_session_id, connection_state, qr_code, phone, profile_name, last_synced_at, created_at, updated_at
		FROM instances `+where, arg).
		Scan(&inst.ID, &inst.Owner, &inst.Name, &inst.RemoteSessionID, &inst.ConnectionState,
			&inst.QRCode, &inst.Phone, &inst.ProfileName, &inst.LastSyncedAt, &inst.CreatedAt, &inst.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &inst, nil
}

// ListInstances returns an owner's instances, newest first. An empty owner
// lists every instance (used by the periodic sync-all job).
func (db *DB) ListInstances(owner string) ([]Instance, error) {
	query := `
		SELECT id, owner, name, remote_session_id, connection_state, qr_code, phone, profile_name, last_synced_at, created_at, updated_at
		FROM instances`
	var args []any
	if owner != "" {
		query += ` WHERE owner = ?`
		args = append(args, owner)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Instance
	for rows.Next() {
		var inst Instance
		if err := rows.Scan(&inst.ID, &inst.Owner, &inst.Name, &inst.RemoteSessionID, &inst.ConnectionState,
			&inst.QRCode, &inst.Phone, &inst.ProfileName, &inst.LastSyncedAt, &inst.CreatedAt, &inst.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

// ListNames returns the instance names already taken within an owner's scope.
func (db *DB) ListNames(owner string) ([]string, error) {
	rows, err := db.Query(`SELECT name FROM instances WHERE owner = ?`, owner)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// ListStale returns pre-open instances not updated since the cutoff,
// candidates for abandoned-creation cleanup.
func (db *DB) ListStale(cutoff int64) ([]Instance, error) {
	rows, err := db.Query(`
		SELECT id, owner, name, remote_session_id, connection_state, qr_code, phone, profile_name, last_synced_at, created_at, updated_at
		FROM instances
		WHERE connection_state IN (?, ?, ?) AND updated_at < ?`,
		StateCreated, StateConnecting, StateWaitingScan, cutoff)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Instance
	for rows.Next() {
		var inst Instance
		if err := rows.Scan(&inst.ID, &inst.Owner, &inst.Name, &inst.RemoteSessionID, &inst.ConnectionState,
			&inst.QRCode, &inst.Phone, &inst.ProfileName, &inst.LastSyncedAt, &inst.CreatedAt, &inst.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

// ApplyStatus is the single write path for connection_state, qr_code,
// phone and profile_name; pollers never write these directly.
// An open state always clears the QR code; phone and profile_name are
// only overwritten when the remote reported them.
func (db *DB) ApplyStatus(id string, state State, qrCode, phone, profileName string) error {
	now := time.Now().UnixMilli()
	if state == StateOpen || state == StateClosed || state == StateDisconnected {
		qrCode = ""
	}
	_, err := db.Exec(`
		UPDATE instances SET
			connection_state = ?,
			qr_code = ?,
			phone = CASE WHEN ? != '' THEN ? ELSE phone END,
			profile_name = CASE WHEN ? != '' THEN ? ELSE profile_name END,
			last_synced_at = ?,
			updated_at = ?
		WHERE id = ?`,
		state, qrCode, phone, phone, profileName, profileName, now, now, id)
	return err
}

// DeleteInstance removes an instance record.
func (db *DB) DeleteInstance(id string) error {
	_, err := db.Exec(`DELETE FROM instances WHERE id = ?`, id)
	return err
}

// InstanceCount returns the number of persisted instances.
func (db *DB) InstanceCount() (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM instances`).Scan(&n)
	return n, err
}
