package catalog

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"cutline/internal/edl"
)

const projectColumns = "id, source_ref, current_version, latest_proxy_key, latest_proxy_version, latest_export_key, latest_export_version, created_at, updated_at"

const exportColumns = "id, project_id, version, storage_key, archive_key, job_id, size_bytes, resolution, format, pinned, status, created_at, archived_at, deleted_at"

type rowScanner interface{ Scan(dest ...any) error }

func scanProject(scanner rowScanner) (*Project, error) {
	var (
		p             Project
		proxyKey      sql.NullString
		proxyVersion  sql.NullInt64
		exportKey     sql.NullString
		exportVersion sql.NullInt64
		createdRaw    string
		updatedRaw    string
	)
	if err := scanner.Scan(
		&p.ID,
		&p.SourceRef,
		&p.CurrentVersion,
		&proxyKey,
		&proxyVersion,
		&exportKey,
		&exportVersion,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	p.LatestProxyKey = proxyKey.String
	p.LatestProxyVersion = proxyVersion.Int64
	p.LatestExportKey = exportKey.String
	p.LatestExportVersion = exportVersion.Int64
	if created, err := parseTimeString(createdRaw); err == nil {
		p.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		p.UpdatedAt = updated
	}
	return &p, nil
}

func scanExport(scanner rowScanner) (*ExportVersion, error) {
	var (
		e           ExportVersion
		storageKey  sql.NullString
		archiveKey  sql.NullString
		jobID       sql.NullString
		pinned      int64
		status      string
		createdRaw  string
		archivedRaw sql.NullString
		deletedRaw  sql.NullString
	)
	if err := scanner.Scan(
		&e.ID,
		&e.ProjectID,
		&e.Version,
		&storageKey,
		&archiveKey,
		&jobID,
		&e.Size,
		&e.Resolution,
		&e.Format,
		&pinned,
		&status,
		&createdRaw,
		&archivedRaw,
		&deletedRaw,
	); err != nil {
		return nil, err
	}
	e.StorageKey = storageKey.String
	e.ArchiveKey = archiveKey.String
	e.JobID = jobID.String
	e.Pinned = pinned != 0
	e.Status = ExportStatus(status)
	if created, err := parseTimeString(createdRaw); err == nil {
		e.CreatedAt = created
	}
	e.ArchivedAt = parseNullableTime(archivedRaw)
	e.DeletedAt = parseNullableTime(deletedRaw)
	return &e, nil
}

func scanEditOperation(scanner rowScanner) (*EditOperation, error) {
	var (
		op         EditOperation
		opsJSON    string
		createdRaw string
	)
	if err := scanner.Scan(&op.ID, &op.ProjectID, &op.Version, &opsJSON, &op.OpCount, &createdRaw); err != nil {
		return nil, err
	}
	ops, err := edl.Unmarshal([]byte(opsJSON))
	if err != nil {
		return nil, err
	}
	op.Ops = ops
	if created, err := parseTimeString(createdRaw); err == nil {
		op.CreatedAt = created
	}
	return &op, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("empty time")
	}
	return time.Parse(time.RFC3339Nano, value)
}

func parseNullableTime(value sql.NullString) *time.Time {
	if !value.Valid {
		return nil
	}
	parsed, err := parseTimeString(value.String)
	if err != nil {
		return nil
	}
	return &parsed
}

func makePlaceholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
