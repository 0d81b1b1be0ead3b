package mysql

import (
	"context"
	"database/sql"
	"time"

	domain "github.com/bryanwahyu/vulnr-dispatch/internal/domain/scans"
)

type ReportRepository struct {
	db *sql.DB
}

func NewReportRepository(db *sql.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// SaveReport insert/update the summary row of a completed scan
func (r *ReportRepository) SaveReport(ctx context.Context, s *domain.Report) error {
	const q = `
INSERT INTO vulnr_scan_reports
(scan_id, target, status, tools_total, tools_failed, report_path, created_at)
VALUES (?,?,?,?,?,?,?)
ON DUPLICATE KEY UPDATE
 status=VALUES(status),
 tools_total=VALUES(tools_total), tools_failed=VALUES(tools_failed),
 report_path=VALUES(report_path);
`
	created := s.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := r.db.ExecContext(ctx, q,
		s.ScanID, stringOrDash(s.Target), stringOrDash(string(s.Status)),
		s.ToolsTotal, s.ToolsFailed, s.ReportPath, created,
	)
	return err
}

func (r *ReportRepository) SaveToolFailure(ctx context.Context, f *domain.ToolFailure) error {
	const q = `
INSERT INTO vulnr_tool_failures
(scan_id, tool, phase, message, created_at)
VALUES (?,?,?,?,?)
`
	created := f.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := r.db.ExecContext(ctx, q,
		f.ScanID, stringOrDash(f.Tool), stringOrDash(f.Phase), stringOrDash(f.Message), created,
	)
	return err
}

// GetReport by scan id
func (r *ReportRepository) GetReport(ctx context.Context, id domain.ScanID) (*domain.Report, error) {
	const q = `
SELECT scan_id, target, status, tools_total, tools_failed, report_path, created_at
FROM vulnr_scan_reports
WHERE scan_id=? LIMIT 1;
`
	row := r.db.QueryRowContext(ctx, q, id)

	var s domain.Report
	if err := row.Scan(
		&s.ScanID, &s.Target, &s.Status,
		&s.ToolsTotal, &s.ToolsFailed, &s.ReportPath, &s.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &s, nil
}

// Latest scan reports
func (r *ReportRepository) Latest(ctx context.Context, limit int) ([]*domain.Report, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
SELECT scan_id, target, status, tools_total, tools_failed, report_path, created_at
FROM vulnr_scan_reports
ORDER BY created_at DESC LIMIT ?;
`
	rows, err := r.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Report
	for rows.Next() {
		var s domain.Report
		if err := rows.Scan(
			&s.ScanID, &s.Target, &s.Status,
			&s.ToolsTotal, &s.ToolsFailed, &s.ReportPath, &s.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}

func (r *ReportRepository) FailuresByScan(ctx context.Context, id domain.ScanID, limit int) ([]*domain.ToolFailure, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
SELECT id, scan_id, tool, phase, message, created_at
FROM vulnr_tool_failures
WHERE scan_id = ?
ORDER BY created_at DESC, id DESC
LIMIT ?;`
	rows, err := r.db.QueryContext(ctx, q, id, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.ToolFailure
	for rows.Next() {
		var f domain.ToolFailure
		if err := rows.Scan(&f.ID, &f.ScanID, &f.Tool, &f.Phase, &f.Message, &f.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &f)
	}
	return out, rows.Err()
}
