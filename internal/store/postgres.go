package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/BigPharmacist/wild-kaeee-sub002/internal/model"
)

type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// MigrateDir applies every .sql file in dir in lexical order. Statements must
// be idempotent (CREATE TABLE IF NOT EXISTS ...); there is no version table.
func (p *Postgres) MigrateDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	files := []string{}
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".sql" {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	for _, f := range files {
		b, err := os.ReadFile(filepath.Join(dir, f))
		if err != nil {
			return err
		}
		if _, err := p.db.Exec(string(b)); err != nil {
			return fmt.Errorf("migrate %s: %w", f, err)
		}
	}
	return nil
}

func (p *Postgres) CreateTour(ctx context.Context, t model.Tour) (model.Tour, error) {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.Status == "" {
		t.Status = model.TourDraft
	}
	_, err := p.db.ExecContext(ctx, `INSERT INTO tours (id, pharmacy_id, name, date, courier_id, status, source_doc_path, created_by, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now(),now())`,
		t.ID, t.PharmacyID, t.Name, t.Date, nullIfEmpty(t.CourierID), t.Status, nullIfEmpty(t.SourceDocPath), nullIfEmpty(t.CreatedBy))
	if err != nil {
		return model.Tour{}, err
	}
	return p.GetTour(ctx, t.ID)
}

const tourCols = `id::text, pharmacy_id, name, date, courier_id, status, started_at, completed_at,
    path_encoding, distance_km, duration_minutes, optimized_at, source_doc_path, created_by, created_at, updated_at,
    (SELECT count(*) FROM stops s WHERE s.tour_id = tours.id) AS stop_count`

func (p *Postgres) GetTour(ctx context.Context, id string) (model.Tour, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+tourCols+` FROM tours WHERE id=$1`, id)
	return scanTour(row)
}

func (p *Postgres) ListTours(ctx context.Context, pharmacyID, status, date string, limit int) ([]model.Tour, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := `SELECT ` + tourCols + ` FROM tours WHERE 1=1`
	args := []any{}
	if pharmacyID != "" {
		args = append(args, pharmacyID)
		q += fmt.Sprintf(" AND pharmacy_id=$%d", len(args))
	}
	if status != "" {
		args = append(args, status)
		q += fmt.Sprintf(" AND status=$%d", len(args))
	}
	if date != "" {
		args = append(args, date)
		q += fmt.Sprintf(" AND date=$%d", len(args))
	}
	args = append(args, limit)
	q += fmt.Sprintf(" ORDER BY date DESC, id LIMIT $%d", len(args))
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Tour{}
	for rows.Next() {
		t, err := scanTour(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (p *Postgres) UpdateTour(ctx context.Context, t model.Tour) (model.Tour, error) {
	res, err := p.db.ExecContext(ctx, `UPDATE tours SET pharmacy_id=$2, name=$3, date=$4, courier_id=$5, status=$6,
        started_at=$7, completed_at=$8, path_encoding=$9, distance_km=$10, duration_minutes=$11, optimized_at=$12,
        source_doc_path=$13, updated_at=now() WHERE id=$1`,
		t.ID, t.PharmacyID, t.Name, t.Date, nullIfEmpty(t.CourierID), t.Status,
		t.StartedAt, t.CompletedAt, nullIfEmpty(t.PathEncoding), t.DistanceKm, t.DurationMinutes, t.OptimizedAt,
		nullIfEmpty(t.SourceDocPath))
	if err != nil {
		return model.Tour{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.Tour{}, ErrNotFound
	}
	return p.GetTour(ctx, t.ID)
}

func (p *Postgres) DeleteTour(ctx context.Context, id string) error {
	// evidence and stops cascade via FK
	res, err := p.db.ExecContext(ctx, `DELETE FROM tours WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const stopCols = `id::text, tour_id::text, customer_id, name, street, postal_code, city, phone, lat, lng,
    package_count, cash_amount, cash_collected, cash_collected_amount, cash_notes, priority, notes, sort_order,
    status, reschedule_date, reschedule_reason, skip_reason, completed_at, completed_lat, completed_lng, added_by,
    created_at, updated_at`

func (p *Postgres) CreateStop(ctx context.Context, s model.Stop) (model.Stop, error) {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if s.Status == "" {
		s.Status = model.StopPending
	}
	var lat, lng any
	if s.Location != nil {
		lat, lng = s.Location.Lat, s.Location.Lng
	}
	_, err := p.db.ExecContext(ctx, `INSERT INTO stops (id, tour_id, customer_id, name, street, postal_code, city, phone,
        lat, lng, package_count, cash_amount, cash_collected, priority, notes, sort_order, status, added_by, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,now(),now())`,
		s.ID, s.TourID, nullIfEmpty(s.CustomerID), s.Name, s.Street, s.PostalCode, s.City, nullIfEmpty(s.Phone),
		lat, lng, s.PackageCount, s.CashAmount, s.CashCollected, s.Priority, nullIfEmpty(s.Notes), s.SortOrder,
		s.Status, nullIfEmpty(s.AddedBy))
	if err != nil {
		return model.Stop{}, err
	}
	return p.GetStop(ctx, s.ID)
}

func (p *Postgres) GetStop(ctx context.Context, id string) (model.Stop, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+stopCols+` FROM stops WHERE id=$1`, id)
	return scanStop(row)
}

func (p *Postgres) ListStops(ctx context.Context, tourID string) ([]model.Stop, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+stopCols+` FROM stops WHERE tour_id=$1 ORDER BY sort_order, created_at`, tourID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Stop{}
	for rows.Next() {
		s, err := scanStop(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) UpdateStop(ctx context.Context, s model.Stop) (model.Stop, error) {
	var lat, lng any
	if s.Location != nil {
		lat, lng = s.Location.Lat, s.Location.Lng
	}
	var clat, clng any
	if s.CompletedLocation != nil {
		clat, clng = s.CompletedLocation.Lat, s.CompletedLocation.Lng
	}
	res, err := p.db.ExecContext(ctx, `UPDATE stops SET customer_id=$2, name=$3, street=$4, postal_code=$5, city=$6,
        phone=$7, lat=$8, lng=$9, package_count=$10, cash_amount=$11, cash_collected=$12, cash_collected_amount=$13,
        cash_notes=$14, priority=$15, notes=$16, sort_order=$17, status=$18, reschedule_date=$19, reschedule_reason=$20,
        skip_reason=$21, completed_at=$22, completed_lat=$23, completed_lng=$24, updated_at=now() WHERE id=$1`,
		s.ID, nullIfEmpty(s.CustomerID), s.Name, s.Street, s.PostalCode, s.City,
		nullIfEmpty(s.Phone), lat, lng, s.PackageCount, s.CashAmount, s.CashCollected, s.CashCollectedAmount,
		nullIfEmpty(s.CashNotes), s.Priority, nullIfEmpty(s.Notes), s.SortOrder, s.Status,
		nullIfEmpty(s.RescheduleDate), nullIfEmpty(s.RescheduleReason), nullIfEmpty(s.SkipReason),
		s.CompletedAt, clat, clng)
	if err != nil {
		return model.Stop{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.Stop{}, ErrNotFound
	}
	return p.GetStop(ctx, s.ID)
}

func (p *Postgres) DeleteStop(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM stops WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) ReorderStops(ctx context.Context, tourID string, orderedIDs []string) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	rows, err := tx.QueryContext(ctx, `SELECT id::text FROM stops WHERE tour_id=$1 FOR UPDATE`, tourID)
	if err != nil {
		return err
	}
	count := 0
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		count++
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	if count != len(orderedIDs) {
		return ErrNotFound
	}
	for i, id := range orderedIDs {
		res, err := tx.ExecContext(ctx, `UPDATE stops SET sort_order=$1, updated_at=now() WHERE id=$2 AND tour_id=$3`, i, id, tourID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
	}
	return tx.Commit()
}

const customerCols = `id::text, pharmacy_id, name, street, postal_code, city, phone, delivery_notes, lat, lng, created_at, updated_at`

func (p *Postgres) CreateCustomer(ctx context.Context, c model.Customer) (model.Customer, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	var lat, lng any
	if c.Location != nil {
		lat, lng = c.Location.Lat, c.Location.Lng
	}
	_, err := p.db.ExecContext(ctx, `INSERT INTO customers (id, pharmacy_id, name, street, postal_code, city, phone, delivery_notes, lat, lng, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,now(),now())`,
		c.ID, c.PharmacyID, c.Name, c.Street, c.PostalCode, c.City, nullIfEmpty(c.Phone), nullIfEmpty(c.DeliveryNotes), lat, lng)
	if err != nil {
		return model.Customer{}, err
	}
	return p.GetCustomer(ctx, c.ID)
}

func (p *Postgres) GetCustomer(ctx context.Context, id string) (model.Customer, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+customerCols+` FROM customers WHERE id=$1`, id)
	return scanCustomer(row)
}

func (p *Postgres) ListCustomers(ctx context.Context, pharmacyID string, limit int) ([]model.Customer, error) {
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	rows, err := p.db.QueryContext(ctx, `SELECT `+customerCols+` FROM customers WHERE pharmacy_id=$1 ORDER BY name LIMIT $2`, pharmacyID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Customer{}
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (p *Postgres) UpdateCustomer(ctx context.Context, c model.Customer) (model.Customer, error) {
	var lat, lng any
	if c.Location != nil {
		lat, lng = c.Location.Lat, c.Location.Lng
	}
	res, err := p.db.ExecContext(ctx, `UPDATE customers SET name=$2, street=$3, postal_code=$4, city=$5, phone=$6,
        delivery_notes=$7, lat=$8, lng=$9, updated_at=now() WHERE id=$1`,
		c.ID, c.Name, c.Street, c.PostalCode, c.City, nullIfEmpty(c.Phone), nullIfEmpty(c.DeliveryNotes), lat, lng)
	if err != nil {
		return model.Customer{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.Customer{}, ErrNotFound
	}
	return p.GetCustomer(ctx, c.ID)
}

func (p *Postgres) FindCustomerExact(ctx context.Context, pharmacyID, name, street string) (model.Customer, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+customerCols+` FROM customers WHERE pharmacy_id=$1 AND name=$2 AND street=$3 LIMIT 1`, pharmacyID, name, street)
	return scanCustomer(row)
}

func (p *Postgres) FindCustomerFold(ctx context.Context, pharmacyID, name string) (model.Customer, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+customerCols+` FROM customers WHERE pharmacy_id=$1 AND lower(name)=lower($2) LIMIT 1`, pharmacyID, name)
	return scanCustomer(row)
}

func (p *Postgres) AppendPosition(ctx context.Context, pos model.DriverPosition) (model.DriverPosition, error) {
	if pos.ID == "" {
		pos.ID = uuid.New().String()
	}
	if pos.RecordedAt.IsZero() {
		pos.RecordedAt = time.Now().UTC()
	}
	_, err := p.db.ExecContext(ctx, `INSERT INTO driver_positions (id, courier_id, tour_id, lat, lng, accuracy_m, heading, speed_kmh, recorded_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		pos.ID, pos.CourierID, nullIfEmpty(pos.TourID), pos.Lat, pos.Lng, pos.AccuracyM, pos.Heading, pos.SpeedKmh, pos.RecordedAt)
	if err != nil {
		return model.DriverPosition{}, err
	}
	return pos, nil
}

const positionCols = `DISTINCT ON (courier_id) id::text, courier_id, tour_id, lat, lng, accuracy_m, heading, speed_kmh, recorded_at`

func (p *Postgres) LatestPositions(ctx context.Context) ([]model.DriverPosition, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+positionCols+` FROM driver_positions ORDER BY courier_id, recorded_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.DriverPosition{}
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, pos)
	}
	return out, rows.Err()
}

func (p *Postgres) LatestPositionFor(ctx context.Context, courierID string) (model.DriverPosition, error) {
	row := p.db.QueryRowContext(ctx, `SELECT id::text, courier_id, tour_id, lat, lng, accuracy_m, heading, speed_kmh, recorded_at
        FROM driver_positions WHERE courier_id=$1 ORDER BY recorded_at DESC LIMIT 1`, courierID)
	return scanPosition(row)
}

func (p *Postgres) CreateEvidence(ctx context.Context, e model.Evidence) (model.Evidence, error) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	var lat, lng any
	if e.Location != nil {
		lat, lng = e.Location.Lat, e.Location.Lng
	}
	_, err := p.db.ExecContext(ctx, `INSERT INTO evidence (id, stop_id, kind, url, caption, signer_name, lat, lng, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now())`,
		e.ID, e.StopID, e.Kind, e.URL, nullIfEmpty(e.Caption), nullIfEmpty(e.SignerName), lat, lng)
	if err != nil {
		return model.Evidence{}, err
	}
	row := p.db.QueryRowContext(ctx, `SELECT id::text, stop_id::text, kind, url, caption, signer_name, lat, lng, created_at FROM evidence WHERE id=$1`, e.ID)
	return scanEvidence(row)
}

func (p *Postgres) ListEvidence(ctx context.Context, stopID string) ([]model.Evidence, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, stop_id::text, kind, url, caption, signer_name, lat, lng, created_at
        FROM evidence WHERE stop_id=$1 ORDER BY created_at`, stopID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Evidence{}
	for rows.Next() {
		e, err := scanEvidence(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (p *Postgres) DeleteEvidence(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM evidence WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTour(r rowScanner) (model.Tour, error) {
	var t model.Tour
	var courier, pathEnc, srcDoc, createdBy sql.NullString
	var started, completed, optimized sql.NullTime
	var distKm sql.NullFloat64
	var durMin sql.NullInt64
	err := r.Scan(&t.ID, &t.PharmacyID, &t.Name, &t.Date, &courier, &t.Status, &started, &completed,
		&pathEnc, &distKm, &durMin, &optimized, &srcDoc, &createdBy, &t.CreatedAt, &t.UpdatedAt, &t.StopCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return t, ErrNotFound
		}
		return t, err
	}
	t.CourierID = courier.String
	t.PathEncoding = pathEnc.String
	t.SourceDocPath = srcDoc.String
	t.CreatedBy = createdBy.String
	if started.Valid {
		v := started.Time
		t.StartedAt = &v
	}
	if completed.Valid {
		v := completed.Time
		t.CompletedAt = &v
	}
	if optimized.Valid {
		v := optimized.Time
		t.OptimizedAt = &v
	}
	if distKm.Valid {
		v := distKm.Float64
		t.DistanceKm = &v
	}
	if durMin.Valid {
		v := int(durMin.Int64)
		t.DurationMinutes = &v
	}
	return t, nil
}

func scanStop(r rowScanner) (model.Stop, error) {
	var s model.Stop
	var customer, phone, cashNotes, notes, resDate, resReason, skipReason, addedBy sql.NullString
	var lat, lng, clat, clng, cashColAmt sql.NullFloat64
	var completedAt sql.NullTime
	err := r.Scan(&s.ID, &s.TourID, &customer, &s.Name, &s.Street, &s.PostalCode, &s.City, &phone, &lat, &lng,
		&s.PackageCount, &s.CashAmount, &s.CashCollected, &cashColAmt, &cashNotes, &s.Priority, &notes, &s.SortOrder,
		&s.Status, &resDate, &resReason, &skipReason, &completedAt, &clat, &clng, &addedBy, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return s, ErrNotFound
		}
		return s, err
	}
	s.CustomerID = customer.String
	s.Phone = phone.String
	s.CashNotes = cashNotes.String
	s.Notes = notes.String
	s.RescheduleDate = resDate.String
	s.RescheduleReason = resReason.String
	s.SkipReason = skipReason.String
	s.AddedBy = addedBy.String
	if lat.Valid && lng.Valid {
		s.Location = &model.LatLng{Lat: lat.Float64, Lng: lng.Float64}
	}
	if clat.Valid && clng.Valid {
		s.CompletedLocation = &model.LatLng{Lat: clat.Float64, Lng: clng.Float64}
	}
	if cashColAmt.Valid {
		v := cashColAmt.Float64
		s.CashCollectedAmount = &v
	}
	if completedAt.Valid {
		v := completedAt.Time
		s.CompletedAt = &v
	}
	return s, nil
}

func scanCustomer(r rowScanner) (model.Customer, error) {
	var c model.Customer
	var phone, notes sql.NullString
	var lat, lng sql.NullFloat64
	err := r.Scan(&c.ID, &c.PharmacyID, &c.Name, &c.Street, &c.PostalCode, &c.City, &phone, &notes, &lat, &lng, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c, ErrNotFound
		}
		return c, err
	}
	c.Phone = phone.String
	c.DeliveryNotes = notes.String
	if lat.Valid && lng.Valid {
		c.Location = &model.LatLng{Lat: lat.Float64, Lng: lng.Float64}
	}
	return c, nil
}

func scanPosition(r rowScanner) (model.DriverPosition, error) {
	var p model.DriverPosition
	var tour sql.NullString
	var heading, speed sql.NullFloat64
	err := r.Scan(&p.ID, &p.CourierID, &tour, &p.Lat, &p.Lng, &p.AccuracyM, &heading, &speed, &p.RecordedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return p, ErrNotFound
		}
		return p, err
	}
	p.TourID = tour.String
	if heading.Valid {
		v := heading.Float64
		p.Heading = &v
	}
	if speed.Valid {
		v := speed.Float64
		p.SpeedKmh = &v
	}
	return p, nil
}

func scanEvidence(r rowScanner) (model.Evidence, error) {
	var e model.Evidence
	var caption, signer sql.NullString
	var lat, lng sql.NullFloat64
	err := r.Scan(&e.ID, &e.StopID, &e.Kind, &e.URL, &caption, &signer, &lat, &lng, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return e, ErrNotFound
		}
		return e, err
	}
	e.Caption = caption.String
	e.SignerName = signer.String
	if lat.Valid && lng.Valid {
		e.Location = &model.LatLng{Lat: lat.Float64, Lng: lng.Float64}
	}
	return e, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
