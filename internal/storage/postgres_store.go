package storage

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	_ "github.com/lib/pq"

	"github.com/example/medride/internal/models"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	// quick ping
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

const bookingColumns = `id, created_by, pickup_address, dropoff_address,
	pickup_lat, pickup_lng, dropoff_lat, dropoff_lng,
	scheduled_date, scheduled_time, assistance_type, passenger_count,
	special_instructions, estimated_cost, final_cost,
	driver_email, driver_name, driver_phone, vehicle_info,
	guest_name, guest_phone, payment_status,
	vehicle_lat, vehicle_lng, eta, status, created_at, updated_at`

func (p *PostgresStore) Create(ctx context.Context, b *models.Booking) error {
	now := time.Now()
	b.CreatedAt = now
	b.UpdatedAt = now
	pLat, pLng := coordVals(b.PickupCoordinates)
	dLat, dLng := coordVals(b.DropoffCoordinates)
	_, err := p.db.ExecContext(ctx, `INSERT INTO bookings(`+bookingColumns+`)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27,$28)`,
		b.ID, b.CreatedBy, b.PickupAddress, b.DropoffAddress,
		pLat, pLng, dLat, dLng,
		b.ScheduledDate, b.ScheduledTime, b.AssistanceType, b.PassengerCount,
		b.SpecialInstr, b.EstimatedCost, b.FinalCost,
		b.DriverEmail, b.DriverName, b.DriverPhone, b.VehicleInfo,
		b.GuestName, b.GuestPhone, b.PaymentStatus,
		nil, nil, etaVal(b.ETA), b.Status, b.CreatedAt, b.UpdatedAt)
	return err
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*models.Booking, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id=$1`, id)
	return scanBooking(row)
}

func (p *PostgresStore) Update(ctx context.Context, b *models.Booking) error {
	b.UpdatedAt = time.Now()
	pLat, pLng := coordVals(b.PickupCoordinates)
	dLat, dLng := coordVals(b.DropoffCoordinates)
	res, err := p.db.ExecContext(ctx, `UPDATE bookings SET
		pickup_address=$1, dropoff_address=$2,
		pickup_lat=$3, pickup_lng=$4, dropoff_lat=$5, dropoff_lng=$6,
		scheduled_date=$7, scheduled_time=$8, assistance_type=$9, passenger_count=$10,
		special_instructions=$11, estimated_cost=$12, final_cost=$13,
		driver_email=$14, driver_name=$15, driver_phone=$16, vehicle_info=$17,
		payment_status=$18, status=$19, updated_at=$20
		WHERE id=$21`,
		b.PickupAddress, b.DropoffAddress,
		pLat, pLng, dLat, dLng,
		b.ScheduledDate, b.ScheduledTime, b.AssistanceType, b.PassengerCount,
		b.SpecialInstr, b.EstimatedCost, b.FinalCost,
		b.DriverEmail, b.DriverName, b.DriverPhone, b.VehicleInfo,
		b.PaymentStatus, b.Status, b.UpdatedAt, b.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStore) Delete(ctx context.Context, id string) (*models.Booking, error) {
	b, err := p.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := p.db.ExecContext(ctx, `DELETE FROM bookings WHERE id=$1`, id); err != nil {
		return nil, err
	}
	return b, nil
}

func (p *PostgresStore) List(ctx context.Context, q ListQuery) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE 1=1`
	args := []any{}
	if q.CreatedBy != "" {
		args = append(args, q.CreatedBy)
		query += ` AND created_by=$1`
	}
	if q.DriverEmail != "" {
		args = append(args, q.DriverEmail)
		query += ` AND driver_email=$` + strconv.Itoa(len(args))
	}
	if q.ActiveOnly {
		query += ` AND status NOT IN ('completed','cancelled')`
	}
	query += ` ORDER BY created_at DESC`
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (p *PostgresStore) UpdateLive(ctx context.Context, id string, loc models.Coord, etaMinutes *int) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE bookings SET vehicle_lat=$1, vehicle_lng=$2, eta=$3, updated_at=$4 WHERE id=$5`,
		loc.Lat, loc.Lng, etaVal(etaMinutes), time.Now(), id)
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

func scanBooking(row rowScanner) (*models.Booking, error) {
	var b models.Booking
	var pLat, pLng, dLat, dLng, vLat, vLng sql.NullFloat64
	var eta sql.NullInt64
	err := row.Scan(&b.ID, &b.CreatedBy, &b.PickupAddress, &b.DropoffAddress,
		&pLat, &pLng, &dLat, &dLng,
		&b.ScheduledDate, &b.ScheduledTime, &b.AssistanceType, &b.PassengerCount,
		&b.SpecialInstr, &b.EstimatedCost, &b.FinalCost,
		&b.DriverEmail, &b.DriverName, &b.DriverPhone, &b.VehicleInfo,
		&b.GuestName, &b.GuestPhone, &b.PaymentStatus,
		&vLat, &vLng, &eta, &b.Status, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if pLat.Valid && pLng.Valid {
		b.PickupCoordinates = &models.Coord{Lat: pLat.Float64, Lng: pLng.Float64}
	}
	if dLat.Valid && dLng.Valid {
		b.DropoffCoordinates = &models.Coord{Lat: dLat.Float64, Lng: dLng.Float64}
	}
	if vLat.Valid && vLng.Valid {
		b.VehicleLocation = &models.Coord{Lat: vLat.Float64, Lng: vLng.Float64}
	}
	if eta.Valid {
		v := int(eta.Int64)
		b.ETA = &v
	}
	return &b, nil
}

func coordVals(c *models.Coord) (any, any) {
	if c == nil {
		return nil, nil
	}
	return c.Lat, c.Lng
}

func etaVal(eta *int) any {
	if eta == nil {
		return nil
	}
	return *eta
}
