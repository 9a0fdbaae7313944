package health

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"healthmate/internal/models"
)

// latestScanLimit bounds how many snapshot rows the latest-value coalescing
// walks. Anything older than the newest couple hundred snapshots is never
// the freshest observation of a metric in practice.
const latestScanLimit = 200

// AddMetrics persists one metric snapshot. Fields left nil are stored as
// NULL. BMI is derived at write time when the same snapshot carries both
// weight and height.
func (s *Service) AddMetrics(ctx context.Context, userID int64, in models.MetricsInput) (int64, error) {
	if userID <= 0 {
		return 0, errors.New("invalid user id")
	}
	if in.Empty() {
		return 0, errors.New("metrics input carries no values")
	}

	recordedAt := in.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now().UTC()
	}

	var bmi *float64
	if in.Weight != nil && in.Height != nil && *in.Height > 0 {
		v := ComputeBMI(*in.Weight, *in.Height)
		bmi = &v
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO health_metrics
			(user_id, weight, height, bmi, blood_pressure_systolic, blood_pressure_diastolic, heart_rate,
			 blood_sugar, temperature, oxygen_saturation, sleep_hours, steps, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		userID, in.Weight, in.Height, bmi, in.Systolic, in.Diastolic, in.HeartRate,
		in.BloodSugar, in.Temperature, in.OxygenSaturation, in.SleepHours, in.Steps, recordedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert metrics: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("metrics id: %w", err)
	}
	return id, nil
}

// LatestMetrics returns the freshest non-null observation of every metric,
// coalesced across snapshots. BMI prefers a snapshot that carries weight and
// height together; when none exists it is derived from the independent
// latest weight and height, and left unset when either is missing.
func (s *Service) LatestMetrics(ctx context.Context, userID int64) (*models.HealthProfile, error) {
	if userID <= 0 {
		return nil, errors.New("invalid user id")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT weight, height, blood_pressure_systolic, blood_pressure_diastolic, heart_rate,
			blood_sugar, temperature, oxygen_saturation, sleep_hours, steps, recorded_at
		 FROM health_metrics WHERE user_id = ?
		 ORDER BY recorded_at DESC, id DESC LIMIT ?`,
		userID, latestScanLimit,
	)
	if err != nil {
		return nil, fmt.Errorf("query metrics: %w", err)
	}
	defer rows.Close()

	profile := &models.HealthProfile{}
	var pairedBMI *float64
	for rows.Next() {
		var weight, height, bloodSugar, temperature, sleep sql.NullFloat64
		var sys, dia, heartRate, oxygen, steps sql.NullInt64
		var recordedAt time.Time
		if err := rows.Scan(&weight, &height, &sys, &dia, &heartRate,
			&bloodSugar, &temperature, &oxygen, &sleep, &steps, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan metrics: %w", err)
		}

		if profile.Weight == nil && weight.Valid {
			profile.Weight = &weight.Float64
		}
		if profile.Height == nil && height.Valid {
			profile.Height = &height.Float64
		}
		if pairedBMI == nil && weight.Valid && height.Valid && height.Float64 > 0 {
			v := ComputeBMI(weight.Float64, height.Float64)
			pairedBMI = &v
		}
		if profile.BloodPressure == nil && sys.Valid && dia.Valid {
			profile.BloodPressure = &models.BloodPressure{Systolic: int(sys.Int64), Diastolic: int(dia.Int64)}
		}
		if profile.HeartRate == nil && heartRate.Valid {
			v := int(heartRate.Int64)
			profile.HeartRate = &v
		}
		if profile.BloodSugar == nil && bloodSugar.Valid {
			profile.BloodSugar = &bloodSugar.Float64
		}
		if profile.Temperature == nil && temperature.Valid {
			profile.Temperature = &temperature.Float64
		}
		if profile.OxygenSaturation == nil && oxygen.Valid {
			v := int(oxygen.Int64)
			profile.OxygenSaturation = &v
		}
		if profile.SleepHours == nil && sleep.Valid {
			profile.SleepHours = &sleep.Float64
		}
		if profile.Steps == nil && steps.Valid {
			v := int(steps.Int64)
			profile.Steps = &v
		}
		if profile.UpdatedAt.IsZero() {
			profile.UpdatedAt = recordedAt
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate metrics: %w", err)
	}

	switch {
	case pairedBMI != nil:
		profile.BMI = pairedBMI
	case profile.Weight != nil && profile.Height != nil && *profile.Height > 0:
		v := ComputeBMI(*profile.Weight, *profile.Height)
		profile.BMI = &v
	}
	return profile, nil
}

// MetricsHistory returns per-metric sample series recorded since the given
// time, oldest first. Metrics with no samples are absent from the map.
func (s *Service) MetricsHistory(ctx context.Context, userID int64, since time.Time) (map[string][]models.MetricSample, error) {
	if userID <= 0 {
		return nil, errors.New("invalid user id")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT weight, height, blood_pressure_systolic, blood_pressure_diastolic, heart_rate,
			blood_sugar, temperature, oxygen_saturation, sleep_hours, steps, recorded_at
		 FROM health_metrics WHERE user_id = ? AND recorded_at >= ?
		 ORDER BY recorded_at ASC, id ASC`,
		userID, since,
	)
	if err != nil {
		return nil, fmt.Errorf("query metric history: %w", err)
	}
	defer rows.Close()

	history := make(map[string][]models.MetricSample)
	add := func(metric string, value float64, ts time.Time) {
		history[metric] = append(history[metric], models.MetricSample{Value: value, Timestamp: ts})
	}
	for rows.Next() {
		var weight, height, bloodSugar, temperature, sleep sql.NullFloat64
		var sys, dia, heartRate, oxygen, steps sql.NullInt64
		var recordedAt time.Time
		if err := rows.Scan(&weight, &height, &sys, &dia, &heartRate,
			&bloodSugar, &temperature, &oxygen, &sleep, &steps, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan metric history: %w", err)
		}

		if weight.Valid {
			add(models.MetricWeight, weight.Float64, recordedAt)
		}
		if height.Valid {
			add(models.MetricHeight, height.Float64, recordedAt)
		}
		if sys.Valid {
			add(models.MetricSystolic, float64(sys.Int64), recordedAt)
		}
		if dia.Valid {
			add(models.MetricDiastolic, float64(dia.Int64), recordedAt)
		}
		if heartRate.Valid {
			add(models.MetricHeartRate, float64(heartRate.Int64), recordedAt)
		}
		if bloodSugar.Valid {
			add(models.MetricBloodSugar, bloodSugar.Float64, recordedAt)
		}
		if temperature.Valid {
			add(models.MetricTemperature, temperature.Float64, recordedAt)
		}
		if oxygen.Valid {
			add(models.MetricOxygenSaturation, float64(oxygen.Int64), recordedAt)
		}
		if sleep.Valid {
			add(models.MetricSleepHours, sleep.Float64, recordedAt)
		}
		if steps.Valid {
			add(models.MetricSteps, float64(steps.Int64), recordedAt)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate metric history: %w", err)
	}
	return history, nil
}

// ComputeBMI derives body mass index from weight in kilograms and height in
// centimeters, rounded to one decimal place.
func ComputeBMI(weightKg, heightCm float64) float64 {
	if heightCm <= 0 {
		return 0
	}
	m := heightCm / 100
	return math.Round(weightKg/(m*m)*10) / 10
}
